// Package source resolves the files a run covers and reads them.
package source

import (
	"bufio"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/efebarandurmaz/sqllineage/internal/sqltext"
)

// ErrNotFound is returned by Read for a path that does not exist.
var ErrNotFound = errors.New("source: file not found")

// ErrEmptyList is returned when a list file names no paths.
var ErrEmptyList = errors.New("source: file list is empty")

// File is one SQL source read into memory.
type File struct {
	Path string
	// Fingerprint is the hex SHA-256 of the raw content. Unchanged files keep
	// the same fingerprint across runs.
	Fingerprint string
	Lines       []string
}

// Read loads path. A missing file yields ErrNotFound.
func Read(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, path)
		}
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return &File{
		Path:        path,
		Fingerprint: Fingerprint(data),
		Lines:       sqltext.SplitLines(string(data)),
	}, nil
}

// Fingerprint returns the hex SHA-256 of data.
func Fingerprint(data []byte) string {
	h := sha256.Sum256(data)
	return hex.EncodeToString(h[:])
}

// Input selects the files of a run. Exactly one field is normally set; when
// several are, their paths are concatenated in File, List, Dir order.
type Input struct {
	File string
	List string
	Dir  string
}

// Paths resolves in to file paths. Paths that do not exist are kept so the
// run can report them as skipped.
func (in Input) Paths() ([]string, error) {
	var out []string
	if in.File != "" {
		out = append(out, in.File)
	}
	if in.List != "" {
		paths, err := FromList(in.List)
		if err != nil {
			return nil, err
		}
		out = append(out, paths...)
	}
	if in.Dir != "" {
		paths, err := FromDir(in.Dir)
		if err != nil {
			return nil, err
		}
		out = append(out, paths...)
	}
	return out, nil
}

// FromList reads one path per line from listFile. Blank lines and lines
// starting with '#' are ignored.
func FromList(listFile string) ([]string, error) {
	f, err := os.Open(listFile)
	if err != nil {
		return nil, fmt.Errorf("open file list: %w", err)
	}
	defer f.Close()

	var paths []string
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 64*1024), 1024*1024)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		paths = append(paths, line)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read file list: %w", err)
	}
	if len(paths) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrEmptyList, listFile)
	}
	return paths, nil
}

// FromDir walks root for *.sql files (any case), sorted by path.
func FromDir(root string) ([]string, error) {
	var paths []string
	err := filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		if strings.EqualFold(filepath.Ext(p), ".sql") {
			paths = append(paths, p)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk %s: %w", root, err)
	}
	sort.Strings(paths)
	return paths, nil
}
