package vector

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/efebarandurmaz/sqllineage/internal/lineage"
	"github.com/efebarandurmaz/sqllineage/internal/llm"
	"github.com/efebarandurmaz/sqllineage/internal/query"
)

// DefaultMaxChars caps the text sent for embedding; embedding models accept
// far less than completion models.
const DefaultMaxChars = 24000

// Embedder wraps an LLM provider to produce and store embeddings.
type Embedder struct {
	provider llm.Provider
	repo     Repository
	maxChars int
}

// NewEmbedder creates an Embedder.
func NewEmbedder(provider llm.Provider, repo Repository) *Embedder {
	return &Embedder{provider: provider, repo: repo, maxChars: DefaultMaxChars}
}

// PointID derives a stable point ID for a statement, so indexing a file again
// replaces its earlier points.
func PointID(filePath string, index int) string {
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte(filePath+"#"+strconv.Itoa(index))).String()
}

// IndexQueries embeds qs and upserts them. pairs holds the accepted lineage
// of each statement, keyed by statement index; it is stored as metadata.
func (e *Embedder) IndexQueries(ctx context.Context, qs []query.Query, pairs map[int][]lineage.Pair) error {
	if len(qs) == 0 {
		return nil
	}
	texts := make([]string, len(qs))
	for i, q := range qs {
		texts[i] = clip(q.Text, e.maxChars)
	}

	vectors, err := e.provider.Embed(ctx, texts)
	if err != nil {
		return fmt.Errorf("embedding: %w", err)
	}
	if len(vectors) != len(texts) {
		return fmt.Errorf("embedding count mismatch: got %d, want %d", len(vectors), len(texts))
	}

	docs := make([]Document, len(qs))
	for i, q := range qs {
		docs[i] = Document{
			ID:       PointID(q.FilePath, q.Index),
			Content:  q.Text,
			Vector:   vectors[i],
			Metadata: metadata(q, pairs[q.Index]),
		}
	}
	return e.repo.Upsert(ctx, docs)
}

func metadata(q query.Query, pairs []lineage.Pair) map[string]string {
	m := map[string]string{
		"file_path":       q.FilePath,
		"statement_index": strconv.Itoa(q.Index),
	}
	if len(pairs) == 0 {
		return m
	}
	var sources, targets []string
	seen := map[string]bool{}
	for _, p := range pairs {
		if !seen["s"+p.Source] {
			seen["s"+p.Source] = true
			sources = append(sources, p.Source)
		}
		if !seen["t"+p.Target] {
			seen["t"+p.Target] = true
			targets = append(targets, p.Target)
		}
	}
	m["sources"] = strings.Join(sources, ",")
	m["targets"] = strings.Join(targets, ",")
	return m
}

// Search embeds text and returns the topK closest statements.
func (e *Embedder) Search(ctx context.Context, text string, topK int) ([]SearchResult, error) {
	vectors, err := e.provider.Embed(ctx, []string{clip(text, e.maxChars)})
	if err != nil {
		return nil, fmt.Errorf("embedding: %w", err)
	}
	if len(vectors) != 1 {
		return nil, fmt.Errorf("embedding count mismatch: got %d, want 1", len(vectors))
	}
	if topK <= 0 {
		topK = 5
	}
	return e.repo.Search(ctx, vectors[0], topK)
}

func clip(s string, n int) string {
	if n <= 0 || len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}
