package extract

import (
	"errors"
	"reflect"
	"testing"

	"github.com/efebarandurmaz/sqllineage/internal/lineage"
)

func TestField(t *testing.T) {
	tests := []struct {
		name   string
		body   string
		key    string
		want   string
		wantOK bool
	}{
		{"newline escape", `{"content":"a\nb"}`, "content", "a\nb", true},
		{"all escapes", `{"content":"q\"x\\y\tz\r"}`, "content", "q\"x\\y\tz\r", true},
		{"unknown escape passes through", `{"content":"\u0041\/"}`, "content", "u0041/", true},
		{"absent key", `{"other":"x"}`, "content", "", false},
		{"space after colon not matched", `{"content": "x"}`, "content", "", false},
		{"first occurrence wins", `{"content":"one","content":"two"}`, "content", "one", true},
		{"unterminated", `{"content":"abc`, "content", "abc", true},
		{"empty value", `{"content":""}`, "content", "", true},
		{"anthropic text field", `{"content":[{"type":"text","text":"{\"lineages\":[]}"}]}`, "text", `{"lineages":[]}`, true},
		{"surrounding noise", `data: xx {"choices":[{"message":{"role":"assistant","content":"ok"}}]} trailer`, "content", "ok", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := Field(tt.body, tt.key)
			if got != tt.want || ok != tt.wantOK {
				t.Errorf("Field(%q, %q) = (%q, %v), want (%q, %v)", tt.body, tt.key, got, ok, tt.want, tt.wantOK)
			}
		})
	}
}

func TestStripFences(t *testing.T) {
	tests := map[string]string{
		"```json\n{\"a\":1}\n```": `{"a":1}`,
		"```JSON\n{}\n```":        "{}",
		"  {}  ":                  "{}",
		"```\n{}```":              "{}",
	}
	for in, want := range tests {
		if got := StripFences(in); got != want {
			t.Errorf("StripFences(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestBoundJSON(t *testing.T) {
	tests := map[string]string{
		`Here you go: {"lineages":[]} Hope this helps.`: `{"lineages":[]}`,
		`{"a":{"b":1}}`:                              `{"a":{"b":1}}`,
		"no braces":                                  "no braces",
		"} backwards {":                              "} backwards {",
	}
	for in, want := range tests {
		if got := BoundJSON(in); got != want {
			t.Errorf("BoundJSON(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestCandidates(t *testing.T) {
	content := "```json\nSure! {\"lineages\":[{\"sourceTable\":\" src \",\"targetTable\":\"tgt\"},{\"sourceTable\":\"b\"}]}\n```"
	got, err := Candidates(content)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := []lineage.Candidate{
		{Source: "SRC", Target: "TGT"},
		{Source: "B", Target: ""},
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Candidates() = %+v, want %+v", got, want)
	}
}

func TestCandidates_EmptyArray(t *testing.T) {
	got, err := Candidates(`{"lineages":[]}`)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("expected no candidates, got %+v", got)
	}
}

func TestCandidates_Errors(t *testing.T) {
	tests := []struct {
		name    string
		content string
		target  error
	}{
		{"empty", "  ", ErrEmptyContent},
		{"fences only", "```json\n```", ErrEmptyContent},
		{"not an array", `{"lineages":{"sourceTable":"A"}}`, ErrNoLineages},
		{"missing key", `{"tables":[]}`, ErrNoLineages},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Candidates(tt.content)
			if !errors.Is(err, tt.target) {
				t.Errorf("expected %v, got %v", tt.target, err)
			}
		})
	}

	if _, err := Candidates("not json at all"); err == nil {
		t.Error("expected decode error for prose")
	}
}

func TestStripThinking(t *testing.T) {
	tests := []struct {
		name, in, want string
	}{
		{"none", `{"lineages":[]}`, `{"lineages":[]}`},
		{"leading block", "<think>A feeds B?</think>\n{\"lineages\":[]}", `{"lineages":[]}`},
		{"two blocks", "<think>x</think>a<think>y</think>b", "ab"},
		{"unclosed", "answer <think>still thinking", "answer"},
		{"stray close", "</think>{}", "</think>{}"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := StripThinking(tt.in); got != tt.want {
				t.Errorf("StripThinking(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}
