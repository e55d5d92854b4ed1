package query

import "testing"

func TestNeedsLineageAnalysis(t *testing.T) {
	tests := []struct {
		text string
		want bool
	}{
		{"INSERT INTO t SELECT * FROM s;", true},
		{"  update t set a = 1;", true},
		{"merge into t using s on (1=1);", true},
		{"CREATE TABLE t AS SELECT * FROM s;", true},
		{"create table t as select * from s", true},
		{"CREATE TABLE t (a INT);", false},
		{"SELECT * FROM s;", false},
		{"DELETE FROM t;", false},
		{"TRUNCATE TABLE t;", false},
		{"DROP TABLE t;", false},
		{"", false},
		{"   ", false},
		// heuristic: the literal alone is enough
		{"CREATE VIEW v COMMENT 'x AS SELECT y' (a INT);", true},
	}
	for _, tt := range tests {
		if got := NeedsLineageAnalysis(tt.text); got != tt.want {
			t.Errorf("NeedsLineageAnalysis(%q) = %v, want %v", tt.text, got, tt.want)
		}
	}
}

func TestFromLines_EndToEnd(t *testing.T) {
	lines := []string{
		"-- comment",
		"INSERT INTO tgt",
		"SELECT * FROM src;",
		"SELECT 1;",
	}
	qs := FromLines("etl/load.sql", lines)
	if len(qs) != 2 {
		t.Fatalf("expected 2 queries, got %d", len(qs))
	}
	if qs[0].Text != "INSERT INTO tgt\nSELECT * FROM src;" {
		t.Errorf("unexpected first statement %q", qs[0].Text)
	}
	if !qs[0].NeedsLineage {
		t.Error("INSERT should need lineage analysis")
	}
	if qs[1].Text != "SELECT 1;" || qs[1].NeedsLineage {
		t.Errorf("unexpected second query %+v", qs[1])
	}
	if qs[1].Index != 1 || qs[1].FilePath != "etl/load.sql" {
		t.Errorf("unexpected metadata %+v", qs[1])
	}

	an := Analyzable(qs)
	if len(an) != 1 || an[0].Index != 0 {
		t.Errorf("Analyzable() = %+v", an)
	}
}
