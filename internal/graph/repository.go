// Package graph models lineage as a table graph for traversal queries.
package graph

import (
	"context"
	"sort"

	"github.com/efebarandurmaz/sqllineage/internal/lineage"
	"github.com/efebarandurmaz/sqllineage/internal/store"
)

// MaxDepth bounds every traversal.
const MaxDepth = 10

// Hop is one table reached during a traversal, with its distance from the
// starting table.
type Hop struct {
	Table string `json:"table"`
	Depth int    `json:"depth"`
}

// Traverser walks lineage in either direction.
type Traverser interface {
	// Upstream returns the tables that feed table, directly or within
	// maxDepth hops, nearest first.
	Upstream(ctx context.Context, table string, maxDepth int) ([]Hop, error)
	// Downstream returns the tables fed by table within maxDepth hops.
	Downstream(ctx context.Context, table string, maxDepth int) ([]Hop, error)
}

// Repository stores (:Table)-[:FEEDS]->(:Table) edges and walks them.
type Repository interface {
	store.Sink
	Traverser
}

// ClampDepth maps non-positive or oversized depths to MaxDepth.
func ClampDepth(d int) int {
	if d <= 0 || d > MaxDepth {
		return MaxDepth
	}
	return d
}

// Neighbors returns the tables one hop away from table.
type Neighbors func(ctx context.Context, table string) ([]string, error)

// Walk runs a breadth-first traversal from table. Each reached table is
// reported once at its shortest depth; within a depth tables are sorted by
// name. The starting table is never reported, even on a cycle.
func Walk(ctx context.Context, table string, maxDepth int, next Neighbors) ([]Hop, error) {
	start := lineage.NormalizeName(table)
	seen := map[string]bool{start: true}
	frontier := []string{start}
	var hops []Hop

	for depth := 1; depth <= ClampDepth(maxDepth) && len(frontier) > 0; depth++ {
		var level []string
		for _, t := range frontier {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			names, err := next(ctx, t)
			if err != nil {
				return nil, err
			}
			for _, n := range names {
				if seen[n] {
					continue
				}
				seen[n] = true
				level = append(level, n)
			}
		}
		sort.Strings(level)
		for _, n := range level {
			hops = append(hops, Hop{Table: n, Depth: depth})
		}
		frontier = level
	}
	return hops, nil
}
