// Package depgraph builds a table dependency graph from lineage edges and
// renders it for Graphviz, Mermaid and JSON consumers.
package depgraph

import (
	"sort"

	"github.com/efebarandurmaz/sqllineage/internal/lineage"
)

// NodeKind classifies a table by its position in the graph.
type NodeKind string

const (
	NodeSource NodeKind = "source" // feeds other tables, fed by none
	NodeSink   NodeKind = "sink"   // fed by other tables, feeds none
	NodeTable  NodeKind = "table"  // both
)

// Node is one table.
type Node struct {
	ID     string   `json:"id"`
	Kind   NodeKind `json:"kind"`
	FanIn  int      `json:"fan_in"`
	FanOut int      `json:"fan_out"`
}

// Edge is a source -> target dependency, merged across the files that
// declare it.
type Edge struct {
	From   string   `json:"from"`
	To     string   `json:"to"`
	Files  []string `json:"files"`
	Weight int      `json:"weight"` // number of files
	// SelfLoop marks a table that reads and writes itself.
	SelfLoop bool `json:"self_loop,omitempty"`
}

// Graph is the full table graph.
type Graph struct {
	Nodes []Node     `json:"nodes"`
	Edges []Edge     `json:"edges"`
	Stats GraphStats `json:"stats"`
}

// GraphStats holds computed metrics about the graph.
type GraphStats struct {
	TotalNodes          int        `json:"total_nodes"`
	TotalEdges          int        `json:"total_edges"`
	SourceCount         int        `json:"source_count"`
	SinkCount           int        `json:"sink_count"`
	SelfLoops           int        `json:"self_loops"`
	MaxFanOut           int        `json:"max_fan_out"`
	MaxFanIn            int        `json:"max_fan_in"`
	HotspotNode         string     `json:"hotspot_node"` // most connections
	ConnectedComponents int        `json:"connected_components"`
	Cycles              [][]string `json:"cycles,omitempty"`
}

// Build merges edges by (source, target) and computes stats. Nodes and
// edges are sorted so output is stable across runs.
func Build(edges []lineage.Edge) *Graph {
	files := make(map[lineage.Pair]map[string]bool)
	tables := make(map[string]bool)

	for _, e := range edges {
		k := e.Pair()
		if files[k] == nil {
			files[k] = make(map[string]bool)
		}
		if e.FilePath != "" {
			files[k][e.FilePath] = true
		}
		tables[e.Source] = true
		tables[e.Target] = true
	}

	g := &Graph{}
	for k, set := range files {
		fs := make([]string, 0, len(set))
		for f := range set {
			fs = append(fs, f)
		}
		sort.Strings(fs)
		g.Edges = append(g.Edges, Edge{From: k.Source, To: k.Target, Files: fs, Weight: len(fs), SelfLoop: k.SelfReference()})
	}
	sort.Slice(g.Edges, func(i, j int) bool {
		if g.Edges[i].From != g.Edges[j].From {
			return g.Edges[i].From < g.Edges[j].From
		}
		return g.Edges[i].To < g.Edges[j].To
	})

	fanIn := make(map[string]int)
	fanOut := make(map[string]int)
	for _, e := range g.Edges {
		fanOut[e.From]++
		fanIn[e.To]++
	}

	ids := make([]string, 0, len(tables))
	for t := range tables {
		ids = append(ids, t)
	}
	sort.Strings(ids)
	for _, id := range ids {
		n := Node{ID: id, FanIn: fanIn[id], FanOut: fanOut[id], Kind: NodeTable}
		switch {
		case n.FanIn == 0:
			n.Kind = NodeSource
		case n.FanOut == 0:
			n.Kind = NodeSink
		}
		g.Nodes = append(g.Nodes, n)
	}

	g.computeStats()
	return g
}

func (g *Graph) adjacency() map[string][]string {
	adj := make(map[string][]string)
	for _, e := range g.Edges {
		adj[e.From] = append(adj[e.From], e.To)
	}
	return adj
}

func (g *Graph) computeStats() {
	g.Stats.TotalNodes = len(g.Nodes)
	g.Stats.TotalEdges = len(g.Edges)

	best := -1
	for _, n := range g.Nodes {
		switch n.Kind {
		case NodeSource:
			g.Stats.SourceCount++
		case NodeSink:
			g.Stats.SinkCount++
		}
		if n.FanOut > g.Stats.MaxFanOut {
			g.Stats.MaxFanOut = n.FanOut
		}
		if n.FanIn > g.Stats.MaxFanIn {
			g.Stats.MaxFanIn = n.FanIn
		}
		if n.FanIn+n.FanOut > best {
			best = n.FanIn + n.FanOut
			g.Stats.HotspotNode = n.ID
		}
	}
	for _, e := range g.Edges {
		if e.SelfLoop {
			g.Stats.SelfLoops++
		}
	}

	g.Stats.ConnectedComponents = g.countComponents()
	g.Stats.Cycles = g.detectCycles()
}

// countComponents counts weakly connected components via union-find.
func (g *Graph) countComponents() int {
	parent := make(map[string]string)
	var find func(string) string
	find = func(x string) string {
		if parent[x] == "" {
			parent[x] = x
		}
		if parent[x] != x {
			parent[x] = find(parent[x])
		}
		return parent[x]
	}

	for _, n := range g.Nodes {
		find(n.ID)
	}
	for _, e := range g.Edges {
		if a, b := find(e.From), find(e.To); a != b {
			parent[a] = b
		}
	}

	roots := make(map[string]bool)
	for _, n := range g.Nodes {
		roots[find(n.ID)] = true
	}
	return len(roots)
}

// detectCycles reports one cycle per back edge found by a DFS in node order.
// A self-referencing table is a cycle of one.
func (g *Graph) detectCycles() [][]string {
	adj := g.adjacency()
	state := make(map[string]int) // 0=unvisited, 1=on path, 2=done
	var path []string
	var cycles [][]string

	var dfs func(string)
	dfs = func(n string) {
		state[n] = 1
		path = append(path, n)
		for _, m := range adj[n] {
			switch state[m] {
			case 0:
				dfs(m)
			case 1:
				i := len(path) - 1
				for path[i] != m {
					i--
				}
				cycles = append(cycles, append([]string(nil), path[i:]...))
			}
		}
		path = path[:len(path)-1]
		state[n] = 2
	}

	for _, n := range g.Nodes {
		if state[n.ID] == 0 {
			dfs(n.ID)
		}
	}
	return cycles
}
