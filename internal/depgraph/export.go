package depgraph

import (
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
)

// Export formats.
const (
	FormatDOT     = "dot"
	FormatMermaid = "mermaid"
	FormatJSON    = "json"
)

// ErrUnknownFormat is returned by Export for an unsupported format.
var ErrUnknownFormat = errors.New("unknown export format")

// Export renders g in format.
func Export(g *Graph, format string) ([]byte, error) {
	switch format {
	case FormatDOT:
		return []byte(ExportDOT(g)), nil
	case FormatMermaid:
		return []byte(ExportMermaid(g)), nil
	case FormatJSON:
		return ExportJSON(g)
	}
	return nil, fmt.Errorf("%w %q (want %s, %s or %s)", ErrUnknownFormat, format, FormatDOT, FormatMermaid, FormatJSON)
}

// ExportDOT generates a Graphviz DOT representation of the graph.
func ExportDOT(g *Graph) string {
	var b strings.Builder
	b.WriteString("digraph lineage {\n")
	b.WriteString("  rankdir=LR;\n")
	b.WriteString("  node [fontname=\"Helvetica\" style=filled];\n")
	b.WriteString("  edge [fontname=\"Helvetica\" fontsize=10];\n\n")

	for _, n := range g.Nodes {
		fmt.Fprintf(&b, "  %s [shape=%s fillcolor=\"%s\"];\n", dotQuote(n.ID), nodeShape(n.Kind), nodeColor(n.Kind))
	}
	if len(g.Nodes) > 0 {
		b.WriteString("\n")
	}

	for _, e := range g.Edges {
		fmt.Fprintf(&b, "  %s -> %s [label=%s];\n", dotQuote(e.From), dotQuote(e.To), dotQuote(edgeLabel(e)))
	}

	b.WriteString("}\n")
	return b.String()
}

// ExportMermaid generates a Mermaid flowchart of the graph.
func ExportMermaid(g *Graph) string {
	var b strings.Builder
	b.WriteString("graph LR\n")

	for _, n := range g.Nodes {
		l, r := mermaidShape(n.Kind)
		fmt.Fprintf(&b, "  %s%s\"%s\"%s\n", sanitizeMermaidID(n.ID), l, n.ID, r)
	}

	for _, e := range g.Edges {
		label := ""
		if e.Weight > 1 {
			label = fmt.Sprintf("|%d files|", e.Weight)
		}
		fmt.Fprintf(&b, "  %s -->%s %s\n", sanitizeMermaidID(e.From), label, sanitizeMermaidID(e.To))
	}

	return b.String()
}

// ExportJSON serializes the graph to JSON.
func ExportJSON(g *Graph) ([]byte, error) {
	return json.MarshalIndent(g, "", "  ")
}

// FormatStats returns a human-readable summary of graph statistics.
func FormatStats(g *Graph) string {
	var b strings.Builder
	b.WriteString("Lineage Graph Statistics\n")
	b.WriteString("========================\n\n")
	fmt.Fprintf(&b, "Tables:      %d total\n", g.Stats.TotalNodes)
	fmt.Fprintf(&b, "  Sources:   %d\n", g.Stats.SourceCount)
	fmt.Fprintf(&b, "  Sinks:     %d\n", g.Stats.SinkCount)
	fmt.Fprintf(&b, "Edges:       %d total\n", g.Stats.TotalEdges)
	fmt.Fprintf(&b, "Self loops:  %d\n", g.Stats.SelfLoops)
	fmt.Fprintf(&b, "Max Fan-Out: %d\n", g.Stats.MaxFanOut)
	fmt.Fprintf(&b, "Max Fan-In:  %d\n", g.Stats.MaxFanIn)
	fmt.Fprintf(&b, "Hotspot:     %s\n", g.Stats.HotspotNode)
	fmt.Fprintf(&b, "Components:  %d\n", g.Stats.ConnectedComponents)

	if len(g.Stats.Cycles) > 0 {
		fmt.Fprintf(&b, "\nCycles: %d\n", len(g.Stats.Cycles))
		for i, cycle := range g.Stats.Cycles {
			fmt.Fprintf(&b, "  %d: %s -> %s\n", i+1, strings.Join(cycle, " -> "), cycle[0])
		}
	}
	return b.String()
}

func edgeLabel(e Edge) string {
	switch e.Weight {
	case 0:
		return ""
	case 1:
		return filepath.Base(e.Files[0])
	}
	return fmt.Sprintf("%d files", e.Weight)
}

func dotQuote(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	return `"` + strings.ReplaceAll(s, `"`, `\"`) + `"`
}

func sanitizeMermaidID(s string) string {
	return strings.Map(func(r rune) rune {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') || r == '_' {
			return r
		}
		return '_'
	}, s)
}

func nodeShape(kind NodeKind) string {
	switch kind {
	case NodeSource:
		return "cylinder"
	case NodeSink:
		return "box3d"
	default:
		return "box"
	}
}

func nodeColor(kind NodeKind) string {
	switch kind {
	case NodeSource:
		return "#1f6feb"
	case NodeSink:
		return "#238636"
	default:
		return "#8b949e"
	}
}

func mermaidShape(kind NodeKind) (string, string) {
	switch kind {
	case NodeSource:
		return "[(", ")]"
	case NodeSink:
		return "[[", "]]"
	default:
		return "[", "]"
	}
}
