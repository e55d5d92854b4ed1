package qualitygate

import (
	"fmt"
	"strings"
)

// GateConfig defines the configuration for quality gates. A negative limit
// or a zero minimum disables its gate.
type GateConfig struct {
	Enabled bool `mapstructure:"enabled" json:"enabled"`

	MinSuccessRate  float64 `mapstructure:"min_success_rate" json:"min_success_rate"`
	SuccessSeverity string  `mapstructure:"success_severity" json:"success_severity"`

	MaxFailedFiles int    `mapstructure:"max_failed_files" json:"max_failed_files"`
	FailedSeverity string `mapstructure:"failed_severity" json:"failed_severity"`

	MaxStatementErrors int    `mapstructure:"max_statement_errors" json:"max_statement_errors"`
	StatementSeverity  string `mapstructure:"statement_severity" json:"statement_severity"`

	MinLineages     int    `mapstructure:"min_lineages" json:"min_lineages"`
	LineageSeverity string `mapstructure:"lineage_severity" json:"lineage_severity"`
}

// DefaultConfig returns the default gate configuration. Gates are off until
// enabled.
func DefaultConfig() *GateConfig {
	return &GateConfig{
		Enabled:            false,
		MinSuccessRate:     0.9,
		SuccessSeverity:    "required",
		MaxFailedFiles:     -1,
		FailedSeverity:     "critical",
		MaxStatementErrors: -1,
		StatementSeverity:  "advisory",
		MinLineages:        1,
		LineageSeverity:    "advisory",
	}
}

// parseSeverity converts a string to GateSeverity.
func parseSeverity(s string) GateSeverity {
	switch s {
	case "critical":
		return SeverityCritical
	case "required":
		return SeverityRequired
	case "advisory":
		return SeverityAdvisory
	default:
		return SeverityRequired
	}
}

// BuildPipeline constructs a gate pipeline from configuration. Critical
// gates go first so a failure short-circuits the rest.
func BuildPipeline(cfg *GateConfig) *Pipeline {
	if cfg == nil {
		cfg = DefaultConfig()
	}

	var gates []Gate
	if cfg.MaxFailedFiles >= 0 {
		gates = append(gates, NewFailedFilesGate(cfg.MaxFailedFiles, parseSeverity(cfg.FailedSeverity)))
	}
	if cfg.MinSuccessRate > 0 {
		gates = append(gates, NewSuccessRateGate(cfg.MinSuccessRate, parseSeverity(cfg.SuccessSeverity)))
	}
	if cfg.MaxStatementErrors >= 0 {
		gates = append(gates, NewStatementErrorGate(cfg.MaxStatementErrors, parseSeverity(cfg.StatementSeverity)))
	}
	if cfg.MinLineages > 0 {
		gates = append(gates, NewLineageGate(cfg.MinLineages, parseSeverity(cfg.LineageSeverity)))
	}

	p := NewPipeline()
	for _, sev := range []GateSeverity{SeverityCritical, SeverityRequired, SeverityAdvisory} {
		for _, g := range gates {
			if g.Severity() == sev {
				p.AddGate(g)
			}
		}
	}
	return p
}

// FormatReport returns a human-readable quality gate report.
func FormatReport(result *PipelineResult) string {
	var b strings.Builder
	b.WriteString("╔══════════════════════════════════════════╗\n")
	b.WriteString("║        Quality Gate Report               ║\n")
	b.WriteString("╠══════════════════════════════════════════╣\n")

	for _, gr := range result.Gates {
		icon := "✓"
		switch gr.Status {
		case GateFailed:
			icon = "✗"
		case GateSkipped:
			icon = "○"
		case GateWarning:
			icon = "⚠"
		}

		severity := ""
		switch gr.Severity {
		case SeverityCritical:
			severity = "[CRITICAL]"
		case SeverityRequired:
			severity = "[REQUIRED]"
		case SeverityAdvisory:
			severity = "[ADVISORY]"
		}

		fmt.Fprintf(&b, "║ %s %-16s %-10s %s\n", icon, gr.Name, severity, gr.Message)
		for _, d := range gr.Details {
			fmt.Fprintf(&b, "║   → %s\n", d)
		}
	}

	b.WriteString("╠══════════════════════════════════════════╣\n")
	status := "PASSED"
	if result.Status == GateFailed {
		status = "FAILED"
	}
	fmt.Fprintf(&b, "║ Result: %s (%s)\n", status, result.Summary)
	b.WriteString("╚══════════════════════════════════════════╝\n")

	return b.String()
}
