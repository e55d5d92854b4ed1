package qualitygate

import "fmt"

// SuccessRateGate checks the share of attempted files that succeeded.
// Skipped files are not attempts.
type SuccessRateGate struct {
	MinRate  float64
	severity GateSeverity
}

func NewSuccessRateGate(minRate float64, severity GateSeverity) *SuccessRateGate {
	return &SuccessRateGate{MinRate: minRate, severity: severity}
}

func (g *SuccessRateGate) Name() string           { return "success_rate" }
func (g *SuccessRateGate) Severity() GateSeverity { return g.severity }
func (g *SuccessRateGate) Evaluate(ctx *EvalContext) (*GateResult, error) {
	r := &GateResult{
		Name:      g.Name(),
		Severity:  g.severity,
		Threshold: g.MinRate,
	}
	attempted := ctx.Files - ctx.Skipped
	if attempted <= 0 {
		r.Status = GateSkipped
		r.Message = "No files attempted"
		return r, nil
	}

	r.Score = float64(ctx.Succeeded) / float64(attempted)
	if r.Score >= g.MinRate {
		r.Status = GatePassed
		r.Message = fmt.Sprintf("%d/%d files succeeded (%.0f%%)", ctx.Succeeded, attempted, r.Score*100)
	} else {
		r.Status = GateFailed
		r.Message = fmt.Sprintf("%d/%d files succeeded (%.0f%%), need %.0f%%", ctx.Succeeded, attempted, r.Score*100, g.MinRate*100)
		r.Details = ctx.FailedFiles
	}
	return r, nil
}

// FailedFilesGate bounds the number of files that ended in ERROR.
type FailedFilesGate struct {
	MaxFailed int
	severity  GateSeverity
}

func NewFailedFilesGate(maxFailed int, severity GateSeverity) *FailedFilesGate {
	return &FailedFilesGate{MaxFailed: maxFailed, severity: severity}
}

func (g *FailedFilesGate) Name() string           { return "failed_files" }
func (g *FailedFilesGate) Severity() GateSeverity { return g.severity }
func (g *FailedFilesGate) Evaluate(ctx *EvalContext) (*GateResult, error) {
	r := &GateResult{
		Name:      g.Name(),
		Severity:  g.severity,
		Threshold: float64(g.MaxFailed),
	}
	if ctx.Failed <= g.MaxFailed {
		r.Status = GatePassed
		r.Score = 1.0
		r.Message = fmt.Sprintf("Failed files %d within limit %d", ctx.Failed, g.MaxFailed)
	} else {
		r.Status = GateFailed
		r.Message = fmt.Sprintf("Failed files %d exceed limit %d", ctx.Failed, g.MaxFailed)
		r.Details = ctx.FailedFiles
	}
	return r, nil
}

// StatementErrorGate bounds statement-level errors in files that otherwise
// succeeded, such as unparseable model replies.
type StatementErrorGate struct {
	MaxErrors int
	severity  GateSeverity
}

func NewStatementErrorGate(maxErrors int, severity GateSeverity) *StatementErrorGate {
	return &StatementErrorGate{MaxErrors: maxErrors, severity: severity}
}

func (g *StatementErrorGate) Name() string           { return "statement_errors" }
func (g *StatementErrorGate) Severity() GateSeverity { return g.severity }
func (g *StatementErrorGate) Evaluate(ctx *EvalContext) (*GateResult, error) {
	r := &GateResult{
		Name:      g.Name(),
		Severity:  g.severity,
		Threshold: float64(g.MaxErrors),
	}

	n := len(ctx.StatementErrors)
	if n <= g.MaxErrors {
		r.Status = GatePassed
		r.Score = 1.0
		r.Message = fmt.Sprintf("Statement errors %d within limit %d", n, g.MaxErrors)
	} else {
		r.Status = GateFailed
		r.Message = fmt.Sprintf("Statement errors %d exceed limit %d", n, g.MaxErrors)
		r.Details = ctx.StatementErrors
	}
	return r, nil
}

// LineageGate requires a minimum number of saved lineages. A run that
// analyzed statements but found nothing usually points at a broken prompt or
// model.
type LineageGate struct {
	MinLineages int
	severity    GateSeverity
}

func NewLineageGate(minLineages int, severity GateSeverity) *LineageGate {
	return &LineageGate{MinLineages: minLineages, severity: severity}
}

func (g *LineageGate) Name() string           { return "lineages" }
func (g *LineageGate) Severity() GateSeverity { return g.severity }
func (g *LineageGate) Evaluate(ctx *EvalContext) (*GateResult, error) {
	r := &GateResult{
		Name:      g.Name(),
		Severity:  g.severity,
		Threshold: float64(g.MinLineages),
	}
	if ctx.Statements == 0 {
		r.Status = GateSkipped
		r.Message = "No statements analyzed"
		return r, nil
	}

	r.Score = float64(ctx.Lineages)
	if ctx.Lineages >= g.MinLineages {
		r.Status = GatePassed
		r.Message = fmt.Sprintf("%d lineages from %d statements", ctx.Lineages, ctx.Statements)
	} else {
		r.Status = GateFailed
		r.Message = fmt.Sprintf("%d lineages from %d statements, need %d", ctx.Lineages, ctx.Statements, g.MinLineages)
	}
	return r, nil
}
