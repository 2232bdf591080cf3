package verify

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/forgehq/sidecar/pkg/models"
)

func fmtPanic(rec any) string {
	return fmt.Sprintf("verifier panicked: %v", rec)
}

// ResultSink persists VerifierResult rows for outcomes != pass. Logging
// failures are non-fatal, per §4.4 — Runner discards a Record error
// without logging it.
type ResultSink interface {
	Record(ctx context.Context, result models.VerifierResult) error
}

// Runner evaluates a tool call's output against the verifiers bound to it.
type Runner struct {
	registry *Registry
	custom   *CustomRunner
	sink     ResultSink
}

// NewRunner builds a Runner. sink may be nil to skip persistence (e.g. in
// tests).
func NewRunner(registry *Registry, custom *CustomRunner, sink ResultSink) *Runner {
	return &Runner{registry: registry, custom: custom, sink: sink}
}

// Verify runs every verifier bound to toolName (merged with wildcard
// bindings) in ascending Order, short-circuiting on the first block.
// Non-block outcomes track the worst result seen; pass is returned only if
// every verifier passes.
func (r *Runner) Verify(ctx context.Context, sessionID, toolName string, args, result json.RawMessage) models.VerifierResult {
	specs := r.registry.For(toolName)

	worst := models.VerifierResult{
		SessionID: sessionID,
		ToolName:  toolName,
		Outcome:   models.OutcomePass,
	}

	for _, spec := range specs {
		eval := r.evalOne(ctx, spec, toolName, args, result)
		row := models.VerifierResult{
			SessionID:    sessionID,
			ToolName:     toolName,
			VerifierName: spec.Name,
			Outcome:      eval.Outcome,
			Message:      eval.Message,
			Input:        string(args),
			Output:       string(result),
		}

		if row.Outcome != models.OutcomePass {
			r.record(ctx, row)
		}

		if eval.Outcome == models.OutcomeBlock {
			return row
		}
		if eval.Outcome.Severity() > worst.Outcome.Severity() {
			worst = row
		}
	}

	return worst
}

func (r *Runner) evalOne(ctx context.Context, spec Spec, toolName string, args, result json.RawMessage) (eval EvalResult) {
	defer func() {
		// An unhandled panic from a non-sandboxed (schema/pattern/in-process
		// custom) verifier is treated the same as a thrown exception: warn.
		if rec := recover(); rec != nil {
			eval = EvalResult{Outcome: models.OutcomeWarn, Message: fmtPanic(rec)}
		}
	}()

	switch spec.Kind {
	case KindSchema:
		return evalSchema(spec.SchemaFields, string(result))
	case KindPattern:
		return evalPattern(spec, string(result))
	case KindCustom:
		if r.custom == nil {
			return EvalResult{Outcome: models.OutcomeWarn, Message: "no custom verifier runner configured"}
		}
		return r.custom.Eval(ctx, spec, toolName, args, result)
	default:
		return EvalResult{Outcome: models.OutcomeWarn, Message: "unknown verifier kind"}
	}
}

func (r *Runner) record(ctx context.Context, row models.VerifierResult) {
	if r.sink == nil {
		return
	}
	r.sink.Record(ctx, row)
}
