package verify

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/forgehq/sidecar/pkg/models"
)

func TestRegistryMergesWildcardAndDedupesByName(t *testing.T) {
	reg := NewRegistry([]Spec{
		{Name: "v1", ToolName: "*", Order: "A-0001", Kind: KindSchema},
		{Name: "v2", ToolName: "tool_x", Order: "I-0001", Kind: KindSchema},
		{Name: "v1", ToolName: "tool_x", Order: "Z-0001", Kind: KindSchema}, // collides with v1, per-tool wins
	})

	merged := reg.For("tool_x")
	if len(merged) != 2 {
		t.Fatalf("expected 2 verifiers after dedupe, got %d", len(merged))
	}
	if merged[0].Order > merged[1].Order {
		t.Fatalf("expected ascending order, got %s then %s", merged[0].Order, merged[1].Order)
	}
	// v1 is bound both as wildcard and per-tool; the per-tool binding wins.
	for _, s := range merged {
		if s.Name == "v1" && s.Order != "Z-0001" {
			t.Fatalf("expected per-tool binding of v1 (Order Z-0001) to win over wildcard, got %s", s.Order)
		}
	}
}

func TestVerifyBlockShortCircuitsRemainingVerifiers(t *testing.T) {
	reg := NewRegistry([]Spec{
		{Name: "a", ToolName: "tool_x", Order: "A-0001", Kind: KindSchema, SchemaFields: map[string]SchemaField{
			"id": {Required: true, Type: "string"},
		}},
		{Name: "i", ToolName: "tool_x", Order: "I-0001", Kind: KindSchema, SchemaFields: map[string]SchemaField{
			"never_present": {Required: true, Type: "string"},
		}},
	})
	runner := NewRunner(reg, nil, nil)

	result := runner.Verify(context.Background(), "session-1", "tool_x", []byte(`{}`), []byte(`{"other":"x"}`))
	if result.Outcome != models.OutcomeBlock {
		t.Fatalf("expected block, got %s", result.Outcome)
	}
	if result.VerifierName != "a" {
		t.Fatalf("expected short-circuit at verifier 'a' (missing 'id'), got %q", result.VerifierName)
	}
}

func TestVerifyPassesWhenAllVerifiersPass(t *testing.T) {
	reg := NewRegistry([]Spec{
		{Name: "a", ToolName: "tool_x", Order: "A-0001", Kind: KindSchema, SchemaFields: map[string]SchemaField{
			"id": {Required: true, Type: "string"},
		}},
	})
	runner := NewRunner(reg, nil, nil)

	result := runner.Verify(context.Background(), "session-1", "tool_x", []byte(`{}`), []byte(`{"id":"abc"}`))
	if result.Outcome != models.OutcomePass {
		t.Fatalf("expected pass, got %s: %s", result.Outcome, result.Message)
	}
}

func TestVerifyTracksWorstNonBlockOutcome(t *testing.T) {
	reg := NewRegistry([]Spec{
		{Name: "pat-ok", ToolName: "tool_x", Order: "A-0001", Kind: KindPattern, Pattern: `ok`, PatternMode: PatternMatch},
		{Name: "pat-warn", ToolName: "tool_x", Order: "B-0001", Kind: KindPattern, Pattern: `danger`, PatternMode: PatternReject, FailOutcome: models.OutcomeWarn},
	})
	runner := NewRunner(reg, nil, nil)

	result := runner.Verify(context.Background(), "s1", "tool_x", nil, []byte("ok but danger lurks"))
	if result.Outcome != models.OutcomeWarn {
		t.Fatalf("expected warn, got %s", result.Outcome)
	}
	if result.VerifierName != "pat-warn" {
		t.Fatalf("expected the warning verifier to be reported, got %q", result.VerifierName)
	}
}

func TestCustomRunnerRejectsEscapingPath(t *testing.T) {
	cr := NewCustomRunner("/verifiers", func(path string) (CustomFunc, error) {
		return func(ctx context.Context, toolName string, args, result json.RawMessage) (models.VerifierOutcome, string, error) {
			return models.OutcomePass, "", nil
		}, nil
	}, nil)

	eval := cr.Eval(context.Background(), Spec{Name: "x", CustomPath: "../../etc/passwd"}, "tool_x", nil, nil)
	if eval.Outcome != models.OutcomeWarn {
		t.Fatalf("expected warn stub for escaping path, got %s", eval.Outcome)
	}
}

func TestWorkerPoolDispatchReturnsOutcome(t *testing.T) {
	pool := NewWorkerPool(2, 0, 0)
	defer pool.Shutdown()

	fn := func(ctx context.Context, toolName string, args, result json.RawMessage) (models.VerifierOutcome, string, error) {
		return models.OutcomeWarn, "be careful", nil
	}

	eval := pool.Dispatch(context.Background(), fn, "risky_tool", nil, nil, models.RoleAny)
	if eval.Outcome != models.OutcomeWarn || eval.Message != "be careful" {
		t.Fatalf("unexpected eval: %+v", eval)
	}
}

func TestWorkerPoolQueueFullSynthesizesRoleMappedOutcome(t *testing.T) {
	// Built directly (rather than via NewWorkerPool) so the jobs channel has
	// zero buffer: with a single worker occupied, the very next Dispatch
	// call has nowhere to enqueue and must take the queue-full path.
	pool := &WorkerPool{size: 1, timeout: defaultTimeout, queueCap: 0, jobs: make(chan job)}
	pool.spawnWorker()
	defer pool.Shutdown()

	block := make(chan struct{})
	blocker := func(ctx context.Context, toolName string, args, result json.RawMessage) (models.VerifierOutcome, string, error) {
		<-block
		return models.OutcomePass, "", nil
	}
	defer close(block)

	started := make(chan struct{})
	go func() {
		close(started)
		pool.Dispatch(context.Background(), blocker, "tool_x", nil, nil, models.RoleWrite)
	}()
	<-started
	time.Sleep(20 * time.Millisecond) // let the goroutine above occupy the single worker

	eval := pool.Dispatch(context.Background(), blocker, "tool_x", nil, nil, models.RoleWrite)
	if eval.Outcome != models.OutcomeBlock {
		t.Fatalf("expected role-mapped block outcome for write role, got %s: %s", eval.Outcome, eval.Message)
	}
}
