package verify

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/forgehq/sidecar/pkg/models"
)

// Loader resolves a custom verifier's configured path to a CustomFunc.
// cmd/sidecar passes a nil Loader, so there every custom verifier resolves
// to the warn stub; tests and callers that only need the
// canonicalization/dispatch behavior can supply a stub Loader.
type Loader func(path string) (CustomFunc, error)

// CustomRunner evaluates custom verifiers, canonicalizing each one's path
// beneath dir and dispatching to a WorkerPool when the spec sets Sandboxed;
// otherwise the function is called in-process (development execution).
type CustomRunner struct {
	dir  string
	load Loader
	pool *WorkerPool
}

// NewCustomRunner builds a CustomRunner rooted at dir.
func NewCustomRunner(dir string, load Loader, pool *WorkerPool) *CustomRunner {
	return &CustomRunner{dir: dir, load: load, pool: pool}
}

// Eval runs spec's custom function against toolName/args/result. A path
// that escapes dir never loads; it registers a stub verifier that always
// returns warn, per §4.4.
func (c *CustomRunner) Eval(ctx context.Context, spec Spec, toolName string, args, result json.RawMessage) EvalResult {
	fn, ok := c.resolve(spec.CustomPath)
	if !ok {
		return EvalResult{Outcome: models.OutcomeWarn, Message: fmt.Sprintf("custom verifier path %q escapes verifiers directory", spec.CustomPath)}
	}

	if !spec.Sandboxed {
		outcome, message, err := fn(ctx, toolName, args, result)
		if err != nil {
			return EvalResult{Outcome: models.OutcomeWarn, Message: err.Error()}
		}
		return EvalResult{Outcome: outcome, Message: message}
	}

	if c.pool == nil {
		return EvalResult{Outcome: models.RoleMappedOutcome(spec.Role), Message: "no worker pool configured for sandboxed verifier"}
	}
	return c.pool.Dispatch(ctx, fn, toolName, args, result, spec.Role)
}

// resolve canonicalizes rel beneath dir and loads it. Returns ok=false for
// any path that escapes dir (via "..", absolute path, or symlink-free
// lexical cleaning) — the caller turns that into the warn stub.
func (c *CustomRunner) resolve(rel string) (CustomFunc, bool) {
	joined := filepath.Join(c.dir, rel)
	cleanDir := filepath.Clean(c.dir)
	cleanJoined := filepath.Clean(joined)
	if cleanJoined != cleanDir && !strings.HasPrefix(cleanJoined, cleanDir+string(filepath.Separator)) {
		return nil, false
	}
	if c.load == nil {
		return nil, false
	}
	fn, err := c.load(cleanJoined)
	if err != nil || fn == nil {
		return nil, false
	}
	return fn, true
}
