// Package verify implements the post-tool verifier pipeline: ordered
// schema/pattern/custom checks over a tool's output, forming the severity
// lattice pass < warn < block.
package verify

import "github.com/forgehq/sidecar/pkg/models"

// Kind selects a verifier's evaluation strategy.
type Kind string

const (
	KindSchema  Kind = "schema"
	KindPattern Kind = "pattern"
	KindCustom  Kind = "custom"
)

// SchemaField is one property checked by a schema verifier.
type SchemaField struct {
	Required bool
	Type     string // string|number|boolean|object|array
}

// PatternMode selects whether a pattern verifier requires or forbids a match.
type PatternMode string

const (
	PatternMatch  PatternMode = "match"
	PatternReject PatternMode = "reject"
)

// Spec is one verifier binding: a name, evaluation order, target tool (or
// "*" for the wildcard binding applied to every tool), role, and kind-
// specific configuration.
type Spec struct {
	Name     string
	ToolName string // "*" applies to all tools
	Order    string // sortable, e.g. "A-0001"
	Role     models.VerifierRole
	Kind     Kind

	// Schema kind.
	SchemaFields map[string]SchemaField

	// Pattern kind.
	Pattern     string
	PatternMode PatternMode
	FailOutcome models.VerifierOutcome // defaults to warn

	// Custom kind.
	CustomPath string // path beneath the verifiers directory
	Sandboxed  bool   // true dispatches to the worker pool; the zero value (false) calls the function in-process
}

// EvalResult is the outcome of evaluating one Spec against one tool call.
type EvalResult struct {
	Name    string
	Outcome models.VerifierOutcome
	Message string
}
