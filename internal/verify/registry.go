package verify

import "sort"

// Registry holds verifier bindings, keyed by the tool they target plus the
// "*" wildcard binding applied to every tool.
type Registry struct {
	byTool map[string][]Spec
}

// NewRegistry builds a Registry from a flat list of bindings.
func NewRegistry(specs []Spec) *Registry {
	r := &Registry{byTool: make(map[string][]Spec)}
	for _, s := range specs {
		r.byTool[s.ToolName] = append(r.byTool[s.ToolName], s)
	}
	return r
}

// For returns the verifiers bound to toolName merged with the "*" wildcard
// bindings, de-duplicated by name (per-tool binding wins on a name
// collision) and sorted ascending by Order.
func (r *Registry) For(toolName string) []Spec {
	if r == nil {
		return nil
	}
	seen := make(map[string]struct{})
	merged := make([]Spec, 0, len(r.byTool[toolName])+len(r.byTool["*"]))

	for _, s := range r.byTool[toolName] {
		seen[s.Name] = struct{}{}
		merged = append(merged, s)
	}
	for _, s := range r.byTool["*"] {
		if _, ok := seen[s.Name]; ok {
			continue
		}
		seen[s.Name] = struct{}{}
		merged = append(merged, s)
	}

	sort.SliceStable(merged, func(i, j int) bool { return merged[i].Order < merged[j].Order })
	return merged
}
