package migration

import (
	"sort"
	"strings"
)

// Registry is an immutable, ordered list of migration steps.
type Registry struct {
	steps []Step
}

// NewRegistry validates steps and returns a registry holding copies of them.
//
// Steps must be given in strictly increasing version order, start at version
// 1 or above and carry at least one non-blank statement.
func NewRegistry(steps ...Step) (*Registry, error) {
	out := make([]Step, 0, len(steps))
	prev := 0
	for i, step := range steps {
		if step.Version < 1 {
			return nil, &InvalidRegistryError{Index: i, Version: step.Version, Reason: "version must be at least 1"}
		}
		if i > 0 && step.Version == prev {
			return nil, &InvalidRegistryError{Index: i, Version: step.Version, Reason: "duplicate version"}
		}
		if i > 0 && step.Version < prev {
			return nil, &InvalidRegistryError{Index: i, Version: step.Version, Reason: "versions are not strictly increasing"}
		}
		if !hasStatements(step.Statements) {
			return nil, &InvalidRegistryError{Index: i, Version: step.Version, Reason: "no statements"}
		}
		out = append(out, step.clone())
		prev = step.Version
	}
	return &Registry{steps: out}, nil
}

// MustRegistry is like NewRegistry but panics on invalid input. It is meant
// for registries declared as package-level literals.
func MustRegistry(steps ...Step) *Registry {
	r, err := NewRegistry(steps...)
	if err != nil {
		panic(err)
	}
	return r
}

// Steps returns a copy of the registry's steps in version order.
func (r *Registry) Steps() []Step {
	if r == nil {
		return nil
	}
	out := make([]Step, len(r.steps))
	for i, s := range r.steps {
		out[i] = s.clone()
	}
	return out
}

// Len returns the number of steps.
func (r *Registry) Len() int {
	if r == nil {
		return 0
	}
	return len(r.steps)
}

// Latest returns the highest version in the registry, or 0 when empty.
func (r *Registry) Latest() int {
	if r.Len() == 0 {
		return 0
	}
	return r.steps[len(r.steps)-1].Version
}

// pending returns the steps with from < version <= to in ascending order.
// The sort is explicit so the runner never depends on how the slice was built.
func pending(steps []Step, from, to int) []Step {
	var out []Step
	for _, s := range steps {
		if s.Version > from && s.Version <= to {
			out = append(out, s)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Version < out[j].Version
	})
	return out
}

func hasStatements(statements []string) bool {
	for _, stmt := range statements {
		if strings.TrimSpace(stmt) != "" {
			return true
		}
	}
	return false
}
