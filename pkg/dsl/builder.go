// Package dsl provides a fluent API for constructing automatons in code,
// as an alternative to the text format.
package dsl

import (
	"fmt"

	"github.com/corvid-labs/strand/pkg/domain"
)

// Builder manages the automaton construction. Transition declaration order
// follows the order of Go/Branch calls, which is the priority order used by
// the execution engine.
type Builder struct {
	auto   *domain.Automaton
	states map[string]*StateBuilder
	errs   []error
}

// New creates a new automaton builder.
func New(name string) *Builder {
	return &Builder{
		auto:   domain.New(name),
		states: make(map[string]*StateBuilder),
	}
}

// Describe sets the automaton description.
func (b *Builder) Describe(text string) *Builder {
	b.auto.Description = text
	return b
}

// Var declares a typed variable with a string-encoded initial value.
func (b *Builder) Var(name string, typ domain.VarType, initial string) *Builder {
	if err := b.auto.AddVariable(name, initial, typ); err != nil {
		b.errs = append(b.errs, err)
	}
	return b
}

// Int declares an Int variable.
func (b *Builder) Int(name string, initial int64) *Builder {
	return b.Var(name, domain.VarInt, fmt.Sprintf("%d", initial))
}

// Double declares a Double variable.
func (b *Builder) Double(name string, initial float64) *Builder {
	return b.Var(name, domain.VarDouble, fmt.Sprintf("%g", initial))
}

// String declares a String variable.
func (b *Builder) String(name, initial string) *Builder {
	return b.Var(name, domain.VarString, initial)
}

// State creates a state in the automaton. If the state already exists, it
// returns the existing builder.
func (b *Builder) State(name string) *StateBuilder {
	if sb, ok := b.states[name]; ok {
		return sb
	}
	b.auto.AddState(name, "")
	sb := &StateBuilder{name: name, builder: b}
	b.states[name] = sb
	return sb
}

// Build validates and returns the automaton.
func (b *Builder) Build() (*domain.Automaton, error) {
	if len(b.errs) > 0 {
		return nil, fmt.Errorf("build %q: %w", b.auto.Name, b.errs[0])
	}
	if err := b.auto.Validate(); err != nil {
		return nil, fmt.Errorf("build %q: %w", b.auto.Name, err)
	}
	return b.auto, nil
}

// StateBuilder provides a fluent API for configuring a state.
type StateBuilder struct {
	name    string
	builder *Builder
}

// Start marks the state as the start state.
func (s *StateBuilder) Start() *StateBuilder {
	s.builder.auto.StartState = s.name
	return s
}

// Final marks the state as a final state.
func (s *StateBuilder) Final() *StateBuilder {
	s.builder.auto.AddFinalState(s.name)
	return s
}

// Action sets the state's action code, replacing any previous code.
func (s *StateBuilder) Action(code string) *StateBuilder {
	s.builder.auto.AddState(s.name, code)
	return s
}

// Go adds an unconditional transition to the target state.
func (s *StateBuilder) Go(target string) *StateBuilder {
	return s.Edge(domain.Transition{To: target})
}

// Branch adds a guarded transition to the target state.
func (s *StateBuilder) Branch(condition, target string) *StateBuilder {
	return s.Edge(domain.Transition{Condition: condition, To: target})
}

// Edge adds a fully specified transition leaving this state. The From field
// is overwritten with the state's name.
func (s *StateBuilder) Edge(t domain.Transition) *StateBuilder {
	t.From = s.name
	s.builder.auto.AddTransition(t)
	return s
}

// Done returns to the parent builder for chaining.
func (s *StateBuilder) Done() *Builder {
	return s.builder
}
