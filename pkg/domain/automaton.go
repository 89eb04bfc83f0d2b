package domain

import "fmt"

// Transition defines a guarded, delayed edge between two states.
type Transition struct {
	// From and To reference states by name.
	From string `json:"from"`
	To   string `json:"to"`

	// Condition is a boolean expression over the variable namespace.
	// An empty condition is an "always" transition.
	Condition string `json:"condition,omitempty"`

	// Action is optional code executed when the transition is taken.
	// It is not part of the persisted text format.
	Action string `json:"action,omitempty"`

	// Delay is how long the engine waits before completing the
	// transition, in milliseconds.
	Delay int `json:"delay"`
}

// VariableInfo is the declaration of a variable: its name, declared type,
// and string-encoded initial value (as carried by the text format).
type VariableInfo struct {
	Name  string  `json:"name"`
	Value string  `json:"value"`
	Type  VarType `json:"type"`
}

// Automaton is the design-time description of a finite state machine.
// States map their name to action code; transition order is significant
// (first-match-wins during execution).
type Automaton struct {
	Name        string            `json:"name"`
	Description string            `json:"description,omitempty"`
	Variables   []VariableInfo    `json:"variables"`
	States      map[string]string `json:"states"`
	StartState  string            `json:"start_state"`
	FinalStates []string          `json:"final_states"`
	Transitions []Transition      `json:"transitions"`
}

// New creates an empty automaton with the given name.
func New(name string) *Automaton {
	return &Automaton{
		Name:   name,
		States: make(map[string]string),
	}
}

// AddState registers a state. Adding an existing name overwrites its action.
func (a *Automaton) AddState(name, action string) {
	if a.States == nil {
		a.States = make(map[string]string)
	}
	a.States[name] = action
}

// AppendToAction appends a source line to a state's action code.
// Used by the text-format parser, which reads actions line by line.
func (a *Automaton) AppendToAction(state, line string) {
	a.States[state] = a.States[state] + line + "\n"
}

// AddVariable declares a variable. Names must be unique.
func (a *Automaton) AddVariable(name, value string, typ VarType) error {
	for _, v := range a.Variables {
		if v.Name == name {
			return fmt.Errorf("variable %q: %w", name, ErrDuplicateVariable)
		}
	}
	a.Variables = append(a.Variables, VariableInfo{Name: name, Value: value, Type: typ})
	return nil
}

// AddFinalState marks a state name as final. Duplicates are ignored.
func (a *Automaton) AddFinalState(name string) {
	for _, f := range a.FinalStates {
		if f == name {
			return
		}
	}
	a.FinalStates = append(a.FinalStates, name)
}

// AddTransition appends a transition, preserving declaration order.
func (a *Automaton) AddTransition(t Transition) {
	a.Transitions = append(a.Transitions, t)
}

// IsFinalState reports whether the named state is in the final set.
func (a *Automaton) IsFinalState(name string) bool {
	for _, f := range a.FinalStates {
		if f == name {
			return true
		}
	}
	return false
}

// StateAction returns the action code of the named state.
func (a *Automaton) StateAction(name string) (string, bool) {
	action, ok := a.States[name]
	return action, ok
}

// TransitionsFrom returns the transitions leaving the named state in
// declaration order. That order is the tie-break priority used by the
// execution engine.
func (a *Automaton) TransitionsFrom(state string) []Transition {
	var out []Transition
	for _, t := range a.Transitions {
		if t.From == state {
			out = append(out, t)
		}
	}
	return out
}

// Validate checks referential integrity: the start state exists, every
// final state exists, and every transition endpoint exists.
func (a *Automaton) Validate() error {
	if a.StartState == "" {
		return fmt.Errorf("automaton %q: %w", a.Name, ErrNoStartState)
	}
	if _, ok := a.States[a.StartState]; !ok {
		return fmt.Errorf("start state %q: %w", a.StartState, ErrUnknownState)
	}
	for _, f := range a.FinalStates {
		if _, ok := a.States[f]; !ok {
			return fmt.Errorf("final state %q: %w", f, ErrUnknownState)
		}
	}
	for i, t := range a.Transitions {
		if _, ok := a.States[t.From]; !ok {
			return fmt.Errorf("transition %d: from state %q: %w", i, t.From, ErrUnknownState)
		}
		if _, ok := a.States[t.To]; !ok {
			return fmt.Errorf("transition %d: to state %q: %w", i, t.To, ErrUnknownState)
		}
	}
	return nil
}

// InitialBindings builds the typed runtime variable store from the declared
// variables, parsing each string-encoded initial value against its type.
func (a *Automaton) InitialBindings() (map[string]Value, error) {
	vars := make(map[string]Value, len(a.Variables))
	for _, v := range a.Variables {
		val, err := ParseValue(v.Type, v.Value)
		if err != nil {
			return nil, fmt.Errorf("variable %q: %w", v.Name, err)
		}
		vars[v.Name] = val
	}
	return vars, nil
}
