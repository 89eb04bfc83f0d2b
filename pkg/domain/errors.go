package domain

import "errors"

// ErrUnknownState is returned when a name does not reference a defined state.
var ErrUnknownState = errors.New("unknown state")

// ErrNoStartState is returned when an automaton has no start state.
var ErrNoStartState = errors.New("no start state defined")

// ErrDuplicateVariable is returned when a variable name is declared twice.
var ErrDuplicateVariable = errors.New("duplicate variable")

// ErrUndefinedVariable is returned when an evaluation references a variable
// that was never declared.
var ErrUndefinedVariable = errors.New("undefined variable")

// ErrUnknownVarType is returned for a type keyword outside Int/Double/String.
var ErrUnknownVarType = errors.New("unknown variable type")

// ErrCoercion is returned when a value cannot be represented in a variable's
// declared type.
var ErrCoercion = errors.New("value coercion failed")
