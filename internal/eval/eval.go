// Package eval evaluates guard conditions and action code against the
// automaton's variable namespace using Starlark.
//
// Conditions are single expressions ("counter < 3"); actions are small
// scripts whose top-level assignments become variable writes. Both see the
// current variable bindings as predeclared names.
package eval

import (
	"context"
	"fmt"
	"math"
	"strings"

	"go.starlark.net/starlark"
	"go.starlark.net/syntax"

	"github.com/corvid-labs/strand/pkg/domain"
)

// fileOptions is permissive so action code can use loops and reassignment.
var fileOptions = &syntax.FileOptions{
	While:           true,
	TopLevelControl: true,
	GlobalReassign:  true,
	Recursion:       true,
}

// Evaluator runs conditions and actions. It is stateless; each call uses a
// fresh Starlark thread, so it is safe for concurrent use.
type Evaluator struct{}

// New creates an Evaluator.
func New() *Evaluator { return &Evaluator{} }

// Condition evaluates a boolean expression over the given bindings.
// Referencing an undefined name is reported as domain.ErrUndefinedVariable;
// the engine treats any error here as condition=false.
func (e *Evaluator) Condition(ctx context.Context, expr string, vars map[string]any) (bool, error) {
	if strings.TrimSpace(expr) == "" {
		return true, nil
	}
	env, err := toEnv(vars)
	if err != nil {
		return false, err
	}

	thread, release := newThread(ctx, "condition")
	defer release()
	v, err := starlark.EvalOptions(fileOptions, thread, "<condition>", expr, env)
	if err != nil {
		return false, wrapEvalError(expr, err)
	}
	return bool(v.Truth()), nil
}

// Action executes action code over the given bindings and returns the
// resulting top-level assignments as JSON-native values. The caller decides
// which of them are applied to the variable store.
func (e *Evaluator) Action(ctx context.Context, code string, vars map[string]any) (map[string]any, error) {
	if strings.TrimSpace(code) == "" {
		return nil, nil
	}
	env, err := toEnv(vars)
	if err != nil {
		return nil, err
	}

	thread, release := newThread(ctx, "action")
	defer release()
	globals, err := starlark.ExecFileOptions(fileOptions, thread, "<action>", code, env)
	if err != nil {
		return nil, wrapEvalError(code, err)
	}

	writes := make(map[string]any, len(globals))
	for name, v := range globals {
		gv, err := fromStarlark(v)
		if err != nil {
			continue // functions, lists etc. are not variable writes
		}
		writes[name] = gv
	}
	return writes, nil
}

// newThread builds a Starlark thread that honors context cancellation.
// The returned release func must be called when evaluation finishes so the
// cancellation watcher does not outlive it.
func newThread(ctx context.Context, name string) (*starlark.Thread, func()) {
	thread := &starlark.Thread{Name: name}
	done := ctx.Done()
	if done == nil {
		return thread, func() {}
	}
	stop := make(chan struct{})
	go func() {
		select {
		case <-done:
			thread.Cancel("context cancelled")
		case <-stop:
		}
	}()
	return thread, func() { close(stop) }
}

func wrapEvalError(src string, err error) error {
	if strings.Contains(err.Error(), "undefined:") {
		return fmt.Errorf("%q: %v: %w", src, err, domain.ErrUndefinedVariable)
	}
	return fmt.Errorf("%q: %w", src, err)
}

func toEnv(vars map[string]any) (starlark.StringDict, error) {
	env := make(starlark.StringDict, len(vars))
	for name, v := range vars {
		sv, err := toStarlark(v)
		if err != nil {
			return nil, fmt.Errorf("variable %q: %w", name, err)
		}
		env[name] = sv
	}
	return env, nil
}

func toStarlark(v any) (starlark.Value, error) {
	switch v := v.(type) {
	case nil:
		return starlark.None, nil
	case bool:
		return starlark.Bool(v), nil
	case string:
		return starlark.String(v), nil
	case int:
		return starlark.MakeInt(v), nil
	case int64:
		return starlark.MakeInt64(v), nil
	case float64:
		return starlark.Float(v), nil
	}
	return nil, fmt.Errorf("unsupported value type %T", v)
}

func fromStarlark(v starlark.Value) (any, error) {
	switch v := v.(type) {
	case starlark.NoneType:
		return nil, nil
	case starlark.Bool:
		return bool(v), nil
	case starlark.String:
		return string(v), nil
	case starlark.Int:
		if i, ok := v.Int64(); ok {
			return i, nil
		}
		return nil, fmt.Errorf("integer out of int64 range")
	case starlark.Float:
		f := float64(v)
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return nil, fmt.Errorf("non-finite float")
		}
		return f, nil
	}
	return nil, fmt.Errorf("unsupported result type %s", v.Type())
}
