// Package runtime interprets an automaton: it runs state actions, picks
// transitions first-match-wins in declaration order, waits out delays, and
// reports every observable change as a protocol event on its outbound stream.
package runtime

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/corvid-labs/strand/pkg/domain"
	"github.com/corvid-labs/strand/pkg/protocol"
)

// Status is the engine's lifecycle phase.
type Status string

const (
	StatusIdle     Status = "idle"
	StatusRunning  Status = "running"
	StatusFinished Status = "finished"
	StatusStuck    Status = "stuck"
	StatusStopped  Status = "stopped"
)

// ErrNotRunning is returned when a command is submitted after the run ended.
var ErrNotRunning = errors.New("engine is not running")

// ErrAlreadyStarted is returned when Run is called twice.
var ErrAlreadyStarted = errors.New("engine already started")

// Evaluator runs guard conditions and action code against variable bindings.
type Evaluator interface {
	Condition(ctx context.Context, expr string, vars map[string]any) (bool, error)
	Action(ctx context.Context, code string, vars map[string]any) (map[string]any, error)
}

// Hooks are optional observability callbacks, invoked from the engine
// goroutine. They must not block.
type Hooks struct {
	OnEvent      func(msg protocol.Message)
	OnStateEnter func(name string, isFinal bool)
	OnTransition func(from, to string)
}

type command struct {
	name string
	val  any
}

// Engine executes a validated automaton. It is the single writer of the
// variable store and the current-state pointer; external commands arrive on
// a channel and are applied at safe points (before an evaluation round, or
// during a delay wait).
type Engine struct {
	auto      *domain.Automaton
	evaluator Evaluator
	logger    *slog.Logger
	hooks     Hooks

	events   chan protocol.Message
	commands chan command
	stopc    chan struct{}
	stopOnce sync.Once
	done     chan struct{}

	mu      sync.Mutex
	status  Status
	current string
	vars    map[string]domain.Value
	varType map[string]domain.VarType
}

// EngineOption configures an Engine.
type EngineOption func(*Engine)

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) EngineOption {
	return func(e *Engine) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// WithHooks registers lifecycle hooks.
func WithHooks(hooks Hooks) EngineOption {
	return func(e *Engine) { e.hooks = hooks }
}

// NewEngine validates the automaton, builds the initial variable bindings,
// and returns an idle engine.
func NewEngine(auto *domain.Automaton, evaluator Evaluator, opts ...EngineOption) (*Engine, error) {
	if auto == nil {
		return nil, fmt.Errorf("nil automaton")
	}
	if evaluator == nil {
		return nil, fmt.Errorf("nil evaluator")
	}
	if err := auto.Validate(); err != nil {
		return nil, err
	}
	vars, err := auto.InitialBindings()
	if err != nil {
		return nil, err
	}
	types := make(map[string]domain.VarType, len(auto.Variables))
	for _, v := range auto.Variables {
		types[v.Name] = v.Type
	}

	e := &Engine{
		auto:      auto,
		evaluator: evaluator,
		logger:    slog.New(slog.NewTextHandler(io.Discard, nil)),
		events:    make(chan protocol.Message, 64),
		commands:  make(chan command, 16),
		stopc:     make(chan struct{}),
		done:      make(chan struct{}),
		status:    StatusIdle,
		current:   auto.StartState,
		vars:      vars,
		varType:   types,
	}
	for _, opt := range opts {
		opt(e)
	}
	e.logger = e.logger.With("automaton", auto.Name)
	return e, nil
}

// Events returns the outbound event stream. The channel is closed when the
// run ends; after a stop no further events are delivered.
func (e *Engine) Events() <-chan protocol.Message { return e.events }

// SetVariable queues a variable write. It is applied by the engine at the
// next safe point and acknowledged with a VARIABLE_UPDATE event.
func (e *Engine) SetVariable(name string, value any) error {
	select {
	case e.commands <- command{name: name, val: value}:
		return nil
	case <-e.stopc:
		return ErrNotRunning
	case <-e.done:
		return ErrNotRunning
	}
}

// Stop requests a halt. It unblocks any pending delay wait within bounded
// time; the engine emits nothing further once it observes the stop.
func (e *Engine) Stop() {
	e.stopOnce.Do(func() { close(e.stopc) })
}

// Status returns the current lifecycle phase.
func (e *Engine) Status() Status {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.status
}

// Snapshot returns the current state name and a copy of the variable
// bindings, for introspection surfaces.
func (e *Engine) Snapshot() (string, map[string]domain.Value) {
	e.mu.Lock()
	defer e.mu.Unlock()
	vars := make(map[string]domain.Value, len(e.vars))
	for k, v := range e.vars {
		vars[k] = v
	}
	return e.current, vars
}

// Automaton returns the model under execution.
func (e *Engine) Automaton() *domain.Automaton { return e.auto }

func (e *Engine) setStatus(s Status) {
	e.mu.Lock()
	e.status = s
	e.mu.Unlock()
}

func (e *Engine) setCurrent(name string) {
	e.mu.Lock()
	e.current = name
	e.mu.Unlock()
}

// varsAny renders the store as JSON-native bindings for the evaluator.
func (e *Engine) varsAny() map[string]any {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make(map[string]any, len(e.vars))
	for k, v := range e.vars {
		out[k] = v.Interface()
	}
	return out
}

// emit delivers an event unless the engine has been stopped.
func (e *Engine) emit(msg protocol.Message) {
	select {
	case <-e.stopc:
		return
	default:
	}
	if e.hooks.OnEvent != nil {
		e.hooks.OnEvent(msg)
	}
	select {
	case e.events <- msg:
	case <-e.stopc:
	}
}
