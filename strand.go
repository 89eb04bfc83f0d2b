package strand

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"

	httpadapter "github.com/corvid-labs/strand/internal/adapters/http"
	"github.com/corvid-labs/strand/internal/adapters/tcp"
	"github.com/corvid-labs/strand/internal/compiler"
	"github.com/corvid-labs/strand/internal/eval"
	"github.com/corvid-labs/strand/internal/logging"
	"github.com/corvid-labs/strand/internal/observability"
	"github.com/corvid-labs/strand/internal/runtime"
	"github.com/corvid-labs/strand/pkg/adapters/memory"
	"github.com/corvid-labs/strand/pkg/domain"
	"github.com/corvid-labs/strand/pkg/ports"
	"github.com/corvid-labs/strand/pkg/protocol"
)

// Interpreter is the high-level entry point for the library. It wraps the
// execution engine and serves it over the wire protocol, recording every run
// into a journal.
type Interpreter struct {
	auto      *domain.Automaton
	engine    *runtime.Engine
	evaluator runtime.Evaluator
	journal   ports.RunJournal
	metrics   *observability.Metrics
	hooks     runtime.Hooks
	logger    *slog.Logger

	listenAddr string
	httpAddr   string
	runID      string

	mu     sync.Mutex
	tcpSrv *tcp.Server
}

// Option defines a functional option for configuring the Interpreter.
type Option func(*Interpreter)

// WithLogger sets a custom structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(i *Interpreter) {
		if logger != nil {
			i.logger = logger
		}
	}
}

// WithEvaluator injects a custom condition and action evaluator.
func WithEvaluator(e runtime.Evaluator) Option {
	return func(i *Interpreter) { i.evaluator = e }
}

// WithJournal injects a run journal, replacing the in-memory default.
func WithJournal(j ports.RunJournal) Option {
	return func(i *Interpreter) { i.journal = j }
}

// WithHooks registers lifecycle hooks, invoked alongside the built-in
// metrics and journal hooks.
func WithHooks(h runtime.Hooks) Option {
	return func(i *Interpreter) { i.hooks = h }
}

// WithListenAddr sets the wire protocol bind address (default ":65432").
func WithListenAddr(addr string) Option {
	return func(i *Interpreter) { i.listenAddr = addr }
}

// WithHTTPAddr enables the introspection API on the given address.
func WithHTTPAddr(addr string) Option {
	return func(i *Interpreter) { i.httpAddr = addr }
}

// WithRunID overrides the generated run identifier.
func WithRunID(id string) Option {
	return func(i *Interpreter) { i.runID = id }
}

// New initializes an Interpreter for the automaton.
func New(auto *domain.Automaton, opts ...Option) (*Interpreter, error) {
	it := &Interpreter{
		auto:       auto,
		listenAddr: ":65432",
		runID:      uuid.NewString(),
	}
	for _, opt := range opts {
		opt(it)
	}
	if it.logger == nil {
		it.logger = logging.NewNop()
	}
	if it.evaluator == nil {
		it.evaluator = eval.New()
	}
	if it.journal == nil {
		it.journal = memory.NewJournal()
	}
	it.metrics = observability.NewMetrics()
	it.logger = it.logger.With("automaton", auto.Name, "run_id", it.runID)

	engine, err := runtime.NewEngine(auto, it.evaluator,
		runtime.WithLogger(it.logger),
		runtime.WithHooks(it.composeHooks()),
	)
	if err != nil {
		return nil, fmt.Errorf("initialize engine: %w", err)
	}
	it.engine = engine
	return it, nil
}

// Load parses an automaton definition file and initializes an Interpreter
// for it.
func Load(path string, opts ...Option) (*Interpreter, error) {
	auto, err := compiler.ParseFile(path)
	if err != nil {
		return nil, err
	}
	return New(auto, opts...)
}

// composeHooks chains the metrics hooks, the journal recorder, and the
// user-supplied hooks.
func (i *Interpreter) composeHooks() runtime.Hooks {
	metrics := i.metrics.Hooks()
	user := i.hooks
	return runtime.Hooks{
		OnEvent: func(msg protocol.Message) {
			metrics.OnEvent(msg)
			if err := i.journal.Append(context.Background(), i.runID, msg); err != nil {
				i.logger.Warn("journal append failed", "err", err)
			}
			if user.OnEvent != nil {
				user.OnEvent(msg)
			}
		},
		OnStateEnter: func(name string, isFinal bool) {
			metrics.OnStateEnter(name, isFinal)
			if user.OnStateEnter != nil {
				user.OnStateEnter(name, isFinal)
			}
		},
		OnTransition: func(from, to string) {
			metrics.OnTransition(from, to)
			if user.OnTransition != nil {
				user.OnTransition(from, to)
			}
		},
	}
}

// Engine exposes the underlying runtime engine.
func (i *Interpreter) Engine() *runtime.Engine { return i.engine }

// Addr returns the bound wire protocol address once Serve has started
// listening, or nil.
func (i *Interpreter) Addr() net.Addr {
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.tcpSrv == nil {
		return nil
	}
	return i.tcpSrv.Addr()
}

// Automaton returns the loaded definition.
func (i *Interpreter) Automaton() *domain.Automaton { return i.auto }

// Journal returns the run journal.
func (i *Interpreter) Journal() ports.RunJournal { return i.journal }

// RunID returns this run's identifier.
func (i *Interpreter) RunID() string { return i.runID }

// Run executes the automaton directly, without the wire protocol. The event
// stream must be drained by the caller via Engine().Events().
func (i *Interpreter) Run(ctx context.Context) error {
	return i.engine.Run(ctx)
}

// Serve binds the wire protocol listener and blocks until the run completes
// or the context is cancelled. The FSM starts when the first controller
// connects. The introspection API, when configured, is served for the same
// duration.
func (i *Interpreter) Serve(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	srv := tcp.NewServer(i.engine,
		tcp.WithLogger(i.logger),
		tcp.WithOnConnect(func() {
			go func() {
				if err := i.engine.Run(ctx); err != nil && ctx.Err() == nil {
					i.logger.Error("run failed", "err", err)
				}
			}()
		}),
	)
	i.mu.Lock()
	i.tcpSrv = srv
	i.mu.Unlock()

	var httpSrv *http.Server
	if i.httpAddr != "" {
		httpSrv = &http.Server{
			Addr:    i.httpAddr,
			Handler: httpadapter.NewHandler(i.engine, i.runID, i.metrics.Handler()),
		}
		go func() {
			i.logger.Info("introspection api listening", "addr", i.httpAddr)
			if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				i.logger.Error("introspection api failed", "err", err)
			}
		}()
	}

	err := srv.Serve(ctx, i.listenAddr)

	if httpSrv != nil {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		if serr := httpSrv.Shutdown(shutdownCtx); serr != nil {
			i.logger.Warn("introspection api shutdown failed", "err", serr)
		}
	}
	return err
}
