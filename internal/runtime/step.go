package runtime

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/corvid-labs/strand/pkg/domain"
	"github.com/corvid-labs/strand/pkg/protocol"
)

type waitResult int

const (
	waitElapsed waitResult = iota
	waitReevaluate
	waitStopped
)

// Run executes the automaton until it finishes, gets stuck and is stopped,
// or is stopped directly. It blocks; the event stream is closed on return.
// A context cancellation behaves like a stop and is returned as the error.
func (e *Engine) Run(ctx context.Context) error {
	e.mu.Lock()
	if e.status != StatusIdle {
		e.mu.Unlock()
		return ErrAlreadyStarted
	}
	e.status = StatusRunning
	e.mu.Unlock()

	defer close(e.done)
	defer close(e.events)

	current := e.auto.StartState
	e.emit(protocol.FSMStarted(current))
	e.logger.Info("run started", "start_state", current)

	for {
		e.setCurrent(current)
		isFinal := e.auto.IsFinalState(current)
		e.emit(protocol.CurrentState(current, isFinal))
		if e.hooks.OnStateEnter != nil {
			e.hooks.OnStateEnter(current, isFinal)
		}
		e.logger.Debug("entered state", "state", current, "final", isFinal)

		if !e.applyPending(ctx) {
			return e.halt(ctx)
		}

		// 1. State action, with its writes applied to the store.
		if action, _ := e.auto.StateAction(current); strings.TrimSpace(action) != "" {
			e.runAction(ctx, action, fmt.Sprintf("state %s", current))
			e.emit(protocol.StateActionExecuted(current))
		}
		if e.stopped(ctx) {
			return e.halt(ctx)
		}

		// 2. A final state short-circuits transition evaluation, even when
		// it has outgoing edges.
		if isFinal {
			e.emit(protocol.FSMFinished(current))
			e.setStatus(StatusFinished)
			e.logger.Info("run finished", "finish_state", current)
			return nil
		}

		// 3-4. Pick and commit a transition.
		next, ok := e.advance(ctx, current)
		if !ok {
			return e.halt(ctx)
		}
		current = next
	}
}

// advance evaluates the outgoing transitions of current in declaration order
// and commits the first satisfied one, waiting out its delay. It returns the
// target state, or ok=false when the run must halt (stopped, or stuck and
// then stopped).
func (e *Engine) advance(ctx context.Context, current string) (string, bool) {
	for {
		if !e.applyPending(ctx) {
			return "", false
		}

		transitions := e.auto.TransitionsFrom(current)
		var chosen *domain.Transition
		for i := range transitions {
			ok, err := e.evaluator.Condition(ctx, transitions[i].Condition, e.varsAny())
			if err != nil {
				// An evaluation error counts as false; intentional, the
				// engine keeps testing the remaining candidates.
				e.emit(protocol.FSMError(fmt.Sprintf(
					"condition error for transition %s -> %s: %v",
					transitions[i].From, transitions[i].To, err)))
				e.logger.Warn("condition error",
					"from", transitions[i].From, "to", transitions[i].To, "err", err)
				continue
			}
			if ok {
				chosen = &transitions[i]
				break // first match wins, later candidates are not evaluated
			}
		}
		if e.stopped(ctx) {
			return "", false
		}

		if chosen == nil {
			e.emit(protocol.FSMStuck(current))
			e.setStatus(StatusStuck)
			e.logger.Warn("stuck", "state", current)
			e.stuckWait(ctx)
			return "", false
		}

		if chosen.Delay > 0 {
			switch e.delayWait(ctx, chosen.Delay) {
			case waitStopped:
				return "", false
			case waitReevaluate:
				// A variable changed mid-delay; the chosen transition may no
				// longer be the first match. Restart the evaluation round.
				e.logger.Debug("re-evaluating after mid-delay write", "state", current)
				continue
			case waitElapsed:
			}
		}

		if chosen.Action != "" {
			e.runAction(ctx, chosen.Action,
				fmt.Sprintf("transition %s -> %s", chosen.From, chosen.To))
		}
		e.emit(protocol.TransitionTaken(chosen.From, chosen.To, chosen.Delay))
		if chosen.Action != "" {
			e.emit(protocol.TransitionActionExecuted(chosen.From, chosen.To))
		}
		if e.hooks.OnTransition != nil {
			e.hooks.OnTransition(chosen.From, chosen.To)
		}
		e.logger.Info("transition taken",
			"from", chosen.From, "to", chosen.To, "delay_ms", chosen.Delay)
		return chosen.To, true
	}
}

// delayWait suspends for ms milliseconds while staying responsive to
// commands. A successfully applied write interrupts the wait so transitions
// can be re-evaluated against the new bindings.
func (e *Engine) delayWait(ctx context.Context, ms int) waitResult {
	timer := time.NewTimer(time.Duration(ms) * time.Millisecond)
	defer timer.Stop()
	for {
		select {
		case <-timer.C:
			return waitElapsed
		case cmd := <-e.commands:
			if e.applyWrite(cmd.name, cmd.val) {
				return waitReevaluate
			}
		case <-e.stopc:
			return waitStopped
		case <-ctx.Done():
			return waitStopped
		}
	}
}

// stuckWait keeps the engine parked after FSM_STUCK: variable writes are
// still applied and acknowledged, but no further stepping happens. Only a
// stop releases it.
func (e *Engine) stuckWait(ctx context.Context) {
	for {
		select {
		case cmd := <-e.commands:
			e.applyWrite(cmd.name, cmd.val)
		case <-e.stopc:
			return
		case <-ctx.Done():
			return
		}
	}
}

// applyPending drains queued commands. Returns false if the engine must halt.
func (e *Engine) applyPending(ctx context.Context) bool {
	for {
		select {
		case cmd := <-e.commands:
			e.applyWrite(cmd.name, cmd.val)
		case <-e.stopc:
			return false
		case <-ctx.Done():
			return false
		default:
			return true
		}
	}
}

// applyWrite coerces a value onto the variable's declared type and stores
// it, acknowledging with VARIABLE_UPDATE. On failure the store is left
// unchanged and no acknowledgment is sent.
func (e *Engine) applyWrite(name string, raw any) bool {
	typ, ok := e.varType[name]
	if !ok {
		e.emit(protocol.FSMError(fmt.Sprintf("set variable %q: %v", name, domain.ErrUndefinedVariable)))
		e.logger.Warn("write to undeclared variable", "name", name)
		return false
	}
	v, err := domain.Coerce(typ, raw)
	if err != nil {
		e.emit(protocol.FSMError(fmt.Sprintf("set variable %q: %v", name, err)))
		e.logger.Warn("variable coercion failed", "name", name, "err", err)
		return false
	}
	e.mu.Lock()
	e.vars[name] = v
	e.mu.Unlock()
	e.emit(protocol.VariableUpdate(name, v.Interface()))
	return true
}

// runAction executes action code and applies its writes to declared
// variables, emitting VARIABLE_UPDATE per changed binding. Errors are
// reported via FSM_ERROR and the run continues.
func (e *Engine) runAction(ctx context.Context, code, where string) {
	writes, err := e.evaluator.Action(ctx, code, e.varsAny())
	if err != nil {
		e.emit(protocol.FSMError(fmt.Sprintf("action error in %s: %v", where, err)))
		e.logger.Warn("action error", "where", where, "err", err)
		return
	}
	// Declaration order keeps VARIABLE_UPDATE emission deterministic.
	for _, decl := range e.auto.Variables {
		raw, ok := writes[decl.Name]
		if !ok {
			continue
		}
		v, err := domain.Coerce(decl.Type, raw)
		if err != nil {
			e.emit(protocol.FSMError(fmt.Sprintf("%s: variable %q: %v", where, decl.Name, err)))
			continue
		}
		e.mu.Lock()
		changed := e.vars[decl.Name] != v
		if changed {
			e.vars[decl.Name] = v
		}
		e.mu.Unlock()
		if changed {
			e.emit(protocol.VariableUpdate(decl.Name, v.Interface()))
		}
	}
}

func (e *Engine) stopped(ctx context.Context) bool {
	select {
	case <-e.stopc:
		return true
	case <-ctx.Done():
		return true
	default:
		return false
	}
}

func (e *Engine) halt(ctx context.Context) error {
	e.Stop()
	e.setStatus(StatusStopped)
	e.logger.Info("run stopped")
	return ctx.Err()
}
