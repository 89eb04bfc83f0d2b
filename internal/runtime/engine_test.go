package runtime_test

import (
	"context"
	"testing"
	"time"

	"github.com/corvid-labs/strand/internal/eval"
	"github.com/corvid-labs/strand/internal/runtime"
	"github.com/corvid-labs/strand/pkg/domain"
	"github.com/corvid-labs/strand/pkg/protocol"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newEngine(t *testing.T, auto *domain.Automaton, opts ...runtime.EngineOption) *runtime.Engine {
	t.Helper()
	e, err := runtime.NewEngine(auto, eval.New(), opts...)
	require.NoError(t, err)
	return e
}

// drain collects every event until the stream closes or the timeout fires.
func drain(t *testing.T, e *runtime.Engine, timeout time.Duration) []protocol.Message {
	t.Helper()
	var events []protocol.Message
	deadline := time.After(timeout)
	for {
		select {
		case msg, ok := <-e.Events():
			if !ok {
				return events
			}
			events = append(events, msg)
		case <-deadline:
			t.Fatalf("timed out draining events; got %d so far", len(events))
		}
	}
}

func typesOf(events []protocol.Message) []protocol.Type {
	out := make([]protocol.Type, len(events))
	for i, m := range events {
		out[i] = m.Type
	}
	return out
}

func countType(events []protocol.Message, typ protocol.Type) int {
	n := 0
	for _, m := range events {
		if m.Type == typ {
			n++
		}
	}
	return n
}

func TestEngine_FirstMatchWins(t *testing.T) {
	a := domain.New("priority")
	a.AddState("S1", "")
	a.AddState("S2", "")
	a.AddState("S3", "")
	a.StartState = "S1"
	a.AddFinalState("S3")
	a.AddTransition(domain.Transition{From: "S1", To: "S2", Condition: "False", Delay: 0})
	a.AddTransition(domain.Transition{From: "S1", To: "S3", Condition: "True", Delay: 100})

	e := newEngine(t, a)
	go e.Run(context.Background())
	events := drain(t, e, 5*time.Second)

	// The second-declared transition is the first whose guard holds.
	var taken []protocol.TransitionTakenPayload
	for _, m := range events {
		if m.Type == protocol.TypeTransitionTaken {
			p, err := protocol.DecodePayload[protocol.TransitionTakenPayload](m)
			require.NoError(t, err)
			taken = append(taken, p)
		}
	}
	require.Len(t, taken, 1)
	assert.Equal(t, "S3", taken[0].ToState)
	assert.Equal(t, 100, taken[0].Delay)

	// S2 is never entered.
	for _, m := range events {
		if m.Type == protocol.TypeCurrentState {
			assert.NotEqual(t, "S2", m.Payload["name"])
		}
	}
	assert.Equal(t, 1, countType(events, protocol.TypeFSMFinished))
	assert.Equal(t, runtime.StatusFinished, e.Status())
}

func TestEngine_StuckExactlyOnce(t *testing.T) {
	a := domain.New("deadend")
	a.AddState("Trap", "")
	a.StartState = "Trap"

	e := newEngine(t, a)
	time.AfterFunc(200*time.Millisecond, e.Stop)
	go e.Run(context.Background())
	events := drain(t, e, 5*time.Second)

	assert.Equal(t, 1, countType(events, protocol.TypeFSMStuck))
	assert.Equal(t, 0, countType(events, protocol.TypeTransitionTaken))
	last := events[len(events)-1]
	if last.Type == protocol.TypeFSMStuck {
		assert.Equal(t, "Trap", last.Payload["state_name"])
	}
	assert.Equal(t, runtime.StatusStopped, e.Status())
}

func TestEngine_FinalShortCircuitsTransitions(t *testing.T) {
	a := domain.New("final-with-edges")
	a.AddState("A", "")
	a.AddState("End", "")
	a.AddState("Beyond", "")
	a.StartState = "A"
	a.AddFinalState("End")
	a.AddTransition(domain.Transition{From: "A", To: "End"})
	// Outgoing edge from the final state must never fire.
	a.AddTransition(domain.Transition{From: "End", To: "Beyond", Condition: "True"})

	e := newEngine(t, a)
	go e.Run(context.Background())
	events := drain(t, e, 5*time.Second)

	require.Equal(t, 1, countType(events, protocol.TypeFSMFinished))
	var finished protocol.Message
	for _, m := range events {
		if m.Type == protocol.TypeFSMFinished {
			finished = m
		}
	}
	assert.Equal(t, "End", finished.Payload["finish_state"])
	for _, m := range events {
		if m.Type == protocol.TypeCurrentState {
			assert.NotEqual(t, "Beyond", m.Payload["name"])
		}
	}
	assert.Equal(t, 1, countType(events, protocol.TypeTransitionTaken))
}

func TestEngine_SetVariableVisibleAndAcknowledgedFirst(t *testing.T) {
	a := domain.New("gate")
	a.AddState("Wait", "")
	a.AddState("Done", "")
	a.StartState = "Wait"
	a.AddFinalState("Done")
	require.NoError(t, a.AddVariable("go", "0", domain.VarInt))
	a.AddTransition(domain.Transition{From: "Wait", To: "Done", Condition: "go == 1"})
	a.AddTransition(domain.Transition{From: "Wait", To: "Wait", Condition: "True", Delay: 50})

	e := newEngine(t, a)
	go e.Run(context.Background())
	go func() {
		time.Sleep(60 * time.Millisecond)
		e.SetVariable("go", float64(1))
	}()
	events := drain(t, e, 10*time.Second)

	// VARIABLE_UPDATE must precede the transition it unlocks.
	updateIdx, doneIdx := -1, -1
	for i, m := range events {
		switch m.Type {
		case protocol.TypeVariableUpdate:
			if updateIdx == -1 {
				updateIdx = i
				assert.Equal(t, "go", m.Payload["name"])
			}
		case protocol.TypeTransitionTaken:
			if m.Payload["to_state"] == "Done" {
				doneIdx = i
			}
		}
	}
	require.NotEqual(t, -1, updateIdx, "expected a VARIABLE_UPDATE")
	require.NotEqual(t, -1, doneIdx, "expected the gated transition to fire")
	assert.Less(t, updateIdx, doneIdx)
	assert.Equal(t, 1, countType(events, protocol.TypeFSMFinished))
}

func TestEngine_StopDuringDelayIsBounded(t *testing.T) {
	a := domain.New("slow")
	a.AddState("A", "")
	a.AddState("B", "")
	a.StartState = "A"
	a.AddFinalState("B")
	a.AddTransition(domain.Transition{From: "A", To: "B", Condition: "True", Delay: 5000})

	e := newEngine(t, a)
	done := make(chan error, 1)
	start := time.Now()
	go func() { done <- e.Run(context.Background()) }()
	go func() {
		time.Sleep(50 * time.Millisecond)
		e.Stop()
	}()
	events := drain(t, e, 10*time.Second)

	require.NoError(t, <-done)
	assert.Less(t, time.Since(start), 2*time.Second, "stop must cut the delay short")
	assert.Equal(t, 0, countType(events, protocol.TypeTransitionTaken))
	assert.Equal(t, 0, countType(events, protocol.TypeFSMFinished))
	assert.Equal(t, runtime.StatusStopped, e.Status())
}

func TestEngine_CounterLoop(t *testing.T) {
	a := domain.New("counter")
	a.AddState("Work", "counter = counter + 1")
	a.AddState("Done", "")
	a.StartState = "Work"
	a.AddFinalState("Done")
	require.NoError(t, a.AddVariable("counter", "0", domain.VarInt))
	a.AddTransition(domain.Transition{From: "Work", To: "Done", Condition: "counter >= 3"})
	a.AddTransition(domain.Transition{From: "Work", To: "Work", Condition: "True"})

	e := newEngine(t, a)
	go e.Run(context.Background())
	events := drain(t, e, 10*time.Second)

	// Three visits to Work increment counter to 3, then the first-declared
	// guard fires.
	assert.Equal(t, 3, countType(events, protocol.TypeStateActionExecuted))
	var updates []any
	for _, m := range events {
		if m.Type == protocol.TypeVariableUpdate {
			updates = append(updates, m.Payload["value"])
		}
	}
	assert.Equal(t, []any{int64(1), int64(2), int64(3)}, updates)
	assert.Equal(t, 1, countType(events, protocol.TypeFSMFinished))

	_, vars := e.Snapshot()
	assert.Equal(t, int64(3), vars["counter"].Interface())
}

func TestEngine_ConditionErrorTreatedAsFalse(t *testing.T) {
	a := domain.New("bad-guard")
	a.AddState("A", "")
	a.AddState("B", "")
	a.StartState = "A"
	a.AddFinalState("B")
	a.AddTransition(domain.Transition{From: "A", To: "B", Condition: "nonsense <"})
	a.AddTransition(domain.Transition{From: "A", To: "B", Condition: "True"})

	e := newEngine(t, a)
	go e.Run(context.Background())
	events := drain(t, e, 5*time.Second)

	// The malformed guard is reported and skipped; the next candidate fires.
	assert.GreaterOrEqual(t, countType(events, protocol.TypeFSMError), 1)
	assert.Equal(t, 1, countType(events, protocol.TypeTransitionTaken))
	assert.Equal(t, 1, countType(events, protocol.TypeFSMFinished))
}

func TestEngine_CoercionFailureLeavesStoreUnchanged(t *testing.T) {
	a := domain.New("coerce")
	a.AddState("Trap", "")
	a.StartState = "Trap"
	require.NoError(t, a.AddVariable("counter", "7", domain.VarInt))

	e := newEngine(t, a)
	go e.Run(context.Background())
	go func() {
		time.Sleep(100 * time.Millisecond)
		e.SetVariable("counter", "not-a-number")
		e.SetVariable("ghost", float64(1))
		time.Sleep(100 * time.Millisecond)
		e.Stop()
	}()
	events := drain(t, e, 5*time.Second)

	assert.Equal(t, 0, countType(events, protocol.TypeVariableUpdate))
	assert.GreaterOrEqual(t, countType(events, protocol.TypeFSMError), 2)

	_, vars := e.Snapshot()
	assert.Equal(t, int64(7), vars["counter"].Interface())
}

func TestEngine_EventOrderForSimpleRun(t *testing.T) {
	a := domain.New("two-step")
	a.AddState("A", "x = 1")
	a.AddState("B", "")
	a.StartState = "A"
	a.AddFinalState("B")
	require.NoError(t, a.AddVariable("x", "0", domain.VarInt))
	a.AddTransition(domain.Transition{From: "A", To: "B", Condition: "x == 1"})

	e := newEngine(t, a)
	go e.Run(context.Background())
	events := drain(t, e, 5*time.Second)

	assert.Equal(t, []protocol.Type{
		protocol.TypeFSMStarted,
		protocol.TypeCurrentState,
		protocol.TypeVariableUpdate,
		protocol.TypeStateActionExecuted,
		protocol.TypeTransitionTaken,
		protocol.TypeCurrentState,
		protocol.TypeFSMFinished,
	}, typesOf(events))
}

func TestEngine_RunTwice(t *testing.T) {
	a := domain.New("once")
	a.AddState("End", "")
	a.StartState = "End"
	a.AddFinalState("End")

	e := newEngine(t, a)
	require.NoError(t, e.Run(context.Background()))
	assert.ErrorIs(t, e.Run(context.Background()), runtime.ErrAlreadyStarted)
	assert.ErrorIs(t, e.SetVariable("x", 1), runtime.ErrNotRunning)
}

func TestEngine_ContextCancellation(t *testing.T) {
	a := domain.New("cancel")
	a.AddState("A", "")
	a.AddState("B", "")
	a.StartState = "A"
	a.AddFinalState("B")
	a.AddTransition(domain.Transition{From: "A", To: "B", Condition: "True", Delay: 5000})

	ctx, cancel := context.WithCancel(context.Background())
	e := newEngine(t, a)
	done := make(chan error, 1)
	go func() { done <- e.Run(ctx) }()
	time.AfterFunc(50*time.Millisecond, cancel)
	drain(t, e, 10*time.Second)
	assert.ErrorIs(t, <-done, context.Canceled)
	assert.Equal(t, runtime.StatusStopped, e.Status())
}
