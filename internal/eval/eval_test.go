package eval_test

import (
	"context"
	"testing"
	"time"

	"github.com/corvid-labs/strand/internal/eval"
	"github.com/corvid-labs/strand/pkg/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEvaluator_Condition(t *testing.T) {
	e := eval.New()
	ctx := context.Background()
	vars := map[string]any{"counter": int64(2), "rate": 0.5, "label": "go"}

	cases := []struct {
		expr string
		want bool
	}{
		{"counter < 3", true},
		{"counter >= 3", false},
		{"rate * 2 == 1.0", true},
		{"label == 'go'", true},
		{"counter < 3 and label == 'go'", true},
		{"", true}, // empty condition is "always"
	}
	for _, tc := range cases {
		t.Run(tc.expr, func(t *testing.T) {
			got, err := e.Condition(ctx, tc.expr, vars)
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestEvaluator_ConditionUndefinedVariable(t *testing.T) {
	e := eval.New()
	_, err := e.Condition(context.Background(), "missing > 1", map[string]any{})
	assert.ErrorIs(t, err, domain.ErrUndefinedVariable)
}

func TestEvaluator_ConditionMalformed(t *testing.T) {
	e := eval.New()
	_, err := e.Condition(context.Background(), "counter <", map[string]any{"counter": int64(1)})
	assert.Error(t, err)
}

func TestEvaluator_Action(t *testing.T) {
	e := eval.New()
	writes, err := e.Action(context.Background(), "counter = counter + 1",
		map[string]any{"counter": int64(2)})
	require.NoError(t, err)
	assert.Equal(t, int64(3), writes["counter"])
}

func TestEvaluator_ActionMultiLine(t *testing.T) {
	e := eval.New()
	code := "counter = counter + 1\ncounter = counter * 2\nlabel = 'done'\n"
	writes, err := e.Action(context.Background(), code,
		map[string]any{"counter": int64(1), "label": ""})
	require.NoError(t, err)
	assert.Equal(t, int64(4), writes["counter"])
	assert.Equal(t, "done", writes["label"])
}

func TestEvaluator_ActionEmpty(t *testing.T) {
	e := eval.New()
	writes, err := e.Action(context.Background(), "   ", nil)
	require.NoError(t, err)
	assert.Nil(t, writes)
}

func TestEvaluator_ActionError(t *testing.T) {
	e := eval.New()
	_, err := e.Action(context.Background(), "counter = nope + 1", map[string]any{"counter": int64(0)})
	assert.ErrorIs(t, err, domain.ErrUndefinedVariable)
}

func TestEvaluator_CancelledContext(t *testing.T) {
	e := eval.New()
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()
	// Unbounded loop must be cut short by cancellation.
	start := time.Now()
	_, err := e.Action(ctx, "while True:\n    pass\n", map[string]any{})
	assert.Error(t, err)
	assert.Less(t, time.Since(start), 5*time.Second)
}
