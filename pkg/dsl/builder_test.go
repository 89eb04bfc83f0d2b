package dsl

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/corvid-labs/strand/pkg/domain"
)

func TestBuild(t *testing.T) {
	b := New("traffic").
		Describe("a minimal light").
		Int("cycles", 0).
		String("mode", "auto")

	b.State("red").
		Start().
		Action("cycles = cycles + 1").
		Branch(`mode == "auto"`, "green").
		Edge(domain.Transition{To: "off", Delay: 1000})
	b.State("green").Go("red")
	b.State("off").Final()

	a, err := b.Build()
	require.NoError(t, err)

	assert.Equal(t, "traffic", a.Name)
	assert.Equal(t, "a minimal light", a.Description)
	assert.Equal(t, "red", a.StartState)
	assert.True(t, a.IsFinalState("off"))

	require.Len(t, a.Variables, 2)
	assert.Equal(t, domain.VariableInfo{Name: "cycles", Value: "0", Type: domain.VarInt}, a.Variables[0])

	action, ok := a.StateAction("red")
	require.True(t, ok)
	assert.Equal(t, "cycles = cycles + 1", action)

	// Transition priority follows call order.
	require.Len(t, a.Transitions, 3)
	assert.Equal(t, `mode == "auto"`, a.Transitions[0].Condition)
	assert.Equal(t, "off", a.Transitions[1].To)
	assert.Equal(t, 1000, a.Transitions[1].Delay)
	assert.Equal(t, domain.Transition{From: "green", To: "red"}, a.Transitions[2])
}

func TestBuildReusesState(t *testing.T) {
	b := New("m")
	first := b.State("a")
	second := b.State("a")
	assert.Same(t, first, second)
}

func TestBuildErrors(t *testing.T) {
	t.Run("duplicate variable", func(t *testing.T) {
		b := New("m").Int("x", 0).Int("x", 1)
		b.State("a").Start()
		_, err := b.Build()
		assert.ErrorIs(t, err, domain.ErrDuplicateVariable)
	})

	t.Run("no start state", func(t *testing.T) {
		b := New("m")
		b.State("a")
		_, err := b.Build()
		assert.ErrorIs(t, err, domain.ErrNoStartState)
	})

	t.Run("dangling transition target", func(t *testing.T) {
		b := New("m")
		b.State("a").Start().Go("ghost")
		_, err := b.Build()
		assert.ErrorIs(t, err, domain.ErrUnknownState)
	})
}
