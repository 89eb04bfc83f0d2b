// Package tests provides reusable conformance suites for ports adapters.
package tests

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/corvid-labs/strand/pkg/ports"
	"github.com/corvid-labs/strand/pkg/protocol"
)

// RunJournalContractTest verifies that an adapter complies with
// ports.RunJournal. The journal must be empty when passed in.
func RunJournalContractTest(t *testing.T, journal ports.RunJournal) {
	t.Helper()
	ctx := context.Background()

	t.Run("List_NotFound", func(t *testing.T) {
		_, err := journal.List(ctx, "no-such-run")
		assert.ErrorIs(t, err, ports.ErrRunNotFound)
	})

	t.Run("Append_PreservesOrder", func(t *testing.T) {
		msgs := []protocol.Message{
			protocol.FSMStarted("red"),
			protocol.CurrentState("red", false),
			protocol.VariableUpdate("count", int64(1)),
			protocol.FSMFinished("done"),
		}
		for _, m := range msgs {
			require.NoError(t, journal.Append(ctx, "run-a", m))
		}

		entries, err := journal.List(ctx, "run-a")
		require.NoError(t, err)
		require.Len(t, entries, len(msgs))
		for i, e := range entries {
			assert.Equal(t, int64(i), e.Seq)
			assert.Equal(t, msgs[i].Type, e.Message.Type)
			assert.False(t, e.At.IsZero())
		}
		state, err := protocol.DecodePayload[protocol.CurrentStatePayload](entries[1].Message)
		require.NoError(t, err)
		assert.Equal(t, "red", state.Name)
	})

	t.Run("Runs_IsolatedPerID", func(t *testing.T) {
		require.NoError(t, journal.Append(ctx, "run-b", protocol.FSMStuck("red")))

		entries, err := journal.List(ctx, "run-b")
		require.NoError(t, err)
		require.Len(t, entries, 1)
		assert.Equal(t, protocol.TypeFSMStuck, entries[0].Message.Type)

		runs, err := journal.Runs(ctx)
		require.NoError(t, err)
		assert.ElementsMatch(t, []string{"run-a", "run-b"}, runs)
	})
}
