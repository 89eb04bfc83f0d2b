package file

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/corvid-labs/strand/pkg/ports/tests"
	"github.com/corvid-labs/strand/pkg/protocol"
)

func TestJournalContract(t *testing.T) {
	tests.RunJournalContractTest(t, New(t.TempDir()))
}

func TestJournalSurvivesReopen(t *testing.T) {
	dir := t.TempDir()

	j := New(dir)
	require.NoError(t, j.Append(context.Background(), "r1", protocol.FSMStarted("red")))
	require.NoError(t, j.Append(context.Background(), "r1", protocol.FSMFinished("off")))

	reopened := New(dir)
	entries, err := reopened.List(context.Background(), "r1")
	require.NoError(t, err)
	require.Len(t, entries, 2)
	require.Equal(t, protocol.TypeFSMStarted, entries[0].Message.Type)
	require.Equal(t, protocol.TypeFSMFinished, entries[1].Message.Type)
}
