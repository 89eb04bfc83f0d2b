package client

import (
	"bufio"
	"encoding/json"
	"net"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/corvid-labs/strand/pkg/protocol"
)

func splitHostPort(t *testing.T, addr string) (string, int) {
	t.Helper()
	host, portStr, err := net.SplitHostPort(addr)
	require.NoError(t, err)
	port, err := strconv.Atoi(portStr)
	require.NoError(t, err)
	return host, port
}

func nextEvent(t *testing.T, c *Client) Event {
	t.Helper()
	select {
	case ev := <-c.Events():
		return ev
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for client event")
		return Event{}
	}
}

func waitFor(t *testing.T, c *Client, kind EventKind) Event {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case ev := <-c.Events():
			if ev.Kind == kind {
				return ev
			}
		case <-deadline:
			t.Fatalf("timed out waiting for %s event", kind)
		}
	}
}

func TestConnectAndReceive(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		// Split one frame across writes and batch two more in a single one.
		conn.Write([]byte(`{"type":"FSM_CONN`))
		time.Sleep(20 * time.Millisecond)
		conn.Write([]byte("ECTED\"}\n"))
		conn.Write([]byte(`{"type":"FSM_STARTED"}` + "\n" + `{"type":"CURRENT_STATE","payload":{"name":"idle"}}` + "\n"))
		time.Sleep(100 * time.Millisecond)
	}()

	c := New()
	host, port := splitHostPort(t, ln.Addr().String())
	require.NoError(t, c.Connect(host, port))

	assert.Equal(t, EventConnected, nextEvent(t, c).Kind)

	ev := nextEvent(t, c)
	require.Equal(t, EventMessage, ev.Kind)
	assert.Equal(t, protocol.TypeFSMConnected, ev.Message.Type)

	ev = nextEvent(t, c)
	require.Equal(t, EventMessage, ev.Kind)
	assert.Equal(t, protocol.TypeFSMStarted, ev.Message.Type)

	ev = nextEvent(t, c)
	require.Equal(t, EventMessage, ev.Kind)
	assert.Equal(t, protocol.TypeCurrentState, ev.Message.Type)
	state, err := protocol.DecodePayload[protocol.CurrentStatePayload](ev.Message)
	require.NoError(t, err)
	assert.Equal(t, "idle", state.Name)

	c.Disconnect()
	assert.Equal(t, EventDisconnected, waitFor(t, c, EventDisconnected).Kind)
	assert.Equal(t, StateDisconnected, c.State())
}

func TestRemoteCloseYieldsDisconnectedOnly(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		conn.Close()
	}()

	c := New()
	host, port := splitHostPort(t, ln.Addr().String())
	require.NoError(t, c.Connect(host, port))
	assert.Equal(t, EventConnected, nextEvent(t, c).Kind)

	ev := nextEvent(t, c)
	assert.Equal(t, EventDisconnected, ev.Kind, "remote close is not an error")
	assert.Equal(t, StateDisconnected, c.State())
}

func TestSendWritesFullFrame(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	lines := make(chan string, 2)
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		scanner := bufio.NewScanner(conn)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
	}()

	c := New()
	host, port := splitHostPort(t, ln.Addr().String())
	require.NoError(t, c.Connect(host, port))
	require.Equal(t, EventConnected, nextEvent(t, c).Kind)

	require.NoError(t, c.SetVariable("count", 3))
	require.NoError(t, c.StopFSM())

	var got protocol.Message
	require.NoError(t, json.Unmarshal([]byte(<-lines), &got))
	assert.Equal(t, protocol.TypeSetVariable, got.Type)
	set, err := got.SetVariable()
	require.NoError(t, err)
	assert.Equal(t, "count", set.Name)
	assert.EqualValues(t, 3, set.Value)

	require.NoError(t, json.Unmarshal([]byte(<-lines), &got))
	assert.Equal(t, protocol.TypeStopFSM, got.Type)

	c.Disconnect()
}

func TestSendWhileDisconnected(t *testing.T) {
	c := New()
	err := c.Send(protocol.StopFSM())
	assert.ErrorIs(t, err, ErrNotConnected)
}

func TestConnectWhileConnected(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		time.Sleep(200 * time.Millisecond)
	}()

	c := New()
	host, port := splitHostPort(t, ln.Addr().String())
	require.NoError(t, c.Connect(host, port))
	require.Equal(t, EventConnected, nextEvent(t, c).Kind)

	assert.ErrorIs(t, c.Connect(host, port), ErrAlreadyConnected)
	c.Disconnect()
	waitFor(t, c, EventDisconnected)
}

func TestConnectFailure(t *testing.T) {
	// Grab a port and close the listener so nothing is accepting on it.
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	host, port := splitHostPort(t, ln.Addr().String())
	ln.Close()

	c := New(WithDialTimeout(500 * time.Millisecond))
	require.NoError(t, c.Connect(host, port))

	ev := waitFor(t, c, EventError)
	assert.Error(t, ev.Err)
	assert.Equal(t, StateDisconnected, c.State())

	// The failed attempt must not block a retry.
	ln2, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln2.Close()
	go func() {
		conn, err := ln2.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		time.Sleep(100 * time.Millisecond)
	}()
	host2, port2 := splitHostPort(t, ln2.Addr().String())
	require.NoError(t, c.Connect(host2, port2))
	assert.Equal(t, EventConnected, nextEvent(t, c).Kind)
	c.Disconnect()
	waitFor(t, c, EventDisconnected)
}

func TestDisconnectIdempotent(t *testing.T) {
	c := New()
	c.Disconnect()
	c.Disconnect()
	assert.Equal(t, StateDisconnected, c.State())
	select {
	case ev := <-c.Events():
		t.Fatalf("unexpected event %s while disconnected", ev.Kind)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestReconnectClearsReceiveBuffer(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	first := true
	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			if first {
				first = false
				// A dangling partial frame, never completed.
				conn.Write([]byte(`{"type":"FSM_STAR`))
				time.Sleep(50 * time.Millisecond)
				conn.Close()
				continue
			}
			conn.Write([]byte(`{"type":"FSM_CONNECTED"}` + "\n"))
			time.Sleep(100 * time.Millisecond)
			conn.Close()
		}
	}()

	c := New()
	host, port := splitHostPort(t, ln.Addr().String())
	require.NoError(t, c.Connect(host, port))
	require.Equal(t, EventConnected, nextEvent(t, c).Kind)
	waitFor(t, c, EventDisconnected)

	require.NoError(t, c.Connect(host, port))
	require.Equal(t, EventConnected, nextEvent(t, c).Kind)

	ev := nextEvent(t, c)
	require.Equal(t, EventMessage, ev.Kind, "stale bytes from the prior connection must not corrupt the stream")
	assert.Equal(t, protocol.TypeFSMConnected, ev.Message.Type)
	c.Disconnect()
	waitFor(t, c, EventDisconnected)
}
