package strand

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"golang.org/x/term"

	"github.com/corvid-labs/strand/internal/presentation/tui"
	"github.com/corvid-labs/strand/pkg/client"
)

// Monitor drives a controller session: it connects to a running
// interpreter, prints the event stream, and forwards typed commands.
//
// Commands:
//
//	set <name> <value>   write a variable
//	stop                 stop the FSM
//	quit                 disconnect and exit
type Monitor struct {
	in        io.Reader
	out       io.Writer
	client    *client.Client
	formatter *tui.Formatter
}

// NewMonitor creates a monitor reading commands from in and writing events
// to out. Nil values default to the standard streams.
func NewMonitor(in io.Reader, out io.Writer, opts ...client.Option) *Monitor {
	if in == nil {
		in = os.Stdin
	}
	if out == nil {
		out = os.Stdout
	}
	return &Monitor{
		in:        in,
		out:       out,
		client:    client.New(opts...),
		formatter: tui.NewFormatter(),
	}
}

// Run connects to the interpreter and blocks until the session ends: the
// server closes the connection, the user quits, or the context is
// cancelled.
func (m *Monitor) Run(ctx context.Context, host string, port int) error {
	if f, ok := m.out.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		tui.PrintBanner()
	}

	if err := m.client.Connect(host, port); err != nil {
		return err
	}

	// Wait for the connection outcome before accepting commands.
	select {
	case ev := <-m.client.Events():
		switch ev.Kind {
		case client.EventConnected:
		case client.EventError:
			return ev.Err
		case client.EventDisconnected:
			return fmt.Errorf("connection closed before it was established")
		}
	case <-ctx.Done():
		m.client.Disconnect()
		return ctx.Err()
	}
	fmt.Fprintf(m.out, "connected to %s:%d\n", host, port)

	go m.readCommands()

	stop := context.AfterFunc(ctx, m.client.Disconnect)
	defer stop()

	for ev := range m.client.Events() {
		switch ev.Kind {
		case client.EventMessage:
			fmt.Fprintln(m.out, m.formatter.Format(ev.Message))
		case client.EventError:
			fmt.Fprintf(m.out, "error: %v\n", ev.Err)
		case client.EventDisconnected:
			fmt.Fprintln(m.out, "disconnected")
			return ctx.Err()
		}
	}
	return ctx.Err()
}

// readCommands parses user commands until the input ends. Input errors are
// reported inline; the session keeps running.
func (m *Monitor) readCommands() {
	scanner := bufio.NewScanner(m.in)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if err := m.dispatch(line); err != nil {
			fmt.Fprintf(m.out, "error: %v\n", err)
		}
	}
}

func (m *Monitor) dispatch(line string) error {
	fields := strings.Fields(line)
	switch fields[0] {
	case "set":
		if len(fields) < 3 {
			return fmt.Errorf("usage: set <name> <value>")
		}
		value := parseValue(strings.Join(fields[2:], " "))
		return m.client.SetVariable(fields[1], value)
	case "stop":
		return m.client.StopFSM()
	case "quit", "exit":
		m.client.Disconnect()
		return nil
	case "help":
		fmt.Fprintln(m.out, "commands: set <name> <value> | stop | quit")
		return nil
	default:
		return fmt.Errorf("unknown command %q", fields[0])
	}
}

// parseValue guesses the JSON-native type of a typed-in value: integer,
// float, then string. Surrounding quotes force a string.
func parseValue(s string) any {
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		return s[1 : len(s)-1]
	}
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return n
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return f
	}
	return s
}
