// Package tui renders protocol traffic for the interactive monitor.
package tui

import (
	"fmt"

	"github.com/muesli/termenv"

	"github.com/corvid-labs/strand/pkg/protocol"
)

// Formatter turns protocol messages into colorized one-line summaries.
type Formatter struct {
	profile termenv.Profile
}

// NewFormatter detects the terminal color profile.
func NewFormatter() *Formatter {
	return &Formatter{profile: termenv.ColorProfile()}
}

func (f *Formatter) paint(s, color string) string {
	return termenv.String(s).Foreground(f.profile.Color(color)).String()
}

// Format renders one message. Unknown or undecodable payloads fall back to
// the raw payload map.
func (f *Formatter) Format(msg protocol.Message) string {
	tag := f.tag(msg.Type)
	switch msg.Type {
	case protocol.TypeCurrentState:
		if p, err := protocol.DecodePayload[protocol.CurrentStatePayload](msg); err == nil {
			if p.IsFinish {
				return fmt.Sprintf("%s state=%s (final)", tag, p.Name)
			}
			return fmt.Sprintf("%s state=%s", tag, p.Name)
		}
	case protocol.TypeTransitionTaken:
		if p, err := protocol.DecodePayload[protocol.TransitionTakenPayload](msg); err == nil {
			if p.Delay > 0 {
				return fmt.Sprintf("%s %s -> %s (after %dms)", tag, p.FromState, p.ToState, p.Delay)
			}
			return fmt.Sprintf("%s %s -> %s", tag, p.FromState, p.ToState)
		}
	case protocol.TypeVariableUpdate:
		if p, err := protocol.DecodePayload[protocol.VariableUpdatePayload](msg); err == nil {
			return fmt.Sprintf("%s %s=%v", tag, p.Name, p.Value)
		}
	case protocol.TypeFSMError, protocol.TypeFSMConnected:
		if p, err := protocol.DecodePayload[protocol.ErrorPayload](msg); err == nil && p.Message != "" {
			return fmt.Sprintf("%s %s", tag, p.Message)
		}
	case protocol.TypeFSMStarted:
		if s, ok := msg.Payload["start_state"]; ok {
			return fmt.Sprintf("%s start=%v", tag, s)
		}
	case protocol.TypeFSMFinished:
		if s, ok := msg.Payload["finish_state"]; ok {
			return fmt.Sprintf("%s state=%v", tag, s)
		}
	case protocol.TypeFSMStuck, protocol.TypeStateActionExecuted:
		if s, ok := msg.Payload["state_name"]; ok {
			return fmt.Sprintf("%s state=%v", tag, s)
		}
	}
	if len(msg.Payload) == 0 {
		return tag
	}
	return fmt.Sprintf("%s %v", tag, msg.Payload)
}

func (f *Formatter) tag(t protocol.Type) string {
	label := fmt.Sprintf("[%s]", t)
	switch t {
	case protocol.TypeCurrentState:
		return f.paint(label, "#00d7ff")
	case protocol.TypeTransitionTaken:
		return f.paint(label, "#818cf8")
	case protocol.TypeVariableUpdate:
		return f.paint(label, "#fbc02d")
	case protocol.TypeFSMFinished:
		return f.paint(label, "#22c55e")
	case protocol.TypeFSMStuck, protocol.TypeFSMError:
		return f.paint(label, "#f43f5e")
	default:
		return f.paint(label, "#9ca3af")
	}
}

// PrintBanner outputs the monitor banner.
func PrintBanner() {
	p := termenv.ColorProfile()
	s1 := termenv.String("      _                       _ ").Foreground(p.Color("#818cf8"))
	s2 := termenv.String("  ___| |_ _ __ __ _ _ __   __| |").Foreground(p.Color("#a78bfa"))
	s3 := termenv.String(" / __| __| '__/ _` | '_ \\ / _` |").Foreground(p.Color("#c084fc"))
	s4 := termenv.String(" \\__ \\ |_| | | (_| | | | | (_| |").Foreground(p.Color("#e879f9"))
	s5 := termenv.String(" |___/\\__|_|  \\__,_|_| |_|\\__,_|").Foreground(p.Color("#f472b6"))

	fmt.Println()
	fmt.Println(s1)
	fmt.Println(s2)
	fmt.Println(s3)
	fmt.Println(s4)
	fmt.Println(s5)
	fmt.Println()
}
