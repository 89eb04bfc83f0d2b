// Package graph renders automaton definitions as Mermaid diagrams.
package graph

import (
	"fmt"
	"sort"
	"strings"

	"github.com/corvid-labs/strand/pkg/domain"
)

// Overlay contains dynamic run data to visualize on the graph.
type Overlay struct {
	CurrentState string
}

// GenerateMermaid produces Mermaid flowchart syntax for an automaton.
// It applies semantic styling:
// - Start state: ((Circle))
// - Final state: [[Subroutine]]
// - Default: [Rectangle]
// Edges carry the guard condition and, when present, the delay.
func GenerateMermaid(a *domain.Automaton, overlay *Overlay) string {
	var sb strings.Builder
	sb.WriteString("graph TD\n")

	// States sorted by name so regeneration is deterministic.
	names := make([]string, 0, len(a.States))
	for name := range a.States {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		safeID := sanitizeMermaidID(name)

		opener, closer := "[", "]"
		switch {
		case name == a.StartState:
			opener, closer = "((", "))"
		case a.IsFinalState(name):
			opener, closer = "[[", "]]"
		}
		sb.WriteString(fmt.Sprintf("    %s%s\"%s\"%s\n", safeID, opener, name, closer))
	}

	for _, t := range a.Transitions {
		safeFrom := sanitizeMermaidID(t.From)
		safeTo := sanitizeMermaidID(t.To)

		label := t.Condition
		if label == "" {
			label = "always"
		}
		// Escape double quotes in the guard for Mermaid labels.
		label = strings.ReplaceAll(label, "\"", "'")
		if t.Delay > 0 {
			label = fmt.Sprintf("%s ⏱ %dms", label, t.Delay)
		}
		sb.WriteString(fmt.Sprintf("    %s -- \"%s\" --> %s\n", safeFrom, label, safeTo))
	}

	if overlay != nil && overlay.CurrentState != "" {
		sb.WriteString("\n    classDef current fill:#ffeb3b,stroke:#fbc02d,stroke-width:4px,color:#000;\n")
		sb.WriteString(fmt.Sprintf("    class %s current;\n", sanitizeMermaidID(overlay.CurrentState)))
	}

	return sb.String()
}

func sanitizeMermaidID(id string) string {
	s := strings.ReplaceAll(id, ".", "_")
	s = strings.ReplaceAll(s, "-", "_")
	s = strings.ReplaceAll(s, " ", "_")
	return s
}
