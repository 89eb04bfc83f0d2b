package compiler

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/corvid-labs/strand/pkg/domain"
)

// Generate writes the automaton back out in the persisted text format.
// States are emitted in sorted name order so output is deterministic;
// variable and transition order is preserved as declared.
func Generate(w io.Writer, a *domain.Automaton) error {
	var sb strings.Builder

	fmt.Fprintf(&sb, "AUTOMATON %s\n", a.Name)
	fmt.Fprintf(&sb, "\tDESCRIPTION %q\n", a.Description)
	fmt.Fprintf(&sb, "\tSTART %s\n", a.StartState)
	fmt.Fprintf(&sb, "\tFINISH [%s]\n", strings.Join(a.FinalStates, ", "))

	sb.WriteString("\tVARS\n")
	for _, v := range a.Variables {
		fmt.Fprintf(&sb, "\t\t%s %s = %s\n", v.Type, v.Name, v.Value)
	}
	sb.WriteString("\tEND\n\n")

	names := make([]string, 0, len(a.States))
	for name := range a.States {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Fprintf(&sb, "STATE %s\n", name)
		sb.WriteString("\tACTION\n")
		if action := a.States[name]; action != "" {
			sb.WriteString(action)
			if !strings.HasSuffix(action, "\n") {
				sb.WriteByte('\n')
			}
		}
		sb.WriteString("\tEND\n\n")
	}

	for _, t := range a.Transitions {
		fmt.Fprintf(&sb, "TRANSITION %s -> %s\n", t.From, t.To)
		fmt.Fprintf(&sb, "\tCONDITION %s\n", t.Condition)
		fmt.Fprintf(&sb, "\tDELAY %d\n\n", t.Delay)
	}

	sb.WriteString("END\n")
	_, err := io.WriteString(w, sb.String())
	return err
}
