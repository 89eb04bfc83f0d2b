// Package compiler reads and writes the persisted automaton text format:
// line-oriented keyword blocks (AUTOMATON, DESCRIPTION, START, FINISH,
// VARS..END, STATE/ACTION..END, TRANSITION/CONDITION/DELAY). Lines beginning
// with '#' carry editor layout metadata and are ignored here.
package compiler

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/corvid-labs/strand/pkg/domain"
)

type parserState int

const (
	expectAutomaton parserState = iota
	expectDescription
	expectStart
	expectFinish
	expectVars
	insideVars
	expectStateOrTransition
	expectStateAction
	insideStateAction
	expectTransitionCondition
	expectTransitionDelay
	parseDone
)

// ParseFile reads an automaton definition from a file.
func ParseFile(path string) (*domain.Automaton, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return Parse(f)
}

// Parse reads an automaton definition from r. Structural violations are
// reported with their line number.
func Parse(r io.Reader) (*domain.Automaton, error) {
	auto := domain.New("")
	state := expectAutomaton
	var currentState string
	var currentTransition domain.Transition

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		raw := scanner.Text()
		line := stripComment(raw)

		// Layout metadata and blank lines are skipped everywhere, action
		// bodies included.
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		switch state {
		case expectAutomaton:
			name, ok := keyword(line, "AUTOMATON")
			if !ok {
				return nil, parseErr(lineNo, "expected AUTOMATON", line)
			}
			auto.Name = name
			state = expectDescription

		case expectDescription:
			desc, ok := keyword(line, "DESCRIPTION")
			if !ok {
				return nil, parseErr(lineNo, "expected DESCRIPTION", line)
			}
			auto.Description = unquote(desc)
			state = expectStart

		case expectStart:
			start, ok := keyword(line, "START")
			if !ok {
				return nil, parseErr(lineNo, "expected START", line)
			}
			auto.StartState = start
			state = expectFinish

		case expectFinish:
			rest, ok := keyword(line, "FINISH")
			if !ok {
				return nil, parseErr(lineNo, "expected FINISH", line)
			}
			rest = strings.Trim(rest, "[]")
			for _, name := range strings.Split(rest, ",") {
				if name = strings.TrimSpace(name); name != "" {
					auto.AddFinalState(name)
				}
			}
			state = expectVars

		case expectVars:
			if line != "VARS" {
				return nil, parseErr(lineNo, "expected VARS", line)
			}
			state = insideVars

		case insideVars:
			if line == "END" {
				state = expectStateOrTransition
				continue
			}
			if err := parseVarLine(auto, line); err != nil {
				return nil, parseErr(lineNo, err.Error(), line)
			}

		case expectStateOrTransition:
			switch {
			case line == "END":
				state = parseDone
			default:
				if name, ok := keyword(line, "STATE"); ok {
					currentState = name
					auto.AddState(name, "")
					state = expectStateAction
					continue
				}
				edge, ok := keyword(line, "TRANSITION")
				if !ok {
					return nil, parseErr(lineNo, "expected STATE, TRANSITION, or END", line)
				}
				from, to, found := strings.Cut(edge, "->")
				if !found {
					return nil, parseErr(lineNo, "expected 'from -> to'", line)
				}
				currentTransition = domain.Transition{
					From: strings.TrimSpace(from),
					To:   strings.TrimSpace(to),
				}
				state = expectTransitionCondition
			}

		case expectStateAction:
			if line != "ACTION" {
				return nil, parseErr(lineNo, "expected ACTION", line)
			}
			state = insideStateAction

		case insideStateAction:
			if line == "END" {
				state = expectStateOrTransition
				continue
			}
			// Raw line keeps the action's own indentation.
			auto.AppendToAction(currentState, raw)

		case expectTransitionCondition:
			cond, ok := keyword(line, "CONDITION")
			if !ok {
				return nil, parseErr(lineNo, "expected CONDITION", line)
			}
			currentTransition.Condition = cond
			state = expectTransitionDelay

		case expectTransitionDelay:
			delayStr, ok := keyword(line, "DELAY")
			if !ok {
				return nil, parseErr(lineNo, "expected DELAY", line)
			}
			delay, err := strconv.Atoi(delayStr)
			if err != nil {
				return nil, parseErr(lineNo, "invalid DELAY value", line)
			}
			if delay < 0 {
				return nil, parseErr(lineNo, "DELAY must be >= 0", line)
			}
			currentTransition.Delay = delay
			auto.AddTransition(currentTransition)
			state = expectStateOrTransition

		case parseDone:
			return nil, parseErr(lineNo, "content after final END", line)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	if state != parseDone {
		return nil, fmt.Errorf("unexpected end of input (missing END?)")
	}
	return auto, nil
}

func parseVarLine(auto *domain.Automaton, line string) error {
	decl, value, found := strings.Cut(line, "=")
	if !found {
		return fmt.Errorf("malformed VARS line, expected 'Type name = value'")
	}
	typeStr, name, found := strings.Cut(strings.TrimSpace(decl), " ")
	if !found {
		return fmt.Errorf("malformed VARS declaration, expected 'Type name'")
	}
	typ, err := domain.ParseVarType(strings.TrimSpace(typeStr))
	if err != nil {
		return err
	}
	return auto.AddVariable(strings.TrimSpace(name), strings.TrimSpace(value), typ)
}

// keyword returns the trimmed remainder of line after a leading keyword.
func keyword(line, kw string) (string, bool) {
	if line == kw {
		return "", true
	}
	if strings.HasPrefix(line, kw+" ") {
		return strings.TrimSpace(line[len(kw)+1:]), true
	}
	return "", false
}

// stripComment removes an inline '#' comment and surrounding whitespace.
func stripComment(line string) string {
	if i := strings.IndexByte(line, '#'); i >= 0 {
		// A leading '#' marks a whole metadata line; keep it recognizable.
		if strings.HasPrefix(strings.TrimSpace(line), "#") {
			return strings.TrimSpace(line)
		}
		line = line[:i]
	}
	return strings.TrimSpace(line)
}

func unquote(s string) string {
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		return s[1 : len(s)-1]
	}
	return s
}

func parseErr(line int, msg, content string) error {
	return fmt.Errorf("line %d: %s, found: %q", line, msg, content)
}
