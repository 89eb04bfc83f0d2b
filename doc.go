// Package strand is a finite state machine interpreter with a remote
// control protocol. An automaton, defined in a text format or built with
// the pkg/dsl builder, runs inside an engine that walks guarded, optionally
// delayed transitions over a typed variable store. Controllers attach over
// TCP using newline-framed JSON messages to observe the run and write
// variables; every run is recorded into a journal.
//
// The Interpreter type is the serving entry point; Monitor is the matching
// interactive controller. Lower-level building blocks live in pkg/domain,
// pkg/protocol, and pkg/client.
package strand
