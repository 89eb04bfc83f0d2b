/*
Package domain contains the runtime model of an executable automaton: named
states with action code, typed variables, guarded transitions, and the
terminal-state bookkeeping the execution engine operates on.

The model is built once (from the persisted text format or the dsl builder),
validated, and then handed to the engine, which is the only writer of variable
values and the current-state pointer from that point on.
*/
package domain
