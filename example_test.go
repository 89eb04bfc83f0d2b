package strand_test

import (
	"context"
	"fmt"
	"log"

	"github.com/corvid-labs/strand"
	"github.com/corvid-labs/strand/pkg/dsl"
)

// ExampleNew demonstrates how to use strand purely as a Go library,
// building an automaton in memory and running it to completion.
func ExampleNew() {
	// 1. Define the automaton using the builder
	auto, err := dsl.New("greeter").
		State("hello").Start().Go("goodbye").Done().
		State("goodbye").Final().Done().
		Build()
	if err != nil {
		log.Fatal(err)
	}

	// 2. Create the interpreter. No listener is involved for a local run.
	it, err := strand.New(auto)
	if err != nil {
		log.Fatal(err)
	}

	// 3. Drain the event stream; it closes when the run is over
	done := make(chan struct{})
	go func() {
		defer close(done)
		for msg := range it.Engine().Events() {
			fmt.Println(msg.Type)
		}
	}()

	if err := it.Run(context.Background()); err != nil {
		log.Fatal(err)
	}
	<-done

	// Output:
	// FSM_STARTED
	// CURRENT_STATE
	// TRANSITION_TAKEN
	// CURRENT_STATE
	// FSM_FINISHED
}
