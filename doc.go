/*
Package espalier is a forkable coroutine runtime for building explorable,
undoable workflows: interactive fiction drivers, conversational agents,
speculative planners and anything else that wants to rewind a suspended
computation and try a different input.

It implements a "Fork at the Yield Point" architecture. A program is written
as a pure step function over an explicit frame (position plus locals), so a
suspended computation is plain data. The engine deep-copies that frame to
clone itself, and the driver keeps every suspension point it has ever reached
in a branching history you can walk backwards and forwards.

# Concept

Espalier treats your application as a coroutine that alternates between
receiving events and sending output. The engine manages resumption, state
capture and cloning, while your application ("Host") manages the I/O. This
Hexagonal Architecture allows Espalier to be embedded in any interface: CLI,
HTTP server, or AI agent infrastructure.

# Key Features

  - Forkable Execution: Any suspended engine can be cloned in O(state) time;
    the clone and the original evolve independently.
  - Branching History: Each accepted event forks the current timeline entry.
    Undo and redo move a cursor; dispatching after undo starts a new future.
  - Admission Control: Every suspension point carries a branch budget, so a
    timeline entry can cap how many alternate futures fork from it.
  - State Persistence: A timeline snapshots to plain data ("Durable
    Exploration") and restores against the same program.

# Usage

Write a program as a step table, hand it to a Driver, and dispatch events.

	package main

	import (
		"context"
		"fmt"
		"log"

		"github.com/aretw0/espalier"
		"github.com/aretw0/espalier/pkg/domain"
		"github.com/aretw0/espalier/pkg/dsl"
	)

	func main() {
		program, err := dsl.NewProgram("echo").
			Receive("wait").
			Send("you said {{event.payload}}").
			Goto("wait").
			Build()
		if err != nil {
			log.Fatal(err)
		}

		sink := func(ctx context.Context, payload any) {
			fmt.Println(payload)
		}

		driver, err := espalier.NewDriver(program, sink)
		if err != nil {
			log.Fatal(err)
		}

		ctx := context.Background()

		// Each dispatch forks the current timeline entry and runs the
		// fork until it suspends again.
		if err := driver.Dispatch(ctx, domain.NewEvent("greet", "hello")); err != nil {
			log.Fatal(err)
		}

		// Rewind, then explore a different future.
		if err := driver.Undo(ctx); err != nil {
			log.Fatal(err)
		}
		if err := driver.Dispatch(ctx, domain.NewEvent("greet", "goodbye")); err != nil {
			log.Fatal(err)
		}
	}
*/
package espalier
