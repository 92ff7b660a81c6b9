/*
Package runner implements the interactive exploration loop over a driver.

It acts as the bridge between the branching timeline and the outside world.
The runner turns input lines into dispatched events, routes program sends to
pluggable IO handlers, persists the timeline after every mutation, and
handles OS signals so Ctrl+C ends a session cleanly.

# Key Components

  - Runner: the main loop; builds or restores a driver and feeds it requests.
  - IOHandler: decouples how requests come in and payloads go out (text, JSON).
  - EventInterceptor: policy middleware over dispatches, e.g. confirmation
    before an event that discards redoable history.

# Usage

	r := runner.NewRunner(
		runner.WithStore(store),
		runner.WithSessionID("user-1"),
	)

	if err := r.Run(ctx, program); err != nil {
		log.Fatal(err)
	}
*/
package runner
