/*
Package domain contains the core domain models for the Espalier runtime.

It defines the fundamental entities of a forkable coroutine: the suspension
Frame, the body Program boundary, the yield protocol, and the timeline
snapshots used for persistence. This package is kept pure and free of external
dependencies like I/O or persistence, following Hexagonal Architecture
principles.

# Key Entities

  - Frame: a snapshot of a paused computation (position, locals, pending
    signal). Cloning a frame yields a structurally independent copy.
  - Program: the immutable body logic an engine executes. Programs are shared
    by reference across clones and must never carry mutable state.
  - Yield: the closed protocol a body may emit. A "receive" signals readiness
    for external input and becomes a history entry; a "send" is an outbound
    effect forwarded to the sink.
  - StepResult: the outcome of one resumption (yielded, done, or errored).
  - TimelineSnapshot: the serializable form of a driver's branch history.
*/
package domain
