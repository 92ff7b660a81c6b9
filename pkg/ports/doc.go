/*
Package ports defines the driven ports (interfaces) for the espalier runtime.

These interfaces decouple the core logic from external implementations,
allowing drivers to work with various timeline stores, program sources, and
lock managers.

# Key Interfaces

  - ProgramLoader: Responsible for loading executable programs (e.g., from
    scripts on disk, a Loam repository, or an in-process registry).
  - TimelineStore: Responsible for persisting and loading timeline
    snapshots ("Durable Exploration").
  - DistributedLocker: Provides distributed locking for handling concurrent
    access to one timeline across replicas.
*/
package ports
