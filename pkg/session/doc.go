/*
Package session implements timeline management and persistence orchestration.

It provides high-level operations for handling concurrent access to named
timelines across multiple replicas, combining reference-counted in-process
locks with optional distributed locking and a pluggable timeline store.
Drivers are rehydrated from snapshots per operation, so a Manager works the
same whether one replica or many serve the traffic.
*/
package session
