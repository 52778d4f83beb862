/*
Package session implements the narrative state machine and the orchestration of
play-throughs.

A Session applies choices to a story graph in two phases: the choice is committed
at once and the next scene is entered after a transition delay. The transition
logic itself is the pure Reduce function; Session adds timing, hooks and locking.

The Manager maps players to open sessions, loads and saves progress snapshots
through the ports, and serializes writes of the same snapshot across goroutines
and, optionally, replicas.
*/
package session
