/*
Package domain contains the core models of the branchline narrative engine.

It defines the story definition as it travels over the wire (Story, Scene, Choice),
the mutable play-through state (SessionState) and its persisted projection
(ProgressSnapshot). The package is kept pure and free of I/O so that every other
layer (graph indexing, session state machine, adapters) can depend on it.

# Key Entities

  - Story: a complete branching story, as returned by the content boundary.
  - Scene: a node in the story graph; either an ending or a decision point.
  - Choice: an edge from one scene to another.
  - SessionState: the runtime state of one play-through.
  - ProgressSnapshot: the persisted form of a session's progress.
  - AudioCommand: a play/stop instruction for the external audio subsystem.
*/
package domain
