/*
Package ports defines the driven ports (interfaces) of the narrative engine.

These interfaces decouple the session logic from external implementations, so the
same play-through can be backed by files, Redis, SQLite or a remote content service.

# Key Interfaces

  - StoryRepository: fetches story definitions from a content source.
  - SnapshotStore: persists and loads progress snapshots per (user, story).
  - AudioPlayer: plays and stops background tracks.
  - DistributedLocker: coordinates snapshot writes across replicas.
*/
package ports
