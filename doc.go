/*
Package branchline is an interactive narrative engine: branching stories made of
scenes and choices, played one session at a time, with persistent progress.

A story is a directed graph. Each scene shows text, may carry an audio track,
and offers choices leading to other scenes; ending scenes offer none. A session
applies a choice in two phases: it records the choice at once, then enters the
next scene after a short transition delay. Completion is the share of non-ending
scenes a player has visited. Discovered endings survive restarts.

# Architecture

The engine follows a hexagonal layout. The core packages are pure:

  - pkg/story loads and validates story graphs.
  - pkg/completion computes completion percentages.
  - pkg/progress converts sessions to and from persisted snapshots.
  - pkg/session runs the narrative state machine and manages sessions per player.
  - pkg/audio turns scene entries into audio commands.

Adapters under pkg/adapters implement the ports of pkg/ports: story sources
(files, Loam markdown directories, an HTTP content service, an LRU cache), snapshot
stores (memory, files, Redis, SQLite), and the HTTP and MCP surfaces.

# Usage

	eng, err := branchline.New("./stories", branchline.WithStore(file.New("")))
	if err != nil {
		log.Fatal(err)
	}
	defer eng.Shutdown(context.Background())

	sess, err := eng.Open(ctx, "alice", "lighthouse")
	if err != nil {
		log.Fatal(err)
	}
	fmt.Println(sess.CurrentScene().Text)

	eng.SelectChoice(ctx, "alice", "lighthouse", "climb")
	// after the transition delay, sess.CurrentScene() is the next scene
*/
package branchline
