package main

import (
	"errors"
	"fmt"

	"github.com/branchline/branchline/internal/presentation/graph"
	"github.com/branchline/branchline/pkg/domain"
	"github.com/branchline/branchline/pkg/progress"
	"github.com/spf13/cobra"
)

// graphCmd represents the graph command
var graphCmd = &cobra.Command{
	Use:   "graph <story>",
	Short: "Export the story graph visualization",
	Long: `Outputs a Mermaid diagram (graph TD) of the story's scenes and choices.
With --user, the player's visited scenes, current scene and discovered endings are highlighted.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		rt, _, err := setup(ctx, cmd)
		if err != nil {
			return err
		}
		defer rt.Close()

		g, err := rt.LoadGraph(ctx, args[0])
		if err != nil {
			return err
		}

		var overlay *graph.Overlay
		if user, _ := cmd.Flags().GetString("user"); user != "" {
			snap, err := rt.Store.Load(ctx, domain.SnapshotKey{UserKey: user, StoryID: args[0]})
			switch {
			case errors.Is(err, domain.ErrSnapshotNotFound):
			case err != nil:
				return err
			default:
				state, _ := progress.Decode(snap, g)
				overlay = graph.OverlayFor(state)
			}
		}

		fmt.Print(graph.ToMermaid(g, overlay))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(graphCmd)
	graphCmd.Flags().StringP("user", "u", "", "Highlight this player's progress")
}
