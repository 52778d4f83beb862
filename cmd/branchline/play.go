package main

import (
	"os"

	"github.com/branchline/branchline"
	"github.com/branchline/branchline/internal/cli"
	"github.com/branchline/branchline/internal/presentation/tui"
	"github.com/spf13/cobra"
)

var playCmd = &cobra.Command{
	Use:   "play <story>",
	Short: "Play a story in the terminal",
	Long: `Opens the story for the given player and plays it interactively.
Progress is saved after every scene, so running the command again resumes where you left off.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cli.NewSignalContext(cmd.Context())
		defer ctx.Cancel()

		rt, _, err := setup(ctx, cmd)
		if err != nil {
			return err
		}
		defer rt.Close()

		user, _ := cmd.Flags().GetString("user")
		plain, _ := cmd.Flags().GetBool("plain")

		var rendererOpts []tui.Option
		if plain || !tui.IsInteractive(os.Stdout) {
			rendererOpts = append(rendererOpts, tui.WithMarkdown(func(s string) (string, error) { return s, nil }))
		} else {
			tui.PrintBanner(os.Stdout, branchline.Version)
			rendererOpts = append(rendererOpts, tui.WithMarkdown(tui.NewMarkdown(tui.Width(os.Stdout))))
		}

		return cli.Play(ctx, rt, cli.PlayOptions{
			UserKey:         user,
			StoryID:         args[0],
			In:              os.Stdin,
			Out:             os.Stdout,
			RendererOptions: rendererOpts,
		})
	},
}

func init() {
	rootCmd.AddCommand(playCmd)
	playCmd.Flags().StringP("user", "u", defaultUser(), "Player whose progress is loaded and saved")
	playCmd.Flags().Bool("plain", false, "Print raw markdown instead of rendering it")
}

func defaultUser() string {
	if u := os.Getenv("USER"); u != "" {
		return u
	}
	return "player"
}
