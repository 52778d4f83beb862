package main

import (
	"fmt"
	"os"

	"github.com/branchline/branchline/pkg/story"
	"github.com/spf13/cobra"
)

var validateCmd = &cobra.Command{
	Use:   "validate [story...]",
	Short: "Check stories for consistency",
	Long: `Loads each story and reports dangling choices, scenes unreachable from the start scene
and ending scenes that offer choices. Without arguments every story in the source is checked.
With --file, standalone definition files are checked instead of the configured source.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		files, _ := cmd.Flags().GetStringSlice("file")
		if len(files) > 0 {
			return validateFiles(files)
		}

		ctx := cmd.Context()
		rt, _, err := setup(ctx, cmd)
		if err != nil {
			return err
		}
		defer rt.Close()

		ids := args
		if len(ids) == 0 {
			if ids, err = rt.Stories.ListStories(ctx); err != nil {
				return err
			}
		}

		failed := 0
		for _, id := range ids {
			g, err := rt.LoadGraph(ctx, id)
			if err == nil {
				err = g.Validate()
			}
			if !report(id, err) {
				failed++
			}
		}

		if failed > 0 {
			return fmt.Errorf("validation failed for %d of %d stories", failed, len(ids))
		}
		return nil
	},
}

func validateFiles(paths []string) error {
	failed := 0
	for _, path := range paths {
		data, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		g, err := story.LoadBytes(data)
		if err == nil {
			err = g.Validate()
		}
		if !report(path, err) {
			failed++
		}
	}
	if failed > 0 {
		return fmt.Errorf("validation failed for %d of %d files", failed, len(paths))
	}
	return nil
}

// report prints the outcome for one story and tells whether it passed.
func report(name string, err error) bool {
	if err == nil {
		fmt.Printf("%s: valid ✅\n", name)
		return true
	}
	problems := story.IntegrityErrors(err)
	if len(problems) == 0 {
		fmt.Printf("%s: %v\n", name, err)
		return false
	}
	fmt.Printf("%s: %d problem(s)\n", name, len(problems))
	for _, p := range problems {
		fmt.Printf("  - %v\n", p)
	}
	return false
}

func init() {
	validateCmd.Flags().StringSliceP("file", "f", nil, "Validate standalone story files (YAML or JSON)")
	rootCmd.AddCommand(validateCmd)
}
