package main

import (
	"fmt"
	"strings"

	"github.com/branchline/branchline"
	"github.com/spf13/cobra"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number of branchline",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("branchline version %s\n", strings.TrimSpace(branchline.Version))
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
