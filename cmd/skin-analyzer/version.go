package main

import (
	"fmt"
	"runtime"

	"github.com/spf13/cobra"

	skinanalyzer "github.com/menta2k/skin-analyzer"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version",
	// Skip config loading
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error { return nil },
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("skin-analyzer %s (%s, %s/%s)\n", skinanalyzer.Version, runtime.Version(), runtime.GOOS, runtime.GOARCH)
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
