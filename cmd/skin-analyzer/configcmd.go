package main

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/menta2k/skin-analyzer/internal/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Inspect or create configuration files",
}

var configInitCmd = &cobra.Command{
	Use:   "init [path]",
	Short: "Write the default configuration",
	Args:  cobra.MaximumNArgs(1),
	// Skip config loading; the file may not exist yet
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error { return nil },
	RunE: func(cmd *cobra.Command, args []string) error {
		path := filepath.Join(config.DefaultDir(), "config.yaml")
		if len(args) == 1 {
			path = args[0]
		}
		if err := config.WriteDefault(path); err != nil {
			return err
		}
		fmt.Println("Wrote", path)
		return nil
	},
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective configuration file and backend",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := loader.Config()
		file := loader.File()
		if file == "" {
			file = "(defaults and environment)"
		}
		fmt.Printf("file:      %s\n", file)
		fmt.Printf("backend:   %s\n", cfg.Backend.Kind)
		fmt.Printf("mock api:  %t\n", cfg.Analysis.EnableMockAPI)
		fmt.Printf("camera:    %s\n", cfg.Capture.Camera.Kind)
		fmt.Printf("history:   %s\n", cfg.Database.Driver)
		fmt.Printf("mqtt:      %t\n", cfg.MQTT.Enabled)
		return nil
	},
}

func init() {
	configCmd.AddCommand(configInitCmd, configShowCmd)
	rootCmd.AddCommand(configCmd)
}
