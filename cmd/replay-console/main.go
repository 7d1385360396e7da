// main.go — replay-console entry point.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/replaydeck/replaydeck/internal/config"
)

var configPath string

func main() {
	root := &cobra.Command{
		Use:           "replay-console",
		Short:         "Record and replay browser interactions with multi-strategy element location",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&configPath, "config", "", "path to config.toml (default ~/.config/replaydeck/config.toml)")

	root.AddCommand(newServeCommand())
	root.AddCommand(newPlayCommand())
	root.AddCommand(newRunsCommand())
	root.AddCommand(newExportCommand())

	if err := root.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "replay-console: %v\n", err)
		os.Exit(1)
	}
}

func loadConfig() (*config.Config, error) {
	path := configPath
	if path == "" {
		defaultPath, err := config.DefaultConfigPath()
		if err != nil {
			return nil, err
		}
		path = defaultPath
	}
	return config.Load(path)
}
