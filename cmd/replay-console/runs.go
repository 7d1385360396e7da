// runs.go — Recent run summaries as a table.
package main

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/replaydeck/replaydeck/internal/telemetry"
)

func newRunsCommand() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "runs",
		Short: "List recent playback runs",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			store, err := telemetry.OpenStore(filepath.Join(cfg.DataDir, "telemetry.db"))
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			runs, err := store.ListRuns(cmd.Context(), limit)
			if err != nil {
				return err
			}
			if len(runs) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "no runs recorded yet")
				return nil
			}

			t := table.NewWriter()
			t.SetOutputMirror(cmd.OutOrStdout())
			t.AppendHeader(table.Row{"Run", "Started", "Duration", "Pass", "Fail", "Top strategy"})
			for _, run := range runs {
				t.AppendRow(table.Row{
					shortID(run.RunID),
					run.StartedAt.Local().Format("2006-01-02 15:04:05"),
					run.EndedAt.Sub(run.StartedAt).Round(time.Millisecond),
					run.PassCount,
					run.FailCount,
					topStrategy(run.StrategyUsage),
				})
			}
			t.Render()
			return nil
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 20, "maximum runs to list")
	return cmd
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func topStrategy(usage map[string]int) string {
	best, count := "-", 0
	for strategy, n := range usage {
		if n > count {
			best, count = strategy, n
		}
	}
	return best
}
