package cli

import (
	"fmt"
	"log/slog"
	"slices"
	"strings"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"golang.org/x/exp/maps"

	"pcmtone.click/internal/history"
)

// newHistoryCommand creates the history command
func newHistoryCommand() *cobra.Command {
	var filter history.QueryFilter

	historyCmd := &cobra.Command{
		Use:   "history",
		Short: "Show recent playback runs",
		Long: `Show recent play and render runs from the local history database,
newest first, followed by a summary of failures by negotiation stage.

Examples:
  pcmtone history                      # Last 20 runs
  pcmtone history --preset today
  pcmtone history --since "3 days ago" --failed
  pcmtone history --device plughw:0,0 --limit 5`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runHistory(cmd, filter)
		},
	}

	historyCmd.Flags().StringVar(&filter.DatePreset, "preset", "", "Date preset (today, yesterday, week, last-week, month, last-month, all)")
	historyCmd.Flags().StringVar(&filter.Since, "since", "", `Natural language lower bound, e.g. "yesterday" or "2 hours ago"`)
	historyCmd.Flags().StringVar(&filter.Device, "device", "", "Only runs on this device")
	historyCmd.Flags().StringVar(&filter.Command, "command", "", "Only runs of this command (play, render)")
	historyCmd.Flags().BoolVar(&filter.FailedOnly, "failed", false, "Only failed runs")
	historyCmd.Flags().IntVar(&filter.Limit, "limit", history.DefaultLimit, "Maximum number of runs to show")

	return historyCmd
}

func runHistory(cmd *cobra.Command, filter history.QueryFilter) error {
	cli, err := cliFromContext(cmd.Context())
	if err != nil {
		return err
	}

	cfg, err := cli.loadConfig(cmd)
	if err != nil {
		return err
	}
	slog.Debug("running history command",
		"preset", filter.DatePreset,
		"since", filter.Since,
		"device", filter.Device,
		"failed_only", filter.FailedOnly,
		"limit", filter.Limit)

	var dbPath string
	if cfg.History != nil {
		dbPath = cfg.History.DatabasePath
	}
	dbPath = cli.configManager.ResolveHistoryPath(dbPath)

	out := cmd.OutOrStdout()
	if exists, _ := afero.Exists(afero.NewOsFs(), dbPath); !exists {
		fmt.Fprintln(out, "No playback history recorded yet")
		return nil
	}

	db, err := history.OpenDatabase(dbPath)
	if err != nil {
		return fmt.Errorf("failed to open history database: %w", err)
	}
	defer db.Close()

	now := cli.now()
	runs, err := history.ListRuns(cmd.Context(), db, filter, now)
	if err != nil {
		return err
	}
	summary, err := history.Summarize(cmd.Context(), db, filter, now)
	if err != nil {
		return err
	}

	if len(runs) == 0 {
		fmt.Fprintln(out, "No runs match the given filters")
		return nil
	}

	for _, run := range runs {
		fmt.Fprintln(out, run.String())
	}

	fmt.Fprintf(out, "\n%d runs, %d failed, %d frames written, %d devices\n",
		summary.Total, summary.Failed, summary.FramesWritten, summary.Devices)
	if len(summary.FailedStages) > 0 {
		var parts []string
		stages := maps.Keys(summary.FailedStages)
		slices.Sort(stages)
		for _, stage := range stages {
			parts = append(parts, fmt.Sprintf("%s=%d", stage, summary.FailedStages[stage]))
		}
		fmt.Fprintf(out, "failures by stage: %s\n", strings.Join(parts, " "))
	}
	return nil
}
