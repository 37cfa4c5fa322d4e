package main

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/pevans/civicfetch/store"
)

func newHistoryCommand(deps *commandDeps, flags *scrapeFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show past scrape runs",
		Long: `Show scrape runs recorded in the run history database.

Examples:
  # The ten most recent runs
  civicfetch history list --limit 10

  # One run with its meetings and files
  civicfetch history show 1b4e28ba-2fa1-11d2-883f-0016d3cca427`,
	}

	cmd.AddCommand(newHistoryListCommand(deps, flags))
	cmd.AddCommand(newHistoryShowCommand(deps, flags))
	return cmd
}

func newHistoryListCommand(deps *commandDeps, flags *scrapeFlags) *cobra.Command {
	var limit int
	var output string

	cmd := &cobra.Command{
		Use:     "list",
		Short:   "List recorded runs, newest first",
		Aliases: []string{"ls"},
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			runs, err := openHistory(cmd, deps, flags)
			if err != nil {
				return err
			}
			defer runs.Close()

			list, err := runs.ListRuns(limit)
			if err != nil {
				return err
			}

			if output == outputJSON {
				return writeJSON(cmd.OutOrStdout(), map[string]any{"runs": list, "total": len(list)})
			}
			printRunsTable(cmd.OutOrStdout(), list)
			return nil
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "l", 20, "Maximum number of runs (0 = all)")
	cmd.Flags().StringVarP(&output, "output", "o", outputText, "Output format: text, json")
	return cmd
}

func newHistoryShowCommand(deps *commandDeps, flags *scrapeFlags) *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:   "show <run-id>",
		Short: "Show one run with its meetings and files",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := uuid.Parse(args[0])
			if err != nil {
				return fmt.Errorf("invalid run ID: %w", err)
			}

			runs, err := openHistory(cmd, deps, flags)
			if err != nil {
				return err
			}
			defer runs.Close()

			run, err := runs.GetRun(id)
			if errors.Is(err, store.ErrRunNotFound) {
				return fmt.Errorf("run %s not found", id)
			}
			if err != nil {
				return err
			}

			if output == outputJSON {
				return writeJSON(cmd.OutOrStdout(), run)
			}
			printRunDetail(cmd.OutOrStdout(), run)
			return nil
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", outputText, "Output format: text, json")
	return cmd
}

func openHistory(cmd *cobra.Command, deps *commandDeps, flags *scrapeFlags) (*store.RunStore, error) {
	cfg, err := loadConfig(cmd, deps, flags)
	if err != nil {
		return nil, err
	}
	runs, err := deps.OpenStore(cfg.Store.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to open run history: %w", err)
	}
	return runs, nil
}
