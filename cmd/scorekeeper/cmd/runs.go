package cmd

import (
	"encoding/json"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/solatis/scorekeeper/internal/core/db"
	"github.com/solatis/scorekeeper/internal/types"
)

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "Inspect recorded evaluation runs",
}

var runsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List the most recent runs, newest first",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")

		database, queries, err := openStore()
		if err != nil {
			return err
		}
		defer database.Close()

		runs, err := db.NewRunStore(queries).ListRuns(cmd.Context(), limit)
		if err != nil {
			return err
		}

		tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "RUN ID\tCREATED\tCLIENT\tDURATION\tRESULT")
		for _, r := range runs {
			result := "ok"
			if r.Error.Valid {
				result = r.Error.String
			}
			client := r.ClientID
			if client == "" {
				client = "-"
			}
			fmt.Fprintf(tw, "%s\t%s\t%s\t%dms\t%s\n",
				r.RunID, r.CreatedAt.Format(time.RFC3339), client, r.DurationMs, result)
		}
		return tw.Flush()
	},
}

var runsShowCmd = &cobra.Command{
	Use:   "show <run_id>",
	Short: "Print one run as JSON",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := types.ParseRunID(args[0])
		if err != nil {
			return fmt.Errorf("invalid run id %q: %w", args[0], err)
		}

		database, queries, err := openStore()
		if err != nil {
			return err
		}
		defer database.Close()

		run, err := db.NewRunStore(queries).GetRun(cmd.Context(), id)
		if err != nil {
			return err
		}
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(run)
	},
}

func init() {
	rootCmd.AddCommand(runsCmd)
	runsCmd.AddCommand(runsListCmd, runsShowCmd)
	runsListCmd.Flags().Int("limit", db.DefaultListLimit, "maximum number of runs")
}
