/*
Copyright © 2025 Valentyn Solomko <valentyn.solomko@gmail.com>

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/
package cmd

import (
	"context"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/valpere/gtrans/internal/store"
)

var runsLimit int

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "Inspect previous batch runs",
	Long: `List and inspect batch runs recorded in the database.

Every run started with --db gets an ID. Pass it to --resume to translate only
the files that did not complete.`,
}

var runsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List recent runs",
	RunE: func(cmd *cobra.Command, args []string) error {
		out := cmd.OutOrStdout()
		db, err := openStore()
		if err != nil {
			return err
		}
		defer db.Close()

		runs, err := db.ListRuns(context.Background(), runsLimit)
		if err != nil {
			return fmt.Errorf("failed to list runs: %w", err)
		}

		if len(runs) == 0 {
			fmt.Fprintln(out, "No runs recorded.")
			return nil
		}

		w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tSTARTED\tLANGS\tSTATUS\tOK\tCACHED\tSKIPPED\tFAILED\tINPUT")
		for _, r := range runs {
			fmt.Fprintf(w, "%s\t%s\t%s->%s\t%s\t%d\t%d\t%d\t%d\t%s\n",
				r.ID, r.CreatedAt.Format("2006-01-02 15:04"), r.SourceLang, r.TargetLang,
				r.Status, r.Translated, r.Cached, r.Skipped, r.Failed, r.SourceRoot)
		}
		return w.Flush()
	},
}

var runsShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Show a run and its failed files",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		out := cmd.OutOrStdout()
		db, err := openStore()
		if err != nil {
			return err
		}
		defer db.Close()

		ctx := context.Background()
		run, err := db.GetRun(ctx, args[0])
		if err != nil {
			return err
		}

		fmt.Fprintf(out, "Run:        %s\n", run.ID)
		fmt.Fprintf(out, "Status:     %s\n", run.Status)
		fmt.Fprintf(out, "Languages:  %s -> %s\n", run.SourceLang, run.TargetLang)
		fmt.Fprintf(out, "Input:      %s\n", run.SourceRoot)
		fmt.Fprintf(out, "Output:     %s\n", run.OutputRoot)
		if run.Extension != "" {
			fmt.Fprintf(out, "Extension:  %s\n", run.Extension)
		}
		fmt.Fprintf(out, "Started:    %s\n", run.CreatedAt.Format(time.RFC3339))
		if run.FinishedAt != nil {
			fmt.Fprintf(out, "Finished:   %s\n", run.FinishedAt.Format(time.RFC3339))
		}
		fmt.Fprintf(out, "Files:      %d translated, %d cached, %d skipped, %d failed\n",
			run.Translated, run.Cached, run.Skipped, run.Failed)

		failures, err := db.RunFailures(ctx, run.ID)
		if err != nil {
			return fmt.Errorf("failed to load failures: %w", err)
		}
		if len(failures) == 0 {
			return nil
		}

		fmt.Fprintln(out)
		w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "FILE\tSTAGE\tSERVICE\tERROR")
		for _, f := range failures {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", f.SourcePath, f.Stage, f.Service, snippet(f.Error, 80))
		}
		if err := w.Flush(); err != nil {
			return err
		}
		if run.Status != store.RunRunning {
			filter := ""
			if run.Extension != "" {
				filter = " -x " + run.Extension
			}
			fmt.Fprintf(out, "\nRetry with: gtrans %s %s -i %s -o %s%s --db <db> --resume %s\n",
				run.SourceLang, run.TargetLang, run.SourceRoot, run.OutputRoot, filter, run.ID)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(runsCmd)

	runsListCmd.Flags().IntVarP(&runsLimit, "limit", "n", 20, "Number of runs to show (0 = all)")

	runsCmd.AddCommand(runsListCmd)
	runsCmd.AddCommand(runsShowCmd)
}
