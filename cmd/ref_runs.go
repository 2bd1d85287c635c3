package main

import (
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/Pooja-Y-P/lims-phase-2-sub000/internal/model"
	"github.com/Pooja-Y-P/lims-phase-2-sub000/internal/refimport"
)

var runsLimit int

var refRunsCmd = &cobra.Command{
	Use:   "runs",
	Short: "Show recent reference import runs",
	Long:  "Displays the import_runs audit log, newest first. A run without a finish time either failed or is still loading.",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := cfg.Validate("migrate"); err != nil {
			return err
		}

		ctx := cmd.Context()
		pool, err := refPool(ctx)
		if err != nil {
			return err
		}
		defer pool.Close()

		runs, err := refimport.NewRunLog(pool).ListRecent(ctx, runsLimit)
		if err != nil {
			return eris.Wrap(err, "list import runs")
		}

		if len(runs) == 0 {
			zap.L().Info("no import runs found, run 'ref import' to load a reference table")
			return nil
		}

		formatImportRuns(os.Stdout, runs)
		return nil
	},
}

func init() {
	refRunsCmd.Flags().IntVar(&runsLimit, "limit", 20, "Maximum runs to show")
	refCmd.AddCommand(refRunsCmd)
}

// formatImportRuns writes a tabular representation of import runs to w.
func formatImportRuns(out io.Writer, runs []model.ImportRun) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "ID\tTABLE\tSOURCE\tSTARTED\tDURATION\tROWS")
	_, _ = fmt.Fprintln(w, "--\t-----\t------\t-------\t--------\t----")

	for _, r := range runs {
		dur := "-"
		if r.FinishedAt != nil {
			d := r.FinishedAt.Sub(r.StartedAt).Round(time.Second)
			dur = d.String()
		}

		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%d\n",
			truncate(r.ID, 8),
			r.TableName,
			truncate(r.Source, 50),
			r.StartedAt.Format("2006-01-02 15:04"),
			dur,
			r.RowsLoaded,
		)
	}
	_ = w.Flush()
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max-3] + "..."
}
