package main

import (
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/Pooja-Y-P/lims-phase-2-sub000/internal/budget"
)

var budgetJobID int64

var jobBudgetCmd = &cobra.Command{
	Use:   "compute-budget",
	Short: "Compute the uncertainty budget for a single job",
	Long: `Recomputes the per-step measurement uncertainty budget of a job from its
repeatability records, variation records and frozen standard snapshot.
Existing budget rows for the job are replaced in one transaction.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		if err := cfg.Validate("job"); err != nil {
			return err
		}

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		result, err := budget.New(st).Compute(ctx, budgetJobID)
		if err != nil {
			return eris.Wrap(err, "compute budget")
		}

		return printJSON(result)
	},
}

func init() {
	jobBudgetCmd.Flags().Int64Var(&budgetJobID, "job", 0, "calibration job id (required)")
	_ = jobBudgetCmd.MarkFlagRequired("job")
	jobCmd.AddCommand(jobBudgetCmd)
}
