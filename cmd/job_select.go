package main

import (
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/Pooja-Y-P/lims-phase-2-sub000/internal/selector"
)

var (
	selectJobID int64
	selectEqpID int64
	selectDate  string
	selectLabs  []string
)

var jobSelectCmd = &cobra.Command{
	Use:   "select-standards",
	Short: "Select master standards and freeze the job snapshot",
	Long: `Rebuilds the traceability snapshot of a job: picks the narrowest active
torque-transducer ranges covering the device, one pressure range, and the
first valid master standard per range, then freezes their certificate data
into per-job snapshot rows.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		if err := cfg.Validate("job"); err != nil {
			return err
		}

		overrides, err := parseLabOverrides(selectLabs)
		if err != nil {
			return err
		}

		params := selector.Params{
			JobID:        selectJobID,
			InwardEqpID:  selectEqpID,
			LabOverrides: overrides,
		}
		if selectDate != "" {
			d, err := time.Parse("2006-01-02", selectDate)
			if err != nil {
				return eris.Wrapf(err, "parse --date %q", selectDate)
			}
			params.JobDate = d
		}

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		result, err := selector.New(st).Select(ctx, params)
		if err != nil {
			return eris.Wrap(err, "select standards")
		}

		return printJSON(result)
	},
}

func init() {
	jobSelectCmd.Flags().Int64Var(&selectJobID, "job", 0, "calibration job id (required)")
	jobSelectCmd.Flags().Int64Var(&selectEqpID, "eqp", 0, "inward equipment id (default from the job row)")
	jobSelectCmd.Flags().StringVar(&selectDate, "date", "", "job date YYYY-MM-DD (default from the job row)")
	jobSelectCmd.Flags().StringArrayVar(&selectLabs, "lab", nil, "traceability lab override, IDENTIFICATION=Lab Name (repeatable)")
	_ = jobSelectCmd.MarkFlagRequired("job")
	jobCmd.AddCommand(jobSelectCmd)
}
