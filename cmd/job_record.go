package main

import (
	"github.com/rotisserie/eris"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"github.com/Pooja-Y-P/lims-phase-2-sub000/internal/model"
	"github.com/Pooja-Y-P/lims-phase-2-sub000/internal/readings"
)

var (
	repeatJobID        int64
	repeatStep         int
	repeatSetPressure  string
	repeatSetTorque    string
	repeatCorrectedStd string
	repeatReadings     string
)

var jobRecordRepeatCmd = &cobra.Command{
	Use:   "record-repeatability",
	Short: "Record the five gauge readings of one tested step",
	Long: `Stores the raw readings of a step together with the derived mean,
corrected mean, deviation and repeatability error. Recording the same
(job, step) again replaces the previous record.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		if err := cfg.Validate("job"); err != nil {
			return err
		}

		in := readings.RepeatabilityInput{
			JobID:       repeatJobID,
			StepPercent: repeatStep,
		}
		var err error
		if in.SetPressure, err = decimal.NewFromString(repeatSetPressure); err != nil {
			return eris.Wrapf(err, "parse --set-pressure %q", repeatSetPressure)
		}
		if in.SetTorque, err = decimal.NewFromString(repeatSetTorque); err != nil {
			return eris.Wrapf(err, "parse --set-torque %q", repeatSetTorque)
		}
		if repeatCorrectedStd != "" {
			if in.CorrectedStandard, err = decimal.NewFromString(repeatCorrectedStd); err != nil {
				return eris.Wrapf(err, "parse --corrected-standard %q", repeatCorrectedStd)
			}
		}
		if in.Readings, err = parseDecimalList(repeatReadings); err != nil {
			return eris.Wrap(err, "parse --readings")
		}

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		rec, err := readings.NewRecorder(st).RecordRepeatability(ctx, in)
		if err != nil {
			return eris.Wrap(err, "record repeatability")
		}

		return printJSON(rec)
	},
}

var (
	variationJobID        int64
	variationFamily       string
	variationTargetTorque string
	variationObservations string
)

var jobRecordVariationCmd = &cobra.Command{
	Use:   "record-variation",
	Short: "Record a geometric or sequence variation test",
	Long: `Reduces the observed torques of one variation test to their max-minus-min
error and appends the record. The budget engine uses the latest record per
family: reproducibility, output_drive, drive_interface or loading_point.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		if err := cfg.Validate("job"); err != nil {
			return err
		}

		in := readings.VariationInput{
			JobID:  variationJobID,
			Family: model.VariationFamily(variationFamily),
		}
		var err error
		if variationTargetTorque != "" {
			if in.TargetTorque, err = decimal.NewFromString(variationTargetTorque); err != nil {
				return eris.Wrapf(err, "parse --target-torque %q", variationTargetTorque)
			}
		}
		if in.Observations, err = parseDecimalList(variationObservations); err != nil {
			return eris.Wrap(err, "parse --observations")
		}

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		rec, err := readings.NewRecorder(st).RecordVariation(ctx, in)
		if err != nil {
			return eris.Wrap(err, "record variation")
		}

		return printJSON(rec)
	},
}

func init() {
	jobRecordRepeatCmd.Flags().Int64Var(&repeatJobID, "job", 0, "calibration job id (required)")
	jobRecordRepeatCmd.Flags().IntVar(&repeatStep, "step", 0, "step percent: 20, 60 or 100 (required)")
	jobRecordRepeatCmd.Flags().StringVar(&repeatSetPressure, "set-pressure", "0", "set pressure at this step")
	jobRecordRepeatCmd.Flags().StringVar(&repeatSetTorque, "set-torque", "0", "set torque at this step")
	jobRecordRepeatCmd.Flags().StringVar(&repeatCorrectedStd, "corrected-standard", "", "certificate value of the standard at this step (default set torque)")
	jobRecordRepeatCmd.Flags().StringVar(&repeatReadings, "readings", "", "five comma-separated gauge readings (required)")
	_ = jobRecordRepeatCmd.MarkFlagRequired("job")
	_ = jobRecordRepeatCmd.MarkFlagRequired("step")
	_ = jobRecordRepeatCmd.MarkFlagRequired("readings")
	jobCmd.AddCommand(jobRecordRepeatCmd)

	jobRecordVariationCmd.Flags().Int64Var(&variationJobID, "job", 0, "calibration job id (required)")
	jobRecordVariationCmd.Flags().StringVar(&variationFamily, "family", "", "variation family (required)")
	jobRecordVariationCmd.Flags().StringVar(&variationTargetTorque, "target-torque", "", "target torque of the test")
	jobRecordVariationCmd.Flags().StringVar(&variationObservations, "observations", "", "comma-separated observed torques (required)")
	_ = jobRecordVariationCmd.MarkFlagRequired("job")
	_ = jobRecordVariationCmd.MarkFlagRequired("family")
	_ = jobRecordVariationCmd.MarkFlagRequired("observations")
	jobCmd.AddCommand(jobRecordVariationCmd)
}
