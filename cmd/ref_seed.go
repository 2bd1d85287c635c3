package main

import (
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/Pooja-Y-P/lims-phase-2-sub000/internal/refimport"
)

var refSeedCmd = &cobra.Command{
	Use:   "seed-ttable",
	Short: "Seed the Student-t coverage factor table",
	Long:  "Writes the two-sided Student-t quantiles the budget engine uses to pick coverage factors. Re-running updates rows in place.",
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

		result, err := refimport.New(pool).SeedTTable(ctx)
		if err != nil {
			return eris.Wrap(err, "seed t-table")
		}

		return printJSON(result)
	},
}

func init() {
	refCmd.AddCommand(refSeedCmd)
}
