package main

import (
	"strings"

	"github.com/rotisserie/eris"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
)

var jobCmd = &cobra.Command{
	Use:   "job",
	Short: "Calibration job operations",
	Long:  "Selects standards, records test data and computes uncertainty budgets for individual calibration jobs.",
}

func init() {
	rootCmd.AddCommand(jobCmd)
}

// parseDecimalList splits a comma-separated flag value into decimals.
func parseDecimalList(s string) ([]decimal.Decimal, error) {
	if strings.TrimSpace(s) == "" {
		return nil, nil
	}
	parts := strings.Split(s, ",")
	values := make([]decimal.Decimal, 0, len(parts))
	for _, p := range parts {
		d, err := decimal.NewFromString(strings.TrimSpace(p))
		if err != nil {
			return nil, eris.Wrapf(err, "parse %q", p)
		}
		values = append(values, d)
	}
	return values, nil
}

// parseLabOverrides turns repeated "IDENTIFICATION=Lab Name" pairs into the
// override map the selector consumes.
func parseLabOverrides(pairs []string) (map[string]string, error) {
	if len(pairs) == 0 {
		return nil, nil
	}
	overrides := make(map[string]string, len(pairs))
	for _, pair := range pairs {
		ident, lab, ok := strings.Cut(pair, "=")
		ident = strings.TrimSpace(ident)
		lab = strings.TrimSpace(lab)
		if !ok || ident == "" || lab == "" {
			return nil, eris.Errorf("invalid lab override %q, want IDENTIFICATION=Lab Name", pair)
		}
		overrides[ident] = lab
	}
	return overrides, nil
}
