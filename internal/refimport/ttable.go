package refimport

import (
	"context"
	"strconv"

	"github.com/shopspring/decimal"
	"gonum.org/v1/gonum/stat/distuv"

	"github.com/Pooja-Y-P/lims-phase-2-sub000/internal/db"
)

// TTableAlpha is the two-sided significance level the budget engine looks
// coverage factors up at: 95.45 % coverage, the 2-sigma level.
const TTableAlpha = "0.0455"

// maxSeededDOF matches the engine's table-lookup cutoff; above it the engine
// falls back to k = 2.000 without consulting the table.
const maxSeededDOF = 100

// TFactors returns {dof, alpha, factor} rows for dof 1..100 at TTableAlpha.
// Factors come from the Student-t quantile at 1 - alpha/2, rounded to 3
// decimal places.
func TFactors() [][]any {
	alpha, _ := strconv.ParseFloat(TTableAlpha, 64)
	p := 1 - alpha/2

	rows := make([][]any, 0, maxSeededDOF)
	for dof := 1; dof <= maxSeededDOF; dof++ {
		dist := distuv.StudentsT{Mu: 0, Sigma: 1, Nu: float64(dof)}
		k := decimal.NewFromFloat(dist.Quantile(p)).Round(3)
		rows = append(rows, []any{int64(dof), alpha, k.InexactFloat64()})
	}
	return rows
}

// SeedTTable writes the Student-t factor table the budget engine reads.
// Existing rows update in place, so re-seeding is safe.
func (im *Importer) SeedTTable(ctx context.Context) (*RunResult, error) {
	const table = "t_distribution"
	const source = "computed: student-t quantiles at alpha " + TTableAlpha

	runID, err := im.runs.Start(ctx, table, source)
	if err != nil {
		return nil, err
	}

	n, err := db.BulkUpsert(ctx, im.pool, db.UpsertConfig{
		Table:        table,
		Columns:      []string{"degrees_of_freedom", "alpha", "factor"},
		ConflictKeys: []string{"degrees_of_freedom", "alpha"},
	}, TFactors())
	if err != nil {
		return nil, err
	}

	if err := im.runs.Finish(ctx, runID, n); err != nil {
		return nil, err
	}

	return &RunResult{RunID: runID, Table: table, Source: source, RowsLoaded: n}, nil
}
