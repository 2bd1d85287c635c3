package main

import (
	"context"
	"sync/atomic"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/Pooja-Y-P/lims-phase-2-sub000/internal/budget"
	"github.com/Pooja-Y-P/lims-phase-2-sub000/internal/model"
	"github.com/Pooja-Y-P/lims-phase-2-sub000/internal/store"
)

var (
	budgetAllStatus string
	budgetAllLimit  int
)

var jobBudgetAllCmd = &cobra.Command{
	Use:   "compute-budgets",
	Short: "Compute uncertainty budgets for every job in a status",
	Long: `Runs the budget engine over all jobs in the given lifecycle status.
Jobs are processed concurrently; per-job serialization still holds, so a
job being recomputed elsewhere simply waits its turn.`,
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

		jobs, err := st.ListJobs(ctx, store.JobFilter{
			Status: model.JobStatus(budgetAllStatus),
			Limit:  budgetAllLimit,
		})
		if err != nil {
			return eris.Wrap(err, "list jobs")
		}

		engine := budget.New(st)
		return processJobs(ctx, jobs, cfg.Batch.MaxConcurrentJobs, engine.Compute)
	},
}

func init() {
	jobBudgetAllCmd.Flags().StringVar(&budgetAllStatus, "status", string(model.JobStatusSelected), "lifecycle status to process")
	jobBudgetAllCmd.Flags().IntVar(&budgetAllLimit, "limit", 100, "max number of jobs to process")
	jobCmd.AddCommand(jobBudgetAllCmd)
}

// computeFunc is the callback signature for computing one job's budget.
type computeFunc func(ctx context.Context, jobID int64) (*budget.Result, error)

// processJobs computes budgets concurrently. Individual job failures are
// logged and counted without aborting the batch.
func processJobs(ctx context.Context, jobs []model.CalibrationJob, concurrency int, compute computeFunc) error {
	if len(jobs) == 0 {
		zap.L().Info("no jobs to process")
		return nil
	}

	zap.L().Info("processing batch",
		zap.Int("jobs", len(jobs)),
		zap.Int("concurrency", concurrency),
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)

	var succeeded, failed atomic.Int64

	for _, job := range jobs {
		g.Go(func() error {
			log := zap.L().With(zap.Int64("job_id", job.ID))

			result, err := compute(gctx, job.ID)
			if err != nil {
				failed.Add(1)
				log.Error("budget computation failed", zap.Error(err))
				return nil // don't abort batch on individual failure
			}

			succeeded.Add(1)
			log.Info("budget computed",
				zap.Int("steps", result.StepsCalculated),
				zap.Ints("skipped", result.StepsSkipped),
			)
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return eris.Wrap(err, "batch processing")
	}

	zap.L().Info("batch complete",
		zap.Int64("succeeded", succeeded.Load()),
		zap.Int64("failed", failed.Load()),
	)
	return nil
}
