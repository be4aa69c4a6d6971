package payment

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"

	"spinwish/internal/logger"
)

const sweepBatchSize = 100

// SweepReport summarises one sweep run.
type SweepReport struct {
	Checked   int   `json:"checked"`
	Settled   int   `json:"settled"`
	TimedOut  int   `json:"timed_out"`
	Recovered int   `json:"recovered"`
	Errors    int   `json:"errors"`
	Collected int64 `json:"collected"`
}

// Sweeper is the fallback for callbacks that never arrive. It queries
// the gateway for stale sessions, times out expired ones, writes records
// that settlement failed to persist and deletes processed sessions past
// retention.
type Sweeper struct {
	reconciler   *Reconciler
	sessions     SessionRepository
	queryTimeout time.Duration
	retention    time.Duration
	now          func() time.Time
}

func NewSweeper(reconciler *Reconciler, sessions SessionRepository, queryTimeout, retention time.Duration) *Sweeper {
	return &Sweeper{
		reconciler:   reconciler,
		sessions:     sessions,
		queryTimeout: queryTimeout,
		retention:    retention,
		now:          time.Now,
	}
}

func (s *Sweeper) Sweep(ctx context.Context) (SweepReport, error) {
	var report SweepReport
	now := s.now()

	stale, err := s.sessions.ListUnprocessedBefore(ctx, now.Add(-s.queryTimeout), sweepBatchSize)
	if err != nil {
		return report, err
	}

	for _, ps := range stale {
		report.Checked++

		res, err := s.reconciler.gateway.QueryStatus(ctx, ps.CorrelationID)
		if err == nil && !res.Pending {
			if res.CorrelationID == "" {
				res.CorrelationID = ps.CorrelationID
			}
			if err := s.reconciler.Reconcile(ctx, res, "sweep"); err != nil {
				report.Errors++
				logger.Error("sweep reconcile failed", "correlation_id", ps.CorrelationID, "error", err)
				continue
			}
			report.Settled++
			continue
		}
		if err != nil {
			logger.Warn("sweep status query failed", "correlation_id", ps.CorrelationID, "error", err)
		}

		if now.After(ps.ExpiresAt) {
			timeout := &StatusResult{
				CorrelationID: ps.CorrelationID,
				ResultCode:    ResultTimeout,
				ResultDesc:    "No response from payer before expiry",
			}
			if err := s.reconciler.Reconcile(ctx, timeout, "expiry"); err != nil {
				report.Errors++
				logger.Error("sweep timeout failed", "correlation_id", ps.CorrelationID, "error", err)
				continue
			}
			report.TimedOut++
		}
	}

	unrecorded, err := s.sessions.ListUnrecordedBefore(ctx, now.Add(-s.queryTimeout), sweepBatchSize)
	if err != nil {
		return report, err
	}
	for i := range unrecorded {
		written, err := s.reconciler.RecoverRecord(ctx, &unrecorded[i])
		if err != nil {
			report.Errors++
			logger.Error("sweep record recovery failed", "correlation_id", unrecorded[i].CorrelationID, "error", err)
			continue
		}
		if written {
			report.Recovered++
		}
	}

	collected, err := s.sessions.DeleteProcessedBefore(ctx, now.Add(-s.retention))
	if err != nil {
		return report, err
	}
	report.Collected = collected

	if report.Checked > 0 || report.Recovered > 0 || report.Collected > 0 {
		logger.Info("payment sweep finished",
			"checked", report.Checked,
			"settled", report.Settled,
			"timed_out", report.TimedOut,
			"recovered", report.Recovered,
			"errors", report.Errors,
			"collected", report.Collected,
		)
	} else {
		logger.Debug("payment sweep idle")
	}
	return report, nil
}

// Schedule registers the sweep on c. Each run is bounded by the query
// timeout so a hung gateway cannot stack runs.
func (s *Sweeper) Schedule(ctx context.Context, c *cron.Cron, spec string) (cron.EntryID, error) {
	return c.AddFunc(spec, func() {
		runCtx, cancel := context.WithTimeout(ctx, s.queryTimeout)
		defer cancel()
		if _, err := s.Sweep(runCtx); err != nil {
			logger.Error("payment sweep failed", "error", err)
		}
	})
}
