// Package scheduler runs the background jobs that keep stored validity
// state consistent with wall-clock time: the daily cutoff expiry, the
// reconciliation sweep and the stats report.
package scheduler

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"token-vault/lifecycle"
	"token-vault/models"
	"token-vault/observability"
	"token-vault/repository"
	"token-vault/services"

	"github.com/google/uuid"
)

const (
	jobDailyExpiry = "daily_expiry"
	jobReconcile   = "reconcile"
	jobReport      = "report"
)

// Scheduler owns three independently timed jobs. Each run is
// crash-isolated: a panic or error in one run is logged and never
// prevents the next run of any job.
type Scheduler struct {
	repo              repository.RepositoryInterface
	cutoff            lifecycle.Cutoff
	reconcileInterval time.Duration
	reportOffset      time.Duration
	retry             services.RetryConfig
	now               func() time.Time

	wg      sync.WaitGroup
	running map[string]*atomic.Bool
}

// New creates a Scheduler. Start must be called to launch the jobs.
func New(repo repository.RepositoryInterface, cutoff lifecycle.Cutoff, reconcileInterval, reportOffset time.Duration) *Scheduler {
	return &Scheduler{
		repo:              repo,
		cutoff:            cutoff,
		reconcileInterval: reconcileInterval,
		reportOffset:      reportOffset,
		retry:             services.DefaultRetryConfig,
		now:               time.Now,
		running: map[string]*atomic.Bool{
			jobDailyExpiry: {},
			jobReconcile:   {},
			jobReport:      {},
		},
	}
}

// Start launches the three job loops. They stop when ctx is cancelled;
// Wait blocks until they have drained.
func (s *Scheduler) Start(ctx context.Context) {
	observability.Info("scheduler starting",
		"cutoff", fmt.Sprintf("%02d:%02d", s.cutoff.Hour, s.cutoff.Minute),
		"reconcile_interval", s.reconcileInterval,
		"report_offset", s.reportOffset)

	s.wg.Add(3)
	go s.dailyLoop(ctx)
	go s.reconcileLoop(ctx)
	go s.reportLoop(ctx)
}

// Wait blocks until all job loops have exited
func (s *Scheduler) Wait() {
	s.wg.Wait()
}

// dailyLoop fires the bulk expiry once at the cutoff time each day
func (s *Scheduler) dailyLoop(ctx context.Context) {
	defer s.wg.Done()

	for {
		next := s.cutoff.Next(s.now())
		select {
		case <-ctx.Done():
			return
		case <-time.After(next.Sub(s.now())):
			s.runJob(ctx, jobDailyExpiry, s.runDailyExpiry)
		}
	}
}

// reconcileLoop corrects overdue tokens on a fixed short interval
func (s *Scheduler) reconcileLoop(ctx context.Context) {
	defer s.wg.Done()

	ticker := time.NewTicker(s.reconcileInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.runJob(ctx, jobReconcile, s.runReconcile)
		}
	}
}

// reportLoop emits the daily stats summary after the cutoff job has run
func (s *Scheduler) reportLoop(ctx context.Context) {
	defer s.wg.Done()

	for {
		// Next occurrence of cutoff+offset strictly after now.
		now := s.now()
		next := s.cutoff.Next(now.Add(-s.reportOffset)).Add(s.reportOffset)
		select {
		case <-ctx.Done():
			return
		case <-time.After(next.Sub(now)):
			s.runJob(ctx, jobReport, s.runReport)
		}
	}
}

// runJob executes one job run with overlap prevention and panic
// isolation. If the previous run of the same job is still going, this
// run is skipped rather than stacked.
func (s *Scheduler) runJob(ctx context.Context, name string, fn func(context.Context) error) {
	guard := s.running[name]
	if !guard.CompareAndSwap(false, true) {
		observability.WithJob(name).Warn("previous run still in progress, skipping")
		observability.GetMetrics().RecordJobSkipped(name)
		return
	}
	defer guard.Store(false)

	log := observability.WithJob(name)
	start := time.Now()

	defer func() {
		if r := recover(); r != nil {
			log.Error("job panicked", "panic", r)
			observability.GetMetrics().RecordJobRun(name, time.Since(start), fmt.Errorf("panic: %v", r))
		}
	}()

	err := fn(ctx)
	observability.GetMetrics().RecordJobRun(name, time.Since(start), err)
	if err != nil {
		log.Error("job run failed", "error", err, "duration", time.Since(start))
		return
	}
	log.Debug("job run completed", "duration", time.Since(start))
}

// runDailyExpiry unconditionally expires every valid token and active
// account. This is the primary expiry trigger.
func (s *Scheduler) runDailyExpiry(ctx context.Context) error {
	result, err := s.expire(ctx, "daily", "token expired at daily cutoff (daily automatic expiry)", (*Scheduler).expireAll)
	if err != nil {
		return err
	}

	observability.WithJob(jobDailyExpiry).Info("daily expiry completed",
		"tokens_expired", result.TokensExpired,
		"accounts_updated", result.AccountsUpdated)
	return nil
}

// runReconcile corrects tokens whose expiry passed without the flag
// being cleared: clock drift, a missed cutoff run or a restart gap. It
// bounds the staleness window to one reconcile interval.
func (s *Scheduler) runReconcile(ctx context.Context) error {
	result, err := s.expire(ctx, "reconcile", "overdue token corrected by reconciliation", (*Scheduler).expireOverdue)
	if err != nil {
		return err
	}

	if result.TokensExpired > 0 {
		observability.WithJob(jobReconcile).Info("reconciliation corrected overdue tokens",
			"tokens_expired", result.TokensExpired,
			"accounts_updated", result.AccountsUpdated)
	}
	return nil
}

// runReport computes aggregate counts and emits them as a log line and
// as gauge updates. Read-only.
func (s *Scheduler) runReport(ctx context.Context) error {
	stats, err := s.repo.GetStats(ctx)
	if err != nil {
		return fmt.Errorf("failed to compute stats: %w", err)
	}

	observability.GetMetrics().SetVaultGauges(stats.Active, stats.Expired, stats.NeverAuthenticated, stats.ValidTokens)
	observability.WithJob(jobReport).Info("daily token stats",
		"total_accounts", stats.TotalAccounts,
		"active", stats.Active,
		"expired", stats.Expired,
		"never_authenticated", stats.NeverAuthenticated,
		"total_tokens", stats.TotalTokens,
		"valid_tokens", stats.ValidTokens)
	return nil
}

func (s *Scheduler) expireAll(ctx context.Context) (models.ExpireResult, []uuid.UUID, error) {
	result, ids, err := s.repo.ExpireAllValid(ctx)
	return result, ids, err
}

func (s *Scheduler) expireOverdue(ctx context.Context) (models.ExpireResult, []uuid.UUID, error) {
	result, ids, err := s.repo.ExpireOverdue(ctx, s.now())
	return result, ids, err
}

// expire runs a bulk expiry pass with retry (the updates are
// idempotent) and appends one audit entry per affected account.
func (s *Scheduler) expire(ctx context.Context, trigger, message string, pass func(*Scheduler, context.Context) (models.ExpireResult, []uuid.UUID, error)) (models.ExpireResult, error) {
	var result models.ExpireResult
	var accountIDs []uuid.UUID

	err := services.WithRetry(ctx, s.retry, func() error {
		var err error
		result, accountIDs, err = pass(s, ctx)
		return err
	})
	if err != nil {
		return result, err
	}

	for _, accountID := range accountIDs {
		entry := &models.AuditLog{
			AccountID: accountID,
			Event:     models.EventExpired,
			Message:   message,
			Metadata:  map[string]any{"reason": trigger},
		}
		if appendErr := s.repo.AppendAuditLog(ctx, entry); appendErr != nil {
			observability.Error("failed to append expiry audit log",
				"account_id", accountID,
				"error", appendErr)
		}
	}

	observability.GetMetrics().RecordTokensExpired(trigger, result.TokensExpired)
	return result, nil
}

// Stats returns current aggregate counts; callable on demand outside
// the scheduled report.
func (s *Scheduler) Stats(ctx context.Context) (*models.VaultStats, error) {
	return s.repo.GetStats(ctx)
}

// ForceExpireAll performs the daily cutoff transition synchronously.
// Administrative escape hatch; returns the affected counts.
func (s *Scheduler) ForceExpireAll(ctx context.Context) (models.ExpireResult, error) {
	result, err := s.expire(ctx, "forced", "token force-expired by administrator", (*Scheduler).expireAll)
	if err != nil {
		return result, err
	}

	observability.Info("force expiry completed",
		"tokens_expired", result.TokensExpired,
		"accounts_updated", result.AccountsUpdated)
	return result, nil
}
