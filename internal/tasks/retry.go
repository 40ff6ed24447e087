package tasks

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/charmbracelet/log"
	"github.com/desertthunder/plsync/internal/metrics"
	"github.com/desertthunder/plsync/internal/reconcile"
	"github.com/desertthunder/plsync/internal/shared"
)

// Attempter runs one reconcile attempt.
type Attempter interface {
	Reconcile(ctx context.Context, req reconcile.Request) (*reconcile.Outcome, error)
}

// RetryPolicy bounds how often a failed cycle is repeated.
type RetryPolicy struct {
	MaxAttempts int
	Backoff     time.Duration
}

// PolicyFromConfig reads the policy from the reconcile section.
func PolicyFromConfig(cfg shared.ReconcileConfig) RetryPolicy {
	return RetryPolicy{MaxAttempts: cfg.MaxAttempts, Backoff: cfg.Backoff()}
}

// Retry repeats whole reconcile cycles until one succeeds, a failure is not retryable, or
// the policy is exhausted. It returns the number of attempts made.
//
// onAttempt, when set, is called before each attempt with its 1-based number.
func Retry(ctx context.Context, rec Attempter, req reconcile.Request, policy RetryPolicy, logger *log.Logger, onAttempt func(int)) (*reconcile.Outcome, int, error) {
	if policy.MaxAttempts <= 0 {
		policy.MaxAttempts = 1
	}
	if logger == nil {
		logger = log.Default()
	}
	logger = shared.WithLogger(logger, "owner", req.Key.Owner, "playlist_id", req.Key.PlaylistID)

	var (
		outcome  *reconcile.Outcome
		attempts int
	)
	op := func() error {
		attempts++
		if onAttempt != nil {
			onAttempt(attempts)
		}
		out, err := rec.Reconcile(ctx, req)
		if err == nil {
			outcome = out
			return nil
		}
		if !shared.IsRetryable(err) {
			return backoff.Permanent(err)
		}
		return err
	}

	b := backoff.WithContext(backoff.WithMaxRetries(backoff.NewConstantBackOff(policy.Backoff), uint64(policy.MaxAttempts-1)), ctx)
	notify := func(err error, wait time.Duration) {
		logger.Warn("reconcile attempt failed, retrying", "attempt", attempts, "max_attempts", policy.MaxAttempts, "retry_in", wait, "error", err)
	}

	err := backoff.RetryNotify(op, b, notify)
	switch {
	case err == nil:
		metrics.ReconcileTotal.WithLabelValues(metrics.ReconcileCompleted).Inc()
		return outcome, attempts, nil
	case errors.Is(err, shared.ErrReconcileInProgress):
		metrics.ReconcileTotal.WithLabelValues(metrics.ReconcileRejected).Inc()
		logger.Info("reconcile rejected, playlist busy", "attempt", attempts)
	default:
		metrics.ReconcileTotal.WithLabelValues(metrics.ReconcileFailed).Inc()
		logger.Error("reconcile failed", "attempt", attempts, "max_attempts", policy.MaxAttempts, "error", err)
	}
	return nil, attempts, err
}
