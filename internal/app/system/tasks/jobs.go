// internal/app/system/tasks/jobs.go
package tasks

import (
	"context"
	"time"

	"github.com/dalemusser/interviewhub/internal/app/store/sessions"
	"go.uber.org/zap"
)

// Sweeper is the part of the lifecycle engine the periodic jobs drive.
type Sweeper interface {
	ExpireStaleProposals(ctx context.Context) (int, error)
	AbandonEndedEvents(ctx context.Context) (int, error)
	RetryMissingLinks(ctx context.Context) (int, error)
}

// ProposalTimeoutJob returns proposals that never converged to pending.
func ProposalTimeoutJob(s Sweeper, logger *zap.Logger, interval time.Duration) Job {
	return Job{
		Name:     "proposal-timeout",
		Interval: interval,
		Run: func(ctx context.Context) error {
			n, err := s.ExpireStaleProposals(ctx)
			if n > 0 {
				logger.Info("expired stale proposals", zap.Int("count", n))
			}
			return err
		},
	}
}

// EventEndSweepJob abandons negotiating pairs of events that have ended, and
// scheduled pairs once the feedback grace has also passed.
func EventEndSweepJob(s Sweeper, logger *zap.Logger, interval time.Duration) Job {
	return Job{
		Name:     "event-end-sweep",
		Interval: interval,
		Run: func(ctx context.Context) error {
			n, err := s.AbandonEndedEvents(ctx)
			if n > 0 {
				logger.Info("abandoned pairs of ended events", zap.Int("count", n))
			}
			return err
		},
	}
}

// MeetingLinkRetryJob requeues scheduled pairs still missing a link.
func MeetingLinkRetryJob(s Sweeper, logger *zap.Logger, interval time.Duration) Job {
	return Job{
		Name:     "meeting-link-retry",
		Interval: interval,
		Run: func(ctx context.Context) error {
			n, err := s.RetryMissingLinks(ctx)
			if n > 0 {
				logger.Debug("requeued pairs missing meeting links", zap.Int("count", n))
			}
			return err
		},
	}
}

// InactiveSessionCleanupJob creates a job that closes sessions inactive for the given threshold.
// Unlike session expiration (which deletes), this marks sessions as ended for audit purposes.
func InactiveSessionCleanupJob(sessStore *sessions.Store, logger *zap.Logger, threshold time.Duration) Job {
	return Job{
		Name:     "inactive-session-cleanup",
		Interval: 1 * time.Minute, // Check every minute
		Run: func(ctx context.Context) error {
			count, err := sessStore.CloseInactive(ctx, threshold)
			if err != nil {
				return err
			}
			if count > 0 {
				logger.Info("closed inactive sessions",
					zap.Int64("count", count),
					zap.Duration("threshold", threshold))
			}
			return nil
		},
	}
}
