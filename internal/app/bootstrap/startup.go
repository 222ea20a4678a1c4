// internal/app/bootstrap/startup.go
package bootstrap

import (
	"context"
	"fmt"

	"github.com/dalemusser/interviewhub/internal/app/lifecycle"
	"github.com/dalemusser/interviewhub/internal/app/lifecycle/roster"
	"github.com/dalemusser/interviewhub/internal/app/store/audit"
	"github.com/dalemusser/interviewhub/internal/app/store/sessions"
	"github.com/dalemusser/interviewhub/internal/app/system/auditlog"
	"github.com/dalemusser/interviewhub/internal/app/system/meetlink"
	"github.com/dalemusser/interviewhub/internal/app/system/ratelimit"
	"github.com/dalemusser/interviewhub/internal/app/system/tasks"
	"github.com/dalemusser/interviewhub/internal/app/system/timeouts"
	"github.com/dalemusser/interviewhub/internal/app/system/tracing"
	"github.com/dalemusser/interviewhub/internal/app/system/workers"
	"github.com/dalemusser/waffle/config"
	"go.uber.org/zap"
)

// Startup builds the roster, the lifecycle engine, the meeting link worker,
// and the background sweeps once the database is ready.
func Startup(ctx context.Context, coreCfg *config.CoreConfig, appCfg AppConfig, deps DBDeps, logger *zap.Logger) error {
	svc := deps.Services

	stopTracing, err := tracing.Setup(ctx, "interviewhub", appCfg.OTelEndpoint)
	if err != nil {
		return fmt.Errorf("tracing setup: %w", err)
	}
	svc.stopTracing = stopTracing

	provider, err := newProvider(ctx, appCfg)
	if err != nil {
		return err
	}
	svc.Provider = provider

	db := deps.MongoDatabase
	auditLog := auditlog.New(audit.New(db), logger, auditlog.Config{
		Pairs:  appCfg.AuditLogPairs,
		Roster: appCfg.AuditLogRoster,
	})

	svc.Sessions = sessions.New(db)
	svc.Roster = roster.New(db, auditLog, logger, roster.Config{LeaseTTL: appCfg.GenerationLeaseTTL})
	svc.Joins = ratelimit.NewJoinLimiter()
	svc.Links = workers.NewLinkProvisioner(provider, logger, workers.LinkProvisionerConfig{})

	var validator lifecycle.CallerValidator = lifecycle.AnyCaller{}
	if appCfg.RequireActiveSession {
		validator = lifecycle.NewSessionValidator(svc.Sessions)
	}

	svc.Engine = lifecycle.New(lifecycle.Deps{
		DB:       db,
		Roster:   svc.Roster,
		Sessions: validator,
		Links:    svc.Links,
		Audit:    auditLog,
		Log:      logger,
	}, lifecycle.Config{
		GenerationPolicy:   appCfg.GenerationPolicy,
		MaxProposedSlots:   appCfg.MaxProposedSlots,
		MeetingLinkLead:    appCfg.MeetingLinkLead,
		NegotiationTimeout: appCfg.NegotiationTimeout,
		FeedbackGrace:      appCfg.FeedbackGrace,
		PairWriteRetries:   appCfg.PairWriteRetries,
	})
	svc.Links.Start(svc.Engine)

	svc.Tasks = tasks.NewRunner(logger, backgroundJobs(appCfg, svc, logger)...)
	svc.Tasks.Start(context.WithoutCancel(ctx))

	t := timeouts.Current()
	logger.Info("pair lifecycle started",
		zap.String("generation_policy", appCfg.GenerationPolicy),
		zap.String("meet_provider", provider.Name()),
		zap.Bool("require_active_session", appCfg.RequireActiveSession),
		zap.Duration("sweep_interval", appCfg.SweepInterval),
		zap.Duration("timeout_medium", t.Medium),
		zap.Duration("timeout_long", t.Long))
	return nil
}

// backgroundJobs lists the periodic sweeps. Inactive sessions are closed
// only when calls are checked against them.
func backgroundJobs(appCfg AppConfig, svc *Services, logger *zap.Logger) []tasks.Job {
	jobs := []tasks.Job{
		tasks.ProposalTimeoutJob(svc.Engine, logger, appCfg.SweepInterval),
		tasks.EventEndSweepJob(svc.Engine, logger, appCfg.SweepInterval),
		tasks.MeetingLinkRetryJob(svc.Engine, logger, appCfg.SweepInterval),
	}
	if appCfg.RequireActiveSession {
		jobs = append(jobs, tasks.InactiveSessionCleanupJob(svc.Sessions, logger, appCfg.SessionInactiveAfter))
	}
	return jobs
}

func newProvider(ctx context.Context, appCfg AppConfig) (meetlink.Provisioner, error) {
	switch appCfg.MeetProvider {
	case "google":
		p, err := meetlink.NewGoogleFromCredentialsFile(ctx, appCfg.GoogleCredentialsFile, appCfg.GoogleCalendarID)
		if err != nil {
			return nil, fmt.Errorf("google meet provider: %w", err)
		}
		return p, nil
	default:
		return meetlink.NewJitsi(appCfg.MeetBaseURL), nil
	}
}
