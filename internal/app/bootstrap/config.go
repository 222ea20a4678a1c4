// internal/app/bootstrap/config.go
package bootstrap

import (
	"fmt"
	"time"

	"github.com/dalemusser/interviewhub/internal/app/lifecycle"
	"github.com/dalemusser/interviewhub/internal/app/system/timeouts"
	"github.com/dalemusser/waffle/config"
	wafflemongo "github.com/dalemusser/waffle/pantry/mongo"
	"go.uber.org/zap"
)

// appConfigKeys defines the configuration keys for InterviewHub.
// These are loaded via WAFFLE's config system with support for:
//   - Config files: mongo_uri, generation_policy, etc.
//   - Environment variables: INTERVIEWHUB_MONGO_URI, INTERVIEWHUB_GENERATION_POLICY, etc.
//   - Command-line flags: --mongo_uri, --generation_policy, etc.
var appConfigKeys = []config.AppKey{
	{Name: "mongo_uri", Default: "mongodb://localhost:27017", Desc: "MongoDB connection URI"},
	{Name: "mongo_database", Default: "interview_hub", Desc: "MongoDB database name"},
	{Name: "mongo_max_pool_size", Default: 100, Desc: "MongoDB max connection pool size (default: 100)"},
	{Name: "mongo_min_pool_size", Default: 10, Desc: "MongoDB min connection pool size (default: 10)"},
	{Name: "session_key", Default: "dev-only-change-me-please-0123456789ABCDEF", Desc: "Session signing key (must be strong in production)"},
	{Name: "session_name", Default: "interviewhub-session", Desc: "Session cookie name"},
	{Name: "session_domain", Default: "", Desc: "Session cookie domain (blank means current host)"},
	{Name: "session_max_age", Default: "24h", Desc: "Session cookie lifetime"},
	{Name: "require_active_session", Default: false, Desc: "Refuse lifecycle calls whose session record is closed"},
	{Name: "session_inactive_after", Default: "2h", Desc: "Close session records idle this long"},

	// Pair lifecycle
	{Name: "generation_policy", Default: lifecycle.PolicyAdditive, Desc: "Generation with active pairs: 'additive' or 'reject'"},
	{Name: "generation_lease_ttl", Default: "30s", Desc: "Maximum time one generation run holds an event"},
	{Name: "negotiation_timeout", Default: "72h", Desc: "Unconverged proposals older than this return to pending"},
	{Name: "feedback_grace", Default: "168h", Desc: "How long after an event ends scheduled pairs wait for feedback"},
	{Name: "meeting_link_lead", Default: "1h", Desc: "How long before the meeting its link becomes visible"},
	{Name: "max_proposed_slots", Default: 10, Desc: "Maximum distinct slots in one proposal"},
	{Name: "pair_write_retries", Default: 5, Desc: "Retries for a pair write that lost a concurrent update"},
	{Name: "sweep_interval", Default: "1m", Desc: "Period of the proposal timeout, event-end, and link retry sweeps"},

	// Meeting links
	{Name: "meet_provider", Default: "jitsi", Desc: "Meeting link provider: 'jitsi' or 'google'"},
	{Name: "meet_base_url", Default: "", Desc: "Jitsi server URL (blank uses meet.jit.si)"},
	{Name: "google_credentials_file", Default: "", Desc: "Path to a Google service-account JSON key"},
	{Name: "google_calendar_id", Default: "primary", Desc: "Calendar that hosts meeting events"},

	// Audit logging settings
	{Name: "audit_log_pairs", Default: "all", Desc: "Pair event logging: 'all' (db+log), 'db', 'log', or 'off'"},
	{Name: "audit_log_roster", Default: "all", Desc: "Roster event logging: 'all' (db+log), 'db', 'log', or 'off'"},

	// Tracing
	{Name: "otel_endpoint", Default: "", Desc: "OTLP/HTTP trace endpoint (blank disables export)"},

	// Operation timeouts
	{Name: "timeout_short", Default: "5s", Desc: "Timeout for single-document reads and writes"},
	{Name: "timeout_medium", Default: "10s", Desc: "Timeout for list queries and per-pair operations"},
	{Name: "timeout_long", Default: "30s", Desc: "Timeout for pair generation and sweeps"},
}

// LoadConfig loads WAFFLE core config and app-specific config.
//
// WAFFLE's config.LoadWithAppConfig handles:
//   - Loading from .env files
//   - Loading from config.yaml/json/toml files
//   - Reading environment variables (WAFFLE_* for core, INTERVIEWHUB_* for app)
//   - Parsing command-line flags
//   - Merging with precedence: flags > env > files > defaults
func LoadConfig(logger *zap.Logger) (*config.CoreConfig, AppConfig, error) {
	coreCfg, appValues, err := config.LoadWithAppConfig(logger, "INTERVIEWHUB", appConfigKeys)
	if err != nil {
		return nil, AppConfig{}, err
	}

	appCfg := AppConfig{
		MongoURI:         appValues.String("mongo_uri"),
		MongoDatabase:    appValues.String("mongo_database"),
		MongoMaxPoolSize: uint64(appValues.Int("mongo_max_pool_size")),
		MongoMinPoolSize: uint64(appValues.Int("mongo_min_pool_size")),

		SessionKey:           appValues.String("session_key"),
		SessionName:          appValues.String("session_name"),
		SessionDomain:        appValues.String("session_domain"),
		SessionMaxAge:        appValues.Duration("session_max_age", 24*time.Hour),
		RequireActiveSession: appValues.Bool("require_active_session"),
		SessionInactiveAfter: appValues.Duration("session_inactive_after", 2*time.Hour),

		GenerationPolicy:   appValues.String("generation_policy"),
		GenerationLeaseTTL: appValues.Duration("generation_lease_ttl", 30*time.Second),
		NegotiationTimeout: appValues.Duration("negotiation_timeout", lifecycle.DefaultNegotiationTimeout),
		FeedbackGrace:      appValues.Duration("feedback_grace", lifecycle.DefaultFeedbackGrace),
		MeetingLinkLead:    appValues.Duration("meeting_link_lead", lifecycle.DefaultMeetingLinkLead),
		MaxProposedSlots:   appValues.Int("max_proposed_slots"),
		PairWriteRetries:   appValues.Int("pair_write_retries"),
		SweepInterval:      appValues.Duration("sweep_interval", time.Minute),

		MeetProvider:          appValues.String("meet_provider"),
		MeetBaseURL:           appValues.String("meet_base_url"),
		GoogleCredentialsFile: appValues.String("google_credentials_file"),
		GoogleCalendarID:      appValues.String("google_calendar_id"),

		AuditLogPairs:  appValues.String("audit_log_pairs"),
		AuditLogRoster: appValues.String("audit_log_roster"),

		OTelEndpoint: appValues.String("otel_endpoint"),

		TimeoutShort:  appValues.Duration("timeout_short", timeouts.DefaultShort),
		TimeoutMedium: appValues.Duration("timeout_medium", timeouts.DefaultMedium),
		TimeoutLong:   appValues.Duration("timeout_long", timeouts.DefaultLong),
	}

	return coreCfg, appCfg, nil
}

// ValidateConfig performs app-specific config validation.
//
// Return nil to accept the loaded config, or an error to abort startup.
// The MongoDB URI is checked here to catch configuration errors before
// attempting to connect.
func ValidateConfig(coreCfg *config.CoreConfig, appCfg AppConfig, logger *zap.Logger) error {
	if err := wafflemongo.ValidateURI(appCfg.MongoURI); err != nil {
		logger.Error("invalid MongoDB URI", zap.Error(err))
		return fmt.Errorf("invalid MongoDB URI: %w", err)
	}
	return validateApp(appCfg)
}

func validateApp(appCfg AppConfig) error {
	switch appCfg.GenerationPolicy {
	case lifecycle.PolicyAdditive, lifecycle.PolicyReject:
	default:
		return fmt.Errorf("generation_policy must be %q or %q, got %q",
			lifecycle.PolicyAdditive, lifecycle.PolicyReject, appCfg.GenerationPolicy)
	}

	switch appCfg.MeetProvider {
	case "jitsi":
	case "google":
		if appCfg.GoogleCredentialsFile == "" {
			return fmt.Errorf("meet_provider google requires google_credentials_file")
		}
	default:
		return fmt.Errorf("meet_provider must be jitsi or google, got %q", appCfg.MeetProvider)
	}

	durations := []struct {
		name string
		d    time.Duration
	}{
		{"session_max_age", appCfg.SessionMaxAge},
		{"session_inactive_after", appCfg.SessionInactiveAfter},
		{"generation_lease_ttl", appCfg.GenerationLeaseTTL},
		{"negotiation_timeout", appCfg.NegotiationTimeout},
		{"feedback_grace", appCfg.FeedbackGrace},
		{"meeting_link_lead", appCfg.MeetingLinkLead},
		{"sweep_interval", appCfg.SweepInterval},
		{"timeout_short", appCfg.TimeoutShort},
		{"timeout_medium", appCfg.TimeoutMedium},
		{"timeout_long", appCfg.TimeoutLong},
	}
	for _, d := range durations {
		if d.d <= 0 {
			return fmt.Errorf("%s must be positive, got %s", d.name, d.d)
		}
	}

	if appCfg.MaxProposedSlots < 1 {
		return fmt.Errorf("max_proposed_slots must be at least 1, got %d", appCfg.MaxProposedSlots)
	}
	if appCfg.PairWriteRetries < 1 {
		return fmt.Errorf("pair_write_retries must be at least 1, got %d", appCfg.PairWriteRetries)
	}
	for name, mode := range map[string]string{"audit_log_pairs": appCfg.AuditLogPairs, "audit_log_roster": appCfg.AuditLogRoster} {
		switch mode {
		case "all", "db", "log", "off":
		default:
			return fmt.Errorf("%s must be all, db, log, or off, got %q", name, mode)
		}
	}
	return nil
}
