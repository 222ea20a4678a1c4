// internal/app/bootstrap/appconfig.go
package bootstrap

import "time"

// AppConfig holds service-specific configuration for this WAFFLE app.
//
// WAFFLE's CoreConfig handles the framework-level settings (ports, TLS,
// logging, CORS, body limits). AppConfig carries everything the pair
// lifecycle needs: the Mongo connection, the session cookie shared with the
// identity service, lifecycle tuning, the meeting provider, and tracing.
type AppConfig struct {
	// MongoDB connection configuration
	MongoURI         string // MongoDB connection string (e.g., mongodb://localhost:27017)
	MongoDatabase    string // Database name within MongoDB
	MongoMaxPoolSize uint64
	MongoMinPoolSize uint64

	// Session cookie issued by the identity service
	SessionKey           string        // Secret key for signing session cookies (must be strong in production)
	SessionName          string        // Cookie name for sessions (default: interviewhub-session)
	SessionDomain        string        // Cookie domain (blank means current host)
	SessionMaxAge        time.Duration // Cookie lifetime
	RequireActiveSession bool          // Refuse lifecycle calls whose session record is closed
	SessionInactiveAfter time.Duration // Close session records idle this long

	// Pair lifecycle
	GenerationPolicy   string        // "additive" or "reject"
	GenerationLeaseTTL time.Duration // How long one generation run may hold an event
	NegotiationTimeout time.Duration // Proposals older than this return to pending
	FeedbackGrace      time.Duration // Scheduled pairs are abandoned this long after their event ends
	MeetingLinkLead    time.Duration // How long before the meeting its link becomes visible
	MaxProposedSlots   int
	PairWriteRetries   int
	SweepInterval      time.Duration // Period of the proposal, event-end, and link sweeps

	// Meeting links
	MeetProvider          string // "jitsi" or "google"
	MeetBaseURL           string // Jitsi server (jitsi only)
	GoogleCredentialsFile string // Service-account JSON key (google only)
	GoogleCalendarID      string

	// Audit logging: "all", "db", "log", or "off"
	AuditLogPairs  string
	AuditLogRoster string

	// OTLP/HTTP endpoint for traces; blank disables export
	OTelEndpoint string

	// Operation timeouts; zero keeps the defaults in system/timeouts
	TimeoutShort  time.Duration
	TimeoutMedium time.Duration
	TimeoutLong   time.Duration
}
