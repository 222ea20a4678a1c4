// internal/app/system/auditlog/logger.go
package auditlog

import (
	"context"
	"strconv"
	"time"

	"github.com/dalemusser/interviewhub/internal/app/store/audit"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
)

// Config holds audit logging configuration.
type Config struct {
	// Pairs controls logging for pair lifecycle events (generation, negotiation, feedback).
	// Values: "all" (MongoDB + zap), "db" (MongoDB only), "log" (zap only), "off" (disabled)
	Pairs string
	// Roster controls logging for event and participant changes.
	// Values: "all" (MongoDB + zap), "db" (MongoDB only), "log" (zap only), "off" (disabled)
	Roster string
}

// Logger provides convenience methods for logging audit events.
// It logs to both MongoDB (via audit.Store) and structured logs (via zap).
type Logger struct {
	store  *audit.Store
	zapLog *zap.Logger
	config Config
}

// New creates a new audit Logger.
func New(store *audit.Store, zapLog *zap.Logger, config Config) *Logger {
	return &Logger{
		store:  store,
		zapLog: zapLog,
		config: config,
	}
}

// logToZap logs the event to zap with consistent structure.
func (l *Logger) logToZap(event audit.Event) {
	fields := []zap.Field{
		zap.Bool("audit", true),
		zap.String("category", event.Category),
		zap.String("event_type", event.EventType),
		zap.Bool("success", event.Success),
	}

	if event.EventID != nil {
		fields = append(fields, zap.String("event_id", event.EventID.Hex()))
	}
	if event.PairID != nil {
		fields = append(fields, zap.String("pair_id", event.PairID.Hex()))
	}
	if event.UserID != nil {
		fields = append(fields, zap.String("user_id", event.UserID.Hex()))
	}
	if event.ActorID != nil {
		fields = append(fields, zap.String("actor_id", event.ActorID.Hex()))
	}
	if event.FailureReason != "" {
		fields = append(fields, zap.String("failure_reason", event.FailureReason))
	}
	for k, v := range event.Details {
		fields = append(fields, zap.String("detail_"+k, v))
	}

	if event.Success {
		l.zapLog.Info("audit event", fields...)
	} else {
		l.zapLog.Warn("audit event", fields...)
	}
}

// Log records an audit event based on configuration.
// If the logger is nil, this is a no-op (allows tests to use nil audit logger).
// Logging destination is controlled by config: "all", "db", "log", or "off".
func (l *Logger) Log(ctx context.Context, event audit.Event) {
	if l == nil {
		return
	}

	var setting string
	switch event.Category {
	case audit.CategoryPairs:
		setting = l.config.Pairs
	case audit.CategoryRoster:
		setting = l.config.Roster
	default:
		setting = "all"
	}

	if setting == "off" {
		return
	}

	if setting == "all" || setting == "log" {
		l.logToZap(event)
	}

	if (setting == "all" || setting == "db") && l.store != nil {
		if err := l.store.Log(ctx, event); err != nil {
			l.zapLog.Error("failed to store audit event",
				zap.Error(err),
				zap.String("event_type", event.EventType),
			)
		}
	}
}

// --- Pair lifecycle events ---

// PairsGenerated logs one generation run.
func (l *Logger) PairsGenerated(ctx context.Context, actorID, eventID primitive.ObjectID, roundID string, created int, unpaired *primitive.ObjectID) {
	details := map[string]string{
		"round_id": roundID,
		"created":  strconv.Itoa(created),
	}
	if unpaired != nil {
		details["unpaired_user_id"] = unpaired.Hex()
	}
	l.Log(ctx, audit.Event{
		Category:  audit.CategoryPairs,
		EventType: audit.EventPairsGenerated,
		EventID:   &eventID,
		ActorID:   &actorID,
		Success:   true,
		Details:   details,
	})
}

// SlotsProposed logs an interviewer's proposal.
func (l *Logger) SlotsProposed(ctx context.Context, actorID, eventID, pairID primitive.ObjectID, slotCount int) {
	l.Log(ctx, audit.Event{
		Category:  audit.CategoryPairs,
		EventType: audit.EventSlotsProposed,
		EventID:   &eventID,
		PairID:    &pairID,
		ActorID:   &actorID,
		Success:   true,
		Details:   map[string]string{"slot_count": strconv.Itoa(slotCount)},
	})
}

// SlotVoted logs a vote. When it converged the pair, PairScheduled is
// logged as well.
func (l *Logger) SlotVoted(ctx context.Context, actorID, eventID, pairID primitive.ObjectID, slot time.Time) {
	l.Log(ctx, audit.Event{
		Category:  audit.CategoryPairs,
		EventType: audit.EventSlotVoted,
		EventID:   &eventID,
		PairID:    &pairID,
		ActorID:   &actorID,
		Success:   true,
		Details:   map[string]string{"slot": slot.UTC().Format(time.RFC3339)},
	})
}

// PairScheduled logs convergence on a slot.
func (l *Logger) PairScheduled(ctx context.Context, eventID, pairID primitive.ObjectID, at time.Time) {
	l.Log(ctx, audit.Event{
		Category:  audit.CategoryPairs,
		EventType: audit.EventPairScheduled,
		EventID:   &eventID,
		PairID:    &pairID,
		Success:   true,
		Details:   map[string]string{"scheduled_at": at.UTC().Format(time.RFC3339)},
	})
}

// ProposalRejected logs a rejection and the resulting rejection count.
func (l *Logger) ProposalRejected(ctx context.Context, actorID, eventID, pairID primitive.ObjectID, rejectionCount int) {
	l.Log(ctx, audit.Event{
		Category:  audit.CategoryPairs,
		EventType: audit.EventProposalRejected,
		EventID:   &eventID,
		PairID:    &pairID,
		ActorID:   &actorID,
		Success:   true,
		Details:   map[string]string{"rejection_count": strconv.Itoa(rejectionCount)},
	})
}

// ProposalExpired logs a proposal returned to pending by the timeout sweep.
func (l *Logger) ProposalExpired(ctx context.Context, eventID, pairID primitive.ObjectID, rejectionCount int) {
	l.Log(ctx, audit.Event{
		Category:  audit.CategoryPairs,
		EventType: audit.EventProposalExpired,
		EventID:   &eventID,
		PairID:    &pairID,
		Success:   true,
		Details:   map[string]string{"rejection_count": strconv.Itoa(rejectionCount)},
	})
}

// FeedbackSubmitted logs accepted feedback.
func (l *Logger) FeedbackSubmitted(ctx context.Context, raterID, rateeID, eventID, pairID primitive.ObjectID, total int) {
	l.Log(ctx, audit.Event{
		Category:  audit.CategoryPairs,
		EventType: audit.EventFeedbackSubmitted,
		EventID:   &eventID,
		PairID:    &pairID,
		ActorID:   &raterID,
		UserID:    &rateeID,
		Success:   true,
		Details:   map[string]string{"total": strconv.Itoa(total)},
	})
}

// FeedbackRejected logs a refused submission with its reason code.
func (l *Logger) FeedbackRejected(ctx context.Context, raterID, pairID primitive.ObjectID, reason string) {
	l.Log(ctx, audit.Event{
		Category:      audit.CategoryPairs,
		EventType:     audit.EventFeedbackSubmitted,
		PairID:        &pairID,
		ActorID:       &raterID,
		Success:       false,
		FailureReason: reason,
	})
}

// PairAbandoned logs abandonment. actorID is nil for system sweeps.
func (l *Logger) PairAbandoned(ctx context.Context, actorID *primitive.ObjectID, eventID, pairID primitive.ObjectID, reason string) {
	l.Log(ctx, audit.Event{
		Category:  audit.CategoryPairs,
		EventType: audit.EventPairAbandoned,
		EventID:   &eventID,
		PairID:    &pairID,
		ActorID:   actorID,
		Success:   true,
		Details:   map[string]string{"reason": reason},
	})
}

// MeetingLinkSet logs a provisioned meeting link.
func (l *Logger) MeetingLinkSet(ctx context.Context, eventID, pairID primitive.ObjectID, provider string) {
	l.Log(ctx, audit.Event{
		Category:  audit.CategoryPairs,
		EventType: audit.EventMeetingLinkSet,
		EventID:   &eventID,
		PairID:    &pairID,
		Success:   true,
		Details:   map[string]string{"provider": provider},
	})
}

// MeetingLinkFailed logs a provisioning failure after retries.
func (l *Logger) MeetingLinkFailed(ctx context.Context, pairID primitive.ObjectID, provider string, err error) {
	l.Log(ctx, audit.Event{
		Category:      audit.CategoryPairs,
		EventType:     audit.EventMeetingLinkFailed,
		PairID:        &pairID,
		Success:       false,
		FailureReason: err.Error(),
		Details:       map[string]string{"provider": provider},
	})
}

// --- Roster events ---

// EventCreated logs a new event.
func (l *Logger) EventCreated(ctx context.Context, actorID, eventID primitive.ObjectID, title string) {
	l.Log(ctx, audit.Event{
		Category:  audit.CategoryRoster,
		EventType: audit.EventEventCreated,
		EventID:   &eventID,
		ActorID:   &actorID,
		Success:   true,
		Details:   map[string]string{"title": title},
	})
}

// EventDeleted logs a removed event.
func (l *Logger) EventDeleted(ctx context.Context, actorID, eventID primitive.ObjectID) {
	l.Log(ctx, audit.Event{
		Category:  audit.CategoryRoster,
		EventType: audit.EventEventDeleted,
		EventID:   &eventID,
		ActorID:   &actorID,
		Success:   true,
	})
}

// JoinControlsChanged logs changes to join_disabled, auto-close, or capacity.
func (l *Logger) JoinControlsChanged(ctx context.Context, actorID, eventID primitive.ObjectID, fieldsChanged string) {
	l.Log(ctx, audit.Event{
		Category:  audit.CategoryRoster,
		EventType: audit.EventJoinControlsChanged,
		EventID:   &eventID,
		ActorID:   &actorID,
		Success:   true,
		Details:   map[string]string{"fields_changed": fieldsChanged},
	})
}

// ParticipantJoined logs a join attempt. reason is empty on success.
func (l *Logger) ParticipantJoined(ctx context.Context, userID, eventID primitive.ObjectID, reason string) {
	l.Log(ctx, audit.Event{
		Category:      audit.CategoryRoster,
		EventType:     audit.EventParticipantJoined,
		EventID:       &eventID,
		UserID:        &userID,
		ActorID:       &userID,
		Success:       reason == "",
		FailureReason: reason,
	})
}

// ParticipantLeft logs a departure and whether it abandoned a pending pair.
func (l *Logger) ParticipantLeft(ctx context.Context, userID, eventID primitive.ObjectID, abandonedPair bool) {
	l.Log(ctx, audit.Event{
		Category:  audit.CategoryRoster,
		EventType: audit.EventParticipantLeft,
		EventID:   &eventID,
		UserID:    &userID,
		ActorID:   &userID,
		Success:   true,
		Details:   map[string]string{"abandoned_pair": strconv.FormatBool(abandonedPair)},
	})
}

// ProfileUpdated logs a participant profile change.
func (l *Logger) ProfileUpdated(ctx context.Context, userID, eventID primitive.ObjectID) {
	l.Log(ctx, audit.Event{
		Category:  audit.CategoryRoster,
		EventType: audit.EventProfileUpdated,
		EventID:   &eventID,
		UserID:    &userID,
		ActorID:   &userID,
		Success:   true,
	})
}

// --- Queries ---

// PairHistory returns up to limit records for pairID, newest first, and the
// number stored in total. A logger without a store has no history.
func (l *Logger) PairHistory(ctx context.Context, pairID primitive.ObjectID, limit int64) ([]audit.Event, int64, error) {
	if l == nil || l.store == nil {
		return nil, 0, nil
	}
	events, err := l.store.GetByPair(ctx, pairID, limit)
	if err != nil {
		return nil, 0, err
	}
	total, err := l.store.CountByFilter(ctx, audit.QueryFilter{PairID: &pairID})
	if err != nil {
		return nil, 0, err
	}
	return events, total, nil
}
