// Package roster manages events and who has joined them.
package roster

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/dalemusser/interviewhub/internal/app/lifecycle/negotiation"
	eventstore "github.com/dalemusser/interviewhub/internal/app/store/events"
	metricsstore "github.com/dalemusser/interviewhub/internal/app/store/metrics"
	pairstore "github.com/dalemusser/interviewhub/internal/app/store/pairs"
	participantstore "github.com/dalemusser/interviewhub/internal/app/store/participants"
	"github.com/dalemusser/interviewhub/internal/app/system/apperr"
	"github.com/dalemusser/interviewhub/internal/app/system/auditlog"
	"github.com/dalemusser/interviewhub/internal/app/system/authz"
	"github.com/dalemusser/interviewhub/internal/app/system/htmlsanitize"
	"github.com/dalemusser/interviewhub/internal/domain/models"
	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

// DefaultLeaseTTL bounds how long a roster change or generation run may
// hold an event's lease.
const DefaultLeaseTTL = 30 * time.Second

const (
	maxTitleRunes = 200
	maxNameRunes  = 100
	joinCodeCost  = 12
)

// Config tunes the roster.
type Config struct {
	LeaseTTL time.Duration
	Now      func() time.Time
}

// Roster owns events and their participants.
type Roster struct {
	db           *mongo.Database
	events       *eventstore.Store
	participants *participantstore.Store
	pairs        *pairstore.Store
	audit        *auditlog.Logger
	log          *zap.Logger
	leaseTTL     time.Duration
	now          func() time.Time
}

// New builds a Roster over db. audit may be nil.
func New(db *mongo.Database, audit *auditlog.Logger, log *zap.Logger, cfg Config) *Roster {
	if cfg.LeaseTTL <= 0 {
		cfg.LeaseTTL = DefaultLeaseTTL
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Roster{
		db:           db,
		events:       eventstore.New(db),
		participants: participantstore.New(db),
		pairs:        pairstore.New(db),
		audit:        audit,
		log:          log,
		leaseTTL:     cfg.LeaseTTL,
		now:          cfg.Now,
	}
}

// NewEvent is the input to CreateEvent.
type NewEvent struct {
	Title        string     `json:"title"`
	StartsAt     time.Time  `json:"starts_at"`
	EndsAt       time.Time  `json:"ends_at"`
	Capacity     int        `json:"capacity"`
	JoinClosesAt *time.Time `json:"join_closes_at,omitempty"`
	JoinCode     string     `json:"join_code,omitempty"`
}

// CreateEvent stores a new event. Operators only.
func (r *Roster) CreateEvent(ctx context.Context, caller authz.Caller, in NewEvent) (models.Event, error) {
	if !caller.IsOperator() {
		return models.Event{}, apperr.NotAuthorized("only coordinators and admins may create events")
	}

	title := htmlsanitize.PlainText(in.Title)
	switch {
	case title == "":
		return models.Event{}, apperr.InvalidInput("title is required")
	case utf8.RuneCountInString(title) > maxTitleRunes:
		return models.Event{}, apperr.InvalidInput("title is too long")
	case in.StartsAt.IsZero() || in.EndsAt.IsZero():
		return models.Event{}, apperr.InvalidInput("starts_at and ends_at are required")
	case !in.EndsAt.After(in.StartsAt):
		return models.Event{}, apperr.InvalidInput("ends_at must be after starts_at")
	case in.Capacity < 0:
		return models.Event{}, apperr.InvalidInput("capacity cannot be negative")
	}

	ev := models.Event{
		Title:     title,
		StartsAt:  in.StartsAt,
		EndsAt:    in.EndsAt,
		Capacity:  in.Capacity,
		CreatedBy: caller.UserID,
	}
	if in.JoinClosesAt != nil {
		at := in.JoinClosesAt.UTC()
		ev.JoinClosesAt = &at
	}
	if code := strings.TrimSpace(in.JoinCode); code != "" {
		hash, err := bcrypt.GenerateFromPassword([]byte(code), joinCodeCost)
		if err != nil {
			return models.Event{}, fmt.Errorf("hash join code: %w", err)
		}
		ev.JoinCodeHash = string(hash)
	}

	ev, err := r.events.Create(ctx, ev)
	if err != nil {
		return models.Event{}, fmt.Errorf("create event: %w", err)
	}
	r.audit.EventCreated(ctx, caller.UserID, ev.ID, ev.Title)
	return ev, nil
}

// GetEvent loads an event.
func (r *Roster) GetEvent(ctx context.Context, eventID primitive.ObjectID) (models.Event, error) {
	ev, err := r.events.GetByID(ctx, eventID)
	if errors.Is(err, eventstore.ErrNotFound) {
		return models.Event{}, apperr.NotFound("event not found")
	}
	if err != nil {
		return models.Event{}, fmt.Errorf("load event: %w", err)
	}
	return ev, nil
}

// ListEvents returns the most recent events, newest first.
func (r *Roster) ListEvents(ctx context.Context, limit int64) ([]models.Event, error) {
	evs, err := r.events.List(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	return evs, nil
}

// DeleteEvent removes an event that has no pairs yet, with its roster.
func (r *Roster) DeleteEvent(ctx context.Context, caller authz.Caller, eventID primitive.ObjectID) error {
	if !caller.IsOperator() {
		return apperr.NotAuthorized("only coordinators and admins may delete events")
	}
	return r.withLease(ctx, eventID, func() error {
		n, err := r.pairs.CountByEvent(ctx, eventID)
		if err != nil {
			return fmt.Errorf("count pairs: %w", err)
		}
		if n > 0 {
			return apperr.InvalidState("event has pairs and cannot be deleted")
		}
		if _, err := r.participants.DeleteByEvent(ctx, eventID); err != nil {
			return fmt.Errorf("delete participants: %w", err)
		}
		if err := r.events.Delete(ctx, eventID); err != nil {
			if errors.Is(err, eventstore.ErrNotFound) {
				return apperr.NotFound("event not found")
			}
			return fmt.Errorf("delete event: %w", err)
		}
		r.audit.EventDeleted(ctx, caller.UserID, eventID)
		return nil
	})
}

// JoinInput is what a participant supplies when joining.
type JoinInput struct {
	DisplayName string `json:"display_name"`
	Email       string `json:"email,omitempty"`
	JoinCode    string `json:"join_code,omitempty"`
}

// Join enrolls the caller in an event.
func (r *Roster) Join(ctx context.Context, eventID primitive.ObjectID, caller authz.Caller, in JoinInput) (models.Participant, error) {
	name, email, err := cleanProfile(in.DisplayName, in.Email, caller.Name)
	if err != nil {
		return models.Participant{}, err
	}

	ev, err := r.GetEvent(ctx, eventID)
	if err != nil {
		return models.Participant{}, err
	}

	if _, err := r.participants.Get(ctx, eventID, caller.UserID); err == nil {
		return models.Participant{}, apperr.New(apperr.CodeAlreadyJoined, "already joined this event")
	} else if !errors.Is(err, participantstore.ErrNotFound) {
		return models.Participant{}, fmt.Errorf("load enrollment: %w", err)
	}

	if ev.RequiresJoinCode() {
		if bcrypt.CompareHashAndPassword([]byte(ev.JoinCodeHash), []byte(strings.TrimSpace(in.JoinCode))) != nil {
			r.audit.ParticipantJoined(ctx, caller.UserID, eventID, string(apperr.CodeNotAuthorized))
			return models.Participant{}, apperr.NotAuthorized("join code does not match")
		}
	}

	now := r.now().UTC()
	if err := r.events.ReserveSeat(ctx, eventID, now); err != nil {
		if !errors.Is(err, eventstore.ErrSeatUnavailable) {
			return models.Participant{}, fmt.Errorf("reserve seat: %w", err)
		}
		refusal := r.seatRefusal(ctx, eventID, now)
		r.audit.ParticipantJoined(ctx, caller.UserID, eventID, string(apperr.CodeOf(refusal)))
		return models.Participant{}, refusal
	}

	p, err := r.participants.Create(ctx, models.Participant{
		EventID:     eventID,
		UserID:      caller.UserID,
		DisplayName: name,
		Email:       email,
		JoinedAt:    now,
	})
	if err != nil {
		if relErr := r.events.ReleaseSeat(ctx, eventID); relErr != nil {
			r.log.Warn("release seat failed", zap.String("event_id", eventID.Hex()), zap.Error(relErr))
		}
		if errors.Is(err, participantstore.ErrAlreadyJoined) {
			return models.Participant{}, apperr.New(apperr.CodeAlreadyJoined, "already joined this event")
		}
		return models.Participant{}, fmt.Errorf("create enrollment: %w", err)
	}

	r.audit.ParticipantJoined(ctx, caller.UserID, eventID, "")
	return p, nil
}

// seatRefusal re-reads the event to tell a closed join window from a full one.
func (r *Roster) seatRefusal(ctx context.Context, eventID primitive.ObjectID, now time.Time) error {
	ev, err := r.events.GetByID(ctx, eventID)
	if err != nil {
		return apperr.New(apperr.CodeJoinClosed, "event is not accepting participants")
	}
	switch {
	case !ev.JoinOpen(now):
		return apperr.New(apperr.CodeJoinClosed, "event is not accepting participants")
	case !ev.HasRoom():
		return apperr.New(apperr.CodeCapacityReached, "event is full").
			With("capacity", fmt.Sprint(ev.Capacity))
	default:
		// A seat was freed between the reservation and the re-read.
		return apperr.New(apperr.CodeConflict, "seat availability changed; retry shortly")
	}
}

// Leave withdraws a participant. A pending pair the user belongs to is
// abandoned and the partner is flagged to be paired first next round.
func (r *Roster) Leave(ctx context.Context, eventID, userID primitive.ObjectID) error {
	return r.withLease(ctx, eventID, func() error {
		if _, err := r.participants.Get(ctx, eventID, userID); err != nil {
			if errors.Is(err, participantstore.ErrNotFound) {
				return apperr.NotFound("not a participant of this event")
			}
			return fmt.Errorf("load enrollment: %w", err)
		}

		pending, err := r.lockedCheck(ctx, eventID, userID, "leave")
		if err != nil {
			return err
		}

		abandoned := false
		for _, p := range pending {
			_, err := r.pairs.Mutate(ctx, p.ID, func(cur models.Pair) (models.Pair, error) {
				if cur.Status != models.PairPending {
					return cur, apperr.New(apperr.CodeParticipantLocked, "pair moved past pending; cannot leave")
				}
				return negotiation.Abandon(cur, negotiation.ReasonMemberLeft, r.now())
			})
			if err != nil {
				return r.pairErr(err)
			}
			abandoned = true
			r.audit.PairAbandoned(ctx, &userID, eventID, p.ID, negotiation.ReasonMemberLeft)
			if err := r.participants.SetCarryOver(ctx, eventID, []primitive.ObjectID{p.Partner(userID)}, true); err != nil {
				return fmt.Errorf("flag partner: %w", err)
			}
		}

		if err := r.participants.Delete(ctx, eventID, userID); err != nil {
			return fmt.Errorf("delete enrollment: %w", err)
		}
		if err := r.events.ReleaseSeat(ctx, eventID); err != nil {
			return fmt.Errorf("release seat: %w", err)
		}
		r.audit.ParticipantLeft(ctx, userID, eventID, abandoned)
		return nil
	})
}

// ProfileInput is the editable part of an enrollment.
type ProfileInput struct {
	DisplayName string `json:"display_name"`
	Email       string `json:"email,omitempty"`
}

// UpdateProfile edits a participant's display name and email.
func (r *Roster) UpdateProfile(ctx context.Context, eventID, userID primitive.ObjectID, in ProfileInput) (models.Participant, error) {
	name, email, err := cleanProfile(in.DisplayName, in.Email, "")
	if err != nil {
		return models.Participant{}, err
	}

	var p models.Participant
	err = r.withLease(ctx, eventID, func() error {
		if _, err := r.lockedCheck(ctx, eventID, userID, "edit profile"); err != nil {
			return err
		}
		var err error
		p, err = r.participants.UpdateProfile(ctx, eventID, userID, name, email)
		if errors.Is(err, participantstore.ErrNotFound) {
			return apperr.NotFound("not a participant of this event")
		}
		if err != nil {
			return fmt.Errorf("update profile: %w", err)
		}
		return nil
	})
	if err != nil {
		return models.Participant{}, err
	}
	r.audit.ProfileUpdated(ctx, userID, eventID)
	return p, nil
}

// lockedCheck refuses with ParticipantLocked when the user sits in a pair
// that has moved past pending, and returns the user's pending pairs.
func (r *Roster) lockedCheck(ctx context.Context, eventID, userID primitive.ObjectID, action string) ([]models.Pair, error) {
	pairs, err := r.pairs.ListForMember(ctx, eventID, userID)
	if err != nil {
		return nil, fmt.Errorf("load pairs: %w", err)
	}
	var pending []models.Pair
	for _, p := range pairs {
		switch p.Status {
		case models.PairProposed, models.PairScheduled, models.PairCompleted:
			return nil, apperr.New(apperr.CodeParticipantLocked,
				"participant is in a "+string(p.Status)+" pair; cannot "+action).
				With("pair_id", p.ID.Hex())
		case models.PairPending:
			pending = append(pending, p)
		}
	}
	return pending, nil
}

// List returns an event's participants.
func (r *Roster) List(ctx context.Context, eventID primitive.ObjectID) ([]models.Participant, error) {
	if _, err := r.GetEvent(ctx, eventID); err != nil {
		return nil, err
	}
	ps, err := r.participants.ListByEvent(ctx, eventID)
	if err != nil {
		return nil, fmt.Errorf("list participants: %w", err)
	}
	return ps, nil
}

// Eligible returns participants who are not in an active pair.
func (r *Roster) Eligible(ctx context.Context, eventID primitive.ObjectID) ([]models.Participant, error) {
	all, err := r.participants.ListByEvent(ctx, eventID)
	if err != nil {
		return nil, fmt.Errorf("list participants: %w", err)
	}
	busy, err := r.pairs.ActiveMemberIDs(ctx, eventID)
	if err != nil {
		return nil, fmt.Errorf("load active members: %w", err)
	}
	out := make([]models.Participant, 0, len(all))
	for _, p := range all {
		if !busy[p.UserID] {
			out = append(out, p)
		}
	}
	return out, nil
}

// Stats returns participant, pair, and feedback counts for an event.
// Operators only.
func (r *Roster) Stats(ctx context.Context, caller authz.Caller, eventID primitive.ObjectID) (metricsstore.EventCounts, error) {
	if !caller.IsOperator() {
		return metricsstore.EventCounts{}, apperr.NotAuthorized("only coordinators and admins may view event stats")
	}
	if _, err := r.GetEvent(ctx, eventID); err != nil {
		return metricsstore.EventCounts{}, err
	}
	return metricsstore.FetchEventCounts(ctx, r.db, eventID), nil
}

// SetCarryOver flags or clears the carry-over mark.
func (r *Roster) SetCarryOver(ctx context.Context, eventID primitive.ObjectID, userIDs []primitive.ObjectID, carry bool) error {
	return r.participants.SetCarryOver(ctx, eventID, userIDs, carry)
}

// JoinControlsInput changes how an event accepts participants. Nil fields
// are left as they are.
type JoinControlsInput struct {
	JoinDisabled   *bool      `json:"join_disabled,omitempty"`
	JoinClosesAt   *time.Time `json:"join_closes_at,omitempty"`
	ClearAutoClose bool       `json:"clear_auto_close,omitempty"`
	Capacity       *int       `json:"capacity,omitempty"`
}

// UpdateJoinControls sets join_disabled, the auto-close instant, or the
// capacity. Operators only.
func (r *Roster) UpdateJoinControls(ctx context.Context, caller authz.Caller, eventID primitive.ObjectID, in JoinControlsInput) (models.Event, error) {
	if !caller.IsOperator() {
		return models.Event{}, apperr.NotAuthorized("only coordinators and admins may change join controls")
	}
	if in.Capacity != nil && *in.Capacity < 0 {
		return models.Event{}, apperr.InvalidInput("capacity cannot be negative")
	}

	var changed []string
	if in.JoinDisabled != nil {
		changed = append(changed, "join_disabled")
	}
	if in.ClearAutoClose || in.JoinClosesAt != nil {
		changed = append(changed, "join_closes_at")
	}
	if in.Capacity != nil {
		changed = append(changed, "capacity")
	}
	if len(changed) == 0 {
		return models.Event{}, apperr.InvalidInput("no join control given")
	}

	ev, err := r.events.UpdateJoinControls(ctx, eventID, eventstore.JoinControls{
		JoinDisabled:   in.JoinDisabled,
		JoinClosesAt:   in.JoinClosesAt,
		ClearAutoClose: in.ClearAutoClose,
		Capacity:       in.Capacity,
	})
	if errors.Is(err, eventstore.ErrNotFound) {
		return models.Event{}, apperr.NotFound("event not found")
	}
	if err != nil {
		return models.Event{}, fmt.Errorf("update join controls: %w", err)
	}
	r.audit.JoinControlsChanged(ctx, caller.UserID, eventID, strings.Join(changed, ","))
	return ev, nil
}

// AcquireLease takes the event's roster lease for leaseID. Generation
// and departures share it so a roster snapshot stays valid while pairs are
// written. It reports false when the lease is held elsewhere.
func (r *Roster) AcquireLease(ctx context.Context, eventID primitive.ObjectID, leaseID string) (bool, error) {
	return r.events.AcquireGenerationLease(ctx, eventID, leaseID, r.now().UTC(), r.leaseTTL)
}

// ReleaseLease frees the lease taken with leaseID.
func (r *Roster) ReleaseLease(ctx context.Context, eventID primitive.ObjectID, leaseID string) error {
	return r.events.ReleaseGenerationLease(ctx, eventID, leaseID)
}

func (r *Roster) withLease(ctx context.Context, eventID primitive.ObjectID, fn func() error) error {
	leaseID := uuid.NewString()
	now := r.now().UTC()
	ok, err := r.events.AcquireGenerationLease(ctx, eventID, leaseID, now, r.leaseTTL)
	if err != nil {
		return fmt.Errorf("acquire lease: %w", err)
	}
	if !ok {
		busy, err := r.events.GenerationInProgress(ctx, eventID, now)
		if err != nil {
			return fmt.Errorf("check lease: %w", err)
		}
		if !busy {
			// No live lease: the event is missing or the holder just released.
			if _, err := r.GetEvent(ctx, eventID); err != nil {
				return err
			}
		}
		return apperr.New(apperr.CodeConflict, "pair generation in progress; retry shortly")
	}
	defer func() {
		if err := r.ReleaseLease(context.WithoutCancel(ctx), eventID, leaseID); err != nil {
			r.log.Warn("release lease failed", zap.String("event_id", eventID.Hex()), zap.Error(err))
		}
	}()
	return fn()
}

func (r *Roster) pairErr(err error) error {
	switch {
	case apperr.IsDomain(err):
		return err
	case errors.Is(err, pairstore.ErrVersionConflict):
		return apperr.Wrap(apperr.CodeConflict, "pair is busy; retry shortly", err)
	default:
		return fmt.Errorf("update pair: %w", err)
	}
}

func cleanProfile(displayName, email, fallback string) (string, string, error) {
	name := htmlsanitize.PlainText(displayName)
	if name == "" {
		name = htmlsanitize.PlainText(fallback)
	}
	if name == "" {
		return "", "", apperr.InvalidInput("display_name is required")
	}
	if utf8.RuneCountInString(name) > maxNameRunes {
		return "", "", apperr.InvalidInput("display_name is too long")
	}
	email = strings.TrimSpace(email)
	if email != "" {
		addr, err := mail.ParseAddress(email)
		if err != nil {
			return "", "", apperr.InvalidInput("email is not valid")
		}
		email = strings.ToLower(addr.Address)
	}
	return name, email, nil
}
