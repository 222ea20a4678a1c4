// Package lifecycle is the pair lifecycle engine: it loads a pair, checks
// the caller, delegates to the generator, negotiator, or feedback gate, and
// writes the outcome back with a version-checked update.
package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/dalemusser/interviewhub/internal/app/lifecycle/negotiation"
	"github.com/dalemusser/interviewhub/internal/app/lifecycle/pairgen"
	"github.com/dalemusser/interviewhub/internal/app/lifecycle/roster"
	eventstore "github.com/dalemusser/interviewhub/internal/app/store/events"
	feedbackstore "github.com/dalemusser/interviewhub/internal/app/store/feedback"
	pairstore "github.com/dalemusser/interviewhub/internal/app/store/pairs"
	rolehistorystore "github.com/dalemusser/interviewhub/internal/app/store/rolehistory"
	"github.com/dalemusser/interviewhub/internal/app/system/apperr"
	"github.com/dalemusser/interviewhub/internal/app/system/auditlog"
	"github.com/dalemusser/interviewhub/internal/app/system/authz"
	"github.com/dalemusser/interviewhub/internal/app/system/tracing"
	"github.com/dalemusser/interviewhub/internal/domain/models"
	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// Generation policies.
const (
	PolicyAdditive = "additive"
	PolicyReject   = "reject"
)

// Defaults for Config fields left zero.
const (
	DefaultMeetingLinkLead    = time.Hour
	DefaultNegotiationTimeout = 72 * time.Hour
	DefaultFeedbackGrace      = 7 * 24 * time.Hour
)

// Config tunes the engine.
type Config struct {
	GenerationPolicy   string // PolicyAdditive or PolicyReject
	MaxProposedSlots   int
	MeetingLinkLead    time.Duration
	NegotiationTimeout time.Duration
	FeedbackGrace      time.Duration // after an event ends, how long scheduled pairs wait for feedback
	PairWriteRetries   int

	Now  func() time.Time
	Rand *rand.Rand
}

// LinkQueue accepts pairs that need a meeting link. Enqueue must not block
// on provisioning.
type LinkQueue interface {
	Enqueue(pairID primitive.ObjectID)
}

// Deps are the engine's collaborators. Sessions, Links and Audit may be nil.
type Deps struct {
	DB       *mongo.Database
	Roster   *roster.Roster
	Sessions CallerValidator
	Links    LinkQueue
	Audit    *auditlog.Logger
	Log      *zap.Logger
}

// Engine runs the pair lifecycle operations.
type Engine struct {
	db       *mongo.Database
	roster   *roster.Roster
	events   *eventstore.Store
	pairs    *pairstore.Store
	feedback *feedbackstore.Store
	history  *rolehistorystore.Store
	sessions CallerValidator
	links    LinkQueue
	audit    *auditlog.Logger
	log      *zap.Logger
	tracer   trace.Tracer
	cfg      Config

	genMu sync.Mutex
	gen   *pairgen.Generator
}

// New builds an Engine.
func New(deps Deps, cfg Config) *Engine {
	if cfg.GenerationPolicy == "" {
		cfg.GenerationPolicy = PolicyAdditive
	}
	if cfg.MaxProposedSlots <= 0 {
		cfg.MaxProposedSlots = negotiation.DefaultMaxSlots
	}
	if cfg.MeetingLinkLead <= 0 {
		cfg.MeetingLinkLead = DefaultMeetingLinkLead
	}
	if cfg.NegotiationTimeout <= 0 {
		cfg.NegotiationTimeout = DefaultNegotiationTimeout
	}
	if cfg.FeedbackGrace <= 0 {
		cfg.FeedbackGrace = DefaultFeedbackGrace
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if deps.Log == nil {
		deps.Log = zap.NewNop()
	}
	if deps.Sessions == nil {
		deps.Sessions = AnyCaller{}
	}

	pairs := pairstore.New(deps.DB)
	if cfg.PairWriteRetries > 0 {
		pairs.SetWriteRetries(cfg.PairWriteRetries)
	}

	return &Engine{
		db:       deps.DB,
		roster:   deps.Roster,
		events:   eventstore.New(deps.DB),
		pairs:    pairs,
		feedback: feedbackstore.New(deps.DB),
		history:  rolehistorystore.New(deps.DB),
		sessions: deps.Sessions,
		links:    deps.Links,
		audit:    deps.Audit,
		log:      deps.Log,
		tracer:   tracing.Tracer("interviewhub/lifecycle"),
		cfg:      cfg,
		gen:      pairgen.New(cfg.Rand),
	}
}

func (e *Engine) now() time.Time {
	return e.cfg.Now().UTC()
}

// GenerateResult reports one generation run.
type GenerateResult struct {
	EventID  primitive.ObjectID  `json:"event_id"`
	RoundID  string              `json:"round_id,omitempty"`
	Pairs    []models.Pair       `json:"pairs"`
	Unpaired *primitive.ObjectID `json:"unpaired,omitempty"`
}

// GeneratePairs pairs the event's eligible participants. With fewer than
// two eligible it returns an empty result together with a
// RosterInsufficient error; callers treat that as a zero-pair outcome.
func (e *Engine) GeneratePairs(ctx context.Context, caller authz.Caller, eventID primitive.ObjectID) (res GenerateResult, err error) {
	ctx, span := e.start(ctx, "lifecycle.GeneratePairs", attribute.String("event.id", eventID.Hex()))
	defer func() { endSpan(span, err) }()

	res = GenerateResult{EventID: eventID, Pairs: []models.Pair{}}
	if err := e.authenticate(ctx, caller); err != nil {
		return res, err
	}
	if !caller.IsOperator() {
		return res, apperr.NotAuthorized("only coordinators and admins may generate pairs")
	}
	if _, err := e.roster.GetEvent(ctx, eventID); err != nil {
		return res, err
	}

	leaseID := uuid.NewString()
	ok, err := e.roster.AcquireLease(ctx, eventID, leaseID)
	if err != nil {
		return res, fmt.Errorf("acquire generation lease: %w", err)
	}
	if !ok {
		return res, apperr.New(apperr.CodeConflictingActivePair, "pair generation or a roster change is already running for this event")
	}
	defer func() {
		if relErr := e.roster.ReleaseLease(context.WithoutCancel(ctx), eventID, leaseID); relErr != nil {
			e.log.Warn("release generation lease failed", zap.String("event_id", eventID.Hex()), zap.Error(relErr))
		}
	}()

	if e.cfg.GenerationPolicy == PolicyReject {
		n, err := e.pairs.CountActive(ctx, eventID)
		if err != nil {
			return res, fmt.Errorf("count active pairs: %w", err)
		}
		if n > 0 {
			return res, apperr.New(apperr.CodeConflictingActivePair, "event already has active pairs").
				With("active_pairs", fmt.Sprint(n))
		}
	}

	eligible, err := e.roster.Eligible(ctx, eventID)
	if err != nil {
		return res, err
	}
	ids := make([]primitive.ObjectID, len(eligible))
	for i, p := range eligible {
		ids[i] = p.UserID
	}
	histories, err := e.history.GetMany(ctx, ids)
	if err != nil {
		return res, fmt.Errorf("load role history: %w", err)
	}
	cands := make([]pairgen.Candidate, len(eligible))
	for i, p := range eligible {
		cands[i] = pairgen.Candidate{UserID: p.UserID, CarryOver: p.CarryOver, History: histories[p.UserID]}
	}

	e.genMu.Lock()
	gen, err := e.gen.Generate(cands)
	e.genMu.Unlock()
	if err != nil {
		e.log.Info("pair generation skipped",
			zap.String("event_id", eventID.Hex()),
			zap.Int("eligible", len(eligible)))
		return res, err
	}

	res.RoundID = uuid.NewString()
	var paired []primitive.ObjectID
	for _, a := range gen.Pairs {
		p, err := e.pairs.Insert(ctx, models.Pair{
			EventID:       eventID,
			RoundID:       res.RoundID,
			InterviewerID: a.InterviewerID,
			IntervieweeID: a.IntervieweeID,
			Status:        models.PairPending,
		})
		if errors.Is(err, pairstore.ErrMemberBusy) {
			e.log.Warn("skipping pair with a member already in an active pair",
				zap.String("event_id", eventID.Hex()),
				zap.String("interviewer_id", a.InterviewerID.Hex()),
				zap.String("interviewee_id", a.IntervieweeID.Hex()))
			continue
		}
		if err != nil {
			return res, fmt.Errorf("insert pair: %w", err)
		}
		res.Pairs = append(res.Pairs, p)
		paired = append(paired, a.InterviewerID, a.IntervieweeID)
		e.recordRole(ctx, a.InterviewerID, models.RoleInterviewer)
		e.recordRole(ctx, a.IntervieweeID, models.RoleInterviewee)
	}

	if len(paired) > 0 {
		if err := e.roster.SetCarryOver(ctx, eventID, paired, false); err != nil {
			return res, fmt.Errorf("clear carry-over: %w", err)
		}
	}
	if gen.Unpaired != nil {
		res.Unpaired = gen.Unpaired
		if err := e.roster.SetCarryOver(ctx, eventID, []primitive.ObjectID{*gen.Unpaired}, true); err != nil {
			return res, fmt.Errorf("flag carry-over: %w", err)
		}
	}

	span.SetAttributes(attribute.Int("pairs.created", len(res.Pairs)))
	e.audit.PairsGenerated(ctx, caller.UserID, eventID, res.RoundID, len(res.Pairs), res.Unpaired)
	e.log.Info("pairs generated",
		zap.String("event_id", eventID.Hex()),
		zap.String("round_id", res.RoundID),
		zap.Int("created", len(res.Pairs)),
		zap.Bool("carry_over", res.Unpaired != nil))
	return res, nil
}

// recordRole updates rotation history. It only affects fairness of later
// runs, so failures are logged and not returned.
func (e *Engine) recordRole(ctx context.Context, userID primitive.ObjectID, role string) {
	if err := e.history.Record(ctx, userID, role); err != nil {
		e.log.Warn("record role history failed",
			zap.String("user_id", userID.Hex()),
			zap.String("role", role),
			zap.Error(err))
	}
}

// AbandonPair ends a pair before feedback. Operators only.
func (e *Engine) AbandonPair(ctx context.Context, caller authz.Caller, pairID primitive.ObjectID, reason string) (p models.Pair, err error) {
	ctx, span := e.start(ctx, "lifecycle.AbandonPair", attribute.String("pair.id", pairID.Hex()))
	defer func() { endSpan(span, err) }()

	if err := e.authenticate(ctx, caller); err != nil {
		return models.Pair{}, err
	}
	if !caller.IsOperator() {
		return models.Pair{}, apperr.NotAuthorized("only coordinators and admins may abandon pairs")
	}
	reason, err = negotiation.CleanReason(reason)
	if err != nil {
		return models.Pair{}, err
	}

	now := e.now()
	p, err = e.mutate(ctx, pairID, func(cur models.Pair) (models.Pair, error) {
		return negotiation.Abandon(cur, reason, now)
	})
	if err != nil {
		return models.Pair{}, err
	}
	actor := caller.UserID
	e.audit.PairAbandoned(ctx, &actor, p.EventID, p.ID, reason)
	return p, nil
}

func (e *Engine) authenticate(ctx context.Context, caller authz.Caller) error {
	if caller.UserID.IsZero() {
		return apperr.NotAuthorized("caller is not signed in")
	}
	return e.sessions.ValidateCaller(ctx, caller)
}

func (e *Engine) load(ctx context.Context, pairID primitive.ObjectID) (models.Pair, error) {
	p, err := e.pairs.GetByID(ctx, pairID)
	if err != nil {
		return models.Pair{}, e.pairErr(err)
	}
	return p, nil
}

// mutate applies fn through the store's version-checked write loop and
// maps store errors onto the error taxonomy.
func (e *Engine) mutate(ctx context.Context, pairID primitive.ObjectID, fn func(models.Pair) (models.Pair, error)) (models.Pair, error) {
	p, err := e.pairs.Mutate(ctx, pairID, fn)
	if err != nil {
		return models.Pair{}, e.pairErr(err)
	}
	return p, nil
}

func (e *Engine) pairErr(err error) error {
	switch {
	case err == nil:
		return nil
	case apperr.IsDomain(err):
		return err
	case errors.Is(err, pairstore.ErrNotFound):
		return apperr.NotFound("pair not found")
	case errors.Is(err, pairstore.ErrVersionConflict):
		return apperr.Wrap(apperr.CodeConflict, "pair is busy; retry shortly", err)
	case errors.Is(err, pairstore.ErrMemberBusy):
		return apperr.Wrap(apperr.CodeConflictingActivePair, "member already in an active pair", err)
	default:
		return fmt.Errorf("pair write: %w", err)
	}
}

func (e *Engine) start(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return e.tracer.Start(ctx, name, trace.WithAttributes(attrs...))
}

// endSpan records err on span and ends it. Domain refusals are expected
// outcomes and only tagged; infrastructure failures mark the span failed.
func endSpan(span trace.Span, err error) {
	if err != nil {
		span.SetAttributes(attribute.String("error.code", string(apperr.CodeOf(err))))
		if !apperr.IsDomain(err) {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
	}
	span.End()
}
