package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dalemusser/interviewhub/internal/app/system/meetlink"
	"github.com/dalemusser/interviewhub/internal/domain/models"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// InterviewLength is the meeting duration requested from link providers.
const InterviewLength = time.Hour

// ErrLinkNotNeeded means the pair is no longer scheduled or already has a
// meeting link.
var ErrLinkNotNeeded = errors.New("pair no longer needs a meeting link")

// RetryMissingLinks queues every upcoming scheduled pair that still has no
// meeting link.
func (e *Engine) RetryMissingLinks(ctx context.Context) (int, error) {
	if e.links == nil {
		return 0, nil
	}
	ids, err := e.pairs.MissingLinks(ctx, e.now())
	if err != nil {
		return 0, fmt.Errorf("find pairs missing links: %w", err)
	}
	for _, id := range ids {
		e.links.Enqueue(id)
	}
	return len(ids), nil
}

func (e *Engine) requestLink(pairID primitive.ObjectID) {
	if e.links != nil {
		e.links.Enqueue(pairID)
	}
}

// AttachMeetingLink stores a provisioned link on a scheduled pair.
func (e *Engine) AttachMeetingLink(ctx context.Context, pairID primitive.ObjectID, link, provider string) error {
	ok, err := e.pairs.SetMeetingLink(ctx, pairID, link)
	if err != nil {
		return fmt.Errorf("set meeting link: %w", err)
	}
	if !ok {
		return ErrLinkNotNeeded
	}
	if p, err := e.pairs.GetByID(ctx, pairID); err == nil {
		e.audit.MeetingLinkSet(ctx, p.EventID, pairID, provider)
	}
	return nil
}

// RecordLinkFailure counts a provisioning attempt that gave up.
func (e *Engine) RecordLinkFailure(ctx context.Context, pairID primitive.ObjectID, provider string, cause error) error {
	e.audit.MeetingLinkFailed(ctx, pairID, provider, cause)
	return e.pairs.RecordLinkFailure(ctx, pairID)
}

// LinkRequest describes the meeting to provision for a scheduled pair
// that has no link yet. It returns ErrLinkNotNeeded otherwise.
func (e *Engine) LinkRequest(ctx context.Context, pairID primitive.ObjectID) (meetlink.Request, error) {
	p, err := e.pairs.GetByID(ctx, pairID)
	if err != nil {
		return meetlink.Request{}, e.pairErr(err)
	}
	if p.Status != models.PairScheduled || p.MeetingLink != nil || p.ScheduledAt == nil {
		return meetlink.Request{}, ErrLinkNotNeeded
	}
	ev, err := e.roster.GetEvent(ctx, p.EventID)
	if err != nil {
		return meetlink.Request{}, err
	}

	req := meetlink.Request{
		PairID:     p.ID,
		EventTitle: ev.Title,
		Start:      *p.ScheduledAt,
		Duration:   InterviewLength,
	}
	if members, err := e.roster.List(ctx, p.EventID); err == nil {
		for _, m := range members {
			if p.HasMember(m.UserID) && m.Email != "" {
				req.Attendees = append(req.Attendees, m.Email)
			}
		}
	}
	return req, nil
}
