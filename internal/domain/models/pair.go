package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// PairStatus is the negotiation state of a pair.
type PairStatus string

const (
	PairPending   PairStatus = "pending"
	PairProposed  PairStatus = "proposed"
	PairScheduled PairStatus = "scheduled"
	PairCompleted PairStatus = "completed"
	PairAbandoned PairStatus = "abandoned"
)

// Terminal reports whether no further transition is possible.
func (s PairStatus) Terminal() bool {
	return s == PairCompleted || s == PairAbandoned
}

// Pair is an ordered interviewer/interviewee assignment within an event.
//
// NOTE:
//   - MemberIDs always holds [InterviewerID, IntervieweeID]. It backs the
//     partial unique index that keeps a user in at most one active pair
//     per event.
//   - Active is true while the status is non-terminal.
//   - Votes is keyed by the voter's user ID hex.
//   - Version increments on every write; writers filter on it.
type Pair struct {
	ID            primitive.ObjectID   `bson:"_id" json:"id"`
	EventID       primitive.ObjectID   `bson:"event_id" json:"event_id"`
	RoundID       string               `bson:"round_id" json:"round_id"`
	InterviewerID primitive.ObjectID   `bson:"interviewer_id" json:"interviewer_id"`
	IntervieweeID primitive.ObjectID   `bson:"interviewee_id" json:"interviewee_id"`
	MemberIDs     []primitive.ObjectID `bson:"member_ids" json:"-"`
	Active        bool                 `bson:"active" json:"active"`
	Status        PairStatus           `bson:"status" json:"status"`

	ProposedSlots  []time.Time          `bson:"proposed_slots,omitempty" json:"proposed_slots,omitempty"`
	Votes          map[string]time.Time `bson:"votes,omitempty" json:"votes,omitempty"`
	ProposedAt     *time.Time           `bson:"proposed_at,omitempty" json:"proposed_at,omitempty"`
	RejectionCount int                  `bson:"rejection_count" json:"rejection_count"`

	ScheduledAt  *time.Time `bson:"scheduled_at,omitempty" json:"scheduled_at,omitempty"`
	MeetingLink  *string    `bson:"meeting_link,omitempty" json:"meeting_link,omitempty"`
	LinkAttempts int        `bson:"link_attempts" json:"-"`

	CompletedAt   *time.Time `bson:"completed_at,omitempty" json:"completed_at,omitempty"`
	AbandonedAt   *time.Time `bson:"abandoned_at,omitempty" json:"abandoned_at,omitempty"`
	AbandonReason string     `bson:"abandon_reason,omitempty" json:"abandon_reason,omitempty"`

	Version   int64     `bson:"version" json:"version"`
	CreatedAt time.Time `bson:"created_at" json:"created_at"`
	UpdatedAt time.Time `bson:"updated_at" json:"updated_at"`
}

// HasMember reports whether userID is the interviewer or the interviewee.
func (p Pair) HasMember(userID primitive.ObjectID) bool {
	return p.InterviewerID == userID || p.IntervieweeID == userID
}

// Partner returns the other member of the pair.
func (p Pair) Partner(userID primitive.ObjectID) primitive.ObjectID {
	if p.InterviewerID == userID {
		return p.IntervieweeID
	}
	return p.InterviewerID
}

// Clone returns a copy that shares no slices or maps with p.
func (p Pair) Clone() Pair {
	out := p
	out.MemberIDs = append([]primitive.ObjectID(nil), p.MemberIDs...)
	out.ProposedSlots = append([]time.Time(nil), p.ProposedSlots...)
	if p.Votes != nil {
		out.Votes = make(map[string]time.Time, len(p.Votes))
		for k, v := range p.Votes {
			out.Votes[k] = v
		}
	}
	return out
}
