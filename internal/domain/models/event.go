package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Event is a timed mock-interview drive. Participants join it, pairs are
// generated inside it, and every proposed slot must fall within its window.
type Event struct {
	ID      primitive.ObjectID `bson:"_id" json:"id"`
	Title   string             `bson:"title" json:"title"`
	TitleCI string             `bson:"title_ci" json:"-"`

	StartsAt time.Time `bson:"starts_at" json:"starts_at"`
	EndsAt   time.Time `bson:"ends_at" json:"ends_at"`

	// Join controls. Capacity 0 means unlimited.
	JoinDisabled     bool       `bson:"join_disabled" json:"join_disabled"`
	JoinClosesAt     *time.Time `bson:"join_closes_at,omitempty" json:"join_closes_at,omitempty"`
	Capacity         int        `bson:"capacity" json:"capacity"`
	ParticipantCount int        `bson:"participant_count" json:"participant_count"`
	JoinCodeHash     string     `bson:"join_code_hash,omitempty" json:"-"`

	// Generation lease; only one pairing run per event at a time.
	GenerationLeaseID    string     `bson:"generation_lease_id,omitempty" json:"-"`
	GenerationLeaseUntil *time.Time `bson:"generation_lease_until,omitempty" json:"-"`

	CreatedBy primitive.ObjectID `bson:"created_by" json:"created_by"`
	CreatedAt time.Time          `bson:"created_at" json:"created_at"`
	UpdatedAt time.Time          `bson:"updated_at" json:"updated_at"`
}

// RequiresJoinCode reports whether joining needs a code.
func (e Event) RequiresJoinCode() bool {
	return e.JoinCodeHash != ""
}

// JoinOpen reports whether new participants may join at the given time.
func (e Event) JoinOpen(now time.Time) bool {
	if e.JoinDisabled {
		return false
	}
	if !now.Before(e.EndsAt) {
		return false
	}
	if e.JoinClosesAt != nil && !now.Before(*e.JoinClosesAt) {
		return false
	}
	return true
}

// HasRoom reports whether the capacity allows one more participant.
func (e Event) HasRoom() bool {
	return e.Capacity == 0 || e.ParticipantCount < e.Capacity
}
