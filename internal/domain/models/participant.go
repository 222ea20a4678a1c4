package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Participant is a user's enrollment in one event.
//
// CarryOver marks a participant who was left unpaired by an odd roster;
// the next generation run pairs them first.
type Participant struct {
	ID            primitive.ObjectID `bson:"_id" json:"id"`
	EventID       primitive.ObjectID `bson:"event_id" json:"event_id"`
	UserID        primitive.ObjectID `bson:"user_id" json:"user_id"`
	DisplayName   string             `bson:"display_name" json:"display_name"`
	DisplayNameCI string             `bson:"display_name_ci" json:"-"` // lowercase, diacritics-stripped
	Email         string             `bson:"email,omitempty" json:"email,omitempty"`
	CarryOver     bool               `bson:"carry_over" json:"carry_over"`
	JoinedAt      time.Time          `bson:"joined_at" json:"joined_at"`
	UpdatedAt     time.Time          `bson:"updated_at" json:"updated_at"`
}
