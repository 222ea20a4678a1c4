package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Pair roles.
const (
	RoleInterviewer = "interviewer"
	RoleInterviewee = "interviewee"
)

// RoleHistory counts how often a user has taken each role across all
// events. Pair generation reads it to rotate roles fairly.
type RoleHistory struct {
	UserID           primitive.ObjectID `bson:"_id" json:"user_id"`
	InterviewerCount int                `bson:"interviewer_count" json:"interviewer_count"`
	IntervieweeCount int                `bson:"interviewee_count" json:"interviewee_count"`
	LastRole         string             `bson:"last_role,omitempty" json:"last_role,omitempty"`
	UpdatedAt        time.Time          `bson:"updated_at" json:"updated_at"`
}

// Balance is interviewer turns minus interviewee turns.
func (h RoleHistory) Balance() int {
	return h.InterviewerCount - h.IntervieweeCount
}
