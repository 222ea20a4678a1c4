// Package meetlink provisions video-meeting links for scheduled pairs.
package meetlink

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// ErrRejected means the provider refused the request outright; retrying
// the same request will not help.
var ErrRejected = errors.New("meeting provider rejected request")

// Request describes the meeting to create.
type Request struct {
	PairID     primitive.ObjectID
	EventTitle string
	Start      time.Time
	Duration   time.Duration
	Attendees  []string // email addresses; may be empty
}

// Provisioner creates a meeting and returns its join URL.
type Provisioner interface {
	Name() string
	Provision(ctx context.Context, req Request) (string, error)
}
