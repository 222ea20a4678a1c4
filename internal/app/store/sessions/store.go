// internal/app/store/sessions/store.go
package sessions

// Terminology: User Identifiers
//   - UserID / userID / user_id: the account's MongoDB ObjectID
//   - SessionID: the _id of one login session, carried in the session cookie

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// EndInactive is the end reason CloseInactive records.
const EndInactive = "inactive"

// Session is one login of a user, written by the identity service. A user
// has at most one open session.
type Session struct {
	ID     primitive.ObjectID `bson:"_id,omitempty"`
	UserID primitive.ObjectID `bson:"user_id"`

	LoginAt      time.Time  `bson:"login_at"`
	LogoutAt     *time.Time `bson:"logout_at,omitempty"`
	LastActiveAt time.Time  `bson:"last_active_at"`
	EndReason    string     `bson:"end_reason,omitempty"`

	IP        string `bson:"ip,omitempty"`
	UserAgent string `bson:"user_agent,omitempty"`
}

// Store manages login sessions shared with the identity service.
type Store struct {
	c *mongo.Collection
}

// New creates a new sessions Store.
func New(db *mongo.Database) *Store {
	return &Store{c: db.Collection("sessions")}
}

// IndexModels lists the indexes used for efficient querying.
func IndexModels() []mongo.IndexModel {
	return []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "user_id", Value: 1}, {Key: "logout_at", Value: 1}},
			Options: options.Index().SetName("idx_sessions_user_open"),
		},
		{
			Keys:    bson.D{{Key: "logout_at", Value: 1}, {Key: "last_active_at", Value: -1}},
			Options: options.Index().SetName("idx_sessions_active"),
		},
	}
}

// EnsureIndexes creates IndexModels on the collection.
func (s *Store) EnsureIndexes(ctx context.Context) error {
	_, err := s.c.Indexes().CreateMany(ctx, IndexModels())
	return err
}

// IsOpen reports whether sessionID is an open session of userID.
func (s *Store) IsOpen(ctx context.Context, sessionID, userID primitive.ObjectID) (bool, error) {
	n, err := s.c.CountDocuments(ctx, bson.M{
		"_id":       sessionID,
		"user_id":   userID,
		"logout_at": nil,
	})
	return n > 0, err
}

// Touch records activity on an open session. It reports false when the
// session is closed.
func (s *Store) Touch(ctx context.Context, sessionID primitive.ObjectID) (bool, error) {
	res, err := s.c.UpdateOne(ctx,
		bson.M{"_id": sessionID, "logout_at": nil},
		bson.M{"$set": bson.M{"last_active_at": time.Now().UTC()}},
	)
	if err != nil {
		return false, err
	}
	return res.MatchedCount == 1, nil
}

// CloseInactive closes sessions idle longer than threshold.
// This is typically called by a background job.
func (s *Store) CloseInactive(ctx context.Context, threshold time.Duration) (int64, error) {
	now := time.Now().UTC()
	result, err := s.c.UpdateMany(ctx,
		bson.M{
			"logout_at":      nil,
			"last_active_at": bson.M{"$lt": now.Add(-threshold)},
		},
		bson.M{"$set": bson.M{"logout_at": now, "end_reason": EndInactive}},
	)
	if err != nil {
		return 0, err
	}
	return result.ModifiedCount, nil
}
