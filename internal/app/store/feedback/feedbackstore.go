// internal/app/store/feedback/feedbackstore.go
package feedbackstore

import (
	"context"
	"errors"
	"time"

	"github.com/dalemusser/interviewhub/internal/domain/models"
	wafflemongo "github.com/dalemusser/waffle/pantry/mongo"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

var (
	ErrNotFound = errors.New("feedback not found")

	// ErrAlreadySubmitted is returned when the pair already has feedback.
	ErrAlreadySubmitted = errors.New("feedback already submitted for this pair")
)

// Store persists feedback records. Records are write-once: there is no
// update or delete.
type Store struct {
	c *mongo.Collection
}

func New(db *mongo.Database) *Store {
	return &Store{c: db.Collection("pair_feedback")}
}

// IndexModels lists the one-feedback-per-pair guard.
func IndexModels() []mongo.IndexModel {
	return []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "pair_id", Value: 1}},
			Options: options.Index().SetName("uniq_feedback_pair").SetUnique(true),
		},
		{
			Keys:    bson.D{{Key: "event_id", Value: 1}, {Key: "submitted_at", Value: -1}},
			Options: options.Index().SetName("idx_feedback_event_submitted"),
		},
	}
}

// EnsureIndexes creates IndexModels on the collection.
func (s *Store) EnsureIndexes(ctx context.Context) error {
	_, err := s.c.Indexes().CreateMany(ctx, IndexModels())
	return err
}

// Insert stores a feedback record.
func (s *Store) Insert(ctx context.Context, f models.Feedback) (models.Feedback, error) {
	if f.ID.IsZero() {
		f.ID = primitive.NewObjectID()
	}
	if f.SubmittedAt.IsZero() {
		f.SubmittedAt = time.Now().UTC()
	}
	if _, err := s.c.InsertOne(ctx, f); err != nil {
		if wafflemongo.IsDup(err) {
			return models.Feedback{}, ErrAlreadySubmitted
		}
		return models.Feedback{}, err
	}
	return f, nil
}

// GetByPair returns the pair's feedback.
func (s *Store) GetByPair(ctx context.Context, pairID primitive.ObjectID) (models.Feedback, error) {
	var f models.Feedback
	err := s.c.FindOne(ctx, bson.M{"pair_id": pairID}).Decode(&f)
	if err == mongo.ErrNoDocuments {
		return models.Feedback{}, ErrNotFound
	}
	return f, err
}

// ExistsForPair reports whether the pair has feedback.
func (s *Store) ExistsForPair(ctx context.Context, pairID primitive.ObjectID) (bool, error) {
	n, err := s.c.CountDocuments(ctx, bson.M{"pair_id": pairID}, options.Count().SetLimit(1))
	return n > 0, err
}

// CountForPair counts feedback records of a pair. Always 0 or 1 while the
// unique index holds.
func (s *Store) CountForPair(ctx context.Context, pairID primitive.ObjectID) (int64, error) {
	return s.c.CountDocuments(ctx, bson.M{"pair_id": pairID})
}

// ListByEvent returns an event's feedback, newest first.
func (s *Store) ListByEvent(ctx context.Context, eventID primitive.ObjectID) ([]models.Feedback, error) {
	opts := options.Find().SetSort(bson.D{{Key: "submitted_at", Value: -1}})
	cur, err := s.c.Find(ctx, bson.M{"event_id": eventID}, opts)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	var out []models.Feedback
	if err := cur.All(ctx, &out); err != nil {
		return nil, err
	}
	return out, nil
}
