// internal/app/store/participants/participantstore.go
package participantstore

// Terminology: User Identifiers
//   - UserID / userID / user_id: the account's MongoDB ObjectID
//   - ParticipantID: the _id of one enrollment in one event

import (
	"context"
	"errors"
	"time"

	"github.com/dalemusser/interviewhub/internal/domain/models"
	wafflemongo "github.com/dalemusser/waffle/pantry/mongo"
	"github.com/dalemusser/waffle/pantry/text"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

var (
	ErrNotFound      = errors.New("participant not found")
	ErrAlreadyJoined = errors.New("user already joined this event")
)

type Store struct {
	c *mongo.Collection
}

func New(db *mongo.Database) *Store {
	return &Store{c: db.Collection("event_participants")}
}

// IndexModels lists the (event_id, user_id) uniqueness guard and the
// roster listing index.
func IndexModels() []mongo.IndexModel {
	return []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "event_id", Value: 1}, {Key: "user_id", Value: 1}},
			Options: options.Index().SetName("uniq_participant_event_user").SetUnique(true),
		},
		{
			Keys:    bson.D{{Key: "event_id", Value: 1}, {Key: "display_name_ci", Value: 1}, {Key: "_id", Value: 1}},
			Options: options.Index().SetName("idx_participant_event_name"),
		},
	}
}

// EnsureIndexes creates IndexModels on the collection.
func (s *Store) EnsureIndexes(ctx context.Context) error {
	_, err := s.c.Indexes().CreateMany(ctx, IndexModels())
	return err
}

// Create enrolls a user in an event.
func (s *Store) Create(ctx context.Context, p models.Participant) (models.Participant, error) {
	now := time.Now().UTC()
	if p.ID.IsZero() {
		p.ID = primitive.NewObjectID()
	}
	p.DisplayNameCI = text.Fold(p.DisplayName)
	if p.JoinedAt.IsZero() {
		p.JoinedAt = now
	}
	p.UpdatedAt = now
	if _, err := s.c.InsertOne(ctx, p); err != nil {
		if wafflemongo.IsDup(err) {
			return models.Participant{}, ErrAlreadyJoined
		}
		return models.Participant{}, err
	}
	return p, nil
}

// Get returns the enrollment of userID in eventID.
func (s *Store) Get(ctx context.Context, eventID, userID primitive.ObjectID) (models.Participant, error) {
	var p models.Participant
	err := s.c.FindOne(ctx, bson.M{"event_id": eventID, "user_id": userID}).Decode(&p)
	if err == mongo.ErrNoDocuments {
		return models.Participant{}, ErrNotFound
	}
	return p, err
}

// ListByEvent returns an event's participants sorted by display name.
func (s *Store) ListByEvent(ctx context.Context, eventID primitive.ObjectID) ([]models.Participant, error) {
	opts := options.Find().SetSort(bson.D{{Key: "display_name_ci", Value: 1}, {Key: "_id", Value: 1}})
	cur, err := s.c.Find(ctx, bson.M{"event_id": eventID}, opts)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	var out []models.Participant
	if err := cur.All(ctx, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// UpdateProfile changes the display name and email of an enrollment.
func (s *Store) UpdateProfile(ctx context.Context, eventID, userID primitive.ObjectID, displayName, email string) (models.Participant, error) {
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)
	var p models.Participant
	err := s.c.FindOneAndUpdate(ctx,
		bson.M{"event_id": eventID, "user_id": userID},
		bson.M{"$set": bson.M{
			"display_name":    displayName,
			"display_name_ci": text.Fold(displayName),
			"email":           email,
			"updated_at":      time.Now().UTC(),
		}},
		opts,
	).Decode(&p)
	if err == mongo.ErrNoDocuments {
		return models.Participant{}, ErrNotFound
	}
	return p, err
}

// SetCarryOver flags or clears the carry-over mark for the given users.
func (s *Store) SetCarryOver(ctx context.Context, eventID primitive.ObjectID, userIDs []primitive.ObjectID, carry bool) error {
	if len(userIDs) == 0 {
		return nil
	}
	_, err := s.c.UpdateMany(ctx,
		bson.M{"event_id": eventID, "user_id": bson.M{"$in": userIDs}},
		bson.M{"$set": bson.M{"carry_over": carry, "updated_at": time.Now().UTC()}},
	)
	return err
}

// Delete removes an enrollment.
func (s *Store) Delete(ctx context.Context, eventID, userID primitive.ObjectID) error {
	res, err := s.c.DeleteOne(ctx, bson.M{"event_id": eventID, "user_id": userID})
	if err != nil {
		return err
	}
	if res.DeletedCount == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteByEvent removes every enrollment of an event.
func (s *Store) DeleteByEvent(ctx context.Context, eventID primitive.ObjectID) (int64, error) {
	res, err := s.c.DeleteMany(ctx, bson.M{"event_id": eventID})
	if err != nil {
		return 0, err
	}
	return res.DeletedCount, nil
}
