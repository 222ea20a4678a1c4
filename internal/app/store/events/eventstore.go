// internal/app/store/events/eventstore.go
package eventstore

import (
	"context"
	"errors"
	"time"

	"github.com/dalemusser/interviewhub/internal/domain/models"
	"github.com/dalemusser/waffle/pantry/text"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// ErrNotFound is returned when no event matches.
var ErrNotFound = errors.New("event not found")

// ErrSeatUnavailable is returned by ReserveSeat when the event is closed to
// joins or full. Callers re-read the event to tell which.
var ErrSeatUnavailable = errors.New("no seat available")

type Store struct {
	c *mongo.Collection
}

func New(db *mongo.Database) *Store {
	return &Store{c: db.Collection("events")}
}

// IndexModels lists the indexes the sweeps and lists rely on.
func IndexModels() []mongo.IndexModel {
	return []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "ends_at", Value: 1}},
			Options: options.Index().SetName("idx_events_ends_at"),
		},
		{
			Keys:    bson.D{{Key: "title_ci", Value: 1}, {Key: "_id", Value: 1}},
			Options: options.Index().SetName("idx_events_title_ci__id"),
		},
	}
}

// EnsureIndexes creates IndexModels on the collection.
func (s *Store) EnsureIndexes(ctx context.Context) error {
	_, err := s.c.Indexes().CreateMany(ctx, IndexModels())
	return err
}

// Create inserts a new event. ID and timestamps are filled when empty.
func (s *Store) Create(ctx context.Context, e models.Event) (models.Event, error) {
	now := time.Now().UTC()
	if e.ID.IsZero() {
		e.ID = primitive.NewObjectID()
	}
	e.TitleCI = text.Fold(e.Title)
	e.StartsAt = e.StartsAt.UTC()
	e.EndsAt = e.EndsAt.UTC()
	if e.CreatedAt.IsZero() {
		e.CreatedAt = now
	}
	e.UpdatedAt = now
	if _, err := s.c.InsertOne(ctx, e); err != nil {
		return models.Event{}, err
	}
	return e, nil
}

// GetByID loads one event.
func (s *Store) GetByID(ctx context.Context, id primitive.ObjectID) (models.Event, error) {
	var e models.Event
	err := s.c.FindOne(ctx, bson.M{"_id": id}).Decode(&e)
	if err == mongo.ErrNoDocuments {
		return models.Event{}, ErrNotFound
	}
	return e, err
}

// List returns events ordered by start time, newest first.
func (s *Store) List(ctx context.Context, limit int64) ([]models.Event, error) {
	opts := options.Find().SetSort(bson.D{{Key: "starts_at", Value: -1}})
	if limit > 0 {
		opts.SetLimit(limit)
	}
	cur, err := s.c.Find(ctx, bson.M{}, opts)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	var out []models.Event
	if err := cur.All(ctx, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// EndedBefore returns IDs of events whose window closed before now.
func (s *Store) EndedBefore(ctx context.Context, now time.Time) ([]primitive.ObjectID, error) {
	opts := options.Find().SetProjection(bson.M{"_id": 1})
	cur, err := s.c.Find(ctx, bson.M{"ends_at": bson.M{"$lte": now}}, opts)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	var ids []primitive.ObjectID
	for cur.Next(ctx) {
		var row struct {
			ID primitive.ObjectID `bson:"_id"`
		}
		if err := cur.Decode(&row); err != nil {
			return nil, err
		}
		ids = append(ids, row.ID)
	}
	return ids, cur.Err()
}

// ReserveSeat atomically counts one more participant if the event is open
// to joins at now and below capacity.
func (s *Store) ReserveSeat(ctx context.Context, id primitive.ObjectID, now time.Time) error {
	filter := bson.M{
		"_id":           id,
		"join_disabled": false,
		"ends_at":       bson.M{"$gt": now},
		"$and": bson.A{
			bson.M{"$or": bson.A{
				bson.M{"join_closes_at": nil},
				bson.M{"join_closes_at": bson.M{"$gt": now}},
			}},
			bson.M{"$or": bson.A{
				bson.M{"capacity": 0},
				bson.M{"$expr": bson.M{"$lt": bson.A{"$participant_count", "$capacity"}}},
			}},
		},
	}
	res, err := s.c.UpdateOne(ctx, filter, bson.M{
		"$inc": bson.M{"participant_count": 1},
		"$set": bson.M{"updated_at": now},
	})
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return ErrSeatUnavailable
	}
	return nil
}

// ReleaseSeat undoes one ReserveSeat.
func (s *Store) ReleaseSeat(ctx context.Context, id primitive.ObjectID) error {
	_, err := s.c.UpdateOne(ctx,
		bson.M{"_id": id, "participant_count": bson.M{"$gt": 0}},
		bson.M{
			"$inc": bson.M{"participant_count": -1},
			"$set": bson.M{"updated_at": time.Now().UTC()},
		})
	return err
}

// JoinControls are the operator-adjustable join settings. Nil fields are
// left unchanged; ClearAutoClose removes the auto-close instant.
type JoinControls struct {
	JoinDisabled   *bool
	JoinClosesAt   *time.Time
	ClearAutoClose bool
	Capacity       *int
}

// UpdateJoinControls applies the given controls and returns the result.
func (s *Store) UpdateJoinControls(ctx context.Context, id primitive.ObjectID, jc JoinControls) (models.Event, error) {
	set := bson.M{"updated_at": time.Now().UTC()}
	update := bson.M{}
	if jc.JoinDisabled != nil {
		set["join_disabled"] = *jc.JoinDisabled
	}
	if jc.Capacity != nil {
		set["capacity"] = *jc.Capacity
	}
	if jc.ClearAutoClose {
		update["$unset"] = bson.M{"join_closes_at": ""}
	} else if jc.JoinClosesAt != nil {
		set["join_closes_at"] = jc.JoinClosesAt.UTC()
	}
	update["$set"] = set

	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)
	var e models.Event
	err := s.c.FindOneAndUpdate(ctx, bson.M{"_id": id}, update, opts).Decode(&e)
	if err == mongo.ErrNoDocuments {
		return models.Event{}, ErrNotFound
	}
	return e, err
}

// AcquireGenerationLease takes the per-event pairing lease if it is free or
// expired. It returns false when another run holds it.
func (s *Store) AcquireGenerationLease(ctx context.Context, id primitive.ObjectID, leaseID string, now time.Time, ttl time.Duration) (bool, error) {
	until := now.Add(ttl)
	res, err := s.c.UpdateOne(ctx,
		bson.M{
			"_id": id,
			"$or": bson.A{
				bson.M{"generation_lease_until": nil},
				bson.M{"generation_lease_until": bson.M{"$lte": now}},
			},
		},
		bson.M{"$set": bson.M{
			"generation_lease_id":    leaseID,
			"generation_lease_until": until,
		}},
	)
	if err != nil {
		return false, err
	}
	return res.MatchedCount == 1, nil
}

// ReleaseGenerationLease frees the lease if leaseID still holds it.
func (s *Store) ReleaseGenerationLease(ctx context.Context, id primitive.ObjectID, leaseID string) error {
	_, err := s.c.UpdateOne(ctx,
		bson.M{"_id": id, "generation_lease_id": leaseID},
		bson.M{"$unset": bson.M{"generation_lease_id": "", "generation_lease_until": ""}},
	)
	return err
}

// GenerationInProgress reports whether a live lease exists at now.
func (s *Store) GenerationInProgress(ctx context.Context, id primitive.ObjectID, now time.Time) (bool, error) {
	n, err := s.c.CountDocuments(ctx, bson.M{
		"_id":                    id,
		"generation_lease_until": bson.M{"$gt": now},
	})
	return n > 0, err
}

// Delete removes an event document.
func (s *Store) Delete(ctx context.Context, id primitive.ObjectID) error {
	res, err := s.c.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return err
	}
	if res.DeletedCount == 0 {
		return ErrNotFound
	}
	return nil
}
