// internal/app/store/pairs/pairstore.go
package pairstore

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
	ErrNotFound = errors.New("pair not found")

	// ErrVersionConflict means another writer changed the pair first.
	ErrVersionConflict = errors.New("pair was modified concurrently")

	// ErrMemberBusy means a member already sits in an active pair of the event.
	ErrMemberBusy = errors.New("member already in an active pair")
)

// DefaultWriteRetries bounds Mutate's reload-and-retry loop.
const DefaultWriteRetries = 5

type Store struct {
	c       *mongo.Collection
	retries int
}

func New(db *mongo.Database) *Store {
	return &Store{c: db.Collection("pairs"), retries: DefaultWriteRetries}
}

// SetWriteRetries changes how many times Mutate retries on a version
// conflict. Values below 1 are ignored.
func (s *Store) SetWriteRetries(n int) {
	if n >= 1 {
		s.retries = n
	}
}

// IndexModels lists the double-booking guard and the sweep indexes.
//
// uniq_pairs_event_active_member is a multikey index over member_ids that
// only covers active pairs, so a user appears in at most one active pair
// per event no matter how many writers race.
func IndexModels() []mongo.IndexModel {
	return []mongo.IndexModel{
		{
			Keys: bson.D{{Key: "event_id", Value: 1}, {Key: "member_ids", Value: 1}},
			Options: options.Index().
				SetName("uniq_pairs_event_active_member").
				SetUnique(true).
				SetPartialFilterExpression(bson.M{"active": true}),
		},
		{
			Keys:    bson.D{{Key: "event_id", Value: 1}, {Key: "created_at", Value: 1}, {Key: "_id", Value: 1}},
			Options: options.Index().SetName("idx_pairs_event_created"),
		},
		{
			Keys:    bson.D{{Key: "status", Value: 1}, {Key: "proposed_at", Value: 1}},
			Options: options.Index().SetName("idx_pairs_status_proposed_at"),
		},
		{
			Keys:    bson.D{{Key: "status", Value: 1}, {Key: "scheduled_at", Value: 1}},
			Options: options.Index().SetName("idx_pairs_status_scheduled_at"),
		},
	}
}

// EnsureIndexes creates IndexModels on the collection.
func (s *Store) EnsureIndexes(ctx context.Context) error {
	_, err := s.c.Indexes().CreateMany(ctx, IndexModels())
	return err
}

// Insert stores a new pair at version 1.
func (s *Store) Insert(ctx context.Context, p models.Pair) (models.Pair, error) {
	now := time.Now().UTC()
	if p.ID.IsZero() {
		p.ID = primitive.NewObjectID()
	}
	p.MemberIDs = []primitive.ObjectID{p.InterviewerID, p.IntervieweeID}
	p.Active = !p.Status.Terminal()
	p.Version = 1
	if p.CreatedAt.IsZero() {
		p.CreatedAt = now
	}
	p.UpdatedAt = now
	if _, err := s.c.InsertOne(ctx, p); err != nil {
		if wafflemongo.IsDup(err) {
			return models.Pair{}, ErrMemberBusy
		}
		return models.Pair{}, err
	}
	return p, nil
}

// GetByID loads one pair.
func (s *Store) GetByID(ctx context.Context, id primitive.ObjectID) (models.Pair, error) {
	var p models.Pair
	err := s.c.FindOne(ctx, bson.M{"_id": id}).Decode(&p)
	if err == mongo.ErrNoDocuments {
		return models.Pair{}, ErrNotFound
	}
	return p, err
}

// ListByEvent returns every pair of an event in creation order.
func (s *Store) ListByEvent(ctx context.Context, eventID primitive.ObjectID) ([]models.Pair, error) {
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}, {Key: "_id", Value: 1}})
	return s.find(ctx, bson.M{"event_id": eventID}, opts)
}

// ListForMember returns a user's pairs in an event whose status is one of
// statuses (all statuses when none are given).
func (s *Store) ListForMember(ctx context.Context, eventID, userID primitive.ObjectID, statuses ...models.PairStatus) ([]models.Pair, error) {
	filter := bson.M{"event_id": eventID, "member_ids": userID}
	if len(statuses) > 0 {
		filter["status"] = bson.M{"$in": statuses}
	}
	return s.find(ctx, filter, options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}}))
}

// ActiveMemberIDs returns every user currently in an active pair of the event.
func (s *Store) ActiveMemberIDs(ctx context.Context, eventID primitive.ObjectID) (map[primitive.ObjectID]bool, error) {
	opts := options.Find().SetProjection(bson.M{"member_ids": 1})
	cur, err := s.c.Find(ctx, bson.M{"event_id": eventID, "active": true}, opts)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	busy := make(map[primitive.ObjectID]bool)
	for cur.Next(ctx) {
		var row struct {
			MemberIDs []primitive.ObjectID `bson:"member_ids"`
		}
		if err := cur.Decode(&row); err != nil {
			return nil, err
		}
		for _, id := range row.MemberIDs {
			busy[id] = true
		}
	}
	return busy, cur.Err()
}

// CountActive counts the event's non-terminal pairs.
func (s *Store) CountActive(ctx context.Context, eventID primitive.ObjectID) (int64, error) {
	return s.c.CountDocuments(ctx, bson.M{"event_id": eventID, "active": true})
}

// CountByEvent counts all pairs of an event.
func (s *Store) CountByEvent(ctx context.Context, eventID primitive.ObjectID) (int64, error) {
	return s.c.CountDocuments(ctx, bson.M{"event_id": eventID})
}

// Replace writes next over the stored pair only if the stored version is
// still prevVersion. It bumps the version and keeps Active and MemberIDs in
// step with the status.
func (s *Store) Replace(ctx context.Context, next models.Pair, prevVersion int64) (models.Pair, error) {
	next.Version = prevVersion + 1
	next.Active = !next.Status.Terminal()
	next.MemberIDs = []primitive.ObjectID{next.InterviewerID, next.IntervieweeID}
	next.UpdatedAt = time.Now().UTC()

	opts := options.FindOneAndReplace().SetReturnDocument(options.After)
	var out models.Pair
	err := s.c.FindOneAndReplace(ctx,
		bson.M{"_id": next.ID, "version": prevVersion},
		next,
		opts,
	).Decode(&out)
	if err == mongo.ErrNoDocuments {
		return models.Pair{}, ErrVersionConflict
	}
	if err != nil {
		if wafflemongo.IsDup(err) {
			return models.Pair{}, ErrMemberBusy
		}
		return models.Pair{}, err
	}
	return out, nil
}

// Mutate loads the pair, lets fn compute its next state, and writes it with
// Replace. On a version conflict it reloads and calls fn again, up to the
// configured retry count. Errors from fn are returned unchanged and stop
// the loop. When every attempt conflicts it returns ErrVersionConflict.
func (s *Store) Mutate(ctx context.Context, id primitive.ObjectID, fn func(models.Pair) (models.Pair, error)) (models.Pair, error) {
	for attempt := 0; attempt < s.retries; attempt++ {
		cur, err := s.GetByID(ctx, id)
		if err != nil {
			return models.Pair{}, err
		}
		next, err := fn(cur.Clone())
		if err != nil {
			return models.Pair{}, err
		}
		saved, err := s.Replace(ctx, next, cur.Version)
		if errors.Is(err, ErrVersionConflict) {
			if ctx.Err() != nil {
				return models.Pair{}, ctx.Err()
			}
			continue
		}
		if err != nil {
			return models.Pair{}, err
		}
		return saved, nil
	}
	return models.Pair{}, ErrVersionConflict
}

// StaleProposals returns IDs of pairs that have been proposed since before
// cutoff without converging.
func (s *Store) StaleProposals(ctx context.Context, cutoff time.Time) ([]primitive.ObjectID, error) {
	return s.ids(ctx, bson.M{
		"status":      models.PairProposed,
		"proposed_at": bson.M{"$lte": cutoff},
	})
}

// OpenInEvents returns IDs of the events' pairs that are still negotiating
// (pending or proposed).
func (s *Store) OpenInEvents(ctx context.Context, eventIDs []primitive.ObjectID) ([]primitive.ObjectID, error) {
	if len(eventIDs) == 0 {
		return nil, nil
	}
	return s.ids(ctx, bson.M{
		"event_id": bson.M{"$in": eventIDs},
		"status":   bson.M{"$in": []models.PairStatus{models.PairPending, models.PairProposed}},
	})
}

// ScheduledInEvents returns IDs of the events' scheduled pairs.
func (s *Store) ScheduledInEvents(ctx context.Context, eventIDs []primitive.ObjectID) ([]primitive.ObjectID, error) {
	if len(eventIDs) == 0 {
		return nil, nil
	}
	return s.ids(ctx, bson.M{
		"event_id": bson.M{"$in": eventIDs},
		"status":   models.PairScheduled,
	})
}

// MissingLinks returns IDs of scheduled pairs in the future that still have
// no meeting link.
func (s *Store) MissingLinks(ctx context.Context, now time.Time) ([]primitive.ObjectID, error) {
	return s.ids(ctx, bson.M{
		"status":       models.PairScheduled,
		"meeting_link": nil,
		"scheduled_at": bson.M{"$gt": now},
	})
}

// SetMeetingLink stores a link on a scheduled pair that has none yet. It
// reports false when the pair moved on or already has a link.
func (s *Store) SetMeetingLink(ctx context.Context, id primitive.ObjectID, link string) (bool, error) {
	res, err := s.c.UpdateOne(ctx,
		bson.M{"_id": id, "status": models.PairScheduled, "meeting_link": nil},
		bson.M{
			"$set": bson.M{"meeting_link": link, "updated_at": time.Now().UTC()},
			"$inc": bson.M{"version": 1},
		},
	)
	if err != nil {
		return false, err
	}
	return res.ModifiedCount == 1, nil
}

// RecordLinkFailure counts one failed provisioning attempt.
func (s *Store) RecordLinkFailure(ctx context.Context, id primitive.ObjectID) error {
	_, err := s.c.UpdateOne(ctx,
		bson.M{"_id": id},
		bson.M{
			"$inc": bson.M{"link_attempts": 1, "version": 1},
			"$set": bson.M{"updated_at": time.Now().UTC()},
		},
	)
	return err
}

func (s *Store) find(ctx context.Context, filter bson.M, opts *options.FindOptions) ([]models.Pair, error) {
	cur, err := s.c.Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	var out []models.Pair
	if err := cur.All(ctx, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (s *Store) ids(ctx context.Context, filter bson.M) ([]primitive.ObjectID, error) {
	opts := options.Find().SetProjection(bson.M{"_id": 1})
	cur, err := s.c.Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	var out []primitive.ObjectID
	for cur.Next(ctx) {
		var row struct {
			ID primitive.ObjectID `bson:"_id"`
		}
		if err := cur.Decode(&row); err != nil {
			return nil, err
		}
		out = append(out, row.ID)
	}
	return out, cur.Err()
}
