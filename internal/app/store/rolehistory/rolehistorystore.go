// internal/app/store/rolehistory/rolehistorystore.go
package rolehistorystore

import (
	"context"
	"fmt"
	"time"

	"github.com/dalemusser/interviewhub/internal/domain/models"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// Store keeps one role-count document per user, keyed by user ID.
type Store struct {
	c *mongo.Collection
}

func New(db *mongo.Database) *Store {
	return &Store{c: db.Collection("role_history")}
}

// GetMany returns histories for the given users. Users without a document
// get a zero history.
func (s *Store) GetMany(ctx context.Context, userIDs []primitive.ObjectID) (map[primitive.ObjectID]models.RoleHistory, error) {
	out := make(map[primitive.ObjectID]models.RoleHistory, len(userIDs))
	for _, id := range userIDs {
		out[id] = models.RoleHistory{UserID: id}
	}
	if len(userIDs) == 0 {
		return out, nil
	}

	cur, err := s.c.Find(ctx, bson.M{"_id": bson.M{"$in": userIDs}})
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	for cur.Next(ctx) {
		var h models.RoleHistory
		if err := cur.Decode(&h); err != nil {
			return nil, err
		}
		out[h.UserID] = h
	}
	return out, cur.Err()
}

// Record counts one turn of role for the user.
func (s *Store) Record(ctx context.Context, userID primitive.ObjectID, role string) error {
	var field string
	switch role {
	case models.RoleInterviewer:
		field = "interviewer_count"
	case models.RoleInterviewee:
		field = "interviewee_count"
	default:
		return fmt.Errorf("unknown role %q", role)
	}

	_, err := s.c.UpdateOne(ctx,
		bson.M{"_id": userID},
		bson.M{
			"$inc": bson.M{field: 1},
			"$set": bson.M{"last_role": role, "updated_at": time.Now().UTC()},
		},
		options.Update().SetUpsert(true),
	)
	return err
}
