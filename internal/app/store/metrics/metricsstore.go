// internal/app/store/metrics/metricsstore.go
package metricsstore

import (
	"context"

	"github.com/dalemusser/interviewhub/internal/domain/models"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
)

// EventCounts summarizes one event for coordinators.
type EventCounts struct {
	Participants int64   `json:"participants"`
	CarryOver    int64   `json:"carry_over"`
	Pending      int64   `json:"pending"`
	Proposed     int64   `json:"proposed"`
	Scheduled    int64   `json:"scheduled"`
	Completed    int64   `json:"completed"`
	Abandoned    int64   `json:"abandoned"`
	Feedback     int64   `json:"feedback"`
	AverageTotal float64 `json:"average_total"` // mean feedback total; 0 without feedback
}

// FetchEventCounts returns the counts for eventID.
// Intentionally tolerant: on error it returns 0 for that counter.
func FetchEventCounts(ctx context.Context, db *mongo.Database, eventID primitive.ObjectID) EventCounts {
	var out EventCounts

	// participants
	participants := db.Collection("event_participants")
	if n, err := participants.CountDocuments(ctx, bson.M{"event_id": eventID}); err == nil {
		out.Participants = n
	}
	if n, err := participants.CountDocuments(ctx, bson.M{"event_id": eventID, "carry_over": true}); err == nil {
		out.CarryOver = n
	}

	// pairs by status
	cur, err := db.Collection("pairs").Aggregate(ctx, mongo.Pipeline{
		{{Key: "$match", Value: bson.M{"event_id": eventID}}},
		{{Key: "$group", Value: bson.M{"_id": "$status", "n": bson.M{"$sum": 1}}}},
	})
	if err == nil {
		var rows []struct {
			Status models.PairStatus `bson:"_id"`
			N      int64             `bson:"n"`
		}
		if cur.All(ctx, &rows) == nil {
			for _, r := range rows {
				switch r.Status {
				case models.PairPending:
					out.Pending = r.N
				case models.PairProposed:
					out.Proposed = r.N
				case models.PairScheduled:
					out.Scheduled = r.N
				case models.PairCompleted:
					out.Completed = r.N
				case models.PairAbandoned:
					out.Abandoned = r.N
				}
			}
		}
	}

	// feedback
	cur, err = db.Collection("pair_feedback").Aggregate(ctx, mongo.Pipeline{
		{{Key: "$match", Value: bson.M{"event_id": eventID}}},
		{{Key: "$group", Value: bson.M{"_id": nil, "n": bson.M{"$sum": 1}, "avg": bson.M{"$avg": "$total"}}}},
	})
	if err == nil {
		var rows []struct {
			N   int64   `bson:"n"`
			Avg float64 `bson:"avg"`
		}
		if cur.All(ctx, &rows) == nil && len(rows) == 1 {
			out.Feedback = rows[0].N
			out.AverageTotal = rows[0].Avg
		}
	}

	return out
}
