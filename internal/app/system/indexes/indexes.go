// internal/app/system/indexes/indexes.go
package indexes

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	auditstore "github.com/dalemusser/interviewhub/internal/app/store/audit"
	eventstore "github.com/dalemusser/interviewhub/internal/app/store/events"
	feedbackstore "github.com/dalemusser/interviewhub/internal/app/store/feedback"
	pairstore "github.com/dalemusser/interviewhub/internal/app/store/pairs"
	participantstore "github.com/dalemusser/interviewhub/internal/app/store/participants"
	"github.com/dalemusser/interviewhub/internal/app/store/sessions"
	wafflemongo "github.com/dalemusser/waffle/pantry/mongo"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap"
)

type collectionIndexes struct {
	name   string
	models []mongo.IndexModel
}

func desired() []collectionIndexes {
	return []collectionIndexes{
		{"events", eventstore.IndexModels()},
		{"event_participants", participantstore.IndexModels()},
		{"pairs", pairstore.IndexModels()},
		{"pair_feedback", feedbackstore.IndexModels()},
		{"sessions", sessions.IndexModels()},
		{"audit_events", auditstore.IndexModels()},
	}
}

/*
EnsureAll is called at startup. Each collection is reconciled independently
and problems are aggregated so startup can fail fast with all of them.
role_history is keyed by _id and needs no secondary index.
*/
func EnsureAll(ctx context.Context, db *mongo.Database, log *zap.Logger) error {
	if log == nil {
		log = zap.NewNop()
	}
	var problems []string
	for _, ci := range desired() {
		if err := ensureIndexSet(ctx, db.Collection(ci.name), ci.models, log); err != nil {
			problems = append(problems, ci.name+": "+err.Error())
		}
	}
	if len(problems) > 0 {
		return errors.New(strings.Join(problems, "; "))
	}
	return nil
}

/* -------------------------------------------------------------------------- */
/* Reconcile a set of desired indexes for one collection                      */
/* -------------------------------------------------------------------------- */

type existingIndex struct {
	Name    string `bson:"name"`
	Key     bson.D `bson:"key"`
	Unique  *bool  `bson:"unique,omitempty"`
	Partial bson.D `bson:"partialFilterExpression,omitempty"`
}

type wantIndex struct {
	model   mongo.IndexModel
	name    string
	unique  bool
	partial bool
	sig     string
}

func keySig(keys bson.D) string {
	parts := make([]string, 0, len(keys))
	for _, kv := range keys {
		parts = append(parts, fmt.Sprintf("%s:%v", kv.Key, kv.Value))
	}
	return strings.Join(parts, ", ")
}

func describe(m mongo.IndexModel) wantIndex {
	w := wantIndex{model: m, sig: keySig(m.Keys.(bson.D))}
	if o := m.Options; o != nil {
		if o.Name != nil {
			w.name = *o.Name
		}
		w.unique = o.Unique != nil && *o.Unique
		w.partial = o.PartialFilterExpression != nil
	}
	return w
}

func (w wantIndex) matches(ex existingIndex) bool {
	exUnique := ex.Unique != nil && *ex.Unique
	return w.unique == exUnique && w.partial == (len(ex.Partial) > 0)
}

// Mongo/DocDB return IndexOptionsConflict when an index with the same keys
// exists under another name or with other options.
func isOptionsConflictErr(err error) bool {
	return err != nil && strings.Contains(err.Error(), "IndexOptionsConflict")
}

func listExisting(ctx context.Context, coll *mongo.Collection, log *zap.Logger) (map[string]existingIndex, error) {
	cur, err := coll.Indexes().List(ctx)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	out := map[string]existingIndex{}
	for cur.Next(ctx) {
		var idx existingIndex
		if err := cur.Decode(&idx); err != nil {
			log.Warn("failed to decode existing index",
				zap.String("collection", coll.Name()),
				zap.Error(err))
			continue
		}
		out[keySig(idx.Key)] = idx
	}
	return out, cur.Err()
}

func ensureIndexSet(ctx context.Context, coll *mongo.Collection, models []mongo.IndexModel, log *zap.Logger) error {
	existing, err := listExisting(ctx, coll, log)
	if err != nil {
		// A missing collection lists nothing; anything else is worth reporting
		// but creation below may still succeed.
		log.Debug("list indexes failed", zap.String("collection", coll.Name()), zap.Error(err))
		existing = map[string]existingIndex{}
	}

	var errs []string
	for _, m := range models {
		w := describe(m)
		start := time.Now()
		fields := []zap.Field{
			zap.String("collection", coll.Name()),
			zap.String("name", w.name),
			zap.String("keys", w.sig),
			zap.Bool("unique", w.unique),
		}

		ex, found := existing[w.sig]
		switch {
		case found && w.matches(ex) && (w.name == "" || ex.Name == w.name):
			log.Debug("reusing existing index", fields...)
			continue
		case found:
			// Same keys with a different name or options: drop and recreate.
			if _, err := coll.Indexes().DropOne(ctx, ex.Name); err != nil {
				log.Warn("drop existing index failed", append(fields, zap.String("existing", ex.Name), zap.Error(err))...)
				errs = append(errs, fmt.Sprintf("%s(%s): drop failed: %v", coll.Name(), w.name, err))
				continue
			}
		}

		if _, err := coll.Indexes().CreateOne(ctx, m); err != nil {
			switch {
			case w.unique && wafflemongo.IsDup(err):
				errs = append(errs, fmt.Sprintf("%s(%s): cannot create unique index (duplicates present)", coll.Name(), w.name))
			case isOptionsConflictErr(err):
				errs = append(errs, fmt.Sprintf("%s(%s): conflicting index exists: %v", coll.Name(), w.name, err))
			default:
				errs = append(errs, fmt.Sprintf("%s(%s): %v", coll.Name(), w.name, err))
			}
			log.Warn("index ensure failed", append(fields, zap.Duration("took", time.Since(start)), zap.Error(err))...)
			continue
		}
		log.Info("index ensured", append(fields, zap.Duration("took", time.Since(start)))...)
	}

	if len(errs) > 0 {
		return errors.New(strings.Join(errs, "; "))
	}
	return nil
}
