// internal/app/system/txn/txn.go
package txn

import (
	"context"
	"errors"
	"strings"

	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap"
)

// Run executes fn inside a multi-document transaction on db's client.
//
// When the deployment cannot run transactions (a standalone mongod in
// development), Run logs once per call and runs fn directly with ctx.
// Callers must keep fn safe to run without a transaction, typically by
// writing the document that decides the outcome first.
func Run(ctx context.Context, db *mongo.Database, log *zap.Logger, fn func(ctx context.Context) error) error {
	sess, err := db.Client().StartSession()
	if err != nil {
		if IsNotSupported(err) {
			return runDirect(ctx, log, err, fn)
		}
		return err
	}
	defer sess.EndSession(ctx)

	_, err = sess.WithTransaction(ctx, func(sc mongo.SessionContext) (interface{}, error) {
		return nil, fn(sc)
	})
	if err != nil && IsNotSupported(err) {
		return runDirect(ctx, log, err, fn)
	}
	return err
}

func runDirect(ctx context.Context, log *zap.Logger, cause error, fn func(ctx context.Context) error) error {
	if log != nil {
		log.Debug("transactions not supported, running without", zap.Error(cause))
	}
	return fn(ctx)
}

// IsNotSupported reports whether err says the server cannot run
// transactions or sessions.
func IsNotSupported(err error) bool {
	if err == nil {
		return false
	}

	var ce mongo.CommandError
	if errors.As(err, &ce) {
		switch ce.Code {
		case 20, 51, 263:
			return true
		}
	}

	msg := strings.ToLower(err.Error())
	pairs := [][2]string{
		{"transaction", "replica set"},
		{"session", "not supported"},
		{"transaction", "session"},
		{"illegal operation", ""},
	}
	for _, p := range pairs {
		if strings.Contains(msg, p[0]) && (p[1] == "" || strings.Contains(msg, p[1])) {
			return true
		}
	}
	return false
}
