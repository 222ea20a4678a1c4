package lifecycle

import (
	"context"
	"fmt"

	"github.com/dalemusser/interviewhub/internal/app/store/audit"
	"github.com/dalemusser/interviewhub/internal/app/system/apperr"
	"github.com/dalemusser/interviewhub/internal/app/system/authz"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// HistoryLimit caps the records one PairHistory call returns.
const HistoryLimit = 200

// PairHistory returns the pair's audit trail, newest first, with the total
// number of records. Operators only.
func (e *Engine) PairHistory(ctx context.Context, caller authz.Caller, pairID primitive.ObjectID) ([]audit.Event, int64, error) {
	if !caller.IsOperator() {
		return nil, 0, apperr.NotAuthorized("pair history is visible to operators only")
	}
	if _, err := e.load(ctx, pairID); err != nil {
		return nil, 0, err
	}
	events, total, err := e.audit.PairHistory(ctx, pairID, HistoryLimit)
	if err != nil {
		return nil, 0, fmt.Errorf("load pair history: %w", err)
	}
	return events, total, nil
}
