package auditlog_test

import (
	"testing"
	"time"

	"github.com/dalemusser/interviewhub/internal/app/store/audit"
	"github.com/dalemusser/interviewhub/internal/app/system/auditlog"
	"github.com/dalemusser/interviewhub/internal/testutil"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestLogger_NilLogger(t *testing.T) {
	// nil logger should be a no-op (not panic)
	var logger *auditlog.Logger
	ctx, cancel := testutil.TestContext()
	defer cancel()

	logger.Log(ctx, audit.Event{EventType: "test"})
	logger.PairsGenerated(ctx, primitive.NewObjectID(), primitive.NewObjectID(), "r1", 2, nil)
	logger.PairAbandoned(ctx, nil, primitive.NewObjectID(), primitive.NewObjectID(), "event_ended")
	if events, total, err := logger.PairHistory(ctx, primitive.NewObjectID(), 10); err != nil || total != 0 || len(events) != 0 {
		t.Errorf("PairHistory on nil logger: got %d/%d/%v", len(events), total, err)
	}
}

func TestLogger_Log_ConfigOff(t *testing.T) {
	db := testutil.SetupTestDB(t)
	store := audit.New(db)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	logger := auditlog.New(store, zap.NewNop(), auditlog.Config{Pairs: "off", Roster: "off"})

	pairID := primitive.NewObjectID()
	logger.SlotsProposed(ctx, primitive.NewObjectID(), primitive.NewObjectID(), pairID, 2)

	events, err := store.GetByPair(ctx, pairID, 10)
	if err != nil {
		t.Fatalf("GetByPair failed: %v", err)
	}
	if len(events) != 0 {
		t.Error("expected no events when config is 'off'")
	}
}

func TestLogger_Log_ConfigDB(t *testing.T) {
	db := testutil.SetupTestDB(t)
	store := audit.New(db)
	core, logs := observer.New(zapcore.InfoLevel)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	logger := auditlog.New(store, zap.New(core), auditlog.Config{Pairs: "db", Roster: "off"})

	pairID := primitive.NewObjectID()
	logger.PairScheduled(ctx, primitive.NewObjectID(), pairID, time.Date(2026, 3, 1, 15, 0, 0, 0, time.UTC))

	events, err := store.GetByPair(ctx, pairID, 10)
	if err != nil {
		t.Fatalf("GetByPair failed: %v", err)
	}
	if len(events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(events))
	}
	if events[0].Details["scheduled_at"] != "2026-03-01T15:00:00Z" {
		t.Errorf("scheduled_at detail: got %q", events[0].Details["scheduled_at"])
	}
	if logs.Len() != 0 {
		t.Errorf("expected no zap entries for 'db', got %d", logs.Len())
	}
}

func TestLogger_Log_ConfigLog(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	// No store: "log" must not touch MongoDB.
	logger := auditlog.New(nil, zap.New(core), auditlog.Config{Pairs: "log", Roster: "log"})

	logger.FeedbackRejected(ctx, primitive.NewObjectID(), primitive.NewObjectID(), "ALREADY_SUBMITTED")
	logger.ParticipantJoined(ctx, primitive.NewObjectID(), primitive.NewObjectID(), "")

	entries := logs.All()
	if len(entries) != 2 {
		t.Fatalf("expected 2 zap entries, got %d", len(entries))
	}
	if entries[0].Level != zapcore.WarnLevel {
		t.Errorf("failed event level: got %v, want warn", entries[0].Level)
	}
	if entries[1].Level != zapcore.InfoLevel {
		t.Errorf("success event level: got %v, want info", entries[1].Level)
	}
	if got := entries[0].ContextMap()["failure_reason"]; got != "ALREADY_SUBMITTED" {
		t.Errorf("failure_reason: got %v", got)
	}
}

func TestLogger_PairHistory(t *testing.T) {
	db := testutil.SetupTestDB(t)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	logger := auditlog.New(audit.New(db), zap.NewNop(), auditlog.Config{Pairs: "db", Roster: "db"})
	actor, eventID, pairID := primitive.NewObjectID(), primitive.NewObjectID(), primitive.NewObjectID()

	logger.SlotsProposed(ctx, actor, eventID, pairID, 3)
	logger.ProposalRejected(ctx, actor, eventID, pairID, 1)
	logger.SlotsProposed(ctx, actor, eventID, primitive.NewObjectID(), 1)

	events, total, err := logger.PairHistory(ctx, pairID, 1)
	if err != nil {
		t.Fatalf("PairHistory failed: %v", err)
	}
	if total != 2 {
		t.Errorf("total: got %d, want 2", total)
	}
	if len(events) != 1 {
		t.Fatalf("events: got %d, want 1 (limited)", len(events))
	}
	if *events[0].PairID != pairID {
		t.Errorf("event belongs to pair %s, want %s", events[0].PairID.Hex(), pairID.Hex())
	}
}
