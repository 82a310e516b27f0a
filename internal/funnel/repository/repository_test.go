package repository

import (
	"fmt"
	"reflect"
	"testing"
	"time"

	"serenata_backend/internal/funnel/domain"

	"github.com/google/uuid"
)

// fakeRow feeds scanEntity a fixed column tuple, standing in for a joined
// database row. A nil value leaves the destination untouched (NULL column).
type fakeRow struct {
	vals []any
}

func (r fakeRow) Scan(dest ...any) error {
	if len(dest) != len(r.vals) {
		return fmt.Errorf("expected %d destinations, got %d", len(r.vals), len(dest))
	}
	for i, v := range r.vals {
		if v == nil {
			continue
		}
		reflect.ValueOf(dest[i]).Elem().Set(reflect.ValueOf(v))
	}
	return nil
}

func entityRow(id, orderID uuid.UUID, funnelQuiz, orderQuiz *uuid.UUID, created time.Time, pendingAt *time.Time) fakeRow {
	status := "pending"
	return fakeRow{vals: []any{
		id, orderID, "+5511987654321", "cliente@example.com",
		"pending", 1, false, nil,
		nil, funnelQuiz, orderQuiz, created, created,
		&status, int64(14990), created,
		pendingAt, 0, nil,
	}}
}

func TestScanEntityAdoptsOrderQuiz(t *testing.T) {
	created := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	orderQuiz := uuid.New()

	// The quiz landed on the order after enrollment snapshotted nil.
	e, err := scanEntity(entityRow(uuid.New(), uuid.New(), nil, &orderQuiz, created, nil))
	if err != nil {
		t.Fatalf("scanEntity: %v", err)
	}
	if e.QuizID == nil || *e.QuizID != orderQuiz {
		t.Fatalf("expected order quiz %s adopted, got %v", orderQuiz, e.QuizID)
	}
}

func TestScanEntityFunnelQuizWins(t *testing.T) {
	created := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	funnelQuiz := uuid.New()
	orderQuiz := uuid.New()

	e, err := scanEntity(entityRow(uuid.New(), uuid.New(), &funnelQuiz, &orderQuiz, created, nil))
	if err != nil {
		t.Fatalf("scanEntity: %v", err)
	}
	if e.QuizID == nil || *e.QuizID != funnelQuiz {
		t.Fatalf("expected funnel quiz %s kept, got %v", funnelQuiz, e.QuizID)
	}
}

func TestScanEntityDwellBasisFromPendingAt(t *testing.T) {
	created := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	pending := created.Add(50 * time.Minute)

	e, err := scanEntity(entityRow(uuid.New(), uuid.New(), nil, nil, created, &pending))
	if err != nil {
		t.Fatalf("scanEntity: %v", err)
	}
	if !e.OrderPendingAt.Equal(pending) {
		t.Fatalf("expected pending timestamp %v, got %v", pending, e.OrderPendingAt)
	}
	if !e.PendingSince().Equal(pending) {
		t.Fatalf("dwell basis must be the pending timestamp, got %v", e.PendingSince())
	}

	// Rows predating pending_at fall back to the order creation time.
	e, err = scanEntity(entityRow(uuid.New(), uuid.New(), nil, nil, created, nil))
	if err != nil {
		t.Fatalf("scanEntity: %v", err)
	}
	if !e.PendingSince().Equal(created) {
		t.Fatalf("expected creation-time fallback, got %v", e.PendingSince())
	}
	if e.Bucket != domain.BucketPending {
		t.Fatalf("expected pending bucket, got %s", e.Bucket)
	}
}
