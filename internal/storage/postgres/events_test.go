package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"

	"github.com/arbfarm/swarm/internal/domain/event"
)

func TestEventStore_SaveEventInsertsRow(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock new: %v", err)
	}
	defer db.Close()

	evt, err := event.New("edge_detected", event.AgentSource(event.AgentScanner), "arb.edge.detected", map[string]int{"n": 1})
	if err != nil {
		t.Fatalf("build event: %v", err)
	}

	mock.ExpectExec("INSERT INTO arb_events").
		WithArgs(evt.ID, evt.EventType, string(evt.Source.Kind), evt.Source.Name, evt.Topic, sqlmock.AnyArg(), evt.Timestamp, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))

	store := NewEventStore(db)
	if err := store.SaveEvent(context.Background(), evt); err != nil {
		t.Fatalf("save event: %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestEventStore_EventsByTopicTranslatesWildcardSuffixToLike(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock new: %v", err)
	}
	defer db.Close()

	id := uuid.New()
	rows := sqlmock.NewRows([]string{"id", "event_type", "source_kind", "source_name", "topic", "payload", "timestamp", "correlation_id"}).
		AddRow(id, "position_opened", "system", "", "arb.position.opened", []byte(`{}`), time.Now(), nil)

	mock.ExpectQuery("SELECT .* FROM arb_events").
		WithArgs("arb.position.%", 10).
		WillReturnRows(rows)

	store := NewEventStore(db)
	events, err := store.EventsByTopic(context.Background(), "arb.position.*", 10)
	if err != nil {
		t.Fatalf("events by topic: %v", err)
	}
	if len(events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(events))
	}
	if events[0].Topic != "arb.position.opened" {
		t.Fatalf("unexpected topic: %s", events[0].Topic)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestEventStore_EventsSinceRejectsMalformedEventID(t *testing.T) {
	db, _, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock new: %v", err)
	}
	defer db.Close()

	store := NewEventStore(db)
	if _, err := store.EventsSince(context.Background(), "not-a-uuid", nil, 10); err == nil {
		t.Fatal("expected error for malformed event id")
	}
}
