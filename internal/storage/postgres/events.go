package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/arbfarm/swarm/internal/domain/event"
	"github.com/arbfarm/swarm/internal/platform/apperr"
)

const eventsTable = "arb_events"

// EventStore implements eventbus.Repository over the arb_events table.
type EventStore struct {
	db *sql.DB
}

// NewEventStore constructs an EventStore.
func NewEventStore(db *sql.DB) *EventStore {
	return &EventStore{db: db}
}

// SaveEvent persists evt, matching store_postgres.go's
// marshal-then-parameterized-insert shape.
func (s *EventStore) SaveEvent(ctx context.Context, evt event.ArbEvent) (err error) {
	start := time.Now()
	defer func() { observe(eventsTable, "save", start, err) }()

	payload, marshalErr := json.Marshal(evt.Payload)
	if marshalErr != nil {
		return apperr.Serialization(marshalErr)
	}

	var correlationID sql.NullString
	if evt.CorrelationID != nil {
		correlationID = sql.NullString{String: evt.CorrelationID.String(), Valid: true}
	}

	_, err = s.db.ExecContext(ctxOrBackground(ctx), `
		INSERT INTO arb_events (
			id, event_type, source_kind, source_name, topic, payload, timestamp, correlation_id
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`,
		evt.ID, evt.EventType, evt.Source.Kind, evt.Source.Name, evt.Topic, payload, evt.Timestamp, correlationID,
	)
	if err != nil {
		return apperr.Database("save_event", err)
	}
	return nil
}

// EventsByTopic replays persisted events matching topicPattern, most recent
// first. A pattern ending in ".*" is translated to a SQL prefix LIKE, since
// event.MatchesPattern's wildcard convention has no direct SQL equivalent
// beyond that one suffix form (spec.md §4.A only ever uses the ".*" suffix).
func (s *EventStore) EventsByTopic(ctx context.Context, topicPattern string, limit int) (events []event.ArbEvent, err error) {
	start := time.Now()
	defer func() { observe(eventsTable, "by_topic", start, err) }()

	query := `
		SELECT id, event_type, source_kind, source_name, topic, payload, timestamp, correlation_id
		FROM arb_events
		WHERE `
	var args []any
	if strings.HasSuffix(topicPattern, ".*") {
		prefix := strings.TrimSuffix(topicPattern, ".*")
		query += "topic LIKE $1"
		args = append(args, prefix+"%")
	} else {
		query += "topic = $1"
		args = append(args, topicPattern)
	}
	query += " ORDER BY timestamp DESC"
	if limit > 0 {
		query += " LIMIT $2"
		args = append(args, limit)
	}

	rows, queryErr := s.db.QueryContext(ctxOrBackground(ctx), query, args...)
	if queryErr != nil {
		err = apperr.Database("events_by_topic", queryErr)
		return nil, err
	}
	defer rows.Close()

	events, err = scanEvents(rows)
	return events, err
}

// EventsSince replays events after eventID, oldest first, optionally
// filtered to topics (empty means all topics).
func (s *EventStore) EventsSince(ctx context.Context, eventID string, topics []string, limit int) (events []event.ArbEvent, err error) {
	start := time.Now()
	defer func() { observe(eventsTable, "since", start, err) }()

	id, parseErr := uuid.Parse(eventID)
	if parseErr != nil {
		err = apperr.BadRequest("invalid event id")
		return nil, err
	}

	query := `
		SELECT id, event_type, source_kind, source_name, topic, payload, timestamp, correlation_id
		FROM arb_events
		WHERE timestamp > (SELECT timestamp FROM arb_events WHERE id = $1)
	`
	args := []any{id}
	argNum := 2

	if len(topics) > 0 {
		placeholders := make([]string, len(topics))
		for i, topic := range topics {
			placeholders[i] = "$" + strconv.Itoa(argNum)
			args = append(args, topic)
			argNum++
		}
		query += " AND topic IN (" + strings.Join(placeholders, ", ") + ")"
	}

	query += " ORDER BY timestamp ASC"
	if limit > 0 {
		query += " LIMIT $" + strconv.Itoa(argNum)
		args = append(args, limit)
	}

	rows, queryErr := s.db.QueryContext(ctxOrBackground(ctx), query, args...)
	if queryErr != nil {
		err = apperr.Database("events_since", queryErr)
		return nil, err
	}
	defer rows.Close()

	events, err = scanEvents(rows)
	return events, err
}

func scanEvents(rows *sql.Rows) ([]event.ArbEvent, error) {
	var out []event.ArbEvent
	for rows.Next() {
		var (
			evt           event.ArbEvent
			sourceKind    string
			sourceName    string
			payload       []byte
			correlationID sql.NullString
		)
		if err := rows.Scan(&evt.ID, &evt.EventType, &sourceKind, &sourceName, &evt.Topic, &payload, &evt.Timestamp, &correlationID); err != nil {
			return nil, apperr.Database("scan_event", err)
		}
		evt.Source = event.Source{Kind: event.SourceKind(sourceKind), Name: sourceName}
		evt.Payload = payload
		if correlationID.Valid {
			if id, err := uuid.Parse(correlationID.String); err == nil {
				evt.CorrelationID = &id
			}
		}
		out = append(out, evt)
	}
	if err := rows.Err(); err != nil {
		return nil, apperr.Database("scan_events", err)
	}
	return out, nil
}
