// internal/journal/journal.go
package journal

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/doug-martin/goqu/v9"
	"github.com/google/uuid"
	jsoniter "github.com/json-iterator/go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"libraledger/internal/store"
)

const table = "events"

const (
	AggregateLoan = "loan"
	AggregateFine = "fine"
)

var (
	ErrConcurrencyConflict = errors.New("concurrency conflict: version mismatch")
	ErrInvalidVersion      = errors.New("invalid version number")
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Event is one recorded state transition of a loan or a fine.
type Event struct {
	ID            int64     `json:"id" db:"id" goqu:"skipinsert"`
	AggregateID   uuid.UUID `json:"aggregate_id" db:"aggregate_id"`
	AggregateType string    `json:"aggregate_type" db:"aggregate_type"`
	EventType     string    `json:"event_type" db:"event_type"`
	EventData     string    `json:"-" db:"event_data"`
	Version       int       `json:"version" db:"version"`
	CreatedAt     time.Time `json:"created_at" db:"created_at"`
}

// Payload returns the raw JSON payload, for rendering.
func (e Event) Payload() jsoniter.RawMessage {
	return jsoniter.RawMessage(e.EventData)
}

// Decode unmarshals the payload into v.
func (e Event) Decode(v any) error {
	return json.UnmarshalFromString(e.EventData, v)
}

// Journal appends domain events inside the caller's transaction, so an event
// is recorded iff the state change it describes commits.
type Journal struct {
	tracer trace.Tracer
	now    func() time.Time
}

// New creates a journal. now defaults to time.Now.
func New(now func() time.Time) *Journal {
	if now == nil {
		now = time.Now
	}
	return &Journal{
		tracer: otel.Tracer("libraledger/journal"),
		now:    now,
	}
}

// Append records one event at expectedVersion+1 with optimistic concurrency control.
func (j *Journal) Append(ctx context.Context, s *store.Session, aggregateID uuid.UUID, aggregateType string, expectedVersion int, eventType string, payload any) error {
	ctx, span := j.tracer.Start(ctx, "journal.append",
		trace.WithAttributes(
			attribute.String("aggregate.id", aggregateID.String()),
			attribute.String("aggregate.type", aggregateType),
			attribute.String("event.type", eventType),
			attribute.Int("expected.version", expectedVersion),
		),
	)
	defer span.End()

	if expectedVersion < 0 {
		return ErrInvalidVersion
	}

	current, err := j.CurrentVersion(ctx, s, aggregateID)
	if err != nil {
		return err
	}
	if current != expectedVersion {
		span.SetAttributes(
			attribute.Int("actual.version", current),
			attribute.Bool("conflict.detected", true),
		)
		return ErrConcurrencyConflict
	}

	data, err := json.MarshalToString(payload)
	if err != nil {
		return fmt.Errorf("encode %s payload: %w", eventType, err)
	}

	event := Event{
		AggregateID:   aggregateID,
		AggregateType: aggregateType,
		EventType:     eventType,
		EventData:     data,
		Version:       expectedVersion + 1,
		CreatedAt:     j.now().UTC(),
	}
	if _, err := s.Exec(ctx, s.Insert(table).Rows(event)); err != nil {
		if store.IsUniqueViolation(err) {
			return ErrConcurrencyConflict
		}
		return fmt.Errorf("insert event: %w", err)
	}

	span.AddEvent("event.appended", trace.WithAttributes(
		attribute.Int("event.version", event.Version),
	))
	return nil
}

// CurrentVersion returns the latest version recorded for an aggregate, 0 if none.
func (j *Journal) CurrentVersion(ctx context.Context, s *store.Session, aggregateID uuid.UUID) (int, error) {
	var version sql.NullInt64
	query := s.From(table).Select(goqu.MAX("version")).Where(goqu.C("aggregate_id").Eq(aggregateID))
	if err := s.Get(ctx, &version, query); err != nil {
		return 0, fmt.Errorf("query current version: %w", err)
	}
	return int(version.Int64), nil
}

// Load returns the events of one aggregate in version order.
func (j *Journal) Load(ctx context.Context, s *store.Session, aggregateID uuid.UUID) ([]Event, error) {
	ctx, span := j.tracer.Start(ctx, "journal.load",
		trace.WithAttributes(attribute.String("aggregate.id", aggregateID.String())),
	)
	defer span.End()

	events := []Event{}
	query := s.From(table).
		Where(goqu.C("aggregate_id").Eq(aggregateID)).
		Order(goqu.C("version").Asc())
	if err := s.Select(ctx, &events, query); err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}

	span.SetAttributes(attribute.Int("events.loaded", len(events)))
	return events, nil
}
