// Package postgres provides a PostgreSQL implementation of the event store
// adapter.
package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/eventfold/eventfold/adapters"
	_ "github.com/jackc/pgx/v5/stdlib"
)

// Sentinel errors for the postgres store.
// These are aliases to the adapters package errors for use with errors.Is().
var (
	ErrStoreClosed       = adapters.ErrStoreClosed
	ErrEmptyAggregateID  = adapters.ErrEmptyAggregateID
	ErrNoEvents          = adapters.ErrNoEvents
	ErrRevisionConflict  = adapters.ErrRevisionConflict
)

// Ensure PostgresStore implements the required interfaces.
var (
	_ adapters.EventStore    = (*PostgresStore)(nil)
	_ adapters.HealthChecker = (*PostgresStore)(nil)
)

// PostgresStore is a PostgreSQL implementation of adapters.EventStore.
type PostgresStore struct {
	db     *sql.DB
	schema string
	closed bool
}

// Option configures a PostgresStore.
type Option func(*PostgresStore)

// WithSchema sets the database schema name.
func WithSchema(schema string) Option {
	return func(s *PostgresStore) {
		s.schema = schema
	}
}

// WithMaxConnections sets the maximum number of open connections.
func WithMaxConnections(n int) Option {
	return func(s *PostgresStore) {
		s.db.SetMaxOpenConns(n)
	}
}

// WithConnectionMaxLifetime sets the maximum connection lifetime.
func WithConnectionMaxLifetime(d time.Duration) Option {
	return func(s *PostgresStore) {
		s.db.SetConnMaxLifetime(d)
	}
}

// NewStore creates a new PostgreSQL event store.
func NewStore(connStr string, opts ...Option) (*PostgresStore, error) {
	db, err := sql.Open("pgx", connStr)
	if err != nil {
		return nil, fmt.Errorf("eventfold/postgres: failed to open database: %w", err)
	}

	store := &PostgresStore{
		db:     db,
		schema: "eventfold",
	}

	for _, opt := range opts {
		opt(store)
	}

	return store, nil
}

// NewStoreWithDB creates a new store with an existing database connection.
func NewStoreWithDB(db *sql.DB, opts ...Option) *PostgresStore {
	store := &PostgresStore{
		db:     db,
		schema: "eventfold",
	}

	for _, opt := range opts {
		opt(store)
	}

	return store
}

// Initialize creates the required database schema and tables.
func (s *PostgresStore) Initialize(ctx context.Context) error {
	if s.closed {
		return ErrStoreClosed
	}

	_, err := s.db.ExecContext(ctx, fmt.Sprintf(`CREATE SCHEMA IF NOT EXISTS %s`, s.schema))
	if err != nil {
		return fmt.Errorf("eventfold/postgres: failed to create schema: %w", err)
	}

	aggregatesSQL := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s.aggregates (
			aggregate_id    VARCHAR(500) PRIMARY KEY,
			revision        BIGINT NOT NULL DEFAULT 0,
			created_at      TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at      TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`, s.schema)

	if _, err = s.db.ExecContext(ctx, aggregatesSQL); err != nil {
		return fmt.Errorf("eventfold/postgres: failed to create aggregates table: %w", err)
	}

	eventsSQL := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s.events (
			position          BIGSERIAL PRIMARY KEY,
			event_id          UUID NOT NULL,
			aggregate_id      VARCHAR(500) NOT NULL,
			context           VARCHAR(250) NOT NULL,
			aggregate_name    VARCHAR(250) NOT NULL,
			name              VARCHAR(250) NOT NULL,
			data              BYTEA NOT NULL,
			user_id           VARCHAR(250) NOT NULL,
			correlation_id    VARCHAR(250),
			causation_id      VARCHAR(250),
			revision          BIGINT NOT NULL,
			owner             VARCHAR(250),
			for_authenticated BOOLEAN NOT NULL DEFAULT FALSE,
			for_public        BOOLEAN NOT NULL DEFAULT FALSE,
			published         BOOLEAN NOT NULL DEFAULT FALSE,
			timestamp         TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			UNIQUE(aggregate_id, revision)
		)`, s.schema)

	if _, err = s.db.ExecContext(ctx, eventsSQL); err != nil {
		return fmt.Errorf("eventfold/postgres: failed to create events table: %w", err)
	}

	indexes := []string{
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS idx_events_aggregate ON %s.events(aggregate_id, revision)`, s.schema),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS idx_events_unpublished ON %s.events(position) WHERE NOT published`, s.schema),
	}
	for _, idx := range indexes {
		if _, err = s.db.ExecContext(ctx, idx); err != nil {
			return fmt.Errorf("eventfold/postgres: failed to create index: %w", err)
		}
	}

	snapshotsSQL := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s.snapshots (
			aggregate_id    VARCHAR(500) PRIMARY KEY,
			state           BYTEA NOT NULL,
			revision        BIGINT NOT NULL,
			updated_at      TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`, s.schema)

	if _, err = s.db.ExecContext(ctx, snapshotsSQL); err != nil {
		return fmt.Errorf("eventfold/postgres: failed to create snapshots table: %w", err)
	}

	return nil
}

// SaveEvents appends one batch of events atomically with a revision check.
func (s *PostgresStore) SaveEvents(ctx context.Context, records []adapters.EventRecord) ([]adapters.StoredEvent, error) {
	if s.closed {
		return nil, ErrStoreClosed
	}

	if err := adapters.ValidateBatch(records); err != nil {
		return nil, err
	}

	aggregateID := records[0].AggregateID

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("eventfold/postgres: failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	// Current revision, locked against concurrent appenders.
	var currentRevision int64
	var exists bool

	err = tx.QueryRowContext(ctx, fmt.Sprintf(`
		SELECT revision FROM %s.aggregates
		WHERE aggregate_id = $1
		FOR UPDATE`, s.schema), aggregateID).Scan(&currentRevision)

	switch {
	case err == sql.ErrNoRows:
		exists = false
	case err != nil:
		return nil, fmt.Errorf("eventfold/postgres: failed to get aggregate revision: %w", err)
	default:
		exists = true
	}

	if records[0].Revision != currentRevision+1 {
		return nil, adapters.NewRevisionConflictError(aggregateID, records[0].Revision, currentRevision)
	}

	if !exists {
		_, err = tx.ExecContext(ctx, fmt.Sprintf(`
			INSERT INTO %s.aggregates (aggregate_id, revision)
			VALUES ($1, 0)`, s.schema), aggregateID)
		if err != nil {
			return nil, fmt.Errorf("eventfold/postgres: failed to create aggregate row: %w", err)
		}
	}

	stored := make([]adapters.StoredEvent, len(records))
	for i, record := range records {
		var position uint64
		var timestamp time.Time

		err = tx.QueryRowContext(ctx, fmt.Sprintf(`
			INSERT INTO %s.events (
				event_id, aggregate_id, context, aggregate_name, name, data,
				user_id, correlation_id, causation_id, revision,
				owner, for_authenticated, for_public
			)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
			RETURNING position, timestamp`, s.schema),
			record.ID, record.AggregateID, record.Context, record.AggregateName,
			record.Name, record.Data, record.UserID, record.CorrelationID,
			record.CausationID, record.Revision, record.Owner,
			record.ForAuthenticated, record.ForPublic,
		).Scan(&position, &timestamp)

		if err != nil {
			return nil, fmt.Errorf("eventfold/postgres: failed to insert event: %w", err)
		}

		stored[i] = adapters.StoredEvent{
			EventRecord: record,
			Position:    position,
			Timestamp:   timestamp,
		}
	}

	_, err = tx.ExecContext(ctx, fmt.Sprintf(`
		UPDATE %s.aggregates
		SET revision = $2, updated_at = NOW()
		WHERE aggregate_id = $1`, s.schema),
		aggregateID, records[len(records)-1].Revision)
	if err != nil {
		return nil, fmt.Errorf("eventfold/postgres: failed to update aggregate revision: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("eventfold/postgres: failed to commit: %w", err)
	}

	return stored, nil
}

const eventColumns = `event_id, aggregate_id, context, aggregate_name, name, data,
	user_id, correlation_id, causation_id, revision,
	owner, for_authenticated, for_public, position, published, timestamp`

// GetEventStream returns the aggregate's events from the given revision on.
func (s *PostgresStore) GetEventStream(ctx context.Context, aggregateID string, fromRevision int64) (adapters.EventStream, error) {
	if s.closed {
		return nil, ErrStoreClosed
	}
	if aggregateID == "" {
		return nil, ErrEmptyAggregateID
	}

	rows, err := s.db.QueryContext(ctx, fmt.Sprintf(`
		SELECT %s FROM %s.events
		WHERE aggregate_id = $1 AND revision >= $2
		ORDER BY revision`, eventColumns, s.schema),
		aggregateID, fromRevision)
	if err != nil {
		return nil, fmt.Errorf("eventfold/postgres: failed to query events: %w", err)
	}

	return &rowsStream{rows: rows}, nil
}

// GetUnpublishedEventStream returns all unpublished events in position order.
func (s *PostgresStore) GetUnpublishedEventStream(ctx context.Context) (adapters.EventStream, error) {
	if s.closed {
		return nil, ErrStoreClosed
	}

	rows, err := s.db.QueryContext(ctx, fmt.Sprintf(`
		SELECT %s FROM %s.events
		WHERE NOT published
		ORDER BY position`, eventColumns, s.schema))
	if err != nil {
		return nil, fmt.Errorf("eventfold/postgres: failed to query unpublished events: %w", err)
	}

	return &rowsStream{rows: rows}, nil
}

// GetSnapshot returns the latest snapshot for the aggregate, or nil.
func (s *PostgresStore) GetSnapshot(ctx context.Context, aggregateID string) (*adapters.SnapshotRecord, error) {
	if s.closed {
		return nil, ErrStoreClosed
	}
	if aggregateID == "" {
		return nil, ErrEmptyAggregateID
	}

	var record adapters.SnapshotRecord
	err := s.db.QueryRowContext(ctx, fmt.Sprintf(`
		SELECT aggregate_id, state, revision FROM %s.snapshots
		WHERE aggregate_id = $1`, s.schema), aggregateID).
		Scan(&record.AggregateID, &record.State, &record.Revision)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("eventfold/postgres: failed to get snapshot: %w", err)
	}

	return &record, nil
}

// SaveSnapshot stores a snapshot, replacing any previous one.
func (s *PostgresStore) SaveSnapshot(ctx context.Context, record adapters.SnapshotRecord) error {
	if s.closed {
		return ErrStoreClosed
	}
	if record.AggregateID == "" {
		return ErrEmptyAggregateID
	}

	_, err := s.db.ExecContext(ctx, fmt.Sprintf(`
		INSERT INTO %s.snapshots (aggregate_id, state, revision, updated_at)
		VALUES ($1, $2, $3, NOW())
		ON CONFLICT (aggregate_id)
		DO UPDATE SET state = $2, revision = $3, updated_at = NOW()`, s.schema),
		record.AggregateID, record.State, record.Revision)
	if err != nil {
		return fmt.Errorf("eventfold/postgres: failed to save snapshot: %w", err)
	}

	return nil
}

// MarkEventsAsPublished marks the revision range as published. Idempotent.
func (s *PostgresStore) MarkEventsAsPublished(ctx context.Context, aggregateID string, fromRevision, toRevision int64) error {
	if s.closed {
		return ErrStoreClosed
	}
	if aggregateID == "" {
		return ErrEmptyAggregateID
	}

	_, err := s.db.ExecContext(ctx, fmt.Sprintf(`
		UPDATE %s.events
		SET published = TRUE
		WHERE aggregate_id = $1 AND revision BETWEEN $2 AND $3`, s.schema),
		aggregateID, fromRevision, toRevision)
	if err != nil {
		return fmt.Errorf("eventfold/postgres: failed to mark events as published: %w", err)
	}

	return nil
}

// Ping checks if the database connection is healthy.
func (s *PostgresStore) Ping(ctx context.Context) error {
	if s.closed {
		return ErrStoreClosed
	}
	return s.db.PingContext(ctx)
}

// Close releases the database connection.
func (s *PostgresStore) Close() error {
	s.closed = true
	return s.db.Close()
}

// rowsStream adapts sql.Rows to adapters.EventStream.
type rowsStream struct {
	rows    *sql.Rows
	current adapters.StoredEvent
	err     error
}

func (s *rowsStream) Next() bool {
	if s.err != nil {
		return false
	}
	if !s.rows.Next() {
		s.err = s.rows.Err()
		return false
	}

	var event adapters.StoredEvent
	var correlationID, causationID, owner sql.NullString
	if err := s.rows.Scan(
		&event.ID, &event.AggregateID, &event.Context, &event.AggregateName,
		&event.Name, &event.Data, &event.UserID, &correlationID, &causationID,
		&event.Revision, &owner, &event.ForAuthenticated, &event.ForPublic,
		&event.Position, &event.Published, &event.Timestamp,
	); err != nil {
		s.err = fmt.Errorf("eventfold/postgres: failed to scan event: %w", err)
		return false
	}
	event.CorrelationID = correlationID.String
	event.CausationID = causationID.String
	event.Owner = owner.String

	s.current = event
	return true
}

func (s *rowsStream) Event() *adapters.StoredEvent {
	return &s.current
}

func (s *rowsStream) Err() error {
	return s.err
}

func (s *rowsStream) Close() error {
	return s.rows.Close()
}
