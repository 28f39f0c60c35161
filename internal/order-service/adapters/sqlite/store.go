// Package sqlite provides the SQLite-backed event store of the order service.
//
// Every Save appends the aggregate's pending events to the events journal and
// queues a copy of each in the outbox, in one transaction. Concurrent writers
// of one aggregate are told apart by the unique (aggregate_id,
// aggregate_version) index: the loser gets ErrConcurrencyConflict.
package sqlite

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/golang-migrate/migrate/v4"
	migratesqlite "github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jmoiron/sqlx"
	sqlite "modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/jcmexdev/ecommerce-orders/internal/order-service/domain"
)

//go:embed migrations/*.sql
var migrations embed.FS

var (
	// ErrEventStore wraps every storage failure. Callers may retry the whole
	// command; the store never retries on its own.
	ErrEventStore = errors.New("event store failure")
	// ErrConcurrencyConflict means another writer appended to the same
	// aggregate first.
	ErrConcurrencyConflict = errors.New("concurrent modification of aggregate")
)

const timeLayout = "2006-01-02T15:04:05.999999999Z07:00"

type EventStore struct {
	db       *sqlx.DB
	registry *domain.Registry
	now      func() time.Time
}

// Open opens (or creates) the database at path and migrates it to the
// latest schema.
//
//	store, err := sqlite.Open("./data/orders.db", domain.DefaultRegistry())
func Open(path string, registry *domain.Registry) (*EventStore, error) {
	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=foreign_keys(on)&_pragma=busy_timeout(5000)", path)

	db, err := sqlx.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("sqlite: open %q: %w", path, err)
	}
	// one writer connection; transactions queue behind each other
	db.SetMaxOpenConns(1)

	if err := applyMigrations(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	if registry == nil {
		registry = domain.DefaultRegistry()
	}
	return &EventStore{db: db, registry: registry, now: time.Now}, nil
}

func (s *EventStore) Close() error {
	return s.db.Close()
}

// Ping reports whether the database is reachable.
func (s *EventStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func applyMigrations(db *sqlx.DB) error {
	src, err := iofs.New(migrations, "migrations")
	if err != nil {
		return fmt.Errorf("sqlite: load migrations: %w", err)
	}
	driver, err := migratesqlite.WithInstance(db.DB, &migratesqlite.Config{})
	if err != nil {
		return fmt.Errorf("sqlite: migration driver: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", src, "sqlite", driver)
	if err != nil {
		return fmt.Errorf("sqlite: migrator: %w", err)
	}
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("sqlite: apply migrations: %w", err)
	}
	return nil
}

type eventRow struct {
	EventID          string `db:"event_id"`
	EventType        string `db:"event_type"`
	DecodeTarget     string `db:"decode_target"`
	AggregateID      string `db:"aggregate_id"`
	AggregateVersion int64  `db:"aggregate_version"`
	OccurredOn       string `db:"occurred_on"`
	Who              string `db:"who"`
	TraceID          string `db:"trace_id"`
	Payload          string `db:"payload"`
}

func toRow(evt domain.Event) (eventRow, error) {
	meta := evt.Meta()
	payload, err := json.Marshal(evt)
	if err != nil {
		return eventRow{}, fmt.Errorf("encode %s %s: %w", meta.EventType, meta.EventID, err)
	}
	return eventRow{
		EventID:          meta.EventID,
		EventType:        meta.EventType,
		DecodeTarget:     meta.DecodeTarget,
		AggregateID:      meta.AggregateID,
		AggregateVersion: meta.AggregateVersion,
		OccurredOn:       formatTime(meta.OccurredOn),
		Who:              meta.Who,
		TraceID:          meta.TraceID,
		Payload:          string(payload),
	}, nil
}

const insertEvent = `
	INSERT INTO events
		(event_id, event_type, decode_target, aggregate_id, aggregate_version, occurred_on, who, trace_id, payload)
	VALUES
		(:event_id, :event_type, :decode_target, :aggregate_id, :aggregate_version, :occurred_on, :who, :trace_id, :payload)`

const insertOutbox = `
	INSERT INTO outbox
		(event_id, event_type, aggregate_id, aggregate_version, occurred_on, who, trace_id, payload, status)
	VALUES
		(:event_id, :event_type, :aggregate_id, :aggregate_version, :occurred_on, :who, :trace_id, :payload, 'PENDING')`

// Save appends the order's pending events and their outbox copies. When the
// first pending event is not version 0 the stored head must be exactly the
// version before it, otherwise the save is rejected as a conflict.
func (s *EventStore) Save(ctx context.Context, order *domain.Order) error {
	pending := order.PendingEvents()
	if len(pending) == 0 {
		return nil
	}
	id := order.ID()

	rows := make([]eventRow, 0, len(pending))
	for _, evt := range pending {
		row, err := toRow(evt)
		if err != nil {
			return fmt.Errorf("%w: sqlite: save order %s: %v", ErrEventStore, id, err)
		}
		rows = append(rows, row)
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: sqlite: begin save of order %s: %w", ErrEventStore, id, err)
	}
	defer func() { _ = tx.Rollback() }()

	if first := rows[0].AggregateVersion; first > 0 {
		var head sql.NullInt64
		if err := tx.GetContext(ctx, &head, `SELECT MAX(aggregate_version) FROM events WHERE aggregate_id = ?`, string(id)); err != nil {
			return fmt.Errorf("%w: sqlite: read head of order %s: %w", ErrEventStore, id, err)
		}
		if !head.Valid || head.Int64 != first-1 {
			return fmt.Errorf("%w: %w: order %s expected head %d", ErrEventStore, ErrConcurrencyConflict, id, first-1)
		}
	}

	for _, row := range rows {
		if _, err := tx.NamedExecContext(ctx, insertEvent, row); err != nil {
			if isVersionConflict(err) {
				return fmt.Errorf("%w: %w: order %s version %d", ErrEventStore, ErrConcurrencyConflict, id, row.AggregateVersion)
			}
			return fmt.Errorf("%w: sqlite: append event %s: %w", ErrEventStore, row.EventID, err)
		}
		if _, err := tx.NamedExecContext(ctx, insertOutbox, row); err != nil {
			return fmt.Errorf("%w: sqlite: queue event %s: %w", ErrEventStore, row.EventID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%w: sqlite: commit order %s: %w", ErrEventStore, id, err)
	}
	return nil
}

// LoadEvents returns the stored history of id ordered by aggregate version.
// An empty slice means the order does not exist.
func (s *EventStore) LoadEvents(ctx context.Context, id domain.OrderID) ([]domain.Event, error) {
	var rows []eventRow
	const q = `
		SELECT event_id, event_type, decode_target, aggregate_id, aggregate_version,
		       occurred_on, who, trace_id, payload
		FROM   events
		WHERE  aggregate_id = ?
		ORDER  BY aggregate_version ASC`
	if err := s.db.SelectContext(ctx, &rows, q, string(id)); err != nil {
		return nil, fmt.Errorf("%w: sqlite: load events of order %s: %w", ErrEventStore, id, err)
	}

	events := make([]domain.Event, 0, len(rows))
	for _, row := range rows {
		evt, err := s.registry.Decode(row.EventType, []byte(row.Payload))
		if err != nil {
			return nil, fmt.Errorf("%w: sqlite: event %s of order %s: %w", ErrEventStore, row.EventID, id, err)
		}
		if _, unknown := evt.(domain.UnknownEvent); unknown {
			return nil, fmt.Errorf("%w: sqlite: event %s of order %s: %w", ErrEventStore, row.EventID, id,
				&domain.UnknownEventKindError{Kind: row.EventType})
		}
		events = append(events, evt)
	}
	return events, nil
}

// isVersionConflict reports a collision on (aggregate_id, aggregate_version).
// The driver reports extended result codes, so a duplicate event_id surfaces
// as SQLITE_CONSTRAINT_PRIMARYKEY and is not a conflict.
func isVersionConflict(err error) bool {
	var sqliteErr *sqlite.Error
	if !errors.As(err, &sqliteErr) {
		return false
	}
	return sqliteErr.Code() == sqlite3.SQLITE_CONSTRAINT_UNIQUE
}
