package sqlite

import (
	"context"
	"fmt"
	"time"
)

type OutboxStatus string

const (
	OutboxPending   OutboxStatus = "PENDING"
	OutboxPublished OutboxStatus = "PUBLISHED"
	OutboxFailed    OutboxStatus = "FAILED"
)

// OutboxEntry is an event waiting to be published.
type OutboxEntry struct {
	EventID          string
	EventType        string
	AggregateID      string
	AggregateVersion int64
	OccurredOn       time.Time
	Who              string
	TraceID          string
	Payload          []byte
	Attempts         int
}

type outboxRow struct {
	EventID          string `db:"event_id"`
	EventType        string `db:"event_type"`
	AggregateID      string `db:"aggregate_id"`
	AggregateVersion int64  `db:"aggregate_version"`
	OccurredOn       string `db:"occurred_on"`
	Who              string `db:"who"`
	TraceID          string `db:"trace_id"`
	Payload          string `db:"payload"`
	Attempts         int    `db:"attempts"`
}

// PendingOutbox returns up to limit pending entries in the order they were
// written. An order with a FAILED entry is held back from that version on.
func (s *EventStore) PendingOutbox(ctx context.Context, limit int) ([]OutboxEntry, error) {
	const q = `
		SELECT o.event_id, o.event_type, o.aggregate_id, o.aggregate_version, o.occurred_on,
		       o.who, o.trace_id, o.payload, o.attempts
		FROM   outbox o
		WHERE  o.status = ?
		AND    NOT EXISTS (
		           SELECT 1
		           FROM   outbox p
		           WHERE  p.aggregate_id = o.aggregate_id
		           AND    p.aggregate_version < o.aggregate_version
		           AND    p.status = ?
		       )
		ORDER  BY o.rowid ASC
		LIMIT  ?`

	var rows []outboxRow
	if err := s.db.SelectContext(ctx, &rows, q, string(OutboxPending), string(OutboxFailed), limit); err != nil {
		return nil, fmt.Errorf("%w: sqlite: list pending outbox: %w", ErrEventStore, err)
	}

	entries := make([]OutboxEntry, 0, len(rows))
	for _, row := range rows {
		occurredOn, err := parseTime(row.OccurredOn)
		if err != nil {
			return nil, fmt.Errorf("%w: outbox entry %s: %w", ErrEventStore, row.EventID, err)
		}
		entries = append(entries, OutboxEntry{
			EventID:          row.EventID,
			EventType:        row.EventType,
			AggregateID:      row.AggregateID,
			AggregateVersion: row.AggregateVersion,
			OccurredOn:       occurredOn,
			Who:              row.Who,
			TraceID:          row.TraceID,
			Payload:          []byte(row.Payload),
			Attempts:         row.Attempts,
		})
	}
	return entries, nil
}

func (s *EventStore) MarkOutboxPublished(ctx context.Context, eventID string) error {
	const q = `UPDATE outbox SET status = ?, published_at = ?, last_error = '' WHERE event_id = ?`
	if _, err := s.db.ExecContext(ctx, q, string(OutboxPublished), formatTime(s.now()), eventID); err != nil {
		return fmt.Errorf("%w: sqlite: mark %s published: %w", ErrEventStore, eventID, err)
	}
	return nil
}

// MarkOutboxFailed records a failed publish. Once attempts reaches
// maxAttempts the entry is parked as FAILED and no longer picked up.
func (s *EventStore) MarkOutboxFailed(ctx context.Context, eventID string, cause error, maxAttempts int) error {
	const q = `
		UPDATE outbox
		SET    attempts   = attempts + 1,
		       last_error = ?,
		       status     = CASE WHEN attempts + 1 >= ? THEN ? ELSE status END
		WHERE  event_id = ?`
	if _, err := s.db.ExecContext(ctx, q, cause.Error(), maxAttempts, string(OutboxFailed), eventID); err != nil {
		return fmt.Errorf("%w: sqlite: mark %s failed: %w", ErrEventStore, eventID, err)
	}
	return nil
}

// OutboxSummary counts outbox entries per status.
func (s *EventStore) OutboxSummary(ctx context.Context) (map[OutboxStatus]int, error) {
	var rows []struct {
		Status string `db:"status"`
		Count  int    `db:"n"`
	}
	if err := s.db.SelectContext(ctx, &rows, `SELECT status, COUNT(*) AS n FROM outbox GROUP BY status`); err != nil {
		return nil, fmt.Errorf("%w: sqlite: summarize outbox: %w", ErrEventStore, err)
	}
	out := map[OutboxStatus]int{OutboxPending: 0, OutboxPublished: 0, OutboxFailed: 0}
	for _, r := range rows {
		out[OutboxStatus(r.Status)] = r.Count
	}
	return out, nil
}
