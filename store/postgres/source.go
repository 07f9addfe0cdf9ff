// Package postgres reads event snapshots from an upstream PostgreSQL events
// table. The warehouse never writes to it.
package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/ledgerone/warehouse/ledger"
)

// DefaultTable is the upstream table read by Snapshot.
const DefaultTable = "events"

// Source implements ledger.EventSource over a pgx connection pool.
type Source struct {
	Pool  *pgxpool.Pool
	Table string
}

var _ ledger.EventSource = (*Source)(nil)

// Connect opens a pool to url and checks it with a ping.
func Connect(ctx context.Context, url string) (*Source, error) {
	poolConfig, err := pgxpool.ParseConfig(url)
	if err != nil {
		return nil, fmt.Errorf("unable to parse database config: %w", err)
	}
	poolConfig.MaxConns = 4
	poolConfig.MaxConnLifetime = time.Hour
	poolConfig.MaxConnIdleTime = 30 * time.Minute

	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("unable to create connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("unable to ping database: %w", err)
	}
	return &Source{Pool: pool, Table: DefaultTable}, nil
}

// Close closes the pool.
func (s *Source) Close() {
	if s.Pool != nil {
		s.Pool.Close()
	}
}

// Snapshot reads every event inside one repeatable-read, read-only
// transaction, so rows committed during the read are not seen.
func (s *Source) Snapshot(ctx context.Context) ([]ledger.Event, error) {
	tx, err := s.Pool.BeginTx(ctx, pgx.TxOptions{
		IsoLevel:   pgx.RepeatableRead,
		AccessMode: pgx.ReadOnly,
	})
	if err != nil {
		return nil, fmt.Errorf("begin snapshot: %w", err)
	}
	defer tx.Rollback(ctx)

	table := s.Table
	if table == "" {
		table = DefaultTable
	}
	query := fmt.Sprintf(`
		SELECT event_id, event_ts, user_id, account_id, event_type, direction,
		       amount::text, currency, reference_id
		FROM %s
		ORDER BY event_ts ASC, event_id ASC
	`, pgx.Identifier{table}.Sanitize())

	rows, err := tx.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	var events []ledger.Event
	for rows.Next() {
		var (
			e         ledger.Event
			eventID   string
			userID    string
			accountID string
			eventType string
			direction string
			amount    string
			reference *string
		)
		if err := rows.Scan(&eventID, &e.EventTS, &userID, &accountID, &eventType,
			&direction, &amount, &e.Currency, &reference); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		e.EventID = ledger.EventID(eventID)
		e.UserID = ledger.UserID(userID)
		e.AccountID = ledger.AccountID(accountID)
		e.EventType = ledger.EventType(eventType)
		e.Direction = ledger.Direction(direction)
		e.EventTS = e.EventTS.UTC()
		if e.Amount, err = decimal.NewFromString(amount); err != nil {
			return nil, fmt.Errorf("event %s: bad amount %q: %w", eventID, amount, err)
		}
		if reference != nil {
			e.ReferenceID = ledger.EventID(*reference)
		}
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read events: %w", err)
	}
	return events, tx.Commit(ctx)
}
