// Package store provides in-memory implementations of the ledger storage
// interfaces.
package store

import (
	"context"
	"sync"

	"github.com/ledgerone/warehouse/ledger"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================

// Memory is an append-only event log, a publisher of derived tables and a
// run recorder. Published tables are swapped under a single lock, so readers
// never observe a partial publication.
type Memory struct {
	mu        sync.RWMutex
	events    []ledger.Event
	eventIDs  map[ledger.EventID]bool
	published *ledger.Tables
	runs      []ledger.RunRecord
}

func NewMemory() *Memory {
	return &Memory{eventIDs: make(map[ledger.EventID]bool)}
}

var (
	_ ledger.EventStore  = (*Memory)(nil)
	_ ledger.Publisher   = (*Memory)(nil)
	_ ledger.TableReader = (*Memory)(nil)
	_ ledger.RunRecorder = (*Memory)(nil)
)

// =============================================================================
// EVENTS
// =============================================================================

// AppendEvents adds events atomically. Append-only.
func (m *Memory) AppendEvents(_ context.Context, events []ledger.Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	// Check all ids first (atomic check)
	batch := make(map[ledger.EventID]bool, len(events))
	for _, e := range events {
		if e.EventID == "" {
			continue
		}
		if m.eventIDs[e.EventID] || batch[e.EventID] {
			return ledger.ErrDuplicateEvent
		}
		batch[e.EventID] = true
	}

	m.events = append(m.events, events...)
	for id := range batch {
		m.eventIDs[id] = true
	}
	return nil
}

// AppendUnchecked adds events without the duplicate check, the way an
// upstream producer with at-least-once delivery would.
func (m *Memory) AppendUnchecked(events []ledger.Event) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, events...)
	for _, e := range events {
		if e.EventID != "" {
			m.eventIDs[e.EventID] = true
		}
	}
}

func (m *Memory) Snapshot(_ context.Context) ([]ledger.Event, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]ledger.Event, len(m.events))
	copy(out, m.events)
	return out, nil
}

// =============================================================================
// DERIVED TABLES
// =============================================================================

// Publish replaces every derived table at once.
func (m *Memory) Publish(_ context.Context, tables *ledger.Tables) error {
	cp := &ledger.Tables{
		LedgerEntries:    append([]ledger.LedgerEntry(nil), tables.LedgerEntries...),
		FactTransactions: append([]ledger.LedgerEntry(nil), tables.FactTransactions...),
		DailyBalances:    append([]ledger.AccountBalance(nil), tables.DailyBalances...),
		MonthlyRevenue:   append([]ledger.MonthlyRevenue(nil), tables.MonthlyRevenue...),
		Fingerprint:      tables.Fingerprint,
	}
	m.mu.Lock()
	m.published = cp
	m.mu.Unlock()
	return nil
}

func (m *Memory) tables() (*ledger.Tables, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.published == nil {
		return nil, ledger.ErrNotPublished
	}
	return m.published, nil
}

func (m *Memory) LedgerEntries(_ context.Context, account ledger.AccountID) ([]ledger.LedgerEntry, error) {
	t, err := m.tables()
	if err != nil {
		return nil, err
	}
	var out []ledger.LedgerEntry
	for _, e := range t.LedgerEntries {
		if account == "" || e.AccountID == account {
			out = append(out, e)
		}
	}
	return out, nil
}

func (m *Memory) FactTransactions(_ context.Context) ([]ledger.LedgerEntry, error) {
	t, err := m.tables()
	if err != nil {
		return nil, err
	}
	return append([]ledger.LedgerEntry(nil), t.FactTransactions...), nil
}

func (m *Memory) DailyBalances(_ context.Context, account ledger.AccountID) ([]ledger.AccountBalance, error) {
	t, err := m.tables()
	if err != nil {
		return nil, err
	}
	var out []ledger.AccountBalance
	for _, b := range t.DailyBalances {
		if account == "" || b.AccountID == account {
			out = append(out, b)
		}
	}
	return out, nil
}

func (m *Memory) MonthlyRevenue(_ context.Context) ([]ledger.MonthlyRevenue, error) {
	t, err := m.tables()
	if err != nil {
		return nil, err
	}
	return append([]ledger.MonthlyRevenue(nil), t.MonthlyRevenue...), nil
}

func (m *Memory) PublishedFingerprint(_ context.Context) (string, error) {
	t, err := m.tables()
	if err != nil {
		return "", err
	}
	return t.Fingerprint, nil
}

// =============================================================================
// RUNS
// =============================================================================

func (m *Memory) RecordRun(_ context.Context, run ledger.RunRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.runs = append(m.runs, run)
	return nil
}

func (m *Memory) ListRuns(_ context.Context, limit int) ([]ledger.RunRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]ledger.RunRecord, 0, len(m.runs))
	for i := len(m.runs) - 1; i >= 0; i-- {
		if limit > 0 && len(out) == limit {
			break
		}
		out = append(out, m.runs[i])
	}
	return out, nil
}
