/*
Package file reads event snapshots from files.

FORMATS (chosen by extension):
  .csv    header row with the event column names, any column order
  .json   a JSON array of events
  .jsonl  one JSON event per line (also .ndjson)

LENIENCY:
  A value that cannot be parsed (amount "abc", timestamp "yesterday") is
  loaded as its zero value and the parse failure is kept in DecodeErrors,
  so the transformer rejects that single event with the failure as reason.
  Structural problems (broken JSON, ragged CSV rows) fail the whole read.

TIMESTAMPS:
  RFC 3339, or "2006-01-02 15:04:05" / "2006-01-02" read as UTC.
*/
package file

import (
	"bufio"
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/ledgerone/warehouse/ledger"
)

type Format string

const (
	FormatCSV   Format = "csv"
	FormatJSON  Format = "json"
	FormatJSONL Format = "jsonl"
)

// Columns is the canonical column order of event files.
var Columns = []string{
	"event_id", "event_ts", "user_id", "account_id", "event_type",
	"direction", "amount", "currency", "reference_id",
}

// FormatOf returns the format implied by a file name.
func FormatOf(path string) (Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv":
		return FormatCSV, nil
	case ".json":
		return FormatJSON, nil
	case ".jsonl", ".ndjson":
		return FormatJSONL, nil
	}
	return "", fmt.Errorf("unsupported event file %q", path)
}

// Source implements ledger.EventSource over a file re-read on every
// snapshot.
type Source struct {
	Path   string
	Format Format
}

var _ ledger.EventSource = (*Source)(nil)

func NewSource(path string) (*Source, error) {
	format, err := FormatOf(path)
	if err != nil {
		return nil, err
	}
	return &Source{Path: path, Format: format}, nil
}

func (s *Source) Snapshot(ctx context.Context) ([]ledger.Event, error) {
	f, err := os.Open(s.Path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return Read(f, s.Format)
}

// Read decodes events in the given format.
func Read(r io.Reader, format Format) ([]ledger.Event, error) {
	switch format {
	case FormatCSV:
		return ReadCSV(r)
	case FormatJSON:
		return ReadJSON(r)
	case FormatJSONL:
		return ReadJSONL(r)
	}
	return nil, fmt.Errorf("unsupported format %q", format)
}

// =============================================================================
// CSV
// =============================================================================

func ReadCSV(r io.Reader) ([]ledger.Event, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err == io.EOF {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read csv header: %w", err)
	}
	index := make(map[string]int, len(header))
	for i, name := range header {
		index[strings.ToLower(strings.TrimSpace(name))] = i
	}
	for _, required := range Columns[:8] {
		if _, ok := index[required]; !ok {
			return nil, fmt.Errorf("csv header missing column %q", required)
		}
	}

	var events []ledger.Event
	for {
		row, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read csv: %w", err)
		}
		get := func(col string) string {
			i, ok := index[col]
			if !ok || i >= len(row) {
				return ""
			}
			return strings.TrimSpace(row[i])
		}
		events = append(events, record{
			EventID:     get("event_id"),
			EventTS:     get("event_ts"),
			UserID:      get("user_id"),
			AccountID:   get("account_id"),
			EventType:   get("event_type"),
			Direction:   get("direction"),
			Amount:      amount(get("amount")),
			Currency:    get("currency"),
			ReferenceID: get("reference_id"),
		}.event())
	}
	return events, nil
}

// WriteCSV encodes events with the canonical header.
func WriteCSV(w io.Writer, events []ledger.Event) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(Columns); err != nil {
		return err
	}
	for _, e := range events {
		if err := cw.Write([]string{
			string(e.EventID), e.EventTS.UTC().Format(time.RFC3339Nano), string(e.UserID),
			string(e.AccountID), string(e.EventType), string(e.Direction),
			e.Amount.String(), e.Currency, string(e.ReferenceID),
		}); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// =============================================================================
// JSON / JSONL
// =============================================================================

func ReadJSON(r io.Reader) ([]ledger.Event, error) {
	var records []record
	if err := json.NewDecoder(r).Decode(&records); err != nil {
		return nil, fmt.Errorf("decode json events: %w", err)
	}
	events := make([]ledger.Event, 0, len(records))
	for _, rec := range records {
		events = append(events, rec.event())
	}
	return events, nil
}

func ReadJSONL(r io.Reader) ([]ledger.Event, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	var events []ledger.Event
	line := 0
	for scanner.Scan() {
		line++
		b := bytes.TrimSpace(scanner.Bytes())
		if len(b) == 0 {
			continue
		}
		var rec record
		if err := json.Unmarshal(b, &rec); err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		events = append(events, rec.event())
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return events, nil
}

// record is the lenient wire form of an event.
type record struct {
	EventID     string `json:"event_id"`
	EventTS     string `json:"event_ts"`
	UserID      string `json:"user_id"`
	AccountID   string `json:"account_id"`
	EventType   string `json:"event_type"`
	Direction   string `json:"direction"`
	Amount      amount `json:"amount"`
	Currency    string `json:"currency"`
	ReferenceID string `json:"reference_id"`
}

// amount accepts both JSON numbers and strings.
type amount string

func (a *amount) UnmarshalJSON(b []byte) error {
	s := string(bytes.TrimSpace(b))
	if s == "null" {
		*a = ""
		return nil
	}
	*a = amount(strings.Trim(s, `"`))
	return nil
}

func (r record) event() ledger.Event {
	e := ledger.Event{
		EventID:     ledger.EventID(r.EventID),
		UserID:      ledger.UserID(r.UserID),
		AccountID:   ledger.AccountID(r.AccountID),
		EventType:   ledger.EventType(strings.ToUpper(r.EventType)),
		Direction:   ledger.Direction(strings.ToUpper(r.Direction)),
		Currency:    strings.ToUpper(r.Currency),
		ReferenceID: ledger.EventID(r.ReferenceID),
	}
	fail := func(column string, err error) {
		if e.DecodeErrors == nil {
			e.DecodeErrors = make(map[string]string)
		}
		e.DecodeErrors[column] = err.Error()
	}
	if r.EventTS != "" {
		ts, err := parseTimestamp(r.EventTS)
		if err != nil {
			fail("event_ts", err)
		}
		e.EventTS = ts
	}
	if r.Amount != "" {
		amt, err := decimal.NewFromString(string(r.Amount))
		if err != nil {
			fail("amount", fmt.Errorf("unparseable amount %q", string(r.Amount)))
		}
		e.Amount = amt
	}
	return e
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"2006-01-02",
}

func parseTimestamp(s string) (time.Time, error) {
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized timestamp %q", s)
}
