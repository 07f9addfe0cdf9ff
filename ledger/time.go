package ledger

import (
	"time"
)

// =============================================================================
// DATE - Civil day used as the balance key
// =============================================================================

// Date is a calendar day in UTC. Event timestamps are bucketed into dates
// after conversion to UTC.
type Date struct {
	Time time.Time
}

const dateLayout = "2006-01-02"

func NewDate(year int, month time.Month, day int) Date {
	return Date{Time: time.Date(year, month, day, 0, 0, 0, 0, time.UTC)}
}

// DateOf truncates a timestamp to its UTC day.
func DateOf(t time.Time) Date {
	u := t.UTC()
	return NewDate(u.Year(), u.Month(), u.Day())
}

// ParseDate parses a YYYY-MM-DD string.
func ParseDate(s string) (Date, error) {
	t, err := time.Parse(dateLayout, s)
	if err != nil {
		return Date{}, err
	}
	return DateOf(t), nil
}

// Comparison
func (d Date) Before(other Date) bool { return d.Time.Before(other.Time) }
func (d Date) After(other Date) bool  { return d.Time.After(other.Time) }
func (d Date) Equal(other Date) bool  { return d.Time.Equal(other.Time) }
func (d Date) Compare(other Date) int { return d.Time.Compare(other.Time) }

// Arithmetic
func (d Date) AddDays(n int) Date { return Date{Time: d.Time.AddDate(0, 0, n)} }

// Properties
func (d Date) Month() Month   { return Month{Year: d.Time.Year(), Month: d.Time.Month()} }
func (d Date) IsZero() bool   { return d.Time.IsZero() }
func (d Date) String() string { return d.Time.Format(dateLayout) }

// DaysBetween returns the number of days from one date to another.
func DaysBetween(from, to Date) int { return int(to.Time.Sub(from.Time).Hours() / 24) }

// =============================================================================
// MONTH - The period of revenue facts
// =============================================================================

type Month struct {
	Year  int
	Month time.Month
}

const monthLayout = "2006-01"

// ParseMonth parses a YYYY-MM string.
func ParseMonth(s string) (Month, error) {
	t, err := time.Parse(monthLayout, s)
	if err != nil {
		return Month{}, err
	}
	return Month{Year: t.Year(), Month: t.Month()}, nil
}

func (m Month) Start() Date { return NewDate(m.Year, m.Month, 1) }
func (m Month) End() Date   { return m.Next().Start().AddDays(-1) }
func (m Month) Next() Month { return DateOf(m.Start().Time.AddDate(0, 1, 0)).Month() }

// Contains returns true if d falls within [Start, End].
func (m Month) Contains(d Date) bool {
	return d.Month() == m
}

func (m Month) Before(other Month) bool {
	if m.Year != other.Year {
		return m.Year < other.Year
	}
	return m.Month < other.Month
}

func (m Month) String() string { return m.Start().Time.Format(monthLayout) }

// Text encoding as YYYY-MM-DD / YYYY-MM.
func (d Date) MarshalText() ([]byte, error) { return []byte(d.String()), nil }

func (d *Date) UnmarshalText(b []byte) error {
	parsed, err := ParseDate(string(b))
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

func (m Month) MarshalText() ([]byte, error) { return []byte(m.String()), nil }

func (m *Month) UnmarshalText(b []byte) error {
	parsed, err := ParseMonth(string(b))
	if err != nil {
		return err
	}
	*m = parsed
	return nil
}
