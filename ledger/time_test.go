package ledger_test

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ledgerone/warehouse/ledger"
)

func TestDateOf_BucketsInUTC(t *testing.T) {
	tokyo := time.FixedZone("JST", 9*60*60)
	ts := time.Date(2025, time.March, 2, 3, 0, 0, 0, tokyo)

	assert.Equal(t, "2025-03-01", ledger.DateOf(ts).String())
}

func TestDate_Arithmetic(t *testing.T) {
	d := ledger.NewDate(2024, time.February, 28)

	assert.Equal(t, "2024-02-29", d.AddDays(1).String())
	assert.Equal(t, "2024-03-01", d.AddDays(2).String())
	assert.Equal(t, 2, ledger.DaysBetween(d, d.AddDays(2)))
	assert.True(t, d.Before(d.AddDays(1)))
	assert.Equal(t, 0, d.Compare(ledger.NewDate(2024, time.February, 28)))
}

func TestMonth_Bounds(t *testing.T) {
	m, err := ledger.ParseMonth("2024-12")
	require.NoError(t, err)

	assert.Equal(t, "2024-12-01", m.Start().String())
	assert.Equal(t, "2024-12-31", m.End().String())
	assert.Equal(t, "2025-01", m.Next().String())
	assert.True(t, m.Contains(ledger.NewDate(2024, time.December, 31)))
	assert.False(t, m.Contains(ledger.NewDate(2025, time.January, 1)))
	assert.True(t, m.Before(m.Next()))
}

func TestDate_TextEncoding(t *testing.T) {
	type row struct {
		Date  ledger.Date  `json:"date"`
		Month ledger.Month `json:"month"`
	}
	in := row{Date: ledger.NewDate(2025, time.March, 9), Month: ledger.Month{Year: 2025, Month: time.March}}

	b, err := json.Marshal(in)
	require.NoError(t, err)
	assert.JSONEq(t, `{"date":"2025-03-09","month":"2025-03"}`, string(b))

	var out row
	require.NoError(t, json.Unmarshal(b, &out))
	assert.Equal(t, in, out)
}

func TestParseDate_Invalid(t *testing.T) {
	_, err := ledger.ParseDate("2025-13-01")
	assert.Error(t, err)
}
