package metrics_test

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ledgerone/warehouse/ledger"
	"github.com/ledgerone/warehouse/metrics"
)

func gather(t *testing.T, reg *prometheus.Registry) map[string]*dto.MetricFamily {
	t.Helper()
	families, err := reg.Gather()
	require.NoError(t, err)
	out := make(map[string]*dto.MetricFamily, len(families))
	for _, f := range families {
		out[f.GetName()] = f
	}
	return out
}

func TestObserver_PublishedRun(t *testing.T) {
	reg := prometheus.NewRegistry()
	o := metrics.New(reg)

	o.ObserveRun(ledger.RunRecord{
		Status:     ledger.RunPublished,
		Rejected:   2,
		RowCounts:  map[string]int{ledger.TableLedgerEntries: 8},
		FinishedAt: time.Unix(1700000000, 0),
	}, &ledger.Report{Violations: []ledger.Violation{
		{Check: ledger.CheckSchema, Severity: ledger.SeverityWarning},
		{Check: ledger.CheckSchema, Severity: ledger.SeverityWarning},
	}}, 250*time.Millisecond)

	families := gather(t, reg)

	runs := families["ledgerone_pipeline_runs_total"]
	require.NotNil(t, runs)
	assert.Equal(t, 1.0, runs.GetMetric()[0].GetCounter().GetValue())

	assert.Equal(t, 2.0, families["ledgerone_events_rejected_total"].GetMetric()[0].GetCounter().GetValue())
	assert.Equal(t, 2.0, families["ledgerone_integrity_violations_total"].GetMetric()[0].GetCounter().GetValue())
	assert.Equal(t, 8.0, families["ledgerone_published_rows"].GetMetric()[0].GetGauge().GetValue())
	assert.Equal(t, 1700000000.0, families["ledgerone_last_publication_timestamp_seconds"].GetMetric()[0].GetGauge().GetValue())
}

func TestObserver_BlockedRunLeavesRowGauges(t *testing.T) {
	reg := prometheus.NewRegistry()
	o := metrics.New(reg)

	o.ObserveRun(ledger.RunRecord{Status: ledger.RunBlocked}, nil, time.Second)

	families := gather(t, reg)
	assert.Nil(t, families["ledgerone_published_rows"])
	runs := families["ledgerone_pipeline_runs_total"].GetMetric()[0]
	assert.Equal(t, "blocked", runs.GetLabel()[0].GetValue())
}
