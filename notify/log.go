package notify

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/ledgerone/warehouse/ledger"
)

// Log writes run notifications to a zerolog logger. It is the notifier
// used when no broker is configured.
type Log struct {
	logger zerolog.Logger
}

var _ ledger.RunNotifier = (*Log)(nil)

func NewLog(logger zerolog.Logger) *Log {
	return &Log{logger: logger.With().Str("component", "notify").Logger()}
}

func (l *Log) NotifyRun(_ context.Context, run ledger.RunRecord) error {
	var ev *zerolog.Event
	switch run.Status {
	case ledger.RunPublished:
		ev = l.logger.Info()
	case ledger.RunBlocked:
		ev = l.logger.Warn()
	default:
		ev = l.logger.Error()
	}
	ev.Str("run_id", run.RunID).
		Str("status", string(run.Status)).
		Str("type", messageType(run.Status)).
		Int("fatal", run.Fatal).
		Int("warnings", run.Warnings).
		Str("fingerprint", run.Fingerprint).
		Msg("run notification")
	return nil
}
