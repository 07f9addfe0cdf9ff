/*
Package factory builds pipeline components from configuration.

PURPOSE:
  Converts configuration values (YAML, env, JSON request bodies) into
  ledger objects. Severity overrides can be changed without code changes:
  operators list rule names and the severity they want.

JSON SCHEMA:
  {
    "dangling_reference": "fatal",
    "reference_order": "info"
  }

  Unknown rule names and unknown severities are rejected. Rules that are
  not listed keep their default severity.

USAGE:
  policy, err := factory.ParseSeverityPolicyJSON(body)

  pipeline, err := factory.NewPipeline(cfg.Pipeline, logger)
  source, closeFn, err := factory.NewSource(ctx, cfg, sqliteStore)
  defer closeFn()

SEE ALSO:
  - ledger/policy.go: SeverityPolicy and the rule list
  - config/config.go: PipelineConfig and SourceConfig
*/
package factory

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/rs/zerolog"

	"github.com/ledgerone/warehouse/config"
	"github.com/ledgerone/warehouse/ledger"
	"github.com/ledgerone/warehouse/store/file"
	"github.com/ledgerone/warehouse/store/postgres"
)

// =============================================================================
// SEVERITY POLICY
// =============================================================================

// ParseSeverityPolicy applies overrides on top of the default policy.
func ParseSeverityPolicy(overrides map[string]string) (ledger.SeverityPolicy, error) {
	policy := ledger.DefaultSeverityPolicy()

	names := make([]string, 0, len(overrides))
	for name := range overrides {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		if !ledger.IsKnownRule(name) {
			return nil, fmt.Errorf("unknown rule %q", name)
		}
		severity, err := ledger.ParseSeverity(overrides[name])
		if err != nil {
			return nil, fmt.Errorf("rule %s: %w", name, err)
		}
		policy[ledger.Rule(name)] = severity
	}
	return policy, nil
}

// ParseSeverityPolicyJSON parses a JSON object of rule -> severity.
func ParseSeverityPolicyJSON(data []byte) (ledger.SeverityPolicy, error) {
	var overrides map[string]string
	if err := json.Unmarshal(data, &overrides); err != nil {
		return nil, fmt.Errorf("failed to parse severity policy JSON: %w", err)
	}
	return ParseSeverityPolicy(overrides)
}

// SeverityPolicyJSON renders every rule with the severity that applies.
func SeverityPolicyJSON(policy ledger.SeverityPolicy) map[string]string {
	out := make(map[string]string, len(ledger.Rules()))
	for _, rule := range ledger.Rules() {
		out[string(rule)] = string(policy.SeverityOf(rule))
	}
	return out
}

// =============================================================================
// PIPELINE
// =============================================================================

// NewPipeline builds a pipeline whose stages share the configured worker
// bound and severity policy.
func NewPipeline(cfg config.PipelineConfig, logger zerolog.Logger) (*ledger.Pipeline, error) {
	policy, err := ParseSeverityPolicy(cfg.Severities)
	if err != nil {
		return nil, err
	}

	p := ledger.NewPipeline(logger)
	if cfg.Workers > 0 {
		p.Transformer.Workers = cfg.Workers
		p.Balances.Workers = cfg.Workers
		p.Validator.Workers = cfg.Workers
		p.Aggregator.Workers = cfg.Workers
	}
	p.Balances.FillGaps = cfg.FillGaps
	p.Validator.Policy = policy
	p.SkipIdempotence = cfg.SkipIdempotence
	return p, nil
}

// =============================================================================
// EVENT SOURCE
// =============================================================================

// NewSource returns the event source selected by cfg.Source.Kind. The
// local store serves the sqlite kind. The returned close function
// releases resources the factory opened and is never nil.
func NewSource(ctx context.Context, cfg config.Config, local ledger.EventSource) (ledger.EventSource, func(), error) {
	noop := func() {}

	switch cfg.Source.Kind {
	case config.SourceSQLite, "":
		if local == nil {
			return nil, noop, fmt.Errorf("sqlite source requires a local store")
		}
		return local, noop, nil

	case config.SourceFile:
		src, err := file.NewSource(cfg.Source.Path)
		if err != nil {
			return nil, noop, err
		}
		return src, noop, nil

	case config.SourcePostgres:
		src, err := postgres.Connect(ctx, cfg.Source.PostgresURL)
		if err != nil {
			return nil, noop, err
		}
		return src, src.Close, nil

	default:
		return nil, noop, fmt.Errorf("unknown source kind %q", cfg.Source.Kind)
	}
}
