package ledger

// =============================================================================
// SEVERITY POLICY - Which referential findings block publication
// =============================================================================

// Rule names a policy-configurable integrity condition. Balance continuity,
// double entry and idempotence are not rules: they are always fatal.
type Rule string

const (
	RuleSchemaRejection   Rule = "schema_rejection"   // event excluded by the transformer
	RuleEmptyLedger       Rule = "empty_ledger"       // no postings at all
	RulePostingDirection  Rule = "posting_direction"  // event type posted on the unexpected side
	RuleOrphanPosting     Rule = "orphan_posting"     // entry without a source event
	RuleMissingReference  Rule = "missing_reference"  // FEE/REFUND without reference_id
	RuleDanglingReference Rule = "dangling_reference" // reference_id does not resolve
	RuleReferenceOrder    Rule = "reference_order"    // referenced event is not earlier
	RuleRefundTarget      Rule = "refund_target"      // REFUND referencing a non-PURCHASE
	RuleRefundOverLimit   Rule = "refund_over_limit"  // cumulative refunds exceed the purchase
	RuleRefundUnbounded   Rule = "refund_unbounded"   // refund whose purchase cannot bound it
)

// Rules lists every configurable rule in a stable order.
func Rules() []Rule {
	return []Rule{
		RuleSchemaRejection,
		RuleEmptyLedger,
		RulePostingDirection,
		RuleOrphanPosting,
		RuleMissingReference,
		RuleDanglingReference,
		RuleReferenceOrder,
		RuleRefundTarget,
		RuleRefundOverLimit,
		RuleRefundUnbounded,
	}
}

var defaultSeverities = map[Rule]Severity{
	RuleSchemaRejection:   SeverityWarning,
	RuleEmptyLedger:       SeverityWarning,
	RulePostingDirection:  SeverityWarning,
	RuleOrphanPosting:     SeverityFatal,
	RuleMissingReference:  SeverityWarning,
	RuleDanglingReference: SeverityWarning,
	RuleReferenceOrder:    SeverityWarning,
	RuleRefundTarget:      SeverityWarning,
	RuleRefundOverLimit:   SeverityFatal,
	RuleRefundUnbounded:   SeverityFatal,
}

// SeverityPolicy overrides the default severity of rules.
// Rules missing from the map use their default.
type SeverityPolicy map[Rule]Severity

// DefaultSeverityPolicy returns a policy equal to the built-in defaults.
func DefaultSeverityPolicy() SeverityPolicy {
	p := make(SeverityPolicy, len(defaultSeverities))
	for r, s := range defaultSeverities {
		p[r] = s
	}
	return p
}

// SeverityOf returns the severity that applies to rule.
func (p SeverityPolicy) SeverityOf(rule Rule) Severity {
	if s, ok := p[rule]; ok && s != "" {
		return s
	}
	if s, ok := defaultSeverities[rule]; ok {
		return s
	}
	return SeverityWarning
}

// With returns a copy of the policy with rule set to severity.
func (p SeverityPolicy) With(rule Rule, severity Severity) SeverityPolicy {
	out := make(SeverityPolicy, len(p)+1)
	for r, s := range p {
		out[r] = s
	}
	out[rule] = severity
	return out
}

// IsKnownRule reports whether name is a configurable rule.
func IsKnownRule(name string) bool {
	_, ok := defaultSeverities[Rule(name)]
	return ok
}
