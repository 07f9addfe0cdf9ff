package ledger

// Check names. They are stable identifiers used in reports, logs and metrics.
const (
	CheckSchema               = "schema"
	CheckRowCount             = "row_count"
	CheckPostingValues        = "posting_values"
	CheckPostingDirection     = "posting_direction"
	CheckOrphanPostings       = "orphan_postings"
	CheckDoubleEntry          = "double_entry"
	CheckBalanceContinuity    = "balance_continuity"
	CheckReferentialIntegrity = "referential_integrity"
	CheckRefundLimit          = "refund_limit"
	CheckIdempotence          = "idempotence"
)

// CheckResult summarizes one check of the battery.
type CheckResult struct {
	Name        string
	Description string
	Passed      bool
	Violations  int
	Details     string
}

// Report is the structured outcome of a validation run.
type Report struct {
	Checks     []CheckResult
	Violations []Violation
}

func (r *Report) record(name, description string, vs []Violation) {
	r.Checks = append(r.Checks, CheckResult{
		Name:        name,
		Description: description,
		Passed:      len(vs) == 0,
		Violations:  len(vs),
	})
	r.Violations = append(r.Violations, vs...)
}

func (r *Report) skip(name, description, details string) {
	r.Checks = append(r.Checks, CheckResult{
		Name:        name,
		Description: description,
		Passed:      true,
		Details:     details,
	})
}

// HasFatal returns true if any violation blocks publication.
func (r *Report) HasFatal() bool {
	if r == nil {
		return false
	}
	for _, v := range r.Violations {
		if v.IsFatal() {
			return true
		}
	}
	return false
}

// Fatal returns the fatal violations in report order.
func (r *Report) Fatal() []Violation {
	return r.WithSeverity(SeverityFatal)
}

// WithSeverity returns the violations of the given severity.
func (r *Report) WithSeverity(s Severity) []Violation {
	if r == nil {
		return nil
	}
	var out []Violation
	for _, v := range r.Violations {
		if v.Severity == s {
			out = append(out, v)
		}
	}
	return out
}

// Count returns the number of violations of the given severity.
func (r *Report) Count(s Severity) int { return len(r.WithSeverity(s)) }

// ByCheck returns the violations reported by one check.
func (r *Report) ByCheck(name string) []Violation {
	if r == nil {
		return nil
	}
	var out []Violation
	for _, v := range r.Violations {
		if v.Check == name {
			out = append(out, v)
		}
	}
	return out
}

// Check returns the result of the named check.
func (r *Report) Check(name string) (CheckResult, bool) {
	if r == nil {
		return CheckResult{}, false
	}
	for _, c := range r.Checks {
		if c.Name == name {
			return c, true
		}
	}
	return CheckResult{}, false
}

// Err returns a *FatalError when the report blocks publication.
func (r *Report) Err() error {
	if r.HasFatal() {
		return &FatalError{Report: r}
	}
	return nil
}
