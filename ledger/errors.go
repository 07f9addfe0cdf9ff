/*
errors.go - Centralized error types for the derivation pipeline

PURPOSE:
  All error types in one place for consistency and discoverability.
  Integrity failures are reported as Violations (data) and surface as errors
  only when they block publication.

ERROR CATEGORIES:
  1. SchemaViolation - malformed event, excluded from the ledger
  2. BalanceInconsistency - continuity or double-entry failure (always fatal)
  3. ReferentialViolation - dangling or over-limit reference_id
  4. NonDeterminism - re-derivation differs from the first pass (always fatal)

USAGE:
  if errors.Is(err, ledger.ErrFatalViolations) {
      var fatal *ledger.FatalError
      errors.As(err, &fatal)
      print(fatal.Report)
  }

SEE ALSO:
  - validate.go: Produces the Report
  - policy.go: Severity of configurable rules
*/
package ledger

import (
	"errors"
	"fmt"
	"strings"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	ErrSchemaViolation      = errors.New("schema violation")
	ErrBalanceInconsistency = errors.New("balance inconsistency")
	ErrReferentialViolation = errors.New("referential violation")
	ErrNonDeterminism       = errors.New("non-deterministic derivation")

	// ErrFatalViolations is returned when the integrity report contains at
	// least one fatal violation. Nothing may be published for that run.
	ErrFatalViolations = errors.New("fatal integrity violations")

	// ErrDuplicateEvent is returned when appending an event whose id exists.
	ErrDuplicateEvent = errors.New("duplicate event id")

	// ErrNotPublished is returned when reading tables before any publication.
	ErrNotPublished = errors.New("no published tables")

	// ErrAccountNotFound is returned when an account has no balance series.
	ErrAccountNotFound = errors.New("account not found")
)

// =============================================================================
// VIOLATION KIND / SEVERITY
// =============================================================================

type Kind string

const (
	KindSchema         Kind = "SchemaViolation"
	KindBalance        Kind = "BalanceInconsistency"
	KindReferential    Kind = "ReferentialViolation"
	KindNonDeterminism Kind = "NonDeterminism"
)

func (k Kind) sentinel() error {
	switch k {
	case KindSchema:
		return ErrSchemaViolation
	case KindBalance:
		return ErrBalanceInconsistency
	case KindReferential:
		return ErrReferentialViolation
	case KindNonDeterminism:
		return ErrNonDeterminism
	}
	return nil
}

type Severity string

const (
	SeverityFatal   Severity = "fatal"
	SeverityWarning Severity = "warning"
	SeverityInfo    Severity = "info"
)

// ParseSeverity accepts fatal, warning or info (case-insensitive).
func ParseSeverity(s string) (Severity, error) {
	switch Severity(strings.ToLower(strings.TrimSpace(s))) {
	case SeverityFatal:
		return SeverityFatal, nil
	case SeverityWarning:
		return SeverityWarning, nil
	case SeverityInfo:
		return SeverityInfo, nil
	}
	return "", fmt.Errorf("unknown severity %q", s)
}

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// Violation is one failed integrity condition, tagged with the records that
// caused it. Violation implements error so callers can wrap it.
type Violation struct {
	Check         string
	Kind          Kind
	Severity      Severity
	Message       string
	EventID       EventID
	LedgerEntryID LedgerEntryID
	AccountID     AccountID
	Date          Date
}

func (v Violation) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s [%s/%s]: %s", v.Check, v.Kind, v.Severity, v.Message)
	if v.EventID != "" {
		fmt.Fprintf(&b, " event=%s", v.EventID)
	}
	if v.LedgerEntryID != "" {
		fmt.Fprintf(&b, " entry=%s", v.LedgerEntryID)
	}
	if v.AccountID != "" {
		fmt.Fprintf(&b, " account=%s", v.AccountID)
	}
	if !v.Date.IsZero() {
		fmt.Fprintf(&b, " date=%s", v.Date)
	}
	return b.String()
}

func (v Violation) Unwrap() error { return v.Kind.sentinel() }

func (v Violation) IsFatal() bool { return v.Severity == SeverityFatal }

// FatalError is returned by Pipeline.Run when publication must be blocked.
type FatalError struct {
	Report *Report
}

func (e *FatalError) Error() string {
	fatal := e.Report.Fatal()
	if len(fatal) == 0 {
		return ErrFatalViolations.Error()
	}
	return fmt.Sprintf("%s: %d fatal (first: %s)", ErrFatalViolations, len(fatal), fatal[0].Error())
}

func (e *FatalError) Unwrap() error { return ErrFatalViolations }

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsFatal returns true if err blocks publication of derived tables.
func IsFatal(err error) bool {
	return errors.Is(err, ErrFatalViolations)
}

// IsDataError returns true if the error is caused by the event data rather
// than by the environment (storage, transport).
func IsDataError(err error) bool {
	return errors.Is(err, ErrFatalViolations) ||
		errors.Is(err, ErrSchemaViolation) ||
		errors.Is(err, ErrDuplicateEvent)
}
