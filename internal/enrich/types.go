package enrich

import (
	"context"
	"time"
)

// DateLayout is the day-first calendar format used by the portal and the
// output sheet.
const DateLayout = "02/01/2006"

// MovementStatus classifies the outcome of one identifier.
type MovementStatus int

const (
	// Pending rows have not been processed yet; they render as empty cells.
	Pending MovementStatus = iota
	Present
	Absent
	NavigationFailed
	SubviewFailed
)

// Label is the value written to the Movimentação column.
func (s MovementStatus) Label() string {
	switch s {
	case Present:
		return "SIM"
	case Absent:
		return "NÃO"
	case NavigationFailed:
		return "NAO_ENCONTRADO"
	case SubviewFailed:
		return "ERRO_NAVEGACAO"
	default:
		return ""
	}
}

func (s MovementStatus) String() string {
	switch s {
	case Pending:
		return "pending"
	case Present:
		return "present"
	case Absent:
		return "absent"
	case NavigationFailed:
		return "navigation_failed"
	case SubviewFailed:
		return "subview_failed"
	default:
		return "unknown"
	}
}

// Statuses lists every terminal status in output order.
func Statuses() []MovementStatus {
	return []MovementStatus{Present, Absent, NavigationFailed, SubviewFailed}
}

// Result is the enrichment output for a single identifier. A date is set if
// and only if the status is Present; use the constructors to keep it so.
type Result struct {
	Date   time.Time
	Status MovementStatus
	// Reason is a short, redacted description of why a failure status was
	// chosen. Empty on success.
	Reason string
}

// PresentOn reports a movement on d. The zero time is no date at all and
// yields the Absent result.
func PresentOn(d time.Time) Result {
	if d.IsZero() {
		return AbsentResult()
	}
	y, m, day := d.Date()
	return Result{Date: time.Date(y, m, day, 0, 0, 0, 0, time.UTC), Status: Present}
}

func AbsentResult() Result { return Result{Status: Absent} }

func NavigationFailure(reason string) Result {
	return Result{Status: NavigationFailed, Reason: reason}
}

func SubviewFailure(reason string) Result {
	return Result{Status: SubviewFailed, Reason: reason}
}

// DateText renders the date cell: DD/MM/YYYY when present, empty otherwise.
func (r Result) DateText() string {
	if r.Status != Present || r.Date.IsZero() {
		return ""
	}
	return r.Date.Format(DateLayout)
}

// Enricher enriches a single agreement identifier.
type Enricher interface {
	Enrich(ctx context.Context, identifier string) (Result, error)
}
