// Package workflow holds the pure rules of the visitor approval chain:
// status types, ledger aggregation and the sequential step gate.
package workflow

// RequestStatus is the overall approval state of a visitor request.
type RequestStatus string

const (
	RequestPending  RequestStatus = "pending"
	RequestApproved RequestStatus = "approved"
	RequestRejected RequestStatus = "rejected"
)

// Terminal reports whether s is approved or rejected.
func (s RequestStatus) Terminal() bool {
	return s == RequestApproved || s == RequestRejected
}

// Valid reports whether s is a known request status.
func (s RequestStatus) Valid() bool {
	switch s {
	case RequestPending, RequestApproved, RequestRejected:
		return true
	}
	return false
}

// StepStatus is the outcome recorded on one approval ledger row.
type StepStatus string

const (
	StepPending  StepStatus = "pending"
	StepApproved StepStatus = "approved"
	StepRejected StepStatus = "rejected"
)

// Valid reports whether s is a known step status.
func (s StepStatus) Valid() bool {
	switch s {
	case StepPending, StepApproved, StepRejected:
		return true
	}
	return false
}

// VisitStatus tracks the visitor on the warehouse floor. It is independent
// of RequestStatus.
type VisitStatus string

const (
	VisitPending VisitStatus = "pending"
	VisitVisited VisitStatus = "visited"
	VisitNoShow  VisitStatus = "no_show"
)

// Punctuality classifies an arrival against the booked slot start.
type Punctuality string

const (
	PunctualityEarly  Punctuality = "early"
	PunctualityOnTime Punctuality = "on_time"
	PunctualityLate   Punctuality = "late"
)
