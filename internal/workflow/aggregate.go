package workflow

import (
	"sort"
	"time"
)

// Step is the view of one ledger row the rules operate on.
type Step struct {
	StepNo int
	Status StepStatus
	Reason string
}

// Aggregate derives the request status from its ledger. Any rejection wins;
// otherwise the request is approved only when every row is approved and at
// least one row exists. The result does not depend on row order.
func Aggregate(ledger []Step) RequestStatus {
	if len(ledger) == 0 {
		return RequestPending
	}
	approved := 0
	for _, s := range ledger {
		switch s.Status {
		case StepRejected:
			return RequestRejected
		case StepApproved:
			approved++
		}
	}
	if approved == len(ledger) {
		return RequestApproved
	}
	return RequestPending
}

// Transition is the result of re-aggregating a request.
type Transition struct {
	From RequestStatus
	To   RequestStatus
}

// Changed reports whether the status moved.
func (t Transition) Changed() bool { return t.From != t.To }

// Notify reports whether the transition fires the one-shot terminal
// notification.
func (t Transition) Notify() bool { return t.Changed() && t.To.Terminal() }

// Actionable reports whether the row at stepNo is open for its approver: it
// belongs to the lowest step of the ledger, or every row of the step just
// below it is approved. Step numbers need not be contiguous, so "just below"
// is the highest stepNo smaller than stepNo.
func Actionable(ledger []Step, stepNo int) bool {
	prev, found := 0, false
	for _, s := range ledger {
		if s.StepNo < stepNo && (!found || s.StepNo > prev) {
			prev, found = s.StepNo, true
		}
	}
	if !found {
		return true
	}
	for _, s := range ledger {
		if s.StepNo == prev && s.Status != StepApproved {
			return false
		}
	}
	return true
}

// FirstRejectionReason returns the reason on the lowest-numbered rejected
// row that carries one.
func FirstRejectionReason(ledger []Step) string {
	sorted := make([]Step, len(ledger))
	copy(sorted, ledger)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].StepNo < sorted[j].StepNo })
	for _, s := range sorted {
		if s.Status == StepRejected && s.Reason != "" {
			return s.Reason
		}
	}
	return ""
}

// ClassifyArrival compares an arrival with the slot start. Arriving before
// the start is early; up to grace after it is on time.
func ClassifyArrival(arrival, slotStart time.Time, grace time.Duration) Punctuality {
	switch {
	case arrival.Before(slotStart):
		return PunctualityEarly
	case arrival.After(slotStart.Add(grace)):
		return PunctualityLate
	default:
		return PunctualityOnTime
	}
}
