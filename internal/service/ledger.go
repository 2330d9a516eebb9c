package service

import (
	"context"
	stderrors "errors"

	"github.com/pesio-ai/be-visitor-gatepass/internal/notify"
	"github.com/pesio-ai/be-visitor-gatepass/internal/platform/logger"
	"github.com/pesio-ai/be-visitor-gatepass/internal/repository"
	"github.com/pesio-ai/be-visitor-gatepass/internal/workflow"
)

// errSlotTaken is returned when a request would become approved while a
// different request already holds its slot on the same date. The store
// reports a lost race on the approved-slot index with the same error.
var errSlotTaken = repository.ErrSlotTaken

// instantiateLedger seeds one pending approval per template step of the
// request's (warehouse, visitor type). It must run in the transaction that
// inserted the request.
func instantiateLedger(ctx context.Context, tx repository.Tx, req *repository.VisitorRequest) ([]*repository.Approval, error) {
	steps, err := tx.WorkflowSteps().ListForVisitorType(ctx, req.WarehouseID, req.VisitorTypeID)
	if err != nil {
		return nil, err
	}
	if len(steps) == 0 {
		return []*repository.Approval{}, nil
	}

	rows := make([]*repository.Approval, 0, len(steps))
	for _, step := range steps {
		rows = append(rows, &repository.Approval{
			VisitorRequestID: req.ID,
			StepNo:           step.StepNo,
			ApproverID:       step.ApproverID,
			Status:           workflow.StepPending,
		})
	}
	if err := tx.Approvals().CreateBatch(ctx, rows); err != nil {
		return nil, err
	}
	return rows, nil
}

// reconcileLedger seeds the current template into every pending request of
// the combination that has no approval rows yet. Requests that already have
// a ledger keep their snapshot. It returns the ids of the seeded requests.
func reconcileLedger(ctx context.Context, tx repository.Tx, warehouseID, visitorTypeID string) ([]string, error) {
	requests, err := tx.VisitorRequests().ListPendingWithoutApprovals(ctx, warehouseID, visitorTypeID)
	if err != nil {
		return nil, err
	}

	seeded := make([]string, 0, len(requests))
	for _, req := range requests {
		rows, err := instantiateLedger(ctx, tx, req)
		if err != nil {
			return nil, err
		}
		if len(rows) > 0 {
			seeded = append(seeded, req.ID)
		}
	}
	return seeded, nil
}

// aggregator recomputes request status from its ledger.
type aggregator struct {
	log *logger.Logger
}

// recompute re-aggregates a request whose row is locked by tx, persists a
// changed status and queues the notification for a terminal transition.
// Transitions into approved fail with errSlotTaken when another approved
// request holds the slot.
func (a *aggregator) recompute(ctx context.Context, tx repository.Tx, req *repository.VisitorRequest, fx *sideEffects) (workflow.Transition, []*repository.Approval, error) {
	rows, err := tx.Approvals().ListByRequest(ctx, req.ID)
	if err != nil {
		return workflow.Transition{}, nil, err
	}

	ledger := repository.Ledger(rows)
	tr := workflow.Transition{From: req.Status, To: workflow.Aggregate(ledger)}
	if !tr.Changed() {
		return tr, rows, nil
	}

	if tr.To == workflow.RequestApproved {
		held, err := tx.VisitorRequests().FindApprovedForSlot(ctx, req.WarehouseID, req.VisitDate, req.TimeSlotID, req.ID)
		if err != nil {
			return tr, nil, err
		}
		if held != nil {
			return tr, nil, errSlotTaken
		}
	}

	if err := tx.VisitorRequests().UpdateStatus(ctx, req.ID, tr.To); err != nil {
		return tr, nil, err
	}
	req.Status = tr.To
	fx.transitions = append(fx.transitions, tr)

	if tr.Notify() {
		fx.outcomes = append(fx.outcomes, a.buildOutcome(ctx, tx, req, ledger))
	}

	a.log.Info().
		Str("visitor_request_id", req.ID).
		Str("from", string(tr.From)).
		Str("to", string(tr.To)).
		Msg("Visitor request status changed")

	return tr, rows, nil
}

// buildOutcome gathers the notice for a terminal request. Lookups that fail
// leave the corresponding fields empty.
func (a *aggregator) buildOutcome(ctx context.Context, tx repository.Tx, req *repository.VisitorRequest, ledger []workflow.Step) outcome {
	email := ""
	if req.Email != nil {
		email = *req.Email
	}

	if req.Status == workflow.RequestRejected {
		reason := workflow.FirstRejectionReason(ledger)
		if reason == "" {
			reason = notify.DefaultRejectionReason
		}
		return outcome{rejected: &notify.RejectedNotice{
			RequestID:    req.ID,
			VisitorName:  req.Name,
			Email:        email,
			TrackingCode: req.TrackingCode,
			Reason:       reason,
		}}
	}

	n := &notify.ApprovedNotice{
		RequestID:    req.ID,
		VisitorName:  req.Name,
		Email:        email,
		TrackingCode: req.TrackingCode,
		Date:         req.VisitDate,
	}
	if wh, err := tx.Directory().GetWarehouse(ctx, req.WarehouseID); err == nil {
		n.WarehouseName = wh.Name
	} else {
		a.log.Warn().Err(err).Str("visitor_request_id", req.ID).Msg("Approved notice without warehouse details")
	}
	if slot, err := tx.Directory().GetTimeSlot(ctx, req.TimeSlotID); err == nil {
		n.TimeSlotName, n.From, n.To = slot.Name, slot.From, slot.To
	} else {
		a.log.Warn().Err(err).Str("visitor_request_id", req.ID).Msg("Approved notice without time slot details")
	}
	return outcome{approved: n}
}

func isSlotTaken(err error) bool {
	return stderrors.Is(err, errSlotTaken)
}
