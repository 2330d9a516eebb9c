package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/pesio-ai/be-visitor-gatepass/internal/auth"
	"github.com/pesio-ai/be-visitor-gatepass/internal/notify"
	"github.com/pesio-ai/be-visitor-gatepass/internal/platform/errors"
	"github.com/pesio-ai/be-visitor-gatepass/internal/platform/logger"
	"github.com/pesio-ai/be-visitor-gatepass/internal/platform/metrics"
	"github.com/pesio-ai/be-visitor-gatepass/internal/repository"
	"github.com/pesio-ai/be-visitor-gatepass/internal/workflow"
)

// ApprovalService applies approver decisions to the ledger and drives the
// request status through the aggregator.
type ApprovalService struct {
	store repository.Store
	agg   *aggregator
	fx    *effects
	cfg   Config
	log   *logger.Logger
}

// NewApprovalService creates a new ApprovalService.
func NewApprovalService(
	store repository.Store,
	notifier notify.Notifier,
	rec *metrics.Recorder,
	cfg Config,
	log *logger.Logger,
) *ApprovalService {
	cfg = cfg.withDefaults()
	return &ApprovalService{
		store: store,
		agg:   &aggregator{log: log},
		fx:    &effects{store: store, notifier: notifier, metrics: rec, log: log, timeout: cfg.NotifyTimeout},
		cfg:   cfg,
		log:   log,
	}
}

// DecisionResult is the state of a request after an approver acted.
type DecisionResult struct {
	Request    *repository.VisitorRequest `json:"request"`
	Approvals  []*repository.Approval     `json:"approvals"`
	Transition workflow.Transition        `json:"-"`
}

// PendingApproval is one actionable ledger row with a summary of its request.
type PendingApproval struct {
	Approval *repository.Approval       `json:"approval"`
	Request  *repository.VisitorRequest `json:"request"`
}

// ── Approve ───────────────────────────────────────────────────────────────────

// Approve marks the actor's ledger row approved. stepNo selects the row when
// the actor holds several; nil picks their lowest pending row.
func (s *ApprovalService) Approve(ctx context.Context, actor auth.Actor, requestID string, stepNo *int) (*DecisionResult, error) {
	if err := validateUUID("visitor_request_id", requestID); err != nil {
		return nil, err
	}
	return s.decide(ctx, actor, requestID, stepNo, workflow.StepApproved, nil)
}

// ── Reject ────────────────────────────────────────────────────────────────────

// Reject marks the actor's ledger row rejected. A reason is required.
func (s *ApprovalService) Reject(ctx context.Context, actor auth.Actor, requestID string, stepNo *int, reason string) (*DecisionResult, error) {
	if err := validateUUID("visitor_request_id", requestID); err != nil {
		return nil, err
	}
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return nil, errors.InvalidInput("reason", "rejection reason is required")
	}
	return s.decide(ctx, actor, requestID, stepNo, workflow.StepRejected, &reason)
}

func (s *ApprovalService) decide(
	ctx context.Context,
	actor auth.Actor,
	requestID string,
	stepNo *int,
	decision workflow.StepStatus,
	reason *string,
) (*DecisionResult, error) {
	fx := &sideEffects{}
	result := &DecisionResult{}

	err := s.store.InTransaction(ctx, func(tx repository.Tx) error {
		req, err := tx.VisitorRequests().GetByIDForUpdate(ctx, requestID)
		if err != nil {
			return err
		}
		if req.Status.Terminal() {
			return errors.Conflict(fmt.Sprintf("visitor request is already %s", req.Status))
		}

		rows, err := tx.Approvals().ListByRequest(ctx, req.ID)
		if err != nil {
			return err
		}
		row, err := actorRow(rows, actor.UserID, stepNo)
		if err != nil {
			return err
		}

		if s.cfg.EnforceStepOrder && !workflow.Actionable(repository.Ledger(rows), row.StepNo) {
			return errors.Conflict(fmt.Sprintf("step %d cannot be acted on before the preceding step is approved", row.StepNo))
		}
		if decision == workflow.StepApproved {
			if err := checkSlotForApprove(ctx, tx, req); err != nil {
				return err
			}
		}

		before := req.Status
		if row.Status != decision || decision == workflow.StepRejected {
			if err := tx.Approvals().UpdateStatus(ctx, row.ID, decision, reason); err != nil {
				return err
			}
		}

		tr, ledger, err := s.agg.recompute(ctx, tx, req, fx)
		if err != nil {
			return err
		}

		metadata := map[string]any{"step_no": row.StepNo}
		if reason != nil {
			metadata["reason"] = *reason
		}
		fx.record(&repository.ApprovalAuditEntry{
			VisitorRequestID: req.ID,
			Action:           string(decision),
			PerformedBy:      actor.UserID,
			StatusBefore:     statusPtr(before),
			StatusAfter:      statusPtr(req.Status),
			Metadata:         metadata,
		})

		result.Request = req
		result.Approvals = ledger
		result.Transition = tr
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.fx.apply(ctx, fx)

	s.log.Info().
		Str("visitor_request_id", requestID).
		Str("approver", actor.UserID).
		Str("decision", string(decision)).
		Str("status", string(result.Request.Status)).
		Msg("Approval decision recorded")

	return result, nil
}

// actorRow picks the ledger row the actor is acting on: the one at stepNo,
// else their lowest pending row, else their lowest row.
func actorRow(rows []*repository.Approval, actorID string, stepNo *int) (*repository.Approval, error) {
	if stepNo != nil {
		for _, r := range rows {
			if r.StepNo != *stepNo {
				continue
			}
			if r.ApproverID == actorID {
				return r, nil
			}
			return nil, errors.New(errors.ErrCodeForbidden,
				fmt.Sprintf("step %d is assigned to another approver", *stepNo))
		}
		return nil, errors.NotFound("approval", fmt.Sprintf("step %d", *stepNo))
	}

	var lowest *repository.Approval
	for _, r := range rows {
		if r.ApproverID != actorID {
			continue
		}
		if r.Status == workflow.StepPending {
			return r, nil
		}
		if lowest == nil {
			lowest = r
		}
	}
	if lowest == nil {
		return nil, errors.NotFound("approval", actorID)
	}
	return lowest, nil
}

// ── Query helpers ─────────────────────────────────────────────────────────────

// PendingForApprover returns the actor's rows that are actionable now: the
// request is pending and every row of the preceding step is approved.
func (s *ApprovalService) PendingForApprover(ctx context.Context, actor auth.Actor) ([]*PendingApproval, error) {
	rows, err := s.store.Approvals().ListPendingForApprover(ctx, actor.UserID)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return []*PendingApproval{}, nil
	}

	ids := make([]string, 0, len(rows))
	seen := make(map[string]bool)
	for _, r := range rows {
		if !seen[r.VisitorRequestID] {
			seen[r.VisitorRequestID] = true
			ids = append(ids, r.VisitorRequestID)
		}
	}

	ledgers, err := s.store.Approvals().ListByRequests(ctx, ids)
	if err != nil {
		return nil, err
	}
	requests, err := s.store.VisitorRequests().ListByIDs(ctx, ids)
	if err != nil {
		return nil, err
	}
	byID := make(map[string]*repository.VisitorRequest, len(requests))
	for _, req := range requests {
		byID[req.ID] = req
	}

	out := make([]*PendingApproval, 0, len(rows))
	for _, r := range rows {
		req, ok := byID[r.VisitorRequestID]
		if !ok || req.Status != workflow.RequestPending {
			continue
		}
		if !workflow.Actionable(repository.Ledger(ledgers[r.VisitorRequestID]), r.StepNo) {
			continue
		}
		out = append(out, &PendingApproval{Approval: r, Request: req})
	}
	return out, nil
}
