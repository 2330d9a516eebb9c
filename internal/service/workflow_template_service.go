package service

import (
	"context"
	"fmt"

	"github.com/pesio-ai/be-visitor-gatepass/internal/auth"
	"github.com/pesio-ai/be-visitor-gatepass/internal/notify"
	"github.com/pesio-ai/be-visitor-gatepass/internal/platform/errors"
	"github.com/pesio-ai/be-visitor-gatepass/internal/platform/logger"
	"github.com/pesio-ai/be-visitor-gatepass/internal/platform/metrics"
	"github.com/pesio-ai/be-visitor-gatepass/internal/repository"
	"github.com/pesio-ai/be-visitor-gatepass/internal/workflow"
)

// WorkflowTemplateService manages the per-warehouse, per-visitor-type
// approval chains and keeps in-flight requests consistent with them.
type WorkflowTemplateService struct {
	store   repository.Store
	agg     *aggregator
	fx      *effects
	metrics *metrics.Recorder
	log     *logger.Logger
}

// NewWorkflowTemplateService creates a new workflow template service
func NewWorkflowTemplateService(
	store repository.Store,
	notifier notify.Notifier,
	rec *metrics.Recorder,
	cfg Config,
	log *logger.Logger,
) *WorkflowTemplateService {
	cfg = cfg.withDefaults()
	return &WorkflowTemplateService{
		store:   store,
		agg:     &aggregator{log: log},
		fx:      &effects{store: store, notifier: notifier, metrics: rec, log: log, timeout: cfg.NotifyTimeout},
		metrics: rec,
		log:     log,
	}
}

// AddStepRequest represents an add workflow step request
type AddStepRequest struct {
	WarehouseID   string
	VisitorTypeID string
	StepNo        int
	ApproverID    string
}

// UpdateStepRequest represents an update workflow step request
type UpdateStepRequest struct {
	ID         string
	StepNo     int
	ApproverID string
}

// WorkflowStepView is one step of a visitor type's chain.
type WorkflowStepView struct {
	ID         string `json:"id"`
	StepNo     int    `json:"step_no"`
	ApproverID string `json:"approver_id"`
	Approver   string `json:"approver"`
}

// VisitorTypeWorkflow is the chain configured for one visitor type.
type VisitorTypeWorkflow struct {
	VisitorTypeID string             `json:"visitor_type_id"`
	VisitorType   string             `json:"visitor_type"`
	Steps         []WorkflowStepView `json:"steps"`
}

// AddStep adds a step to a template and seeds it into unrouted pending
// requests of the same combination.
func (s *WorkflowTemplateService) AddStep(ctx context.Context, actor auth.Actor, req *AddStepRequest) (*repository.WorkflowStep, error) {
	if err := validateUUID("warehouse_id", req.WarehouseID); err != nil {
		return nil, err
	}
	if err := validateUUID("visitor_type_id", req.VisitorTypeID); err != nil {
		return nil, err
	}
	if err := validateUUID("approver_id", req.ApproverID); err != nil {
		return nil, err
	}
	if req.StepNo < 1 {
		return nil, errors.InvalidInput("step_no", "step number must be positive")
	}

	step := &repository.WorkflowStep{
		WarehouseID:   req.WarehouseID,
		VisitorTypeID: req.VisitorTypeID,
		StepNo:        req.StepNo,
		ApproverID:    req.ApproverID,
	}
	fx := &sideEffects{}
	var seeded []string

	err := s.store.InTransaction(ctx, func(tx repository.Tx) error {
		if _, err := tx.Directory().GetWarehouse(ctx, req.WarehouseID); err != nil {
			return err
		}
		if _, err := tx.Directory().GetVisitorType(ctx, req.VisitorTypeID); err != nil {
			return err
		}
		if _, err := tx.Directory().GetUser(ctx, req.ApproverID); err != nil {
			return err
		}

		existing, err := tx.WorkflowSteps().FindByStepNo(ctx, req.WarehouseID, req.VisitorTypeID, req.StepNo, "")
		if err != nil {
			return err
		}
		if existing != nil {
			return repository.ConstraintError(repository.ConstraintWorkflowStep)
		}

		if err := tx.WorkflowSteps().Create(ctx, step); err != nil {
			return err
		}

		seeded, err = reconcileLedger(ctx, tx, req.WarehouseID, req.VisitorTypeID)
		if err != nil {
			return err
		}
		for _, id := range seeded {
			fx.record(backfillEntry(id, actor.UserID, step.ID))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.fx.apply(ctx, fx)
	s.recordBackfill(req.WarehouseID, req.VisitorTypeID, seeded)

	s.log.Info().
		Str("workflow_step_id", step.ID).
		Str("warehouse_id", step.WarehouseID).
		Str("visitor_type_id", step.VisitorTypeID).
		Int("step_no", step.StepNo).
		Str("approver_id", step.ApproverID).
		Int("backfilled", len(seeded)).
		Msg("Workflow step added")

	return s.store.WorkflowSteps().GetByID(ctx, step.ID)
}

// ReconcileLedgerForTemplateChange seeds the current template of a
// combination into every pending request that has no approval rows yet and
// returns the ids of the requests it seeded.
func (s *WorkflowTemplateService) ReconcileLedgerForTemplateChange(ctx context.Context, actor auth.Actor, warehouseID, visitorTypeID string) ([]string, error) {
	if err := validateUUID("warehouse_id", warehouseID); err != nil {
		return nil, err
	}
	if err := validateUUID("visitor_type_id", visitorTypeID); err != nil {
		return nil, err
	}

	fx := &sideEffects{}
	var seeded []string

	err := s.store.InTransaction(ctx, func(tx repository.Tx) error {
		var err error
		seeded, err = reconcileLedger(ctx, tx, warehouseID, visitorTypeID)
		if err != nil {
			return err
		}
		for _, id := range seeded {
			fx.record(backfillEntry(id, actor.UserID, ""))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.fx.apply(ctx, fx)
	s.recordBackfill(warehouseID, visitorTypeID, seeded)
	return seeded, nil
}

func backfillEntry(requestID, performer, stepID string) *repository.ApprovalAuditEntry {
	metadata := map[string]any{}
	if stepID != "" {
		metadata["workflow_step_id"] = stepID
	}
	return &repository.ApprovalAuditEntry{
		VisitorRequestID: requestID,
		Action:           "backfilled",
		PerformedBy:      performer,
		Metadata:         metadata,
	}
}

func (s *WorkflowTemplateService) recordBackfill(warehouseID, visitorTypeID string, seeded []string) {
	if len(seeded) == 0 {
		return
	}
	s.metrics.Count(metrics.LedgerBackfill, int64(len(seeded)))
	s.log.Info().
		Str("warehouse_id", warehouseID).
		Str("visitor_type_id", visitorTypeID).
		Int("requests", len(seeded)).
		Msg("Seeded workflow into unrouted visitor requests")
}

// UpdateStep changes the position or approver of a step. Existing ledgers
// keep the snapshot taken when their request was created.
func (s *WorkflowTemplateService) UpdateStep(ctx context.Context, req *UpdateStepRequest) (*repository.WorkflowStep, error) {
	if err := validateUUID("id", req.ID); err != nil {
		return nil, err
	}
	if err := validateUUID("approver_id", req.ApproverID); err != nil {
		return nil, err
	}
	if req.StepNo < 1 {
		return nil, errors.InvalidInput("step_no", "step number must be positive")
	}

	err := s.store.InTransaction(ctx, func(tx repository.Tx) error {
		step, err := tx.WorkflowSteps().GetByID(ctx, req.ID)
		if err != nil {
			return err
		}
		if _, err := tx.Directory().GetUser(ctx, req.ApproverID); err != nil {
			return err
		}

		clash, err := tx.WorkflowSteps().FindByStepNo(ctx, step.WarehouseID, step.VisitorTypeID, req.StepNo, step.ID)
		if err != nil {
			return err
		}
		if clash != nil {
			return errors.Conflict(fmt.Sprintf("step %d is already used by this workflow", req.StepNo))
		}

		step.StepNo = req.StepNo
		step.ApproverID = req.ApproverID
		return tx.WorkflowSteps().Update(ctx, step)
	})
	if err != nil {
		return nil, err
	}

	s.log.Info().
		Str("workflow_step_id", req.ID).
		Int("step_no", req.StepNo).
		Str("approver_id", req.ApproverID).
		Msg("Workflow step updated")

	return s.store.WorkflowSteps().GetByID(ctx, req.ID)
}

// DeleteStep removes a step and the ledger rows generated from it, then
// re-aggregates the affected requests that are still pending.
func (s *WorkflowTemplateService) DeleteStep(ctx context.Context, actor auth.Actor, id string) error {
	if err := validateUUID("id", id); err != nil {
		return err
	}

	fx := &sideEffects{}
	var affected []string

	err := s.store.InTransaction(ctx, func(tx repository.Tx) error {
		step, err := tx.WorkflowSteps().GetByID(ctx, id)
		if err != nil {
			return err
		}

		affected, err = tx.Approvals().DeleteForStep(ctx, step.WarehouseID, step.VisitorTypeID, step.StepNo, step.ApproverID)
		if err != nil {
			return err
		}
		if err := tx.WorkflowSteps().Delete(ctx, step.ID); err != nil {
			return err
		}

		for _, requestID := range affected {
			req, err := tx.VisitorRequests().GetByIDForUpdate(ctx, requestID)
			if err != nil {
				return err
			}
			before := req.Status

			if req.Status.Terminal() {
				fx.record(retractedEntry(req, actor.UserID, step, before))
				continue
			}

			if _, _, err := s.agg.recompute(ctx, tx, req, fx); err != nil {
				if !isSlotTaken(err) {
					return err
				}
				s.log.Warn().
					Str("visitor_request_id", req.ID).
					Msg("Step removal would approve a request whose slot is taken; left pending")
			}
			fx.record(retractedEntry(req, actor.UserID, step, before))
		}
		return nil
	})
	if err != nil {
		return err
	}

	s.fx.apply(ctx, fx)

	s.log.Info().
		Str("workflow_step_id", id).
		Int("affected_requests", len(affected)).
		Msg("Workflow step deleted")

	return nil
}

func retractedEntry(req *repository.VisitorRequest, performer string, step *repository.WorkflowStep, before workflow.RequestStatus) *repository.ApprovalAuditEntry {
	return &repository.ApprovalAuditEntry{
		VisitorRequestID: req.ID,
		Action:           "step_retracted",
		PerformedBy:      performer,
		StatusBefore:     statusPtr(before),
		StatusAfter:      statusPtr(req.Status),
		Metadata: map[string]any{
			"workflow_step_id": step.ID,
			"step_no":          step.StepNo,
			"approver_id":      step.ApproverID,
		},
	}
}

// GetWarehouseWorkflow returns a warehouse's steps grouped by visitor type,
// ordered by type name then step number.
func (s *WorkflowTemplateService) GetWarehouseWorkflow(ctx context.Context, warehouseID string) ([]*VisitorTypeWorkflow, error) {
	if err := validateUUID("warehouse_id", warehouseID); err != nil {
		return nil, err
	}
	if _, err := s.store.Directory().GetWarehouse(ctx, warehouseID); err != nil {
		return nil, err
	}

	steps, err := s.store.WorkflowSteps().ListByWarehouse(ctx, warehouseID)
	if err != nil {
		return nil, err
	}

	groups := make([]*VisitorTypeWorkflow, 0)
	index := make(map[string]*VisitorTypeWorkflow)
	for _, st := range steps {
		g, ok := index[st.VisitorTypeID]
		if !ok {
			g = &VisitorTypeWorkflow{
				VisitorTypeID: st.VisitorTypeID,
				VisitorType:   st.VisitorTypeName,
				Steps:         []WorkflowStepView{},
			}
			index[st.VisitorTypeID] = g
			groups = append(groups, g)
		}
		g.Steps = append(g.Steps, WorkflowStepView{
			ID:         st.ID,
			StepNo:     st.StepNo,
			ApproverID: st.ApproverID,
			Approver:   st.ApproverName,
		})
	}
	return groups, nil
}
