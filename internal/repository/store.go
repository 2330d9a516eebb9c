package repository

import (
	"context"

	"github.com/pesio-ai/be-visitor-gatepass/internal/platform/errors"
	"github.com/pesio-ai/be-visitor-gatepass/internal/workflow"
)

// Store is the persistence port of the approval engine. Reads may go through
// the embedded Tx directly; every multi-row mutation runs in InTransaction so
// it commits or rolls back as a unit.
type Store interface {
	Tx
	InTransaction(ctx context.Context, fn func(tx Tx) error) error
}

// Tx exposes the per-entity repositories bound to one transactional scope.
type Tx interface {
	WorkflowSteps() WorkflowSteps
	VisitorRequests() VisitorRequests
	Approvals() Approvals
	AuditLog() AuditLog
	Directory() Directory
}

// WorkflowSteps persists workflow template steps.
type WorkflowSteps interface {
	Create(ctx context.Context, step *WorkflowStep) error
	GetByID(ctx context.Context, id string) (*WorkflowStep, error)
	// ListForVisitorType returns the steps of one template ordered by step_no.
	ListForVisitorType(ctx context.Context, warehouseID, visitorTypeID string) ([]*WorkflowStep, error)
	// ListByWarehouse returns every step of a warehouse with joined names,
	// ordered by visitor type name then step_no.
	ListByWarehouse(ctx context.Context, warehouseID string) ([]*WorkflowStep, error)
	// FindByStepNo returns the step occupying (warehouse, type, step_no), or
	// nil. excludeID skips one step, used when updating it.
	FindByStepNo(ctx context.Context, warehouseID, visitorTypeID string, stepNo int, excludeID string) (*WorkflowStep, error)
	Update(ctx context.Context, step *WorkflowStep) error
	Delete(ctx context.Context, id string) error
}

// VisitorRequests persists visitor requests.
type VisitorRequests interface {
	Create(ctx context.Context, req *VisitorRequest) error
	GetByID(ctx context.Context, id string) (*VisitorRequest, error)
	// GetByIDForUpdate locks the request row for the rest of the transaction.
	GetByIDForUpdate(ctx context.Context, id string) (*VisitorRequest, error)
	GetByTrackingCode(ctx context.Context, code string) (*VisitorRequest, error)
	TrackingCodeExists(ctx context.Context, code string) (bool, error)
	// FindApprovedForSlot returns the approved request holding the slot on
	// date, ignoring excludeID, or nil when the slot is free.
	FindApprovedForSlot(ctx context.Context, warehouseID, visitDate, timeSlotID, excludeID string) (*VisitorRequest, error)
	// FindDuplicate returns a request with the same visitor name (case
	// insensitive), date, warehouse and slot in any status, or nil.
	FindDuplicate(ctx context.Context, name, visitDate, warehouseID, timeSlotID string) (*VisitorRequest, error)
	// ListPendingWithoutApprovals returns pending requests of the combination
	// that have no ledger rows at all.
	ListPendingWithoutApprovals(ctx context.Context, warehouseID, visitorTypeID string) ([]*VisitorRequest, error)
	List(ctx context.Context, filter VisitorRequestFilter) ([]*VisitorRequest, int, error)
	ListByIDs(ctx context.Context, ids []string) ([]*VisitorRequest, error)
	UpdateStatus(ctx context.Context, id string, status workflow.RequestStatus) error
	// UpdateVisit writes the visit-tracking fields of req.
	UpdateVisit(ctx context.Context, req *VisitorRequest) error
}

// Approvals persists approval ledger rows.
type Approvals interface {
	CreateBatch(ctx context.Context, rows []*Approval) error
	// ListByRequest returns a request's ledger ordered by step_no.
	ListByRequest(ctx context.Context, requestID string) ([]*Approval, error)
	ListByRequests(ctx context.Context, requestIDs []string) (map[string][]*Approval, error)
	// ListPendingForApprover returns the approver's pending rows on requests
	// that are themselves still pending.
	ListPendingForApprover(ctx context.Context, approverID string) ([]*Approval, error)
	UpdateStatus(ctx context.Context, id string, status workflow.StepStatus, reason *string) error
	// DeleteForStep removes the rows generated from one template step and
	// returns the ids of the requests that lost a row.
	DeleteForStep(ctx context.Context, warehouseID, visitorTypeID string, stepNo int, approverID string) ([]string, error)
}

// AuditLog appends and reads approval audit entries.
type AuditLog interface {
	Append(ctx context.Context, entry *ApprovalAuditEntry) error
	ListByRequest(ctx context.Context, requestID string) ([]*ApprovalAuditEntry, error)
}

// Directory reads the reference data owned by the CRUD layer.
type Directory interface {
	GetWarehouse(ctx context.Context, id string) (*Warehouse, error)
	GetTimeSlot(ctx context.Context, id string) (*TimeSlot, error)
	GetVisitorType(ctx context.Context, id string) (*VisitorType, error)
	GetUser(ctx context.Context, id string) (*User, error)
}

// Constraint names shared by the PostgreSQL schema and the in-memory store.
const (
	ConstraintWorkflowStep   = "uq_warehouse_workflow_step"
	ConstraintTrackingCode   = "uq_visitor_request_tracking_code"
	ConstraintApprovedSlot   = "uq_visitor_request_approved_slot"
	ConstraintDuplicateVisit = "uq_visitor_request_duplicate"
)

// ErrSlotTaken reports that a different request already holds the slot as
// approved on the same date.
var ErrSlotTaken = errors.Conflict("time slot is already booked for this date")

// ConstraintError translates a violated unique constraint into the
// conflict reported to callers.
func ConstraintError(constraint string) error {
	switch constraint {
	case ConstraintWorkflowStep:
		return errors.Conflict("workflow step already exists for this warehouse and visitor type")
	case ConstraintApprovedSlot:
		return ErrSlotTaken
	case ConstraintDuplicateVisit:
		return errors.Conflict("a visitor request for this visitor, date and slot already exists")
	case ConstraintTrackingCode:
		return errors.Conflict("tracking code already in use")
	default:
		return errors.Conflict("resource already exists")
	}
}
