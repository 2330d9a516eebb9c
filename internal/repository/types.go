package repository

import (
	"time"

	"github.com/pesio-ai/be-visitor-gatepass/internal/workflow"
)

// ── Directory (read-only for the engine) ─────────────────────────────────────

// Warehouse is a site that receives visitors.
type Warehouse struct {
	ID       string  `json:"id"`
	Name     string  `json:"name"`
	Location *string `json:"location,omitempty"`
}

// TimeSlot is a bookable window of a warehouse. From and To are HH:MM.
type TimeSlot struct {
	ID          string `json:"id"`
	WarehouseID string `json:"warehouse_id"`
	Name        string `json:"name"`
	From        string `json:"from"`
	To          string `json:"to"`
}

// VisitorType classifies visitors (auditor, contractor, guest, ...).
type VisitorType struct {
	ID          string  `json:"id"`
	Name        string  `json:"name"`
	Description *string `json:"description,omitempty"`
}

// User is a staff member; approvers are users.
type User struct {
	ID          string  `json:"id"`
	Name        string  `json:"name"`
	Email       string  `json:"email"`
	Role        string  `json:"role"` // Admin | Receptionist | Approver
	WarehouseID *string `json:"warehouse_id,omitempty"`
	IsActive    bool    `json:"is_active"`
}

// ── Workflow template ────────────────────────────────────────────────────────

// WorkflowStep is one (warehouse, visitor type, step, approver) tuple of a
// workflow template.
type WorkflowStep struct {
	ID            string    `json:"id"`
	WarehouseID   string    `json:"warehouse_id"`
	VisitorTypeID string    `json:"visitor_type_id"`
	StepNo        int       `json:"step_no"`
	ApproverID    string    `json:"approver_id"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`

	// Joined on reads; ignored on writes.
	ApproverName    string `json:"approver_name,omitempty"`
	VisitorTypeName string `json:"visitor_type_name,omitempty"`
}

// ── Requests and ledger ──────────────────────────────────────────────────────

// AccompanyingPerson is one entry of a request's free-form companion list.
type AccompanyingPerson struct {
	Name     string  `json:"name"`
	Phone    *string `json:"phone,omitempty"`
	IDNumber *string `json:"id_number,omitempty"`
}

// VisitorRequest is a request to visit a warehouse slot on a date.
type VisitorRequest struct {
	ID            string                 `json:"id"`
	Name          string                 `json:"name"`
	Phone         *string                `json:"phone,omitempty"`
	Email         *string                `json:"email,omitempty"`
	VisitorTypeID string                 `json:"visitor_type_id"`
	WarehouseID   string                 `json:"warehouse_id"`
	TimeSlotID    string                 `json:"warehouse_time_slot_id"`
	VisitDate     string                 `json:"date"` // YYYY-MM-DD
	Accompanying  []AccompanyingPerson   `json:"accompanying"`
	Status        workflow.RequestStatus `json:"status"`
	VisitStatus   workflow.VisitStatus   `json:"visit_status"`
	ArrivedAt     *time.Time             `json:"arrived_at,omitempty"`
	CheckedOutAt  *time.Time             `json:"checked_out_at,omitempty"`
	Punctuality   *workflow.Punctuality  `json:"punctuality,omitempty"`
	TrackingCode  string                 `json:"tracking_code"`
	CreatedAt     time.Time              `json:"created_at"`
	UpdatedAt     time.Time              `json:"updated_at"`
}

// Approval is one ledger row: the outcome of a single step for a request.
type Approval struct {
	ID               string              `json:"id"`
	VisitorRequestID string              `json:"visitor_request_id"`
	StepNo           int                 `json:"step_no"`
	ApproverID       string              `json:"approver_id"`
	Status           workflow.StepStatus `json:"status"`
	Reason           *string             `json:"reason,omitempty"`
	ActedAt          *time.Time          `json:"acted_at,omitempty"`
	CreatedAt        time.Time           `json:"created_at"`
	UpdatedAt        time.Time           `json:"updated_at"`

	// Joined on reads.
	ApproverName string `json:"approver_name,omitempty"`
}

// Ledger converts approval rows into the view used by the workflow rules.
func Ledger(rows []*Approval) []workflow.Step {
	out := make([]workflow.Step, 0, len(rows))
	for _, a := range rows {
		s := workflow.Step{StepNo: a.StepNo, Status: a.Status}
		if a.Reason != nil {
			s.Reason = *a.Reason
		}
		out = append(out, s)
	}
	return out
}

// ApprovalAuditEntry is one immutable record in the audit log.
type ApprovalAuditEntry struct {
	ID               string         `json:"id"`
	VisitorRequestID string         `json:"visitor_request_id"`
	Action           string         `json:"action"` // submitted | approved | rejected | step_retracted | backfilled | arrived | checked_out | no_show
	PerformedBy      string         `json:"performed_by"`
	PerformedAt      time.Time      `json:"performed_at"`
	StatusBefore     *string        `json:"status_before,omitempty"`
	StatusAfter      *string        `json:"status_after,omitempty"`
	Metadata         map[string]any `json:"metadata,omitempty"`
}

// VisitorRequestFilter narrows ListVisitorRequests. Nil fields match all.
type VisitorRequestFilter struct {
	WarehouseID *string
	Status      *string
	VisitDate   *string
	Page        int
	PageSize    int
}

func (f VisitorRequestFilter) offset() int {
	if f.Page < 1 {
		return 0
	}
	return (f.Page - 1) * f.PageSize
}
