package repository

import (
	"context"
	stderrors "errors"

	"github.com/jackc/pgx/v5"

	"github.com/pesio-ai/be-visitor-gatepass/internal/platform/database"
	"github.com/pesio-ai/be-visitor-gatepass/internal/platform/errors"
	"github.com/pesio-ai/be-visitor-gatepass/internal/workflow"
)

// ApprovalRepository handles reads and updates on approval ledger rows.
// Rows are only ever inserted by ledger instantiation.
type ApprovalRepository struct {
	db database.Querier
}

// NewApprovalRepository creates a new ApprovalRepository.
func NewApprovalRepository(db database.Querier) *ApprovalRepository {
	return &ApprovalRepository{db: db}
}

const approvalColumns = `
	a.id, a.visitor_request_id, a.step_no, a.approver, a.status,
	a.reason, a.acted_at, a.created_at, a.updated_at,
	COALESCE(u.name, '')
`

// CreateBatch inserts pending ledger rows in order.
func (r *ApprovalRepository) CreateBatch(ctx context.Context, rows []*Approval) error {
	query := `
		INSERT INTO approval (visitor_request_id, step_no, approver, status)
		VALUES ($1, $2, $3, $4)
		RETURNING id, created_at, updated_at
	`

	for _, a := range rows {
		if a.Status == "" {
			a.Status = workflow.StepPending
		}
		err := r.db.QueryRow(ctx, query,
			a.VisitorRequestID,
			a.StepNo,
			a.ApproverID,
			a.Status,
		).Scan(&a.ID, &a.CreatedAt, &a.UpdatedAt)
		if err != nil {
			return translateWriteError(err, "failed to create approval")
		}
	}
	return nil
}

// ListByRequest returns a request's ledger ordered by step_no.
func (r *ApprovalRepository) ListByRequest(ctx context.Context, requestID string) ([]*Approval, error) {
	query := `SELECT ` + approvalColumns + `
		FROM approval a
		LEFT JOIN users u ON u.id = a.approver
		WHERE a.visitor_request_id = $1
		ORDER BY a.step_no ASC, a.created_at ASC
	`

	rows, err := r.db.Query(ctx, query, requestID)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to get approvals")
	}
	defer rows.Close()

	return r.scanRows(rows)
}

// ListByRequests returns the ledgers of several requests keyed by request id.
func (r *ApprovalRepository) ListByRequests(ctx context.Context, requestIDs []string) (map[string][]*Approval, error) {
	out := make(map[string][]*Approval, len(requestIDs))
	if len(requestIDs) == 0 {
		return out, nil
	}

	query := `SELECT ` + approvalColumns + `
		FROM approval a
		LEFT JOIN users u ON u.id = a.approver
		WHERE a.visitor_request_id = ANY($1::uuid[])
		ORDER BY a.visitor_request_id, a.step_no ASC, a.created_at ASC
	`

	rows, err := r.db.Query(ctx, query, requestIDs)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to get approvals")
	}
	defer rows.Close()

	approvals, err := r.scanRows(rows)
	if err != nil {
		return nil, err
	}
	for _, a := range approvals {
		out[a.VisitorRequestID] = append(out[a.VisitorRequestID], a)
	}
	return out, nil
}

// ListPendingForApprover returns the approver's pending rows whose request is
// still pending, ordered by visit date.
func (r *ApprovalRepository) ListPendingForApprover(ctx context.Context, approverID string) ([]*Approval, error) {
	query := `SELECT ` + approvalColumns + `
		FROM approval a
		JOIN visitor_request vr ON vr.id = a.visitor_request_id
		LEFT JOIN users u ON u.id = a.approver
		WHERE a.approver = $1
		  AND a.status = 'pending'
		  AND vr.status = 'pending'
		ORDER BY vr.date ASC, vr.created_at ASC, a.step_no ASC
	`

	rows, err := r.db.Query(ctx, query, approverID)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to get pending approvals")
	}
	defer rows.Close()

	return r.scanRows(rows)
}

// UpdateStatus records an approver's decision on one row.
func (r *ApprovalRepository) UpdateStatus(ctx context.Context, id string, status workflow.StepStatus, reason *string) error {
	query := `
		UPDATE approval
		SET status     = $2,
		    reason     = $3,
		    acted_at   = NOW(),
		    updated_at = NOW()
		WHERE id = $1
		RETURNING id
	`

	var returnedID string
	err := r.db.QueryRow(ctx, query, id, status, reason).Scan(&returnedID)
	if stderrors.Is(err, pgx.ErrNoRows) {
		return errors.NotFound("approval", id)
	}
	return translateWriteError(err, "failed to update approval")
}

// DeleteForStep removes the ledger rows generated from a template step on the
// combination's requests and returns the distinct affected request ids.
func (r *ApprovalRepository) DeleteForStep(ctx context.Context, warehouseID, visitorTypeID string, stepNo int, approverID string) ([]string, error) {
	query := `
		DELETE FROM approval a
		USING visitor_request vr
		WHERE vr.id = a.visitor_request_id
		  AND vr.warehouse_id = $1
		  AND vr.visitor_type_id = $2
		  AND a.step_no = $3
		  AND a.approver = $4
		RETURNING a.visitor_request_id
	`

	rows, err := r.db.Query(ctx, query, warehouseID, visitorTypeID, stepNo, approverID)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to delete approvals for step")
	}
	defer rows.Close()

	seen := make(map[string]bool)
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to scan deleted approval")
		}
		if !seen[id] {
			seen[id] = true
			ids = append(ids, id)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to delete approvals for step")
	}
	return ids, nil
}

// ── scan helpers ──────────────────────────────────────────────────────────────

func (r *ApprovalRepository) scanRows(rows pgx.Rows) ([]*Approval, error) {
	approvals := make([]*Approval, 0)
	for rows.Next() {
		a := &Approval{}
		err := rows.Scan(
			&a.ID,
			&a.VisitorRequestID,
			&a.StepNo,
			&a.ApproverID,
			&a.Status,
			&a.Reason,
			&a.ActedAt,
			&a.CreatedAt,
			&a.UpdatedAt,
			&a.ApproverName,
		)
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to scan approval")
		}
		approvals = append(approvals, a)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to read approvals")
	}
	return approvals, nil
}
