package repository

import (
	"context"
	stderrors "errors"

	"github.com/jackc/pgx/v5"

	"github.com/pesio-ai/be-visitor-gatepass/internal/platform/database"
	"github.com/pesio-ai/be-visitor-gatepass/internal/platform/errors"
)

// WorkflowStepRepository persists workflow template steps in warehouse_workflow.
type WorkflowStepRepository struct {
	db database.Querier
}

// NewWorkflowStepRepository creates a new WorkflowStepRepository.
func NewWorkflowStepRepository(db database.Querier) *WorkflowStepRepository {
	return &WorkflowStepRepository{db: db}
}

const workflowStepColumns = `
	w.id, w.warehouse_id, w.visitor_type_id, w.step_no, w.approver,
	w.created_at, w.updated_at,
	COALESCE(u.name, ''), COALESCE(vt.name, '')
`

const workflowStepFrom = `
	FROM warehouse_workflow w
	LEFT JOIN users u ON u.id = w.approver
	LEFT JOIN visitor_types vt ON vt.id = w.visitor_type_id
`

// Create inserts a step. A taken (warehouse, type, step_no) is a conflict.
func (r *WorkflowStepRepository) Create(ctx context.Context, step *WorkflowStep) error {
	query := `
		INSERT INTO warehouse_workflow (warehouse_id, visitor_type_id, step_no, approver)
		VALUES ($1, $2, $3, $4)
		RETURNING id, created_at, updated_at
	`

	err := r.db.QueryRow(ctx, query,
		step.WarehouseID,
		step.VisitorTypeID,
		step.StepNo,
		step.ApproverID,
	).Scan(&step.ID, &step.CreatedAt, &step.UpdatedAt)
	return translateWriteError(err, "failed to create workflow step")
}

// GetByID retrieves a step by primary key.
func (r *WorkflowStepRepository) GetByID(ctx context.Context, id string) (*WorkflowStep, error) {
	query := `SELECT ` + workflowStepColumns + workflowStepFrom + ` WHERE w.id = $1`

	step, err := r.scanStep(r.db.QueryRow(ctx, query, id))
	if stderrors.Is(err, pgx.ErrNoRows) {
		return nil, errors.NotFound("workflow_step", id)
	}
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to get workflow step")
	}
	return step, nil
}

// ListForVisitorType returns one template's steps in execution order.
func (r *WorkflowStepRepository) ListForVisitorType(ctx context.Context, warehouseID, visitorTypeID string) ([]*WorkflowStep, error) {
	query := `SELECT ` + workflowStepColumns + workflowStepFrom + `
		WHERE w.warehouse_id = $1 AND w.visitor_type_id = $2
		ORDER BY w.step_no ASC
	`

	rows, err := r.db.Query(ctx, query, warehouseID, visitorTypeID)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to list workflow steps")
	}
	defer rows.Close()

	return r.scanRows(rows)
}

// ListByWarehouse returns every step of a warehouse grouped by visitor type.
func (r *WorkflowStepRepository) ListByWarehouse(ctx context.Context, warehouseID string) ([]*WorkflowStep, error) {
	query := `SELECT ` + workflowStepColumns + workflowStepFrom + `
		WHERE w.warehouse_id = $1
		ORDER BY vt.name ASC, w.step_no ASC
	`

	rows, err := r.db.Query(ctx, query, warehouseID)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to list warehouse workflow")
	}
	defer rows.Close()

	return r.scanRows(rows)
}

// FindByStepNo returns the step holding (warehouse, type, step_no), or nil.
func (r *WorkflowStepRepository) FindByStepNo(ctx context.Context, warehouseID, visitorTypeID string, stepNo int, excludeID string) (*WorkflowStep, error) {
	query := `SELECT ` + workflowStepColumns + workflowStepFrom + `
		WHERE w.warehouse_id = $1
		  AND w.visitor_type_id = $2
		  AND w.step_no = $3
		  AND ($4 = '' OR w.id::text <> $4)
		LIMIT 1
	`

	step, err := r.scanStep(r.db.QueryRow(ctx, query, warehouseID, visitorTypeID, stepNo, excludeID))
	if stderrors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to look up workflow step")
	}
	return step, nil
}

// Update changes a step's position and approver.
func (r *WorkflowStepRepository) Update(ctx context.Context, step *WorkflowStep) error {
	query := `
		UPDATE warehouse_workflow
		SET step_no    = $2,
		    approver   = $3,
		    updated_at = NOW()
		WHERE id = $1
		RETURNING updated_at
	`

	err := r.db.QueryRow(ctx, query, step.ID, step.StepNo, step.ApproverID).Scan(&step.UpdatedAt)
	if stderrors.Is(err, pgx.ErrNoRows) {
		return errors.NotFound("workflow_step", step.ID)
	}
	return translateWriteError(err, "failed to update workflow step")
}

// Delete removes a step.
func (r *WorkflowStepRepository) Delete(ctx context.Context, id string) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM warehouse_workflow WHERE id = $1`, id)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeInternal, "failed to delete workflow step")
	}
	if tag.RowsAffected() == 0 {
		return errors.NotFound("workflow_step", id)
	}
	return nil
}

// ── scan helpers ──────────────────────────────────────────────────────────────

type rowScanner interface {
	Scan(dest ...any) error
}

func (r *WorkflowStepRepository) scanStep(row rowScanner) (*WorkflowStep, error) {
	s := &WorkflowStep{}
	err := row.Scan(
		&s.ID,
		&s.WarehouseID,
		&s.VisitorTypeID,
		&s.StepNo,
		&s.ApproverID,
		&s.CreatedAt,
		&s.UpdatedAt,
		&s.ApproverName,
		&s.VisitorTypeName,
	)
	if err != nil {
		return nil, err
	}
	return s, nil
}

func (r *WorkflowStepRepository) scanRows(rows pgx.Rows) ([]*WorkflowStep, error) {
	var steps []*WorkflowStep
	for rows.Next() {
		s, err := r.scanStep(rows)
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to scan workflow step")
		}
		steps = append(steps, s)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to read workflow steps")
	}
	return steps, nil
}
