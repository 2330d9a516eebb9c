package repository

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/pesio-ai/be-visitor-gatepass/internal/platform/database"
	"github.com/pesio-ai/be-visitor-gatepass/internal/platform/errors"
	"github.com/pesio-ai/be-visitor-gatepass/internal/workflow"
)

// VisitorRequestRepository handles visitor_request data operations.
type VisitorRequestRepository struct {
	db database.Querier
}

// NewVisitorRequestRepository creates a new visitor request repository.
func NewVisitorRequestRepository(db database.Querier) *VisitorRequestRepository {
	return &VisitorRequestRepository{db: db}
}

const visitorRequestColumns = `
	id, name, phone, email, visitor_type_id, warehouse_id, warehouse_time_slot_id,
	date::text, accompanying, status, visit_status,
	arrived_at, checked_out_at, punctuality, tracking_code,
	created_at, updated_at
`

// Create inserts a pending request. Duplicate and tracking-code collisions
// surface as conflicts.
func (r *VisitorRequestRepository) Create(ctx context.Context, req *VisitorRequest) error {
	accompanying, err := marshalAccompanying(req.Accompanying)
	if err != nil {
		return err
	}

	if req.Status == "" {
		req.Status = workflow.RequestPending
	}
	if req.VisitStatus == "" {
		req.VisitStatus = workflow.VisitPending
	}

	query := `
		INSERT INTO visitor_request (name, phone, email, visitor_type_id, warehouse_id,
		                             warehouse_time_slot_id, date, accompanying,
		                             status, visit_status, tracking_code)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING id, created_at, updated_at
	`

	err = r.db.QueryRow(ctx, query,
		req.Name,
		req.Phone,
		req.Email,
		req.VisitorTypeID,
		req.WarehouseID,
		req.TimeSlotID,
		req.VisitDate,
		accompanying,
		req.Status,
		req.VisitStatus,
		req.TrackingCode,
	).Scan(&req.ID, &req.CreatedAt, &req.UpdatedAt)
	return translateWriteError(err, "failed to create visitor request")
}

// GetByID retrieves a request by ID.
func (r *VisitorRequestRepository) GetByID(ctx context.Context, id string) (*VisitorRequest, error) {
	query := `SELECT ` + visitorRequestColumns + ` FROM visitor_request WHERE id = $1`
	return r.getOne(ctx, query, "visitor_request", id)
}

// GetByIDForUpdate retrieves a request and locks its row until the
// surrounding transaction ends.
func (r *VisitorRequestRepository) GetByIDForUpdate(ctx context.Context, id string) (*VisitorRequest, error) {
	query := `SELECT ` + visitorRequestColumns + ` FROM visitor_request WHERE id = $1 FOR UPDATE`
	return r.getOne(ctx, query, "visitor_request", id)
}

// GetByTrackingCode retrieves a request by its public tracking code.
func (r *VisitorRequestRepository) GetByTrackingCode(ctx context.Context, code string) (*VisitorRequest, error) {
	query := `SELECT ` + visitorRequestColumns + ` FROM visitor_request WHERE tracking_code = $1`
	return r.getOne(ctx, query, "visitor_request", code)
}

// TrackingCodeExists reports whether a code is already assigned.
func (r *VisitorRequestRepository) TrackingCodeExists(ctx context.Context, code string) (bool, error) {
	var exists bool
	err := r.db.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM visitor_request WHERE tracking_code = $1)`, code,
	).Scan(&exists)
	if err != nil {
		return false, errors.Wrap(err, errors.ErrCodeInternal, "failed to check tracking code")
	}
	return exists, nil
}

// FindApprovedForSlot returns the approved booking that holds a slot on a
// date, or nil.
func (r *VisitorRequestRepository) FindApprovedForSlot(ctx context.Context, warehouseID, visitDate, timeSlotID, excludeID string) (*VisitorRequest, error) {
	query := `SELECT ` + visitorRequestColumns + `
		FROM visitor_request
		WHERE warehouse_id = $1
		  AND date = $2
		  AND warehouse_time_slot_id = $3
		  AND status = 'approved'
		  AND ($4 = '' OR id::text <> $4)
		LIMIT 1
	`
	return r.findOne(ctx, query, warehouseID, visitDate, timeSlotID, excludeID)
}

// FindDuplicate returns a request for the same visitor, date, warehouse and
// slot in any status, or nil.
func (r *VisitorRequestRepository) FindDuplicate(ctx context.Context, name, visitDate, warehouseID, timeSlotID string) (*VisitorRequest, error) {
	query := `SELECT ` + visitorRequestColumns + `
		FROM visitor_request
		WHERE lower(name) = lower($1)
		  AND date = $2
		  AND warehouse_id = $3
		  AND warehouse_time_slot_id = $4
		LIMIT 1
	`
	return r.findOne(ctx, query, name, visitDate, warehouseID, timeSlotID)
}

// ListPendingWithoutApprovals returns pending requests of a combination that
// have no ledger rows.
func (r *VisitorRequestRepository) ListPendingWithoutApprovals(ctx context.Context, warehouseID, visitorTypeID string) ([]*VisitorRequest, error) {
	query := `SELECT ` + visitorRequestColumns + `
		FROM visitor_request vr
		WHERE vr.warehouse_id = $1
		  AND vr.visitor_type_id = $2
		  AND vr.status = 'pending'
		  AND NOT EXISTS (SELECT 1 FROM approval a WHERE a.visitor_request_id = vr.id)
		ORDER BY vr.created_at ASC
	`

	rows, err := r.db.Query(ctx, query, warehouseID, visitorTypeID)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to list unrouted visitor requests")
	}
	defer rows.Close()

	return r.scanRows(rows)
}

// List returns a page of requests matching filter and the total match count.
func (r *VisitorRequestRepository) List(ctx context.Context, filter VisitorRequestFilter) ([]*VisitorRequest, int, error) {
	query := `SELECT ` + visitorRequestColumns + ` FROM visitor_request WHERE 1 = 1`
	countQuery := `SELECT COUNT(*) FROM visitor_request WHERE 1 = 1`

	args := []interface{}{}
	argCount := 1

	if filter.WarehouseID != nil {
		query += fmt.Sprintf(" AND warehouse_id = $%d", argCount)
		countQuery += fmt.Sprintf(" AND warehouse_id = $%d", argCount)
		args = append(args, *filter.WarehouseID)
		argCount++
	}

	if filter.Status != nil {
		query += fmt.Sprintf(" AND status = $%d", argCount)
		countQuery += fmt.Sprintf(" AND status = $%d", argCount)
		args = append(args, *filter.Status)
		argCount++
	}

	if filter.VisitDate != nil {
		query += fmt.Sprintf(" AND date = $%d", argCount)
		countQuery += fmt.Sprintf(" AND date = $%d", argCount)
		args = append(args, *filter.VisitDate)
		argCount++
	}

	query += " ORDER BY date DESC, created_at DESC"
	query += fmt.Sprintf(" LIMIT $%d OFFSET $%d", argCount, argCount+1)

	queryArgs := append(append([]interface{}{}, args...), filter.PageSize, filter.offset())

	var total int
	if err := r.db.QueryRow(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, errors.Wrap(err, errors.ErrCodeInternal, "failed to count visitor requests")
	}

	rows, err := r.db.Query(ctx, query, queryArgs...)
	if err != nil {
		return nil, 0, errors.Wrap(err, errors.ErrCodeInternal, "failed to list visitor requests")
	}
	defer rows.Close()

	requests, err := r.scanRows(rows)
	if err != nil {
		return nil, 0, err
	}
	return requests, total, nil
}

// ListByIDs returns the requests with the given ids in no particular order.
func (r *VisitorRequestRepository) ListByIDs(ctx context.Context, ids []string) ([]*VisitorRequest, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	query := `SELECT ` + visitorRequestColumns + ` FROM visitor_request WHERE id = ANY($1::uuid[])`

	rows, err := r.db.Query(ctx, query, ids)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to list visitor requests")
	}
	defer rows.Close()

	return r.scanRows(rows)
}

// UpdateStatus writes the aggregated request status.
func (r *VisitorRequestRepository) UpdateStatus(ctx context.Context, id string, status workflow.RequestStatus) error {
	query := `
		UPDATE visitor_request
		SET status = $2, updated_at = NOW()
		WHERE id = $1
	`

	tag, err := r.db.Exec(ctx, query, id, status)
	if err != nil {
		return translateWriteError(err, "failed to update visitor request status")
	}
	if tag.RowsAffected() == 0 {
		return errors.NotFound("visitor_request", id)
	}
	return nil
}

// UpdateVisit writes the visit-tracking fields of req.
func (r *VisitorRequestRepository) UpdateVisit(ctx context.Context, req *VisitorRequest) error {
	query := `
		UPDATE visitor_request
		SET visit_status   = $2,
		    arrived_at     = $3,
		    checked_out_at = $4,
		    punctuality    = $5,
		    updated_at     = NOW()
		WHERE id = $1
		RETURNING updated_at
	`

	err := r.db.QueryRow(ctx, query,
		req.ID,
		req.VisitStatus,
		req.ArrivedAt,
		req.CheckedOutAt,
		req.Punctuality,
	).Scan(&req.UpdatedAt)
	if stderrors.Is(err, pgx.ErrNoRows) {
		return errors.NotFound("visitor_request", req.ID)
	}
	return translateWriteError(err, "failed to update visit")
}

// ── scan helpers ──────────────────────────────────────────────────────────────

func (r *VisitorRequestRepository) getOne(ctx context.Context, query, resource, key string) (*VisitorRequest, error) {
	req, err := r.scanRequest(r.db.QueryRow(ctx, query, key))
	if stderrors.Is(err, pgx.ErrNoRows) {
		return nil, errors.NotFound(resource, key)
	}
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to get visitor request")
	}
	return req, nil
}

func (r *VisitorRequestRepository) findOne(ctx context.Context, query string, args ...any) (*VisitorRequest, error) {
	req, err := r.scanRequest(r.db.QueryRow(ctx, query, args...))
	if stderrors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to look up visitor request")
	}
	return req, nil
}

func (r *VisitorRequestRepository) scanRequest(row rowScanner) (*VisitorRequest, error) {
	req := &VisitorRequest{}
	var accompanying []byte

	err := row.Scan(
		&req.ID,
		&req.Name,
		&req.Phone,
		&req.Email,
		&req.VisitorTypeID,
		&req.WarehouseID,
		&req.TimeSlotID,
		&req.VisitDate,
		&accompanying,
		&req.Status,
		&req.VisitStatus,
		&req.ArrivedAt,
		&req.CheckedOutAt,
		&req.Punctuality,
		&req.TrackingCode,
		&req.CreatedAt,
		&req.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	req.Accompanying = []AccompanyingPerson{}
	if len(accompanying) > 0 {
		if err := json.Unmarshal(accompanying, &req.Accompanying); err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to unmarshal accompanying persons")
		}
	}
	return req, nil
}

func (r *VisitorRequestRepository) scanRows(rows pgx.Rows) ([]*VisitorRequest, error) {
	requests := make([]*VisitorRequest, 0)
	for rows.Next() {
		req, err := r.scanRequest(rows)
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to scan visitor request")
		}
		requests = append(requests, req)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to read visitor requests")
	}
	return requests, nil
}

func marshalAccompanying(people []AccompanyingPerson) ([]byte, error) {
	if people == nil {
		people = []AccompanyingPerson{}
	}
	data, err := json.Marshal(people)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to marshal accompanying persons")
	}
	return data, nil
}
