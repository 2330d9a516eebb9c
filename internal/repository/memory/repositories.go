package memory

import (
	"context"
	"sort"
	"strings"

	"github.com/google/uuid"

	"github.com/pesio-ai/be-visitor-gatepass/internal/platform/errors"
	"github.com/pesio-ai/be-visitor-gatepass/internal/repository"
	"github.com/pesio-ai/be-visitor-gatepass/internal/workflow"
)

var errMissingReference = errors.InvalidInput("reference", "referenced resource does not exist")

// ── workflow steps ───────────────────────────────────────────────────────────

type stepRepo struct{ v view }

func (r stepRepo) Create(_ context.Context, step *repository.WorkflowStep) error {
	defer r.v.lock()()
	st := r.v.state()

	if err := st.checkStepRefs(step); err != nil {
		return err
	}
	if st.stepTaken(step.WarehouseID, step.VisitorTypeID, step.StepNo, "") {
		return repository.ConstraintError(repository.ConstraintWorkflowStep)
	}

	now, seq := r.v.stamp()
	step.ID = uuid.NewString()
	step.CreatedAt, step.UpdatedAt = now, now
	st.steps[step.ID] = stepRecord{WorkflowStep: *step, seq: seq}
	return nil
}

func (r stepRepo) GetByID(_ context.Context, id string) (*repository.WorkflowStep, error) {
	defer r.v.lock()()
	rec, ok := r.v.state().steps[id]
	if !ok {
		return nil, errors.NotFound("workflow_step", id)
	}
	return r.v.state().joinStep(rec), nil
}

func (r stepRepo) ListForVisitorType(_ context.Context, warehouseID, visitorTypeID string) ([]*repository.WorkflowStep, error) {
	defer r.v.lock()()
	st := r.v.state()

	var out []*repository.WorkflowStep
	for _, rec := range st.steps {
		if rec.WarehouseID == warehouseID && rec.VisitorTypeID == visitorTypeID {
			out = append(out, st.joinStep(rec))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StepNo < out[j].StepNo })
	return out, nil
}

func (r stepRepo) ListByWarehouse(_ context.Context, warehouseID string) ([]*repository.WorkflowStep, error) {
	defer r.v.lock()()
	st := r.v.state()

	var out []*repository.WorkflowStep
	for _, rec := range st.steps {
		if rec.WarehouseID == warehouseID {
			out = append(out, st.joinStep(rec))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].VisitorTypeName != out[j].VisitorTypeName {
			return out[i].VisitorTypeName < out[j].VisitorTypeName
		}
		return out[i].StepNo < out[j].StepNo
	})
	return out, nil
}

func (r stepRepo) FindByStepNo(_ context.Context, warehouseID, visitorTypeID string, stepNo int, excludeID string) (*repository.WorkflowStep, error) {
	defer r.v.lock()()
	st := r.v.state()
	for _, rec := range st.steps {
		if rec.ID != excludeID && rec.WarehouseID == warehouseID &&
			rec.VisitorTypeID == visitorTypeID && rec.StepNo == stepNo {
			return st.joinStep(rec), nil
		}
	}
	return nil, nil
}

func (r stepRepo) Update(_ context.Context, step *repository.WorkflowStep) error {
	defer r.v.lock()()
	st := r.v.state()

	rec, ok := st.steps[step.ID]
	if !ok {
		return errors.NotFound("workflow_step", step.ID)
	}
	if _, ok := st.users[step.ApproverID]; !ok {
		return errMissingReference
	}
	if st.stepTaken(rec.WarehouseID, rec.VisitorTypeID, step.StepNo, rec.ID) {
		return repository.ConstraintError(repository.ConstraintWorkflowStep)
	}

	now, _ := r.v.stamp()
	rec.StepNo = step.StepNo
	rec.ApproverID = step.ApproverID
	rec.UpdatedAt = now
	st.steps[rec.ID] = rec
	step.UpdatedAt = now
	return nil
}

func (r stepRepo) Delete(_ context.Context, id string) error {
	defer r.v.lock()()
	st := r.v.state()
	if _, ok := st.steps[id]; !ok {
		return errors.NotFound("workflow_step", id)
	}
	delete(st.steps, id)
	return nil
}

func (st *state) checkStepRefs(step *repository.WorkflowStep) error {
	if _, ok := st.warehouses[step.WarehouseID]; !ok {
		return errMissingReference
	}
	if _, ok := st.visitorTypes[step.VisitorTypeID]; !ok {
		return errMissingReference
	}
	if _, ok := st.users[step.ApproverID]; !ok {
		return errMissingReference
	}
	return nil
}

func (st *state) stepTaken(warehouseID, visitorTypeID string, stepNo int, excludeID string) bool {
	for _, rec := range st.steps {
		if rec.ID != excludeID && rec.WarehouseID == warehouseID &&
			rec.VisitorTypeID == visitorTypeID && rec.StepNo == stepNo {
			return true
		}
	}
	return false
}

func (st *state) joinStep(rec stepRecord) *repository.WorkflowStep {
	s := rec.WorkflowStep
	s.ApproverName = st.users[s.ApproverID].Name
	s.VisitorTypeName = st.visitorTypes[s.VisitorTypeID].Name
	return &s
}

// ── visitor requests ─────────────────────────────────────────────────────────

type requestRepo struct{ v view }

func (r requestRepo) Create(_ context.Context, req *repository.VisitorRequest) error {
	defer r.v.lock()()
	st := r.v.state()

	if _, ok := st.warehouses[req.WarehouseID]; !ok {
		return errMissingReference
	}
	if _, ok := st.visitorTypes[req.VisitorTypeID]; !ok {
		return errMissingReference
	}
	if _, ok := st.timeSlots[req.TimeSlotID]; !ok {
		return errMissingReference
	}
	if req.Status == "" {
		req.Status = workflow.RequestPending
	}
	if req.VisitStatus == "" {
		req.VisitStatus = workflow.VisitPending
	}

	for _, rec := range st.requests {
		if rec.TrackingCode == req.TrackingCode {
			return repository.ConstraintError(repository.ConstraintTrackingCode)
		}
		if sameSlot(&rec.VisitorRequest, req.WarehouseID, req.VisitDate, req.TimeSlotID) {
			if strings.EqualFold(rec.Name, req.Name) {
				return repository.ConstraintError(repository.ConstraintDuplicateVisit)
			}
			if req.Status == workflow.RequestApproved && rec.Status == workflow.RequestApproved {
				return repository.ConstraintError(repository.ConstraintApprovedSlot)
			}
		}
	}

	now, seq := r.v.stamp()
	req.ID = uuid.NewString()
	req.CreatedAt, req.UpdatedAt = now, now
	if req.Accompanying == nil {
		req.Accompanying = []repository.AccompanyingPerson{}
	}
	rec := requestRecord{VisitorRequest: *req, seq: seq}
	rec.Accompanying = append([]repository.AccompanyingPerson{}, req.Accompanying...)
	st.requests[req.ID] = rec
	return nil
}

func (r requestRepo) GetByID(_ context.Context, id string) (*repository.VisitorRequest, error) {
	defer r.v.lock()()
	rec, ok := r.v.state().requests[id]
	if !ok {
		return nil, errors.NotFound("visitor_request", id)
	}
	return copyRequest(rec), nil
}

// GetByIDForUpdate needs no extra locking: a transaction already holds the
// store mutex.
func (r requestRepo) GetByIDForUpdate(ctx context.Context, id string) (*repository.VisitorRequest, error) {
	return r.GetByID(ctx, id)
}

func (r requestRepo) GetByTrackingCode(_ context.Context, code string) (*repository.VisitorRequest, error) {
	defer r.v.lock()()
	for _, rec := range r.v.state().requests {
		if rec.TrackingCode == code {
			return copyRequest(rec), nil
		}
	}
	return nil, errors.NotFound("visitor_request", code)
}

func (r requestRepo) TrackingCodeExists(_ context.Context, code string) (bool, error) {
	defer r.v.lock()()
	for _, rec := range r.v.state().requests {
		if rec.TrackingCode == code {
			return true, nil
		}
	}
	return false, nil
}

func (r requestRepo) FindApprovedForSlot(_ context.Context, warehouseID, visitDate, timeSlotID, excludeID string) (*repository.VisitorRequest, error) {
	defer r.v.lock()()
	for _, rec := range r.v.state().requests {
		if rec.ID != excludeID && rec.Status == workflow.RequestApproved &&
			sameSlot(&rec.VisitorRequest, warehouseID, visitDate, timeSlotID) {
			return copyRequest(rec), nil
		}
	}
	return nil, nil
}

func (r requestRepo) FindDuplicate(_ context.Context, name, visitDate, warehouseID, timeSlotID string) (*repository.VisitorRequest, error) {
	defer r.v.lock()()
	for _, rec := range r.v.state().requests {
		if strings.EqualFold(rec.Name, name) && sameSlot(&rec.VisitorRequest, warehouseID, visitDate, timeSlotID) {
			return copyRequest(rec), nil
		}
	}
	return nil, nil
}

func (r requestRepo) ListPendingWithoutApprovals(_ context.Context, warehouseID, visitorTypeID string) ([]*repository.VisitorRequest, error) {
	defer r.v.lock()()
	st := r.v.state()

	withRows := make(map[string]bool)
	for _, a := range st.approvals {
		withRows[a.VisitorRequestID] = true
	}

	var recs []requestRecord
	for _, rec := range st.requests {
		if rec.WarehouseID == warehouseID && rec.VisitorTypeID == visitorTypeID &&
			rec.Status == workflow.RequestPending && !withRows[rec.ID] {
			recs = append(recs, rec)
		}
	}
	sort.Slice(recs, func(i, j int) bool { return recs[i].seq < recs[j].seq })
	return copyRequests(recs), nil
}

func (r requestRepo) List(_ context.Context, filter repository.VisitorRequestFilter) ([]*repository.VisitorRequest, int, error) {
	defer r.v.lock()()

	var recs []requestRecord
	for _, rec := range r.v.state().requests {
		if filter.WarehouseID != nil && rec.WarehouseID != *filter.WarehouseID {
			continue
		}
		if filter.Status != nil && string(rec.Status) != *filter.Status {
			continue
		}
		if filter.VisitDate != nil && rec.VisitDate != *filter.VisitDate {
			continue
		}
		recs = append(recs, rec)
	}
	sort.Slice(recs, func(i, j int) bool {
		if recs[i].VisitDate != recs[j].VisitDate {
			return recs[i].VisitDate > recs[j].VisitDate
		}
		return recs[i].seq > recs[j].seq
	})

	total := len(recs)
	start := 0
	if filter.Page > 1 {
		start = (filter.Page - 1) * filter.PageSize
	}
	if start > total {
		start = total
	}
	end := total
	if filter.PageSize > 0 && start+filter.PageSize < total {
		end = start + filter.PageSize
	}
	return copyRequests(recs[start:end]), total, nil
}

func (r requestRepo) ListByIDs(_ context.Context, ids []string) ([]*repository.VisitorRequest, error) {
	defer r.v.lock()()
	st := r.v.state()

	var recs []requestRecord
	for _, id := range ids {
		if rec, ok := st.requests[id]; ok {
			recs = append(recs, rec)
		}
	}
	return copyRequests(recs), nil
}

func (r requestRepo) UpdateStatus(_ context.Context, id string, status workflow.RequestStatus) error {
	defer r.v.lock()()
	st := r.v.state()

	rec, ok := st.requests[id]
	if !ok {
		return errors.NotFound("visitor_request", id)
	}
	if status == workflow.RequestApproved {
		for _, other := range st.requests {
			if other.ID != id && other.Status == workflow.RequestApproved &&
				sameSlot(&other.VisitorRequest, rec.WarehouseID, rec.VisitDate, rec.TimeSlotID) {
				return repository.ConstraintError(repository.ConstraintApprovedSlot)
			}
		}
	}

	now, _ := r.v.stamp()
	rec.Status = status
	rec.UpdatedAt = now
	st.requests[id] = rec
	return nil
}

func (r requestRepo) UpdateVisit(_ context.Context, req *repository.VisitorRequest) error {
	defer r.v.lock()()
	st := r.v.state()

	rec, ok := st.requests[req.ID]
	if !ok {
		return errors.NotFound("visitor_request", req.ID)
	}

	now, _ := r.v.stamp()
	rec.VisitStatus = req.VisitStatus
	rec.ArrivedAt = req.ArrivedAt
	rec.CheckedOutAt = req.CheckedOutAt
	rec.Punctuality = req.Punctuality
	rec.UpdatedAt = now
	st.requests[req.ID] = rec
	req.UpdatedAt = now
	return nil
}

func sameSlot(req *repository.VisitorRequest, warehouseID, visitDate, timeSlotID string) bool {
	return req.WarehouseID == warehouseID && req.VisitDate == visitDate && req.TimeSlotID == timeSlotID
}

func copyRequest(rec requestRecord) *repository.VisitorRequest {
	req := rec.VisitorRequest
	req.Accompanying = append([]repository.AccompanyingPerson{}, rec.Accompanying...)
	return &req
}

func copyRequests(recs []requestRecord) []*repository.VisitorRequest {
	out := make([]*repository.VisitorRequest, 0, len(recs))
	for _, rec := range recs {
		out = append(out, copyRequest(rec))
	}
	return out
}

// ── approvals ────────────────────────────────────────────────────────────────

type approvalRepo struct{ v view }

func (r approvalRepo) CreateBatch(_ context.Context, rows []*repository.Approval) error {
	defer r.v.lock()()
	st := r.v.state()

	for _, a := range rows {
		if _, ok := st.requests[a.VisitorRequestID]; !ok {
			return errMissingReference
		}
		if _, ok := st.users[a.ApproverID]; !ok {
			return errMissingReference
		}
		if a.Status == "" {
			a.Status = workflow.StepPending
		}
		now, seq := r.v.stamp()
		a.ID = uuid.NewString()
		a.CreatedAt, a.UpdatedAt = now, now
		st.approvals[a.ID] = approvalRecord{Approval: *a, seq: seq}
	}
	return nil
}

func (r approvalRepo) ListByRequest(_ context.Context, requestID string) ([]*repository.Approval, error) {
	defer r.v.lock()()
	st := r.v.state()

	var recs []approvalRecord
	for _, rec := range st.approvals {
		if rec.VisitorRequestID == requestID {
			recs = append(recs, rec)
		}
	}
	return st.joinApprovals(sortByStep(recs)), nil
}

func (r approvalRepo) ListByRequests(_ context.Context, requestIDs []string) (map[string][]*repository.Approval, error) {
	defer r.v.lock()()
	st := r.v.state()

	wanted := make(map[string]bool, len(requestIDs))
	for _, id := range requestIDs {
		wanted[id] = true
	}
	grouped := make(map[string][]approvalRecord)
	for _, rec := range st.approvals {
		if wanted[rec.VisitorRequestID] {
			grouped[rec.VisitorRequestID] = append(grouped[rec.VisitorRequestID], rec)
		}
	}

	out := make(map[string][]*repository.Approval, len(grouped))
	for id, recs := range grouped {
		out[id] = st.joinApprovals(sortByStep(recs))
	}
	return out, nil
}

func (r approvalRepo) ListPendingForApprover(_ context.Context, approverID string) ([]*repository.Approval, error) {
	defer r.v.lock()()
	st := r.v.state()

	var recs []approvalRecord
	for _, rec := range st.approvals {
		req, ok := st.requests[rec.VisitorRequestID]
		if ok && rec.ApproverID == approverID && rec.Status == workflow.StepPending &&
			req.Status == workflow.RequestPending {
			recs = append(recs, rec)
		}
	}
	sort.Slice(recs, func(i, j int) bool {
		ri, rj := st.requests[recs[i].VisitorRequestID], st.requests[recs[j].VisitorRequestID]
		if ri.VisitDate != rj.VisitDate {
			return ri.VisitDate < rj.VisitDate
		}
		if ri.seq != rj.seq {
			return ri.seq < rj.seq
		}
		return recs[i].StepNo < recs[j].StepNo
	})
	return st.joinApprovals(recs), nil
}

func (r approvalRepo) UpdateStatus(_ context.Context, id string, status workflow.StepStatus, reason *string) error {
	defer r.v.lock()()
	st := r.v.state()

	rec, ok := st.approvals[id]
	if !ok {
		return errors.NotFound("approval", id)
	}
	now, _ := r.v.stamp()
	rec.Status = status
	if reason != nil {
		v := *reason
		rec.Reason = &v
	} else {
		rec.Reason = nil
	}
	rec.ActedAt = &now
	rec.UpdatedAt = now
	st.approvals[id] = rec
	return nil
}

func (r approvalRepo) DeleteForStep(_ context.Context, warehouseID, visitorTypeID string, stepNo int, approverID string) ([]string, error) {
	defer r.v.lock()()
	st := r.v.state()

	seen := make(map[string]bool)
	var victims []approvalRecord
	for _, rec := range st.approvals {
		req, ok := st.requests[rec.VisitorRequestID]
		if !ok || req.WarehouseID != warehouseID || req.VisitorTypeID != visitorTypeID {
			continue
		}
		if rec.StepNo == stepNo && rec.ApproverID == approverID {
			victims = append(victims, rec)
		}
	}
	sort.Slice(victims, func(i, j int) bool { return victims[i].seq < victims[j].seq })

	var ids []string
	for _, rec := range victims {
		delete(st.approvals, rec.ID)
		if !seen[rec.VisitorRequestID] {
			seen[rec.VisitorRequestID] = true
			ids = append(ids, rec.VisitorRequestID)
		}
	}
	return ids, nil
}

func sortByStep(recs []approvalRecord) []approvalRecord {
	sort.Slice(recs, func(i, j int) bool {
		if recs[i].StepNo != recs[j].StepNo {
			return recs[i].StepNo < recs[j].StepNo
		}
		return recs[i].seq < recs[j].seq
	})
	return recs
}

func (st *state) joinApprovals(recs []approvalRecord) []*repository.Approval {
	out := make([]*repository.Approval, 0, len(recs))
	for _, rec := range recs {
		a := rec.Approval
		a.ApproverName = st.users[a.ApproverID].Name
		out = append(out, &a)
	}
	return out
}

// ── audit log ────────────────────────────────────────────────────────────────

type auditRepo struct{ v view }

func (r auditRepo) Append(_ context.Context, entry *repository.ApprovalAuditEntry) error {
	defer r.v.lock()()
	st := r.v.state()

	if _, ok := st.requests[entry.VisitorRequestID]; !ok {
		return errMissingReference
	}
	now, _ := r.v.stamp()
	entry.ID = uuid.NewString()
	entry.PerformedAt = now
	st.audit = append(st.audit, *entry)
	return nil
}

func (r auditRepo) ListByRequest(_ context.Context, requestID string) ([]*repository.ApprovalAuditEntry, error) {
	defer r.v.lock()()

	var out []*repository.ApprovalAuditEntry
	for _, e := range r.v.state().audit {
		if e.VisitorRequestID == requestID {
			out = append(out, &e)
		}
	}
	return out, nil
}

// ── directory ────────────────────────────────────────────────────────────────

type directoryRepo struct{ v view }

func (r directoryRepo) GetWarehouse(_ context.Context, id string) (*repository.Warehouse, error) {
	defer r.v.lock()()
	w, ok := r.v.state().warehouses[id]
	if !ok {
		return nil, errors.NotFound("warehouse", id)
	}
	return &w, nil
}

func (r directoryRepo) GetTimeSlot(_ context.Context, id string) (*repository.TimeSlot, error) {
	defer r.v.lock()()
	s, ok := r.v.state().timeSlots[id]
	if !ok {
		return nil, errors.NotFound("time_slot", id)
	}
	return &s, nil
}

func (r directoryRepo) GetVisitorType(_ context.Context, id string) (*repository.VisitorType, error) {
	defer r.v.lock()()
	vt, ok := r.v.state().visitorTypes[id]
	if !ok {
		return nil, errors.NotFound("visitor_type", id)
	}
	return &vt, nil
}

func (r directoryRepo) GetUser(_ context.Context, id string) (*repository.User, error) {
	defer r.v.lock()()
	u, ok := r.v.state().users[id]
	if !ok {
		return nil, errors.NotFound("user", id)
	}
	return &u, nil
}
