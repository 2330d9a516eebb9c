package handler

import (
	"encoding/json"
	stderrors "errors"
	"io"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/pesio-ai/be-visitor-gatepass/internal/auth"
	"github.com/pesio-ai/be-visitor-gatepass/internal/platform/errors"
	"github.com/pesio-ai/be-visitor-gatepass/internal/platform/logger"
	"github.com/pesio-ai/be-visitor-gatepass/internal/platform/response"
	"github.com/pesio-ai/be-visitor-gatepass/internal/repository"
	"github.com/pesio-ai/be-visitor-gatepass/internal/service"
)

// HTTPHandler handles HTTP requests
type HTTPHandler struct {
	requests  *service.VisitorRequestService
	approvals *service.ApprovalService
	templates *service.WorkflowTemplateService
	log       *logger.Logger
}

// NewHTTPHandler creates a new HTTP handler
func NewHTTPHandler(
	requests *service.VisitorRequestService,
	approvals *service.ApprovalService,
	templates *service.WorkflowTemplateService,
	log *logger.Logger,
) *HTTPHandler {
	return &HTTPHandler{
		requests:  requests,
		approvals: approvals,
		templates: templates,
		log:       log,
	}
}

type createVisitorBody struct {
	Name          string                          `json:"name"`
	Phone         *string                         `json:"phone"`
	Email         *string                         `json:"email"`
	VisitorTypeID string                          `json:"visitor_type_id"`
	WarehouseID   string                          `json:"warehouse_id"`
	TimeSlotID    string                          `json:"warehouse_time_slot_id"`
	Date          string                          `json:"date"`
	Accompanying  []repository.AccompanyingPerson `json:"accompanying"`
}

type decisionBody struct {
	StepNo *int   `json:"step_no"`
	Reason string `json:"reason"`
}

type stepBody struct {
	WarehouseID   string `json:"warehouse_id"`
	VisitorTypeID string `json:"visitor_type_id"`
	StepNo        int    `json:"step_no"`
	ApproverID    string `json:"approver_id"`
}

type reconcileBody struct {
	WarehouseID   string `json:"warehouse_id"`
	VisitorTypeID string `json:"visitor_type_id"`
}

func decode(r *http.Request, dst any) error {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return errors.InvalidInput("body", "invalid request body")
	}
	return nil
}

// decodeOptional accepts an empty body.
func decodeOptional(r *http.Request, dst any) error {
	err := json.NewDecoder(r.Body).Decode(dst)
	if err == nil || stderrors.Is(err, io.EOF) {
		return nil
	}
	return errors.InvalidInput("body", "invalid request body")
}

// actorOf returns the actor placed in the context by auth.Authenticate.
func actorOf(r *http.Request) auth.Actor {
	actor, _ := auth.ActorFrom(r.Context())
	return actor
}

// Health reports liveness.
func (h *HTTPHandler) Health(w http.ResponseWriter, r *http.Request) {
	response.JSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

// ── Visitor requests ──────────────────────────────────────────────────────────

// CreateVisitorRequest handles public visitor request submissions
func (h *HTTPHandler) CreateVisitorRequest(w http.ResponseWriter, r *http.Request) {
	var body createVisitorBody
	if err := decode(r, &body); err != nil {
		response.Error(w, err)
		return
	}

	created, err := h.requests.CreateVisitorRequest(r.Context(), &service.CreateVisitorRequest{
		Name:          body.Name,
		Phone:         body.Phone,
		Email:         body.Email,
		VisitorTypeID: body.VisitorTypeID,
		WarehouseID:   body.WarehouseID,
		TimeSlotID:    body.TimeSlotID,
		Date:          body.Date,
		Accompanying:  body.Accompanying,
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	response.JSON(w, http.StatusCreated, created)
}

// GetVisitorRequest handles get visitor request HTTP requests
func (h *HTTPHandler) GetVisitorRequest(w http.ResponseWriter, r *http.Request) {
	detail, err := h.requests.GetVisitorRequest(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		h.fail(w, r, err)
		return
	}
	response.JSON(w, http.StatusOK, detail)
}

// ListVisitorRequests handles list visitor requests HTTP requests
func (h *HTTPHandler) ListVisitorRequests(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	var filter repository.VisitorRequestFilter
	if v := q.Get("warehouse_id"); v != "" {
		filter.WarehouseID = &v
	}
	if v := q.Get("status"); v != "" {
		filter.Status = &v
	}
	if v := q.Get("date"); v != "" {
		filter.VisitDate = &v
	}

	page, _ := strconv.Atoi(q.Get("page"))
	if page < 1 {
		page = 1
	}
	pageSize, _ := strconv.Atoi(q.Get("page_size"))
	if pageSize < 1 || pageSize > 100 {
		pageSize = 50
	}
	filter.Page, filter.PageSize = page, pageSize

	visitors, total, err := h.requests.ListVisitorRequests(r.Context(), filter)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	response.JSON(w, http.StatusOK, map[string]interface{}{
		"visitors": visitors,
		"total":    total,
		"page":     page,
		"pageSize": pageSize,
	})
}

// TrackVisitorRequest handles the public tracking-code lookup
func (h *HTTPHandler) TrackVisitorRequest(w http.ResponseWriter, r *http.Request) {
	view, err := h.requests.TrackVisitorRequest(r.Context(), mux.Vars(r)["code"])
	if err != nil {
		h.fail(w, r, err)
		return
	}
	response.JSON(w, http.StatusOK, view)
}

// GetApprovalHistory handles audit trail HTTP requests
func (h *HTTPHandler) GetApprovalHistory(w http.ResponseWriter, r *http.Request) {
	history, err := h.requests.GetApprovalHistory(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		h.fail(w, r, err)
		return
	}
	response.JSON(w, http.StatusOK, map[string]interface{}{"history": history})
}

// RecordArrival handles visitor check-in at the gate
func (h *HTTPHandler) RecordArrival(w http.ResponseWriter, r *http.Request) {
	req, err := h.requests.RecordArrival(r.Context(), actorOf(r), mux.Vars(r)["id"])
	if err != nil {
		h.fail(w, r, err)
		return
	}
	response.JSON(w, http.StatusOK, req)
}

// RecordCheckout handles visitor check-out at the gate
func (h *HTTPHandler) RecordCheckout(w http.ResponseWriter, r *http.Request) {
	req, err := h.requests.RecordCheckout(r.Context(), actorOf(r), mux.Vars(r)["id"])
	if err != nil {
		h.fail(w, r, err)
		return
	}
	response.JSON(w, http.StatusOK, req)
}

// MarkNoShow handles no-show reports
func (h *HTTPHandler) MarkNoShow(w http.ResponseWriter, r *http.Request) {
	req, err := h.requests.MarkNoShow(r.Context(), actorOf(r), mux.Vars(r)["id"])
	if err != nil {
		h.fail(w, r, err)
		return
	}
	response.JSON(w, http.StatusOK, req)
}

// ── Approvals ─────────────────────────────────────────────────────────────────

// Approve handles approve HTTP requests. The body is optional.
func (h *HTTPHandler) Approve(w http.ResponseWriter, r *http.Request) {
	var body decisionBody
	if err := decodeOptional(r, &body); err != nil {
		response.Error(w, err)
		return
	}

	res, err := h.approvals.Approve(r.Context(), actorOf(r), mux.Vars(r)["id"], body.StepNo)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	response.JSON(w, http.StatusOK, res)
}

// Reject handles reject HTTP requests
func (h *HTTPHandler) Reject(w http.ResponseWriter, r *http.Request) {
	var body decisionBody
	if err := decode(r, &body); err != nil {
		response.Error(w, err)
		return
	}

	res, err := h.approvals.Reject(r.Context(), actorOf(r), mux.Vars(r)["id"], body.StepNo, body.Reason)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	response.JSON(w, http.StatusOK, res)
}

// PendingApprovals handles the approver work queue
func (h *HTTPHandler) PendingApprovals(w http.ResponseWriter, r *http.Request) {
	pending, err := h.approvals.PendingForApprover(r.Context(), actorOf(r))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	response.JSON(w, http.StatusOK, map[string]interface{}{"approvals": pending})
}

// ── Workflow templates ────────────────────────────────────────────────────────

// GetWarehouseWorkflow handles get warehouse workflow HTTP requests
func (h *HTTPHandler) GetWarehouseWorkflow(w http.ResponseWriter, r *http.Request) {
	groups, err := h.templates.GetWarehouseWorkflow(r.Context(), mux.Vars(r)["warehouseId"])
	if err != nil {
		h.fail(w, r, err)
		return
	}
	response.JSON(w, http.StatusOK, map[string]interface{}{"workflow": groups})
}

// AddWorkflowStep handles add workflow step HTTP requests
func (h *HTTPHandler) AddWorkflowStep(w http.ResponseWriter, r *http.Request) {
	var body stepBody
	if err := decode(r, &body); err != nil {
		response.Error(w, err)
		return
	}

	step, err := h.templates.AddStep(r.Context(), actorOf(r), &service.AddStepRequest{
		WarehouseID:   body.WarehouseID,
		VisitorTypeID: body.VisitorTypeID,
		StepNo:        body.StepNo,
		ApproverID:    body.ApproverID,
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	response.JSON(w, http.StatusCreated, step)
}

// UpdateWorkflowStep handles update workflow step HTTP requests
func (h *HTTPHandler) UpdateWorkflowStep(w http.ResponseWriter, r *http.Request) {
	var body stepBody
	if err := decode(r, &body); err != nil {
		response.Error(w, err)
		return
	}

	step, err := h.templates.UpdateStep(r.Context(), &service.UpdateStepRequest{
		ID:         mux.Vars(r)["id"],
		StepNo:     body.StepNo,
		ApproverID: body.ApproverID,
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	response.JSON(w, http.StatusOK, step)
}

// DeleteWorkflowStep handles delete workflow step HTTP requests
func (h *HTTPHandler) DeleteWorkflowStep(w http.ResponseWriter, r *http.Request) {
	if err := h.templates.DeleteStep(r.Context(), actorOf(r), mux.Vars(r)["id"]); err != nil {
		h.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ReconcileWorkflow seeds the current template into unrouted pending requests
func (h *HTTPHandler) ReconcileWorkflow(w http.ResponseWriter, r *http.Request) {
	var body reconcileBody
	if err := decode(r, &body); err != nil {
		response.Error(w, err)
		return
	}

	seeded, err := h.templates.ReconcileLedgerForTemplateChange(r.Context(), actorOf(r), body.WarehouseID, body.VisitorTypeID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	response.JSON(w, http.StatusOK, map[string]interface{}{
		"seeded":              len(seeded),
		"visitor_request_ids": seeded,
	})
}

// fail writes err and logs the ones that are not the caller's fault.
func (h *HTTPHandler) fail(w http.ResponseWriter, r *http.Request, err error) {
	if errors.CodeOf(err) == errors.ErrCodeInternal {
		h.log.Error().Err(err).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Msg("Request failed")
	}
	response.Error(w, err)
}
