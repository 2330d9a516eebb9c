package handler

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/pesio-ai/be-visitor-gatepass/internal/auth"
	"github.com/pesio-ai/be-visitor-gatepass/internal/platform/logger"
	"github.com/pesio-ai/be-visitor-gatepass/internal/platform/metrics"
	"github.com/pesio-ai/be-visitor-gatepass/internal/platform/middleware"
)

// RouterConfig carries the cross-cutting HTTP settings.
type RouterConfig struct {
	Verifier       *auth.Verifier
	Metrics        *metrics.Recorder
	Log            *logger.Logger
	CORSOrigins    []string
	RequestTimeout time.Duration
}

// NewRouter wires every route of the API onto a gorilla/mux router wrapped in
// the middleware chain.
func NewRouter(h *HTTPHandler, cfg RouterConfig) http.Handler {
	r := mux.NewRouter()
	r.Use(
		mux.MiddlewareFunc(middleware.Recovery(cfg.Log)),
		mux.MiddlewareFunc(middleware.Metrics(cfg.Metrics)),
		mux.MiddlewareFunc(middleware.Timeout(cfg.RequestTimeout)),
	)

	// Health check
	r.HandleFunc("/health", h.Health).Methods(http.MethodGet)

	api := r.PathPrefix("/api/v1").Subrouter()

	// Public routes
	api.HandleFunc("/visitors", h.CreateVisitorRequest).Methods(http.MethodPost)
	api.HandleFunc("/track/{code}", h.TrackVisitorRequest).Methods(http.MethodGet)

	authenticated := auth.Authenticate(cfg.Verifier)
	guard := func(hf http.HandlerFunc, roles ...string) http.Handler {
		return authenticated(auth.RequireRole(roles...)(hf))
	}
	staff := []string{auth.RoleAdmin, auth.RoleReceptionist, auth.RoleApprover}
	deciders := []string{auth.RoleAdmin, auth.RoleApprover}
	gate := []string{auth.RoleAdmin, auth.RoleReceptionist}

	// Visitor requests
	api.Handle("/visitors", guard(h.ListVisitorRequests, staff...)).Methods(http.MethodGet)
	api.Handle("/visitors/{id}", guard(h.GetVisitorRequest, staff...)).Methods(http.MethodGet)
	api.Handle("/visitors/{id}/history", guard(h.GetApprovalHistory, staff...)).Methods(http.MethodGet)
	api.Handle("/visitors/{id}/approve", guard(h.Approve, deciders...)).Methods(http.MethodPost)
	api.Handle("/visitors/{id}/reject", guard(h.Reject, deciders...)).Methods(http.MethodPost)
	api.Handle("/visitors/{id}/arrival", guard(h.RecordArrival, gate...)).Methods(http.MethodPost)
	api.Handle("/visitors/{id}/checkout", guard(h.RecordCheckout, gate...)).Methods(http.MethodPost)
	api.Handle("/visitors/{id}/no-show", guard(h.MarkNoShow, gate...)).Methods(http.MethodPost)

	// Approver queue
	api.Handle("/approvals/pending", guard(h.PendingApprovals, deciders...)).Methods(http.MethodGet)

	// Workflow templates
	api.Handle("/warehouse-workflow", guard(h.AddWorkflowStep, auth.RoleAdmin)).Methods(http.MethodPost)
	api.Handle("/warehouse-workflow/reconcile", guard(h.ReconcileWorkflow, auth.RoleAdmin)).Methods(http.MethodPost)
	api.Handle("/warehouse-workflow/{warehouseId}", guard(h.GetWarehouseWorkflow, auth.RoleAdmin)).Methods(http.MethodGet)
	api.Handle("/warehouse-workflow/{id}", guard(h.UpdateWorkflowStep, auth.RoleAdmin)).Methods(http.MethodPut)
	api.Handle("/warehouse-workflow/{id}", guard(h.DeleteWorkflowStep, auth.RoleAdmin)).Methods(http.MethodDelete)

	// CORS and request ids sit outside the router so preflights and
	// unmatched routes get them too.
	var handler http.Handler = r
	handler = middleware.CORS(cfg.CORSOrigins)(handler)
	handler = middleware.Logger(cfg.Log)(handler)
	handler = middleware.RequestID(handler)
	return handler
}
