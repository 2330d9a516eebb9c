package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pesio-ai/be-visitor-gatepass/internal/auth"
	"github.com/pesio-ai/be-visitor-gatepass/internal/notify"
	"github.com/pesio-ai/be-visitor-gatepass/internal/platform/logger"
	"github.com/pesio-ai/be-visitor-gatepass/internal/platform/metrics"
	"github.com/pesio-ai/be-visitor-gatepass/internal/platform/response"
	"github.com/pesio-ai/be-visitor-gatepass/internal/repository"
	"github.com/pesio-ai/be-visitor-gatepass/internal/repository/memory"
	"github.com/pesio-ai/be-visitor-gatepass/internal/service"
)

const (
	warehouseID = "11111111-1111-1111-1111-111111111111"
	slotID      = "22222222-2222-2222-2222-222222222222"
	guestType   = "33333333-3333-3333-3333-333333333333"
	managerID   = "44444444-4444-4444-4444-444444444444"
	adminID     = "55555555-5555-5555-5555-555555555555"
	deskID      = "66666666-6666-6666-6666-666666666666"
	visitDate   = "2026-10-21"
)

type testServer struct {
	handler  http.Handler
	verifier *auth.Verifier
	store    *memory.Store
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()

	store := memory.New()
	store.AddWarehouse(repository.Warehouse{ID: warehouseID, Name: "Central DC"})
	store.AddTimeSlot(repository.TimeSlot{ID: slotID, WarehouseID: warehouseID, Name: "Morning", From: "09:00", To: "11:00"})
	store.AddVisitorType(repository.VisitorType{ID: guestType, Name: "External Guest"})
	store.AddUser(repository.User{ID: managerID, Name: "Farah", Role: auth.RoleApprover, IsActive: true})
	store.AddUser(repository.User{ID: adminID, Name: "Ada", Role: auth.RoleAdmin, IsActive: true})
	store.AddUser(repository.User{ID: deskID, Name: "Rae", Role: auth.RoleReceptionist, IsActive: true})

	log := logger.Nop()
	rec := metrics.NewNoop()
	cfg := service.Config{
		Location: time.UTC,
		Now:      func() time.Time { return time.Date(2026, 10, 20, 8, 0, 0, 0, time.UTC) },
	}
	notifier := notify.NewLogNotifier(log)

	h := NewHTTPHandler(
		service.NewVisitorRequestService(store, rec, cfg, log),
		service.NewApprovalService(store, notifier, rec, cfg, log),
		service.NewWorkflowTemplateService(store, notifier, rec, cfg, log),
		log,
	)
	verifier := auth.NewVerifier("test-secret", "")
	return &testServer{
		handler: NewRouter(h, RouterConfig{
			Verifier:       verifier,
			Metrics:        rec,
			Log:            log,
			CORSOrigins:    []string{"*"},
			RequestTimeout: 5 * time.Second,
		}),
		verifier: verifier,
		store:    store,
	}
}

func (s *testServer) token(t *testing.T, userID, role string) string {
	t.Helper()
	token, err := s.verifier.Issue(auth.Actor{UserID: userID, Role: role}, time.Hour)
	require.NoError(t, err)
	return token
}

func (s *testServer) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)
	return rec
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v))
	return v
}

func (s *testServer) addStep(t *testing.T) {
	t.Helper()
	rec := s.do(t, http.MethodPost, "/api/v1/warehouse-workflow", s.token(t, adminID, auth.RoleAdmin), map[string]any{
		"warehouse_id": warehouseID, "visitor_type_id": guestType, "step_no": 1, "approver_id": managerID,
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
}

func (s *testServer) createVisitor(t *testing.T, name string) map[string]any {
	t.Helper()
	rec := s.do(t, http.MethodPost, "/api/v1/visitors", "", map[string]any{
		"name":                   name,
		"email":                  "guest@example.com",
		"visitor_type_id":        guestType,
		"warehouse_id":           warehouseID,
		"warehouse_time_slot_id": slotID,
		"date":                   visitDate,
		"accompanying":           []map[string]any{{"name": "Plus One"}},
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	return decodeBody[map[string]any](t, rec)
}

func TestHealth(t *testing.T) {
	s := newTestServer(t)
	rec := s.do(t, http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))
}

func TestPublicSubmissionAndTracking(t *testing.T) {
	s := newTestServer(t)
	s.addStep(t)

	created := s.createVisitor(t, "Gus")
	assert.Equal(t, "pending", created["status"])
	assert.Len(t, created["approvals"], 1)
	code, _ := created["tracking_code"].(string)
	require.Len(t, code, 8)

	rec := s.do(t, http.MethodGet, "/api/v1/track/"+code, "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	view := decodeBody[service.TrackingView](t, rec)
	assert.Equal(t, "Central DC", view.WarehouseName)
	require.Len(t, view.Approvals, 1)
	assert.Equal(t, "Farah", view.Approvals[0].ApproverName)
}

func TestApproveFlowOverHTTP(t *testing.T) {
	s := newTestServer(t)
	s.addStep(t)
	created := s.createVisitor(t, "Gus")
	id := created["id"].(string)
	manager := s.token(t, managerID, auth.RoleApprover)

	rec := s.do(t, http.MethodGet, "/api/v1/approvals/pending", manager, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	queue := decodeBody[map[string][]map[string]any](t, rec)
	assert.Len(t, queue["approvals"], 1)

	rec = s.do(t, http.MethodPost, "/api/v1/visitors/"+id+"/approve", manager, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	result := decodeBody[service.DecisionResult](t, rec)
	assert.Equal(t, "approved", string(result.Request.Status))

	rec = s.do(t, http.MethodPost, "/api/v1/visitors/"+id+"/reject", manager, map[string]any{"reason": "late"})
	assert.Equal(t, http.StatusConflict, rec.Code)
	body := decodeBody[response.ErrorBody](t, rec)
	assert.Equal(t, "CONFLICT", string(body.Code))

	rec = s.do(t, http.MethodGet, "/api/v1/visitors/"+id+"/history", s.token(t, deskID, auth.RoleReceptionist), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	history := decodeBody[map[string][]map[string]any](t, rec)
	assert.Len(t, history["history"], 2)
}

func TestStatusMapping(t *testing.T) {
	s := newTestServer(t)
	admin := s.token(t, adminID, auth.RoleAdmin)
	desk := s.token(t, deskID, auth.RoleReceptionist)

	tests := []struct {
		name   string
		method string
		path   string
		token  string
		body   any
		want   int
	}{
		{"invalid body", http.MethodPost, "/api/v1/visitors", "", "not an object", http.StatusBadRequest},
		{"validation error", http.MethodPost, "/api/v1/visitors", "", map[string]any{"name": ""}, http.StatusBadRequest},
		{"unknown request", http.MethodGet, "/api/v1/visitors/99999999-9999-9999-9999-999999999999", admin, nil, http.StatusNotFound},
		{"malformed id", http.MethodGet, "/api/v1/visitors/abc", admin, nil, http.StatusBadRequest},
		{"unknown tracking code", http.MethodGet, "/api/v1/track/ZZZZZZZZ", "", nil, http.StatusNotFound},
		{"missing token", http.MethodGet, "/api/v1/visitors", "", nil, http.StatusUnauthorized},
		{"garbage token", http.MethodGet, "/api/v1/visitors", "garbage", nil, http.StatusUnauthorized},
		{"wrong role", http.MethodPost, "/api/v1/warehouse-workflow", desk, map[string]any{}, http.StatusForbidden},
		{"receptionist cannot approve", http.MethodPost, "/api/v1/visitors/99999999-9999-9999-9999-999999999999/approve", desk, nil, http.StatusForbidden},
		{"duplicate step", http.MethodPost, "/api/v1/warehouse-workflow", admin, map[string]any{
			"warehouse_id": warehouseID, "visitor_type_id": guestType, "step_no": 1, "approver_id": managerID,
		}, http.StatusConflict},
	}

	s.addStep(t)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := s.do(t, tt.method, tt.path, tt.token, tt.body)
			assert.Equal(t, tt.want, rec.Code, rec.Body.String())
		})
	}
}

func TestListVisitorsPagination(t *testing.T) {
	s := newTestServer(t)
	for _, name := range []string{"A", "B", "C"} {
		s.createVisitor(t, name)
	}

	rec := s.do(t, http.MethodGet, "/api/v1/visitors?page=2&page_size=2", s.token(t, adminID, auth.RoleAdmin), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody[map[string]any](t, rec)
	assert.EqualValues(t, 3, body["total"])
	assert.EqualValues(t, 2, body["page"])
	assert.EqualValues(t, 2, body["pageSize"])
	assert.Len(t, body["visitors"], 1)

	rec = s.do(t, http.MethodGet, "/api/v1/visitors?page_size=1000", s.token(t, adminID, auth.RoleAdmin), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body = decodeBody[map[string]any](t, rec)
	assert.EqualValues(t, 50, body["pageSize"])
}

func TestWorkflowAdminRoutes(t *testing.T) {
	ctx := context.Background()
	s := newTestServer(t)
	admin := s.token(t, adminID, auth.RoleAdmin)

	// A request submitted before any workflow exists is seeded when the
	// first step is added.
	created := s.createVisitor(t, "Early Bird")
	s.addStep(t)
	ledger, err := s.store.Approvals().ListByRequest(ctx, created["id"].(string))
	require.NoError(t, err)
	assert.Len(t, ledger, 1)

	rec := s.do(t, http.MethodGet, "/api/v1/warehouse-workflow/"+warehouseID, admin, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	groups := decodeBody[map[string][]service.VisitorTypeWorkflow](t, rec)["workflow"]
	require.Len(t, groups, 1)
	require.Len(t, groups[0].Steps, 1)
	stepID := groups[0].Steps[0].ID

	rec = s.do(t, http.MethodPut, "/api/v1/warehouse-workflow/"+stepID, admin, map[string]any{"step_no": 3, "approver_id": managerID})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = s.do(t, http.MethodPost, "/api/v1/warehouse-workflow/reconcile", admin, map[string]any{
		"warehouse_id": warehouseID, "visitor_type_id": guestType,
	})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.EqualValues(t, 0, decodeBody[map[string]any](t, rec)["seeded"])

	rec = s.do(t, http.MethodDelete, "/api/v1/warehouse-workflow/"+stepID, admin, nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = s.do(t, http.MethodDelete, "/api/v1/warehouse-workflow/"+stepID, admin, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCORSPreflight(t *testing.T) {
	s := newTestServer(t)
	req := httptest.NewRequest(http.MethodOptions, "/api/v1/visitors", nil)
	req.Header.Set("Origin", "https://gate.example")
	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
}
