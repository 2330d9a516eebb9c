package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/pesio-ai/be-visitor-gatepass/internal/auth"
	"github.com/pesio-ai/be-visitor-gatepass/internal/notify"
	"github.com/pesio-ai/be-visitor-gatepass/internal/platform/logger"
	"github.com/pesio-ai/be-visitor-gatepass/internal/platform/metrics"
	"github.com/pesio-ai/be-visitor-gatepass/internal/repository"
	"github.com/pesio-ai/be-visitor-gatepass/internal/repository/memory"
)

const (
	warehouseID      = "11111111-1111-1111-1111-111111111111"
	otherWarehouseID = "11111111-1111-1111-1111-222222222222"
	morningSlot      = "22222222-2222-2222-2222-111111111111"
	eveningSlot      = "22222222-2222-2222-2222-222222222222"
	foreignSlot      = "22222222-2222-2222-2222-333333333333"
	auditorType      = "33333333-3333-3333-3333-111111111111"
	guestType        = "33333333-3333-3333-3333-222222222222"
	contractorType   = "33333333-3333-3333-3333-333333333333"
	floorManager     = "44444444-4444-4444-4444-111111111111"
	ceo              = "44444444-4444-4444-4444-222222222222"
	security         = "44444444-4444-4444-4444-333333333333"
	admin            = "44444444-4444-4444-4444-444444444444"
	receptionist     = "44444444-4444-4444-4444-555555555555"

	today    = "2026-10-20"
	tomorrow = "2026-10-21"
)

var clock = time.Date(2026, 10, 20, 8, 50, 0, 0, time.UTC)

type recordingNotifier struct {
	mu       sync.Mutex
	approved []notify.ApprovedNotice
	rejected []notify.RejectedNotice
	err      error
}

func (n *recordingNotifier) NotifyApproved(_ context.Context, notice notify.ApprovedNotice) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.approved = append(n.approved, notice)
	return n.err
}

func (n *recordingNotifier) NotifyRejected(_ context.Context, notice notify.RejectedNotice) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.rejected = append(n.rejected, notice)
	return n.err
}

type fixture struct {
	store     *memory.Store
	notifier  *recordingNotifier
	requests  *VisitorRequestService
	approvals *ApprovalService
	templates *WorkflowTemplateService
	now       time.Time
}

func newFixture(t *testing.T, opts ...func(*Config)) *fixture {
	t.Helper()

	f := &fixture{notifier: &recordingNotifier{}, now: clock}
	f.store = memory.New(memory.WithClock(func() time.Time { return f.now }))

	f.store.AddWarehouse(repository.Warehouse{ID: warehouseID, Name: "Central DC"})
	f.store.AddWarehouse(repository.Warehouse{ID: otherWarehouseID, Name: "North DC"})
	f.store.AddTimeSlot(repository.TimeSlot{ID: morningSlot, WarehouseID: warehouseID, Name: "Morning", From: "09:00", To: "11:00"})
	f.store.AddTimeSlot(repository.TimeSlot{ID: eveningSlot, WarehouseID: warehouseID, Name: "Evening", From: "17:00", To: "19:00"})
	f.store.AddTimeSlot(repository.TimeSlot{ID: foreignSlot, WarehouseID: otherWarehouseID, Name: "Morning", From: "09:00", To: "11:00"})
	f.store.AddVisitorType(repository.VisitorType{ID: auditorType, Name: "Auditor"})
	f.store.AddVisitorType(repository.VisitorType{ID: guestType, Name: "External Guest"})
	f.store.AddVisitorType(repository.VisitorType{ID: contractorType, Name: "Contractor"})
	f.store.AddUser(repository.User{ID: floorManager, Name: "Farah", Role: auth.RoleApprover, IsActive: true})
	f.store.AddUser(repository.User{ID: ceo, Name: "Chen", Role: auth.RoleApprover, IsActive: true})
	f.store.AddUser(repository.User{ID: security, Name: "Sam", Role: auth.RoleApprover, IsActive: true})
	f.store.AddUser(repository.User{ID: admin, Name: "Ada", Role: auth.RoleAdmin, IsActive: true})
	f.store.AddUser(repository.User{ID: receptionist, Name: "Rae", Role: auth.RoleReceptionist, IsActive: true})

	cfg := Config{
		ArrivalGrace: 10 * time.Minute,
		Location:     time.UTC,
		Now:          func() time.Time { return f.now },
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	log := logger.Nop()
	rec := metrics.NewNoop()
	f.requests = NewVisitorRequestService(f.store, rec, cfg, log)
	f.approvals = NewApprovalService(f.store, f.notifier, rec, cfg, log)
	f.templates = NewWorkflowTemplateService(f.store, f.notifier, rec, cfg, log)
	return f
}

func actor(id, role string) auth.Actor {
	return auth.Actor{UserID: id, Role: role}
}

func approver(id string) auth.Actor { return actor(id, auth.RoleApprover) }

func (f *fixture) addStep(t *testing.T, visitorType string, stepNo int, approverID string) *repository.WorkflowStep {
	t.Helper()
	step, err := f.templates.AddStep(context.Background(), actor(admin, auth.RoleAdmin), &AddStepRequest{
		WarehouseID:   warehouseID,
		VisitorTypeID: visitorType,
		StepNo:        stepNo,
		ApproverID:    approverID,
	})
	require.NoError(t, err)
	return step
}

func (f *fixture) submit(t *testing.T, name, visitorType, slot, date string) *VisitorRequestDetail {
	t.Helper()
	detail, err := f.requests.CreateVisitorRequest(context.Background(), submission(name, visitorType, slot, date))
	require.NoError(t, err)
	return detail
}

func submission(name, visitorType, slot, date string) *CreateVisitorRequest {
	email := "visitor@example.com"
	return &CreateVisitorRequest{
		Name:          name,
		Email:         &email,
		VisitorTypeID: visitorType,
		WarehouseID:   warehouseID,
		TimeSlotID:    slot,
		Date:          date,
	}
}

func (f *fixture) request(t *testing.T, id string) *VisitorRequestDetail {
	t.Helper()
	detail, err := f.requests.GetVisitorRequest(context.Background(), id)
	require.NoError(t, err)
	return detail
}

func (f *fixture) notifications() (int, int) {
	f.notifier.mu.Lock()
	defer f.notifier.mu.Unlock()
	return len(f.notifier.approved), len(f.notifier.rejected)
}

func intPtr(v int) *int { return &v }
