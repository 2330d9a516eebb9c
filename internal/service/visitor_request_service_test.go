package service

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pesio-ai/be-visitor-gatepass/internal/auth"
	"github.com/pesio-ai/be-visitor-gatepass/internal/platform/errors"
	"github.com/pesio-ai/be-visitor-gatepass/internal/repository"
	"github.com/pesio-ai/be-visitor-gatepass/internal/workflow"
)

func TestGenerateTrackingCodeFormat(t *testing.T) {
	pattern := regexp.MustCompile(`^[A-Z0-9]{8}$`)
	seen := make(map[string]bool)
	for i := 0; i < 200; i++ {
		code, err := generateTrackingCode()
		require.NoError(t, err)
		assert.Regexp(t, pattern, code)
		seen[code] = true
	}
	assert.Greater(t, len(seen), 190)
}

func TestCreateWithoutWorkflowStaysPending(t *testing.T) {
	f := newFixture(t)
	created := f.submit(t, "Connie", contractorType, morningSlot, tomorrow)

	assert.Empty(t, created.Approvals)
	assert.Equal(t, workflow.RequestPending, created.Status)
	assert.Equal(t, workflow.VisitPending, created.VisitStatus)
	assert.Regexp(t, `^[A-Z0-9]{8}$`, created.TrackingCode)
}

func TestCreateOnApprovedSlotSkipsTrackingCode(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.addStep(t, auditorType, 1, floorManager)
	holder := f.submit(t, "Holder", auditorType, morningSlot, tomorrow)
	_, err := f.approvals.Approve(ctx, approver(floorManager), holder.ID, nil)
	require.NoError(t, err)

	calls := 0
	f.requests.codes = func() (string, error) {
		calls++
		return "ZZZZ9999", nil
	}

	_, err = f.requests.CreateVisitorRequest(ctx, submission("Latecomer", auditorType, morningSlot, tomorrow))
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrCodeConflict))
	assert.Zero(t, calls)

	_, total, err := f.requests.ListVisitorRequests(ctx, repository.VisitorRequestFilter{})
	require.NoError(t, err)
	assert.Equal(t, 1, total)
}

func TestCreateRejectsDuplicateVisitor(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.submit(t, "Dana Diaz", guestType, morningSlot, tomorrow)

	_, err := f.requests.CreateVisitorRequest(ctx, submission("dana diaz", auditorType, morningSlot, tomorrow))
	assert.True(t, errors.Is(err, errors.ErrCodeConflict))

	// A different slot is fine.
	f.submit(t, "Dana Diaz", guestType, eveningSlot, tomorrow)
}

func TestCreateRetriesTrackingCodeCollisions(t *testing.T) {
	f := newFixture(t)
	first := f.submit(t, "First", contractorType, morningSlot, tomorrow)

	codes := []string{first.TrackingCode, first.TrackingCode, "NEWCODE1"}
	f.requests.codes = func() (string, error) {
		c := codes[0]
		codes = codes[1:]
		return c, nil
	}
	second := f.submit(t, "Second", contractorType, eveningSlot, tomorrow)
	assert.Equal(t, "NEWCODE1", second.TrackingCode)
}

func TestCreateValidation(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	tests := []struct {
		name   string
		mutate func(*CreateVisitorRequest)
		code   errors.ErrorCode
		field  string
	}{
		{"missing name", func(r *CreateVisitorRequest) { r.Name = " " }, errors.ErrCodeInvalidInput, "name"},
		{"bad warehouse id", func(r *CreateVisitorRequest) { r.WarehouseID = "wh-1" }, errors.ErrCodeInvalidInput, "warehouse_id"},
		{"bad email", func(r *CreateVisitorRequest) { e := "not-an-email"; r.Email = &e }, errors.ErrCodeInvalidInput, "email"},
		{"bad phone", func(r *CreateVisitorRequest) { p := "call me"; r.Phone = &p }, errors.ErrCodeInvalidInput, "phone"},
		{"bad date", func(r *CreateVisitorRequest) { r.Date = "20/10/2026" }, errors.ErrCodeInvalidInput, "date"},
		{"past date", func(r *CreateVisitorRequest) { r.Date = "2026-10-19" }, errors.ErrCodeInvalidInput, "date"},
		{"slot of another warehouse", func(r *CreateVisitorRequest) { r.TimeSlotID = foreignSlot }, errors.ErrCodeInvalidInput, "warehouse_time_slot_id"},
		{"unknown visitor type", func(r *CreateVisitorRequest) { r.VisitorTypeID = "33333333-3333-3333-3333-999999999999" }, errors.ErrCodeNotFound, ""},
		{"unnamed companion", func(r *CreateVisitorRequest) {
			r.Accompanying = []repository.AccompanyingPerson{{Name: ""}}
		}, errors.ErrCodeInvalidInput, "accompanying[0].name"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := submission("Valerie", guestType, morningSlot, tomorrow)
			tt.mutate(in)
			_, err := f.requests.CreateVisitorRequest(ctx, in)
			require.Error(t, err)
			assert.Equal(t, tt.code, errors.CodeOf(err))
			if tt.field != "" {
				var appErr *errors.AppError
				require.True(t, errors.As(err, &appErr))
				assert.Equal(t, tt.field, appErr.Field)
			}
		})
	}

	// Today is allowed.
	f.submit(t, "Same Day", guestType, morningSlot, today)
}

func TestTrackVisitorRequest(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.addStep(t, guestType, 1, floorManager)
	f.addStep(t, guestType, 2, ceo)
	created := f.submit(t, "Gus", guestType, morningSlot, tomorrow)
	_, err := f.approvals.Approve(ctx, approver(floorManager), created.ID, nil)
	require.NoError(t, err)

	view, err := f.requests.TrackVisitorRequest(ctx, " "+created.TrackingCode+" ")
	require.NoError(t, err)
	assert.Equal(t, workflow.RequestPending, view.Status)
	assert.Equal(t, "Central DC", view.WarehouseName)
	assert.Equal(t, "Morning", view.TimeSlotName)
	require.Len(t, view.Approvals, 2)
	assert.Equal(t, "Farah", view.Approvals[0].ApproverName)
	assert.Equal(t, workflow.StepApproved, view.Approvals[0].Status)
	assert.Equal(t, "Chen", view.Approvals[1].ApproverName)

	_, err = f.requests.TrackVisitorRequest(ctx, "NOPE0000")
	assert.True(t, errors.Is(err, errors.ErrCodeNotFound))
	_, err = f.requests.TrackVisitorRequest(ctx, "short")
	assert.True(t, errors.Is(err, errors.ErrCodeInvalidInput))
}

func TestListVisitorRequestsFilters(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.addStep(t, auditorType, 1, floorManager)
	a := f.submit(t, "A", auditorType, morningSlot, tomorrow)
	f.submit(t, "B", auditorType, eveningSlot, tomorrow)
	f.submit(t, "C", auditorType, morningSlot, today)
	_, err := f.approvals.Approve(ctx, approver(floorManager), a.ID, nil)
	require.NoError(t, err)

	approved := string(workflow.RequestApproved)
	list, total, err := f.requests.ListVisitorRequests(ctx, repository.VisitorRequestFilter{Status: &approved})
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	assert.Equal(t, a.ID, list[0].ID)

	date := today
	_, total, err = f.requests.ListVisitorRequests(ctx, repository.VisitorRequestFilter{VisitDate: &date})
	require.NoError(t, err)
	assert.Equal(t, 1, total)

	list, total, err = f.requests.ListVisitorRequests(ctx, repository.VisitorRequestFilter{Page: 2, PageSize: 2})
	require.NoError(t, err)
	assert.Equal(t, 3, total)
	assert.Len(t, list, 1)

	bogus := "archived"
	_, _, err = f.requests.ListVisitorRequests(ctx, repository.VisitorRequestFilter{Status: &bogus})
	assert.True(t, errors.Is(err, errors.ErrCodeInvalidInput))
}

func approvedToday(t *testing.T, f *fixture, slot string) *VisitorRequestDetail {
	t.Helper()
	f.addStep(t, auditorType, 1, floorManager)
	created := f.submit(t, "Ines", auditorType, slot, today)
	_, err := f.approvals.Approve(context.Background(), approver(floorManager), created.ID, nil)
	require.NoError(t, err)
	return created
}

func TestRecordArrivalPunctuality(t *testing.T) {
	tests := []struct {
		name string
		at   time.Time
		want workflow.Punctuality
	}{
		{"early", time.Date(2026, 10, 20, 8, 45, 0, 0, time.UTC), workflow.PunctualityEarly},
		{"on time within grace", time.Date(2026, 10, 20, 9, 10, 0, 0, time.UTC), workflow.PunctualityOnTime},
		{"late", time.Date(2026, 10, 20, 9, 11, 0, 0, time.UTC), workflow.PunctualityLate},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			created := approvedToday(t, f, morningSlot)
			f.now = tt.at

			req, err := f.requests.RecordArrival(context.Background(), actor(receptionist, auth.RoleReceptionist), created.ID)
			require.NoError(t, err)
			assert.Equal(t, workflow.VisitVisited, req.VisitStatus)
			require.NotNil(t, req.Punctuality)
			assert.Equal(t, tt.want, *req.Punctuality)
			require.NotNil(t, req.ArrivedAt)
			assert.True(t, tt.at.Equal(*req.ArrivedAt))
		})
	}
}

func TestRecordArrivalPreconditions(t *testing.T) {
	ctx := context.Background()
	desk := actor(receptionist, auth.RoleReceptionist)

	t.Run("pending request", func(t *testing.T) {
		f := newFixture(t)
		f.addStep(t, auditorType, 1, floorManager)
		created := f.submit(t, "Ines", auditorType, morningSlot, today)
		_, err := f.requests.RecordArrival(ctx, desk, created.ID)
		assert.True(t, errors.Is(err, errors.ErrCodeConflict))
	})

	t.Run("not the visit date", func(t *testing.T) {
		f := newFixture(t)
		f.addStep(t, auditorType, 1, floorManager)
		created := f.submit(t, "Ines", auditorType, morningSlot, tomorrow)
		_, err := f.approvals.Approve(ctx, approver(floorManager), created.ID, nil)
		require.NoError(t, err)
		_, err = f.requests.RecordArrival(ctx, desk, created.ID)
		assert.True(t, errors.Is(err, errors.ErrCodeConflict))
	})

	t.Run("already arrived", func(t *testing.T) {
		f := newFixture(t)
		created := approvedToday(t, f, morningSlot)
		_, err := f.requests.RecordArrival(ctx, desk, created.ID)
		require.NoError(t, err)
		_, err = f.requests.RecordArrival(ctx, desk, created.ID)
		assert.True(t, errors.Is(err, errors.ErrCodeConflict))
	})
}

func TestRecordCheckout(t *testing.T) {
	ctx := context.Background()
	desk := actor(receptionist, auth.RoleReceptionist)
	f := newFixture(t)
	created := approvedToday(t, f, morningSlot)

	_, err := f.requests.RecordCheckout(ctx, desk, created.ID)
	assert.True(t, errors.Is(err, errors.ErrCodeConflict))

	_, err = f.requests.RecordArrival(ctx, desk, created.ID)
	require.NoError(t, err)
	f.now = f.now.Add(2 * time.Hour)
	req, err := f.requests.RecordCheckout(ctx, desk, created.ID)
	require.NoError(t, err)
	require.NotNil(t, req.CheckedOutAt)
	assert.True(t, f.now.Equal(*req.CheckedOutAt))

	_, err = f.requests.RecordCheckout(ctx, desk, created.ID)
	assert.True(t, errors.Is(err, errors.ErrCodeConflict))

	history, err := f.requests.GetApprovalHistory(ctx, created.ID)
	require.NoError(t, err)
	actions := make([]string, 0, len(history))
	for _, e := range history {
		actions = append(actions, e.Action)
	}
	assert.Equal(t, []string{"submitted", "approved", "arrived", "checked_out"}, actions)
}

func TestMarkNoShow(t *testing.T) {
	ctx := context.Background()
	desk := actor(receptionist, auth.RoleReceptionist)

	t.Run("future visit", func(t *testing.T) {
		f := newFixture(t)
		f.addStep(t, auditorType, 1, floorManager)
		created := f.submit(t, "Ines", auditorType, morningSlot, tomorrow)
		_, err := f.approvals.Approve(ctx, approver(floorManager), created.ID, nil)
		require.NoError(t, err)
		_, err = f.requests.MarkNoShow(ctx, desk, created.ID)
		assert.True(t, errors.Is(err, errors.ErrCodeConflict))
	})

	t.Run("visit day passed", func(t *testing.T) {
		f := newFixture(t)
		created := approvedToday(t, f, morningSlot)
		f.now = f.now.Add(24 * time.Hour)
		req, err := f.requests.MarkNoShow(ctx, desk, created.ID)
		require.NoError(t, err)
		assert.Equal(t, workflow.VisitNoShow, req.VisitStatus)

		_, err = f.requests.RecordArrival(ctx, desk, created.ID)
		assert.True(t, errors.Is(err, errors.ErrCodeConflict))
	})
}
