package service

import (
	"context"
	"crypto/rand"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/pesio-ai/be-visitor-gatepass/internal/auth"
	"github.com/pesio-ai/be-visitor-gatepass/internal/platform/errors"
	"github.com/pesio-ai/be-visitor-gatepass/internal/platform/logger"
	"github.com/pesio-ai/be-visitor-gatepass/internal/platform/metrics"
	"github.com/pesio-ai/be-visitor-gatepass/internal/repository"
	"github.com/pesio-ai/be-visitor-gatepass/internal/workflow"
)

const (
	trackingCodeAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	trackingCodeLength   = 8

	// publicSubmitter is recorded as the performer of self-service submissions.
	publicSubmitter = "visitor"
)

// VisitorRequestService handles visitor request submission, lookup and visit
// tracking.
type VisitorRequestService struct {
	store repository.Store
	fx    *effects
	cfg   Config
	log   *logger.Logger
	codes func() (string, error)
}

// NewVisitorRequestService creates a new visitor request service
func NewVisitorRequestService(
	store repository.Store,
	rec *metrics.Recorder,
	cfg Config,
	log *logger.Logger,
) *VisitorRequestService {
	cfg = cfg.withDefaults()
	return &VisitorRequestService{
		store: store,
		fx:    &effects{store: store, metrics: rec, log: log, timeout: cfg.NotifyTimeout},
		cfg:   cfg,
		log:   log,
		codes: generateTrackingCode,
	}
}

// CreateVisitorRequest represents a create visitor request
type CreateVisitorRequest struct {
	Name          string
	Phone         *string
	Email         *string
	VisitorTypeID string
	WarehouseID   string
	TimeSlotID    string
	Date          string
	Accompanying  []repository.AccompanyingPerson
	// SubmittedBy is empty for public submissions.
	SubmittedBy string
}

// TrackedApproval is one ledger row as shown to the visitor.
type TrackedApproval struct {
	StepNo       int                 `json:"step_no"`
	Status       workflow.StepStatus `json:"status"`
	ApproverName string              `json:"approver_name"`
	Reason       *string             `json:"reason,omitempty"`
	ActedAt      *time.Time          `json:"acted_at,omitempty"`
}

// TrackingView is the public status page of a request.
type TrackingView struct {
	TrackingCode  string                 `json:"tracking_code"`
	Name          string                 `json:"name"`
	Date          string                 `json:"date"`
	Status        workflow.RequestStatus `json:"status"`
	VisitStatus   workflow.VisitStatus   `json:"visit_status"`
	Punctuality   *workflow.Punctuality  `json:"punctuality,omitempty"`
	WarehouseName string                 `json:"warehouse_name"`
	TimeSlotName  string                 `json:"time_slot_name"`
	From          string                 `json:"from"`
	To            string                 `json:"to"`
	Approvals     []TrackedApproval      `json:"approvals"`
}

// VisitorRequestDetail is a request with its approval ledger.
type VisitorRequestDetail struct {
	*repository.VisitorRequest
	Approvals []*repository.Approval `json:"approvals"`
}

// CreateVisitorRequest validates a submission, checks slot availability and
// stores the request together with its approval ledger.
func (s *VisitorRequestService) CreateVisitorRequest(ctx context.Context, in *CreateVisitorRequest) (*VisitorRequestDetail, error) {
	req, err := s.buildRequest(in)
	if err != nil {
		return nil, err
	}

	fx := &sideEffects{}
	var ledger []*repository.Approval

	err = s.store.InTransaction(ctx, func(tx repository.Tx) error {
		slot, err := tx.Directory().GetTimeSlot(ctx, req.TimeSlotID)
		if err != nil {
			return err
		}
		if slot.WarehouseID != req.WarehouseID {
			return errors.InvalidInput("warehouse_time_slot_id", "time slot does not belong to the warehouse")
		}
		if _, err := tx.Directory().GetWarehouse(ctx, req.WarehouseID); err != nil {
			return err
		}
		if _, err := tx.Directory().GetVisitorType(ctx, req.VisitorTypeID); err != nil {
			return err
		}

		if err := checkSlotForCreate(ctx, tx, req.Name, req.VisitDate, req.WarehouseID, req.TimeSlotID); err != nil {
			return err
		}

		code, err := s.uniqueTrackingCode(ctx, tx)
		if err != nil {
			return err
		}
		req.TrackingCode = code

		if err := tx.VisitorRequests().Create(ctx, req); err != nil {
			return err
		}

		ledger, err = instantiateLedger(ctx, tx, req)
		if err != nil {
			return err
		}
		if len(ledger) == 0 {
			s.log.Warn().
				Str("visitor_request_id", req.ID).
				Str("warehouse_id", req.WarehouseID).
				Str("visitor_type_id", req.VisitorTypeID).
				Msg("No workflow configured; visitor request stays pending")
		}

		performer := in.SubmittedBy
		if performer == "" {
			performer = publicSubmitter
		}
		fx.record(&repository.ApprovalAuditEntry{
			VisitorRequestID: req.ID,
			Action:           "submitted",
			PerformedBy:      performer,
			StatusAfter:      statusPtr(req.Status),
			Metadata:         map[string]any{"steps": len(ledger)},
		})
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.fx.apply(ctx, fx)

	s.log.Info().
		Str("visitor_request_id", req.ID).
		Str("tracking_code", req.TrackingCode).
		Str("warehouse_id", req.WarehouseID).
		Str("date", req.VisitDate).
		Int("step_count", len(ledger)).
		Msg("Visitor request created")

	return &VisitorRequestDetail{VisitorRequest: req, Approvals: ledger}, nil
}

func (s *VisitorRequestService) buildRequest(in *CreateVisitorRequest) (*repository.VisitorRequest, error) {
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return nil, errors.InvalidInput("name", "name is required")
	}
	if err := validateUUID("visitor_type_id", in.VisitorTypeID); err != nil {
		return nil, err
	}
	if err := validateUUID("warehouse_id", in.WarehouseID); err != nil {
		return nil, err
	}
	if err := validateUUID("warehouse_time_slot_id", in.TimeSlotID); err != nil {
		return nil, err
	}

	email := trimOptional(in.Email)
	if email != nil {
		if err := validateEmail(*email); err != nil {
			return nil, err
		}
	}
	phone := trimOptional(in.Phone)
	if phone != nil {
		if err := validatePhone(*phone); err != nil {
			return nil, err
		}
	}

	if _, err := validateDate("date", in.Date); err != nil {
		return nil, err
	}
	if in.Date < s.cfg.today() {
		return nil, errors.InvalidInput("date", "visit date cannot be in the past")
	}

	accompanying := make([]repository.AccompanyingPerson, 0, len(in.Accompanying))
	for i, p := range in.Accompanying {
		p.Name = strings.TrimSpace(p.Name)
		if p.Name == "" {
			return nil, errors.InvalidInput(fmt.Sprintf("accompanying[%d].name", i), "name is required")
		}
		p.Phone = trimOptional(p.Phone)
		p.IDNumber = trimOptional(p.IDNumber)
		accompanying = append(accompanying, p)
	}

	return &repository.VisitorRequest{
		Name:          name,
		Phone:         phone,
		Email:         email,
		VisitorTypeID: in.VisitorTypeID,
		WarehouseID:   in.WarehouseID,
		TimeSlotID:    in.TimeSlotID,
		VisitDate:     in.Date,
		Accompanying:  accompanying,
		Status:        workflow.RequestPending,
		VisitStatus:   workflow.VisitPending,
	}, nil
}

func (s *VisitorRequestService) uniqueTrackingCode(ctx context.Context, tx repository.Tx) (string, error) {
	for i := 0; i < s.cfg.TrackingCodeTries; i++ {
		code, err := s.codes()
		if err != nil {
			return "", errors.Wrap(err, errors.ErrCodeInternal, "failed to generate tracking code")
		}
		exists, err := tx.VisitorRequests().TrackingCodeExists(ctx, code)
		if err != nil {
			return "", err
		}
		if !exists {
			return code, nil
		}
	}
	return "", errors.New(errors.ErrCodeInternal, "could not allocate a unique tracking code")
}

// generateTrackingCode returns 8 random characters from [A-Z0-9].
func generateTrackingCode() (string, error) {
	base := big.NewInt(int64(len(trackingCodeAlphabet)))
	b := make([]byte, trackingCodeLength)
	for i := range b {
		n, err := rand.Int(rand.Reader, base)
		if err != nil {
			return "", err
		}
		b[i] = trackingCodeAlphabet[n.Int64()]
	}
	return string(b), nil
}

// GetVisitorRequest retrieves a request with its ledger
func (s *VisitorRequestService) GetVisitorRequest(ctx context.Context, id string) (*VisitorRequestDetail, error) {
	if err := validateUUID("id", id); err != nil {
		return nil, err
	}
	req, err := s.store.VisitorRequests().GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	ledger, err := s.store.Approvals().ListByRequest(ctx, id)
	if err != nil {
		return nil, err
	}
	return &VisitorRequestDetail{VisitorRequest: req, Approvals: ledger}, nil
}

// ListVisitorRequests lists requests with filtering and pagination
func (s *VisitorRequestService) ListVisitorRequests(ctx context.Context, filter repository.VisitorRequestFilter) ([]*repository.VisitorRequest, int, error) {
	if filter.Page < 1 {
		filter.Page = 1
	}
	if filter.PageSize < 1 || filter.PageSize > 100 {
		filter.PageSize = 50
	}
	if filter.Status != nil && !workflow.RequestStatus(*filter.Status).Valid() {
		return nil, 0, errors.InvalidInput("status", "invalid status")
	}
	if filter.VisitDate != nil {
		if _, err := validateDate("date", *filter.VisitDate); err != nil {
			return nil, 0, err
		}
	}
	if filter.WarehouseID != nil {
		if err := validateUUID("warehouse_id", *filter.WarehouseID); err != nil {
			return nil, 0, err
		}
	}
	return s.store.VisitorRequests().List(ctx, filter)
}

// TrackVisitorRequest resolves a tracking code into the public status view.
func (s *VisitorRequestService) TrackVisitorRequest(ctx context.Context, code string) (*TrackingView, error) {
	code = strings.ToUpper(strings.TrimSpace(code))
	if len(code) != trackingCodeLength {
		return nil, errors.InvalidInput("code", "tracking code must be 8 characters")
	}

	req, err := s.store.VisitorRequests().GetByTrackingCode(ctx, code)
	if err != nil {
		return nil, err
	}
	ledger, err := s.store.Approvals().ListByRequest(ctx, req.ID)
	if err != nil {
		return nil, err
	}

	view := &TrackingView{
		TrackingCode: req.TrackingCode,
		Name:         req.Name,
		Date:         req.VisitDate,
		Status:       req.Status,
		VisitStatus:  req.VisitStatus,
		Punctuality:  req.Punctuality,
		Approvals:    make([]TrackedApproval, 0, len(ledger)),
	}
	if wh, err := s.store.Directory().GetWarehouse(ctx, req.WarehouseID); err == nil {
		view.WarehouseName = wh.Name
	}
	if slot, err := s.store.Directory().GetTimeSlot(ctx, req.TimeSlotID); err == nil {
		view.TimeSlotName, view.From, view.To = slot.Name, slot.From, slot.To
	}
	for _, a := range ledger {
		view.Approvals = append(view.Approvals, TrackedApproval{
			StepNo:       a.StepNo,
			Status:       a.Status,
			ApproverName: a.ApproverName,
			Reason:       a.Reason,
			ActedAt:      a.ActedAt,
		})
	}
	return view, nil
}

// GetApprovalHistory returns the audit trail of a request, oldest first.
func (s *VisitorRequestService) GetApprovalHistory(ctx context.Context, id string) ([]*repository.ApprovalAuditEntry, error) {
	if err := validateUUID("id", id); err != nil {
		return nil, err
	}
	if _, err := s.store.VisitorRequests().GetByID(ctx, id); err != nil {
		return nil, err
	}
	return s.store.AuditLog().ListByRequest(ctx, id)
}

// ── Visit tracking ────────────────────────────────────────────────────────────

// RecordArrival marks an approved visitor as arrived and classifies their
// punctuality against the slot start.
func (s *VisitorRequestService) RecordArrival(ctx context.Context, actor auth.Actor, id string) (*repository.VisitorRequest, error) {
	return s.updateVisit(ctx, actor, id, "arrived", func(tx repository.Tx, req *repository.VisitorRequest, now time.Time) error {
		if err := requireApprovedAwaiting(req); err != nil {
			return err
		}
		if req.VisitDate != s.cfg.today() {
			return errors.Conflict("arrival can only be recorded on the visit date")
		}

		slot, err := tx.Directory().GetTimeSlot(ctx, req.TimeSlotID)
		if err != nil {
			return err
		}
		start, err := time.ParseInLocation(dateLayout+" 15:04", req.VisitDate+" "+slot.From, s.cfg.Location)
		if err != nil {
			return errors.Wrap(err, errors.ErrCodeInternal, "invalid time slot start")
		}

		p := workflow.ClassifyArrival(now, start, s.cfg.ArrivalGrace)
		req.VisitStatus = workflow.VisitVisited
		req.ArrivedAt = &now
		req.Punctuality = &p
		return nil
	})
}

// RecordCheckout marks a visitor who has arrived as checked out.
func (s *VisitorRequestService) RecordCheckout(ctx context.Context, actor auth.Actor, id string) (*repository.VisitorRequest, error) {
	return s.updateVisit(ctx, actor, id, "checked_out", func(_ repository.Tx, req *repository.VisitorRequest, now time.Time) error {
		if req.VisitStatus != workflow.VisitVisited {
			return errors.Conflict("visitor has not arrived")
		}
		if req.CheckedOutAt != nil {
			return errors.Conflict("visitor has already checked out")
		}
		req.CheckedOutAt = &now
		return nil
	})
}

// MarkNoShow records that an approved visitor did not turn up.
func (s *VisitorRequestService) MarkNoShow(ctx context.Context, actor auth.Actor, id string) (*repository.VisitorRequest, error) {
	return s.updateVisit(ctx, actor, id, "no_show", func(_ repository.Tx, req *repository.VisitorRequest, _ time.Time) error {
		if err := requireApprovedAwaiting(req); err != nil {
			return err
		}
		if req.VisitDate > s.cfg.today() {
			return errors.Conflict("visit date has not been reached")
		}
		req.VisitStatus = workflow.VisitNoShow
		return nil
	})
}

func requireApprovedAwaiting(req *repository.VisitorRequest) error {
	if req.Status != workflow.RequestApproved {
		return errors.Conflict(fmt.Sprintf("visitor request is %s, not approved", req.Status))
	}
	if req.VisitStatus != workflow.VisitPending {
		return errors.Conflict(fmt.Sprintf("visit is already %s", req.VisitStatus))
	}
	return nil
}

func (s *VisitorRequestService) updateVisit(
	ctx context.Context,
	actor auth.Actor,
	id, action string,
	mutate func(tx repository.Tx, req *repository.VisitorRequest, now time.Time) error,
) (*repository.VisitorRequest, error) {
	if err := validateUUID("id", id); err != nil {
		return nil, err
	}

	fx := &sideEffects{}
	var out *repository.VisitorRequest

	err := s.store.InTransaction(ctx, func(tx repository.Tx) error {
		req, err := tx.VisitorRequests().GetByIDForUpdate(ctx, id)
		if err != nil {
			return err
		}
		before := req.VisitStatus
		if err := mutate(tx, req, s.cfg.Now().In(s.cfg.Location)); err != nil {
			return err
		}
		if err := tx.VisitorRequests().UpdateVisit(ctx, req); err != nil {
			return err
		}

		metadata := map[string]any{}
		if req.Punctuality != nil && action == "arrived" {
			metadata["punctuality"] = string(*req.Punctuality)
		}
		fx.record(&repository.ApprovalAuditEntry{
			VisitorRequestID: req.ID,
			Action:           action,
			PerformedBy:      actor.UserID,
			StatusBefore:     statusPtr(before),
			StatusAfter:      statusPtr(req.VisitStatus),
			Metadata:         metadata,
		})
		out = req
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.fx.apply(ctx, fx)

	s.log.Info().
		Str("visitor_request_id", id).
		Str("action", action).
		Str("visit_status", string(out.VisitStatus)).
		Msg("Visit updated")

	return out, nil
}
