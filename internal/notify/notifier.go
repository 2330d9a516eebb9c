// Package notify delivers the visitor-facing outcome of an approval workflow.
package notify

import (
	"context"

	"github.com/pesio-ai/be-visitor-gatepass/internal/platform/logger"
)

// DefaultRejectionReason is used when no rejecting approver left a reason.
const DefaultRejectionReason = "No specific reason provided"

// ApprovedNotice carries what a visitor needs to attend an approved visit.
type ApprovedNotice struct {
	RequestID     string `json:"request_id"`
	VisitorName   string `json:"visitor_name"`
	Email         string `json:"email,omitempty"`
	TrackingCode  string `json:"tracking_code"`
	WarehouseName string `json:"warehouse_name"`
	TimeSlotName  string `json:"time_slot_name"`
	Date          string `json:"date"`
	From          string `json:"from"`
	To            string `json:"to"`
}

// RejectedNotice tells a visitor their request was declined.
type RejectedNotice struct {
	RequestID    string `json:"request_id"`
	VisitorName  string `json:"visitor_name"`
	Email        string `json:"email,omitempty"`
	TrackingCode string `json:"tracking_code"`
	Reason       string `json:"reason"`
}

// Notifier is the outbound port invoked once per terminal transition.
type Notifier interface {
	NotifyApproved(ctx context.Context, n ApprovedNotice) error
	NotifyRejected(ctx context.Context, n RejectedNotice) error
}

// LogNotifier records notices in the service log. It is used when no
// message broker is configured.
type LogNotifier struct {
	log *logger.Logger
}

// NewLogNotifier creates a LogNotifier.
func NewLogNotifier(log *logger.Logger) *LogNotifier {
	return &LogNotifier{log: log}
}

func (n *LogNotifier) NotifyApproved(_ context.Context, notice ApprovedNotice) error {
	n.log.Info().
		Str("visitor_request_id", notice.RequestID).
		Str("tracking_code", notice.TrackingCode).
		Str("warehouse", notice.WarehouseName).
		Str("date", notice.Date).
		Str("slot", notice.TimeSlotName).
		Bool("has_email", notice.Email != "").
		Msg("notification: visitor request approved")
	return nil
}

func (n *LogNotifier) NotifyRejected(_ context.Context, notice RejectedNotice) error {
	n.log.Info().
		Str("visitor_request_id", notice.RequestID).
		Str("tracking_code", notice.TrackingCode).
		Str("reason", notice.Reason).
		Bool("has_email", notice.Email != "").
		Msg("notification: visitor request rejected")
	return nil
}
