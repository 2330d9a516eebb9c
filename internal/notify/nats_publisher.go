package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/pesio-ai/be-visitor-gatepass/internal/platform/logger"
)

// Event types published by NATSPublisher.
const (
	EventVisitorApproved = "visitor_request_approved"
	EventVisitorRejected = "visitor_request_rejected"
)

// publisher is the subset of *nats.Conn used to emit events.
type publisher interface {
	Publish(subject string, data []byte) error
	FlushWithContext(ctx context.Context) error
}

// NATSPublisher publishes visitor outcome events to NATS for consumption by
// the notifications service, which owns email delivery.
//
// Subject convention: <prefix>.<event_type>
type NATSPublisher struct {
	conn    publisher
	prefix  string
	timeout time.Duration
	log     *logger.Logger
}

// NotificationEvent is the JSON schema published to NATS.
type NotificationEvent struct {
	EventType    string         `json:"event_type"`
	Recipients   []string       `json:"recipients"`
	ResourceType string         `json:"resource_type"`
	ResourceID   string         `json:"resource_id"`
	Severity     string         `json:"severity"`
	Category     string         `json:"category"`
	Email        Message        `json:"email"`
	Payload      map[string]any `json:"payload,omitempty"`
	OccurredAt   time.Time      `json:"occurred_at"`
}

// Connect dials NATS with reconnect handlers wired to the service log.
func Connect(url, name string, log *logger.Logger) (*nats.Conn, error) {
	return nats.Connect(url,
		nats.Name(name),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				log.Warn().Err(err).Msg("nats: disconnected")
			}
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			log.Info().Str("url", c.ConnectedUrl()).Msg("nats: reconnected")
		}),
	)
}

// NewNATSPublisher creates a publisher on conn. timeout bounds the flush that
// confirms the server received each event.
func NewNATSPublisher(conn *nats.Conn, prefix string, timeout time.Duration, log *logger.Logger) *NATSPublisher {
	return newNATSPublisher(conn, prefix, timeout, log)
}

func newNATSPublisher(conn publisher, prefix string, timeout time.Duration, log *logger.Logger) *NATSPublisher {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &NATSPublisher{conn: conn, prefix: prefix, timeout: timeout, log: log}
}

func (p *NATSPublisher) NotifyApproved(ctx context.Context, n ApprovedNotice) error {
	msg, err := RenderApproved(n)
	if err != nil {
		return err
	}
	return p.publish(ctx, EventVisitorApproved, n.RequestID, n.Email, msg, map[string]any{
		"visitor_name":   n.VisitorName,
		"tracking_code":  n.TrackingCode,
		"warehouse_name": n.WarehouseName,
		"time_slot_name": n.TimeSlotName,
		"date":           n.Date,
		"from":           n.From,
		"to":             n.To,
	})
}

func (p *NATSPublisher) NotifyRejected(ctx context.Context, n RejectedNotice) error {
	msg, err := RenderRejected(n)
	if err != nil {
		return err
	}
	reason := n.Reason
	if reason == "" {
		reason = DefaultRejectionReason
	}
	return p.publish(ctx, EventVisitorRejected, n.RequestID, n.Email, msg, map[string]any{
		"visitor_name":  n.VisitorName,
		"tracking_code": n.TrackingCode,
		"reason":        reason,
	})
}

func (p *NATSPublisher) publish(ctx context.Context, eventType, requestID, email string, msg Message, payload map[string]any) error {
	if email == "" {
		p.log.Debug().
			Str("event_type", eventType).
			Str("visitor_request_id", requestID).
			Msg("notification: visitor has no email, skipping")
		return nil
	}

	event := &NotificationEvent{
		EventType:    eventType,
		Recipients:   []string{email},
		ResourceType: "visitor_request",
		ResourceID:   requestID,
		Severity:     "info",
		Category:     "visitor_approval",
		Email:        msg,
		Payload:      payload,
		OccurredAt:   time.Now().UTC(),
	}

	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal notification event: %w", err)
	}

	subject := fmt.Sprintf("%s.%s", p.prefix, eventType)
	if err := p.conn.Publish(subject, data); err != nil {
		return fmt.Errorf("publish %s: %w", subject, err)
	}

	flushCtx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()
	if err := p.conn.FlushWithContext(flushCtx); err != nil {
		return fmt.Errorf("flush %s: %w", subject, err)
	}

	p.log.Debug().
		Str("subject", subject).
		Str("visitor_request_id", requestID).
		Msg("notification: event published")
	return nil
}
