package service

import (
	"context"
	"time"

	"github.com/pesio-ai/be-visitor-gatepass/internal/notify"
	"github.com/pesio-ai/be-visitor-gatepass/internal/platform/logger"
	"github.com/pesio-ai/be-visitor-gatepass/internal/platform/metrics"
	"github.com/pesio-ai/be-visitor-gatepass/internal/repository"
	"github.com/pesio-ai/be-visitor-gatepass/internal/workflow"
)

// Config tunes the workflow services.
type Config struct {
	// EnforceStepOrder rejects approve/reject on a row whose preceding step
	// is not yet approved.
	EnforceStepOrder  bool
	ArrivalGrace      time.Duration
	TrackingCodeTries int
	NotifyTimeout     time.Duration
	Location          *time.Location
	Now               func() time.Time
}

func (c Config) withDefaults() Config {
	if c.TrackingCodeTries < 1 {
		c.TrackingCodeTries = 10
	}
	if c.NotifyTimeout <= 0 {
		c.NotifyTimeout = 10 * time.Second
	}
	if c.Location == nil {
		c.Location = time.UTC
	}
	if c.Now == nil {
		c.Now = time.Now
	}
	return c
}

// today returns the current calendar date in the configured timezone.
func (c Config) today() string {
	return c.Now().In(c.Location).Format(dateLayout)
}

// outcome is a terminal transition waiting to be announced.
type outcome struct {
	approved *notify.ApprovedNotice
	rejected *notify.RejectedNotice
}

// sideEffects collects work that must only happen once a transaction has
// committed.
type sideEffects struct {
	audit       []*repository.ApprovalAuditEntry
	transitions []workflow.Transition
	outcomes    []outcome
}

func (fx *sideEffects) record(entry *repository.ApprovalAuditEntry) {
	fx.audit = append(fx.audit, entry)
}

// effects runs committed side effects: audit appends, transition metrics and
// notification dispatch. None of them can fail the operation.
type effects struct {
	store    repository.Store
	notifier notify.Notifier
	metrics  *metrics.Recorder
	log      *logger.Logger
	timeout  time.Duration
}

func (e *effects) apply(ctx context.Context, fx *sideEffects) {
	for _, entry := range fx.audit {
		if err := e.store.AuditLog().Append(ctx, entry); err != nil {
			e.log.Warn().Err(err).
				Str("visitor_request_id", entry.VisitorRequestID).
				Str("action", entry.Action).
				Msg("Failed to write audit log entry")
		}
	}

	for _, tr := range fx.transitions {
		e.metrics.Incr(metrics.RequestTransition,
			metrics.Tag(metrics.TagFrom, string(tr.From)),
			metrics.Tag(metrics.TagTo, string(tr.To)))
	}

	for _, o := range fx.outcomes {
		e.dispatch(ctx, o)
	}
}

// dispatch delivers one notice on a context detached from the caller so a
// cancelled request cannot abort a committed outcome's notification.
func (e *effects) dispatch(ctx context.Context, o outcome) {
	nctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), e.timeout)
	defer cancel()

	var (
		err       error
		event     string
		requestID string
	)
	switch {
	case o.approved != nil:
		event, requestID = notify.EventVisitorApproved, o.approved.RequestID
		err = e.notifier.NotifyApproved(nctx, *o.approved)
	case o.rejected != nil:
		event, requestID = notify.EventVisitorRejected, o.rejected.RequestID
		err = e.notifier.NotifyRejected(nctx, *o.rejected)
	default:
		return
	}

	result := "sent"
	if err != nil {
		result = "failed"
		e.log.Error().Err(err).
			Str("visitor_request_id", requestID).
			Str("event", event).
			Msg("Failed to dispatch visitor notification")
	}
	e.metrics.Incr(metrics.NotificationDispatch,
		metrics.Tag(metrics.TagEvent, event),
		metrics.Tag(metrics.TagOutcome, result))
}

func statusPtr[T ~string](s T) *string {
	v := string(s)
	return &v
}
