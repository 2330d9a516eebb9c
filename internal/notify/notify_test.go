package notify

import (
	"bytes"
	"context"
	"encoding/json"
	stderrors "errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pesio-ai/be-visitor-gatepass/internal/platform/logger"
)

type published struct {
	subject string
	data    []byte
}

type fakeConn struct {
	msgs       []published
	publishErr error
	flushes    int
}

func (f *fakeConn) Publish(subject string, data []byte) error {
	if f.publishErr != nil {
		return f.publishErr
	}
	f.msgs = append(f.msgs, published{subject: subject, data: data})
	return nil
}

func (f *fakeConn) FlushWithContext(ctx context.Context) error {
	f.flushes++
	if _, ok := ctx.Deadline(); !ok {
		return stderrors.New("flush requires a deadline")
	}
	return nil
}

func approvedNotice() ApprovedNotice {
	return ApprovedNotice{
		RequestID:     "req-1",
		VisitorName:   "Ann <script>",
		Email:         "ann@example.com",
		TrackingCode:  "AB12CD34",
		WarehouseName: "Central",
		TimeSlotName:  "Morning",
		Date:          "2026-10-20",
		From:          "09:00",
		To:            "10:00",
	}
}

func TestRenderApproved(t *testing.T) {
	msg, err := RenderApproved(approvedNotice())
	require.NoError(t, err)

	assert.Equal(t, "Your Visitor Request Has Been Approved", msg.Subject)
	assert.Contains(t, msg.HTML, "AB12CD34")
	assert.Contains(t, msg.HTML, "Morning (09:00 - 10:00)")
	assert.Contains(t, msg.HTML, "Ann &lt;script&gt;")
	assert.NotContains(t, msg.HTML, "<script>")
}

func TestRenderRejectedDefaultsReason(t *testing.T) {
	msg, err := RenderRejected(RejectedNotice{VisitorName: "Ann", TrackingCode: "AB12CD34"})
	require.NoError(t, err)

	assert.Equal(t, "Your Visitor Request Has Been Rejected", msg.Subject)
	assert.Contains(t, msg.HTML, DefaultRejectionReason)
}

func TestNATSPublisherPublishesApproved(t *testing.T) {
	conn := &fakeConn{}
	p := newNATSPublisher(conn, "notifications.visitors", time.Second, logger.Nop())

	require.NoError(t, p.NotifyApproved(context.Background(), approvedNotice()))
	require.Len(t, conn.msgs, 1)
	assert.Equal(t, "notifications.visitors.visitor_request_approved", conn.msgs[0].subject)
	assert.Equal(t, 1, conn.flushes)

	var event NotificationEvent
	require.NoError(t, json.Unmarshal(conn.msgs[0].data, &event))
	assert.Equal(t, []string{"ann@example.com"}, event.Recipients)
	assert.Equal(t, "visitor_request", event.ResourceType)
	assert.Equal(t, "req-1", event.ResourceID)
	assert.Equal(t, "AB12CD34", event.Payload["tracking_code"])
	assert.Equal(t, approvedSubject, event.Email.Subject)
}

func TestNATSPublisherRejectedReasonFallback(t *testing.T) {
	conn := &fakeConn{}
	p := newNATSPublisher(conn, "gp", time.Second, logger.Nop())

	require.NoError(t, p.NotifyRejected(context.Background(), RejectedNotice{
		RequestID: "req-2", VisitorName: "Ben", Email: "ben@example.com", TrackingCode: "ZZ99ZZ99",
	}))
	require.Len(t, conn.msgs, 1)
	assert.Equal(t, "gp.visitor_request_rejected", conn.msgs[0].subject)

	var event NotificationEvent
	require.NoError(t, json.Unmarshal(conn.msgs[0].data, &event))
	assert.Equal(t, DefaultRejectionReason, event.Payload["reason"])
}

func TestNATSPublisherSkipsWithoutEmail(t *testing.T) {
	conn := &fakeConn{}
	p := newNATSPublisher(conn, "gp", time.Second, logger.Nop())

	n := approvedNotice()
	n.Email = ""
	require.NoError(t, p.NotifyApproved(context.Background(), n))
	assert.Empty(t, conn.msgs)
}

func TestNATSPublisherReturnsPublishError(t *testing.T) {
	conn := &fakeConn{publishErr: stderrors.New("connection closed")}
	p := newNATSPublisher(conn, "gp", time.Second, logger.Nop())

	err := p.NotifyApproved(context.Background(), approvedNotice())
	assert.ErrorContains(t, err, "connection closed")
}

func TestLogNotifier(t *testing.T) {
	var buf bytes.Buffer
	n := NewLogNotifier(logger.New(logger.Config{Level: "info", Environment: "test", Output: &buf}))

	require.NoError(t, n.NotifyRejected(context.Background(), RejectedNotice{RequestID: "req-3", Reason: "no badge"}))
	assert.Contains(t, buf.String(), "visitor request rejected")
	assert.Contains(t, buf.String(), "no badge")
}
