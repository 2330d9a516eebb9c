package notify

import (
	"bytes"
	"fmt"
	"html/template"
)

// Message is a rendered visitor email.
type Message struct {
	Subject string `json:"subject"`
	HTML    string `json:"html"`
}

const (
	approvedSubject = "Your Visitor Request Has Been Approved"
	rejectedSubject = "Your Visitor Request Has Been Rejected"
)

var approvedTemplate = template.Must(template.New("approved").Parse(`<html>
  <body style="font-family: Arial, sans-serif; background-color: #f4f4f4; padding: 20px;">
    <div style="max-width: 600px; margin: 0 auto; background-color: #ffffff; padding: 20px; border-radius: 8px;">
      <h2 style="color: #28a745; text-align: center;">Visitor Request Approved</h2>
      <p>Dear {{.VisitorName}},</p>
      <p>Your visitor request has been <strong style="color: #28a745;">approved</strong>.</p>
      <p><strong>Details:</strong></p>
      <ul>
        <li><strong>Tracking Code:</strong> {{.TrackingCode}}</li>
        <li><strong>Warehouse:</strong> {{.WarehouseName}}</li>
        <li><strong>Time Slot:</strong> {{.TimeSlotName}} ({{.From}} - {{.To}})</li>
        <li><strong>Date:</strong> {{.Date}}</li>
      </ul>
      <p>Please arrive on time. Contact us if you have any questions.</p>
      <p style="text-align: center; color: #6c757d;">Best regards,<br>GatePass Team</p>
    </div>
  </body>
</html>
`))

var rejectedTemplate = template.Must(template.New("rejected").Parse(`<html>
  <body style="font-family: Arial, sans-serif; background-color: #f4f4f4; padding: 20px;">
    <div style="max-width: 600px; margin: 0 auto; background-color: #ffffff; padding: 20px; border-radius: 8px;">
      <h2 style="color: #dc3545; text-align: center;">Visitor Request Rejected</h2>
      <p>Dear {{.VisitorName}},</p>
      <p>We regret to inform you that your visitor request has been <strong style="color: #dc3545;">rejected</strong>.</p>
      <div style="background-color: #f8d7da; padding: 15px; border-left: 5px solid #dc3545;">
        <p><strong>Tracking Code:</strong> {{.TrackingCode}}</p>
        <p><strong>Reason:</strong> {{.Reason}}</p>
      </div>
      <p>You may submit a new request if applicable. Contact us for more details.</p>
      <p style="text-align: center; color: #6c757d;">Best regards,<br>GatePass Team</p>
    </div>
  </body>
</html>
`))

// RenderApproved builds the approval email.
func RenderApproved(n ApprovedNotice) (Message, error) {
	var buf bytes.Buffer
	if err := approvedTemplate.Execute(&buf, n); err != nil {
		return Message{}, fmt.Errorf("render approved email: %w", err)
	}
	return Message{Subject: approvedSubject, HTML: buf.String()}, nil
}

// RenderRejected builds the rejection email. An empty reason falls back to
// DefaultRejectionReason.
func RenderRejected(n RejectedNotice) (Message, error) {
	if n.Reason == "" {
		n.Reason = DefaultRejectionReason
	}
	var buf bytes.Buffer
	if err := rejectedTemplate.Execute(&buf, n); err != nil {
		return Message{}, fmt.Errorf("render rejected email: %w", err)
	}
	return Message{Subject: rejectedSubject, HTML: buf.String()}, nil
}
