package notify

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// Confirmation carries what the patient needs to know about a new booking.
type Confirmation struct {
	PatientEmail string
	PatientName  string
	DoctorName   string
	Start        time.Time
	End          time.Time
}

// BuildConfirmationEmail renders the booking confirmation. Times are shown in
// whatever location Start and End carry.
func BuildConfirmationEmail(c Confirmation) EmailMessage {
	doctor := strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(c.DoctorName), "Dr."))
	body := fmt.Sprintf(`Hi %s,

Your appointment with Dr. %s has been booked successfully.

Appointment Details:
Date: %s
Time: %s to %s

Please arrive 10 minutes early.

Thank you,
%s
`,
		c.PatientName,
		doctor,
		c.Start.Format("Monday, January 2, 2006"),
		c.Start.Format("03:04 PM"),
		c.End.Format("03:04 PM"),
		defaultFromName,
	)
	return EmailMessage{
		To:      c.PatientEmail,
		ToName:  c.PatientName,
		Subject: "Appointment Confirmed",
		Body:    body,
	}
}

// SendConfirmation renders and sends the confirmation through sender.
func SendConfirmation(ctx context.Context, sender EmailSender, c Confirmation) error {
	if sender == nil {
		return fmt.Errorf("notify: email sender not configured")
	}
	if strings.TrimSpace(c.PatientEmail) == "" {
		return fmt.Errorf("notify: patient has no email address")
	}
	return sender.Send(ctx, BuildConfirmationEmail(c))
}
