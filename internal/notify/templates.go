package notify

import (
	"fmt"
	"strings"
	"time"

	"github.com/karthik-ak-dev/pulse-ops/internal/queue"
)

// Message bodies sent to patients. Wording mirrors the clinic-approved
// WhatsApp template bodies, so text sends and template sends read the
// same to the patient.

// TokenBookedMessage confirms a booking before payment clears.
func TokenBookedMessage(tokenNumber int, doctorName, serviceDate string) string {
	return fmt.Sprintf(
		"Your token %d with %s on %s is booked. Complete payment to confirm your visit.",
		tokenNumber, doctorName, serviceDate,
	)
}

// TokenConfirmedMessage confirms a paid or staff-confirmed token.
func TokenConfirmedMessage(tokenNumber int, doctorName, serviceDate string) string {
	return fmt.Sprintf(
		"Your token %d has been confirmed for %s with %s. Please arrive 10 minutes before your estimated time.",
		tokenNumber, serviceDate, doctorName,
	)
}

// TokenCalledMessage tells the patient their consultation starts now.
func TokenCalledMessage(tokenNumber int) string {
	return fmt.Sprintf(
		"Token %d: it's your turn now. Please proceed to the consultation room.",
		tokenNumber,
	)
}

// QueueUpdateMessage tells a waiting patient where the line stands.
func QueueUpdateMessage(currentToken, estimatedWaitMinutes, yourToken int) string {
	return fmt.Sprintf(
		"Currently serving: %d. Your turn in ~%d minutes (Token %d).",
		currentToken, estimatedWaitMinutes, yourToken,
	)
}

// CloseSummaryEmail renders the end-of-day email sent to the clinic when
// a queue closes.
func CloseSummaryEmail(clinicName, doctorName string, q *queue.Queue, counts map[queue.TokenStatus]int) EmailMessage {
	subject := fmt.Sprintf("Queue closed: %s on %s", doctorName, q.ServiceDate)

	var b strings.Builder
	fmt.Fprintf(&b, "Hello %s,\n\n", clinicName)
	fmt.Fprintf(&b, "The queue for %s on %s has been closed.\n\n", doctorName, q.ServiceDate)
	fmt.Fprintf(&b, "Tokens issued: %d\n", q.LastTokenNumber)
	fmt.Fprintf(&b, "Completed: %d\n", counts[queue.TokenCompleted])
	fmt.Fprintf(&b, "Cancelled: %d\n", counts[queue.TokenCancelled])
	fmt.Fprintf(&b, "No-shows: %d\n", counts[queue.TokenNoShow])
	fmt.Fprintf(&b, "Skipped: %d\n", counts[queue.TokenSkipped])
	if q.StartedAt != nil && q.ClosedAt != nil {
		fmt.Fprintf(&b, "Open from %s to %s\n",
			q.StartedAt.In(q.Settings.Location()).Format("15:04"),
			q.ClosedAt.In(q.Settings.Location()).Format("15:04"),
		)
	}
	b.WriteString("\nThis summary was generated automatically when the queue closed.\n")

	return EmailMessage{
		Subject: subject,
		Body:    b.String(),
	}
}

// waitMinutes converts an estimated call time into whole minutes from
// now, never less than one.
func waitMinutes(estimatedAt, now time.Time) int {
	d := estimatedAt.Sub(now)
	if d <= 0 {
		return 1
	}
	mins := int((d + time.Minute - 1) / time.Minute)
	if mins < 1 {
		mins = 1
	}
	return mins
}
