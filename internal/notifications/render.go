package notifications

import (
	"fmt"
	"time"

	"github.com/angelmondragon/library-backend/pkg/enums"
	"github.com/angelmondragon/library-backend/pkg/outbox/payloads"
)

const dateLayout = "Mon, 02 Jan 2006 15:04 MST"

type rendered struct {
	Title   string
	Message string
}

// render turns a loan event into inbox text. ok is false for events that do
// not notify the member.
func render(eventType enums.OutboxEventType, ev payloads.LoanEvent) (rendered, bool) {
	title := ev.BookTitle
	if title == "" {
		title = "your book"
	} else {
		title = fmt.Sprintf("%q", title)
	}

	switch eventType {
	case enums.EventReservationCreated:
		return rendered{
			Title:   "Reservation confirmed",
			Message: fmt.Sprintf("We are holding %s for you until %s. Collect it at the desk before then.", title, formatDate(ev.ReservationExpiry)),
		}, true
	case enums.EventCollectionConfirmed:
		return rendered{
			Title:   "Book collected",
			Message: fmt.Sprintf("You collected %s. Please return it by %s.", title, formatDate(ev.DueDate)),
		}, true
	case enums.EventReturnRequested:
		return rendered{
			Title:   "Return requested",
			Message: fmt.Sprintf("Your return of %s is awaiting confirmation at the desk.", title),
		}, true
	case enums.EventReturnConfirmed:
		msg := fmt.Sprintf("Thanks for returning %s.", title)
		if ev.WasOverdue {
			msg = fmt.Sprintf("We received %s. It came back after its due date of %s.", title, formatDate(ev.DueDate))
		}
		return rendered{Title: "Return confirmed", Message: msg}, true
	case enums.EventReservationCancelled:
		return rendered{
			Title:   "Reservation cancelled",
			Message: fmt.Sprintf("Your reservation for %s was cancelled.", title),
		}, true
	case enums.EventReservationExpired:
		return rendered{
			Title:   "Reservation expired",
			Message: fmt.Sprintf("Your reservation for %s expired before it was collected and the copy was released.", title),
		}, true
	default:
		return rendered{}, false
	}
}

func formatDate(t *time.Time) string {
	if t == nil {
		return "the stated date"
	}
	return t.UTC().Format(dateLayout)
}
