package enums

import "fmt"

// OutboxAggregateType maps to the aggregate_type enum in Postgres.
type OutboxAggregateType string

const (
	AggregateLoan OutboxAggregateType = "loan"
	AggregateBook OutboxAggregateType = "book"
)

var validAggregateTypes = []OutboxAggregateType{
	AggregateLoan,
	AggregateBook,
}

// IsValid reports whether the value matches the canonical aggregate_type enum.
func (a OutboxAggregateType) IsValid() bool {
	for _, candidate := range validAggregateTypes {
		if candidate == a {
			return true
		}
	}
	return false
}

// ParseOutboxAggregateType converts raw input into OutboxAggregateType.
func ParseOutboxAggregateType(value string) (OutboxAggregateType, error) {
	for _, candidate := range validAggregateTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid aggregate type %q", value)
}

// OutboxEventType maps to the event_type enum in Postgres. Loan events are
// named after the transition that produced them.
type OutboxEventType string

const (
	EventReservationCreated   OutboxEventType = "reservation_created"
	EventCollectionConfirmed  OutboxEventType = "collection_confirmed"
	EventReturnRequested      OutboxEventType = "return_requested"
	EventReturnConfirmed      OutboxEventType = "return_confirmed"
	EventReservationCancelled OutboxEventType = "reservation_cancelled"
	EventReservationExpired   OutboxEventType = "reservation_expired"
)

var validEventTypes = []OutboxEventType{
	EventReservationCreated,
	EventCollectionConfirmed,
	EventReturnRequested,
	EventReturnConfirmed,
	EventReservationCancelled,
	EventReservationExpired,
}

// IsValid reports whether the value matches the canonical event_type enum.
func (e OutboxEventType) IsValid() bool {
	for _, candidate := range validEventTypes {
		if candidate == e {
			return true
		}
	}
	return false
}

// NotificationType returns the inbox type a loan event is rendered as.
func (e OutboxEventType) NotificationType() (NotificationType, bool) {
	n := NotificationType(e)
	return n, n.IsValid()
}

// ParseOutboxEventType converts raw input into OutboxEventType.
func ParseOutboxEventType(value string) (OutboxEventType, error) {
	for _, candidate := range validEventTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid event type %q", value)
}
