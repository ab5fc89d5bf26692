package enums

import "fmt"

// NotificationType maps to the notification_type enum in Postgres.
type NotificationType string

const (
	NotificationTypeReservationCreated   NotificationType = "reservation_created"
	NotificationTypeCollectionConfirmed  NotificationType = "collection_confirmed"
	NotificationTypeReturnRequested      NotificationType = "return_requested"
	NotificationTypeReturnConfirmed      NotificationType = "return_confirmed"
	NotificationTypeReservationCancelled NotificationType = "reservation_cancelled"
	NotificationTypeReservationExpired   NotificationType = "reservation_expired"
)

var validNotificationTypes = []NotificationType{
	NotificationTypeReservationCreated,
	NotificationTypeCollectionConfirmed,
	NotificationTypeReturnRequested,
	NotificationTypeReturnConfirmed,
	NotificationTypeReservationCancelled,
	NotificationTypeReservationExpired,
}

// IsValid checks whether the given type matches the canonical enum.
func (n NotificationType) IsValid() bool {
	for _, candidate := range validNotificationTypes {
		if candidate == n {
			return true
		}
	}
	return false
}

// ParseNotificationType converts raw strings into NotificationType.
func ParseNotificationType(value string) (NotificationType, error) {
	for _, candidate := range validNotificationTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid notification type %q", value)
}
