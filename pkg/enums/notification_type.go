package enums

import "fmt"

// NotificationType labels the transition a notification row describes.
type NotificationType string

const (
	NotificationBookingApproved  NotificationType = "booking_approved"
	NotificationBookingRejected  NotificationType = "booking_rejected"
	NotificationBookingCancelled NotificationType = "booking_cancelled"
	NotificationBookingCompleted NotificationType = "booking_completed"
	NotificationLowStock         NotificationType = "low_stock"
)

var validNotificationTypes = []NotificationType{
	NotificationBookingApproved,
	NotificationBookingRejected,
	NotificationBookingCancelled,
	NotificationBookingCompleted,
	NotificationLowStock,
}

// String implements fmt.Stringer.
func (n NotificationType) String() string {
	return string(n)
}

// IsValid reports whether the value is a known NotificationType.
func (n NotificationType) IsValid() bool {
	for _, candidate := range validNotificationTypes {
		if candidate == n {
			return true
		}
	}
	return false
}

// ParseNotificationType converts raw input into a NotificationType.
func ParseNotificationType(value string) (NotificationType, error) {
	for _, candidate := range validNotificationTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid notification type %q", value)
}
