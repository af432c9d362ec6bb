package enums

import "fmt"

// NotificationType classifies what a notification is about.
type NotificationType string

const (
	NotificationTypeOrder     NotificationType = "ORDER"
	NotificationTypeReturn    NotificationType = "RETURN"
	NotificationTypePromotion NotificationType = "PROMOTION"
	NotificationTypeSystem    NotificationType = "SYSTEM"
)

var validNotificationTypes = []NotificationType{
	NotificationTypeOrder,
	NotificationTypeReturn,
	NotificationTypePromotion,
	NotificationTypeSystem,
}

func (n NotificationType) String() string {
	return string(n)
}

// IsValid reports whether the value is a known notification type.
func (n NotificationType) IsValid() bool {
	for _, candidate := range validNotificationTypes {
		if n == candidate {
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
	return "", fmt.Errorf("invalid notification type: %q", value)
}
