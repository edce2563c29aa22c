// internal/workers/communication/dispatch-notification/models.go
package dispatchnotification

import "fleet-compliance/internal/models"

type Input struct {
	Notification models.Notification `json:"notification"`
}

type Output struct {
	NotificationID string                 `json:"notificationId"`
	Status         string                 `json:"status"` // "sent", "partial", "failed", "disabled"
	Channels       []models.ChannelResult `json:"channels"`
	SentAt         string                 `json:"sentAt"` // ISO 8601
}

// Notification types
const (
	TypeComplianceExpiring = "compliance_expiring"
	TypeComplianceExpired  = "compliance_expired"
	TypeVehicleDisabled    = "vehicle_disabled"
	TypeDriverSuspended    = "driver_suspended"
	TypeCodingViolation    = "coding_violation"
	TypeComplianceAlert    = "compliance_alert"
)

// Statuses
const (
	StatusSent     = "sent"
	StatusPartial  = "partial"
	StatusFailed   = "failed"
	StatusDisabled = "disabled"
)
