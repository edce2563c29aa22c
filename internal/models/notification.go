// internal/models/notification.go
package models

import "time"

type Channel string

const (
	ChannelEmail Channel = "email"
	ChannelSMS   Channel = "sms"
	ChannelInApp Channel = "in_app"
)

// Notification is a request to the dispatcher. Recipients are roles resolved against EntityID.
type Notification struct {
	ID         string                 `json:"id"`
	EntityID   string                 `json:"entityId"`
	Domain     Domain                 `json:"domain"`
	Type       string                 `json:"type"` // template key
	Subject    string                 `json:"subject,omitempty"`
	Channels   []Channel              `json:"channels"`
	Recipients []RecipientRole        `json:"recipients"`
	Priority   string                 `json:"priority,omitempty"`
	Data       map[string]interface{} `json:"data,omitempty"`
}

type ChannelStatus string

const (
	ChannelSent     ChannelStatus = "sent"
	ChannelFailed   ChannelStatus = "failed"
	ChannelSkipped  ChannelStatus = "skipped"
	ChannelDisabled ChannelStatus = "disabled"
)

type ChannelResult struct {
	Channel    Channel       `json:"channel"`
	Status     ChannelStatus `json:"status"`
	Recipients int           `json:"recipients"`
	Error      string        `json:"error,omitempty"`
}

type DispatchResult struct {
	NotificationID string          `json:"notificationId"`
	Channels       []ChannelResult `json:"channels"`
	SentAt         time.Time       `json:"sentAt"`
}

// Delivered reports whether at least one channel sent the notification.
func (r DispatchResult) Delivered() bool {
	for _, c := range r.Channels {
		if c.Status == ChannelSent {
			return true
		}
	}
	return false
}

// Contact is a resolved recipient.
type Contact struct {
	ID    string        `json:"id"`
	Role  RecipientRole `json:"role"`
	Name  string        `json:"name,omitempty"`
	Email string        `json:"email,omitempty"`
	Phone string        `json:"phone,omitempty"`
}
