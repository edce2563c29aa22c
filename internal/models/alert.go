// internal/models/alert.go
package models

import "time"

type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

type AlertStatus string

const (
	AlertActive   AlertStatus = "active"
	AlertResolved AlertStatus = "resolved"
)

// Alert is written for every fired escalation level.
type Alert struct {
	ID              string      `json:"id"`
	EntityID        string      `json:"entityId"`
	Domain          Domain      `json:"domain"`
	RuleID          string      `json:"ruleId"`
	Level           int         `json:"level"`
	Severity        Severity    `json:"severity"`
	Message         string      `json:"message"`
	Status          AlertStatus `json:"status"`
	DaysUntilExpiry int         `json:"daysUntilExpiry"`
	FailedActions   []string    `json:"failedActions,omitempty"`
	CreatedAt       time.Time   `json:"createdAt"`
	ResolvedAt      *time.Time  `json:"resolvedAt,omitempty"`
}
