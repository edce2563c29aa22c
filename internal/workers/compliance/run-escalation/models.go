// internal/workers/compliance/run-escalation/models.go
package runescalation

import "fleet-compliance/internal/models"

type Input struct {
	RuleID string `json:"ruleId"`
	Now    string `json:"now,omitempty"`
}

type Output struct {
	RuleID      string            `json:"ruleId"`
	Fired       int               `json:"fired"`
	Escalations []FiredEscalation `json:"escalations"`
}

// FiredEscalation describes one level fired for one record.
type FiredEscalation struct {
	EntityID        string                  `json:"entityId"`
	Domain          models.Domain           `json:"domain"`
	RuleID          string                  `json:"ruleId"`
	Level           int                     `json:"level"`
	DaysUntilExpiry int                     `json:"daysUntilExpiry"`
	Status          models.ComplianceStatus `json:"status"`
	AlertID         string                  `json:"alertId"`
	FailedActions   []string                `json:"failedActions,omitempty"`
}
