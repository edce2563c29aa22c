// internal/workers/compliance/evaluate-state/models.go
package evaluatestate

import "fleet-compliance/internal/models"

type Input struct {
	Record models.ComplianceRecord `json:"record"`
	Now    string                  `json:"now,omitempty"` // RFC3339, defaults to the current time
}

type Output struct {
	EntityID        string                  `json:"entityId"`
	Domain          models.Domain           `json:"domain"`
	Status          models.ComplianceStatus `json:"status"`
	DaysUntilExpiry int                     `json:"daysUntilExpiry"`
	Critical        bool                    `json:"critical"`
}

// Assessment is the evaluated state of one record at one instant.
type Assessment struct {
	Status          models.ComplianceStatus `json:"status"`
	DaysUntilExpiry int                     `json:"daysUntilExpiry"`
	Critical        bool                    `json:"critical"`
}
