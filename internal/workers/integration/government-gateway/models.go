// internal/workers/integration/government-gateway/models.go
package governmentgateway

import "fleet-compliance/internal/models"

type Input struct {
	EntityID        string        `json:"entityId"`
	Domain          models.Domain `json:"domain"`
	ReferenceNumber string        `json:"referenceNumber,omitempty"`
}

// Output always completes the job; Verified is false when the agency could not answer.
type Output struct {
	Verified  bool                    `json:"verified"`
	Valid     bool                    `json:"valid"`
	Status    models.ComplianceStatus `json:"status,omitempty"`
	Agency    models.Agency           `json:"agency"`
	Health    models.HealthStatus     `json:"health"`
	Cached    bool                    `json:"cached"`
	ErrorCode string                  `json:"errorCode,omitempty"`
}
