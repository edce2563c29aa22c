// internal/workers/compliance/check-compliance/models.go
package checkcompliance

import (
	"time"

	"fleet-compliance/internal/models"
)

type CheckRequest struct {
	EntityID     string          `json:"entityId"`
	Domains      []models.Domain `json:"domains,omitempty"`
	ForceRefresh bool            `json:"forceRefresh,omitempty"`
}

type CheckResponse struct {
	EntityID        string                         `json:"entityId"`
	OverallStatus   models.ComplianceStatus        `json:"overallStatus"`
	StatusByDomain  map[models.Domain]DomainStatus `json:"statusByDomain"`
	ActiveAlerts    []models.Alert                 `json:"activeAlerts"`
	Recommendations []string                       `json:"recommendations"`
	LastChecked     time.Time                      `json:"lastChecked"`
}

// DomainStatus is the evaluated state of one domain. Unverified is set when the agency
// could not confirm the locally computed status.
type DomainStatus struct {
	Status            models.ComplianceStatus `json:"status"`
	LocalStatus       models.ComplianceStatus `json:"localStatus"`
	DaysUntilExpiry   int                     `json:"daysUntilExpiry"`
	ExpiryDate        time.Time               `json:"expiryDate"`
	ReferenceNumber   string                  `json:"referenceNumber,omitempty"`
	Verified          bool                    `json:"verified"`
	Unverified        bool                    `json:"unverified"`
	VerificationError string                  `json:"verificationError,omitempty"`
	Agency            models.Agency           `json:"agency,omitempty"`
	AgencyExpiryDate  *time.Time              `json:"agencyExpiryDate,omitempty"`
	LastFiredLevel    int                     `json:"lastFiredLevel"`
}

// SyncResult is the per-item outcome of SyncAll.
type SyncResult struct {
	EntityID  string                  `json:"entityId"`
	Domain    models.Domain           `json:"domain"`
	Verified  bool                    `json:"verified"`
	Valid     bool                    `json:"valid"`
	Status    models.ComplianceStatus `json:"status,omitempty"`
	Skipped   bool                    `json:"skipped,omitempty"`
	Error     string                  `json:"error,omitempty"`
	ErrorCode string                  `json:"errorCode,omitempty"`
}

type Input struct {
	CheckRequest
	Now string `json:"now,omitempty"`
}

type Output = CheckResponse

// Record lifecycle operations handled by RecordHandler.
type Operation string

const (
	OperationOnboard   Operation = "onboard"
	OperationRenew     Operation = "renew"
	OperationSuspend   Operation = "suspend"
	OperationReinstate Operation = "reinstate"
	OperationSync      Operation = "sync"
)

type RecordInput struct {
	Operation       Operation                `json:"operation"`
	Record          *models.ComplianceRecord `json:"record,omitempty"`
	EntityID        string                   `json:"entityId,omitempty"`
	Domain          models.Domain            `json:"domain,omitempty"`
	ExpiryDate      string                   `json:"expiryDate,omitempty"` // RFC3339
	ReferenceNumber string                   `json:"referenceNumber,omitempty"`
	Reason          string                   `json:"reason,omitempty"`
	Refs            []models.EntityRef       `json:"refs,omitempty"`
}

type RecordOutput struct {
	Record  *models.ComplianceRecord `json:"record,omitempty"`
	Results []SyncResult             `json:"results,omitempty"`
}
