// internal/models/verification.go
package models

import "time"

type Agency string

const (
	AgencyLTFRB Agency = "ltfrb"
	AgencyLTO   Agency = "lto"
	AgencyIC    Agency = "ic"   // Insurance Commission
	AgencyDENR  Agency = "denr" // emission testing
)

// AgencyFor maps a compliance domain to the agency that verifies it.
func AgencyFor(d Domain) (Agency, bool) {
	switch d {
	case DomainFranchise:
		return AgencyLTFRB, true
	case DomainRegistration:
		return AgencyLTO, true
	case DomainInsurance:
		return AgencyIC, true
	case DomainEnvironmental:
		return AgencyDENR, true
	}
	return "", false
}

type HealthStatus string

const (
	HealthOperational HealthStatus = "operational"
	HealthDegraded    HealthStatus = "degraded"
	HealthDown        HealthStatus = "down"
)

// EntityRef names a record to verify with its agency.
type EntityRef struct {
	EntityID        string `json:"entityId"`
	Domain          Domain `json:"domain"`
	ReferenceNumber string `json:"referenceNumber,omitempty"`
}

type VerificationResult struct {
	EntityID   string           `json:"entityId"`
	Domain     Domain           `json:"domain"`
	Agency     Agency           `json:"agency"`
	Valid      bool             `json:"valid"`
	Status     ComplianceStatus `json:"status,omitempty"`
	ExpiryDate *time.Time       `json:"expiryDate,omitempty"`
	CheckedAt  time.Time        `json:"checkedAt"`
	Cached     bool             `json:"cached,omitempty"`
}
