// internal/models/compliance.go
package models

import "time"

type EntityType string

const (
	EntityVehicle EntityType = "vehicle"
	EntityDriver  EntityType = "driver"
)

// Domain is a regulatory domain. number_coding only appears on violations.
type Domain string

const (
	DomainFranchise     Domain = "franchise"     // LTFRB TNVS franchise
	DomainRegistration  Domain = "registration"  // LTO OR/CR and licence
	DomainInsurance     Domain = "insurance"     // CTPL / comprehensive
	DomainEnvironmental Domain = "environmental" // emission testing
	DomainNumberCoding  Domain = "number_coding"
)

// ComplianceDomains lists the domains that carry a ComplianceRecord.
var ComplianceDomains = []Domain{
	DomainFranchise,
	DomainRegistration,
	DomainInsurance,
	DomainEnvironmental,
}

func (d Domain) IsCompliance() bool {
	for _, c := range ComplianceDomains {
		if c == d {
			return true
		}
	}
	return false
}

type ComplianceStatus string

const (
	StatusCompliant    ComplianceStatus = "compliant"
	StatusExpiringSoon ComplianceStatus = "expiring_soon"
	StatusExpired      ComplianceStatus = "expired"
	StatusSuspended    ComplianceStatus = "suspended"
)

// severityRank orders statuses from best to worst.
var severityRank = map[ComplianceStatus]int{
	StatusCompliant:    0,
	StatusExpiringSoon: 1,
	StatusExpired:      2,
	StatusSuspended:    3,
}

// Worse returns whichever of a and b is the more severe status.
func Worse(a, b ComplianceStatus) ComplianceStatus {
	if severityRank[b] > severityRank[a] {
		return b
	}
	return a
}

// RecordKey identifies a ComplianceRecord.
type RecordKey struct {
	EntityID string `json:"entityId"`
	Domain   Domain `json:"domain"`
}

// ComplianceRecord is the compliance state of one entity in one domain.
// ExpiryDate changes only through renewal, which also clears LastFiredEscalationLevel.
type ComplianceRecord struct {
	EntityID                 string           `json:"entityId"`
	EntityType               EntityType       `json:"entityType"`
	Domain                   Domain           `json:"domain"`
	ReferenceNumber          string           `json:"referenceNumber,omitempty"`
	IssuedDate               time.Time        `json:"issuedDate"`
	ExpiryDate               time.Time        `json:"expiryDate"`
	Status                   ComplianceStatus `json:"status"`
	LastFiredEscalationLevel *int             `json:"lastFiredEscalationLevel"`
	Suspended                bool             `json:"suspended"`
	SuspensionReason         string           `json:"suspensionReason,omitempty"`
	Region                   string           `json:"region,omitempty"`
	OwnershipType            string           `json:"ownershipType,omitempty"`
	ServiceType              string           `json:"serviceType,omitempty"`
	Version                  int64            `json:"version"`
	UpdatedAt                time.Time        `json:"updatedAt"`
}

func (r ComplianceRecord) Key() RecordKey {
	return RecordKey{EntityID: r.EntityID, Domain: r.Domain}
}

// LastFired returns the last fired escalation level, 0 when unset.
func (r ComplianceRecord) LastFired() int {
	if r.LastFiredEscalationLevel == nil {
		return 0
	}
	return *r.LastFiredEscalationLevel
}

// Clone returns a deep copy safe to mutate.
func (r ComplianceRecord) Clone() ComplianceRecord {
	if r.LastFiredEscalationLevel != nil {
		lvl := *r.LastFiredEscalationLevel
		r.LastFiredEscalationLevel = &lvl
	}
	return r
}

// IntPtr is a small helper for optional levels.
func IntPtr(v int) *int {
	return &v
}
