// internal/workers/coding/check-number-coding/models.go
package checknumbercoding

import (
	"time"

	"fleet-compliance/internal/models"
)

type CheckRequest struct {
	VehicleID   string          `json:"vehicleId"`
	PlateNumber string          `json:"plateNumber"`
	Location    models.GeoPoint `json:"location"`
	RegionID    string          `json:"regionId"`
	DriverID    string          `json:"driverId,omitempty"`
}

type CheckResponse struct {
	HasViolation     bool              `json:"hasViolation"`
	ViolationDetails *ViolationDetails `json:"violationDetails,omitempty"`
	Warnings         []string          `json:"warnings"`
	CanProceed       bool              `json:"canProceed"`
	Exemption        string            `json:"exemption,omitempty"`
}

type ViolationDetails struct {
	ViolationID     string    `json:"violationId"`
	CodingRuleID    string    `json:"codingRuleId"`
	PlateNumber     string    `json:"plateNumber"`
	LastDigit       int       `json:"lastDigit"`
	BannedDigits    []int     `json:"bannedDigits"`
	FineAmount      float64   `json:"fineAmount"`
	RepeatOffense   bool      `json:"repeatOffense"`
	ViolationDate   time.Time `json:"violationDate"`
	DueDate         time.Time `json:"dueDate"`
	AlreadyRecorded bool      `json:"alreadyRecorded,omitempty"`
}

// Exemption reasons reported when a banned plate may still proceed.
const (
	ExemptApprovedRequest = "approved_exemption"
	ExemptPlatePattern    = "exempt_plate"
	ExemptHoliday         = "holiday"
)

type Input struct {
	CheckRequest
	Now string `json:"now,omitempty"`
}

type Output = CheckResponse
