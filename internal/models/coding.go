// internal/models/coding.go
package models

import (
	"fmt"
	"time"
)

// DefaultTimezone is where number coding is enforced.
const DefaultTimezone = "Asia/Manila"

var manilaFallback = time.FixedZone("PHT", 8*60*60)

// CodingHours is an inclusive "HH:MM" window in the rule's timezone.
type CodingHours struct {
	Start string `json:"start"`
	End   string `json:"end"`
}

// Minutes returns the window bounds as minutes after midnight.
func (h CodingHours) Minutes() (start, end int, err error) {
	if start, err = parseClock(h.Start); err != nil {
		return 0, 0, fmt.Errorf("start: %w", err)
	}
	if end, err = parseClock(h.End); err != nil {
		return 0, 0, fmt.Errorf("end: %w", err)
	}
	return start, end, nil
}

func parseClock(s string) (int, error) {
	t, err := time.Parse("15:04", s)
	if err != nil {
		return 0, fmt.Errorf("invalid clock %q", s)
	}
	return t.Hour()*60 + t.Minute(), nil
}

// CodingRule is a number-coding scheme for one area. Banned digits are derived from
// DigitSchedule and the date, never stored per day.
type CodingRule struct {
	ID                  string                 `json:"id"`
	RegionID            string                 `json:"regionId"`
	Name                string                 `json:"name,omitempty"`
	CodingHours         CodingHours            `json:"codingHours"`
	CodingDays          []time.Weekday         `json:"codingDays"`
	DigitSchedule       map[time.Weekday][]int `json:"digitSchedule,omitempty"`
	CoverageArea        Polygon                `json:"coverageArea"`
	ExemptedAreas       []Polygon              `json:"exemptedAreas,omitempty"`
	HolidayExemptions   []string               `json:"holidayExemptions,omitempty"` // YYYY-MM-DD
	FirstOffenseFine    float64                `json:"firstOffenseFine"`
	RepeatOffenseFine   float64                `json:"repeatOffenseFine"`
	ExemptPlatePatterns []string               `json:"exemptPlatePatterns,omitempty"`
	Timezone            string                 `json:"timezone,omitempty"`
}

// Location resolves Timezone, falling back to a fixed UTC+8 zone when tzdata is missing.
func (r CodingRule) Location() *time.Location {
	name := r.Timezone
	if name == "" {
		name = DefaultTimezone
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return manilaFallback
	}
	return loc
}

// DefaultDigitSchedule is the MMDA Unified Vehicular Volume Reduction Program rotation.
func DefaultDigitSchedule() map[time.Weekday][]int {
	return map[time.Weekday][]int{
		time.Monday:    {1, 2},
		time.Tuesday:   {3, 4},
		time.Wednesday: {5, 6},
		time.Thursday:  {7, 8},
		time.Friday:    {9, 0},
	}
}

type ExemptionStatus string

const (
	ExemptionPending  ExemptionStatus = "pending"
	ExemptionApproved ExemptionStatus = "approved"
	ExemptionDenied   ExemptionStatus = "denied"
	ExemptionExpired  ExemptionStatus = "expired"
)

type ExemptionRequest struct {
	ID            string          `json:"id"`
	VehicleID     string          `json:"vehicleId"`
	DriverID      string          `json:"driverId,omitempty"`
	ExemptionType string          `json:"exemptionType"`
	PeriodStart   time.Time       `json:"periodStart"`
	PeriodEnd     time.Time       `json:"periodEnd"`
	Status        ExemptionStatus `json:"status"`
	UsageCount    int             `json:"usageCount"`
}

// Covers reports whether the request is approved and its inclusive period contains now.
func (e ExemptionRequest) Covers(now time.Time) bool {
	return e.Status == ExemptionApproved && !now.Before(e.PeriodStart) && !now.After(e.PeriodEnd)
}

// AppliesTo reports whether the request was issued for the vehicle or the driver.
func (e ExemptionRequest) AppliesTo(vehicleID, driverID string) bool {
	if e.VehicleID != "" && e.VehicleID == vehicleID {
		return true
	}
	return driverID != "" && e.DriverID == driverID
}
