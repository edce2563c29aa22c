// internal/models/violation.go
package models

import "time"

type ViolationStatus string

const (
	ViolationPending   ViolationStatus = "pending"
	ViolationPaid      ViolationStatus = "paid"
	ViolationContested ViolationStatus = "contested"
	ViolationDismissed ViolationStatus = "dismissed"
	ViolationOverdue   ViolationStatus = "overdue"
)

// violationTransitions is the allowed lifecycle graph. paid and dismissed are terminal.
var violationTransitions = map[ViolationStatus][]ViolationStatus{
	ViolationPending:   {ViolationPaid, ViolationContested, ViolationOverdue},
	ViolationContested: {ViolationPending, ViolationDismissed},
	ViolationOverdue:   {ViolationPaid},
}

func (s ViolationStatus) IsTerminal() bool {
	return s == ViolationPaid || s == ViolationDismissed
}

func (s ViolationStatus) CanTransitionTo(to ViolationStatus) bool {
	for _, allowed := range violationTransitions[s] {
		if allowed == to {
			return true
		}
	}
	return false
}

type ReviewDecision string

const (
	DecisionUpheld    ReviewDecision = "upheld"
	DecisionDismissed ReviewDecision = "dismissed"
	DecisionReduced   ReviewDecision = "reduced"
)

type StatusChange struct {
	From ViolationStatus `json:"from"`
	To   ViolationStatus `json:"to"`
	At   time.Time       `json:"at"`
	Note string          `json:"note,omitempty"`
}

// CodingDetails carries the number-coding specifics of a violation.
type CodingDetails struct {
	VehicleID    string   `json:"vehicleId"`
	PlateNumber  string   `json:"plateNumber"`
	LastDigit    int      `json:"lastDigit"`
	Location     GeoPoint `json:"location"`
	CodingRuleID string   `json:"codingRuleId"`
	RegionID     string   `json:"regionId"`
	DriverID     string   `json:"driverId,omitempty"`
}

type Violation struct {
	ID             string          `json:"id"`
	EntityID       string          `json:"entityId"`
	Domain         Domain          `json:"domain"`
	ViolationType  string          `json:"violationType"`
	FineAmount     float64         `json:"fineAmount"`
	PenaltyPoints  int             `json:"penaltyPoints"`
	Status         ViolationStatus `json:"status"`
	ViolationDate  time.Time       `json:"violationDate"`
	DueDate        time.Time       `json:"dueDate"`
	ContestReason  string          `json:"contestReason,omitempty"`
	ReviewDecision ReviewDecision  `json:"reviewDecision,omitempty"`
	History        []StatusChange  `json:"history,omitempty"`
	Coding         *CodingDetails  `json:"coding,omitempty"`
	CreatedAt      time.Time       `json:"createdAt"`
}

// DedupKey is non-empty for violations that may only be recorded once per day,
// currently number-coding: one per vehicle, rule and local calendar day.
func (v Violation) DedupKey() string {
	if v.Coding == nil {
		return ""
	}
	return v.Coding.VehicleID + "|" + v.Coding.CodingRuleID + "|" + v.ViolationDate.Format("2006-01-02")
}

func (v Violation) Clone() Violation {
	if v.History != nil {
		v.History = append([]StatusChange(nil), v.History...)
	}
	if v.Coding != nil {
		c := *v.Coding
		v.Coding = &c
	}
	return v
}
