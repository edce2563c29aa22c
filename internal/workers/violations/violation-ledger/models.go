// internal/workers/violations/violation-ledger/models.go
package violationledger

import "fleet-compliance/internal/models"

type Operation string

const (
	OpRecord      Operation = "record"
	OpPay         Operation = "pay"
	OpContest     Operation = "contest"
	OpReview      Operation = "review"
	OpMarkOverdue Operation = "mark_overdue"
)

type Input struct {
	Operation   Operation             `json:"operation"`
	Violation   *models.Violation     `json:"violation,omitempty"`
	ViolationID string                `json:"violationId,omitempty"`
	Reason      string                `json:"reason,omitempty"`
	Decision    models.ReviewDecision `json:"decision,omitempty"`
	ReducedFine float64               `json:"reducedFine,omitempty"`
	Now         string                `json:"now,omitempty"`
}

type Output struct {
	Violation *models.Violation `json:"violation,omitempty"`
	Updated   int               `json:"updated"`
}
