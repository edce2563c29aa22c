// internal/workers/compliance/monitoring-rules/models.go
package monitoringrules

import (
	"encoding/json"
	"time"

	"fleet-compliance/internal/models"
)

// Input registers or replaces one rule descriptor.
type Input struct {
	Rule json.RawMessage `json:"rule"`
}

type Output struct {
	RuleID    string        `json:"ruleId"`
	Domain    models.Domain `json:"domain"`
	Levels    int           `json:"levels"`
	NextRunAt string        `json:"nextRunAt"` // ISO 8601
}

// descriptor mirrors the external rule document. Enabled is a pointer so an
// omitted flag can default to true.
type descriptor struct {
	ID               string                   `json:"id"`
	Name             string                   `json:"name"`
	Domain           models.Domain            `json:"domain"`
	TriggerCondition models.TriggerCondition  `json:"triggerCondition"`
	CheckFrequency   models.CheckFrequency    `json:"checkFrequency"`
	EscalationLevels []models.EscalationLevel `json:"escalationLevels"`
	Applicability    models.Applicability     `json:"applicability"`
	Enabled          *bool                    `json:"enabled"`
	NextRunAt        *time.Time               `json:"nextRunAt"`
}
