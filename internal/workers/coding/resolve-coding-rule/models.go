// internal/workers/coding/resolve-coding-rule/models.go
package resolvecodingrule

import "fleet-compliance/internal/models"

type Input struct {
	RegionID string          `json:"regionId"`
	Location models.GeoPoint `json:"location"`
	Now      string          `json:"now,omitempty"`
}

type Output struct {
	Found        bool   `json:"found"`
	RuleID       string `json:"ruleId,omitempty"`
	InEffect     bool   `json:"inEffect"`
	BannedDigits []int  `json:"bannedDigits"`
}
