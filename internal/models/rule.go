// internal/models/rule.go
package models

import (
	"fmt"
	"sort"
	"time"
)

type TriggerCondition string

const (
	TriggerDaysBeforeExpiry TriggerCondition = "days_before_expiry"
	TriggerPostExpiry       TriggerCondition = "post_expiry"
	TriggerStatusChange     TriggerCondition = "status_change"
)

type CheckFrequency string

const (
	FrequencyDaily     CheckFrequency = "daily"
	FrequencyWeekly    CheckFrequency = "weekly"
	FrequencyMonthly   CheckFrequency = "monthly"
	FrequencyQuarterly CheckFrequency = "quarterly"
)

// Advance returns t moved forward by one period of f.
func (f CheckFrequency) Advance(t time.Time) time.Time {
	switch f {
	case FrequencyWeekly:
		return t.AddDate(0, 0, 7)
	case FrequencyMonthly:
		return t.AddDate(0, 1, 0)
	case FrequencyQuarterly:
		return t.AddDate(0, 3, 0)
	default:
		return t.AddDate(0, 0, 1)
	}
}

func (f CheckFrequency) Valid() bool {
	switch f {
	case FrequencyDaily, FrequencyWeekly, FrequencyMonthly, FrequencyQuarterly:
		return true
	}
	return false
}

// NextRunAfter advances from by f until the result is strictly after now.
// A zero from schedules one period after now.
func NextRunAfter(f CheckFrequency, from, now time.Time) time.Time {
	if from.IsZero() {
		return f.Advance(now)
	}
	next := from
	for !next.After(now) {
		next = f.Advance(next)
	}
	return next
}

// Applicability filters the records a rule applies to. An empty list matches anything.
type Applicability struct {
	Regions        []string `json:"regions,omitempty"`
	OwnershipTypes []string `json:"ownershipTypes,omitempty"`
	ServiceTypes   []string `json:"serviceTypes,omitempty"`
}

func (a Applicability) Matches(r ComplianceRecord) bool {
	return matchAny(a.Regions, r.Region) &&
		matchAny(a.OwnershipTypes, r.OwnershipType) &&
		matchAny(a.ServiceTypes, r.ServiceType)
}

func matchAny(allowed []string, v string) bool {
	if len(allowed) == 0 {
		return true
	}
	for _, a := range allowed {
		if a == v {
			return true
		}
	}
	return false
}

// EscalationLevel is fired once per expiry cycle when DaysFromExpiry is reached.
// Negative DaysFromExpiry means after expiry.
type EscalationLevel struct {
	Level          int             `json:"level"`
	DaysFromExpiry int             `json:"daysFromExpiry"`
	Actions        []Action        `json:"actions"`
	Recipients     []RecipientRole `json:"recipients,omitempty"`
}

type MonitoringRule struct {
	ID               string            `json:"id"`
	Name             string            `json:"name,omitempty"`
	Domain           Domain            `json:"domain"`
	TriggerCondition TriggerCondition  `json:"triggerCondition"`
	CheckFrequency   CheckFrequency    `json:"checkFrequency"`
	EscalationLevels []EscalationLevel `json:"escalationLevels"`
	Applicability    Applicability     `json:"applicability"`
	Enabled          bool              `json:"enabled"`
	NextRunAt        time.Time         `json:"nextRunAt"`
	LastRunAt        *time.Time        `json:"lastRunAt,omitempty"`
}

// SortLevels orders levels by DaysFromExpiry descending, earliest warning first.
func (r *MonitoringRule) SortLevels() {
	sort.SliceStable(r.EscalationLevels, func(i, j int) bool {
		return r.EscalationLevels[i].DaysFromExpiry > r.EscalationLevels[j].DaysFromExpiry
	})
}

// Validate checks structural invariants. Levels must already be sorted.
func (r MonitoringRule) Validate() error {
	if r.ID == "" {
		return fmt.Errorf("id is required")
	}
	if !r.Domain.IsCompliance() {
		return fmt.Errorf("unknown domain %q", r.Domain)
	}
	switch r.TriggerCondition {
	case TriggerDaysBeforeExpiry, TriggerPostExpiry, TriggerStatusChange:
	default:
		return fmt.Errorf("unknown trigger condition %q", r.TriggerCondition)
	}
	if !r.CheckFrequency.Valid() {
		return fmt.Errorf("unknown check frequency %q", r.CheckFrequency)
	}
	if len(r.EscalationLevels) == 0 {
		return fmt.Errorf("at least one escalation level is required")
	}
	for i, lvl := range r.EscalationLevels {
		if lvl.Level < 1 {
			return fmt.Errorf("level %d: level number must be >= 1", i)
		}
		if i > 0 {
			prev := r.EscalationLevels[i-1]
			if lvl.DaysFromExpiry >= prev.DaysFromExpiry {
				return fmt.Errorf("level %d: daysFromExpiry must be strictly descending", lvl.Level)
			}
			if lvl.Level <= prev.Level {
				return fmt.Errorf("level %d: level numbers must increase with severity", lvl.Level)
			}
		}
		for j, a := range lvl.Actions {
			if err := a.Validate(); err != nil {
				return fmt.Errorf("level %d action %d: %w", lvl.Level, j, err)
			}
		}
	}
	return nil
}

// LevelFor returns the most severe level already crossed at daysUntilExpiry:
// the one with the lowest DaysFromExpiry that is still >= daysUntilExpiry.
func (r MonitoringRule) LevelFor(daysUntilExpiry int) *EscalationLevel {
	var crossed *EscalationLevel
	for i := range r.EscalationLevels {
		if r.EscalationLevels[i].DaysFromExpiry >= daysUntilExpiry {
			crossed = &r.EscalationLevels[i]
		}
	}
	return crossed
}

// IsDue reports whether the rule should run at now.
func (r MonitoringRule) IsDue(now time.Time) bool {
	return r.Enabled && !now.Before(r.NextRunAt)
}
