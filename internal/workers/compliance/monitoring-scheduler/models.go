// internal/workers/compliance/monitoring-scheduler/models.go
package monitoringscheduler

import "time"

type Input struct {
	Now string `json:"now,omitempty"`
}

type Output struct {
	Due  int          `json:"due"`
	Runs []RuleResult `json:"runs"`
}

// RuleResult is the outcome of one rule within a tick.
type RuleResult struct {
	RuleID    string    `json:"ruleId"`
	Fired     int       `json:"fired"`
	Skipped   bool      `json:"skipped,omitempty"` // lease held elsewhere
	Advanced  bool      `json:"advanced"`
	NextRunAt time.Time `json:"nextRunAt,omitempty"`
	Error     string    `json:"error,omitempty"`
}

// TickResult summarises one scheduler tick.
type TickResult struct {
	At   time.Time    `json:"at"`
	Due  int          `json:"due"`
	Runs []RuleResult `json:"runs"`
}

// Failed counts the rules whose run reported an error.
func (r TickResult) Failed() int {
	n := 0
	for _, run := range r.Runs {
		if run.Error != "" {
			n++
		}
	}
	return n
}
