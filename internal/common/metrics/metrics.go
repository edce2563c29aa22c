// internal/common/metrics/metrics.go
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	WorkerJobsCompleted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "worker_jobs_completed_total",
			Help: "Total number of jobs completed by worker",
		},
		[]string{"task_type"},
	)

	WorkerJobsFailed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "worker_jobs_failed_total",
			Help: "Total number of jobs failed by worker",
		},
		[]string{"task_type", "error_code"},
	)

	WorkerJobDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name: "worker_job_duration_seconds",
			Help: "Duration of job processing in seconds",
		},
		[]string{"task_type"},
	)

	RuleRuns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "compliance_rule_runs_total",
			Help: "Monitoring rule executions by domain and outcome",
		},
		[]string{"domain", "outcome"},
	)

	EscalationsFired = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "compliance_escalations_fired_total",
			Help: "Escalation levels fired by domain and level",
		},
		[]string{"domain", "level"},
	)

	ActionFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "compliance_action_failures_total",
			Help: "Escalation actions that failed to execute",
		},
		[]string{"kind"},
	)

	CodingChecks = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "coding_checks_total",
			Help: "Number-coding checks by result",
		},
		[]string{"result"},
	)

	ViolationsRecorded = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "violations_recorded_total",
			Help: "Violations written to the ledger by domain",
		},
		[]string{"domain"},
	)

	GatewayCalls = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gateway_calls_total",
			Help: "Government agency calls by agency and outcome",
		},
		[]string{"agency", "outcome"},
	)

	GatewayLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "gateway_call_duration_seconds",
			Help:    "Government agency call latency",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"agency"},
	)
)
