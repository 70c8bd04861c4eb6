// Package metrics provides Prometheus metrics for lead import and
// distribution.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry is the custom prometheus registry for leaddesk.
var Registry = prometheus.NewRegistry()

var factory = promauto.With(Registry)

func init() {
	Registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
}

// LeadsImportedTotal counts leads created by batch imports.
var LeadsImportedTotal = factory.NewCounter(prometheus.CounterOpts{
	Namespace: "leaddesk",
	Name:      "leads_imported_total",
	Help:      "Total number of leads created by batch imports",
})

// LeadsAssignedTotal counts leads stamped with an owner, by planner mode.
var LeadsAssignedTotal = factory.NewCounterVec(prometheus.CounterOpts{
	Namespace: "leaddesk",
	Name:      "leads_assigned_total",
	Help:      "Total number of leads assigned, partitioned by allocation mode",
}, []string{"mode"})

// AssignmentFailuresTotal counts rejected or failed batch assignments.
// kind is one of invalid_request, over_assignment, ineligible_target,
// short_batch, persistence, conflict.
var AssignmentFailuresTotal = factory.NewCounterVec(prometheus.CounterOpts{
	Namespace: "leaddesk",
	Name:      "assignment_failures_total",
	Help:      "Total number of batch assignments that failed, by failure kind",
}, []string{"kind"})

// AssignmentLeftover records the leads left unassigned by the last batch
// assignment.
var AssignmentLeftover = factory.NewGauge(prometheus.GaugeOpts{
	Namespace: "leaddesk",
	Name:      "assignment_leftover",
	Help:      "Leads left unassigned by the most recent batch assignment",
})

// AssignmentDurationSeconds tracks end-to-end batch assignment latency.
var AssignmentDurationSeconds = factory.NewHistogram(prometheus.HistogramOpts{
	Namespace: "leaddesk",
	Name:      "assignment_duration_seconds",
	Help:      "Time taken to plan and persist a batch assignment",
	Buckets:   prometheus.DefBuckets,
})

// CallbacksDue is the number of pending callbacks past their due time at
// the last reminder sweep.
var CallbacksDue = factory.NewGauge(prometheus.GaugeOpts{
	Namespace: "leaddesk",
	Name:      "callbacks_due",
	Help:      "Pending callbacks past their due time",
})

// CallbackRemindersTotal counts reminders raised for due callbacks.
var CallbackRemindersTotal = factory.NewCounter(prometheus.CounterOpts{
	Namespace: "leaddesk",
	Name:      "callback_reminders_total",
	Help:      "Total number of due-callback reminders raised",
})

// Handler serves the registry in the Prometheus text format.
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}
