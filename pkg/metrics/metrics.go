package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Mission metrics
	MissionsTotal = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "aegis_missions_total",
			Help: "Number of known missions by status",
		},
		[]string{"status"},
	)

	MissionsSubmitted = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "aegis_missions_submitted_total",
			Help: "Total number of missions accepted for execution",
		},
	)

	TasksTotal = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "aegis_tasks_total",
			Help: "Number of tasks by state across live missions",
		},
		[]string{"state"},
	)

	TaskRetries = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "aegis_task_retries_total",
			Help: "Total number of task retry re-enqueues",
		},
	)

	// Swarm metrics
	SlotsTotal = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "aegis_slots_total",
			Help: "Number of worker slots by status",
		},
		[]string{"status"},
	)

	AgentsActive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "aegis_agents_active",
			Help: "Number of agents currently occupying slots",
		},
	)

	TasksCompleted = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "aegis_slot_tasks_completed_total",
			Help: "Total tasks completed across all slots",
		},
	)

	TasksFailed = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "aegis_slot_tasks_failed_total",
			Help: "Total tasks failed across all slots",
		},
	)

	TaskExecutionSeconds = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "aegis_task_execution_seconds",
			Help:    "Wall time of slot task executions in seconds",
			Buckets: prometheus.ExponentialBuckets(0.5, 2, 12),
		},
	)

	// Scheduling metrics
	SchedulingTickSeconds = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "aegis_scheduling_tick_seconds",
			Help:    "Duration of one mission scheduling tick in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	// Event bus metrics
	EventsPublished = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "aegis_events_published_total",
			Help: "Total events published to the bus by type",
		},
		[]string{"type"},
	)

	EventsDropped = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "aegis_events_dropped_total",
			Help: "Total subscribers disconnected for falling behind",
		},
	)

	EventSubscribers = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "aegis_event_subscribers",
			Help: "Number of live event subscribers",
		},
	)

	// Workspace metrics
	WorkspacesTotal = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "aegis_workspaces_total",
			Help: "Number of registered workspaces",
		},
	)

	WorkspacesEvicted = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "aegis_workspaces_evicted_total",
			Help: "Total workspaces removed by the TTL sweep",
		},
	)

	// API metrics
	APIRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "aegis_api_requests_total",
			Help: "Total API requests by route and status",
		},
		[]string{"route", "status"},
	)
)

func init() {
	prometheus.MustRegister(MissionsTotal)
	prometheus.MustRegister(MissionsSubmitted)
	prometheus.MustRegister(TasksTotal)
	prometheus.MustRegister(TaskRetries)
	prometheus.MustRegister(SlotsTotal)
	prometheus.MustRegister(AgentsActive)
	prometheus.MustRegister(TasksCompleted)
	prometheus.MustRegister(TasksFailed)
	prometheus.MustRegister(TaskExecutionSeconds)
	prometheus.MustRegister(SchedulingTickSeconds)
	prometheus.MustRegister(EventsPublished)
	prometheus.MustRegister(EventsDropped)
	prometheus.MustRegister(EventSubscribers)
	prometheus.MustRegister(WorkspacesTotal)
	prometheus.MustRegister(WorkspacesEvicted)
	prometheus.MustRegister(APIRequestsTotal)
}

// Handler returns the Prometheus HTTP handler
func Handler() http.Handler {
	return promhttp.Handler()
}
