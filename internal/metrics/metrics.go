package metrics

import (
	"net/http"

	"github.com/edubounty/edubounty/internal/lib"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "edubounty"

// Metrics holds the collectors of one process. Each instance owns its registry,
// so tests can create as many as they need.
type Metrics struct {
	registry *prometheus.Registry

	transactions   *prometheus.CounterVec
	transitions    *prometheus.CounterVec
	sessionChanges *prometheus.CounterVec
	chainSyncs     *prometheus.CounterVec
	tasks          *prometheus.GaugeVec
}

func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		transactions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "contract_actions_total",
			Help:      "On-chain actions by method and outcome kind",
		}, []string{"method", "result"}),
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "board_transitions_total",
			Help:      "Local task board actions by outcome",
		}, []string{"action", "result"}),
		sessionChanges: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "session_changes_total",
			Help:      "Wallet session changes by kind",
		}, []string{"kind"}),
		chainSyncs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "chain_syncs_total",
			Help:      "Chain task board resyncs by outcome",
		}, []string{"result"}),
		tasks: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "tasks",
			Help:      "Tasks per board and status",
		}, []string{"board", "status"}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.transactions,
		m.transitions,
		m.sessionChanges,
		m.chainSyncs,
		m.tasks,
	)
	return m
}

// ObserveContractAction counts an on-chain action, the result label is the error kind or "ok"
func (m *Metrics) ObserveContractAction(method string, err error) {
	m.transactions.WithLabelValues(method, resultLabel(err)).Inc()
}

func (m *Metrics) ObserveTransition(action string, err error) {
	m.transitions.WithLabelValues(action, resultLabel(err)).Inc()
}

func (m *Metrics) ObserveSessionChange(kind string) {
	m.sessionChanges.WithLabelValues(kind).Inc()
}

func (m *Metrics) ObserveChainSync(err error) {
	m.chainSyncs.WithLabelValues(resultLabel(err)).Inc()
}

// SetTaskCounts replaces the gauge values of board with counts keyed by status
func (m *Metrics) SetTaskCounts(board string, counts map[string]int) {
	m.tasks.DeletePartialMatch(prometheus.Labels{"board": board})
	for status, n := range counts {
		m.tasks.WithLabelValues(board, status).Set(float64(n))
	}
}

func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

func resultLabel(err error) string {
	if err == nil {
		return "ok"
	}
	if kind := lib.ErrorKind(err); kind != "" {
		return kind
	}
	return "error"
}
