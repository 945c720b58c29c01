// Package metrics registers the Prometheus collectors shared by the lumi and mailer binaries.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Status label values.
const (
	StatusOK    = "ok"
	StatusError = "error"
)

var (
	// ToolCalls counts MCP tool invocations by tool and status.
	ToolCalls = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "lumi",
		Name:      "tool_calls_total",
		Help:      "MCP tool invocations by tool and outcome.",
	}, []string{"tool", "status"})

	// LLMRequests counts model calls by kind (text or structured) and status.
	LLMRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "lumi",
		Name:      "llm_requests_total",
		Help:      "Generative model requests by kind and outcome.",
	}, []string{"kind", "status"})

	// SideEffectFailures counts best-effort operations that failed without failing their caller.
	SideEffectFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "lumi",
		Name:      "side_effect_failures_total",
		Help:      "Auxiliary operations that failed and were swallowed.",
	}, []string{"name"})

	// XPAwarded sums the XP credited to users.
	XPAwarded = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "lumi",
		Name:      "xp_awarded_total",
		Help:      "Total XP credited to users.",
	})

	// EmailsSent counts transactional emails by template and status.
	EmailsSent = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "lumi",
		Name:      "emails_sent_total",
		Help:      "Transactional emails by template and outcome.",
	}, []string{"template", "status"})
)

// Status maps an error to a status label.
func Status(err error) string {
	if err != nil {
		return StatusError
	}
	return StatusOK
}

// Handler exposes the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}
