package ops

import "github.com/prometheus/client_golang/prometheus"

// Metrics holds the process counters exposed on the ops listener.
type Metrics struct {
	// RemoteRequests counts CRM calls by endpoint and outcome
	// (ok, remote_error, unauthorized, transport_error).
	RemoteRequests *prometheus.CounterVec
	// Reauths counts re-authentications triggered by expired sessions.
	Reauths prometheus.Counter
	// Approvals counts approval submissions accepted by the CRM.
	Approvals prometheus.Counter
}

// NewMetrics creates and registers the counters on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		RemoteRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "crm_remote_requests_total",
			Help: "CRM requests by endpoint and outcome.",
		}, []string{"endpoint", "outcome"}),
		Reauths: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "crm_reauthentications_total",
			Help: "Re-authentications performed after session expiry.",
		}),
		Approvals: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "crm_approvals_submitted_total",
			Help: "Order approvals accepted by the CRM.",
		}),
	}
	reg.MustRegister(m.RemoteRequests, m.Reauths, m.Approvals)
	return m
}
