// Package metrics records credential lifecycle counters in Prometheus.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ericfisherdev/credvault/internal/domain/model"
	"github.com/ericfisherdev/credvault/internal/domain/port/driven"
)

// Compile-time interface satisfaction check.
var _ driven.CredentialMetrics = (*Prometheus)(nil)

// Prometheus implements driven.CredentialMetrics on a private registry so
// that multiple instances (one per test) never collide.
type Prometheus struct {
	registry *prometheus.Registry

	saves        *prometheus.CounterVec
	quarantined  *prometheus.CounterVec
	resolutions  *prometheus.CounterVec
	ephemeralKey prometheus.Gauge
}

// New creates and registers all credvault metrics plus the Go and process collectors.
func New() *Prometheus {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	return &Prometheus{
		registry: reg,
		saves: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "credvault_credential_saves_total",
				Help: "Total number of credentials created or replaced",
			},
			[]string{"provider"},
		),
		quarantined: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "credvault_credentials_quarantined_total",
				Help: "Total number of stored credentials purged because they failed decryption",
			},
			[]string{"provider"},
		),
		resolutions: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "credvault_resolutions_total",
				Help: "Total number of credential resolutions by outcome source",
			},
			[]string{"provider", "source"},
		),
		ephemeralKey: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "credvault_ephemeral_key",
				Help: "1 when the process runs with a generated encryption key that will not survive restart",
			},
		),
	}
}

// CredentialSaved counts a successful save.
func (p *Prometheus) CredentialSaved(provider model.Provider) {
	p.saves.WithLabelValues(string(provider)).Inc()
}

// CredentialQuarantined counts a purged corrupt record.
func (p *Prometheus) CredentialQuarantined(provider model.Provider) {
	p.quarantined.WithLabelValues(string(provider)).Inc()
}

// CredentialResolved counts a resolution by where the value came from.
func (p *Prometheus) CredentialResolved(provider model.Provider, source model.CredentialSource) {
	p.resolutions.WithLabelValues(string(provider), string(source)).Inc()
}

// SetEphemeralKey records whether the cipher is running on a generated key.
func (p *Prometheus) SetEphemeralKey(ephemeral bool) {
	if ephemeral {
		p.ephemeralKey.Set(1)
		return
	}
	p.ephemeralKey.Set(0)
}

// Handler serves the registry in the Prometheus exposition format.
func (p *Prometheus) Handler() http.Handler {
	return promhttp.HandlerFor(p.registry, promhttp.HandlerOpts{})
}
