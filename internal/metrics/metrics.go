// Package metrics exposes prometheus counters for the client pipelines and
// the development backend.
package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
)

// Pipeline labels.
const (
	Suggestions = "suggestions"
	OpenRequest = "open_requests"
	ActiveList  = "active_list"
)

// Pipelines counts lookups issued by the debounce and synchronizer
// pipelines. A nil *Pipelines is valid and records nothing.
type Pipelines struct {
	Lookups  *prometheus.CounterVec
	Stale    *prometheus.CounterVec
	Failures *prometheus.CounterVec
}

// NewPipelines registers the counters on reg (nil -> unregistered).
func NewPipelines(reg prometheus.Registerer) *Pipelines {
	p := &Pipelines{
		Lookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "nexd_lookups_total",
			Help: "Collaborator lookups issued, by pipeline.",
		}, []string{"pipeline"}),
		Stale: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "nexd_stale_results_total",
			Help: "Lookup results dropped because a newer input superseded them.",
		}, []string{"pipeline"}),
		Failures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "nexd_lookup_failures_total",
			Help: "Lookups that failed and were downgraded to no data.",
		}, []string{"pipeline"}),
	}
	if reg != nil {
		reg.MustRegister(p.Lookups, p.Stale, p.Failures)
	}
	return p
}

func (p *Pipelines) Lookup(pipeline string) {
	if p != nil {
		p.Lookups.WithLabelValues(pipeline).Inc()
	}
}

func (p *Pipelines) Dropped(pipeline string) {
	if p != nil {
		p.Stale.WithLabelValues(pipeline).Inc()
	}
}

func (p *Pipelines) Failed(pipeline string) {
	if p != nil {
		p.Failures.WithLabelValues(pipeline).Inc()
	}
}

// Devserver counts requests served by the development backend.
type Devserver struct {
	Requests *prometheus.CounterVec
}

func NewDevserver(reg prometheus.Registerer) *Devserver {
	d := &Devserver{
		Requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "nexd_devserver_requests_total",
			Help: "Requests served by the development backend, by route and status code.",
		}, []string{"route", "code"}),
	}
	if reg != nil {
		reg.MustRegister(d.Requests)
	}
	return d
}

func (d *Devserver) Served(route string, code int) {
	if d != nil {
		d.Requests.WithLabelValues(route, strconv.Itoa(code)).Inc()
	}
}
