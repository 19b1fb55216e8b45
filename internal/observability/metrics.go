package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	ScrapesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scrapes_total",
			Help: "Scrape attempts by retailer and outcome",
		},
		[]string{"retailer", "status"},
	)

	ValidationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "validations_total",
			Help: "Validation outcomes by reason (accepted has reason=\"\")",
		},
		[]string{"reason"},
	)

	CycleDuration = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "cycle_duration_seconds",
			Help: "Wall-clock duration of the last scrape cycle",
		},
	)

	CircuitOpens = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "circuit_opens_total",
			Help: "Times the circuit breaker opened for a retailer",
		},
		[]string{"retailer"},
	)

	GuardKills = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "guard_kills_total",
			Help: "Browser processes terminated by the process guard",
		},
	)
)

func Start(port string) {
	prometheus.MustRegister(ScrapesTotal, ValidationsTotal, CycleDuration, CircuitOpens, GuardKills)
	http.Handle("/metrics", promhttp.Handler())
	go http.ListenAndServe(":"+port, nil)
}
