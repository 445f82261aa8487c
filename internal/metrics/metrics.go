package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/samber/do"
)

const (
	OutcomeSuccess  = "success"
	OutcomeFailure  = "failure"
	OutcomeRejected = "rejected"

	// ModelInvalid labels rejected requests whose model was not recognised.
	ModelInvalid = "invalid"
)

type Recorder struct {
	registry    *prometheus.Registry
	generations *prometheus.CounterVec
	duration    *prometheus.HistogramVec
}

func NewRecorder(*do.Injector) (*Recorder, error) {
	return New(), nil
}

func New() *Recorder {
	r := &Recorder{
		registry: prometheus.NewRegistry(),
		generations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "fluxui",
			Name:      "generations_total",
			Help:      "Generation requests by model and outcome.",
		}, []string{"model", "outcome"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "fluxui",
			Name:      "generation_duration_seconds",
			Help:      "Time spent in the generator.",
			Buckets:   []float64{1, 5, 10, 30, 60, 120, 300, 600},
		}, []string{"model"}),
	}
	r.registry.MustRegister(
		r.generations,
		r.duration,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return r
}

// Observe counts one outcome. Callers pass a known model or ModelInvalid.
func (r *Recorder) Observe(model, outcome string, elapsed time.Duration) {
	r.generations.WithLabelValues(model, outcome).Inc()
	if outcome == OutcomeSuccess {
		r.duration.WithLabelValues(model).Observe(elapsed.Seconds())
	}
}

func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
}

// Registry exposes the collectors for gathering outside the HTTP handler.
func (r *Recorder) Registry() *prometheus.Registry {
	return r.registry
}
