package metrics

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"coinsnap/internal/domain"
)

// RunMetrics exposes the last run as gauges in the node-exporter textfile
// format. Without a path it only keeps the registry up to date.
type RunMetrics struct {
	path     string
	registry *prometheus.Registry

	lastRun      prometheus.Gauge
	lastSuccess  prometheus.Gauge
	duration     prometheus.Gauge
	fetched      prometheus.Gauge
	valid        prometheus.Gauge
	datasetRows  *prometheus.GaugeVec
	sinkFailures *prometheus.GaugeVec
	outcome      *prometheus.GaugeVec
}

func NewRunMetrics(path string) *RunMetrics {
	m := &RunMetrics{
		path:     path,
		registry: prometheus.NewRegistry(),
		lastRun: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "coinsnap_last_run_timestamp_seconds",
			Help: "Unix time the last snapshot run started.",
		}),
		lastSuccess: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "coinsnap_last_run_success",
			Help: "1 if every sink was updated in the last run.",
		}),
		duration: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "coinsnap_last_run_duration_seconds",
			Help: "Wall time of the last run.",
		}),
		fetched: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "coinsnap_assets_fetched",
			Help: "Raw asset records returned by the API.",
		}),
		valid: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "coinsnap_assets_valid",
			Help: "Asset records that survived normalization.",
		}),
		datasetRows: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "coinsnap_dataset_rows",
			Help: "Rows in each dataset of the last snapshot.",
		}, []string{"dataset"}),
		sinkFailures: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "coinsnap_sink_failed",
			Help: "1 if the sink failed in the last run.",
		}, []string{"sink"}),
		outcome: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "coinsnap_last_run_outcome",
			Help: "1 for the outcome of the last run, 0 for the others.",
		}, []string{"outcome"}),
	}
	m.registry.MustRegister(m.lastRun, m.lastSuccess, m.duration, m.fetched, m.valid,
		m.datasetRows, m.sinkFailures, m.outcome)
	return m
}

func (m *RunMetrics) ObserveRun(ctx context.Context, r *domain.RunReport) {
	m.lastRun.Set(float64(r.StartedAt.Unix()))
	m.duration.Set(r.Duration.Seconds())
	m.fetched.Set(float64(r.Fetched))
	m.valid.Set(float64(r.Valid()))

	success := 0.0
	if r.Outcome == domain.OutcomeSuccess {
		success = 1
	}
	m.lastSuccess.Set(success)

	m.datasetRows.WithLabelValues(domain.TopTierDataset).Set(float64(len(r.Partition.TopTier)))
	m.datasetRows.WithLabelValues(domain.RemainderDataset).Set(float64(len(r.Partition.Remainder)))

	for _, sink := range r.SinksAttempted {
		failed := 0.0
		if r.SinkErrors[sink] != nil {
			failed = 1
		}
		m.sinkFailures.WithLabelValues(sink).Set(failed)
	}

	for _, o := range []domain.RunOutcome{domain.OutcomeSuccess, domain.OutcomePartial, domain.OutcomeFailed, domain.OutcomeEmpty} {
		v := 0.0
		if o == r.Outcome {
			v = 1
		}
		m.outcome.WithLabelValues(string(o)).Set(v)
	}

	if m.path == "" {
		return
	}
	if err := prometheus.WriteToTextfile(m.path, m.registry); err != nil {
		zerolog.Ctx(ctx).Error().Err(err).Str("path", m.path).Msg("Writing metrics textfile failed")
	}
}
