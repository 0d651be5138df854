// Package metrics exposes Prometheus collectors for provider calls and
// per-wallet outcomes, and serves them over HTTP.
package metrics

import (
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/sells-group/wallet-search-cli/internal/inference"
	"github.com/sells-group/wallet-search-cli/internal/model"
)

const namespace = "wallet_search"

// Metrics holds the collectors. It implements inference.Observer and
// scheduler.Observer.
type Metrics struct {
	WalletsProcessed *prometheus.CounterVec
	WalletErrors     *prometheus.CounterVec
	ProviderCalls    *prometheus.CounterVec
	ProviderTokens   *prometheus.CounterVec
	CheckpointRow    *prometheus.GaugeVec
	EvalDuration     *prometheus.HistogramVec
}

// New registers the collectors with reg.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		WalletsProcessed: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "wallets_processed_total",
			Help:      "Wallets evaluated, by worksheet and post status",
		}, []string{"worksheet", "status"}),
		WalletErrors: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "wallet_errors_total",
			Help:      "Wallets whose result carries diagnostic error text",
		}, []string{"worksheet"}),
		ProviderCalls: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "provider_calls_total",
			Help:      "Provider attempts by stage and outcome",
		}, []string{"stage", "outcome"}),
		ProviderTokens: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "provider_usage_total",
			Help:      "Tokens and search sources consumed, by provider and kind",
		}, []string{"provider", "kind"}),
		CheckpointRow: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "checkpoint_row",
			Help:      "Next unprocessed row per worksheet",
		}, []string{"worksheet"}),
		EvalDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "evaluation_duration_seconds",
			Help:      "Time to evaluate one wallet, both stages included",
			Buckets:   []float64{.5, 1, 2.5, 5, 10, 30, 60, 120, 300, 600},
		}, []string{"worksheet"}),
	}
}

// ObserveCall implements inference.Observer.
func (m *Metrics) ObserveCall(stage inference.Stage, outcome inference.Outcome) {
	m.ProviderCalls.WithLabelValues(string(stage), string(outcome)).Inc()
}

// ObserveUsage implements inference.Observer.
func (m *Metrics) ObserveUsage(_ inference.Stage, u inference.Usage) {
	provider := strings.ToLower(u.Provider)
	m.ProviderTokens.WithLabelValues(provider, "input_tokens").Add(float64(u.InputTokens))
	m.ProviderTokens.WithLabelValues(provider, "output_tokens").Add(float64(u.OutputTokens))
	if u.Sources > 0 {
		m.ProviderTokens.WithLabelValues(provider, "sources").Add(float64(u.Sources))
	}
}

// ObserveResult implements scheduler.Observer.
func (m *Metrics) ObserveResult(worksheet string, res model.InferenceResult, elapsed time.Duration) {
	m.WalletsProcessed.WithLabelValues(worksheet, string(res.Status)).Inc()
	if res.Error != "" {
		m.WalletErrors.WithLabelValues(worksheet).Inc()
	}
	m.EvalDuration.WithLabelValues(worksheet).Observe(elapsed.Seconds())
}

// ObserveCheckpoint implements scheduler.Observer.
func (m *Metrics) ObserveCheckpoint(worksheet string, row int) {
	m.CheckpointRow.WithLabelValues(worksheet).Set(float64(row))
}
