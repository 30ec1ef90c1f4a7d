package observability

import "github.com/prometheus/client_golang/prometheus"

// Outcome label values for APICalls.
const (
	OutcomeOK         = "ok"
	OutcomeError      = "error"
	OutcomeParseError = "parse_error"
)

// Reason label values for IdeasRejected.
const (
	ReasonEmpty     = "empty"
	ReasonDuplicate = "duplicate"
)

// Generator collectors. They are registered with the default registry so the
// ops server's /metrics endpoint exposes them next to the HTTP collectors.
var (
	// APICalls counts model dispatches by outcome (ok|error|parse_error).
	APICalls = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "api_calls_total",
			Help:      "Model dispatches by outcome.",
		},
		[]string{"outcome"},
	)

	// GenerationRetries counts attempts scheduled after a failed one.
	GenerationRetries = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "generation_retries_total",
			Help:      "Generation attempts retried after a failure.",
		},
	)

	// QuotaWaits counts pauses taken because the soft quota was spent.
	QuotaWaits = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "quota_waits_total",
			Help:      "Pauses taken while the call quota was exhausted.",
		},
	)

	// IdeasAccepted counts ideas accepted into the corpus.
	IdeasAccepted = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ideas_accepted_total",
			Help:      "Ideas accepted into the corpus.",
		},
	)

	// IdeasRejected counts discarded candidates by reason (empty|duplicate).
	IdeasRejected = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ideas_rejected_total",
			Help:      "Candidate ideas discarded, by reason.",
		},
		[]string{"reason"},
	)

	// Batches counts finished batches by status (succeeded|failed).
	Batches = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "batches_total",
			Help:      "Batches executed, by status.",
		},
		[]string{"status"},
	)

	// CorpusSize is the number of entries in the duplicate index.
	CorpusSize = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "corpus_size",
			Help:      "Ideas currently held in the duplicate index.",
		},
	)

	// QuotaUsed is the call count in the current window (day|minute).
	QuotaUsed = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "quota_used",
			Help:      "Calls counted in the current quota window.",
		},
		[]string{"window"},
	)
)

func init() {
	prometheus.MustRegister(
		APICalls, GenerationRetries, QuotaWaits,
		IdeasAccepted, IdeasRejected, Batches,
		CorpusSize, QuotaUsed,
	)
}

// SetQuotaUsed publishes a quota snapshot.
func SetQuotaUsed(day, minute int) {
	QuotaUsed.WithLabelValues("day").Set(float64(day))
	QuotaUsed.WithLabelValues("minute").Set(float64(minute))
}
