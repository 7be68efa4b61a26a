package translate

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics exposes translation-cache hit/miss counters per language.
type Metrics struct {
	Hits   *prometheus.CounterVec
	Misses *prometheus.CounterVec
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Hits: f.NewCounterVec(prometheus.CounterOpts{
			Name: "photolingo_translation_cache_hits_total",
			Help: "Translation cache lookups served from memory.",
		}, []string{"lang"}),
		Misses: f.NewCounterVec(prometheus.CounterOpts{
			Name: "photolingo_translation_cache_misses_total",
			Help: "Translation cache lookups that required a remote call.",
		}, []string{"lang"}),
	}
}
