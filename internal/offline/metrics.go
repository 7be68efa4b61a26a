package offline

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics counts cache behavior per request class.
type Metrics struct {
	Hits        *prometheus.CounterVec
	Misses      *prometheus.CounterVec
	Refreshes   prometheus.Counter
	Fallbacks   prometheus.Counter
	Activations prometheus.Counter
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Hits: f.NewCounterVec(prometheus.CounterOpts{
			Name: "photolingo_asset_cache_hits_total",
			Help: "Requests served from the asset cache.",
		}, []string{"class"}),
		Misses: f.NewCounterVec(prometheus.CounterOpts{
			Name: "photolingo_asset_cache_misses_total",
			Help: "Requests that required a live upstream fetch.",
		}, []string{"class"}),
		Refreshes: f.NewCounter(prometheus.CounterOpts{
			Name: "photolingo_asset_cache_refreshes_total",
			Help: "Background revalidations of cached assets.",
		}),
		Fallbacks: f.NewCounter(prometheus.CounterOpts{
			Name: "photolingo_asset_cache_fallbacks_total",
			Help: "Navigations served from cache after a live fetch failed.",
		}),
		Activations: f.NewCounter(prometheus.CounterOpts{
			Name: "photolingo_asset_cache_activations_total",
			Help: "Generation activations, each evicting stale bundles.",
		}),
	}
}
