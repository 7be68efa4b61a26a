package offline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync/atomic"
	"time"

	"github.com/photolingo/photolingo/internal/common"
)

// Lifecycle states. A manager must reach StateInstalled even when some
// manifest assets could not be fetched; a stuck un-installable state
// would block every future update.
const (
	StateNew = int32(iota)
	StateInstalled
	StateActive
)

const rootKey = "/"

// Manager serves one generation of cached assets in front of the
// upstream origin. Navigations are network-first, static assets are
// stale-while-revalidate, cross-origin requests pass through untouched.
type Manager struct {
	generation string
	manifest   []string
	shellPath  string
	upstream   *url.URL
	client     *http.Client
	store      *Store
	metrics    *Metrics
	logger     *slog.Logger
	state      atomic.Int32

	// refreshed receives asset keys after background revalidation;
	// tests use it to synchronize. Nil outside tests.
	refreshed chan string
}

func NewManager(cfg common.OfflineConfig, store *Store, metrics *Metrics, logger *slog.Logger) (*Manager, error) {
	if cfg.Generation == "" {
		return nil, fmt.Errorf("generation name is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	var upstream *url.URL
	if cfg.UpstreamURL != "" {
		u, err := url.Parse(cfg.UpstreamURL)
		if err != nil {
			return nil, fmt.Errorf("invalid upstream url: %w", err)
		}
		upstream = u
	}
	return &Manager{
		generation: cfg.Generation,
		manifest:   cfg.Manifest,
		shellPath:  cfg.ShellPath,
		upstream:   upstream,
		client:     &http.Client{Timeout: 30 * time.Second},
		store:      store,
		metrics:    metrics,
		logger:     logger.With("generation", cfg.Generation),
	}, nil
}

// Generation returns the bundle name this manager serves.
func (m *Manager) Generation() string { return m.generation }

// State returns the current lifecycle state.
func (m *Manager) State() int32 { return m.state.Load() }

// Install opens the generation's bundle and precaches the manifest.
// Each asset is fetched independently; individual failures are logged
// and tolerated so installation always completes. Readiness to take
// over is signalled immediately (the supervisor decides when).
func (m *Manager) Install(ctx context.Context) error {
	if err := m.store.Open(m.generation); err != nil {
		return fmt.Errorf("open bundle: %w", err)
	}
	for _, path := range m.manifest {
		asset, err := m.fetchUpstream(ctx, path)
		if err != nil {
			m.logger.Warn("offline.install.asset_failed", "path", path, "error", err)
			continue
		}
		m.put(path, asset)
	}
	m.state.Store(StateInstalled)
	m.logger.Info("offline.installed", "assets", len(m.manifest))
	return nil
}

// Activate deletes every bundle whose name differs from this
// generation, then begins serving all consumers. Safe to run while
// reads are in flight: reads only ever target the active name.
func (m *Manager) Activate(ctx context.Context) error {
	names, err := m.store.List()
	if err != nil {
		return fmt.Errorf("list bundles: %w", err)
	}
	for _, name := range names {
		if name == m.generation {
			continue
		}
		if err := m.store.Delete(name); err != nil {
			m.logger.Warn("offline.activate.evict_failed", "bundle", name, "error", err)
			continue
		}
		m.logger.Info("offline.activate.evicted", "bundle", name)
	}
	m.state.Store(StateActive)
	if m.metrics != nil {
		m.metrics.Activations.Inc()
	}
	m.logger.Info("offline.activated")
	return nil
}

func (m *Manager) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch {
	case m.isCrossOrigin(r):
		m.passThrough(w, r)
	case isNavigation(r):
		m.serveNavigation(w, r)
	default:
		m.serveStatic(w, r)
	}
}

// isCrossOrigin reports whether the request targets a different origin
// than the upstream this manager fronts. Such requests are proxied
// untouched and never cached.
func (m *Manager) isCrossOrigin(r *http.Request) bool {
	if m.upstream == nil || !r.URL.IsAbs() {
		return false
	}
	return r.URL.Host != m.upstream.Host
}

// isNavigation classifies document requests: browsers mark them with
// Sec-Fetch-Mode: navigate, older ones only with an Accept for HTML.
func isNavigation(r *http.Request) bool {
	if r.Method != http.MethodGet {
		return false
	}
	if r.Header.Get("Sec-Fetch-Mode") == "navigate" {
		return true
	}
	return strings.Contains(r.Header.Get("Accept"), "text/html")
}

// serveNavigation is network-first: a live document wins and refreshes
// the root cache entry; offline falls back to the cached root, then
// the cached shell.
func (m *Manager) serveNavigation(w http.ResponseWriter, r *http.Request) {
	asset, err := m.fetchUpstream(r.Context(), r.URL.Path)
	if err == nil {
		m.metricMiss("navigation")
		m.put(rootKey, asset)
		writeAsset(w, asset)
		return
	}
	m.logger.Info("offline.navigation.live_failed", "path", r.URL.Path, "error", err)

	for _, key := range []string{rootKey, m.shellPath} {
		if key == "" {
			continue
		}
		if cached, cerr := m.store.Get(m.generation, key); cerr == nil {
			m.metricHit("navigation")
			if m.metrics != nil {
				m.metrics.Fallbacks.Inc()
			}
			writeAsset(w, cached)
			return
		}
	}
	http.Error(w, "offline and no cached document", http.StatusServiceUnavailable)
}

// serveStatic is stale-while-revalidate: a cached copy is returned
// immediately while a background fetch refreshes the bundle; a miss
// waits for the live fetch.
func (m *Manager) serveStatic(w http.ResponseWriter, r *http.Request) {
	key := r.URL.Path
	if cached, err := m.store.Get(m.generation, key); err == nil {
		m.metricHit("static")
		writeAsset(w, cached)
		go m.refresh(key)
		return
	}

	m.metricMiss("static")
	asset, err := m.fetchUpstream(r.Context(), key)
	if err != nil {
		http.Error(w, "asset unavailable", http.StatusBadGateway)
		return
	}
	m.put(key, asset)
	writeAsset(w, asset)
}

// refresh revalidates one asset off the request path.
func (m *Manager) refresh(key string) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	asset, err := m.fetchUpstream(ctx, key)
	if err != nil {
		m.logger.Debug("offline.refresh.failed", "key", key, "error", err)
	} else {
		m.put(key, asset)
		if m.metrics != nil {
			m.metrics.Refreshes.Inc()
		}
	}
	if m.refreshed != nil {
		m.refreshed <- key
	}
}

func (m *Manager) passThrough(w http.ResponseWriter, r *http.Request) {
	req, err := http.NewRequestWithContext(r.Context(), r.Method, r.URL.String(), r.Body)
	if err != nil {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}
	req.Header = r.Header.Clone()
	resp, err := m.client.Do(req)
	if err != nil {
		http.Error(w, "upstream unreachable", http.StatusBadGateway)
		return
	}
	defer resp.Body.Close()
	for k, vs := range resp.Header {
		for _, v := range vs {
			w.Header().Add(k, v)
		}
	}
	w.WriteHeader(resp.StatusCode)
	_, _ = io.Copy(w, resp.Body)
}

func (m *Manager) fetchUpstream(ctx context.Context, path string) (*CachedAsset, error) {
	if m.upstream == nil {
		return nil, errors.New("no upstream configured")
	}
	ref, err := url.Parse(path)
	if err != nil {
		return nil, fmt.Errorf("bad asset path %q: %w", path, err)
	}
	u := m.upstream.ResolveReference(ref)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	resp, err := m.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("upstream status %d for %s", resp.StatusCode, path)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read upstream body: %w", err)
	}
	return &CachedAsset{Body: body, ContentType: resp.Header.Get("Content-Type")}, nil
}

// put stores an asset, swallowing errors: the cache is an
// availability optimization and a failed write only costs a future
// fallback.
func (m *Manager) put(key string, asset *CachedAsset) {
	if err := m.store.Put(m.generation, key, *asset); err != nil {
		m.logger.Warn("offline.cache.put_failed", "key", key, "error", err)
	}
}

func writeAsset(w http.ResponseWriter, asset *CachedAsset) {
	if asset.ContentType != "" {
		w.Header().Set("Content-Type", asset.ContentType)
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(asset.Body)
}

func (m *Manager) metricHit(class string) {
	if m.metrics != nil {
		m.metrics.Hits.WithLabelValues(class).Inc()
	}
}

func (m *Manager) metricMiss(class string) {
	if m.metrics != nil {
		m.metrics.Misses.WithLabelValues(class).Inc()
	}
}
