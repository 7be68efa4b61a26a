// Package analyze coordinates the end-to-end pipeline: prepare the
// image, fetch tags, fan out per-language translations, merge. Run
// identity makes cancellation cooperative: a superseded run's results
// are discarded on arrival, never rendered.
package analyze

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/photolingo/photolingo/internal/common"
	"github.com/photolingo/photolingo/internal/imgprep"
	"github.com/photolingo/photolingo/internal/remote"
	"github.com/photolingo/photolingo/internal/translate"
)

// ErrStale marks a run superseded by a newer one. Callers drop the
// result silently; nothing was rendered and nothing needs undoing.
var ErrStale = errors.New("analysis run superseded")

// RemoteAPI is the slice of the remote client the orchestrator needs.
type RemoteAPI interface {
	FetchTags(ctx context.Context, img *imgprep.EncodedImage, topK int) ([]remote.Tag, error)
	Translate(ctx context.Context, texts []string, target string) ([]*string, error)
}

// Entry is one per-tag-per-language translation. OK false means the
// translation is unavailable for this entry.
type Entry struct {
	Text string `json:"text"`
	OK   bool   `json:"ok"`
}

// TaggedItem is one tag with its translations keyed by language.
type TaggedItem struct {
	Label        string           `json:"label"`
	Score        float64          `json:"score"`
	Translations map[string]Entry `json:"translations"`
}

// Result is the merged outcome of one analysis run. Partial is true
// when any language has any unavailable entry.
type Result struct {
	RunID   uint64       `json:"runId"`
	Tags    []TaggedItem `json:"tags"`
	Partial bool         `json:"partial"`
}

// Orchestrator owns the run counter and drives the pipeline. One
// instance serves the whole session; a new Analyze call supersedes
// any run still in flight.
type Orchestrator struct {
	prep     *imgprep.Preparer
	remote   RemoteAPI
	cache    *translate.Cache
	notifier Notifier
	logger   *slog.Logger
	runs     atomic.Uint64
}

func NewOrchestrator(prep *imgprep.Preparer, api RemoteAPI, cache *translate.Cache, notifier Notifier, logger *slog.Logger) *Orchestrator {
	if notifier == nil {
		notifier = NopNotifier{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Orchestrator{
		prep:     prep,
		remote:   api,
		cache:    cache,
		notifier: notifier,
		logger:   logger,
	}
}

// Analyze runs prepare, tag, then translate for one image. Tagging always
// settles before any translation starts; per-language translations run
// in parallel and all settle before the merge. Returns ErrStale when a
// newer run started while this one was in flight.
func (o *Orchestrator) Analyze(ctx context.Context, src io.Reader, topK int, langs []string) (*Result, error) {
	runID := o.runs.Add(1)
	log := o.logger.With("run_id", runID)

	o.say(runID, StagePreparing, "Preparing image…")
	img, err := o.prep.PrepareUpload(src)
	if err != nil {
		o.say(runID, StageFailed, "Could not read the image. Try a different one.")
		return nil, err
	}
	if o.stale(runID) {
		return nil, ErrStale
	}

	o.say(runID, StageTagging, "Analyzing…")
	tags, err := o.remote.FetchTags(ctx, img, topK)
	if o.stale(runID) {
		return nil, ErrStale
	}
	if err != nil {
		log.Warn("analyze.tagging_failed", "error", err)
		o.say(runID, StageFailed, "Tagging failed. Check your connection and try again.")
		return nil, err
	}
	if len(tags) == 0 {
		o.say(runID, StageEmpty, "No tags returned.")
		return nil, common.NewEmptyResultError("tagging returned zero usable tags")
	}

	labels := make([]string, len(tags))
	for i, t := range tags {
		labels[i] = t.Label
	}

	o.say(runID, StageTranslating, "Translating…")
	perLang := make(map[string][]Entry, len(langs))
	var mu sync.Mutex
	var wg sync.WaitGroup
	for _, lang := range langs {
		wg.Add(1)
		go func(lang string) {
			defer wg.Done()
			entries := o.translateLanguage(ctx, log, lang, labels)
			mu.Lock()
			perLang[lang] = entries
			mu.Unlock()
		}(lang)
	}
	wg.Wait()

	if o.stale(runID) {
		return nil, ErrStale
	}

	result := &Result{RunID: runID, Tags: make([]TaggedItem, len(tags))}
	for i, t := range tags {
		item := TaggedItem{
			Label:        t.Label,
			Score:        t.Score,
			Translations: make(map[string]Entry, len(langs)),
		}
		for _, lang := range langs {
			e := perLang[lang][i]
			item.Translations[lang] = e
			if !e.OK {
				result.Partial = true
			}
		}
		result.Tags[i] = item
	}

	if result.Partial {
		o.say(runID, StageDonePartial, "Done. Some words fall back to English.")
	} else {
		o.say(runID, StageDone, "Done. Tap a line to hear it spoken.")
	}
	return result, nil
}

// translateLanguage resolves one language's entries: cache hits first,
// then a single batched remote call for the deduplicated misses. Any
// failure here downgrades entries to unavailable; it never aborts
// sibling languages or the run.
func (o *Orchestrator) translateLanguage(ctx context.Context, log *slog.Logger, lang string, labels []string) []Entry {
	cached := o.cache.Lookup(lang, labels)
	missing := o.cache.MissingUnique(lang, labels)

	fresh := make(map[string]string, len(missing))
	if len(missing) > 0 {
		out, err := o.remote.Translate(ctx, missing, lang)
		if err != nil {
			log.Warn("analyze.translate_failed", "lang", lang, "error", err)
		} else {
			for i, text := range missing {
				if i < len(out) && out[i] != nil {
					fresh[text] = *out[i]
					o.cache.Store(lang, text, *out[i])
				}
			}
		}
	}

	entries := make([]Entry, len(labels))
	for i, r := range cached {
		if r.OK {
			entries[i] = Entry{Text: r.Text, OK: true}
			continue
		}
		if tr, ok := fresh[translate.Key(labels[i])]; ok {
			entries[i] = Entry{Text: tr, OK: true}
		}
	}
	return entries
}

func (o *Orchestrator) stale(runID uint64) bool {
	return o.runs.Load() != runID
}

// say emits a status update unless the run has been superseded; stale
// runs go quiet instead of fighting the current one for the UI.
func (o *Orchestrator) say(runID uint64, stage Stage, message string) {
	if o.stale(runID) {
		return
	}
	o.notifier.Status(stage, message)
}
