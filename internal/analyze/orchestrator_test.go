package analyze

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/png"
	"reflect"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/photolingo/photolingo/internal/common"
	"github.com/photolingo/photolingo/internal/imgprep"
	"github.com/photolingo/photolingo/internal/remote"
	"github.com/photolingo/photolingo/internal/translate"
)

type translateCall struct {
	Texts  []string
	Target string
}

type fakeRemote struct {
	mu      sync.Mutex
	tags    []remote.Tag
	tagsErr error
	calls   []translateCall
	// translateFn may block; defaults to echoing "target:text".
	translateFn func(texts []string, target string) ([]*string, error)
}

func (f *fakeRemote) FetchTags(_ context.Context, _ *imgprep.EncodedImage, _ int) ([]remote.Tag, error) {
	return f.tags, f.tagsErr
}

func (f *fakeRemote) Translate(_ context.Context, texts []string, target string) ([]*string, error) {
	f.mu.Lock()
	f.calls = append(f.calls, translateCall{Texts: append([]string(nil), texts...), Target: target})
	fn := f.translateFn
	f.mu.Unlock()
	if fn != nil {
		return fn(texts, target)
	}
	out := make([]*string, len(texts))
	for i, t := range texts {
		s := target + ":" + t
		out[i] = &s
	}
	return out, nil
}

func (f *fakeRemote) callsFor(target string) []translateCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []translateCall
	for _, c := range f.calls {
		if c.Target == target {
			out = append(out, c)
		}
	}
	return out
}

func srcImage(t *testing.T) *bytes.Reader {
	t.Helper()
	var buf bytes.Buffer
	if err := png.Encode(&buf, image.NewRGBA(image.Rect(0, 0, 8, 8))); err != nil {
		t.Fatalf("encode fixture: %v", err)
	}
	return bytes.NewReader(buf.Bytes())
}

func newOrchestrator(t *testing.T, api RemoteAPI, cache *translate.Cache) *Orchestrator {
	t.Helper()
	prep, err := imgprep.NewPreparer(common.ImageConfig{
		UploadMaxDim:  imgprep.DefaultUploadMaxDim,
		PreviewMaxDim: imgprep.DefaultPreviewMaxDim,
		JPEGQuality:   imgprep.DefaultJPEGQuality,
	})
	if err != nil {
		t.Fatalf("NewPreparer: %v", err)
	}
	if cache == nil {
		cache = translate.NewCache(100, nil, nil, nil)
	}
	return NewOrchestrator(prep, api, cache, nil, nil)
}

func TestAnalyzeDeduplicatesRepeatedLabels(t *testing.T) {
	api := &fakeRemote{tags: []remote.Tag{
		{Label: "cat", Score: 0.93},
		{Label: "cat", Score: 0.81},
	}}
	o := newOrchestrator(t, api, nil)

	res, err := o.Analyze(context.Background(), srcImage(t), 30, []string{"ja"})
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}

	calls := api.callsFor("ja")
	if len(calls) != 1 {
		t.Fatalf("got %d translate calls for ja, want 1", len(calls))
	}
	if !reflect.DeepEqual(calls[0].Texts, []string{"cat"}) {
		t.Fatalf("translate batch = %v, want [cat]", calls[0].Texts)
	}
	for i, item := range res.Tags {
		e := item.Translations["ja"]
		if !e.OK || e.Text != "ja:cat" {
			t.Errorf("entry %d = %+v, want shared translation", i, e)
		}
	}
	if res.Partial {
		t.Error("fully translated run flagged partial")
	}
}

func TestAnalyzeCacheHitsSkipRemote(t *testing.T) {
	cache := translate.NewCache(100, nil, nil, nil)
	cache.Store("ja", "cat", "猫")
	api := &fakeRemote{tags: []remote.Tag{
		{Label: "cat", Score: 0.9},
		{Label: "dog", Score: 0.8},
	}}
	o := newOrchestrator(t, api, cache)

	res, err := o.Analyze(context.Background(), srcImage(t), 30, []string{"ja"})
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}

	calls := api.callsFor("ja")
	if len(calls) != 1 || !reflect.DeepEqual(calls[0].Texts, []string{"dog"}) {
		t.Fatalf("remote batch should hold misses only, got %v", calls)
	}
	if e := res.Tags[0].Translations["ja"]; e.Text != "猫" {
		t.Errorf("cache hit not used: %+v", e)
	}
	// Fresh result must have been persisted for next time.
	if got := cache.Lookup("ja", []string{"dog"}); !got[0].OK {
		t.Error("fresh translation not stored in cache")
	}
}

func TestAnalyzePartialFailureIsolation(t *testing.T) {
	api := &fakeRemote{
		tags: []remote.Tag{{Label: "cat", Score: 0.9}},
		translateFn: func(texts []string, target string) ([]*string, error) {
			if target == "ja" {
				return nil, common.NewRemoteError("translate", 503, "down", nil)
			}
			out := make([]*string, len(texts))
			for i, txt := range texts {
				s := target + ":" + txt
				out[i] = &s
			}
			return out, nil
		},
	}
	o := newOrchestrator(t, api, nil)

	res, err := o.Analyze(context.Background(), srcImage(t), 30, []string{"ja", "zh", "ko"})
	if err != nil {
		t.Fatalf("one failing language must not fail the run: %v", err)
	}
	if !res.Partial {
		t.Error("run with unavailable entries not flagged partial")
	}
	tr := res.Tags[0].Translations
	if tr["ja"].OK {
		t.Error("ja entry should be unavailable")
	}
	if !tr["zh"].OK || tr["zh"].Text != "zh:cat" {
		t.Errorf("zh entry damaged by ja failure: %+v", tr["zh"])
	}
	if !tr["ko"].OK || tr["ko"].Text != "ko:cat" {
		t.Errorf("ko entry damaged by ja failure: %+v", tr["ko"])
	}
}

func TestAnalyzeEmptyTagsIsDistinctOutcome(t *testing.T) {
	api := &fakeRemote{tags: nil}
	o := newOrchestrator(t, api, nil)

	_, err := o.Analyze(context.Background(), srcImage(t), 30, []string{"ja"})
	if !common.IsKind(err, common.KindEmptyResult) {
		t.Fatalf("expected empty-result outcome, got %v", err)
	}
	if len(api.calls) != 0 {
		t.Error("translation attempted despite empty tag list")
	}
}

func TestAnalyzeTaggingErrorAbortsBeforeTranslation(t *testing.T) {
	api := &fakeRemote{tagsErr: common.NewRemoteError("tagger", 500, "boom", nil)}
	o := newOrchestrator(t, api, nil)

	_, err := o.Analyze(context.Background(), srcImage(t), 30, []string{"ja"})
	if !common.IsKind(err, common.KindRemote) {
		t.Fatalf("expected remote error, got %v", err)
	}
	if len(api.calls) != 0 {
		t.Error("translation attempted after tagging failure")
	}
}

func TestAnalyzeStaleRunIsDiscarded(t *testing.T) {
	release := make(chan struct{})
	firstCall := true
	var mu sync.Mutex

	api := &fakeRemote{tags: []remote.Tag{{Label: "cat", Score: 0.9}}}
	api.translateFn = func(texts []string, target string) ([]*string, error) {
		mu.Lock()
		blocking := firstCall
		firstCall = false
		mu.Unlock()
		if blocking {
			<-release // hold run 1 in flight until run 2 finishes
		}
		out := make([]*string, len(texts))
		for i, txt := range texts {
			s := target + ":" + txt
			out[i] = &s
		}
		return out, nil
	}
	o := newOrchestrator(t, api, nil)

	type outcome struct {
		res *Result
		err error
	}
	run1 := make(chan outcome, 1)
	started := make(chan struct{})
	go func() {
		src := srcImage(t)
		close(started)
		res, err := o.Analyze(context.Background(), src, 30, []string{"ja"})
		run1 <- outcome{res, err}
	}()
	<-started

	// Wait for run 1 to reach its blocking translate call, then
	// supersede it.
	for {
		mu.Lock()
		reached := !firstCall
		mu.Unlock()
		if reached {
			break
		}
		time.Sleep(time.Millisecond)
	}

	res2, err := o.Analyze(context.Background(), srcImage(t), 30, []string{"ja"})
	if err != nil {
		t.Fatalf("run 2 failed: %v", err)
	}
	if res2.RunID != 2 {
		t.Fatalf("run 2 id = %d, want 2", res2.RunID)
	}

	close(release)
	got := <-run1
	if !errors.Is(got.err, ErrStale) {
		t.Fatalf("run 1 should be stale, got res=%v err=%v", got.res, got.err)
	}
}

func TestAnalyzeStatusStream(t *testing.T) {
	api := &fakeRemote{tags: []remote.Tag{{Label: "cat", Score: 0.9}}}
	var mu sync.Mutex
	var stages []Stage
	notifier := NotifierFunc(func(stage Stage, _ string) {
		mu.Lock()
		stages = append(stages, stage)
		mu.Unlock()
	})

	prep, err := imgprep.NewPreparer(common.ImageConfig{UploadMaxDim: 1024, PreviewMaxDim: 1600, JPEGQuality: 86})
	if err != nil {
		t.Fatalf("NewPreparer: %v", err)
	}
	o := NewOrchestrator(prep, api, translate.NewCache(10, nil, nil, nil), notifier, nil)

	if _, err := o.Analyze(context.Background(), srcImage(t), 30, []string{"ja"}); err != nil {
		t.Fatalf("Analyze: %v", err)
	}

	want := []Stage{StagePreparing, StageTagging, StageTranslating, StageDone}
	mu.Lock()
	defer mu.Unlock()
	if !reflect.DeepEqual(stages, want) {
		t.Fatalf("stages = %v, want %v", stages, want)
	}
}

func TestAnalyzeLanguagesRunIndependently(t *testing.T) {
	// All three languages must be attempted even when one hangs until
	// the others are done.
	var mu sync.Mutex
	done := map[string]bool{}
	api := &fakeRemote{tags: []remote.Tag{{Label: "cat", Score: 0.9}}}
	api.translateFn = func(texts []string, target string) ([]*string, error) {
		mu.Lock()
		done[target] = true
		mu.Unlock()
		out := make([]*string, len(texts))
		for i, txt := range texts {
			s := target + ":" + txt
			out[i] = &s
		}
		return out, nil
	}
	o := newOrchestrator(t, api, nil)

	if _, err := o.Analyze(context.Background(), srcImage(t), 30, []string{"ja", "zh", "ko"}); err != nil {
		t.Fatalf("Analyze: %v", err)
	}

	mu.Lock()
	var langs []string
	for l := range done {
		langs = append(langs, l)
	}
	mu.Unlock()
	sort.Strings(langs)
	if !reflect.DeepEqual(langs, []string{"ja", "ko", "zh"}) {
		t.Fatalf("attempted languages = %v", langs)
	}
}
