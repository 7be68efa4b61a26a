package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"reflect"
	"testing"

	"github.com/photolingo/photolingo/internal/analyze"
	"github.com/photolingo/photolingo/internal/common"
)

type fakeAnalyzer struct {
	gotTopK  int
	gotLangs []string
	result   *analyze.Result
	err      error
}

func (f *fakeAnalyzer) Analyze(_ context.Context, src io.Reader, topK int, langs []string) (*analyze.Result, error) {
	_, _ = io.Copy(io.Discard, src)
	f.gotTopK = topK
	f.gotLangs = langs
	return f.result, f.err
}

func multipartImage(t *testing.T) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("image", "capture.jpg")
	if err != nil {
		t.Fatalf("create form file: %v", err)
	}
	if _, err := fw.Write([]byte("image-bytes")); err != nil {
		t.Fatalf("write form file: %v", err)
	}
	if err := mw.Close(); err != nil {
		t.Fatalf("close writer: %v", err)
	}
	return &buf, mw.FormDataContentType()
}

func post(t *testing.T, svc *Service, target string) *httptest.ResponseRecorder {
	t.Helper()
	body, ct := multipartImage(t)
	req := httptest.NewRequest(http.MethodPost, target, body)
	req.Header.Set("Content-Type", ct)
	rec := httptest.NewRecorder()
	svc.Router().ServeHTTP(rec, req)
	return rec
}

func TestAnalyzeHandlerDefaultsAndParams(t *testing.T) {
	fa := &fakeAnalyzer{result: &analyze.Result{RunID: 1, Tags: []analyze.TaggedItem{}}}
	svc := NewService(fa, nil, nil, 30, []string{"ja", "zh", "ko"}, nil)

	rec := post(t, svc, "/api/analyze")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	if fa.gotTopK != 30 || !reflect.DeepEqual(fa.gotLangs, []string{"ja", "zh", "ko"}) {
		t.Fatalf("defaults not applied: topk=%d langs=%v", fa.gotTopK, fa.gotLangs)
	}

	rec = post(t, svc, "/api/analyze?topk=5&langs=ja,ko")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if fa.gotTopK != 5 || !reflect.DeepEqual(fa.gotLangs, []string{"ja", "ko"}) {
		t.Fatalf("params not applied: topk=%d langs=%v", fa.gotTopK, fa.gotLangs)
	}
}

func TestAnalyzeHandlerTopKValidation(t *testing.T) {
	svc := NewService(&fakeAnalyzer{}, nil, nil, 30, nil, nil)
	rec := post(t, svc, "/api/analyze?topk=0")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
	rec = post(t, svc, "/api/analyze?topk=201")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestAnalyzeHandlerErrorMapping(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
	}{
		{"stale", analyze.ErrStale, http.StatusConflict},
		{"decode", common.NewDecodeError("bad image", nil), http.StatusBadRequest},
		{"remote", common.NewRemoteError("tagger", 500, "down", nil), http.StatusBadGateway},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := NewService(&fakeAnalyzer{err: tt.err}, nil, nil, 30, nil, nil)
			rec := post(t, svc, "/api/analyze")
			if rec.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
		})
	}
}

func TestAnalyzeHandlerEmptyResultIsNotAnError(t *testing.T) {
	svc := NewService(&fakeAnalyzer{err: common.NewEmptyResultError("no tags")}, nil, nil, 30, nil, nil)
	rec := post(t, svc, "/api/analyze")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var body struct {
		Empty bool              `json:"empty"`
		Tags  []json.RawMessage `json:"tags"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if !body.Empty || len(body.Tags) != 0 {
		t.Fatalf("empty outcome shape wrong: %s", rec.Body.String())
	}
}

func TestAnalyzeHandlerRequiresImage(t *testing.T) {
	svc := NewService(&fakeAnalyzer{}, nil, nil, 30, nil, nil)
	req := httptest.NewRequest(http.MethodPost, "/api/analyze", bytes.NewReader(nil))
	rec := httptest.NewRecorder()
	svc.Router().ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestHealthz(t *testing.T) {
	svc := NewService(&fakeAnalyzer{}, nil, nil, 30, nil, nil)
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	svc.Router().ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
}

func TestAssetsFallthrough(t *testing.T) {
	assets := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("asset"))
	})
	svc := NewService(&fakeAnalyzer{}, nil, assets, 30, nil, nil)
	req := httptest.NewRequest(http.MethodGet, "/app.js", nil)
	rec := httptest.NewRecorder()
	svc.Router().ServeHTTP(rec, req)
	if rec.Body.String() != "asset" {
		t.Fatalf("asset path not delegated: %q", rec.Body.String())
	}
}
