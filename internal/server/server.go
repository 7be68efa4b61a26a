// Package server is the HTTP surface of the gateway: the analyze API
// plus health and metrics, with every other path served through the
// offline asset cache.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/photolingo/photolingo/internal/analyze"
	"github.com/photolingo/photolingo/internal/common"
)

const maxUploadBytes = 32 << 20

// Analyzer is the orchestrator operation the API exposes.
type Analyzer interface {
	Analyze(ctx context.Context, src io.Reader, topK int, langs []string) (*analyze.Result, error)
}

// Exporter renders a result as an XLSX workbook.
type Exporter interface {
	ExportXLSX(result *analyze.Result, langs []string) ([]byte, error)
}

// Service wires the API handlers.
type Service struct {
	analyzer     Analyzer
	exporter     Exporter
	assets       http.Handler
	defaultTopK  int
	defaultLangs []string
	logger       *slog.Logger
}

func NewService(analyzer Analyzer, exporter Exporter, assets http.Handler, defaultTopK int, defaultLangs []string, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	if defaultTopK < 1 {
		defaultTopK = 30
	}
	return &Service{
		analyzer:     analyzer,
		exporter:     exporter,
		assets:       assets,
		defaultTopK:  defaultTopK,
		defaultLangs: defaultLangs,
		logger:       logger,
	}
}

// Router builds the gateway router. Asset paths go last so API routes
// always win.
func (s *Service) Router() *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/api/analyze", s.handleAnalyze).Methods(http.MethodPost)
	r.HandleFunc("/healthz", s.handleHealth).Methods(http.MethodGet)
	r.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)
	if s.assets != nil {
		r.PathPrefix("/").Handler(s.assets)
	}
	return r
}

func (s *Service) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type analyzeResponse struct {
	*analyze.Result
	Empty bool `json:"empty,omitempty"`
}

func (s *Service) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		writeError(w, http.StatusBadRequest, "multipart image upload required")
		return
	}
	file, _, err := r.FormFile("image")
	if err != nil {
		writeError(w, http.StatusBadRequest, "image field is required")
		return
	}
	defer file.Close()

	topK := s.defaultTopK
	if raw := r.URL.Query().Get("topk"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > 200 {
			writeError(w, http.StatusBadRequest, "topk must be an integer in [1,200]")
			return
		}
		topK = n
	}

	langs := s.defaultLangs
	if raw := r.URL.Query().Get("langs"); raw != "" {
		langs = nil
		for _, l := range strings.Split(raw, ",") {
			if l = strings.TrimSpace(l); l != "" {
				langs = append(langs, l)
			}
		}
	}

	result, err := s.analyzer.Analyze(r.Context(), file, topK, langs)
	switch {
	case err == nil:
	case errors.Is(err, analyze.ErrStale):
		// A newer analysis superseded this one; its result must never
		// render.
		writeError(w, http.StatusConflict, "superseded by a newer analysis")
		return
	case common.IsKind(err, common.KindEmptyResult):
		writeJSON(w, http.StatusOK, analyzeResponse{Result: &analyze.Result{Tags: []analyze.TaggedItem{}}, Empty: true})
		return
	case common.IsKind(err, common.KindDecode):
		writeError(w, http.StatusBadRequest, "could not decode the uploaded image")
		return
	case common.IsKind(err, common.KindRemote):
		writeError(w, http.StatusBadGateway, "tagging service unavailable")
		return
	default:
		s.logger.Error("server.analyze.failed", "error", err)
		writeError(w, http.StatusInternalServerError, "analysis failed")
		return
	}

	if r.URL.Query().Get("format") == "xlsx" && s.exporter != nil {
		data, err := s.exporter.ExportXLSX(result, langs)
		if err != nil {
			s.logger.Error("server.export.failed", "error", err)
			writeError(w, http.StatusInternalServerError, "export failed")
			return
		}
		w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
		w.Header().Set("Content-Disposition", `attachment; filename="tags.xlsx"`)
		_, _ = w.Write(data)
		return
	}

	writeJSON(w, http.StatusOK, analyzeResponse{Result: result})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
