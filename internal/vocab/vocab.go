// Package vocab builds the label vocabulary the tagging endpoint is
// trained against: fetch the class-description CSV, normalize, dedupe
// by MID, and write the JSON file the server loads.
package vocab

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// DefaultClassesURL is the OpenImages v7 class-description list.
const DefaultClassesURL = "https://storage.googleapis.com/openimages/v7/oidv7-class-descriptions.csv"

// Label is one vocabulary entry.
type Label struct {
	MID     string `json:"mid"`
	LabelEN string `json:"label_en"`
}

// Parse reads a class-description CSV (mid,label per row). Rows with
// a missing mid or label are skipped; duplicates by MID keep the first
// occurrence, preserving file order.
func Parse(r io.Reader) ([]Label, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1

	seen := make(map[string]struct{})
	var out []Label
	for {
		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read csv: %w", err)
		}
		if len(row) < 2 {
			continue
		}
		mid, name := strings.TrimSpace(row[0]), strings.TrimSpace(row[1])
		if mid == "" || name == "" {
			continue
		}
		if _, ok := seen[mid]; ok {
			continue
		}
		seen[mid] = struct{}{}
		out = append(out, Label{MID: mid, LabelEN: name})
	}
	return out, nil
}

// Build fetches the class list and writes it as JSON to outPath.
func Build(ctx context.Context, classesURL, outPath string, logger *slog.Logger) (int, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if classesURL == "" {
		classesURL = DefaultClassesURL
	}

	logger.Info("vocab.fetch", "url", classesURL)
	client := &http.Client{Timeout: 2 * time.Minute}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, classesURL, nil)
	if err != nil {
		return 0, fmt.Errorf("build request: %w", err)
	}
	resp, err := client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("fetch classes: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("fetch classes: status %d", resp.StatusCode)
	}

	labels, err := Parse(resp.Body)
	if err != nil {
		return 0, err
	}

	if err := os.MkdirAll(filepath.Dir(outPath), 0o755); err != nil {
		return 0, fmt.Errorf("create output dir: %w", err)
	}
	f, err := os.Create(outPath)
	if err != nil {
		return 0, fmt.Errorf("create output: %w", err)
	}
	defer f.Close()
	if err := json.NewEncoder(f).Encode(labels); err != nil {
		return 0, fmt.Errorf("write json: %w", err)
	}

	logger.Info("vocab.saved", "path", outPath, "classes", len(labels))
	return len(labels), nil
}
