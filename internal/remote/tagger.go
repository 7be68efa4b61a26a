package remote

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/photolingo/photolingo/internal/common"
	"github.com/photolingo/photolingo/internal/imgprep"
)

// Tag is one ranked label from the tagging endpoint. The server's
// descending-score order is preserved; the client never re-sorts.
type Tag struct {
	Label string
	Score float64
}

// Client talks to the tagging and translation endpoints.
type Client struct {
	taggerBase   string
	translateURL string
	hc           *http.Client
	logger       *slog.Logger
}

func NewClient(cfg common.RemoteConfig, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		taggerBase:   strings.TrimRight(cfg.TaggerBase, "/"),
		translateURL: cfg.TranslateURL,
		hc:           &http.Client{Timeout: cfg.Timeout},
		logger:       logger,
	}
}

type taggerResponse struct {
	Tags []struct {
		LabelEN string  `json:"label_en"`
		Label   string  `json:"label"`
		Score   float64 `json:"score"`
	} `json:"tags"`
}

// FetchTags uploads the encoded image and returns the normalized tag
// list. label_en takes precedence over label; entries whose resolved
// label is empty are dropped.
func (c *Client) FetchTags(ctx context.Context, img *imgprep.EncodedImage, topK int) ([]Tag, error) {
	if c.taggerBase == "" {
		return nil, common.NewRemoteError("tagger", 0, "tagging endpoint not configured", nil)
	}

	u, err := url.Parse(c.taggerBase + "/tagger")
	if err != nil {
		return nil, common.NewRemoteError("tagger", 0, "invalid tagging endpoint", err)
	}
	q := u.Query()
	q.Set("topk", strconv.Itoa(topK))
	u.RawQuery = q.Encode()

	raw, status, err := sendMultipartImage(ctx, c.hc, u.String(), "image", "capture.jpg", img.Data, c.logger)
	if err != nil {
		return nil, common.NewRemoteError("tagger", status, "tagging request failed", err)
	}
	if err := ValidateJSONAgainstSchema(taggerResponseSchema(), raw); err != nil {
		return nil, common.NewRemoteError("tagger", status, "malformed tagging response", err)
	}

	var body taggerResponse
	if err := json.Unmarshal(raw, &body); err != nil {
		return nil, common.NewRemoteError("tagger", status, "malformed tagging response", err)
	}

	tags := make([]Tag, 0, len(body.Tags))
	for _, t := range body.Tags {
		label := t.LabelEN
		if label == "" {
			label = t.Label
		}
		if label == "" {
			continue
		}
		tags = append(tags, Tag{Label: label, Score: t.Score})
	}
	return tags, nil
}
