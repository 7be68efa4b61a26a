package remote

import (
	"context"
	"encoding/json"

	"github.com/photolingo/photolingo/internal/common"
)

type translateRequest struct {
	Target string   `json:"target"`
	Texts  []string `json:"texts"`
}

type translateResponse struct {
	TextsTranslated []string `json:"textsTranslated"`
	Error           string   `json:"error"`
	Detail          string   `json:"detail"`
}

// Translate sends one batch translation request. The result has one
// entry per input text, in input order; nil marks an entry the server
// could not translate. An error-shaped response with no usable
// translated-text array fails the whole batch: partial guessing is
// worse than an explicit "unavailable".
func (c *Client) Translate(ctx context.Context, texts []string, target string) ([]*string, error) {
	if c.translateURL == "" {
		return nil, common.NewRemoteError("translate", 0, "translation endpoint not configured", nil)
	}

	raw, status, err := sendJSON(ctx, c.hc, c.translateURL, translateRequest{Target: target, Texts: texts}, c.logger)
	if err != nil {
		return nil, common.NewRemoteError("translate", status, "translation request failed", err)
	}
	if err := ValidateJSONAgainstSchema(translateResponseSchema(), raw); err != nil {
		return nil, common.NewRemoteError("translate", status, "malformed translation response", err)
	}

	var body translateResponse
	if err := json.Unmarshal(raw, &body); err != nil {
		return nil, common.NewRemoteError("translate", status, "malformed translation response", err)
	}

	if (body.Error != "" || body.Detail != "") && len(body.TextsTranslated) == 0 {
		return nil, common.NewRemoteError("translate", status, "translation unavailable: "+firstNonEmpty(body.Error, body.Detail), nil)
	}
	if len(body.TextsTranslated) == 0 {
		return nil, common.NewRemoteError("translate", status, "translation response carried no texts", nil)
	}

	out := make([]*string, len(texts))
	for i := range texts {
		if i >= len(body.TextsTranslated) {
			break
		}
		if t := body.TextsTranslated[i]; t != "" {
			out[i] = &t
		}
	}
	return out, nil
}

func firstNonEmpty(a, b string) string {
	if a != "" {
		return a
	}
	return b
}
