package translate

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/linguacall/linguacall/internal/utils"
)

// HTTPTranslator talks to a LibreTranslate-compatible endpoint:
// POST {q, source, target, format} -> {translatedText}.
type HTTPTranslator struct {
	Endpoint string
	APIKey   string
	client   *http.Client
}

func NewHTTPTranslator(endpoint, apiKey string) *HTTPTranslator {
	return &HTTPTranslator{
		Endpoint: endpoint,
		APIKey:   apiKey,
		client:   &http.Client{Timeout: 10 * time.Second},
	}
}

func (t *HTTPTranslator) Close() error { return nil }

type httpTranslateRequest struct {
	Q      string `json:"q"`
	Source string `json:"source"`
	Target string `json:"target"`
	Format string `json:"format"`
	APIKey string `json:"api_key,omitempty"`
}

type httpTranslateResponse struct {
	TranslatedText string `json:"translatedText"`
	Error          string `json:"error,omitempty"`
}

func (t *HTTPTranslator) Translate(ctx context.Context, text, sourceLang, targetLang string) (string, error) {
	const op = "HTTPTranslator.Translate"

	body, err := json.Marshal(httpTranslateRequest{
		Q:      text,
		Source: sourceLang,
		Target: targetLang,
		Format: "text",
		APIKey: t.APIKey,
	})
	if err != nil {
		return "", utils.E(utils.CodeInternal, op, "failed to encode request", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.Endpoint, bytes.NewReader(body))
	if err != nil {
		return "", utils.E(utils.CodeInternal, op, "failed to build request", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.client.Do(req)
	if err != nil {
		return "", utils.E(utils.CodeUnavailable, op, "translation backend unreachable", err)
	}
	defer resp.Body.Close()

	const maxBytes = 1 << 20
	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxBytes))
	if err != nil {
		return "", utils.E(utils.CodeUnavailable, op, "failed to read response", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", utils.E(utils.CodeUnavailable, op,
			fmt.Sprintf("translation backend returned status %d", resp.StatusCode), nil)
	}

	var out httpTranslateResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return "", utils.E(utils.CodeUnavailable, op, "unparseable translation response", err)
	}
	if out.TranslatedText == "" {
		return "", utils.E(utils.CodeUnavailable, op, "empty translation", nil)
	}
	return out.TranslatedText, nil
}

var _ Translator = (*HTTPTranslator)(nil)
