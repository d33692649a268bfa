package translate

import (
	"context"
	"fmt"
	"strings"

	vertexgenai "cloud.google.com/go/vertexai/genai"
	"google.golang.org/api/iterator"

	"github.com/linguacall/linguacall/internal/utils"
)

// VertexGemini translates via a Gemini model on Vertex AI. Selected with
// TRANSLATE_PROVIDER=gemini.
type VertexGemini struct {
	client *vertexgenai.Client
	model  *vertexgenai.GenerativeModel
}

func NewVertexGemini(ctx context.Context, projectID, location, modelName string) (*VertexGemini, error) {
	c, err := vertexgenai.NewClient(ctx, projectID, location)
	if err != nil {
		return nil, err
	}

	if modelName == "" {
		modelName = "gemini-1.5-flash"
	}

	m := c.GenerativeModel(modelName)
	return &VertexGemini{client: c, model: m}, nil
}

func (v *VertexGemini) Close() error { return v.client.Close() }

func (v *VertexGemini) Translate(ctx context.Context, text, sourceLang, targetLang string) (string, error) {
	const op = "VertexGemini.Translate"

	prompt := fmt.Sprintf(
		"Translate the following text from %s to %s. Reply with the translation only, no commentary.\n\n%s",
		sourceLang, targetLang, text)

	var sb strings.Builder
	it := v.model.GenerateContentStream(ctx, vertexgenai.Text(prompt))
	for {
		resp, err := it.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return "", utils.E(utils.CodeUnavailable, op, "translation backend failed", err)
		}

		for _, cand := range resp.Candidates {
			if cand.Content == nil {
				continue
			}
			for _, part := range cand.Content.Parts {
				if t, ok := part.(vertexgenai.Text); ok {
					sb.WriteString(string(t))
				}
			}
		}
	}

	out := strings.TrimSpace(sb.String())
	if out == "" {
		return "", utils.E(utils.CodeUnavailable, op, "empty translation", nil)
	}
	return out, nil
}

var _ Translator = (*VertexGemini)(nil)
