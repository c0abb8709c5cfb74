package voice

import (
	"context"
	"fmt"
	"strings"

	"github.com/googleapis/gax-go/v2/apierror"
	"google.golang.org/genai"
)

const geminiDefaultCompletionModel = "gemini-2.0-flash"

// GeminiCompleter issues one-shot text completions through the Gemini API.
type GeminiCompleter struct {
	client *genai.Client
}

func NewGeminiCompleter(ctx context.Context, apiKey string) (*GeminiCompleter, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, fmt.Errorf("gemini api key is required")
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{APIKey: apiKey})
	if err != nil {
		return nil, fmt.Errorf("gemini client: %w", err)
	}
	return &GeminiCompleter{client: client}, nil
}

func (c *GeminiCompleter) Complete(ctx context.Context, req CompletionRequest) (CompletionResult, error) {
	model := strings.TrimSpace(req.Model)
	if model == "" {
		model = geminiDefaultCompletionModel
	}

	var cfg *genai.GenerateContentConfig
	if instruction := strings.TrimSpace(req.SystemInstruction); instruction != "" {
		cfg = &genai.GenerateContentConfig{
			SystemInstruction: &genai.Content{Parts: []*genai.Part{genai.NewPartFromText(instruction)}},
		}
	}
	contents := []*genai.Content{
		{Role: "user", Parts: []*genai.Part{genai.NewPartFromText(req.UserText)}},
	}

	resp, err := c.client.Models.GenerateContent(ctx, model, contents, cfg)
	if err != nil {
		if e, ok := err.(*apierror.APIError); ok {
			err = e.Unwrap()
		}
		return CompletionResult{}, fmt.Errorf("gemini generate: %w", err)
	}

	var sb strings.Builder
	if len(resp.Candidates) > 0 && resp.Candidates[0].Content != nil {
		for _, part := range resp.Candidates[0].Content.Parts {
			sb.WriteString(part.Text)
		}
	}
	out := CompletionResult{Text: strings.TrimSpace(sb.String())}
	if usage := resp.UsageMetadata; usage != nil {
		out.PromptTokens = int64(usage.PromptTokenCount)
		out.CompletionTokens = int64(usage.CandidatesTokenCount)
	}
	return out, nil
}
