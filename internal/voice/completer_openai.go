package voice

import (
	"context"
	"fmt"
	"strings"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

const openAIDefaultCompletionModel = "gpt-4o-mini"

// OpenAICompleter issues one-shot chat completions, for deployments that
// point the completion backend at an OpenAI-compatible endpoint.
type OpenAICompleter struct {
	client *openai.Client
}

func NewOpenAICompleter(apiKey, baseURL string) (*OpenAICompleter, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, fmt.Errorf("openai api key is required")
	}
	opts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if strings.TrimSpace(baseURL) != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	client := openai.NewClient(opts...)
	return &OpenAICompleter{client: &client}, nil
}

func (c *OpenAICompleter) Complete(ctx context.Context, req CompletionRequest) (CompletionResult, error) {
	model := strings.TrimSpace(req.Model)
	if model == "" {
		model = openAIDefaultCompletionModel
	}

	var messages []openai.ChatCompletionMessageParamUnion
	if instruction := strings.TrimSpace(req.SystemInstruction); instruction != "" {
		messages = append(messages, openai.SystemMessage(instruction))
	}
	messages = append(messages, openai.UserMessage(req.UserText))

	resp, err := c.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model:    model,
		Messages: messages,
	})
	if err != nil {
		return CompletionResult{}, fmt.Errorf("openai chat: %w", err)
	}
	if len(resp.Choices) == 0 {
		return CompletionResult{}, fmt.Errorf("openai chat returned no choices")
	}
	return CompletionResult{
		Text:             strings.TrimSpace(resp.Choices[0].Message.Content),
		PromptTokens:     resp.Usage.PromptTokens,
		CompletionTokens: resp.Usage.CompletionTokens,
	}, nil
}
