// Package llm wraps the hosted generation providers behind one Generator
// interface so adapters do not care which provider is configured.
package llm

import (
	"context"
	"fmt"
	"log"
	"strings"

	"kbengine/internal/config"
	"kbengine/internal/httpx"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	openai "github.com/sashabaranov/go-openai"
)

const defaultAnthropicModel = "claude-sonnet-4-5-20250929"
const defaultOpenAIModel = "gpt-4o-mini"
const defaultMaxTokens = 2048

type Usage struct {
	InputTokens              int64 `json:"input_tokens"`
	OutputTokens             int64 `json:"output_tokens"`
	CacheCreationInputTokens int64 `json:"cache_creation_input_tokens"`
	CacheReadInputTokens     int64 `json:"cache_read_input_tokens"`
}

func (u Usage) TotalTokens() int64 {
	return u.InputTokens + u.OutputTokens
}

type Generator interface {
	Generate(ctx context.Context, systemPrompt, userPrompt string) (string, Usage, error)
}

// NewGenerator builds the generator for cfg.LLMProvider.
func NewGenerator(cfg config.Config) (Generator, error) {
	if err := cfg.RequireLLM(); err != nil {
		return nil, err
	}
	switch cfg.LLMProvider {
	case "openai":
		return NewOpenAIGenerator(cfg.OpenAIAPIKey, cfg.LLMModel, cfg.LLMBaseURL), nil
	default:
		return NewAnthropicGenerator(cfg.AnthropicAPIKey, cfg.LLMModel, cfg.LLMBaseURL), nil
	}
}

type AnthropicGenerator struct {
	client anthropic.Client
	model  string
}

func NewAnthropicGenerator(apiKey, model, baseURL string) *AnthropicGenerator {
	if model == "" {
		model = defaultAnthropicModel
	}
	opts := []option.RequestOption{
		option.WithAPIKey(apiKey),
		option.WithHTTPClient(httpx.ExternalHTTPClient()),
	}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL), option.WithMaxRetries(0))
	}
	return &AnthropicGenerator{client: anthropic.NewClient(opts...), model: model}
}

func (g *AnthropicGenerator) Generate(ctx context.Context, systemPrompt, userPrompt string) (string, Usage, error) {
	message, err := g.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     anthropic.Model(g.model),
		MaxTokens: defaultMaxTokens,
		System: []anthropic.TextBlockParam{
			{Text: systemPrompt, CacheControl: anthropic.NewCacheControlEphemeralParam()},
		},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(userPrompt)),
		},
	})
	if err != nil {
		log.Printf("llm anthropic error: %v", err)
		return "", Usage{}, fmt.Errorf("Anthropic API error: %w", err)
	}
	usage := Usage{
		InputTokens:              message.Usage.InputTokens,
		OutputTokens:             message.Usage.OutputTokens,
		CacheCreationInputTokens: message.Usage.CacheCreationInputTokens,
		CacheReadInputTokens:     message.Usage.CacheReadInputTokens,
	}

	for _, block := range message.Content {
		if block.Type == "text" {
			log.Printf("llm anthropic response model=%s size=%d tokens_in=%d tokens_out=%d cache_read=%d", g.model, len(block.Text), usage.InputTokens, usage.OutputTokens, usage.CacheReadInputTokens)
			return strings.TrimSpace(block.Text), usage, nil
		}
	}
	return "", usage, fmt.Errorf("no text content in Anthropic response")
}

type OpenAIGenerator struct {
	client *openai.Client
	model  string
}

func NewOpenAIGenerator(apiKey, model, baseURL string) *OpenAIGenerator {
	if model == "" {
		model = defaultOpenAIModel
	}
	clientCfg := openai.DefaultConfig(apiKey)
	clientCfg.HTTPClient = httpx.ExternalHTTPClient()
	if baseURL != "" {
		clientCfg.BaseURL = strings.TrimRight(baseURL, "/")
	}
	return &OpenAIGenerator{client: openai.NewClientWithConfig(clientCfg), model: model}
}

func (g *OpenAIGenerator) Generate(ctx context.Context, systemPrompt, userPrompt string) (string, Usage, error) {
	resp, err := g.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: g.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: userPrompt},
		},
		MaxTokens: defaultMaxTokens,
	})
	if err != nil {
		log.Printf("llm openai error: %v", err)
		return "", Usage{}, fmt.Errorf("OpenAI API error: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", Usage{}, fmt.Errorf("no choices in OpenAI response")
	}
	usage := Usage{
		InputTokens:  int64(resp.Usage.PromptTokens),
		OutputTokens: int64(resp.Usage.CompletionTokens),
	}
	text := resp.Choices[0].Message.Content
	log.Printf("llm openai response model=%s size=%d tokens_in=%d tokens_out=%d", g.model, len(text), usage.InputTokens, usage.OutputTokens)
	return strings.TrimSpace(text), usage, nil
}
