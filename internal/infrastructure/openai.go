package infrastructure

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"

	openai "github.com/sashabaranov/go-openai"
)

// personaPrompt is the standing system prompt for customer-facing
// replies. Classification calls do not use it.
const personaPrompt = `Você é Ana Terra, assistente virtual de um laboratório de análises agrícolas.
Responda SEMPRE em português do Brasil, de forma educada, acolhedora, direta e clara.`

// OpenAIClient implements the LanguageModel, Embedder and Transcriber
// ports against the OpenAI API. All chat calls honor the fallback
// contract: any failure returns the caller's fallback string instead of
// an error.
type OpenAIClient struct {
	client          *openai.Client
	chatModel       string
	embeddingModel  openai.EmbeddingModel
	transcribeModel string
	logger          *slog.Logger
}

func NewOpenAIClient(apiKey, baseURL, chatModel, embeddingModel string, logger *slog.Logger) *OpenAIClient {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = strings.TrimSuffix(baseURL, "/") + "/v1"
	}
	return &OpenAIClient{
		client:          openai.NewClientWithConfig(cfg),
		chatModel:       chatModel,
		embeddingModel:  openai.EmbeddingModel(embeddingModel),
		transcribeModel: "gpt-4o-transcribe",
		logger:          logger,
	}
}

// Reply generates a natural customer-facing answer under the assistant
// persona.
func (c *OpenAIClient) Reply(ctx context.Context, prompt, fallback string) string {
	return c.chat(ctx, personaPrompt, prompt, 0.5, fallback)
}

// Complete returns raw model output for classification prompts.
// Temperature is pinned to zero so classifications stay deterministic.
func (c *OpenAIClient) Complete(ctx context.Context, system, user, fallback string) string {
	return c.chat(ctx, system, user, 0, fallback)
}

func (c *OpenAIClient) chat(ctx context.Context, system, user string, temperature float32, fallback string) string {
	resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       c.chatModel,
		Temperature: temperature,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: system},
			{Role: openai.ChatMessageRoleUser, Content: user},
		},
	})
	if err != nil {
		c.logger.Warn("chat completion failed, using fallback", "error", err)
		return fallback
	}
	if len(resp.Choices) == 0 {
		c.logger.Warn("chat completion returned no choices, using fallback")
		return fallback
	}
	out := strings.TrimSpace(resp.Choices[0].Message.Content)
	if out == "" {
		return fallback
	}
	return out
}

// Embed returns the embedding vector for the given text.
func (c *OpenAIClient) Embed(ctx context.Context, text string) ([]float32, error) {
	resp, err := c.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Input: []string{text},
		Model: c.embeddingModel,
	})
	if err != nil {
		return nil, err
	}
	if len(resp.Data) == 0 {
		return nil, fmt.Errorf("embedding response carried no data")
	}
	return resp.Data[0].Embedding, nil
}

// Transcribe converts a voice message into text.
func (c *OpenAIClient) Transcribe(ctx context.Context, filename string, audio io.Reader) (string, error) {
	resp, err := c.client.CreateTranscription(ctx, openai.AudioRequest{
		Model:    c.transcribeModel,
		FilePath: filename,
		Reader:   audio,
	})
	if err != nil {
		return "", err
	}
	return resp.Text, nil
}
