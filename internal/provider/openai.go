package provider

import (
	"context"
	"errors"
	"fmt"
	"io"

	openai "github.com/sashabaranov/go-openai"
)

// OpenAIGenerator streams completions from any OpenAI-compatible endpoint.
type OpenAIGenerator struct {
	client *openai.Client
	id     string
	model  string
	opts   Options
	ready  bool
}

// NewOpenAIGenerator creates a generator. providerID is only used to label the
// model ("openai", "openrouter", ...). An empty apiBase uses api.openai.com.
func NewOpenAIGenerator(providerID, apiKey, apiBase, model string, opts Options) *OpenAIGenerator {
	cfg := openai.DefaultConfig(apiKey)
	if apiBase != "" {
		cfg.BaseURL = apiBase
	}
	return &OpenAIGenerator{
		client: openai.NewClientWithConfig(cfg),
		id:     providerID,
		model:  model,
		opts:   opts,
		ready:  model != "" && (apiKey != "" || apiBase != ""),
	}
}

func (g *OpenAIGenerator) Ready() bool { return g.ready }

func (g *OpenAIGenerator) Model() string { return g.id + "/" + g.model }

// Generate sends prompt as a single user message.
func (g *OpenAIGenerator) Generate(ctx context.Context, prompt string) (Stream, error) {
	if !g.ready {
		return nil, ErrNotReady
	}
	req := openai.ChatCompletionRequest{
		Model: g.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
		MaxTokens:   g.opts.MaxTokens,
		Temperature: float32(g.opts.Temperature),
		Stream:      true,
	}
	stream, err := g.client.CreateChatCompletionStream(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("%s stream: %w", g.id, err)
	}
	return &openAIStream{stream: stream}, nil
}

type openAIStream struct {
	stream *openai.ChatCompletionStream
}

func (s *openAIStream) Recv() (string, error) {
	for {
		resp, err := s.stream.Recv()
		if errors.Is(err, io.EOF) {
			return "", io.EOF
		}
		if err != nil {
			return "", err
		}
		if len(resp.Choices) == 0 {
			continue
		}
		if chunk := resp.Choices[0].Delta.Content; chunk != "" {
			return chunk, nil
		}
		if resp.Choices[0].FinishReason == openai.FinishReasonContentFilter {
			return "", errors.New("response blocked by content filter")
		}
	}
}

func (s *openAIStream) Close() error {
	return s.stream.Close()
}
