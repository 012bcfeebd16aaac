package provider

import (
	"context"
	"fmt"
	"io"
	"iter"

	"google.golang.org/genai"
)

// GeminiGenerator streams completions from the Gemini API.
type GeminiGenerator struct {
	client *genai.Client
	model  string
	opts   Options
}

// NewGeminiGenerator creates a Gemini client for model.
func NewGeminiGenerator(ctx context.Context, apiKey, model string, opts Options) (*GeminiGenerator, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create GenAI client: %w", err)
	}
	return &GeminiGenerator{client: client, model: model, opts: opts}, nil
}

func (g *GeminiGenerator) Ready() bool { return g.client != nil && g.model != "" }

func (g *GeminiGenerator) Model() string { return "gemini/" + g.model }

func (g *GeminiGenerator) Generate(ctx context.Context, prompt string) (Stream, error) {
	if !g.Ready() {
		return nil, ErrNotReady
	}
	cfg := &genai.GenerateContentConfig{
		Temperature: genai.Ptr(float32(g.opts.Temperature)),
	}
	if g.opts.MaxTokens > 0 {
		cfg.MaxOutputTokens = int32(g.opts.MaxTokens)
	}
	seq := g.client.Models.GenerateContentStream(ctx, g.model, genai.Text(prompt), cfg)
	next, stop := iter.Pull2(seq)
	return &geminiStream{next: next, stop: stop}, nil
}

type geminiStream struct {
	next func() (*genai.GenerateContentResponse, error, bool)
	stop func()
}

func (s *geminiStream) Recv() (string, error) {
	for {
		resp, err, ok := s.next()
		if !ok {
			return "", io.EOF
		}
		if err != nil {
			return "", fmt.Errorf("gemini stream: %w", err)
		}
		if resp == nil || len(resp.Candidates) == 0 {
			continue
		}
		switch resp.Candidates[0].FinishReason {
		case genai.FinishReasonSafety, genai.FinishReasonRecitation, genai.FinishReasonBlocklist, genai.FinishReasonProhibitedContent:
			return "", fmt.Errorf("gemini response blocked: %s", resp.Candidates[0].FinishReason)
		}
		if text := resp.Text(); text != "" {
			return text, nil
		}
	}
}

func (s *geminiStream) Close() error {
	s.stop()
	return nil
}
