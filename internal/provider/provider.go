// Package provider implements the text generation clients used to translate
// instructions into command blocks.
package provider

import (
	"context"
	"errors"
	"io"
	"strings"
)

// Generator produces a streamed completion for a single prompt.
type Generator interface {
	// Generate starts a completion. The caller must Close the stream.
	Generate(ctx context.Context, prompt string) (Stream, error)
	// Ready reports whether a model is configured and usable.
	Ready() bool
	// Model returns the "provider/model" identifier.
	Model() string
}

// Stream yields completion fragments in order. Recv returns io.EOF after the
// last fragment.
type Stream interface {
	Recv() (string, error)
	Close() error
}

// Options are the sampling settings shared by all generators.
type Options struct {
	MaxTokens   int
	Temperature float64
}

// ErrNotReady is returned by generators that have no usable model.
var ErrNotReady = errors.New("no model loaded")

// Collect drains s and returns the concatenated text. It stops early when ctx
// is done and returns the context error.
func Collect(ctx context.Context, s Stream) (string, error) {
	defer s.Close()
	var b strings.Builder
	for {
		if err := ctx.Err(); err != nil {
			return b.String(), err
		}
		chunk, err := s.Recv()
		if errors.Is(err, io.EOF) {
			return b.String(), nil
		}
		if err != nil {
			return b.String(), err
		}
		b.WriteString(chunk)
	}
}

// Unavailable is a Generator that is never ready. It stands in when no provider
// could be configured, so callers report a clear message instead of failing at
// startup.
type Unavailable struct {
	Reason string
}

func (u Unavailable) Generate(context.Context, string) (Stream, error) {
	return nil, ErrNotReady
}

func (u Unavailable) Ready() bool { return false }

func (u Unavailable) Model() string { return "" }
