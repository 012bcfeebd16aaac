package agent

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/KafClaw/taskclaw/internal/bus"
)

// LoopOptions contains configuration for the command loop.
type LoopOptions struct {
	Bus      *bus.MessageBus
	Pipeline *Pipeline
	// Timeout bounds a single command, generation included. Zero means no limit.
	Timeout time.Duration
	// Workers is the number of commands processed at once (default 1).
	Workers int
}

// Loop feeds inbound bus messages through the pipeline and publishes each
// result to the originating channel.
type Loop struct {
	bus      *bus.MessageBus
	pipeline *Pipeline
	timeout  time.Duration
	workers  int
	running  atomic.Bool
}

// NewLoop creates a new command loop.
func NewLoop(opts LoopOptions) *Loop {
	workers := opts.Workers
	if workers <= 0 {
		workers = 1
	}
	return &Loop{
		bus:      opts.Bus,
		pipeline: opts.Pipeline,
		timeout:  opts.Timeout,
		workers:  workers,
	}
}

// Run processes messages from the bus until ctx is done or Stop is called.
// In-flight commands finish before Run returns.
func (l *Loop) Run(ctx context.Context) error {
	l.running.Store(true)
	slog.Info("Command loop started", "workers", l.workers, "timeout", l.timeout)

	sem := make(chan struct{}, l.workers)
	var wg sync.WaitGroup
	defer wg.Wait()

	for l.running.Load() {
		msg, err := l.bus.ConsumeInbound(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil // Context cancelled, normal shutdown
			}
			slog.Error("Failed to consume message", "error", err)
			continue
		}

		select {
		case sem <- struct{}{}:
		case <-ctx.Done():
			return nil
		}
		wg.Add(1)
		go func(msg *bus.InboundMessage) {
			defer wg.Done()
			defer func() { <-sem }()
			l.handle(ctx, msg)
		}(msg)
	}
	return nil
}

// Stop signals the loop to stop after the current message.
func (l *Loop) Stop() {
	l.running.Store(false)
}

func (l *Loop) handle(ctx context.Context, msg *bus.InboundMessage) {
	if l.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, l.timeout)
		defer cancel()
	}
	if msg.TraceID == "" {
		msg.TraceID = uuid.NewString()
	}

	res := l.pipeline.Process(ctx, Request{
		Text:    msg.Content,
		Sender:  msg.SenderID,
		Channel: msg.Channel,
		TraceID: msg.TraceID,
		DryRun:  msg.DryRun(),
	})

	out := &bus.OutboundMessage{
		Channel:  msg.Channel,
		ChatID:   msg.ChatID,
		TraceID:  msg.TraceID,
		Content:  res.Message,
		Success:  res.Success,
		Metadata: msg.Metadata,
	}
	if out.Content == "" {
		out.Content = "Done."
	}
	l.bus.PublishOutbound(out)
}
