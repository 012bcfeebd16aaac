package agent

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/KafClaw/taskclaw/internal/bus"
)

func TestLoopPublishesResultToOriginChannel(t *testing.T) {
	msgBus := bus.NewMessageBus()
	repo := &recordingRepo{}
	p := newTestPipeline(&scriptedGenerator{reply: "ACTION: Create Project\nTITLE: Website Revamp"}, repo)
	loop := NewLoop(LoopOptions{Bus: msgBus, Pipeline: p, Timeout: 5 * time.Second, Workers: 2})

	got := make(chan *bus.OutboundMessage, 1)
	msgBus.Subscribe("slack", func(m *bus.OutboundMessage) { got <- m })

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go msgBus.DispatchOutbound(ctx)
	done := make(chan struct{})
	go func() {
		loop.Run(ctx)
		close(done)
	}()

	msgBus.PublishInbound(&bus.InboundMessage{
		Channel:  "slack",
		SenderID: "U1",
		ChatID:   "C1",
		Content:  "Create a project called Website Revamp",
	})

	select {
	case out := <-got:
		if out.ChatID != "C1" || !out.Success || out.TraceID == "" {
			t.Fatalf("unexpected outbound %+v", out)
		}
		if !strings.Contains(out.Content, "Website Revamp") {
			t.Errorf("unexpected content %q", out.Content)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for result")
	}

	cancel()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("loop did not stop")
	}
}

func TestLoopDryRunMetadata(t *testing.T) {
	msgBus := bus.NewMessageBus()
	repo := &recordingRepo{}
	p := newTestPipeline(&scriptedGenerator{reply: "ACTION: Create Project\nTITLE: Preview"}, repo)
	loop := NewLoop(LoopOptions{Bus: msgBus, Pipeline: p})

	got := make(chan *bus.OutboundMessage, 1)
	msgBus.Subscribe("kafka", func(m *bus.OutboundMessage) { got <- m })

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go msgBus.DispatchOutbound(ctx)
	go loop.Run(ctx)

	msgBus.PublishInbound(&bus.InboundMessage{
		Channel:  "kafka",
		TraceID:  "trace-dry",
		Content:  "Create a project called Preview",
		Metadata: map[string]any{bus.MetaKeyDryRun: true},
	})

	var out *bus.OutboundMessage
	select {
	case out = <-got:
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for result")
	}
	if out.TraceID != "trace-dry" || !strings.HasPrefix(out.Content, "Dry run") {
		t.Fatalf("unexpected outbound %+v", out)
	}
	if len(repo.callLog()) != 0 {
		t.Fatalf("dry run must not touch the repository, got %v", repo.callLog())
	}
}
