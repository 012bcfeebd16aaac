package channels

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/KafClaw/taskclaw/internal/bus"
	"github.com/KafClaw/taskclaw/internal/config"
)

type postedMessage struct {
	Channel  string
	Text     string
	ThreadTS string
}

func newSlackAPI(t *testing.T) (*httptest.Server, func() []postedMessage) {
	t.Helper()
	var mu sync.Mutex
	var posted []postedMessage
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat.postMessage" {
			http.NotFound(w, r)
			return
		}
		if err := r.ParseForm(); err != nil {
			t.Errorf("parse form: %v", err)
		}
		if r.Header.Get("Authorization") != "Bearer xoxb-test" && r.FormValue("token") != "xoxb-test" {
			t.Errorf("request is missing the bot token")
		}
		mu.Lock()
		posted = append(posted, postedMessage{
			Channel:  r.FormValue("channel"),
			Text:     r.FormValue("text"),
			ThreadTS: r.FormValue("thread_ts"),
		})
		mu.Unlock()
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{"ok": true, "channel": r.FormValue("channel"), "ts": "1700000000.000100"})
	}))
	t.Cleanup(srv.Close)
	return srv, func() []postedMessage {
		mu.Lock()
		defer mu.Unlock()
		return append([]postedMessage(nil), posted...)
	}
}

func TestSlackSendPostsThreadedReply(t *testing.T) {
	srv, posted := newSlackAPI(t)
	ch, err := NewSlackChannel(config.SlackConfig{Enabled: true, BotToken: "xoxb-test", APIBase: srv.URL}, bus.NewMessageBus(), srv.Client())
	if err != nil {
		t.Fatalf("new channel: %v", err)
	}
	err = ch.Send(context.Background(), &bus.OutboundMessage{
		Channel:  "slack",
		ChatID:   "C123",
		Content:  "Project 'Website Revamp' created successfully",
		Metadata: map[string]any{bus.MetaKeyThreadTS: "1699999999.000200"},
	})
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	got := posted()
	if len(got) != 1 {
		t.Fatalf("expected 1 post, got %d", len(got))
	}
	if got[0].Channel != "C123" || got[0].ThreadTS != "1699999999.000200" {
		t.Errorf("unexpected post %+v", got[0])
	}
	if got[0].Text != "Project 'Website Revamp' created successfully" {
		t.Errorf("unexpected text %q", got[0].Text)
	}
}

func TestSlackSendRequiresChatID(t *testing.T) {
	srv, posted := newSlackAPI(t)
	ch, err := NewSlackChannel(config.SlackConfig{BotToken: "xoxb-test", APIBase: srv.URL}, bus.NewMessageBus(), srv.Client())
	if err != nil {
		t.Fatalf("new channel: %v", err)
	}
	if err := ch.Send(context.Background(), &bus.OutboundMessage{Content: "hi"}); err == nil {
		t.Fatal("expected error for missing chat id")
	}
	if len(posted()) != 0 {
		t.Fatal("nothing should be posted")
	}
}

func TestNewSlackChannelRequiresBotToken(t *testing.T) {
	if _, err := NewSlackChannel(config.SlackConfig{}, bus.NewMessageBus(), nil); err == nil {
		t.Fatal("expected error without bot token")
	}
}

func TestSlackHandleInboundStripsMention(t *testing.T) {
	msgBus := bus.NewMessageBus()
	ch, err := NewSlackChannel(config.SlackConfig{BotToken: "xoxb-test"}, msgBus, nil)
	if err != nil {
		t.Fatalf("new channel: %v", err)
	}
	if !ch.HandleInbound("U1", "C1", "171.1", "<@U0BOT> Create a project called Website Revamp") {
		t.Fatal("expected message to be accepted")
	}
	msg, err := msgBus.ConsumeInbound(context.Background())
	if err != nil {
		t.Fatalf("consume: %v", err)
	}
	if msg.Channel != "slack" || msg.ChatID != "C1" || msg.SenderID != "U1" {
		t.Errorf("unexpected inbound %+v", msg)
	}
	if msg.Content != "Create a project called Website Revamp" {
		t.Errorf("mention not stripped: %q", msg.Content)
	}
	if ts, _ := msg.Metadata[bus.MetaKeyThreadTS].(string); ts != "171.1" {
		t.Errorf("expected thread ts, got %v", msg.Metadata)
	}
}

func TestSlackHandleInboundAllowList(t *testing.T) {
	msgBus := bus.NewMessageBus()
	ch, err := NewSlackChannel(config.SlackConfig{BotToken: "xoxb-test", AllowFrom: []string{"U1"}}, msgBus, nil)
	if err != nil {
		t.Fatalf("new channel: %v", err)
	}
	if ch.HandleInbound("U2", "C1", "", "Delete the Foo project") {
		t.Fatal("sender outside the allow list must be dropped")
	}
	if ch.HandleInbound("U1", "C1", "", "<@U0BOT>   ") {
		t.Fatal("empty command must be dropped")
	}
	if msgBus.InboundSize() != 0 {
		t.Fatalf("expected empty inbound queue, got %d", msgBus.InboundSize())
	}
	if !ch.HandleInbound("u1", "C1", "", "Delete the Foo project") {
		t.Fatal("allow list should match case-insensitively")
	}
}

func TestSlackStartDisabledIsNoop(t *testing.T) {
	ch, err := NewSlackChannel(config.SlackConfig{BotToken: "xoxb-test"}, bus.NewMessageBus(), nil)
	if err != nil {
		t.Fatalf("new channel: %v", err)
	}
	if err := ch.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := ch.Stop(); err != nil {
		t.Fatalf("stop: %v", err)
	}
}
