// Package relay bridges Kafka command topics into the message bus and writes
// command results back to Kafka.
package relay

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/KafClaw/taskclaw/internal/bus"
)

// ChannelName is the bus channel used for Kafka-originated commands.
const ChannelName = "kafka"

// CommandEnvelope is the wire format of a command on the command topic.
type CommandEnvelope struct {
	TraceID   string    `json:"trace_id,omitempty"`
	Sender    string    `json:"sender,omitempty"`
	ReplyTo   string    `json:"reply_to,omitempty"` // Correlation key echoed in the result
	Text      string    `json:"text"`
	DryRun    bool      `json:"dry_run,omitempty"`
	Timestamp time.Time `json:"timestamp,omitempty"`
}

// ResultEnvelope is the wire format of a result on the result topic.
type ResultEnvelope struct {
	TraceID   string    `json:"trace_id"`
	ReplyTo   string    `json:"reply_to,omitempty"`
	Success   bool      `json:"success"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

// Options configures a Relay.
type Options struct {
	Bus          *bus.MessageBus
	Consumer     Consumer
	Producer     Producer
	ResultTopic  string
	WriteTimeout time.Duration
}

// Relay moves commands from Kafka onto the bus and results from the bus back to Kafka.
type Relay struct {
	bus          *bus.MessageBus
	consumer     Consumer
	producer     Producer
	resultTopic  string
	writeTimeout time.Duration
}

// New creates a relay and subscribes it to outbound results on the kafka channel.
func New(opts Options) *Relay {
	r := &Relay{
		bus:          opts.Bus,
		consumer:     opts.Consumer,
		producer:     opts.Producer,
		resultTopic:  opts.ResultTopic,
		writeTimeout: opts.WriteTimeout,
	}
	if r.writeTimeout <= 0 {
		r.writeTimeout = 10 * time.Second
	}
	r.bus.Subscribe(ChannelName, r.publishResult)
	return r
}

// Run consumes commands until ctx is done. It blocks.
func (r *Relay) Run(ctx context.Context) error {
	if err := r.consumer.Start(ctx); err != nil {
		return fmt.Errorf("kafka relay: start consumer: %w", err)
	}
	defer r.consumer.Close()
	slog.Info("KafkaRelay: started", "result_topic", r.resultTopic)

	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-r.consumer.Messages():
			if !ok {
				return nil
			}
			r.handleMessage(msg)
		}
	}
}

func (r *Relay) handleMessage(msg ConsumerMessage) {
	var env CommandEnvelope
	if err := json.Unmarshal(msg.Value, &env); err != nil {
		// Plain text payloads are accepted as the command itself.
		env = CommandEnvelope{Text: string(msg.Value)}
	}
	env.Text = strings.TrimSpace(env.Text)
	if env.Text == "" {
		slog.Warn("KafkaRelay: dropping empty command", "topic", msg.Topic)
		return
	}
	if env.TraceID == "" {
		env.TraceID = uuid.NewString()
	}
	replyTo := env.ReplyTo
	if replyTo == "" {
		replyTo = string(msg.Key)
	}

	slog.Info("KafkaRelay: command received", "topic", msg.Topic, "trace_id", env.TraceID, "sender", env.Sender)
	r.bus.PublishInbound(&bus.InboundMessage{
		Channel:   ChannelName,
		SenderID:  env.Sender,
		ChatID:    replyTo,
		TraceID:   env.TraceID,
		Content:   env.Text,
		Metadata:  map[string]any{bus.MetaKeyDryRun: env.DryRun},
		Timestamp: env.Timestamp,
	})
}

func (r *Relay) publishResult(out *bus.OutboundMessage) {
	if r.resultTopic == "" {
		return
	}
	payload, err := json.Marshal(ResultEnvelope{
		TraceID:   out.TraceID,
		ReplyTo:   out.ChatID,
		Success:   out.Success,
		Message:   out.Content,
		Timestamp: time.Now().UTC(),
	})
	if err != nil {
		slog.Error("KafkaRelay: marshal result", "trace_id", out.TraceID, "error", err)
		return
	}
	key := out.ChatID
	if key == "" {
		key = out.TraceID
	}
	// Results are written even while shutting down, bounded by the write timeout.
	ctx, cancel := context.WithTimeout(context.Background(), r.writeTimeout)
	defer cancel()
	if err := r.producer.Produce(ctx, r.resultTopic, []byte(key), payload); err != nil {
		slog.Error("KafkaRelay: publish result failed", "trace_id", out.TraceID, "error", err)
	}
}
