package channels

import (
	"context"
	"strings"

	"github.com/KafClaw/taskclaw/internal/bus"
)

// Channel defines the interface for chat platforms that submit commands.
type Channel interface {
	// Name returns the channel name (e.g. "slack").
	Name() string
	// Start starts the channel listener.
	Start(ctx context.Context) error
	// Stop stops the channel listener.
	Stop() error
	// Send sends a command result to a specific chat.
	Send(ctx context.Context, msg *bus.OutboundMessage) error
}

// BaseChannel provides common functionality for channels.
type BaseChannel struct {
	Bus       *bus.MessageBus
	AllowFrom []string
}

// IsAllowed reports whether senderID may submit commands. An empty allow list
// admits everyone.
func (b *BaseChannel) IsAllowed(senderID string) bool {
	if len(b.AllowFrom) == 0 {
		return true
	}
	senderID = strings.TrimSpace(senderID)
	for _, allowed := range b.AllowFrom {
		if strings.EqualFold(strings.TrimSpace(allowed), senderID) {
			return true
		}
	}
	return false
}
