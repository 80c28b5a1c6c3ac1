// Package events publishes profile lifecycle events to the message queue
// so downstream consumers (notifications, analytics) can react.
package events

import (
	"context"
	"encoding/json"
	"log/slog"
	"strconv"
	"time"

	"github.com/intakedesk/apiserver/internal/mq"
	"github.com/intakedesk/apiserver/types"
)

// Type names a lifecycle event.
type Type string

const (
	ProfileSubmitted Type = "profile.submitted"
	ProfileApproved  Type = "profile.approved"
	ProfileRejected  Type = "profile.rejected"
	ProfileReopened  Type = "profile.reopened"
	ProfileDeleted   Type = "profile.deleted"
)

// Event is the JSON payload put on the channel.
type Event struct {
	Type       Type         `json:"type"`
	ProfileID  int          `json:"profile_id"`
	OwnerID    int          `json:"owner_id"`
	ActorID    int          `json:"actor_id"`
	FromStatus types.Status `json:"from_status,omitempty"`
	ToStatus   types.Status `json:"to_status,omitempty"`
	Notes      string       `json:"notes,omitempty"`
	OccurredAt time.Time    `json:"occurred_at"`
}

// Publisher sends events to one channel. A nil *Publisher or one without a
// queue drops events, which keeps the broker optional.
type Publisher struct {
	queue   *mq.MQ
	channel string
	logger  *slog.Logger
}

// NewPublisher constructs a Publisher. queue may be nil.
func NewPublisher(queue *mq.MQ, channel string, logger *slog.Logger) *Publisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Publisher{queue: queue, channel: channel, logger: logger}
}

// Publish sends e. Failures are logged and never returned: the state
// change the event describes has already been committed.
func (p *Publisher) Publish(ctx context.Context, e Event) {
	if p == nil || p.queue == nil {
		return
	}
	if e.OccurredAt.IsZero() {
		e.OccurredAt = time.Now().UTC()
	}
	data, err := json.Marshal(e)
	if err != nil {
		p.logger.ErrorContext(ctx, "encode event", "type", e.Type, "error", err)
		return
	}
	attrs := map[string]string{
		"type":       string(e.Type),
		"profile_id": strconv.Itoa(e.ProfileID),
	}
	id, err := p.queue.Publish(ctx, p.channel, data, attrs)
	if err != nil {
		p.logger.WarnContext(ctx, "publish event failed",
			"type", e.Type, "profile_id", e.ProfileID, "channel", p.channel, "error", err)
		return
	}
	p.logger.DebugContext(ctx, "event published", "type", e.Type, "profile_id", e.ProfileID, "message_id", id)
}

// Decode parses a message payload produced by Publish.
func Decode(msg mq.Message) (Event, error) {
	var e Event
	err := json.Unmarshal(msg.Data, &e)
	return e, err
}
