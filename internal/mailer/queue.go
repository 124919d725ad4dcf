package mailer

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"

	"onboardline/internal/logging"
)

// Topic carries queued outgoing mail.
const Topic = "mail.outgoing"

// ResultFunc observes the outcome of every queued delivery.
type ResultFunc func(msg Message, err error)

// Queue hands messages to a background consumer that delivers them through
// the wrapped transport.
type Queue struct {
	pub       message.Publisher
	sub       message.Subscriber
	transport Transport
	log       logging.Logger
	onResult  ResultFunc
}

func NewQueue(pub message.Publisher, sub message.Subscriber, transport Transport, log logging.Logger) *Queue {
	if log == nil {
		log = logging.Nop()
	}
	return &Queue{pub: pub, sub: sub, transport: transport, log: log}
}

// OnResult sets the delivery observer. Call before Consume.
func (q *Queue) OnResult(fn ResultFunc) {
	q.onResult = fn
}

func (q *Queue) Enqueue(_ context.Context, msg Message) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal mail message: %w", err)
	}
	wm := message.NewMessage(watermill.NewUUID(), data)
	wm.Metadata.Set("kind", msg.Kind)
	wm.Metadata.Set("case_id", msg.CaseID)
	if err := q.pub.Publish(Topic, wm); err != nil {
		return fmt.Errorf("enqueue mail: %w", err)
	}
	return nil
}

// Consume starts delivering queued messages until ctx is done.
func (q *Queue) Consume(ctx context.Context) error {
	messages, err := q.sub.Subscribe(ctx, Topic)
	if err != nil {
		return err
	}
	go func() {
		for msg := range messages {
			q.process(ctx, msg)
		}
	}()
	return nil
}

func (q *Queue) process(ctx context.Context, wm *message.Message) {
	var msg Message
	if err := json.Unmarshal(wm.Payload, &msg); err != nil {
		q.log.Error("mailer", "drop undecodable mail message", map[string]any{"error": err, "message_id": wm.UUID})
		wm.Ack()
		return
	}
	err := q.transport.Send(ctx, msg)
	if err != nil {
		q.log.Warn("mailer", "queued delivery failed", map[string]any{"error": err, "case_id": msg.CaseID, "kind": msg.Kind})
	} else {
		q.log.Info("mailer", "queued delivery sent", map[string]any{"case_id": msg.CaseID, "kind": msg.Kind, "to": msg.Email.To})
	}
	if q.onResult != nil {
		q.onResult(msg, err)
	}
	wm.Ack()
}
