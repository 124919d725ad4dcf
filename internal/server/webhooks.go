package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"

	"onboardline/internal/config"
	"onboardline/internal/domain"
	"onboardline/internal/events"
	"onboardline/internal/logging"
)

const (
	defaultWebhookTimeout = 5 * time.Second
	webhookAttempts       = 3
)

type webhookDispatcher struct {
	webhooks []config.WebhookConfig
	filters  []eventFilter
	client   *http.Client
	log      logging.Logger
	backoff  time.Duration
}

// StartWebhooks forwards mirrored case events to the configured webhooks
// until ctx is cancelled. It is a no-op when no webhook is enabled.
func StartWebhooks(ctx context.Context, sub message.Subscriber, hooks []config.WebhookConfig, log logging.Logger) error {
	if log == nil {
		log = logging.Nop()
	}
	d := &webhookDispatcher{
		client:  &http.Client{Timeout: defaultWebhookTimeout},
		log:     log,
		backoff: 500 * time.Millisecond,
	}
	for _, hook := range hooks {
		if hook.Enabled != nil && !*hook.Enabled {
			continue
		}
		if strings.TrimSpace(hook.URL) == "" {
			continue
		}
		d.webhooks = append(d.webhooks, hook)
		d.filters = append(d.filters, newEventFilter(hook.Events))
	}
	if len(d.webhooks) == 0 {
		return nil
	}
	msgs, err := sub.Subscribe(ctx, events.MirrorTopic)
	if err != nil {
		return fmt.Errorf("subscribe %s: %w", events.MirrorTopic, err)
	}
	go d.run(ctx, msgs)
	log.Info("webhooks", "dispatcher started", map[string]any{"webhooks": len(d.webhooks)})
	return nil
}

func (d *webhookDispatcher) run(ctx context.Context, msgs <-chan *message.Message) {
	for msg := range msgs {
		var evt domain.Event
		if err := json.Unmarshal(msg.Payload, &evt); err != nil {
			d.log.Warn("webhooks", "dropping undecodable event", map[string]any{"error": err, "uuid": msg.UUID})
			msg.Ack()
			continue
		}
		d.dispatch(ctx, evt)
		msg.Ack()
	}
}

// dispatch delivers evt to every matching webhook. Failures are retried a
// few times and then dropped; the live feed stays authoritative.
func (d *webhookDispatcher) dispatch(ctx context.Context, evt domain.Event) {
	for i, hook := range d.webhooks {
		if !d.filters[i].match(evt.Type) {
			continue
		}
		var err error
		for attempt := 1; attempt <= webhookAttempts; attempt++ {
			if err = d.postEvent(ctx, hook, evt); err == nil {
				break
			}
			if attempt < webhookAttempts {
				select {
				case <-ctx.Done():
					return
				case <-time.After(d.backoff * time.Duration(attempt)):
				}
			}
		}
		if err != nil {
			d.log.Warn("webhooks", "delivery failed", map[string]any{
				"url":     hook.URL,
				"type":    evt.Type,
				"case_id": evt.CaseID,
				"error":   err,
			})
		}
	}
}

type webhookEvent struct {
	Seq     int64          `json:"seq"`
	Type    string         `json:"type"`
	CaseID  string         `json:"case_id"`
	TS      string         `json:"ts"`
	Payload map[string]any `json:"payload"`
}

func (d *webhookDispatcher) postEvent(ctx context.Context, hook config.WebhookConfig, evt domain.Event) error {
	payload := evt.Payload
	if payload == nil {
		payload = map[string]any{}
	}
	data, err := json.Marshal(webhookEvent{
		Seq:     evt.Seq,
		Type:    evt.Type,
		CaseID:  evt.CaseID,
		TS:      evt.TS,
		Payload: payload,
	})
	if err != nil {
		return err
	}
	client := d.client
	if hook.TimeoutSeconds > 0 {
		if timeout := time.Duration(hook.TimeoutSeconds) * time.Second; timeout != d.client.Timeout {
			client = &http.Client{Timeout: timeout}
		}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, hook.URL, bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Onboardline-Event", evt.Type)
	req.Header.Set("X-Onboardline-Delivery", fmt.Sprintf("%s-%d", evt.CaseID, evt.Seq))
	req.Header.Set("X-Onboardline-Case", evt.CaseID)
	if strings.TrimSpace(hook.Secret) != "" {
		req.Header.Set("X-Onboardline-Secret", hook.Secret)
	}
	res, err := client.Do(req)
	if err != nil {
		return err
	}
	defer res.Body.Close()
	if res.StatusCode < 200 || res.StatusCode >= 300 {
		bodyBytes, _ := io.ReadAll(io.LimitReader(res.Body, 4096))
		return fmt.Errorf("status %d: %s", res.StatusCode, strings.TrimSpace(string(bodyBytes)))
	}
	return nil
}

type eventFilter struct {
	all    bool
	set    map[string]struct{}
	prefix []string
}

// newEventFilter matches exact types, or whole families with a trailing "*"
// (for example "agent.*").
func newEventFilter(types []string) eventFilter {
	if len(types) == 0 {
		return eventFilter{all: true}
	}
	f := eventFilter{set: make(map[string]struct{}, len(types))}
	for _, evt := range types {
		key := strings.TrimSpace(evt)
		switch {
		case key == "":
			continue
		case key == "*":
			return eventFilter{all: true}
		case strings.HasSuffix(key, "*"):
			f.prefix = append(f.prefix, strings.TrimSuffix(key, "*"))
		default:
			f.set[key] = struct{}{}
		}
	}
	if len(f.set) == 0 && len(f.prefix) == 0 {
		return eventFilter{all: true}
	}
	return f
}

func (f eventFilter) match(evt string) bool {
	if f.all {
		return true
	}
	if _, ok := f.set[evt]; ok {
		return true
	}
	for _, p := range f.prefix {
		if strings.HasPrefix(evt, p) {
			return true
		}
	}
	return false
}
