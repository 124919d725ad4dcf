package events

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"

	"onboardline/internal/domain"
	"onboardline/internal/logging"
)

// MirrorTopic carries every published event as JSON for out-of-process consumers.
const MirrorTopic = "case.events"

const (
	DefaultCapacity         = 80
	DefaultSubscriberBuffer = 32
)

type Options struct {
	Capacity         int
	SubscriberBuffer int
	Mirror           message.Publisher
	Logger           logging.Logger
	Now              func() time.Time
}

// Bus fans out per-case events to live subscribers and keeps a bounded
// history of the most recent events of each case.
type Bus struct {
	mu        sync.Mutex
	capacity  int
	subBuffer int
	cases     map[string]*caseFeed
	mirror    message.Publisher
	log       logging.Logger
	now       func() time.Time
}

type caseFeed struct {
	seq  int64
	ring []domain.Event
	next int
	full bool
	subs map[*subscriber]struct{}
}

type subscriber struct {
	ch     chan domain.Event
	closed bool
}

// Subscription delivers events published after Subscribe returned.
type Subscription struct {
	Events <-chan domain.Event
	close  func()
}

// Close stops delivery and closes Events. Safe to call more than once.
func (s Subscription) Close() {
	if s.close != nil {
		s.close()
	}
}

func NewBus(opts Options) *Bus {
	if opts.Capacity <= 0 {
		opts.Capacity = DefaultCapacity
	}
	if opts.SubscriberBuffer <= 0 {
		opts.SubscriberBuffer = DefaultSubscriberBuffer
	}
	if opts.Logger == nil {
		opts.Logger = logging.Nop()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Bus{
		capacity:  opts.Capacity,
		subBuffer: opts.SubscriberBuffer,
		cases:     map[string]*caseFeed{},
		mirror:    opts.Mirror,
		log:       opts.Logger,
		now:       opts.Now,
	}
}

func (b *Bus) feed(caseID string) *caseFeed {
	f, ok := b.cases[caseID]
	if !ok {
		f = &caseFeed{ring: make([]domain.Event, b.capacity), subs: map[*subscriber]struct{}{}}
		b.cases[caseID] = f
	}
	return f
}

// Publish stamps the event and hands it to the ring buffer and every subscriber
// of the case. It never blocks on a slow subscriber: a full subscriber channel
// loses its oldest pending event.
func (b *Bus) Publish(caseID, evtType string, payload map[string]any) domain.Event {
	if payload == nil {
		payload = map[string]any{}
	}
	b.mu.Lock()
	f := b.feed(caseID)
	f.seq++
	evt := domain.Event{
		Seq:     f.seq,
		CaseID:  caseID,
		Type:    evtType,
		TS:      b.now().UTC().Format(time.RFC3339Nano),
		Payload: payload,
	}
	f.ring[f.next] = evt
	f.next = (f.next + 1) % len(f.ring)
	if f.next == 0 {
		f.full = true
	}
	for s := range f.subs {
		deliver(s.ch, evt)
	}
	b.mu.Unlock()

	b.publishMirror(evt)
	return evt
}

func deliver(ch chan domain.Event, evt domain.Event) {
	select {
	case ch <- evt:
		return
	default:
	}
	select {
	case <-ch:
	default:
	}
	select {
	case ch <- evt:
	default:
	}
}

func (b *Bus) publishMirror(evt domain.Event) {
	if b.mirror == nil {
		return
	}
	data, err := json.Marshal(evt)
	if err != nil {
		b.log.Error("events", "marshal mirror event", map[string]any{"error": err, "type": evt.Type})
		return
	}
	msg := message.NewMessage(watermill.NewUUID(), data)
	msg.Metadata.Set("event_type", evt.Type)
	msg.Metadata.Set("case_id", evt.CaseID)
	if err := b.mirror.Publish(MirrorTopic, msg); err != nil {
		b.log.Warn("events", "mirror publish failed", map[string]any{"error": err, "type": evt.Type})
	}
}

// Subscribe registers a live subscriber for caseID. Nothing is replayed.
// The subscription ends when ctx is cancelled or Close is called.
func (b *Bus) Subscribe(ctx context.Context, caseID string) Subscription {
	s := &subscriber{ch: make(chan domain.Event, b.subBuffer)}
	b.mu.Lock()
	b.feed(caseID).subs[s] = struct{}{}
	b.mu.Unlock()

	var once sync.Once
	stop := make(chan struct{})
	closeFn := func() {
		once.Do(func() {
			close(stop)
			b.mu.Lock()
			if f, ok := b.cases[caseID]; ok {
				delete(f.subs, s)
			}
			if !s.closed {
				s.closed = true
				close(s.ch)
			}
			b.mu.Unlock()
		})
	}
	go func() {
		select {
		case <-ctx.Done():
			closeFn()
		case <-stop:
		}
	}()
	return Subscription{Events: s.ch, close: closeFn}
}

// Recent returns up to n of the latest buffered events of a case, oldest first.
// n <= 0 returns the whole buffer.
func (b *Bus) Recent(caseID string, n int) []domain.Event {
	b.mu.Lock()
	defer b.mu.Unlock()
	f, ok := b.cases[caseID]
	if !ok {
		return []domain.Event{}
	}
	var out []domain.Event
	if f.full {
		out = append(out, f.ring[f.next:]...)
	}
	out = append(out, f.ring[:f.next]...)
	if n > 0 && len(out) > n {
		out = out[len(out)-n:]
	}
	return out
}

// Subscribers reports the live subscriber count of a case.
func (b *Bus) Subscribers(caseID string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	if f, ok := b.cases[caseID]; ok {
		return len(f.subs)
	}
	return 0
}

// Forget drops the history of a deleted case and ends its subscriptions.
func (b *Bus) Forget(caseID string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	f, ok := b.cases[caseID]
	if !ok {
		return
	}
	for s := range f.subs {
		if !s.closed {
			s.closed = true
			close(s.ch)
		}
	}
	delete(b.cases, caseID)
}
