package onboardlinesdk

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"
)

// FeedState is the connection state of a FeedSubscriber.
type FeedState string

const (
	FeedConnecting FeedState = "connecting"
	FeedOpen       FeedState = "open"
	FeedBackoff    FeedState = "backoff"
	FeedClosed     FeedState = "closed"
)

const (
	DefaultFeedBackoff    = 800 * time.Millisecond
	DefaultFeedMaxBackoff = 15 * time.Second
)

// FeedOptions tunes reconnection. The zero value reconnects every 800ms.
type FeedOptions struct {
	// Backoff is the delay before reconnecting; with Exponential it is the
	// first delay and doubles per consecutive failure up to MaxBackoff.
	Backoff     time.Duration
	Exponential bool
	MaxBackoff  time.Duration
	// Buffer sizes the Events channel.
	Buffer int
	// OnState is called on every state change; err is the cause of a drop.
	OnState func(state FeedState, err error)
}

// FeedSubscriber keeps a case feed open across transient drops. Events is
// closed once the subscriber stops, either through Close, the parent
// context, or a permanent error (bad credentials, unknown case).
type FeedSubscriber struct {
	Events <-chan Event

	client *Client
	caseID string
	opts   FeedOptions
	events chan Event
	cancel context.CancelFunc
	done   chan struct{}

	mu    sync.Mutex
	state FeedState
	err   error
}

// Subscribe opens the live feed of a case.
func (c *Client) Subscribe(ctx context.Context, caseID string, opts FeedOptions) *FeedSubscriber {
	if opts.Backoff <= 0 {
		opts.Backoff = DefaultFeedBackoff
	}
	if opts.MaxBackoff <= 0 {
		opts.MaxBackoff = DefaultFeedMaxBackoff
	}
	if opts.Buffer <= 0 {
		opts.Buffer = 32
	}
	ctx, cancel := context.WithCancel(ctx)
	s := &FeedSubscriber{
		client: c,
		caseID: caseID,
		opts:   opts,
		events: make(chan Event, opts.Buffer),
		cancel: cancel,
		done:   make(chan struct{}),
	}
	s.Events = s.events
	go s.run(ctx)
	return s
}

// Close stops the subscriber and waits for it to wind down. It is safe to
// call more than once.
func (s *FeedSubscriber) Close() {
	s.cancel()
	<-s.done
}

func (s *FeedSubscriber) State() FeedState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Err returns the permanent error that stopped the subscriber, if any.
func (s *FeedSubscriber) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

func (s *FeedSubscriber) setState(state FeedState, err error) {
	s.mu.Lock()
	if s.state == state && err == nil {
		s.mu.Unlock()
		return
	}
	s.state = state
	if state == FeedClosed {
		s.err = err
	}
	s.mu.Unlock()
	if s.opts.OnState != nil {
		s.opts.OnState(state, err)
	}
}

// delay returns the wait before reconnect attempt n (0-based).
func (s *FeedSubscriber) delay(n int, serverRetry time.Duration) time.Duration {
	if !s.opts.Exponential {
		if serverRetry > 0 {
			return serverRetry
		}
		return s.opts.Backoff
	}
	d := s.opts.Backoff
	for i := 0; i < n && d < s.opts.MaxBackoff; i++ {
		d *= 2
	}
	if d > s.opts.MaxBackoff {
		d = s.opts.MaxBackoff
	}
	return d
}

func (s *FeedSubscriber) run(ctx context.Context) {
	defer close(s.done)
	defer close(s.events)
	failures := 0
	var serverRetry time.Duration
	for {
		s.setState(FeedConnecting, nil)
		opened, retry, err := s.stream(ctx)
		if retry > 0 {
			serverRetry = retry
		}
		if ctx.Err() != nil {
			s.setState(FeedClosed, nil)
			return
		}
		var apiErr *APIError
		if errors.As(err, &apiErr) && permanent(apiErr.StatusCode) {
			s.setState(FeedClosed, err)
			return
		}
		if opened {
			failures = 0
		}
		if err == nil {
			err = io.ErrUnexpectedEOF
		}
		wait := s.delay(failures, serverRetry)
		failures++
		s.setState(FeedBackoff, err)
		select {
		case <-ctx.Done():
			s.setState(FeedClosed, nil)
			return
		case <-time.After(wait):
		}
	}
}

func permanent(status int) bool {
	switch status {
	case http.StatusUnauthorized, http.StatusForbidden, http.StatusNotFound:
		return true
	}
	return false
}

// stream holds one connection until it drops. opened reports whether the
// server accepted the stream; retry is the server-advertised reconnect delay.
func (s *FeedSubscriber) stream(ctx context.Context) (opened bool, retry time.Duration, err error) {
	endpoint := fmt.Sprintf("%s/v0/cases/%s/feed", s.client.base(), url.PathEscape(s.caseID))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return false, 0, err
	}
	req.Header.Set("Accept", "text/event-stream")
	s.client.authorize(req)
	// Streams are long-lived, so the request timeout of the API client does not apply.
	hc := &http.Client{}
	if s.client.HTTPClient != nil {
		hc.Transport = s.client.HTTPClient.Transport
	}
	res, err := hc.Do(req)
	if err != nil {
		return false, 0, err
	}
	defer res.Body.Close()
	if res.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(io.LimitReader(res.Body, 4096))
		return false, 0, newAPIError(res.StatusCode, b)
	}

	reader := bufio.NewReader(res.Body)
	event, data := "", ""
	for {
		line, err := reader.ReadString('\n')
		if err != nil {
			return opened, retry, err
		}
		line = strings.TrimRight(line, "\r\n")
		switch {
		case line == "":
			if data == "" {
				event = ""
				continue
			}
			if event == "ready" {
				opened = true
				s.setState(FeedOpen, nil)
			} else if event == "" || event == "message" {
				var evt Event
				if err := json.Unmarshal([]byte(data), &evt); err == nil {
					if !opened {
						opened = true
						s.setState(FeedOpen, nil)
					}
					select {
					case s.events <- evt:
					case <-ctx.Done():
						return opened, retry, ctx.Err()
					}
				}
			}
			event, data = "", ""
		case strings.HasPrefix(line, ":"):
		case strings.HasPrefix(line, "retry:"):
			if ms, err := strconv.Atoi(strings.TrimSpace(strings.TrimPrefix(line, "retry:"))); err == nil && ms > 0 {
				retry = time.Duration(ms) * time.Millisecond
			}
		case strings.HasPrefix(line, "event:"):
			event = strings.TrimSpace(strings.TrimPrefix(line, "event:"))
		case strings.HasPrefix(line, "data:"):
			chunk := strings.TrimPrefix(strings.TrimPrefix(line, "data:"), " ")
			if data != "" {
				data += "\n"
			}
			data += chunk
		}
	}
}
