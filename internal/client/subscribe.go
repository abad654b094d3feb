package client

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/mattjoyce/agentlive/internal/api"
	"github.com/mattjoyce/agentlive/internal/stream"
)

// ErrStreamInterrupted is reported when a stream ends before the service
// marked it closed.
var ErrStreamInterrupted = errors.New("client: event stream ended early")

// Subscription delivers the events of one run. Events closes when the run's
// stream ends; Err and Closed are valid from then on.
type Subscription struct {
	events chan stream.Event

	mu     sync.Mutex
	err    error
	closed *api.ClosedEvent
}

func newSubscription() *Subscription {
	return &Subscription{events: make(chan stream.Event, 64)}
}

// Events returns the event channel.
func (s *Subscription) Events() <-chan stream.Event {
	return s.events
}

// Err returns why the stream ended abnormally, or nil.
func (s *Subscription) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Closed returns the service's end-of-stream record when one arrived.
func (s *Subscription) Closed() (api.ClosedEvent, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed == nil {
		return api.ClosedEvent{}, false
	}
	return *s.closed, true
}

// finish records the outcome and closes the channel.
func (s *Subscription) finish(err error) {
	s.mu.Lock()
	if err == nil && s.closed == nil {
		err = ErrStreamInterrupted
	}
	s.err = err
	s.mu.Unlock()
	close(s.events)
}

// handle routes one record; it reports false once the stream is over.
func (s *Subscription) handle(ctx context.Context, c *Client, kind string, data []byte) bool {
	if kind == api.ClosedEventType {
		var closed api.ClosedEvent
		if err := json.Unmarshal(data, &closed); err != nil {
			c.logger.Warn("bad stream.closed record", "error", err)
		}
		s.mu.Lock()
		s.closed = &closed
		s.mu.Unlock()
		return false
	}
	ev, err := stream.DecodeEvent(data)
	if err != nil {
		c.logger.Warn("skipping undecodable event", "event", kind, "error", err)
		return true
	}
	select {
	case s.events <- ev:
		return true
	case <-ctx.Done():
		return false
	}
}

// Stream follows GET /v1/runs/{id}/events. Recorded events are replayed
// before live ones.
func (c *Client) Stream(ctx context.Context, runID string) (*Subscription, error) {
	req, err := c.newRequest(ctx, http.MethodGet, "/v1/runs/"+url.PathEscape(runID)+"/events", nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "text/event-stream")

	resp, err := c.streamClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("connect stream: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		resp.Body.Close()
		return nil, fmt.Errorf("stream request failed: %w", &StatusError{Code: resp.StatusCode, Body: errorMessage(body)})
	}

	sub := newSubscription()
	go func() {
		defer resp.Body.Close()
		err := readSSE(resp.Body, func(kind string, data []byte) bool {
			return sub.handle(ctx, c, kind, data)
		})
		if ctx.Err() != nil {
			err = ctx.Err()
		}
		sub.finish(err)
	}()
	return sub, nil
}

// readSSE parses a server-sent event stream, calling fn per event until it
// returns false or the body ends. Comment lines are ignored.
func readSSE(body io.Reader, fn func(kind string, data []byte) bool) error {
	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 64*1024), 2*1024*1024)

	var eventName string
	var dataLines []string

	flush := func() bool {
		if len(dataLines) == 0 {
			eventName = ""
			return true
		}
		if eventName == "" {
			eventName = "message"
		}
		more := fn(eventName, []byte(strings.Join(dataLines, "\n")))
		eventName = ""
		dataLines = nil
		return more
	}

	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case line == "":
			if !flush() {
				return nil
			}
		case strings.HasPrefix(line, ":"):
		case strings.HasPrefix(line, "event:"):
			eventName = strings.TrimSpace(strings.TrimPrefix(line, "event:"))
		case strings.HasPrefix(line, "data:"):
			part := strings.TrimPrefix(line, "data:")
			part = strings.TrimPrefix(part, " ")
			dataLines = append(dataLines, part)
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("read stream: %w", err)
	}
	flush()
	return nil
}

// Socket follows GET /v1/runs/{id}/ws, the WebSocket form of Stream.
func (c *Client) Socket(ctx context.Context, runID string) (*Subscription, error) {
	u, err := url.Parse(c.baseURL + "/v1/runs/" + url.PathEscape(runID) + "/ws")
	if err != nil {
		return nil, fmt.Errorf("parse url: %w", err)
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	header := http.Header{}
	header.Set("Authorization", "Bearer "+c.token)

	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, u.String(), header)
	if err != nil {
		if resp != nil {
			body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
			resp.Body.Close()
			return nil, fmt.Errorf("dial socket: %w", &StatusError{Code: resp.StatusCode, Body: errorMessage(body)})
		}
		return nil, fmt.Errorf("dial socket: %w", err)
	}

	sub := newSubscription()
	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	go func() {
		defer stop()
		defer conn.Close()
		var err error
		for {
			var data []byte
			if _, data, err = conn.ReadMessage(); err != nil {
				break
			}
			var rec struct {
				Type string `json:"type"`
			}
			if jsonErr := json.Unmarshal(data, &rec); jsonErr != nil {
				c.logger.Warn("skipping undecodable message", "error", jsonErr)
				continue
			}
			if !sub.handle(ctx, c, rec.Type, data) {
				break
			}
		}
		switch {
		case ctx.Err() != nil:
			err = ctx.Err()
		case websocket.IsCloseError(err, websocket.CloseNormalClosure):
			err = nil
		}
		if _, ok := sub.Closed(); ok {
			err = nil
		}
		sub.finish(err)
	}()
	return sub, nil
}
