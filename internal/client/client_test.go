package client

import (
	"context"
	"io"
	"log/slog"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mattjoyce/agentlive/internal/agent"
	"github.com/mattjoyce/agentlive/internal/api"
	"github.com/mattjoyce/agentlive/internal/store"
	"github.com/mattjoyce/agentlive/internal/stream"
)

const token = "t0k3n"

type memRuns struct {
	mu   sync.Mutex
	runs []*store.Run
	hub  *agent.Hub
}

func (m *memRuns) Submit(_ context.Context, prompt string) (*store.Run, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	run := &store.Run{ID: "run-" + prompt, Prompt: prompt, Status: store.RunStatusQueued, CreatedAt: time.Now()}
	m.runs = append(m.runs, run)
	m.hub.Open(run.ID)
	return run, nil
}

func (m *memRuns) GetByID(_ context.Context, id string) (*store.Run, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.runs {
		if r.ID == id {
			cp := *r
			return &cp, nil
		}
	}
	return nil, store.ErrNotFound
}

func (m *memRuns) List(_ context.Context, limit int) ([]*store.Run, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.runs[:min(limit, len(m.runs))], nil
}

func (m *memRuns) NextActive(_ context.Context) (*store.Run, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.runs {
		if r.Status.Active() {
			cp := *r
			return &cp, nil
		}
	}
	return nil, store.ErrNotFound
}

func (m *memRuns) Usage(context.Context, string) ([]*store.UsageRow, error) { return nil, nil }

func (m *memRuns) Events(_ context.Context, id string) (*agent.EventLog, error) {
	if log, ok := m.hub.Get(id); ok {
		return log, nil
	}
	return nil, store.ErrNotFound
}

func (m *memRuns) finish(id string, status store.RunStatus) {
	m.mu.Lock()
	for _, r := range m.runs {
		if r.ID == id {
			r.Status = status
		}
	}
	m.mu.Unlock()
	log, _ := m.hub.Get(id)
	log.Close()
}

func setup(t *testing.T) (*Client, *memRuns) {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	runs := &memRuns{hub: agent.NewHub(10)}
	srv := httptest.NewServer(api.New(api.Config{Token: token, HeartbeatInterval: 10 * time.Millisecond}, runs, logger).Handler())
	t.Cleanup(srv.Close)
	return New(srv.URL+"/", token, logger), runs
}

func TestCreateListGetRun(t *testing.T) {
	c, _ := setup(t)
	ctx := context.Background()

	created, err := c.CreateRun(ctx, "hello")
	require.NoError(t, err)
	assert.Equal(t, "run-hello", created.RunID)
	assert.Equal(t, "queued", created.Status)

	runs, err := c.ListRuns(ctx, 10)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, "hello", runs[0].Prompt)

	got, err := c.GetRun(ctx, "run-hello")
	require.NoError(t, err)
	assert.Equal(t, store.RunStatusQueued, got.Status)

	_, err = c.GetRun(ctx, "missing")
	var se *StatusError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, 404, se.Code)
	assert.Equal(t, "run not found", se.Body)
}

func TestBadTokenIsRejected(t *testing.T) {
	c, _ := setup(t)
	c.token = "wrong"
	_, err := c.ListRuns(context.Background(), 1)
	var se *StatusError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, 401, se.Code)
}

func TestNextRunAndWait(t *testing.T) {
	c, runs := setup(t)
	ctx := context.Background()

	_, err := c.NextRun(ctx)
	require.ErrorIs(t, err, ErrNoActiveRun)

	go func() {
		time.Sleep(30 * time.Millisecond)
		_, _ = runs.Submit(ctx, "later")
	}()
	waitCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	run, err := c.WaitForRun(waitCtx, 10*time.Millisecond, 40*time.Millisecond)
	require.NoError(t, err)
	assert.Equal(t, "run-later", run.ID)

	runs.finish("run-later", store.RunStatusDone)
	shortCtx, cancelShort := context.WithTimeout(ctx, 50*time.Millisecond)
	defer cancelShort()
	_, err = c.WaitForRun(shortCtx, 10*time.Millisecond, 20*time.Millisecond)
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func collectAll(t *testing.T, sub *Subscription) []stream.Event {
	t.Helper()
	var out []stream.Event
	timeout := time.After(5 * time.Second)
	for {
		select {
		case ev, ok := <-sub.Events():
			if !ok {
				return out
			}
			out = append(out, ev)
		case <-timeout:
			t.Fatalf("subscription did not end")
		}
	}
}

func TestStreamAndSocketDeliverTheSameRun(t *testing.T) {
	for _, transport := range []string{"sse", "ws"} {
		t.Run(transport, func(t *testing.T) {
			c, runs := setup(t)
			ctx := context.Background()
			created, err := c.CreateRun(ctx, "go")
			require.NoError(t, err)
			log, _ := runs.hub.Get(created.RunID)
			log.Append(stream.Thinking("plan", 0))

			var sub *Subscription
			if transport == "sse" {
				sub, err = c.Stream(ctx, created.RunID)
			} else {
				sub, err = c.Socket(ctx, created.RunID)
			}
			require.NoError(t, err)

			go func() {
				log.Append(stream.ToolCall("t1", "bash", oneArg("command", "ls"), true))
				log.Append(stream.ToolResult("bash", "[OK] exit 0\n\na.txt", true))
				log.Append(stream.Done("there is a.txt"))
				runs.finish(created.RunID, store.RunStatusDone)
			}()

			events := collectAll(t, sub)
			kinds := make([]string, len(events))
			for i, ev := range events {
				kinds[i] = string(ev.Type)
			}
			assert.Equal(t, "thinking,tool_call,tool_result,done", strings.Join(kinds, ","))
			require.NoError(t, sub.Err())
			closed, ok := sub.Closed()
			require.True(t, ok)
			assert.Equal(t, "done", closed.Status)

			cmd, _ := events[1].Args.Get("command")
			assert.Equal(t, "ls", cmd)
		})
	}
}

func TestStreamUnknownRun(t *testing.T) {
	c, _ := setup(t)
	_, err := c.Stream(context.Background(), "nope")
	var se *StatusError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, 404, se.Code)

	_, err = c.Socket(context.Background(), "nope")
	require.ErrorAs(t, err, &se)
	assert.Equal(t, 404, se.Code)
}

func TestReadSSE(t *testing.T) {
	body := ": hello\n\nevent: text\ndata: {\"type\":\"text\",\n data: \"content\":\"x\"}\n\ndata: plain\n\nevent: last\ndata: 1"
	var got []string
	err := readSSE(strings.NewReader(body), func(kind string, data []byte) bool {
		got = append(got, kind+"="+string(data))
		return true
	})
	require.NoError(t, err)
	assert.Equal(t, []string{
		"text={\"type\":\"text\",",
		"message=plain",
		"last=1",
	}, got)
}

func oneArg(key string, value any) *stream.Args {
	args := stream.NewArgs()
	args.Set(key, value)
	return args
}
