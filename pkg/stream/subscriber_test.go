package stream

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"nhooyr.io/websocket"

	"github.com/khushibohraAcc/smartscript-builder/pkg/api"
	"github.com/khushibohraAcc/smartscript-builder/pkg/config"
)

func streamConfig(t *testing.T, srv *httptest.Server) *config.Config {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.Server.BaseURL = srv.URL
	cfg.Stream.DialTimeout = 2 * time.Second
	cfg.Stream.BackoffBase = 5 * time.Millisecond
	cfg.Stream.BackoffCap = 50 * time.Millisecond
	cfg.Stream.PingInterval = 0
	return cfg
}

func sendFrame(t *testing.T, ctx context.Context, conn *websocket.Conn, frameType, executionID string, data any) {
	t.Helper()
	payload, err := json.Marshal(map[string]any{
		"type":         frameType,
		"execution_id": executionID,
		"data":         data,
	})
	require.NoError(t, err)
	require.NoError(t, conn.Write(ctx, websocket.MessageText, payload))
}

func nextEvent(t *testing.T, events <-chan Event) Event {
	t.Helper()
	select {
	case evt, ok := <-events:
		require.True(t, ok, "event channel closed unexpectedly")
		return evt
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for event")
		return nil
	}
}

func expectStatus(t *testing.T, events <-chan Event, want Status) {
	t.Helper()
	evt := nextEvent(t, events)
	status, ok := evt.(StatusEvent)
	require.True(t, ok, "expected StatusEvent, got %T", evt)
	assert.Equal(t, want, status.Status)
}

func expectClosed(t *testing.T, events <-chan Event) {
	t.Helper()
	select {
	case evt, ok := <-events:
		if ok {
			t.Fatalf("expected closed channel, got event %T", evt)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for channel close")
	}
}

func TestExecutionStreamDeliversStepsThenCompletion(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/ws/execution/exec-42", r.URL.Path)
		conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{InsecureSkipVerify: true})
		if err != nil {
			return
		}
		defer conn.Close(websocket.StatusNormalClosure, "done")

		ctx := r.Context()
		sendFrame(t, ctx, conn, "step_complete", "exec-42", map[string]any{
			"step_number": 1, "action": "open login page", "result": true, "latency": 310.0,
		})
		sendFrame(t, ctx, conn, "step_complete", "exec-42", map[string]any{
			"step_number": 2, "action": "submit credentials", "result": true, "latency": 95.5,
		})
		sendFrame(t, ctx, conn, "execution_complete", "exec-42", map[string]any{
			"execution_id": "exec-42", "status": "PASS", "test_name": "login flow",
		})
		<-ctx.Done()
	}))
	t.Cleanup(srv.Close)

	sub := New(streamConfig(t, srv))
	events, err := sub.Connect(context.Background(), "exec-42")
	require.NoError(t, err)

	expectStatus(t, events, StatusConnecting)
	expectStatus(t, events, StatusConnected)

	step1, ok := nextEvent(t, events).(StepEvent)
	require.True(t, ok)
	assert.Equal(t, 1, step1.Step.StepNumber)
	assert.Equal(t, "open login page", step1.Step.Action)

	step2, ok := nextEvent(t, events).(StepEvent)
	require.True(t, ok)
	assert.Equal(t, 2, step2.Step.StepNumber)

	completed, ok := nextEvent(t, events).(CompletedEvent)
	require.True(t, ok)
	assert.Equal(t, "exec-42", completed.Result.ExecutionID)
	assert.Equal(t, api.ExecutionPass, completed.Result.Status)

	expectStatus(t, events, StatusDisconnected)
	expectClosed(t, events)

	assert.Equal(t, StatusDisconnected, sub.Status())
	assert.False(t, sub.IsConnected())
	assert.Equal(t, "", sub.ExecutionID(), "completion clears the subscription")
}

func TestFramesAfterCompletionProduceNoEvents(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{InsecureSkipVerify: true})
		if err != nil {
			return
		}
		ctx := r.Context()
		sendFrame(t, ctx, conn, "execution_complete", "exec-7", map[string]any{
			"execution_id": "exec-7", "status": "FAIL",
		})
		// Late frames race the client's self-close; either way none may
		// surface as events.
		payload, _ := json.Marshal(map[string]any{
			"type": "step_complete", "execution_id": "exec-7",
			"data": map[string]any{"step_number": 99, "action": "late"},
		})
		_ = conn.Write(ctx, websocket.MessageText, payload)
		<-ctx.Done()
	}))
	t.Cleanup(srv.Close)

	sub := New(streamConfig(t, srv))
	events, err := sub.Connect(context.Background(), "exec-7")
	require.NoError(t, err)

	sawCompleted := false
	for evt := range events {
		switch e := evt.(type) {
		case CompletedEvent:
			require.False(t, sawCompleted, "completion must be delivered at most once")
			sawCompleted = true
		case StepEvent:
			t.Fatalf("step %d delivered after completion ordering", e.Step.StepNumber)
		}
	}
	assert.True(t, sawCompleted)
}

func TestMalformedFramesAreDroppedWithoutStateChange(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{InsecureSkipVerify: true})
		if err != nil {
			return
		}
		ctx := r.Context()
		_ = conn.Write(ctx, websocket.MessageText, []byte("not json at all"))
		_ = conn.Write(ctx, websocket.MessageText, []byte(`{"execution_id":"exec-9"}`))
		// Tagged step with an invalid payload shape is also dropped.
		sendFrame(t, ctx, conn, "step_complete", "exec-9", map[string]any{"step_number": 1})
		sendFrame(t, ctx, conn, "step_complete", "exec-9", map[string]any{
			"step_number": 1, "action": "tap button", "result": false, "error": "element not found",
		})
		<-ctx.Done()
	}))
	t.Cleanup(srv.Close)

	sub := New(streamConfig(t, srv))
	events, err := sub.Connect(context.Background(), "exec-9")
	require.NoError(t, err)

	expectStatus(t, events, StatusConnecting)
	expectStatus(t, events, StatusConnected)

	step, ok := nextEvent(t, events).(StepEvent)
	require.True(t, ok, "only the well-formed step may surface")
	assert.Equal(t, "tap button", step.Step.Action)
	assert.Equal(t, "element not found", step.Step.Error)
	assert.Equal(t, StatusConnected, sub.Status())

	sub.Disconnect()
}

func TestServerErrorFrameKeepsConnectionOpen(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{InsecureSkipVerify: true})
		if err != nil {
			return
		}
		ctx := r.Context()
		sendFrame(t, ctx, conn, "error", "exec-3", map[string]any{"message": "device went offline"})
		sendFrame(t, ctx, conn, "error", "exec-3", map[string]any{})
		sendFrame(t, ctx, conn, "step_complete", "exec-3", map[string]any{
			"step_number": 1, "action": "retry tap", "result": true,
		})
		<-ctx.Done()
	}))
	t.Cleanup(srv.Close)

	sub := New(streamConfig(t, srv))
	events, err := sub.Connect(context.Background(), "exec-3")
	require.NoError(t, err)

	expectStatus(t, events, StatusConnecting)
	expectStatus(t, events, StatusConnected)

	errEvt, ok := nextEvent(t, events).(ErrorEvent)
	require.True(t, ok)
	assert.Equal(t, "device went offline", errEvt.Message)

	errEvt, ok = nextEvent(t, events).(ErrorEvent)
	require.True(t, ok)
	assert.Equal(t, "unknown error", errEvt.Message)

	_, ok = nextEvent(t, events).(StepEvent)
	require.True(t, ok, "connection must stay open after a server error frame")
	assert.Equal(t, StatusConnected, sub.Status())

	sub.Disconnect()
}

func TestUnknownFrameTypesAreIgnored(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{InsecureSkipVerify: true})
		if err != nil {
			return
		}
		ctx := r.Context()
		sendFrame(t, ctx, conn, "heartbeat", "exec-5", map[string]any{})
		sendFrame(t, ctx, conn, "step_complete", "exec-5", map[string]any{
			"step_number": 1, "action": "scroll", "result": true,
		})
		<-ctx.Done()
	}))
	t.Cleanup(srv.Close)

	sub := New(streamConfig(t, srv))
	events, err := sub.Connect(context.Background(), "exec-5")
	require.NoError(t, err)

	expectStatus(t, events, StatusConnecting)
	expectStatus(t, events, StatusConnected)
	step, ok := nextEvent(t, events).(StepEvent)
	require.True(t, ok)
	assert.Equal(t, "scroll", step.Step.Action)

	sub.Disconnect()
}

func TestAbnormalCloseReconnectsAndResumes(t *testing.T) {
	var dials atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{InsecureSkipVerify: true})
		if err != nil {
			return
		}
		if dials.Add(1) == 1 {
			_ = conn.Close(websocket.StatusInternalError, "backend restarting")
			return
		}
		ctx := r.Context()
		sendFrame(t, ctx, conn, "execution_complete", "exec-11", map[string]any{
			"execution_id": "exec-11", "status": "WARNING",
		})
		<-ctx.Done()
	}))
	t.Cleanup(srv.Close)

	sub := New(streamConfig(t, srv))
	events, err := sub.Connect(context.Background(), "exec-11")
	require.NoError(t, err)

	expectStatus(t, events, StatusConnecting)
	expectStatus(t, events, StatusConnected)
	expectStatus(t, events, StatusDisconnected)
	expectStatus(t, events, StatusConnecting)
	expectStatus(t, events, StatusConnected)

	completed, ok := nextEvent(t, events).(CompletedEvent)
	require.True(t, ok)
	assert.Equal(t, api.ExecutionWarning, completed.Result.Status)

	expectStatus(t, events, StatusDisconnected)
	expectClosed(t, events)
	assert.Equal(t, int32(2), dials.Load())
}

func TestReconnectBudgetExhausted(t *testing.T) {
	var requests atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if requests.Add(1) > 1 {
			http.Error(w, "unavailable", http.StatusServiceUnavailable)
			return
		}
		conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{InsecureSkipVerify: true})
		if err != nil {
			return
		}
		_ = conn.Close(websocket.StatusInternalError, "going away")
	}))
	t.Cleanup(srv.Close)

	sub := New(streamConfig(t, srv))
	events, err := sub.Connect(context.Background(), "exec-13")
	require.NoError(t, err)

	// Drain until the subscriber gives up and closes the channel.
	for range events {
	}

	assert.Equal(t, StatusDisconnected, sub.Status())
	// One initial dial plus exactly three reconnect attempts.
	assert.Equal(t, int32(4), requests.Load())

	// No further timer is armed once the budget is spent.
	time.Sleep(10 * reconnectDelay(3, 5*time.Millisecond, 50*time.Millisecond))
	assert.Equal(t, int32(4), requests.Load())
}

func TestDisconnectCancelsPendingReconnect(t *testing.T) {
	var requests atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
		conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{InsecureSkipVerify: true})
		if err != nil {
			return
		}
		_ = conn.Close(websocket.StatusInternalError, "going away")
	}))
	t.Cleanup(srv.Close)

	cfg := streamConfig(t, srv)
	// A generous backoff keeps the timer pending while we disconnect.
	cfg.Stream.BackoffBase = 250 * time.Millisecond
	cfg.Stream.BackoffCap = 2 * time.Second

	sub := New(cfg)
	events, err := sub.Connect(context.Background(), "exec-17")
	require.NoError(t, err)

	expectStatus(t, events, StatusConnecting)
	expectStatus(t, events, StatusConnected)
	expectStatus(t, events, StatusDisconnected)

	sub.Disconnect()
	expectClosed(t, events)

	time.Sleep(time.Second)
	assert.Equal(t, int32(1), requests.Load(), "pending reconnect must have been cancelled")
	assert.Equal(t, StatusDisconnected, sub.Status())
	assert.Equal(t, "", sub.ExecutionID())
}

func TestConnectReplacesPreviousSubscription(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{InsecureSkipVerify: true})
		if err != nil {
			return
		}
		defer conn.Close(websocket.StatusNormalClosure, "done")
		<-r.Context().Done()
	}))
	t.Cleanup(srv.Close)

	sub := New(streamConfig(t, srv))
	first, err := sub.Connect(context.Background(), "exec-a")
	require.NoError(t, err)
	expectStatus(t, first, StatusConnecting)
	expectStatus(t, first, StatusConnected)

	second, err := sub.Connect(context.Background(), "exec-b")
	require.NoError(t, err)

	expectClosed(t, first)
	assert.Equal(t, "exec-b", sub.ExecutionID())

	expectStatus(t, second, StatusConnecting)
	expectStatus(t, second, StatusConnected)
	sub.Disconnect()
}

func TestConnectRequiresExecutionID(t *testing.T) {
	sub := New(config.DefaultConfig())
	_, err := sub.Connect(context.Background(), "   ")
	assert.Error(t, err)
}

func TestDispatchAdapter(t *testing.T) {
	events := make(chan Event, 8)
	events <- StatusEvent{Status: StatusConnected}
	events <- StepEvent{Step: api.StepUpdate{StepNumber: 1, Action: "tap"}}
	events <- ErrorEvent{Message: "transient"}
	events <- CompletedEvent{Result: api.ExecutionResult{ExecutionID: "exec-1", Status: api.ExecutionPass}}
	close(events)

	var statuses []Status
	var steps []int
	var errs []string
	var completions []string
	Dispatch(events, Handlers{
		OnStatusChange: func(s Status) { statuses = append(statuses, s) },
		OnStep:         func(s api.StepUpdate) { steps = append(steps, s.StepNumber) },
		OnError:        func(msg string) { errs = append(errs, msg) },
		OnComplete:     func(r api.ExecutionResult) { completions = append(completions, r.ExecutionID) },
	})

	assert.Equal(t, []Status{StatusConnected}, statuses)
	assert.Equal(t, []int{1}, steps)
	assert.Equal(t, []string{"transient"}, errs)
	assert.Equal(t, []string{"exec-1"}, completions)
}
