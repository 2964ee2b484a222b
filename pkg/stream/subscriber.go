package stream

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"nhooyr.io/websocket"

	"github.com/khushibohraAcc/smartscript-builder/pkg/config"
	"github.com/khushibohraAcc/smartscript-builder/pkg/logging"
	"github.com/khushibohraAcc/smartscript-builder/pkg/telemetry"
)

// Subscriber owns at most one realtime execution subscription at a time.
// Connect replaces any previous subscription outright; Disconnect is
// terminal for the current one. Events are delivered in frame order on the
// channel returned by Connect; once a CompletedEvent has been delivered the
// channel closes itself and no further frames are forwarded.
//
// All subscription state is serialized behind a mutex; socket I/O happens on
// goroutines tied to a subscription generation, and goroutines from a
// superseded generation are ignored.
type Subscriber struct {
	wsBase string
	cfg    config.StreamConfig
	logger *logging.Logger
	hub    *telemetry.Hub

	mu             sync.Mutex
	subID          int
	status         Status
	executionID    string
	conn           *websocket.Conn
	connCancel     context.CancelFunc
	dialCtx        context.Context
	attempts       int
	reconnectTimer *time.Timer
	events         chan Event
	eventsClosed   bool
	completed      bool
}

// Option customizes a Subscriber.
type Option func(*Subscriber)

// WithLogger attaches a structured logger.
func WithLogger(logger *logging.Logger) Option {
	return func(s *Subscriber) { s.logger = logger }
}

// WithTelemetry publishes lifecycle and progress events to the given hub.
func WithTelemetry(hub *telemetry.Hub) Option {
	return func(s *Subscriber) { s.hub = hub }
}

// New constructs a Subscriber from configuration.
func New(cfg *config.Config, opts ...Option) *Subscriber {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	s := &Subscriber{
		wsBase: cfg.WebSocketURL(),
		cfg:    cfg.Stream,
		status: StatusDisconnected,
	}
	if s.cfg.DialTimeout <= 0 {
		s.cfg.DialTimeout = config.DefaultDialTimeout
	}
	if s.cfg.BackoffBase <= 0 {
		s.cfg.BackoffBase = config.DefaultBackoffBase
	}
	if s.cfg.BackoffCap < s.cfg.BackoffBase {
		s.cfg.BackoffCap = config.DefaultBackoffCap
	}
	if s.cfg.EventBuffer <= 0 {
		s.cfg.EventBuffer = 64
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Status returns the current connection status.
func (s *Subscriber) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// ExecutionID returns the execution the subscription is attached to, or ""
// when idle.
func (s *Subscriber) ExecutionID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.executionID
}

// IsConnected reports whether the underlying socket is open.
func (s *Subscriber) IsConnected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status == StatusConnected && s.conn != nil
}

// Connect opens a realtime subscription for the given execution. Any
// previous subscription is discarded outright. The returned channel carries
// status transitions, step updates, server-signaled errors, and exactly one
// CompletedEvent; it is closed when the subscription ends (completion,
// Disconnect, or an exhausted reconnect budget). ctx bounds dialing,
// including reconnect dials.
func (s *Subscriber) Connect(ctx context.Context, executionID string) (<-chan Event, error) {
	executionID = strings.TrimSpace(executionID)
	if executionID == "" {
		return nil, fmt.Errorf("execution id is required")
	}
	if s.wsBase == "" {
		return nil, fmt.Errorf("realtime endpoint is not configured")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	s.mu.Lock()
	s.teardownLocked(websocket.StatusNormalClosure, "superseded")

	s.subID++
	id := s.subID
	s.executionID = executionID
	s.attempts = 0
	s.completed = false
	s.dialCtx = ctx
	s.events = make(chan Event, s.cfg.EventBuffer)
	s.eventsClosed = false
	events := s.events
	s.setStatusLocked(StatusConnecting)
	s.mu.Unlock()

	go s.dialAndRead(id)
	return events, nil
}

// Disconnect ends the current subscription: it cancels any pending reconnect
// timer, closes the socket with a normal-closure code, clears the execution
// id, and forces the reconnect counter to its maximum so no close event can
// schedule another attempt. A later Connect starts fresh.
func (s *Subscriber) Disconnect() {
	s.mu.Lock()
	s.subID++
	conn := s.detachLocked()
	s.attempts = s.cfg.MaxReconnects
	s.executionID = ""
	s.setStatusLocked(StatusDisconnected)
	s.closeEventsLocked()
	s.mu.Unlock()

	if conn != nil {
		_ = conn.Close(websocket.StatusNormalClosure, "client disconnect")
	}
}

// detachLocked stops the reconnect timer and releases the socket without
// touching counters or status. Caller holds s.mu and closes the returned conn.
func (s *Subscriber) detachLocked() *websocket.Conn {
	if s.reconnectTimer != nil {
		s.reconnectTimer.Stop()
		s.reconnectTimer = nil
	}
	if s.connCancel != nil {
		s.connCancel()
		s.connCancel = nil
	}
	conn := s.conn
	s.conn = nil
	return conn
}

// teardownLocked discards the current subscription entirely, used when a new
// Connect supersedes it.
func (s *Subscriber) teardownLocked(code websocket.StatusCode, reason string) {
	conn := s.detachLocked()
	if conn != nil {
		go func() { _ = conn.Close(code, reason) }()
	}
	s.closeEventsLocked()
}

func (s *Subscriber) executionURL(executionID string) string {
	return s.wsBase + "/ws/execution/" + url.PathEscape(executionID)
}

func (s *Subscriber) dialAndRead(id int) {
	s.mu.Lock()
	if id != s.subID || s.executionID == "" {
		s.mu.Unlock()
		return
	}
	target := s.executionURL(s.executionID)
	parent := s.dialCtx
	s.mu.Unlock()

	dialCtx, cancel := context.WithTimeout(parent, s.cfg.DialTimeout)
	conn, resp, err := websocket.Dial(dialCtx, target, nil)
	cancel()
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	if err != nil {
		s.mu.Lock()
		defer s.mu.Unlock()
		if id != s.subID {
			return
		}
		s.logger.Warn(logging.CategoryStream, "stream.dial_failed", err.Error(), map[string]any{
			"url": target,
		})
		s.emitLocked(ErrorEvent{Message: "connection error"})
		s.setStatusLocked(StatusError)
		s.setStatusLocked(StatusDisconnected)
		s.scheduleReconnectLocked(id)
		return
	}

	s.mu.Lock()
	if id != s.subID || s.executionID == "" {
		s.mu.Unlock()
		go func() { _ = conn.Close(websocket.StatusNormalClosure, "superseded") }()
		return
	}
	conn.SetReadLimit(1 << 20)
	connCtx, connCancel := context.WithCancel(context.Background())
	s.conn = conn
	s.connCancel = connCancel
	s.attempts = 0
	metricConnects.Inc()
	s.logger.Info(logging.CategoryStream, "stream.connected", "realtime channel open", map[string]any{
		"url": target,
	})
	s.setStatusLocked(StatusConnected)
	s.mu.Unlock()

	s.startPing(connCtx, conn)
	s.readLoop(id, connCtx, conn)
}

func (s *Subscriber) startPing(ctx context.Context, conn *websocket.Conn) {
	interval := s.cfg.PingInterval
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
				_ = conn.Ping(pingCtx)
				cancel()
			}
		}
	}()
}

func (s *Subscriber) readLoop(id int, ctx context.Context, conn *websocket.Conn) {
	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			s.handleClose(id, err)
			return
		}
		s.route(id, data)
	}
}

// handleClose drives the disconnected transition after the socket ends and
// consults the reconnection policy.
func (s *Subscriber) handleClose(id int, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if id != s.subID {
		return
	}
	if s.connCancel != nil {
		s.connCancel()
		s.connCancel = nil
	}
	s.conn = nil

	closeStatus := websocket.CloseStatus(err)
	normal := closeStatus == websocket.StatusNormalClosure
	if closeStatus == -1 {
		// No close frame at all: a socket-level failure, not a shutdown.
		s.logger.Warn(logging.CategoryStream, "stream.socket_error", err.Error(), nil)
		s.emitLocked(ErrorEvent{Message: "connection error"})
		s.setStatusLocked(StatusError)
	}
	s.setStatusLocked(StatusDisconnected)
	s.logger.Info(logging.CategoryStream, "stream.closed", "realtime channel closed", map[string]any{
		"close_status": int(closeStatus),
	})
	if normal {
		// Code 1000 marks an intentional shutdown; the stream is over.
		s.closeEventsLocked()
		return
	}
	s.scheduleReconnectLocked(id)
}

// scheduleReconnectLocked arms the backoff timer for the next attempt, or
// gives up when the budget is spent. Caller holds s.mu.
func (s *Subscriber) scheduleReconnectLocked(id int) {
	if s.executionID == "" || s.completed {
		return
	}
	if s.attempts >= s.cfg.MaxReconnects {
		s.logger.Warn(logging.CategoryStream, "stream.reconnect_exhausted", "reconnect budget spent", map[string]any{
			"attempts": s.attempts,
		})
		s.closeEventsLocked()
		return
	}
	s.attempts++
	attempt := s.attempts
	delay := reconnectDelay(attempt, s.cfg.BackoffBase, s.cfg.BackoffCap)
	metricReconnects.Inc()
	s.hub.Publish(telemetry.Event{
		Type:        telemetry.EventStreamReconnecting,
		ExecutionID: s.executionID,
		Data:        map[string]any{"attempt": attempt, "delay_ms": delay.Milliseconds()},
	})
	s.logger.Info(logging.CategoryStream, "stream.reconnecting", "scheduling reconnect", map[string]any{
		"attempt": attempt,
		"delay":   delay.String(),
	})
	s.reconnectTimer = time.AfterFunc(delay, func() {
		s.mu.Lock()
		if id != s.subID || s.executionID == "" {
			s.mu.Unlock()
			return
		}
		s.reconnectTimer = nil
		s.setStatusLocked(StatusConnecting)
		s.mu.Unlock()
		s.dialAndRead(id)
	})
}

// route decodes one inbound frame and dispatches it. Malformed frames are
// logged and dropped without touching connection state.
func (s *Subscriber) route(id int, data []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if id != s.subID || s.completed {
		return
	}

	msg, err := parseInbound(data)
	if err != nil {
		metricDroppedFrames.Inc()
		s.logger.Warn(logging.CategoryStream, "stream.malformed_frame", err.Error(), nil)
		return
	}
	if msg.ExecutionID != "" && msg.ExecutionID != s.executionID {
		metricDroppedFrames.Inc()
		s.logger.Debug(logging.CategoryStream, "stream.foreign_frame", "frame for another execution", map[string]any{
			"frame_execution_id": msg.ExecutionID,
		})
		return
	}

	switch msg.Type {
	case frameStepComplete:
		step, err := parseStep(msg.Data)
		if err != nil {
			metricDroppedFrames.Inc()
			s.logger.Warn(logging.CategoryStream, "stream.malformed_frame", err.Error(), nil)
			return
		}
		metricFrames.WithLabelValues(frameStepComplete).Inc()
		s.hub.Publish(telemetry.Event{
			Type:        telemetry.EventStepCompleted,
			ExecutionID: s.executionID,
			Data:        map[string]any{"step_number": step.StepNumber, "action": step.Action, "result": step.Result},
		})
		s.emitLocked(StepEvent{Step: step})

	case frameExecutionComplete:
		result, err := parseResult(msg.Data)
		if err != nil {
			metricDroppedFrames.Inc()
			s.logger.Warn(logging.CategoryStream, "stream.malformed_frame", err.Error(), nil)
			return
		}
		metricFrames.WithLabelValues(frameExecutionComplete).Inc()
		s.hub.Publish(telemetry.Event{
			Type:        telemetry.EventExecutionCompleted,
			ExecutionID: result.ExecutionID,
			Data:        map[string]any{"status": string(result.Status)},
		})
		s.emitLocked(CompletedEvent{Result: result})
		s.completeLocked()

	case frameError:
		metricFrames.WithLabelValues(frameError).Inc()
		message := parseErrorMessage(msg.Data)
		s.hub.Publish(telemetry.Event{
			Type:        telemetry.EventStreamError,
			ExecutionID: s.executionID,
			Data:        map[string]any{"message": message},
		})
		s.emitLocked(ErrorEvent{Message: message})

	default:
		metricDroppedFrames.Inc()
		s.logger.Warn(logging.CategoryStream, "stream.unknown_frame", "ignoring unknown frame type", map[string]any{
			"type": msg.Type,
		})
	}
}

// completeLocked performs the equivalent of Disconnect after the terminal
// message: the execution is over, so the channel tears itself down and no
// further frames are forwarded. Caller holds s.mu.
func (s *Subscriber) completeLocked() {
	s.completed = true
	s.subID++
	conn := s.detachLocked()
	if conn != nil {
		go func() { _ = conn.Close(websocket.StatusNormalClosure, "execution complete") }()
	}
	s.attempts = s.cfg.MaxReconnects
	s.executionID = ""
	s.setStatusLocked(StatusDisconnected)
	s.closeEventsLocked()
}

func (s *Subscriber) setStatusLocked(next Status) {
	if s.status == next {
		return
	}
	s.status = next
	s.emitLocked(StatusEvent{Status: next})
	switch next {
	case StatusConnecting:
		s.hub.Publish(telemetry.Event{Type: telemetry.EventStreamConnecting, ExecutionID: s.executionID})
	case StatusConnected:
		s.hub.Publish(telemetry.Event{Type: telemetry.EventStreamConnected, ExecutionID: s.executionID})
	case StatusDisconnected:
		s.hub.Publish(telemetry.Event{Type: telemetry.EventStreamDisconnected, ExecutionID: s.executionID})
	case StatusError:
		s.hub.Publish(telemetry.Event{Type: telemetry.EventStreamError, ExecutionID: s.executionID})
	}
}

// emitLocked delivers an event without blocking the socket reader. A full
// consumer channel drops the event rather than stalling frame processing.
func (s *Subscriber) emitLocked(evt Event) {
	if s.events == nil || s.eventsClosed {
		return
	}
	select {
	case s.events <- evt:
	default:
		metricDroppedEvents.Inc()
		s.logger.Warn(logging.CategoryStream, "stream.slow_consumer", "event dropped: consumer not keeping up", nil)
	}
}

func (s *Subscriber) closeEventsLocked() {
	if s.events != nil && !s.eventsClosed {
		close(s.events)
		s.eventsClosed = true
	}
}
