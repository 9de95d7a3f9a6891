// Package realtime holds the client side of an OpenAI Realtime session that
// the video platform bridges into a call. The session is only used for
// control messages; audio never passes through this process.
package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	defaultHandshakeTimeout = 15 * time.Second
	defaultWriteTimeout     = 5 * time.Second
	closeGracePeriod        = 2 * time.Second
)

var ErrSessionClosed = errors.New("realtime session closed")

// Subprotocols returns the websocket subprotocols OpenAI uses to carry the
// API key when custom headers are not available to the upstream hop.
func Subprotocols(openAIKey string) []string {
	return []string{
		"realtime",
		"openai-insecure-api-key." + openAIKey,
		"openai-beta.realtime-v1",
	}
}

type DialOptions struct {
	Header           http.Header
	Subprotocols     []string
	HandshakeTimeout time.Duration
	WriteTimeout     time.Duration
	// MaxDuration bounds how long the session may stay open. Zero means no bound.
	MaxDuration time.Duration
	Logger      *slog.Logger
}

// SessionUpdate is the subset of session configuration the orchestrator sets.
type SessionUpdate struct {
	Instructions string `json:"instructions,omitempty"`
}

type Session struct {
	conn         *websocket.Conn
	logger       *slog.Logger
	writeTimeout time.Duration

	writeMu sync.Mutex

	cancel    context.CancelFunc
	done      chan struct{}
	closeOnce sync.Once

	errMu sync.Mutex
	err   error
}

// Dial opens the websocket and starts the read loop. ctx only bounds the
// handshake; the session itself lives until Close, a remote close, or
// MaxDuration.
func Dial(ctx context.Context, url string, opts DialOptions) (*Session, error) {
	handshake := opts.HandshakeTimeout
	if handshake <= 0 {
		handshake = defaultHandshakeTimeout
	}
	dialer := websocket.Dialer{
		Proxy:            http.ProxyFromEnvironment,
		HandshakeTimeout: handshake,
		Subprotocols:     opts.Subprotocols,
	}

	conn, resp, err := dialer.DialContext(ctx, url, opts.Header)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("dial realtime: %w (status %d)", err, resp.StatusCode)
		}
		return nil, fmt.Errorf("dial realtime: %w", err)
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	writeTimeout := opts.WriteTimeout
	if writeTimeout <= 0 {
		writeTimeout = defaultWriteTimeout
	}

	var (
		runCtx context.Context
		cancel context.CancelFunc
	)
	if opts.MaxDuration > 0 {
		runCtx, cancel = context.WithTimeout(context.Background(), opts.MaxDuration)
	} else {
		runCtx, cancel = context.WithCancel(context.Background())
	}

	s := &Session{
		conn:         conn,
		logger:       logger,
		writeTimeout: writeTimeout,
		cancel:       cancel,
		done:         make(chan struct{}),
	}
	go s.readLoop()
	go func() {
		select {
		case <-runCtx.Done():
			s.shutdown(runCtx.Err())
		case <-s.done:
		}
	}()
	return s, nil
}

// UpdateSession sends a session.update event.
func (s *Session) UpdateSession(ctx context.Context, update SessionUpdate) error {
	return s.send(ctx, clientEvent{Type: "session.update", Session: &update})
}

// Done is closed once the session has ended for any reason.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// Err reports why the session ended; nil while it is still open or after a
// clean local Close.
func (s *Session) Err() error {
	s.errMu.Lock()
	defer s.errMu.Unlock()
	return s.err
}

func (s *Session) Close() error {
	s.shutdown(nil)
	return nil
}

type clientEvent struct {
	Type    string         `json:"type"`
	Session *SessionUpdate `json:"session,omitempty"`
}

type serverEvent struct {
	Type  string `json:"type"`
	Error *struct {
		Type    string `json:"type"`
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

func (s *Session) send(ctx context.Context, ev clientEvent) error {
	select {
	case <-s.done:
		return ErrSessionClosed
	default:
	}

	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("encode %s: %w", ev.Type, err)
	}

	deadline := time.Now().Add(s.writeTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	_ = s.conn.SetWriteDeadline(deadline)
	if err := s.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
		return fmt.Errorf("write %s: %w", ev.Type, err)
	}
	return nil
}

func (s *Session) readLoop() {
	for {
		messageType, data, err := s.conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.shutdown(nil)
			} else {
				s.shutdown(err)
			}
			return
		}
		if messageType != websocket.TextMessage {
			continue
		}

		var ev serverEvent
		if err := json.Unmarshal(data, &ev); err != nil {
			s.logger.Debug("realtime: ignoring undecodable event", "error", err)
			continue
		}
		switch ev.Type {
		case "error":
			if ev.Error != nil {
				s.logger.Warn("realtime: server error event",
					"error_type", ev.Error.Type,
					"code", ev.Error.Code,
					"message", ev.Error.Message,
				)
			}
		case "session.created", "session.updated":
			s.logger.Debug("realtime: " + ev.Type)
		}
	}
}

func (s *Session) shutdown(cause error) {
	s.closeOnce.Do(func() {
		if cause != nil && !errors.Is(cause, context.Canceled) {
			s.errMu.Lock()
			s.err = cause
			s.errMu.Unlock()
		}

		s.writeMu.Lock()
		_ = s.conn.WriteControl(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(closeGracePeriod),
		)
		s.writeMu.Unlock()

		_ = s.conn.Close()
		s.cancel()
		close(s.done)
	})
}
