package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/Sahoo999/meeting-ai/pkg/apierror"
	"github.com/Sahoo999/meeting-ai/pkg/meetings"
	"github.com/Sahoo999/meeting-ai/pkg/metrics"
	"github.com/Sahoo999/meeting-ai/pkg/mw"
	"github.com/Sahoo999/meeting-ai/pkg/realtime"
	"github.com/Sahoo999/meeting-ai/pkg/realtime/sessions"
	"github.com/Sahoo999/meeting-ai/pkg/stream"
)

const defaultCompensationTimeout = 5 * time.Second

// WebhookHandler drives the meeting lifecycle from video platform events.
type WebhookHandler struct {
	Store    meetings.Store
	Platform VideoPlatform
	Sessions *sessions.Tracker
	Logger   *slog.Logger

	MaxBodyBytes int64
	// OpenAIKey is consulted on every session start.
	OpenAIKey func() string
	Now       func() time.Time
	// CompensationTimeout bounds the rollback write after a failed start.
	CompensationTimeout time.Duration
}

type statusResponse struct {
	Status string `json:"status"`
}

func (h WebhookHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	eventType, err := h.handle(w, r)

	outcome := "ok"
	if err != nil {
		e := apierror.FromError(err)
		outcome = strconv.Itoa(e.Status)
		h.logFailure(r, eventType, e)
		apierror.WriteJSON(w, e.Status, apierror.Envelope{Error: e.Message})
	} else {
		apierror.WriteJSON(w, http.StatusOK, statusResponse{Status: "ok"})
	}
	if eventType != "" {
		metrics.RecordWebhookEvent(eventType, outcome)
	}
}

func (h WebhookHandler) handle(w http.ResponseWriter, r *http.Request) (string, error) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		return "", &apierror.Error{Kind: apierror.KindInvalidRequest, Status: http.StatusMethodNotAllowed, Message: "method not allowed"}
	}

	signature := r.Header.Get("X-Signature")
	apiKey := r.Header.Get("X-Api-Key")
	if signature == "" || apiKey == "" {
		return "", apierror.InvalidRequest("missing signature or api key")
	}

	body, err := h.readBody(w, r)
	if err != nil {
		return "", err
	}

	if !h.Platform.VerifyWebhook(body, signature) {
		return "", apierror.Unauthorized("invalid signature")
	}

	eventType, ok := stream.DecodeEventType(body)
	if !ok {
		return "", apierror.InvalidRequest("invalid JSON")
	}

	switch eventType {
	case stream.EventCallSessionStarted:
		return eventType, h.sessionStarted(r.Context(), body)
	case stream.EventCallSessionParticipantLeft:
		return eventType, h.participantLeft(r.Context(), body)
	default:
		return eventType, nil
	}
}

func (h WebhookHandler) readBody(w http.ResponseWriter, r *http.Request) ([]byte, error) {
	limit := h.MaxBodyBytes
	if limit <= 0 {
		limit = 1 << 20
	}
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, limit))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return nil, &apierror.Error{Kind: apierror.KindInvalidRequest, Status: http.StatusRequestEntityTooLarge, Message: "request body too large"}
		}
		return nil, apierror.InvalidRequest("invalid request body")
	}
	return body, nil
}

func (h WebhookHandler) sessionStarted(ctx context.Context, body []byte) error {
	var ev stream.CallSessionStartedEvent
	if err := json.Unmarshal(body, &ev); err != nil {
		return apierror.InvalidRequest("Missing meetingId")
	}
	meetingID := ev.MeetingID()
	if meetingID == "" {
		return apierror.InvalidRequest("Missing meetingId")
	}

	meeting, err := h.Store.ActivateMeeting(ctx, meetingID, h.now())
	if err != nil {
		if errors.Is(err, meetings.ErrMeetingNotFound) {
			return apierror.NotFound("MEETING NOT FOUND")
		}
		return apierror.Internal("failed to activate meeting", err)
	}
	metrics.RecordTransition(string(meetings.StatusActive))

	agent, err := h.Store.GetAgent(ctx, meeting.AgentID)
	if err != nil {
		h.compensate(ctx, meetingID, err)
		if errors.Is(err, meetings.ErrAgentNotFound) {
			return apierror.InvalidRequest("Agent not found")
		}
		return apierror.Internal("failed to load agent", err)
	}

	openAIKey := ""
	if h.OpenAIKey != nil {
		openAIKey = h.OpenAIKey()
	}
	if openAIKey == "" {
		h.compensate(ctx, meetingID, errors.New("openai api key not configured"))
		return apierror.Configuration("OpenAI API key not configured", nil)
	}

	start := time.Now()
	sess, err := h.connectAgent(ctx, meetingID, agent, openAIKey)
	metrics.RecordRealtimeConnect(time.Since(start), err == nil)
	if err != nil {
		h.compensate(ctx, meetingID, err)
		return apierror.Integration("Failed to connect AI agent", err)
	}
	h.track(meetingID, sess)
	return nil
}

func (h WebhookHandler) connectAgent(ctx context.Context, meetingID string, agent meetings.Agent, openAIKey string) (AgentSession, error) {
	sess, err := h.Platform.ConnectAgent(ctx, stream.DefaultCallType, meetingID, agent.ID, openAIKey)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(agent.Instructions) != "" {
		if err := sess.UpdateSession(ctx, realtime.SessionUpdate{Instructions: agent.Instructions}); err != nil {
			_ = sess.Close()
			return nil, err
		}
	}
	return sess, nil
}

// track keeps the session reachable by meeting id until it ends.
func (h WebhookHandler) track(meetingID string, sess AgentSession) {
	unregister := h.Sessions.Register(meetingID, sessions.Handle{Close: func() { _ = sess.Close() }})
	metrics.RealtimeSessionsActive.Inc()
	go func() {
		<-sess.Done()
		unregister()
		metrics.RealtimeSessionsActive.Dec()
	}()
}

// compensate moves a meeting activated by this request to cancelled. It runs
// even when the request context is already done.
func (h WebhookHandler) compensate(ctx context.Context, meetingID string, cause error) {
	timeout := h.CompensationTimeout
	if timeout <= 0 {
		timeout = defaultCompensationTimeout
	}
	cctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), timeout)
	defer cancel()

	if err := h.Store.CancelMeeting(cctx, meetingID); err != nil {
		h.logger().Error("webhook: failed to cancel meeting after start failure",
			"meeting_id", meetingID,
			"cause", cause,
			"error", err,
		)
		return
	}
	metrics.RecordTransition(string(meetings.StatusCancelled))
	h.logger().Warn("webhook: meeting cancelled after start failure",
		"meeting_id", meetingID,
		"cause", cause,
	)
}

func (h WebhookHandler) participantLeft(ctx context.Context, body []byte) error {
	var ev stream.CallSessionParticipantLeftEvent
	if err := json.Unmarshal(body, &ev); err != nil {
		return apierror.InvalidRequest("Missing meetingId")
	}
	meetingID := ev.MeetingID()
	if meetingID == "" {
		return apierror.InvalidRequest("Missing meetingId")
	}

	if err := h.Store.CompleteMeeting(ctx, meetingID, h.now()); err != nil {
		return apierror.Internal("failed to complete meeting", err)
	}
	metrics.RecordTransition(string(meetings.StatusCompleted))

	h.Sessions.Close(meetingID)

	if err := h.Platform.EndCall(ctx, stream.DefaultCallType, meetingID); err != nil {
		return apierror.Integration("failed to end call", err)
	}
	return nil
}

func (h WebhookHandler) logFailure(r *http.Request, eventType string, e *apierror.Error) {
	reqID, _ := mw.RequestIDFrom(r.Context())
	attrs := []any{
		"request_id", reqID,
		"event_type", eventType,
		"status", e.Status,
		"reason", e.Message,
	}
	if e.Err != nil {
		attrs = append(attrs, "error", e.Err)
	}
	switch e.Kind {
	case apierror.KindConfiguration, apierror.KindIntegration, apierror.KindInternal:
		h.logger().Error("webhook: request failed", attrs...)
	default:
		h.logger().Info("webhook: request rejected", attrs...)
	}
}

func (h WebhookHandler) now() time.Time {
	if h.Now != nil {
		return h.Now()
	}
	return time.Now()
}

func (h WebhookHandler) logger() *slog.Logger {
	if h.Logger != nil {
		return h.Logger
	}
	return slog.Default()
}
