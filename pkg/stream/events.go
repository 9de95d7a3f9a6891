package stream

import (
	"encoding/json"
	"strings"
)

const (
	EventCallSessionStarted         = "call.session_started"
	EventCallSessionParticipantLeft = "call.session_participant_left"
)

// WebhookEvent carries only the discriminator; branch payloads are decoded
// from the same raw body once the type is known.
type WebhookEvent struct {
	Type      string `json:"type"`
	CreatedAt string `json:"created_at,omitempty"`
}

type CallResponse struct {
	CID    string         `json:"cid"`
	ID     string         `json:"id"`
	Type   string         `json:"type"`
	Custom map[string]any `json:"custom"`
}

type CallSessionStartedEvent struct {
	Type      string       `json:"type"`
	CallCID   string       `json:"call_cid"`
	SessionID string       `json:"session_id"`
	Call      CallResponse `json:"call"`
}

// MeetingID returns call.custom.meetingId when it is a non-empty string.
func (e CallSessionStartedEvent) MeetingID() string {
	v, ok := e.Call.Custom["meetingId"].(string)
	if !ok {
		return ""
	}
	return v
}

type Participant struct {
	UserSessionID string `json:"user_session_id"`
	User          struct {
		ID   string `json:"id"`
		Name string `json:"name,omitempty"`
	} `json:"user"`
}

type CallSessionParticipantLeftEvent struct {
	Type        string      `json:"type"`
	CallCID     string      `json:"call_cid"`
	SessionID   string      `json:"session_id"`
	Participant Participant `json:"participant"`
}

// MeetingID returns the id segment of call_cid.
func (e CallSessionParticipantLeftEvent) MeetingID() string {
	_, id := ParseCID(e.CallCID)
	return id
}

// ParseCID splits a "<type>:<id>" call cid. Missing segments come back empty.
// Only the first two segments are considered.
func ParseCID(cid string) (callType, id string) {
	parts := strings.Split(cid, ":")
	if len(parts) < 2 {
		return parts[0], ""
	}
	return parts[0], parts[1]
}

// DecodeEventType extracts the type discriminator from a raw webhook body.
// Valid JSON that is not an object yields an empty type.
func DecodeEventType(body []byte) (string, bool) {
	if !json.Valid(body) {
		return "", false
	}
	var ev WebhookEvent
	if err := json.Unmarshal(body, &ev); err != nil {
		return "", true
	}
	return ev.Type, true
}
