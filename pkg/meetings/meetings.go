package meetings

import (
	"context"
	"errors"
	"strings"
	"time"
)

type Status string

const (
	StatusUpcoming   Status = "upcoming"
	StatusActive     Status = "active"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusCancelled  Status = "cancelled"
)

func (s Status) Valid() bool {
	switch s {
	case StatusUpcoming, StatusActive, StatusProcessing, StatusCompleted, StatusCancelled:
		return true
	default:
		return false
	}
}

// Activatable reports whether a session-start event may move a meeting in
// this status to active. Only upcoming meetings qualify.
func (s Status) Activatable() bool {
	return s == StatusUpcoming
}

var (
	ErrMeetingNotFound = errors.New("meeting not found")
	ErrAgentNotFound   = errors.New("agent not found")
)

type Meeting struct {
	ID        string     `json:"id"`
	Name      string     `json:"name"`
	UserID    string     `json:"userId"`
	AgentID   string     `json:"agentId"`
	Status    Status     `json:"status"`
	StartedAt *time.Time `json:"startedAt,omitempty"`
	EndedAt   *time.Time `json:"endedAt,omitempty"`
	CreatedAt time.Time  `json:"createdAt"`
	UpdatedAt time.Time  `json:"updatedAt"`
}

type Agent struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	UserID       string    `json:"userId"`
	Instructions string    `json:"instructions"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// ValidationError names the offending field so callers can surface it.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return e.Field + ": " + e.Message
}

// Validate applies the insert rules for agents.
func (a Agent) Validate() error {
	if strings.TrimSpace(a.Name) == "" {
		return &ValidationError{Field: "name", Message: "name is required"}
	}
	if strings.TrimSpace(a.Instructions) == "" {
		return &ValidationError{Field: "instructions", Message: "instructions are required"}
	}
	return nil
}

// Store is the persistence contract the lifecycle orchestrator relies on.
//
// ActivateMeeting is a single conditional write: it moves the meeting to
// active only when it is currently upcoming and returns ErrMeetingNotFound
// when no row qualified, so duplicate or late start events cannot activate a
// meeting twice.
type Store interface {
	ActivateMeeting(ctx context.Context, id string, startedAt time.Time) (Meeting, error)
	// CancelMeeting rolls an active meeting back to cancelled. Meetings in any
	// other status are left alone.
	CancelMeeting(ctx context.Context, id string) error
	// CompleteMeeting marks the meeting completed regardless of its prior
	// status. Unknown ids are a no-op.
	CompleteMeeting(ctx context.Context, id string, endedAt time.Time) error
	GetMeeting(ctx context.Context, id string) (Meeting, error)
	GetAgent(ctx context.Context, id string) (Agent, error)
}

type UsageCounter interface {
	CountMeetings(ctx context.Context, userID string) (int, error)
	CountAgents(ctx context.Context, userID string) (int, error)
}
