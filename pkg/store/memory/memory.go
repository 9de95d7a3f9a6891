// Package memory is an in-process meetings.Store used for local development
// and tests. Every method takes the store lock, so the conditional activation
// is atomic just like the SQL version.
package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/Sahoo999/meeting-ai/pkg/meetings"
	"github.com/google/uuid"
)

type Store struct {
	mu       sync.Mutex
	meetings map[string]meetings.Meeting
	agents   map[string]meetings.Agent
	now      func() time.Time
}

func New() *Store {
	return &Store{
		meetings: make(map[string]meetings.Meeting),
		agents:   make(map[string]meetings.Agent),
		now:      time.Now,
	}
}

func (s *Store) CreateAgent(ctx context.Context, a meetings.Agent) (meetings.Agent, error) {
	if err := a.Validate(); err != nil {
		return meetings.Agent{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	now := s.now()
	a.CreatedAt, a.UpdatedAt = now, now
	s.agents[a.ID] = a
	return a, nil
}

func (s *Store) CreateMeeting(ctx context.Context, m meetings.Meeting) (meetings.Meeting, error) {
	if m.Status == "" {
		m.Status = meetings.StatusUpcoming
	}
	if !m.Status.Valid() {
		return meetings.Meeting{}, fmt.Errorf("invalid meeting status %q", m.Status)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	now := s.now()
	m.CreatedAt, m.UpdatedAt = now, now
	s.meetings[m.ID] = m
	return m, nil
}

func (s *Store) ActivateMeeting(ctx context.Context, id string, startedAt time.Time) (meetings.Meeting, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	m, ok := s.meetings[id]
	if !ok || !m.Status.Activatable() {
		return meetings.Meeting{}, meetings.ErrMeetingNotFound
	}
	m.Status = meetings.StatusActive
	m.StartedAt = timePtr(startedAt)
	m.UpdatedAt = s.now()
	s.meetings[id] = m
	return m, nil
}

func (s *Store) CancelMeeting(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	m, ok := s.meetings[id]
	if !ok || m.Status != meetings.StatusActive {
		return nil
	}
	m.Status = meetings.StatusCancelled
	m.UpdatedAt = s.now()
	s.meetings[id] = m
	return nil
}

func (s *Store) CompleteMeeting(ctx context.Context, id string, endedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	m, ok := s.meetings[id]
	if !ok {
		return nil
	}
	m.Status = meetings.StatusCompleted
	m.EndedAt = timePtr(endedAt)
	m.UpdatedAt = s.now()
	s.meetings[id] = m
	return nil
}

func (s *Store) GetMeeting(ctx context.Context, id string) (meetings.Meeting, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	m, ok := s.meetings[id]
	if !ok {
		return meetings.Meeting{}, meetings.ErrMeetingNotFound
	}
	return m, nil
}

func (s *Store) GetAgent(ctx context.Context, id string) (meetings.Agent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.agents[id]
	if !ok {
		return meetings.Agent{}, meetings.ErrAgentNotFound
	}
	return a, nil
}

func (s *Store) CountMeetings(ctx context.Context, userID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for _, m := range s.meetings {
		if m.UserID == userID {
			n++
		}
	}
	return n, nil
}

func (s *Store) CountAgents(ctx context.Context, userID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for _, a := range s.agents {
		if a.UserID == userID {
			n++
		}
	}
	return n, nil
}

func timePtr(t time.Time) *time.Time {
	return &t
}
