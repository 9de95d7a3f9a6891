package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Sahoo999/meeting-ai/pkg/meetings"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const meetingColumns = `id, name, user_id, agent_id, status, started_at, ended_at, created_at, updated_at`

// Store implements meetings.Store on a pgx connection pool.
type Store struct {
	pool *pgxpool.Pool
}

func Open(ctx context.Context, databaseURL string) (*Store, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("open pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return New(pool), nil
}

func New(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

func (s *Store) Close() {
	s.pool.Close()
}

func (s *Store) CreateAgent(ctx context.Context, a meetings.Agent) (meetings.Agent, error) {
	if err := a.Validate(); err != nil {
		return meetings.Agent{}, err
	}
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	row := s.pool.QueryRow(ctx, `
		INSERT INTO agents (id, name, user_id, instructions)
		VALUES ($1, $2, $3, $4)
		RETURNING id, name, user_id, instructions, created_at, updated_at`,
		a.ID, a.Name, a.UserID, a.Instructions)
	out, err := scanAgent(row)
	if err != nil {
		return meetings.Agent{}, fmt.Errorf("insert agent: %w", err)
	}
	return out, nil
}

func (s *Store) CreateMeeting(ctx context.Context, m meetings.Meeting) (meetings.Meeting, error) {
	if m.Status == "" {
		m.Status = meetings.StatusUpcoming
	}
	if !m.Status.Valid() {
		return meetings.Meeting{}, fmt.Errorf("invalid meeting status %q", m.Status)
	}
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	row := s.pool.QueryRow(ctx, `
		INSERT INTO meetings (id, name, user_id, agent_id, status)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING `+meetingColumns,
		m.ID, m.Name, m.UserID, m.AgentID, string(m.Status))
	out, err := scanMeeting(row)
	if err != nil {
		return meetings.Meeting{}, fmt.Errorf("insert meeting: %w", err)
	}
	return out, nil
}

func (s *Store) ActivateMeeting(ctx context.Context, id string, startedAt time.Time) (meetings.Meeting, error) {
	row := s.pool.QueryRow(ctx, `
		UPDATE meetings
		SET status = 'active', started_at = $2, updated_at = now()
		WHERE id = $1 AND status = 'upcoming'
		RETURNING `+meetingColumns,
		id, startedAt)
	m, err := scanMeeting(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return meetings.Meeting{}, meetings.ErrMeetingNotFound
	}
	if err != nil {
		return meetings.Meeting{}, fmt.Errorf("activate meeting %s: %w", id, err)
	}
	return m, nil
}

func (s *Store) CancelMeeting(ctx context.Context, id string) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE meetings
		SET status = 'cancelled', updated_at = now()
		WHERE id = $1 AND status = 'active'`, id)
	if err != nil {
		return fmt.Errorf("cancel meeting %s: %w", id, err)
	}
	return nil
}

func (s *Store) CompleteMeeting(ctx context.Context, id string, endedAt time.Time) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE meetings
		SET status = 'completed', ended_at = $2, updated_at = now()
		WHERE id = $1`, id, endedAt)
	if err != nil {
		return fmt.Errorf("complete meeting %s: %w", id, err)
	}
	return nil
}

func (s *Store) GetMeeting(ctx context.Context, id string) (meetings.Meeting, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+meetingColumns+` FROM meetings WHERE id = $1`, id)
	m, err := scanMeeting(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return meetings.Meeting{}, meetings.ErrMeetingNotFound
	}
	if err != nil {
		return meetings.Meeting{}, fmt.Errorf("get meeting %s: %w", id, err)
	}
	return m, nil
}

func (s *Store) GetAgent(ctx context.Context, id string) (meetings.Agent, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT id, name, user_id, instructions, created_at, updated_at
		FROM agents WHERE id = $1`, id)
	a, err := scanAgent(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return meetings.Agent{}, meetings.ErrAgentNotFound
	}
	if err != nil {
		return meetings.Agent{}, fmt.Errorf("get agent %s: %w", id, err)
	}
	return a, nil
}

func (s *Store) CountMeetings(ctx context.Context, userID string) (int, error) {
	var n int
	if err := s.pool.QueryRow(ctx, `SELECT count(id) FROM meetings WHERE user_id = $1`, userID).Scan(&n); err != nil {
		return 0, fmt.Errorf("count meetings: %w", err)
	}
	return n, nil
}

func (s *Store) CountAgents(ctx context.Context, userID string) (int, error) {
	var n int
	if err := s.pool.QueryRow(ctx, `SELECT count(id) FROM agents WHERE user_id = $1`, userID).Scan(&n); err != nil {
		return 0, fmt.Errorf("count agents: %w", err)
	}
	return n, nil
}

func scanMeeting(row pgx.Row) (meetings.Meeting, error) {
	var (
		m      meetings.Meeting
		status string
	)
	err := row.Scan(&m.ID, &m.Name, &m.UserID, &m.AgentID, &status, &m.StartedAt, &m.EndedAt, &m.CreatedAt, &m.UpdatedAt)
	if err != nil {
		return meetings.Meeting{}, err
	}
	m.Status = meetings.Status(status)
	return m, nil
}

func scanAgent(row pgx.Row) (meetings.Agent, error) {
	var a meetings.Agent
	if err := row.Scan(&a.ID, &a.Name, &a.UserID, &a.Instructions, &a.CreatedAt, &a.UpdatedAt); err != nil {
		return meetings.Agent{}, err
	}
	return a, nil
}
