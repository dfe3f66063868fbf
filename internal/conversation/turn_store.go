package conversation

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// Turn is one persisted chat message. IDs grow in creation order.
type Turn struct {
	ID            int64     `json:"id"`
	SessionID     string    `json:"session_id"`
	Role          string    `json:"role"`
	Message       string    `json:"message"`
	AppointmentID string    `json:"appointment_id,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
}

// TurnStore is the append-only conversation log.
type TurnStore interface {
	Append(ctx context.Context, turn *Turn) error
	// List returns the last limit turns of a session, oldest first. limit <= 0 returns all.
	List(ctx context.Context, sessionID string, limit int) ([]Turn, error)
}

// InMemoryTurnStore keeps turns in process memory.
type InMemoryTurnStore struct {
	mu     sync.RWMutex
	nextID int64
	turns  map[string][]Turn
}

func NewInMemoryTurnStore() *InMemoryTurnStore {
	return &InMemoryTurnStore{turns: make(map[string][]Turn)}
}

func (s *InMemoryTurnStore) Append(ctx context.Context, turn *Turn) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	turn.ID = s.nextID
	if turn.CreatedAt.IsZero() {
		turn.CreatedAt = time.Now().UTC()
	}
	s.turns[turn.SessionID] = append(s.turns[turn.SessionID], *turn)
	return nil
}

func (s *InMemoryTurnStore) List(ctx context.Context, sessionID string, limit int) ([]Turn, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	all := s.turns[sessionID]
	if limit > 0 && len(all) > limit {
		all = all[len(all)-limit:]
	}
	out := make([]Turn, len(all))
	copy(out, all)
	return out, nil
}

type db interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresTurnStore persists turns in conversation_turns.
type PostgresTurnStore struct {
	db db
}

func NewPostgresTurnStore(pool db) *PostgresTurnStore {
	if pool == nil {
		panic("conversation: pgx pool required")
	}
	return &PostgresTurnStore{db: pool}
}

func (s *PostgresTurnStore) Append(ctx context.Context, turn *Turn) error {
	if turn.CreatedAt.IsZero() {
		turn.CreatedAt = time.Now().UTC()
	}
	query := `
		INSERT INTO conversation_turns (session_id, role, message, appointment_id, created_at)
		VALUES ($1, $2, $3, NULLIF($4::text, ''), $5)
		RETURNING id
	`
	if err := s.db.QueryRow(ctx, query,
		turn.SessionID,
		turn.Role,
		turn.Message,
		turn.AppointmentID,
		turn.CreatedAt,
	).Scan(&turn.ID); err != nil {
		return fmt.Errorf("conversation: append turn: %w", err)
	}
	return nil
}

func (s *PostgresTurnStore) List(ctx context.Context, sessionID string, limit int) ([]Turn, error) {
	query := `
		SELECT id, session_id, role, message, COALESCE(appointment_id, ''), created_at
		FROM (
			SELECT id, session_id, role, message, appointment_id, created_at
			FROM conversation_turns
			WHERE session_id = $1
			ORDER BY id DESC
			LIMIT $2
		) recent
		ORDER BY id ASC
	`
	var lim any
	if limit > 0 {
		lim = limit
	}
	rows, err := s.db.Query(ctx, query, sessionID, lim)
	if err != nil {
		return nil, fmt.Errorf("conversation: list turns: %w", err)
	}
	defer rows.Close()

	var turns []Turn
	for rows.Next() {
		var t Turn
		if err := rows.Scan(&t.ID, &t.SessionID, &t.Role, &t.Message, &t.AppointmentID, &t.CreatedAt); err != nil {
			return nil, fmt.Errorf("conversation: scan turn: %w", err)
		}
		turns = append(turns, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("conversation: list turns: %w", err)
	}
	return turns, nil
}

var (
	_ TurnStore = (*InMemoryTurnStore)(nil)
	_ TurnStore = (*PostgresTurnStore)(nil)
)
