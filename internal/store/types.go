package store

import (
	"context"
	"time"
)

const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// TurnRecord stores a single user or assistant conversational turn.
// Records are immutable once written.
type TurnRecord struct {
	ID        string    `json:"id"`
	UserKey   string    `json:"user_key"`
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

// Store persists conversation history and processed webhook event ids.
// The two tables live in the same database, matching how the service
// deploys: one embedded file, or one Postgres schema.
type Store interface {
	// SaveTurn appends a turn to the sender's conversation log.
	SaveTurn(ctx context.Context, record TurnRecord) error
	// RecentTurns returns up to limit turns for the sender in
	// chronological order (oldest of the window first).
	RecentTurns(ctx context.Context, userKey string, limit int) ([]TurnRecord, error)
	// SeenEvent reports whether the event id is already recorded.
	SeenEvent(ctx context.Context, eventID string) (bool, error)
	// MarkEvent records the event id. It returns true when this call
	// inserted the id and false when it was already present; marking
	// an existing id is a no-op, not an error. The insert is race-safe
	// via the id's unique constraint, so two concurrent deliveries of
	// the same id see at most one true.
	MarkEvent(ctx context.Context, eventID string) (bool, error)
	Close() error
}
