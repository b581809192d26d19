package db

import (
	"context"

	"github.com/praptisiva25/WorkBud/models"
)

// Store is the durable source of truth for users, threads, participants and
// messages. Every mutating method is a single transaction. Errors are
// *apperror.Error values.
type Store interface {
	Ping(ctx context.Context) error
	Close()

	UpsertUser(ctx context.Context, u models.User) error
	SearchUsers(ctx context.Context, query string, limit int) ([]models.User, error)

	// EnsureDirectThread inserts the thread keyed by key if absent and makes
	// sure both users are participants. It returns the thread id.
	EnsureDirectThread(ctx context.Context, key, ownerID, memberID string) (string, error)
	CreateGroupThread(ctx context.Context, title, ownerID string, memberIDs []string) (models.Thread, error)
	GetThread(ctx context.Context, threadID string) (models.Thread, error)
	GetParticipant(ctx context.Context, threadID, userID string) (models.Participant, error)
	ListThreadsForUser(ctx context.Context, userID string, limit int) ([]models.ThreadSummary, error)
	ArchiveThread(ctx context.Context, threadID string) error

	// InsertMessage stores msg and bumps the thread's updated_at in the same
	// transaction. The sender must be a participant of a non-archived thread.
	// ID and CreatedAt are assigned by the store.
	InsertMessage(ctx context.Context, msg models.Message) (models.Message, error)
	// RecentMessages returns up to limit messages, newest first.
	RecentMessages(ctx context.Context, threadID string, limit int) ([]models.Message, error)
}
