// Package store persists chat messages.
package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/johndosdos/livechat/internal/model"
)

// Pagination bounds shared by every Store implementation.
const (
	DefaultPageLimit   = 50
	MaxPageLimit       = 100
	DefaultRecentLimit = 20
	MaxRecentLimit     = 50
)

var (
	ErrNotFound  = errors.New("message not found")
	ErrInvalidID = errors.New("invalid message id")
)

// PersistenceError wraps a failure of the underlying storage.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("store: %s failed: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

// Store is the persistence contract for chat messages. Callers validate
// input before Create; implementations must be safe for concurrent use.
type Store interface {
	// Create stores a new message and returns it with its id and timestamps.
	Create(ctx context.Context, username, content string) (model.Message, error)
	// Paginate returns one page of messages, newest first, and the total count.
	Paginate(ctx context.Context, page, limit int) ([]model.Message, int64, error)
	// Recent returns the latest messages, oldest first.
	Recent(ctx context.Context, limit int) ([]model.Message, error)
	ByID(ctx context.Context, id string) (model.Message, error)
	Stats(ctx context.Context) (model.Stats, error)
}

func clampPage(page int) int {
	return max(page, 1)
}

func clampLimit(limit, fallback, ceiling int) int {
	if limit <= 0 {
		return fallback
	}
	return min(limit, ceiling)
}
