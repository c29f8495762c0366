package store

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/johndosdos/livechat/internal/model"
)

// MemoryStore keeps messages in process memory. It is used when no database
// is configured and in tests.
type MemoryStore struct {
	mu       sync.RWMutex
	messages []model.Message
	index    map[uuid.UUID]int
	now      func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		index: make(map[uuid.UUID]int),
		now:   func() time.Time { return time.Now().UTC() },
	}
}

func (s *MemoryStore) Create(ctx context.Context, username, content string) (model.Message, error) {
	if err := ctx.Err(); err != nil {
		return model.Message{}, &PersistenceError{Op: "create", Err: err}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	// Timestamps never go backwards in insertion order.
	now := s.now()
	if n := len(s.messages); n > 0 && now.Before(s.messages[n-1].Timestamp) {
		now = s.messages[n-1].Timestamp
	}

	msg := model.Message{
		ID:        uuid.New(),
		Username:  username,
		Content:   content,
		Timestamp: now,
		CreatedAt: now,
		UpdatedAt: now,
	}
	s.index[msg.ID] = len(s.messages)
	s.messages = append(s.messages, msg)

	return msg, nil
}

func (s *MemoryStore) Paginate(ctx context.Context, page, limit int) ([]model.Message, int64, error) {
	if err := ctx.Err(); err != nil {
		return nil, 0, &PersistenceError{Op: "paginate", Err: err}
	}

	page = clampPage(page)
	limit = clampLimit(limit, DefaultPageLimit, MaxPageLimit)

	s.mu.RLock()
	defer s.mu.RUnlock()

	total := len(s.messages)
	// Offsets count back from the newest message.
	end := total - (page-1)*limit
	if end <= 0 {
		return []model.Message{}, int64(total), nil
	}
	start := max(end-limit, 0)

	out := slices.Clone(s.messages[start:end])
	slices.Reverse(out)
	return out, int64(total), nil
}

func (s *MemoryStore) Recent(ctx context.Context, limit int) ([]model.Message, error) {
	if err := ctx.Err(); err != nil {
		return nil, &PersistenceError{Op: "recent", Err: err}
	}

	limit = clampLimit(limit, DefaultRecentLimit, MaxRecentLimit)

	s.mu.RLock()
	defer s.mu.RUnlock()

	start := max(len(s.messages)-limit, 0)
	return slices.Clone(s.messages[start:]), nil
}

func (s *MemoryStore) ByID(ctx context.Context, id string) (model.Message, error) {
	if err := ctx.Err(); err != nil {
		return model.Message{}, &PersistenceError{Op: "by id", Err: err}
	}

	uid, err := uuid.Parse(id)
	if err != nil {
		return model.Message{}, ErrInvalidID
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	i, ok := s.index[uid]
	if !ok {
		return model.Message{}, ErrNotFound
	}
	return s.messages[i], nil
}

func (s *MemoryStore) Stats(ctx context.Context) (model.Stats, error) {
	if err := ctx.Err(); err != nil {
		return model.Stats{}, &PersistenceError{Op: "stats", Err: err}
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := model.Stats{TotalMessages: int64(len(s.messages))}
	if n := len(s.messages); n > 0 {
		last := s.messages[n-1].Timestamp
		stats.LastMessageAt = &last
	}
	return stats, nil
}
