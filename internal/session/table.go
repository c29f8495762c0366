// Package session holds the in-memory table of joined connections.
package session

import (
	"sync"
	"time"

	"github.com/johndosdos/livechat/internal/model"
)

// Table maps connection ids to their Session. It is safe for concurrent use;
// every mutation is atomic per key. A Table starts empty and is never
// persisted.
type Table struct {
	mu       sync.RWMutex
	sessions map[string]model.Session
}

func NewTable() *Table {
	return &Table{sessions: make(map[string]model.Session)}
}

// Put inserts or replaces the session for connectionID.
func (t *Table) Put(connectionID, username string, joinedAt time.Time) model.Session {
	s := model.Session{
		ConnectionID: connectionID,
		Username:     username,
		JoinedAt:     joinedAt,
	}

	t.mu.Lock()
	t.sessions[connectionID] = s
	t.mu.Unlock()

	return s
}

func (t *Table) Get(connectionID string) (model.Session, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	s, ok := t.sessions[connectionID]
	return s, ok
}

// Remove deletes and returns the session for connectionID, if any.
func (t *Table) Remove(connectionID string) (model.Session, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	s, ok := t.sessions[connectionID]
	if ok {
		delete(t.sessions, connectionID)
	}
	return s, ok
}

func (t *Table) Count() int {
	t.mu.RLock()
	defer t.mu.RUnlock()

	return len(t.sessions)
}

// Values returns a snapshot of all sessions in no particular order.
func (t *Table) Values() []model.Session {
	t.mu.RLock()
	defer t.mu.RUnlock()

	out := make([]model.Session, 0, len(t.sessions))
	for _, s := range t.sessions {
		out = append(out, s)
	}
	return out
}
