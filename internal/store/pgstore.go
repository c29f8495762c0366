package store

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/johndosdos/livechat/internal/model"
)

const messageColumns = `id, username, content, timestamp, created_at, updated_at`

const (
	createMessage = `INSERT INTO messages (username, content)
VALUES ($1, $2)
RETURNING ` + messageColumns

	listMessages = `SELECT ` + messageColumns + `
FROM messages
ORDER BY timestamp DESC, seq DESC
LIMIT $1 OFFSET $2`

	countMessages = `SELECT count(*) FROM messages`

	recentMessages = `SELECT ` + messageColumns + `
FROM (
    SELECT seq, ` + messageColumns + `
    FROM messages
    ORDER BY timestamp DESC, seq DESC
    LIMIT $1
) recent
ORDER BY timestamp ASC, seq ASC`

	getMessage = `SELECT ` + messageColumns + ` FROM messages WHERE id = $1`

	messageStats = `SELECT count(*), max(timestamp) FROM messages`
)

// PGStore is the PostgreSQL implementation of Store.
type PGStore struct {
	pool *pgxpool.Pool
}

func NewPGStore(pool *pgxpool.Pool) *PGStore {
	return &PGStore{pool: pool}
}

// Ping reports whether the database is reachable.
func (s *PGStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

func (s *PGStore) Create(ctx context.Context, username, content string) (model.Message, error) {
	msg, err := scanMessage(s.pool.QueryRow(ctx, createMessage, username, content))
	if err != nil {
		return model.Message{}, &PersistenceError{Op: "create", Err: err}
	}
	return msg, nil
}

func (s *PGStore) Paginate(ctx context.Context, page, limit int) ([]model.Message, int64, error) {
	page = clampPage(page)
	limit = clampLimit(limit, DefaultPageLimit, MaxPageLimit)

	rows, err := s.pool.Query(ctx, listMessages, limit, (page-1)*limit)
	if err != nil {
		return nil, 0, &PersistenceError{Op: "paginate", Err: err}
	}
	messages, err := collectMessages(rows)
	if err != nil {
		return nil, 0, &PersistenceError{Op: "paginate", Err: err}
	}

	var total int64
	if err := s.pool.QueryRow(ctx, countMessages).Scan(&total); err != nil {
		return nil, 0, &PersistenceError{Op: "count", Err: err}
	}

	return messages, total, nil
}

func (s *PGStore) Recent(ctx context.Context, limit int) ([]model.Message, error) {
	limit = clampLimit(limit, DefaultRecentLimit, MaxRecentLimit)

	rows, err := s.pool.Query(ctx, recentMessages, limit)
	if err != nil {
		return nil, &PersistenceError{Op: "recent", Err: err}
	}
	messages, err := collectMessages(rows)
	if err != nil {
		return nil, &PersistenceError{Op: "recent", Err: err}
	}
	return messages, nil
}

func (s *PGStore) ByID(ctx context.Context, id string) (model.Message, error) {
	uid, err := uuid.Parse(id)
	if err != nil {
		return model.Message{}, ErrInvalidID
	}

	msg, err := scanMessage(s.pool.QueryRow(ctx, getMessage, pgtype.UUID{Bytes: uid, Valid: true}))
	if errors.Is(err, pgx.ErrNoRows) {
		return model.Message{}, ErrNotFound
	}
	if err != nil {
		return model.Message{}, &PersistenceError{Op: "by id", Err: err}
	}
	return msg, nil
}

func (s *PGStore) Stats(ctx context.Context) (model.Stats, error) {
	var (
		stats model.Stats
		last  pgtype.Timestamptz
	)
	if err := s.pool.QueryRow(ctx, messageStats).Scan(&stats.TotalMessages, &last); err != nil {
		return model.Stats{}, &PersistenceError{Op: "stats", Err: err}
	}

	if last.Valid {
		t := last.Time.UTC()
		stats.LastMessageAt = &t
	}
	return stats, nil
}

func scanMessage(row pgx.Row) (model.Message, error) {
	var (
		msg                    model.Message
		id                     pgtype.UUID
		ts, created, updatedAt pgtype.Timestamptz
	)
	if err := row.Scan(&id, &msg.Username, &msg.Content, &ts, &created, &updatedAt); err != nil {
		return model.Message{}, err
	}

	msg.ID = id.Bytes
	msg.Timestamp = ts.Time.UTC()
	msg.CreatedAt = created.Time.UTC()
	msg.UpdatedAt = updatedAt.Time.UTC()
	return msg, nil
}

func collectMessages(rows pgx.Rows) ([]model.Message, error) {
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (model.Message, error) {
		return scanMessage(row)
	})
}
