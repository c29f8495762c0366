package store

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"slices"
	"strings"

	"github.com/johndosdos/livechat/internal/model"
	"github.com/johndosdos/livechat/internal/validator"
)

// ValidationError is returned by Service when input does not satisfy the
// message rules.
type ValidationError struct {
	Errors []string
}

func (e *ValidationError) Error() string {
	return "validation failed: " + strings.Join(e.Errors, "; ")
}

// Pagination describes where a page sits in the full message list.
type Pagination struct {
	CurrentPage     int   `json:"currentPage"`
	TotalPages      int   `json:"totalPages"`
	TotalMessages   int64 `json:"totalMessages"`
	MessagesPerPage int   `json:"messagesPerPage"`
	HasNextPage     bool  `json:"hasNextPage"`
	HasPrevPage     bool  `json:"hasPrevPage"`
}

// Page is one page of messages in chronological order.
type Page struct {
	Messages   []model.Message
	Pagination Pagination
}

// Service is the single entry point to message persistence for both the REST
// and the real-time paths.
type Service struct {
	store Store
	log   *slog.Logger
}

// NewService returns a Service over s. A nil logger uses slog.Default().
func NewService(s Store, log *slog.Logger) *Service {
	if log == nil {
		log = slog.Default()
	}
	return &Service{
		store: s,
		log:   log,
	}
}

// CreateMessage validates and persists the trimmed input. Content is stored
// as written; clients receive it as JSON and escape it when rendering.
func (s *Service) CreateMessage(ctx context.Context, username, content string) (model.Message, error) {
	username = validator.Trim(username)
	content = validator.Trim(content)

	if res := validator.ValidateMessage(username, content); !res.Valid {
		return model.Message{}, &ValidationError{Errors: res.Errors}
	}

	msg, err := s.store.Create(ctx, username, content)
	if err != nil {
		return model.Message{}, err
	}

	s.log.DebugContext(ctx, "message created",
		"message_id", msg.ID.String(),
		"username", msg.Username)
	return msg, nil
}

// RecentMessages returns the latest messages, oldest first.
func (s *Service) RecentMessages(ctx context.Context, limit int) ([]model.Message, error) {
	return s.store.Recent(ctx, limit)
}

// Messages returns one page in chronological order with pagination metadata.
func (s *Service) Messages(ctx context.Context, page, limit int) (Page, error) {
	page = clampPage(page)
	limit = clampLimit(limit, DefaultPageLimit, MaxPageLimit)

	messages, total, err := s.store.Paginate(ctx, page, limit)
	if err != nil {
		return Page{}, fmt.Errorf("failed to retrieve messages: %w", err)
	}

	// The store pages newest first; readers expect oldest first.
	messages = slices.Clone(messages)
	slices.Reverse(messages)

	totalPages := int(math.Ceil(float64(total) / float64(limit)))
	return Page{
		Messages: messages,
		Pagination: Pagination{
			CurrentPage:     page,
			TotalPages:      totalPages,
			TotalMessages:   total,
			MessagesPerPage: limit,
			HasNextPage:     page < totalPages,
			HasPrevPage:     page > 1,
		},
	}, nil
}

func (s *Service) MessageByID(ctx context.Context, id string) (model.Message, error) {
	return s.store.ByID(ctx, id)
}

func (s *Service) Stats(ctx context.Context) (model.Stats, error) {
	return s.store.Stats(ctx)
}
