package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/johndosdos/livechat/internal/store"
	"github.com/johndosdos/livechat/internal/validator"
)

type createMessageRequest struct {
	Username string `json:"username"`
	Content  string `json:"content"`
}

// ListMessages serves one page of messages in chronological order.
func ListMessages(svc *store.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		q := validator.PageQuery{
			Page:  intQuery(r, "page", 1),
			Limit: intQuery(r, "limit", store.DefaultPageLimit),
		}
		if errs := validator.Query(q); errs != nil {
			respondError(w, r, http.StatusBadRequest, "Validation failed", "", errs)
			return
		}

		page, err := svc.Messages(ctx, q.Page, q.Limit)
		if err != nil {
			slog.ErrorContext(ctx, "failed to retrieve messages", "error", err)
			respondError(w, r, http.StatusInternalServerError, "Failed to retrieve messages", err.Error(), nil)
			return
		}

		respondOK(w, r, http.StatusOK, response{
			Data:       page.Messages,
			Pagination: &page.Pagination,
		})
	}
}

// CreateMessage validates with the same rules as the real-time path and
// persists the message.
func CreateMessage(svc *store.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		var req createMessageRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			respondDecodeError(w, r, err)
			return
		}

		if res := validator.ValidateMessage(req.Username, req.Content); !res.Valid {
			respondError(w, r, http.StatusBadRequest, "Validation failed", "", res.Errors)
			return
		}

		msg, err := svc.CreateMessage(ctx, req.Username, req.Content)
		if err != nil {
			var vErr *store.ValidationError
			if errors.As(err, &vErr) {
				respondError(w, r, http.StatusBadRequest, "Validation failed", "", vErr.Errors)
				return
			}
			slog.ErrorContext(ctx, "failed to create message", "error", err)
			respondError(w, r, http.StatusInternalServerError, "Failed to create message", err.Error(), nil)
			return
		}

		slog.InfoContext(ctx, "message created",
			"message_id", msg.ID.String(),
			"username", msg.Username)

		respondOK(w, r, http.StatusCreated, response{
			Data:    msg,
			Message: "Message created successfully",
		})
	}
}

// RecentMessages serves the latest messages, oldest first.
func RecentMessages(svc *store.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		q := validator.RecentQuery{Limit: intQuery(r, "limit", store.DefaultRecentLimit)}
		if errs := validator.Query(q); errs != nil {
			respondError(w, r, http.StatusBadRequest, "Validation failed", "", errs)
			return
		}

		messages, err := svc.RecentMessages(ctx, q.Limit)
		if err != nil {
			slog.ErrorContext(ctx, "failed to retrieve recent messages", "error", err)
			respondError(w, r, http.StatusInternalServerError, "Failed to retrieve recent messages", err.Error(), nil)
			return
		}

		count := len(messages)
		respondOK(w, r, http.StatusOK, response{Data: messages, Count: &count})
	}
}

func GetMessage(svc *store.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		msg, err := svc.MessageByID(ctx, chi.URLParam(r, "id"))
		switch {
		case errors.Is(err, store.ErrInvalidID):
			respondError(w, r, http.StatusBadRequest, "Invalid message ID format", "", nil)
			return
		case errors.Is(err, store.ErrNotFound):
			respondError(w, r, http.StatusNotFound, "Message not found", "", nil)
			return
		case err != nil:
			slog.ErrorContext(ctx, "failed to retrieve message", "error", err)
			respondError(w, r, http.StatusInternalServerError, "Failed to retrieve message", err.Error(), nil)
			return
		}

		respondOK(w, r, http.StatusOK, response{Data: msg})
	}
}

func MessageStats(svc *store.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		stats, err := svc.Stats(ctx)
		if err != nil {
			slog.ErrorContext(ctx, "failed to retrieve statistics", "error", err)
			respondError(w, r, http.StatusInternalServerError, "Failed to retrieve statistics", err.Error(), nil)
			return
		}

		respondOK(w, r, http.StatusOK, response{Data: stats})
	}
}

func respondDecodeError(w http.ResponseWriter, r *http.Request, err error) {
	var (
		tooLarge *http.MaxBytesError
		typeErr  *json.UnmarshalTypeError
	)
	switch {
	case errors.As(err, &tooLarge):
		respondError(w, r, http.StatusRequestEntityTooLarge, "Request too large", "Request body exceeds size limit", nil)
	case errors.As(err, &typeErr):
		respondError(w, r, http.StatusBadRequest, "Validation failed", "",
			[]string{typeErr.Field + " must be a " + typeErr.Type.String()})
	default:
		respondError(w, r, http.StatusBadRequest, "Invalid JSON format", "Request body must be valid JSON", nil)
	}
}

// intQuery returns the named query parameter, fallback when it is absent, and
// 0 when it is not an integer so that validation rejects it.
func intQuery(r *http.Request, name string, fallback int) int {
	v := r.URL.Query().Get(name)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0
	}
	return n
}
