package httpserver

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"github.com/sevans717/aphila-sub004/internal/domain"
	"github.com/sevans717/aphila-sub004/internal/service"
)

// @Summary      List messages
// @Description  Conversation history, oldest first. Page back with before=<oldest id seen>.
// @Tags         messages
// @Security     BearerAuth
// @Produce      json
// @Param        conversationID path int true "Conversation ID"
// @Param        before query int false "Only messages with a smaller id"
// @Param        limit query int false "Page size (default 50, max 100)"
// @Success      200  {array}   service.MessageView
// @Failure      400  {object}  map[string]string
// @Failure      403  {object}  map[string]string
// @Failure      404  {object}  map[string]string
// @Router       /conversations/{conversationID}/messages [get]
func handleListMessages(history *service.HistoryService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		convID, err := strconv.ParseInt(chi.URLParam(r, "conversationID"), 10, 64)
		if err != nil || convID <= 0 {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid conversation id"})
			return
		}
		before, ok := queryInt(r, "before")
		if !ok {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid before"})
			return
		}
		limit, ok := queryInt(r, "limit")
		if !ok {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid limit"})
			return
		}

		msgs, err := history.List(r.Context(), CurrentUser(r).ID, convID, before, int(limit))
		if err != nil {
			writeHistoryError(w, err, "conversation_id", convID)
			return
		}
		writeJSON(w, http.StatusOK, msgs)
	}
}

// @Summary      Get message
// @Description  One message, readable by its sender and receiver
// @Tags         messages
// @Security     BearerAuth
// @Produce      json
// @Param        messageID path int true "Message ID"
// @Success      200  {object}  service.MessageView
// @Failure      400  {object}  map[string]string
// @Failure      403  {object}  map[string]string
// @Failure      404  {object}  map[string]string
// @Router       /messages/{messageID} [get]
func handleGetMessage(history *service.HistoryService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := strconv.ParseInt(chi.URLParam(r, "messageID"), 10, 64)
		if err != nil || id <= 0 {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid message id"})
			return
		}
		msg, err := history.Get(r.Context(), CurrentUser(r).ID, id)
		if err != nil {
			writeHistoryError(w, err, "message_id", id)
			return
		}
		writeJSON(w, http.StatusOK, msg)
	}
}

func writeHistoryError(w http.ResponseWriter, err error, key string, id int64) {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "not found"})
	case errors.Is(err, domain.ErrNotAuthorized):
		writeJSON(w, http.StatusForbidden, map[string]string{"error": "forbidden"})
	default:
		log.Error().Err(err).Int64(key, id).Msg("history: load")
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to load messages"})
	}
}

// queryInt reads an optional non-negative integer query parameter.
func queryInt(r *http.Request, name string) (int64, bool) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return 0, true
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || v < 0 {
		return 0, false
	}
	return v, true
}
