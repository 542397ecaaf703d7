package httpserver

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"github.com/sevans717/aphila-sub004/internal/domain"
	"github.com/sevans717/aphila-sub004/internal/service"
)

// @Summary      Get presence
// @Description  Presence of the caller or of one of their accepted relationships
// @Tags         presence
// @Security     BearerAuth
// @Produce      json
// @Param        userID path int true "User ID"
// @Success      200  {object}  domain.Presence
// @Failure      400  {object}  map[string]string
// @Failure      403  {object}  map[string]string
// @Router       /presence/{userID} [get]
func handleGetPresence(presence *service.PresenceService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := strconv.ParseInt(chi.URLParam(r, "userID"), 10, 64)
		if err != nil || id <= 0 {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid user id"})
			return
		}
		viewer := CurrentUser(r)

		ok, err := presence.CanView(r.Context(), viewer.ID, id)
		if err != nil {
			log.Error().Err(err).Int64("user_id", id).Msg("presence: visibility check")
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to load presence"})
			return
		}
		if !ok {
			writeJSON(w, http.StatusForbidden, map[string]string{"error": "forbidden"})
			return
		}

		p, err := presence.Get(r.Context(), id)
		if err != nil {
			log.Error().Err(err).Int64("user_id", id).Msg("presence: get")
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to load presence"})
			return
		}
		if p == nil {
			// Never seen: report offline rather than 404.
			p = &domain.Presence{UserID: id, Status: domain.PresenceOffline}
		}
		writeJSON(w, http.StatusOK, p)
	}
}
