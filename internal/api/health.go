package api

import (
	"net/http"

	"github.com/snarg/meshgw/internal/database"
)

type healthHandler struct {
	db *database.DB
}

func (h *healthHandler) getHealth(w http.ResponseWriter, r *http.Request) {
	if err := h.db.HealthCheck(r.Context()); err != nil {
		WriteError(w, http.StatusServiceUnavailable, "database unreachable")
		return
	}
	WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
