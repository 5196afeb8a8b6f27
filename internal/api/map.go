package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/snarg/meshgw/internal/mapbuilder"
)

type mapHandler struct {
	builder *mapbuilder.Builder
	log     zerolog.Logger
}

const defaultReportNodeHours = 3

func (h *mapHandler) getMap(w http.ResponseWriter, r *http.Request) {
	end := time.Now().UTC()
	if v := r.URL.Query().Get("end"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			WriteError(w, http.StatusBadRequest, "invalid end: must be an RFC 3339 timestamp")
			return
		}
		end = t
	}
	start := end.Add(-24 * time.Hour)
	if v := r.URL.Query().Get("start"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			WriteError(w, http.StatusBadRequest, "invalid start: must be an RFC 3339 timestamp")
			return
		}
		start = t
	}

	reportNodeHours := defaultReportNodeHours
	if v, ok := QueryInt(r, "report_node_hours"); ok {
		reportNodeHours = v
	}

	presets := QueryStringList(r, "modem_preset")

	result, err := h.builder.Coordinates(r.Context(), start, end, reportNodeHours, presets)
	if err != nil {
		if errors.Is(err, mapbuilder.ErrInvalidTimeRange) {
			WriteError(w, http.StatusBadRequest, err.Error())
			return
		}
		h.log.Error().Err(err).Msg("api: map coordinates failed")
		WriteError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	WriteJSON(w, http.StatusOK, result)
}
