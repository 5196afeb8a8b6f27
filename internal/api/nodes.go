package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/snarg/meshgw/internal/radio"
	"github.com/snarg/meshgw/internal/store"
)

type nodesHandler struct {
	store *store.Store
	geo   Geocoder
	loc   *time.Location
	log   zerolog.Logger
}

// fmtTime renders a timestamp in the configured display timezone.
func (h *nodesHandler) fmtTime(t time.Time) string {
	return t.In(h.loc).Format(time.RFC3339)
}

type nodeResponse struct {
	ID                  string  `json:"id"`
	LastHeardAt         string  `json:"last_heard_at"`
	LongName            *string `json:"long_name,omitempty"`
	ShortName           *string `json:"short_name,omitempty"`
	HwModel             *string `json:"hw_model,omitempty"`
	Role                *string `json:"role,omitempty"`
	FirmwareVersion     *string `json:"firmware_version,omitempty"`
	Region              *string `json:"region,omitempty"`
	ModemPreset         *string `json:"modem_preset,omitempty"`
	NumOnlineLocalNodes *int32  `json:"num_online_local_nodes,omitempty"`
}

func (h *nodesHandler) nodeID(r *http.Request) (uint32, error) {
	return PathUint32(r, "id", radio.ParseNodeNum)
}

func (h *nodesHandler) getNode(w http.ResponseWriter, r *http.Request) {
	id, err := h.nodeID(r)
	if err != nil {
		WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	node, ok, err := h.store.NodeByID(r.Context(), id)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		h.log.Error().Err(err).Msg("api: node lookup failed")
		WriteError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	if !ok {
		WriteError(w, http.StatusNotFound, "node not found")
		return
	}

	resp := nodeResponse{
		ID:          node.IDHex,
		LastHeardAt: h.fmtTime(node.LastHeardAt),
	}

	info, ok, err := h.store.NodeInfoByID(r.Context(), id)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		h.log.Error().Err(err).Msg("api: node info lookup failed")
		WriteError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	if ok {
		resp.LongName = info.LongName
		resp.ShortName = info.ShortName
		resp.HwModel = info.HwModel
		resp.Role = info.Role
		resp.FirmwareVersion = info.FirmwareVersion
		resp.Region = info.Region
		resp.ModemPreset = info.ModemPreset
		resp.NumOnlineLocalNodes = info.NumOnlineLocalNodes
	}

	WriteJSON(w, http.StatusOK, resp)
}

type positionResponse struct {
	Topic         string   `json:"topic"`
	Latitude      *float64 `json:"latitude,omitempty"`
	Longitude     *float64 `json:"longitude,omitempty"`
	Altitude      *int32   `json:"altitude,omitempty"`
	PrecisionBits *int32   `json:"precision_bits,omitempty"`
	SatsInView    *int32   `json:"sats_in_view,omitempty"`
	Place         *string  `json:"place,omitempty"`
	UpdateAt      string   `json:"update_at"`
}

func (h *nodesHandler) getPositions(w http.ResponseWriter, r *http.Request) {
	id, err := h.nodeID(r)
	if err != nil {
		WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	page, err := ParsePagination(r)
	if err != nil {
		WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	positions, err := h.store.PositionsForNode(r.Context(), id, page.Limit, page.Offset)
	if err != nil {
		h.log.Error().Err(err).Msg("api: position lookup failed")
		WriteError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	out := make([]positionResponse, 0, len(positions))
	for _, p := range positions {
		pr := positionResponse{
			Topic:         p.Topic,
			Latitude:      p.Latitude,
			Longitude:     p.Longitude,
			Altitude:      p.Altitude,
			PrecisionBits: p.PrecisionBits,
			SatsInView:    p.SatsInView,
			UpdateAt:      h.fmtTime(p.UpdateAt),
		}
		pr.Place = h.lookupPlace(r, p)
		out = append(out, pr)
	}
	WriteJSON(w, http.StatusOK, out)
}

// lookupPlace reverse-geocodes a position. The lookup is best-effort: a nil
// geocoder, a miss, or a transport failure all leave the annotation off.
func (h *nodesHandler) lookupPlace(r *http.Request, p store.NodePosition) *string {
	if h.geo == nil || p.Latitude == nil || p.Longitude == nil {
		return nil
	}
	place, err := h.geo.Lookup(r.Context(), *p.Latitude, *p.Longitude)
	if err != nil {
		h.log.Debug().Err(err).Msg("api: reverse geocode failed")
		return nil
	}
	if place == "" {
		return nil
	}
	return &place
}

func (h *nodesHandler) getTelemetry(w http.ResponseWriter, r *http.Request) {
	id, err := h.nodeID(r)
	if err != nil {
		WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	t, err := h.store.LatestTelemetryForNode(r.Context(), id)
	if err != nil {
		h.log.Error().Err(err).Msg("api: telemetry lookup failed")
		WriteError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	WriteJSON(w, http.StatusOK, t)
}
