package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/okian/pitchside/internal/adapters/location"
)

// locationRequest mirrors the body of POST /location.
type locationRequest struct {
	UserID            string     `json:"user_id" validate:"required"`
	Latitude          *float64   `json:"latitude" validate:"required"`
	Longitude         *float64   `json:"longitude" validate:"required"`
	CapturedAt        *time.Time `json:"captured_at"`
	Address           string     `json:"address"`
	PermissionGranted bool       `json:"permission_granted"`
	ServicesEnabled   bool       `json:"services_enabled"`
}

func (r *locationRequest) reading() location.Reading {
	out := location.Reading{
		Latitude:          *r.Latitude,
		Longitude:         *r.Longitude,
		Address:           r.Address,
		PermissionGranted: r.PermissionGranted,
		ServicesEnabled:   r.ServicesEnabled,
	}
	if r.CapturedAt != nil {
		out.CapturedAt = *r.CapturedAt
	}
	return out
}

// LocationHandler handles location reports.
type LocationHandler struct {
	deps LocationDependencies
}

// NewLocationHandler creates a new location handler.
func NewLocationHandler(deps LocationDependencies) *LocationHandler {
	return &LocationHandler{deps: deps}
}

// HandlePostLocation handles POST /location requests.
func (h *LocationHandler) HandlePostLocation(w http.ResponseWriter, r *http.Request) {
	const op = "api.post_location"
	if r.Method != http.MethodPost {
		http.NotFound(w, r)
		return
	}
	var req locationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, WrapKind(op, ErrBadRequest, err))
		return
	}
	if err := validate.Struct(&req); err != nil {
		writeError(w, WrapKind(op, ErrBadRequest, err))
		return
	}
	if err := h.deps.Report(r.Context(), req.UserID, req.reading()); err != nil {
		writeError(w, WrapKind(op, err, nil))
		return
	}
	writeJSON(w, http.StatusAccepted, ackResponse{Status: "accepted"})
}
