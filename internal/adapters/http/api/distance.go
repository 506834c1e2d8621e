package api

import (
	"errors"
	"net/http"
	"strings"
)

// DistanceHandler resolves a single origin/destination pair.
type DistanceHandler struct {
	deps DistanceDependencies
}

// NewDistanceHandler creates a new distance handler.
func NewDistanceHandler(deps DistanceDependencies) *DistanceHandler {
	return &DistanceHandler{deps: deps}
}

// HandleGetDistance handles GET /distance?origin=&destination=&mode= requests.
func (h *DistanceHandler) HandleGetDistance(w http.ResponseWriter, r *http.Request) {
	const op = "api.get_distance"
	if r.Method != http.MethodGet {
		http.NotFound(w, r)
		return
	}
	q := r.URL.Query()
	origin := strings.TrimSpace(q.Get("origin"))
	destination := strings.TrimSpace(q.Get("destination"))
	switch {
	case origin == "":
		writeError(w, WrapKind(op, ErrBadRequest, errors.New("missing origin")))
		return
	case destination == "":
		writeError(w, WrapKind(op, ErrBadRequest, errors.New("missing destination")))
		return
	}

	est, err := h.deps.Distance(r.Context(), origin, destination, q.Get("mode"))
	if err != nil {
		writeError(w, WrapKind(op, err, nil))
		return
	}
	writeJSON(w, http.StatusOK, est)
}
