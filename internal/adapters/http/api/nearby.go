package api

import (
	"net/http"
	"strings"
	"time"

	"github.com/okian/pitchside/internal/domain/model"
)

type nearbyEvent struct {
	ID            string                  `json:"id"`
	SportID       string                  `json:"sport_id"`
	Status        string                  `json:"status"`
	EventDate     time.Time               `json:"event_date"`
	CreatedAt     time.Time               `json:"created_at"`
	Latitude      float64                 `json:"latitude"`
	Longitude     float64                 `json:"longitude"`
	SkillPriority int                     `json:"skill_priority"`
	Distance      *model.DistanceEstimate `json:"distance,omitempty"`
}

type nearbyResponse struct {
	UserID     string        `json:"user_id"`
	CacheValid bool          `json:"cache_valid"`
	ComputedAt *time.Time    `json:"computed_at,omitempty"`
	Events     []nearbyEvent `json:"events"`
}

func toNearbyResponse(userID string, res model.NearbyResult) nearbyResponse { //nolint:gocritic // hugeParam: response shaping
	out := nearbyResponse{
		UserID:     userID,
		CacheValid: res.CacheValid,
		Events:     make([]nearbyEvent, len(res.Events)),
	}
	if res.CacheValid {
		at := res.ComputedAt
		out.ComputedAt = &at
	}
	for i, ranked := range res.Events {
		ev := ranked.Event
		out.Events[i] = nearbyEvent{
			ID:            ev.ID,
			SportID:       ev.SportID,
			Status:        string(ev.Status),
			EventDate:     ev.EventDate,
			CreatedAt:     ev.CreatedAt,
			Latitude:      ev.Coordinate.Latitude(),
			Longitude:     ev.Coordinate.Longitude(),
			SkillPriority: ranked.SkillPriority,
			Distance:      ranked.Distance,
		}
	}
	return out
}

// NearbyHandler serves the ranked event list.
type NearbyHandler struct {
	deps NearbyDependencies
}

// NewNearbyHandler creates a new nearby handler.
func NewNearbyHandler(deps NearbyDependencies) *NearbyHandler {
	return &NearbyHandler{deps: deps}
}

// HandleGetNearby handles GET /events/nearby?user_id= requests.
func (h *NearbyHandler) HandleGetNearby(w http.ResponseWriter, r *http.Request) {
	const op = "api.get_nearby"
	if r.Method != http.MethodGet {
		http.NotFound(w, r)
		return
	}
	userID := strings.TrimSpace(r.URL.Query().Get("user_id"))
	if userID == "" {
		writeError(w, NewKind(op, ErrBadRequest))
		return
	}
	res, err := h.deps.Nearby(r.Context(), userID)
	if err != nil {
		writeError(w, WrapKind(op, err, nil))
		return
	}
	writeJSON(w, http.StatusOK, toNearbyResponse(userID, res))
}
