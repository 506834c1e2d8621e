// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/go-playground/validator/v10"

	"github.com/okian/pitchside/internal/adapters/location"
	"github.com/okian/pitchside/internal/domain/model"
)

// Dependencies required by HTTP handlers. Using an interface bundle keeps
// the handler layer loosely coupled to implementations in other packages.
type Dependencies interface {
	LocationDependencies
	NearbyDependencies
	CacheDependencies
	DistanceDependencies
}

// LocationDependencies accepts device readings.
type LocationDependencies interface {
	// Report submits a reading for asynchronous refresh. Returns an error
	// wrapping queue.ErrQueueFull on backpressure.
	Report(ctx context.Context, userID string, r location.Reading) error
}

// NearbyDependencies ranks events for a user.
type NearbyDependencies interface {
	Nearby(ctx context.Context, userID string) (model.NearbyResult, error)
}

// CacheDependencies clears a user's proximity cache.
type CacheDependencies interface {
	Invalidate(ctx context.Context, userID string) error
}

// DistanceDependencies resolves a single pair.
type DistanceDependencies interface {
	Distance(ctx context.Context, origin, destination, mode string) (model.DistanceEstimate, error)
}

// Server wires HTTP routes for the business API.
type Server struct {
	healthHandler   *HealthHandler
	statsHandler    *StatsHandler
	locationHandler *LocationHandler
	nearbyHandler   *NearbyHandler
	cacheHandler    *CacheHandler
	distanceHandler *DistanceHandler
}

// NewServer creates a new API server with all handlers.
func NewServer(deps Dependencies, statsProvider StatsProvider) *Server {
	return &Server{
		healthHandler:   NewHealthHandler(),
		statsHandler:    NewStatsHandler(statsProvider),
		locationHandler: NewLocationHandler(deps),
		nearbyHandler:   NewNearbyHandler(deps),
		cacheHandler:    NewCacheHandler(deps),
		distanceHandler: NewDistanceHandler(deps),
	}
}

// Register attaches all HTTP routes to mux.
func (s *Server) Register(_ context.Context, mux *http.ServeMux) {
	mux.HandleFunc("/healthz", MetricsMiddleware(s.healthHandler.HandleHealth, "healthz"))
	mux.HandleFunc("/metrics", s.healthHandler.HandleHealth)
	mux.HandleFunc("/stats", MetricsMiddleware(s.statsHandler.HandleStats, "stats"))
	mux.HandleFunc("/location", MetricsMiddleware(s.locationHandler.HandlePostLocation, "location"))
	mux.HandleFunc("/events/nearby", MetricsMiddleware(s.nearbyHandler.HandleGetNearby, "events_nearby"))
	mux.HandleFunc("/cache/invalidate", MetricsMiddleware(s.cacheHandler.HandleInvalidate, "cache_invalidate"))
	mux.HandleFunc("/distance", MetricsMiddleware(s.distanceHandler.HandleGetDistance, "distance"))
}

var validate = validator.New(validator.WithRequiredStructEnabled())

type ackResponse struct {
	Status string `json:"status"`
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, err error) {
	status, code := classify(err)
	msg := http.StatusText(status)
	if err != nil {
		msg = err.Error()
	}
	writeJSON(w, status, errorResponse{Code: code, Message: msg})
}
