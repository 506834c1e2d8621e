package api

import (
	"net/http"
	"strings"
)

// CacheHandler handles cache invalidation.
type CacheHandler struct {
	deps CacheDependencies
}

// NewCacheHandler creates a new cache handler.
func NewCacheHandler(deps CacheDependencies) *CacheHandler {
	return &CacheHandler{deps: deps}
}

// HandleInvalidate handles POST /cache/invalidate?user_id= requests.
func (h *CacheHandler) HandleInvalidate(w http.ResponseWriter, r *http.Request) {
	const op = "api.invalidate"
	if r.Method != http.MethodPost {
		http.NotFound(w, r)
		return
	}
	userID := strings.TrimSpace(r.URL.Query().Get("user_id"))
	if userID == "" {
		writeError(w, NewKind(op, ErrBadRequest))
		return
	}
	if err := h.deps.Invalidate(r.Context(), userID); err != nil {
		writeError(w, WrapKind(op, err, nil))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
