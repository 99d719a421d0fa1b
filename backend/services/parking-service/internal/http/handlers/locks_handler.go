package handlers

import (
	"net/http"

	"go.uber.org/zap"

	"autopark/backend/services/parking-service/internal/lock"
)

// LocksHandler exposes the advisory operator locks.
type LocksHandler struct {
	locks  *lock.Manager
	logger *zap.Logger
}

// NewLocksHandler builds handler set.
func NewLocksHandler(locks *lock.Manager, logger *zap.Logger) *LocksHandler {
	return &LocksHandler{locks: locks, logger: logger}
}

type lockRequest struct {
	Resource string `json:"resource"`
}

// HandleAcquire handles POST /locks/acquire. A lock held by anyone, the caller included,
// answers 409 with the current holder.
func (h *LocksHandler) HandleAcquire(w http.ResponseWriter, r *http.Request) {
	who, ok := actor(w, r)
	if !ok {
		return
	}
	var req lockRequest
	if !decode(w, r, &req) {
		return
	}
	acquired, err := h.locks.Acquire(r.Context(), req.Resource, who.ID, who.Name)
	if err != nil {
		writeServiceError(w, h.logger, "acquire lock", err)
		return
	}
	if !acquired {
		info, _ := h.locks.Status(r.Context(), req.Resource)
		writeJSON(w, http.StatusConflict, map[string]interface{}{"acquired": false, "lock": info})
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"acquired": true, "ttl_seconds": int(h.locks.TTL().Seconds())})
}

// HandleExtend handles POST /locks/extend.
func (h *LocksHandler) HandleExtend(w http.ResponseWriter, r *http.Request) {
	who, ok := actor(w, r)
	if !ok {
		return
	}
	var req lockRequest
	if !decode(w, r, &req) {
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"extended": h.locks.Extend(r.Context(), req.Resource, who.ID)})
}

// HandleRelease handles POST /locks/release.
func (h *LocksHandler) HandleRelease(w http.ResponseWriter, r *http.Request) {
	who, ok := actor(w, r)
	if !ok {
		return
	}
	var req lockRequest
	if !decode(w, r, &req) {
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"released": h.locks.Release(r.Context(), req.Resource, who.ID)})
}

// HandleStatus handles GET /locks?resource=a&resource=b.
func (h *LocksHandler) HandleStatus(w http.ResponseWriter, r *http.Request) {
	resources := r.URL.Query()["resource"]
	if len(resources) == 0 {
		writeError(w, http.StatusBadRequest, "resource is required")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"locks": h.locks.StatusBatch(r.Context(), resources)})
}
