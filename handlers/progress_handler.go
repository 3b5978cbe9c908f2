package handlers

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/Nexora-Open-Source/catalog-bulk-backend/cache"
	"github.com/Nexora-Open-Source/catalog-bulk-backend/middleware"
	"github.com/Nexora-Open-Source/catalog-bulk-backend/types"
	"github.com/Nexora-Open-Source/catalog-bulk-backend/utils"
	"github.com/sirupsen/logrus"
)

// ProgressResponse is the poll payload
type ProgressResponse struct {
	Success  bool                   `json:"success" example:"true"`
	Progress types.ProgressSnapshot `json:"progress"`
}

// HandleGetProgress reports the progress of a bulk job
//
// @Summary Poll bulk operation progress
// @Description Returns the current progress snapshot for a progress key. A processing snapshot that stopped advancing is flagged as stale.
// @Tags Bulk Operations
// @Produce json
// @Security BearerAuth
// @Param key query string true "Progress key"
// @Success 200 {object} ProgressResponse "Progress snapshot"
// @Failure 400 {object} middleware.APIError "Missing key"
// @Failure 401 {object} middleware.APIError "Missing or invalid token"
// @Failure 404 {object} middleware.APIError "Unknown, expired or mistyped key"
// @Failure 500 {object} middleware.APIError "Internal server error"
// @Router /bulk/progress [get]
func (h *Handler) HandleGetProgress(w http.ResponseWriter, r *http.Request) {
	requestID := utils.RequestID(r)
	w.Header().Set(utils.RequestIDHeader, requestID)

	raw := r.URL.Query().Get("key")
	if raw == "" {
		middleware.RespondBadRequest(w, fmt.Errorf("key parameter is missing"), requestID)
		return
	}
	// a key this server could never have issued is just an unknown key
	key := types.ProgressKey(raw)
	if !key.Valid() {
		middleware.RespondNotFound(w, "not found", requestID)
		return
	}

	rec, err := h.Store.Get(r.Context(), key)
	if errors.Is(err, cache.ErrNotFound) {
		middleware.RespondNotFound(w, "not found", requestID)
		return
	}
	if err != nil {
		h.Logger.WithFields(logrus.Fields{
			"request_id":   requestID,
			"progress_key": key,
			"error":        err.Error(),
		}).Error("Failed to read progress record")
		middleware.RespondInternalError(w, fmt.Errorf("failed to read progress"), requestID)
		return
	}

	middleware.RespondJSON(w, http.StatusOK, ProgressResponse{
		Success:  true,
		Progress: rec.Snapshot(h.now(), h.Options.StaleAfter),
	})
}
