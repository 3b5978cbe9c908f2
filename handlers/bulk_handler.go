package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/Nexora-Open-Source/catalog-bulk-backend/cache"
	"github.com/Nexora-Open-Source/catalog-bulk-backend/middleware"
	"github.com/Nexora-Open-Source/catalog-bulk-backend/monitoring"
	"github.com/Nexora-Open-Source/catalog-bulk-backend/queue"
	"github.com/Nexora-Open-Source/catalog-bulk-backend/types"
	"github.com/Nexora-Open-Source/catalog-bulk-backend/utils"
	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/trace"
)

const (
	maxRequestBodyBytes = 1 << 20
	createKeyAttempts   = 3
)

// TriggerResponse is returned once a bulk job has been accepted
type TriggerResponse struct {
	Success     bool              `json:"success" example:"true"`
	ProgressKey types.ProgressKey `json:"progressKey" example:"refresh_movie_1700000000_1a2b3c4d"`
	TotalItems  int               `json:"totalItems" example:"7"`
}

// @Summary Trigger a bulk catalog operation
// @Description Validates the request, resolves the target set once, records a queued progress entry and enqueues the job. The response does not wait for the work.
// @Tags Bulk Operations
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param operation path string true "Operation" Enums(refresh, import, status)
// @Param request body TriggerRequest true "Targets and parameters"
// @Success 202 {object} TriggerResponse "Job accepted"
// @Failure 400 {object} middleware.APIError "Malformed body"
// @Failure 401 {object} middleware.APIError "Missing or invalid token"
// @Failure 404 {object} middleware.APIError "Unknown operation or no items found"
// @Failure 422 {object} middleware.APIError "Validation failed"
// @Failure 500 {object} middleware.APIError "Internal server error"
// @Failure 503 {object} middleware.APIError "Queue under backpressure"
// @Router /bulk/{operation} [post]
func (h *Handler) HandleTriggerBulk(w http.ResponseWriter, r *http.Request) {
	requestID := utils.RequestID(r)
	w.Header().Set(utils.RequestIDHeader, requestID)
	ctx := r.Context()

	op, err := types.ParseOperation(mux.Vars(r)["operation"])
	if err != nil {
		middleware.RespondNotFound(w, err.Error(), requestID)
		return
	}

	var body TriggerRequest
	decoder := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBodyBytes))
	decoder.UseNumber()
	if err := decoder.Decode(&body); err != nil {
		if errors.Is(err, io.EOF) {
			err = errors.New("request body is required")
		}
		middleware.RespondBadRequest(w, fmt.Errorf("invalid JSON body: %w", err), requestID)
		return
	}

	req, fieldErrs := validateTriggerRequest(op, &body, h.Options.MaxItems)
	if fieldErrs != nil {
		middleware.RespondValidationError(w, fieldErrs, requestID)
		return
	}

	log := h.Logger.WithFields(logrus.Fields{
		"request_id":  requestID,
		"operation":   op,
		"entity_type": req.EntityType,
	})

	ids, err := h.resolveTargets(ctx, req)
	if err != nil {
		log.WithError(err).Error("Failed to resolve bulk targets")
		middleware.RespondInternalError(w, fmt.Errorf("failed to resolve targets: %w", err), requestID)
		return
	}
	monitoring.RecordTargetSize(string(op), len(ids))
	if len(ids) == 0 {
		middleware.RespondNotFound(w, "no items found", requestID)
		return
	}

	rec, err := h.createRecord(ctx, req, len(ids))
	if err != nil {
		log.WithError(err).Error("Failed to create progress record")
		middleware.RespondInternalError(w, fmt.Errorf("failed to create progress record: %w", err), requestID)
		return
	}
	log = log.WithField("progress_key", rec.Key)

	job := &types.BulkJob{
		Operation:   op,
		EntityType:  req.EntityType,
		IDs:         ids,
		ProgressKey: rec.Key,
		Params:      req.Params,
		RequestID:   requestID,
		EnqueuedAt:  rec.QueuedAt,
	}
	if err := h.Queue.Enqueue(ctx, job); err != nil {
		// No job will ever drive this record
		if delErr := h.Store.Delete(context.WithoutCancel(ctx), rec.Key); delErr != nil {
			log.WithError(delErr).Error("Failed to roll back progress record")
		}
		if errors.Is(err, queue.ErrBackpressure) {
			log.WithError(err).Warn("Bulk job rejected by queue backpressure")
			middleware.RespondServiceUnavailable(w, err, requestID)
			return
		}
		log.WithError(err).Error("Failed to enqueue bulk job")
		middleware.RespondInternalError(w, fmt.Errorf("failed to enqueue job: %w", err), requestID)
		return
	}

	monitoring.AddSpanEvent(trace.SpanFromContext(ctx), "bulk.enqueued", map[string]interface{}{
		"progress_key": string(rec.Key),
		"total_items":  len(ids),
	})
	log.WithFields(logrus.Fields{
		"total_items":   len(ids),
		"total_batches": rec.TotalBatches,
	}).Info("Bulk job enqueued")

	middleware.RespondJSON(w, http.StatusAccepted, TriggerResponse{
		Success:     true,
		ProgressKey: rec.Key,
		TotalItems:  len(ids),
	})
}

// resolveTargets captures the de-duplicated target set once, at trigger time
func (h *Handler) resolveTargets(ctx context.Context, req *bulkRequest) ([]int64, error) {
	var (
		ids []int64
		err error
	)
	switch {
	case req.IDs != nil:
		ids = req.IDs
	case req.FeedURL != "":
		ids, err = h.Feeds.ResolveTMDBIDs(ctx, req.FeedURL, req.EntityType, req.Filter.Limit)
	default:
		ids, err = h.Catalog.ResolveIDs(ctx, req.EntityType, *req.Filter)
	}
	if err != nil {
		return nil, err
	}
	ids = utils.DedupeIDs(ids)
	if len(ids) > h.Options.MaxItems {
		ids = ids[:h.Options.MaxItems]
	}
	return ids, nil
}

func (h *Handler) createRecord(ctx context.Context, req *bulkRequest, total int) (*types.ProgressRecord, error) {
	var err error
	for attempt := 0; attempt < createKeyAttempts; attempt++ {
		now := h.now().UTC()
		key := types.NewProgressKey(req.Operation, req.EntityType, now)
		rec := types.NewProgressRecord(key, req.Operation, req.EntityType, total, h.Options.BatchSize, now)
		if err = h.Store.Create(ctx, rec); err == nil {
			return rec, nil
		}
		if !errors.Is(err, cache.ErrKeyExists) {
			return nil, err
		}
	}
	return nil, err
}
