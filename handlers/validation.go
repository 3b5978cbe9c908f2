package handlers

import (
	"encoding/json"
	"fmt"

	"github.com/Nexora-Open-Source/catalog-bulk-backend/catalog"
	"github.com/Nexora-Open-Source/catalog-bulk-backend/feeds"
	"github.com/Nexora-Open-Source/catalog-bulk-backend/middleware"
	"github.com/Nexora-Open-Source/catalog-bulk-backend/types"
)

// TriggerRequest is the body of POST /bulk/{operation}
type TriggerRequest struct {
	EntityType string `json:"entity_type" example:"movie"`
	// IDs is decoded loosely so that non-integer entries surface as validation errors
	IDs    []interface{}  `json:"ids,omitempty" swaggertype:"array,integer"`
	Filter *TriggerFilter `json:"filter,omitempty"`
	Params TriggerParams  `json:"params"`
}

// TriggerFilter selects targets when no explicit ids are given
type TriggerFilter struct {
	Status  string `json:"status,omitempty" example:"draft"`
	Limit   int    `json:"limit,omitempty" example:"100"`
	FeedURL string `json:"feed_url,omitempty" example:"https://letterboxd.com/user/rss/"`
}

// TriggerParams carries operation-specific parameters
type TriggerParams struct {
	Status string `json:"status,omitempty" example:"published"`
}

// bulkRequest is a TriggerRequest that passed validation
type bulkRequest struct {
	Operation  types.Operation
	EntityType types.EntityType
	IDs        []int64
	Filter     *catalog.Filter
	FeedURL    string
	Params     types.JobParams
}

// validateTriggerRequest checks req for op. Nothing may be created when the returned
// FieldErrors is non-empty.
func validateTriggerRequest(op types.Operation, req *TriggerRequest, maxItems int) (*bulkRequest, middleware.FieldErrors) {
	fields := middleware.FieldErrors{}
	out := &bulkRequest{Operation: op}

	if req.EntityType == "" {
		fields.Add("entity_type", "entity_type is required")
	} else if et, err := types.ParseEntityType(req.EntityType); err != nil {
		fields.Add("entity_type", err.Error())
	} else {
		out.EntityType = et
	}

	switch {
	case req.IDs != nil && req.Filter != nil:
		fields.Add("ids", "provide either ids or filter, not both")
	case req.IDs == nil && req.Filter == nil:
		fields.Add("ids", "ids or filter is required")
	case req.IDs != nil:
		out.IDs = validateIDs(req.IDs, maxItems, fields)
	default:
		out.Filter, out.FeedURL = validateFilter(op, req.Filter, maxItems, fields)
	}

	if req.Params.Status != "" && !types.ValidTitleStatus(req.Params.Status) {
		fields.Add("params.status", "params.status must be one of: published, draft")
	}
	if op == types.OperationStatus && req.Params.Status == "" {
		fields.Add("params.status", "params.status is required for the status operation")
	}
	out.Params.Status = req.Params.Status

	if len(fields) > 0 {
		return nil, fields
	}
	return out, nil
}

func validateIDs(raw []interface{}, maxItems int, fields middleware.FieldErrors) []int64 {
	if len(raw) == 0 {
		fields.Add("ids", "ids must not be empty")
		return nil
	}
	if len(raw) > maxItems {
		fields.Add("ids", fmt.Sprintf("at most %d ids may be given", maxItems))
		return nil
	}

	ids := make([]int64, 0, len(raw))
	for i, v := range raw {
		n, ok := v.(json.Number)
		if !ok {
			fields.Add("ids", fmt.Sprintf("ids[%d] must be a positive integer", i))
			return nil
		}
		id, err := n.Int64()
		if err != nil || id <= 0 {
			fields.Add("ids", fmt.Sprintf("ids[%d] must be a positive integer", i))
			return nil
		}
		ids = append(ids, id)
	}
	return ids
}

func validateFilter(op types.Operation, f *TriggerFilter, maxItems int, fields middleware.FieldErrors) (*catalog.Filter, string) {
	filter := &catalog.Filter{Status: f.Status, Limit: f.Limit}

	switch {
	case f.Limit == 0:
		filter.Limit = maxItems
	case f.Limit < 0 || f.Limit > maxItems:
		fields.Add("filter.limit", fmt.Sprintf("filter.limit must be between 1 and %d", maxItems))
	}

	if f.Status != "" && !types.ValidTitleStatus(f.Status) {
		fields.Add("filter.status", "filter.status must be one of: published, draft")
	}

	var feedURL string
	switch {
	case op == types.OperationImport && f.FeedURL == "":
		fields.Add("filter.feed_url", "filter.feed_url is required when importing by filter")
	case op != types.OperationImport && f.FeedURL != "":
		fields.Add("filter.feed_url", "filter.feed_url is only supported by the import operation")
	case f.FeedURL != "":
		sanitized, err := feeds.ValidateFeedURL(f.FeedURL)
		if err != nil {
			fields.Add("filter.feed_url", err.Error())
		}
		feedURL = sanitized
	}
	if op == types.OperationImport && f.Status != "" {
		fields.Add("filter.status", "filter.status does not apply to imports; use params.status")
	}

	return filter, feedURL
}
