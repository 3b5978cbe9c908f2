// Package types contains shared types used across the catalog bulk backend
package types

import (
	"fmt"
	"math"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Operation identifies the kind of bulk work to perform
type Operation string

const (
	OperationRefresh Operation = "refresh" // refresh TMDB metadata of existing records
	OperationImport  Operation = "import"  // import titles by TMDB id
	OperationStatus  Operation = "status"  // set publication status
)

// ParseOperation converts a path segment into an Operation
func ParseOperation(s string) (Operation, error) {
	switch op := Operation(strings.ToLower(strings.TrimSpace(s))); op {
	case OperationRefresh, OperationImport, OperationStatus:
		return op, nil
	default:
		return "", fmt.Errorf("unknown operation %q (valid options: refresh, import, status)", s)
	}
}

// EntityType identifies the catalog kind a bulk job targets
type EntityType string

const (
	EntityMovie  EntityType = "movie"
	EntitySeries EntityType = "series"
)

// ParseEntityType converts a request value into an EntityType
func ParseEntityType(s string) (EntityType, error) {
	switch et := EntityType(strings.ToLower(strings.TrimSpace(s))); et {
	case EntityMovie, EntitySeries:
		return et, nil
	default:
		return "", fmt.Errorf("unknown entity type %q (valid options: movie, series)", s)
	}
}

// Status is the lifecycle state of a bulk operation
type Status string

const (
	StatusQueued     Status = "queued"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

func (s Status) rank() int {
	switch s {
	case StatusQueued:
		return 0
	case StatusProcessing:
		return 1
	case StatusCompleted, StatusFailed:
		return 2
	default:
		return -1
	}
}

// IsTerminal reports whether no further transitions are expected
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// CanTransitionTo reports whether moving from s to next keeps the lifecycle forward-only.
// Staying in the same non-terminal state is allowed.
func (s Status) CanTransitionTo(next Status) bool {
	if s.IsTerminal() || next.rank() < 0 {
		return false
	}
	return next.rank() >= s.rank()
}

// Publication states of catalog titles
const (
	TitleStatusPublished = "published"
	TitleStatusDraft     = "draft"
)

// ValidTitleStatus reports whether s is a known publication status
func ValidTitleStatus(s string) bool {
	return s == TitleStatusPublished || s == TitleStatusDraft
}

// ProgressKey is the opaque handle correlating a trigger with later polls
type ProgressKey string

var progressKeyPattern = regexp.MustCompile(fmt.Sprintf(`^(%s)_(%s)_[0-9]+_[a-f0-9]{8}$`,
	alternation(Operations()), alternation(EntityTypes())))

// Operations lists every known operation
func Operations() []Operation {
	return []Operation{OperationRefresh, OperationImport, OperationStatus}
}

// EntityTypes lists every known entity type
func EntityTypes() []EntityType {
	return []EntityType{EntityMovie, EntitySeries}
}

func alternation[T ~string](values []T) string {
	quoted := make([]string, len(values))
	for i, v := range values {
		quoted[i] = regexp.QuoteMeta(string(v))
	}
	return strings.Join(quoted, "|")
}

// NewProgressKey builds a key of the form {operation}_{entity_type}_{unix}_{random}
func NewProgressKey(op Operation, et EntityType, now time.Time) ProgressKey {
	random := strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
	return ProgressKey(fmt.Sprintf("%s_%s_%d_%s", op, et, now.Unix(), random))
}

// Valid reports whether the key has the shape produced by NewProgressKey
func (k ProgressKey) Valid() bool {
	return progressKeyPattern.MatchString(string(k))
}

func (k ProgressKey) String() string { return string(k) }

// ProgressError describes one failed item
type ProgressError struct {
	ID    int64  `json:"id"`
	Title string `json:"title"`
	Error string `json:"error"`
}

// ProgressRecord is the stored state of one bulk operation
type ProgressRecord struct {
	Key           ProgressKey     `json:"key"`
	Operation     Operation       `json:"operation"`
	EntityType    EntityType      `json:"entity_type"`
	Total         int             `json:"total"`
	Processed     int             `json:"processed"`
	Success       int             `json:"success"`
	Failed        int             `json:"failed"`
	Status        Status          `json:"status"`
	CurrentBatch  int             `json:"current_batch"`
	TotalBatches  int             `json:"total_batches"`
	Errors        []ProgressError `json:"errors"`
	FailureReason string          `json:"failure_reason,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
	QueuedAt      time.Time       `json:"queued_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

// NewProgressRecord returns the initial queued record for a job over total items
func NewProgressRecord(key ProgressKey, op Operation, et EntityType, total, batchSize int, now time.Time) *ProgressRecord {
	return &ProgressRecord{
		Key:          key,
		Operation:    op,
		EntityType:   et,
		Total:        total,
		Status:       StatusQueued,
		TotalBatches: TotalBatches(total, batchSize),
		Errors:       []ProgressError{},
		CreatedAt:    now,
		QueuedAt:     now,
		UpdatedAt:    now,
	}
}

// TotalBatches returns how many batches of batchSize cover total items
func TotalBatches(total, batchSize int) int {
	if total <= 0 || batchSize <= 0 {
		return 0
	}
	return (total + batchSize - 1) / batchSize
}

// Percentage returns round(processed/total*100), or 0 when total is 0
func Percentage(processed, total int) int {
	if total <= 0 {
		return 0
	}
	return int(math.Round(float64(processed) / float64(total) * 100))
}

// ProgressDelta is a single atomic update produced after each batch
type ProgressDelta struct {
	Processed     int
	Success       int
	Failed        int
	Errors        []ProgressError
	CurrentBatch  int
	Status        Status
	FailureReason string
}

// ProgressSnapshot is the poll representation of a ProgressRecord
type ProgressSnapshot struct {
	Total         int             `json:"total"`
	Processed     int             `json:"processed"`
	Success       int             `json:"success"`
	Failed        int             `json:"failed"`
	Status        Status          `json:"status"`
	CurrentBatch  int             `json:"current_batch"`
	TotalBatches  int             `json:"total_batches"`
	Errors        []ProgressError `json:"errors"`
	Percentage    int             `json:"percentage"`
	FailureReason string          `json:"failure_reason,omitempty"`
	Stale         bool            `json:"stale"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

// Snapshot converts the record into its poll payload. A processing record that has not
// been updated within staleAfter is flagged as stale; staleAfter <= 0 disables the check.
// Queued records are never stale since their wait depends on the jobs ahead of them.
func (r *ProgressRecord) Snapshot(now time.Time, staleAfter time.Duration) ProgressSnapshot {
	errs := r.Errors
	if errs == nil {
		errs = []ProgressError{}
	}
	return ProgressSnapshot{
		Total:         r.Total,
		Processed:     r.Processed,
		Success:       r.Success,
		Failed:        r.Failed,
		Status:        r.Status,
		CurrentBatch:  r.CurrentBatch,
		TotalBatches:  r.TotalBatches,
		Errors:        errs,
		Percentage:    Percentage(r.Processed, r.Total),
		FailureReason: r.FailureReason,
		Stale:         staleAfter > 0 && r.Status == StatusProcessing && now.Sub(r.UpdatedAt) > staleAfter,
		UpdatedAt:     r.UpdatedAt,
	}
}

// JobParams carries operation-specific parameters
type JobParams struct {
	Status string `json:"status,omitempty"`
}

// BulkJob is the typed message handed from the trigger endpoint to the job runner
type BulkJob struct {
	Operation   Operation   `json:"operation"`
	EntityType  EntityType  `json:"entity_type"`
	IDs         []int64     `json:"ids"`
	ProgressKey ProgressKey `json:"progress_key"`
	Params      JobParams   `json:"params"`
	RequestID   string      `json:"request_id,omitempty"`
	EnqueuedAt  time.Time   `json:"enqueued_at"`
}
