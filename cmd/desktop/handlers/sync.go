// Package handlers provides REST API handlers for content sync operations.
package handlers

import (
	"context"
	"encoding/json"
	"mime"
	"net/http"

	apperrors "github.com/kimhsiao/memonexus/contentsync/internal/errors"
	"github.com/kimhsiao/memonexus/contentsync/internal/logging"
	"github.com/kimhsiao/memonexus/contentsync/internal/models"
	"github.com/kimhsiao/memonexus/contentsync/internal/sync"
	"github.com/kimhsiao/memonexus/contentsync/internal/sync/scheduler"
)

// DefaultMaxBodyBytes bounds request bodies. Payloads travel base64-encoded,
// so the default leaves room for a maximum-size payload.
const DefaultMaxBodyBytes = 48 << 20

// SyncScheduler is the part of the background scheduler the handlers use.
type SyncScheduler interface {
	SyncNow(ctx context.Context) (sync.SyncSummary, error)
	GetStatus() scheduler.SchedulerStatus
}

// SyncHandler handles sync operations.
type SyncHandler struct {
	service      sync.ContentSyncService
	scheduler    SyncScheduler
	maxBodyBytes int64
}

// NewSyncHandler creates a new SyncHandler. sched may be nil, in which case
// manual syncs call the service directly.
func NewSyncHandler(service sync.ContentSyncService, sched SyncScheduler) *SyncHandler {
	return &SyncHandler{
		service:      service,
		scheduler:    sched,
		maxBodyBytes: DefaultMaxBodyBytes,
	}
}

// SetMaxBodyBytes overrides the request body limit.
func (h *SyncHandler) SetMaxBodyBytes(n int64) {
	h.maxBodyBytes = n
}

// errorBody is the JSON error shape shared by every sync endpoint.
type errorBody struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	Retryable bool   `json:"retryable"`
}

// syncResponse carries the pass summary and, on failure, the error.
type syncResponse struct {
	Summary sync.SyncSummary `json:"summary"`
	Error   *errorBody       `json:"error,omitempty"`
}

// GetStatus handles GET /api/sync/status
// Returns the sync status, last sync time and pending operation count.
func (h *SyncHandler) GetStatus(w http.ResponseWriter, r *http.Request) {
	response := map[string]interface{}{
		"status":          h.service.Status(),
		"pending_changes": h.service.PendingCount(),
	}

	if lastSync := h.service.LastSync(); lastSync != nil {
		response["last_sync"] = lastSync.Unix()
	}
	if err := h.service.LastError(); err != nil {
		response["last_error"] = toErrorBody(err)
	}
	if h.scheduler != nil {
		response["scheduler"] = h.scheduler.GetStatus()
	}

	writeJSON(w, http.StatusOK, response)
}

// TriggerSync handles POST /api/sync/now
// Runs one pass over the queue and returns its summary.
func (h *SyncHandler) TriggerSync(w http.ResponseWriter, r *http.Request) {
	var summary sync.SyncSummary
	if h.scheduler != nil {
		var err error
		summary, err = h.scheduler.SyncNow(r.Context())
		if err != nil {
			writeError(w, err)
			return
		}
	} else {
		summary = h.service.SyncPending(r.Context())
	}

	// Failures stay queued; they are reported in the summary, not as an HTTP error
	writeJSON(w, http.StatusOK, syncResponse{Summary: summary})
}

type publishRequest struct {
	ContentID  string `json:"content_id"`
	Visibility string `json:"visibility"`
	Payload    []byte `json:"payload"`
}

// Publish handles POST /api/sync/publish
// Queues a publish and returns the summary of the pass it triggered.
func (h *SyncHandler) Publish(w http.ResponseWriter, r *http.Request) {
	var request publishRequest
	if !h.decode(w, r, &request) {
		return
	}

	contentID, err := models.ParseContentID(request.ContentID)
	if err != nil {
		writeError(w, err)
		return
	}
	visibility, err := models.ParseVisibility(request.Visibility)
	if err != nil {
		writeError(w, err)
		return
	}

	summary, err := h.service.EnqueuePublish(r.Context(), contentID, visibility, request.Payload)
	h.writeEnqueueResult(w, summary, err)
}

type unpublishRequest struct {
	ContentID string `json:"content_id"`
	PublicID  string `json:"public_id"`
}

// Unpublish handles POST /api/sync/unpublish
// Queues an unpublish and returns the summary of the pass it triggered.
func (h *SyncHandler) Unpublish(w http.ResponseWriter, r *http.Request) {
	var request unpublishRequest
	if !h.decode(w, r, &request) {
		return
	}

	contentID, err := models.ParseContentID(request.ContentID)
	if err != nil {
		writeError(w, err)
		return
	}

	summary, err := h.service.EnqueueUnpublish(r.Context(), contentID, request.PublicID)
	h.writeEnqueueResult(w, summary, err)
}

// GetPending handles GET /api/sync/pending/{content_id}
// Returns the operations still queued for one content item.
func (h *SyncHandler) GetPending(w http.ResponseWriter, r *http.Request) {
	contentID, err := models.ParseContentID(r.PathValue("content_id"))
	if err != nil {
		writeError(w, err)
		return
	}

	ops := h.service.PendingFor(contentID)
	if ops == nil {
		ops = []*models.PendingOperation{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"content_id": contentID,
		"pending":    ops,
	})
}

func (h *SyncHandler) decode(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	mediaType, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if err != nil || mediaType != "application/json" {
		typeErr := apperrors.New(apperrors.ErrValidation, "content type must be application/json")
		writeJSON(w, http.StatusUnsupportedMediaType, map[string]interface{}{"error": toErrorBody(typeErr)})
		return false
	}
	if h.maxBodyBytes > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, h.maxBodyBytes)
	}
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, apperrors.Wrap(apperrors.ErrValidation, "invalid request body", err))
		return false
	}
	return true
}

// writeEnqueueResult always includes the summary. A retryable failure left
// the operation queued, so it is reported as 202 Accepted.
func (h *SyncHandler) writeEnqueueResult(w http.ResponseWriter, summary sync.SyncSummary, err error) {
	if err == nil {
		writeJSON(w, http.StatusOK, syncResponse{Summary: summary})
		return
	}

	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		logging.Error("Sync request failed", err, map[string]interface{}{"code": string(apperrors.CodeOf(err))})
	}
	writeJSON(w, status, syncResponse{Summary: summary, Error: toErrorBody(err)})
}

func statusFor(err error) int {
	if apperrors.IsRetryable(err) {
		return http.StatusAccepted
	}
	switch apperrors.CodeOf(err) {
	case apperrors.ErrValidation:
		return http.StatusBadRequest
	case apperrors.ErrNotFound:
		return http.StatusNotFound
	case apperrors.ErrQueueFull:
		return http.StatusServiceUnavailable
	case apperrors.ErrConcurrencyConflict:
		return http.StatusConflict
	case apperrors.ErrDropped:
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

func toErrorBody(err error) *errorBody {
	return &errorBody{
		Code:      string(apperrors.CodeOf(err)),
		Message:   err.Error(),
		Retryable: apperrors.IsRetryable(err),
	}
}

func writeError(w http.ResponseWriter, err error) {
	writeJSON(w, statusFor(err), map[string]interface{}{"error": toErrorBody(err)})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logging.Error("Failed to encode response", err)
	}
}
