// Package main provides the FFI bridge for mobile platforms.
// Build as shared library: libcontentsync.so (Android) / contentsync.framework (iOS).
// The cgo exports live in ffi.go; this file holds the platform-neutral state.
package main

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"os"
	"sync"

	"github.com/kimhsiao/memonexus/contentsync/internal/config"
	"github.com/kimhsiao/memonexus/contentsync/internal/db"
	apperrors "github.com/kimhsiao/memonexus/contentsync/internal/errors"
	"github.com/kimhsiao/memonexus/contentsync/internal/logging"
	"github.com/kimhsiao/memonexus/contentsync/internal/models"
	syncpkg "github.com/kimhsiao/memonexus/contentsync/internal/sync"
	"github.com/kimhsiao/memonexus/contentsync/internal/sync/queue"
	"github.com/kimhsiao/memonexus/contentsync/internal/sync/transport"
)

// bridge owns the sync service shared by every exported call.
type bridge struct {
	mu       sync.RWMutex
	service  syncpkg.ContentSyncService
	database *db.DB

	errMu   sync.RWMutex
	lastErr string
}

// result is the JSON document returned to the host app.
type result struct {
	OK      bool                 `json:"ok"`
	Summary *syncpkg.SyncSummary `json:"summary,omitempty"`
	Error   *resultError         `json:"error,omitempty"`
}

type resultError struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	Retryable bool   `json:"retryable"`
}

var core = &bridge{}

// setup wires the service from the config file at configPath.
// Calling it again after a successful init is a no-op.
func (b *bridge) setup(ctx context.Context, configPath string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.service != nil {
		return nil
	}

	logging.Init(os.Stderr, logging.LevelInfo)
	cfg, err := config.Load(configPath)
	if err != nil {
		return b.fail(err)
	}
	logging.SetLevel(cfg.LogLevel())

	var q *queue.OperationQueue
	if cfg.Sync.Durable {
		database, err := db.OpenMigrated(cfg.DataDir)
		if err != nil {
			return b.fail(err)
		}
		q, err = queue.NewDurableQueue(ctx, cfg.Sync.MaxQueueSize, db.NewRepository(database.DB))
		if err != nil {
			database.Close()
			return b.fail(err)
		}
		b.database = database
	} else {
		q = queue.NewOperationQueue(cfg.Sync.MaxQueueSize)
	}

	s3, err := transport.NewS3Transport(ctx, cfg.S3Config())
	if err != nil {
		b.closeLocked()
		return b.fail(apperrors.Wrap(apperrors.ErrSyncNotConfigured, "failed to configure transport", err))
	}

	t := transport.NewThrottled(s3, cfg.Transport.RatePerSecond, cfg.Transport.Burst)
	b.service = syncpkg.NewService(q, t, cfg.ServiceConfig())

	logging.Info("Mobile sync core initialized", map[string]interface{}{
		"durable": cfg.Sync.Durable,
		"pending": b.service.PendingCount(),
	})
	return nil
}

// use installs an already built service. Tests use it in place of setup.
func (b *bridge) use(service syncpkg.ContentSyncService) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.service = service
}

func (b *bridge) current() (syncpkg.ContentSyncService, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.service == nil {
		return nil, apperrors.New(apperrors.ErrSyncNotConfigured, "sync core not initialized")
	}
	return b.service, nil
}

// enqueuePublish takes the payload base64-encoded so it crosses the C boundary as a string.
func (b *bridge) enqueuePublish(ctx context.Context, contentID, visibility, payloadB64 string) string {
	service, err := b.current()
	if err != nil {
		return b.encode(nil, err)
	}

	id, err := models.ParseContentID(contentID)
	if err != nil {
		return b.encode(nil, err)
	}
	vis, err := models.ParseVisibility(visibility)
	if err != nil {
		return b.encode(nil, err)
	}
	payload, err := base64.StdEncoding.DecodeString(payloadB64)
	if err != nil {
		return b.encode(nil, apperrors.Wrap(apperrors.ErrValidation, "payload is not valid base64", err))
	}

	summary, err := service.EnqueuePublish(ctx, id, vis, payload)
	return b.encode(&summary, err)
}

func (b *bridge) enqueueUnpublish(ctx context.Context, contentID, publicID string) string {
	service, err := b.current()
	if err != nil {
		return b.encode(nil, err)
	}

	id, err := models.ParseContentID(contentID)
	if err != nil {
		return b.encode(nil, err)
	}

	summary, err := service.EnqueueUnpublish(ctx, id, publicID)
	return b.encode(&summary, err)
}

func (b *bridge) syncPending(ctx context.Context) string {
	service, err := b.current()
	if err != nil {
		return b.encode(nil, err)
	}

	summary := service.SyncPending(ctx)
	return b.encode(&summary, nil)
}

func (b *bridge) encode(summary *syncpkg.SyncSummary, err error) string {
	res := result{OK: err == nil, Summary: summary}
	if err != nil {
		b.fail(err)
		res.Error = &resultError{
			Code:      string(apperrors.CodeOf(err)),
			Message:   err.Error(),
			Retryable: apperrors.IsRetryable(err),
		}
	}

	data, mErr := json.Marshal(res)
	if mErr != nil {
		return `{"ok":false,"error":{"code":"INTERNAL_ERROR","message":"failed to encode result"}}`
	}
	return string(data)
}

// fail records err as the last error and returns it.
func (b *bridge) fail(err error) error {
	b.errMu.Lock()
	defer b.errMu.Unlock()
	b.lastErr = err.Error()
	return err
}

func (b *bridge) lastError() string {
	b.errMu.RLock()
	defer b.errMu.RUnlock()
	return b.lastErr
}

func (b *bridge) cleanup() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closeLocked()
	b.service = nil
	_ = logging.Get().Sync()
}

func (b *bridge) closeLocked() {
	if b.database != nil {
		if err := b.database.Close(); err != nil {
			logging.Error("Failed to close database", err)
		}
		b.database = nil
	}
}

func main() {
	// Main function is required for c-shared build mode
	// but is not actually executed when used as shared library
}
