// Package scheduler runs background sync passes over the pending queue.
package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/kimhsiao/memonexus/contentsync/internal/errors"
	"github.com/kimhsiao/memonexus/contentsync/internal/logging"
	syncpkg "github.com/kimhsiao/memonexus/contentsync/internal/sync"
)

// DefaultPassTimeout bounds a single background pass.
const DefaultPassTimeout = 5 * time.Minute

// Scheduler drives periodic SyncPending calls.
type Scheduler struct {
	service      syncpkg.ContentSyncService
	syncInterval time.Duration
	passTimeout  time.Duration
	stopCh       chan struct{}
	wg           sync.WaitGroup
	mu           sync.RWMutex
	isRunning    bool
	isOnline     bool
	lastSyncTime time.Time
	lastSummary  syncpkg.SyncSummary
	inProgress   bool
	log          *logging.Logger
}

// SchedulerConfig holds scheduler configuration.
type SchedulerConfig struct {
	SyncInterval time.Duration // How often to drain the queue when online (default: 1 minute)
	PassTimeout  time.Duration // Upper bound for one pass (default: 5 minutes)
}

// DefaultSchedulerConfig returns default scheduler configuration.
func DefaultSchedulerConfig() *SchedulerConfig {
	return &SchedulerConfig{
		SyncInterval: 1 * time.Minute,
		PassTimeout:  DefaultPassTimeout,
	}
}

// NewScheduler creates a new Scheduler.
func NewScheduler(service syncpkg.ContentSyncService, config *SchedulerConfig) *Scheduler {
	if config == nil {
		config = DefaultSchedulerConfig()
	}
	interval := config.SyncInterval
	if interval <= 0 {
		interval = DefaultSchedulerConfig().SyncInterval
	}
	timeout := config.PassTimeout
	if timeout <= 0 {
		timeout = DefaultPassTimeout
	}

	return &Scheduler{
		service:      service,
		syncInterval: interval,
		passTimeout:  timeout,
		stopCh:       make(chan struct{}),
		isOnline:     true, // Assume online initially
		log:          logging.Get().Named("scheduler"),
	}
}

// Start starts the background loop.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	if s.isRunning {
		s.mu.Unlock()
		return
	}
	s.isRunning = true
	s.stopCh = make(chan struct{})
	s.mu.Unlock()

	s.wg.Add(1)
	go s.loop(ctx)

	s.log.Info("Background sync scheduler started", map[string]interface{}{
		"interval_seconds": s.syncInterval.Seconds(),
	})
}

// Stop stops the background loop and waits for an in-flight pass.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.isRunning {
		s.mu.Unlock()
		return
	}
	s.isRunning = false
	close(s.stopCh)
	s.mu.Unlock()

	s.wg.Wait()

	s.log.Info("Background sync scheduler stopped", nil)
}

// SetOnlineStatus changes the online status of the scheduler.
// While offline, ticks are skipped; going back online triggers a pass.
func (s *Scheduler) SetOnlineStatus(ctx context.Context, isOnline bool) {
	s.mu.Lock()
	wasOnline := s.isOnline
	s.isOnline = isOnline
	running := s.isRunning
	s.mu.Unlock()

	if wasOnline == isOnline {
		return
	}

	s.log.Info("Online status changed",
		map[string]interface{}{
			"was_online": wasOnline,
			"is_online":  isOnline,
		})

	if isOnline && running {
		s.TriggerSync(ctx)
	}
}

func (s *Scheduler) loop(ctx context.Context) {
	defer s.wg.Done()

	ticker := time.NewTicker(s.syncInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.stopCh:
			return
		case <-ticker.C:
			if !s.IsOnline() {
				continue
			}
			if !s.begin() {
				s.log.Debug("Sync already in progress, skipping", nil)
				continue
			}
			s.runPass(ctx, "periodic")
		}
	}
}

// begin marks a pass as in progress. It reports false if one already is.
func (s *Scheduler) begin() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.inProgress {
		return false
	}
	s.inProgress = true
	return true
}

// runPass runs SyncPending and records the result. The caller must have called begin.
func (s *Scheduler) runPass(ctx context.Context, trigger string) syncpkg.SyncSummary {
	defer func() {
		s.mu.Lock()
		s.inProgress = false
		s.mu.Unlock()
	}()

	passCtx, cancel := context.WithTimeout(ctx, s.passTimeout)
	defer cancel()

	summary := s.service.SyncPending(passCtx)

	s.mu.Lock()
	s.lastSummary = summary
	if summary.Failed == 0 {
		s.lastSyncTime = time.Now()
	}
	s.mu.Unlock()

	if summary.Failed > 0 {
		lastErr := s.service.LastError()
		s.log.ErrorWithCode("Sync pass left failures", string(errors.CodeOf(lastErr)), lastErr,
			map[string]interface{}{
				"trigger":   trigger,
				"attempted": summary.Attempted,
				"failed":    summary.Failed,
			})
	} else if summary.Attempted > 0 {
		s.log.Info("Sync pass completed",
			map[string]interface{}{
				"trigger":   trigger,
				"attempted": summary.Attempted,
				"succeeded": summary.Succeeded,
			})
	}

	return summary
}

// TriggerSync starts a pass in the background.
// Returns true if a pass was started, false if one is already in progress.
func (s *Scheduler) TriggerSync(ctx context.Context) bool {
	if !s.begin() {
		return false
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.runPass(ctx, "trigger")
	}()
	return true
}

// SyncNow runs a pass and waits for its summary. Unlike the background loop
// it runs even when the scheduler is offline.
func (s *Scheduler) SyncNow(ctx context.Context) (syncpkg.SyncSummary, error) {
	if !s.begin() {
		return syncpkg.SyncSummary{}, errors.New(errors.ErrConcurrencyConflict, "a sync pass is already in progress")
	}
	return s.runPass(ctx, "manual"), nil
}

// SchedulerStatus describes the scheduler state.
type SchedulerStatus struct {
	IsRunning      bool                `json:"is_running"`
	IsOnline       bool                `json:"is_online"`
	LastSyncTime   *time.Time          `json:"last_sync_time,omitempty"`
	SyncInProgress bool                `json:"sync_in_progress"`
	PendingItems   int                 `json:"pending_items"`
	LastSummary    syncpkg.SyncSummary `json:"last_summary"`
}

// GetStatus returns the current status of the scheduler.
func (s *Scheduler) GetStatus() SchedulerStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()

	status := SchedulerStatus{
		IsRunning:      s.isRunning,
		IsOnline:       s.isOnline,
		SyncInProgress: s.inProgress,
		PendingItems:   s.service.PendingCount(),
		LastSummary:    s.lastSummary,
	}

	if !s.lastSyncTime.IsZero() {
		t := s.lastSyncTime
		status.LastSyncTime = &t
	}

	return status
}

// IsOnline returns whether the scheduler is in online mode.
func (s *Scheduler) IsOnline() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.isOnline
}

// IsRunning returns whether the scheduler is running.
func (s *Scheduler) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.isRunning
}
