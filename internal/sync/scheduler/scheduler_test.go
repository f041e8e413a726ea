// Package scheduler tests for background sync scheduling functionality.
package scheduler

import (
	"context"
	"sync"
	"testing"
	"time"

	apperrors "github.com/kimhsiao/memonexus/contentsync/internal/errors"
	syncpkg "github.com/kimhsiao/memonexus/contentsync/internal/sync"
)

// =====================================================
// Test Helpers
// =====================================================

// blockingService holds SyncPending until release is closed.
type blockingService struct {
	*syncpkg.MockService
	entered chan struct{}
	release chan struct{}
	once    sync.Once
}

func newBlockingService() *blockingService {
	return &blockingService{
		MockService: syncpkg.NewMockService(),
		entered:     make(chan struct{}, 1),
		release:     make(chan struct{}),
	}
}

func (b *blockingService) SyncPending(ctx context.Context) syncpkg.SyncSummary {
	select {
	case b.entered <- struct{}{}:
	default:
	}
	select {
	case <-b.release:
	case <-ctx.Done():
	}
	return b.MockService.SyncPending(ctx)
}

func (b *blockingService) unblock() {
	b.once.Do(func() { close(b.release) })
}

func createTestScheduler(t *testing.T) (*syncpkg.MockService, *Scheduler) {
	t.Helper()
	service := syncpkg.NewMockService()
	scheduler := NewScheduler(service, &SchedulerConfig{
		SyncInterval: 20 * time.Millisecond,
		PassTimeout:  time.Second,
	})
	return service, scheduler
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}

// =====================================================
// Construction
// =====================================================

// TestDefaultSchedulerConfig verifies default configuration.
func TestDefaultSchedulerConfig(t *testing.T) {
	config := DefaultSchedulerConfig()

	if config.SyncInterval != 1*time.Minute {
		t.Errorf("SyncInterval = %v, want 1m", config.SyncInterval)
	}
	if config.PassTimeout != DefaultPassTimeout {
		t.Errorf("PassTimeout = %v, want %v", config.PassTimeout, DefaultPassTimeout)
	}
}

// TestNewScheduler_nilConfig verifies default config is used.
func TestNewScheduler_nilConfig(t *testing.T) {
	scheduler := NewScheduler(syncpkg.NewMockService(), nil)

	if scheduler.syncInterval != time.Minute {
		t.Errorf("syncInterval = %v, want 1m", scheduler.syncInterval)
	}
	if scheduler.passTimeout != DefaultPassTimeout {
		t.Errorf("passTimeout = %v, want %v", scheduler.passTimeout, DefaultPassTimeout)
	}
	if !scheduler.IsOnline() {
		t.Error("new scheduler should start online")
	}
	if scheduler.IsRunning() {
		t.Error("new scheduler should not be running")
	}
}

// TestNewScheduler_invalidIntervals verifies non-positive durations fall back to defaults.
func TestNewScheduler_invalidIntervals(t *testing.T) {
	scheduler := NewScheduler(syncpkg.NewMockService(), &SchedulerConfig{SyncInterval: -1})

	if scheduler.syncInterval != time.Minute || scheduler.passTimeout != DefaultPassTimeout {
		t.Errorf("intervals = %v, %v; want defaults", scheduler.syncInterval, scheduler.passTimeout)
	}
}

// =====================================================
// Start / Stop
// =====================================================

// TestScheduler_StartStop verifies lifecycle transitions are idempotent.
func TestScheduler_StartStop(t *testing.T) {
	_, scheduler := createTestScheduler(t)
	ctx := context.Background()

	scheduler.Stop() // without Start

	scheduler.Start(ctx)
	scheduler.Start(ctx)
	if !scheduler.IsRunning() {
		t.Fatal("scheduler should be running after Start")
	}

	scheduler.Stop()
	scheduler.Stop()
	if scheduler.IsRunning() {
		t.Error("scheduler should not be running after Stop")
	}

	// Restart after stop
	scheduler.Start(ctx)
	defer scheduler.Stop()
	if !scheduler.IsRunning() {
		t.Error("scheduler should restart")
	}
}

// TestScheduler_periodicSync verifies ticks drain the queue while online.
func TestScheduler_periodicSync(t *testing.T) {
	service, scheduler := createTestScheduler(t)

	scheduler.Start(context.Background())
	defer scheduler.Stop()

	waitFor(t, func() bool { return service.SyncPendingCallCount() >= 2 })

	status := scheduler.GetStatus()
	if status.LastSyncTime == nil {
		t.Error("LastSyncTime should be set after a clean pass")
	}
	if status.LastSummary != (syncpkg.SyncSummary{Attempted: 1, Succeeded: 1}) {
		t.Errorf("LastSummary = %+v", status.LastSummary)
	}
}

// TestScheduler_periodicSync_offline verifies ticks are skipped while offline.
func TestScheduler_periodicSync_offline(t *testing.T) {
	service, scheduler := createTestScheduler(t)
	ctx := context.Background()
	scheduler.SetOnlineStatus(ctx, false)

	scheduler.Start(ctx)
	time.Sleep(100 * time.Millisecond)
	scheduler.Stop()

	if n := service.SyncPendingCallCount(); n != 0 {
		t.Errorf("SyncPendingCallCount() = %d while offline, want 0", n)
	}
}

// TestScheduler_contextCancellation verifies the loop exits with its context.
func TestScheduler_contextCancellation(t *testing.T) {
	service, scheduler := createTestScheduler(t)
	ctx, cancel := context.WithCancel(context.Background())

	scheduler.Start(ctx)
	cancel()
	time.Sleep(50 * time.Millisecond)
	calls := service.SyncPendingCallCount()
	time.Sleep(80 * time.Millisecond)

	if service.SyncPendingCallCount() != calls {
		t.Error("loop kept syncing after context cancellation")
	}
	scheduler.Stop()
}

// =====================================================
// Online status
// =====================================================

// TestScheduler_SetOnlineStatus verifies going online triggers a pass.
func TestScheduler_SetOnlineStatus(t *testing.T) {
	service := syncpkg.NewMockService()
	scheduler := NewScheduler(service, &SchedulerConfig{SyncInterval: time.Hour})
	ctx := context.Background()

	scheduler.SetOnlineStatus(ctx, false)
	if scheduler.IsOnline() {
		t.Fatal("IsOnline() = true after going offline")
	}

	// Not running: no pass on reconnect
	scheduler.SetOnlineStatus(ctx, true)
	if service.SyncPendingCallCount() != 0 {
		t.Error("reconnect should not sync while the scheduler is stopped")
	}

	scheduler.Start(ctx)
	defer scheduler.Stop()

	scheduler.SetOnlineStatus(ctx, false)
	scheduler.SetOnlineStatus(ctx, true)
	waitFor(t, func() bool { return service.SyncPendingCallCount() == 1 })

	// Same status is a no-op
	scheduler.SetOnlineStatus(ctx, true)
	time.Sleep(20 * time.Millisecond)
	if service.SyncPendingCallCount() != 1 {
		t.Errorf("SyncPendingCallCount() = %d, want 1", service.SyncPendingCallCount())
	}
}

// =====================================================
// TriggerSync / SyncNow
// =====================================================

// TestScheduler_TriggerSync verifies only one pass runs at a time.
func TestScheduler_TriggerSync(t *testing.T) {
	service := newBlockingService()
	scheduler := NewScheduler(service, &SchedulerConfig{SyncInterval: time.Hour})
	ctx := context.Background()

	if !scheduler.TriggerSync(ctx) {
		t.Fatal("first TriggerSync should start a pass")
	}
	<-service.entered

	if scheduler.TriggerSync(ctx) {
		t.Error("TriggerSync should refuse while a pass is in progress")
	}
	if _, err := scheduler.SyncNow(ctx); !apperrors.Is(err, apperrors.ErrConcurrencyConflict) {
		t.Errorf("SyncNow() error = %v, want CONCURRENCY_CONFLICT", err)
	}
	if !scheduler.GetStatus().SyncInProgress {
		t.Error("SyncInProgress should be true during a pass")
	}

	service.unblock()
	waitFor(t, func() bool { return !scheduler.GetStatus().SyncInProgress })

	if service.SyncPendingCallCount() != 1 {
		t.Errorf("SyncPendingCallCount() = %d, want 1", service.SyncPendingCallCount())
	}
}

// TestScheduler_TriggerSync_concurrent verifies concurrent triggers start one pass.
func TestScheduler_TriggerSync_concurrent(t *testing.T) {
	service := newBlockingService()
	scheduler := NewScheduler(service, &SchedulerConfig{SyncInterval: time.Hour})
	ctx := context.Background()

	var wg sync.WaitGroup
	var mu sync.Mutex
	started := 0
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if scheduler.TriggerSync(ctx) {
				mu.Lock()
				started++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	service.unblock()

	if started != 1 {
		t.Errorf("started = %d, want 1", started)
	}
	waitFor(t, func() bool { return service.SyncPendingCallCount() == 1 })
}

// TestScheduler_SyncNow verifies the manual pass returns the summary.
func TestScheduler_SyncNow(t *testing.T) {
	service, scheduler := createTestScheduler(t)
	service.SetSummary(syncpkg.SyncSummary{Attempted: 3, Succeeded: 3})
	ctx := context.Background()

	// Manual passes run even when offline
	scheduler.SetOnlineStatus(ctx, false)

	summary, err := scheduler.SyncNow(ctx)
	if err != nil {
		t.Fatalf("SyncNow failed: %v", err)
	}
	if summary != (syncpkg.SyncSummary{Attempted: 3, Succeeded: 3}) {
		t.Errorf("summary = %+v", summary)
	}
	if scheduler.GetStatus().LastSyncTime == nil {
		t.Error("LastSyncTime should be set after a clean pass")
	}
}

// TestScheduler_SyncNow_failures verifies failed passes keep the previous sync time.
func TestScheduler_SyncNow_failures(t *testing.T) {
	service, scheduler := createTestScheduler(t)
	service.SetShouldSucceed(false)

	summary, err := scheduler.SyncNow(context.Background())
	if err != nil {
		t.Fatalf("SyncNow failed: %v", err)
	}
	if summary.Failed != summary.Attempted || summary.Failed == 0 {
		t.Errorf("summary = %+v, want all failed", summary)
	}

	status := scheduler.GetStatus()
	if status.LastSyncTime != nil {
		t.Error("LastSyncTime should stay unset after a failed pass")
	}
	if status.LastSummary != summary {
		t.Errorf("LastSummary = %+v, want %+v", status.LastSummary, summary)
	}
}

// TestScheduler_passTimeout verifies SyncPending sees a bounded context.
func TestScheduler_passTimeout(t *testing.T) {
	service := newBlockingService()
	scheduler := NewScheduler(service, &SchedulerConfig{SyncInterval: time.Hour, PassTimeout: 30 * time.Millisecond})

	start := time.Now()
	if _, err := scheduler.SyncNow(context.Background()); err != nil {
		t.Fatalf("SyncNow failed: %v", err)
	}
	if time.Since(start) > time.Second {
		t.Error("pass was not bounded by the pass timeout")
	}
}

// =====================================================
// Status
// =====================================================

// TestScheduler_GetStatus verifies status reflects the service and loop state.
func TestScheduler_GetStatus(t *testing.T) {
	service, scheduler := createTestScheduler(t)
	service.SetPendingCount(7)

	status := scheduler.GetStatus()
	if status.IsRunning || !status.IsOnline || status.SyncInProgress {
		t.Errorf("default status = %+v", status)
	}
	if status.PendingItems != 7 {
		t.Errorf("PendingItems = %d, want 7", status.PendingItems)
	}
	if status.LastSyncTime != nil {
		t.Error("LastSyncTime should be nil before any pass")
	}

	scheduler.Start(context.Background())
	defer scheduler.Stop()
	if !scheduler.GetStatus().IsRunning {
		t.Error("IsRunning should be true after Start")
	}
}

// TestScheduler_concurrentAccess exercises accessors alongside the loop.
func TestScheduler_concurrentAccess(t *testing.T) {
	_, scheduler := createTestScheduler(t)
	ctx := context.Background()
	scheduler.Start(ctx)
	defer scheduler.Stop()

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			for j := 0; j < 20; j++ {
				scheduler.SetOnlineStatus(ctx, (i+j)%2 == 0)
				_ = scheduler.GetStatus()
				_ = scheduler.IsOnline()
				scheduler.TriggerSync(ctx)
			}
		}(i)
	}
	wg.Wait()
}
