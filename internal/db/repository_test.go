package db

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	"github.com/kimhsiao/memonexus/contentsync/internal/models"
	"github.com/kimhsiao/memonexus/contentsync/internal/sync/queue"
)

func newTestRepository(t *testing.T) *Repository {
	t.Helper()
	database, err := OpenMigrated(t.TempDir())
	if err != nil {
		t.Fatalf("OpenMigrated() failed: %v", err)
	}
	repo := NewRepository(database.DB)
	t.Cleanup(func() {
		repo.Close()
		database.Close()
	})
	return repo
}

// TestRepository_SaveLoad verifies operations round-trip in seq order.
func TestRepository_SaveLoad(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepository(t)

	x := models.NewContentID()
	pub := models.NewPublishOperation(x, models.VisibilityUnlisted, []byte{0x01, 0x02})
	pub.Seq = 2
	unpub := models.NewUnpublishOperation(x, "public/"+x.String())
	unpub.Seq = 1

	for _, op := range []*models.PendingOperation{pub, unpub} {
		if err := repo.SavePendingOperation(ctx, op); err != nil {
			t.Fatalf("SavePendingOperation() failed: %v", err)
		}
	}

	ops, err := repo.LoadPendingOperations(ctx)
	if err != nil {
		t.Fatalf("LoadPendingOperations() failed: %v", err)
	}
	if len(ops) != 2 {
		t.Fatalf("loaded %d operations, want 2", len(ops))
	}

	if ops[0].ID != unpub.ID || ops[1].ID != pub.ID {
		t.Errorf("load order = %s, %s; want seq order", ops[0].Kind, ops[1].Kind)
	}

	got := ops[1]
	if got.ContentID != x {
		t.Errorf("ContentID = %s, want %s", got.ContentID, x)
	}
	if got.Visibility != models.VisibilityUnlisted {
		t.Errorf("Visibility = %q, want unlisted", got.Visibility)
	}
	if string(got.Payload) != "\x01\x02" {
		t.Errorf("Payload = %v, want [1 2]", got.Payload)
	}
	if ops[0].PublicID != unpub.PublicID {
		t.Errorf("PublicID = %q, want %q", ops[0].PublicID, unpub.PublicID)
	}
}

// TestRepository_UpdateAndDelete verifies attempt bookkeeping and removal.
func TestRepository_UpdateAndDelete(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepository(t)

	op := models.NewPublishOperation(models.NewContentID(), models.VisibilityPublic, []byte("hello"))
	op.Seq = 1
	if err := repo.SavePendingOperation(ctx, op); err != nil {
		t.Fatalf("SavePendingOperation() failed: %v", err)
	}

	op.AttemptCount = 3
	op.LastError = "timeout"
	if err := repo.UpdatePendingOperationAttempt(ctx, op); err != nil {
		t.Fatalf("UpdatePendingOperationAttempt() failed: %v", err)
	}

	ops, _ := repo.LoadPendingOperations(ctx)
	if ops[0].AttemptCount != 3 || ops[0].LastError != "timeout" {
		t.Errorf("after update = %d, %q", ops[0].AttemptCount, ops[0].LastError)
	}

	if err := repo.DeletePendingOperation(ctx, op.ID); err != nil {
		t.Fatalf("DeletePendingOperation() failed: %v", err)
	}
	if n, _ := repo.CountPendingOperations(ctx); n != 0 {
		t.Errorf("CountPendingOperations() = %d, want 0", n)
	}

	if err := repo.DeletePendingOperation(ctx, op.ID); !errors.Is(err, sql.ErrNoRows) {
		t.Errorf("second delete error = %v, want sql.ErrNoRows", err)
	}
	if err := repo.UpdatePendingOperationAttempt(ctx, op); !errors.Is(err, sql.ErrNoRows) {
		t.Errorf("update of missing row error = %v, want sql.ErrNoRows", err)
	}
}

// TestRepository_SaveRejectsInvalid verifies schema constraints.
func TestRepository_SaveRejectsInvalid(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepository(t)

	op := models.NewPublishOperation(models.NewContentID(), models.Visibility("friends"), []byte("x"))
	op.Seq = 1
	if err := repo.SavePendingOperation(ctx, op); err == nil {
		t.Error("expected CHECK constraint failure for unknown visibility")
	}

	dup := models.NewPublishOperation(models.NewContentID(), models.VisibilityPublic, []byte("x"))
	dup.Seq = 1
	other := models.NewPublishOperation(models.NewContentID(), models.VisibilityPublic, []byte("y"))
	other.Seq = 1
	repo.SavePendingOperation(ctx, dup)
	if err := repo.SavePendingOperation(ctx, other); err == nil {
		t.Error("expected UNIQUE constraint failure for duplicate seq")
	}
}

// TestRepository_DurableQueue verifies the queue survives a reopen of the database.
func TestRepository_DurableQueue(t *testing.T) {
	ctx := context.Background()
	dataDir := t.TempDir()

	database, err := OpenMigrated(dataDir)
	if err != nil {
		t.Fatalf("OpenMigrated() failed: %v", err)
	}
	repo := NewRepository(database.DB)

	q, err := queue.NewDurableQueue(ctx, 10, repo)
	if err != nil {
		t.Fatalf("NewDurableQueue() failed: %v", err)
	}
	x := models.NewContentID()
	first, _ := q.Append(ctx, models.NewPublishOperation(x, models.VisibilityPublic, []byte{0x01}))
	second, _ := q.Append(ctx, models.NewUnpublishOperation(x, "public/"+x.String()))

	first.AttemptCount = 1
	first.LastError = "connection refused"
	if err := q.RecordAttempt(ctx, first); err != nil {
		t.Fatalf("RecordAttempt() failed: %v", err)
	}

	repo.Close()
	database.Close()

	database, err = OpenMigrated(dataDir)
	if err != nil {
		t.Fatalf("reopen failed: %v", err)
	}
	defer database.Close()
	repo = NewRepository(database.DB)
	defer repo.Close()

	restored, err := queue.NewDurableQueue(ctx, 10, repo)
	if err != nil {
		t.Fatalf("NewDurableQueue() after reopen failed: %v", err)
	}

	snap := restored.Snapshot()
	if len(snap) != 2 {
		t.Fatalf("restored %d operations, want 2", len(snap))
	}
	if snap[0].ID != first.ID || snap[1].ID != second.ID {
		t.Error("restored queue lost FIFO order")
	}
	if snap[0].AttemptCount != 1 || snap[0].LastError != "connection refused" {
		t.Errorf("restored attempt = %d, %q", snap[0].AttemptCount, snap[0].LastError)
	}

	if err := restored.Clear(ctx); err != nil {
		t.Fatalf("Clear() failed: %v", err)
	}
	if n, _ := repo.CountPendingOperations(ctx); n != 0 {
		t.Errorf("CountPendingOperations() after Clear = %d, want 0", n)
	}
}
