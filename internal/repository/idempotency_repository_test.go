package repository

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/payhub-next/internal/constants"
	"github.com/payhub-next/internal/models"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
)

func setupIdempotencyRepositoryTest(t *testing.T) *GormIdempotencyRepository {
	t.Helper()
	dsn := fmt.Sprintf("file:idem_repo_test_%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite failed: %v", err)
	}
	if err := db.AutoMigrate(&models.IdempotencyRecord{}); err != nil {
		t.Fatalf("auto migrate failed: %v", err)
	}
	return NewIdempotencyRepository(db)
}

func TestIdempotencyRepositoryInsertConflict(t *testing.T) {
	repo := setupIdempotencyRepositoryTest(t)
	expires := time.Now().Add(24 * time.Hour)

	first := models.IdempotencyRecord{
		Operation:      constants.IdempotencyOpRefund,
		IdempotencyKey: "key-1",
		RequestHash:    "hash-a",
		Status:         constants.IdempotencyStatusInProgress,
		ExpiresAt:      expires,
	}
	if err := repo.Insert(&first); err != nil {
		t.Fatalf("first Insert() error = %v", err)
	}

	dup := models.IdempotencyRecord{
		Operation:      constants.IdempotencyOpRefund,
		IdempotencyKey: "key-1",
		RequestHash:    "hash-b",
		Status:         constants.IdempotencyStatusInProgress,
		ExpiresAt:      expires,
	}
	if err := repo.Insert(&dup); !errors.Is(err, ErrIdempotencyDuplicate) {
		t.Fatalf("duplicate Insert() error = %v, want ErrIdempotencyDuplicate", err)
	}

	// 不同操作域下同一个键允许共存
	other := models.IdempotencyRecord{
		Operation:      "payout",
		IdempotencyKey: "key-1",
		RequestHash:    "hash-c",
		Status:         constants.IdempotencyStatusInProgress,
		ExpiresAt:      expires,
	}
	if err := repo.Insert(&other); err != nil {
		t.Fatalf("other operation Insert() error = %v", err)
	}
}

func TestIdempotencyRepositoryLifecycle(t *testing.T) {
	repo := setupIdempotencyRepositoryTest(t)

	record := models.IdempotencyRecord{
		Operation:      constants.IdempotencyOpRefund,
		IdempotencyKey: "key-life",
		RequestHash:    "hash",
		Status:         constants.IdempotencyStatusInProgress,
		ExpiresAt:      time.Now().Add(time.Hour),
	}
	if err := repo.Insert(&record); err != nil {
		t.Fatalf("Insert() error = %v", err)
	}

	record.Status = constants.IdempotencyStatusCompleted
	record.ResponseBody = models.JSON{"refund_id": float64(42)}
	if err := repo.Update(&record); err != nil {
		t.Fatalf("Update() error = %v", err)
	}

	got, err := repo.Get(constants.IdempotencyOpRefund, "key-life")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got == nil || got.Status != constants.IdempotencyStatusCompleted {
		t.Fatalf("Get() = %+v, want COMPLETED record", got)
	}
	if got.ResponseBody["refund_id"] != float64(42) {
		t.Fatalf("ResponseBody = %v, want refund_id 42", got.ResponseBody)
	}

	if err := repo.Delete(got); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	got, err = repo.Get(constants.IdempotencyOpRefund, "key-life")
	if err != nil {
		t.Fatalf("Get() after delete error = %v", err)
	}
	if got != nil {
		t.Fatalf("Get() after delete = %+v, want nil", got)
	}
}

func TestIdempotencyRepositoryPurgeExpired(t *testing.T) {
	repo := setupIdempotencyRepositoryTest(t)
	now := time.Now()

	records := []models.IdempotencyRecord{
		{Operation: "refund", IdempotencyKey: "old-1", RequestHash: "h", Status: constants.IdempotencyStatusCompleted, ExpiresAt: now.Add(-2 * time.Hour)},
		{Operation: "refund", IdempotencyKey: "old-2", RequestHash: "h", Status: constants.IdempotencyStatusCompleted, ExpiresAt: now.Add(-time.Hour)},
		{Operation: "refund", IdempotencyKey: "fresh", RequestHash: "h", Status: constants.IdempotencyStatusCompleted, ExpiresAt: now.Add(time.Hour)},
	}
	for i := range records {
		if err := repo.Insert(&records[i]); err != nil {
			t.Fatalf("Insert(%d) error = %v", i, err)
		}
	}

	purged, err := repo.PurgeExpired(now, 100)
	if err != nil {
		t.Fatalf("PurgeExpired() error = %v", err)
	}
	if purged != 2 {
		t.Fatalf("purged = %d, want 2", purged)
	}

	fresh, err := repo.Get("refund", "fresh")
	if err != nil {
		t.Fatalf("Get(fresh) error = %v", err)
	}
	if fresh == nil {
		t.Fatal("fresh record purged unexpectedly")
	}
}
