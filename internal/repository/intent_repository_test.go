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

func setupIntentRepositoryTest(t *testing.T) (*GormIntentRepository, *gorm.DB) {
	t.Helper()
	dsn := fmt.Sprintf("file:intent_repo_test_%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite failed: %v", err)
	}
	if err := db.AutoMigrate(&models.PaymentIntent{}); err != nil {
		t.Fatalf("auto migrate failed: %v", err)
	}
	return NewIntentRepository(db), db
}

func TestIntentRepositoryUpdateWithVersion(t *testing.T) {
	repo, _ := setupIntentRepositoryTest(t)

	intent := models.PaymentIntent{
		IntentNo: "pi-ver-1",
		StoreID:  1,
		Amount:   10000,
		Currency: "EUR",
		PSPName:  constants.PSPCardnet,
		Status:   constants.IntentStatusCreated,
	}
	if err := repo.Create(&intent); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	now := time.Now()
	if err := intent.MarkAuthorized("ref-1", now, nil); err != nil {
		t.Fatalf("MarkAuthorized() error = %v", err)
	}
	if err := repo.UpdateWithVersion(&intent); err != nil {
		t.Fatalf("UpdateWithVersion() error = %v", err)
	}
	if intent.Version != 1 {
		t.Fatalf("Version = %d, want 1", intent.Version)
	}

	// 用旧版本号并发更新，应得到版本冲突
	stale := intent
	stale.Version = 0
	if err := stale.MarkCaptured(10000, now); err != nil {
		t.Fatalf("MarkCaptured() error = %v", err)
	}
	if err := repo.UpdateWithVersion(&stale); !errors.Is(err, ErrIntentVersionConflict) {
		t.Fatalf("stale update error = %v, want ErrIntentVersionConflict", err)
	}

	got, err := repo.GetByID(intent.ID)
	if err != nil {
		t.Fatalf("GetByID() error = %v", err)
	}
	if got.Status != constants.IntentStatusAuthorized {
		t.Fatalf("Status after stale update = %s, want AUTHORIZED", got.Status)
	}
}

func TestIntentRepositoryLookups(t *testing.T) {
	repo, _ := setupIntentRepositoryTest(t)

	intent := models.PaymentIntent{
		IntentNo:       "pi-look-1",
		StoreID:        2,
		Amount:         5000,
		Currency:       "EUR",
		PSPName:        constants.PSPRegiowallet,
		PSPReferenceID: "rw-123",
		Status:         constants.IntentStatusAuthorized,
	}
	if err := repo.Create(&intent); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	byNo, err := repo.GetByIntentNo("pi-look-1")
	if err != nil {
		t.Fatalf("GetByIntentNo() error = %v", err)
	}
	if byNo == nil || byNo.ID != intent.ID {
		t.Fatalf("GetByIntentNo() = %+v, want created intent", byNo)
	}

	byRef, err := repo.GetByPSPReference(constants.PSPRegiowallet, "rw-123")
	if err != nil {
		t.Fatalf("GetByPSPReference() error = %v", err)
	}
	if byRef == nil || byRef.ID != intent.ID {
		t.Fatalf("GetByPSPReference() = %+v, want created intent", byRef)
	}

	missing, err := repo.GetByID(9999)
	if err != nil {
		t.Fatalf("GetByID(missing) error = %v", err)
	}
	if missing != nil {
		t.Fatalf("GetByID(missing) = %+v, want nil", missing)
	}
}
