package service

import (
	"context"
	"time"

	"github.com/payhub-next/internal/cache"
	"github.com/payhub-next/internal/constants"
	"github.com/payhub-next/internal/logger"
	"github.com/payhub-next/internal/models"
	"github.com/payhub-next/internal/repository"
)

// LedgerService 账簿服务，承载余额查询与资金成熟
type LedgerService struct {
	ledgerRepo repository.LedgerRepository
	holdWindow time.Duration
}

// StoreBalance 店铺余额快照
type StoreBalance struct {
	StoreID   uint  `json:"store_id"`
	Pending   int64 `json:"pending"`
	Available int64 `json:"available"`
}

// NewLedgerService 创建账簿服务
func NewLedgerService(ledgerRepo repository.LedgerRepository, holdWindowHours int) *LedgerService {
	if holdWindowHours <= 0 {
		holdWindowHours = 24
	}
	return &LedgerService{
		ledgerRepo: ledgerRepo,
		holdWindow: time.Duration(holdWindowHours) * time.Hour,
	}
}

// Balance 查询店铺两个余额桶，命中缓存时不落库
func (s *LedgerService) Balance(storeID uint) (*StoreBalance, error) {
	if storeID == 0 {
		return nil, ErrStoreNotFound
	}
	ctx := context.Background()
	if state, hit, err := cache.GetStoreBalance(ctx, storeID); err == nil && hit {
		return &StoreBalance{StoreID: state.StoreID, Pending: state.Pending, Available: state.Available}, nil
	}
	pending, err := s.ledgerRepo.Balance(repository.StoreAccount(storeID, constants.BalanceBucketPending))
	if err != nil {
		return nil, err
	}
	available, err := s.ledgerRepo.Balance(repository.StoreAccount(storeID, constants.BalanceBucketAvailable))
	if err != nil {
		return nil, err
	}
	if err := cache.SetStoreBalance(ctx, &cache.StoreBalanceState{
		StoreID:   storeID,
		Pending:   pending,
		Available: available,
		UpdatedAt: time.Now().Unix(),
	}); err != nil {
		logger.Warnw("ledger_balance_cache_set_failed", "store_id", storeID, "error", err)
	}
	return &StoreBalance{StoreID: storeID, Pending: pending, Available: available}, nil
}

// ListEntries 查询分录流水
func (s *LedgerService) ListEntries(filter repository.LedgerEntryListFilter) ([]models.LedgerEntry, int64, error) {
	return s.ledgerRepo.List(filter)
}

// MatureEligible 扫描过了持有期的捕获分录并逐笔写入成熟分录
//
// 对每笔捕获先检查是否已存在成熟分录，重复执行不会产生第二笔。
// 成熟金额为捕获金额减去同事务手续费、再减去成熟前从待结算桶
// 退出的退款。
func (s *LedgerService) MatureEligible(ctx context.Context, limit int) (int, error) {
	cutoff := time.Now().Add(-s.holdWindow)
	captures, err := s.ledgerRepo.ListMaturableCaptures(0, cutoff, limit)
	if err != nil {
		return 0, err
	}

	matured := 0
	for _, capture := range captures {
		select {
		case <-ctx.Done():
			return matured, ctx.Err()
		default:
		}
		exists, err := s.ledgerRepo.MaturationExists(capture.ID)
		if err != nil {
			return matured, err
		}
		if exists {
			continue
		}
		amount, err := s.maturableAmount(&capture)
		if err != nil {
			return matured, err
		}
		if amount <= 0 {
			logger.Infow("ledger_maturation_skipped_empty",
				"capture_entry_id", capture.ID,
				"store_id", capture.StoreID,
			)
			continue
		}
		pending := repository.StoreAccount(capture.StoreID, constants.BalanceBucketPending)
		available := repository.StoreAccount(capture.StoreID, constants.BalanceBucketAvailable)
		entry := models.LedgerEntry{
			TransactionID:  "mat-" + capture.TransactionID,
			EntryType:      constants.LedgerEntryTypeMaturation,
			DebitAccount:   pending,
			CreditAccount:  available,
			Amount:         amount,
			Currency:       capture.Currency,
			StoreID:        capture.StoreID,
			IntentID:       capture.IntentID,
			CaptureEntryID: capture.ID,
		}
		if err := s.ledgerRepo.Record([]models.LedgerEntry{entry}); err != nil {
			return matured, err
		}
		if err := cache.DelStoreBalance(ctx, capture.StoreID); err != nil {
			logger.Warnw("ledger_balance_cache_del_failed", "store_id", capture.StoreID, "error", err)
		}
		matured++
		logger.Infow("ledger_maturation_recorded",
			"capture_entry_id", capture.ID,
			"store_id", capture.StoreID,
			"amount", amount,
		)
	}
	return matured, nil
}

func (s *LedgerService) maturableAmount(capture *models.LedgerEntry) (int64, error) {
	fees, err := s.ledgerRepo.SumByTransactionAndType(capture.TransactionID, constants.LedgerEntryTypeFee)
	if err != nil {
		return 0, err
	}
	pending := repository.StoreAccount(capture.StoreID, constants.BalanceBucketPending)
	refunded, err := s.ledgerRepo.SumRefundsDebiting(capture.IntentID, pending)
	if err != nil {
		return 0, err
	}
	return capture.Amount - fees - refunded, nil
}
