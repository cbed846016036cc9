package cache

import (
	"context"
	"fmt"
	"time"
)

const balanceCacheTTL = 30 * time.Second

// StoreBalanceState 店铺余额快照
// 两个余额桶均为整数最小货币单位，任何记账写入后必须失效
type StoreBalanceState struct {
	StoreID   uint  `json:"store_id"`
	Pending   int64 `json:"pending"`
	Available int64 `json:"available"`
	UpdatedAt int64 `json:"updated_at"`
}

func storeBalanceKey(storeID uint) string {
	return fmt.Sprintf("balance:store:%d", storeID)
}

// GetStoreBalance 获取店铺余额快照
func GetStoreBalance(ctx context.Context, storeID uint) (*StoreBalanceState, bool, error) {
	if storeID == 0 {
		return nil, false, nil
	}
	var state StoreBalanceState
	hit, err := GetJSON(ctx, storeBalanceKey(storeID), &state)
	if err != nil || !hit {
		return nil, hit, err
	}
	return &state, true, nil
}

// SetStoreBalance 写入店铺余额快照
func SetStoreBalance(ctx context.Context, state *StoreBalanceState) error {
	if state == nil || state.StoreID == 0 {
		return nil
	}
	return SetJSON(ctx, storeBalanceKey(state.StoreID), state, balanceCacheTTL)
}

// DelStoreBalance 删除店铺余额快照
func DelStoreBalance(ctx context.Context, storeID uint) error {
	if storeID == 0 {
		return nil
	}
	return Del(ctx, storeBalanceKey(storeID))
}
