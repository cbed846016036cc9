package models

import (
	"database/sql/driver"
	"encoding/json"

	"github.com/shopspring/decimal"
)

// Rate 费率类型（百分比，保留 2 位小数）
type Rate struct {
	decimal.Decimal
}

// NewRateFromDecimal 从 decimal 创建费率
func NewRateFromDecimal(rate decimal.Decimal) Rate {
	return Rate{Decimal: rate.Round(2)}
}

// MustRate 从字符串创建费率，解析失败时 panic，仅用于测试与种子数据
func MustRate(s string) Rate {
	return NewRateFromDecimal(decimal.RequireFromString(s))
}

// ApplyTo 按费率计算金额分摊（最小货币单位，向下取整）
func (r Rate) ApplyTo(amount int64) int64 {
	if amount <= 0 || r.Decimal.LessThanOrEqual(decimal.Zero) {
		return 0
	}
	return decimal.NewFromInt(amount).
		Mul(r.Decimal).
		Div(decimal.NewFromInt(100)).
		Floor().
		IntPart()
}

// MarshalJSON 统一输出 2 位小数的字符串
func (r Rate) MarshalJSON() ([]byte, error) {
	return json.Marshal(r.Decimal.Round(2).StringFixed(2))
}

// UnmarshalJSON 解析费率（字符串或数字）
func (r *Rate) UnmarshalJSON(b []byte) error {
	if len(b) == 0 {
		return nil
	}
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		d, err := decimal.NewFromString(s)
		if err != nil {
			return err
		}
		r.Decimal = d.Round(2)
		return nil
	}
	var f float64
	if err := json.Unmarshal(b, &f); err != nil {
		return err
	}
	r.Decimal = decimal.NewFromFloat(f).Round(2)
	return nil
}

// Value 用于数据库写入
func (r Rate) Value() (driver.Value, error) {
	return r.Decimal.Round(2).Value()
}

// Scan 用于数据库读取
func (r *Rate) Scan(value interface{}) error {
	if err := r.Decimal.Scan(value); err != nil {
		return err
	}
	r.Decimal = r.Decimal.Round(2)
	return nil
}

// String 返回 2 位小数格式
func (r Rate) String() string {
	return r.Decimal.Round(2).StringFixed(2)
}
