package service

import "errors"

// 服务层哨兵错误，HTTP 层据此映射状态码。
var (
	ErrInvalidCredentials = errors.New("用户名或密码错误")
	ErrOperatorDisabled   = errors.New("操作员已禁用")

	ErrStoreNotFound    = errors.New("店铺不存在")
	ErrStoreInactive    = errors.New("店铺已停用")
	ErrIntentNotFound   = errors.New("支付意向不存在")
	ErrIntentInvalidArg = errors.New("支付意向参数不合法")

	ErrRefundInvalidStatus  = errors.New("当前状态不允许退款")
	ErrRefundInvalidAmount  = errors.New("退款金额不合法")
	ErrRefundExceedsAmount  = errors.New("退款金额超过剩余可退金额")
	ErrRefundProviderFailed = errors.New("提供方退款失败")
	ErrRefundNotFound       = errors.New("退款记录不存在")

	ErrIdempotencyConflict = errors.New("幂等键冲突")

	ErrWebhookSignature = errors.New("回调验签失败")
	ErrWebhookUnmatched = errors.New("回调未匹配到支付意向")

	ErrPayoutNotFound      = errors.New("打款批次不存在")
	ErrPayoutInvalidStatus = errors.New("当前状态不允许重试打款")
	ErrPayoutUnderfunded   = errors.New("可用余额不足以结算打款批次")
	ErrBankAccountMissing  = errors.New("店铺缺少已验证的收款账户")
)
