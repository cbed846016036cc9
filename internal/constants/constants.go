package constants

// 支付意向状态常量
const (
	IntentStatusCreated           = "CREATED"
	IntentStatusAuthorized        = "AUTHORIZED"
	IntentStatusCaptured          = "CAPTURED"
	IntentStatusPartiallyRefunded = "PARTIALLY_REFUNDED"
	IntentStatusRefunded          = "REFUNDED"
	IntentStatusFailed            = "FAILED"
)

// 退款状态常量
const (
	RefundStatusPendingConfirmation = "PENDING_CONFIRMATION"
	RefundStatusSucceeded           = "SUCCEEDED"
	RefundStatusFailed              = "FAILED"
)

// PSP 提供方常量
const (
	PSPCardnet     = "cardnet"
	PSPDebitrail   = "debitrail"
	PSPRegiowallet = "regiowallet"
)

// 账本分录类型常量
const (
	LedgerEntryTypeCapture    = "CAPTURE"
	LedgerEntryTypeRefund     = "REFUND"
	LedgerEntryTypeFee        = "FEE"
	LedgerEntryTypePayout     = "PAYOUT"
	LedgerEntryTypeMaturation = "MATURATION"
)

// 余额桶常量
const (
	BalanceBucketPending   = "pending"
	BalanceBucketAvailable = "available"
)

// 幂等记录状态常量
const (
	IdempotencyStatusInProgress = "IN_PROGRESS"
	IdempotencyStatusCompleted  = "COMPLETED"
)

// 幂等操作域常量
const (
	IdempotencyOpRefund = "refund"
)

// 打款批次状态常量
const (
	PayoutStatusScheduled = "SCHEDULED"
	PayoutStatusSettled   = "SETTLED"
	PayoutStatusFailed    = "FAILED"
)

// 银行账户 KYC 状态常量
const (
	BankAccountKYCPending  = "PENDING"
	BankAccountKYCVerified = "VERIFIED"
	BankAccountKYCRejected = "REJECTED"
)

// 操作员状态常量
const (
	OperatorStatusActive   = "active"
	OperatorStatusDisabled = "disabled"
)

// 队列名称常量
const (
	QueueDefault = "default"
)

// 异步任务类型常量
const (
	TaskMaturationScan   = "ledger:maturation_scan"
	TaskPayoutSchedule   = "payout:schedule"
	TaskPayoutSettle     = "payout:settle"
	TaskIntentExpire     = "intent:expire"
	TaskIdempotencyPurge = "idempotency:purge"
)
