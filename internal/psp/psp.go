package psp

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"
)

// 支付提供方适配层的公共错误，上层只依赖这些哨兵错误做分支。
var (
	ErrUnknownProvider     = errors.New("psp: unknown provider")
	ErrConfigInvalid       = errors.New("psp: config invalid")
	ErrProviderUnavailable = errors.New("psp: provider unavailable")
	ErrProviderRejected    = errors.New("psp: provider rejected")
	ErrSignatureInvalid    = errors.New("psp: webhook signature invalid")
)

// 回调事件类型
const (
	EventAuthorized = "authorized"
	EventCaptured   = "captured"
	EventFailed     = "failed"
	EventRefunded   = "refunded"
)

// AuthorizeInput 授权请求
type AuthorizeInput struct {
	IntentNo  string
	Amount    int64
	Currency  string
	ReturnURL string
	ClientIP  string
}

// AuthorizeResult 授权结果
type AuthorizeResult struct {
	ReferenceID string
	RedirectURL string
	ExpiresAt   *time.Time
	Raw         map[string]interface{}
}

// CaptureInput 捕获请求
type CaptureInput struct {
	ReferenceID string
	Amount      int64
	Currency    string
}

// CaptureResult 捕获结果
type CaptureResult struct {
	CapturedAmount int64
	CapturedAt     time.Time
	Raw            map[string]interface{}
}

// RefundInput 退款请求，RefundNo 作为提供方侧的幂等令牌
type RefundInput struct {
	ReferenceID string
	RefundNo    string
	Amount      int64
	Currency    string
	Reason      string
}

// RefundResult 退款结果
type RefundResult struct {
	PSPRefundID string
	Raw         map[string]interface{}
}

// TransferInput 银行转账请求，BatchNo 作为银行侧幂等令牌
type TransferInput struct {
	BatchNo       string
	HolderName    string
	BankCode      string
	AccountNumber string
	Amount        int64
	Currency      string
}

// TransferResult 银行转账结果
type TransferResult struct {
	TransferRef string
	Raw         map[string]interface{}
}

// Transferrer 支持对外打款的提供方实现的可选接口
type Transferrer interface {
	Transfer(ctx context.Context, input TransferInput) (*TransferResult, error)
}

// WebhookEvent 已验签的回调事件
type WebhookEvent struct {
	Type        string
	ReferenceID string
	Amount      int64
	Currency    string
	OccurredAt  time.Time
	Raw         map[string]interface{}
}

// Driver 支付提供方驱动
//
// 所有阻塞调用都接收 context，超时与取消由编排器控制。
type Driver interface {
	Name() string
	Authorize(ctx context.Context, input AuthorizeInput) (*AuthorizeResult, error)
	Capture(ctx context.Context, input CaptureInput) (*CaptureResult, error)
	Refund(ctx context.Context, input RefundInput) (*RefundResult, error)
	VerifyWebhook(header http.Header, body []byte) (*WebhookEvent, error)
}

// Factory 按原始配置构造驱动
type Factory func(raw map[string]interface{}) (Driver, error)

var (
	registryMu sync.RWMutex
	registry   = map[string]Factory{}
)

// Register 注册提供方驱动工厂，由各提供方包的 init 调用
func Register(name string, factory Factory) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[strings.ToLower(strings.TrimSpace(name))] = factory
}

// Resolve 按名称解析驱动
func Resolve(name string, raw map[string]interface{}) (Driver, error) {
	registryMu.RLock()
	factory, ok := registry[strings.ToLower(strings.TrimSpace(name))]
	registryMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownProvider, name)
	}
	return factory(raw)
}

// Providers 返回已注册的提供方名称
func Providers() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
