package debitrail

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/payhub-next/internal/constants"
	"github.com/payhub-next/internal/psp"
)

var (
	ErrConfigInvalid   = errors.New("debitrail config invalid")
	ErrRequestFailed   = errors.New("debitrail request failed")
	ErrResponseInvalid = errors.New("debitrail response invalid")
)

// Config Debitrail 直连扣款配置
type Config struct {
	GatewayURL    string `json:"gateway_url"`    // 网关地址
	AccessToken   string `json:"access_token"`   // Bearer 令牌
	WebhookSecret string `json:"webhook_secret"` // 回调验签密钥
	TimeoutSec    int    `json:"timeout_sec"`    // 请求超时（秒）
}

// Driver Debitrail 驱动，同时承接对外打款转账
type Driver struct {
	cfg    *Config
	client *http.Client
}

func init() {
	psp.Register(constants.PSPDebitrail, func(raw map[string]interface{}) (psp.Driver, error) {
		cfg, err := ParseConfig(raw)
		if err != nil {
			return nil, err
		}
		if err := ValidateConfig(cfg); err != nil {
			return nil, err
		}
		return NewDriver(cfg), nil
	})
}

// ParseConfig 解析配置
func ParseConfig(raw map[string]interface{}) (*Config, error) {
	if raw == nil {
		return nil, fmt.Errorf("%w: empty config", ErrConfigInvalid)
	}
	data, err := json.Marshal(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: marshal config failed", ErrConfigInvalid)
	}
	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("%w: unmarshal config failed", ErrConfigInvalid)
	}
	if cfg.TimeoutSec <= 0 {
		cfg.TimeoutSec = 15
	}
	return &cfg, nil
}

// ValidateConfig 校验配置完整性
func ValidateConfig(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("%w: config is nil", ErrConfigInvalid)
	}
	if strings.TrimSpace(cfg.GatewayURL) == "" {
		return fmt.Errorf("%w: gateway_url is required", ErrConfigInvalid)
	}
	if strings.TrimSpace(cfg.AccessToken) == "" {
		return fmt.Errorf("%w: access_token is required", ErrConfigInvalid)
	}
	if strings.TrimSpace(cfg.WebhookSecret) == "" {
		return fmt.Errorf("%w: webhook_secret is required", ErrConfigInvalid)
	}
	return nil
}

// NewDriver 创建 Debitrail 驱动
func NewDriver(cfg *Config) *Driver {
	return &Driver{
		cfg:    cfg,
		client: &http.Client{Timeout: time.Duration(cfg.TimeoutSec) * time.Second},
	}
}

// Name 返回提供方名称
func (d *Driver) Name() string {
	return constants.PSPDebitrail
}

// Authorize 创建直连扣款委托
//
// Debitrail 的扣款委托确认经由用户银行跳转完成，结果通过回调异步送达。
func (d *Driver) Authorize(ctx context.Context, input psp.AuthorizeInput) (*psp.AuthorizeResult, error) {
	if input.IntentNo == "" || input.Amount <= 0 || input.Currency == "" {
		return nil, fmt.Errorf("%w: bad authorize input", ErrConfigInvalid)
	}
	raw, err := d.post(ctx, "/api/mandates", map[string]interface{}{
		"reference":  input.IntentNo,
		"amount":     input.Amount,
		"currency":   input.Currency,
		"return_url": input.ReturnURL,
	})
	if err != nil {
		return nil, err
	}
	var resp struct {
		MandateID  string `json:"mandate_id"`
		ConfirmURL string `json:"confirm_url"`
		ValidUntil string `json:"valid_until"`
	}
	if err := remarshal(raw, &resp); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrResponseInvalid, err)
	}
	if resp.MandateID == "" {
		return nil, fmt.Errorf("%w: missing mandate_id", ErrResponseInvalid)
	}
	result := &psp.AuthorizeResult{
		ReferenceID: resp.MandateID,
		RedirectURL: resp.ConfirmURL,
		Raw:         raw,
	}
	if resp.ValidUntil != "" {
		if expires, err := time.Parse(time.RFC3339, resp.ValidUntil); err == nil {
			result.ExpiresAt = &expires
		}
	}
	return result, nil
}

// Capture 对已确认的扣款委托发起扣款
func (d *Driver) Capture(ctx context.Context, input psp.CaptureInput) (*psp.CaptureResult, error) {
	if input.ReferenceID == "" || input.Amount <= 0 {
		return nil, fmt.Errorf("%w: bad capture input", ErrConfigInvalid)
	}
	raw, err := d.post(ctx, "/api/mandates/"+input.ReferenceID+"/collect", map[string]interface{}{
		"amount":   input.Amount,
		"currency": input.Currency,
	})
	if err != nil {
		return nil, err
	}
	var resp struct {
		CollectedAmount int64  `json:"collected_amount"`
		CollectedAt     string `json:"collected_at"`
	}
	if err := remarshal(raw, &resp); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrResponseInvalid, err)
	}
	if resp.CollectedAmount <= 0 {
		return nil, fmt.Errorf("%w: missing collected_amount", ErrResponseInvalid)
	}
	capturedAt := time.Now()
	if resp.CollectedAt != "" {
		if ts, err := time.Parse(time.RFC3339, resp.CollectedAt); err == nil {
			capturedAt = ts
		}
	}
	return &psp.CaptureResult{
		CapturedAmount: resp.CollectedAmount,
		CapturedAt:     capturedAt,
		Raw:            raw,
	}, nil
}

// Refund 对已扣款的委托发起退款
func (d *Driver) Refund(ctx context.Context, input psp.RefundInput) (*psp.RefundResult, error) {
	if input.ReferenceID == "" || input.RefundNo == "" || input.Amount <= 0 {
		return nil, fmt.Errorf("%w: bad refund input", ErrConfigInvalid)
	}
	raw, err := d.post(ctx, "/api/mandates/"+input.ReferenceID+"/refunds", map[string]interface{}{
		"idempotency_key": input.RefundNo,
		"amount":          input.Amount,
		"currency":        input.Currency,
		"reason":          input.Reason,
	})
	if err != nil {
		return nil, err
	}
	var resp struct {
		RefundID string `json:"refund_id"`
	}
	if err := remarshal(raw, &resp); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrResponseInvalid, err)
	}
	if resp.RefundID == "" {
		return nil, fmt.Errorf("%w: missing refund_id", ErrResponseInvalid)
	}
	return &psp.RefundResult{PSPRefundID: resp.RefundID, Raw: raw}, nil
}

// Transfer 向店铺银行账户打款
func (d *Driver) Transfer(ctx context.Context, input psp.TransferInput) (*psp.TransferResult, error) {
	if input.BatchNo == "" || input.AccountNumber == "" || input.Amount <= 0 {
		return nil, fmt.Errorf("%w: bad transfer input", ErrConfigInvalid)
	}
	raw, err := d.post(ctx, "/api/transfers", map[string]interface{}{
		"idempotency_key": input.BatchNo,
		"holder_name":     input.HolderName,
		"bank_code":       input.BankCode,
		"account_number":  input.AccountNumber,
		"amount":          input.Amount,
		"currency":        input.Currency,
	})
	if err != nil {
		return nil, err
	}
	var resp struct {
		TransferID string `json:"transfer_id"`
	}
	if err := remarshal(raw, &resp); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrResponseInvalid, err)
	}
	if resp.TransferID == "" {
		return nil, fmt.Errorf("%w: missing transfer_id", ErrResponseInvalid)
	}
	return &psp.TransferResult{TransferRef: resp.TransferID, Raw: raw}, nil
}

// VerifyWebhook 验证回调签名并解析事件
func (d *Driver) VerifyWebhook(header http.Header, body []byte) (*psp.WebhookEvent, error) {
	signature := strings.TrimSpace(header.Get("Webhook-Signature"))
	if signature == "" {
		return nil, psp.ErrSignatureInvalid
	}
	mac := hmac.New(sha256.New, []byte(d.cfg.WebhookSecret))
	mac.Write(body)
	expected := hex.EncodeToString(mac.Sum(nil))
	if !hmac.Equal([]byte(expected), []byte(signature)) {
		return nil, psp.ErrSignatureInvalid
	}

	var event struct {
		Event     string `json:"event"`
		MandateID string `json:"mandate_id"`
		Amount    int64  `json:"amount"`
		Currency  string `json:"currency"`
		CreatedAt string `json:"created_at"`
	}
	if err := json.Unmarshal(body, &event); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrResponseInvalid, err)
	}
	var raw map[string]interface{}
	_ = json.Unmarshal(body, &raw)

	var eventType string
	switch strings.ToLower(strings.TrimSpace(event.Event)) {
	case "mandate.confirmed":
		eventType = psp.EventAuthorized
	case "collection.settled":
		eventType = psp.EventCaptured
	case "mandate.cancelled", "collection.failed":
		eventType = psp.EventFailed
	case "refund.settled":
		eventType = psp.EventRefunded
	default:
		return nil, fmt.Errorf("%w: unknown event %q", ErrResponseInvalid, event.Event)
	}
	occurredAt := time.Now()
	if event.CreatedAt != "" {
		if ts, err := time.Parse(time.RFC3339, event.CreatedAt); err == nil {
			occurredAt = ts
		}
	}
	return &psp.WebhookEvent{
		Type:        eventType,
		ReferenceID: event.MandateID,
		Amount:      event.Amount,
		Currency:    event.Currency,
		OccurredAt:  occurredAt,
		Raw:         raw,
	}, nil
}

func (d *Driver) post(ctx context.Context, path string, payload map[string]interface{}) (map[string]interface{}, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRequestFailed, err)
	}
	endpoint := strings.TrimRight(d.cfg.GatewayURL, "/") + path
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRequestFailed, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+d.cfg.AccessToken)

	resp, err := d.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", psp.ErrProviderUnavailable, err)
	}
	defer resp.Body.Close()
	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", psp.ErrProviderUnavailable, err)
	}
	if resp.StatusCode >= 500 {
		return nil, fmt.Errorf("%w: status %d", psp.ErrProviderUnavailable, resp.StatusCode)
	}
	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("%w: status %d", psp.ErrProviderRejected, resp.StatusCode)
	}
	var raw map[string]interface{}
	if err := json.Unmarshal(respBody, &raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrResponseInvalid, err)
	}
	return raw, nil
}

func remarshal(raw map[string]interface{}, out interface{}) error {
	data, err := json.Marshal(raw)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, out)
}
