package cardnet

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
	"strconv"
	"strings"
	"time"

	"github.com/payhub-next/internal/constants"
	"github.com/payhub-next/internal/psp"
)

var (
	ErrConfigInvalid   = errors.New("cardnet config invalid")
	ErrRequestFailed   = errors.New("cardnet request failed")
	ErrResponseInvalid = errors.New("cardnet response invalid")
)

// 回调时间戳允许的最大偏移
const webhookTolerance = 5 * time.Minute

// Config Cardnet 卡收单配置
type Config struct {
	GatewayURL    string `json:"gateway_url"`    // 网关地址
	MerchantID    string `json:"merchant_id"`    // 商户号
	APIKey        string `json:"api_key"`        // 接口密钥
	WebhookSecret string `json:"webhook_secret"` // 回调验签密钥
	TimeoutSec    int    `json:"timeout_sec"`    // 请求超时（秒）
}

// Driver Cardnet 驱动
type Driver struct {
	cfg    *Config
	client *http.Client
}

func init() {
	psp.Register(constants.PSPCardnet, func(raw map[string]interface{}) (psp.Driver, error) {
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
		cfg.TimeoutSec = 10
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
	if strings.TrimSpace(cfg.MerchantID) == "" {
		return fmt.Errorf("%w: merchant_id is required", ErrConfigInvalid)
	}
	if strings.TrimSpace(cfg.APIKey) == "" {
		return fmt.Errorf("%w: api_key is required", ErrConfigInvalid)
	}
	if strings.TrimSpace(cfg.WebhookSecret) == "" {
		return fmt.Errorf("%w: webhook_secret is required", ErrConfigInvalid)
	}
	return nil
}

// NewDriver 创建 Cardnet 驱动
func NewDriver(cfg *Config) *Driver {
	return &Driver{
		cfg:    cfg,
		client: &http.Client{Timeout: time.Duration(cfg.TimeoutSec) * time.Second},
	}
}

// Name 返回提供方名称
func (d *Driver) Name() string {
	return constants.PSPCardnet
}

// Authorize 发起授权
func (d *Driver) Authorize(ctx context.Context, input psp.AuthorizeInput) (*psp.AuthorizeResult, error) {
	if input.IntentNo == "" || input.Amount <= 0 || input.Currency == "" {
		return nil, fmt.Errorf("%w: bad authorize input", ErrConfigInvalid)
	}
	payload := map[string]interface{}{
		"merchant_id": d.cfg.MerchantID,
		"order_no":    input.IntentNo,
		"amount":      input.Amount,
		"currency":    input.Currency,
		"return_url":  input.ReturnURL,
		"client_ip":   input.ClientIP,
	}
	raw, err := d.post(ctx, "/v1/authorizations", payload)
	if err != nil {
		return nil, err
	}
	var resp struct {
		AuthorizationID string `json:"authorization_id"`
		RedirectURL     string `json:"redirect_url"`
		ExpiresAt       int64  `json:"expires_at"`
	}
	if err := remarshal(raw, &resp); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrResponseInvalid, err)
	}
	if resp.AuthorizationID == "" {
		return nil, fmt.Errorf("%w: missing authorization_id", ErrResponseInvalid)
	}
	result := &psp.AuthorizeResult{
		ReferenceID: resp.AuthorizationID,
		RedirectURL: resp.RedirectURL,
		Raw:         raw,
	}
	if resp.ExpiresAt > 0 {
		expires := time.Unix(resp.ExpiresAt, 0)
		result.ExpiresAt = &expires
	}
	return result, nil
}

// Capture 捕获已授权的金额
func (d *Driver) Capture(ctx context.Context, input psp.CaptureInput) (*psp.CaptureResult, error) {
	if input.ReferenceID == "" || input.Amount <= 0 {
		return nil, fmt.Errorf("%w: bad capture input", ErrConfigInvalid)
	}
	payload := map[string]interface{}{
		"merchant_id": d.cfg.MerchantID,
		"amount":      input.Amount,
		"currency":    input.Currency,
	}
	raw, err := d.post(ctx, "/v1/authorizations/"+input.ReferenceID+"/capture", payload)
	if err != nil {
		return nil, err
	}
	var resp struct {
		CapturedAmount int64 `json:"captured_amount"`
		CapturedAt     int64 `json:"captured_at"`
	}
	if err := remarshal(raw, &resp); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrResponseInvalid, err)
	}
	if resp.CapturedAmount <= 0 {
		return nil, fmt.Errorf("%w: missing captured_amount", ErrResponseInvalid)
	}
	capturedAt := time.Now()
	if resp.CapturedAt > 0 {
		capturedAt = time.Unix(resp.CapturedAt, 0)
	}
	return &psp.CaptureResult{
		CapturedAmount: resp.CapturedAmount,
		CapturedAt:     capturedAt,
		Raw:            raw,
	}, nil
}

// Refund 发起退款，refund_no 作为提供方侧幂等令牌
func (d *Driver) Refund(ctx context.Context, input psp.RefundInput) (*psp.RefundResult, error) {
	if input.ReferenceID == "" || input.RefundNo == "" || input.Amount <= 0 {
		return nil, fmt.Errorf("%w: bad refund input", ErrConfigInvalid)
	}
	payload := map[string]interface{}{
		"merchant_id": d.cfg.MerchantID,
		"refund_no":   input.RefundNo,
		"amount":      input.Amount,
		"currency":    input.Currency,
		"reason":      input.Reason,
	}
	raw, err := d.post(ctx, "/v1/authorizations/"+input.ReferenceID+"/refunds", payload)
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

// VerifyWebhook 验证回调签名并解析事件
//
// 签名串为 "<timestamp>.<body>" 的 HMAC-SHA256，时间戳超出容差视为重放。
func (d *Driver) VerifyWebhook(header http.Header, body []byte) (*psp.WebhookEvent, error) {
	signature := strings.TrimSpace(header.Get("X-Cardnet-Signature"))
	timestamp := strings.TrimSpace(header.Get("X-Cardnet-Timestamp"))
	if signature == "" || timestamp == "" {
		return nil, psp.ErrSignatureInvalid
	}
	ts, err := strconv.ParseInt(timestamp, 10, 64)
	if err != nil {
		return nil, psp.ErrSignatureInvalid
	}
	drift := time.Since(time.Unix(ts, 0))
	if drift > webhookTolerance || drift < -webhookTolerance {
		return nil, psp.ErrSignatureInvalid
	}
	expected := signHMAC(d.cfg.WebhookSecret, timestamp+"."+string(body))
	if !hmac.Equal([]byte(expected), []byte(signature)) {
		return nil, psp.ErrSignatureInvalid
	}

	var event struct {
		Type            string `json:"type"`
		AuthorizationID string `json:"authorization_id"`
		Amount          int64  `json:"amount"`
		Currency        string `json:"currency"`
		OccurredAt      int64  `json:"occurred_at"`
	}
	if err := json.Unmarshal(body, &event); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrResponseInvalid, err)
	}
	var raw map[string]interface{}
	_ = json.Unmarshal(body, &raw)

	eventType, err := mapEventType(event.Type)
	if err != nil {
		return nil, err
	}
	occurredAt := time.Now()
	if event.OccurredAt > 0 {
		occurredAt = time.Unix(event.OccurredAt, 0)
	}
	return &psp.WebhookEvent{
		Type:        eventType,
		ReferenceID: event.AuthorizationID,
		Amount:      event.Amount,
		Currency:    event.Currency,
		OccurredAt:  occurredAt,
		Raw:         raw,
	}, nil
}

func mapEventType(t string) (string, error) {
	switch strings.ToLower(strings.TrimSpace(t)) {
	case "authorization.approved":
		return psp.EventAuthorized, nil
	case "authorization.captured":
		return psp.EventCaptured, nil
	case "authorization.declined":
		return psp.EventFailed, nil
	case "refund.completed":
		return psp.EventRefunded, nil
	}
	return "", fmt.Errorf("%w: unknown event type %q", ErrResponseInvalid, t)
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
	timestamp := strconv.FormatInt(time.Now().Unix(), 10)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Cardnet-Merchant", d.cfg.MerchantID)
	req.Header.Set("X-Cardnet-Timestamp", timestamp)
	req.Header.Set("X-Cardnet-Signature", signHMAC(d.cfg.APIKey, timestamp+"."+string(body)))

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
		return nil, fmt.Errorf("%w: status %d: %s", psp.ErrProviderRejected, resp.StatusCode, declineReason(respBody))
	}
	var raw map[string]interface{}
	if err := json.Unmarshal(respBody, &raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrResponseInvalid, err)
	}
	return raw, nil
}

func declineReason(body []byte) string {
	var resp struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(body, &resp); err != nil || resp.Error == "" {
		return "unknown"
	}
	return resp.Error
}

func remarshal(raw map[string]interface{}, out interface{}) error {
	data, err := json.Marshal(raw)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, out)
}

func signHMAC(secret, content string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(content))
	return hex.EncodeToString(mac.Sum(nil))
}
