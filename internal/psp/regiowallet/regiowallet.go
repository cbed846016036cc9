package regiowallet

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/payhub-next/internal/constants"
	"github.com/payhub-next/internal/psp"
)

var (
	ErrConfigInvalid   = errors.New("regiowallet config invalid")
	ErrRequestFailed   = errors.New("regiowallet request failed")
	ErrResponseInvalid = errors.New("regiowallet response invalid")
)

// Config RegioWallet 区域钱包配置
type Config struct {
	GatewayURL string `json:"gateway_url"` // 网关地址
	PartnerID  string `json:"partner_id"`  // 合作方编号
	SecretKey  string `json:"secret_key"`  // 签名密钥
	TimeoutSec int    `json:"timeout_sec"` // 请求超时（秒）
}

// Driver RegioWallet 驱动
//
// 钱包侧表单接口，参数按键名排序后以 HMAC-SHA256 拼签。
type Driver struct {
	cfg    *Config
	client *http.Client
}

func init() {
	psp.Register(constants.PSPRegiowallet, func(raw map[string]interface{}) (psp.Driver, error) {
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
	if strings.TrimSpace(cfg.PartnerID) == "" {
		return fmt.Errorf("%w: partner_id is required", ErrConfigInvalid)
	}
	if strings.TrimSpace(cfg.SecretKey) == "" {
		return fmt.Errorf("%w: secret_key is required", ErrConfigInvalid)
	}
	return nil
}

// NewDriver 创建 RegioWallet 驱动
func NewDriver(cfg *Config) *Driver {
	return &Driver{
		cfg:    cfg,
		client: &http.Client{Timeout: time.Duration(cfg.TimeoutSec) * time.Second},
	}
}

// Name 返回提供方名称
func (d *Driver) Name() string {
	return constants.PSPRegiowallet
}

// Authorize 创建钱包支付会话
func (d *Driver) Authorize(ctx context.Context, input psp.AuthorizeInput) (*psp.AuthorizeResult, error) {
	if input.IntentNo == "" || input.Amount <= 0 || input.Currency == "" {
		return nil, fmt.Errorf("%w: bad authorize input", ErrConfigInvalid)
	}
	params := map[string]string{
		"partner_id": d.cfg.PartnerID,
		"out_no":     input.IntentNo,
		"amount":     strconv.FormatInt(input.Amount, 10),
		"currency":   input.Currency,
		"return_url": input.ReturnURL,
	}
	raw, err := d.postForm(ctx, "/gateway/session", params)
	if err != nil {
		return nil, err
	}
	var resp struct {
		SessionID string `json:"session_id"`
		WalletURL string `json:"wallet_url"`
		TTL       int64  `json:"ttl"`
	}
	if err := remarshal(raw, &resp); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrResponseInvalid, err)
	}
	if resp.SessionID == "" {
		return nil, fmt.Errorf("%w: missing session_id", ErrResponseInvalid)
	}
	result := &psp.AuthorizeResult{
		ReferenceID: resp.SessionID,
		RedirectURL: resp.WalletURL,
		Raw:         raw,
	}
	if resp.TTL > 0 {
		expires := time.Now().Add(time.Duration(resp.TTL) * time.Second)
		result.ExpiresAt = &expires
	}
	return result, nil
}

// Capture 确认扣款，钱包余额支付授权后立即可捕获
func (d *Driver) Capture(ctx context.Context, input psp.CaptureInput) (*psp.CaptureResult, error) {
	if input.ReferenceID == "" || input.Amount <= 0 {
		return nil, fmt.Errorf("%w: bad capture input", ErrConfigInvalid)
	}
	params := map[string]string{
		"partner_id": d.cfg.PartnerID,
		"session_id": input.ReferenceID,
		"amount":     strconv.FormatInt(input.Amount, 10),
		"currency":   input.Currency,
	}
	raw, err := d.postForm(ctx, "/gateway/confirm", params)
	if err != nil {
		return nil, err
	}
	var resp struct {
		Amount      int64 `json:"amount"`
		ConfirmedAt int64 `json:"confirmed_at"`
	}
	if err := remarshal(raw, &resp); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrResponseInvalid, err)
	}
	if resp.Amount <= 0 {
		return nil, fmt.Errorf("%w: missing amount", ErrResponseInvalid)
	}
	capturedAt := time.Now()
	if resp.ConfirmedAt > 0 {
		capturedAt = time.Unix(resp.ConfirmedAt, 0)
	}
	return &psp.CaptureResult{
		CapturedAmount: resp.Amount,
		CapturedAt:     capturedAt,
		Raw:            raw,
	}, nil
}

// Refund 向钱包余额退款
func (d *Driver) Refund(ctx context.Context, input psp.RefundInput) (*psp.RefundResult, error) {
	if input.ReferenceID == "" || input.RefundNo == "" || input.Amount <= 0 {
		return nil, fmt.Errorf("%w: bad refund input", ErrConfigInvalid)
	}
	params := map[string]string{
		"partner_id": d.cfg.PartnerID,
		"session_id": input.ReferenceID,
		"refund_no":  input.RefundNo,
		"amount":     strconv.FormatInt(input.Amount, 10),
		"currency":   input.Currency,
	}
	raw, err := d.postForm(ctx, "/gateway/refund", params)
	if err != nil {
		return nil, err
	}
	var resp struct {
		RefundRef string `json:"refund_ref"`
	}
	if err := remarshal(raw, &resp); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrResponseInvalid, err)
	}
	if resp.RefundRef == "" {
		return nil, fmt.Errorf("%w: missing refund_ref", ErrResponseInvalid)
	}
	return &psp.RefundResult{PSPRefundID: resp.RefundRef, Raw: raw}, nil
}

// VerifyWebhook 验证回调签名并解析事件，回调为表单编码
func (d *Driver) VerifyWebhook(_ http.Header, body []byte) (*psp.WebhookEvent, error) {
	form, err := url.ParseQuery(string(body))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrResponseInvalid, err)
	}
	sign := strings.TrimSpace(form.Get("sign"))
	if sign == "" {
		return nil, psp.ErrSignatureInvalid
	}
	params := make(map[string]string, len(form))
	for key := range form {
		if key == "sign" {
			continue
		}
		params[key] = form.Get(key)
	}
	expected := d.sign(params)
	if !hmac.Equal([]byte(expected), []byte(strings.ToLower(sign))) {
		return nil, psp.ErrSignatureInvalid
	}

	amount, _ := strconv.ParseInt(form.Get("amount"), 10, 64)
	raw := make(map[string]interface{}, len(params))
	for key, value := range params {
		raw[key] = value
	}

	var eventType string
	switch strings.ToLower(strings.TrimSpace(form.Get("status"))) {
	case "authorized":
		eventType = psp.EventAuthorized
	case "paid":
		eventType = psp.EventCaptured
	case "failed", "expired":
		eventType = psp.EventFailed
	case "refunded":
		eventType = psp.EventRefunded
	default:
		return nil, fmt.Errorf("%w: unknown status %q", ErrResponseInvalid, form.Get("status"))
	}
	occurredAt := time.Now()
	if ts, err := strconv.ParseInt(form.Get("timestamp"), 10, 64); err == nil && ts > 0 {
		occurredAt = time.Unix(ts, 0)
	}
	return &psp.WebhookEvent{
		Type:        eventType,
		ReferenceID: form.Get("session_id"),
		Amount:      amount,
		Currency:    form.Get("currency"),
		OccurredAt:  occurredAt,
		Raw:         raw,
	}, nil
}

func (d *Driver) postForm(ctx context.Context, path string, params map[string]string) (map[string]interface{}, error) {
	params["sign"] = d.sign(params)
	values := url.Values{}
	for key, value := range params {
		if value == "" {
			continue
		}
		values.Set(key, value)
	}
	endpoint := strings.TrimRight(d.cfg.GatewayURL, "/") + path
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(values.Encode()))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRequestFailed, err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

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

	var envelope struct {
		Code int             `json:"code"`
		Msg  string          `json:"msg"`
		Data json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(respBody, &envelope); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrResponseInvalid, err)
	}
	if envelope.Code != 0 {
		return nil, fmt.Errorf("%w: code %d: %s", psp.ErrProviderRejected, envelope.Code, envelope.Msg)
	}
	var raw map[string]interface{}
	if err := json.Unmarshal(envelope.Data, &raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrResponseInvalid, err)
	}
	return raw, nil
}

// sign 按键名排序拼接 key=value 后做 HMAC-SHA256
func (d *Driver) sign(params map[string]string) string {
	keys := make([]string, 0, len(params))
	for key, value := range params {
		if value == "" || key == "sign" {
			continue
		}
		keys = append(keys, key)
	}
	sort.Strings(keys)
	pairs := make([]string, 0, len(keys))
	for _, key := range keys {
		pairs = append(pairs, key+"="+params[key])
	}
	mac := hmac.New(sha256.New, []byte(d.cfg.SecretKey))
	mac.Write([]byte(strings.Join(pairs, "&")))
	return hex.EncodeToString(mac.Sum(nil))
}

func remarshal(raw map[string]interface{}, out interface{}) error {
	data, err := json.Marshal(raw)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, out)
}
