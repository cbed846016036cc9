package cardnet

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/payhub-next/internal/psp"
)

func testConfig(gatewayURL string) *Config {
	return &Config{
		GatewayURL:    gatewayURL,
		MerchantID:    "mch_001",
		APIKey:        "api-key",
		WebhookSecret: "hook-secret",
		TimeoutSec:    5,
	}
}

func TestParseAndValidateConfig(t *testing.T) {
	cfg, err := ParseConfig(map[string]interface{}{
		"gateway_url":    "https://api.cardnet.example",
		"merchant_id":    "mch_001",
		"api_key":        "api-key",
		"webhook_secret": "hook-secret",
	})
	if err != nil {
		t.Fatalf("parse config failed: %v", err)
	}
	if cfg.TimeoutSec != 10 {
		t.Fatalf("timeout should fallback to default, got: %d", cfg.TimeoutSec)
	}
	if err := ValidateConfig(cfg); err != nil {
		t.Fatalf("validate config failed: %v", err)
	}
}

func TestValidateConfigRequiresWebhookSecret(t *testing.T) {
	cfg, err := ParseConfig(map[string]interface{}{
		"gateway_url": "https://api.cardnet.example",
		"merchant_id": "mch_001",
		"api_key":     "api-key",
	})
	if err != nil {
		t.Fatalf("parse config failed: %v", err)
	}
	if err := ValidateConfig(cfg); !errors.Is(err, ErrConfigInvalid) {
		t.Fatalf("expected webhook_secret required error, got: %v", err)
	}
}

func TestAuthorizeAndCapture(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("X-Cardnet-Signature") == "" {
			t.Error("request not signed")
		}
		switch r.URL.Path {
		case "/v1/authorizations":
			w.Write([]byte(`{"authorization_id":"auth_1","redirect_url":"https://pay.cardnet.example/auth_1","expires_at":1767225600}`))
		case "/v1/authorizations/auth_1/capture":
			w.Write([]byte(`{"captured_amount":10000,"captured_at":1767225601}`))
		default:
			http.NotFound(w, r)
		}
	}))
	defer server.Close()

	driver := NewDriver(testConfig(server.URL))
	auth, err := driver.Authorize(context.Background(), psp.AuthorizeInput{
		IntentNo: "pi-1",
		Amount:   10000,
		Currency: "EUR",
	})
	if err != nil {
		t.Fatalf("Authorize() error = %v", err)
	}
	if auth.ReferenceID != "auth_1" {
		t.Fatalf("ReferenceID = %s, want auth_1", auth.ReferenceID)
	}
	if auth.ExpiresAt == nil {
		t.Fatal("ExpiresAt should be set")
	}

	capture, err := driver.Capture(context.Background(), psp.CaptureInput{
		ReferenceID: "auth_1",
		Amount:      10000,
		Currency:    "EUR",
	})
	if err != nil {
		t.Fatalf("Capture() error = %v", err)
	}
	if capture.CapturedAmount != 10000 {
		t.Fatalf("CapturedAmount = %d, want 10000", capture.CapturedAmount)
	}
}

func TestRefundRejectedMapsToSentinel(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		w.Write([]byte(`{"error":"insufficient_balance"}`))
	}))
	defer server.Close()

	driver := NewDriver(testConfig(server.URL))
	_, err := driver.Refund(context.Background(), psp.RefundInput{
		ReferenceID: "auth_1",
		RefundNo:    "rf-1",
		Amount:      100,
		Currency:    "EUR",
	})
	if !errors.Is(err, psp.ErrProviderRejected) {
		t.Fatalf("error = %v, want ErrProviderRejected", err)
	}
}

func TestProviderDownMapsToUnavailable(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	driver := NewDriver(testConfig(server.URL))
	_, err := driver.Capture(context.Background(), psp.CaptureInput{
		ReferenceID: "auth_1",
		Amount:      100,
		Currency:    "EUR",
	})
	if !errors.Is(err, psp.ErrProviderUnavailable) {
		t.Fatalf("error = %v, want ErrProviderUnavailable", err)
	}
}

func TestVerifyWebhook(t *testing.T) {
	driver := NewDriver(testConfig("https://api.cardnet.example"))
	body := []byte(`{"type":"authorization.captured","authorization_id":"auth_9","amount":4200,"currency":"EUR","occurred_at":1767225600}`)
	timestamp := strconv.FormatInt(time.Now().Unix(), 10)

	mac := hmac.New(sha256.New, []byte("hook-secret"))
	mac.Write([]byte(timestamp + "." + string(body)))

	header := http.Header{}
	header.Set("X-Cardnet-Timestamp", timestamp)
	header.Set("X-Cardnet-Signature", hex.EncodeToString(mac.Sum(nil)))

	event, err := driver.VerifyWebhook(header, body)
	if err != nil {
		t.Fatalf("VerifyWebhook() error = %v", err)
	}
	if event.Type != psp.EventCaptured {
		t.Fatalf("Type = %s, want captured", event.Type)
	}
	if event.ReferenceID != "auth_9" || event.Amount != 4200 {
		t.Fatalf("event = %+v, want auth_9/4200", event)
	}

	header.Set("X-Cardnet-Signature", "deadbeef")
	if _, err := driver.VerifyWebhook(header, body); !errors.Is(err, psp.ErrSignatureInvalid) {
		t.Fatalf("tampered signature error = %v, want ErrSignatureInvalid", err)
	}

	// 过期时间戳视为重放
	stale := strconv.FormatInt(time.Now().Add(-time.Hour).Unix(), 10)
	mac = hmac.New(sha256.New, []byte("hook-secret"))
	mac.Write([]byte(stale + "." + string(body)))
	header.Set("X-Cardnet-Timestamp", stale)
	header.Set("X-Cardnet-Signature", hex.EncodeToString(mac.Sum(nil)))
	if _, err := driver.VerifyWebhook(header, body); !errors.Is(err, psp.ErrSignatureInvalid) {
		t.Fatalf("stale timestamp error = %v, want ErrSignatureInvalid", err)
	}
}
