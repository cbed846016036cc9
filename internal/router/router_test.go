package router

import (
	"strings"
	"testing"

	"github.com/payhub-next/internal/config"
	"github.com/payhub-next/internal/provider"

	"github.com/gin-gonic/gin"
)

func TestRouterMountsVersionedPaths(t *testing.T) {
	gin.SetMode(gin.TestMode)

	cfg := &config.Config{}
	cfg.Server.Mode = "debug"
	c := provider.NewContainer(cfg)
	r := SetupRouter(cfg, c)

	want := map[string]bool{
		"POST /api/v1/payments/intents":                 false,
		"GET /api/v1/payments/intents":                  false,
		"GET /api/v1/payments/intents/by-no/:intent_no": false,
		"GET /api/v1/payments/intents/:id":              false,
		"POST /api/v1/payments/intents/:id/refunds":     false,
		"GET /api/v1/payments/intents/:id/refunds":      false,
		"POST /api/v1/webhooks/:provider":               false,
		"POST /api/v1/operator/login":                   false,
		"GET /api/v1/stores/:id/balance":                false,
		"GET /api/v1/ledger/entries":                    false,
		"GET /api/v1/payouts":                           false,
		"POST /api/v1/payouts/:id/retry":                false,
	}
	for _, route := range r.Routes() {
		key := route.Method + " " + route.Path
		if _, ok := want[key]; ok {
			want[key] = true
		}
	}
	for key, seen := range want {
		if !seen {
			t.Fatalf("route %s not mounted", key)
		}
	}

	// 除登录外，运营资源不再藏在 /operator 前缀之下
	for _, route := range r.Routes() {
		if route.Path == "/api/v1/operator/login" {
			continue
		}
		if strings.HasPrefix(route.Path, "/api/v1/operator/") {
			t.Fatalf("unexpected operator-scoped route: %s %s", route.Method, route.Path)
		}
	}
}
