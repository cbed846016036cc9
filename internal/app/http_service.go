package app

import (
	"context"
	"errors"
	"net/http"
	"time"
)

// HTTPService 承载支付编排的 REST 入口，按 Service 生命周期托管
type HTTPService struct {
	name   string
	server *http.Server
}

// NewHTTPService 在给定地址上挂载处理器
func NewHTTPService(addr string, handler http.Handler) *HTTPService {
	return &HTTPService{
		name: "http",
		server: &http.Server{
			Addr:              addr,
			Handler:           handler,
			ReadHeaderTimeout: 10 * time.Second,
		},
	}
}

// Name 服务名，用于启停日志
func (s *HTTPService) Name() string {
	if s == nil || s.name == "" {
		return "http"
	}
	return s.name
}

// Start 阻塞监听，主动关停不算错误
func (s *HTTPService) Start(ctx context.Context) error {
	if s == nil || s.server == nil {
		return errors.New("http server not initialized")
	}
	err := s.server.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Stop 优雅关停，在超时窗口内等待在途请求完成
func (s *HTTPService) Stop(ctx context.Context) error {
	if s == nil || s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}
