package app

import (
	"context"
	"errors"
	"os/signal"
	"time"

	"go.uber.org/zap"
)

// Service 可托管的后台服务单元。HTTP 入口与队列消费进程共用这一抽象，
// 任一单元退出即触发整体关停。
type Service interface {
	Name() string
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
}

// Runner 统一拉起一组服务并串联它们的生命周期
type Runner struct {
	services []Service
}

// NewRunner 创建服务运行器
func NewRunner(services ...Service) *Runner {
	return &Runner{services: services}
}

// RunWithOptions 挂接系统信号后运行
func RunWithOptions(runner *Runner, opts Options) error {
	if runner == nil {
		return errors.New("runner is nil")
	}
	opts = normalizeOptions(opts)
	ctx := context.Background()
	if len(opts.Signals) > 0 {
		var cancel context.CancelFunc
		ctx, cancel = signal.NotifyContext(ctx, opts.Signals...)
		defer cancel()
	}

	return runner.Run(ctx, opts.ShutdownTimeout, opts.Logger)
}

// Run 并行启动全部服务，首个退出的服务或上游信号决定何时收场
func (r *Runner) Run(ctx context.Context, stopTimeout time.Duration, log *zap.SugaredLogger) error {
	if r == nil || len(r.services) == 0 {
		return errors.New("no services to run")
	}
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	exit := make(chan error, len(r.services))
	for _, svc := range r.services {
		go launch(runCtx, svc, exit, log)
	}

	var runErr error
	select {
	case <-runCtx.Done():
		runErr = runCtx.Err()
	case err := <-exit:
		runErr = err
	}
	cancel()

	r.shutdown(stopTimeout, log)
	if errors.Is(runErr, context.Canceled) {
		return nil
	}
	return runErr
}

func launch(ctx context.Context, svc Service, exit chan<- error, log *zap.SugaredLogger) {
	if svc == nil {
		exit <- errors.New("service is nil")
		return
	}
	if log != nil {
		log.Infow("service_start", "service", svc.Name())
	}
	exit <- svc.Start(ctx)
	if log != nil {
		log.Infow("service_exit", "service", svc.Name())
	}
}

// shutdown 依次优雅关停，单个失败不阻断其余服务
func (r *Runner) shutdown(stopTimeout time.Duration, log *zap.SugaredLogger) {
	if stopTimeout <= 0 {
		stopTimeout = 10 * time.Second
	}
	stopCtx, cancel := context.WithTimeout(context.Background(), stopTimeout)
	defer cancel()
	for _, svc := range r.services {
		if svc == nil {
			continue
		}
		if err := svc.Stop(stopCtx); err != nil && log != nil {
			log.Errorw("service_stop_failed", "service", svc.Name(), "error", err)
		}
	}
}
