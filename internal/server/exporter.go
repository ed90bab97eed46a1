package server

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// =============================================================================
// 📡 指标导出服务
// =============================================================================

// HealthFunc 健康检查回调，返回 nil 表示健康
type HealthFunc func(ctx context.Context) error

// Config 导出服务配置
type Config struct {
	// 监听地址，":0" 表示随机端口
	Addr string `yaml:"addr" json:"addr"`

	// 读取超时
	ReadTimeout time.Duration `yaml:"read_timeout" json:"read_timeout"`

	// 单次健康检查超时
	HealthTimeout time.Duration `yaml:"health_timeout" json:"health_timeout"`

	// 优雅关闭超时
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" json:"shutdown_timeout"`

	// 非空时以 TLS 方式监听
	TLS *tls.Config `yaml:"-" json:"-"`
}

// DefaultConfig 返回默认导出服务配置
func DefaultConfig() Config {
	return Config{
		Addr:            ":9091",
		ReadTimeout:     10 * time.Second,
		HealthTimeout:   5 * time.Second,
		ShutdownTimeout: 10 * time.Second,
	}
}

// Exporter 暴露 /metrics 与 /healthz
type Exporter struct {
	server   *http.Server
	listener net.Listener
	errCh    chan error
	config   Config
	health   HealthFunc
	logger   *zap.Logger
	mu       sync.RWMutex
	closed   bool
}

// NewExporter 创建导出服务。health 为 nil 时 /healthz 恒为 200。
func NewExporter(gatherer prometheus.Gatherer, health HealthFunc, config Config, logger *zap.Logger) *Exporter {
	if logger == nil {
		logger = zap.NewNop()
	}
	e := &Exporter{
		errCh:  make(chan error, 1),
		config: config,
		health: health,
		logger: logger.With(zap.String("component", "metrics_exporter")),
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{
		ErrorLog: zap.NewStdLog(e.logger),
	}))
	mux.HandleFunc("/healthz", e.handleHealth)

	e.server = &http.Server{
		Handler:     mux,
		ReadTimeout: config.ReadTimeout,
	}
	return e
}

func (e *Exporter) handleHealth(w http.ResponseWriter, r *http.Request) {
	if e.health != nil {
		ctx := r.Context()
		if e.config.HealthTimeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, e.config.HealthTimeout)
			defer cancel()
		}
		if err := e.health(ctx); err != nil {
			e.logger.Warn("health check failed", zap.Error(err))
			http.Error(w, err.Error(), http.StatusServiceUnavailable)
			return
		}
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// =============================================================================
// 🎯 生命周期
// =============================================================================

// Start 开始监听（非阻塞）
func (e *Exporter) Start() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return fmt.Errorf("exporter is closed")
	}
	if e.listener != nil {
		return fmt.Errorf("exporter already started")
	}

	listener, err := net.Listen("tcp", e.config.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", e.config.Addr, err)
	}
	if e.config.TLS != nil {
		listener = tls.NewListener(listener, e.config.TLS)
	}
	e.listener = listener

	e.logger.Info("serving metrics",
		zap.String("addr", listener.Addr().String()),
		zap.Bool("tls", e.config.TLS != nil),
	)

	go e.serve(listener)
	return nil
}

func (e *Exporter) serve(listener net.Listener) {
	if err := e.server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
		e.logger.Error("metrics exporter failed", zap.Error(err))
		select {
		case e.errCh <- err:
		default:
		}
	}
}

// Shutdown 优雅关闭；重复调用无副作用
func (e *Exporter) Shutdown(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return nil
	}
	e.closed = true

	if e.config.ShutdownTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.config.ShutdownTimeout)
		defer cancel()
	}
	if err := e.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("metrics exporter shutdown: %w", err)
	}
	e.listener = nil
	e.logger.Info("metrics exporter stopped")
	return nil
}

// Errors 返回异步服务错误
func (e *Exporter) Errors() <-chan error {
	return e.errCh
}

// Addr 返回实际监听地址；未启动时返回配置地址
func (e *Exporter) Addr() string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.listener != nil {
		return e.listener.Addr().String()
	}
	return e.config.Addr
}
