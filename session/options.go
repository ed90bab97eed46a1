package session

import (
	"time"

	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/BaSui01/sessiondb/driver"
)

// =============================================================================
// ⚙️ 配置与选项
// =============================================================================

// Config 会话构造参数
type Config struct {
	// DSN 地址/数据源名称
	DSN string `yaml:"dsn" json:"dsn"`

	// Username 用户名
	Username string `yaml:"username" json:"username"`

	// Password 密码
	Password string `yaml:"password" json:"-"`

	// Options 构造选项，每次建立连接时交给驱动
	Options map[driver.Attr]any `yaml:"options" json:"options"`

	// LazyConnect 为 true 时推迟到首次使用才建立连接
	LazyConnect bool `yaml:"lazy_connect" json:"lazy_connect"`

	// AutoReconnect 显式断开后，下次使用时是否自动重连
	AutoReconnect bool `yaml:"auto_reconnect" json:"auto_reconnect"`
}

func (c Config) connectConfig() driver.ConnectConfig {
	opts := make(map[driver.Attr]any, len(c.Options))
	for k, v := range c.Options {
		opts[k] = v
	}
	return driver.ConnectConfig{
		DSN:      c.DSN,
		Username: c.Username,
		Password: c.Password,
		Options:  opts,
	}
}

// Option 配置 Conn 的可选项
type Option func(*options)

type options struct {
	logger       *zap.Logger
	observer     Observer
	tracer       trace.Tracer
	now          func() time.Time
	limiter      *rate.Limiter
	probeQueries []string
}

func defaultOptions() options {
	return options{
		logger:       zap.NewNop(),
		observer:     nopObserver{},
		now:          time.Now,
		probeQueries: DefaultProbeQueries(),
	}
}

// WithLogger 设置日志
func WithLogger(logger *zap.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithObserver 设置生命周期观察者（指标等）
// 多次设置时事件依次分发给每个观察者。
func WithObserver(obs Observer) Option {
	return func(o *options) {
		switch {
		case obs == nil:
		case o.observer == (nopObserver{}):
			o.observer = obs
		default:
			o.observer = multiObserver{o.observer, obs}
		}
	}
}

// WithTracer 设置 span 使用的 tracer，默认取全局 TracerProvider
func WithTracer(t trace.Tracer) Option {
	return func(o *options) {
		if t != nil {
			o.tracer = t
		}
	}
}

// WithClock 替换时钟，测试用
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		if now != nil {
			o.now = now
		}
	}
}

// WithReconnectLimiter 限制自动重连的频率；首次连接和显式 Connect 不受限制
func WithReconnectLimiter(l *rate.Limiter) Option {
	return func(o *options) { o.limiter = l }
}

// WithProbeQueries 替换存活探测语句列表
func WithProbeQueries(queries []string) Option {
	return func(o *options) {
		if len(queries) > 0 {
			o.probeQueries = append([]string(nil), queries...)
		}
	}
}

// =============================================================================
// 👀 观察者
// =============================================================================

// Observer 接收会话生命周期事件
type Observer interface {
	ObserveConnect(d time.Duration, err error)
	ObserveDisconnect(released int)
	ObserveProbe(alive, cached bool)
	ObserveReconstruct(prepared bool, err error)
	ObserveDeferredColumn(resolved bool)
}

type nopObserver struct{}

func (nopObserver) ObserveConnect(time.Duration, error) {}
func (nopObserver) ObserveDisconnect(int)               {}
func (nopObserver) ObserveProbe(bool, bool)             {}
func (nopObserver) ObserveReconstruct(bool, error)      {}
func (nopObserver) ObserveDeferredColumn(bool)          {}

type multiObserver []Observer

func (m multiObserver) ObserveConnect(d time.Duration, err error) {
	for _, o := range m {
		o.ObserveConnect(d, err)
	}
}

func (m multiObserver) ObserveDisconnect(released int) {
	for _, o := range m {
		o.ObserveDisconnect(released)
	}
}

func (m multiObserver) ObserveProbe(alive, cached bool) {
	for _, o := range m {
		o.ObserveProbe(alive, cached)
	}
}

func (m multiObserver) ObserveReconstruct(prepared bool, err error) {
	for _, o := range m {
		o.ObserveReconstruct(prepared, err)
	}
}

func (m multiObserver) ObserveDeferredColumn(resolved bool) {
	for _, o := range m {
		o.ObserveDeferredColumn(resolved)
	}
}

// StatementOption 配置 Prepare / Query
type StatementOption func(*driver.StatementOptions)

// WithKind 指定语句是否返回结果集
func WithKind(kind driver.StatementKind) StatementOption {
	return func(o *driver.StatementOptions) { o.Kind = kind }
}

// WithFetchMode 指定初始取数模式
func WithFetchMode(mode driver.FetchMode) StatementOption {
	return func(o *driver.StatementOptions) {
		m := mode
		o.FetchMode = &m
	}
}

// WithTimeout 指定单次执行超时
func WithTimeout(d time.Duration) StatementOption {
	return func(o *driver.StatementOptions) { o.Timeout = d }
}

func buildStatementOptions(opts []StatementOption) driver.StatementOptions {
	var so driver.StatementOptions
	for _, opt := range opts {
		opt(&so)
	}
	return so
}
