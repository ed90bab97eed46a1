package config

import (
	"fmt"
	"net"
	"strconv"
	"strings"

	"golang.org/x/time/rate"

	"github.com/BaSui01/sessiondb/driver"
	"github.com/BaSui01/sessiondb/session"
)

// =============================================================================
// ✅ 验证
// =============================================================================

var supportedDrivers = map[string]bool{
	"postgres": true,
	"pgx":      true,
	"mysql":    true,
	"sqlite":   true,
}

// Validate 验证配置
func (c *Config) Validate() error {
	var errs []string

	if !supportedDrivers[c.Database.Driver] {
		errs = append(errs, fmt.Sprintf("unsupported database driver %q", c.Database.Driver))
	}
	if c.Database.DSN == "" && c.Database.Name == "" {
		errs = append(errs, "database dsn or name is required")
	}
	if c.Database.DSN == "" && c.Database.Driver != "sqlite" && (c.Database.Port <= 0 || c.Database.Port > 65535) {
		errs = append(errs, "invalid database port")
	}
	if c.Database.MaxOpenConns < 0 || c.Database.MaxIdleConns < 0 {
		errs = append(errs, "connection pool sizes must not be negative")
	}
	if _, err := ParseAttributes(c.Database.Options); err != nil {
		errs = append(errs, err.Error())
	}

	if c.Session.AliveCache < 0 {
		errs = append(errs, "session alive_cache must not be negative")
	}
	if c.Session.ReconnectRate < 0 {
		errs = append(errs, "session reconnect_rate must not be negative")
	}
	if c.Session.ReconnectRate > 0 && c.Session.ReconnectBurst <= 0 {
		errs = append(errs, "session reconnect_burst must be positive when reconnect_rate is set")
	}

	switch c.Log.Format {
	case "json", "console":
	default:
		errs = append(errs, fmt.Sprintf("unsupported log format %q", c.Log.Format))
	}

	if c.Telemetry.SampleRate < 0 || c.Telemetry.SampleRate > 1 {
		errs = append(errs, "telemetry sample_rate must be between 0 and 1")
	}

	if c.Metrics.Enabled {
		if _, _, err := net.SplitHostPort(c.Metrics.ListenAddr); err != nil {
			errs = append(errs, fmt.Sprintf("invalid metrics listen_addr %q", c.Metrics.ListenAddr))
		}
		if (c.Metrics.TLSCertFile == "") != (c.Metrics.TLSKeyFile == "") {
			errs = append(errs, "metrics tls_cert_file and tls_key_file must be set together")
		}
	}

	if c.Status.Enabled {
		if c.Status.RedisAddr == "" {
			errs = append(errs, "status redis_addr is required")
		}
		if c.Status.TTL <= 0 {
			errs = append(errs, "status ttl must be positive")
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

// =============================================================================
// 🔗 连接参数
// =============================================================================

// ConnectionString 返回不含凭据的连接字符串；凭据由驱动合并
func (d *DatabaseConfig) ConnectionString() string {
	if d.DSN != "" {
		return d.DSN
	}
	switch d.Driver {
	case "postgres", "pgx":
		conn := fmt.Sprintf("host=%s port=%d dbname=%s", d.Host, d.Port, d.Name)
		if d.SSLMode != "" {
			conn += " sslmode=" + d.SSLMode
		}
		return conn
	case "mysql":
		return fmt.Sprintf("tcp(%s:%d)/%s?parseTime=true", d.Host, d.Port, d.Name)
	case "sqlite":
		return d.Name
	default:
		return ""
	}
}

// ParseAttributes 把配置中的字符串属性转换为连接属性
//
// case 取 natural/lower/upper；其余值原样交给驱动解析（如 timeout=5s）。
func ParseAttributes(opts map[string]string) (map[driver.Attr]any, error) {
	out := make(map[driver.Attr]any, len(opts))
	for k, v := range opts {
		attr := driver.Attr(k)
		switch attr {
		case driver.AttrCase:
			switch strings.ToLower(v) {
			case "natural", "":
				out[attr] = driver.CaseNatural
			case "lower":
				out[attr] = driver.CaseLower
			case "upper":
				out[attr] = driver.CaseUpper
			default:
				return nil, fmt.Errorf("invalid case option %q", v)
			}
		case driver.AttrDriverName, driver.AttrServerVersion, driver.AttrConnectionStatus:
			return nil, fmt.Errorf("option %q is read-only", k)
		default:
			if _, ok := attr.SessionVar(); !ok && attr != driver.AttrTimeout && attr != driver.AttrDefaultFetchMode {
				return nil, fmt.Errorf("unknown connection option %q", k)
			}
			if n, err := strconv.Atoi(v); err == nil && attr != driver.AttrTimeout {
				out[attr] = n
				continue
			}
			out[attr] = v
		}
	}
	return out, nil
}

// SessionConfig 组装会话构造参数
func (c *Config) SessionConfig() (session.Config, error) {
	attrs, err := ParseAttributes(c.Database.Options)
	if err != nil {
		return session.Config{}, err
	}
	return session.Config{
		DSN:           c.Database.ConnectionString(),
		Username:      c.Database.User,
		Password:      c.Database.Password,
		Options:       attrs,
		LazyConnect:   c.Session.LazyConnect,
		AutoReconnect: c.Session.AutoReconnect,
	}, nil
}

// SessionOptions 返回由配置决定的会话选项
func (c *Config) SessionOptions() []session.Option {
	var opts []session.Option
	if c.Session.ReconnectRate > 0 {
		opts = append(opts, session.WithReconnectLimiter(
			rate.NewLimiter(rate.Limit(c.Session.ReconnectRate), c.Session.ReconnectBurst)))
	}
	if len(c.Session.ProbeQueries) > 0 {
		opts = append(opts, session.WithProbeQueries(c.Session.ProbeQueries))
	}
	return opts
}
