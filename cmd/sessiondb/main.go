// =============================================================================
// SessionDB 命令行入口
// =============================================================================
// 通过会话层访问数据库：连通性检查、执行语句、并发探测、指标导出与迁移
//
// 使用方法:
//
//	sessiondb ping                          # 不走缓存的存活探测
//	sessiondb exec "DELETE FROM t"          # 执行语句并输出影响行数
//	sessiondb query "SELECT * FROM t"       # 查询并以表格输出
//	sessiondb probe --sessions 8            # 多会话并发探测
//	sessiondb watch --interval 5s           # 周期探测并导出 Prometheus 指标
//	sessiondb status                        # 查看 Redis 状态看板
//	sessiondb migrate up                    # 运行数据库迁移
//	sessiondb version                       # 显示版本信息
// =============================================================================

package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	_ "github.com/glebarez/go-sqlite"
	_ "github.com/go-sql-driver/mysql"
	_ "github.com/jackc/pgx/v5/stdlib"
	_ "github.com/lib/pq"

	"github.com/BaSui01/sessiondb/config"
	"github.com/BaSui01/sessiondb/internal/telemetry"
)

// =============================================================================
// 📦 版本信息（构建时注入）
// =============================================================================

var (
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

// errUsage 表示参数错误，已经输出过用法
var errUsage = errors.New("invalid usage")

// =============================================================================
// 🎯 主函数
// =============================================================================

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	err := run(ctx, os.Args[1:], os.Stdout)
	stop()

	if err != nil {
		if !errors.Is(err, errUsage) {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		}
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, out io.Writer) error {
	if len(args) < 1 {
		printUsage(out)
		return errUsage
	}

	switch args[0] {
	case "ping":
		return runPing(ctx, args[1:], out)
	case "exec":
		return runExec(ctx, args[1:], out)
	case "query":
		return runQuery(ctx, args[1:], out)
	case "probe":
		return runProbe(ctx, args[1:], out)
	case "watch":
		return runWatch(ctx, args[1:], out)
	case "status":
		return runStatus(ctx, args[1:], out)
	case "migrate":
		return runMigrate(ctx, args[1:], out)
	case "version":
		printVersion(out)
		return nil
	case "help", "-h", "--help":
		printUsage(out)
		return nil
	default:
		fmt.Fprintf(out, "Unknown command: %s\n", args[0])
		printUsage(out)
		return errUsage
	}
}

// =============================================================================
// 🔧 公共参数与运行环境
// =============================================================================

// commonFlags 所有访问数据库的子命令共用的参数
type commonFlags struct {
	configPath string
	driver     string
	dsn        string
}

func bindCommon(fs *flag.FlagSet) *commonFlags {
	f := &commonFlags{}
	fs.StringVar(&f.configPath, "config", "", "Path to config file")
	fs.StringVar(&f.driver, "driver", "", "Override database driver (postgres, pgx, mysql, sqlite)")
	fs.StringVar(&f.dsn, "dsn", "", "Override database DSN")
	return f
}

func (f *commonFlags) load() (*config.Config, error) {
	loader := config.NewLoader()
	if f.configPath != "" {
		loader = loader.WithConfigPath(f.configPath)
	}
	cfg, err := loader.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if f.driver != "" {
		cfg.Database.Driver = f.driver
	}
	if f.dsn != "" {
		cfg.Database.DSN = f.dsn
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// env 一次命令执行期间的配置、日志与遥测
type env struct {
	cfg       *config.Config
	logger    *zap.Logger
	telemetry *telemetry.Providers
}

func (f *commonFlags) setup() (*env, error) {
	cfg, err := f.load()
	if err != nil {
		return nil, err
	}
	logger := initLogger(cfg.Log)

	providers, err := telemetry.Init(cfg.Telemetry, cfg.Database.Driver, logger)
	if err != nil {
		logger.Warn("failed to initialize telemetry", zap.Error(err))
	}
	return &env{cfg: cfg, logger: logger, telemetry: providers}, nil
}

func (e *env) close() {
	if err := e.telemetry.Shutdown(context.Background()); err != nil {
		e.logger.Warn("telemetry shutdown failed", zap.Error(err))
	}
	_ = e.logger.Sync()
}

// =============================================================================
// 📋 版本和帮助
// =============================================================================

func printVersion(out io.Writer) {
	fmt.Fprintf(out, "SessionDB %s\n", Version)
	fmt.Fprintf(out, "  Build Time: %s\n", BuildTime)
	fmt.Fprintf(out, "  Git Commit: %s\n", GitCommit)
}

func printUsage(out io.Writer) {
	fmt.Fprintln(out, `SessionDB - transparent reconnecting database sessions

Usage:
  sessiondb <command> [options]

Commands:
  ping      Probe the database without using the liveness cache
  exec      Execute a statement and print the affected row count
  query     Run a query and print the result set
  probe     Open several sessions and probe them concurrently
  watch     Probe periodically and export Prometheus metrics
  status    List watch instances published to the Redis status board
  migrate   Database migration commands
  version   Show version information
  help      Show this help message

Common options:
  --config <path>   Path to configuration file (YAML)
  --driver <name>   Override database driver
  --dsn <dsn>       Override database DSN

Examples:
  sessiondb ping --config /etc/sessiondb/config.yaml
  sessiondb query --driver sqlite --dsn ./app.db "SELECT * FROM accounts"
  sessiondb probe --sessions 8 --rounds 5 --reconnect
  sessiondb watch --interval 10s
  sessiondb migrate up`)
}

// =============================================================================
// 🔧 日志初始化
// =============================================================================

func initLogger(cfg config.LogConfig) *zap.Logger {
	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		level = zapcore.InfoLevel
	}

	var encoderConfig zapcore.EncoderConfig
	if cfg.Format == "console" {
		encoderConfig = zap.NewDevelopmentEncoderConfig()
		encoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	} else {
		encoderConfig = zap.NewProductionEncoderConfig()
		encoderConfig.TimeKey = "timestamp"
		encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	}

	outputs := cfg.OutputPaths
	if len(outputs) == 0 {
		outputs = []string{"stderr"}
	}

	zapConfig := zap.Config{
		Level:             zap.NewAtomicLevelAt(level),
		Development:       cfg.Format == "console",
		Encoding:          "json",
		EncoderConfig:     encoderConfig,
		OutputPaths:       outputs,
		ErrorOutputPaths:  []string{"stderr"},
		DisableCaller:     !cfg.EnableCaller,
		DisableStacktrace: !cfg.EnableStacktrace,
	}
	if cfg.Format == "console" {
		zapConfig.Encoding = "console"
	}

	logger, err := zapConfig.Build()
	if err != nil {
		// 回退到基本 logger
		logger, _ = zap.NewProduction()
	}
	return logger.With(zap.String("service", "sessiondb"))
}
