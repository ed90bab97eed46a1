package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"

	"github.com/BaSui01/sessiondb"
	"github.com/BaSui01/sessiondb/internal/cache"
	"github.com/BaSui01/sessiondb/internal/metrics"
	"github.com/BaSui01/sessiondb/internal/server"
	"github.com/BaSui01/sessiondb/internal/tlsutil"
	"github.com/BaSui01/sessiondb/session"
)

// =============================================================================
// 📊 watch：周期探测 + 指标导出
// =============================================================================

func runWatch(ctx context.Context, args []string, out io.Writer) error {
	fs := flag.NewFlagSet("watch", flag.ContinueOnError)
	fs.SetOutput(out)
	common := bindCommon(fs)
	interval := fs.Duration("interval", 5*time.Second, "Time between liveness checks")
	count := fs.Int("count", 0, "Stop after this many checks (0 runs until interrupted)")
	metricsAddr := fs.String("metrics-addr", "", "Serve /metrics on this address (overrides config)")
	if err := fs.Parse(args); err != nil {
		return errUsage
	}
	if *interval <= 0 {
		return fmt.Errorf("watch: interval must be positive")
	}

	e, err := common.setup()
	if err != nil {
		return err
	}
	defer e.close()

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	collector := metrics.NewCollector(e.cfg.Metrics.Namespace, reg, e.logger)

	db, err := sessiondb.OpenDB(e.cfg, e.logger, append(e.telemetry.SessionOptions(), session.WithObserver(collector))...)
	if err != nil {
		return err
	}
	defer db.Close()

	var exporterErrs <-chan error
	if addr := exporterAddr(e, *metricsAddr); addr != "" {
		exporter, err := startExporter(e, reg, db, addr)
		if err != nil {
			return err
		}
		defer func() {
			if err := exporter.Shutdown(context.Background()); err != nil {
				e.logger.Warn("exporter shutdown failed", zap.Error(err))
			}
		}()
		exporterErrs = exporter.Errors()
		fmt.Fprintf(out, "serving metrics on %s/metrics\n", exporter.Addr())
	}

	board, instance, err := openBoard(ctx, e)
	if err != nil {
		return err
	}
	if board != nil {
		defer board.Close()
	}

	ticker := time.NewTicker(*interval)
	defer ticker.Stop()

	for round := 1; ; round++ {
		pingCtx, cancel := context.WithTimeout(ctx, *interval)
		pingErr := db.PingContext(pingCtx)
		cancel()

		stats := db.Stats()
		collector.RecordPoolStats("default", stats)

		status := "ok"
		if pingErr != nil {
			status = "error"
			e.logger.Warn("liveness check failed", zap.Error(pingErr))
		}
		fmt.Fprintf(out, "%s ping=%s open=%d idle=%d in_use=%d\n",
			time.Now().Format(time.RFC3339), status, stats.OpenConnections, stats.Idle, stats.InUse)

		if board != nil {
			snap := cache.Snapshot{
				Instance:        instance,
				Driver:          e.cfg.Database.Driver,
				Alive:           pingErr == nil,
				CheckedAt:       time.Now().UTC(),
				OpenConnections: stats.OpenConnections,
				Idle:            stats.Idle,
				InUse:           stats.InUse,
				WaitCount:       stats.WaitCount,
			}
			if pingErr != nil {
				snap.Error = pingErr.Error()
			}
			if err := board.Publish(ctx, snap); err != nil {
				e.logger.Warn("status publish failed", zap.Error(err))
			}
		}

		if *count > 0 && round >= *count {
			return nil
		}

		select {
		case <-ctx.Done():
			return nil
		case err := <-exporterErrs:
			return fmt.Errorf("metrics exporter: %w", err)
		case <-ticker.C:
		}
	}
}

// openBoard 在启用状态看板时连接 Redis；未启用时返回 nil
func openBoard(ctx context.Context, e *env) (*cache.Board, string, error) {
	sc := e.cfg.Status
	if !sc.Enabled {
		return nil, "", nil
	}

	instance := sc.Instance
	if instance == "" {
		host, _ := os.Hostname()
		instance = cache.InstanceName(host, os.Getpid())
	}

	cfg := cache.DefaultConfig()
	cfg.Addr = sc.RedisAddr
	cfg.Password = sc.RedisPassword
	cfg.DB = sc.RedisDB
	cfg.KeyPrefix = sc.KeyPrefix
	cfg.TTL = sc.TTL

	board, err := cache.NewBoard(ctx, cfg, e.logger)
	if err != nil {
		return nil, "", err
	}
	return board, instance, nil
}

func exporterAddr(e *env, override string) string {
	if override != "" {
		return override
	}
	if e.cfg.Metrics.Enabled {
		return e.cfg.Metrics.ListenAddr
	}
	return ""
}

func startExporter(e *env, reg *prometheus.Registry, db *sql.DB, addr string) (*server.Exporter, error) {
	cfg := server.DefaultConfig()
	cfg.Addr = addr
	if e.cfg.Metrics.TLSCertFile != "" {
		tlsCfg, err := tlsutil.ServerConfig(e.cfg.Metrics.TLSCertFile, e.cfg.Metrics.TLSKeyFile)
		if err != nil {
			return nil, err
		}
		cfg.TLS = tlsCfg
	}

	exporter := server.NewExporter(reg, db.PingContext, cfg, e.logger)
	if err := exporter.Start(); err != nil {
		return nil, err
	}
	return exporter, nil
}

// runStatus 列出状态看板上仍在发布的 watch 实例
func runStatus(ctx context.Context, args []string, out io.Writer) error {
	fs := flag.NewFlagSet("status", flag.ContinueOnError)
	fs.SetOutput(out)
	common := bindCommon(fs)
	if err := fs.Parse(args); err != nil {
		return errUsage
	}

	e, err := common.setup()
	if err != nil {
		return err
	}
	defer e.close()

	if !e.cfg.Status.Enabled {
		return fmt.Errorf("status board is not enabled (status.enabled)")
	}
	board, _, err := openBoard(ctx, e)
	if err != nil {
		return err
	}
	defer board.Close()

	snaps, err := board.List(ctx)
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "INSTANCE\tDRIVER\tALIVE\tOPEN\tIN_USE\tCHECKED_AT")
	for _, s := range snaps {
		fmt.Fprintf(w, "%s\t%s\t%v\t%d\t%d\t%s\n",
			s.Instance, s.Driver, s.Alive, s.OpenConnections, s.InUse, s.CheckedAt.Format(time.RFC3339))
	}
	return w.Flush()
}
