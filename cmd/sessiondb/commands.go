package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/BaSui01/sessiondb"
	"github.com/BaSui01/sessiondb/session"
)

// =============================================================================
// 🏓 ping / exec / query
// =============================================================================

func runPing(ctx context.Context, args []string, out io.Writer) error {
	fs := flag.NewFlagSet("ping", flag.ContinueOnError)
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

	start := time.Now()
	conn, err := sessiondb.Open(ctx, e.cfg, e.logger, e.telemetry.SessionOptions()...)
	if err != nil {
		return fmt.Errorf("connect: %w", err)
	}
	defer conn.Close()

	alive, err := conn.IsAlive(ctx, 0)
	if err != nil {
		return err
	}
	if !alive {
		return errors.New("database is not alive")
	}
	fmt.Fprintf(out, "OK %s (%s)\n", e.cfg.Database.Driver, time.Since(start).Round(time.Millisecond))
	return nil
}

// sqlArg 把剩余参数拼成一条语句
func sqlArg(fs *flag.FlagSet) (string, error) {
	query := strings.TrimSpace(strings.Join(fs.Args(), " "))
	if query == "" {
		return "", fmt.Errorf("%s: SQL statement is required", fs.Name())
	}
	return query, nil
}

func runExec(ctx context.Context, args []string, out io.Writer) error {
	fs := flag.NewFlagSet("exec", flag.ContinueOnError)
	fs.SetOutput(out)
	common := bindCommon(fs)
	if err := fs.Parse(args); err != nil {
		return errUsage
	}
	query, err := sqlArg(fs)
	if err != nil {
		return err
	}

	e, err := common.setup()
	if err != nil {
		return err
	}
	defer e.close()

	conn, err := sessiondb.Open(ctx, e.cfg, e.logger, e.telemetry.SessionOptions()...)
	if err != nil {
		return fmt.Errorf("connect: %w", err)
	}
	defer conn.Close()

	n, err := conn.Exec(ctx, query)
	if err != nil {
		return fmt.Errorf("exec failed [%s]: %w", conn.ErrorCode(), err)
	}
	fmt.Fprintf(out, "%d row(s) affected\n", n)
	return nil
}

func runQuery(ctx context.Context, args []string, out io.Writer) error {
	fs := flag.NewFlagSet("query", flag.ContinueOnError)
	fs.SetOutput(out)
	common := bindCommon(fs)
	if err := fs.Parse(args); err != nil {
		return errUsage
	}
	query, err := sqlArg(fs)
	if err != nil {
		return err
	}

	e, err := common.setup()
	if err != nil {
		return err
	}
	defer e.close()

	conn, err := sessiondb.Open(ctx, e.cfg, e.logger, e.telemetry.SessionOptions()...)
	if err != nil {
		return fmt.Errorf("connect: %w", err)
	}
	defer conn.Close()

	st, err := conn.Query(ctx, query)
	if err != nil {
		return fmt.Errorf("query failed [%s]: %w", conn.ErrorCode(), err)
	}
	defer st.Close()

	cols, err := columnNames(ctx, st)
	if err != nil {
		return err
	}
	rows, err := st.FetchAll(ctx)
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, strings.Join(cols, "\t"))
	for _, row := range rows {
		cells := make([]string, len(row.Values))
		for i, v := range row.Values {
			cells[i] = formatValue(v)
		}
		fmt.Fprintln(w, strings.Join(cells, "\t"))
	}
	if err := w.Flush(); err != nil {
		return err
	}
	fmt.Fprintf(out, "(%d row(s))\n", len(rows))
	return nil
}

func columnNames(ctx context.Context, st *session.Stmt) ([]string, error) {
	n, err := st.ColumnCount(ctx)
	if err != nil {
		return nil, err
	}
	cols := make([]string, n)
	for i := range cols {
		meta, err := st.ColumnMeta(ctx, i)
		if err != nil {
			return nil, err
		}
		cols[i] = meta.Name
	}
	return cols, nil
}

func formatValue(v any) string {
	switch x := v.(type) {
	case nil:
		return "NULL"
	case []byte:
		return string(x)
	case time.Time:
		return x.Format(time.RFC3339)
	default:
		return fmt.Sprint(x)
	}
}

// =============================================================================
// 🔍 probe：多会话并发探测
// =============================================================================

// probeResult 单个会话的探测汇总
type probeResult struct {
	id         string
	alive      int
	dead       int
	generation uint64
}

func runProbe(ctx context.Context, args []string, out io.Writer) error {
	fs := flag.NewFlagSet("probe", flag.ContinueOnError)
	fs.SetOutput(out)
	common := bindCommon(fs)
	sessions := fs.Int("sessions", 4, "Number of concurrent sessions")
	rounds := fs.Int("rounds", 3, "Liveness checks per session")
	interval := fs.Duration("interval", 0, "Pause between rounds")
	reconnect := fs.Bool("reconnect", false, "Reconnect before every round after the first")
	if err := fs.Parse(args); err != nil {
		return errUsage
	}
	if *sessions <= 0 || *rounds <= 0 {
		return fmt.Errorf("probe: sessions and rounds must be positive")
	}

	e, err := common.setup()
	if err != nil {
		return err
	}
	defer e.close()

	results := make([]probeResult, *sessions)
	g, gctx := errgroup.WithContext(ctx)
	for i := range results {
		g.Go(func() error {
			res, err := probeSession(gctx, e, *rounds, *interval, *reconnect)
			if err != nil {
				return fmt.Errorf("session %d: %w", i, err)
			}
			results[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "SESSION\tALIVE\tDEAD\tGENERATION")
	var dead int
	for _, r := range results {
		fmt.Fprintf(w, "%s\t%d\t%d\t%d\n", r.id, r.alive, r.dead, r.generation)
		dead += r.dead
	}
	if err := w.Flush(); err != nil {
		return err
	}
	if dead > 0 {
		return fmt.Errorf("%d liveness check(s) failed", dead)
	}
	return nil
}

func probeSession(ctx context.Context, e *env, rounds int, interval time.Duration, reconnect bool) (probeResult, error) {
	conn, err := sessiondb.Open(ctx, e.cfg, e.logger, e.telemetry.SessionOptions()...)
	if err != nil {
		return probeResult{}, err
	}
	defer conn.Close()

	res := probeResult{id: conn.ID()}
	for r := 0; r < rounds; r++ {
		if r > 0 {
			if interval > 0 {
				select {
				case <-ctx.Done():
					return res, ctx.Err()
				case <-time.After(interval):
				}
			}
			if reconnect {
				if err := conn.Reconnect(ctx); err != nil {
					return res, err
				}
			}
		}

		alive, err := conn.IsAlive(ctx, e.cfg.Session.AliveCache)
		if err != nil {
			return res, err
		}
		if alive {
			res.alive++
		} else {
			res.dead++
		}
	}
	res.generation = conn.Stats().Generation
	e.logger.Debug("session probed",
		zap.String("session", res.id),
		zap.Int("alive", res.alive),
		zap.Uint64("generation", res.generation),
	)
	return res, nil
}
