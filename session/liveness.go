package session

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/sessiondb/driver"
)

// =============================================================================
// 💓 存活状态
// =============================================================================

// Liveness 连接与其所有语句共享的存活观测单元
type Liveness struct {
	known      bool
	alive      bool
	observedAt time.Time
}

// Observe 记录一次观测结果
func (l *Liveness) Observe(alive bool, at time.Time) {
	l.known = true
	l.alive = alive
	l.observedAt = at
}

// Reset 清空为“未知”
func (l *Liveness) Reset() {
	*l = Liveness{}
}

// Last 返回最近一次观测；从未观测或已清空时 ok 为 false
func (l *Liveness) Last() (alive bool, at time.Time, ok bool) {
	return l.alive, l.observedAt, l.known
}

// Fresh 观测时间距 now 小于 maxAge 时返回缓存结果
func (l *Liveness) Fresh(now time.Time, maxAge time.Duration) (alive bool, ok bool) {
	if !l.known || maxAge <= 0 {
		return false, false
	}
	if now.Sub(l.observedAt) >= maxAge {
		return false, false
	}
	return l.alive, true
}

// =============================================================================
// 🔍 存活探测
// =============================================================================

// DefaultProbeQueries 与厂商无关的空操作探测语句，按顺序尝试
func DefaultProbeQueries() []string {
	return []string{
		"SELECT 1",
		"SELECT 1 FROM DUAL",
		"SELECT 1 FROM SYSIBM.SYSDUMMY1",
		"SELECT 1 FROM RDB$DATABASE",
		"VALUES 1",
		"SELECT 1 FROM INFORMATION_SCHEMA.SYSTEM_USERS",
	}
}

// prober 记住第一条能执行的探测语句。下标只在成功时写入，按连接实例隔离。
type prober struct {
	queries []string
	known   int
	valid   bool
}

func newProber(queries []string) *prober {
	return &prober{queries: queries}
}

// probe 对句柄执行探测；所有语句都失败时返回 false，不清除已知下标
func (p *prober) probe(ctx context.Context, h driver.Conn, logger *zap.Logger) bool {
	if p.valid {
		return p.try(ctx, h, p.known, logger)
	}
	for i := range p.queries {
		if p.try(ctx, h, i, logger) {
			p.known = i
			p.valid = true
			return true
		}
	}
	return false
}

func (p *prober) try(ctx context.Context, h driver.Conn, idx int, logger *zap.Logger) bool {
	q := p.queries[idx]
	st, err := h.Query(ctx, q, driver.StatementOptions{Kind: driver.KindQuery})
	if err != nil {
		logger.Debug("probe query failed", zap.String("query", q), zap.Error(err))
		return false
	}
	if err := st.Close(); err != nil {
		logger.Debug("closing probe statement failed", zap.Error(err))
	}
	return true
}
