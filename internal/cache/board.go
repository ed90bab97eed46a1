package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// =============================================================================
// 💾 会话状态看板
// =============================================================================

// ErrNotFound 实例没有可用快照（从未发布或已过期）
var ErrNotFound = errors.New("status snapshot not found")

// Snapshot 一个 watch 实例最近一次检查的结果
type Snapshot struct {
	Instance  string    `json:"instance"`
	Driver    string    `json:"driver"`
	Alive     bool      `json:"alive"`
	Error     string    `json:"error,omitempty"`
	CheckedAt time.Time `json:"checked_at"`

	OpenConnections int   `json:"open_connections"`
	Idle            int   `json:"idle"`
	InUse           int   `json:"in_use"`
	WaitCount       int64 `json:"wait_count"`
}

// Config 看板配置
type Config struct {
	// Redis 地址
	Addr string `yaml:"addr" json:"addr"`

	// 密码
	Password string `yaml:"password" json:"password"`

	// 数据库编号
	DB int `yaml:"db" json:"db"`

	// 键前缀
	KeyPrefix string `yaml:"key_prefix" json:"key_prefix"`

	// 快照存活时间；实例停止发布后自动消失
	TTL time.Duration `yaml:"ttl" json:"ttl"`

	// 最大重试次数
	MaxRetries int `yaml:"max_retries" json:"max_retries"`
}

// DefaultConfig 返回默认看板配置
func DefaultConfig() Config {
	return Config{
		Addr:       "localhost:6379",
		KeyPrefix:  "sessiondb:status:",
		TTL:        time.Minute,
		MaxRetries: 3,
	}
}

// Board 把会话健康快照发布到 Redis，供其他实例或运维脚本读取
type Board struct {
	redis  *redis.Client
	config Config
	logger *zap.Logger
	mu     sync.RWMutex
	closed bool
}

// NewBoard 连接 Redis 并创建看板
func NewBoard(ctx context.Context, config Config, logger *zap.Logger) (*Board, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if config.KeyPrefix == "" {
		config.KeyPrefix = DefaultConfig().KeyPrefix
	}
	if config.TTL <= 0 {
		config.TTL = DefaultConfig().TTL
	}

	client := redis.NewClient(&redis.Options{
		Addr:       config.Addr,
		Password:   config.Password,
		DB:         config.DB,
		MaxRetries: config.MaxRetries,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	logger.Info("status board initialized",
		zap.String("addr", config.Addr),
		zap.String("prefix", config.KeyPrefix),
	)

	return &Board{
		redis:  client,
		config: config,
		logger: logger.With(zap.String("component", "status_board")),
	}, nil
}

func (b *Board) key(instance string) string {
	return b.config.KeyPrefix + instance
}

func (b *Board) check() error {
	if b.closed {
		return fmt.Errorf("status board is closed")
	}
	return nil
}

// =============================================================================
// 🎯 核心方法
// =============================================================================

// Publish 写入快照并刷新 TTL
func (b *Board) Publish(ctx context.Context, snap Snapshot) error {
	if snap.Instance == "" {
		return fmt.Errorf("snapshot instance is required")
	}

	b.mu.RLock()
	defer b.mu.RUnlock()
	if err := b.check(); err != nil {
		return err
	}

	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("failed to marshal snapshot: %w", err)
	}
	if err := b.redis.Set(ctx, b.key(snap.Instance), data, b.config.TTL).Err(); err != nil {
		b.logger.Error("publish failed", zap.String("instance", snap.Instance), zap.Error(err))
		return fmt.Errorf("status publish failed: %w", err)
	}
	return nil
}

// Latest 读取某实例的最新快照
func (b *Board) Latest(ctx context.Context, instance string) (Snapshot, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if err := b.check(); err != nil {
		return Snapshot{}, err
	}

	val, err := b.redis.Get(ctx, b.key(instance)).Bytes()
	if errors.Is(err, redis.Nil) {
		return Snapshot{}, ErrNotFound
	}
	if err != nil {
		return Snapshot{}, fmt.Errorf("status read failed: %w", err)
	}

	var snap Snapshot
	if err := json.Unmarshal(val, &snap); err != nil {
		return Snapshot{}, fmt.Errorf("failed to unmarshal snapshot: %w", err)
	}
	return snap, nil
}

// List 返回所有未过期的快照，按实例名排序
func (b *Board) List(ctx context.Context) ([]Snapshot, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if err := b.check(); err != nil {
		return nil, err
	}

	var keys []string
	iter := b.redis.Scan(ctx, 0, b.config.KeyPrefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("status scan failed: %w", err)
	}
	if len(keys) == 0 {
		return nil, nil
	}

	vals, err := b.redis.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("status read failed: %w", err)
	}

	out := make([]Snapshot, 0, len(vals))
	for i, v := range vals {
		s, ok := v.(string)
		if !ok {
			// 扫描与读取之间过期
			continue
		}
		var snap Snapshot
		if err := json.Unmarshal([]byte(s), &snap); err != nil {
			b.logger.Warn("skipping malformed snapshot", zap.String("key", keys[i]), zap.Error(err))
			continue
		}
		out = append(out, snap)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Instance < out[j].Instance })
	return out, nil
}

// Remove 删除实例快照，实例正常退出时调用
func (b *Board) Remove(ctx context.Context, instance string) error {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if err := b.check(); err != nil {
		return err
	}
	if err := b.redis.Del(ctx, b.key(instance)).Err(); err != nil {
		return fmt.Errorf("status delete failed: %w", err)
	}
	return nil
}

// Ping 检查 Redis 连接
func (b *Board) Ping(ctx context.Context) error {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if err := b.check(); err != nil {
		return err
	}
	return b.redis.Ping(ctx).Err()
}

// Close 关闭看板
func (b *Board) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil
	}
	b.closed = true
	return b.redis.Close()
}

// InstanceName 组合主机名与进程号，作为默认实例名
func InstanceName(host string, pid int) string {
	host = strings.TrimSpace(host)
	if host == "" {
		host = "unknown"
	}
	return fmt.Sprintf("%s-%d", host, pid)
}
