package ratelimit

import (
	"context"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"go.uber.org/zap"
)

// Config 冷却窗口与内存上限
type Config struct {
	Cooldown       time.Duration `yaml:"cooldown"`       // 同一 (user, room) 两次信号的最小间隔，默认 2s
	Retention      time.Duration `yaml:"retention"`      // 超过此时长的记录可清理，默认 1m
	MaxEntries     int           `yaml:"maxEntries"`     // LRU 容量，默认 10000
	SweepThreshold int           `yaml:"sweepThreshold"` // 超过该数量时顺带批量清理，默认 MaxEntries/2
	SweepInterval  time.Duration `yaml:"sweepInterval"`  // Run 的周期，默认 30s
}

func (c *Config) setDefaults() {
	if c.Cooldown <= 0 {
		c.Cooldown = 2 * time.Second
	}
	if c.Retention <= 0 {
		c.Retention = time.Minute
	}
	if c.Retention < c.Cooldown {
		c.Retention = c.Cooldown
	}
	if c.MaxEntries <= 0 {
		c.MaxEntries = 10000
	}
	if c.SweepThreshold <= 0 || c.SweepThreshold > c.MaxEntries {
		c.SweepThreshold = c.MaxEntries / 2
	}
	if c.SweepThreshold < 1 {
		c.SweepThreshold = 1
	}
	if c.SweepInterval <= 0 {
		c.SweepInterval = 30 * time.Second
	}
}

type key struct {
	identity string
	room     string
}

// Limiter typing 这类信号的进程内节流，不做跨实例协调
type Limiter struct {
	mu      sync.Mutex
	cfg     Config
	entries *lru.Cache[key, time.Time]
	now     func() time.Time
	log     *zap.Logger
	onSweep func(removed int)
}

type Option func(*Limiter)

func WithClock(now func() time.Time) Option { return func(l *Limiter) { l.now = now } }

func WithLogger(log *zap.Logger) Option { return func(l *Limiter) { l.log = log } }

// WithSweepHook 每次批量清理后回调（指标用）
func WithSweepHook(f func(removed int)) Option { return func(l *Limiter) { l.onSweep = f } }

func New(cfg Config, opts ...Option) (*Limiter, error) {
	cfg.setDefaults()
	cache, err := lru.New[key, time.Time](cfg.MaxEntries)
	if err != nil {
		return nil, err
	}
	l := &Limiter{cfg: cfg, entries: cache, now: time.Now, log: zap.NewNop()}
	for _, o := range opts {
		o(l)
	}
	return l, nil
}

// ShouldEmit 窗口内重复返回 false 且不刷新时间戳
func (l *Limiter) ShouldEmit(identityID, roomID string) bool {
	k := key{identity: identityID, room: roomID}

	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	if last, ok := l.entries.Peek(k); ok && now.Sub(last) < l.cfg.Cooldown {
		return false
	}
	l.entries.Add(k, now)
	if l.entries.Len() > l.cfg.SweepThreshold {
		l.sweepLocked(now)
	}
	return true
}

// Sweep 清理超过 Retention 的记录，返回清理数量
func (l *Limiter) Sweep() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.sweepLocked(l.now())
}

func (l *Limiter) sweepLocked(now time.Time) int {
	removed := 0
	// LRU 最旧的一条时间戳也最早，遇到未过期的即停止，只触及过期条目
	for {
		k, last, ok := l.entries.GetOldest()
		if !ok || now.Sub(last) < l.cfg.Retention {
			break
		}
		l.entries.Remove(k)
		removed++
	}
	if removed > 0 {
		l.log.Debug("ratelimit sweep", zap.Int("removed", removed), zap.Int("left", l.entries.Len()))
		if l.onSweep != nil {
			l.onSweep(removed)
		}
	}
	return removed
}

func (l *Limiter) Len() int {
	return l.entries.Len()
}

// SetCooldown 热更新冷却窗口（配置中心推送）
func (l *Limiter) SetCooldown(d time.Duration) {
	if d <= 0 {
		return
	}
	l.mu.Lock()
	l.cfg.Cooldown = d
	if l.cfg.Retention < d {
		l.cfg.Retention = d
	}
	l.mu.Unlock()
	l.log.Info("ratelimit cooldown updated", zap.Duration("cooldown", d))
}

func (l *Limiter) Cooldown() time.Duration {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.cfg.Cooldown
}

// Run 周期清理，直到 ctx 结束
func (l *Limiter) Run(ctx context.Context) error {
	t := time.NewTicker(l.cfg.SweepInterval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-t.C:
			l.Sweep()
		}
	}
}
