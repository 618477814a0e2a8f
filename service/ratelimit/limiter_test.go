package ratelimit

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

func newLimiter(t *testing.T, cfg Config) (*Limiter, *fakeClock) {
	t.Helper()
	clk := &fakeClock{t: time.Unix(1_700_000_000, 0)}
	l, err := New(cfg, WithClock(clk.Now))
	require.NoError(t, err)
	return l, clk
}

func TestShouldEmit_Cooldown(t *testing.T) {
	l, clk := newLimiter(t, Config{Cooldown: 2 * time.Second})

	assert.True(t, l.ShouldEmit("u1", "channel:abc"))
	clk.Advance(500 * time.Millisecond)
	assert.False(t, l.ShouldEmit("u1", "channel:abc"))

	// 其他 room / 其他用户互不影响
	assert.True(t, l.ShouldEmit("u1", "channel:def"))
	assert.True(t, l.ShouldEmit("u2", "channel:abc"))

	clk.Advance(1600 * time.Millisecond)
	assert.True(t, l.ShouldEmit("u1", "channel:abc"))
}

func TestShouldEmit_SuppressedCallDoesNotExtendWindow(t *testing.T) {
	l, clk := newLimiter(t, Config{Cooldown: 2 * time.Second})

	require.True(t, l.ShouldEmit("u1", "r"))
	clk.Advance(1900 * time.Millisecond)
	require.False(t, l.ShouldEmit("u1", "r"))
	clk.Advance(200 * time.Millisecond)
	assert.True(t, l.ShouldEmit("u1", "r"))
}

func TestMemoryBounded(t *testing.T) {
	l, clk := newLimiter(t, Config{Cooldown: time.Second, Retention: 10 * time.Second, MaxEntries: 100, SweepThreshold: 50})

	for i := 0; i < 40; i++ {
		l.ShouldEmit(fmt.Sprintf("old-%d", i), "r")
	}
	clk.Advance(11 * time.Second)
	for i := 0; i < 20; i++ {
		l.ShouldEmit(fmt.Sprintf("new-%d", i), "r")
	}
	// 越过阈值时批量清理掉过期的 old-*
	assert.Equal(t, 20, l.Len())

	for i := 0; i < 500; i++ {
		l.ShouldEmit(fmt.Sprintf("burst-%d", i), "r")
	}
	assert.LessOrEqual(t, l.Len(), 100)
}

func TestSweep(t *testing.T) {
	var removed int
	clk := &fakeClock{t: time.Unix(0, 0)}
	l, err := New(Config{Retention: 5 * time.Second}, WithClock(clk.Now), WithSweepHook(func(n int) { removed += n }))
	require.NoError(t, err)

	l.ShouldEmit("a", "r")
	clk.Advance(3 * time.Second)
	l.ShouldEmit("b", "r")
	clk.Advance(3 * time.Second)

	assert.Equal(t, 1, l.Sweep())
	assert.Equal(t, 1, removed)
	assert.Equal(t, 1, l.Len())
}

func TestSetCooldown(t *testing.T) {
	l, clk := newLimiter(t, Config{Cooldown: 2 * time.Second})
	l.SetCooldown(5 * time.Second)
	assert.Equal(t, 5*time.Second, l.Cooldown())

	require.True(t, l.ShouldEmit("u", "r"))
	clk.Advance(3 * time.Second)
	assert.False(t, l.ShouldEmit("u", "r"))

	l.SetCooldown(0)
	assert.Equal(t, 5*time.Second, l.Cooldown())
}

func TestRun_StopsOnCancel(t *testing.T) {
	l, _ := newLimiter(t, Config{SweepInterval: time.Millisecond})
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- l.Run(ctx) }()
	time.Sleep(5 * time.Millisecond)
	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Run did not return")
	}
}

func TestSweep_RefreshedKeyOutlivesOlderOnes(t *testing.T) {
	l, clk := newLimiter(t, Config{Cooldown: time.Second, Retention: 5 * time.Second})

	l.ShouldEmit("a", "r")
	l.ShouldEmit("b", "r")
	clk.Advance(3 * time.Second)
	l.ShouldEmit("a", "r")
	clk.Advance(2500 * time.Millisecond)

	assert.Equal(t, 1, l.Sweep(), "only b is past retention")
	assert.Equal(t, 1, l.Len())
	assert.True(t, l.entries.Contains(key{identity: "a", room: "r"}))
}

func TestShouldEmit_AboveThresholdStaysCheap(t *testing.T) {
	const fresh = 50000
	l, _ := newLimiter(t, Config{Cooldown: time.Second, Retention: time.Minute, MaxEntries: 2 * fresh, SweepThreshold: 1000})
	for i := 0; i < fresh; i++ {
		l.ShouldEmit(fmt.Sprintf("u-%d", i), "r")
	}
	require.Equal(t, fresh, l.Len(), "nothing has expired yet")

	// 阈值以上每次都会触发清理；清理不能随条目总数线性增长
	start := time.Now()
	for i := 0; i < 10000; i++ {
		l.ShouldEmit(fmt.Sprintf("v-%d", i), "r")
	}
	assert.Less(t, time.Since(start), 2*time.Second)
	assert.Equal(t, fresh+10000, l.Len())
}
