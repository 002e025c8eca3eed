// Package admission gates entry to the memory-heavy anonymization stage:
// a minimum spacing between starts and a free-memory threshold.
package admission

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/dmitrijs2005/geoupload/internal/common"
	"github.com/dmitrijs2005/geoupload/internal/logging"
	"github.com/shirou/gopsutil/v4/mem"
)

// MemorySampler reports currently available memory in bytes.
type MemorySampler func(ctx context.Context) (uint64, error)

// SystemMemory reads available memory from the OS.
func SystemMemory(ctx context.Context) (uint64, error) {
	vm, err := mem.VirtualMemoryWithContext(ctx)
	if err != nil {
		return 0, err
	}
	return vm.Available, nil
}

// RateGate lets at most one caller start per interval.
type RateGate struct {
	mu       sync.Mutex
	interval time.Duration
	last     time.Time
	now      func() time.Time
}

func NewRateGate(interval time.Duration) *RateGate {
	return &RateGate{interval: interval, now: time.Now}
}

// Wait blocks until interval has passed since the previous grant and then
// records the caller's own start. The lock is held while sleeping so grants
// are strictly spaced.
func (g *RateGate) Wait(ctx context.Context) (time.Duration, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	var waited time.Duration
	if !g.last.IsZero() {
		if d := g.interval - g.now().Sub(g.last); d > 0 {
			t := time.NewTimer(d)
			select {
			case <-ctx.Done():
				t.Stop()
				return 0, ctx.Err()
			case <-t.C:
			}
			waited = d
		}
	}
	g.last = g.now()
	return waited, nil
}

type MemoryGateConfig struct {
	RequiredMB    int
	CheckInterval time.Duration
	Timeout       time.Duration
}

// MemoryGate waits for enough free memory.
type MemoryGate struct {
	cfg    MemoryGateConfig
	sample MemorySampler
	log    logging.Logger
}

func NewMemoryGate(cfg MemoryGateConfig, sample MemorySampler, log logging.Logger) *MemoryGate {
	if cfg.CheckInterval <= 0 {
		cfg.CheckInterval = time.Second
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if sample == nil {
		sample = SystemMemory
	}
	return &MemoryGate{cfg: cfg, sample: sample, log: log}
}

// Wait samples memory until RequiredMB is available, or returns
// common.ErrMemoryTimeout once Timeout has elapsed.
func (g *MemoryGate) Wait(ctx context.Context) error {
	if g.cfg.RequiredMB <= 0 {
		return nil
	}
	required := uint64(g.cfg.RequiredMB) * 1024 * 1024
	deadline := time.NewTimer(g.cfg.Timeout)
	defer deadline.Stop()
	ticker := time.NewTicker(g.cfg.CheckInterval)
	defer ticker.Stop()

	for {
		avail, err := g.sample(ctx)
		if err != nil {
			return fmt.Errorf("read memory: %w", err)
		}
		if avail >= required {
			return nil
		}
		g.log.Debug(ctx, "waiting for free memory",
			"available_mb", avail/(1024*1024), "required_mb", g.cfg.RequiredMB)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-deadline.C:
			return fmt.Errorf("%w: %d MB required", common.ErrMemoryTimeout, g.cfg.RequiredMB)
		case <-ticker.C:
		}
	}
}

// Gate combines the memory gate and the rate gate. Process-local, no fairness.
type Gate struct {
	memory *MemoryGate
	rate   *RateGate
}

func NewGate(memory *MemoryGate, rate *RateGate) *Gate {
	return &Gate{memory: memory, rate: rate}
}

// Admit runs the memory gate, then the rate gate. It returns the time spent
// waiting.
func (g *Gate) Admit(ctx context.Context) (time.Duration, error) {
	start := time.Now()
	if err := g.memory.Wait(ctx); err != nil {
		return time.Since(start), err
	}
	if _, err := g.rate.Wait(ctx); err != nil {
		return time.Since(start), err
	}
	return time.Since(start), nil
}
