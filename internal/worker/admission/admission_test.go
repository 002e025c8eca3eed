package admission

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/dmitrijs2005/geoupload/internal/common"
	"github.com/dmitrijs2005/geoupload/internal/logging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const mb = 1024 * 1024

func TestRateGate_SpacesGrants(t *testing.T) {
	g := NewRateGate(50 * time.Millisecond)
	ctx := context.Background()

	var (
		mu     sync.Mutex
		grants []time.Time
		wg     sync.WaitGroup
	)
	for i := 0; i < 3; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := g.Wait(ctx)
			assert.NoError(t, err)
			mu.Lock()
			grants = append(grants, time.Now())
			mu.Unlock()
		}()
	}
	wg.Wait()

	require.Len(t, grants, 3)
	first, last := grants[0], grants[0]
	for _, g := range grants {
		if g.Before(first) {
			first = g
		}
		if g.After(last) {
			last = g
		}
	}
	assert.GreaterOrEqual(t, last.Sub(first), 95*time.Millisecond)
}

func TestRateGate_FirstCallDoesNotWait(t *testing.T) {
	g := NewRateGate(time.Hour)
	waited, err := g.Wait(context.Background())
	require.NoError(t, err)
	assert.Zero(t, waited)
}

func TestRateGate_Cancelled(t *testing.T) {
	g := NewRateGate(time.Hour)
	_, err := g.Wait(context.Background())
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = g.Wait(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestMemoryGate_ImmediatelyAvailable(t *testing.T) {
	sample := func(context.Context) (uint64, error) { return 1024 * mb, nil }
	g := NewMemoryGate(MemoryGateConfig{RequiredMB: 500}, sample, logging.Discard())
	require.NoError(t, g.Wait(context.Background()))
}

func TestMemoryGate_WaitsUntilFree(t *testing.T) {
	var calls atomic.Int32
	sample := func(context.Context) (uint64, error) {
		if calls.Add(1) < 3 {
			return 100 * mb, nil
		}
		return 600 * mb, nil
	}
	g := NewMemoryGate(MemoryGateConfig{RequiredMB: 500, CheckInterval: 5 * time.Millisecond, Timeout: time.Second}, sample, logging.Discard())
	require.NoError(t, g.Wait(context.Background()))
	assert.Equal(t, int32(3), calls.Load())
}

func TestMemoryGate_Timeout(t *testing.T) {
	sample := func(context.Context) (uint64, error) { return 0, nil }
	g := NewMemoryGate(MemoryGateConfig{RequiredMB: 1, CheckInterval: 5 * time.Millisecond, Timeout: 30 * time.Millisecond}, sample, logging.Discard())
	err := g.Wait(context.Background())
	assert.ErrorIs(t, err, common.ErrMemoryTimeout)
}

func TestMemoryGate_SamplerError(t *testing.T) {
	sample := func(context.Context) (uint64, error) { return 0, errors.New("no /proc") }
	g := NewMemoryGate(MemoryGateConfig{RequiredMB: 1}, sample, logging.Discard())
	assert.ErrorContains(t, g.Wait(context.Background()), "no /proc")
}

func TestMemoryGate_Disabled(t *testing.T) {
	sample := func(context.Context) (uint64, error) { t.Fatal("sample must not be called"); return 0, nil }
	g := NewMemoryGate(MemoryGateConfig{RequiredMB: 0}, sample, logging.Discard())
	require.NoError(t, g.Wait(context.Background()))
}

func TestGate_Admit(t *testing.T) {
	sample := func(context.Context) (uint64, error) { return 0, nil }
	mem := NewMemoryGate(MemoryGateConfig{RequiredMB: 1, CheckInterval: time.Millisecond, Timeout: 10 * time.Millisecond}, sample, logging.Discard())
	g := NewGate(mem, NewRateGate(0))

	_, err := g.Admit(context.Background())
	require.ErrorIs(t, err, common.ErrMemoryTimeout)

	ok := NewGate(NewMemoryGate(MemoryGateConfig{}, sample, logging.Discard()), NewRateGate(0))
	_, err = ok.Admit(context.Background())
	require.NoError(t, err)
}

func TestSystemMemory(t *testing.T) {
	avail, err := SystemMemory(context.Background())
	if err != nil {
		t.Skipf("memory stats unavailable: %v", err)
	}
	assert.Positive(t, avail)
}
