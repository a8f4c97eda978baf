package worker

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"phish_server/core/domain"
	"phish_server/pkg/snowflake"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeScans struct {
	mu       sync.Mutex
	calls    map[snowflake.ID]int
	failures map[snowflake.ID]int
}

func newFakeScans() *fakeScans {
	return &fakeScans{calls: map[snowflake.ID]int{}, failures: map[snowflake.ID]int{}}
}

func (f *fakeScans) Create(context.Context, []string) (*domain.ScanJob, error) {
	return nil, errors.New("unused")
}

func (f *fakeScans) Get(context.Context, snowflake.ID) (*domain.ScanJob, error) {
	return nil, errors.New("unused")
}

func (f *fakeScans) Process(_ context.Context, id snowflake.ID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[id]++
	if f.failures[id] > 0 {
		f.failures[id]--
		return errors.New("database unavailable")
	}
	return nil
}

func (f *fakeScans) count(id snowflake.ID) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[id]
}

type fakeAcker struct {
	mu    sync.Mutex
	acked []string
}

func (a *fakeAcker) Ack(_ context.Context, id string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.acked = append(a.acked, id)
	return nil
}

func (a *fakeAcker) ids() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]string(nil), a.acked...)
}

func testPoolConfig() PoolConfig {
	return PoolConfig{
		Workers:    2,
		QueueSize:  8,
		JobTimeout: time.Second,
		MaxRetries: 2,
		RetryBase:  time.Millisecond,
	}
}

func TestPool_ProcessesAndAcks(t *testing.T) {
	scans := newFakeScans()
	acker := &fakeAcker{}
	p := NewPool(scans, acker, testPoolConfig())
	require.NoError(t, p.Start(context.Background()))

	for i := 1; i <= 5; i++ {
		d := &Delivery{StreamID: string(rune('a' + i)), Scan: ScanMessage{ScanID: snowflake.ID(i)}}
		require.NoError(t, p.Submit(context.Background(), d))
	}
	p.Stop(context.Background())

	assert.Len(t, acker.ids(), 5)
	stats := p.Stats()
	assert.Equal(t, int64(5), stats.Processed)
	assert.Zero(t, stats.Failed)
	assert.Zero(t, stats.Queued)
}

func TestPool_RetriesThenSucceeds(t *testing.T) {
	scans := newFakeScans()
	scans.failures[7] = 1
	acker := &fakeAcker{}
	p := NewPool(scans, acker, testPoolConfig())
	require.NoError(t, p.Start(context.Background()))

	require.NoError(t, p.Submit(context.Background(), &Delivery{StreamID: "1-0", Scan: ScanMessage{ScanID: 7}}))

	assert.Eventually(t, func() bool { return len(acker.ids()) == 1 }, 2*time.Second, 5*time.Millisecond)
	p.Stop(context.Background())

	assert.Equal(t, 2, scans.count(7))
	stats := p.Stats()
	assert.Equal(t, int64(1), stats.Retried)
	assert.Equal(t, int64(1), stats.Processed)
}

func TestPool_DeadLettersAfterMaxRetries(t *testing.T) {
	scans := newFakeScans()
	scans.failures[9] = 100
	acker := &fakeAcker{}
	p := NewPool(scans, acker, testPoolConfig())
	require.NoError(t, p.Start(context.Background()))

	require.NoError(t, p.Submit(context.Background(), &Delivery{StreamID: "2-0", Scan: ScanMessage{ScanID: 9}}))

	assert.Eventually(t, func() bool { return p.Stats().Dead == 1 }, 2*time.Second, 5*time.Millisecond)
	p.Stop(context.Background())

	assert.Equal(t, 3, scans.count(9))
	assert.Equal(t, []string{"2-0"}, acker.ids())
}

func TestPool_SubmitAfterStop(t *testing.T) {
	p := NewPool(newFakeScans(), nil, testPoolConfig())
	err := p.Submit(context.Background(), &Delivery{})
	assert.ErrorIs(t, err, ErrPoolStopped)

	require.NoError(t, p.Start(context.Background()))
	p.Stop(context.Background())
	err = p.Submit(context.Background(), &Delivery{})
	assert.ErrorIs(t, err, ErrPoolStopped)
}
