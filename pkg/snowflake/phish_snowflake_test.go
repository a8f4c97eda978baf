package snowflake

import (
	"sync"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewGenerator(t *testing.T) {
	tests := []struct {
		name     string
		workerID int64
		wantErr  bool
	}{
		{"valid worker 0", 0, false},
		{"valid worker max", 1023, false},
		{"invalid worker -1", -1, true},
		{"invalid worker 1024", 1024, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewGenerator(tt.workerID)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidWorkerID)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestNext_UniqueAndOrdered(t *testing.T) {
	gen, err := NewGenerator(7)
	require.NoError(t, err)

	var last ID
	for i := 0; i < 10000; i++ {
		id, err := gen.Next()
		require.NoError(t, err)
		require.Greater(t, id, last)
		last = id
	}
	assert.Equal(t, int64(7), last.Worker())
}

func TestNext_Concurrent(t *testing.T) {
	gen, err := NewGenerator(1)
	require.NoError(t, err)

	var (
		wg  sync.WaitGroup
		ids sync.Map
	)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 1000; j++ {
				id, err := gen.Next()
				if !assert.NoError(t, err) {
					return
				}
				_, dup := ids.LoadOrStore(id, true)
				assert.False(t, dup, "duplicate id %d", id)
			}
		}()
	}
	wg.Wait()
}

func TestNext_ClockMovedBack(t *testing.T) {
	gen, err := NewGenerator(1)
	require.NoError(t, err)

	clock := epoch + 10_000
	gen.now = func() int64 { return clock }
	_, err = gen.Next()
	require.NoError(t, err)

	clock -= 5
	_, err = gen.Next()
	assert.ErrorIs(t, err, ErrClockMovedBack)
}

func TestID_TimeAndJSON(t *testing.T) {
	gen, err := NewGenerator(3)
	require.NoError(t, err)

	before := time.Now().Add(-time.Second)
	id, err := gen.Next()
	require.NoError(t, err)
	assert.True(t, id.Time().After(before))

	data, err := json.Marshal(struct {
		ID ID `json:"id"`
	}{id})
	require.NoError(t, err)
	assert.JSONEq(t, `{"id":"`+id.String()+`"}`, string(data))

	parsed, err := ParseString(id.String())
	require.NoError(t, err)
	assert.Equal(t, id, parsed)

	_, err = ParseString("abc")
	assert.Error(t, err)
	_, err = ParseString("-4")
	assert.Error(t, err)
}
