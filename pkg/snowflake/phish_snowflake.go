// Package snowflake generates time-ordered 64-bit ids for scan jobs.
//
// Layout: 41 bits of milliseconds since 2025-01-01 UTC, 10 bits of worker
// id, 12 bits of per-millisecond sequence.
package snowflake

import (
	"errors"
	"strconv"
	"sync"
	"time"
)

const (
	epoch int64 = 1735689600000 // 2025-01-01T00:00:00Z

	workerIDBits = 10
	sequenceBits = 12

	MaxWorkerID = (1 << workerIDBits) - 1
	maxSequence = (1 << sequenceBits) - 1

	timestampShift = workerIDBits + sequenceBits
	workerIDShift  = sequenceBits
)

var (
	ErrInvalidWorkerID = errors.New("worker ID must be between 0 and 1023")
	ErrClockMovedBack  = errors.New("clock moved backwards")
)

// ID is a snowflake id. It renders as a decimal string in JSON so that
// JavaScript clients do not lose precision.
type ID int64

func (id ID) String() string {
	return strconv.FormatInt(int64(id), 10)
}

// MarshalText implements encoding.TextMarshaler.
func (id ID) MarshalText() ([]byte, error) {
	return []byte(id.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (id *ID) UnmarshalText(b []byte) error {
	v, err := ParseString(string(b))
	if err != nil {
		return err
	}
	*id = v
	return nil
}

// ParseString parses the decimal form of an id.
func ParseString(s string) (ID, error) {
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil || v <= 0 {
		return 0, errors.New("snowflake: invalid id " + strconv.Quote(s))
	}
	return ID(v), nil
}

// Time returns the creation time encoded in id.
func (id ID) Time() time.Time {
	return time.UnixMilli((int64(id) >> timestampShift) + epoch).UTC()
}

// Worker returns the worker id encoded in id.
func (id ID) Worker() int64 {
	return (int64(id) >> workerIDShift) & MaxWorkerID
}

// Generator hands out unique ids for one worker.
type Generator struct {
	mu       sync.Mutex
	workerID int64
	sequence int64
	lastTime int64
	now      func() int64
}

// NewGenerator creates a generator. workerID must be in [0, 1023].
func NewGenerator(workerID int64) (*Generator, error) {
	if workerID < 0 || workerID > MaxWorkerID {
		return nil, ErrInvalidWorkerID
	}
	return &Generator{
		workerID: workerID,
		now:      func() int64 { return time.Now().UnixMilli() },
	}, nil
}

// Next returns a new id.
func (g *Generator) Next() (ID, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := g.now()
	if now < g.lastTime {
		return 0, ErrClockMovedBack
	}

	if now == g.lastTime {
		g.sequence = (g.sequence + 1) & maxSequence
		if g.sequence == 0 {
			for now <= g.lastTime {
				time.Sleep(100 * time.Microsecond)
				now = g.now()
			}
		}
	} else {
		g.sequence = 0
	}
	g.lastTime = now

	return ID(((now - epoch) << timestampShift) | (g.workerID << workerIDShift) | g.sequence), nil
}
