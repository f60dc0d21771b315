package metrics

import (
	"sync/atomic"
	"time"

	"github.com/carverauto/faultradar/pkg/models"
)

// pollPoint is the packed in-buffer representation of one poll cycle.
type pollPoint struct {
	timestamp int64
	duration  int64
	source    string
	events    int32
	failed    bool
}

// LockFreeRingBuffer is a lock-free ring buffer of poll samples.
type LockFreeRingBuffer struct {
	points []pollPoint
	pos    int64 // Atomic position counter
	size   int64
}

// NewBuffer creates a new SampleStore.
func NewBuffer(size int) SampleStore {
	return NewLockFreeBuffer(size)
}

// NewLockFreeBuffer creates a new LockFreeRingBuffer with the specified size.
func NewLockFreeBuffer(size int) SampleStore {
	return &LockFreeRingBuffer{
		points: make([]pollPoint, size),
		size:   int64(size),
	}
}

// Add records one poll cycle in the buffer.
func (b *LockFreeRingBuffer) Add(sample models.PollSample) {
	// Atomically increment the position and get the index
	pos := atomic.AddInt64(&b.pos, 1) - 1
	idx := pos % b.size

	b.points[idx] = pollPoint{
		timestamp: sample.Timestamp.UnixNano(),
		duration:  int64(sample.Duration),
		source:    sample.Source,
		events:    int32(sample.Events),
		failed:    sample.Failed,
	}
}

// GetSamples retrieves the recorded samples, newest first.
func (b *LockFreeRingBuffer) GetSamples() []models.PollSample {
	// Load the current position atomically
	pos := atomic.LoadInt64(&b.pos)

	count := b.size
	if pos < count {
		count = pos
	}

	samples := make([]models.PollSample, count)

	for i := int64(0); i < count; i++ {
		idx := (pos - i - 1 + b.size) % b.size
		p := b.points[idx]

		samples[i] = models.PollSample{
			Timestamp: time.Unix(0, p.timestamp),
			Duration:  time.Duration(p.duration),
			Source:    p.source,
			Events:    int(p.events),
			Failed:    p.failed,
		}
	}

	return samples
}

// GetLastSample returns the most recent sample, or nil when empty.
func (b *LockFreeRingBuffer) GetLastSample() *models.PollSample {
	samples := b.GetSamples()
	if len(samples) == 0 {
		return nil
	}

	return &samples[0]
}
