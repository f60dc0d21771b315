package metrics

import (
	"sort"
	"sync"

	"github.com/carverauto/faultradar/pkg/models"
)

// Manager keeps one sample buffer per source name.
type Manager struct {
	sources    sync.Map // source name -> SampleStore
	bufferSize int
}

const defaultBufferSize = 256

// NewManager creates a manager whose per-source buffers retain
// bufferSize samples.
func NewManager(bufferSize int) *Manager {
	if bufferSize <= 0 {
		bufferSize = defaultBufferSize
	}

	return &Manager{bufferSize: bufferSize}
}

// AddSample records a poll sample under its source name.
func (m *Manager) AddSample(sample models.PollSample) {
	store, _ := m.sources.LoadOrStore(sample.Source, NewBuffer(m.bufferSize))
	store.(SampleStore).Add(sample)
}

// GetSamples returns the retained samples for source, newest first.
func (m *Manager) GetSamples(source string) []models.PollSample {
	store, ok := m.sources.Load(source)
	if !ok {
		return nil
	}

	return store.(SampleStore).GetSamples()
}

// ActiveSources lists the sources samples have been recorded for.
func (m *Manager) ActiveSources() []string {
	var names []string

	m.sources.Range(func(key, _ interface{}) bool {
		names = append(names, key.(string))
		return true
	})

	sort.Strings(names)

	return names
}
