package metrics

import (
	"github.com/carverauto/faultradar/pkg/models"
)

//go:generate mockgen -destination=mock_metrics.go -package=metrics github.com/carverauto/faultradar/pkg/metrics SampleStore,SampleCollector

// SampleStore holds poll samples for one source.
type SampleStore interface {
	Add(sample models.PollSample)
	GetSamples() []models.PollSample
	GetLastSample() *models.PollSample
}

// SampleCollector aggregates poll samples across sources.
type SampleCollector interface {
	AddSample(sample models.PollSample)
	GetSamples(source string) []models.PollSample
	ActiveSources() []string
}
