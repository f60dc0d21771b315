package api

//go:generate mockgen -destination=mock_api_server.go -package=api github.com/carverauto/faultradar/pkg/api Service

import (
	"context"

	"github.com/carverauto/faultradar/pkg/equipment"
	"github.com/carverauto/faultradar/pkg/models"
)

// Service represents the API server functionality.
type Service interface {
	Start(addr string) error
	Shutdown(ctx context.Context) error
	UpdateModel(model *equipment.Model, path string)
	SetModelHandler(handler func(path string) error)
	SetSourceHandler(handler func(name string) error)
	SetInjectHandler(handler func(req InjectRequest) error)
	SetStatusHandler(handler func() models.SourceStatus)
}
