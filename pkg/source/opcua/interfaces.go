package opcua

//go:generate mockgen -destination=mock_client.go -package=opcua github.com/carverauto/faultradar/pkg/source/opcua Client

import (
	"context"

	"github.com/gopcua/opcua/ua"
)

// Client is the slice of the OPC UA client API the source uses.
// *opcua.Client from gopcua satisfies it.
type Client interface {
	Connect(ctx context.Context) error
	Read(ctx context.Context, req *ua.ReadRequest) (*ua.ReadResponse, error)
	Close(ctx context.Context) error
}
