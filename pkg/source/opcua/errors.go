package opcua

import "errors"

var (
	errEndpointRequired = errors.New("endpoint is required")
	errNoNodes          = errors.New("at least one node mapping is required")
	errNodeCode         = errors.New("node mapping requires a code")
	errNodeKind         = errors.New("node kind must be fault or alarm")
	errResultCount      = errors.New("read returned wrong result count")
)
