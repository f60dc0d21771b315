package snmp

//go:generate mockgen -destination=mock_client.go -package=snmp github.com/carverauto/faultradar/pkg/source/snmp Client

import "github.com/gosnmp/gosnmp"

// Client is the slice of the SNMP client API the source uses.
type Client interface {
	Connect() error
	Get(oids []string) (*gosnmp.SnmpPacket, error)
	Close() error
}
