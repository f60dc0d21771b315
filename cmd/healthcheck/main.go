// cmd/healthcheck/main.go
//
// healthcheck probes a monitor's gRPC health endpoint and exits 0 when
// the service reports SERVING. Meant for container liveness probes and
// packaging scripts:
//
//	healthcheck -addr localhost:50052 -service monitor
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/carverauto/faultradar/pkg/grpc"
	"github.com/carverauto/faultradar/pkg/models"
)

func main() {
	addr := flag.String("addr", "localhost:50052", "gRPC health endpoint address")
	service := flag.String("service", "monitor", "Service name to probe; empty checks overall health")
	timeout := flag.Duration("timeout", 5*time.Second, "Probe timeout")
	mode := flag.String("mode", "", "Security mode: none, tls, mtls or spiffe")
	certDir := flag.String("cert-dir", "", "Certificate directory for tls and mtls modes")
	serverName := flag.String("server-name", "", "Expected TLS server name override")
	flag.Parse()

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	connConfig := &grpc.ConnectionConfig{Address: *addr}
	if *mode != "" {
		connConfig.Security = &models.SecurityConfig{
			Mode:       models.SecurityMode(*mode),
			CertDir:    *certDir,
			ServerName: *serverName,
		}
	}

	client, err := grpc.NewClient(ctx, connConfig)
	if err != nil {
		log.Fatalf("Failed to connect to %s: %v", *addr, err)
	}

	defer func() {
		if err := client.Close(); err != nil {
			log.Printf("Error closing connection: %v", err)
		}
	}()

	healthy, err := client.CheckHealth(ctx, *service)
	if err != nil {
		log.Fatalf("Health check against %s failed: %v", *addr, err)
	}

	if !healthy {
		fmt.Printf("%s: NOT_SERVING\n", *addr)
		os.Exit(1)
	}

	fmt.Printf("%s: SERVING\n", *addr)
}
