/*
 * Copyright 2025 Carver Automation Corporation.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package main

import (
	"context"
	"flag"
	"fmt"
	"log"

	"github.com/carverauto/faultradar/pkg/api"
	"github.com/carverauto/faultradar/pkg/config"
	"github.com/carverauto/faultradar/pkg/grpc"
	"github.com/carverauto/faultradar/pkg/lifecycle"
	"github.com/carverauto/faultradar/pkg/monitor"
)

var errFailedToLoadConfig = fmt.Errorf("failed to load config")

func main() {
	if err := run(); err != nil {
		log.Fatalf("Fatal error: %v", err)
	}
}

func run() error {
	log.Printf("Starting fault monitor...")

	configPath := flag.String("config", "/etc/faultradar/monitor.json", "Path to config file")
	flag.Parse()

	var cfg config.MonitorConfig

	if err := config.LoadAndValidate(*configPath, &cfg); err != nil {
		return fmt.Errorf("%w: %w", errFailedToLoadConfig, err)
	}

	if cfg.Security != nil {
		if err := grpc.NewCertificateManager(cfg.Security).ValidateCertificates(); err != nil {
			return fmt.Errorf("certificate validation failed: %w", err)
		}
	}

	srv, err := monitor.NewServer(&cfg)
	if err != nil {
		return fmt.Errorf("failed to create monitor: %w", err)
	}

	srv.SetAPI(api.NewAPIServer(srv.Store(), srv.DB(), srv.Notifier(), srv.Metrics()))

	opts := lifecycle.ServerOptions{
		ListenAddr:  cfg.GRPCAddr,
		ServiceName: "monitor",
		Service:     srv,
		Security:    cfg.Security,
	}

	if err := lifecycle.RunServer(context.Background(), &opts); err != nil {
		return fmt.Errorf("server error: %w", err)
	}

	return nil
}
