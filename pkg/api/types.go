/*-
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

package api

import (
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"

	"github.com/carverauto/faultradar/pkg/db"
	"github.com/carverauto/faultradar/pkg/equipment"
	"github.com/carverauto/faultradar/pkg/metrics"
	"github.com/carverauto/faultradar/pkg/models"
	"github.com/carverauto/faultradar/pkg/notify"
	"github.com/carverauto/faultradar/pkg/state"
)

// ComponentView joins a model component with its reconciled state.
type ComponentView struct {
	equipment.Component
	Status      models.Status `json:"status"`
	ActiveCodes []string      `json:"active_codes,omitempty"`
	LastChanged time.Time     `json:"last_changed,omitempty"`
}

// ModelDocument is the loaded model plus where it came from.
type ModelDocument struct {
	*equipment.Model
	Path     string    `json:"path"`
	LoadedAt time.Time `json:"loaded_at"`
}

// SystemStatus is the health summary for the whole monitor.
type SystemStatus struct {
	Uptime           string              `json:"uptime"`
	SnapshotSequence uint64              `json:"snapshot_sequence"`
	TotalComponents  int                 `json:"total_components"`
	Faults           int                 `json:"faults"`
	Alarms           int                 `json:"alarms"`
	LastUpdate       time.Time           `json:"last_update"`
	Source           models.SourceStatus `json:"source"`
}

// ModelRequest asks the monitor to load a model document.
type ModelRequest struct {
	Path string `json:"path"`
}

// SourceRequest asks the monitor to switch to a different source.
type SourceRequest struct {
	Source string `json:"source"`
}

// InjectRequest is a manual test event for injectable sources.
type InjectRequest struct {
	Action      string `json:"action"` // raise-fault, raise-alarm or clear-all
	Code        string `json:"code,omitempty"`
	Description string `json:"description,omitempty"`
}

// AckRequest records who acknowledged a notification.
type AckRequest struct {
	AcknowledgedBy string `json:"acknowledged_by"`
	Comment        string `json:"comment,omitempty"`
}

type APIServer struct {
	mu            sync.RWMutex
	store         *state.Store
	db            db.Service
	notifier      notify.Notifier
	metrics       metrics.SampleCollector
	model         *equipment.Model
	modelPath     string
	modelLoadedAt time.Time
	startedAt     time.Time
	maxConns      int
	router        *mux.Router
	httpServer    *http.Server
	unsubscribe   func()
	modelHandler  func(path string) error
	sourceHandler func(name string) error
	injectHandler func(req InjectRequest) error
	statusHandler func() models.SourceStatus
	clients       map[*websocket.Conn]*wsClient
	clientsMu     sync.RWMutex
}
