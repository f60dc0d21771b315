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

package api

import (
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/carverauto/faultradar/pkg/models"
)

const (
	wsWriteWait       = 10 * time.Second
	wsPongWait        = 60 * time.Second
	wsPingPeriod      = 30 * time.Second
	wsReadLimit       = 512
	wsSubscribeBuffer = 16
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(_ *http.Request) bool {
		return true
	},
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
}

// wsClient is one connected renderer. Writes are serialized through
// the client mutex; the ping ticker and the snapshot broadcaster share
// the connection.
type wsClient struct {
	conn      *websocket.Conn
	mu        sync.Mutex
	closeOnce sync.Once
}

func (s *APIServer) serveWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("WebSocket upgrade failed: %v", err)
		return
	}

	client := &wsClient{conn: conn}

	s.clientsMu.Lock()
	s.clients[conn] = client
	count := len(s.clients)
	s.clientsMu.Unlock()

	log.Printf("WebSocket client connected from %s (%d active)", r.RemoteAddr, count)

	// Seed the new client so a renderer can draw before the next poll.
	if snap := s.store.Current(); snap != nil {
		if data, err := json.Marshal(snap); err == nil {
			if err := s.writeClient(client, websocket.TextMessage, data); err != nil {
				s.removeClient(client)
				return
			}
		}
	}

	go s.readLoop(client)
}

// readLoop exists to notice disconnects; renderer clients send nothing
// but pongs.
func (s *APIServer) readLoop(client *wsClient) {
	defer s.removeClient(client)

	client.conn.SetReadLimit(wsReadLimit)
	_ = client.conn.SetReadDeadline(time.Now().Add(wsPongWait))
	client.conn.SetPongHandler(func(string) error {
		return client.conn.SetReadDeadline(time.Now().Add(wsPongWait))
	})

	for {
		if _, _, err := client.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (s *APIServer) removeClient(client *wsClient) {
	client.closeOnce.Do(func() {
		s.clientsMu.Lock()
		delete(s.clients, client.conn)
		count := len(s.clients)
		s.clientsMu.Unlock()

		_ = client.conn.Close()

		log.Printf("WebSocket client disconnected (%d active)", count)
	})
}

// watchSnapshots forwards published snapshots to every client and
// keeps connections alive with pings. It returns when the store
// subscription is cancelled.
func (s *APIServer) watchSnapshots(snapshots <-chan *models.Snapshot) {
	ticker := time.NewTicker(wsPingPeriod)
	defer ticker.Stop()

	for {
		select {
		case snap, ok := <-snapshots:
			if !ok {
				return
			}

			s.broadcastSnapshot(snap)
		case <-ticker.C:
			s.broadcast(websocket.PingMessage, nil)
		}
	}
}

func (s *APIServer) broadcastSnapshot(snap *models.Snapshot) {
	data, err := json.Marshal(snap)
	if err != nil {
		log.Printf("Error marshaling snapshot for broadcast: %v", err)
		return
	}

	s.broadcast(websocket.TextMessage, data)
}

// broadcast writes to a snapshot of the client set. A client that
// cannot keep up trips its write deadline and is dropped.
func (s *APIServer) broadcast(messageType int, data []byte) {
	s.clientsMu.RLock()
	clients := make([]*wsClient, 0, len(s.clients))

	for _, client := range s.clients {
		clients = append(clients, client)
	}
	s.clientsMu.RUnlock()

	for _, client := range clients {
		if err := s.writeClient(client, messageType, data); err != nil {
			s.removeClient(client)
		}
	}
}

func (s *APIServer) writeClient(client *wsClient, messageType int, data []byte) error {
	client.mu.Lock()
	defer client.mu.Unlock()

	_ = client.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))

	return client.conn.WriteMessage(messageType, data)
}

func (s *APIServer) closeClients() {
	s.clientsMu.Lock()
	clients := make([]*wsClient, 0, len(s.clients))

	for _, client := range s.clients {
		clients = append(clients, client)
	}
	s.clientsMu.Unlock()

	for _, client := range clients {
		s.removeClient(client)
	}
}
