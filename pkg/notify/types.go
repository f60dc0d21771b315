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

// Package notify raises operator notifications from component status
// transitions and delivers them to configured webhook targets.
package notify

import "time"

// Level represents the severity of a notification.
type Level string

const (
	LevelInfo    Level = "info"
	LevelWarning Level = "warning"
	LevelError   Level = "error"
)

// Status represents the current status of a notification.
type Status string

const (
	StatusPending      Status = "pending"
	StatusSent         Status = "sent"
	StatusAcknowledged Status = "acknowledged"
	StatusResolved     Status = "resolved"
)

// DeliveryStatus represents the delivery outcome for a single target.
type DeliveryStatus string

const (
	DeliveryPending DeliveryStatus = "pending"
	DeliverySent    DeliveryStatus = "sent"
	DeliveryFailed  DeliveryStatus = "failed"
	DeliverySkipped DeliveryStatus = "skipped"
)

// Notification represents a notification raised for an operator.
type Notification struct {
	ID          int64            `json:"id"`
	DedupeKey   string           `json:"dedupe_key"`
	ComponentID string           `json:"component_id,omitempty"`
	Level       Level            `json:"level"`
	Title       string           `json:"title"`
	Message     string           `json:"message"`
	Status      Status           `json:"status"`
	Codes       []string         `json:"codes,omitempty"`
	CreatedAt   time.Time        `json:"created_at"`
	UpdatedAt   time.Time        `json:"updated_at"`
	Deliveries  []Delivery       `json:"deliveries,omitempty"`
	Acks        []Acknowledgment `json:"acks,omitempty"`
}

// Delivery records the per-target delivery status of a notification.
type Delivery struct {
	ID             int64          `json:"id"`
	NotificationID int64          `json:"notification_id"`
	Target         string         `json:"target"`
	Status         DeliveryStatus `json:"status"`
	Detail         string         `json:"detail,omitempty"`
	SentAt         *time.Time     `json:"sent_at,omitempty"`
}

// Acknowledgment records that an operator has seen a notification.
type Acknowledgment struct {
	ID             int64     `json:"id"`
	NotificationID int64     `json:"notification_id"`
	AcknowledgedBy string    `json:"acknowledged_by"`
	Comment        string    `json:"comment,omitempty"`
	AcknowledgedAt time.Time `json:"acknowledged_at"`
}

// Request is used to raise a new notification. An empty DedupeKey
// defaults to the title.
type Request struct {
	DedupeKey   string   `json:"dedupe_key,omitempty"`
	ComponentID string   `json:"component_id,omitempty"`
	Level       Level    `json:"level"`
	Title       string   `json:"title"`
	Message     string   `json:"message"`
	Codes       []string `json:"codes,omitempty"`
}

// AcknowledgeRequest is used to acknowledge a notification.
type AcknowledgeRequest struct {
	NotificationID int64  `json:"notification_id"`
	AcknowledgedBy string `json:"acknowledged_by"`
	Comment        string `json:"comment,omitempty"`
}

// Filter is used to filter notifications in queries.
type Filter struct {
	ComponentID string     `json:"component_id,omitempty"`
	DedupeKey   string     `json:"dedupe_key,omitempty"`
	Level       *Level     `json:"level,omitempty"`
	Status      *Status    `json:"status,omitempty"`
	Since       *time.Time `json:"since,omitempty"`
	Until       *time.Time `json:"until,omitempty"`
	Limit       int        `json:"limit,omitempty"`
	Offset      int        `json:"offset,omitempty"`
}

// CleanupConfig defines configuration for the notification cleanup
// service.
type CleanupConfig struct {
	// How often to run the cleanup process
	Interval time.Duration

	// Maximum age of resolved notifications to keep
	ResolvedRetention time.Duration

	// Maximum age of acknowledged notifications to keep
	AcknowledgedRetention time.Duration

	// Maximum age of pending or sent notifications to keep
	PendingRetention time.Duration
}

// CleanupService manages periodic cleanup of notifications.
type CleanupService struct {
	service Notifier
	config  CleanupConfig
	stopCh  chan struct{}
}
