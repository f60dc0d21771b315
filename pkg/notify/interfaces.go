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

package notify

import "context"

//go:generate mockgen -destination=mock_notify.go -package=notify github.com/carverauto/faultradar/pkg/notify Notifier,Sender

// Notifier defines the interface for the notification service.
type Notifier interface {
	// Notify raises a new notification and schedules delivery.
	Notify(ctx context.Context, req Request) (*Notification, error)

	// Get retrieves a notification by ID.
	Get(ctx context.Context, id int64) (*Notification, error)

	// List retrieves notifications based on filter criteria.
	List(ctx context.Context, filter Filter) ([]Notification, error)

	// Acknowledge records that an operator has seen a notification.
	Acknowledge(ctx context.Context, req AcknowledgeRequest) error

	// Resolve marks a notification as resolved.
	Resolve(ctx context.Context, id int64) error

	// ResolveKey resolves every active notification with the given
	// dedupe key.
	ResolveKey(ctx context.Context, dedupeKey string) error

	// Delete removes a notification and its delivery and
	// acknowledgment records.
	Delete(ctx context.Context, id int64) error
}

// Sender delivers a notification to a single target.
type Sender interface {
	// Send delivers the notification to the target.
	Send(ctx context.Context, notification *Notification) error

	// Name identifies the target in delivery records.
	Name() string

	// IsEnabled returns whether the sender is enabled.
	IsEnabled() bool
}
