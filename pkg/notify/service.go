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

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"
)

// Service implements the Notifier interface.
type Service struct {
	store    *Store
	senders  []Sender
	senderMu sync.RWMutex
}

// NewService creates a new notification service.
func NewService(store *Store) *Service {
	return &Service{
		store: store,
	}
}

// AddSender registers a delivery target. Disabled senders are skipped
// at delivery time.
func (s *Service) AddSender(sender Sender) {
	s.senderMu.Lock()
	defer s.senderMu.Unlock()

	s.senders = append(s.senders, sender)
}

func (s *Service) currentSenders() []Sender {
	s.senderMu.RLock()
	defer s.senderMu.RUnlock()

	return append([]Sender(nil), s.senders...)
}

// Notify raises a new notification and schedules delivery to every
// registered sender. A notification whose dedupe key matches one that
// is still pending or sent is suppressed.
func (s *Service) Notify(ctx context.Context, req Request) (*Notification, error) {
	if req.Title == "" || req.Message == "" {
		return nil, fmt.Errorf("%w: missing required fields", ErrInvalidRequest)
	}

	if req.DedupeKey == "" {
		req.DedupeKey = req.Title
	}

	existing, err := s.store.ActiveByKey(req.DedupeKey)
	if err != nil {
		return nil, fmt.Errorf("failed to check for active notification: %w", err)
	}

	if existing != nil {
		return nil, fmt.Errorf("%w: %q", ErrDuplicate, req.DedupeKey)
	}

	tx, err := s.store.Begin()
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}

	defer func() {
		if err != nil {
			if rbErr := tx.Rollback(); rbErr != nil {
				log.Printf("Error rolling back transaction: %v", rbErr)
			}
		}
	}()

	now := time.Now()
	notification := &Notification{
		DedupeKey:   req.DedupeKey,
		ComponentID: req.ComponentID,
		Level:       req.Level,
		Title:       req.Title,
		Message:     req.Message,
		Status:      StatusPending,
		Codes:       req.Codes,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	notificationID, err := s.store.Create(tx, notification)
	if err != nil {
		return nil, fmt.Errorf("failed to create notification: %w", err)
	}

	notification.ID = notificationID

	for _, sender := range s.currentSenders() {
		delivery := &Delivery{
			NotificationID: notificationID,
			Target:         sender.Name(),
			Status:         DeliveryPending,
		}

		var deliveryID int64

		deliveryID, err = s.store.AddDelivery(tx, delivery)
		if err != nil {
			return nil, fmt.Errorf("failed to add delivery: %w", err)
		}

		delivery.ID = deliveryID
		notification.Deliveries = append(notification.Deliveries, *delivery)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	// Deliver in the background so a slow target never blocks the
	// poll pipeline.
	go s.deliver(context.Background(), notification)

	return notification, nil
}

// deliver sends the notification to every registered sender and
// records the per-target outcome.
func (s *Service) deliver(ctx context.Context, notification *Notification) {
	senders := s.currentSenders()
	if len(senders) == 0 {
		return
	}

	anySent := false

	for i, sender := range senders {
		if i >= len(notification.Deliveries) {
			break
		}

		delivery := &notification.Deliveries[i]

		if !sender.IsEnabled() {
			s.recordDelivery(delivery.ID, DeliverySkipped, "sender disabled")
			delivery.Status = DeliverySkipped

			continue
		}

		if err := sender.Send(ctx, notification); err != nil {
			status := DeliveryFailed
			if errors.Is(err, ErrCooldown) {
				status = DeliverySkipped
			} else {
				log.Printf("Error sending notification %d to %s: %v",
					notification.ID, sender.Name(), err)
			}

			s.recordDelivery(delivery.ID, status, err.Error())
			delivery.Status = status

			continue
		}

		s.recordDelivery(delivery.ID, DeliverySent, "")
		delivery.Status = DeliverySent
		anySent = true
	}

	if anySent {
		if err := s.store.UpdateStatus(nil, notification.ID, StatusSent); err != nil {
			log.Printf("Error updating notification status: %v", err)
		} else {
			notification.Status = StatusSent
		}
	}
}

func (s *Service) recordDelivery(id int64, status DeliveryStatus, detail string) {
	if err := s.store.UpdateDeliveryStatus(id, status, detail); err != nil {
		log.Printf("Error updating delivery status: %v", err)
	}
}

// Get retrieves a notification by ID.
func (s *Service) Get(_ context.Context, id int64) (*Notification, error) {
	notification, err := s.store.Get(id)
	if err != nil {
		return nil, fmt.Errorf("failed to get notification: %w", err)
	}

	return notification, nil
}

// List retrieves notifications based on filter criteria.
func (s *Service) List(_ context.Context, filter Filter) ([]Notification, error) {
	notifications, err := s.store.List(filter)
	if err != nil {
		return nil, fmt.Errorf("failed to list notifications: %w", err)
	}

	return notifications, nil
}

// Acknowledge records that an operator has seen a notification.
func (s *Service) Acknowledge(_ context.Context, req AcknowledgeRequest) error {
	if req.NotificationID == 0 || req.AcknowledgedBy == "" {
		return fmt.Errorf("%w: missing required fields", ErrInvalidRequest)
	}

	notification, err := s.store.Get(req.NotificationID)
	if err != nil {
		return fmt.Errorf("failed to get notification: %w", err)
	}

	if notification.Status == StatusAcknowledged {
		return ErrAlreadyAcknowledged
	}

	tx, err := s.store.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	defer func() {
		if err != nil {
			if rbErr := tx.Rollback(); rbErr != nil {
				log.Printf("Error rolling back transaction: %v", rbErr)
			}
		}
	}()

	ack := &Acknowledgment{
		NotificationID: req.NotificationID,
		AcknowledgedBy: req.AcknowledgedBy,
		AcknowledgedAt: time.Now(),
		Comment:        req.Comment,
	}

	if _, err = s.store.CreateAck(tx, ack); err != nil {
		return fmt.Errorf("failed to create acknowledgment: %w", err)
	}

	if err = s.store.UpdateStatus(tx, req.NotificationID, StatusAcknowledged); err != nil {
		return fmt.Errorf("failed to update notification status: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}

// Resolve marks a notification as resolved.
func (s *Service) Resolve(_ context.Context, id int64) error {
	if _, err := s.store.Get(id); err != nil {
		return fmt.Errorf("failed to get notification: %w", err)
	}

	if err := s.store.UpdateStatus(nil, id, StatusResolved); err != nil {
		return fmt.Errorf("failed to update notification status: %w", err)
	}

	return nil
}

// ResolveKey resolves every active notification with the given dedupe
// key. Resolving a key no other notification holds is a no-op.
func (s *Service) ResolveKey(_ context.Context, dedupeKey string) error {
	resolved, err := s.store.ResolveByKey(dedupeKey)
	if err != nil {
		return fmt.Errorf("failed to resolve notifications: %w", err)
	}

	if resolved > 0 {
		log.Printf("Resolved %d notification(s) for %q", resolved, dedupeKey)
	}

	return nil
}

// Delete removes a notification and its related records.
func (s *Service) Delete(_ context.Context, id int64) error {
	return s.store.Delete(id)
}
