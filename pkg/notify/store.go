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
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/carverauto/faultradar/pkg/db"
)

// Store persists notifications in the journal database.
type Store struct {
	db db.Service
}

// NewStore creates a notification store backed by the given database.
func NewStore(database db.Service) *Store {
	return &Store{db: database}
}

// Begin starts a new transaction.
func (s *Store) Begin() (db.Transaction, error) {
	return s.db.Begin()
}

// serializeCodes converts a code list to a JSON string.
func serializeCodes(codes []string) (string, error) {
	if len(codes) == 0 {
		return "", nil
	}

	data, err := json.Marshal(codes)
	if err != nil {
		return "", err
	}

	return string(data), nil
}

// Create adds a new notification to the database.
func (s *Store) Create(tx db.Transaction, notification *Notification) (int64, error) {
	codes, err := serializeCodes(notification.Codes)
	if err != nil {
		return 0, fmt.Errorf("failed to serialize codes: %w", err)
	}

	const query = `
		INSERT INTO notifications
		(dedupe_key, component_id, level, title, message, status, codes, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	var result db.Result
	if tx != nil {
		result, err = tx.Exec(query,
			notification.DedupeKey,
			notification.ComponentID,
			string(notification.Level),
			notification.Title,
			notification.Message,
			string(notification.Status),
			codes,
			notification.CreatedAt,
			notification.UpdatedAt,
		)
	} else {
		result, err = s.db.Exec(query,
			notification.DedupeKey,
			notification.ComponentID,
			string(notification.Level),
			notification.Title,
			notification.Message,
			string(notification.Status),
			codes,
			notification.CreatedAt,
			notification.UpdatedAt,
		)
	}

	if err != nil {
		return 0, fmt.Errorf("failed to create notification: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to get last insert ID: %w", err)
	}

	return id, nil
}

const notificationColumns = `id, dedupe_key, component_id, level, title, message, status, codes, created_at, updated_at`

// rowScanner is satisfied by both db.Row and db.Rows.
type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanNotification(row rowScanner) (Notification, error) {
	var n Notification

	var level, status, codes string

	err := row.Scan(
		&n.ID,
		&n.DedupeKey,
		&n.ComponentID,
		&level,
		&n.Title,
		&n.Message,
		&status,
		&codes,
		&n.CreatedAt,
		&n.UpdatedAt,
	)
	if err != nil {
		return n, err
	}

	n.Level = Level(level)
	n.Status = Status(status)

	if codes != "" {
		if err := json.Unmarshal([]byte(codes), &n.Codes); err != nil {
			return n, fmt.Errorf("failed to deserialize codes: %w", err)
		}
	}

	return n, nil
}

// Get retrieves a notification by ID, including its delivery and
// acknowledgment records.
func (s *Store) Get(id int64) (*Notification, error) {
	row := s.db.QueryRow(
		"SELECT "+notificationColumns+" FROM notifications WHERE id = ?", id)

	n, err := scanNotification(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: %d", ErrNotificationNotFound, id)
		}

		return nil, fmt.Errorf("failed to get notification: %w", err)
	}

	deliveries, err := s.DeliveriesFor(id)
	if err != nil {
		return nil, fmt.Errorf("failed to get deliveries: %w", err)
	}

	n.Deliveries = deliveries

	acks, err := s.AcksFor(id)
	if err != nil {
		return nil, fmt.Errorf("failed to get acknowledgments: %w", err)
	}

	n.Acks = acks

	return &n, nil
}

// ActiveByKey returns the newest pending or sent notification with the
// given dedupe key, or nil when none exists.
func (s *Store) ActiveByKey(dedupeKey string) (*Notification, error) {
	row := s.db.QueryRow(
		"SELECT "+notificationColumns+` FROM notifications
		WHERE dedupe_key = ? AND status IN (?, ?)
		ORDER BY id DESC LIMIT 1`,
		dedupeKey, string(StatusPending), string(StatusSent))

	n, err := scanNotification(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}

		return nil, fmt.Errorf("failed to query active notification: %w", err)
	}

	return &n, nil
}

// List retrieves notifications based on filter criteria, newest first.
func (s *Store) List(filter Filter) ([]Notification, error) {
	var conditions []string

	var args []interface{}

	if filter.ComponentID != "" {
		conditions = append(conditions, "component_id = ?")
		args = append(args, filter.ComponentID)
	}

	if filter.DedupeKey != "" {
		conditions = append(conditions, "dedupe_key = ?")
		args = append(args, filter.DedupeKey)
	}

	if filter.Level != nil {
		conditions = append(conditions, "level = ?")
		args = append(args, string(*filter.Level))
	}

	if filter.Status != nil {
		conditions = append(conditions, "status = ?")
		args = append(args, string(*filter.Status))
	}

	if filter.Since != nil {
		conditions = append(conditions, "created_at >= ?")
		args = append(args, *filter.Since)
	}

	if filter.Until != nil {
		conditions = append(conditions, "created_at <= ?")
		args = append(args, *filter.Until)
	}

	query := "SELECT " + notificationColumns + " FROM notifications"
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}

	query += " ORDER BY id DESC"

	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", filter.Limit)
		if filter.Offset > 0 {
			query += fmt.Sprintf(" OFFSET %d", filter.Offset)
		}
	}

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query notifications: %w", err)
	}
	defer db.CloseRows(rows)

	var notifications []Notification

	for rows.Next() {
		n, err := scanNotification(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan notification: %w", err)
		}

		notifications = append(notifications, n)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating notifications: %w", err)
	}

	return notifications, nil
}

// UpdateStatus updates the status of a notification.
func (s *Store) UpdateStatus(tx db.Transaction, id int64, status Status) error {
	const query = "UPDATE notifications SET status = ?, updated_at = ? WHERE id = ?"

	var err error
	if tx != nil {
		_, err = tx.Exec(query, string(status), time.Now(), id)
	} else {
		_, err = s.db.Exec(query, string(status), time.Now(), id)
	}

	if err != nil {
		return fmt.Errorf("failed to update notification status: %w", err)
	}

	return nil
}

// ResolveByKey marks every active notification with the given dedupe
// key as resolved and reports how many rows changed.
func (s *Store) ResolveByKey(dedupeKey string) (int64, error) {
	result, err := s.db.Exec(
		`UPDATE notifications SET status = ?, updated_at = ?
		WHERE dedupe_key = ? AND status IN (?, ?, ?)`,
		string(StatusResolved), time.Now(), dedupeKey,
		string(StatusPending), string(StatusSent), string(StatusAcknowledged))
	if err != nil {
		return 0, fmt.Errorf("failed to resolve notifications: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get affected rows: %w", err)
	}

	return affected, nil
}

// Delete removes a notification together with its delivery and
// acknowledgment records.
func (s *Store) Delete(id int64) error {
	tx, err := s.db.Begin()
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

	if _, err = tx.Exec("DELETE FROM notification_acks WHERE notification_id = ?", id); err != nil {
		return fmt.Errorf("failed to delete acknowledgments: %w", err)
	}

	if _, err = tx.Exec("DELETE FROM notification_deliveries WHERE notification_id = ?", id); err != nil {
		return fmt.Errorf("failed to delete deliveries: %w", err)
	}

	if _, err = tx.Exec("DELETE FROM notifications WHERE id = ?", id); err != nil {
		return fmt.Errorf("failed to delete notification: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}

// AddDelivery adds a pending delivery record for a notification.
func (s *Store) AddDelivery(tx db.Transaction, delivery *Delivery) (int64, error) {
	const query = `
		INSERT INTO notification_deliveries (notification_id, target, status, detail, sent_at)
		VALUES (?, ?, ?, ?, ?)
	`

	var result db.Result

	var err error

	if tx != nil {
		result, err = tx.Exec(query,
			delivery.NotificationID, delivery.Target, string(delivery.Status), delivery.Detail, delivery.SentAt)
	} else {
		result, err = s.db.Exec(query,
			delivery.NotificationID, delivery.Target, string(delivery.Status), delivery.Detail, delivery.SentAt)
	}

	if err != nil {
		return 0, fmt.Errorf("failed to add delivery: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to get last insert ID: %w", err)
	}

	return id, nil
}

// UpdateDeliveryStatus records the outcome of a delivery attempt.
func (s *Store) UpdateDeliveryStatus(id int64, status DeliveryStatus, detail string) error {
	var err error

	if status == DeliverySent {
		_, err = s.db.Exec(
			"UPDATE notification_deliveries SET status = ?, detail = ?, sent_at = ? WHERE id = ?",
			string(status), detail, time.Now(), id)
	} else {
		_, err = s.db.Exec(
			"UPDATE notification_deliveries SET status = ?, detail = ? WHERE id = ?",
			string(status), detail, id)
	}

	if err != nil {
		return fmt.Errorf("failed to update delivery status: %w", err)
	}

	return nil
}

// DeliveriesFor retrieves all delivery records for a notification.
func (s *Store) DeliveriesFor(notificationID int64) ([]Delivery, error) {
	rows, err := s.db.Query(`
		SELECT id, notification_id, target, status, detail, sent_at
		FROM notification_deliveries
		WHERE notification_id = ?
		ORDER BY id`,
		notificationID)
	if err != nil {
		return nil, fmt.Errorf("failed to query deliveries: %w", err)
	}
	defer db.CloseRows(rows)

	var deliveries []Delivery

	for rows.Next() {
		var d Delivery

		var status string

		var detail sql.NullString

		var sentAt sql.NullTime

		if err := rows.Scan(&d.ID, &d.NotificationID, &d.Target, &status, &detail, &sentAt); err != nil {
			return nil, fmt.Errorf("failed to scan delivery: %w", err)
		}

		d.Status = DeliveryStatus(status)
		d.Detail = detail.String

		if sentAt.Valid {
			d.SentAt = &sentAt.Time
		}

		deliveries = append(deliveries, d)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating deliveries: %w", err)
	}

	return deliveries, nil
}

// CreateAck adds an acknowledgment record for a notification.
func (s *Store) CreateAck(tx db.Transaction, ack *Acknowledgment) (int64, error) {
	const query = `
		INSERT INTO notification_acks (notification_id, acknowledged_by, comment, acknowledged_at)
		VALUES (?, ?, ?, ?)
	`

	var result db.Result

	var err error

	if tx != nil {
		result, err = tx.Exec(query,
			ack.NotificationID, ack.AcknowledgedBy, ack.Comment, ack.AcknowledgedAt)
	} else {
		result, err = s.db.Exec(query,
			ack.NotificationID, ack.AcknowledgedBy, ack.Comment, ack.AcknowledgedAt)
	}

	if err != nil {
		return 0, fmt.Errorf("failed to create acknowledgment: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to get last insert ID: %w", err)
	}

	return id, nil
}

// AcksFor retrieves all acknowledgments for a notification.
func (s *Store) AcksFor(notificationID int64) ([]Acknowledgment, error) {
	rows, err := s.db.Query(`
		SELECT id, notification_id, acknowledged_by, comment, acknowledged_at
		FROM notification_acks
		WHERE notification_id = ?
		ORDER BY acknowledged_at DESC`,
		notificationID)
	if err != nil {
		return nil, fmt.Errorf("failed to query acknowledgments: %w", err)
	}
	defer db.CloseRows(rows)

	var acks []Acknowledgment

	for rows.Next() {
		var ack Acknowledgment

		var comment sql.NullString

		if err := rows.Scan(&ack.ID, &ack.NotificationID, &ack.AcknowledgedBy, &comment, &ack.AcknowledgedAt); err != nil {
			return nil, fmt.Errorf("failed to scan acknowledgment: %w", err)
		}

		ack.Comment = comment.String

		acks = append(acks, ack)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating acknowledgments: %w", err)
	}

	return acks, nil
}
