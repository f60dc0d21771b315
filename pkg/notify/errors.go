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

import "errors"

// Common errors that can be returned by notification operations
var (
	// ErrNotificationNotFound is returned when a notification is not found.
	ErrNotificationNotFound = errors.New("notification not found")

	// ErrInvalidRequest is returned when a request is invalid.
	ErrInvalidRequest = errors.New("invalid request")

	// ErrDuplicate is returned when an active notification with the same
	// dedupe key already exists.
	ErrDuplicate = errors.New("active notification already exists")

	// ErrCooldown is returned when a target is within its cooldown period.
	ErrCooldown = errors.New("within cooldown period")

	// ErrAlreadyAcknowledged is returned when trying to acknowledge an
	// already acknowledged notification.
	ErrAlreadyAcknowledged = errors.New("notification already acknowledged")
)
