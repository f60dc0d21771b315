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

package migrations

import (
	"database/sql"
	"fmt"
	"log"
)

// Migration_AddActiveCodesColumn upgrades transition journals created
// before the active_codes column existed. New databases get the column
// from the schema; old ones get it added in place here.
func Migration_AddActiveCodesColumn(db *sql.DB) error {
	rows, err := db.Query(`PRAGMA table_info(transitions)`)
	if err != nil {
		return fmt.Errorf("failed to inspect transitions table: %w", err)
	}
	defer func() {
		if err := rows.Close(); err != nil {
			log.Printf("failed to close rows: %v", err)
		}
	}()

	hasColumn := false

	for rows.Next() {
		var (
			cid     int
			name    string
			colType string
			notNull int
			dflt    sql.NullString
			pk      int
		)

		if err := rows.Scan(&cid, &name, &colType, &notNull, &dflt, &pk); err != nil {
			return fmt.Errorf("failed to scan column info: %w", err)
		}

		if name == "active_codes" {
			hasColumn = true
		}
	}

	if err := rows.Err(); err != nil {
		return fmt.Errorf("failed to read column info: %w", err)
	}

	if hasColumn {
		return nil
	}

	log.Println("Running migration: adding active_codes column to transitions")

	if _, err := db.Exec(`ALTER TABLE transitions ADD COLUMN active_codes TEXT`); err != nil {
		return fmt.Errorf("failed to add active_codes column: %w", err)
	}

	return nil
}
