package domain

import "time"

// User represents a user entity in the system.
// Maps to the CockroachDB users table. Credential fields live in the
// auth service; the match service only reads identity and display data.
type User struct {
	ID          int64     `json:"user_id" db:"user_id"`
	Username    string    `json:"username" db:"username"`
	DisplayName string    `json:"display_name" db:"display_name"`
	IsOnline    bool      `json:"is_online" db:"is_online"`
	CreatedAt   time.Time `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time `json:"updated_at" db:"updated_at"`
}
