package domain

import "time"

// User represents a registered account. PasswordHash never holds a plaintext password.
type User struct {
	ID           int64
	FirstName    string
	LastName     string
	Email        string
	PasswordHash string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}
