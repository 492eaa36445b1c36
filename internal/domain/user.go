// Package domain contains the durable record types shared by the store,
// the game channels and the HTTP layer.
package domain

import (
	"time"
)

// User is the minimal view of an account owned by the external auth layer.
type User struct {
	UserID    string    `json:"user_id"`
	Username  string    `json:"username"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// DisplayName returns the username, falling back to the id.
func (u *User) DisplayName() string {
	if u.Username == "" {
		return u.UserID
	}
	return u.Username
}
