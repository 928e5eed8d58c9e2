// Package domain contains core domain types shared by the store and the
// HTTP server.
package domain

import "time"

// User is a registered account. Identifier is the normalized digit string;
// SecretHash is the salted one-way hash of the secret and never leaves the
// server.
type User struct {
	ID         string    `json:"id"`
	Identifier string    `json:"identifier"`
	SecretHash string    `json:"-"`
	CreatedAt  time.Time `json:"created_at"`
}
