package account

import (
	"github.com/google/uuid"
)

// Role of a registered user
type Role int8

const (
	RoleUser Role = iota
	RoleAdmin
)

func (r Role) String() string {
	switch r {
	case RoleUser:
		return "USER"
	case RoleAdmin:
		return "ADMIN"
	default:
		return "UNKNOWN"
	}
}

// User is a registered exchange user. The API key is the bearer credential
// for all authenticated endpoints ("key-<uuid>" format).
type User struct {
	ID           uuid.UUID
	Name         string
	PasswordHash string // bcrypt; empty if registered without a password
	APIKey       string
	Role         Role
	CreatedAt    int64 // Unix nanoseconds
}
