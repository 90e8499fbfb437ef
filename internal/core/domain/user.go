package domain

import "time"

// AdminUsername is the account that carries privileged rights.
const AdminUsername = "admin"

type User struct {
	ID           int64
	Username     string
	PasswordHash string
	CreatedAt    time.Time
}

// IsPrivileged reports whether this account may act on behalf of others.
func (u *User) IsPrivileged() bool {
	return u.Username == AdminUsername
}

// Identity is the resolved caller attached to every core operation.
// Credential verification happens at the edge; the core trusts this pair.
type Identity struct {
	UserID       int64
	IsPrivileged bool
}
