package user

import "time"

// User is a credential record. The username is the unique identifier;
// PasswordHash is a bcrypt digest and is never the plaintext. Records are
// created on signup and only ever read afterwards.
type User struct {
	ID           string
	Username     string
	PasswordHash []byte
	CreatedAt    time.Time
}
