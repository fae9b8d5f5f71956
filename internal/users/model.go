package users

import "time"

// User is a registered account. PasswordHash never leaves the server.
type User struct {
	ID           string    `json:"id"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"createdAt"`
}

// Summary is the public view of a user.
type Summary struct {
	ID    string `json:"id"`
	Email string `json:"email"`
}

func (u User) Summary() Summary {
	return Summary{ID: u.ID, Email: u.Email}
}
