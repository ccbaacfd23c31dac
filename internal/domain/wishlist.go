package domain

import "time"

// WishlistEntry is a visitor who asked to be notified at launch.
type WishlistEntry struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	ClientID  string    `json:"-"`
	Forwarded bool      `json:"forwarded"`
	CreatedAt time.Time `json:"created_at"`
}
