package domain

import "time"

// FavoritePrompt is a saved prompt document the user keeps for reuse across
// sessions. Favorites outlive the sessions they were taken from.
type FavoritePrompt struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
