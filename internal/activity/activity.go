package activity

import "time"

// Entry is one append-only audit record.
type Entry struct {
	ID        int       `json:"id"`
	UserID    int       `json:"userID"`
	Action    string    `json:"action"`
	Reference string    `json:"reference,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}
