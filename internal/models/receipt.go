package models

import "time"

type Receipt struct {
	ID          int64     `json:"id"`
	UserID      int64     `json:"user_id"`
	RequestID   *int64    `json:"request_id"`
	Filename    string    `json:"filename"`
	Description string    `json:"description"`
	Amount      float64   `json:"amount"`
	CreatedAt   time.Time `json:"created_at"`

	// Purpose of the linked request, if any
	RequestPurpose string `json:"request_purpose,omitempty"`
}
