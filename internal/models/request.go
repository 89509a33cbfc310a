package models

import "time"

const (
	StatusPending  = "pending"
	StatusApproved = "approved"
	StatusRejected = "rejected"
)

type Request struct {
	ID         int64     `json:"id"`
	UserID     int64     `json:"user_id"`
	Purpose    string    `json:"purpose"`
	Amount     float64   `json:"amount"`
	Status     string    `json:"status"`
	CreatedAt  time.Time `json:"created_at"`
	ApprovedBy *int64    `json:"approved_by"`

	// Joined display names, populated by list queries
	UserName     string `json:"user_name,omitempty"`
	ApproverName string `json:"approver_name,omitempty"`
}
