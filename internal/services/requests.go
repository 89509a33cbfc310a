package services

import (
	"database/sql"
	"errors"
	"fmt"
	"math"

	"pettycash/internal/database"
	"pettycash/internal/models"
)

var (
	ErrInvalidAmount   = errors.New("amount must be a positive number")
	ErrRequestNotFound = errors.New("request not found")
)

// RequestService manages the spending-request lifecycle. The only state
// transition is pending -> approved/rejected, performed as an atomic
// conditional update; that update is the sole concurrency-safety mechanism
// between racing approvers.
type RequestService struct {
	db *database.DB
}

func NewRequestService(db *database.DB) *RequestService {
	return &RequestService{db: db}
}

func (s *RequestService) Create(userID int64, purpose string, amount float64) (*models.Request, error) {
	if !validAmount(amount) {
		return nil, ErrInvalidAmount
	}

	result, err := s.db.Exec(
		"INSERT INTO requests (user_id, purpose, amount) VALUES (?, ?, ?)",
		userID, purpose, amount,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	id, _ := result.LastInsertId()
	return s.Get(id)
}

func (s *RequestService) Get(id int64) (*models.Request, error) {
	var req models.Request
	err := s.db.QueryRow(
		"SELECT id, user_id, purpose, amount, status, created_at, approved_by FROM requests WHERE id = ?",
		id,
	).Scan(&req.ID, &req.UserID, &req.Purpose, &req.Amount, &req.Status, &req.CreatedAt, &req.ApprovedBy)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrRequestNotFound
		}
		return nil, fmt.Errorf("failed to get request: %w", err)
	}
	return &req, nil
}

// ListByUser returns the user's own requests, newest first, with the
// approver's display name when one is recorded.
func (s *RequestService) ListByUser(userID int64) ([]models.Request, error) {
	rows, err := s.db.Query(`
		SELECT r.id, r.user_id, r.purpose, r.amount, r.status, r.created_at, r.approved_by,
		       COALESCE(u.name, '')
		FROM requests r
		LEFT JOIN users u ON r.approved_by = u.id
		WHERE r.user_id = ?
		ORDER BY r.created_at DESC, r.id DESC
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list requests: %w", err)
	}
	defer rows.Close()

	return scanRequests(rows, func(req *models.Request) []interface{} {
		return []interface{}{&req.ID, &req.UserID, &req.Purpose, &req.Amount, &req.Status, &req.CreatedAt, &req.ApprovedBy, &req.ApproverName}
	})
}

// ListPending returns all pending requests oldest-first, so the earliest
// submission is reviewed first, with the submitter's display name.
func (s *RequestService) ListPending() ([]models.Request, error) {
	rows, err := s.db.Query(`
		SELECT r.id, r.user_id, r.purpose, r.amount, r.status, r.created_at, r.approved_by, u.name
		FROM requests r
		JOIN users u ON r.user_id = u.id
		WHERE r.status = 'pending'
		ORDER BY r.created_at ASC, r.id ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list pending requests: %w", err)
	}
	defer rows.Close()

	return scanRequests(rows, func(req *models.Request) []interface{} {
		return []interface{}{&req.ID, &req.UserID, &req.Purpose, &req.Amount, &req.Status, &req.CreatedAt, &req.ApprovedBy, &req.UserName}
	})
}

// ListApprovedByUser returns the user's approved requests, newest first,
// for linking receipts against.
func (s *RequestService) ListApprovedByUser(userID int64) ([]models.Request, error) {
	rows, err := s.db.Query(`
		SELECT id, user_id, purpose, amount, status, created_at, approved_by
		FROM requests
		WHERE user_id = ? AND status = 'approved'
		ORDER BY created_at DESC, id DESC
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list approved requests: %w", err)
	}
	defer rows.Close()

	return scanRequests(rows, func(req *models.Request) []interface{} {
		return []interface{}{&req.ID, &req.UserID, &req.Purpose, &req.Amount, &req.Status, &req.CreatedAt, &req.ApprovedBy}
	})
}

// Approve resolves a pending request and records the approver. The update
// only matches while the status is still pending, so of two racing
// approvers exactly one transition takes effect; the returned bool is false
// for the loser, which is a benign no-op rather than an error.
func (s *RequestService) Approve(id, approverID int64) (bool, error) {
	result, err := s.db.Exec(
		"UPDATE requests SET status = 'approved', approved_by = ? WHERE id = ? AND status = 'pending'",
		approverID, id,
	)
	if err != nil {
		return false, fmt.Errorf("failed to approve request: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to approve request: %w", err)
	}
	return rows == 1, nil
}

// Reject resolves a pending request. Same conditional-update semantics as
// Approve.
func (s *RequestService) Reject(id int64) (bool, error) {
	result, err := s.db.Exec(
		"UPDATE requests SET status = 'rejected' WHERE id = ? AND status = 'pending'",
		id,
	)
	if err != nil {
		return false, fmt.Errorf("failed to reject request: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to reject request: %w", err)
	}
	return rows == 1, nil
}

// validAmount accepts only positive, finite amounts. ParseFloat lets
// "NaN" and "Inf" form input through, so the check cannot rely on sign
// alone.
func validAmount(amount float64) bool {
	return amount > 0 && !math.IsNaN(amount) && !math.IsInf(amount, 0)
}

func scanRequests(rows *sql.Rows, dest func(*models.Request) []interface{}) ([]models.Request, error) {
	var requests []models.Request
	for rows.Next() {
		var req models.Request
		if err := rows.Scan(dest(&req)...); err != nil {
			return nil, fmt.Errorf("failed to scan request: %w", err)
		}
		requests = append(requests, req)
	}
	return requests, rows.Err()
}
