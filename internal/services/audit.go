package services

import (
	"fmt"
	"log"

	"pettycash/internal/database"
	"pettycash/internal/models"
)

// AuditService appends to the append-only action log. Logging is
// best-effort: a failed write is reported but never fails the operation
// that triggered it. Callers log after their own write has committed, so
// the log never claims an action that did not happen.
type AuditService struct {
	db *database.DB
}

func NewAuditService(db *database.DB) *AuditService {
	return &AuditService{db: db}
}

func (s *AuditService) Log(userID int64, action string) {
	if _, err := s.db.Exec(
		"INSERT INTO logs (user_id, action) VALUES (?, ?)",
		userID, action,
	); err != nil {
		log.Printf("audit: failed to record %q for user %d: %v", action, userID, err)
	}
}

// Recent returns the newest entries first, joined with the actor's
// identity.
func (s *AuditService) Recent(limit int) ([]models.LogEntry, error) {
	rows, err := s.db.Query(`
		SELECT l.id, l.user_id, l.action, l.created_at, u.username, u.name
		FROM logs l
		JOIN users u ON l.user_id = u.id
		ORDER BY l.created_at DESC, l.id DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list logs: %w", err)
	}
	defer rows.Close()

	var entries []models.LogEntry
	for rows.Next() {
		var entry models.LogEntry
		if err := rows.Scan(&entry.ID, &entry.UserID, &entry.Action, &entry.CreatedAt, &entry.Username, &entry.Name); err != nil {
			return nil, fmt.Errorf("failed to scan log entry: %w", err)
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}
