package services

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"pettycash/internal/database"
	"pettycash/internal/models"
)

var ErrMissingFile = errors.New("no file uploaded")

var unsafeFilenameChars = regexp.MustCompile(`[^A-Za-z0-9._-]`)

// ReceiptService stores uploaded receipt files on disk and their metadata
// in the database. The file is written before the row is inserted: a crash
// in between leaves an orphaned file, never a row pointing at a missing
// file.
type ReceiptService struct {
	db        *database.DB
	uploadDir string
}

func NewReceiptService(db *database.DB, uploadDir string) *ReceiptService {
	return &ReceiptService{db: db, uploadDir: uploadDir}
}

// Store persists the uploaded file under a timestamp-prefixed, sanitized
// name and inserts the receipt row. requestID may be nil for receipts not
// linked to any request.
func (s *ReceiptService) Store(userID int64, requestID *int64, file io.Reader, originalName, description string, amount float64) (*models.Receipt, error) {
	if file == nil || originalName == "" {
		return nil, ErrMissingFile
	}
	if !validAmount(amount) {
		return nil, ErrInvalidAmount
	}

	filename, err := s.writeFile(file, originalName)
	if err != nil {
		return nil, err
	}

	result, err := s.db.Exec(
		"INSERT INTO receipts (user_id, request_id, filename, description, amount) VALUES (?, ?, ?, ?, ?)",
		userID, requestID, filename, description, amount,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to insert receipt: %w", err)
	}

	id, _ := result.LastInsertId()
	return &models.Receipt{
		ID:          id,
		UserID:      userID,
		RequestID:   requestID,
		Filename:    filename,
		Description: description,
		Amount:      amount,
		CreatedAt:   time.Now(),
	}, nil
}

// writeFile creates the file exclusively. If another upload in the same
// second already took the name, a numeric discriminator is inserted after
// the timestamp so stored names stay pairwise distinct.
func (s *ReceiptService) writeFile(file io.Reader, originalName string) (string, error) {
	base := SanitizeFilename(originalName)
	if base == "" {
		base = "receipt"
	}
	prefix := time.Now().Format("20060102_150405") + "_"

	for i := 0; ; i++ {
		name := prefix + base
		if i > 0 {
			name = fmt.Sprintf("%s%d_%s", prefix, i, base)
		}

		f, err := os.OpenFile(filepath.Join(s.uploadDir, name), os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0644)
		if err != nil {
			if errors.Is(err, fs.ErrExist) {
				continue
			}
			return "", fmt.Errorf("failed to create receipt file: %w", err)
		}

		if _, err := io.Copy(f, file); err != nil {
			f.Close()
			os.Remove(f.Name())
			return "", fmt.Errorf("failed to write receipt file: %w", err)
		}
		if err := f.Close(); err != nil {
			return "", fmt.Errorf("failed to write receipt file: %w", err)
		}
		return name, nil
	}
}

// ListRecentByUser returns the user's latest receipts with the purpose of
// the linked request, if any.
func (s *ReceiptService) ListRecentByUser(userID int64, limit int) ([]models.Receipt, error) {
	rows, err := s.db.Query(`
		SELECT r.id, r.user_id, r.request_id, r.filename, r.description, r.amount, r.created_at,
		       COALESCE(req.purpose, '')
		FROM receipts r
		LEFT JOIN requests req ON r.request_id = req.id
		WHERE r.user_id = ?
		ORDER BY r.created_at DESC, r.id DESC
		LIMIT ?
	`, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list receipts: %w", err)
	}
	defer rows.Close()

	var receipts []models.Receipt
	for rows.Next() {
		var rc models.Receipt
		if err := rows.Scan(&rc.ID, &rc.UserID, &rc.RequestID, &rc.Filename, &rc.Description, &rc.Amount, &rc.CreatedAt, &rc.RequestPurpose); err != nil {
			return nil, fmt.Errorf("failed to scan receipt: %w", err)
		}
		receipts = append(receipts, rc)
	}
	return receipts, rows.Err()
}

// SanitizeFilename strips any path components from a client-supplied
// filename and collapses characters outside [A-Za-z0-9._-] to underscores.
// Leading dots are removed so the result can never be a dotfile or a
// traversal component.
func SanitizeFilename(name string) string {
	name = strings.ReplaceAll(name, "\\", "/")
	name = path.Base(name)
	name = unsafeFilenameChars.ReplaceAllString(name, "_")
	name = strings.TrimLeft(name, ".")
	if name == "_" {
		return ""
	}
	return name
}
