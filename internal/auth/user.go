package auth

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"pettycash/internal/database"
	"pettycash/internal/models"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

var (
	ErrUserNotFound     = errors.New("user not found")
	ErrInvalidPassword  = errors.New("invalid password")
	ErrUserExists       = errors.New("user already exists")
	ErrUsersExist       = errors.New("users already exist")
	ErrPasswordMismatch = errors.New("passwords do not match")
	ErrPasswordTooShort = errors.New("password too short")
	ErrWrongPassword    = errors.New("current password is incorrect")
)

// MinPasswordLength is the policy minimum for chosen passwords.
const MinPasswordLength = 6

type UserService struct {
	db *database.DB
}

func NewUserService(db *database.DB) *UserService {
	return &UserService{db: db}
}

func (s *UserService) create(username, password, name, role string, firstLogin bool) (*models.User, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	result, err := s.db.Exec(
		"INSERT INTO users (username, password_hash, name, role, is_first_login) VALUES (?, ?, ?, ?, ?)",
		username, string(hash), name, role, firstLogin,
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return nil, ErrUserExists
		}
		return nil, fmt.Errorf("failed to create user: %w", err)
	}

	id, _ := result.LastInsertId()
	return &models.User{
		ID:           id,
		Username:     username,
		Name:         name,
		Role:         role,
		IsFirstLogin: firstLogin,
		CreatedAt:    time.Now(),
	}, nil
}

// CreateWithTempPassword creates an account with a generated temporary
// password and the first-login flag set. The plaintext password is returned
// exactly once; only its hash is stored.
func (s *UserService) CreateWithTempPassword(username, name, role string) (*models.User, string, error) {
	tempPassword := uuid.NewString()
	user, err := s.create(username, tempPassword, name, role, true)
	if err != nil {
		return nil, "", err
	}
	return user, tempPassword, nil
}

// BootstrapDefaultAdmin creates the default admin account, but only when no
// users exist yet. The well-known password is expected to be changed right
// after first deployment.
func (s *UserService) BootstrapDefaultAdmin(username, password string) (*models.User, error) {
	count, err := s.Count()
	if err != nil {
		return nil, err
	}
	if count > 0 {
		return nil, ErrUsersExist
	}
	return s.create(username, password, "Administrator", models.RoleAdmin, false)
}

func (s *UserService) Authenticate(username, password string) (*models.User, error) {
	user, err := s.GetByUsername(username)
	if err != nil {
		return nil, err
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return nil, ErrInvalidPassword
	}

	return user, nil
}

// ChangePassword enforces the password policy and, outside first login,
// verifies the current password before storing the new hash. A successful
// change clears the first-login flag.
func (s *UserService) ChangePassword(id int64, current, newPassword, confirm string) error {
	if newPassword != confirm {
		return ErrPasswordMismatch
	}
	if len(newPassword) < MinPasswordLength {
		return ErrPasswordTooShort
	}

	user, err := s.GetByID(id)
	if err != nil {
		return err
	}

	if !user.IsFirstLogin {
		if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(current)); err != nil {
			return ErrWrongPassword
		}
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(newPassword), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("failed to hash password: %w", err)
	}

	if _, err := s.db.Exec(
		"UPDATE users SET password_hash = ?, is_first_login = 0 WHERE id = ?",
		string(hash), id,
	); err != nil {
		return fmt.Errorf("failed to update password: %w", err)
	}

	return nil
}

func (s *UserService) GetByID(id int64) (*models.User, error) {
	return s.getBy("id = ?", id)
}

func (s *UserService) GetByUsername(username string) (*models.User, error) {
	return s.getBy("username = ?", username)
}

func (s *UserService) getBy(where string, arg interface{}) (*models.User, error) {
	var user models.User
	err := s.db.QueryRow(
		"SELECT id, username, password_hash, name, role, is_first_login, created_at FROM users WHERE "+where,
		arg,
	).Scan(&user.ID, &user.Username, &user.PasswordHash, &user.Name, &user.Role, &user.IsFirstLogin, &user.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return &user, nil
}

func (s *UserService) List() ([]models.User, error) {
	rows, err := s.db.Query(
		"SELECT id, username, password_hash, name, role, is_first_login, created_at FROM users ORDER BY created_at DESC, id DESC",
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	defer rows.Close()

	var users []models.User
	for rows.Next() {
		var user models.User
		if err := rows.Scan(&user.ID, &user.Username, &user.PasswordHash, &user.Name, &user.Role, &user.IsFirstLogin, &user.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan user: %w", err)
		}
		users = append(users, user)
	}
	return users, rows.Err()
}

func (s *UserService) Count() (int, error) {
	var count int
	err := s.db.QueryRow("SELECT COUNT(*) FROM users").Scan(&count)
	return count, err
}

func isUniqueConstraintError(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}
