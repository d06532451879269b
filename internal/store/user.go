package store

import (
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/sharedcart/sharedcart/internal/model"
)

const (
	verificationTokenTTL = 24 * time.Hour
	resetTokenTTL        = time.Hour
)

type UserStore struct {
	db *sql.DB
}

func NewUserStore(db *sql.DB) *UserStore {
	return &UserStore{db: db}
}

func scanUser(scanner interface{ Scan(...any) error }) (*model.User, error) {
	var u model.User
	var verified int
	var verTok, resetTok sql.NullString
	var verExp, resetExp sql.NullTime

	err := scanner.Scan(
		&u.ID, &u.Email, &u.Login, &u.FirstName, &u.LastName, &u.PasswordHash,
		&verified, &verTok, &verExp, &resetTok, &resetExp,
		&u.CreatedAt, &u.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	u.EmailVerified = verified != 0
	if verTok.Valid {
		u.VerificationToken = &verTok.String
	}
	if verExp.Valid {
		u.VerificationExpires = &verExp.Time
	}
	if resetTok.Valid {
		u.ResetToken = &resetTok.String
	}
	if resetExp.Valid {
		u.ResetExpires = &resetExp.Time
	}
	return &u, nil
}

const userCols = `id, email, login, first_name, last_name, password_hash, email_verified, verification_token, verification_expires, reset_token, reset_expires, created_at, updated_at`

// generateToken returns 32 cryptographically random bytes, hex-encoded.
func generateToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generate token: %w", err)
	}
	return hex.EncodeToString(b), nil
}

// Create inserts an unverified user with a fresh verification token.
// Email and login are stored lowercased. Duplicates surface as ErrEmailTaken
// or ErrLoginTaken off the UNIQUE constraints, so concurrent signups cannot
// race past a lookup.
func (s *UserStore) Create(email, login, firstName, lastName, passwordHash string) (*model.User, error) {
	token, err := generateToken()
	if err != nil {
		return nil, err
	}
	expires := time.Now().UTC().Add(verificationTokenTTL)

	result, err := s.db.Exec(
		`INSERT INTO users (email, login, first_name, last_name, password_hash, verification_token, verification_expires)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		strings.ToLower(email), strings.ToLower(login), firstName, lastName, passwordHash, token, expires,
	)
	if isUniqueViolation(err) {
		if strings.Contains(err.Error(), "users.email") {
			return nil, ErrEmailTaken
		}
		return nil, ErrLoginTaken
	}
	if err != nil {
		return nil, fmt.Errorf("insert user: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}
	return s.GetByID(id)
}

func (s *UserStore) GetByID(id int64) (*model.User, error) {
	row := s.db.QueryRow(`SELECT `+userCols+` FROM users WHERE id = ?`, id)
	u, err := scanUser(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}
	return u, nil
}

func (s *UserStore) GetByEmail(email string) (*model.User, error) {
	row := s.db.QueryRow(`SELECT `+userCols+` FROM users WHERE email = ?`, strings.ToLower(email))
	u, err := scanUser(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get user by email: %w", err)
	}
	return u, nil
}

// GetByEmailOrLogin resolves a login-form identifier against either column.
func (s *UserStore) GetByEmailOrLogin(identifier string) (*model.User, error) {
	ident := strings.ToLower(identifier)
	row := s.db.QueryRow(`SELECT `+userCols+` FROM users WHERE email = ? OR login = ?`, ident, ident)
	u, err := scanUser(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get user by email or login: %w", err)
	}
	return u, nil
}

// GetByVerificationToken returns the user holding an unexpired verification token.
func (s *UserStore) GetByVerificationToken(token string) (*model.User, error) {
	row := s.db.QueryRow(
		`SELECT `+userCols+` FROM users WHERE verification_token = ? AND verification_expires > ?`,
		token, time.Now().UTC(),
	)
	u, err := scanUser(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get user by verification token: %w", err)
	}
	return u, nil
}

// GetByVerificationTokenAny ignores expiry, so an expired link can be told
// apart from a garbage one.
func (s *UserStore) GetByVerificationTokenAny(token string) (*model.User, error) {
	row := s.db.QueryRow(`SELECT `+userCols+` FROM users WHERE verification_token = ?`, token)
	u, err := scanUser(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get user by verification token: %w", err)
	}
	return u, nil
}

// MarkVerified sets email_verified and clears the verification token.
func (s *UserStore) MarkVerified(id int64) error {
	_, err := s.db.Exec(
		`UPDATE users SET email_verified = 1, verification_token = NULL, verification_expires = NULL,
		 updated_at = CURRENT_TIMESTAMP WHERE id = ?`,
		id,
	)
	if err != nil {
		return fmt.Errorf("mark verified: %w", err)
	}
	return nil
}

// RotateVerificationToken issues a fresh verification token for resend.
func (s *UserStore) RotateVerificationToken(id int64) (string, error) {
	token, err := generateToken()
	if err != nil {
		return "", err
	}
	expires := time.Now().UTC().Add(verificationTokenTTL)

	_, err = s.db.Exec(
		`UPDATE users SET verification_token = ?, verification_expires = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?`,
		token, expires, id,
	)
	if err != nil {
		return "", fmt.Errorf("rotate verification token: %w", err)
	}
	return token, nil
}

// SetResetToken issues a password reset token valid for one hour.
func (s *UserStore) SetResetToken(id int64) (string, error) {
	token, err := generateToken()
	if err != nil {
		return "", err
	}
	expires := time.Now().UTC().Add(resetTokenTTL)

	_, err = s.db.Exec(
		`UPDATE users SET reset_token = ?, reset_expires = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?`,
		token, expires, id,
	)
	if err != nil {
		return "", fmt.Errorf("set reset token: %w", err)
	}
	return token, nil
}

// GetByResetToken returns the user holding an unexpired reset token.
func (s *UserStore) GetByResetToken(token string) (*model.User, error) {
	row := s.db.QueryRow(
		`SELECT `+userCols+` FROM users WHERE reset_token = ? AND reset_expires > ?`,
		token, time.Now().UTC(),
	)
	u, err := scanUser(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get user by reset token: %w", err)
	}
	return u, nil
}

// UpdatePassword replaces the password hash and clears any reset token.
func (s *UserStore) UpdatePassword(id int64, passwordHash string) error {
	_, err := s.db.Exec(
		`UPDATE users SET password_hash = ?, reset_token = NULL, reset_expires = NULL,
		 updated_at = CURRENT_TIMESTAMP WHERE id = ?`,
		passwordHash, id,
	)
	if err != nil {
		return fmt.Errorf("update password: %w", err)
	}
	return nil
}

// PurgeExpiredTokens clears verification and reset tokens past their expiry.
func (s *UserStore) PurgeExpiredTokens() (int64, error) {
	now := time.Now().UTC()
	result, err := s.db.Exec(
		`UPDATE users SET
			verification_token = CASE WHEN verification_expires <= ?1 THEN NULL ELSE verification_token END,
			verification_expires = CASE WHEN verification_expires <= ?1 THEN NULL ELSE verification_expires END,
			reset_token = CASE WHEN reset_expires <= ?1 THEN NULL ELSE reset_token END,
			reset_expires = CASE WHEN reset_expires <= ?1 THEN NULL ELSE reset_expires END
		 WHERE verification_expires <= ?1 OR reset_expires <= ?1`,
		now,
	)
	if err != nil {
		return 0, fmt.Errorf("purge expired tokens: %w", err)
	}
	count, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	}
	return count, nil
}
