package store

import (
	"context"
	"crypto/rand"
	"database/sql"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/sethvargo/go-retry"

	"github.com/sharedcart/sharedcart/internal/model"
)

const codeChars = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

type ListStore struct {
	db *sql.DB
}

func NewListStore(db *sql.DB) *ListStore {
	return &ListStore{db: db}
}

func scanListRow(scanner interface{ Scan(...any) error }) (*model.List, error) {
	var l model.List
	err := scanner.Scan(&l.ID, &l.Name, &l.Description, &l.Code, &l.CreatorID, &l.CreatedAt, &l.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &l, nil
}

const listCols = `id, name, description, code, creator_id, created_at, updated_at`

// generateCode returns a random 6-8 character uppercase alphanumeric code.
func generateCode() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(3))
	if err != nil {
		return "", fmt.Errorf("generate code length: %w", err)
	}
	length := 6 + int(n.Int64())

	var b strings.Builder
	for i := 0; i < length; i++ {
		idx, err := rand.Int(rand.Reader, big.NewInt(int64(len(codeChars))))
		if err != nil {
			return "", fmt.Errorf("generate code: %w", err)
		}
		b.WriteByte(codeChars[idx.Int64()])
	}
	return b.String(), nil
}

// Create inserts a list with a fresh share code and its creator as the first
// member, in one transaction. Code uniqueness is enforced by the UNIQUE
// constraint; collisions are retried with capped backoff.
func (s *ListStore) Create(ctx context.Context, name, description string, creatorID int64) (*model.List, error) {
	var listID int64

	backoff := retry.WithMaxRetries(4, retry.NewExponential(10*time.Millisecond))
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		code, err := generateCode()
		if err != nil {
			return err
		}

		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("begin tx: %w", err)
		}
		defer tx.Rollback()

		result, err := tx.ExecContext(ctx,
			`INSERT INTO lists (name, description, code, creator_id) VALUES (?, ?, ?, ?)`,
			name, description, code, creatorID,
		)
		if isUniqueViolation(err) {
			return retry.RetryableError(fmt.Errorf("code collision: %w", err))
		}
		if err != nil {
			return fmt.Errorf("insert list: %w", err)
		}

		listID, err = result.LastInsertId()
		if err != nil {
			return fmt.Errorf("last insert id: %w", err)
		}

		if _, err := tx.ExecContext(ctx,
			`INSERT INTO list_members (list_id, user_id) VALUES (?, ?)`,
			listID, creatorID,
		); err != nil {
			return fmt.Errorf("insert creator membership: %w", err)
		}

		return tx.Commit()
	})
	if err != nil {
		return nil, err
	}
	return s.GetByID(listID)
}

func (s *ListStore) GetByID(id int64) (*model.List, error) {
	row := s.db.QueryRow(`SELECT `+listCols+` FROM lists WHERE id = ?`, id)
	l, err := scanListRow(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get list: %w", err)
	}
	return l, nil
}

// GetByCode looks up a list by its share code, normalized to uppercase.
func (s *ListStore) GetByCode(code string) (*model.List, error) {
	normalized := strings.ToUpper(strings.TrimSpace(code))
	row := s.db.QueryRow(`SELECT `+listCols+` FROM lists WHERE code = ?`, normalized)
	l, err := scanListRow(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get list by code: %w", err)
	}
	return l, nil
}

func (s *ListStore) Update(id int64, name, description string) (*model.List, error) {
	_, err := s.db.Exec(
		`UPDATE lists SET name = ?, description = ?, updated_at = ? WHERE id = ?`,
		name, description, time.Now().UTC(), id,
	)
	if err != nil {
		return nil, fmt.Errorf("update list: %w", err)
	}
	return s.GetByID(id)
}

// Delete removes a list and all its items in one transaction.
func (s *ListStore) Delete(id int64) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM items WHERE list_id = ?`, id); err != nil {
		return fmt.Errorf("delete list items: %w", err)
	}
	if _, err := tx.Exec(`DELETE FROM list_members WHERE list_id = ?`, id); err != nil {
		return fmt.Errorf("delete list members: %w", err)
	}
	if _, err := tx.Exec(`DELETE FROM lists WHERE id = ?`, id); err != nil {
		return fmt.Errorf("delete list: %w", err)
	}

	return tx.Commit()
}

// AddMember appends a user to a list. Returns ErrAlreadyMember when the
// (list, user) pair already exists.
func (s *ListStore) AddMember(listID, userID int64) error {
	_, err := s.db.Exec(
		`INSERT INTO list_members (list_id, user_id) VALUES (?, ?)`,
		listID, userID,
	)
	if isUniqueViolation(err) {
		return ErrAlreadyMember
	}
	if err != nil {
		return fmt.Errorf("add member: %w", err)
	}
	return nil
}

func (s *ListStore) RemoveMember(listID, userID int64) error {
	_, err := s.db.Exec(
		`DELETE FROM list_members WHERE list_id = ? AND user_id = ?`,
		listID, userID,
	)
	if err != nil {
		return fmt.Errorf("remove member: %w", err)
	}
	return nil
}

func (s *ListStore) IsMember(listID, userID int64) (bool, error) {
	var count int
	err := s.db.QueryRow(
		`SELECT COUNT(*) FROM list_members WHERE list_id = ? AND user_id = ?`,
		listID, userID,
	).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("check membership: %w", err)
	}
	return count > 0, nil
}

// ListMembers returns member user ids and display names, creator first.
func (s *ListStore) ListMembers(listID int64) ([]model.MemberInfo, error) {
	rows, err := s.db.Query(
		`SELECT u.id, u.first_name, u.last_name
		 FROM list_members lm
		 JOIN users u ON u.id = lm.user_id
		 WHERE lm.list_id = ?
		 ORDER BY lm.created_at ASC`,
		listID,
	)
	if err != nil {
		return nil, fmt.Errorf("list members: %w", err)
	}
	defer rows.Close()

	var members []model.MemberInfo
	for rows.Next() {
		var m model.MemberInfo
		var first, last string
		if err := rows.Scan(&m.UserID, &first, &last); err != nil {
			return nil, fmt.Errorf("scan member: %w", err)
		}
		m.Name = joinName(first, last)
		members = append(members, m)
	}
	return members, rows.Err()
}

// ListForUser returns every list the user belongs to, with item counts and
// the creator's display name, computed in a single aggregate query.
func (s *ListStore) ListForUser(userID int64) ([]model.ListSummary, error) {
	rows, err := s.db.Query(
		`SELECT l.id, l.name, l.description, l.code, l.creator_id, l.created_at, l.updated_at,
		        u.first_name, u.last_name,
		        COUNT(i.id), COALESCE(SUM(i.purchased), 0)
		 FROM lists l
		 JOIN list_members lm ON lm.list_id = l.id AND lm.user_id = ?
		 JOIN users u ON u.id = l.creator_id
		 LEFT JOIN items i ON i.list_id = l.id
		 GROUP BY l.id
		 ORDER BY l.updated_at DESC`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("list for user: %w", err)
	}
	defer rows.Close()

	var summaries []model.ListSummary
	for rows.Next() {
		var sm model.ListSummary
		var first, last string
		err := rows.Scan(
			&sm.ID, &sm.Name, &sm.Description, &sm.Code, &sm.CreatorID, &sm.CreatedAt, &sm.UpdatedAt,
			&first, &last, &sm.TotalItems, &sm.PurchasedItems,
		)
		if err != nil {
			return nil, fmt.Errorf("scan list summary: %w", err)
		}
		sm.CreatorName = joinName(first, last)
		summaries = append(summaries, sm)
	}
	return summaries, rows.Err()
}

// CreatorName returns the display name of a list's creator.
func (s *ListStore) CreatorName(listID int64) (string, error) {
	var first, last string
	err := s.db.QueryRow(
		`SELECT u.first_name, u.last_name FROM lists l JOIN users u ON u.id = l.creator_id WHERE l.id = ?`,
		listID,
	).Scan(&first, &last)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("creator name: %w", err)
	}
	return joinName(first, last), nil
}

// Touch bumps the list's updated_at, used when items change underneath it.
func (s *ListStore) Touch(id int64) error {
	_, err := s.db.Exec(`UPDATE lists SET updated_at = ? WHERE id = ?`, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("touch list: %w", err)
	}
	return nil
}

func joinName(first, last string) string {
	if last == "" {
		return first
	}
	return first + " " + last
}
