package store

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/sharedcart/sharedcart/internal/model"
)

type ItemStore struct {
	db *sql.DB
}

func NewItemStore(db *sql.DB) *ItemStore {
	return &ItemStore{db: db}
}

func scanItem(scanner interface{ Scan(...any) error }) (*model.Item, error) {
	var item model.Item
	var weight sql.NullFloat64
	var weightUnit sql.NullString
	var purchased int
	var purchasedBy, addedBy sql.NullInt64
	var purchasedAt sql.NullTime

	err := scanner.Scan(
		&item.ID, &item.ListID, &item.Name, &item.Quantity, &weight, &weightUnit,
		&purchased, &purchasedBy, &purchasedAt, &addedBy, &item.Version,
		&item.CreatedAt, &item.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	item.Purchased = purchased != 0
	if weight.Valid {
		item.Weight = &weight.Float64
	}
	if weightUnit.Valid {
		item.WeightUnit = &weightUnit.String
	}
	if purchasedBy.Valid {
		item.PurchasedBy = &purchasedBy.Int64
	}
	if purchasedAt.Valid {
		item.PurchasedAt = &purchasedAt.Time
	}
	if addedBy.Valid {
		item.AddedBy = &addedBy.Int64
	}
	return &item, nil
}

const itemCols = `id, list_id, name, quantity, weight, weight_unit, purchased, purchased_by, purchased_at, added_by, version, created_at, updated_at`

func (s *ItemStore) GetByID(id int64) (*model.Item, error) {
	row := s.db.QueryRow(`SELECT `+itemCols+` FROM items WHERE id = ?`, id)
	item, err := scanItem(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get item: %w", err)
	}
	return item, nil
}

// Create inserts an item and bumps the parent list's updated_at.
// Weight and weight unit travel together: both set or both NULL.
func (s *ItemStore) Create(listID int64, name string, quantity int, weight *float64, weightUnit *string, addedBy int64) (*model.Item, error) {
	w, wu := weightColumns(weight, weightUnit)

	tx, err := s.db.Begin()
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	result, err := tx.Exec(
		`INSERT INTO items (list_id, name, quantity, weight, weight_unit, added_by) VALUES (?, ?, ?, ?, ?, ?)`,
		listID, name, quantity, w, wu, addedBy,
	)
	if err != nil {
		return nil, fmt.Errorf("insert item: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}

	if _, err := tx.Exec(`UPDATE lists SET updated_at = ? WHERE id = ?`, time.Now().UTC(), listID); err != nil {
		return nil, fmt.Errorf("touch list: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	return s.GetByID(id)
}

// ItemUpdate carries the full target state of an item for Update. The handler
// merges partial request fields into the existing row before calling this.
type ItemUpdate struct {
	Name       string
	Quantity   int
	Weight     *float64
	WeightUnit *string
	Purchased  bool
	// Actor marks who toggled the purchased flag on.
	Actor int64
	// ExpectedVersion, when non-nil, rejects the write if the row has moved on.
	ExpectedVersion *int64
}

// Update writes an item's new state. Purchase attribution is kept consistent
// with the flag: turning it on stamps the actor and time once, turning it off
// clears both. Returns ErrVersionConflict on a stale ExpectedVersion.
func (s *ItemStore) Update(id int64, upd ItemUpdate) (*model.Item, error) {
	existing, err := s.GetByID(id)
	if err != nil {
		return nil, err
	}
	if existing == nil {
		return nil, nil
	}

	var purchasedBy sql.NullInt64
	var purchasedAt sql.NullTime
	if upd.Purchased {
		if existing.Purchased {
			// Already purchased: attribution is stable across repeat writes.
			if existing.PurchasedBy != nil {
				purchasedBy = sql.NullInt64{Int64: *existing.PurchasedBy, Valid: true}
			}
			if existing.PurchasedAt != nil {
				purchasedAt = sql.NullTime{Time: *existing.PurchasedAt, Valid: true}
			}
		} else {
			purchasedBy = sql.NullInt64{Int64: upd.Actor, Valid: true}
			purchasedAt = sql.NullTime{Time: time.Now().UTC(), Valid: true}
		}
	}

	w, wu := weightColumns(upd.Weight, upd.WeightUnit)

	query := `UPDATE items SET name = ?, quantity = ?, weight = ?, weight_unit = ?,
		purchased = ?, purchased_by = ?, purchased_at = ?,
		version = version + 1, updated_at = ? WHERE id = ?`
	args := []any{
		upd.Name, upd.Quantity, w, wu,
		boolToInt(upd.Purchased), purchasedBy, purchasedAt,
		time.Now().UTC(), id,
	}
	if upd.ExpectedVersion != nil {
		query += ` AND version = ?`
		args = append(args, *upd.ExpectedVersion)
	}

	result, err := s.db.Exec(query, args...)
	if err != nil {
		return nil, fmt.Errorf("update item: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return nil, ErrVersionConflict
	}

	if err := s.touchList(existing.ListID); err != nil {
		return nil, err
	}
	return s.GetByID(id)
}

// Delete removes an item scoped to its list. Returns false if no row matched.
func (s *ItemStore) Delete(listID, itemID int64) (bool, error) {
	result, err := s.db.Exec(`DELETE FROM items WHERE id = ? AND list_id = ?`, itemID, listID)
	if err != nil {
		return false, fmt.Errorf("delete item: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return false, nil
	}
	return true, s.touchList(listID)
}

// ListByList returns a list's items, unpurchased first, then alphabetically by
// name within each group. Each item carries the adder's display name.
func (s *ItemStore) ListByList(listID int64) ([]model.Item, error) {
	rows, err := s.db.Query(
		`SELECT i.id, i.list_id, i.name, i.quantity, i.weight, i.weight_unit,
		        i.purchased, i.purchased_by, i.purchased_at, i.added_by, i.version,
		        i.created_at, i.updated_at,
		        COALESCE(u.first_name, ''), COALESCE(u.last_name, '')
		 FROM items i
		 LEFT JOIN users u ON u.id = i.added_by
		 WHERE i.list_id = ?
		 ORDER BY i.purchased ASC, i.name COLLATE NOCASE ASC`,
		listID,
	)
	if err != nil {
		return nil, fmt.Errorf("list items: %w", err)
	}
	defer rows.Close()

	var items []model.Item
	for rows.Next() {
		var item model.Item
		var weight sql.NullFloat64
		var weightUnit sql.NullString
		var purchased int
		var purchasedBy, addedBy sql.NullInt64
		var purchasedAt sql.NullTime
		var first, last string

		err := rows.Scan(
			&item.ID, &item.ListID, &item.Name, &item.Quantity, &weight, &weightUnit,
			&purchased, &purchasedBy, &purchasedAt, &addedBy, &item.Version,
			&item.CreatedAt, &item.UpdatedAt, &first, &last,
		)
		if err != nil {
			return nil, fmt.Errorf("scan item: %w", err)
		}

		item.Purchased = purchased != 0
		if weight.Valid {
			item.Weight = &weight.Float64
		}
		if weightUnit.Valid {
			item.WeightUnit = &weightUnit.String
		}
		if purchasedBy.Valid {
			item.PurchasedBy = &purchasedBy.Int64
		}
		if purchasedAt.Valid {
			item.PurchasedAt = &purchasedAt.Time
		}
		if addedBy.Valid {
			item.AddedBy = &addedBy.Int64
		}
		item.AddedByName = joinName(first, last)
		items = append(items, item)
	}
	return items, rows.Err()
}

func (s *ItemStore) touchList(listID int64) error {
	_, err := s.db.Exec(`UPDATE lists SET updated_at = ? WHERE id = ?`, time.Now().UTC(), listID)
	if err != nil {
		return fmt.Errorf("touch list: %w", err)
	}
	return nil
}

// weightColumns maps weight and unit to their columns. The unit is stored only
// alongside a weight, so the pair is always set or cleared together.
func weightColumns(weight *float64, unit *string) (sql.NullFloat64, sql.NullString) {
	var w sql.NullFloat64
	var wu sql.NullString
	if weight != nil {
		w = sql.NullFloat64{Float64: *weight, Valid: true}
		if unit != nil {
			wu = sql.NullString{String: *unit, Valid: true}
		}
	}
	return w, wu
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
