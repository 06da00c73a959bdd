package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/rl1809/stock-sync/internal/core/domain"
)

const itemColumns = `id, owner_id, name, category, unit, supplier, stock, minimum, unit_cost,
	expiry_date, purchase_quantity, purchase_unit, purchase_total_cost, created_at, updated_at`

// Schema creates the items table when it does not exist yet.
const Schema = `
CREATE TABLE IF NOT EXISTS inventory_items (
	id                  CHAR(36)       NOT NULL PRIMARY KEY,
	owner_id            VARCHAR(64)    NOT NULL,
	name                VARCHAR(255)   NOT NULL,
	category            VARCHAR(128)   NOT NULL,
	unit                VARCHAR(32)    NOT NULL DEFAULT '',
	supplier            VARCHAR(255)   NOT NULL DEFAULT '',
	stock               DOUBLE         NOT NULL DEFAULT 0,
	minimum             DOUBLE         NOT NULL DEFAULT 0,
	unit_cost           DECIMAL(14,4)  NOT NULL DEFAULT 0,
	expiry_date         DATETIME       NULL,
	purchase_quantity   DOUBLE         NULL,
	purchase_unit       VARCHAR(32)    NULL,
	purchase_total_cost DECIMAL(14,4)  NULL,
	created_at          DATETIME(6)    NOT NULL,
	updated_at          DATETIME(6)    NOT NULL,
	KEY idx_owner_name (owner_id, name)
)`

// MySQLStore is the remote item store. Every statement is scoped by owner_id.
type MySQLStore struct {
	db     *sql.DB
	logger zerolog.Logger
	now    func() time.Time
}

func NewMySQLStore(db *sql.DB, logger zerolog.Logger) *MySQLStore {
	return &MySQLStore{db: db, logger: logger, now: time.Now}
}

func (m *MySQLStore) Migrate(ctx context.Context) error {
	if _, err := m.db.ExecContext(ctx, Schema); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

func (m *MySQLStore) Insert(ctx context.Context, ownerID string, fields domain.ItemFields) (domain.Item, error) {
	now := m.now().UTC()
	item := domain.Item{
		ID:         uuid.NewString(),
		OwnerID:    ownerID,
		Name:       strings.TrimSpace(fields.Name),
		Category:   strings.TrimSpace(fields.Category),
		Unit:       fields.Unit,
		Supplier:   fields.Supplier,
		Stock:      fields.Stock,
		Minimum:    fields.Minimum,
		UnitCost:   fields.UnitCost,
		ExpiryDate: fields.ExpiryDate,
		Purchase:   fields.Purchase,
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	qty, unit, cost := purchaseArgs(item.Purchase)
	_, err := m.db.ExecContext(ctx, `
		INSERT INTO inventory_items (`+itemColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		item.ID, item.OwnerID, item.Name, item.Category, item.Unit, item.Supplier,
		item.Stock, item.Minimum, item.UnitCost, nullTime(item.ExpiryDate),
		qty, unit, cost, item.CreatedAt, item.UpdatedAt,
	)
	if err != nil {
		return domain.Item{}, fmt.Errorf("insert item: %w", err)
	}
	return item, nil
}

// Update writes the patched columns and returns the stored row.
func (m *MySQLStore) Update(ctx context.Context, id, ownerID string, patch domain.ItemPatch) (domain.Item, error) {
	sets, args := patchAssignments(patch)
	sets = append(sets, "updated_at = ?")
	args = append(args, m.now().UTC(), id, ownerID)

	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return domain.Item{}, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`UPDATE inventory_items SET `+strings.Join(sets, ", ")+` WHERE id = ? AND owner_id = ?`,
		args...,
	)
	if err != nil {
		return domain.Item{}, fmt.Errorf("update item: %w", err)
	}

	row := tx.QueryRowContext(ctx,
		`SELECT `+itemColumns+` FROM inventory_items WHERE id = ? AND owner_id = ?`, id, ownerID)
	item, err := scanItem(row)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Item{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.Item{}, fmt.Errorf("read updated item: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return domain.Item{}, fmt.Errorf("commit: %w", err)
	}
	return item, nil
}

func (m *MySQLStore) Delete(ctx context.Context, id, ownerID string) error {
	result, err := m.db.ExecContext(ctx,
		`DELETE FROM inventory_items WHERE id = ? AND owner_id = ?`, id, ownerID)
	if err != nil {
		return fmt.Errorf("delete item: %w", err)
	}

	return requireAffected(result, "delete item")
}

// requireAffected maps a statement that touched no rows to ErrNotFound.
func requireAffected(result sql.Result, op string) error {
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s: rows affected: %w", op, err)
	}
	if rows == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// DeleteMany removes the ids in one statement. Ids that do not exist or
// belong to another owner are ignored.
func (m *MySQLStore) DeleteMany(ctx context.Context, ids []string, ownerID string) error {
	if len(ids) == 0 {
		return nil
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(ids)), ", ")
	args := make([]any, 0, len(ids)+1)
	args = append(args, ownerID)
	for _, id := range ids {
		args = append(args, id)
	}

	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`DELETE FROM inventory_items WHERE owner_id = ? AND id IN (`+placeholders+`)`, args...)
	if err != nil {
		return fmt.Errorf("delete items: %w", err)
	}
	return tx.Commit()
}

func (m *MySQLStore) SelectAll(ctx context.Context, ownerID string) ([]domain.Item, error) {
	rows, err := m.db.QueryContext(ctx,
		`SELECT `+itemColumns+` FROM inventory_items WHERE owner_id = ? ORDER BY name, id`, ownerID)
	if err != nil {
		return nil, fmt.Errorf("query items: %w", err)
	}
	defer rows.Close()

	items := make([]domain.Item, 0)
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			m.logger.Warn().Err(err).Str("owner_id", ownerID).Msg("skipping unreadable row")
			continue
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("query items: %w", err)
	}
	return items, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanItem(row rowScanner) (domain.Item, error) {
	var (
		item      domain.Item
		expiry    sql.NullTime
		qty       sql.NullFloat64
		unit      sql.NullString
		totalCost decimal.NullDecimal
	)
	err := row.Scan(
		&item.ID, &item.OwnerID, &item.Name, &item.Category, &item.Unit, &item.Supplier,
		&item.Stock, &item.Minimum, &item.UnitCost,
		&expiry, &qty, &unit, &totalCost, &item.CreatedAt, &item.UpdatedAt,
	)
	if err != nil {
		return domain.Item{}, err
	}

	if expiry.Valid {
		t := expiry.Time
		item.ExpiryDate = &t
	}
	if qty.Valid {
		item.Purchase = &domain.PurchaseInfo{
			Quantity:  qty.Float64,
			Unit:      unit.String,
			TotalCost: totalCost.Decimal,
		}
	}
	return item, nil
}

func patchAssignments(p domain.ItemPatch) ([]string, []any) {
	var (
		sets []string
		args []any
	)
	add := func(column string, v any) {
		sets = append(sets, column+" = ?")
		args = append(args, v)
	}

	if p.Name != nil {
		add("name", strings.TrimSpace(*p.Name))
	}
	if p.Category != nil {
		add("category", strings.TrimSpace(*p.Category))
	}
	if p.Unit != nil {
		add("unit", *p.Unit)
	}
	if p.Supplier != nil {
		add("supplier", *p.Supplier)
	}
	if p.Stock != nil {
		add("stock", *p.Stock)
	}
	if p.Minimum != nil {
		add("minimum", *p.Minimum)
	}
	if p.UnitCost != nil {
		add("unit_cost", *p.UnitCost)
	}
	if p.ExpiryDate != nil {
		add("expiry_date", *p.ExpiryDate)
	}
	if p.ClearExpiry {
		add("expiry_date", nil)
	}
	if p.Purchase != nil {
		qty, unit, cost := purchaseArgs(p.Purchase)
		add("purchase_quantity", qty)
		add("purchase_unit", unit)
		add("purchase_total_cost", cost)
	}
	return sets, args
}

func purchaseArgs(p *domain.PurchaseInfo) (any, any, any) {
	if p == nil {
		return nil, nil, nil
	}
	return p.Quantity, p.Unit, p.TotalCost
}

func nullTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return *t
}
