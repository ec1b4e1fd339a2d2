package repository

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// TransactionFilters defines list filters. Zero values mean no filter.
type TransactionFilters struct {
	CategoryID     string
	RecurringID    string
	From           time.Time // inclusive
	To             time.Time // exclusive
	Search         string
	IncludeDeleted bool
}

// TransactionRepo handles transactions.
type TransactionRepo struct {
	db *sql.DB
}

func NewTransactionRepo(db *sql.DB) *TransactionRepo { return &TransactionRepo{db: db} }

const transactionColumns = `id, payee, date, amount_cents, currency, base_amount_cents, base_currency, exchange_rate, category_id, recurring_id, notes, deleted_at, created_at, updated_at`

func (r *TransactionRepo) Insert(ctx context.Context, q DBTX, t Transaction) error {
	_, err := q.ExecContext(ctx, `
	INSERT INTO transactions(
	 id, payee, date, amount_cents, currency, base_amount_cents, base_currency,
	 exchange_rate, category_id, recurring_id, notes, created_at, updated_at)
	VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, CURRENT_TIMESTAMP, CURRENT_TIMESTAMP);
	`,
		t.ID, t.Payee, t.Date, t.AmountCents, t.Currency, t.BaseAmountCents,
		t.BaseCurrency, t.ExchangeRate.String(), t.CategoryID, t.RecurringID, t.Notes)
	return err
}

// SoftDelete marks a transaction deleted. Rows are never hard-deleted so
// referential history survives.
func (r *TransactionRepo) SoftDelete(ctx context.Context, q DBTX, id string, now time.Time) error {
	_, err := q.ExecContext(ctx, `UPDATE transactions SET deleted_at = ?, updated_at=CURRENT_TIMESTAMP WHERE id = ? AND deleted_at IS NULL`, now, id)
	return err
}

// UpdateBaseAmount rewrites the three derived currency fields together. A
// single UPDATE keeps the row's derived state internally consistent even if a
// bulk rebase is interrupted between rows.
func (r *TransactionRepo) UpdateBaseAmount(ctx context.Context, id string, baseCents int64, baseCurrency string, rate decimal.Decimal) error {
	_, err := r.db.ExecContext(ctx, `UPDATE transactions SET base_amount_cents = ?, base_currency = ?, exchange_rate = ?, updated_at=CURRENT_TIMESTAMP WHERE id = ?`,
		baseCents, baseCurrency, rate.String(), id)
	return err
}

func (r *TransactionRepo) UpdateCategory(ctx context.Context, q DBTX, id string, categoryID *string) error {
	_, err := q.ExecContext(ctx, `UPDATE transactions SET category_id = ?, updated_at=CURRENT_TIMESTAMP WHERE id = ?`, categoryID, id)
	return err
}

func (r *TransactionRepo) Get(ctx context.Context, id string) (*Transaction, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+transactionColumns+` FROM transactions WHERE id = ?`, id)
	t, err := scanTransaction(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return &t, nil
}

func (r *TransactionRepo) List(ctx context.Context, f TransactionFilters) ([]Transaction, error) {
	var where []string
	var args []any

	if !f.IncludeDeleted {
		where = append(where, "deleted_at IS NULL")
	}
	if f.CategoryID != "" {
		where = append(where, "category_id = ?")
		args = append(args, f.CategoryID)
	}
	if f.RecurringID != "" {
		where = append(where, "recurring_id = ?")
		args = append(args, f.RecurringID)
	}
	if !f.From.IsZero() {
		where = append(where, "date >= ?")
		args = append(args, f.From)
	}
	if !f.To.IsZero() {
		where = append(where, "date < ?")
		args = append(args, f.To)
	}
	if f.Search != "" {
		where = append(where, "payee LIKE ?")
		args = append(args, "%"+f.Search+"%")
	}

	query := `SELECT ` + transactionColumns + ` FROM transactions`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY date DESC, created_at DESC"

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Transaction
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// ListAfter returns a keyset page of live transactions ordered by id. The bulk
// rebase walks the table in these pages so it never holds the whole table in
// memory and can yield between batches.
func (r *TransactionRepo) ListAfter(ctx context.Context, afterID string, limit int) ([]Transaction, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+transactionColumns+` FROM transactions WHERE deleted_at IS NULL AND id > ? ORDER BY id LIMIT ?`, afterID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Transaction
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// SumExpenses returns the sum of absolute values of negative (expense) base
// amounts for live transactions in [from, to), optionally restricted to a
// category set.
func (r *TransactionRepo) SumExpenses(ctx context.Context, from, to time.Time, categoryIDs []string) (int64, error) {
	query := `SELECT COALESCE(SUM(-base_amount_cents), 0) FROM transactions
	 WHERE deleted_at IS NULL AND base_amount_cents < 0 AND date >= ? AND date < ?`
	args := []any{from, to}
	if len(categoryIDs) > 0 {
		query += ` AND category_id IN (?` + strings.Repeat(",?", len(categoryIDs)-1) + `)`
		for _, id := range categoryIDs {
			args = append(args, id)
		}
	}
	var total int64
	err := r.db.QueryRowContext(ctx, query, args...).Scan(&total)
	return total, err
}

func scanTransaction(row scanner) (Transaction, error) {
	var t Transaction
	var rate string
	var category, recurring, notes sql.NullString
	var deleted sql.NullTime
	if err := row.Scan(&t.ID, &t.Payee, &t.Date, &t.AmountCents, &t.Currency,
		&t.BaseAmountCents, &t.BaseCurrency, &rate, &category, &recurring,
		&notes, &deleted, &t.CreatedAt, &t.UpdatedAt); err != nil {
		return Transaction{}, err
	}
	parsed, err := decimal.NewFromString(rate)
	if err != nil {
		return Transaction{}, err
	}
	t.ExchangeRate = parsed
	if category.Valid {
		t.CategoryID = &category.String
	}
	if recurring.Valid {
		t.RecurringID = &recurring.String
	}
	if notes.Valid {
		t.Notes = &notes.String
	}
	if deleted.Valid {
		t.DeletedAt = &deleted.Time
	}
	return t, nil
}
