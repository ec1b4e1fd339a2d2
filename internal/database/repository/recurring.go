package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/centsible/centsible/internal/schedule"
)

// RecurringRepo handles recurring charge definitions.
type RecurringRepo struct {
	db *sql.DB
}

func NewRecurringRepo(db *sql.DB) *RecurringRepo { return &RecurringRepo{db: db} }

const recurringColumns = `id, payee, amount_cents, currency, category_id, period, start_date, end_date, next_due, last_materialized, active, created_at, updated_at`

func (r *RecurringRepo) Insert(ctx context.Context, d RecurringDefinition) error {
	_, err := r.db.ExecContext(ctx, `
	INSERT INTO recurring_definitions(
	 id, payee, amount_cents, currency, category_id, period, start_date, end_date,
	 next_due, last_materialized, active, created_at, updated_at)
	VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, CURRENT_TIMESTAMP, CURRENT_TIMESTAMP);
	`,
		d.ID, d.Payee, d.AmountCents, d.Currency, d.CategoryID, string(d.Period),
		d.StartDate, d.EndDate, d.NextDue, d.LastMaterialized, d.Active)
	return err
}

// Update rewrites a definition's user-editable fields and its recomputed due
// pointer together.
func (r *RecurringRepo) Update(ctx context.Context, d RecurringDefinition) error {
	_, err := r.db.ExecContext(ctx, `
	UPDATE recurring_definitions SET
	 payee = ?, amount_cents = ?, currency = ?, category_id = ?, period = ?,
	 start_date = ?, end_date = ?, next_due = ?, active = ?, updated_at=CURRENT_TIMESTAMP
	WHERE id = ?`,
		d.Payee, d.AmountCents, d.Currency, d.CategoryID, string(d.Period),
		d.StartDate, d.EndDate, d.NextDue, d.Active, d.ID)
	return err
}

func (r *RecurringRepo) Get(ctx context.Context, id string) (*RecurringDefinition, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+recurringColumns+` FROM recurring_definitions WHERE id = ?`, id)
	d, err := scanRecurring(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return &d, nil
}

func (r *RecurringRepo) List(ctx context.Context, activeOnly bool) ([]RecurringDefinition, error) {
	query := `SELECT ` + recurringColumns + ` FROM recurring_definitions`
	if activeOnly {
		query += ` WHERE active = 1`
	}
	query += ` ORDER BY next_due, payee`
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []RecurringDefinition
	for rows.Next() {
		d, err := scanRecurring(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

// ListDue returns active definitions whose pointer has fallen due, oldest
// first. Definitions whose pointer already sits at or past their end date are
// excluded; they have nothing left to generate.
func (r *RecurringRepo) ListDue(ctx context.Context, now time.Time) ([]RecurringDefinition, error) {
	rows, err := r.db.QueryContext(ctx, `
	SELECT `+recurringColumns+` FROM recurring_definitions
	WHERE active = 1 AND next_due <= ? AND (end_date IS NULL OR next_due < end_date)
	ORDER BY next_due, payee`, now)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []RecurringDefinition
	for rows.Next() {
		d, err := scanRecurring(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

// AdvancePointer moves the due pointer forward and records the occurrence that
// was just materialized. Runs on the caller's DBTX so the advance commits with
// the transaction write it belongs to.
func (r *RecurringRepo) AdvancePointer(ctx context.Context, q DBTX, id string, nextDue, lastMaterialized time.Time) error {
	_, err := q.ExecContext(ctx, `
	UPDATE recurring_definitions SET next_due = ?, last_materialized = ?, updated_at=CURRENT_TIMESTAMP
	WHERE id = ?`, nextDue, lastMaterialized, id)
	return err
}

// Deactivate retires a definition, e.g. when its end date is reached.
func (r *RecurringRepo) Deactivate(ctx context.Context, q DBTX, id string) error {
	_, err := q.ExecContext(ctx, `UPDATE recurring_definitions SET active = 0, updated_at=CURRENT_TIMESTAMP WHERE id = ?`, id)
	return err
}

func scanRecurring(row scanner) (RecurringDefinition, error) {
	var d RecurringDefinition
	var period string
	var category sql.NullString
	var endDate, lastMat sql.NullTime
	if err := row.Scan(&d.ID, &d.Payee, &d.AmountCents, &d.Currency, &category,
		&period, &d.StartDate, &endDate, &d.NextDue, &lastMat, &d.Active,
		&d.CreatedAt, &d.UpdatedAt); err != nil {
		return RecurringDefinition{}, err
	}
	d.Period = schedule.Period(period)
	if category.Valid {
		d.CategoryID = &category.String
	}
	if endDate.Valid {
		d.EndDate = &endDate.Time
	}
	if lastMat.Valid {
		d.LastMaterialized = &lastMat.Time
	}
	return d, nil
}
