package repository

import (
	"context"
	"database/sql"

	"github.com/centsible/centsible/internal/schedule"
)

// BudgetRepo handles budgets and their category filter sets.
type BudgetRepo struct {
	db *sql.DB
}

func NewBudgetRepo(db *sql.DB) *BudgetRepo { return &BudgetRepo{db: db} }

func (r *BudgetRepo) Upsert(ctx context.Context, b Budget) error {
	_, err := r.db.ExecContext(ctx, `
	INSERT INTO budgets(id, name, target_cents, period, anchor_start, rollover, alert_threshold, active, created_at, updated_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, CURRENT_TIMESTAMP, CURRENT_TIMESTAMP)
	ON CONFLICT(id) DO UPDATE SET
	 name=excluded.name,
	 target_cents=excluded.target_cents,
	 period=excluded.period,
	 anchor_start=excluded.anchor_start,
	 rollover=excluded.rollover,
	 alert_threshold=excluded.alert_threshold,
	 active=excluded.active,
	 updated_at=CURRENT_TIMESTAMP;
	`, b.ID, b.Name, b.TargetCents, string(b.Period), b.AnchorStart, b.Rollover, b.AlertThreshold, b.Active)
	if err != nil {
		return err
	}

	if _, err := r.db.ExecContext(ctx, `DELETE FROM budget_categories WHERE budget_id = ?`, b.ID); err != nil {
		return err
	}
	for _, catID := range b.CategoryIDs {
		if _, err := r.db.ExecContext(ctx, `INSERT OR IGNORE INTO budget_categories(budget_id, category_id) VALUES(?, ?)`, b.ID, catID); err != nil {
			return err
		}
	}
	return nil
}

func (r *BudgetRepo) Get(ctx context.Context, id string) (*Budget, error) {
	row := r.db.QueryRowContext(ctx, `SELECT id, name, target_cents, period, anchor_start, rollover, alert_threshold, active, created_at, updated_at FROM budgets WHERE id = ?`, id)
	b, err := scanBudget(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	cats, err := r.fetchCategories(ctx, b.ID)
	if err != nil {
		return nil, err
	}
	b.CategoryIDs = cats
	return &b, nil
}

func (r *BudgetRepo) ListActive(ctx context.Context) ([]Budget, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT id, name, target_cents, period, anchor_start, rollover, alert_threshold, active, created_at, updated_at FROM budgets WHERE active = 1 ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Budget
	for rows.Next() {
		b, err := scanBudget(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for i := range out {
		cats, err := r.fetchCategories(ctx, out[i].ID)
		if err != nil {
			return nil, err
		}
		out[i].CategoryIDs = cats
	}
	return out, nil
}

func (r *BudgetRepo) fetchCategories(ctx context.Context, budgetID string) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT category_id FROM budget_categories WHERE budget_id = ? ORDER BY category_id`, budgetID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

func scanBudget(row scanner) (Budget, error) {
	var b Budget
	var period string
	if err := row.Scan(&b.ID, &b.Name, &b.TargetCents, &period, &b.AnchorStart,
		&b.Rollover, &b.AlertThreshold, &b.Active, &b.CreatedAt, &b.UpdatedAt); err != nil {
		return Budget{}, err
	}
	b.Period = schedule.Period(period)
	return b, nil
}
