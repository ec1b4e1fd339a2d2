package service

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/centsible/centsible/internal/budget"
	"github.com/centsible/centsible/internal/database/repository"
	"github.com/centsible/centsible/internal/logger"
	"github.com/centsible/centsible/internal/schedule"
)

func newTestBudgetService(t *testing.T) (*BudgetService, *sql.DB) {
	t.Helper()
	db, _ := newTestDB(t)
	return &BudgetService{
		Budgets:      repository.NewBudgetRepo(db),
		Transactions: repository.NewTransactionRepo(db),
		Settings:     repository.NewSettingsRepo(db),
		Log:          logger.NewWithWriter(testWriter{t}),
	}, db
}

func TestBudgetStatusWithRollover(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s, db := newTestBudgetService(t)

	anchor := time.Date(2026, time.January, 5, 0, 0, 0, 0, time.UTC) // a Monday
	b := repository.Budget{
		ID:             uuid.NewString(),
		Name:           "Weekly spend",
		TargetCents:    10000,
		Period:         schedule.Weekly,
		AnchorStart:    anchor,
		Rollover:       true,
		AlertThreshold: 80,
		Active:         true,
	}
	require.NoError(t, s.Budgets.Upsert(ctx, b))

	// previous window (Jan 12-19): 60.00 spent, 40.00 should carry forward
	seedTransaction(t, db, "Groceries", "USD", -6000)
	setDate(t, db, "Groceries", time.Date(2026, time.January, 14, 0, 0, 0, 0, time.UTC))
	// current window (Jan 19-26): 85.00 spent, warning at the 80% threshold
	seedTransaction(t, db, "Dining", "USD", -8500)
	setDate(t, db, "Dining", time.Date(2026, time.January, 20, 0, 0, 0, 0, time.UTC))
	// well outside either window
	seedTransaction(t, db, "Old", "USD", -99999)
	setDate(t, db, "Old", time.Date(2025, time.June, 1, 0, 0, 0, 0, time.UTC))

	now := time.Date(2026, time.January, 21, 12, 0, 0, 0, time.UTC)
	st, err := s.Status(ctx, b, now)
	require.NoError(t, err)
	require.True(t, st.Window.Start.Equal(time.Date(2026, time.January, 19, 0, 0, 0, 0, time.UTC)))
	require.Equal(t, int64(8500), st.Evaluation.SpentCents)
	require.Equal(t, budget.StatusWarning, st.Evaluation.Status)
	require.Equal(t, int64(4000), st.CarryForward)
	require.False(t, st.AlertDismissed)

	require.NoError(t, s.DismissAlert(ctx, b.ID, st.Window.Start))
	st, err = s.Status(ctx, b, now)
	require.NoError(t, err)
	require.True(t, st.AlertDismissed)

	// the dismissal dies with its window
	nextWeek, err := s.IsAlertDismissed(ctx, b.ID, st.Window.End)
	require.NoError(t, err)
	require.False(t, nextWeek)
}

func TestBudgetStatusCategoryFilter(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s, db := newTestBudgetService(t)
	seedCategory(t, db, "food", "Food")
	seedCategory(t, db, "transport", "Transport")

	anchor := time.Date(2026, time.March, 1, 0, 0, 0, 0, time.UTC)
	b := repository.Budget{
		ID:             uuid.NewString(),
		Name:           "Food only",
		TargetCents:    20000,
		Period:         schedule.Monthly,
		AnchorStart:    anchor,
		AlertThreshold: 80,
		Active:         true,
		CategoryIDs:    []string{"food"},
	}
	require.NoError(t, s.Budgets.Upsert(ctx, b))

	foodID := seedTransaction(t, db, "Groceries", "USD", -4000)
	setCategory(t, db, foodID, "food")
	setDate(t, db, "Groceries", anchor.AddDate(0, 0, 3))
	busID := seedTransaction(t, db, "Bus pass", "USD", -9000)
	setCategory(t, db, busID, "transport")
	setDate(t, db, "Bus pass", anchor.AddDate(0, 0, 4))

	st, err := s.Status(ctx, b, anchor.AddDate(0, 0, 10))
	require.NoError(t, err)
	require.Equal(t, int64(4000), st.Evaluation.SpentCents)
	require.Equal(t, budget.StatusOK, st.Evaluation.Status)
}

func TestDismissedSetSurvivesCorruption(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s, _ := newTestBudgetService(t)
	windowStart := time.Date(2026, time.February, 2, 0, 0, 0, 0, time.UTC)

	require.NoError(t, s.Settings.Set(ctx, DismissedAlertsKey, `{definitely not json`))

	dismissed, err := s.IsAlertDismissed(ctx, "b1", windowStart)
	require.NoError(t, err)
	require.False(t, dismissed, "a corrupt set reads as empty")

	require.NoError(t, s.DismissAlert(ctx, "b1", windowStart))
	dismissed, err = s.IsAlertDismissed(ctx, "b1", windowStart)
	require.NoError(t, err)
	require.True(t, dismissed, "dismissing rewrites the set cleanly")
}

func TestMaintenanceReset(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	db, _ := newTestDB(t)
	seedCategory(t, db, "food", "Food")
	seedTransaction(t, db, "Groceries", "USD", -4000)
	settings := repository.NewSettingsRepo(db)
	require.NoError(t, settings.Set(ctx, BaseCurrencyKey, "USD"))

	require.NoError(t, (&MaintenanceService{DB: db}).Reset(ctx))

	txs, err := repository.NewTransactionRepo(db).List(ctx, repository.TransactionFilters{IncludeDeleted: true})
	require.NoError(t, err)
	require.Empty(t, txs)
	cats, err := repository.NewCategoryRepo(db).List(ctx)
	require.NoError(t, err)
	require.Empty(t, cats)
	_, ok, err := settings.Get(ctx, BaseCurrencyKey)
	require.NoError(t, err)
	require.False(t, ok)
}

// setDate moves a seeded transaction (looked up by payee) to a specific date.
func setDate(t *testing.T, db *sql.DB, payee string, date time.Time) {
	t.Helper()
	_, err := db.Exec(`UPDATE transactions SET date = ? WHERE payee = ?`, date, payee)
	require.NoError(t, err)
}

func setCategory(t *testing.T, db *sql.DB, id, categoryID string) {
	t.Helper()
	_, err := db.Exec(`UPDATE transactions SET category_id = ? WHERE id = ?`, categoryID, id)
	require.NoError(t, err)
}
