package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/centsible/centsible/internal/budget"
	"github.com/centsible/centsible/internal/database/repository"
)

// DismissedAlertsKey is the settings key holding the JSON set of dismissed
// alert keys.
const DismissedAlertsKey = "alerts.dismissed"

// BudgetStatus is one budget's evaluation for its current window.
type BudgetStatus struct {
	Budget         repository.Budget
	Window         budget.Window
	Evaluation     budget.Evaluation
	CarryForward   int64
	AlertDismissed bool
}

// BudgetService answers window, spend, and alert questions for the
// presentation layer. All reads are pull-style; live updates are the caller's
// concern via the change bus.
type BudgetService struct {
	Budgets      *repository.BudgetRepo
	Transactions *repository.TransactionRepo
	Settings     *repository.SettingsRepo
	Log          zerolog.Logger
}

// CurrentWindow returns the budget's period window containing now.
func (s *BudgetService) CurrentWindow(b repository.Budget, now time.Time) budget.Window {
	return budget.CurrentWindow(b.AnchorStart, b.Period, now)
}

// Evaluate classifies the budget against its current window's spend.
func (s *BudgetService) Evaluate(ctx context.Context, b repository.Budget, now time.Time) (budget.Evaluation, budget.Window, error) {
	w := s.CurrentWindow(b, now)
	if w.Start.IsZero() {
		return budget.Evaluation{}, w, fmt.Errorf("budget %s has no valid window", b.ID)
	}
	txs, err := s.Transactions.List(ctx, repository.TransactionFilters{From: w.Start, To: w.End})
	if err != nil {
		return budget.Evaluation{}, w, err
	}
	return budget.Evaluate(b, txs), w, nil
}

// CarryForward computes the rollover amount flowing out of the window before
// the current one. Surfaced to the caller; never folded into the target here.
func (s *BudgetService) CarryForward(ctx context.Context, b repository.Budget, now time.Time) (int64, error) {
	if !b.Rollover {
		return 0, nil
	}
	w := s.CurrentWindow(b, now)
	if w.Start.IsZero() {
		return 0, fmt.Errorf("budget %s has no valid window", b.ID)
	}
	prev := budget.PreviousWindow(w, b.AnchorStart, b.Period)
	spent, err := s.Transactions.SumExpenses(ctx, prev.Start, prev.End, b.CategoryIDs)
	if err != nil {
		return 0, err
	}
	return budget.Rollover(b, spent), nil
}

// Status gathers everything the alert surface needs for one budget.
func (s *BudgetService) Status(ctx context.Context, b repository.Budget, now time.Time) (BudgetStatus, error) {
	ev, w, err := s.Evaluate(ctx, b, now)
	if err != nil {
		return BudgetStatus{}, err
	}
	carry, err := s.CarryForward(ctx, b, now)
	if err != nil {
		return BudgetStatus{}, err
	}
	dismissed, err := s.IsAlertDismissed(ctx, b.ID, w.Start)
	if err != nil {
		return BudgetStatus{}, err
	}
	return BudgetStatus{Budget: b, Window: w, Evaluation: ev, CarryForward: carry, AlertDismissed: dismissed}, nil
}

// DismissAlert records that the user dismissed this budget's alert for the
// window starting at windowStart; it resets naturally when the window rolls.
func (s *BudgetService) DismissAlert(ctx context.Context, budgetID string, windowStart time.Time) error {
	set, err := s.dismissedSet(ctx)
	if err != nil {
		return err
	}
	set[alertKey(budgetID, windowStart)] = struct{}{}
	return s.saveDismissedSet(ctx, set)
}

// IsAlertDismissed reports whether the alert for this budget/window was
// dismissed.
func (s *BudgetService) IsAlertDismissed(ctx context.Context, budgetID string, windowStart time.Time) (bool, error) {
	set, err := s.dismissedSet(ctx)
	if err != nil {
		return false, err
	}
	_, ok := set[alertKey(budgetID, windowStart)]
	return ok, nil
}

func (s *BudgetService) dismissedSet(ctx context.Context) (map[string]struct{}, error) {
	raw, ok, err := s.Settings.Get(ctx, DismissedAlertsKey)
	if err != nil {
		return nil, err
	}
	set := make(map[string]struct{})
	if !ok || raw == "" {
		return set, nil
	}
	var keys []string
	if err := json.Unmarshal([]byte(raw), &keys); err != nil {
		// A corrupt set only re-surfaces alerts; start over.
		s.Log.Warn().Err(err).Msg("resetting corrupt dismissed-alert set")
		return set, nil
	}
	for _, k := range keys {
		set[k] = struct{}{}
	}
	return set, nil
}

func (s *BudgetService) saveDismissedSet(ctx context.Context, set map[string]struct{}) error {
	keys := make([]string, 0, len(set))
	for k := range set {
		keys = append(keys, k)
	}
	raw, err := json.Marshal(keys)
	if err != nil {
		return err
	}
	return s.Settings.Set(ctx, DismissedAlertsKey, string(raw))
}

func alertKey(budgetID string, windowStart time.Time) string {
	return budgetID + "|" + windowStart.UTC().Format(time.RFC3339)
}
