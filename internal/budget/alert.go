package budget

import (
	"github.com/centsible/centsible/internal/database/repository"
)

// Status classifies how a budget is tracking inside its current window.
type Status string

const (
	StatusOK       Status = "ok"
	StatusWarning  Status = "warning"
	StatusExceeded Status = "exceeded"
)

// Evaluation summarizes spend against a budget's target for one window.
type Evaluation struct {
	SpentCents     int64
	RemainingCents int64
	Percentage     float64
	Status         Status
}

// Evaluate sums the expenses among txs that the budget watches and classifies
// the result. Only negative (expense) base-currency amounts count, as absolute
// values. A zero target never divides: percentage is defined as 0.
func Evaluate(b repository.Budget, txs []repository.Transaction) Evaluation {
	var filter map[string]struct{}
	if len(b.CategoryIDs) > 0 {
		filter = make(map[string]struct{}, len(b.CategoryIDs))
		for _, id := range b.CategoryIDs {
			filter[id] = struct{}{}
		}
	}

	var spent int64
	for _, t := range txs {
		if t.BaseAmountCents >= 0 || t.DeletedAt != nil {
			continue
		}
		if filter != nil {
			if t.CategoryID == nil {
				continue
			}
			if _, ok := filter[*t.CategoryID]; !ok {
				continue
			}
		}
		spent += -t.BaseAmountCents
	}

	ev := Evaluation{
		SpentCents:     spent,
		RemainingCents: b.TargetCents - spent,
	}
	if b.TargetCents > 0 {
		ev.Percentage = float64(spent) / float64(b.TargetCents) * 100
	}
	switch {
	case ev.Percentage >= 100:
		ev.Status = StatusExceeded
	case b.AlertThreshold > 0 && ev.Percentage >= b.AlertThreshold:
		ev.Status = StatusWarning
	default:
		ev.Status = StatusOK
	}
	return ev
}
