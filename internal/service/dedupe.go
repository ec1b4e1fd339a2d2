package service

import (
	"context"
	"strings"
	"time"

	"github.com/agnivade/levenshtein"
	"github.com/rs/zerolog"

	"github.com/centsible/centsible/internal/database/repository"
)

// DuplicateFinder surfaces likely duplicate transactions (e.g. a manual entry
// shadowing a materialized recurring charge) for user review. It never merges
// or deletes anything itself.
type DuplicateFinder struct {
	Transactions *repository.TransactionRepo
	Log          zerolog.Logger
}

// DuplicatePair is a candidate duplicate with its payee similarity score.
type DuplicatePair struct {
	A          repository.Transaction
	B          repository.Transaction
	Similarity float64
}

const (
	duplicateDateSlop      = 72 * time.Hour
	duplicateSimilarityMin = 0.8
)

// Find returns pairs with identical native amount and currency, dates at most
// three days apart, and payee similarity at or above the threshold.
func (f *DuplicateFinder) Find(ctx context.Context) ([]DuplicatePair, error) {
	txs, err := f.Transactions.List(ctx, repository.TransactionFilters{})
	if err != nil {
		return nil, err
	}

	var out []DuplicatePair
	for i := 0; i < len(txs); i++ {
		for j := i + 1; j < len(txs); j++ {
			a, b := txs[i], txs[j]
			if a.AmountCents != b.AmountCents || a.Currency != b.Currency {
				continue
			}
			if a.Date.Sub(b.Date).Abs() > duplicateDateSlop {
				continue
			}
			sim := payeeSimilarity(a.Payee, b.Payee)
			if sim < duplicateSimilarityMin {
				continue
			}
			out = append(out, DuplicatePair{A: a, B: b, Similarity: sim})
		}
	}
	if len(out) > 0 {
		f.Log.Info().Int("pairs", len(out)).Msg("duplicate candidates found")
	}
	return out, nil
}

// payeeSimilarity is 1 - normalized levenshtein distance over lowercased
// payees.
func payeeSimilarity(a, b string) float64 {
	a = strings.ToLower(strings.TrimSpace(a))
	b = strings.ToLower(strings.TrimSpace(b))
	if a == b {
		return 1
	}
	longest := len(a)
	if len(b) > longest {
		longest = len(b)
	}
	if longest == 0 {
		return 1
	}
	dist := levenshtein.ComputeDistance(a, b)
	return 1 - float64(dist)/float64(longest)
}
