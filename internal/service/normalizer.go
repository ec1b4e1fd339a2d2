package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/centsible/centsible/internal/database/repository"
	"github.com/centsible/centsible/internal/notify"
)

// BaseCurrencyKey is the settings key holding the user's canonical currency.
const BaseCurrencyKey = "base_currency"

// rebaseBatchSize keeps the bulk rewrite responsive: the loop checks for
// cancellation between pages instead of holding the whole table.
const rebaseBatchSize = 200

// RateSource is the conversion-rate seam, satisfied by rates.Cache.
type RateSource interface {
	GetRate(ctx context.Context, base, target string) (decimal.Decimal, bool)
}

// Conversion is the derived currency state for one amount.
type Conversion struct {
	BaseAmountCents int64
	Rate            decimal.Decimal
	BaseCurrency    string
}

// Normalizer converts native amounts into the base currency and performs the
// bulk retroactive rewrite when the base currency preference changes.
type Normalizer struct {
	Rates        RateSource
	Transactions *repository.TransactionRepo
	Settings     *repository.SettingsRepo
	Bus          *notify.Bus
	Log          zerolog.Logger
}

// Normalize computes the base-currency amount for a native amount. Matching
// currencies short-circuit to rate 1.0 with no cache or network access. When no
// rate is available the amount is kept as-is at rate 1.0 with the native
// currency recorded as the base code, which leaves the row visibly unconverted
// and lets the next rebase heal it.
func (n *Normalizer) Normalize(ctx context.Context, amountCents int64, nativeCurrency, baseCurrency string) Conversion {
	native := strings.ToUpper(strings.TrimSpace(nativeCurrency))
	base := strings.ToUpper(strings.TrimSpace(baseCurrency))

	if native == base {
		return Conversion{BaseAmountCents: amountCents, Rate: decimal.NewFromInt(1), BaseCurrency: base}
	}

	rate, ok := n.Rates.GetRate(ctx, native, base)
	if !ok {
		n.Log.Warn().Str("native", native).Str("base", base).
			Msg("conversion unavailable, recording amount unconverted")
		return Conversion{BaseAmountCents: amountCents, Rate: decimal.NewFromInt(1), BaseCurrency: native}
	}

	converted := decimal.NewFromInt(amountCents).Mul(rate).Round(0).IntPart()
	return Conversion{BaseAmountCents: converted, Rate: rate, BaseCurrency: base}
}

// RebaseAll re-derives every live transaction's base-currency fields against
// newBase and records newBase as the current preference. Each row's three
// derived fields update in a single statement; the operation as a whole is
// restartable, since every pass recomputes from the authoritative native
// amount and currency. Returns the number of rows rewritten.
func (n *Normalizer) RebaseAll(ctx context.Context, newBase string) (int, error) {
	newBase = strings.ToUpper(strings.TrimSpace(newBase))
	if newBase == "" {
		return 0, fmt.Errorf("rebase: base currency required")
	}
	if err := n.Settings.Set(ctx, BaseCurrencyKey, newBase); err != nil {
		return 0, fmt.Errorf("rebase: store preference: %w", err)
	}

	updated := 0
	var changedIDs []string
	afterID := ""
	for {
		if err := ctx.Err(); err != nil {
			return updated, err
		}
		page, err := n.Transactions.ListAfter(ctx, afterID, rebaseBatchSize)
		if err != nil {
			return updated, fmt.Errorf("rebase: list transactions: %w", err)
		}
		if len(page) == 0 {
			break
		}
		for _, t := range page {
			conv := n.Normalize(ctx, t.AmountCents, t.Currency, newBase)
			if conv.BaseAmountCents == t.BaseAmountCents &&
				conv.BaseCurrency == t.BaseCurrency &&
				conv.Rate.Equal(t.ExchangeRate) {
				continue
			}
			if err := n.Transactions.UpdateBaseAmount(ctx, t.ID, conv.BaseAmountCents, conv.BaseCurrency, conv.Rate); err != nil {
				return updated, fmt.Errorf("rebase: update %s: %w", t.ID, err)
			}
			updated++
			changedIDs = append(changedIDs, t.ID)
		}
		afterID = page[len(page)-1].ID
	}

	if updated > 0 {
		n.Bus.Publish(notify.Change{Entity: notify.EntityTransactions, IDs: changedIDs})
	}
	n.Log.Info().Str("base", newBase).Int("updated", updated).Msg("rebase complete")
	return updated, nil
}

// BaseCurrency reads the current preference, falling back to def when no
// preference has been stored yet.
func (n *Normalizer) BaseCurrency(ctx context.Context, def string) (string, error) {
	v, ok, err := n.Settings.Get(ctx, BaseCurrencyKey)
	if err != nil {
		return "", err
	}
	if !ok || v == "" {
		return strings.ToUpper(def), nil
	}
	return strings.ToUpper(v), nil
}
