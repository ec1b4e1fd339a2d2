package service

import (
	"context"
	"database/sql"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/centsible/centsible/internal/database"
	"github.com/centsible/centsible/internal/database/repository"
	"github.com/centsible/centsible/internal/notify"
	"github.com/centsible/centsible/internal/schedule"
)

// CatchUpEngine materializes missed recurring occurrences whenever the app
// comes to the foreground. It owns every mutation of a definition's due
// pointer outside of explicit user edits.
type CatchUpEngine struct {
	DB              *sql.DB
	Recurring       *repository.RecurringRepo
	Transactions    *repository.TransactionRepo
	Categories      *repository.CategoryRepo
	Normalizer      *Normalizer
	Bus             *notify.Bus
	Log             zerolog.Logger
	DefaultCurrency string

	inFlight atomic.Bool
}

// RunCatchUp scans all active definitions that have fallen due by now and
// creates exactly one transaction per elapsed period, oldest first. Each
// occurrence commits its transaction insert, the definition's pointer advance,
// and the category usage counter in one sqlite transaction, so a crash mid-run
// can only leave fully processed occurrences behind. Running again at the same
// instant finds nothing due and creates nothing.
//
// A failure on one definition is logged and does not stop the others.
//
// Only one run may be in flight: a foreground event arriving mid-run is a
// no-op, not a queued rerun.
func (e *CatchUpEngine) RunCatchUp(ctx context.Context, now time.Time) ([]repository.Transaction, error) {
	if !e.inFlight.CompareAndSwap(false, true) {
		e.Log.Debug().Msg("catch-up already running, skipping")
		return nil, nil
	}
	defer e.inFlight.Store(false)

	base, err := e.Normalizer.BaseCurrency(ctx, e.DefaultCurrency)
	if err != nil {
		return nil, fmt.Errorf("catch-up: read base currency: %w", err)
	}

	due, err := e.Recurring.ListDue(ctx, now)
	if err != nil {
		return nil, fmt.Errorf("catch-up: list due definitions: %w", err)
	}

	var created []repository.Transaction
	for _, def := range due {
		txs, err := e.catchUpDefinition(ctx, def.ID, now, base)
		if err != nil {
			e.Log.Error().Err(err).Str("definition", def.ID).Str("payee", def.Payee).
				Msg("catch-up failed for definition")
			continue
		}
		created = append(created, txs...)
	}

	if len(created) > 0 {
		ids := make([]string, len(created))
		for i, t := range created {
			ids[i] = t.ID
		}
		e.Bus.Publish(notify.Change{Entity: notify.EntityTransactions, IDs: ids})
		e.Bus.Publish(notify.Change{Entity: notify.EntityRecurring})
	}
	e.Log.Info().Int("definitions", len(due)).Int("created", len(created)).Msg("catch-up run complete")
	return created, nil
}

func (e *CatchUpEngine) catchUpDefinition(ctx context.Context, id string, now time.Time, base string) ([]repository.Transaction, error) {
	// Re-read so a pointer advanced by an earlier run is seen before any create.
	def, err := e.Recurring.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if def == nil || !def.Active {
		return nil, nil
	}
	if !def.Period.Valid() {
		// Malformed definitions are inert, not fatal.
		e.Log.Warn().Str("definition", def.ID).Str("period", string(def.Period)).
			Msg("skipping definition with unknown period")
		return nil, nil
	}

	var created []repository.Transaction
	for !def.NextDue.After(now) {
		if def.EndDate != nil && !def.NextDue.Before(*def.EndDate) {
			break
		}

		conv := e.Normalizer.Normalize(ctx, def.AmountCents, def.Currency, base)
		occurrence := def.NextDue
		t := repository.Transaction{
			ID:              uuid.NewString(),
			Payee:           def.Payee,
			Date:            occurrence,
			AmountCents:     def.AmountCents,
			Currency:        def.Currency,
			BaseAmountCents: conv.BaseAmountCents,
			BaseCurrency:    conv.BaseCurrency,
			ExchangeRate:    conv.Rate,
			CategoryID:      def.CategoryID,
			RecurringID:     &def.ID,
		}

		next := schedule.NextDue(def.Period, occurrence, def.StartDate)
		if !next.After(occurrence) {
			return created, fmt.Errorf("schedule did not advance from %s", occurrence)
		}
		// Never advance the pointer past the end date; park it there and retire
		// the definition instead.
		retire := false
		if def.EndDate != nil && !next.Before(*def.EndDate) {
			next = *def.EndDate
			retire = true
		}

		err := database.WithTx(e.DB, func(tx *sql.Tx) error {
			if err := e.Transactions.Insert(ctx, tx, t); err != nil {
				return fmt.Errorf("insert transaction: %w", err)
			}
			if err := e.Recurring.AdvancePointer(ctx, tx, def.ID, next, occurrence); err != nil {
				return fmt.Errorf("advance pointer: %w", err)
			}
			if retire {
				if err := e.Recurring.Deactivate(ctx, tx, def.ID); err != nil {
					return fmt.Errorf("deactivate: %w", err)
				}
			}
			if def.CategoryID != nil {
				if err := e.Categories.AdjustUsage(ctx, tx, *def.CategoryID, 1); err != nil {
					return fmt.Errorf("adjust usage: %w", err)
				}
			}
			return nil
		})
		if err != nil {
			return created, err
		}

		created = append(created, t)
		def.NextDue = next
		def.LastMaterialized = &occurrence
		if retire {
			break
		}
	}
	return created, nil
}

// CreateDefinition validates and stores a new recurring definition, seeding its
// due pointer at the first occurrence at or after now.
func (e *CatchUpEngine) CreateDefinition(ctx context.Context, d repository.RecurringDefinition, now time.Time) (repository.RecurringDefinition, error) {
	if _, err := schedule.ParsePeriod(string(d.Period)); err != nil {
		return repository.RecurringDefinition{}, err
	}
	if d.EndDate != nil && !d.EndDate.After(d.StartDate) {
		return repository.RecurringDefinition{}, fmt.Errorf("end date must be after start date")
	}
	if d.ID == "" {
		d.ID = uuid.NewString()
	}
	d.NextDue = schedule.CatchUpFrom(d.Period, d.StartDate, now)
	d.Active = true
	if err := e.Recurring.Insert(ctx, d); err != nil {
		return repository.RecurringDefinition{}, err
	}
	e.Bus.Publish(notify.Change{Entity: notify.EntityRecurring, IDs: []string{d.ID}})
	return d, nil
}

// UpdateDefinition applies a user edit, recomputing the due pointer from the
// (possibly changed) start date and period.
func (e *CatchUpEngine) UpdateDefinition(ctx context.Context, d repository.RecurringDefinition, now time.Time) error {
	if _, err := schedule.ParsePeriod(string(d.Period)); err != nil {
		return err
	}
	d.NextDue = schedule.CatchUpFrom(d.Period, d.StartDate, now)
	if d.EndDate != nil && !d.NextDue.Before(*d.EndDate) {
		d.NextDue = *d.EndDate
		d.Active = false
	}
	if err := e.Recurring.Update(ctx, d); err != nil {
		return err
	}
	e.Bus.Publish(notify.Change{Entity: notify.EntityRecurring, IDs: []string{d.ID}})
	return nil
}
