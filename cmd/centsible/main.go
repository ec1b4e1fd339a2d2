package main

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"github.com/centsible/centsible/internal/config"
	"github.com/centsible/centsible/internal/database"
	"github.com/centsible/centsible/internal/database/repository"
	"github.com/centsible/centsible/internal/logger"
	"github.com/centsible/centsible/internal/notify"
	"github.com/centsible/centsible/internal/rates"
	"github.com/centsible/centsible/internal/service"
)

func main() {
	ctx := context.Background()
	log := logger.New()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("config")
	}

	if err := os.MkdirAll(filepath.Dir(cfg.Database.Path), 0o755); err != nil {
		log.Fatal().Err(err).Msg("mkdir db dir")
	}

	if err := database.RunMigrations(cfg.Database.Path, "internal/database/migrations"); err != nil {
		log.Fatal().Err(err).Msg("migrate")
	}

	db, err := database.Open(cfg.Database.Path)
	if err != nil {
		log.Fatal().Err(err).Msg("open db")
	}
	defer db.Close()

	if err := database.SeedDefaults(ctx, db); err != nil {
		log.Fatal().Err(err).Msg("seed defaults")
	}

	// repositories
	txRepo := repository.NewTransactionRepo(db)
	catRepo := repository.NewCategoryRepo(db)
	recRepo := repository.NewRecurringRepo(db)
	budgetRepo := repository.NewBudgetRepo(db)
	settingsRepo := repository.NewSettingsRepo(db)

	bus := notify.NewBus()

	rateClient := rates.NewClient(cfg.Currency.PrimaryURL, cfg.Currency.FallbackURL,
		time.Duration(cfg.Currency.TimeoutSeconds)*time.Second, log)
	rateCache := rates.NewCache(rateClient, settingsRepo, log)

	normalizer := &service.Normalizer{
		Rates:        rateCache,
		Transactions: txRepo,
		Settings:     settingsRepo,
		Bus:          bus,
		Log:          log,
	}
	engine := &service.CatchUpEngine{
		DB:              db,
		Recurring:       recRepo,
		Transactions:    txRepo,
		Categories:      catRepo,
		Normalizer:      normalizer,
		Bus:             bus,
		Log:             log,
		DefaultCurrency: cfg.Currency.Base,
	}
	budgets := &service.BudgetService{
		Budgets:      budgetRepo,
		Transactions: txRepo,
		Settings:     settingsRepo,
		Log:          log,
	}

	// A process start is the foreground transition: materialize anything that
	// fell due while the app was closed, then report budget standing.
	now := database.Now()
	created, err := engine.RunCatchUp(ctx, now)
	if err != nil {
		log.Fatal().Err(err).Msg("catch-up")
	}
	for _, t := range created {
		log.Info().Str("payee", t.Payee).Time("date", t.Date).
			Int64("amount_cents", t.AmountCents).Str("currency", t.Currency).
			Msg("materialized recurring transaction")
	}

	active, err := budgetRepo.ListActive(ctx)
	if err != nil {
		log.Fatal().Err(err).Msg("list budgets")
	}
	for _, b := range active {
		st, err := budgets.Status(ctx, b, now)
		if err != nil {
			log.Error().Err(err).Str("budget", b.Name).Msg("evaluate budget")
			continue
		}
		log.Info().Str("budget", b.Name).
			Time("window_start", st.Window.Start).Time("window_end", st.Window.End).
			Int64("spent_cents", st.Evaluation.SpentCents).
			Float64("percentage", st.Evaluation.Percentage).
			Str("status", string(st.Evaluation.Status)).
			Int64("carry_forward_cents", st.CarryForward).
			Msg("budget standing")
	}
}
