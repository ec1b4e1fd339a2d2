package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/shopspring/decimal"

	"github.com/centsible/centsible/internal/schedule"
)

// DBTX is satisfied by both *sql.DB and *sql.Tx. Write methods that must land
// in the same atomic batch as sibling writes take it explicitly.
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Category represents a category row. UsageCount tracks how many live
// transactions reference the category and is maintained in the same batch as
// the transaction write that changes it.
type Category struct {
	ID         string
	ParentID   *string
	Name       string
	Icon       *string
	SortOrder  int
	UsageCount int
}

// Transaction represents a transaction row. Amounts are integer cents.
// BaseAmountCents, BaseCurrency and ExchangeRate are derived: base amount =
// native amount x rate at the time the row was last normalized.
type Transaction struct {
	ID              string
	Payee           string
	Date            time.Time
	AmountCents     int64
	Currency        string
	BaseAmountCents int64
	BaseCurrency    string
	ExchangeRate    decimal.Decimal
	CategoryID      *string
	RecurringID     *string
	Notes           *string
	DeletedAt       *time.Time
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// RecurringDefinition represents a recurring charge definition. NextDue is the
// mutable due pointer owned by the catch-up engine; LastMaterialized is audit
// only. EndDate is exclusive.
type RecurringDefinition struct {
	ID               string
	Payee            string
	AmountCents      int64
	Currency         string
	CategoryID       *string
	Period           schedule.Period
	StartDate        time.Time
	EndDate          *time.Time
	NextDue          time.Time
	LastMaterialized *time.Time
	Active           bool
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// Budget represents a budget row plus its category filter set (empty = all
// categories).
type Budget struct {
	ID             string
	Name           string
	TargetCents    int64
	Period         schedule.Period
	AnchorStart    time.Time
	Rollover       bool
	AlertThreshold float64
	Active         bool
	CategoryIDs    []string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// scanner handles both *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}
