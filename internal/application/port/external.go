package port

import (
	"context"

	"github.com/garyjia/expense-approval/internal/domain/entity"
	"github.com/shopspring/decimal"
)

// CurrencyConverter converts money between ISO 4217 currencies
type CurrencyConverter interface {
	Convert(ctx context.Context, amount decimal.Decimal, from, to string) (decimal.Decimal, error)
}

// Notifier delivers short text messages to users
type Notifier interface {
	Notify(ctx context.Context, user *entity.User, message string) error
}

// ReportWriter renders a list of expenses into a downloadable document
type ReportWriter interface {
	ContentType() string
	Extension() string
	WriteExpenses(ctx context.Context, owner *entity.User, expenses []*entity.Expense) ([]byte, error)
}
