package gateway

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"confdesk/internal/gateway/razorpay"
	"confdesk/internal/gateway/stub"
	"confdesk/internal/model"
)

type Gateway interface {
	Name() string
	CreateOrder(ctx context.Context, amount decimal.Decimal, currency, receipt string) (model.GatewayOrder, error)
	FetchPayments(ctx context.Context, orderID string) ([]model.GatewayPayment, error)
}

type Config struct {
	Provider  string
	BaseURL   string
	KeyID     string
	KeySecret string
	Timeout   time.Duration
}

// New builds the provider named by cfg.Provider.
func New(cfg Config) (Gateway, error) {
	switch cfg.Provider {
	case "razorpay":
		if cfg.KeyID == "" || cfg.KeySecret == "" {
			return nil, fmt.Errorf("razorpay: key id and secret are required")
		}
		return razorpay.New(cfg.BaseURL, cfg.KeyID, cfg.KeySecret, cfg.Timeout), nil
	case "stub", "":
		return stub.New(cfg.KeySecret), nil
	default:
		return nil, fmt.Errorf("unknown payment provider: %s", cfg.Provider)
	}
}
