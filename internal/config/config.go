package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/wichananm65/smart-cart-backend/internal/money"
)

type Config struct {
	Addr                string
	DatabaseURL         string
	JWTSecret           string
	StripeSecretKey     string
	StripeWebhookSecret string
	SurchargeRate       decimal.Decimal
	Currency            string
	SuccessURL          string
	CancelURL           string
	PaymentTimeout      time.Duration
	ShippingCountries   []string
	MinChargeCents      int64
	LogLevel            slog.Level
}

// Load reads the configuration from the environment. Malformed values are
// reported by Validate rather than silently replaced.
func Load() (Config, error) {
	var errs []error

	cfg := Config{
		Addr:                getenv("APP_ADDR", ":8080"),
		DatabaseURL:         os.Getenv("DATABASE_URL"),
		JWTSecret:           os.Getenv("JWT_SECRET"),
		StripeSecretKey:     os.Getenv("STRIPE_SECRET_KEY"),
		StripeWebhookSecret: os.Getenv("STRIPE_WEBHOOK_SECRET"),
		Currency:            strings.ToLower(getenv("CURRENCY", "usd")),
		SuccessURL:          getenv("CHECKOUT_SUCCESS_URL", "http://localhost:3000/checkout/success?session_id={CHECKOUT_SESSION_ID}"),
		CancelURL:           getenv("CHECKOUT_CANCEL_URL", "http://localhost:3000/checkout/cancel"),
	}

	rate, err := decimal.NewFromString(getenv("SURCHARGE_RATE", money.DefaultSurchargeRate.String()))
	if err != nil {
		errs = append(errs, fmt.Errorf("SURCHARGE_RATE: %w", err))
	}
	cfg.SurchargeRate = rate

	timeout, err := time.ParseDuration(getenv("PAYMENT_TIMEOUT", "10s"))
	if err != nil {
		errs = append(errs, fmt.Errorf("PAYMENT_TIMEOUT: %w", err))
	}
	cfg.PaymentTimeout = timeout

	minCharge, err := strconv.ParseInt(getenv("MIN_CHARGE_CENTS", "50"), 10, 64)
	if err != nil {
		errs = append(errs, fmt.Errorf("MIN_CHARGE_CENTS: %w", err))
	}
	cfg.MinChargeCents = minCharge

	for _, c := range strings.Split(getenv("SHIPPING_COUNTRIES", "US,CA"), ",") {
		if c = strings.ToUpper(strings.TrimSpace(c)); c != "" {
			cfg.ShippingCountries = append(cfg.ShippingCountries, c)
		}
	}

	if err := cfg.LogLevel.UnmarshalText([]byte(getenv("LOG_LEVEL", "info"))); err != nil {
		errs = append(errs, fmt.Errorf("LOG_LEVEL: %w", err))
	}

	return cfg, errors.Join(errs...)
}

// Validate reports every missing or out-of-range setting in one error.
func (c Config) Validate() error {
	var errs []error
	if c.DatabaseURL == "" {
		errs = append(errs, errors.New("DATABASE_URL is not set"))
	}
	if c.JWTSecret == "" {
		errs = append(errs, errors.New("JWT_SECRET is not set"))
	}
	if c.StripeSecretKey == "" {
		errs = append(errs, errors.New("STRIPE_SECRET_KEY is not set"))
	}
	if c.StripeWebhookSecret == "" {
		errs = append(errs, errors.New("STRIPE_WEBHOOK_SECRET is not set"))
	}
	if c.SurchargeRate.IsNegative() {
		errs = append(errs, errors.New("SURCHARGE_RATE must not be negative"))
	}
	if c.PaymentTimeout <= 0 {
		errs = append(errs, errors.New("PAYMENT_TIMEOUT must be positive"))
	}
	if c.MinChargeCents < 0 {
		errs = append(errs, errors.New("MIN_CHARGE_CENTS must not be negative"))
	}
	if len(c.ShippingCountries) == 0 {
		errs = append(errs, errors.New("SHIPPING_COUNTRIES is empty"))
	}
	return errors.Join(errs...)
}

func getenv(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}
