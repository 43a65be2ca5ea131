// Package config содержит логику чтения конфигурации сервиса парктрек.
package config

import (
	"flag"
	"fmt"

	"github.com/caarlos0/env/v11"
)

// Config содержит параметры конфигурации сервиса парктрек.
type Config struct {
	RunAddress           string  `env:"RUN_ADDRESS"`
	DatabaseURI          string  `env:"DATABASE_URI"`
	PaymentSystemAddress string  `env:"PAYMENT_SYSTEM_ADDRESS"`
	QRSecret             string  `env:"QR_SECRET"`
	LateFeePercentage    float64 `env:"LATE_FEE_PERCENTAGE"`
	InvoiceDueDays       int     `env:"INVOICE_DUE_DAYS"`
}

// Parse считывает конфигурацию из флагов командной строки и переменных окружения.
func Parse() (*Config, error) {
	cfg := &Config{}

	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	envRunAddress := cfg.RunAddress
	envDatabaseURI := cfg.DatabaseURI
	envPaymentAddress := cfg.PaymentSystemAddress
	envQRSecret := cfg.QRSecret
	envLateFee := cfg.LateFeePercentage
	envDueDays := cfg.InvoiceDueDays

	flag.StringVar(&cfg.RunAddress, "a", "localhost:8080", "address and port for HTTP server")
	flag.StringVar(&cfg.DatabaseURI, "d", "", "database URI")
	flag.StringVar(&cfg.PaymentSystemAddress, "p", "", "payment system address")
	flag.StringVar(&cfg.QRSecret, "s", "", "QR token signing secret")
	flag.Float64Var(&cfg.LateFeePercentage, "f", 10, "late fee percentage per overdue day")
	flag.IntVar(&cfg.InvoiceDueDays, "due-days", 15, "days until an invoice is due")

	flag.Parse()

	if envRunAddress != "" {
		cfg.RunAddress = envRunAddress
	}
	if envDatabaseURI != "" {
		cfg.DatabaseURI = envDatabaseURI
	}
	if envPaymentAddress != "" {
		cfg.PaymentSystemAddress = envPaymentAddress
	}
	if envQRSecret != "" {
		cfg.QRSecret = envQRSecret
	}
	if envLateFee != 0 {
		cfg.LateFeePercentage = envLateFee
	}
	if envDueDays != 0 {
		cfg.InvoiceDueDays = envDueDays
	}

	if cfg.RunAddress == "" {
		cfg.RunAddress = "localhost:8080"
	}
	if cfg.QRSecret == "" {
		cfg.QRSecret = "parktrack-secret"
	}

	return cfg, nil
}
