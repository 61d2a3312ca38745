package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/Whyuuuau/simple-bybit-spread-capture/internal/config"
	"github.com/Whyuuuau/simple-bybit-spread-capture/internal/exchange"
	"github.com/Whyuuuau/simple-bybit-spread-capture/internal/exchange/bitunix"
	"github.com/Whyuuuau/simple-bybit-spread-capture/internal/exchange/bybit"
	"github.com/Whyuuuau/simple-bybit-spread-capture/internal/logging"

	"go.uber.org/zap"
)

// cancelall sweeps every resting order off the configured venue. Meant
// for cleanup after a crash or an aborted session.
func main() {
	configPath := flag.String("config", "internal/config/config.yaml", "path to config file")
	flag.Parse()

	if err := config.LoadEnv(".env"); err != nil {
		fmt.Fprintf(os.Stderr, "failed to load .env: %v\n", err)
	}
	cfg, err := config.Load(*configPath)
	if err != nil {
		fatal(err)
	}
	log := logging.New(cfg.Log)
	defer func() { _ = log.Sync() }()

	client, err := buildClient(cfg, log)
	if err != nil {
		fatal(err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	open, err := client.OpenOrders(ctx)
	if err != nil {
		fatal(fmt.Errorf("open orders: %w", err))
	}
	if len(open) == 0 {
		fmt.Println("no open orders")
		return
	}
	for _, o := range open {
		fmt.Printf("  %s %s %s qty=%.4f price=%.4f\n", o.ID, o.Symbol, o.Side, o.Qty, o.Price)
	}
	if err := client.CancelAll(ctx); err != nil {
		fatal(fmt.Errorf("cancel all: %w", err))
	}
	fmt.Printf("canceled %d orders\n", len(open))
}

func buildClient(cfg *config.Config, log *zap.Logger) (exchange.Client, error) {
	switch cfg.Exchange.Venue {
	case "bybit":
		key := os.Getenv("BYBIT_API_KEY")
		secret := os.Getenv("BYBIT_API_SECRET")
		if key == "" || secret == "" {
			return nil, errors.New("BYBIT_API_KEY and BYBIT_API_SECRET are required")
		}
		baseURL := cfg.Exchange.BaseURL
		if baseURL == "" {
			if cfg.Exchange.Testnet {
				baseURL = bybit.TestnetBaseURL
			} else {
				baseURL = bybit.MainnetBaseURL
			}
		}
		return bybit.New(baseURL, cfg.Exchange.Symbol, key, secret,
			cfg.Exchange.RecvWindowMS, cfg.Exchange.Timeout, log), nil
	case "bitunix":
		key := os.Getenv("BITUNIX_API_KEY")
		secret := os.Getenv("BITUNIX_API_SECRET")
		if key == "" || secret == "" {
			return nil, errors.New("BITUNIX_API_KEY and BITUNIX_API_SECRET are required")
		}
		baseURL := cfg.Exchange.BaseURL
		if baseURL == "" {
			baseURL = bitunix.MainnetBaseURL
		}
		return bitunix.New(baseURL, cfg.Exchange.Symbol, key, secret,
			cfg.Exchange.Timeout, log), nil
	default:
		return nil, fmt.Errorf("cancelall supports bybit and bitunix, not %q", cfg.Exchange.Venue)
	}
}

func fatal(err error) {
	fmt.Fprintln(os.Stderr, err)
	os.Exit(1)
}
