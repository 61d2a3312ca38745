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

// verify exercises the venue credentials and wiring before letting the
// bot loose: ticker, balance, positions and open orders, plus an
// optional far-from-mid limit order that is placed and canceled again.
func main() {
	configPath := flag.String("config", "internal/config/config.yaml", "path to config file")
	roundTrip := flag.Bool("round-trip", false, "place and cancel a far-from-mid limit order")
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

	ticker, err := client.Ticker(ctx)
	if err != nil {
		fatal(fmt.Errorf("ticker: %w", err))
	}
	fmt.Printf("ticker: %s bid=%.4f ask=%.4f last=%.4f\n",
		ticker.Symbol, ticker.Bid, ticker.Ask, ticker.Last)

	balance, err := client.Balance(ctx)
	if err != nil {
		fatal(fmt.Errorf("balance: %w", err))
	}
	fmt.Printf("balance: %s free=%.4f total=%.4f unrealized=%.4f\n",
		balance.Asset, balance.Free, balance.Total, balance.UnrealizedPnL)

	positions, err := client.Positions(ctx)
	if err != nil {
		fatal(fmt.Errorf("positions: %w", err))
	}
	fmt.Printf("positions: %d\n", len(positions))
	for _, p := range positions {
		fmt.Printf("  %s %s qty=%.4f entry=%.4f mark=%.4f upnl=%.4f liq=%.4f\n",
			p.Symbol, p.Side, p.Qty, p.EntryPrice, p.MarkPrice, p.UnrealizedPnL, p.LiqPrice)
	}

	open, err := client.OpenOrders(ctx)
	if err != nil {
		fatal(fmt.Errorf("open orders: %w", err))
	}
	fmt.Printf("open orders: %d\n", len(open))
	for _, o := range open {
		fmt.Printf("  %s %s %s qty=%.4f price=%.4f status=%s\n",
			o.ID, o.Symbol, o.Side, o.Qty, o.Price, o.Status)
	}

	if !*roundTrip {
		fmt.Println("verify ok")
		return
	}

	// a bid half the current mid will rest without ever filling
	price := exchange.RoundTo(ticker.Mid()*0.5, cfg.Strategy.PricePrecision)
	qty := exchange.RoundDown(cfg.Strategy.MinOrderUSD/price, cfg.Strategy.AmountPrecision)
	if qty < cfg.Strategy.MinAmount {
		qty = cfg.Strategy.MinAmount
	}
	order, err := client.PlaceOrder(ctx, exchange.OrderRequest{
		Symbol:      cfg.Exchange.Symbol,
		Side:        exchange.SideBuy,
		Type:        exchange.TypeLimit,
		Qty:         qty,
		Price:       price,
		TimeInForce: exchange.TifPostOnly,
	})
	if err != nil {
		fatal(fmt.Errorf("round-trip place: %w", err))
	}
	fmt.Printf("round-trip order placed: id=%s price=%.4f qty=%.4f\n", order.ID, price, qty)
	if err := client.CancelOrder(ctx, order.ID); err != nil {
		fatal(fmt.Errorf("round-trip cancel: %w", err))
	}
	fmt.Println("round-trip order canceled")
	fmt.Println("verify ok")
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
		return nil, fmt.Errorf("verify supports bybit and bitunix, not %q", cfg.Exchange.Venue)
	}
}

func fatal(err error) {
	fmt.Fprintln(os.Stderr, err)
	os.Exit(1)
}
