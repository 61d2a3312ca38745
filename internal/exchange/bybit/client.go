package bybit

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/Whyuuuau/simple-bybit-spread-capture/internal/exchange"

	"go.uber.org/zap"
)

const (
	MainnetBaseURL = "https://api.bybit.com"
	TestnetBaseURL = "https://api-testnet.bybit.com"

	MainnetWSURL = "wss://stream.bybit.com/v5/public/linear"
	TestnetWSURL = "wss://stream-testnet.bybit.com/v5/public/linear"

	category = "linear"
)

// retCodes the venue uses for "already in the requested state".
const (
	codeLeverageNotModified     = 110043
	codePositionModeNotModified = 110025
)

type Client struct {
	baseURL    string
	symbol     string
	apiKey     string
	apiSecret  string
	recvWindow string
	http       *http.Client
	log        *zap.Logger
}

func New(baseURL, symbol, apiKey, apiSecret string, recvWindowMS int64, timeout time.Duration, log *zap.Logger) *Client {
	if baseURL == "" {
		baseURL = MainnetBaseURL
	}
	if recvWindowMS <= 0 {
		recvWindowMS = 5000
	}
	return &Client{
		baseURL:    baseURL,
		symbol:     symbol,
		apiKey:     apiKey,
		apiSecret:  apiSecret,
		recvWindow: strconv.FormatInt(recvWindowMS, 10),
		http:       &http.Client{Timeout: timeout},
		log:        log,
	}
}

func (c *Client) Name() string { return "bybit" }

func (c *Client) Ticker(ctx context.Context) (exchange.Ticker, error) {
	q := url.Values{}
	q.Set("category", category)
	q.Set("symbol", c.symbol)
	result, err := c.get(ctx, "/v5/market/tickers", q, false)
	if err != nil {
		return exchange.Ticker{}, err
	}
	return parseTicker(result, c.symbol)
}

func (c *Client) OrderBook(ctx context.Context, depth int) (exchange.OrderBook, error) {
	if depth <= 0 {
		depth = 50
	}
	q := url.Values{}
	q.Set("category", category)
	q.Set("symbol", c.symbol)
	q.Set("limit", strconv.Itoa(depth))
	result, err := c.get(ctx, "/v5/market/orderbook", q, false)
	if err != nil {
		return exchange.OrderBook{}, err
	}
	return parseOrderBook(result, c.symbol)
}

func (c *Client) Candles(ctx context.Context, interval string, limit int) ([]exchange.Candle, error) {
	q := url.Values{}
	q.Set("category", category)
	q.Set("symbol", c.symbol)
	q.Set("interval", klineInterval(interval))
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	result, err := c.get(ctx, "/v5/market/kline", q, false)
	if err != nil {
		return nil, err
	}
	return parseCandles(result)
}

func (c *Client) Balance(ctx context.Context) (exchange.Balance, error) {
	q := url.Values{}
	q.Set("accountType", "UNIFIED")
	result, err := c.get(ctx, "/v5/account/wallet-balance", q, true)
	if err != nil {
		return exchange.Balance{}, err
	}
	return parseBalance(result)
}

func (c *Client) Positions(ctx context.Context) ([]exchange.Position, error) {
	q := url.Values{}
	q.Set("category", category)
	q.Set("symbol", c.symbol)
	result, err := c.get(ctx, "/v5/position/list", q, true)
	if err != nil {
		return nil, err
	}
	return parsePositions(result), nil
}

func (c *Client) OpenOrders(ctx context.Context) ([]exchange.Order, error) {
	q := url.Values{}
	q.Set("category", category)
	q.Set("symbol", c.symbol)
	result, err := c.get(ctx, "/v5/order/realtime", q, true)
	if err != nil {
		return nil, err
	}
	return parseOrders(result), nil
}

func (c *Client) PlaceOrder(ctx context.Context, req exchange.OrderRequest) (exchange.Order, error) {
	body := map[string]any{
		"category":  category,
		"symbol":    c.symbol,
		"side":      wireSide(req.Side),
		"orderType": wireOrderType(req.Type),
		"qty":       exchange.FormatDecimal(req.Qty, 8),
	}
	if req.Type == exchange.TypeLimit {
		body["price"] = exchange.FormatDecimal(req.Price, 8)
		body["timeInForce"] = wireTif(req.TimeInForce)
	}
	if req.ReduceOnly {
		body["reduceOnly"] = true
	}
	if req.ClientID != "" {
		body["orderLinkId"] = req.ClientID
	}
	result, err := c.post(ctx, "/v5/order/create", body)
	if err != nil {
		return exchange.Order{}, err
	}
	return exchange.Order{
		ID:       stringFromMap(result, "orderId"),
		ClientID: stringFromMap(result, "orderLinkId"),
		Symbol:   c.symbol,
		Side:     req.Side,
		Price:    req.Price,
		Qty:      req.Qty,
		Status:   exchange.StatusNew,
	}, nil
}

func (c *Client) CancelOrder(ctx context.Context, orderID string) error {
	if orderID == "" {
		return errors.New("order id is required")
	}
	_, err := c.post(ctx, "/v5/order/cancel", map[string]any{
		"category": category,
		"symbol":   c.symbol,
		"orderId":  orderID,
	})
	return err
}

func (c *Client) CancelAll(ctx context.Context) error {
	_, err := c.post(ctx, "/v5/order/cancel-all", map[string]any{
		"category": category,
		"symbol":   c.symbol,
	})
	return err
}

func (c *Client) Fills(ctx context.Context, since time.Time, limit int) ([]exchange.Fill, error) {
	q := url.Values{}
	q.Set("category", category)
	q.Set("symbol", c.symbol)
	if !since.IsZero() {
		q.Set("startTime", strconv.FormatInt(since.UnixMilli(), 10))
	}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	result, err := c.get(ctx, "/v5/execution/list", q, true)
	if err != nil {
		return nil, err
	}
	return parseFills(result), nil
}

func (c *Client) SetLeverage(ctx context.Context, leverage int) error {
	lv := strconv.Itoa(leverage)
	_, err := c.post(ctx, "/v5/position/set-leverage", map[string]any{
		"category":     category,
		"symbol":       c.symbol,
		"buyLeverage":  lv,
		"sellLeverage": lv,
	})
	if isRetCode(err, codeLeverageNotModified) {
		return nil
	}
	return err
}

func (c *Client) SetPositionMode(ctx context.Context) error {
	_, err := c.post(ctx, "/v5/position/switch-mode", map[string]any{
		"category": category,
		"symbol":   c.symbol,
		"mode":     0,
	})
	if isRetCode(err, codePositionModeNotModified) {
		return nil
	}
	return err
}

func isRetCode(err error, code int64) bool {
	var apiErr *exchange.APIError
	return errors.As(err, &apiErr) && apiErr.Code == code
}

func (c *Client) get(ctx context.Context, path string, q url.Values, private bool) (map[string]any, error) {
	query := q.Encode()
	endpoint := c.baseURL + path
	if query != "" {
		endpoint += "?" + query
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	if private {
		c.sign(req, query)
	}
	return c.do(req)
}

func (c *Client) post(ctx context.Context, path string, body map[string]any) (map[string]any, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	c.sign(req, string(payload))
	return c.do(req)
}

// sign applies the V5 header scheme: the HMAC-SHA256 of
// timestamp + apiKey + recvWindow + payload, hex encoded.
func (c *Client) sign(req *http.Request, payload string) {
	ts := strconv.FormatInt(time.Now().UnixMilli(), 10)
	mac := hmac.New(sha256.New, []byte(c.apiSecret))
	mac.Write([]byte(ts + c.apiKey + c.recvWindow + payload))
	req.Header.Set("X-BAPI-API-KEY", c.apiKey)
	req.Header.Set("X-BAPI-TIMESTAMP", ts)
	req.Header.Set("X-BAPI-RECV-WINDOW", c.recvWindow)
	req.Header.Set("X-BAPI-SIGN", hex.EncodeToString(mac.Sum(nil)))
}

func (c *Client) do(req *http.Request) (map[string]any, error) {
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return nil, fmt.Errorf("http %d: %s", resp.StatusCode, string(body))
	}
	var env struct {
		RetCode int64          `json:"retCode"`
		RetMsg  string         `json:"retMsg"`
		Result  map[string]any `json:"result"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return nil, err
	}
	if env.RetCode != 0 {
		return nil, &exchange.APIError{Venue: "bybit", Code: env.RetCode, Message: env.RetMsg}
	}
	return env.Result, nil
}

func wireSide(side string) string {
	if side == exchange.SideSell {
		return "Sell"
	}
	return "Buy"
}

func wireOrderType(orderType string) string {
	if orderType == exchange.TypeMarket {
		return "Market"
	}
	return "Limit"
}

func wireTif(tif string) string {
	if tif == exchange.TifPostOnly {
		return "PostOnly"
	}
	return "GTC"
}

func klineInterval(interval string) string {
	switch interval {
	case "1m":
		return "1"
	case "3m":
		return "3"
	case "5m":
		return "5"
	case "15m":
		return "15"
	case "30m":
		return "30"
	case "1h":
		return "60"
	case "4h":
		return "240"
	case "1d":
		return "D"
	default:
		return interval
	}
}
