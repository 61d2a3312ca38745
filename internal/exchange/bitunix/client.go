package bitunix

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/Whyuuuau/simple-bybit-spread-capture/internal/exchange"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const MainnetBaseURL = "https://fapi.bitunix.com"

const marginCoin = "USDT"

type Client struct {
	baseURL   string
	symbol    string
	apiKey    string
	apiSecret string
	http      *http.Client
	log       *zap.Logger
}

func New(baseURL, symbol, apiKey, apiSecret string, timeout time.Duration, log *zap.Logger) *Client {
	if baseURL == "" {
		baseURL = MainnetBaseURL
	}
	return &Client{
		baseURL:   baseURL,
		symbol:    symbol,
		apiKey:    apiKey,
		apiSecret: apiSecret,
		http:      &http.Client{Timeout: timeout},
		log:       log,
	}
}

func (c *Client) Name() string { return "bitunix" }

func (c *Client) Ticker(ctx context.Context) (exchange.Ticker, error) {
	q := url.Values{}
	q.Set("symbols", c.symbol)
	data, err := c.get(ctx, "/api/v1/futures/market/tickers", q, false)
	if err != nil {
		return exchange.Ticker{}, err
	}
	ticker, err := parseTicker(data, c.symbol)
	if err != nil {
		return exchange.Ticker{}, err
	}
	// The tickers endpoint carries no quote prices; take top of book.
	book, err := c.OrderBook(ctx, 1)
	if err == nil {
		ticker.Bid = book.Bids[0].Price
		ticker.Ask = book.Asks[0].Price
	}
	return ticker, nil
}

func (c *Client) OrderBook(ctx context.Context, depth int) (exchange.OrderBook, error) {
	if depth <= 0 {
		depth = 50
	}
	q := url.Values{}
	q.Set("symbol", c.symbol)
	q.Set("limit", strconv.Itoa(depth))
	data, err := c.get(ctx, "/api/v1/futures/market/depth", q, false)
	if err != nil {
		return exchange.OrderBook{}, err
	}
	return parseOrderBook(data, c.symbol)
}

func (c *Client) Candles(ctx context.Context, interval string, limit int) ([]exchange.Candle, error) {
	q := url.Values{}
	q.Set("symbol", c.symbol)
	q.Set("interval", interval)
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	data, err := c.get(ctx, "/api/v1/futures/market/kline", q, false)
	if err != nil {
		return nil, err
	}
	return parseCandles(data)
}

func (c *Client) Balance(ctx context.Context) (exchange.Balance, error) {
	q := url.Values{}
	q.Set("marginCoin", marginCoin)
	data, err := c.get(ctx, "/api/v1/futures/account", q, true)
	if err != nil {
		return exchange.Balance{}, err
	}
	return parseBalance(data)
}

func (c *Client) Positions(ctx context.Context) ([]exchange.Position, error) {
	q := url.Values{}
	q.Set("symbol", c.symbol)
	data, err := c.get(ctx, "/api/v1/futures/position/get_pending_positions", q, true)
	if err != nil {
		return nil, err
	}
	return parsePositions(data), nil
}

func (c *Client) OpenOrders(ctx context.Context) ([]exchange.Order, error) {
	q := url.Values{}
	q.Set("symbol", c.symbol)
	data, err := c.get(ctx, "/api/v1/futures/trade/get_pending_orders", q, true)
	if err != nil {
		return nil, err
	}
	return parseOrders(data), nil
}

func (c *Client) PlaceOrder(ctx context.Context, req exchange.OrderRequest) (exchange.Order, error) {
	body := map[string]any{
		"symbol":    c.symbol,
		"side":      wireSide(req.Side),
		"tradeSide": wireTradeSide(req.ReduceOnly),
		"orderType": wireOrderType(req.Type),
		"qty":       exchange.FormatDecimal(req.Qty, 8),
	}
	if req.Type == exchange.TypeLimit {
		body["price"] = exchange.FormatDecimal(req.Price, 8)
		body["effect"] = wireEffect(req.TimeInForce)
	}
	if req.ReduceOnly {
		body["reduceOnly"] = true
	}
	if req.ClientID != "" {
		body["clientId"] = req.ClientID
	}
	data, err := c.post(ctx, "/api/v1/futures/trade/place_order", body)
	if err != nil {
		return exchange.Order{}, err
	}
	return exchange.Order{
		ID:       stringFromMap(toMap(data), "orderId"),
		ClientID: req.ClientID,
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
	_, err := c.post(ctx, "/api/v1/futures/trade/cancel_orders", map[string]any{
		"symbol":    c.symbol,
		"orderList": []map[string]any{{"orderId": orderID}},
	})
	return err
}

func (c *Client) CancelAll(ctx context.Context) error {
	_, err := c.post(ctx, "/api/v1/futures/trade/cancel_all_orders", map[string]any{
		"symbol": c.symbol,
	})
	return err
}

func (c *Client) Fills(ctx context.Context, since time.Time, limit int) ([]exchange.Fill, error) {
	q := url.Values{}
	q.Set("symbol", c.symbol)
	if !since.IsZero() {
		q.Set("startTime", strconv.FormatInt(since.UnixMilli(), 10))
	}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	data, err := c.get(ctx, "/api/v1/futures/trade/get_history_trades", q, true)
	if err != nil {
		return nil, err
	}
	return parseFills(data), nil
}

func (c *Client) SetLeverage(ctx context.Context, leverage int) error {
	_, err := c.post(ctx, "/api/v1/futures/account/change_leverage", map[string]any{
		"symbol":     c.symbol,
		"marginCoin": marginCoin,
		"leverage":   leverage,
	})
	return err
}

func (c *Client) SetPositionMode(ctx context.Context) error {
	_, err := c.post(ctx, "/api/v1/futures/account/change_position_mode", map[string]any{
		"positionMode": "ONE_WAY",
	})
	return err
}

func (c *Client) get(ctx context.Context, path string, q url.Values, private bool) (any, error) {
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
		c.sign(req, sortedQueryConcat(q), "")
	}
	return c.do(req)
}

func (c *Client) post(ctx context.Context, path string, body map[string]any) (any, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	c.sign(req, "", string(payload))
	return c.do(req)
}

// sign applies the double-SHA256 header scheme: the digest hashes
// nonce + timestamp + apiKey + sorted query pairs + body, and the
// signature hashes digest + secret.
func (c *Client) sign(req *http.Request, queryConcat, body string) {
	nonce := strings.ReplaceAll(uuid.NewString(), "-", "")
	ts := strconv.FormatInt(time.Now().UnixMilli(), 10)
	digest := sha256Hex(nonce + ts + c.apiKey + queryConcat + body)
	req.Header.Set("api-key", c.apiKey)
	req.Header.Set("nonce", nonce)
	req.Header.Set("timestamp", ts)
	req.Header.Set("sign", sha256Hex(digest+c.apiSecret))
	req.Header.Set("language", "en-US")
}

func sha256Hex(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])
}

// sortedQueryConcat joins query pairs as key then value, keys in
// ascending order, with no separators.
func sortedQueryConcat(q url.Values) string {
	keys := make([]string, 0, len(q))
	for k := range q {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var b strings.Builder
	for _, k := range keys {
		b.WriteString(k)
		b.WriteString(q.Get(k))
	}
	return b.String()
}

func (c *Client) do(req *http.Request) (any, error) {
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
		Code int64  `json:"code"`
		Msg  string `json:"msg"`
		Data any    `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return nil, err
	}
	if env.Code != 0 {
		return nil, &exchange.APIError{Venue: "bitunix", Code: env.Code, Message: env.Msg}
	}
	return env.Data, nil
}

func wireSide(side string) string {
	if side == exchange.SideSell {
		return "SELL"
	}
	return "BUY"
}

func wireTradeSide(reduceOnly bool) string {
	if reduceOnly {
		return "CLOSE"
	}
	return "OPEN"
}

func wireOrderType(orderType string) string {
	if orderType == exchange.TypeMarket {
		return "MARKET"
	}
	return "LIMIT"
}

func wireEffect(tif string) string {
	if tif == exchange.TifPostOnly {
		return "POST_ONLY"
	}
	return "GTC"
}
