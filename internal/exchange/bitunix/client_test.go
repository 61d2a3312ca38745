package bitunix

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/Whyuuuau/simple-bybit-spread-capture/internal/exchange"

	"go.uber.org/zap"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return New(srv.URL, "SOLUSDT", "test-key", "test-secret", 2*time.Second, zap.NewNop())
}

func recomputeSign(r *http.Request, body string) string {
	nonce := r.Header.Get("nonce")
	ts := r.Header.Get("timestamp")
	key := r.Header.Get("api-key")
	concat := sortedQueryConcat(r.URL.Query())
	sum := sha256.Sum256([]byte(nonce + ts + key + concat + body))
	digest := hex.EncodeToString(sum[:])
	sum = sha256.Sum256([]byte(digest + "test-secret"))
	return hex.EncodeToString(sum[:])
}

func TestPrivateGetSignedWithSortedQuery(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v1/futures/trade/get_history_trades" {
			t.Fatalf("unexpected path %s", r.URL.Path)
		}
		if got, want := r.Header.Get("sign"), recomputeSign(r, ""); got != want {
			t.Fatalf("signature mismatch: got %s want %s", got, want)
		}
		io.WriteString(w, `{"code":0,"msg":"ok","data":{"tradeList":[
			{"tradeId":"t9","orderId":"o9","symbol":"SOLUSDT","side":"SELL","qty":"0.8","price":"143.1","fee":"0.021","ctime":"1700000060000"}
		]}}`)
	})
	fills, err := c.Fills(context.Background(), time.UnixMilli(1700000000000), 25)
	if err != nil {
		t.Fatalf("fills: %v", err)
	}
	if len(fills) != 1 || fills[0].TradeID != "t9" || fills[0].Side != exchange.SideSell {
		t.Fatalf("unexpected fills: %+v", fills)
	}
}

func TestPlaceOrderSignsBodyAndMapsFields(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		if got, want := r.Header.Get("sign"), recomputeSign(r, string(body)); got != want {
			t.Fatalf("body signature mismatch: got %s want %s", got, want)
		}
		var req map[string]any
		if err := json.Unmarshal(body, &req); err != nil {
			t.Fatalf("decode body: %v", err)
		}
		if req["side"] != "SELL" || req["tradeSide"] != "OPEN" || req["effect"] != "POST_ONLY" {
			t.Fatalf("unexpected order body: %v", req)
		}
		if req["qty"] != "2.4" || req["price"] != "143.5" {
			t.Fatalf("unexpected wire decimals: %v", req)
		}
		io.WriteString(w, `{"code":0,"msg":"ok","data":{"orderId":"o-77"}}`)
	})
	order, err := c.PlaceOrder(context.Background(), exchange.OrderRequest{
		Symbol:      "SOLUSDT",
		Side:        exchange.SideSell,
		Type:        exchange.TypeLimit,
		Qty:         2.4,
		Price:       143.5,
		TimeInForce: exchange.TifPostOnly,
		ClientID:    "cl-7",
	})
	if err != nil {
		t.Fatalf("place order: %v", err)
	}
	if order.ID != "o-77" || order.ClientID != "cl-7" {
		t.Fatalf("unexpected order: %+v", order)
	}
}

func TestReduceOnlyOrderUsesCloseTradeSide(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		var req map[string]any
		if err := json.Unmarshal(body, &req); err != nil {
			t.Fatalf("decode body: %v", err)
		}
		if req["tradeSide"] != "CLOSE" || req["reduceOnly"] != true {
			t.Fatalf("expected close reduce-only order, got %v", req)
		}
		io.WriteString(w, `{"code":0,"msg":"ok","data":{"orderId":"o-78"}}`)
	})
	_, err := c.PlaceOrder(context.Background(), exchange.OrderRequest{
		Symbol:     "SOLUSDT",
		Side:       exchange.SideSell,
		Type:       exchange.TypeMarket,
		Qty:        1.0,
		ReduceOnly: true,
	})
	if err != nil {
		t.Fatalf("place order: %v", err)
	}
}

func TestNonZeroCodeBecomesAPIError(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"code":10007,"msg":"signature error","data":null}`)
	})
	_, err := c.Balance(context.Background())
	if err == nil {
		t.Fatalf("expected error")
	}
	var apiErr *exchange.APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected APIError, got %T: %v", err, err)
	}
	if apiErr.Code != 10007 || apiErr.Venue != "bitunix" {
		t.Fatalf("unexpected api error: %+v", apiErr)
	}
}

func TestBalanceSumsEquity(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"code":0,"msg":"ok","data":{"available":"950.5","margin":"40.25","crossUnrealizedPNL":"-2.75"}}`)
	})
	bal, err := c.Balance(context.Background())
	if err != nil {
		t.Fatalf("balance: %v", err)
	}
	if bal.Free != 950.5 || bal.UnrealizedPnL != -2.75 {
		t.Fatalf("unexpected balance fields: %+v", bal)
	}
	if want := 950.5 + 40.25 - 2.75; bal.Total != want {
		t.Fatalf("expected equity %v, got %v", want, bal.Total)
	}
}

func TestCandlesSortedAscending(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"code":0,"msg":"ok","data":[
			{"time":1700000300000,"open":"100","high":"101","low":"99","close":"101","baseVol":"25"},
			{"time":1700000000000,"open":"99","high":"100","low":"98","close":"100","baseVol":"20"}
		]}`)
	})
	candles, err := c.Candles(context.Background(), "5m", 2)
	if err != nil {
		t.Fatalf("candles: %v", err)
	}
	if len(candles) != 2 || !candles[1].Time.After(candles[0].Time) {
		t.Fatalf("candles not ascending: %+v", candles)
	}
}

func TestPendingOrdersParsed(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"code":0,"msg":"ok","data":{"orderList":[
			{"orderId":"o1","clientId":"c1","symbol":"SOLUSDT","side":"BUY","price":"141.5","qty":"1.2","tradeQty":"0.4","status":"PART_FILLED","ctime":"1700000000000"}
		]}}`)
	})
	orders, err := c.OpenOrders(context.Background())
	if err != nil {
		t.Fatalf("open orders: %v", err)
	}
	if len(orders) != 1 {
		t.Fatalf("expected 1 order, got %d", len(orders))
	}
	o := orders[0]
	if o.Status != exchange.StatusPartiallyFilled || o.Filled != 0.4 || o.Side != exchange.SideBuy {
		t.Fatalf("unexpected order: %+v", o)
	}
}

func TestCancelOrderSendsOrderList(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		var req map[string]any
		if err := json.Unmarshal(body, &req); err != nil {
			t.Fatalf("decode body: %v", err)
		}
		list, ok := req["orderList"].([]any)
		if !ok || len(list) != 1 {
			t.Fatalf("expected orderList with one entry, got %v", req)
		}
		entry, _ := list[0].(map[string]any)
		if entry["orderId"] != "o-55" {
			t.Fatalf("unexpected cancel entry: %v", entry)
		}
		io.WriteString(w, `{"code":0,"msg":"ok","data":{}}`)
	})
	if err := c.CancelOrder(context.Background(), "o-55"); err != nil {
		t.Fatalf("cancel: %v", err)
	}
}

func TestSortedQueryConcatOrdersKeys(t *testing.T) {
	q := url.Values{}
	q.Set("symbol", "SOLUSDT")
	q.Set("limit", "25")
	q.Set("startTime", "1700000000000")
	if got, want := sortedQueryConcat(q), "limit25startTime1700000000000symbolSOLUSDT"; got != want {
		t.Fatalf("got %q want %q", got, want)
	}
}
