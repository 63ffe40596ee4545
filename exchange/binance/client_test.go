package binance

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"tradeflow/config"
	"tradeflow/models"
)

func testConfig(baseURL string) *config.Config {
	return &config.Config{
		Exchange: config.ExchangeConfig{
			Network:      models.NetworkSandbox,
			Live:         config.EndpointConfig{BaseURL: baseURL},
			Sandbox:      config.EndpointConfig{BaseURL: baseURL},
			RecvWindowMs: 5000,
			Timeout:      2 * time.Second,
			ConnectionPool: config.ConnectionPoolConfig{
				MaxIdleConns:    1,
				MaxConnsPerHost: 1,
				IdleConnTimeout: time.Second,
			},
			RateLimit: config.RateLimitConfig{RequestsPerSecond: 1000, BurstSize: 1000},
		},
	}
}

// newTestClient starts an httptest server around handler and returns a
// client pointed at it with sandbox credentials configured.
func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	client := New(testConfig(srv.URL))
	client.SetCredentials(models.Credentials{
		APIKey:    "test-key",
		APISecret: "test-secret",
		Network:   models.NetworkSandbox,
	})
	return client
}

func TestPing(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != pingPath {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		w.Write([]byte(`{}`))
	})

	if !client.Ping(context.Background()) {
		t.Fatal("expected ping to succeed")
	}
}

func TestPingReportsFalseOnFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close()

	client := New(testConfig(srv.URL))
	if client.Ping(context.Background()) {
		t.Fatal("expected ping to fail against a closed server")
	}
}

func TestPlaceOrderSignedRequestShape(t *testing.T) {
	var captured *http.Request
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		captured = r.Clone(r.Context())
		w.Write([]byte(`{"orderId":42,"clientOrderId":"abc","symbol":"BTCUSDT","status":"NEW","origQty":"0.01","executedQty":"0","type":"MARKET","side":"BUY"}`))
	})

	order, err := client.PlaceOrder(context.Background(), models.OrderRequest{
		Symbol:   "BTCUSDT",
		Side:     models.SideBuy,
		Type:     models.OrderTypeMarket,
		Quantity: "0.01",
	})
	if err != nil {
		t.Fatalf("PlaceOrder failed: %v", err)
	}
	if order.OrderID != 42 || order.Status != models.OrderStatusNew {
		t.Errorf("unexpected order: %+v", order)
	}

	if captured.Method != http.MethodPost || captured.URL.Path != orderPath {
		t.Fatalf("unexpected request %s %s", captured.Method, captured.URL.Path)
	}
	if got := captured.Header.Get("X-MBX-APIKEY"); got != "test-key" {
		t.Errorf("X-MBX-APIKEY = %q", got)
	}

	query := captured.URL.Query()
	for _, key := range []string{"timestamp", "recvWindow", "signature", "newClientOrderId"} {
		if query.Get(key) == "" {
			t.Errorf("query missing %s: %s", key, captured.URL.RawQuery)
		}
	}
	if got := query.Get("recvWindow"); got != "5000" {
		t.Errorf("recvWindow = %q", got)
	}

	// The signature must be the MAC over the exact query string that
	// precedes it.
	rawQuery := captured.URL.RawQuery
	idx := strings.LastIndex(rawQuery, "&signature=")
	if idx < 0 {
		t.Fatalf("signature not appended last: %s", rawQuery)
	}
	want, err := NewSigner("test-secret").Sign(rawQuery[:idx])
	if err != nil {
		t.Fatalf("Sign failed: %v", err)
	}
	if got := query.Get("signature"); got != want {
		t.Errorf("signature = %s, want %s", got, want)
	}
}

func TestPlaceOrderFreshTimestampPerCall(t *testing.T) {
	var timestamps []string
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		timestamps = append(timestamps, r.URL.Query().Get("timestamp"))
		w.Write([]byte(`{"orderId":1,"symbol":"BTCUSDT","status":"NEW"}`))
	})

	req := models.OrderRequest{Symbol: "BTCUSDT", Side: models.SideBuy, Type: models.OrderTypeMarket, Quantity: "0.01"}
	if _, err := client.PlaceOrder(context.Background(), req); err != nil {
		t.Fatalf("PlaceOrder failed: %v", err)
	}
	time.Sleep(5 * time.Millisecond)
	if _, err := client.PlaceOrder(context.Background(), req); err != nil {
		t.Fatalf("PlaceOrder failed: %v", err)
	}

	if len(timestamps) != 2 || timestamps[0] == "" || timestamps[0] == timestamps[1] {
		t.Errorf("expected two distinct timestamps, got %v", timestamps)
	}
}

func TestPlaceOrderValidationShortCircuits(t *testing.T) {
	requests := 0
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		requests++
	})

	_, err := client.PlaceOrder(context.Background(), models.OrderRequest{
		Symbol:   "BTCUSDT",
		Side:     models.SideBuy,
		Type:     models.OrderTypeLimit,
		Quantity: "0.01",
		// price missing
	})
	var verr *models.ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
	if requests != 0 {
		t.Errorf("invalid request reached the network: %d requests", requests)
	}
}

func TestSignedCallWithoutCredentials(t *testing.T) {
	requests := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests++
	}))
	t.Cleanup(srv.Close)

	client := New(testConfig(srv.URL))
	_, err := client.OpenOrders(context.Background(), "")
	if !errors.Is(err, ErrNotAuthenticated) {
		t.Fatalf("expected ErrNotAuthenticated, got %v", err)
	}
	if requests != 0 {
		t.Errorf("unauthenticated call reached the network: %d requests", requests)
	}
}

func TestCancelOrderUnknownOrder(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodDelete {
			t.Errorf("unexpected method %s", r.Method)
		}
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"code":-2011,"msg":"Unknown order sent."}`))
	})

	_, err := client.CancelOrder(context.Background(), "BTCUSDT", 42)
	if !IsUnknownOrder(err) {
		t.Fatalf("expected unknown-order rejection, got %v", err)
	}
	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.Status != http.StatusBadRequest {
		t.Fatalf("expected APIError with status 400, got %v", err)
	}
}

func TestOpenOrdersDecodesList(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != openOrdersPath {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if got := r.URL.Query().Get("symbol"); got != "BTCUSDT" {
			t.Errorf("symbol filter = %q", got)
		}
		w.Write([]byte(`[
			{"orderId":1,"symbol":"BTCUSDT","status":"NEW","origQty":"0.01"},
			{"orderId":2,"symbol":"BTCUSDT","status":"PARTIALLY_FILLED","origQty":"0.05"}
		]`))
	})

	orders, err := client.OpenOrders(context.Background(), "BTCUSDT")
	if err != nil {
		t.Fatalf("OpenOrders failed: %v", err)
	}
	if len(orders) != 2 || orders[0].OrderID != 1 || orders[1].Status != models.OrderStatusPartiallyFilled {
		t.Errorf("unexpected orders: %+v", orders)
	}
}

func TestPositionsFiltersZeroAmounts(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`[
			{"symbol":"BTCUSDT","positionAmt":"0.010"},
			{"symbol":"ETHUSDT","positionAmt":"0.000"},
			{"symbol":"SOLUSDT","positionAmt":"-2"}
		]`))
	})

	positions, err := client.Positions(context.Background())
	if err != nil {
		t.Fatalf("Positions failed: %v", err)
	}
	if len(positions) != 2 {
		t.Fatalf("expected 2 non-zero positions, got %d", len(positions))
	}
	if positions[0].Symbol != "BTCUSDT" || positions[1].Symbol != "SOLUSDT" {
		t.Errorf("unexpected positions: %+v", positions)
	}
}

func exchangeInfoHandler(t *testing.T) http.HandlerFunc {
	t.Helper()
	return func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != exchangeInfoPath {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		w.Write([]byte(`{
			"rateLimits":[{"rateLimitType":"REQUEST_WEIGHT","interval":"MINUTE","intervalNum":1,"limit":2400}],
			"symbols":[{"symbol":"BTCUSDT","pair":"BTCUSDT","status":"TRADING","baseAsset":"BTC","quoteAsset":"USDT","pricePrecision":2,"quantityPrecision":3}]
		}`))
	}
}

func TestSymbolInfo(t *testing.T) {
	client := newTestClient(t, exchangeInfoHandler(t))

	info, err := client.SymbolInfo(context.Background(), "BTCUSDT")
	if err != nil {
		t.Fatalf("SymbolInfo failed: %v", err)
	}
	if info.BaseAsset != "BTC" || info.QuantityPrecision != 3 {
		t.Errorf("unexpected symbol info: %+v", info)
	}

	if _, err := client.SymbolInfo(context.Background(), "DOGEUSDT"); !errors.Is(err, ErrUnknownSymbol) {
		t.Fatalf("expected ErrUnknownSymbol, got %v", err)
	}
}

func TestRequestWeightLimit(t *testing.T) {
	client := newTestClient(t, exchangeInfoHandler(t))

	limit, err := client.RequestWeightLimit(context.Background())
	if err != nil {
		t.Fatalf("RequestWeightLimit failed: %v", err)
	}
	if limit != 2400 {
		t.Errorf("limit = %d, want 2400", limit)
	}
}

func TestTransportErrorOnConnectionFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close()

	client := New(testConfig(srv.URL))
	client.SetCredentials(models.Credentials{APIKey: "k", APISecret: "s", Network: models.NetworkSandbox})

	_, err := client.OpenOrders(context.Background(), "")
	var terr *TransportError
	if !errors.As(err, &terr) {
		t.Fatalf("expected TransportError, got %v", err)
	}
}
