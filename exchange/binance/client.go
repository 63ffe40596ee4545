package binance

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"golang.org/x/time/rate"

	"tradeflow/config"
	"tradeflow/logger"
	"tradeflow/models"
)

const (
	pingPath         = "/fapi/v1/ping"
	accountPath      = "/fapi/v2/account"
	positionRiskPath = "/fapi/v2/positionRisk"
	orderPath        = "/fapi/v1/order"
	openOrdersPath   = "/fapi/v1/openOrders"
	exchangeInfoPath = "/fapi/v1/exchangeInfo"
)

// param is one key=value pair of a canonical query string. Pairs keep
// their append order; the signed payload must match the sent query
// string byte for byte, so no map-backed encoder is used.
type param struct {
	key   string
	value string
}

func joinParams(params []param) string {
	pairs := make([]string, 0, len(params))
	for _, p := range params {
		pairs = append(pairs, p.key+"="+p.value)
	}
	return strings.Join(pairs, "&")
}

// Client issues signed REST requests against the futures API. It is safe
// for concurrent use; credentials can be replaced at any time through
// SetCredentials.
type Client struct {
	config      *config.Config
	httpClient  *http.Client
	store       *CredentialStore
	limiter     *rate.Limiter
	log         *logger.Log
	weightLimit atomic.Int64
}

// New creates a Client from the exchange section of the configuration.
func New(cfg *config.Config) *Client {
	log := logger.GetLogger()

	transport := &http.Transport{
		MaxIdleConns:        cfg.Exchange.ConnectionPool.MaxIdleConns,
		MaxIdleConnsPerHost: cfg.Exchange.ConnectionPool.MaxIdleConns,
		MaxConnsPerHost:     cfg.Exchange.ConnectionPool.MaxConnsPerHost,
		IdleConnTimeout:     cfg.Exchange.ConnectionPool.IdleConnTimeout,
		DisableCompression:  false,
	}

	httpClient := &http.Client{
		Transport: transport,
		Timeout:   cfg.Exchange.Timeout,
	}

	rps := cfg.Exchange.RateLimit.RequestsPerSecond
	if rps <= 0 {
		rps = 5
	}
	burst := cfg.Exchange.RateLimit.BurstSize
	if burst <= 0 {
		burst = 1
	}
	limiter := rate.NewLimiter(rate.Limit(rps), burst)

	client := &Client{
		config:     cfg,
		httpClient: httpClient,
		store:      &CredentialStore{},
		limiter:    limiter,
		log:        log,
	}

	log.WithComponent("binance_client").WithFields(logger.Fields{
		"max_idle_conns":     cfg.Exchange.ConnectionPool.MaxIdleConns,
		"max_conns_per_host": cfg.Exchange.ConnectionPool.MaxConnsPerHost,
		"timeout":            cfg.Exchange.Timeout,
		"requests_per_sec":   rps,
	}).Info("binance client initialized")

	return client
}

// SetCredentials replaces the active credentials. Any session assumption
// made with the previous pair is void; callers re-verify with Ping.
func (c *Client) SetCredentials(creds models.Credentials) {
	c.store.Set(creds)
}

// Credentials exposes the active credentials to the lifecycle owner.
func (c *Client) Credentials() (models.Credentials, bool) {
	return c.store.Get()
}

func (c *Client) baseURL() string {
	network := c.config.Exchange.Network
	if creds, ok := c.store.Get(); ok {
		network = creds.Network
	}
	if network == models.NetworkLive {
		return c.config.Exchange.Live.BaseURL
	}
	return c.config.Exchange.Sandbox.BaseURL
}

// do runs one request through the shared pipeline: throttle, canonical
// query, signature and API-key header when signed, response mapping.
// A fresh timestamp is read on every signed call; caching one would
// trip the server's replay window.
func (c *Client) do(ctx context.Context, method, path string, params []param, signed bool) ([]byte, error) {
	log := c.log.WithComponent("binance_client").WithFields(logger.Fields{"path": path})

	var apiKey string
	if signed {
		creds, ok := c.store.Get()
		if !ok {
			return nil, ErrNotAuthenticated
		}
		apiKey = creds.APIKey

		params = append(params, param{"recvWindow", strconv.FormatInt(c.config.Exchange.RecvWindowMs, 10)})
		params = append(params, param{"timestamp", strconv.FormatInt(time.Now().UnixMilli(), 10)})

		signature, err := NewSigner(creds.APISecret).Sign(joinParams(params))
		if err != nil {
			return nil, err
		}
		params = append(params, param{"signature", signature})
	}

	reqURL := c.baseURL() + path
	if len(params) > 0 {
		reqURL += "?" + joinParams(params)
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return nil, &TransportError{Op: method + " " + path, Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, method, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	if signed {
		req.Header.Set("X-MBX-APIKEY", apiKey)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &TransportError{Op: method + " " + path, Err: err}
	}
	defer resp.Body.Close()
	logger.LogPerformanceEntry(log, "binance_client", "api_request", time.Since(start), logger.Fields{
		"method": method,
		"status": resp.StatusCode,
	})

	if c.config.Metrics.UsedWeight {
		ReportUsedWeight(c.log, resp.Header, c.weightLimit.Load())
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &TransportError{Op: method + " " + path, Err: err}
	}
	logger.IncrementRequest(signed, len(body))

	if resp.StatusCode >= http.StatusMultipleChoices {
		apiErr := mapAPIError(resp.StatusCode, body)
		ReportLimitFromError(c.log, apiErr)
		return nil, apiErr
	}

	return body, nil
}

func mapAPIError(status int, body []byte) *APIError {
	var envelope struct {
		Code int64  `json:"code"`
		Msg  string `json:"msg"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil || (envelope.Code == 0 && envelope.Msg == "") {
		return &APIError{Status: status, Message: strings.TrimSpace(string(body))}
	}
	return &APIError{Status: status, Code: envelope.Code, Message: envelope.Msg}
}

// Ping probes the unauthenticated liveness endpoint. It reports false on
// any failure and never returns an error.
func (c *Client) Ping(ctx context.Context) bool {
	if _, err := c.do(ctx, http.MethodGet, pingPath, nil, false); err != nil {
		c.log.WithComponent("binance_client").WithError(err).Warn("ping failed")
		return false
	}
	return true
}

// AccountInfo fetches the authenticated account summary.
func (c *Client) AccountInfo(ctx context.Context) (*models.AccountInfo, error) {
	body, err := c.do(ctx, http.MethodGet, accountPath, nil, true)
	if err != nil {
		return nil, err
	}
	var info models.AccountInfo
	if err := json.Unmarshal(body, &info); err != nil {
		return nil, fmt.Errorf("failed to decode account info: %w", err)
	}
	return &info, nil
}

// Positions fetches the position list, filtered to non-zero position
// amounts.
func (c *Client) Positions(ctx context.Context) ([]models.Position, error) {
	body, err := c.do(ctx, http.MethodGet, positionRiskPath, nil, true)
	if err != nil {
		return nil, err
	}
	var all []models.Position
	if err := json.Unmarshal(body, &all); err != nil {
		return nil, fmt.Errorf("failed to decode positions: %w", err)
	}
	positions := make([]models.Position, 0, len(all))
	for _, p := range all {
		amt, err := decimal.NewFromString(p.PositionAmt)
		if err != nil || amt.IsZero() {
			continue
		}
		positions = append(positions, p)
	}
	return positions, nil
}

// PlaceOrder validates req locally, then issues a signed placement. The
// call is never retried here: placement is not idempotent, and a retry
// decision belongs to the caller. The generated client order id makes a
// deliberate caller retry traceable on the exchange side.
func (c *Client) PlaceOrder(ctx context.Context, req models.OrderRequest) (*models.Order, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	params := []param{
		{"symbol", req.Symbol},
		{"side", string(req.Side)},
		{"type", string(req.Type)},
		{"quantity", req.Quantity},
	}
	if req.Type.RequiresPrice() {
		params = append(params, param{"price", req.Price})
	}
	if req.Type.RequiresStopPrice() {
		params = append(params, param{"stopPrice", req.StopPrice})
	}
	if req.TimeInForce != "" {
		params = append(params, param{"timeInForce", string(req.TimeInForce)})
	}
	params = append(params, param{"newClientOrderId", uuid.New().String()})

	body, err := c.do(ctx, http.MethodPost, orderPath, params, true)
	if err != nil {
		return nil, err
	}
	var order models.Order
	if err := json.Unmarshal(body, &order); err != nil {
		return nil, fmt.Errorf("failed to decode order: %w", err)
	}
	logger.IncrementOrderPlaced()
	return &order, nil
}

// CancelOrder issues a signed cancellation. Canceling an order that
// already left the open set yields an APIError with the unknown-order
// subcode; see IsUnknownOrder.
func (c *Client) CancelOrder(ctx context.Context, symbol string, orderID int64) (*models.Order, error) {
	params := []param{
		{"symbol", symbol},
		{"orderId", strconv.FormatInt(orderID, 10)},
	}
	body, err := c.do(ctx, http.MethodDelete, orderPath, params, true)
	if err != nil {
		return nil, err
	}
	var order models.Order
	if err := json.Unmarshal(body, &order); err != nil {
		return nil, fmt.Errorf("failed to decode canceled order: %w", err)
	}
	logger.IncrementOrderCanceled()
	return &order, nil
}

// OpenOrders fetches the orders currently open at request time,
// optionally filtered to one symbol. No ordering is guaranteed.
func (c *Client) OpenOrders(ctx context.Context, symbol string) ([]models.Order, error) {
	var params []param
	if symbol != "" {
		params = append(params, param{"symbol", symbol})
	}
	body, err := c.do(ctx, http.MethodGet, openOrdersPath, params, true)
	if err != nil {
		return nil, err
	}
	var orders []models.Order
	if err := json.Unmarshal(body, &orders); err != nil {
		return nil, fmt.Errorf("failed to decode open orders: %w", err)
	}
	logger.LogDataFlowEntry(c.log.WithComponent("binance_client"), "binance_api", "order_snapshot", len(orders), "orders")
	return orders, nil
}

// SymbolInfo locates symbol in the exchange-wide instrument metadata.
func (c *Client) SymbolInfo(ctx context.Context, symbol string) (*models.SymbolInfo, error) {
	info, err := c.exchangeInfo(ctx)
	if err != nil {
		return nil, err
	}
	for i := range info.Symbols {
		if info.Symbols[i].Symbol == symbol {
			return &info.Symbols[i], nil
		}
	}
	return nil, fmt.Errorf("%s: %w", symbol, ErrUnknownSymbol)
}

// RequestWeightLimit reads the REQUEST_WEIGHT per-minute limit from the
// instrument metadata and remembers it for used-weight reporting. It
// returns 0 if the exchange does not publish one.
func (c *Client) RequestWeightLimit(ctx context.Context) (int64, error) {
	info, err := c.exchangeInfo(ctx)
	if err != nil {
		return 0, err
	}
	for _, rl := range info.RateLimits {
		if rl.RateLimitType == "REQUEST_WEIGHT" && rl.Interval == "MINUTE" {
			c.weightLimit.Store(rl.Limit)
			return rl.Limit, nil
		}
	}
	return 0, nil
}

func (c *Client) exchangeInfo(ctx context.Context) (*models.ExchangeInfo, error) {
	body, err := c.do(ctx, http.MethodGet, exchangeInfoPath, nil, false)
	if err != nil {
		return nil, err
	}
	var info models.ExchangeInfo
	if err := json.Unmarshal(body, &info); err != nil {
		return nil, fmt.Errorf("failed to decode exchange info: %w", err)
	}
	return &info, nil
}
