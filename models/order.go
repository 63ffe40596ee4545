package models

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// Side is the order direction.
type Side string

const (
	SideBuy  Side = "BUY"
	SideSell Side = "SELL"
)

// Valid reports whether s names a known side.
func (s Side) Valid() bool {
	return s == SideBuy || s == SideSell
}

// OrderType determines which conditional fields an order carries. Limit
// variants require a price, stop variants require a trigger price.
type OrderType string

const (
	OrderTypeMarket     OrderType = "MARKET"
	OrderTypeLimit      OrderType = "LIMIT"
	OrderTypeStopMarket OrderType = "STOP_MARKET"
	OrderTypeStopLimit  OrderType = "STOP_LIMIT"
)

// Valid reports whether t names a known order type.
func (t OrderType) Valid() bool {
	switch t {
	case OrderTypeMarket, OrderTypeLimit, OrderTypeStopMarket, OrderTypeStopLimit:
		return true
	default:
		return false
	}
}

// RequiresPrice reports whether orders of this type must carry a price.
func (t OrderType) RequiresPrice() bool {
	return t == OrderTypeLimit || t == OrderTypeStopLimit
}

// RequiresStopPrice reports whether orders of this type must carry a
// trigger price.
func (t OrderType) RequiresStopPrice() bool {
	return t == OrderTypeStopMarket || t == OrderTypeStopLimit
}

// TimeInForce controls how long an order stays working on the exchange.
type TimeInForce string

const (
	TimeInForceGTC TimeInForce = "GTC"
	TimeInForceIOC TimeInForce = "IOC"
	TimeInForceFOK TimeInForce = "FOK"
)

// Valid reports whether tif names a known time-in-force.
func (tif TimeInForce) Valid() bool {
	switch tif {
	case TimeInForceGTC, TimeInForceIOC, TimeInForceFOK:
		return true
	default:
		return false
	}
}

// OrderStatus is the server-authoritative order state. The client never
// infers transitions locally; statuses only come from exchange responses.
type OrderStatus string

const (
	OrderStatusNew             OrderStatus = "NEW"
	OrderStatusPartiallyFilled OrderStatus = "PARTIALLY_FILLED"
	OrderStatusFilled          OrderStatus = "FILLED"
	OrderStatusCanceled        OrderStatus = "CANCELED"
	OrderStatusRejected        OrderStatus = "REJECTED"
	OrderStatusExpired         OrderStatus = "EXPIRED"
)

// ValidationError describes an OrderRequest rejected locally before any
// network call was made.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid order request: %s %s", e.Field, e.Reason)
}

// OrderRequest is the caller's intent to place an order. Which of the
// conditional fields must be present is fully determined by Type.
type OrderRequest struct {
	Symbol      string      `json:"symbol"`
	Side        Side        `json:"side"`
	Type        OrderType   `json:"type"`
	Quantity    string      `json:"quantity"`
	Price       string      `json:"price,omitempty"`
	StopPrice   string      `json:"stopPrice,omitempty"`
	TimeInForce TimeInForce `json:"timeInForce,omitempty"`
}

// Validate checks the request against the conditional field rules and
// fills the GTC default for limit orders. It must pass before the request
// is serialized; violations never reach the network layer.
func (r *OrderRequest) Validate() error {
	if r.Symbol == "" {
		return &ValidationError{Field: "symbol", Reason: "is required"}
	}
	if r.Symbol != strings.ToUpper(r.Symbol) {
		return &ValidationError{Field: "symbol", Reason: "must be uppercase"}
	}
	if !r.Side.Valid() {
		return &ValidationError{Field: "side", Reason: fmt.Sprintf("%q is not a known side", r.Side)}
	}
	if !r.Type.Valid() {
		return &ValidationError{Field: "type", Reason: fmt.Sprintf("%q is not a known order type", r.Type)}
	}
	if err := positiveDecimal("quantity", r.Quantity); err != nil {
		return err
	}

	if r.Type.RequiresPrice() {
		if r.Price == "" {
			return &ValidationError{Field: "price", Reason: fmt.Sprintf("is required for %s orders", r.Type)}
		}
		if err := positiveDecimal("price", r.Price); err != nil {
			return err
		}
	} else if r.Price != "" {
		return &ValidationError{Field: "price", Reason: fmt.Sprintf("must not be set for %s orders", r.Type)}
	}

	if r.Type.RequiresStopPrice() {
		if r.StopPrice == "" {
			return &ValidationError{Field: "stopPrice", Reason: fmt.Sprintf("is required for %s orders", r.Type)}
		}
		if err := positiveDecimal("stopPrice", r.StopPrice); err != nil {
			return err
		}
	} else if r.StopPrice != "" {
		return &ValidationError{Field: "stopPrice", Reason: fmt.Sprintf("must not be set for %s orders", r.Type)}
	}

	if r.TimeInForce == "" && r.Type == OrderTypeLimit {
		r.TimeInForce = TimeInForceGTC
	}
	if r.TimeInForce != "" && !r.TimeInForce.Valid() {
		return &ValidationError{Field: "timeInForce", Reason: fmt.Sprintf("%q is not a known time in force", r.TimeInForce)}
	}

	return nil
}

func positiveDecimal(field, value string) error {
	d, err := decimal.NewFromString(value)
	if err != nil {
		return &ValidationError{Field: field, Reason: fmt.Sprintf("%q is not a decimal", value)}
	}
	if d.Sign() <= 0 {
		return &ValidationError{Field: field, Reason: "must be greater than 0"}
	}
	return nil
}

// Order is the exchange's view of an order as returned by the futures
// REST API. The local snapshot only ever holds values decoded from a
// single server response.
type Order struct {
	OrderID       int64       `json:"orderId"`
	ClientOrderID string      `json:"clientOrderId"`
	Symbol        string      `json:"symbol"`
	Status        OrderStatus `json:"status"`
	Price         string      `json:"price"`
	AvgPrice      string      `json:"avgPrice"`
	OrigQty       string      `json:"origQty"`
	ExecutedQty   string      `json:"executedQty"`
	CumQuote      string      `json:"cumQuote"`
	StopPrice     string      `json:"stopPrice"`
	TimeInForce   TimeInForce `json:"timeInForce"`
	Type          OrderType   `json:"type"`
	OrigType      OrderType   `json:"origType"`
	Side          Side        `json:"side"`
	PositionSide  string      `json:"positionSide"`
	ReduceOnly    bool        `json:"reduceOnly"`
	ClosePosition bool        `json:"closePosition"`
	WorkingType   string      `json:"workingType"`
	Time          int64       `json:"time"`
	UpdateTime    int64       `json:"updateTime"`
}

// Open reports whether the order is still in a non-terminal state and
// eligible for cancellation.
func (o *Order) Open() bool {
	return o.Status == OrderStatusNew || o.Status == OrderStatusPartiallyFilled
}
