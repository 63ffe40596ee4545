package trading

import (
	"context"
	"fmt"
	"sync"

	"tradeflow/exchange/binance"
	"tradeflow/logger"
	"tradeflow/models"
)

// ConnState is the connection lifecycle state. One credential set is
// active at a time; superseding credentials discards the previous
// session without side effects on the exchange.
type ConnState string

const (
	StateDisconnected ConnState = "disconnected"
	StateVerifying    ConnState = "verifying"
	StateConnected    ConnState = "connected"
)

// Exchange is the slice of the REST client the manager drives. The
// concrete client is injected so tests can substitute a stub.
type Exchange interface {
	SetCredentials(creds models.Credentials)
	Ping(ctx context.Context) bool
	PlaceOrder(ctx context.Context, req models.OrderRequest) (*models.Order, error)
	CancelOrder(ctx context.Context, symbol string, orderID int64) (*models.Order, error)
	OpenOrders(ctx context.Context, symbol string) ([]models.Order, error)
}

// Manager orchestrates connect, place, cancel and refresh and owns the
// authoritative in-memory snapshot of open orders. All state mutation
// happens under one mutex; the snapshot is replaced whole, never merged,
// so readers always observe exactly one server response.
type Manager struct {
	mu         sync.RWMutex
	state      ConnState
	network    models.Network
	snapshot   []models.Order
	connectGen uint64

	exchange Exchange
	activity *Recorder
	log      *logger.Log
}

// NewManager creates a Manager around the given exchange client and
// activity recorder.
func NewManager(exchange Exchange, activity *Recorder) *Manager {
	return &Manager{
		state:    StateDisconnected,
		exchange: exchange,
		activity: activity,
		log:      logger.GetLogger(),
	}
}

// State returns the current connection state.
func (m *Manager) State() ConnState {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state
}

// Network returns the network of the active credentials.
func (m *Manager) Network() models.Network {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.network
}

// Snapshot returns a copy of the open-order snapshot.
func (m *Manager) Snapshot() []models.Order {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]models.Order, len(m.snapshot))
	copy(out, m.snapshot)
	return out
}

// Activity returns the activity recorder for read access.
func (m *Manager) Activity() *Recorder {
	return m.activity
}

func (m *Manager) connected() bool {
	return m.State() == StateConnected
}

// Connect stores creds, verifies connectivity and, on success, loads the
// initial snapshot. On failure the state ends Disconnected but the
// credentials stay stored, so a retry does not require re-entry. When
// connects race, the most recent call decides the final state.
func (m *Manager) Connect(ctx context.Context, creds models.Credentials) error {
	m.mu.Lock()
	m.connectGen++
	gen := m.connectGen
	m.state = StateVerifying
	m.network = creds.Network
	m.mu.Unlock()

	m.activity.Record(models.ActivityInfo, "setting up api credentials", map[string]interface{}{
		"network": string(creds.Network),
	})
	m.exchange.SetCredentials(creds)

	ok := m.exchange.Ping(ctx)

	m.mu.Lock()
	if gen != m.connectGen {
		m.mu.Unlock()
		m.log.WithComponent("order_manager").WithFields(logger.Fields{
			"network": string(creds.Network),
		}).Info("connect superseded by a newer credential set")
		return nil
	}
	if !ok {
		m.state = StateDisconnected
		m.mu.Unlock()
		m.activity.Record(models.ActivityError, "connection test failed", map[string]interface{}{
			"network": string(creds.Network),
		})
		return fmt.Errorf("connection test failed on %s", creds.Network)
	}
	m.state = StateConnected
	m.mu.Unlock()

	m.activity.Record(models.ActivitySuccess, fmt.Sprintf("connected to %s network", creds.Network), nil)
	m.Refresh(ctx)
	return nil
}

// PlaceOrder forwards a placement to the exchange and refreshes the
// snapshot regardless of outcome. Not connected is a no-op with a
// warning event. The placement itself is never retried.
func (m *Manager) PlaceOrder(ctx context.Context, req models.OrderRequest) error {
	if !m.connected() {
		m.activity.Record(models.ActivityWarning, "order ignored: not connected", map[string]interface{}{
			"symbol": req.Symbol,
		})
		return nil
	}

	m.activity.Record(models.ActivityInfo,
		fmt.Sprintf("placing %s %s order for %s %s", req.Side, req.Type, req.Quantity, req.Symbol),
		map[string]interface{}{
			"symbol":   req.Symbol,
			"side":     string(req.Side),
			"type":     string(req.Type),
			"quantity": req.Quantity,
		})

	order, err := m.exchange.PlaceOrder(ctx, req)
	if err != nil {
		m.activity.Record(models.ActivityError, fmt.Sprintf("failed to place order: %v", err), map[string]interface{}{
			"symbol": req.Symbol,
		})
	} else {
		m.activity.Record(models.ActivitySuccess, fmt.Sprintf("order %d placed", order.OrderID), map[string]interface{}{
			"order_id":        order.OrderID,
			"client_order_id": order.ClientOrderID,
			"status":          string(order.Status),
		})
	}

	// Refresh failures are logged on their own; they never mask the
	// placement outcome.
	m.Refresh(ctx)
	return err
}

// CancelOrder forwards a cancellation and refreshes the snapshot
// regardless of outcome. An unknown-order rejection means the order
// already left the open set; it is recorded as a warning and the next
// refresh reconciles the snapshot.
func (m *Manager) CancelOrder(ctx context.Context, symbol string, orderID int64) error {
	if !m.connected() {
		m.activity.Record(models.ActivityWarning, "cancel ignored: not connected", map[string]interface{}{
			"symbol":   symbol,
			"order_id": orderID,
		})
		return nil
	}

	m.activity.Record(models.ActivityInfo, fmt.Sprintf("canceling order %d for %s", orderID, symbol), map[string]interface{}{
		"symbol":   symbol,
		"order_id": orderID,
	})

	_, err := m.exchange.CancelOrder(ctx, symbol, orderID)
	switch {
	case err == nil:
		m.activity.Record(models.ActivitySuccess, fmt.Sprintf("order %d canceled", orderID), map[string]interface{}{
			"symbol":   symbol,
			"order_id": orderID,
		})
	case binance.IsUnknownOrder(err):
		m.activity.Record(models.ActivityWarning, fmt.Sprintf("order %d already closed on exchange", orderID), map[string]interface{}{
			"symbol":   symbol,
			"order_id": orderID,
		})
	default:
		m.activity.Record(models.ActivityError, fmt.Sprintf("failed to cancel order %d: %v", orderID, err), map[string]interface{}{
			"symbol":   symbol,
			"order_id": orderID,
		})
	}

	m.Refresh(ctx)
	return err
}

// Refresh replaces the snapshot with the current open-order set. The
// replacement is atomic: on any failure the previous snapshot stays
// untouched. Not connected is a no-op.
func (m *Manager) Refresh(ctx context.Context) error {
	if !m.connected() {
		return nil
	}

	orders, err := m.exchange.OpenOrders(ctx, "")
	if err != nil {
		m.activity.Record(models.ActivityError, fmt.Sprintf("failed to refresh orders: %v", err), nil)
		return err
	}

	m.mu.Lock()
	m.snapshot = orders
	m.mu.Unlock()

	logger.IncrementRefresh(len(orders))
	m.log.WithComponent("order_manager").WithFields(logger.Fields{
		"open_orders": len(orders),
	}).Debug("snapshot replaced")
	return nil
}
