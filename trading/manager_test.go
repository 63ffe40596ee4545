package trading

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"tradeflow/exchange/binance"
	"tradeflow/logger"
	"tradeflow/models"
)

// stubExchange is a scripted stand-in for the REST client. Open orders
// live in a map keyed by order id so place and cancel behave like the
// real open-order set.
type stubExchange struct {
	mu         sync.Mutex
	creds      models.Credentials
	pingOK     bool
	pingGate   chan struct{} // when set, Ping blocks until closed
	open       map[int64]models.Order
	nextID     int64
	placeErr   error
	cancelErr  error
	refreshErr error
	placeCalls int
}

func newStubExchange() *stubExchange {
	return &stubExchange{pingOK: true, open: map[int64]models.Order{}, nextID: 1}
}

func (s *stubExchange) SetCredentials(creds models.Credentials) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.creds = creds
}

func (s *stubExchange) Ping(ctx context.Context) bool {
	s.mu.Lock()
	gate := s.pingGate
	ok := s.pingOK
	s.mu.Unlock()
	if gate != nil {
		<-gate
	}
	return ok
}

func (s *stubExchange) PlaceOrder(ctx context.Context, req models.OrderRequest) (*models.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.placeCalls++
	if s.placeErr != nil {
		return nil, s.placeErr
	}
	order := models.Order{
		OrderID: s.nextID,
		Symbol:  req.Symbol,
		Side:    req.Side,
		Type:    req.Type,
		OrigQty: req.Quantity,
		Status:  models.OrderStatusNew,
	}
	s.nextID++
	s.open[order.OrderID] = order
	return &order, nil
}

func (s *stubExchange) CancelOrder(ctx context.Context, symbol string, orderID int64) (*models.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancelErr != nil {
		return nil, s.cancelErr
	}
	order, ok := s.open[orderID]
	if !ok {
		return nil, &binance.APIError{Status: http.StatusBadRequest, Code: -2011, Message: "Unknown order sent."}
	}
	delete(s.open, orderID)
	order.Status = models.OrderStatusCanceled
	return &order, nil
}

func (s *stubExchange) OpenOrders(ctx context.Context, symbol string) ([]models.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.refreshErr != nil {
		return nil, s.refreshErr
	}
	out := make([]models.Order, 0, len(s.open))
	for _, order := range s.open {
		out = append(out, order)
	}
	return out, nil
}

func testCreds() models.Credentials {
	return models.Credentials{APIKey: "key", APISecret: "secret", Network: models.NetworkSandbox}
}

func newTestManager(t *testing.T) (*Manager, *stubExchange) {
	t.Helper()
	stub := newStubExchange()
	return NewManager(stub, NewRecorder(logger.GetLogger())), stub
}

func TestOrderLifecycle(t *testing.T) {
	manager, stub := newTestManager(t)
	ctx := context.Background()

	if manager.State() != StateDisconnected {
		t.Fatalf("initial state = %s", manager.State())
	}

	if err := manager.Connect(ctx, testCreds()); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	if manager.State() != StateConnected {
		t.Fatalf("state after connect = %s", manager.State())
	}
	if manager.Network() != models.NetworkSandbox {
		t.Errorf("network = %s", manager.Network())
	}
	if len(manager.Snapshot()) != 0 {
		t.Fatalf("expected empty initial snapshot, got %d orders", len(manager.Snapshot()))
	}

	req := models.OrderRequest{Symbol: "BTCUSDT", Side: models.SideBuy, Type: models.OrderTypeMarket, Quantity: "0.01"}
	if err := manager.PlaceOrder(ctx, req); err != nil {
		t.Fatalf("PlaceOrder failed: %v", err)
	}
	snapshot := manager.Snapshot()
	if len(snapshot) != 1 || snapshot[0].Symbol != "BTCUSDT" {
		t.Fatalf("snapshot after place = %+v", snapshot)
	}

	if err := manager.CancelOrder(ctx, "BTCUSDT", snapshot[0].OrderID); err != nil {
		t.Fatalf("CancelOrder failed: %v", err)
	}
	if len(manager.Snapshot()) != 0 {
		t.Fatalf("snapshot after cancel = %+v", manager.Snapshot())
	}
	if stub.placeCalls != 1 {
		t.Errorf("place calls = %d, want 1", stub.placeCalls)
	}
}

func TestPlaceOrderWhileDisconnected(t *testing.T) {
	manager, stub := newTestManager(t)

	req := models.OrderRequest{Symbol: "BTCUSDT", Side: models.SideBuy, Type: models.OrderTypeMarket, Quantity: "0.01"}
	if err := manager.PlaceOrder(context.Background(), req); err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
	if stub.placeCalls != 0 {
		t.Errorf("disconnected placement reached the exchange: %d calls", stub.placeCalls)
	}

	events := manager.Activity().Events()
	if len(events) != 1 || events[0].Level != models.ActivityWarning {
		t.Fatalf("expected a single warning event, got %+v", events)
	}
}

func TestConnectFailureKeepsCredentials(t *testing.T) {
	manager, stub := newTestManager(t)
	stub.pingOK = false

	err := manager.Connect(context.Background(), testCreds())
	if err == nil {
		t.Fatal("expected connect error")
	}
	if manager.State() != StateDisconnected {
		t.Errorf("state = %s, want disconnected", manager.State())
	}
	if stub.creds.APIKey != "key" {
		t.Errorf("credentials were not stored on failed connect: %+v", stub.creds)
	}

	var errorEvents int
	for _, event := range manager.Activity().Events() {
		if event.Level == models.ActivityError {
			errorEvents++
		}
	}
	if errorEvents != 1 {
		t.Errorf("error events = %d, want 1", errorEvents)
	}

	// Retry with the same stored credentials succeeds.
	stub.pingOK = true
	if err := manager.Connect(context.Background(), testCreds()); err != nil {
		t.Fatalf("retry failed: %v", err)
	}
	if manager.State() != StateConnected {
		t.Errorf("state after retry = %s", manager.State())
	}
}

func TestCancelUnknownOrderIsWarning(t *testing.T) {
	manager, _ := newTestManager(t)
	ctx := context.Background()
	if err := manager.Connect(ctx, testCreds()); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}

	err := manager.CancelOrder(ctx, "BTCUSDT", 999)
	if !binance.IsUnknownOrder(err) {
		t.Fatalf("expected unknown-order rejection, got %v", err)
	}

	events := manager.Activity().Events()
	last := events[len(events)-1]
	if last.Level != models.ActivityWarning {
		t.Errorf("unknown order recorded as %s, want warning", last.Level)
	}
}

func TestRefreshFailureKeepsSnapshot(t *testing.T) {
	manager, stub := newTestManager(t)
	ctx := context.Background()
	if err := manager.Connect(ctx, testCreds()); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}

	req := models.OrderRequest{Symbol: "BTCUSDT", Side: models.SideBuy, Type: models.OrderTypeMarket, Quantity: "0.01"}
	if err := manager.PlaceOrder(ctx, req); err != nil {
		t.Fatalf("PlaceOrder failed: %v", err)
	}
	before := manager.Snapshot()
	if len(before) != 1 {
		t.Fatalf("snapshot = %+v", before)
	}

	stub.mu.Lock()
	stub.refreshErr = errors.New("boom")
	stub.mu.Unlock()

	if err := manager.Refresh(ctx); err == nil {
		t.Fatal("expected refresh error")
	}
	after := manager.Snapshot()
	if len(after) != 1 || after[0].OrderID != before[0].OrderID {
		t.Errorf("failed refresh changed the snapshot: %+v", after)
	}
}

func TestConnectSupersededByNewerCredentials(t *testing.T) {
	manager, stub := newTestManager(t)
	ctx := context.Background()

	gate := make(chan struct{})
	stub.mu.Lock()
	stub.pingGate = gate
	stub.pingOK = false // the first, stale connect would have failed
	stub.mu.Unlock()

	firstDone := make(chan error, 1)
	go func() {
		firstDone <- manager.Connect(ctx, models.Credentials{APIKey: "old", APISecret: "old", Network: models.NetworkSandbox})
	}()

	// Wait until the first connect is parked inside Ping before firing
	// the second one.
	for manager.State() != StateVerifying {
		time.Sleep(time.Millisecond)
	}

	stub.mu.Lock()
	stub.pingGate = nil
	stub.pingOK = true
	stub.mu.Unlock()

	if err := manager.Connect(ctx, testCreds()); err != nil {
		t.Fatalf("second connect failed: %v", err)
	}

	close(gate)
	if err := <-firstDone; err != nil {
		t.Fatalf("superseded connect must not report an error, got %v", err)
	}

	if manager.State() != StateConnected {
		t.Errorf("state = %s, want connected from the newer credentials", manager.State())
	}
	if manager.Network() != models.NetworkSandbox {
		t.Errorf("network = %s", manager.Network())
	}
}

// alternatingExchange serves open-order batches where every order in one
// response shares a symbol, so a torn snapshot is detectable as a mixed
// batch.
type alternatingExchange struct {
	calls int64
}

func (a *alternatingExchange) SetCredentials(creds models.Credentials) {}

func (a *alternatingExchange) Ping(ctx context.Context) bool { return true }

func (a *alternatingExchange) PlaceOrder(ctx context.Context, req models.OrderRequest) (*models.Order, error) {
	return &models.Order{}, nil
}

func (a *alternatingExchange) CancelOrder(ctx context.Context, symbol string, orderID int64) (*models.Order, error) {
	return &models.Order{}, nil
}

func (a *alternatingExchange) OpenOrders(ctx context.Context, symbol string) ([]models.Order, error) {
	n := atomic.AddInt64(&a.calls, 1)
	sym := "AAAUSDT"
	if n%2 == 0 {
		sym = "BBBUSDT"
	}
	batch := make([]models.Order, 3)
	for i := range batch {
		batch[i] = models.Order{OrderID: n*10 + int64(i), Symbol: sym, Status: models.OrderStatusNew}
	}
	return batch, nil
}

func TestSnapshotConsistentUnderConcurrentRefresh(t *testing.T) {
	manager := NewManager(&alternatingExchange{}, NewRecorder(logger.GetLogger()))
	ctx := context.Background()
	if err := manager.Connect(ctx, testCreds()); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}

	done := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < 500; i++ {
			if err := manager.Refresh(ctx); err != nil {
				t.Errorf("Refresh failed: %v", err)
				break
			}
		}
		close(done)
	}()

	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-done:
					return
				default:
				}
				snapshot := manager.Snapshot()
				for _, order := range snapshot {
					if order.Symbol != snapshot[0].Symbol {
						t.Errorf("mixed snapshot observed: %+v", snapshot)
						return
					}
				}
			}
		}()
	}

	wg.Wait()
}

func TestSnapshotIsolation(t *testing.T) {
	manager, _ := newTestManager(t)
	ctx := context.Background()
	if err := manager.Connect(ctx, testCreds()); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	req := models.OrderRequest{Symbol: "BTCUSDT", Side: models.SideBuy, Type: models.OrderTypeMarket, Quantity: "0.01"}
	if err := manager.PlaceOrder(ctx, req); err != nil {
		t.Fatalf("PlaceOrder failed: %v", err)
	}

	snapshot := manager.Snapshot()
	snapshot[0].Symbol = "HACKED"
	if got := manager.Snapshot()[0].Symbol; got != "BTCUSDT" {
		t.Errorf("snapshot mutated through returned copy: %q", got)
	}
}
