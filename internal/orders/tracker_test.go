package orders

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"smcbot/internal/domain"
	"smcbot/internal/ports"
	"smcbot/internal/retry"
)

// --- Mocks ---

type mockLogger struct{}

func (m *mockLogger) Debug(ctx context.Context, msg string, fields ...map[string]interface{}) {}
func (m *mockLogger) Info(ctx context.Context, msg string, fields ...map[string]interface{})  {}
func (m *mockLogger) Warn(ctx context.Context, msg string, fields ...map[string]interface{})  {}
func (m *mockLogger) Error(ctx context.Context, err error, msg string, fields ...map[string]interface{}) {
}

type mockSink struct {
	placed      []ports.OrderRequest
	placeErr    error
	cancelled   []string
	cancelErr   error
	statusOrder *domain.Order
	statusErr   error
}

func (m *mockSink) PlaceOrder(ctx context.Context, req ports.OrderRequest) (string, error) {
	if m.placeErr != nil {
		return "", m.placeErr
	}
	m.placed = append(m.placed, req)
	return "ex-1", nil
}

func (m *mockSink) CancelOrder(ctx context.Context, symbol, orderID string) error {
	if m.cancelErr != nil {
		return m.cancelErr
	}
	m.cancelled = append(m.cancelled, orderID)
	return nil
}

func (m *mockSink) GetOrderStatus(ctx context.Context, symbol, orderID string) (*domain.Order, error) {
	if m.statusErr != nil {
		return nil, m.statusErr
	}
	return m.statusOrder, nil
}

func newPaperTracker(t *testing.T) *Tracker {
	t.Helper()
	tracker, err := NewTracker(Config{Mode: domain.ModePaper}, &mockLogger{}, nil, nil)
	require.NoError(t, err)
	return tracker
}

// --- Tests ---

func TestNewTracker(t *testing.T) {
	logger := &mockLogger{}
	retrier, err := retry.New(retry.Config{}, logger)
	require.NoError(t, err)

	tests := []struct {
		name    string
		cfg     Config
		sink    ports.ExecutionSink
		retrier *retry.Retrier
		wantErr string
	}{
		{name: "paper mode ok", cfg: Config{Mode: domain.ModePaper}},
		{name: "live mode ok", cfg: Config{Mode: domain.ModeLive}, sink: &mockSink{}, retrier: retrier},
		{name: "live without sink", cfg: Config{Mode: domain.ModeLive}, retrier: retrier, wantErr: "execution sink is required"},
		{name: "live without retrier", cfg: Config{Mode: domain.ModeLive}, sink: &mockSink{}, wantErr: "retrier is required"},
		{name: "unknown mode", cfg: Config{Mode: "demo"}, wantErr: "unknown trading mode"},
		{name: "negative commission", cfg: Config{Mode: domain.ModePaper, CommissionRate: -0.1}, wantErr: "commission rate"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tracker, err := NewTracker(tt.cfg, logger, tt.sink, tt.retrier)
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.NotNil(t, tracker)
		})
	}
}

func TestPaperRoundTrip(t *testing.T) {
	tracker := newPaperTracker(t)
	ctx := context.Background()

	buy, err := tracker.PlaceMarketOrder(ctx, "BTCUSDT", domain.Buy, 0.01, 50000, 0, 0)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusFilled, buy.Status)
	assert.Equal(t, 0.01, buy.FilledQuantity)
	assert.Equal(t, 50000.0, buy.AvgFillPrice)

	positions := tracker.Positions("BTCUSDT")
	require.Len(t, positions, 1)
	assert.Equal(t, domain.Buy, positions[0].Side)
	assert.Equal(t, 0.01, positions[0].Size)
	assert.Equal(t, 50000.0, positions[0].EntryPrice)

	sell, err := tracker.PlaceMarketOrder(ctx, "BTCUSDT", domain.Sell, 0.01, 50000, 0, 0)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusFilled, sell.Status)

	assert.Empty(t, tracker.Positions("BTCUSDT"))
	assert.Len(t, tracker.Trades(), 2)

	// Flat round trip at one price realizes exactly the exit commission as loss.
	exitCommission := 0.01 * 50000 * 0.0006
	select {
	case result := <-tracker.Results():
		assert.InDelta(t, -exitCommission, result.PNL, 1e-9)
		assert.InDelta(t, exitCommission, result.Commission, 1e-9)
		assert.Equal(t, domain.Buy, result.Side)
		assert.Equal(t, 0.01, result.Quantity)
	default:
		t.Fatal("expected a trade result on the results channel")
	}

	// Both fills charged commission against the simulated balance.
	account := tracker.PaperAccount()
	assert.InDelta(t, 10000-2*exitCommission, account.TotalBalance, 1e-9)
}

func TestPaperScaleIn(t *testing.T) {
	tracker := newPaperTracker(t)
	ctx := context.Background()

	_, err := tracker.PlaceMarketOrder(ctx, "ETHUSDT", domain.Buy, 1, 100, 0, 0)
	require.NoError(t, err)
	_, err = tracker.PlaceMarketOrder(ctx, "ETHUSDT", domain.Buy, 1, 110, 0, 0)
	require.NoError(t, err)

	positions := tracker.Positions("ETHUSDT")
	require.Len(t, positions, 1)
	assert.Equal(t, 2.0, positions[0].Size)
	assert.InDelta(t, 105.0, positions[0].EntryPrice, 1e-9)

	// Scaling in realizes nothing.
	select {
	case <-tracker.Results():
		t.Fatal("no result expected for a same-direction fill")
	default:
	}
}

func TestPaperPartialReduce(t *testing.T) {
	tracker := newPaperTracker(t)
	ctx := context.Background()

	_, err := tracker.PlaceMarketOrder(ctx, "ETHUSDT", domain.Buy, 2, 100, 0, 0)
	require.NoError(t, err)
	_, err = tracker.PlaceMarketOrder(ctx, "ETHUSDT", domain.Sell, 0.5, 110, 0, 0)
	require.NoError(t, err)

	positions := tracker.Positions("ETHUSDT")
	require.Len(t, positions, 1)
	assert.Equal(t, domain.Buy, positions[0].Side)
	assert.Equal(t, 1.5, positions[0].Size)
	assert.Equal(t, 100.0, positions[0].EntryPrice, "entry price unchanged on partial reduce")

	select {
	case result := <-tracker.Results():
		assert.Equal(t, 0.5, result.Quantity)
		commission := 0.5 * 110 * 0.0006
		assert.InDelta(t, 0.5*10-commission, result.PNL, 1e-9)
	default:
		t.Fatal("expected a realized result for the reducing fill")
	}
}

func TestPaperFlip(t *testing.T) {
	tracker := newPaperTracker(t)
	ctx := context.Background()

	_, err := tracker.PlaceMarketOrder(ctx, "ETHUSDT", domain.Buy, 1, 100, 0, 0)
	require.NoError(t, err)
	_, err = tracker.PlaceMarketOrder(ctx, "ETHUSDT", domain.Sell, 1.5, 110, 0, 0)
	require.NoError(t, err)

	positions := tracker.Positions("ETHUSDT")
	require.Len(t, positions, 1)
	assert.Equal(t, domain.Sell, positions[0].Side)
	assert.InDelta(t, 0.5, positions[0].Size, 1e-9)
	assert.Equal(t, 110.0, positions[0].EntryPrice)

	select {
	case result := <-tracker.Results():
		assert.Equal(t, domain.Buy, result.Side)
		assert.Equal(t, 1.0, result.Quantity)
		// Commission attributed pro-rata to the closed quantity.
		fullCommission := 1.5 * 110 * 0.0006
		wantCommission := fullCommission * 1.0 / 1.5
		assert.InDelta(t, wantCommission, result.Commission, 1e-9)
		assert.InDelta(t, 10.0-wantCommission, result.PNL, 1e-9)
	default:
		t.Fatal("expected a realized result for the flipping fill")
	}
}

func TestPaperOrderValidation(t *testing.T) {
	tracker := newPaperTracker(t)
	ctx := context.Background()

	_, err := tracker.PlaceMarketOrder(ctx, "", domain.Buy, 1, 100, 0, 0)
	assert.ErrorIs(t, err, ports.ErrInvalidRequest)

	_, err = tracker.PlaceMarketOrder(ctx, "BTCUSDT", domain.Buy, 0, 100, 0, 0)
	assert.ErrorIs(t, err, ports.ErrInvalidRequest)

	_, err = tracker.PlaceMarketOrder(ctx, "BTCUSDT", domain.Buy, 1, -5, 0, 0)
	assert.ErrorIs(t, err, ports.ErrInvalidRequest)
}

func TestCancelUnknownOrder(t *testing.T) {
	tracker := newPaperTracker(t)
	ctx := context.Background()

	err := tracker.CancelOrder(ctx, "BTCUSDT", "no-such-id")
	assert.ErrorIs(t, err, ports.ErrOrderNotFound)

	// Paper fills are synchronous, so a completed order is no longer
	// cancellable either.
	order, err := tracker.PlaceMarketOrder(ctx, "BTCUSDT", domain.Buy, 0.01, 50000, 0, 0)
	require.NoError(t, err)
	err = tracker.CancelOrder(ctx, "BTCUSDT", order.ID)
	assert.ErrorIs(t, err, ports.ErrOrderNotFound)

	got, ok := tracker.Order(order.ID)
	require.True(t, ok)
	assert.Equal(t, domain.StatusFilled, got.Status, "cancel must not mutate a terminal order")
}

func TestLiveMarketOrderAttachesProtection(t *testing.T) {
	ctx := context.Background()
	logger := &mockLogger{}
	retrier, err := retry.New(retry.Config{MaxAttempts: 1}, logger)
	require.NoError(t, err)

	sink := &mockSink{
		statusOrder: &domain.Order{
			ID:             "ex-1",
			Symbol:         "BTCUSDT",
			Status:         domain.StatusFilled,
			FilledQuantity: 0.02,
			AvgFillPrice:   50010,
		},
	}
	tracker, err := NewTracker(Config{Mode: domain.ModeLive}, logger, sink, retrier)
	require.NoError(t, err)

	order, err := tracker.PlaceMarketOrder(ctx, "BTCUSDT", domain.Buy, 0.02, 50000, 49000, 52000)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusFilled, order.Status)
	assert.Equal(t, 0.02, order.FilledQuantity)

	// Entry plus reduce-only stop-loss and take-profit.
	require.Len(t, sink.placed, 3)
	entry, stop, tp := sink.placed[0], sink.placed[1], sink.placed[2]
	assert.Equal(t, domain.Market, entry.Type)
	assert.False(t, entry.ReduceOnly)
	assert.NotEmpty(t, entry.ClientOrderID)

	assert.Equal(t, domain.Sell, stop.Side)
	assert.True(t, stop.ReduceOnly)
	assert.Equal(t, 49000.0, stop.StopPrice)
	assert.Equal(t, 0.02, stop.Quantity, "protective orders sized at the confirmed fill quantity")

	assert.Equal(t, domain.Sell, tp.Side)
	assert.True(t, tp.ReduceOnly)
	assert.Equal(t, 52000.0, tp.Price)
	assert.Equal(t, 0.02, tp.Quantity)

	positions := tracker.Positions("BTCUSDT")
	require.Len(t, positions, 1)
	assert.Equal(t, 49000.0, positions[0].StopLoss)
	assert.Equal(t, 52000.0, positions[0].TakeProfit)
}

func TestLiveOrderRejected(t *testing.T) {
	ctx := context.Background()
	logger := &mockLogger{}
	retrier, err := retry.New(retry.Config{MaxAttempts: 1}, logger)
	require.NoError(t, err)

	sink := &mockSink{
		statusOrder: &domain.Order{ID: "ex-1", Symbol: "BTCUSDT", Status: domain.StatusRejected},
	}
	tracker, err := NewTracker(Config{Mode: domain.ModeLive}, logger, sink, retrier)
	require.NoError(t, err)

	order, err := tracker.PlaceMarketOrder(ctx, "BTCUSDT", domain.Buy, 0.02, 50000, 49000, 52000)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusRejected, order.Status)

	// Only the entry attempt reached the exchange, no protection for a
	// rejected order, and no position exists.
	assert.Len(t, sink.placed, 1)
	assert.Empty(t, tracker.Positions("BTCUSDT"))
	assert.Zero(t, tracker.ActiveOrderCount())
}

func TestLiveCancelActiveOrder(t *testing.T) {
	ctx := context.Background()
	logger := &mockLogger{}
	retrier, err := retry.New(retry.Config{MaxAttempts: 1}, logger)
	require.NoError(t, err)

	sink := &mockSink{}
	tracker, err := NewTracker(Config{Mode: domain.ModeLive}, logger, sink, retrier)
	require.NoError(t, err)

	order, err := tracker.PlaceLimitOrder(ctx, "BTCUSDT", domain.Buy, 0.02, 48000)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusNew, order.Status)
	assert.Equal(t, 1, tracker.ActiveOrderCount())

	require.NoError(t, tracker.CancelOrder(ctx, "BTCUSDT", order.ID))
	assert.Equal(t, []string{order.ID}, sink.cancelled)
	assert.Zero(t, tracker.ActiveOrderCount())

	got, ok := tracker.Order(order.ID)
	require.True(t, ok)
	assert.Equal(t, domain.StatusCancelled, got.Status)
}

func TestSizeConservation(t *testing.T) {
	tracker := newPaperTracker(t)
	ctx := context.Background()

	fills := []struct {
		side domain.OrderSide
		qty  float64
	}{
		{domain.Buy, 1.0},
		{domain.Buy, 0.5},
		{domain.Sell, 0.75},
		{domain.Sell, 1.25}, // crosses zero, flips short 0.5
		{domain.Buy, 0.5},   // back to flat
	}

	net := 0.0
	for _, f := range fills {
		_, err := tracker.PlaceMarketOrder(ctx, "ETHUSDT", f.side, f.qty, 100, 0, 0)
		require.NoError(t, err)
		if f.side == domain.Buy {
			net += f.qty
		} else {
			net -= f.qty
		}

		positions := tracker.Positions("ETHUSDT")
		if net == 0 {
			assert.Empty(t, positions)
			continue
		}
		require.Len(t, positions, 1)
		signed := positions[0].Size
		if positions[0].Side == domain.Sell {
			signed = -signed
		}
		assert.InDelta(t, net, signed, 1e-9, "net size must equal the signed sum of fills")
	}
}
