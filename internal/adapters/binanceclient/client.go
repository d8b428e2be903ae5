package binanceclient

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"smcbot/internal/domain"
	"smcbot/internal/ports"

	"github.com/adshao/go-binance/v2/common"
	"github.com/adshao/go-binance/v2/futures"
)

const (
	baseURLProduction = "https://fapi.binance.com"
	baseURLTestnet    = "https://testnet.binancefuture.com"
)

// Client adapts the Binance USD-M futures API to the market data and
// execution ports using the go-binance library.
type Client struct {
	futuresClient *futures.Client
	logger        ports.Logger
}

// Config holds configuration specific to the Binance client adapter.
type Config struct {
	APIKey     string
	SecretKey  string
	UseTestnet bool
	Logger     ports.Logger
}

// New creates a new Binance client adapter.
func New(cfg Config) (*Client, error) {
	if cfg.Logger == nil {
		return nil, fmt.Errorf("logger is required for Binance client")
	}
	if cfg.APIKey == "" || cfg.SecretKey == "" {
		cfg.Logger.Warn(context.Background(), "APIKey or SecretKey is empty. Client will only work for public endpoints.")
	}

	client := futures.NewClient(cfg.APIKey, cfg.SecretKey)
	if cfg.UseTestnet {
		client.BaseURL = baseURLTestnet
		cfg.Logger.Info(context.Background(), "Binance client configured for Testnet", map[string]interface{}{"baseURL": client.BaseURL})
	} else {
		client.BaseURL = baseURLProduction
	}

	return &Client{
		futuresClient: client,
		logger:        cfg.Logger,
	}, nil
}

// handleError translates common Binance API errors into standardized ports
// errors so the core can classify failures without knowing exchange codes.
func (c *Client) handleError(ctx context.Context, err error, operation string) error {
	if err == nil {
		return nil
	}

	fields := map[string]interface{}{"operation": operation, "originalError": err.Error()}

	var apiErr *common.APIError
	if errors.As(err, &apiErr) {
		fields["apiErrorCode"] = apiErr.Code
		fields["apiErrorMessage"] = apiErr.Message

		var mappedErr error
		switch apiErr.Code {
		case -1003: // Too many requests
			mappedErr = ports.ErrRateLimited
		case -1021: // Timestamp outside of the recvWindow
			mappedErr = ports.ErrTimeout
		case -1022: // Invalid signature
			mappedErr = ports.ErrAuthenticationFailed
		case -1101, -1102, -1103, -1104, -1105, -1106, -1111, -1115, -1116, -1117, -1120, -1121, -1125, -1127, -1128, -1130:
			mappedErr = ports.ErrInvalidRequest
		case -2010: // New order rejected
			mappedErr = ports.ErrOrderPlacementFailed
		case -2011: // Cancel order rejected
			mappedErr = ports.ErrOrderCancelFailed
		case -2013: // Order does not exist
			mappedErr = ports.ErrOrderNotFound
		case -2014, -2015: // API-key format invalid / bad permissions
			mappedErr = ports.ErrInvalidAPIKeys
		case -2019, -3005, -3041: // Margin or balance insufficient
			mappedErr = ports.ErrInsufficientFunds
		case -2022: // ReduceOnly order rejected
			mappedErr = ports.ErrOrderPlacementFailed
		case -4003, -4014, -4015: // Qty/price/leverage out of range
			mappedErr = ports.ErrInvalidRequest
		case -4044: // Position not found
			mappedErr = ports.ErrNotFound
		default:
			mappedErr = ports.ErrUnknown
		}
		finalErr := fmt.Errorf("%s failed: %w: %w", operation, mappedErr, err)
		c.logger.Error(ctx, err, fmt.Sprintf("%s failed with API error", operation), fields)
		return finalErr
	}

	var finalErr error
	if errors.Is(err, context.DeadlineExceeded) {
		finalErr = fmt.Errorf("%s failed: %w: %w", operation, ports.ErrTimeout, err)
	} else if errors.Is(err, context.Canceled) {
		finalErr = fmt.Errorf("%s operation canceled: %w: %w", operation, ports.ErrContextCanceled, err)
	} else if strings.Contains(err.Error(), "use of closed network connection") ||
		strings.Contains(err.Error(), "connection refused") ||
		strings.Contains(err.Error(), "connection reset by peer") {
		finalErr = fmt.Errorf("%s failed: %w: %w", operation, ports.ErrConnectionFailed, err)
	} else {
		finalErr = fmt.Errorf("%s failed: %w: %w", operation, ports.ErrUnknown, err)
	}

	c.logger.Error(ctx, err, fmt.Sprintf("%s failed", operation), fields)
	return finalErr
}

// Ping checks the connectivity to the exchange API.
func (c *Client) Ping(ctx context.Context) error {
	op := "Ping"
	if err := c.futuresClient.NewPingService().Do(ctx); err != nil {
		return c.handleError(ctx, fmt.Errorf("ping failed: %w", err), op)
	}
	c.logger.Debug(ctx, op+" successful")
	return nil
}

// SetServerTime synchronizes the client's time offset with the server.
func (c *Client) SetServerTime(ctx context.Context) error {
	op := "SetServerTime"
	if _, err := c.futuresClient.NewSetServerTimeService().Do(ctx); err != nil {
		return c.handleError(ctx, err, op)
	}
	c.logger.Debug(ctx, op+" successful")
	return nil
}

// GetCandles retrieves historical candles for the symbol, ascending by time.
func (c *Client) GetCandles(ctx context.Context, symbol, interval string, limit int) ([]*domain.Candle, error) {
	op := "GetCandles"
	klines, err := c.futuresClient.NewKlinesService().Symbol(symbol).Interval(interval).Limit(limit).Do(ctx)
	if err != nil {
		return nil, c.handleError(ctx, err, op)
	}

	candles := make([]*domain.Candle, 0, len(klines))
	for _, k := range klines {
		candle, err := translateKline(k, symbol, interval)
		if err != nil {
			return nil, c.handleError(ctx, fmt.Errorf("failed to translate kline: %w: %w", ports.ErrMalformedData, err), op)
		}
		candles = append(candles, candle)
	}
	return candles, nil
}

// GetTicker retrieves the current top-of-book snapshot for a symbol.
func (c *Client) GetTicker(ctx context.Context, symbol string) (*domain.Ticker, error) {
	op := "GetTicker"
	stats, err := c.futuresClient.NewListPriceChangeStatsService().Symbol(symbol).Do(ctx)
	if err != nil {
		return nil, c.handleError(ctx, err, op)
	}
	if len(stats) == 0 {
		return nil, c.handleError(ctx, fmt.Errorf("no ticker data returned for symbol %s", symbol), op)
	}

	s := stats[0]
	lastPrice, err := strconv.ParseFloat(s.LastPrice, 64)
	if err != nil {
		return nil, c.handleError(ctx, fmt.Errorf("could not parse price '%s': %w", s.LastPrice, err), op)
	}
	volume, _ := strconv.ParseFloat(s.Volume, 64)
	change, _ := strconv.ParseFloat(s.PriceChangePercent, 64)

	return &domain.Ticker{
		Symbol:    symbol,
		LastPrice: lastPrice,
		Volume24h: volume,
		Change24h: change,
		Timestamp: time.UnixMilli(s.CloseTime),
	}, nil
}

// GetBalance retrieves the total and available balance for an asset.
func (c *Client) GetBalance(ctx context.Context, asset string) (float64, float64, error) {
	op := "GetBalance"
	account, err := c.futuresClient.NewGetAccountService().Do(ctx)
	if err != nil {
		return 0, 0, c.handleError(ctx, err, op)
	}

	for _, bal := range account.Assets {
		if bal.Asset != asset {
			continue
		}
		total, err := strconv.ParseFloat(bal.WalletBalance, 64)
		if err != nil {
			return 0, 0, c.handleError(ctx, fmt.Errorf("could not parse balance '%s' for asset %s: %w", bal.WalletBalance, asset, err), op)
		}
		available, err := strconv.ParseFloat(bal.AvailableBalance, 64)
		if err != nil {
			return 0, 0, c.handleError(ctx, fmt.Errorf("could not parse available balance '%s' for asset %s: %w", bal.AvailableBalance, asset, err), op)
		}
		return total, available, nil
	}

	return 0, 0, c.handleError(ctx, fmt.Errorf("asset %s not found in account balance", asset), op)
}

// GetPositions retrieves open positions, optionally filtered by symbol.
// Zero-size entries from the exchange are dropped.
func (c *Client) GetPositions(ctx context.Context, symbol string) ([]*domain.Position, error) {
	op := "GetPositions"
	svc := c.futuresClient.NewGetPositionRiskService()
	if symbol != "" {
		svc = svc.Symbol(symbol)
	}
	riskPositions, err := svc.Do(ctx)
	if err != nil {
		return nil, c.handleError(ctx, err, op)
	}

	var positions []*domain.Position
	for _, rp := range riskPositions {
		amt, _ := strconv.ParseFloat(rp.PositionAmt, 64)
		if amt == 0 {
			continue
		}
		entryPrice, _ := strconv.ParseFloat(rp.EntryPrice, 64)
		markPrice, _ := strconv.ParseFloat(rp.MarkPrice, 64)
		unPNL, _ := strconv.ParseFloat(rp.UnRealizedProfit, 64)

		side := domain.Buy
		size := amt
		if amt < 0 {
			side = domain.Sell
			size = -amt
		}
		positions = append(positions, &domain.Position{
			Symbol:        rp.Symbol,
			Side:          side,
			Size:          size,
			EntryPrice:    entryPrice,
			CurrentPrice:  markPrice,
			UnrealizedPNL: unPNL,
			Timestamp:     time.Now().UTC(),
		})
	}
	return positions, nil
}

// PlaceOrder submits an order and returns the exchange-assigned order id. A
// request with a stop price becomes a stop-market trigger order.
func (c *Client) PlaceOrder(ctx context.Context, req ports.OrderRequest) (string, error) {
	op := "PlaceOrder"

	svc := c.futuresClient.NewCreateOrderService().
		Symbol(req.Symbol).
		Side(futures.SideType(req.Side)).
		Quantity(formatQuantity(req.Quantity))

	switch {
	case req.StopPrice > 0:
		svc = svc.Type(futures.OrderTypeStopMarket).StopPrice(formatPrice(req.StopPrice))
	case req.Type == domain.Limit:
		svc = svc.Type(futures.OrderTypeLimit).
			Price(formatPrice(req.Price)).
			TimeInForce(futures.TimeInForceTypeGTC)
	default:
		svc = svc.Type(futures.OrderTypeMarket)
	}
	if req.ReduceOnly {
		svc = svc.ReduceOnly(true)
	}
	if req.ClientOrderID != "" {
		svc = svc.NewClientOrderID(req.ClientOrderID)
	}

	order, err := svc.Do(ctx)
	if err != nil {
		return "", c.handleError(ctx, err, op)
	}

	orderID := strconv.FormatInt(order.OrderID, 10)
	c.logger.Info(ctx, op+" successful", map[string]interface{}{
		"symbol":   req.Symbol,
		"side":     string(req.Side),
		"type":     string(req.Type),
		"quantity": req.Quantity,
		"orderID":  orderID,
	})
	return orderID, nil
}

// CancelOrder cancels an open order by id.
func (c *Client) CancelOrder(ctx context.Context, symbol, orderID string) error {
	op := "CancelOrder"
	id, err := strconv.ParseInt(orderID, 10, 64)
	if err != nil {
		return fmt.Errorf("%s: invalid order id %q: %w", op, orderID, ports.ErrInvalidRequest)
	}

	if _, err := c.futuresClient.NewCancelOrderService().Symbol(symbol).OrderID(id).Do(ctx); err != nil {
		return c.handleError(ctx, err, op)
	}
	c.logger.Info(ctx, op+" successful", map[string]interface{}{"symbol": symbol, "orderID": orderID})
	return nil
}

// GetOrderStatus retrieves the current state of an order.
func (c *Client) GetOrderStatus(ctx context.Context, symbol, orderID string) (*domain.Order, error) {
	op := "GetOrderStatus"
	id, err := strconv.ParseInt(orderID, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("%s: invalid order id %q: %w", op, orderID, ports.ErrInvalidRequest)
	}

	order, err := c.futuresClient.NewGetOrderService().Symbol(symbol).OrderID(id).Do(ctx)
	if err != nil {
		return nil, c.handleError(ctx, err, op)
	}
	return translateOrder(order), nil
}

// --- Translation Helpers ---

func translateOrder(order *futures.Order) *domain.Order {
	if order == nil {
		return nil
	}
	price, _ := strconv.ParseFloat(order.Price, 64)
	avgPrice, _ := strconv.ParseFloat(order.AvgPrice, 64)
	origQty, _ := strconv.ParseFloat(order.OrigQuantity, 64)
	execQty, _ := strconv.ParseFloat(order.ExecutedQuantity, 64)

	return &domain.Order{
		ID:             strconv.FormatInt(order.OrderID, 10),
		Symbol:         order.Symbol,
		Side:           domain.OrderSide(order.Side),
		Type:           translateOrderType(order.Type),
		Quantity:       origQty,
		Price:          price,
		Status:         translateStatus(order.Status),
		FilledQuantity: execQty,
		AvgFillPrice:   avgPrice,
		Timestamp:      time.UnixMilli(order.UpdateTime),
	}
}

func translateOrderType(t futures.OrderType) domain.OrderType {
	if t == futures.OrderTypeLimit {
		return domain.Limit
	}
	return domain.Market
}

// translateStatus maps exchange order states onto the tracked lifecycle.
// Binance spells CANCELED with one L and uses EXPIRED for dead orders.
func translateStatus(s futures.OrderStatusType) domain.OrderStatus {
	switch s {
	case futures.OrderStatusTypeNew:
		return domain.StatusNew
	case futures.OrderStatusTypePartiallyFilled:
		return domain.StatusPartiallyFilled
	case futures.OrderStatusTypeFilled:
		return domain.StatusFilled
	case futures.OrderStatusTypeCanceled, futures.OrderStatusTypeExpired:
		return domain.StatusCancelled
	case futures.OrderStatusTypeRejected:
		return domain.StatusRejected
	}
	return domain.StatusNew
}

func translateKline(k *futures.Kline, symbol, interval string) (*domain.Candle, error) {
	if k == nil {
		return nil, errors.New("received nil historical kline")
	}
	open, err := strconv.ParseFloat(k.Open, 64)
	if err != nil {
		return nil, fmt.Errorf("parsing open price '%s': %w", k.Open, err)
	}
	high, err := strconv.ParseFloat(k.High, 64)
	if err != nil {
		return nil, fmt.Errorf("parsing high price '%s': %w", k.High, err)
	}
	low, err := strconv.ParseFloat(k.Low, 64)
	if err != nil {
		return nil, fmt.Errorf("parsing low price '%s': %w", k.Low, err)
	}
	cls, err := strconv.ParseFloat(k.Close, 64)
	if err != nil {
		return nil, fmt.Errorf("parsing close price '%s': %w", k.Close, err)
	}
	vol, err := strconv.ParseFloat(k.Volume, 64)
	if err != nil {
		return nil, fmt.Errorf("parsing volume '%s': %w", k.Volume, err)
	}

	return &domain.Candle{
		Timestamp: time.UnixMilli(k.OpenTime),
		Symbol:    symbol,
		Interval:  interval,
		Open:      open,
		High:      high,
		Low:       low,
		Close:     cls,
		Volume:    vol,
	}, nil
}

func formatPrice(price float64) string {
	return strconv.FormatFloat(price, 'f', 2, 64)
}

func formatQuantity(quantity float64) string {
	return strconv.FormatFloat(quantity, 'f', 3, 64)
}
