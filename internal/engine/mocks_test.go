package engine

import (
	"context"

	"github.com/stretchr/testify/mock"

	"levex/internal/gateway/venue"
)

type MockVenue struct {
	mock.Mock
}

func (m *MockVenue) Name() string { return "mock" }

func (m *MockVenue) FetchBalance(ctx context.Context, mode venue.MarginMode, symbol string) (*venue.BalanceSnapshot, error) {
	args := m.Called(ctx, mode, symbol)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*venue.BalanceSnapshot), args.Error(1)
}

func (m *MockVenue) CreateOrder(ctx context.Context, req venue.OrderRequest) (*venue.Order, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*venue.Order), args.Error(1)
}

func (m *MockVenue) CancelOrder(ctx context.Context, symbol string, orderID int64) error {
	args := m.Called(ctx, symbol, orderID)
	return args.Error(0)
}

func (m *MockVenue) CancelAllOrders(ctx context.Context, symbol string) error {
	args := m.Called(ctx, symbol)
	return args.Error(0)
}

func (m *MockVenue) OpenOrders(ctx context.Context, symbol string) ([]venue.Order, error) {
	args := m.Called(ctx, symbol)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]venue.Order), args.Error(1)
}

func (m *MockVenue) CreateOCO(ctx context.Context, req venue.OCORequest) (*venue.OCOResult, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*venue.OCOResult), args.Error(1)
}

func (m *MockVenue) Borrow(ctx context.Context, asset string, amount float64, symbol string) (int64, error) {
	args := m.Called(ctx, asset, amount, symbol)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockVenue) Repay(ctx context.Context, asset string, amount float64, symbol string) (int64, error) {
	args := m.Called(ctx, asset, amount, symbol)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockVenue) MaxBorrowable(ctx context.Context, asset, symbol string) (float64, error) {
	args := m.Called(ctx, asset, symbol)
	return args.Get(0).(float64), args.Error(1)
}

func (m *MockVenue) Instrument(ctx context.Context, symbol string) (venue.InstrumentMeta, error) {
	args := m.Called(ctx, symbol)
	return args.Get(0).(venue.InstrumentMeta), args.Error(1)
}

type MockSource struct {
	mock.Mock
}

func (m *MockSource) CurrentPrice(ctx context.Context, symbol string) (float64, error) {
	args := m.Called(ctx, symbol)
	return args.Get(0).(float64), args.Error(1)
}

func btcusdtMeta() venue.InstrumentMeta {
	return venue.InstrumentMeta{
		Symbol:      "BTCUSDT",
		BaseAsset:   "BTC",
		QuoteAsset:  "USDT",
		StepSize:    0.001,
		TickSize:    0.01,
		MinQty:      0.001,
		MinNotional: 5,
	}
}

func crossSnapshot(marginLevel, netBTC, liabilityBTC float64, assets map[string]venue.AssetBalance) *venue.BalanceSnapshot {
	return &venue.BalanceSnapshot{
		MarginMode:        venue.MarginCross,
		MarginLevel:       marginLevel,
		TotalAssetBTC:     netBTC + liabilityBTC,
		TotalLiabilityBTC: liabilityBTC,
		TotalNetAssetBTC:  netBTC,
		BorrowEnabled:     true,
		Assets:            assets,
	}
}

func newTestEngine(v *MockVenue, s *MockSource) *Engine {
	eng, err := New(Params{Venue: v, Source: s})
	if err != nil {
		panic(err)
	}
	return eng
}
