package exitplan

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"levex/internal/market"
)

type MockSource struct {
	mock.Mock
}

func (m *MockSource) CurrentPrice(ctx context.Context, symbol string) (float64, error) {
	args := m.Called(ctx, symbol)
	return args.Get(0).(float64), args.Error(1)
}

func (m *MockSource) Candles(ctx context.Context, symbol, interval string, limit int) ([]market.Candle, error) {
	args := m.Called(ctx, symbol, interval, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]market.Candle), args.Error(1)
}

func longPosition(entry float64) PositionFn {
	return func(ctx context.Context, symbol string) (*PositionInfo, error) {
		return &PositionInfo{Symbol: symbol, Side: "long", Size: 1, EntryPrice: entry}, nil
	}
}

func newPlanEngine(t *testing.T, s *MockSource, pos PositionFn) *Engine {
	t.Helper()
	eng, err := New(Params{Source: s, Position: pos})
	require.NoError(t, err)
	return eng
}

func TestCreateExitPlan_RiskReward(t *testing.T) {
	s := new(MockSource)
	s.On("CurrentPrice", mock.Anything, "BTC/USDT").Return(101.0, nil)
	eng := newPlanEngine(t, s, longPosition(100))

	plan, err := eng.CreateExitPlan(context.Background(), "BTCUSDT", 110, 95, nil)

	require.NoError(t, err)
	assert.Equal(t, "BTC/USDT", plan.Symbol)
	assert.InDelta(t, 2.0, plan.RiskRewardRatio, 1e-12)
	assert.InDelta(t, 10.0, plan.TargetPnl, 1e-12)
	assert.InDelta(t, -5.0, plan.StopPnl, 1e-12)
	assert.InDelta(t, 101.0, plan.PriceAtCreation, 1e-12)
	assert.Equal(t, StatusCreated, plan.Status)
}

func TestCreateExitPlan_ShortSide(t *testing.T) {
	s := new(MockSource)
	s.On("CurrentPrice", mock.Anything, "ETH/USDT").Return(2990.0, nil)
	pos := func(ctx context.Context, symbol string) (*PositionInfo, error) {
		return &PositionInfo{Symbol: symbol, Side: "short", Size: 2, EntryPrice: 3000}, nil
	}
	eng := newPlanEngine(t, s, pos)

	plan, err := eng.CreateExitPlan(context.Background(), "ETHUSDT", 2800, 3100, nil)

	require.NoError(t, err)
	assert.InDelta(t, 2.0, plan.RiskRewardRatio, 1e-12)
	assert.InDelta(t, 400.0, plan.TargetPnl, 1e-12)
	assert.InDelta(t, -200.0, plan.StopPnl, 1e-12)
}

func TestCreateExitPlan_RequiresPosition(t *testing.T) {
	s := new(MockSource)
	notFound := errors.New("position BTCUSDT: not found")
	eng := newPlanEngine(t, s, func(ctx context.Context, symbol string) (*PositionInfo, error) {
		return nil, notFound
	})

	_, err := eng.CreateExitPlan(context.Background(), "BTCUSDT", 110, 95, nil)
	assert.ErrorIs(t, err, notFound)
}

func TestCreateExitPlan_OverwritesExisting(t *testing.T) {
	s := new(MockSource)
	s.On("CurrentPrice", mock.Anything, "BTC/USDT").Return(100.0, nil)
	eng := newPlanEngine(t, s, longPosition(100))

	_, err := eng.CreateExitPlan(context.Background(), "BTCUSDT", 110, 95, nil)
	require.NoError(t, err)
	_, err = eng.CreateExitPlan(context.Background(), "BTCUSDT", 120, 90, nil)
	require.NoError(t, err)

	plan, err := eng.Plan("BTCUSDT")
	require.NoError(t, err)
	assert.Equal(t, 120.0, plan.TargetPrice)
	assert.Len(t, eng.Plans(), 1)
}

func TestCheckInvalidation_PriceBelowTriggers(t *testing.T) {
	s := new(MockSource)
	s.On("CurrentPrice", mock.Anything, "BTC/USDT").Return(94.0, nil)
	eng := newPlanEngine(t, s, longPosition(100))

	_, err := eng.CreateExitPlan(context.Background(), "BTCUSDT", 110, 95, []Condition{
		{Type: CondPriceBelow, Params: map[string]any{"price": 96}},
	})
	require.NoError(t, err)

	res, err := eng.CheckInvalidation(context.Background(), "BTCUSDT")

	require.NoError(t, err)
	assert.True(t, res.Triggered)
	assert.Equal(t, CondPriceBelow, res.Condition.Type)

	plan, err := eng.Plan("BTCUSDT")
	require.NoError(t, err)
	assert.Equal(t, StatusInvalidated, plan.Status)
}

func TestCheckInvalidation_UnknownTypeNeverTriggers(t *testing.T) {
	s := new(MockSource)
	s.On("CurrentPrice", mock.Anything, "BTC/USDT").Return(100.0, nil)
	eng := newPlanEngine(t, s, longPosition(100))

	_, err := eng.CreateExitPlan(context.Background(), "BTCUSDT", 110, 95, []Condition{
		{Type: "support_break", Description: "unrecognized evaluator"},
		{Type: CondCustom, Description: "watch funding flip"},
	})
	require.NoError(t, err)

	res, err := eng.CheckInvalidation(context.Background(), "BTCUSDT")

	require.NoError(t, err)
	assert.False(t, res.Triggered)

	plan, err := eng.Plan("BTCUSDT")
	require.NoError(t, err)
	assert.Equal(t, StatusValid, plan.Status)
}

func TestCheckInvalidation_StaleDataIsNotTriggered(t *testing.T) {
	s := new(MockSource)
	s.On("CurrentPrice", mock.Anything, "BTC/USDT").Return(100.0, nil).Once()
	s.On("CurrentPrice", mock.Anything, "BTC/USDT").Return(0.0, errors.New("venue timeout"))
	eng := newPlanEngine(t, s, longPosition(100))

	_, err := eng.CreateExitPlan(context.Background(), "BTCUSDT", 110, 95, []Condition{
		{Type: CondPriceBelow, Params: map[string]any{"price": 96}},
	})
	require.NoError(t, err)

	res, err := eng.CheckInvalidation(context.Background(), "BTCUSDT")

	require.NoError(t, err)
	assert.False(t, res.Triggered)
}

func TestCheckInvalidation_StringParamsCoerced(t *testing.T) {
	s := new(MockSource)
	s.On("CurrentPrice", mock.Anything, "BTC/USDT").Return(94.0, nil)
	eng := newPlanEngine(t, s, longPosition(100))

	_, err := eng.CreateExitPlan(context.Background(), "BTCUSDT", 110, 95, []Condition{
		{Type: CondPriceBelow, Params: map[string]any{"price": "96"}},
	})
	require.NoError(t, err)

	res, err := eng.CheckInvalidation(context.Background(), "BTCUSDT")
	require.NoError(t, err)
	assert.True(t, res.Triggered)
}

func TestCheckAllExitPlans(t *testing.T) {
	s := new(MockSource)
	s.On("CurrentPrice", mock.Anything, "BTC/USDT").Return(94.0, nil)
	s.On("CurrentPrice", mock.Anything, "ETH/USDT").Return(3000.0, nil)
	eng := newPlanEngine(t, s, longPosition(100))

	_, err := eng.CreateExitPlan(context.Background(), "BTCUSDT", 110, 95, []Condition{
		{Type: CondPriceBelow, Params: map[string]any{"price": 96}},
	})
	require.NoError(t, err)
	pos := func(ctx context.Context, symbol string) (*PositionInfo, error) {
		return &PositionInfo{Symbol: symbol, Side: "long", Size: 1, EntryPrice: 2900}, nil
	}
	eng.position = pos
	_, err = eng.CreateExitPlan(context.Background(), "ETHUSDT", 3200, 2800, []Condition{
		{Type: CondPriceBelow, Params: map[string]any{"price": 2850}},
	})
	require.NoError(t, err)

	results, err := eng.CheckAllExitPlans(context.Background())

	require.NoError(t, err)
	require.Len(t, results, 2)
	triggered := map[string]bool{}
	for _, res := range results {
		triggered[res.Symbol] = res.Triggered
	}
	assert.True(t, triggered["BTC/USDT"])
	assert.False(t, triggered["ETH/USDT"])
}

func TestExecuteExitPlan(t *testing.T) {
	s := new(MockSource)
	s.On("CurrentPrice", mock.Anything, "BTC/USDT").Return(100.0, nil)
	closed := ""
	eng, err := New(Params{
		Source:   s,
		Position: longPosition(100),
		ClosePosition: func(ctx context.Context, symbol string) error {
			closed = symbol
			return nil
		},
	})
	require.NoError(t, err)

	_, err = eng.CreateExitPlan(context.Background(), "BTCUSDT", 110, 95, nil)
	require.NoError(t, err)

	require.NoError(t, eng.ExecuteExitPlan(context.Background(), "BTCUSDT"))
	assert.Equal(t, "BTC/USDT", closed)
	_, err = eng.Plan("BTCUSDT")
	assert.ErrorIs(t, err, ErrPlanNotFound)
}

func TestRemoveExitPlan_NotFound(t *testing.T) {
	eng := newPlanEngine(t, new(MockSource), longPosition(100))
	err := eng.RemoveExitPlan(context.Background(), "BTCUSDT")
	assert.ErrorIs(t, err, ErrPlanNotFound)
}

func TestStoreRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "plans.db")
	store, err := OpenStore(path)
	require.NoError(t, err)

	s := new(MockSource)
	s.On("CurrentPrice", mock.Anything, "BTC/USDT").Return(100.0, nil)
	eng, err := New(Params{Source: s, Position: longPosition(100), Store: store})
	require.NoError(t, err)
	_, err = eng.CreateExitPlan(context.Background(), "BTCUSDT", 110, 95, []Condition{
		{Type: CondPriceBelow, Params: map[string]any{"price": 96}},
	})
	require.NoError(t, err)
	require.NoError(t, store.Close())

	// A second engine on the same file restores the plan.
	store2, err := OpenStore(path)
	require.NoError(t, err)
	defer store2.Close()
	eng2, err := New(Params{Source: s, Position: longPosition(100), Store: store2})
	require.NoError(t, err)

	plan, err := eng2.Plan("BTCUSDT")
	require.NoError(t, err)
	assert.Equal(t, 110.0, plan.TargetPrice)
	require.Len(t, plan.Conditions, 1)
	assert.Equal(t, CondPriceBelow, plan.Conditions[0].Type)
}
