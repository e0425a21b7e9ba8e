package engine

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"levex/internal/gateway/venue"
)

func TestClassifyOrder(t *testing.T) {
	long := &Position{Symbol: "BTC/USDT", Side: SideLong, MarkPrice: 50000}
	short := &Position{Symbol: "BTC/USDT", Side: SideShort, MarkPrice: 50000}

	cases := []struct {
		name  string
		order venue.Order
		pos   *Position
		want  OrderRole
	}{
		{"long stop-limit", venue.Order{Side: venue.SideSell, Type: venue.OrderTypeStopLossLimit, StopPrice: 48000}, long, RoleStopLoss},
		{"long take-profit above mark", venue.Order{Side: venue.SideSell, Type: venue.OrderTypeLimit, Price: 55000}, long, RoleTakeProfit},
		{"long limit below mark is not a stop", venue.Order{Side: venue.SideSell, Type: venue.OrderTypeLimit, Price: 47000}, long, RoleOther},
		{"entry-side order", venue.Order{Side: venue.SideBuy, Type: venue.OrderTypeLimit, Price: 49000}, long, RoleEntry},
		{"short stop-limit", venue.Order{Side: venue.SideBuy, Type: venue.OrderTypeStopLossLimit, StopPrice: 52000}, short, RoleStopLoss},
		{"short take-profit below mark", venue.Order{Side: venue.SideBuy, Type: venue.OrderTypeLimit, Price: 45000}, short, RoleTakeProfit},
		{"short limit above mark is not a stop", venue.Order{Side: venue.SideBuy, Type: venue.OrderTypeLimit, Price: 53000}, short, RoleOther},
		{"nil position", venue.Order{Side: venue.SideSell, Type: venue.OrderTypeLimit, Price: 55000}, nil, RoleOther},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, ClassifyOrder(tc.order, tc.pos))
		})
	}
}

func TestUnprotectedPositions(t *testing.T) {
	v := new(MockVenue)
	s := new(MockSource)
	eng := newTestEngine(v, s)

	snap := crossSnapshot(999, 0.5, 0, map[string]venue.AssetBalance{
		"BTC": {Asset: "BTC", Free: 0.01, NetAsset: 0.01},
		"ETH": {Asset: "ETH", Free: 1.5, NetAsset: 1.5},
	})
	v.On("FetchBalance", mock.Anything, venue.MarginCross, "").Return(snap, nil)
	s.On("CurrentPrice", mock.Anything, "BTC/USDT").Return(50000.0, nil)
	s.On("CurrentPrice", mock.Anything, "ETH/USDT").Return(3000.0, nil)
	// BTC carries a live stop, ETH only a take-profit limit.
	v.On("OpenOrders", mock.Anything, "BTC/USDT").Return([]venue.Order{
		{OrderID: 1, Side: venue.SideSell, Type: venue.OrderTypeStopLossLimit, StopPrice: 48000},
	}, nil)
	v.On("OpenOrders", mock.Anything, "ETH/USDT").Return([]venue.Order{
		{OrderID: 2, Side: venue.SideSell, Type: venue.OrderTypeLimit, Price: 3500},
	}, nil)

	bare, err := eng.UnprotectedPositions(context.Background())

	assert.NoError(t, err)
	assert.Len(t, bare, 1)
	assert.Equal(t, "ETH/USDT", bare[0].Position.Symbol)
	if assert.NotNil(t, bare[0].Protection) {
		assert.False(t, bare[0].Protection.HasStopLoss)
		assert.True(t, bare[0].Protection.HasTakeProfit)
		assert.Len(t, bare[0].Protection.Orders, 1)
		assert.Equal(t, RoleTakeProfit, bare[0].Protection.Orders[0].Role)
	}
}

// A position whose only exit order is a plain limit on the losing side of
// the mark has no stop trigger, so it must still surface as unprotected.
func TestUnprotectedPositions_StrayLimitIsNotCover(t *testing.T) {
	v := new(MockVenue)
	s := new(MockSource)
	eng := newTestEngine(v, s)

	v.On("FetchBalance", mock.Anything, venue.MarginCross, "").Return(longBTCSnapshot(), nil)
	s.On("CurrentPrice", mock.Anything, "BTC/USDT").Return(50000.0, nil)
	v.On("OpenOrders", mock.Anything, "BTC/USDT").Return([]venue.Order{
		{OrderID: 9, Side: venue.SideSell, Type: venue.OrderTypeLimit, Price: 47000},
	}, nil)

	bare, err := eng.UnprotectedPositions(context.Background())

	assert.NoError(t, err)
	assert.Len(t, bare, 1)
	assert.Equal(t, "BTC/USDT", bare[0].Position.Symbol)
	assert.Equal(t, RoleOther, bare[0].Protection.Orders[0].Role)
}

func TestCheckPositionProtection(t *testing.T) {
	v := new(MockVenue)
	s := new(MockSource)
	eng := newTestEngine(v, s)

	v.On("FetchBalance", mock.Anything, venue.MarginCross, "").Return(longBTCSnapshot(), nil)
	s.On("CurrentPrice", mock.Anything, "BTC/USDT").Return(50000.0, nil)
	v.On("OpenOrders", mock.Anything, "BTC/USDT").Return([]venue.Order{
		{OrderID: 1, Side: venue.SideSell, Type: venue.OrderTypeStopLossLimit, StopPrice: 48000},
		{OrderID: 2, Side: venue.SideSell, Type: venue.OrderTypeLimit, Price: 55000},
	}, nil)

	status, err := eng.CheckPositionProtection(context.Background(), "BTCUSDT")

	assert.NoError(t, err)
	assert.Equal(t, "BTC/USDT", status.Symbol)
	assert.True(t, status.HasProtection)
	assert.True(t, status.HasStopLoss)
	assert.True(t, status.HasTakeProfit)
	if assert.Len(t, status.Orders, 2) {
		assert.Equal(t, RoleStopLoss, status.Orders[0].Role)
		assert.Equal(t, RoleTakeProfit, status.Orders[1].Role)
	}
}

func TestCheckPositionProtection_NoPosition(t *testing.T) {
	v := new(MockVenue)
	s := new(MockSource)
	eng := newTestEngine(v, s)

	v.On("FetchBalance", mock.Anything, venue.MarginCross, "").Return(
		crossSnapshot(999, 0, 0, map[string]venue.AssetBalance{}), nil)

	_, err := eng.CheckPositionProtection(context.Background(), "BTCUSDT")
	assert.ErrorIs(t, err, ErrNotFound)
}
