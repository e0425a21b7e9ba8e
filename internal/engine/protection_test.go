package engine

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"levex/internal/gateway/venue"
)

// longBTCSnapshot is an account holding 0.01 BTC net against USDT.
func longBTCSnapshot() *venue.BalanceSnapshot {
	return crossSnapshot(999, 0.01, 0, map[string]venue.AssetBalance{
		"BTC": {Asset: "BTC", Free: 0.01, NetAsset: 0.01},
	})
}

func TestAttachProtection_NativeOCO(t *testing.T) {
	v := new(MockVenue)
	s := new(MockSource)
	eng := newTestEngine(v, s)

	v.On("FetchBalance", mock.Anything, venue.MarginCross, "").Return(longBTCSnapshot(), nil)
	s.On("CurrentPrice", mock.Anything, "BTC/USDT").Return(50000.0, nil)
	v.On("OpenOrders", mock.Anything, "BTC/USDT").Return([]venue.Order{}, nil)
	v.On("Instrument", mock.Anything, "BTC/USDT").Return(btcusdtMeta(), nil)
	v.On("CreateOCO", mock.Anything, mock.MatchedBy(func(req venue.OCORequest) bool {
		return req.Side == venue.SideSell && req.Price == 55000 && req.StopPrice == 48000 && req.ReduceOnly
	})).Return(&venue.OCOResult{OrderListID: 1001, Symbol: "BTC/USDT"}, nil)

	out, err := eng.AttachProtection(context.Background(), "BTCUSDT", venue.SideSell, 0.01, 55000, 48000, 0)

	assert.NoError(t, err)
	assert.Equal(t, OutcomeNativeOCO, out.Kind)
	assert.Equal(t, "BTC/USDT", out.Symbol)
	assert.Equal(t, int64(1001), out.OrderListID)
	// Derived stop-limit sits 1% through the stop, tick rounded.
	assert.InDelta(t, 47520.0, out.StopLimitPrice, 0.01)
	v.AssertExpectations(t)
}

func TestAttachProtection_FallsBackToSeparateOrders(t *testing.T) {
	v := new(MockVenue)
	s := new(MockSource)
	eng := newTestEngine(v, s)

	v.On("FetchBalance", mock.Anything, venue.MarginCross, "").Return(longBTCSnapshot(), nil)
	s.On("CurrentPrice", mock.Anything, "BTC/USDT").Return(50000.0, nil)
	v.On("OpenOrders", mock.Anything, "BTC/USDT").Return([]venue.Order{}, nil)
	v.On("Instrument", mock.Anything, "BTC/USDT").Return(btcusdtMeta(), nil)
	v.On("CreateOCO", mock.Anything, mock.Anything).Return(nil, errors.New("OCO not supported"))
	v.On("CreateOrder", mock.Anything, mock.MatchedBy(func(req venue.OrderRequest) bool {
		return req.Type == venue.OrderTypeStopLossLimit && req.StopPrice == 48000 && req.ReduceOnly
	})).Return(&venue.Order{OrderID: 2001}, nil)
	v.On("CreateOrder", mock.Anything, mock.MatchedBy(func(req venue.OrderRequest) bool {
		return req.Type == venue.OrderTypeLimit && req.Price == 55000 && req.ReduceOnly
	})).Return(&venue.Order{OrderID: 2002}, nil)

	out, err := eng.AttachProtection(context.Background(), "BTCUSDT", venue.SideSell, 0.01, 55000, 48000, 0)

	assert.NoError(t, err)
	assert.Equal(t, OutcomeSeparateOrders, out.Kind)
	assert.Equal(t, int64(2001), out.StopOrderID)
	assert.Equal(t, int64(2002), out.LimitOrderID)
	assert.NoError(t, out.LimitErr)
	v.AssertExpectations(t)
}

func TestAttachProtection_StopLegFailureIsHard(t *testing.T) {
	v := new(MockVenue)
	s := new(MockSource)
	eng := newTestEngine(v, s)

	v.On("FetchBalance", mock.Anything, venue.MarginCross, "").Return(longBTCSnapshot(), nil)
	s.On("CurrentPrice", mock.Anything, "BTC/USDT").Return(50000.0, nil)
	v.On("OpenOrders", mock.Anything, "BTC/USDT").Return([]venue.Order{}, nil)
	v.On("Instrument", mock.Anything, "BTC/USDT").Return(btcusdtMeta(), nil)
	v.On("CreateOCO", mock.Anything, mock.Anything).Return(nil, errors.New("OCO rejected"))
	v.On("CreateOrder", mock.Anything, mock.MatchedBy(func(req venue.OrderRequest) bool {
		return req.Type == venue.OrderTypeStopLossLimit
	})).Return(nil, errors.New("insufficient balance"))

	out, err := eng.AttachProtection(context.Background(), "BTCUSDT", venue.SideSell, 0.01, 55000, 48000, 0)

	assert.Equal(t, OutcomeFailed, out.Kind)
	var rej *VenueRejection
	assert.ErrorAs(t, err, &rej)
	assert.Equal(t, LegProtectionStop, rej.Leg)
	// Take-profit leg is never attempted once the stop leg is refused.
	v.AssertNotCalled(t, "CreateOrder", mock.Anything, mock.MatchedBy(func(req venue.OrderRequest) bool {
		return req.Type == venue.OrderTypeLimit
	}))
}

func TestAttachProtection_TakeProfitFailureIsSoft(t *testing.T) {
	v := new(MockVenue)
	s := new(MockSource)
	eng := newTestEngine(v, s)

	v.On("FetchBalance", mock.Anything, venue.MarginCross, "").Return(longBTCSnapshot(), nil)
	s.On("CurrentPrice", mock.Anything, "BTC/USDT").Return(50000.0, nil)
	v.On("OpenOrders", mock.Anything, "BTC/USDT").Return([]venue.Order{}, nil)
	v.On("Instrument", mock.Anything, "BTC/USDT").Return(btcusdtMeta(), nil)
	v.On("CreateOCO", mock.Anything, mock.Anything).Return(nil, errors.New("OCO rejected"))
	v.On("CreateOrder", mock.Anything, mock.MatchedBy(func(req venue.OrderRequest) bool {
		return req.Type == venue.OrderTypeStopLossLimit
	})).Return(&venue.Order{OrderID: 2001}, nil)
	v.On("CreateOrder", mock.Anything, mock.MatchedBy(func(req venue.OrderRequest) bool {
		return req.Type == venue.OrderTypeLimit
	})).Return(nil, errors.New("price too far"))

	out, err := eng.AttachProtection(context.Background(), "BTCUSDT", venue.SideSell, 0.01, 55000, 48000, 0)

	// Downside cover is in place: the call succeeds with the TP error noted.
	assert.NoError(t, err)
	assert.Equal(t, OutcomeSeparateOrders, out.Kind)
	assert.Equal(t, int64(2001), out.StopOrderID)
	assert.Zero(t, out.LimitOrderID)
	assert.Error(t, out.LimitErr)
}

func TestAttachProtection_Idempotent(t *testing.T) {
	v := new(MockVenue)
	s := new(MockSource)
	eng := newTestEngine(v, s)

	v.On("FetchBalance", mock.Anything, venue.MarginCross, "").Return(longBTCSnapshot(), nil)
	s.On("CurrentPrice", mock.Anything, "BTC/USDT").Return(50000.0, nil)
	v.On("OpenOrders", mock.Anything, "BTC/USDT").Return([]venue.Order{
		{OrderID: 3001, Symbol: "BTC/USDT", Side: venue.SideSell, Type: venue.OrderTypeStopLossLimit, Price: 47500, StopPrice: 48000},
	}, nil)

	out, err := eng.AttachProtection(context.Background(), "BTCUSDT", venue.SideSell, 0.01, 55000, 48000, 0)

	assert.NoError(t, err)
	assert.Equal(t, OutcomeAlreadyProtected, out.Kind)
	v.AssertNotCalled(t, "CreateOCO", mock.Anything, mock.Anything)
	v.AssertNotCalled(t, "CreateOrder", mock.Anything, mock.Anything)
}

func TestAttachProtection_ValidatesPriceRelation(t *testing.T) {
	eng := newTestEngine(new(MockVenue), new(MockSource))

	_, err := eng.AttachProtection(context.Background(), "BTCUSDT", venue.SideSell, 0.01, 48000, 55000, 0)
	var verr *ValidationError
	assert.ErrorAs(t, err, &verr)

	_, err = eng.AttachProtection(context.Background(), "BTCUSDT", venue.SideBuy, 0.01, 55000, 48000, 0)
	assert.ErrorAs(t, err, &verr)
}
