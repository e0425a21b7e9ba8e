package venue

import "time"

type MarginMode string

const (
	MarginCross    MarginMode = "cross"
	MarginIsolated MarginMode = "isolated"
)

func (m MarginMode) Isolated() bool { return m == MarginIsolated }

type Side string

const (
	SideBuy  Side = "BUY"
	SideSell Side = "SELL"
)

// Opposite returns the reducing side for a position opened with s.
func (s Side) Opposite() Side {
	if s == SideBuy {
		return SideSell
	}
	return SideBuy
}

type OrderType string

const (
	OrderTypeMarket          OrderType = "MARKET"
	OrderTypeLimit           OrderType = "LIMIT"
	OrderTypeStopLossLimit   OrderType = "STOP_LOSS_LIMIT"
	OrderTypeStopLoss        OrderType = "STOP_LOSS"
	OrderTypeTakeProfit      OrderType = "TAKE_PROFIT"
	OrderTypeTakeProfitLimit OrderType = "TAKE_PROFIT_LIMIT"
)

// StopTriggered reports whether the order type rests until a stop price is hit.
func (t OrderType) StopTriggered() bool {
	switch t {
	case OrderTypeStopLoss, OrderTypeStopLossLimit, OrderTypeTakeProfit, OrderTypeTakeProfitLimit:
		return true
	default:
		return false
	}
}

// AssetBalance is one margin-account asset row, parsed fail-fast from the
// venue payload.
type AssetBalance struct {
	Asset    string  `json:"asset"`
	Free     float64 `json:"free"`
	Locked   float64 `json:"locked"`
	Borrowed float64 `json:"borrowed"`
	Interest float64 `json:"interest"`
	NetAsset float64 `json:"net_asset"`
}

// Liability is the outstanding debt on a single asset.
func (a AssetBalance) Liability() float64 {
	return a.Borrowed + a.Interest
}

// BalanceSnapshot is the structured view of a margin account at one instant.
type BalanceSnapshot struct {
	MarginMode        MarginMode              `json:"margin_mode"`
	MarginLevel       float64                 `json:"margin_level"`
	TotalAssetBTC     float64                 `json:"total_asset_btc"`
	TotalLiabilityBTC float64                 `json:"total_liability_btc"`
	TotalNetAssetBTC  float64                 `json:"total_net_asset_btc"`
	BorrowEnabled     bool                    `json:"borrow_enabled"`
	Assets            map[string]AssetBalance `json:"assets"`
	FetchedAt         time.Time               `json:"fetched_at"`
}

// Asset returns the balance row for asset, zero-valued when absent.
func (b *BalanceSnapshot) Asset(asset string) AssetBalance {
	if b == nil || b.Assets == nil {
		return AssetBalance{Asset: asset}
	}
	if row, ok := b.Assets[asset]; ok {
		return row
	}
	return AssetBalance{Asset: asset}
}

// Order is the engine-side projection of a venue order.
type Order struct {
	Symbol        string    `json:"symbol"`
	OrderID       int64     `json:"order_id"`
	ClientOrderID string    `json:"client_order_id"`
	Side          Side      `json:"side"`
	Type          OrderType `json:"type"`
	Quantity      float64   `json:"quantity"`
	ExecutedQty   float64   `json:"executed_qty"`
	Price         float64   `json:"price"`
	StopPrice     float64   `json:"stop_price"`
	Status        string    `json:"status"`
	TimeInForce   string    `json:"time_in_force"`
	ReduceOnly    bool      `json:"reduce_only"`
	CreatedAt     int64     `json:"created_at"`
}

// OrderRequest describes one order submission. Quantity and prices must
// already be quantized to the instrument's step/tick.
type OrderRequest struct {
	Symbol        string
	Side          Side
	Type          OrderType
	Quantity      float64
	Price         float64
	StopPrice     float64
	TimeInForce   string
	ClientOrderID string
	PostOnly      bool
	// ReduceOnly restricts the order to decreasing an existing position; on
	// margin venues without a native flag the adapter maps it to auto-repay.
	ReduceOnly bool
	// AutoBorrow lets the venue open the loan as part of the fill.
	AutoBorrow bool
	IsIsolated bool
}

// OCORequest describes the venue's atomic one-cancels-the-other pair.
type OCORequest struct {
	Symbol               string
	Side                 Side
	Quantity             float64
	Price                float64 // take-profit limit price
	StopPrice            float64
	StopLimitPrice       float64
	StopLimitTimeInForce string
	ReduceOnly           bool
	IsIsolated           bool
}

// OCOResult is the venue acknowledgement of a native OCO.
type OCOResult struct {
	OrderListID int64   `json:"order_list_id"`
	Symbol      string  `json:"symbol"`
	Orders      []Order `json:"orders"`
}

// InstrumentMeta carries the precision and size limits for one instrument.
type InstrumentMeta struct {
	Symbol      string  `json:"symbol"`
	BaseAsset   string  `json:"base_asset"`
	QuoteAsset  string  `json:"quote_asset"`
	StepSize    float64 `json:"step_size"`
	TickSize    float64 `json:"tick_size"`
	MinQty      float64 `json:"min_qty"`
	MinNotional float64 `json:"min_notional"`
}
