package market

import "time"

type Candle struct {
	OpenTime  int64   `json:"open_time"`
	CloseTime int64   `json:"close_time"`
	Open      float64 `json:"open"`
	High      float64 `json:"high"`
	Low       float64 `json:"low"`
	Close     float64 `json:"close"`
	Volume    float64 `json:"volume"`
	Trades    int64   `json:"trades"`
}

// Closed reports whether the candle's close time has passed.
func (c Candle) Closed(now time.Time) bool {
	return c.CloseTime > 0 && c.CloseTime <= now.UnixMilli()
}

// DropUnclosed trims the trailing candle when it is still forming, so
// indicator evaluation only ever sees finished bars.
func DropUnclosed(candles []Candle, now time.Time) []Candle {
	if len(candles) == 0 {
		return candles
	}
	if candles[len(candles)-1].Closed(now) {
		return candles
	}
	return candles[:len(candles)-1]
}
