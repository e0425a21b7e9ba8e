package config

import "path/filepath"

func (c *Config) applyDefaults() {
	if c.App.LogLevel == "" {
		c.App.LogLevel = "info"
	}
	if c.App.DataDir == "" {
		c.App.DataDir = "data"
	}
	if c.Venue.HTTPTimeoutSec <= 0 {
		c.Venue.HTTPTimeoutSec = 15
	}
	if c.Trading.MarginMode == "" {
		c.Trading.MarginMode = "cross"
	}
	if c.Trading.QuoteAsset == "" {
		c.Trading.QuoteAsset = "USDT"
	}
	if c.Trading.MarginSafetyLevel <= 0 {
		c.Trading.MarginSafetyLevel = 1.5
	}
	if c.Trading.BufferQuote <= 0 {
		c.Trading.BufferQuote = 10
	}
	if c.Trading.BufferPct <= 0 {
		c.Trading.BufferPct = 0.10
	}
	if c.Trading.DefaultLeverage <= 0 {
		c.Trading.DefaultLeverage = 1
	}
	if c.ExitPlan.StorePath == "" {
		c.ExitPlan.StorePath = filepath.Join(c.App.DataDir, "exit_plans.db")
	}
	if c.ExitPlan.Timeframe == "" {
		c.ExitPlan.Timeframe = "4h"
	}
	if c.Monitor.IntervalSec <= 0 {
		c.Monitor.IntervalSec = 60
	}
	if c.HTTP.Addr == "" {
		c.HTTP.Addr = ":9985"
	}
}
