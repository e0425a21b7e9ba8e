package config

import (
	"fmt"

	"levex/internal/scheduler"
)

func validate(c *Config) error {
	if c.Venue.APIKey == "" || c.Venue.APISecret == "" {
		return fmt.Errorf("venue.api_key and venue.api_secret are required")
	}
	switch c.Trading.MarginMode {
	case "cross", "isolated":
	default:
		return fmt.Errorf("trading.margin_mode must be cross or isolated, got %q", c.Trading.MarginMode)
	}
	if c.Trading.MarginSafetyLevel < 1.1 {
		return fmt.Errorf("trading.margin_safety_level %v is below the liquidation threshold", c.Trading.MarginSafetyLevel)
	}
	if c.Trading.BufferPct < 0 || c.Trading.BufferPct > 1 {
		return fmt.Errorf("trading.buffer_pct must be within [0,1], got %v", c.Trading.BufferPct)
	}
	if c.Trading.DefaultLeverage > 10 {
		return fmt.Errorf("trading.default_leverage %d exceeds the supported maximum of 10", c.Trading.DefaultLeverage)
	}
	if _, ok := scheduler.ParseIntervalDuration(c.ExitPlan.Timeframe); !ok {
		return fmt.Errorf("exit_plan.timeframe %q is not a valid interval", c.ExitPlan.Timeframe)
	}
	switch c.App.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("app.log_level must be one of debug/info/warn/error, got %q", c.App.LogLevel)
	}
	return nil
}
