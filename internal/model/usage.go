package model

import "time"

// UsageCounter tracks per-provider call volume. One row per provider per day;
// the monthly count rolls over when MonthDate changes.
type UsageCounter struct {
	Provider     string    `json:"provider"`
	Day          string    `json:"day"`        // YYYY-MM-DD
	MonthDate    string    `json:"month_date"` // YYYY-MM
	DailyCount   int       `json:"daily_count"`
	MonthlyCount int       `json:"monthly_count"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// CooldownState is the persisted error window and pause marker for a
// provider. Persisted so a cooldown survives process restart.
type CooldownState struct {
	Provider    string      `json:"provider"`
	ErrorTimes  []time.Time `json:"error_times"`
	PausedUntil *time.Time  `json:"paused_until,omitempty"`
}

// InCooldown reports whether the provider is paused as of now.
func (c CooldownState) InCooldown(now time.Time) bool {
	return c.PausedUntil != nil && now.Before(*c.PausedUntil)
}
