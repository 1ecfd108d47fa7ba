package models

import (
	"time"
)

// Window lengths for rolling transfer limits. Resets are lazy: a window
// restarts the first time it is touched after its length has elapsed, not
// on a timer.
const (
	DailyWindow   = 24 * time.Hour
	MonthlyWindow = 30 * 24 * time.Hour
)

// Config is the per-asset compliance configuration. A zero value for any
// numeric field means "unrestricted".
type Config struct {
	Paused        bool  `json:"paused"`
	MinInvestment int64 `json:"min_investment"`
	MaxHolding    int64 `json:"max_holding"`
	SupplyCap     int64 `json:"supply_cap"`
}

// AccountProfile carries per-account overrides. Zero numeric fields mean
// "no override, use the asset default". Whitelisted accounts are exempt
// from investment thresholds and rolling limits, never from sanctions or
// the pause flag.
type AccountProfile struct {
	MinInvestment int64 `json:"min_investment"`
	MaxHolding    int64 `json:"max_holding"`
	Whitelisted   bool  `json:"whitelisted"`
}

// TransferLimits caps cumulative outbound transfers per rolling window.
// Zero means unrestricted.
type TransferLimits struct {
	Daily   int64 `json:"daily"`
	Monthly int64 `json:"monthly"`
}

// WindowUsage is the persisted rolling-window state for one account: an
// accumulated amount and a window-start timestamp per window type, tracked
// independently.
type WindowUsage struct {
	DailyUsed    int64     `json:"daily_used"`
	DailyStart   time.Time `json:"daily_start"`
	MonthlyUsed  int64     `json:"monthly_used"`
	MonthlyStart time.Time `json:"monthly_start"`
}

// RolledForward returns the usage as observed at now: any window whose
// length has elapsed since its start is reset to zero with the window
// restarted at now. This reset-on-access scheme is applied before every
// limit comparison and before every accrual, and is NOT a sliding window.
func (u WindowUsage) RolledForward(now time.Time) WindowUsage {
	if u.DailyStart.IsZero() || now.Sub(u.DailyStart) > DailyWindow {
		u.DailyUsed = 0
		u.DailyStart = now
	}
	if u.MonthlyStart.IsZero() || now.Sub(u.MonthlyStart) > MonthlyWindow {
		u.MonthlyUsed = 0
		u.MonthlyStart = now
	}
	return u
}

// WouldExceed reports whether adding amount would break either limit.
// A zero limit never restricts.
func (u WindowUsage) WouldExceed(limits TransferLimits, amount int64) bool {
	if limits.Daily > 0 && u.DailyUsed+amount > limits.Daily {
		return true
	}
	if limits.Monthly > 0 && u.MonthlyUsed+amount > limits.Monthly {
		return true
	}
	return false
}
