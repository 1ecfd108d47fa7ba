package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRolledForward(t *testing.T) {
	start := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	usage := WindowUsage{
		DailyUsed:    400,
		DailyStart:   start,
		MonthlyUsed:  9_000,
		MonthlyStart: start,
	}

	t.Run("inside both windows keeps usage", func(t *testing.T) {
		got := usage.RolledForward(start.Add(23 * time.Hour))
		assert.Equal(t, usage, got)
	})

	t.Run("exactly at the boundary keeps usage", func(t *testing.T) {
		// Reset fires strictly after the window length elapses.
		got := usage.RolledForward(start.Add(DailyWindow))
		assert.Equal(t, int64(400), got.DailyUsed)
	})

	t.Run("past daily boundary resets daily only", func(t *testing.T) {
		now := start.Add(DailyWindow + time.Second)
		got := usage.RolledForward(now)
		assert.Zero(t, got.DailyUsed)
		assert.Equal(t, now, got.DailyStart)
		assert.Equal(t, int64(9_000), got.MonthlyUsed)
		assert.Equal(t, start, got.MonthlyStart)
	})

	t.Run("past monthly boundary resets both", func(t *testing.T) {
		now := start.Add(MonthlyWindow + time.Second)
		got := usage.RolledForward(now)
		assert.Zero(t, got.DailyUsed)
		assert.Zero(t, got.MonthlyUsed)
		assert.Equal(t, now, got.MonthlyStart)
	})

	t.Run("zero value starts windows at now", func(t *testing.T) {
		now := time.Date(2026, 4, 2, 12, 0, 0, 0, time.UTC)
		got := WindowUsage{}.RolledForward(now)
		assert.Equal(t, now, got.DailyStart)
		assert.Equal(t, now, got.MonthlyStart)
	})
}

func TestWouldExceed(t *testing.T) {
	usage := WindowUsage{DailyUsed: 800, MonthlyUsed: 800}

	assert.False(t, usage.WouldExceed(TransferLimits{}, 1_000_000), "zero limits never restrict")
	assert.False(t, usage.WouldExceed(TransferLimits{Daily: 1_000}, 200), "exact fit allowed")
	assert.True(t, usage.WouldExceed(TransferLimits{Daily: 1_000}, 201))
	assert.True(t, usage.WouldExceed(TransferLimits{Monthly: 1_000}, 500))
}
