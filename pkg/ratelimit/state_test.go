package ratelimit

import (
	"testing"
	"time"
)

func TestQuotaState_IsStale(t *testing.T) {
	now := time.Date(2026, 10, 14, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name     string
		state    *QuotaState
		window   time.Duration
		expected bool
	}{
		{
			name:     "never updated",
			state:    &QuotaState{},
			window:   time.Minute,
			expected: true,
		},
		{
			name:     "fresh state",
			state:    &QuotaState{LastUpdated: now},
			window:   time.Minute,
			expected: false,
		},
		{
			name:     "just under window",
			state:    &QuotaState{LastUpdated: now.Add(-59 * time.Second)},
			window:   time.Minute,
			expected: false,
		},
		{
			name:     "exactly at window",
			state:    &QuotaState{LastUpdated: now.Add(-time.Minute)},
			window:   time.Minute,
			expected: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := tt.state.IsStale(now, tt.window)
			if result != tt.expected {
				t.Errorf("IsStale() = %v, want %v", result, tt.expected)
			}
		})
	}
}

func TestQuotaState_BelowFloor(t *testing.T) {
	tests := []struct {
		name      string
		remaining int
		cost      int
		expected  bool
	}{
		{
			name:      "well above floor",
			remaining: 50,
			cost:      1,
			expected:  false,
		},
		{
			name:      "lands exactly on floor",
			remaining: DefaultSoftFloor + 1,
			cost:      1,
			expected:  false,
		},
		{
			name:      "at floor",
			remaining: DefaultSoftFloor,
			cost:      1,
			expected:  true,
		},
		{
			name:      "cost larger than headroom",
			remaining: DefaultSoftFloor + 2,
			cost:      3,
			expected:  true,
		},
		{
			name:      "zero remaining",
			remaining: 0,
			cost:      1,
			expected:  true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			state := &QuotaState{Remaining: tt.remaining, Limit: DefaultLimit}
			result := state.BelowFloor(tt.cost, DefaultSoftFloor)
			if result != tt.expected {
				t.Errorf("BelowFloor() = %v, want %v (remaining=%d, cost=%d)", result, tt.expected, tt.remaining, tt.cost)
			}
		})
	}
}

func TestQuotaState_TimeUntilReset(t *testing.T) {
	now := time.Date(2026, 10, 14, 12, 0, 0, 0, time.UTC)
	future := now.Add(30 * time.Second)
	past := now.Add(-30 * time.Second)

	tests := []struct {
		name     string
		resetAt  *time.Time
		expected time.Duration
	}{
		{name: "unknown reset", resetAt: nil, expected: 0},
		{name: "reset in future", resetAt: &future, expected: 30 * time.Second},
		{name: "reset already passed", resetAt: &past, expected: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			state := &QuotaState{ResetAt: tt.resetAt}
			if got := state.TimeUntilReset(now); got != tt.expected {
				t.Errorf("TimeUntilReset() = %v, want %v", got, tt.expected)
			}
		})
	}
}

func TestQuotaState_Normalize(t *testing.T) {
	tests := []struct {
		name          string
		state         QuotaState
		wantRemaining int
		wantLimit     int
	}{
		{
			name:          "valid state untouched",
			state:         QuotaState{Remaining: 40, Limit: 60},
			wantRemaining: 40,
			wantLimit:     60,
		},
		{
			name:          "remaining above limit clamped",
			state:         QuotaState{Remaining: 80, Limit: 60},
			wantRemaining: 60,
			wantLimit:     60,
		},
		{
			name:          "negative remaining clamped",
			state:         QuotaState{Remaining: -3, Limit: 60},
			wantRemaining: 0,
			wantLimit:     60,
		},
		{
			name:          "missing limit defaulted",
			state:         QuotaState{Remaining: 10},
			wantRemaining: 10,
			wantLimit:     DefaultLimit,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := tt.state
			s.normalize()
			if s.Remaining != tt.wantRemaining {
				t.Errorf("Remaining = %d, want %d", s.Remaining, tt.wantRemaining)
			}
			if s.Limit != tt.wantLimit {
				t.Errorf("Limit = %d, want %d", s.Limit, tt.wantLimit)
			}
		})
	}
}

func TestStatus_PercentUsed(t *testing.T) {
	tests := []struct {
		name     string
		status   Status
		expected float64
	}{
		{name: "nothing used", status: Status{Remaining: 60, Limit: 60}, expected: 0},
		{name: "half used", status: Status{Remaining: 30, Limit: 60}, expected: 50},
		{name: "one third used", status: Status{Remaining: 40, Limit: 60, Used: 20}, expected: 33.3},
		{name: "zero limit", status: Status{}, expected: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.status.PercentUsed(); got != tt.expected {
				t.Errorf("PercentUsed() = %v, want %v", got, tt.expected)
			}
		})
	}
}

func TestThresholdConstants(t *testing.T) {
	if DefaultSoftFloor >= DefaultLimit {
		t.Errorf("DefaultSoftFloor (%d) must be less than DefaultLimit (%d)", DefaultSoftFloor, DefaultLimit)
	}
	if WarningPercent <= 0 || WarningPercent >= 100 {
		t.Errorf("WarningPercent (%d) must be within (0, 100)", WarningPercent)
	}
}
