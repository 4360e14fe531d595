package ratelimit

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

var testNow = time.Date(2026, 10, 14, 12, 0, 0, 0, time.UTC)

// newTestLimiter returns a limiter without the local budget so floor tests
// are not affected by token refill.
func newTestLimiter(mutate func(*Config)) *Limiter {
	cfg := DefaultConfig()
	cfg.Account = "test"
	cfg.MinCallInterval = 0
	if mutate != nil {
		mutate(&cfg)
	}
	return NewLimiter(cfg, zerolog.Nop())
}

func TestLimiter_AcquireBeforeAnyReport(t *testing.T) {
	l := newTestLimiter(nil)

	permit, err := l.Acquire(1, testNow)
	if err != nil {
		t.Fatalf("Acquire() error = %v", err)
	}
	if permit.Remaining != DefaultLimit-1 {
		t.Errorf("Permit.Remaining = %d, want %d", permit.Remaining, DefaultLimit-1)
	}
	if permit.Cost != 1 {
		t.Errorf("Permit.Cost = %d, want 1", permit.Cost)
	}
}

func TestLimiter_SoftFloorHoldsUntilReport(t *testing.T) {
	l := newTestLimiter(nil)
	l.Report(QuotaState{Remaining: DefaultSoftFloor + 2, Limit: 60, LastUpdated: testNow})

	for i := 0; i < 2; i++ {
		if _, err := l.Acquire(1, testNow); err != nil {
			t.Fatalf("Acquire() #%d error = %v", i+1, err)
		}
	}

	// Floor reached: every further call is denied.
	for i := 0; i < 5; i++ {
		_, err := l.Acquire(1, testNow.Add(time.Duration(i)*time.Second))
		if !errors.Is(err, ErrRateLimitExceeded) {
			t.Fatalf("Acquire() after floor error = %v, want ErrRateLimitExceeded", err)
		}
		var denial *DenialError
		if !errors.As(err, &denial) || denial.Reason != ReasonFloor {
			t.Fatalf("Acquire() denial = %#v, want reason %q", denial, ReasonFloor)
		}
	}

	// A report at the floor does not lift the block.
	l.Report(QuotaState{Remaining: DefaultSoftFloor, Limit: 60, LastUpdated: testNow.Add(10 * time.Second)})
	if _, err := l.Acquire(1, testNow.Add(11*time.Second)); !errors.Is(err, ErrRateLimitExceeded) {
		t.Fatalf("Acquire() with remaining at floor error = %v, want ErrRateLimitExceeded", err)
	}

	// A report above the floor does.
	l.Report(QuotaState{Remaining: 30, Limit: 60, LastUpdated: testNow.Add(12 * time.Second)})
	if _, err := l.Acquire(1, testNow.Add(13*time.Second)); err != nil {
		t.Fatalf("Acquire() after recovery error = %v", err)
	}
}

func TestLimiter_SoftFloorBeforeAnyReport(t *testing.T) {
	l := newTestLimiter(nil)

	granted := 0
	for i := 0; i < 100; i++ {
		_, err := l.Acquire(1, testNow.Add(time.Duration(i)*100*time.Millisecond))
		if err == nil {
			granted++
			continue
		}
		var denial *DenialError
		if !errors.As(err, &denial) || denial.Reason != ReasonFloor {
			t.Fatalf("Acquire() #%d error = %v, want floor denial", i+1, err)
		}
	}
	if want := DefaultLimit - DefaultSoftFloor; granted != want {
		t.Errorf("granted = %d, want %d", granted, want)
	}
	if got := l.Status(testNow).Remaining; got != DefaultSoftFloor {
		t.Errorf("Remaining = %d, want %d", got, DefaultSoftFloor)
	}

	// The predicted window ends one window after the first call.
	if _, err := l.Acquire(1, testNow.Add(DefaultWindow)); err != nil {
		t.Fatalf("Acquire() after predicted window error = %v", err)
	}
}

func TestLimiter_ReportReconciles(t *testing.T) {
	l := newTestLimiter(nil)

	for i := 0; i < 10; i++ {
		if _, err := l.Acquire(1, testNow); err != nil {
			t.Fatalf("Acquire() error = %v", err)
		}
	}
	if got := l.Status(testNow).Remaining; got != DefaultLimit-10 {
		t.Fatalf("predicted Remaining = %d, want %d", got, DefaultLimit-10)
	}

	// Upstream says more calls were used elsewhere; the report wins.
	l.Report(QuotaState{Remaining: 20, Limit: 60, Used: 40, LastUpdated: testNow})
	status := l.Status(testNow)
	if status.Remaining != 20 {
		t.Errorf("Remaining = %d, want 20", status.Remaining)
	}
	if status.Used != 40 {
		t.Errorf("Used = %d, want 40", status.Used)
	}
	if status.ResetAt == nil || !status.ResetAt.Equal(testNow.Add(DefaultWindow)) {
		t.Errorf("ResetAt = %v, want %v", status.ResetAt, testNow.Add(DefaultWindow))
	}
	if !status.Reported {
		t.Error("Reported should be true after Report")
	}
}

func TestLimiter_ReportClampsRemaining(t *testing.T) {
	l := newTestLimiter(nil)
	l.Report(QuotaState{Remaining: 500, Limit: 60, LastUpdated: testNow})

	if got := l.Status(testNow).Remaining; got != 60 {
		t.Errorf("Remaining = %d, want 60", got)
	}
}

func TestLimiter_StaleQuotaAssumedFull(t *testing.T) {
	l := newTestLimiter(nil)
	l.Report(QuotaState{Remaining: 0, Limit: 60, LastUpdated: testNow})

	if _, err := l.Acquire(1, testNow.Add(30*time.Second)); !errors.Is(err, ErrRateLimitExceeded) {
		t.Fatalf("Acquire() inside window error = %v, want ErrRateLimitExceeded", err)
	}

	after := testNow.Add(DefaultWindow)
	if _, err := l.Acquire(1, after); err != nil {
		t.Fatalf("Acquire() after window error = %v", err)
	}
	if got := l.Status(after).Remaining; got != 59 {
		t.Errorf("Remaining after window = %d, want 59", got)
	}
}

func TestLimiter_LocalBudget(t *testing.T) {
	l := newTestLimiter(func(c *Config) {
		c.MinCallInterval = 10 * time.Second
		c.CallBurst = 2
	})

	for i := 0; i < 2; i++ {
		if _, err := l.Acquire(1, testNow); err != nil {
			t.Fatalf("Acquire() #%d error = %v", i+1, err)
		}
	}

	_, err := l.Acquire(1, testNow.Add(time.Second))
	var denial *DenialError
	if !errors.As(err, &denial) {
		t.Fatalf("Acquire() error = %v, want *DenialError", err)
	}
	if denial.Reason != ReasonBudget {
		t.Errorf("Reason = %q, want %q", denial.Reason, ReasonBudget)
	}
	if denial.RetryAfter <= 0 || denial.RetryAfter > 10*time.Second {
		t.Errorf("RetryAfter = %v, want within (0, 10s]", denial.RetryAfter)
	}

	if _, err := l.Acquire(1, testNow.Add(11*time.Second)); err != nil {
		t.Fatalf("Acquire() after refill error = %v", err)
	}
}

func TestLimiter_BudgetDenialDoesNotSpendQuota(t *testing.T) {
	l := newTestLimiter(func(c *Config) {
		c.MinCallInterval = time.Minute
		c.CallBurst = 1
	})

	if _, err := l.Acquire(1, testNow); err != nil {
		t.Fatalf("Acquire() error = %v", err)
	}
	if _, err := l.Acquire(1, testNow); err == nil {
		t.Fatal("second Acquire() should be denied")
	}
	if got := l.Status(testNow).Remaining; got != DefaultLimit-1 {
		t.Errorf("Remaining = %d, want %d", got, DefaultLimit-1)
	}
}

func TestLimiter_AcquireAction(t *testing.T) {
	l := newTestLimiter(func(c *Config) {
		c.ActionCooldown = 30 * time.Second
	})

	tests := []struct {
		name    string
		action  string
		at      time.Duration
		wantErr bool
	}{
		{name: "first collection export", action: "export:collection", at: 0, wantErr: false},
		{name: "repeat inside cooldown", action: "export:collection", at: 5 * time.Second, wantErr: true},
		{name: "other action unaffected", action: "export:wantlist", at: 6 * time.Second, wantErr: false},
		{name: "still inside cooldown", action: "export:collection", at: 29 * time.Second, wantErr: true},
		{name: "after cooldown", action: "export:collection", at: 31 * time.Second, wantErr: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := l.AcquireAction(tt.action, testNow.Add(tt.at))
			if tt.wantErr {
				var denial *DenialError
				if !errors.As(err, &denial) || denial.Reason != ReasonCooldown {
					t.Fatalf("AcquireAction() error = %v, want cooldown denial", err)
				}
				if !errors.Is(err, ErrRateLimitExceeded) {
					t.Error("cooldown denial should match ErrRateLimitExceeded")
				}
				return
			}
			if err != nil {
				t.Fatalf("AcquireAction() error = %v", err)
			}
		})
	}

	if got := l.Status(testNow).Remaining; got != DefaultLimit {
		t.Errorf("actions consumed quota: Remaining = %d, want %d", got, DefaultLimit)
	}
}

func TestLimiter_MarkExhausted(t *testing.T) {
	l := newTestLimiter(nil)
	l.MarkExhausted(testNow)

	status := l.Status(testNow)
	if !status.Exceeded {
		t.Error("Exceeded should be true after MarkExhausted")
	}
	if status.Healthy {
		t.Error("Healthy should be false after MarkExhausted")
	}
	if _, err := l.Acquire(1, testNow.Add(time.Second)); !errors.Is(err, ErrRateLimitExceeded) {
		t.Fatalf("Acquire() error = %v, want ErrRateLimitExceeded", err)
	}

	if l.Status(testNow.Add(DefaultWindow)).Exceeded {
		t.Error("Exceeded should clear once the window has passed")
	}
}

func TestLimiter_ConcurrentAcquireNeverOverspends(t *testing.T) {
	l := newTestLimiter(nil)
	l.Report(QuotaState{Remaining: 15, Limit: 60, LastUpdated: testNow})

	var granted atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := l.Acquire(1, testNow); err == nil {
				granted.Add(1)
			}
		}()
	}
	wg.Wait()

	if got := granted.Load(); got != int32(15-DefaultSoftFloor) {
		t.Errorf("granted = %d, want %d", got, 15-DefaultSoftFloor)
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{name: "defaults", mutate: func(*Config) {}, wantErr: false},
		{name: "zero limit", mutate: func(c *Config) { c.Limit = 0 }, wantErr: true},
		{name: "floor at limit", mutate: func(c *Config) { c.SoftFloor = c.Limit }, wantErr: true},
		{name: "negative floor", mutate: func(c *Config) { c.SoftFloor = -1 }, wantErr: true},
		{name: "zero window", mutate: func(c *Config) { c.Window = 0 }, wantErr: true},
		{name: "budget without burst", mutate: func(c *Config) { c.CallBurst = 0 }, wantErr: true},
		{name: "budget disabled", mutate: func(c *Config) { c.MinCallInterval = 0; c.CallBurst = 0 }, wantErr: false},
		{name: "negative cooldown", mutate: func(c *Config) { c.ActionCooldown = -time.Second }, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr && err == nil {
				t.Error("Expected error but got nil")
			}
			if !tt.wantErr && err != nil {
				t.Errorf("Unexpected error: %v", err)
			}
		})
	}
}
