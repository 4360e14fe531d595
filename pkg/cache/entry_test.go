package cache

import (
	"testing"
	"time"
)

func TestEntry_Available(t *testing.T) {
	tests := []struct {
		name      string
		entry     Entry
		threshold int
		want      bool
	}{
		{
			name:      "no value yet",
			entry:     Entry{},
			threshold: 3,
			want:      false,
		},
		{
			name:      "value without failures",
			entry:     Entry{Value: Count{N: 1}},
			threshold: 3,
			want:      true,
		},
		{
			name:      "below threshold",
			entry:     Entry{Value: Count{N: 1}, ConsecutiveFailures: 2},
			threshold: 3,
			want:      true,
		},
		{
			name:      "at threshold",
			entry:     Entry{Value: Count{N: 1}, ConsecutiveFailures: 3},
			threshold: 3,
			want:      false,
		},
		{
			name:      "threshold disabled",
			entry:     Entry{Value: Count{N: 1}, ConsecutiveFailures: 10},
			threshold: 0,
			want:      true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.entry.Available(tt.threshold); got != tt.want {
				t.Errorf("Available() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestEntry_Age(t *testing.T) {
	now := time.Date(2026, 10, 14, 12, 0, 0, 0, time.UTC)

	if got := (Entry{}).Age(now); got != 0 {
		t.Errorf("Age() of empty entry = %v, want 0", got)
	}

	e := Entry{SucceededAt: now.Add(-5 * time.Minute)}
	if got := e.Age(now); got != 5*time.Minute {
		t.Errorf("Age() = %v, want 5m", got)
	}
}

func TestDecodeValue_UnknownType(t *testing.T) {
	if _, err := DecodeValue("lowest_price", []byte(`{}`)); err == nil {
		t.Error("Expected error for unknown value type")
	}
	v, err := DecodeValue("", nil)
	if err != nil || v != nil {
		t.Errorf("DecodeValue(\"\") = %v, %v, want nil, nil", v, err)
	}
}

func TestEncodeValue_PriceStats(t *testing.T) {
	in := PriceStats{Min: 5, Median: 15, Max: 25, Currency: "€", ItemCount: 3}

	typ, data, err := EncodeValue(in)
	if err != nil {
		t.Fatalf("EncodeValue() error = %v", err)
	}
	out, err := DecodeValue(typ, data)
	if err != nil {
		t.Fatalf("DecodeValue() error = %v", err)
	}
	if out != in {
		t.Errorf("DecodeValue() = %+v, want %+v", out, in)
	}
}
