package relay

import (
	"testing"
	"time"
)

func TestShouldRemindThresholdBoundary(t *testing.T) {
	t.Parallel()
	base := time.Date(2026, 8, 29, 12, 0, 0, 0, time.UTC)
	threshold := 2 * time.Hour

	tests := []struct {
		name    string
		elapsed time.Duration
		want    bool
	}{
		{name: "just announced", elapsed: 0, want: false},
		{name: "well before threshold", elapsed: 10 * time.Minute, want: false},
		{name: "one minute short", elapsed: 119 * time.Minute, want: false},
		{name: "exactly at threshold", elapsed: 120 * time.Minute, want: true},
		{name: "one minute past", elapsed: 121 * time.Minute, want: true},
		{name: "long overdue", elapsed: 3 * time.Hour, want: true},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			got := ShouldRemind(base, base.Add(tt.elapsed), threshold)
			if got != tt.want {
				t.Fatalf("ShouldRemind(+%v) = %v, want %v", tt.elapsed, got, tt.want)
			}
		})
	}
}
