package billing

import "testing"

func TestNormalizeInterval(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"month", "month"},
		{"year", "year"},
		{"MONTH", "month"},
		{" year ", "year"},
		{"week", "unknown"},
		{"day", "unknown"},
		{"", "unknown"},
	}
	for _, tt := range tests {
		if got := normalizeInterval(tt.in); got != tt.want {
			t.Fatalf("normalizeInterval(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestPlanRank(t *testing.T) {
	tests := []struct {
		in   string
		want int
	}{
		{"pro", 2},
		{"plus", 1},
		{"free", 0},
		{"PRO", 2},
		{"enterprise", 0},
		{"", 0},
	}
	for _, tt := range tests {
		if got := planRank(tt.in); got != tt.want {
			t.Fatalf("planRank(%q) = %d, want %d", tt.in, got, tt.want)
		}
	}
}

func TestIsEntitlingStatus(t *testing.T) {
	tests := []struct {
		in   string
		want bool
	}{
		{"active", true},
		{"trialing", true},
		{"past_due", true},
		{"Active", true},
		{"canceled", false},
		{"incomplete", false},
		{"unpaid", false},
		{"paused", false},
		{"", false},
	}
	for _, tt := range tests {
		if got := isEntitlingStatus(tt.in); got != tt.want {
			t.Fatalf("isEntitlingStatus(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}
