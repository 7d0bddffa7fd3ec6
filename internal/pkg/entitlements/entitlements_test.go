package entitlements

import "testing"

func TestNormalizePlan(t *testing.T) {
	tests := []struct {
		in   string
		want Plan
	}{
		{"free", PlanFree},
		{"plus", PlanPlus},
		{"pro", PlanPro},
		{"PRO", PlanPro},
		{" plus ", PlanPlus},
		{"enterprise", PlanFree},
		{"", PlanFree},
	}
	for _, tt := range tests {
		if got := NormalizePlan(tt.in); got != tt.want {
			t.Fatalf("NormalizePlan(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestPlanLimitsUnknownPlanFallsBackToFree(t *testing.T) {
	if PlanLimits("weird") != PlanLimits(PlanFree) {
		t.Fatal("unknown plan should get free limits")
	}
}

func TestCanGenerateAI(t *testing.T) {
	tests := []struct {
		plan Plan
		used int
		want bool
	}{
		{PlanFree, 9, true},
		{PlanFree, 10, false},
		{PlanPlus, 99, true},
		{PlanPlus, 100, false},
		{PlanPro, 499, true},
		{PlanPro, 10000, true},
	}
	for _, tt := range tests {
		if got := CanGenerateAI(tt.plan, tt.used); got != tt.want {
			t.Fatalf("CanGenerateAI(%q, %d) = %v, want %v", tt.plan, tt.used, got, tt.want)
		}
	}
}
