package entitlements

import "strings"

type Plan string

const (
	PlanFree Plan = "free"
	PlanPlus Plan = "plus"
	PlanPro  Plan = "pro"
)

// Limits describes what a plan allows across the platform.
type Limits struct {
	MaxCourses            int
	MaxStudentsPerCourse  int
	AIGenerationsPerMonth int
	CertificatesEnabled   bool
}

// PlanLimits returns the limits for a given plan. Unknown plans fall back to
// the free tier.
func PlanLimits(plan Plan) Limits {
	switch plan {
	case PlanPro:
		return Limits{
			MaxCourses:            -1, // unlimited
			MaxStudentsPerCourse:  -1,
			AIGenerationsPerMonth: 500,
			CertificatesEnabled:   true,
		}
	case PlanPlus:
		return Limits{
			MaxCourses:            25,
			MaxStudentsPerCourse:  200,
			AIGenerationsPerMonth: 100,
			CertificatesEnabled:   true,
		}
	default:
		return Limits{
			MaxCourses:            3,
			MaxStudentsPerCourse:  30,
			AIGenerationsPerMonth: 10,
			CertificatesEnabled:   false,
		}
	}
}

// NormalizePlan maps arbitrary input to a known plan, defaulting to free.
func NormalizePlan(plan string) Plan {
	switch strings.ToLower(strings.TrimSpace(plan)) {
	case string(PlanPlus):
		return PlanPlus
	case string(PlanPro):
		return PlanPro
	default:
		return PlanFree
	}
}

// CanGenerateAI reports whether a user on the given plan with the given
// monthly usage may run another AI content generation.
func CanGenerateAI(plan Plan, usedThisMonth int) bool {
	limit := PlanLimits(plan).AIGenerationsPerMonth
	if limit < 0 {
		return true
	}
	return usedThisMonth < limit
}
