package proactive

import (
	"math"
	"time"

	"citizen-assistant/internal/domain"
)

// Candidate services offered by SuggestPotentialServices.
const (
	ParentingPaymentSingle = "Parenting Payment (Single)"
	ChildCareSubsidy       = "Child Care Subsidy"
	LowIncomeCard          = "Low Income Health Care Card"
	SchoolKidsBonus        = "School Kids Bonus"
	SingleParentSupport    = "Single Parent Support"
)

// SuggestPotentialServices maps income, family composition and marital
// status onto a fixed candidate list, in candidate order.
func SuggestPotentialServices(s Snapshot) []string {
	if s.Profile == nil {
		return nil
	}
	income := s.income()
	hasChildren := len(s.children()) > 0
	underThirteen := false
	for _, age := range s.ChildAges() {
		if age < 13 {
			underThirteen = true
			break
		}
	}

	var out []string
	if income < 45000 && hasChildren {
		out = append(out, ParentingPaymentSingle)
	}
	if income < 50000 && underThirteen {
		out = append(out, ChildCareSubsidy)
	}
	if income < 40000 {
		out = append(out, LowIncomeCard)
	}
	if hasChildren && income < 60000 {
		out = append(out, SchoolKidsBonus)
	}
	if s.Profile.Personal.MaritalStatus == "single" && hasChildren {
		out = append(out, SingleParentSupport)
	}
	return out
}

// EstimatedAmount gives a rough fortnightly figure for a suggested service.
func EstimatedAmount(service string, u domain.UserProfile) float64 {
	income := u.Financial.Income
	switch service {
	case ParentingPaymentSingle:
		return math.Max(0, 800-income*0.4)
	case ChildCareSubsidy:
		return math.Min(85, income*0.02)
	case SchoolKidsBonus:
		return float64(len(u.Family.Children)) * 200
	case SingleParentSupport:
		return math.Max(0, 600-income*0.3)
	default:
		return 0
	}
}

var serviceRequirements = map[string][]string{
	ParentingPaymentSingle: {"Single parent with dependent children", "Income under $45,000", "Australian resident"},
	ChildCareSubsidy:       {"Child under 13 (or under 18 if disabled)", "Attending approved childcare", "Meeting activity test requirements"},
	SchoolKidsBonus:        {"Receiving Family Tax Benefit", "Child attending school", "Income under $60,000"},
	LowIncomeCard:          {"Income under $40,000", "Australian resident", "Not receiving other health cards"},
	SingleParentSupport:    {"Single parent status", "Dependent children", "Income under $50,000"},
}

// ServiceRequirements lists the headline criteria for a suggested service.
func ServiceRequirements(service string) []string {
	if reqs, ok := serviceRequirements[service]; ok {
		return append([]string(nil), reqs...)
	}
	return []string{"Standard eligibility requirements apply"}
}

// Deadline is a dated item the user should act on.
type Deadline struct {
	Type                string    `json:"type"`
	Title               string    `json:"title"`
	Date                time.Time `json:"date"`
	DaysUntil           int       `json:"daysUntil"`
	RequiresAppointment bool      `json:"requiresAppointment"`
}

const followUpDays = 14

// UpcomingDeadlines lists payments due within 14 days and submitted
// applications that have waited 14 days or more.
func UpcomingDeadlines(s Snapshot) []Deadline {
	var out []Deadline
	for _, p := range s.Payments {
		if p.NextPaymentDate.IsZero() {
			continue
		}
		days := domain.DaysUntil(p.NextPaymentDate, s.Now)
		if days <= followUpDays {
			out = append(out, Deadline{
				Type:      "payment_deadline",
				Title:     p.Type.Label() + " payment due",
				Date:      p.NextPaymentDate,
				DaysUntil: days,
			})
		}
	}
	for _, a := range s.PendingApplications() {
		if a.SubmittedAt == nil {
			continue
		}
		if domain.DaysUntil(s.Now, *a.SubmittedAt) >= followUpDays {
			out = append(out, Deadline{
				Type:                "application_followup",
				Title:               "Follow up on " + a.Type.Label() + " application",
				Date:                a.SubmittedAt.AddDate(0, 0, followUpDays),
				RequiresAppointment: true,
			})
		}
	}
	return out
}

// ContextualRecommendations offers profile-driven next steps.
func ContextualRecommendations(u domain.UserProfile) []domain.Action {
	var out []domain.Action
	if u.Financial.Income < lowIncomeThreshold {
		out = append(out, domain.Action{
			Type:        "financial_optimization",
			Title:       "Financial Optimization",
			Description: "I can help optimize your benefit payments to maximize your support",
		})
	}
	if len(u.Family.Children) > 0 {
		out = append(out, domain.Action{
			Type:        "family_support",
			Title:       "Family Support Package",
			Description: "Complete family support package tailored to your children's ages",
		})
	}
	return out
}
