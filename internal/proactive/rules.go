package proactive

import (
	"fmt"
	"strings"

	"citizen-assistant/internal/domain"
)

// Rule fires at most one suggestion for a snapshot.
type Rule struct {
	Name string
	Fire func(s Snapshot) (domain.ProactiveAction, bool)
}

// Windows sets the look-ahead of the payment reminder rules, in days.
type Windows struct {
	Upcoming int `yaml:"upcoming"`
	DueSoon  int `yaml:"due_soon"`
}

var DefaultWindows = Windows{Upcoming: 3, DueSoon: 7}

const lowIncomeThreshold = 50000

func suggestion(rule, typ, title, description, target string, payload map[string]any) domain.ProactiveAction {
	return domain.ProactiveAction{
		Action: domain.Action{Type: typ, Title: title, Description: description, Payload: payload},
		Rule:   rule,
		Target: target,
	}
}

func centrelinkPayload() map[string]any {
	return map[string]any{"service": string(domain.ServiceCentrelink)}
}

// DefaultRules returns the built-in rule table in evaluation order.
func DefaultRules(w Windows) []Rule {
	if w.Upcoming <= 0 {
		w.Upcoming = DefaultWindows.Upcoming
	}
	if w.DueSoon <= 0 {
		w.DueSoon = DefaultWindows.DueSoon
	}
	return []Rule{
		{Name: "upcoming_payments", Fire: func(s Snapshot) (domain.ProactiveAction, bool) {
			due := s.PaymentsDueWithin(w.Upcoming)
			if len(due) == 0 {
				return domain.ProactiveAction{}, false
			}
			ids := make([]string, len(due))
			for i, p := range due {
				ids[i] = p.ID
			}
			a := suggestion("upcoming_payments", "payment_reminder", "Upcoming Payment Reminder",
				fmt.Sprintf("You have %d payment(s) scheduled in the next %d days. Would you like me to help you check the details?", len(due), w.Upcoming),
				"view_upcoming_payments", map[string]any{"paymentIds": ids})
			a.Priority = "medium"
			return a, true
		}},
		{Name: "service_suggestion", Fire: func(s Snapshot) (domain.ProactiveAction, bool) {
			if s.income() >= lowIncomeThreshold || len(s.children()) == 0 {
				return domain.ProactiveAction{}, false
			}
			services := SuggestPotentialServices(s)
			if len(services) == 0 {
				return domain.ProactiveAction{}, false
			}
			a := suggestion("service_suggestion", "service_suggestion", "Service Suggestions",
				fmt.Sprintf("Based on your circumstances, you might want to explore: %s. Would you like me to help you check your eligibility?", strings.Join(services, ", ")),
				"check_eligibility_guidance", map[string]any{"suggestedServices": services})
			a.Confidence = "suggestion"
			return a, true
		}},
		{Name: "pending_application", Fire: func(s Snapshot) (domain.ProactiveAction, bool) {
			pending := s.PendingApplications()
			if len(pending) == 0 {
				return domain.ProactiveAction{}, false
			}
			app := pending[0]
			return suggestion("pending_application", "application_status", "Check Application Status",
				fmt.Sprintf("I notice you have a pending %s application. Would you like me to check its status?", app.Type.Label()),
				"check_application_status", map[string]any{"applicationId": app.ID}), true
		}},
		{Name: "payment_due", Fire: func(s Snapshot) (domain.ProactiveAction, bool) {
			due := s.PaymentsDueBy(w.DueSoon)
			if len(due) == 0 {
				return domain.ProactiveAction{}, false
			}
			p := due[0]
			return suggestion("payment_due", "payment_reminder", "Upcoming Payment",
				fmt.Sprintf("Your next %s payment of $%.2f is due soon.", p.Type.Label(), p.Amount),
				"view_payment_details", map[string]any{"paymentId": p.ID}), true
		}},
		{Name: "child_care_subsidy", Fire: func(s Snapshot) (domain.ProactiveAction, bool) {
			kids := s.children()
			if len(kids) != 1 {
				return domain.ProactiveAction{}, false
			}
			age := s.ChildAges()[0]
			if age >= 13 {
				return domain.ProactiveAction{}, false
			}
			return suggestion("child_care_subsidy", "service_recommendation", "Child Care Subsidy",
				fmt.Sprintf("Since %s is %d, you might be eligible for Child Care Subsidy if you use childcare.", kids[0].FirstName, age),
				"check_ccs_eligibility", nil), true
		}},
		{Name: "low_income", Fire: func(s Snapshot) (domain.ProactiveAction, bool) {
			if s.Profile == nil || s.income() >= lowIncomeThreshold {
				return domain.ProactiveAction{}, false
			}
			return suggestion("low_income", "financial_assistance", "Low Income Support",
				"Based on your income, you may be eligible for additional financial assistance. Would you like me to check what support is available?",
				"check_eligibility_guidance", centrelinkPayload()), true
		}},
		{Name: "part_time_work", Fire: func(s Snapshot) (domain.ProactiveAction, bool) {
			if s.Profile == nil || s.Profile.Financial.Employment.Status != domain.EmploymentPartTime {
				return domain.ProactiveAction{}, false
			}
			return suggestion("part_time_work", "employment_support", "Part-time Work Support",
				"I notice you're working part-time. You may be eligible for JobSeeker Payment or additional work-related support.",
				"check_eligibility_guidance", centrelinkPayload()), true
		}},
		{Name: "housing_support", Fire: func(s Snapshot) (domain.ProactiveAction, bool) {
			if s.Profile == nil || s.Profile.Personal.MaritalStatus != "single" ||
				len(s.children()) == 0 || s.Profile.Personal.Address.Suburb == "" {
				return domain.ProactiveAction{}, false
			}
			return suggestion("housing_support", "housing_support", "Housing Assistance",
				"As a single parent, you may be eligible for housing assistance or rental support. Would you like me to check your options?",
				"check_eligibility_guidance", centrelinkPayload()), true
		}},
		{Name: "school_support", Fire: func(s Snapshot) (domain.ProactiveAction, bool) {
			for _, age := range s.ChildAges() {
				if age >= 5 {
					return suggestion("school_support", "education_support", "School Support",
						"With school-aged children, you may be eligible for School Kids Bonus or education-related payments.",
						"check_eligibility_guidance", centrelinkPayload()), true
				}
			}
			return domain.ProactiveAction{}, false
		}},
		{Name: "new_baby", Fire: func(s Snapshot) (domain.ProactiveAction, bool) {
			youngest, ok := s.Youngest()
			if !ok || domain.AgeOn(youngest.DateOfBirth, s.Now) >= 1 {
				return domain.ProactiveAction{}, false
			}
			return suggestion("new_baby", "life_event", "New Baby Support",
				"I see you have a baby under 1 year old. You may be eligible for additional support like Parental Leave Pay or Parenting Payment.",
				"check_eligibility_guidance", centrelinkPayload()), true
		}},
	}
}
