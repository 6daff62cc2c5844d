package policy

import "citizen-assistant/internal/domain"

// bundleAction is one step of a coordinated life-event response. When is
// evaluated against the caller's profile, which may be nil.
type bundleAction struct {
	domain.Action
	When func(p *domain.UserProfile) bool
}

type lifeEventBundle struct {
	content string
	actions []bundleAction
}

func mayHaveChildren(p *domain.UserProfile) bool {
	return p == nil || len(p.Family.Children) > 0
}

func act(typ, title, description string) bundleAction {
	return bundleAction{Action: domain.Action{Type: typ, Title: title, Description: description}}
}

var lifeEventBundles = map[domain.LifeEvent]lifeEventBundle{
	domain.JobLoss: {
		content: "I understand you're facing job loss. This is a difficult time, and I'm here to help. Let me coordinate support across multiple services for you.",
		actions: []bundleAction{
			act("apply_jobseeker", "Apply for JobSeeker Payment", "Get immediate financial support while looking for work"),
			act("update_income", "Update Income Details", "Update your income information to ensure accurate payments"),
			act("housing_support", "Housing Assistance", "Check eligibility for rental assistance or housing support"),
			act("childcare_support", "Childcare Support", "Explore childcare options and subsidies"),
		},
	},
	domain.HavingBaby: {
		content: "Congratulations on your new baby! Let me help you access all the support available for new parents.",
		actions: []bundleAction{
			act("apply_parental_leave", "Apply for Parental Leave Pay", "Get paid leave to care for your new baby"),
			act("apply_family_tax_benefit", "Update Family Tax Benefit", "Add your new baby to your Family Tax Benefit"),
			act("medicare_enrollment", "Medicare for Baby", "Register your baby for Medicare"),
			act("childcare_planning", "Plan Childcare", "Explore childcare options and subsidies"),
		},
	},
	domain.RelationshipBreakdown: {
		content: "I understand your relationship situation has changed. Let me help you update your services and ensure you're getting the right support.",
		actions: []bundleAction{
			act("update_relationship_status", "Update Relationship Status", "Update your relationship status in our system"),
			act("review_payments", "Review Payment Eligibility", "Check how this affects your current payments"),
			{
				Action: domain.Action{Type: "child_support_assessment", Title: "Child Support Assessment", Description: "Set up or update child support arrangements"},
				When:   mayHaveChildren,
			},
			act("housing_support", "Housing Support", "Explore housing assistance options"),
		},
	},
	domain.Turning65: {
		content: "Congratulations on reaching Age Pension age! Let me help you with the support available to you.",
		actions: []bundleAction{
			act("apply_age_pension", "Apply for Age Pension", "Start your Age Pension claim"),
			act("seniors_health_card", "Seniors Health Card", "Apply for a Commonwealth Seniors Health Card"),
			act("medicare_safety_net", "Medicare Safety Net", "Check your Medicare Safety Net status"),
		},
	},
}

// Orchestrate composes the coordinated response for a life event. It keeps
// no state between turns.
func Orchestrate(event domain.LifeEvent, profile *domain.UserProfile) Response {
	bundle, ok := lifeEventBundles[event]
	if !ok {
		return Response{
			Content: "I can help you with various life events and changes in circumstances. What specific situation are you dealing with?",
			Type:    TypeLifeEventHelp,
			Actions: []domain.Action{{
				Type:        "general_life_event_help",
				Title:       "Get Help with Life Events",
				Description: "Learn about support available for different life situations",
			}},
		}
	}
	actions := make([]domain.Action, 0, len(bundle.actions))
	for _, a := range bundle.actions {
		if a.When != nil && !a.When(profile) {
			continue
		}
		actions = append(actions, a.Action)
	}
	return Response{Content: bundle.content, Type: TypeLifeEventCoordination, Actions: actions}
}
