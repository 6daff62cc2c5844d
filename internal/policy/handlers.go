package policy

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"citizen-assistant/internal/directory"
	"citizen-assistant/internal/domain"
)

const dateLayout = "02/01/2006"

func money(v float64) string { return fmt.Sprintf("$%.2f", v) }

func findPayment(payments []domain.Payment, pt domain.PaymentType) (domain.Payment, bool) {
	for _, p := range payments {
		if p.Type == pt {
			return p, true
		}
	}
	return domain.Payment{}, false
}

func paymentPayload(id string) map[string]any { return map[string]any{"paymentId": id} }

func typePayload(pt domain.PaymentType) map[string]any {
	return map[string]any{"paymentType": string(pt)}
}

func (p *Policy) paymentEnquiry(_ context.Context, t Turn) (Response, error) {
	pt := t.Analysis.Entities.PaymentType

	if pt == domain.PaymentTypeNone && len(t.Payments) > 0 {
		items := make([]string, len(t.Payments))
		actions := make([]domain.Action, len(t.Payments))
		for i, pay := range t.Payments {
			items[i] = fmt.Sprintf("%s (%s %s, next on %s)", pay.Type.Label(), money(pay.Amount), pay.Frequency, pay.NextPaymentDate.Format(dateLayout))
			actions[i] = domain.Action{
				Type:        "view_payment_details",
				Title:       pay.Type.Label() + " details",
				Description: "View details for " + pay.Type.Label(),
				Payload:     paymentPayload(pay.ID),
			}
		}
		return Response{
			Content: fmt.Sprintf("I can see you're currently receiving: %s. Which payment would you like to know more about?", strings.Join(items, ", ")),
			Type:    TypePaymentOverview,
			Actions: actions,
		}, nil
	}

	if pt != domain.PaymentTypeNone {
		if pay, ok := findPayment(t.Payments, pt); ok {
			return paymentDetails(pay, t), nil
		}
		if entry, ok := p.knowledge.Lookup(pt, t.Analysis.Service); ok {
			content := fmt.Sprintf("You're not currently receiving %s. %s.", pt.Label(), entry.Description)
			if entry.MaxAmount > 0 {
				content += fmt.Sprintf(" The maximum fortnightly amount is %s.", money(entry.MaxAmount))
			}
			content += " Would you like me to check if you're eligible?"
			return Response{
				Content: content,
				Type:    TypePaymentInfo,
				Actions: []domain.Action{
					{Type: "check_eligibility", Title: "Check My Eligibility", Description: "See if you qualify for this payment", Payload: typePayload(pt)},
					{Type: "start_application", Title: "Apply Now", Description: "Begin your application", Payload: typePayload(pt)},
					{Type: "learn_more", Title: "Learn More", Description: "Get detailed information about this payment", Payload: typePayload(pt)},
				},
			}, nil
		}
	}

	return Response{
		Content: "I can help you with payment enquiries. Which payment are you asking about? You can ask about JobSeeker, Family Tax Benefit, Age Pension, or other Centrelink payments.",
		Type:    TypeClarification,
		Actions: []domain.Action{
			{Type: "quick_select", Title: "JobSeeker Payment", Description: "Unemployment support", Payload: typePayload(domain.JobSeeker)},
			{Type: "quick_select", Title: "Family Tax Benefit", Description: "Help with raising children", Payload: typePayload(domain.FamilyTaxBenefit)},
			{Type: "quick_select", Title: "Age Pension", Description: "Income support for seniors", Payload: typePayload(domain.AgePension)},
		},
	}, nil
}

func paymentDetails(pay domain.Payment, t Turn) Response {
	var b strings.Builder
	fmt.Fprintf(&b, "I can see you're currently receiving %s. ", pay.Type.Label())
	days := domain.DaysUntil(pay.NextPaymentDate, t.Now)
	if days > 0 {
		fmt.Fprintf(&b, "Your next payment of %s is scheduled for %s (in %d days). ", money(pay.Amount), pay.NextPaymentDate.Format(dateLayout), days)
	} else {
		fmt.Fprintf(&b, "Your next payment of %s should be processed today or very soon. ", money(pay.Amount))
	}
	fmt.Fprintf(&b, "This payment is %s and your current status is %s.", pay.Frequency, pay.Status)
	return Response{
		Content: b.String(),
		Type:    TypePaymentDetails,
		Actions: []domain.Action{
			{Type: "view_payment_history", Title: "View Payment History", Description: "See your recent payment history", Payload: paymentPayload(pay.ID)},
			{Type: "report_issue", Title: "Report Payment Issue", Description: "If you haven't received your payment", Payload: paymentPayload(pay.ID)},
			{Type: "update_details", Title: "Update Payment Details", Description: "Change bank account or payment frequency", Payload: paymentPayload(pay.ID)},
		},
	}
}

func (p *Policy) eligibilityCheck(ctx context.Context, t Turn) (Response, error) {
	pt := t.Analysis.Entities.PaymentType
	if pt == domain.PaymentTypeNone {
		return Response{
			Content: "I can help you check your eligibility for various payments and services. Which payment or service would you like to check eligibility for?",
			Type:    TypeClarification,
		}, nil
	}

	actions := []domain.Action{
		{Type: "eligibility_check", Title: "Run Eligibility Check", Description: "Check your specific eligibility", Payload: typePayload(pt)},
		{Type: "application_help", Title: "How to Apply", Description: "Get help with the application process", Payload: typePayload(pt)},
	}

	if t.Profile != nil && directory.Assesses(pt) {
		verdict, err := p.calc.CheckEligibility(ctx, t.userID(), pt)
		switch {
		case errors.Is(err, directory.ErrNotFound):
		case err != nil:
			return Response{}, fmt.Errorf("policy: check eligibility: %w", err)
		default:
			return p.personalEligibility(ctx, t, pt, verdict, actions)
		}
	}

	if entry, ok := p.knowledge.Lookup(pt, t.Analysis.Service); ok && len(entry.Eligibility) > 0 {
		return Response{
			Content: fmt.Sprintf("To be eligible for %s, you generally need to: %s. Would you like me to run a detailed eligibility check for you?", pt.Label(), strings.Join(entry.Eligibility, ", ")),
			Type:    TypeEligibilityInfo,
			Actions: actions,
		}, nil
	}
	return Response{
		Content: fmt.Sprintf("I don't have eligibility details for %s yet. Which other payment or service would you like to check?", pt.Label()),
		Type:    TypeClarification,
	}, nil
}

func (p *Policy) personalEligibility(ctx context.Context, t Turn, pt domain.PaymentType, verdict domain.Eligibility, actions []domain.Action) (Response, error) {
	var b strings.Builder
	if !verdict.Eligible {
		fmt.Fprintf(&b, "Based on the details we hold, you may not currently be eligible for %s. %s.", pt.Label(), verdict.Reason)
		return Response{Content: b.String(), Type: TypeEligibilityInfo, Actions: actions}, nil
	}

	fmt.Fprintf(&b, "Based on your circumstances, you are likely eligible for %s.", pt.Label())
	amount, err := p.calc.CalculatePaymentAmount(ctx, t.userID(), pt)
	if err != nil && !errors.Is(err, directory.ErrNotFound) {
		return Response{}, fmt.Errorf("policy: calculate payment amount: %w", err)
	}
	if amount > 0 {
		fmt.Fprintf(&b, " Your estimated fortnightly amount is %s.", money(amount))
	}
	if pay, ok := findPayment(t.Payments, pt); ok {
		fmt.Fprintf(&b, " You're already receiving %s (%s %s).", pt.Label(), money(pay.Amount), pay.Frequency)
		actions[0] = domain.Action{Type: "eligibility_check", Title: "Check Current Payment", Description: "Verify your current payment amount", Payload: typePayload(pt)}
	}
	b.WriteString(" Would you like me to check whether you qualify for any additional support?")
	return Response{Content: b.String(), Type: TypeEligibilityInfo, Actions: actions}, nil
}

func (p *Policy) applicationHelp(_ context.Context, t Turn) (Response, error) {
	pt := t.Analysis.Entities.PaymentType

	if pt == domain.PaymentTypeNone && len(t.Applications) > 0 {
		items := make([]string, len(t.Applications))
		actions := make([]domain.Action, len(t.Applications))
		for i, app := range t.Applications {
			items[i] = fmt.Sprintf("%s (%s)", app.Type.Label(), app.Status)
			actions[i] = domain.Action{
				Type:        "check_application_status",
				Title:       "Check " + app.Type.Label() + " application",
				Description: "See where your application is up to",
				Payload:     map[string]any{"applicationId": app.ID},
			}
		}
		return Response{
			Content: fmt.Sprintf("You have %d application(s) on file: %s. Would you like to check one, or start something new?", len(items), strings.Join(items, ", ")),
			Type:    TypeApplicationStatus,
			Actions: actions,
		}, nil
	}

	if entry, ok := p.knowledge.Lookup(pt, t.Analysis.Service); ok && pt != domain.PaymentTypeNone {
		content := fmt.Sprintf("To apply for %s, you'll need: %s. I can help you start the application process.", pt.Label(), strings.Join(entry.Requirements, ", "))
		for _, app := range t.Applications {
			if app.Type == pt && app.Status != domain.ApplicationRejected {
				content = fmt.Sprintf("You already have a %s application with status %s. ", pt.Label(), app.Status) + content
				break
			}
		}
		return Response{
			Content: content,
			Type:    TypeApplicationHelp,
			Actions: []domain.Action{
				{Type: "start_application", Title: "Start Application", Description: "Begin your application", Payload: typePayload(pt)},
				{Type: "document_checklist", Title: "Document Checklist", Description: "See what documents you need", Payload: typePayload(pt)},
			},
		}, nil
	}

	return Response{
		Content: "I can help you with applications for various payments and services. What would you like to apply for?",
		Type:    TypeClarification,
	}, nil
}

func (p *Policy) documentHelp(_ context.Context, t Turn) (Response, error) {
	pt := t.Analysis.Entities.PaymentType
	if entry, ok := p.knowledge.Lookup(pt, t.Analysis.Service); ok && pt != domain.PaymentTypeNone {
		return Response{
			Content: fmt.Sprintf("For %s you'll typically need to provide: %s.", pt.Label(), strings.Join(entry.Requirements, ", ")),
			Type:    TypeDocumentHelp,
			Actions: []domain.Action{
				{Type: "document_checklist", Title: "Document Checklist", Description: "Get the full checklist for this payment", Payload: typePayload(pt)},
			},
		}, nil
	}

	var lines []string
	var actions []domain.Action
	for _, app := range t.Applications {
		missing := app.OutstandingDocuments()
		if app.Status != domain.ApplicationSubmitted || len(missing) == 0 {
			continue
		}
		lines = append(lines, fmt.Sprintf("your %s application is still waiting on: %s", app.Type.Label(), strings.Join(missing, ", ")))
		actions = append(actions, domain.Action{
			Type:        "check_application_status",
			Title:       "Check " + app.Type.Label() + " application",
			Description: "See which documents are still needed",
			Payload:     map[string]any{"applicationId": app.ID},
		})
	}
	if len(lines) > 0 {
		return Response{
			Content: "I can see that " + strings.Join(lines, "; ") + ".",
			Type:    TypeDocumentHelp,
			Actions: actions,
		}, nil
	}

	return Response{
		Content: "Most applications need proof of identity, income details and bank details. Which payment or service are you preparing documents for?",
		Type:    TypeClarification,
	}, nil
}

func changeCircumstances(context.Context, Turn) (Response, error) {
	return Response{
		Content: "I can help you report changes in your circumstances. Common changes include: income changes, address changes, relationship status changes, or family changes. What has changed for you?",
		Type:    TypeChangeCircumstances,
		Actions: []domain.Action{
			{Type: "report_change", Title: "Report Income Change", Description: "Update your income information"},
			{Type: "report_change", Title: "Report Address Change", Description: "Update your address"},
			{Type: "report_change", Title: "Report Family Change", Description: "Update family circumstances"},
		},
	}, nil
}

func generalHelp() Response {
	return Response{
		Content: "I'm here to help you with Centrelink payments, Medicare, and Child Support. You can ask me about payments, eligibility, applications, or life events. What would you like to know?",
		Type:    TypeGeneralHelp,
		Actions: []domain.Action{
			{Type: "service_overview", Title: "Centrelink Services", Description: "Learn about Centrelink payments and services", Payload: map[string]any{"service": string(domain.ServiceCentrelink)}},
			{Type: "service_overview", Title: "Medicare Services", Description: "Learn about Medicare and health services", Payload: map[string]any{"service": string(domain.ServiceMedicare)}},
			{Type: "service_overview", Title: "Child Support", Description: "Learn about child support services", Payload: map[string]any{"service": string(domain.ServiceChildSupport)}},
		},
	}
}
