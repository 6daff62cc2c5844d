package actions

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"citizen-assistant/internal/directory"
	"citizen-assistant/internal/domain"
	"citizen-assistant/internal/proactive"
)

const (
	fortnight             = 14 * 24 * time.Hour
	historyLength         = 6
	approvedAmount        = "$1,500.00"
	dateLayout            = "02/01/2006"
	ccsBaseRate           = 0.85
	ccsMinimumRate        = 0.2
	ccsReferenceHourly    = 12.50
	ccsTaperFloorIncome   = 50000.0
	ccsHigherCapThreshold = 70000.0
)

// Subsidy is an estimated Child Care Subsidy.
type Subsidy struct {
	Percentage int     `json:"percentage"`
	HourlyRate float64 `json:"hourlyRate"`
	AnnualCap  float64 `json:"annualCap"`
}

// CCSSubsidy estimates the subsidy for a family income. The rate starts at
// 85%, tapers by 0.3 per 100,000 above 50,000 and never drops below 20%.
func CCSSubsidy(income float64) Subsidy {
	adjustment := math.Max(0, (income-ccsTaperFloorIncome)/100000*0.3)
	rate := math.Max(ccsMinimumRate, ccsBaseRate-adjustment)
	annualCap := 5000.0
	if income < ccsHigherCapThreshold {
		annualCap = 10000
	}
	return Subsidy{
		Percentage: int(math.Round(rate * 100)),
		HourlyRate: math.Round(rate*ccsReferenceHourly*100) / 100,
		AnnualCap:  annualCap,
	}
}

// HistoryEntry is one completed payment in a generated history.
type HistoryEntry struct {
	ID        string    `json:"id"`
	Date      time.Time `json:"date"`
	Amount    float64   `json:"amount"`
	Status    string    `json:"status"`
	Reference string    `json:"reference"`
}

// PaymentHistory lists the last six fortnightly instalments of p, oldest first.
func PaymentHistory(p domain.Payment, now time.Time) []HistoryEntry {
	out := make([]HistoryEntry, historyLength)
	for i := 0; i < historyLength; i++ {
		date := now.Add(-time.Duration(i) * fortnight)
		ms := strconv.FormatInt(date.UnixMilli(), 10)
		if len(ms) > 8 {
			ms = ms[len(ms)-8:]
		}
		out[historyLength-1-i] = HistoryEntry{
			ID:        fmt.Sprintf("hist_%d", i),
			Date:      date,
			Amount:    p.Amount,
			Status:    "completed",
			Reference: "PAY_" + ms,
		}
	}
	return out
}

// ownApplication looks up the application named in req. Another user's
// application is reported as missing.
func (d *Dispatcher) ownApplication(ctx context.Context, req Request) (*domain.Application, error) {
	app, err := d.dir.GetApplication(ctx, stringField(req.Data, "applicationId"))
	if err != nil {
		return nil, err
	}
	if app.UserID != req.UserID {
		return nil, directory.ErrNotFound
	}
	return app, nil
}

// ownPayment is ownApplication for payments.
func (d *Dispatcher) ownPayment(ctx context.Context, req Request) (*domain.Payment, error) {
	p, err := d.dir.GetPayment(ctx, stringField(req.Data, "paymentId"))
	if err != nil {
		return nil, err
	}
	if p.UserID != req.UserID {
		return nil, directory.ErrNotFound
	}
	return p, nil
}

func (d *Dispatcher) applicationStatus(ctx context.Context, req Request) (Result, error) {
	app, err := d.ownApplication(ctx, req)
	if err != nil {
		return notFound(err, "Application")
	}

	var update map[string]any
	switch app.Status {
	case domain.ApplicationSubmitted:
		update = map[string]any{
			"status":              domain.ApplicationInReview,
			"message":             "Your application is currently being reviewed by our assessors.",
			"estimatedCompletion": "5-10 business days",
			"nextSteps":           []string{"Document verification", "Eligibility assessment", "Decision notification"},
		}
		app, err = d.dir.UpdateApplicationStatus(ctx, app.ID, domain.ApplicationInReview, "")
	case domain.ApplicationInReview:
		update = map[string]any{
			"status":          domain.ApplicationApproved,
			"message":         "Great news! Your application has been approved.",
			"approvedAmount":  approvedAmount,
			"nextPaymentDate": d.now().Add(fortnight).Format(dateLayout),
			"nextSteps":       []string{"Payment processing", "Notification letter sent"},
		}
		app, err = d.dir.UpdateApplicationStatus(ctx, app.ID, domain.ApplicationApproved, d.assessor)
	}
	if err != nil {
		return Result{}, err
	}

	message := "Your application status is: " + app.Status
	data := map[string]any{"application": app}
	if update != nil {
		message = update["message"].(string)
		data["update"] = update
	}
	return Result{Success: true, Message: message, Data: data}, nil
}

func (d *Dispatcher) paymentDetails(ctx context.Context, req Request) (Result, error) {
	p, err := d.ownPayment(ctx, req)
	if err != nil {
		return notFound(err, "Payment")
	}
	return Result{
		Success: true,
		Data: map[string]any{
			"payment": p,
			"history": PaymentHistory(*p, d.now()),
			"nextPayment": map[string]any{
				"date":   p.NextPaymentDate,
				"amount": p.Amount,
				"status": "scheduled",
			},
		},
	}, nil
}

func (d *Dispatcher) ccsEligibility(ctx context.Context, req Request) (Result, error) {
	u, err := d.dir.GetUser(ctx, req.UserID)
	if err != nil {
		return notFound(err, "User")
	}
	return Result{
		Success: true,
		Message: "You appear to be eligible for Child Care Subsidy",
		Data: map[string]any{
			"eligibility": map[string]any{
				"eligible":         true,
				"reason":           "You meet the basic eligibility criteria",
				"estimatedSubsidy": CCSSubsidy(u.Financial.Income),
				"requirements": []string{
					"Child must be under 13 (or under 18 if disabled)",
					"Child must attend approved childcare",
					"You must meet activity test requirements",
					"Family income must be under $354,305",
				},
				"nextSteps": []string{
					"Complete CCS application",
					"Provide childcare provider details",
					"Submit activity test information",
				},
			},
		},
	}, nil
}

func (d *Dispatcher) paymentHistory(ctx context.Context, req Request) (Result, error) {
	p, err := d.ownPayment(ctx, req)
	if err != nil {
		return notFound(err, "Payment")
	}
	return Result{
		Success: true,
		Data:    map[string]any{"payment": p, "history": PaymentHistory(*p, d.now())},
	}, nil
}

func (d *Dispatcher) reportIssue(_ context.Context, req Request) (Result, error) {
	issueType := stringField(req.Data, "issueType")
	if issueType == "" {
		issueType = "payment_not_received"
	}
	return Result{
		Success: true,
		Message: "Your payment issue has been reported and will be investigated within 2-3 business days.",
		Data: map[string]any{
			"issueReport": map[string]any{
				"id":                  "issue_" + d.newID(),
				"userId":              req.UserID,
				"paymentId":           stringField(req.Data, "paymentId"),
				"type":                issueType,
				"status":              "open",
				"priority":            "high",
				"createdAt":           d.now(),
				"estimatedResolution": "2-3 business days",
			},
			"nextSteps": []string{
				"Our team will investigate the issue",
				"You will receive an update within 24 hours",
				"If confirmed, payment will be processed immediately",
			},
		},
	}, nil
}

func (d *Dispatcher) updateDetails(ctx context.Context, req Request) (Result, error) {
	if _, err := d.ownPayment(ctx, req); err != nil {
		return notFound(err, "Payment")
	}
	return Result{
		Success: true,
		Message: "I can help you update your payment details. What would you like to change?",
		Data: map[string]any{
			"options": []domain.Action{
				{Type: "bank_account", Title: "Update Bank Account", Description: "Change your payment bank account details"},
				{Type: "payment_frequency", Title: "Change Payment Frequency", Description: "Modify how often you receive payments"},
				{Type: "payment_method", Title: "Change Payment Method", Description: "Switch between bank transfer and other methods"},
			},
		},
	}, nil
}

func (d *Dispatcher) processPayment(ctx context.Context, req Request) (Result, error) {
	p, err := d.ownPayment(ctx, req)
	if err != nil {
		return notFound(err, "Payment")
	}
	p, err = d.dir.ScheduleNextPayment(ctx, p.ID, d.now().Add(fortnight))
	if err != nil {
		return notFound(err, "Payment")
	}
	confirmation := strings.ToUpper(d.newID())
	if len(confirmation) > 9 {
		confirmation = confirmation[:9]
	}
	return Result{
		Success: true,
		Message: fmt.Sprintf("Payment of $%.2f is being processed and will appear in your account within 1-2 business days.", p.Amount),
		Data: map[string]any{
			"processing": map[string]any{
				"status":             "processing",
				"transactionId":      "TXN_" + d.newID(),
				"amount":             p.Amount,
				"processingTime":     "1-2 business days",
				"confirmationNumber": "CONF_" + confirmation,
			},
			"nextPayment": map[string]any{"date": p.NextPaymentDate, "amount": p.Amount},
		},
	}, nil
}

type upcomingPayment struct {
	domain.Payment
	DueOn     string `json:"nextPaymentDisplay"`
	DaysUntil int    `json:"daysUntil"`
	Scheduled string `json:"scheduleStatus"`
}

func (d *Dispatcher) upcomingPayments(ctx context.Context, req Request) (Result, error) {
	snap, err := proactive.Fetch(ctx, d.dir, req.UserID, d.now())
	if err != nil {
		return Result{}, err
	}

	payments := snap.PaymentsDueWithin(d.windows.Upcoming)
	if ids := stringsField(req.Data, "paymentIds"); len(ids) > 0 {
		want := make(map[string]struct{}, len(ids))
		for _, id := range ids {
			want[id] = struct{}{}
		}
		payments = payments[:0]
		for _, p := range snap.Payments {
			if _, ok := want[p.ID]; ok {
				payments = append(payments, p)
			}
		}
	}

	details := make([]upcomingPayment, 0, len(payments))
	for _, p := range payments {
		details = append(details, upcomingPayment{
			Payment:   p,
			DueOn:     p.NextPaymentDate.Format(dateLayout),
			DaysUntil: domain.DaysUntil(p.NextPaymentDate, snap.Now),
			Scheduled: "scheduled",
		})
	}
	return Result{
		Success: true,
		Message: fmt.Sprintf("Here are the details for your upcoming %d payment(s). You can view more information or contact us if you have any questions.", len(details)),
		Data: map[string]any{
			"paymentDetails": details,
			"viewedAt":       snap.Now.UTC().Format(time.RFC3339),
		},
	}, nil
}

type serviceGuidance struct {
	Service         string   `json:"service"`
	Requirements    []string `json:"requirements"`
	EstimatedAmount float64  `json:"estimatedAmount"`
	NextSteps       []string `json:"nextSteps"`
}

func (d *Dispatcher) eligibilityGuidance(ctx context.Context, req Request) (Result, error) {
	snap, err := proactive.Fetch(ctx, d.dir, req.UserID, d.now())
	if err != nil {
		return Result{}, err
	}
	if snap.Profile == nil {
		return Result{Success: false, Message: "User not found"}, nil
	}

	services := stringsField(req.Data, "suggestedServices")
	if len(services) == 0 {
		services = proactive.SuggestPotentialServices(snap)
	}
	info := make([]serviceGuidance, 0, len(services))
	for _, s := range services {
		info = append(info, serviceGuidance{
			Service:         s,
			Requirements:    proactive.ServiceRequirements(s),
			EstimatedAmount: proactive.EstimatedAmount(s, *snap.Profile),
			NextSteps:       []string{"Check detailed eligibility criteria", "Gather required documents", "Submit application"},
		})
	}
	return Result{
		Success: true,
		Message: fmt.Sprintf("I can help you check your eligibility for %d services. Here's what you need to know and the steps to apply.", len(info)),
		Data: map[string]any{
			"eligibilityInfo":    info,
			"guidanceProvidedAt": snap.Now.UTC().Format(time.RFC3339),
		},
	}, nil
}

type reminder struct {
	proactive.Deadline
	ReminderOptions []domain.Action `json:"reminderOptions"`
}

func (d *Dispatcher) setupReminders(ctx context.Context, req Request) (Result, error) {
	snap, err := proactive.Fetch(ctx, d.dir, req.UserID, d.now())
	if err != nil {
		return Result{}, err
	}
	deadlines := proactive.UpcomingDeadlines(snap)
	out := make([]reminder, 0, len(deadlines))
	for _, dl := range deadlines {
		out = append(out, reminder{
			Deadline: dl,
			ReminderOptions: []domain.Action{
				{Type: "3_days_before", Description: "3 days before deadline"},
				{Type: "1_day_before", Description: "1 day before deadline"},
				{Type: "2_hours_before", Description: "2 hours before deadline"},
			},
		})
	}
	return Result{
		Success: true,
		Message: fmt.Sprintf("I can help you set up reminders for %d important deadlines. Choose which reminders you'd like to receive.", len(out)),
		Data: map[string]any{
			"reminderOptions": out,
			"setupAt":         snap.Now.UTC().Format(time.RFC3339),
		},
	}, nil
}

type appointment struct {
	proactive.Deadline
	BookingOptions    []domain.Action `json:"bookingOptions"`
	RequiredDocuments []string        `json:"requiredDocuments"`
}

func (d *Dispatcher) appointmentGuidance(ctx context.Context, req Request) (Result, error) {
	snap, err := proactive.Fetch(ctx, d.dir, req.UserID, d.now())
	if err != nil {
		return Result{}, err
	}
	var out []appointment
	for _, dl := range proactive.UpcomingDeadlines(snap) {
		if !dl.RequiresAppointment {
			continue
		}
		out = append(out, appointment{
			Deadline: dl,
			BookingOptions: []domain.Action{
				{Type: "online", Description: "Book online through myGov"},
				{Type: "phone", Description: "Call Centrelink to book"},
				{Type: "in_person", Description: "Visit a service center"},
			},
			RequiredDocuments: []string{"Photo ID", "Proof of income", "Supporting documents"},
		})
	}
	if out == nil {
		out = []appointment{}
	}
	return Result{
		Success: true,
		Message: fmt.Sprintf("I can help you book %d required appointments. Here are your options and what you'll need to bring.", len(out)),
		Data: map[string]any{
			"appointmentInfo":    out,
			"guidanceProvidedAt": snap.Now.UTC().Format(time.RFC3339),
		},
	}, nil
}

func (d *Dispatcher) contextualRecommendations(ctx context.Context, req Request) (Result, error) {
	u, err := d.dir.GetUser(ctx, req.UserID)
	if err != nil {
		return notFound(err, "User")
	}
	recs := proactive.ContextualRecommendations(*u)
	if recs == nil {
		recs = []domain.Action{}
	}
	return Result{
		Success: true,
		Message: fmt.Sprintf("Based on your profile and usage patterns, I have %d personalized recommendations for you.", len(recs)),
		Data: map[string]any{
			"recommendations": recs,
			"generatedAt":     d.now().UTC().Format(time.RFC3339),
		},
	}, nil
}
