package directory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"citizen-assistant/internal/domain"
)

// Memory is a process-local Directory. It is safe for concurrent use.
type Memory struct {
	mu           sync.RWMutex
	now          func() time.Time
	users        map[string]domain.UserProfile
	payments     map[string]domain.Payment
	paymentIDs   []string
	applications map[string]domain.Application
	appIDs       []string
}

type MemoryOption func(*Memory)

// WithClock overrides the time source used by age and eligibility checks.
func WithClock(now func() time.Time) MemoryOption {
	return func(m *Memory) {
		if now != nil {
			m.now = now
		}
	}
}

func NewMemory(opts ...MemoryOption) *Memory {
	m := &Memory{
		now:          time.Now,
		users:        make(map[string]domain.UserProfile),
		payments:     make(map[string]domain.Payment),
		applications: make(map[string]domain.Application),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// PutUser inserts or replaces a profile.
func (m *Memory) PutUser(u domain.UserProfile) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.users[u.ID] = cloneProfile(u)
}

// PutPayment inserts or replaces a payment, keeping first-insertion order.
func (m *Memory) PutPayment(p domain.Payment) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.payments[p.ID]; !ok {
		m.paymentIDs = append(m.paymentIDs, p.ID)
	}
	m.payments[p.ID] = p
}

// PutApplication inserts or replaces an application, keeping first-insertion order.
func (m *Memory) PutApplication(a domain.Application) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.applications[a.ID]; !ok {
		m.appIDs = append(m.appIDs, a.ID)
	}
	m.applications[a.ID] = cloneApplication(a)
}

func (m *Memory) GetUser(_ context.Context, userID string) (*domain.UserProfile, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	u, ok := m.users[userID]
	if !ok {
		return nil, fmt.Errorf("directory: user %q: %w", userID, ErrNotFound)
	}
	out := cloneProfile(u)
	return &out, nil
}

func (m *Memory) GetUserPayments(_ context.Context, userID string) ([]domain.Payment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []domain.Payment
	for _, id := range m.paymentIDs {
		if p := m.payments[id]; p.UserID == userID {
			out = append(out, p)
		}
	}
	return out, nil
}

func (m *Memory) GetUserApplications(_ context.Context, userID string) ([]domain.Application, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []domain.Application
	for _, id := range m.appIDs {
		if a := m.applications[id]; a.UserID == userID {
			out = append(out, cloneApplication(a))
		}
	}
	return out, nil
}

func (m *Memory) GetPayment(_ context.Context, paymentID string) (*domain.Payment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.payments[paymentID]
	if !ok {
		return nil, fmt.Errorf("directory: payment %q: %w", paymentID, ErrNotFound)
	}
	return &p, nil
}

func (m *Memory) GetApplication(_ context.Context, applicationID string) (*domain.Application, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	a, ok := m.applications[applicationID]
	if !ok {
		return nil, fmt.Errorf("directory: application %q: %w", applicationID, ErrNotFound)
	}
	out := cloneApplication(a)
	return &out, nil
}

func (m *Memory) CalculateAge(dob time.Time) int {
	return domain.AgeOn(dob, m.now())
}

func (m *Memory) CheckEligibility(ctx context.Context, userID string, paymentType domain.PaymentType) (domain.Eligibility, error) {
	u, err := m.GetUser(ctx, userID)
	if err != nil {
		return domain.Eligibility{Eligible: false, Reason: "User not found"}, err
	}
	return CheckEligibility(*u, paymentType, m.now()), nil
}

func (m *Memory) CalculatePaymentAmount(ctx context.Context, userID string, paymentType domain.PaymentType) (float64, error) {
	u, err := m.GetUser(ctx, userID)
	if err != nil {
		return 0, err
	}
	return PaymentAmount(*u, paymentType), nil
}

func (m *Memory) UpdateApplicationStatus(_ context.Context, applicationID, status, assessor string) (*domain.Application, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.applications[applicationID]
	if !ok {
		return nil, fmt.Errorf("directory: application %q: %w", applicationID, ErrNotFound)
	}
	a.Status = status
	if status == domain.ApplicationApproved {
		now := m.now()
		a.ApprovedAt = &now
		a.Assessor = assessor
	}
	m.applications[applicationID] = a
	out := cloneApplication(a)
	return &out, nil
}

func (m *Memory) ScheduleNextPayment(_ context.Context, paymentID string, next time.Time) (*domain.Payment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.payments[paymentID]
	if !ok {
		return nil, fmt.Errorf("directory: payment %q: %w", paymentID, ErrNotFound)
	}
	p.NextPaymentDate = next
	m.payments[paymentID] = p
	return &p, nil
}

// ProcessLifeEvent records the event against the profile and reports the
// follow-up checks it triggered.
func (m *Memory) ProcessLifeEvent(_ context.Context, userID string, event domain.LifeEvent, data LifeEventData) (domain.LifeEventOutcome, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[userID]
	if !ok {
		return domain.LifeEventOutcome{Success: false, Message: "User not found"}, fmt.Errorf("directory: user %q: %w", userID, ErrNotFound)
	}
	now := m.now()

	var actions, recs []string
	switch event {
	case domain.HavingBaby:
		if data.Child != nil {
			child := *data.Child
			if child.ID == "" {
				child.ID = "child_" + uuid.NewString()[:8]
			}
			u.Family.Children = append(append([]domain.Child(nil), u.Family.Children...), child)
			actions = append(actions, "Child added to family details")
		}
		if CheckEligibility(u, domain.FamilyTaxBenefit, now).Eligible {
			actions = append(actions, "Eligible for Family Tax Benefit")
		}
		if CheckEligibility(u, domain.ParentalLeavePay, now).Eligible {
			actions = append(actions, "Eligible for Parental Leave Pay")
		}
		recs = []string{
			"Apply for Family Tax Benefit",
			"Apply for Parental Leave Pay",
			"Update Medicare card with new baby",
			"Consider Child Care Subsidy for future childcare",
		}
	case domain.JobLoss:
		emp := domain.Employment{}
		if data.Employment != nil {
			emp = *data.Employment
		}
		emp.Status = domain.EmploymentUnemployed
		u.Financial.Employment = emp
		actions = append(actions, "Employment status updated")
		if CheckEligibility(u, domain.JobSeeker, now).Eligible {
			actions = append(actions, "Eligible for JobSeeker Payment")
		}
		actions = append(actions, "May be eligible for Health Care Card")
		recs = []string{
			"Apply for JobSeeker Payment",
			"Apply for Health Care Card",
			"Update family payments if applicable",
			"Consider job search requirements",
		}
	case domain.RelationshipBreakdown:
		u.Personal.MaritalStatus = "separated"
		actions = append(actions, "Relationship status updated")
		if len(u.Family.Children) > 0 {
			actions = append(actions, "May need child support assessment")
		}
		actions = append(actions, "May be eligible for Parenting Payment (Single)")
		recs = []string{
			"Apply for child support assessment",
			"Check eligibility for Parenting Payment (Single)",
			"Update family payments",
			"Separate Medicare cards if needed",
		}
	case domain.Turning65:
		if CheckEligibility(u, domain.AgePension, now).Eligible {
			actions = append(actions, "Eligible for Age Pension")
		}
		actions = append(actions, "May be eligible for Seniors Health Care Card")
		recs = []string{
			"Apply for Age Pension",
			"Apply for Seniors Health Care Card",
			"Check Medicare Safety Net status",
			"Consider superannuation options",
		}
	default:
		return domain.LifeEventOutcome{Success: false, Message: "Unknown life event"}, nil
	}

	m.users[userID] = u
	return domain.LifeEventOutcome{
		Success:         true,
		Message:         "Life event processed successfully",
		Actions:         actions,
		Recommendations: recs,
	}, nil
}

func cloneProfile(u domain.UserProfile) domain.UserProfile {
	u.Family.Children = append([]domain.Child(nil), u.Family.Children...)
	if u.Family.Partner != nil {
		p := *u.Family.Partner
		u.Family.Partner = &p
	}
	return u
}

func cloneApplication(a domain.Application) domain.Application {
	a.RequiredDocuments = append([]string(nil), a.RequiredDocuments...)
	a.SubmittedDocuments = append([]string(nil), a.SubmittedDocuments...)
	return a
}

var _ Directory = (*Memory)(nil)
