package directory

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"citizen-assistant/internal/domain"
)

var fixedNow = time.Date(2024, time.January, 10, 9, 0, 0, 0, time.UTC)

func newTestDirectory() *Memory {
	return NewDemo(fixedNow, WithClock(func() time.Time { return fixedNow }))
}

func profileWith(income float64, children int) domain.UserProfile {
	u := domain.UserProfile{ID: "u"}
	u.Financial.Income = income
	for i := 0; i < children; i++ {
		u.Family.Children = append(u.Family.Children, domain.Child{ID: "c"})
	}
	return u
}

func TestPaymentAmount(t *testing.T) {
	require.InDelta(t, 382.48, PaymentAmount(profileWith(45000, 2), domain.FamilyTaxBenefit), 1e-9)
	// 60000 income reduces by 200.
	require.InDelta(t, 182.48, PaymentAmount(profileWith(60000, 2), domain.FamilyTaxBenefit), 1e-9)
	require.Zero(t, PaymentAmount(profileWith(200000, 1), domain.FamilyTaxBenefit))
	require.InDelta(t, 668.40, PaymentAmount(profileWith(0, 0), domain.JobSeeker), 1e-9)
	require.Zero(t, PaymentAmount(profileWith(0, 0), domain.MedicareCard))

	pensioner := profileWith(100, 0)
	pensioner.Financial.Assets = 1000
	require.InDelta(t, 1006.50-50-20, PaymentAmount(pensioner, domain.AgePension), 1e-9)
}

func TestProperty_FamilyTaxBenefitNonIncreasingAndNonNegative(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		children := rapid.IntRange(0, 6).Draw(rt, "children")
		lo := rapid.Float64Range(0, 500000).Draw(rt, "income")
		delta := rapid.Float64Range(0, 100000).Draw(rt, "delta")

		a := PaymentAmount(profileWith(lo, children), domain.FamilyTaxBenefit)
		b := PaymentAmount(profileWith(lo+delta, children), domain.FamilyTaxBenefit)
		if a < 0 || b < 0 {
			rt.Fatalf("negative amount: %v, %v", a, b)
		}
		if b > a {
			rt.Fatalf("amount rose from %v to %v as income rose from %v to %v", a, b, lo, lo+delta)
		}
	})
}

func TestCheckEligibility(t *testing.T) {
	unemployed := domain.UserProfile{}
	unemployed.Personal.DateOfBirth = time.Date(1990, time.May, 1, 0, 0, 0, 0, time.UTC)
	unemployed.Financial.Employment.Status = domain.EmploymentUnemployed
	require.True(t, CheckEligibility(unemployed, domain.JobSeeker, fixedNow).Eligible)

	teen := unemployed
	teen.Personal.DateOfBirth = time.Date(2006, time.May, 1, 0, 0, 0, 0, time.UTC)
	got := CheckEligibility(teen, domain.JobSeeker, fixedNow)
	require.False(t, got.Eligible)
	require.Equal(t, "Must be unemployed, aged 22-65", got.Reason)

	require.True(t, CheckEligibility(profileWith(45000, 1), domain.FamilyTaxBenefit, fixedNow).Eligible)
	require.False(t, CheckEligibility(profileWith(120000, 1), domain.FamilyTaxBenefit, fixedNow).Eligible)
	require.False(t, CheckEligibility(profileWith(45000, 0), domain.FamilyTaxBenefit, fixedNow).Eligible)

	resident := domain.UserProfile{}
	resident.Personal.Citizenship = "Permanent Resident"
	require.True(t, CheckEligibility(resident, domain.MedicareCard, fixedNow).Eligible)

	require.Equal(t, domain.Eligibility{Reason: "Unknown payment type"}, CheckEligibility(resident, domain.CarerPayment, fixedNow))
}

func TestAssesses_MatchesEligibilityRules(t *testing.T) {
	all := []domain.PaymentType{
		domain.JobSeeker, domain.YouthAllowance, domain.AgePension, domain.DisabilitySupport,
		domain.FamilyTaxBenefit, domain.ParentingPayment, domain.ParentalLeavePay, domain.ChildCareSubsidy,
		domain.CarerPayment, domain.MedicareCard, domain.MedicareClaim, domain.ChildSupportAssessment,
	}
	for _, pt := range all {
		unknown := CheckEligibility(domain.UserProfile{}, pt, fixedNow).Reason == "Unknown payment type"
		require.Equal(t, !unknown, Assesses(pt), string(pt))
	}
	require.False(t, Assesses(domain.PaymentTypeNone))
}

func TestMemory_Lookups(t *testing.T) {
	ctx := context.Background()
	d := newTestDirectory()

	u, err := d.GetUser(ctx, "user_001")
	require.NoError(t, err)
	require.Equal(t, "Sarah", u.Personal.FirstName)

	_, err = d.GetUser(ctx, "nobody")
	require.True(t, errors.Is(err, ErrNotFound))

	payments, err := d.GetUserPayments(ctx, "user_001")
	require.NoError(t, err)
	require.Len(t, payments, 2)
	require.Equal(t, "payment_001", payments[0].ID)
	require.Equal(t, "payment_002", payments[1].ID)

	apps, err := d.GetUserApplications(ctx, "user_001")
	require.NoError(t, err)
	require.Len(t, apps, 1)
	require.Equal(t, []string{"bank details"}, apps[0].OutstandingDocuments())

	_, err = d.GetPayment(ctx, "payment_999")
	require.ErrorIs(t, err, ErrNotFound)
	_, err = d.GetApplication(ctx, "app_999")
	require.ErrorIs(t, err, ErrNotFound)

	require.Equal(t, 38, d.CalculateAge(u.Personal.DateOfBirth))
}

func TestMemory_ReturnsCopies(t *testing.T) {
	ctx := context.Background()
	d := newTestDirectory()

	u, err := d.GetUser(ctx, "user_001")
	require.NoError(t, err)
	u.Family.Children[0].FirstName = "changed"

	again, err := d.GetUser(ctx, "user_001")
	require.NoError(t, err)
	require.Equal(t, "Emma", again.Family.Children[0].FirstName)
}

func TestMemory_Calculators(t *testing.T) {
	ctx := context.Background()
	d := newTestDirectory()

	amount, err := d.CalculatePaymentAmount(ctx, "user_001", domain.FamilyTaxBenefit)
	require.NoError(t, err)
	require.InDelta(t, 191.24, amount, 1e-9)

	el, err := d.CheckEligibility(ctx, "user_001", domain.FamilyTaxBenefit)
	require.NoError(t, err)
	require.True(t, el.Eligible)

	el, err = d.CheckEligibility(ctx, "missing", domain.FamilyTaxBenefit)
	require.ErrorIs(t, err, ErrNotFound)
	require.False(t, el.Eligible)
}

func TestMemory_ProcessLifeEvent(t *testing.T) {
	ctx := context.Background()
	d := newTestDirectory()

	out, err := d.ProcessLifeEvent(ctx, "user_001", domain.JobLoss, LifeEventData{})
	require.NoError(t, err)
	require.True(t, out.Success)
	require.Contains(t, out.Actions, "Employment status updated")
	require.Contains(t, out.Actions, "Eligible for JobSeeker Payment")
	require.Len(t, out.Recommendations, 4)

	u, err := d.GetUser(ctx, "user_001")
	require.NoError(t, err)
	require.Equal(t, domain.EmploymentUnemployed, u.Financial.Employment.Status)

	out, err = d.ProcessLifeEvent(ctx, "user_002", domain.HavingBaby, LifeEventData{
		Child: &domain.Child{FirstName: "Ava", DateOfBirth: fixedNow},
	})
	require.NoError(t, err)
	require.Contains(t, out.Actions, "Child added to family details")
	u, err = d.GetUser(ctx, "user_002")
	require.NoError(t, err)
	require.Len(t, u.Family.Children, 3)
	require.NotEmpty(t, u.Family.Children[2].ID)

	out, err = d.ProcessLifeEvent(ctx, "user_001", domain.LifeEventNone, LifeEventData{})
	require.NoError(t, err)
	require.False(t, out.Success)

	_, err = d.ProcessLifeEvent(ctx, "missing", domain.JobLoss, LifeEventData{})
	require.ErrorIs(t, err, ErrNotFound)
}

func TestMemory_StateChanges(t *testing.T) {
	ctx := context.Background()
	d := newTestDirectory()

	app, err := d.UpdateApplicationStatus(ctx, "app_001", domain.ApplicationApproved, "Case Officer")
	require.NoError(t, err)
	require.Equal(t, domain.ApplicationApproved, app.Status)
	require.NotNil(t, app.ApprovedAt)
	require.Equal(t, "Case Officer", app.Assessor)

	next := fixedNow.AddDate(0, 0, 14)
	p, err := d.ScheduleNextPayment(ctx, "payment_001", next)
	require.NoError(t, err)
	require.Equal(t, next, p.NextPaymentDate)

	_, err = d.ScheduleNextPayment(ctx, "nope", next)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestMemory_ConcurrentAccess(t *testing.T) {
	ctx := context.Background()
	d := newTestDirectory()

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = d.GetUserPayments(ctx, "user_001")
			_, _ = d.ScheduleNextPayment(ctx, "payment_001", fixedNow)
		}()
	}
	wg.Wait()
}
