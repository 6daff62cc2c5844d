// Package directory describes the User & Benefits Directory the assistant
// queries, and provides an in-memory implementation plus the eligibility and
// payment calculators shared by every implementation.
package directory

import (
	"context"
	"errors"
	"math"
	"time"

	"citizen-assistant/internal/domain"
)

// ErrNotFound is returned when a user, payment or application does not exist.
var ErrNotFound = errors.New("directory: not found")

// Reader is the read-mostly surface the dialogue engine depends on.
type Reader interface {
	GetUser(ctx context.Context, userID string) (*domain.UserProfile, error)
	GetUserPayments(ctx context.Context, userID string) ([]domain.Payment, error)
	GetUserApplications(ctx context.Context, userID string) ([]domain.Application, error)
	GetPayment(ctx context.Context, paymentID string) (*domain.Payment, error)
	GetApplication(ctx context.Context, applicationID string) (*domain.Application, error)
	CalculateAge(dob time.Time) int
	CheckEligibility(ctx context.Context, userID string, paymentType domain.PaymentType) (domain.Eligibility, error)
	CalculatePaymentAmount(ctx context.Context, userID string, paymentType domain.PaymentType) (float64, error)
}

// Directory adds the state-changing calls delegated to the directory.
type Directory interface {
	Reader
	ProcessLifeEvent(ctx context.Context, userID string, event domain.LifeEvent, data LifeEventData) (domain.LifeEventOutcome, error)
	UpdateApplicationStatus(ctx context.Context, applicationID, status, assessor string) (*domain.Application, error)
	ScheduleNextPayment(ctx context.Context, paymentID string, next time.Time) (*domain.Payment, error)
}

// LifeEventData carries optional details recorded with a life event.
type LifeEventData struct {
	Child      *domain.Child      `json:"child,omitempty"`
	Employment *domain.Employment `json:"employment,omitempty"`
}

// Payment calculator constants (fortnightly amounts in AUD).
const (
	FamilyTaxBenefitBase      = 191.24
	FamilyTaxBenefitThreshold = 50000.0
	FamilyTaxBenefitTaper     = 0.02
	AgePensionMax             = 1006.50
	JobSeekerMax              = 668.40
	AgePensionAge             = 67
	AgePensionAssetLimit      = 500000.0
	FamilyTaxBenefitIncomeCap = 100000.0
	ParentalLeaveIncomeCap    = 168865.0
)

// PaymentAmount estimates the fortnightly amount of paymentType for u.
// Unknown payment types estimate to zero. The result is never negative.
func PaymentAmount(u domain.UserProfile, paymentType domain.PaymentType) float64 {
	income := u.Financial.Income
	switch paymentType {
	case domain.FamilyTaxBenefit:
		reduction := math.Max(0, (income-FamilyTaxBenefitThreshold)*FamilyTaxBenefitTaper)
		return math.Max(0, FamilyTaxBenefitBase*float64(len(u.Family.Children))-reduction)
	case domain.AgePension:
		return math.Max(0, AgePensionMax-income*0.5-u.Financial.Assets*0.02)
	case domain.JobSeeker:
		return math.Max(0, JobSeekerMax-income*0.5)
	default:
		return 0
	}
}

// Assesses reports whether CheckEligibility has rules for paymentType. Any
// other type gets an "Unknown payment type" verdict.
func Assesses(paymentType domain.PaymentType) bool {
	switch paymentType {
	case domain.JobSeeker, domain.FamilyTaxBenefit, domain.AgePension, domain.ParentalLeavePay, domain.MedicareCard:
		return true
	default:
		return false
	}
}

// CheckEligibility applies the directory's eligibility rules for paymentType.
func CheckEligibility(u domain.UserProfile, paymentType domain.PaymentType, now time.Time) domain.Eligibility {
	var (
		eligible bool
		reason   string
	)
	switch paymentType {
	case domain.JobSeeker:
		age := domain.AgeOn(u.Personal.DateOfBirth, now)
		eligible = u.Financial.Employment.Status == domain.EmploymentUnemployed && age >= 22 && age <= 65
		reason = "Must be unemployed, aged 22-65"
	case domain.FamilyTaxBenefit:
		eligible = len(u.Family.Children) > 0 && u.Financial.Income < FamilyTaxBenefitIncomeCap
		reason = "Must have dependent children and income under $100,000"
	case domain.AgePension:
		eligible = domain.AgeOn(u.Personal.DateOfBirth, now) >= AgePensionAge && u.Financial.Assets < AgePensionAssetLimit
		reason = "Must be 67+ with assets under $500,000"
	case domain.ParentalLeavePay:
		status := u.Financial.Employment.Status
		eligible = (status == domain.EmploymentEmployed || status == domain.EmploymentPartTime) && u.Financial.Income < ParentalLeaveIncomeCap
		reason = "Must have been working and earn under $168,865"
	case domain.MedicareCard:
		eligible = u.Personal.Citizenship == "Australian" || u.Personal.Citizenship == "Permanent Resident"
		reason = "Must be Australian citizen or permanent resident"
	default:
		return domain.Eligibility{Eligible: false, Reason: "Unknown payment type"}
	}
	if eligible {
		reason = "Eligible"
	}
	return domain.Eligibility{Eligible: eligible, Reason: reason}
}
