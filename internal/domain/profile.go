package domain

import "time"

// Employment statuses recognised by the rules.
const (
	EmploymentEmployed   = "employed"
	EmploymentPartTime   = "part_time"
	EmploymentUnemployed = "unemployed"
	EmploymentRetired    = "retired"
)

// Application statuses.
const (
	ApplicationDraft     = "draft"
	ApplicationSubmitted = "submitted"
	ApplicationInReview  = "in_review"
	ApplicationApproved  = "approved"
	ApplicationRejected  = "rejected"
)

type Address struct {
	Street   string `json:"street,omitempty"`
	Suburb   string `json:"suburb,omitempty"`
	State    string `json:"state,omitempty"`
	Postcode string `json:"postcode,omitempty"`
}

type PersonalDetails struct {
	FirstName     string    `json:"firstName"`
	LastName      string    `json:"lastName"`
	DateOfBirth   time.Time `json:"dateOfBirth"`
	Address       Address   `json:"address"`
	Citizenship   string    `json:"citizenship"`
	MaritalStatus string    `json:"maritalStatus"`
}

type Child struct {
	ID           string    `json:"id"`
	FirstName    string    `json:"firstName"`
	LastName     string    `json:"lastName"`
	DateOfBirth  time.Time `json:"dateOfBirth"`
	Relationship string    `json:"relationship,omitempty"`
}

type Partner struct {
	FirstName   string    `json:"firstName"`
	LastName    string    `json:"lastName"`
	DateOfBirth time.Time `json:"dateOfBirth"`
}

type FamilyDetails struct {
	Partner  *Partner `json:"partner,omitempty"`
	Children []Child  `json:"children"`
}

type Employment struct {
	Status   string `json:"status,omitempty"`
	Employer string `json:"employer,omitempty"`
	Hours    string `json:"hours,omitempty"`
}

type FinancialDetails struct {
	Income     float64    `json:"income"`
	Assets     float64    `json:"assets"`
	Employment Employment `json:"employment"`
}

// UserProfile is a directory record. The engine treats it as read-only.
type UserProfile struct {
	ID        string           `json:"id"`
	Personal  PersonalDetails  `json:"personalDetails"`
	Family    FamilyDetails    `json:"familyDetails"`
	Financial FinancialDetails `json:"financialDetails"`
	Status    string           `json:"status"`
}

// Payment is a recurring payment a user receives.
type Payment struct {
	ID              string      `json:"id"`
	UserID          string      `json:"userId"`
	Type            PaymentType `json:"type"`
	Service         ServiceType `json:"service"`
	Amount          float64     `json:"amount"`
	Frequency       string      `json:"frequency"`
	Status          string      `json:"status"`
	StartDate       time.Time   `json:"startDate"`
	NextPaymentDate time.Time   `json:"nextPaymentDate"`
}

// Application is a claim lodged with the directory.
type Application struct {
	ID                 string      `json:"id"`
	UserID             string      `json:"userId"`
	Type               PaymentType `json:"type"`
	Service            ServiceType `json:"service"`
	Status             string      `json:"status"`
	SubmittedAt        *time.Time  `json:"submittedAt,omitempty"`
	ApprovedAt         *time.Time  `json:"approvedAt,omitempty"`
	RequiredDocuments  []string    `json:"requiredDocuments,omitempty"`
	SubmittedDocuments []string    `json:"submittedDocuments,omitempty"`
	Assessor           string      `json:"assessor,omitempty"`
}

// OutstandingDocuments lists required documents not yet submitted.
func (a Application) OutstandingDocuments() []string {
	have := make(map[string]struct{}, len(a.SubmittedDocuments))
	for _, d := range a.SubmittedDocuments {
		have[d] = struct{}{}
	}
	var out []string
	for _, d := range a.RequiredDocuments {
		if _, ok := have[d]; !ok {
			out = append(out, d)
		}
	}
	return out
}

// Eligibility is the directory's verdict for a payment type.
type Eligibility struct {
	Eligible bool   `json:"eligible"`
	Reason   string `json:"reason"`
}

// LifeEventOutcome is returned when a life event is recorded with the directory.
type LifeEventOutcome struct {
	Success         bool     `json:"success"`
	Message         string   `json:"message"`
	Actions         []string `json:"actions,omitempty"`
	Recommendations []string `json:"recommendations,omitempty"`
}

// AgeOn returns the whole number of years between dob and now.
func AgeOn(dob, now time.Time) int {
	if dob.IsZero() {
		return 0
	}
	age := now.Year() - dob.Year()
	if now.Month() < dob.Month() || (now.Month() == dob.Month() && now.Day() < dob.Day()) {
		age--
	}
	return age
}

// DaysUntil returns the number of calendar days from now until t, rounded up.
func DaysUntil(t, now time.Time) int {
	d := t.Sub(now)
	days := int(d / (24 * time.Hour))
	if d%(24*time.Hour) > 0 {
		days++
	}
	return days
}
