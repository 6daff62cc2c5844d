package directory

import (
	"time"

	"citizen-assistant/internal/domain"
)

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// NewDemo returns a Memory seeded with three sample households. Payment and
// application dates are placed relative to now so reminders stay relevant.
func NewDemo(now time.Time, opts ...MemoryOption) *Memory {
	m := NewMemory(opts...)
	today := now.UTC().Truncate(24 * time.Hour)

	m.PutUser(domain.UserProfile{
		ID: "user_001",
		Personal: domain.PersonalDetails{
			FirstName:     "Sarah",
			LastName:      "Johnson",
			DateOfBirth:   date(1985, time.March, 15),
			Address:       domain.Address{Street: "123 Collins Street", Suburb: "Melbourne", State: "VIC", Postcode: "3000"},
			Citizenship:   "Australian",
			MaritalStatus: "single",
		},
		Family: domain.FamilyDetails{Children: []domain.Child{
			{ID: "child_001", FirstName: "Emma", LastName: "Johnson", DateOfBirth: date(2018, time.July, 22), Relationship: "daughter"},
		}},
		Financial: domain.FinancialDetails{
			Income:     45000,
			Assets:     15000,
			Employment: domain.Employment{Status: domain.EmploymentEmployed, Employer: "ABC Corporation", Hours: "full-time"},
		},
		Status: "active",
	})
	m.PutUser(domain.UserProfile{
		ID: "user_002",
		Personal: domain.PersonalDetails{
			FirstName:     "Michael",
			LastName:      "Chen",
			DateOfBirth:   date(1970, time.November, 8),
			Address:       domain.Address{Street: "456 George Street", Suburb: "Sydney", State: "NSW", Postcode: "2000"},
			Citizenship:   "Australian",
			MaritalStatus: "married",
		},
		Family: domain.FamilyDetails{
			Partner: &domain.Partner{FirstName: "Lisa", LastName: "Chen", DateOfBirth: date(1972, time.May, 12)},
			Children: []domain.Child{
				{ID: "child_002", FirstName: "James", LastName: "Chen", DateOfBirth: date(2015, time.March, 10), Relationship: "son"},
				{ID: "child_003", FirstName: "Sophie", LastName: "Chen", DateOfBirth: date(2017, time.September, 18), Relationship: "daughter"},
			},
		},
		Financial: domain.FinancialDetails{
			Income:     75000,
			Assets:     250000,
			Employment: domain.Employment{Status: domain.EmploymentEmployed, Employer: "XYZ Industries", Hours: "full-time"},
		},
		Status: "active",
	})
	m.PutUser(domain.UserProfile{
		ID: "user_003",
		Personal: domain.PersonalDetails{
			FirstName:     "Margaret",
			LastName:      "Williams",
			DateOfBirth:   date(1958, time.December, 3),
			Address:       domain.Address{Street: "789 Queen Street", Suburb: "Brisbane", State: "QLD", Postcode: "4000"},
			Citizenship:   "Australian",
			MaritalStatus: "widowed",
		},
		Financial: domain.FinancialDetails{
			Assets:     180000,
			Employment: domain.Employment{Status: domain.EmploymentRetired},
		},
		Status: "active",
	})

	soon := today.AddDate(0, 0, 2)
	later := today.AddDate(0, 0, 9)
	for _, p := range []domain.Payment{
		{ID: "payment_001", UserID: "user_001", Type: domain.FamilyTaxBenefit, Service: domain.ServiceCentrelink, Amount: 191.24, Frequency: "fortnightly", Status: "active", StartDate: date(2023, time.January, 1), NextPaymentDate: soon},
		{ID: "payment_002", UserID: "user_001", Type: domain.ChildCareSubsidy, Service: domain.ServiceCentrelink, Amount: 85.50, Frequency: "fortnightly", Status: "active", StartDate: date(2023, time.June, 1), NextPaymentDate: soon},
		{ID: "payment_003", UserID: "user_002", Type: domain.FamilyTaxBenefit, Service: domain.ServiceCentrelink, Amount: 382.48, Frequency: "fortnightly", Status: "active", StartDate: date(2023, time.January, 1), NextPaymentDate: later},
		{ID: "payment_004", UserID: "user_003", Type: domain.AgePension, Service: domain.ServiceCentrelink, Amount: 1006.50, Frequency: "fortnightly", Status: "active", StartDate: date(2023, time.December, 3), NextPaymentDate: later},
	} {
		m.PutPayment(p)
	}

	submitted := today.AddDate(0, 0, -20)
	approvedSubmitted := date(2023, time.October, 1)
	approved := date(2023, time.November, 15)
	m.PutApplication(domain.Application{
		ID:                 "app_001",
		UserID:             "user_001",
		Type:               domain.ParentalLeavePay,
		Service:            domain.ServiceCentrelink,
		Status:             domain.ApplicationSubmitted,
		SubmittedAt:        &submitted,
		RequiredDocuments:  []string{"birth certificate", "employment certificate", "bank details"},
		SubmittedDocuments: []string{"birth certificate", "employment certificate"},
	})
	m.PutApplication(domain.Application{
		ID:          "app_002",
		UserID:      "user_003",
		Type:        domain.AgePension,
		Service:     domain.ServiceCentrelink,
		Status:      domain.ApplicationApproved,
		SubmittedAt: &approvedSubmitted,
		ApprovedAt:  &approved,
		Assessor:    "John Smith",
	})
	return m
}
