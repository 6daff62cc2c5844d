package policy

import "citizen-assistant/internal/domain"

// KnowledgeEntry is what the assistant can say about a payment or service
// without consulting the directory.
type KnowledgeEntry struct {
	Service      domain.ServiceType
	Description  string
	Eligibility  []string
	MaxAmount    float64 // fortnightly; zero when not applicable
	Requirements []string
}

// Knowledge is keyed by payment type. The detected service is only a hint;
// each payment type has a single home service.
type Knowledge map[domain.PaymentType]KnowledgeEntry

// Lookup returns the entry for paymentType. When service is set it must
// match the entry's home service.
func (k Knowledge) Lookup(paymentType domain.PaymentType, service domain.ServiceType) (KnowledgeEntry, bool) {
	e, ok := k[paymentType]
	if !ok {
		return KnowledgeEntry{}, false
	}
	if service != domain.ServiceNone && service != e.Service {
		return KnowledgeEntry{}, false
	}
	return e, true
}

// DefaultKnowledge returns the built-in service knowledge base.
func DefaultKnowledge() Knowledge {
	return Knowledge{
		domain.JobSeeker: {
			Service:      domain.ServiceCentrelink,
			Description:  "Financial support while looking for work",
			Eligibility:  []string{"unemployed", "looking for work", "meeting mutual obligations"},
			MaxAmount:    668.40,
			Requirements: []string{"job plan", "income reporting", "work search"},
		},
		domain.FamilyTaxBenefit: {
			Service:      domain.ServiceCentrelink,
			Description:  "Help with the cost of raising children",
			Eligibility:  []string{"has dependent children", "meets income test"},
			MaxAmount:    191.24,
			Requirements: []string{"child details", "income information"},
		},
		domain.AgePension: {
			Service:      domain.ServiceCentrelink,
			Description:  "Income support for people who have reached Age Pension age",
			Eligibility:  []string{"age 67+", "meets residence requirements", "meets income/assets test"},
			MaxAmount:    1006.50,
			Requirements: []string{"age verification", "income/assets declaration"},
		},
		domain.ChildCareSubsidy: {
			Service:      domain.ServiceCentrelink,
			Description:  "Help with the cost of approved child care",
			Eligibility:  []string{"cares for a child aged 13 or under", "uses approved child care", "meets residence requirements"},
			Requirements: []string{"child's immunisation record", "enrolment with an approved provider", "family income estimate"},
		},
		domain.ParentalLeavePay: {
			Service:      domain.ServiceCentrelink,
			Description:  "Paid leave for working parents caring for a new child",
			Eligibility:  []string{"primary carer of a newborn or adopted child", "meets work test", "meets income test"},
			Requirements: []string{"birth certificate", "employment certificate", "bank details"},
		},
		domain.MedicareCard: {
			Service:      domain.ServiceMedicare,
			Description:  "Access to health care services at low or no cost",
			Eligibility:  []string{"Australian citizen", "permanent resident", "eligible temporary resident"},
			Requirements: []string{"birth certificate or passport", "proof of address", "tax file number"},
		},
		domain.MedicareClaim: {
			Service:      domain.ServiceMedicare,
			Description:  "Claim back money for medical services",
			Requirements: []string{"itemised account or receipt", "bank details"},
		},
		domain.ChildSupportAssessment: {
			Service:      domain.ServiceChildSupport,
			Description:  "Calculate child support payments between separated parents",
			Eligibility:  []string{"separated parent or carer", "child under 18"},
			Requirements: []string{"income details", "care arrangements", "child details"},
		},
	}
}
