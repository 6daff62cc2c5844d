package domain

// Intent is a coarse classification of what the user wants.
type Intent string

const (
	IntentNone                Intent = ""
	IntentPaymentEnquiry      Intent = "payment_enquiry"
	IntentEligibilityCheck    Intent = "eligibility_check"
	IntentApplicationHelp     Intent = "application_help"
	IntentLifeEvent           Intent = "life_event"
	IntentDocumentHelp        Intent = "document_help"
	IntentChangeCircumstances Intent = "change_circumstances"
)

// ServiceType is one of the directory's service categories.
type ServiceType string

const (
	ServiceNone         ServiceType = ""
	ServiceCentrelink   ServiceType = "centrelink"
	ServiceMedicare     ServiceType = "medicare"
	ServiceChildSupport ServiceType = "child_support"
)

// PaymentType identifies a payment or service product.
type PaymentType string

const (
	PaymentTypeNone        PaymentType = ""
	JobSeeker              PaymentType = "jobseeker_payment"
	YouthAllowance         PaymentType = "youth_allowance"
	AgePension             PaymentType = "age_pension"
	DisabilitySupport      PaymentType = "disability_support_pension"
	FamilyTaxBenefit       PaymentType = "family_tax_benefit"
	ParentingPayment       PaymentType = "parenting_payment"
	ParentalLeavePay       PaymentType = "parental_leave_pay"
	ChildCareSubsidy       PaymentType = "child_care_subsidy"
	CarerPayment           PaymentType = "carer_payment"
	MedicareCard           PaymentType = "medicare_card"
	MedicareClaim          PaymentType = "medicare_claim"
	ChildSupportAssessment PaymentType = "child_support_assessment"
)

// Label renders a payment type for display, e.g. "family tax benefit".
func (p PaymentType) Label() string {
	b := []byte(p)
	for i := range b {
		if b[i] == '_' {
			b[i] = ' '
		}
	}
	return string(b)
}

// LifeEvent is a major circumstance change.
type LifeEvent string

const (
	LifeEventNone         LifeEvent = ""
	HavingBaby            LifeEvent = "having_baby"
	JobLoss               LifeEvent = "job_loss"
	RelationshipBreakdown LifeEvent = "relationship_breakdown"
	Turning65             LifeEvent = "turning_65"
)

// TimeReference is a coarse temporal hint extracted from an utterance.
type TimeReference string

const (
	TimeReferenceNone     TimeReference = ""
	TimeReferenceNext     TimeReference = "next"
	TimeReferencePrevious TimeReference = "previous"
)

// Entities are structured values extracted from an utterance.
type Entities struct {
	PaymentType   PaymentType   `json:"paymentType,omitempty"`
	Amount        *float64      `json:"amount,omitempty"`
	TimeReference TimeReference `json:"timeReference,omitempty"`
}

// Analysis is the ephemeral per-turn classification of an utterance.
type Analysis struct {
	Intent     Intent      `json:"intent,omitempty"`
	Confidence float64     `json:"confidence"`
	Entities   Entities    `json:"entities"`
	Service    ServiceType `json:"service,omitempty"`
	LifeEvent  LifeEvent   `json:"lifeEvent,omitempty"`
	Message    string      `json:"message"`
	// Attributes carries caller-supplied context for this turn.
	Attributes map[string]string `json:"attributes,omitempty"`
}

// ContextUpdate is the subset of the analysis merged into the conversation.
func (a Analysis) ContextUpdate() ConversationContext {
	update := ConversationContext{
		LastIntent:        a.Intent,
		DetectedService:   a.Service,
		DetectedLifeEvent: a.LifeEvent,
		LastPaymentType:   a.Entities.PaymentType,
		TimeReference:     a.Entities.TimeReference,
	}
	if a.Entities.Amount != nil {
		v := *a.Entities.Amount
		update.LastAmount = &v
	}
	if len(a.Attributes) > 0 {
		update.Attributes = make(map[string]string, len(a.Attributes))
		for k, v := range a.Attributes {
			update.Attributes[k] = v
		}
	}
	return update
}
