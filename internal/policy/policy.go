// Package policy selects and composes the assistant's reply for a turn.
package policy

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"

	"citizen-assistant/internal/domain"
)

// Response types.
const (
	TypeLifeEventCoordination = "life_event_coordination"
	TypeLifeEventHelp         = "life_event_help"
	TypePaymentOverview       = "payment_overview"
	TypePaymentDetails        = "payment_details"
	TypePaymentInfo           = "payment_info"
	TypeEligibilityInfo       = "eligibility_info"
	TypeApplicationHelp       = "application_help"
	TypeApplicationStatus     = "application_status"
	TypeDocumentHelp          = "document_help"
	TypeChangeCircumstances   = "change_circumstances"
	TypeClarification         = "clarification"
	TypeGeneralHelp           = "general_help"
	TypeError                 = "error"
)

// Turn is everything a handler may read. Conversation.Context already
// includes this turn's merged analysis.
type Turn struct {
	Analysis     domain.Analysis
	Conversation domain.Conversation
	Profile      *domain.UserProfile
	Payments     []domain.Payment
	Applications []domain.Application
	Now          time.Time
}

func (t Turn) userID() string { return t.Conversation.UserID }

type Response struct {
	Content          string                   `json:"response"`
	Type             string                   `json:"type"`
	Actions          []domain.Action          `json:"actions"`
	ProactiveActions []domain.ProactiveAction `json:"proactiveActions,omitempty"`
}

// Handler composes the reply for one intent.
type Handler func(ctx context.Context, t Turn) (Response, error)

// Calculator is the slice of the directory the handlers consult.
type Calculator interface {
	CheckEligibility(ctx context.Context, userID string, paymentType domain.PaymentType) (domain.Eligibility, error)
	CalculatePaymentAmount(ctx context.Context, userID string, paymentType domain.PaymentType) (float64, error)
}

// JobLossDetector recognises job-loss phrasing in a raw message.
type JobLossDetector interface {
	MentionsJobLoss(message string) bool
}

type Policy struct {
	calc      Calculator
	jobLoss   JobLossDetector
	knowledge Knowledge
	handlers  map[domain.Intent]Handler
	logger    *zap.Logger
}

type Option func(*Policy)

func WithKnowledge(k Knowledge) Option {
	return func(p *Policy) {
		if k != nil {
			p.knowledge = k
		}
	}
}

// WithHandler registers or replaces the handler for an intent.
func WithHandler(intent domain.Intent, h Handler) Option {
	return func(p *Policy) {
		if h != nil {
			p.handlers[intent] = h
		}
	}
}

func WithLogger(logger *zap.Logger) Option {
	return func(p *Policy) {
		if logger != nil {
			p.logger = logger
		}
	}
}

func New(calc Calculator, jobLoss JobLossDetector, opts ...Option) (*Policy, error) {
	if calc == nil {
		return nil, errors.New("policy: calculator must not be nil")
	}
	if jobLoss == nil {
		return nil, errors.New("policy: job loss detector must not be nil")
	}
	p := &Policy{
		calc:      calc,
		jobLoss:   jobLoss,
		knowledge: DefaultKnowledge(),
		handlers:  make(map[domain.Intent]Handler),
		logger:    zap.NewNop(),
	}
	p.handlers[domain.IntentPaymentEnquiry] = p.paymentEnquiry
	p.handlers[domain.IntentEligibilityCheck] = p.eligibilityCheck
	p.handlers[domain.IntentApplicationHelp] = p.applicationHelp
	p.handlers[domain.IntentDocumentHelp] = p.documentHelp
	p.handlers[domain.IntentChangeCircumstances] = changeCircumstances
	for _, opt := range opts {
		opt(p)
	}
	p.logger = p.logger.With(zap.String("component", "policy"))
	return p, nil
}

// Respond picks the first applicable branch: a detected life event, then
// the explicit intent, then an intent inferred from a payment type, then
// job-loss phrasing, then general help. Proactive suggestions are attached
// unchanged.
func (p *Policy) Respond(ctx context.Context, t Turn, proactive []domain.ProactiveAction) (Response, error) {
	resp, branch, err := p.dispatch(ctx, t)
	if err != nil {
		return Response{}, err
	}
	if resp.Actions == nil {
		resp.Actions = []domain.Action{}
	}
	resp.ProactiveActions = proactive
	p.logger.Debug("response composed",
		zap.String("branch", branch),
		zap.String("type", resp.Type),
		zap.Int("actions", len(resp.Actions)))
	return resp, nil
}

func (p *Policy) dispatch(ctx context.Context, t Turn) (Response, string, error) {
	a := t.Analysis
	if a.LifeEvent != domain.LifeEventNone {
		return Orchestrate(a.LifeEvent, t.Profile), "life_event", nil
	}

	if a.Intent == domain.IntentLifeEvent {
		return Orchestrate(p.resolveLifeEvent(t), t.Profile), "intent", nil
	}
	if h, ok := p.handlers[a.Intent]; ok && a.Intent != domain.IntentNone {
		resp, err := h(ctx, t)
		return resp, "intent", err
	}

	if a.Intent == domain.IntentNone && a.Entities.PaymentType != domain.PaymentTypeNone {
		if h := p.inferHandler(a.Message); h != nil {
			resp, err := h(ctx, t)
			return resp, "inferred", err
		}
	}

	if p.jobLoss.MentionsJobLoss(a.Message) {
		return Orchestrate(domain.JobLoss, t.Profile), "fallback_job_loss", nil
	}
	return generalHelp(), "fallback", nil
}

// resolveLifeEvent handles a life_event intent with no detected event:
// job-loss phrasing first, then an event remembered from earlier turns.
func (p *Policy) resolveLifeEvent(t Turn) domain.LifeEvent {
	if p.jobLoss.MentionsJobLoss(t.Analysis.Message) {
		return domain.JobLoss
	}
	return t.Conversation.Context.DetectedLifeEvent
}

func (p *Policy) inferHandler(message string) Handler {
	m := strings.ToLower(message)
	switch {
	case strings.Contains(m, "eligible"):
		return p.handlers[domain.IntentEligibilityCheck]
	case strings.Contains(m, "apply"):
		return p.handlers[domain.IntentApplicationHelp]
	case strings.Contains(m, "payment"), strings.Contains(m, "when"):
		return p.handlers[domain.IntentPaymentEnquiry]
	}
	return nil
}

// Apology is the reply used when a turn fails internally.
func Apology() Response {
	return Response{
		Content: "I'm sorry, I encountered an error processing your request. Please try again.",
		Type:    TypeError,
		Actions: []domain.Action{},
	}
}
