package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"citizen-assistant/internal/actions"
	"citizen-assistant/internal/directory"
	"citizen-assistant/internal/domain"
	"citizen-assistant/internal/metrics"
	"citizen-assistant/internal/policy"
	"citizen-assistant/internal/proactive"
	"citizen-assistant/internal/repository"
)

const defaultMaxMessageLength = 1000

// Stages of a turn, reported when a turn fails.
const (
	stageLoad     = "load"
	stageAnalyze  = "analyze"
	stageSnapshot = "snapshot"
	stageRules    = "rules"
	stageRespond  = "respond"
	stagePersist  = "persist"
)

type Analyzer interface {
	Analyze(message string, attributes map[string]string) domain.Analysis
}

type RuleEvaluator interface {
	Evaluate(s proactive.Snapshot) []domain.ProactiveAction
}

type Responder interface {
	Respond(ctx context.Context, t policy.Turn, suggestions []domain.ProactiveAction) (policy.Response, error)
}

type ConversationStore interface {
	Get(ctx context.Context, userID string) (*domain.Conversation, error)
	Create(ctx context.Context, conv domain.Conversation) error
	Append(ctx context.Context, userID string, update domain.ConversationContext, msgs ...domain.Message) (*domain.Conversation, error)
	Clear(ctx context.Context, userID string) error
}

type Directory interface {
	proactive.Source
	policy.Calculator
	ProcessLifeEvent(ctx context.Context, userID string, event domain.LifeEvent, data directory.LifeEventData) (domain.LifeEventOutcome, error)
}

type ActionDispatcher interface {
	Dispatch(ctx context.Context, req actions.Request) (actions.Result, error)
}

// Assistant is the session surface of the engine. Calls for the same user
// are serialized; calls for different users run independently.
type Assistant struct {
	analyzer   Analyzer
	rules      RuleEvaluator
	policy     Responder
	store      ConversationStore
	dir        Directory
	dispatcher ActionDispatcher

	metrics    *metrics.Collector
	logger     *zap.Logger
	now        func() time.Time
	newID      func() string
	maxMessage int
	locks      *keyedMutex
}

type Option func(*Assistant)

func WithMetrics(c *metrics.Collector) Option {
	return func(a *Assistant) { a.metrics = c }
}

func WithLogger(logger *zap.Logger) Option {
	return func(a *Assistant) {
		if logger != nil {
			a.logger = logger.With(zap.String("component", "usecase"))
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(a *Assistant) {
		if now != nil {
			a.now = now
		}
	}
}

// WithIDGenerator sets the source of conversation and message id suffixes.
func WithIDGenerator(gen func() string) Option {
	return func(a *Assistant) {
		if gen != nil {
			a.newID = gen
		}
	}
}

func WithMaxMessageLength(n int) Option {
	return func(a *Assistant) {
		if n > 0 {
			a.maxMessage = n
		}
	}
}

func NewAssistant(an Analyzer, rules RuleEvaluator, pol Responder, store ConversationStore, dir Directory, dispatcher ActionDispatcher, opts ...Option) (*Assistant, error) {
	if an == nil {
		return nil, errors.New("usecase: analyzer must not be nil")
	}
	if rules == nil {
		return nil, errors.New("usecase: rule evaluator must not be nil")
	}
	if pol == nil {
		return nil, errors.New("usecase: responder must not be nil")
	}
	if store == nil {
		return nil, errors.New("usecase: conversation store must not be nil")
	}
	if dir == nil {
		return nil, errors.New("usecase: directory must not be nil")
	}
	if dispatcher == nil {
		return nil, errors.New("usecase: action dispatcher must not be nil")
	}
	a := &Assistant{
		analyzer:   an,
		rules:      rules,
		policy:     pol,
		store:      store,
		dir:        dir,
		dispatcher: dispatcher,
		logger:     zap.NewNop(),
		now:        time.Now,
		newID:      newUUID,
		maxMessage: defaultMaxMessageLength,
		locks:      newKeyedMutex(),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a, nil
}

type MessageInput struct {
	UserID  string
	Message string
	Context map[string]string
}

type MessageOutput struct {
	Response         string                   `json:"response"`
	Type             string                   `json:"type"`
	Actions          []domain.Action          `json:"actions"`
	ProactiveActions []domain.ProactiveAction `json:"proactiveActions,omitempty"`
	Intent           domain.Intent            `json:"intent,omitempty"`
	Entities         domain.Entities          `json:"entities"`
	ConversationID   string                   `json:"conversationId,omitempty"`
}

// ProcessMessage runs one dialogue turn. Invalid input is the only error
// returned; any failure after validation is logged and answered with an
// apology of type "error" and no conversation id, leaving the stored
// conversation untouched.
func (a *Assistant) ProcessMessage(ctx context.Context, in MessageInput) (MessageOutput, error) {
	userID := strings.TrimSpace(in.UserID)
	message := strings.TrimSpace(in.Message)
	if userID == "" {
		return MessageOutput{}, newError(ErrorInvalidInput, "user_id_required", nil)
	}
	if message == "" {
		return MessageOutput{}, newError(ErrorInvalidInput, "message_required", nil)
	}
	if utf8.RuneCountInString(message) > a.maxMessage {
		return MessageOutput{}, newError(ErrorInvalidInput, "message_too_long", nil)
	}

	unlock := a.locks.Lock(userID)
	defer unlock()

	start := time.Now()
	out, stage, err := a.runTurn(ctx, userID, message, in.Context)
	if err != nil {
		a.logger.Error("turn failed",
			zap.String("user_id", userID),
			zap.String("stage", stage),
			zap.Error(err))
		a.metrics.ProcessingError(stage)
		apology := policy.Apology()
		a.metrics.ObserveTurn("", apology.Type, time.Since(start))
		return MessageOutput{
			Response: apology.Content,
			Type:     apology.Type,
			Actions:  []domain.Action{},
		}, nil
	}
	a.metrics.ObserveTurn(string(out.Intent), out.Type, time.Since(start))
	return out, nil
}

func (a *Assistant) runTurn(ctx context.Context, userID, message string, attrs map[string]string) (out MessageOutput, stage string, err error) {
	stage = stageLoad
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("usecase: panic: %v", r)
		}
	}()

	now := a.now()
	existing, err := a.store.Get(ctx, userID)
	isNew := errors.Is(err, repository.ErrNotFound)
	if err != nil && !isNew {
		return out, stage, fmt.Errorf("usecase: load conversation: %w", err)
	}
	var conv domain.Conversation
	if isNew {
		conv = domain.Conversation{
			ID:          "conv_" + a.newID(),
			UserID:      userID,
			Messages:    []domain.Message{},
			CreatedAt:   now,
			LastUpdated: now,
		}
	} else {
		conv = existing.Clone()
	}

	stage = stageAnalyze
	analysis := a.analyzer.Analyze(message, attrs)
	update := analysis.ContextUpdate()
	conv.Context.Merge(update)

	stage = stageSnapshot
	snap, err := proactive.Fetch(ctx, a.dir, userID, now)
	if err != nil {
		return out, stage, err
	}

	stage = stageRules
	suggestions := a.rules.Evaluate(snap)

	stage = stageRespond
	resp, err := a.policy.Respond(ctx, policy.Turn{
		Analysis:     analysis,
		Conversation: conv,
		Profile:      snap.Profile,
		Payments:     snap.Payments,
		Applications: snap.Applications,
		Now:          now,
	}, suggestions)
	if err != nil {
		return out, stage, fmt.Errorf("usecase: respond: %w", err)
	}

	stage = stagePersist
	msgs := []domain.Message{
		{
			ID:        "msg_" + a.newID(),
			Content:   message,
			Sender:    domain.SenderUser,
			Timestamp: now,
		},
		{
			ID:               "msg_" + a.newID(),
			Content:          resp.Content,
			Sender:           domain.SenderAssistant,
			Type:             resp.Type,
			Actions:          resp.Actions,
			ProactiveActions: resp.ProactiveActions,
			Timestamp:        now,
		},
	}
	if isNew {
		conv.Messages = append(conv.Messages, msgs...)
		conv.LastUpdated = now
		err = a.store.Create(ctx, conv)
		if errors.Is(err, repository.ErrConflict) {
			// Another process started the conversation after our load.
			isNew = false
		} else if err != nil {
			return out, stage, fmt.Errorf("usecase: create conversation: %w", err)
		}
	}
	if !isNew {
		stored, err := a.store.Append(ctx, userID, update, msgs...)
		if err != nil {
			return out, stage, fmt.Errorf("usecase: append turn: %w", err)
		}
		conv.ID = stored.ID
	}

	if analysis.LifeEvent != domain.LifeEventNone {
		a.metrics.LifeEvent(string(analysis.LifeEvent))
	}
	for _, s := range suggestions {
		a.metrics.ProactiveSuggestion(s.Rule)
	}
	a.logger.Debug("turn processed",
		zap.String("user_id", userID),
		zap.String("intent", string(analysis.Intent)),
		zap.String("life_event", string(analysis.LifeEvent)),
		zap.String("type", resp.Type),
		zap.Int("proactive", len(suggestions)))

	return MessageOutput{
		Response:         resp.Content,
		Type:             resp.Type,
		Actions:          resp.Actions,
		ProactiveActions: resp.ProactiveActions,
		Intent:           analysis.Intent,
		Entities:         analysis.Entities,
		ConversationID:   conv.ID,
	}, stage, nil
}

// GetHistory returns the user's conversation, or nil when there is none.
func (a *Assistant) GetHistory(ctx context.Context, userID string) (*domain.Conversation, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, newError(ErrorInvalidInput, "user_id_required", nil)
	}
	conv, err := a.store.Get(ctx, userID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, newError(ErrorInternal, "history_read_error", err)
	}
	return conv, nil
}

func (a *Assistant) ClearHistory(ctx context.Context, userID string) error {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return newError(ErrorInvalidInput, "user_id_required", nil)
	}
	unlock := a.locks.Lock(userID)
	defer unlock()
	if err := a.store.Clear(ctx, userID); err != nil {
		return newError(ErrorInternal, "history_clear_error", err)
	}
	return nil
}

type ActionInput struct {
	UserID string
	Action string
	Data   map[string]any
}

// DispatchAction runs a named action. An unknown action returns its
// unsuccessful result together with an UNKNOWN_ACTION error.
func (a *Assistant) DispatchAction(ctx context.Context, in ActionInput) (actions.Result, error) {
	userID := strings.TrimSpace(in.UserID)
	name := strings.TrimSpace(in.Action)
	if name == "" {
		return actions.Result{}, newError(ErrorInvalidInput, "action_required", nil)
	}
	if userID == "" {
		return actions.Result{}, newError(ErrorInvalidInput, "user_id_required", nil)
	}

	unlock := a.locks.Lock(userID)
	defer unlock()

	res, err := a.dispatch(ctx, actions.Request{UserID: userID, Action: name, Data: in.Data})
	switch {
	case errors.Is(err, actions.ErrUnknownAction):
		a.metrics.Action(name, metrics.OutcomeUnknown)
		return res, newError(ErrorUnknownAction, "unknown_action", err)
	case err != nil:
		a.metrics.Action(name, metrics.OutcomeError)
		a.logger.Error("action failed",
			zap.String("user_id", userID),
			zap.String("action", name),
			zap.Error(err))
		return actions.Result{}, directoryError("action", err)
	case !res.Success:
		a.metrics.Action(name, metrics.OutcomeNotFound)
	default:
		a.metrics.Action(name, metrics.OutcomeSuccess)
	}
	return res, nil
}

func (a *Assistant) dispatch(ctx context.Context, req actions.Request) (res actions.Result, err error) {
	defer func() {
		if r := recover(); r != nil {
			res, err = actions.Result{}, fmt.Errorf("usecase: panic in action %s: %v", req.Action, r)
		}
	}()
	return a.dispatcher.Dispatch(ctx, req)
}

type LifeEventInput struct {
	UserID string
	Event  domain.LifeEvent
	Data   directory.LifeEventData
}

var knownLifeEvents = map[domain.LifeEvent]bool{
	domain.HavingBaby:            true,
	domain.JobLoss:               true,
	domain.RelationshipBreakdown: true,
	domain.Turning65:             true,
}

// ProcessLifeEvent records a life event with the directory.
func (a *Assistant) ProcessLifeEvent(ctx context.Context, in LifeEventInput) (domain.LifeEventOutcome, error) {
	userID := strings.TrimSpace(in.UserID)
	if userID == "" {
		return domain.LifeEventOutcome{}, newError(ErrorInvalidInput, "user_id_required", nil)
	}
	if !knownLifeEvents[in.Event] {
		return domain.LifeEventOutcome{}, newError(ErrorInvalidInput, "unknown_life_event", nil)
	}

	unlock := a.locks.Lock(userID)
	defer unlock()

	out, err := a.dir.ProcessLifeEvent(ctx, userID, in.Event, in.Data)
	if err != nil {
		return domain.LifeEventOutcome{}, directoryError("life_event", err)
	}
	a.metrics.LifeEvent(string(in.Event))
	return out, nil
}

type EligibilityInput struct {
	UserID      string
	PaymentType domain.PaymentType
}

type EligibilityOutput struct {
	domain.Eligibility
	EstimatedAmount float64 `json:"estimatedAmount"`
}

// CheckEligibility returns the directory's verdict and, when eligible, the
// estimated fortnightly amount.
func (a *Assistant) CheckEligibility(ctx context.Context, in EligibilityInput) (EligibilityOutput, error) {
	userID := strings.TrimSpace(in.UserID)
	if userID == "" {
		return EligibilityOutput{}, newError(ErrorInvalidInput, "user_id_required", nil)
	}
	if in.PaymentType == domain.PaymentTypeNone {
		return EligibilityOutput{}, newError(ErrorInvalidInput, "payment_type_required", nil)
	}
	verdict, err := a.dir.CheckEligibility(ctx, userID, in.PaymentType)
	if err != nil {
		return EligibilityOutput{}, directoryError("eligibility", err)
	}
	out := EligibilityOutput{Eligibility: verdict}
	if verdict.Eligible {
		amount, err := a.dir.CalculatePaymentAmount(ctx, userID, in.PaymentType)
		if err != nil {
			return EligibilityOutput{}, directoryError("eligibility", err)
		}
		out.EstimatedAmount = amount
	}
	return out, nil
}

var newUUID = func() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}
