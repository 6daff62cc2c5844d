// Package actions executes the follow-up actions offered alongside replies,
// such as checking an application or processing a payment.
package actions

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"citizen-assistant/internal/directory"
	"citizen-assistant/internal/domain"
	"citizen-assistant/internal/proactive"
)

// Action names accepted by Dispatch.
const (
	CheckApplicationStatus    = "check_application_status"
	ViewPaymentDetails        = "view_payment_details"
	CheckCCSEligibility       = "check_ccs_eligibility"
	ViewPaymentHistory        = "view_payment_history"
	ReportIssue               = "report_issue"
	UpdateDetails             = "update_details"
	ProcessPayment            = "process_payment"
	ViewUpcomingPayments      = "view_upcoming_payments"
	CheckEligibilityGuidance  = "check_eligibility_guidance"
	SetupReminders            = "setup_reminders"
	AppointmentGuidance       = "appointment_guidance"
	ContextualRecommendations = "contextual_recommendations"
)

// ErrUnknownAction is returned for action names with no handler.
var ErrUnknownAction = errors.New("actions: unknown action")

// Directory is the part of the directory the handlers read and update.
type Directory interface {
	proactive.Source
	GetPayment(ctx context.Context, paymentID string) (*domain.Payment, error)
	GetApplication(ctx context.Context, applicationID string) (*domain.Application, error)
	UpdateApplicationStatus(ctx context.Context, applicationID, status, assessor string) (*domain.Application, error)
	ScheduleNextPayment(ctx context.Context, paymentID string, next time.Time) (*domain.Payment, error)
}

// Request is a single action invocation.
type Request struct {
	UserID string
	Action string
	Data   map[string]any
}

// Result is the outcome of an action. Success is false when the action ran
// but its subject was missing, or when the action is unknown.
type Result struct {
	Success bool           `json:"success"`
	Action  string         `json:"action,omitempty"`
	Message string         `json:"message,omitempty"`
	Error   string         `json:"error,omitempty"`
	Data    map[string]any `json:"result,omitempty"`
}

type handlerFunc func(ctx context.Context, req Request) (Result, error)

// Dispatcher routes action requests to their handlers.
type Dispatcher struct {
	dir      Directory
	now      func() time.Time
	newID    func() string
	assessor string
	windows  proactive.Windows
	logger   *zap.Logger
	handlers map[string]handlerFunc
}

type Option func(*Dispatcher)

func WithClock(now func() time.Time) Option {
	return func(d *Dispatcher) {
		if now != nil {
			d.now = now
		}
	}
}

// WithIDGenerator replaces the generator used for issue, transaction and
// confirmation references.
func WithIDGenerator(gen func() string) Option {
	return func(d *Dispatcher) {
		if gen != nil {
			d.newID = gen
		}
	}
}

// WithAssessor sets the name recorded when an application is approved.
func WithAssessor(name string) Option {
	return func(d *Dispatcher) {
		if strings.TrimSpace(name) != "" {
			d.assessor = name
		}
	}
}

// WithWindows sets the upcoming-payment window used when no payment ids are supplied.
func WithWindows(w proactive.Windows) Option {
	return func(d *Dispatcher) { d.windows = w }
}

func WithLogger(logger *zap.Logger) Option {
	return func(d *Dispatcher) {
		if logger != nil {
			d.logger = logger
		}
	}
}

func New(dir Directory, opts ...Option) (*Dispatcher, error) {
	if dir == nil {
		return nil, errors.New("actions: directory must not be nil")
	}
	d := &Dispatcher{
		dir:      dir,
		now:      time.Now,
		newID:    func() string { return strings.ReplaceAll(uuid.NewString(), "-", "") },
		assessor: "Case Officer",
		windows:  proactive.DefaultWindows,
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(d)
	}
	d.logger = d.logger.With(zap.String("component", "actions"))
	d.handlers = map[string]handlerFunc{
		CheckApplicationStatus:    d.applicationStatus,
		ViewPaymentDetails:        d.paymentDetails,
		CheckCCSEligibility:       d.ccsEligibility,
		ViewPaymentHistory:        d.paymentHistory,
		ReportIssue:               d.reportIssue,
		UpdateDetails:             d.updateDetails,
		ProcessPayment:            d.processPayment,
		ViewUpcomingPayments:      d.upcomingPayments,
		CheckEligibilityGuidance:  d.eligibilityGuidance,
		SetupReminders:            d.setupReminders,
		AppointmentGuidance:       d.appointmentGuidance,
		ContextualRecommendations: d.contextualRecommendations,
	}
	return d, nil
}

// Names lists the supported actions in lexical order.
func (d *Dispatcher) Names() []string {
	out := make([]string, 0, len(d.handlers))
	for name := range d.handlers {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// Dispatch runs req.Action. Unknown actions return an unsuccessful Result
// together with ErrUnknownAction and touch nothing.
func (d *Dispatcher) Dispatch(ctx context.Context, req Request) (Result, error) {
	h, ok := d.handlers[req.Action]
	if !ok {
		return Result{Success: false, Error: "Unknown action"}, ErrUnknownAction
	}
	res, err := h(ctx, req)
	if err != nil {
		return Result{}, fmt.Errorf("actions: %s: %w", req.Action, err)
	}
	res.Action = req.Action
	d.logger.Debug("action dispatched",
		zap.String("user_id", req.UserID),
		zap.String("action", req.Action),
		zap.Bool("success", res.Success),
	)
	return res, nil
}

// notFound converts a directory miss into an unsuccessful result.
func notFound(err error, what string) (Result, error) {
	if errors.Is(err, directory.ErrNotFound) {
		return Result{Success: false, Message: what + " not found"}, nil
	}
	return Result{}, err
}

func stringField(data map[string]any, key string) string {
	s, _ := data[key].(string)
	return strings.TrimSpace(s)
}

func stringsField(data map[string]any, key string) []string {
	switch v := data[key].(type) {
	case []string:
		return append([]string(nil), v...)
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok && s != "" {
				out = append(out, s)
			}
		}
		return out
	default:
		return nil
	}
}
