package handler

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/aws/aws-lambda-go/events"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"citizen-assistant/internal/actions"
	"citizen-assistant/internal/directory"
	"citizen-assistant/internal/domain"
	"citizen-assistant/internal/metrics"
	"citizen-assistant/internal/usecase"
)

const correlationHeader = "X-Correlation-Id"

type Service interface {
	ProcessMessage(ctx context.Context, in usecase.MessageInput) (usecase.MessageOutput, error)
	GetHistory(ctx context.Context, userID string) (*domain.Conversation, error)
	ClearHistory(ctx context.Context, userID string) error
	DispatchAction(ctx context.Context, in usecase.ActionInput) (actions.Result, error)
	ProcessLifeEvent(ctx context.Context, in usecase.LifeEventInput) (domain.LifeEventOutcome, error)
	CheckEligibility(ctx context.Context, in usecase.EligibilityInput) (usecase.EligibilityOutput, error)
}

type Handler struct {
	svc     Service
	metrics *metrics.Collector
	logger  *zap.Logger
	routes  map[string]route
}

type route func(ctx context.Context, req events.APIGatewayProxyRequest) (int, any)

type Option func(*Handler)

func WithMetrics(c *metrics.Collector) Option {
	return func(h *Handler) { h.metrics = c }
}

func WithLogger(logger *zap.Logger) Option {
	return func(h *Handler) {
		if logger != nil {
			h.logger = logger.With(zap.String("component", "handler"))
		}
	}
}

type chatRequest struct {
	UserID  string            `json:"userId"`
	Message string            `json:"message"`
	Context map[string]string `json:"context,omitempty"`
}

type historyResponse struct {
	Conversation *domain.Conversation `json:"conversation"`
}

type clearResponse struct {
	Cleared bool `json:"cleared"`
}

type actionRequest struct {
	UserID string         `json:"userId"`
	Action string         `json:"action"`
	Data   map[string]any `json:"data,omitempty"`
}

type eligibilityRequest struct {
	UserID      string             `json:"userId"`
	PaymentType domain.PaymentType `json:"paymentType"`
}

type lifeEventRequest struct {
	UserID string                  `json:"userId"`
	Event  domain.LifeEvent        `json:"event"`
	Data   directory.LifeEventData `json:"data"`
}

type errorResponse struct {
	Error  string `json:"error"`
	Reason string `json:"reason,omitempty"`
}

func NewHandler(svc Service, opts ...Option) (*Handler, error) {
	if svc == nil {
		return nil, errors.New("handler: service must not be nil")
	}
	h := &Handler{svc: svc, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(h)
	}
	h.routes = map[string]route{
		"POST /chat":        h.chat,
		"GET /chat":         h.history,
		"DELETE /chat":      h.clear,
		"POST /actions":     h.action,
		"POST /eligibility": h.eligibility,
		"POST /life-events": h.lifeEvent,
	}
	return h, nil
}

// Handle serves one API Gateway proxy request. Every outcome, including
// failures, is a JSON body with a correlation id header.
func (h *Handler) Handle(ctx context.Context, req events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	correlationID := headerValue(req.Headers, correlationHeader)
	if correlationID == "" {
		correlationID = uuid.NewString()
	}
	key := routeKey(req)

	status, body := http.StatusNotFound, any(errorResponse{Error: string(usecase.ErrorNotFound), Reason: "route_not_found"})
	label := "unmatched"
	if r, ok := h.routes[key]; ok {
		status, body = r(ctx, req)
		label = key
	}
	h.metrics.Request(label, status)

	payload, err := json.Marshal(body)
	if err != nil {
		h.logger.Error("encode response", zap.String("correlation_id", correlationID), zap.Error(err))
		status = http.StatusInternalServerError
		payload = []byte(`{"error":"INTERNAL_ERROR"}`)
	}
	h.logger.Debug("request handled",
		zap.String("correlation_id", correlationID),
		zap.String("route", key),
		zap.Int("status", status))

	return events.APIGatewayProxyResponse{
		StatusCode: status,
		Headers: map[string]string{
			"Content-Type":    "application/json",
			correlationHeader: correlationID,
		},
		Body: string(payload),
	}, nil
}

func (h *Handler) chat(ctx context.Context, req events.APIGatewayProxyRequest) (int, any) {
	var in chatRequest
	if err := decodeBody(req, &in); err != nil {
		return invalidBody()
	}
	out, err := h.svc.ProcessMessage(ctx, usecase.MessageInput{UserID: in.UserID, Message: in.Message, Context: in.Context})
	if err != nil {
		return h.failure(err)
	}
	return http.StatusOK, out
}

func (h *Handler) history(ctx context.Context, req events.APIGatewayProxyRequest) (int, any) {
	conv, err := h.svc.GetHistory(ctx, req.QueryStringParameters["userId"])
	if err != nil {
		return h.failure(err)
	}
	return http.StatusOK, historyResponse{Conversation: conv}
}

func (h *Handler) clear(ctx context.Context, req events.APIGatewayProxyRequest) (int, any) {
	if err := h.svc.ClearHistory(ctx, req.QueryStringParameters["userId"]); err != nil {
		return h.failure(err)
	}
	return http.StatusOK, clearResponse{Cleared: true}
}

func (h *Handler) action(ctx context.Context, req events.APIGatewayProxyRequest) (int, any) {
	var in actionRequest
	if err := decodeBody(req, &in); err != nil {
		return invalidBody()
	}
	res, err := h.svc.DispatchAction(ctx, usecase.ActionInput{UserID: in.UserID, Action: in.Action, Data: in.Data})
	if usecase.CodeOf(err) == usecase.ErrorUnknownAction {
		return http.StatusBadRequest, res
	}
	if err != nil {
		return h.failure(err)
	}
	return http.StatusOK, res
}

func (h *Handler) eligibility(ctx context.Context, req events.APIGatewayProxyRequest) (int, any) {
	var in eligibilityRequest
	if err := decodeBody(req, &in); err != nil {
		return invalidBody()
	}
	out, err := h.svc.CheckEligibility(ctx, usecase.EligibilityInput{UserID: in.UserID, PaymentType: in.PaymentType})
	if err != nil {
		return h.failure(err)
	}
	return http.StatusOK, out
}

func (h *Handler) lifeEvent(ctx context.Context, req events.APIGatewayProxyRequest) (int, any) {
	var in lifeEventRequest
	if err := decodeBody(req, &in); err != nil {
		return invalidBody()
	}
	out, err := h.svc.ProcessLifeEvent(ctx, usecase.LifeEventInput{UserID: in.UserID, Event: in.Event, Data: in.Data})
	if err != nil {
		return h.failure(err)
	}
	return http.StatusOK, out
}

func (h *Handler) failure(err error) (int, any) {
	var ue *usecase.Error
	if !errors.As(err, &ue) {
		h.logger.Error("unexpected service error", zap.Error(err))
		return http.StatusInternalServerError, errorResponse{Error: string(usecase.ErrorInternal)}
	}
	status := statusFor(ue.Code)
	if status >= http.StatusInternalServerError {
		h.logger.Error("service error", zap.String("code", string(ue.Code)), zap.String("reason", ue.Reason), zap.Error(ue.Err))
	}
	return status, errorResponse{Error: string(ue.Code), Reason: ue.Reason}
}

func statusFor(code usecase.ErrorCode) int {
	switch code {
	case usecase.ErrorInvalidInput, usecase.ErrorUnknownAction:
		return http.StatusBadRequest
	case usecase.ErrorNotFound:
		return http.StatusNotFound
	case usecase.ErrorRateLimited:
		return http.StatusTooManyRequests
	case usecase.ErrorUpstream:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func invalidBody() (int, any) {
	return http.StatusBadRequest, errorResponse{Error: string(usecase.ErrorInvalidInput), Reason: "invalid_body"}
}

func decodeBody(req events.APIGatewayProxyRequest, v any) error {
	body := []byte(req.Body)
	if req.IsBase64Encoded {
		decoded, err := base64.StdEncoding.DecodeString(req.Body)
		if err != nil {
			return err
		}
		body = decoded
	}
	return json.Unmarshal(body, v)
}

func routeKey(req events.APIGatewayProxyRequest) string {
	path := strings.TrimRight(req.Path, "/")
	if path == "" {
		path = "/"
	}
	return strings.ToUpper(req.HTTPMethod) + " " + path
}

func headerValue(headers map[string]string, name string) string {
	for k, v := range headers {
		if strings.EqualFold(k, name) {
			return strings.TrimSpace(v)
		}
	}
	return ""
}
