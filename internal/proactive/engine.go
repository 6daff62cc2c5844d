package proactive

import (
	"go.uber.org/zap"

	"citizen-assistant/internal/domain"
)

type Engine struct {
	rules  []Rule
	logger *zap.Logger
}

type Option func(*Engine)

func WithRules(rules []Rule) Option {
	return func(e *Engine) {
		e.rules = rules
	}
}

func WithLogger(logger *zap.Logger) Option {
	return func(e *Engine) {
		if logger != nil {
			e.logger = logger
		}
	}
}

func NewEngine(opts ...Option) *Engine {
	e := &Engine{rules: DefaultRules(DefaultWindows), logger: zap.NewNop()}
	for _, opt := range opts {
		opt(e)
	}
	e.logger = e.logger.With(zap.String("component", "proactive"))
	return e
}

// Evaluate runs every rule in order and collects the suggestions that fire.
// It returns nil, not an empty slice, when nothing fires or no profile is
// known. Priority labels are carried but never used to reorder.
func (e *Engine) Evaluate(s Snapshot) []domain.ProactiveAction {
	if s.Profile == nil {
		return nil
	}
	var out []domain.ProactiveAction
	for _, r := range e.rules {
		if a, ok := r.Fire(s); ok {
			out = append(out, a)
		}
	}
	if len(out) > 0 {
		e.logger.Debug("proactive rules fired", zap.Int("count", len(out)))
	}
	return out
}
