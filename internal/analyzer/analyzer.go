// Package analyzer classifies utterances against the pattern tables. Every
// function here is pure: the same utterance and tables always produce the
// same analysis.
package analyzer

import (
	"errors"
	"regexp"
	"strconv"
	"strings"

	"citizen-assistant/internal/domain"
	"citizen-assistant/internal/patterns"
)

// IntentConfidence is the fixed confidence assigned to any pattern match.
const IntentConfidence = 0.8

var amountPattern = regexp.MustCompile(`\$?(\d+(?:\.\d{2})?)`)

type Analyzer struct {
	tables *patterns.Tables
}

func New(tables *patterns.Tables) (*Analyzer, error) {
	if tables == nil {
		return nil, errors.New("analyzer: tables must not be nil")
	}
	return &Analyzer{tables: tables}, nil
}

// Analyze never fails. An empty utterance yields no intent and no entities.
func (a *Analyzer) Analyze(message string, attributes map[string]string) domain.Analysis {
	normalized := patterns.Normalize(message)
	intent := a.ClassifyIntent(normalized)
	out := domain.Analysis{
		Intent:     intent,
		Entities:   a.ExtractEntities(message),
		Service:    a.DetectService(normalized),
		LifeEvent:  a.DetectLifeEvent(normalized),
		Message:    message,
		Attributes: attributes,
	}
	if intent != domain.IntentNone {
		out.Confidence = IntentConfidence
	}
	return out
}

// ClassifyIntent returns the first declared category with any pattern
// contained in the normalized utterance.
func (a *Analyzer) ClassifyIntent(normalized string) domain.Intent {
	if normalized == "" {
		return domain.IntentNone
	}
	for _, ip := range a.tables.Intents {
		if patterns.ContainsAny(normalized, ip.Patterns) {
			return ip.Intent
		}
	}
	return domain.IntentNone
}

// ExtractEntities pulls the payment type, first amount and time reference
// out of the raw message.
func (a *Analyzer) ExtractEntities(message string) domain.Entities {
	var ent domain.Entities
	normalized := patterns.Normalize(message)

	for _, pk := range a.tables.PaymentKeywords {
		if strings.Contains(normalized, pk.Keyword) {
			ent.PaymentType = pk.PaymentType
			break
		}
	}

	if m := amountPattern.FindStringSubmatch(message); m != nil {
		if v, err := strconv.ParseFloat(m[1], 64); err == nil {
			ent.Amount = &v
		}
	}

	switch {
	case patterns.ContainsAny(normalized, a.tables.NextKeywords):
		ent.TimeReference = domain.TimeReferenceNext
	case patterns.ContainsAny(normalized, a.tables.PreviousKeywords):
		ent.TimeReference = domain.TimeReferencePrevious
	}
	return ent
}

func (a *Analyzer) DetectService(normalized string) domain.ServiceType {
	for _, s := range a.tables.Services {
		if patterns.ContainsAny(normalized, s.Keywords) {
			return s.Service
		}
	}
	return domain.ServiceNone
}

func (a *Analyzer) DetectLifeEvent(normalized string) domain.LifeEvent {
	for _, le := range a.tables.LifeEvents {
		if patterns.ContainsAny(normalized, le.Keywords) {
			return le.Event
		}
	}
	return domain.LifeEventNone
}

// MentionsJobLoss reports whether the raw message uses job-loss phrasing.
func (a *Analyzer) MentionsJobLoss(message string) bool {
	return patterns.ContainsAny(patterns.Normalize(message), a.tables.JobLossPhrases)
}
