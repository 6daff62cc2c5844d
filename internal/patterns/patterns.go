// Package patterns holds the ordered keyword tables used to classify
// utterances. Tables are data: they can be replaced from YAML without
// touching the analyzer.
package patterns

import (
	_ "embed"
	"errors"
	"fmt"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"

	"citizen-assistant/internal/domain"
)

//go:embed default.yaml
var defaultYAML []byte

type IntentPatterns struct {
	Intent   domain.Intent `yaml:"intent"`
	Patterns []string      `yaml:"patterns"`
}

type PaymentKeyword struct {
	Keyword     string             `yaml:"keyword"`
	PaymentType domain.PaymentType `yaml:"payment_type"`
}

type ServiceKeywords struct {
	Service  domain.ServiceType `yaml:"service"`
	Keywords []string           `yaml:"keywords"`
}

type LifeEventKeywords struct {
	Event    domain.LifeEvent `yaml:"event"`
	Keywords []string         `yaml:"keywords"`
}

// Tables is the full set of classification tables. Every slice is scanned
// in declaration order.
type Tables struct {
	Intents          []IntentPatterns    `yaml:"intents"`
	PaymentKeywords  []PaymentKeyword    `yaml:"payment_keywords"`
	Services         []ServiceKeywords   `yaml:"services"`
	LifeEvents       []LifeEventKeywords `yaml:"life_events"`
	NextKeywords     []string            `yaml:"next_keywords"`
	PreviousKeywords []string            `yaml:"previous_keywords"`
	JobLossPhrases   []string            `yaml:"job_loss_phrases"`
}

var (
	defaultOnce   sync.Once
	defaultTables *Tables
)

// Default returns the built-in tables. The returned value must not be modified.
func Default() *Tables {
	defaultOnce.Do(func() {
		t, err := Parse(defaultYAML)
		if err != nil {
			panic(fmt.Sprintf("patterns: embedded default tables: %v", err))
		}
		defaultTables = t
	})
	return defaultTables
}

// Parse decodes YAML tables, case-folds every pattern and validates the result.
func Parse(data []byte) (*Tables, error) {
	var t Tables
	if err := yaml.Unmarshal(data, &t); err != nil {
		return nil, fmt.Errorf("patterns: decode: %w", err)
	}
	t.normalize()
	if err := t.Validate(); err != nil {
		return nil, err
	}
	return &t, nil
}

// Normalize case-folds an utterance the same way patterns are folded.
func Normalize(s string) string {
	return strings.ToLower(s)
}

func (t *Tables) normalize() {
	for i := range t.Intents {
		foldAll(t.Intents[i].Patterns)
	}
	for i := range t.PaymentKeywords {
		t.PaymentKeywords[i].Keyword = Normalize(strings.TrimSpace(t.PaymentKeywords[i].Keyword))
	}
	for i := range t.Services {
		foldAll(t.Services[i].Keywords)
	}
	for i := range t.LifeEvents {
		foldAll(t.LifeEvents[i].Keywords)
	}
	foldAll(t.NextKeywords)
	foldAll(t.PreviousKeywords)
	foldAll(t.JobLossPhrases)
}

func foldAll(list []string) {
	for i := range list {
		list[i] = Normalize(strings.TrimSpace(list[i]))
	}
}

// Validate rejects tables that would silently never match.
func (t *Tables) Validate() error {
	if len(t.Intents) == 0 {
		return errors.New("patterns: at least one intent category is required")
	}
	seen := make(map[domain.Intent]struct{}, len(t.Intents))
	for _, ip := range t.Intents {
		if ip.Intent == domain.IntentNone {
			return errors.New("patterns: intent name must not be empty")
		}
		if _, dup := seen[ip.Intent]; dup {
			return fmt.Errorf("patterns: intent %q declared twice", ip.Intent)
		}
		seen[ip.Intent] = struct{}{}
		if err := nonEmpty(string(ip.Intent), ip.Patterns); err != nil {
			return err
		}
	}
	for _, pk := range t.PaymentKeywords {
		if pk.Keyword == "" || pk.PaymentType == domain.PaymentTypeNone {
			return errors.New("patterns: payment keyword and type must not be empty")
		}
	}
	for _, s := range t.Services {
		if s.Service == domain.ServiceNone {
			return errors.New("patterns: service name must not be empty")
		}
		if err := nonEmpty(string(s.Service), s.Keywords); err != nil {
			return err
		}
	}
	for _, le := range t.LifeEvents {
		if le.Event == domain.LifeEventNone {
			return errors.New("patterns: life event name must not be empty")
		}
		if err := nonEmpty(string(le.Event), le.Keywords); err != nil {
			return err
		}
	}
	return nil
}

func nonEmpty(owner string, list []string) error {
	if len(list) == 0 {
		return fmt.Errorf("patterns: %s has no patterns", owner)
	}
	for _, p := range list {
		if p == "" {
			return fmt.Errorf("patterns: %s has an empty pattern", owner)
		}
	}
	return nil
}

// ContainsAny reports whether normalized contains any of the phrases.
func ContainsAny(normalized string, phrases []string) bool {
	for _, p := range phrases {
		if strings.Contains(normalized, p) {
			return true
		}
	}
	return false
}
