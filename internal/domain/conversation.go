package domain

import "time"

// Sender identifies who authored a message.
type Sender string

const (
	SenderUser      Sender = "user"
	SenderAssistant Sender = "assistant"
)

// Message is a single immutable entry in a conversation log.
type Message struct {
	ID               string            `json:"id"`
	Content          string            `json:"content"`
	Sender           Sender            `json:"sender"`
	Type             string            `json:"type,omitempty"`
	Actions          []Action          `json:"actions,omitempty"`
	ProactiveActions []ProactiveAction `json:"proactiveActions,omitempty"`
	Timestamp        time.Time         `json:"timestamp"`
}

// Conversation is the per-user dialogue state owned by the engine.
type Conversation struct {
	ID          string              `json:"id"`
	UserID      string              `json:"userId"`
	Messages    []Message           `json:"messages"`
	Context     ConversationContext `json:"context"`
	CreatedAt   time.Time           `json:"createdAt"`
	LastUpdated time.Time           `json:"lastUpdated"`
}

// Clone returns a copy that shares no mutable state with c.
func (c Conversation) Clone() Conversation {
	out := c
	out.Messages = append([]Message(nil), c.Messages...)
	out.Context = c.Context.Clone()
	return out
}

// ConversationContext accumulates cross-turn signals. Fields are optional;
// the zero value of a field means "not known".
type ConversationContext struct {
	LastIntent        Intent            `json:"lastIntent,omitempty"`
	DetectedService   ServiceType       `json:"detectedService,omitempty"`
	DetectedLifeEvent LifeEvent         `json:"detectedLifeEvent,omitempty"`
	LastPaymentType   PaymentType       `json:"lastPaymentType,omitempty"`
	LastAmount        *float64          `json:"lastAmount,omitempty"`
	TimeReference     TimeReference     `json:"timeReference,omitempty"`
	Attributes        map[string]string `json:"attributes,omitempty"`
}

// Merge folds update into c. Non-empty values in update overwrite, empty
// values leave the existing value untouched, and nothing is ever removed.
func (c *ConversationContext) Merge(update ConversationContext) {
	if update.LastIntent != IntentNone {
		c.LastIntent = update.LastIntent
	}
	if update.DetectedService != ServiceNone {
		c.DetectedService = update.DetectedService
	}
	if update.DetectedLifeEvent != LifeEventNone {
		c.DetectedLifeEvent = update.DetectedLifeEvent
	}
	if update.LastPaymentType != PaymentTypeNone {
		c.LastPaymentType = update.LastPaymentType
	}
	if update.LastAmount != nil {
		v := *update.LastAmount
		c.LastAmount = &v
	}
	if update.TimeReference != TimeReferenceNone {
		c.TimeReference = update.TimeReference
	}
	for k, v := range update.Attributes {
		if k == "" || v == "" {
			continue
		}
		if c.Attributes == nil {
			c.Attributes = make(map[string]string, len(update.Attributes))
		}
		c.Attributes[k] = v
	}
}

// Clone returns a deep copy of c.
func (c ConversationContext) Clone() ConversationContext {
	out := c
	if c.LastAmount != nil {
		v := *c.LastAmount
		out.LastAmount = &v
	}
	if c.Attributes != nil {
		out.Attributes = make(map[string]string, len(c.Attributes))
		for k, v := range c.Attributes {
			out.Attributes[k] = v
		}
	}
	return out
}
