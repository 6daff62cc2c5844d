package domain

// Action describes a next step the caller can offer to the user.
type Action struct {
	Type        string         `json:"type"`
	Title       string         `json:"title"`
	Description string         `json:"description"`
	Payload     map[string]any `json:"payload,omitempty"`
}

// ProactiveAction is an unsolicited suggestion produced by a profile rule.
// Target names the dispatchable action the suggestion leads to.
type ProactiveAction struct {
	Action
	Rule       string `json:"rule"`
	Target     string `json:"action,omitempty"`
	Priority   string `json:"priority,omitempty"`
	Confidence string `json:"confidence,omitempty"`
}
