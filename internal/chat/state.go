package chat

import (
	"fmt"
	"strings"

	"github.com/hcpcrm/internal/store"
)

// Message is one entry in the running conversation log.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Form carries the running interaction form. It is echoed back to the
// caller after every step; no server-side session exists, so threading the
// form between calls is the caller's responsibility.
type Form struct {
	HCPID           string `json:"hcp_id"`
	HCPName         string `json:"hcp_name"`
	Specialty       string `json:"specialty"`
	InteractionType string `json:"interaction_type"`
	Date            string `json:"date"`
	Time            string `json:"time"`
	Attendees       string `json:"attendees"`
	TopicDiscussed  string `json:"topic_discussed"`
	MaterialsShared string `json:"materials_shared"`
	HCPSentiment    string `json:"hcp_sentiment"`
	Outcomes        string `json:"outcomes"`
	FollowUpAction  string `json:"follow_up_action"`
	InteractionID   int64  `json:"interaction_id"`
}

// State is the transient per-request conversation value: the form plus the
// accumulated message log.
type State struct {
	Messages []Message `json:"messages"`
	Form     Form      `json:"form"`
}

// withReply returns a new state with the assistant reply appended. The
// input state is never mutated.
func (s State) withReply(userMessage, reply string, form Form) State {
	messages := make([]Message, 0, len(s.Messages)+2)
	messages = append(messages, s.Messages...)
	messages = append(messages,
		Message{Role: "user", Content: userMessage},
		Message{Role: "assistant", Content: reply},
	)
	return State{Messages: messages, Form: form}
}

// fillFromInteraction loads a stored interaction into the form.
func (f *Form) fillFromInteraction(rec *store.Interaction) {
	f.InteractionID = rec.ID
	f.HCPID = rec.HCPID
	f.InteractionType = rec.InteractionType
	f.Date = rec.Date
	f.Time = rec.Time
	f.Attendees = rec.Attendees
	f.TopicDiscussed = rec.TopicDiscussed
	f.MaterialsShared = rec.MaterialsShared
	f.HCPSentiment = rec.HCPSentiment
	f.Outcomes = rec.Outcomes
	f.FollowUpAction = rec.FollowUpAction
}

// toInput converts the form into a store write.
func (f Form) toInput() store.InteractionInput {
	return store.InteractionInput{
		HCPID:           f.HCPID,
		InteractionType: f.InteractionType,
		Date:            f.Date,
		Time:            f.Time,
		Attendees:       f.Attendees,
		TopicDiscussed:  f.TopicDiscussed,
		MaterialsShared: f.MaterialsShared,
		HCPSentiment:    f.HCPSentiment,
		Outcomes:        f.Outcomes,
		FollowUpAction:  f.FollowUpAction,
	}
}

// dump renders the form for an assistant reply.
func (f Form) dump() string {
	fields := []struct {
		label string
		value string
	}{
		{"HCP ID", f.HCPID},
		{"Specialty", f.Specialty},
		{"Interaction Type", f.InteractionType},
		{"Date", f.Date},
		{"Time", f.Time},
		{"Attendees", f.Attendees},
		{"Topic", f.TopicDiscussed},
		{"Materials", f.MaterialsShared},
		{"Sentiment", f.HCPSentiment},
		{"Outcomes", f.Outcomes},
		{"Follow-Up", f.FollowUpAction},
	}

	parts := make([]string, 0, len(fields))
	for _, field := range fields {
		value := field.value
		if value == "" {
			value = "Not specified"
		}
		parts = append(parts, fmt.Sprintf("%s: %s", field.label, value))
	}
	return strings.Join(parts, ", ")
}
