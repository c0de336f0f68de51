package store

// Profile is the identity record for a healthcare provider. Profiles are
// created on first mention and never deleted.
type Profile struct {
	HCPID     string `json:"hcp_id"`
	Name      string `json:"name"`
	Specialty string `json:"specialty"`
}

// Interaction is one logged encounter with an HCP. Summary and Outcome are
// derived server-side from the discussed topic.
type Interaction struct {
	ID              int64  `json:"id"`
	HCPID           string `json:"hcp_id"`
	InteractionType string `json:"interaction_type"`
	Date            string `json:"date"`
	Time            string `json:"time"`
	Attendees       string `json:"attendees"`
	TopicDiscussed  string `json:"topic_discussed"`
	MaterialsShared string `json:"materials_shared"`
	HCPSentiment    string `json:"hcp_sentiment"`
	Outcomes        string `json:"outcomes"`
	FollowUpAction  string `json:"follow_up_action"`
	Summary         string `json:"summary"`
	Outcome         string `json:"outcome"`
}

// InteractionInput carries caller-supplied fields for a create or full
// overwrite. Dates use 2006-01-02, times 15:04:05 (HH:MM also accepted).
type InteractionInput struct {
	HCPID           string `json:"hcp_id"`
	InteractionType string `json:"interaction_type"`
	Date            string `json:"date"`
	Time            string `json:"time"`
	Attendees       string `json:"attendees"`
	TopicDiscussed  string `json:"topic_discussed"`
	MaterialsShared string `json:"materials_shared"`
	HCPSentiment    string `json:"hcp_sentiment"`
	Outcomes        string `json:"outcomes"`
	FollowUpAction  string `json:"follow_up_action"`
}
