// Package extract parses free-text CRM commands into structured field
// candidates using an ordered table of compiled patterns. Order is
// significant: later, broader patterns must not override earlier, more
// specific matches.
package extract

import (
	"regexp"
	"strings"
	"time"

	"github.com/hcpcrm/internal/store"
)

// UsageHint is appended to parse failures so the chat surface can point the
// user at the supported grammar.
const UsageHint = "Please use the format: 'retrieve dr.<name> HCP Sentiment to positive' or " +
	"'met dr.<name>, discussed <topic>, <sentiment> sentiment, shared <materials>'"

// Command is the structured result of parsing one chat message. All fields
// are optional; empty means the message did not mention them.
type Command struct {
	IsFetch bool
	Verb    string

	UpdateField string
	UpdateValue string

	HCPName   string
	HCPID     string
	Specialty string

	InteractionType string
	Date            string
	Time            string
	Attendees       string
	TopicDiscussed  string
	MaterialsShared string
	HCPSentiment    string
	Outcomes        string
	FollowUpAction  string
}

var (
	verbPattern      = regexp.MustCompile(`\b(retrieve|fetch|update|replace)\b`)
	fetchNamePattern = regexp.MustCompile(`(?:retrieve|fetch|update|replace)\s+dr\.?\s*(\w+)`)
	metNamePattern   = regexp.MustCompile(`met\s+dr\.?\s*(\w+)`)
	hcpIDPattern     = regexp.MustCompile(`\bhcp\s*(\d+)\b`)
	specialtyPattern = regexp.MustCompile(`(?:hcp\s+specialty|specialty):\s*(\w+)`)
	typePattern      = regexp.MustCompile(`\b(meeting|call|email|attendance)\b`)
	datePattern      = regexp.MustCompile(`\b(\d{4}-\d{2}-\d{2})\b`)
	todayPattern     = regexp.MustCompile(`\btoday\b`)
	timePattern      = regexp.MustCompile(`\b(\d{2}:\d{2}(?::\d{2})?)\b`)
	sentimentPattern = regexp.MustCompile(`(positive|neutral|negative)\s*sentiment`)

	// Update directives have the shape "<field name> to <value>"; the field
	// vocabulary is fixed, alternatives ordered longest-first so compound
	// names win over their suffixes.
	updatePattern = regexp.MustCompile(
		`(hcp\s+specialty|hcp\s+sentiment|interaction\s+type|follow-up\s+action|follow-up|attendees|materials|outcomes|sentiment|specialty|topic|date|time)` +
			`\s+to\s+(.+?)(?:\s+and\s+|[,;]|$)`)
)

// updateFieldKeys maps a normalized directive field name to its form key.
var updateFieldKeys = map[string]string{
	"hcp specialty":    "specialty",
	"specialty":        "specialty",
	"hcp sentiment":    "hcp_sentiment",
	"sentiment":        "hcp_sentiment",
	"interaction type": "interaction_type",
	"date":             "date",
	"time":             "time",
	"attendees":        "attendees",
	"topic":            "topic_discussed",
	"materials":        "materials_shared",
	"outcomes":         "outcomes",
	"follow-up":        "follow_up_action",
	"follow-up action": "follow_up_action",
}

// terminators end a free-text capture: the next recognized field keyword
// stops the run, otherwise it extends to end of string.
const terminators = `meeting|call|email|attendance|date|time|attendees|topic|materials?|shared|discussed|sentiment|outcomes|follow-up`

func freeText(trigger string) *regexp.Regexp {
	return regexp.MustCompile(trigger + `\s*(.+?)(?:\s*\b(?:` + terminators + `)\b|$)`)
}

// freeTextRules is iterated in order; each rule captures the text after its
// trigger keyword up to the next field keyword or end of string.
var freeTextRules = []struct {
	pattern *regexp.Regexp
	assign  func(*Command, string)
}{
	{freeText(`attendees:`), func(c *Command, v string) { c.Attendees = v }},
	{freeText(`(?:discussed|topic:)`), func(c *Command, v string) { c.TopicDiscussed = v }},
	{freeText(`(?:shared|materials?:)`), func(c *Command, v string) { c.MaterialsShared = v }},
	{freeText(`outcomes:`), func(c *Command, v string) { c.Outcomes = v }},
	{freeText(`(?:follow-up:?|follow up action:)`), func(c *Command, v string) { c.FollowUpAction = v }},
}

// Extractor parses chat messages. The clock is injectable so "today"
// resolves deterministically in tests.
type Extractor struct {
	now func() time.Time
}

// New creates an extractor using the wall clock.
func New() *Extractor {
	return NewWithClock(time.Now)
}

// NewWithClock creates an extractor with an explicit clock.
func NewWithClock(now func() time.Time) *Extractor {
	return &Extractor{now: now}
}

// Parse runs the ordered pattern passes over the message. Each pass is
// independent with first-match-wins semantics per field.
func (e *Extractor) Parse(text string) (*Command, error) {
	text = strings.ToLower(strings.TrimSpace(text))
	if text == "" {
		return nil, store.UnknownCommand("Failed to parse input: empty message. %s", UsageHint)
	}

	cmd := &Command{}

	// 1. Action verb.
	if m := verbPattern.FindStringSubmatch(text); m != nil {
		cmd.IsFetch = true
		cmd.Verb = m[1]
	}

	// 2. Fetch target name ("retrieve dr.davis").
	var fetchName string
	if m := fetchNamePattern.FindStringSubmatch(text); m != nil {
		fetchName = m[1]
	}

	// 3. Update directive ("hcp sentiment to positive").
	if m := updatePattern.FindStringSubmatch(text); m != nil {
		field := strings.Join(strings.Fields(m[1]), " ")
		if key, ok := updateFieldKeys[field]; ok {
			cmd.UpdateField = key
			cmd.UpdateValue = cleanCapture(m[2])
		}
	}

	// 4. "met dr.NAME" takes priority for the name; fall back to the fetch
	// target otherwise.
	if m := metNamePattern.FindStringSubmatch(text); m != nil {
		cmd.HCPName = m[1]
	} else {
		cmd.HCPName = fetchName
	}

	// 5. Explicit numeric id ("HCP 123").
	if m := hcpIDPattern.FindStringSubmatch(text); m != nil {
		cmd.HCPID = m[1]
	}

	// 6. Specialty ("specialty: cardiologist").
	if m := specialtyPattern.FindStringSubmatch(text); m != nil {
		cmd.Specialty = m[1]
	}

	// 7. Interaction type, defaulting to "meeting".
	cmd.InteractionType = "meeting"
	if m := typePattern.FindStringSubmatch(text); m != nil {
		cmd.InteractionType = m[1]
	}

	// 8. Date: ISO literal or the keyword "today".
	if m := datePattern.FindStringSubmatch(text); m != nil {
		cmd.Date = m[1]
	} else if todayPattern.MatchString(text) {
		cmd.Date = e.now().Format("2006-01-02")
	}

	// 9. Time, normalizing HH:MM to HH:MM:SS.
	if m := timePattern.FindStringSubmatch(text); m != nil {
		cmd.Time = m[1]
		if strings.Count(cmd.Time, ":") == 1 {
			cmd.Time += ":00"
		}
	}

	// 10. Free-text fields after trigger keywords.
	for _, rule := range freeTextRules {
		if m := rule.pattern.FindStringSubmatch(text); m != nil {
			rule.assign(cmd, cleanCapture(m[1]))
		}
	}

	// 11. Sentiment, unless an update directive already targets it.
	if cmd.UpdateField != "hcp_sentiment" {
		if m := sentimentPattern.FindStringSubmatch(text); m != nil {
			cmd.HCPSentiment = m[1]
		}
	}

	return cmd, nil
}

func cleanCapture(v string) string {
	return strings.Trim(strings.TrimSpace(v), ",;")
}
