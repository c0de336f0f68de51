// Package chat implements the conversational surface as a single-step
// reducer: given the current form state and one user message, it performs
// exactly one store operation and returns a new state with a reply.
package chat

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/hcpcrm/internal/extract"
	"github.com/hcpcrm/internal/store"
)

// Store is the subset of record-store operations the stepper drives.
type Store interface {
	CreateInteraction(ctx context.Context, in store.InteractionInput) (*store.Interaction, error)
	UpdateInteraction(ctx context.Context, id int64, in store.InteractionInput) (*store.Interaction, error)
	DeleteInteraction(ctx context.Context, id int64) error
	GetLatestInteraction(ctx context.Context, hcpID string) (*store.Interaction, error)
	UpsertProfile(ctx context.Context, name, hcpID, specialty string) (*store.Profile, error)
}

const helpReply = "I didn't understand your command. Try 'fill form', 'save', 'edit', or 'delete'."

var (
	sentimentValues = map[string]bool{"positive": true, "neutral": true, "negative": true}
	typeValues      = map[string]bool{"meeting": true, "call": true, "email": true, "attendance": true}
)

// Stepper dispatches one chat message to a store operation.
type Stepper struct {
	store     Store
	extractor *extract.Extractor
}

// NewStepper creates a stepper over the given store.
func NewStepper(s Store, extractor *extract.Extractor) *Stepper {
	return &Stepper{store: s, extractor: extractor}
}

// Step runs the extractor over the message, branches on keyword triggers,
// and returns a new state. The input state is never mutated; store and
// upstream failures are rendered into the assistant reply.
func (s *Stepper) Step(ctx context.Context, state State, message string) State {
	lower := strings.ToLower(message)

	cmd, err := s.extractor.Parse(message)
	if err != nil {
		return state.withReply(message, err.Error(), state.Form)
	}

	form := state.Form
	mergeCommand(&form, cmd)

	// Resolve identity when the message names an HCP; messages that rely on
	// a previously filled form skip resolution.
	if cmd.HCPName != "" || cmd.HCPID != "" {
		profile, err := s.store.UpsertProfile(ctx, cmd.HCPName, cmd.HCPID, cmd.Specialty)
		if err != nil {
			return state.withReply(message, err.Error(), state.Form)
		}
		form.HCPID = profile.HCPID
		form.HCPName = profile.Name
		if profile.Specialty != "" {
			form.Specialty = profile.Specialty
		}
	}

	log.Debug().
		Str("hcp_id", form.HCPID).
		Bool("is_fetch", cmd.IsFetch).
		Str("update_field", cmd.UpdateField).
		Msg("Chat command parsed")

	switch {
	case cmd.IsFetch:
		return s.stepFetch(ctx, state, message, form, cmd)
	case strings.Contains(lower, "fill form") || strings.Contains(lower, "met"):
		form.InteractionID = 0
		reply := fmt.Sprintf("Form filled: HCP Name: %s, %s", orNotSpecified(form.HCPName), form.dump())
		return state.withReply(message, reply, form)
	case strings.Contains(lower, "log interaction") || strings.Contains(lower, "save"):
		return s.stepSave(ctx, state, message, form)
	case strings.Contains(lower, "edit interaction"):
		return s.stepEdit(ctx, state, message, form)
	case strings.Contains(lower, "delete interaction"):
		return s.stepDelete(ctx, state, message, form)
	default:
		return state.withReply(message, helpReply, form)
	}
}

// stepFetch loads the latest interaction for the resolved profile into the
// form and applies at most one in-place update directive.
func (s *Stepper) stepFetch(ctx context.Context, state State, message string, form Form, cmd *extract.Command) State {
	if form.HCPID == "" {
		return state.withReply(message, "Please provide HCP name or ID to retrieve.", state.Form)
	}

	rec, err := s.store.GetLatestInteraction(ctx, form.HCPID)
	if err != nil {
		return state.withReply(message, err.Error(), state.Form)
	}

	form.fillFromInteraction(rec)
	if cmd.UpdateField != "" {
		applyUpdate(&form, cmd.UpdateField, cmd.UpdateValue)
	}

	reply := fmt.Sprintf("Form filled with latest interaction for %s: %s", orNotSpecified(form.HCPName), form.dump())
	return state.withReply(message, reply, form)
}

func (s *Stepper) stepSave(ctx context.Context, state State, message string, form Form) State {
	if form.HCPID == "" {
		return state.withReply(message, "Please provide HCP name or ID to save.", state.Form)
	}

	if form.InteractionID != 0 {
		rec, err := s.store.UpdateInteraction(ctx, form.InteractionID, form.toInput())
		if err != nil {
			return state.withReply(message, err.Error(), state.Form)
		}
		form.fillFromInteraction(rec)
		return state.withReply(message, "Interaction updated: "+describe(rec), form)
	}

	rec, err := s.store.CreateInteraction(ctx, form.toInput())
	if err != nil {
		return state.withReply(message, err.Error(), state.Form)
	}
	form.fillFromInteraction(rec)
	return state.withReply(message, "Interaction created: "+describe(rec), form)
}

func (s *Stepper) stepEdit(ctx context.Context, state State, message string, form Form) State {
	if form.InteractionID == 0 || form.HCPID == "" {
		return state.withReply(message, "Please provide interaction ID and HCP name or ID to edit.", state.Form)
	}

	rec, err := s.store.UpdateInteraction(ctx, form.InteractionID, form.toInput())
	if err != nil {
		return state.withReply(message, err.Error(), state.Form)
	}
	form.fillFromInteraction(rec)
	return state.withReply(message, "Interaction updated: "+describe(rec), form)
}

func (s *Stepper) stepDelete(ctx context.Context, state State, message string, form Form) State {
	if form.InteractionID == 0 {
		return state.withReply(message, "Please provide interaction ID to delete.", state.Form)
	}

	if err := s.store.DeleteInteraction(ctx, form.InteractionID); err != nil {
		return state.withReply(message, err.Error(), state.Form)
	}

	reply := fmt.Sprintf("Interaction %d deleted", form.InteractionID)
	form.InteractionID = 0
	return state.withReply(message, reply, form)
}

// mergeCommand overlays extracted fields onto the form. Extracted values win
// when present; the interaction type always wins because the extractor
// supplies its default.
func mergeCommand(form *Form, cmd *extract.Command) {
	form.InteractionType = cmd.InteractionType
	if cmd.Specialty != "" {
		form.Specialty = cmd.Specialty
	}
	if cmd.Date != "" {
		form.Date = cmd.Date
	}
	if cmd.Time != "" {
		form.Time = cmd.Time
	}
	if cmd.Attendees != "" {
		form.Attendees = cmd.Attendees
	}
	if cmd.TopicDiscussed != "" {
		form.TopicDiscussed = cmd.TopicDiscussed
	}
	if cmd.MaterialsShared != "" {
		form.MaterialsShared = cmd.MaterialsShared
	}
	if cmd.HCPSentiment != "" {
		form.HCPSentiment = cmd.HCPSentiment
	}
	if cmd.Outcomes != "" {
		form.Outcomes = cmd.Outcomes
	}
	if cmd.FollowUpAction != "" {
		form.FollowUpAction = cmd.FollowUpAction
	}
}

// applyUpdate writes one directive value into the form, validating enum,
// date, and time fields and keeping the existing value when invalid.
func applyUpdate(form *Form, field, value string) {
	switch field {
	case "hcp_sentiment":
		if sentimentValues[strings.ToLower(value)] {
			form.HCPSentiment = strings.ToLower(value)
		}
	case "interaction_type":
		if typeValues[strings.ToLower(value)] {
			form.InteractionType = strings.ToLower(value)
		}
	case "date":
		if _, err := time.Parse("2006-01-02", value); err == nil {
			form.Date = value
		}
	case "time":
		if strings.Count(value, ":") == 1 {
			value += ":00"
		}
		if _, err := time.Parse("15:04:05", value); err == nil {
			form.Time = value
		}
	case "specialty":
		form.Specialty = value
	case "attendees":
		form.Attendees = value
	case "topic_discussed":
		form.TopicDiscussed = value
	case "materials_shared":
		form.MaterialsShared = value
	case "outcomes":
		form.Outcomes = value
	case "follow_up_action":
		form.FollowUpAction = value
	}
}

func describe(rec *store.Interaction) string {
	return fmt.Sprintf("ID: %d, HCP ID: %s, Type: %s, Date: %s, Time: %s, Summary: %s, Outcome: %s",
		rec.ID, rec.HCPID,
		orNotSpecified(rec.InteractionType), orNotSpecified(rec.Date),
		orNotSpecified(rec.Time), orNotSpecified(rec.Summary), orNotSpecified(rec.Outcome))
}

func orNotSpecified(v string) string {
	if v == "" {
		return "Not specified"
	}
	return v
}
