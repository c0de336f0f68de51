package chat

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hcpcrm/internal/extract"
	"github.com/hcpcrm/internal/store"
)

// fakeStore is an in-memory chat.Store.
type fakeStore struct {
	profilesByID   map[string]*store.Profile
	profilesByName map[string]*store.Profile
	interactions   map[int64]*store.Interaction
	nextID         int64
	upsertCalls    int
	createCalls    int
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		profilesByID:   map[string]*store.Profile{},
		profilesByName: map[string]*store.Profile{},
		interactions:   map[int64]*store.Interaction{},
	}
}

func (f *fakeStore) addProfile(id, name, specialty string) *store.Profile {
	p := &store.Profile{HCPID: id, Name: name, Specialty: specialty}
	f.profilesByID[id] = p
	f.profilesByName[name] = p
	return p
}

func (f *fakeStore) addInteraction(rec *store.Interaction) {
	if rec.ID == 0 {
		f.nextID++
		rec.ID = f.nextID
	}
	f.interactions[rec.ID] = rec
}

func (f *fakeStore) CreateInteraction(_ context.Context, in store.InteractionInput) (*store.Interaction, error) {
	f.createCalls++
	if _, ok := f.profilesByID[in.HCPID]; !ok {
		return nil, store.NotFound("HCP ID %s not found", in.HCPID)
	}
	f.nextID++
	rec := &store.Interaction{
		ID:              f.nextID,
		HCPID:           in.HCPID,
		InteractionType: in.InteractionType,
		Date:            in.Date,
		Time:            in.Time,
		Attendees:       in.Attendees,
		TopicDiscussed:  in.TopicDiscussed,
		MaterialsShared: in.MaterialsShared,
		HCPSentiment:    in.HCPSentiment,
		Outcomes:        in.Outcomes,
		FollowUpAction:  in.FollowUpAction,
	}
	f.interactions[rec.ID] = rec
	return rec, nil
}

func (f *fakeStore) UpdateInteraction(_ context.Context, id int64, in store.InteractionInput) (*store.Interaction, error) {
	if _, ok := f.interactions[id]; !ok {
		return nil, store.NotFound("Interaction not found")
	}
	rec := &store.Interaction{ID: id, HCPID: in.HCPID, InteractionType: in.InteractionType,
		Date: in.Date, Time: in.Time, TopicDiscussed: in.TopicDiscussed,
		HCPSentiment: in.HCPSentiment, Outcomes: in.Outcomes, FollowUpAction: in.FollowUpAction,
		Attendees: in.Attendees, MaterialsShared: in.MaterialsShared}
	f.interactions[id] = rec
	return rec, nil
}

func (f *fakeStore) DeleteInteraction(_ context.Context, id int64) error {
	if _, ok := f.interactions[id]; !ok {
		return store.NotFound("Interaction not found")
	}
	delete(f.interactions, id)
	return nil
}

func (f *fakeStore) GetLatestInteraction(_ context.Context, hcpID string) (*store.Interaction, error) {
	var latest *store.Interaction
	for _, rec := range f.interactions {
		if rec.HCPID != hcpID {
			continue
		}
		if latest == nil || rec.ID > latest.ID {
			latest = rec
		}
	}
	if latest == nil {
		return nil, store.NotFound("No interactions found for HCP ID %s", hcpID)
	}
	return latest, nil
}

func (f *fakeStore) UpsertProfile(_ context.Context, name, hcpID, specialty string) (*store.Profile, error) {
	f.upsertCalls++
	if hcpID != "" {
		if p, ok := f.profilesByID[hcpID]; ok {
			return p, nil
		}
	}
	if name == "" {
		if hcpID != "" {
			return nil, store.NotFound("HCP ID %s not found", hcpID)
		}
		return nil, store.Validation("HCP name or ID required")
	}
	if p, ok := f.profilesByName[name]; ok {
		if specialty != "" {
			p.Specialty = specialty
		}
		return p, nil
	}
	f.nextID++
	return f.addProfile(fmt.Sprintf("hcp-%d", f.nextID), name, specialty), nil
}

func newTestStepper(f *fakeStore) *Stepper {
	return NewStepper(f, extract.New())
}

func lastReply(t *testing.T, s State) string {
	t.Helper()
	require.NotEmpty(t, s.Messages)
	last := s.Messages[len(s.Messages)-1]
	require.Equal(t, "assistant", last.Role)
	return last.Content
}

func TestStepMetFillsFormWithoutSaving(t *testing.T) {
	f := newFakeStore()
	stepper := newTestStepper(f)

	next := stepper.Step(context.Background(), State{},
		"met dr.davis, discussed pricing, positive sentiment, shared brochure")

	reply := lastReply(t, next)
	assert.True(t, strings.HasPrefix(reply, "Form filled:"), "reply: %s", reply)

	assert.Equal(t, "davis", next.Form.HCPName)
	assert.NotEmpty(t, next.Form.HCPID)
	assert.Equal(t, "meeting", next.Form.InteractionType)
	assert.Contains(t, next.Form.TopicDiscussed, "pricing")
	assert.Equal(t, "positive", next.Form.HCPSentiment)
	assert.Contains(t, next.Form.MaterialsShared, "brochure")
	assert.Zero(t, next.Form.InteractionID)

	// A new profile was created, but no interaction was saved.
	assert.Len(t, f.profilesByName, 1)
	assert.Zero(t, f.createCalls)
}

func TestStepSaveCreatesInteraction(t *testing.T) {
	f := newFakeStore()
	f.addProfile("p1", "davis", "cardiology")
	stepper := newTestStepper(f)

	state := State{Form: Form{
		HCPID:          "p1",
		HCPName:        "davis",
		TopicDiscussed: "pricing",
		HCPSentiment:   "positive",
	}}

	next := stepper.Step(context.Background(), state, "save")

	reply := lastReply(t, next)
	assert.Contains(t, reply, "Interaction created")
	assert.Equal(t, 1, f.createCalls)
	assert.NotZero(t, next.Form.InteractionID)
}

func TestStepSaveWithInteractionIDUpdates(t *testing.T) {
	f := newFakeStore()
	f.addProfile("p1", "davis", "")
	f.addInteraction(&store.Interaction{ID: 5, HCPID: "p1", HCPSentiment: "neutral"})
	stepper := newTestStepper(f)

	state := State{Form: Form{HCPID: "p1", HCPName: "davis", InteractionID: 5, TopicDiscussed: "dosage"}}
	next := stepper.Step(context.Background(), state, "save")

	assert.Contains(t, lastReply(t, next), "Interaction updated")
	assert.Equal(t, "dosage", f.interactions[5].TopicDiscussed)
	assert.Zero(t, f.createCalls)
}

func TestStepSaveWithoutProfile(t *testing.T) {
	stepper := newTestStepper(newFakeStore())

	next := stepper.Step(context.Background(), State{}, "save")
	assert.Equal(t, "Please provide HCP name or ID to save.", lastReply(t, next))
}

func TestStepFetchAppliesUpdate(t *testing.T) {
	f := newFakeStore()
	f.addProfile("p1", "davis", "cardiology")
	f.addInteraction(&store.Interaction{
		ID: 7, HCPID: "p1", InteractionType: "call",
		Date: "2025-06-01", Time: "09:00:00", HCPSentiment: "neutral",
	})
	stepper := newTestStepper(f)

	next := stepper.Step(context.Background(), State{}, "retrieve dr.davis HCP Sentiment to positive")

	reply := lastReply(t, next)
	assert.Contains(t, reply, "Form filled with latest interaction for davis")
	assert.Contains(t, reply, "Sentiment: positive")

	assert.Equal(t, int64(7), next.Form.InteractionID)
	assert.Equal(t, "positive", next.Form.HCPSentiment)
	assert.Equal(t, "call", next.Form.InteractionType)
	assert.Equal(t, "2025-06-01", next.Form.Date)
}

func TestStepFetchRejectsInvalidUpdateValue(t *testing.T) {
	f := newFakeStore()
	f.addProfile("p1", "davis", "")
	f.addInteraction(&store.Interaction{ID: 3, HCPID: "p1", HCPSentiment: "neutral"})
	stepper := newTestStepper(f)

	next := stepper.Step(context.Background(), State{}, "retrieve dr.davis hcp sentiment to ecstatic")

	// "ecstatic" is not in the sentiment enum; the fetched value stays.
	assert.Equal(t, "neutral", next.Form.HCPSentiment)
}

func TestStepFetchUnknownProfile(t *testing.T) {
	f := newFakeStore()
	f.addProfile("p1", "davis", "")
	stepper := newTestStepper(f)

	next := stepper.Step(context.Background(), State{}, "retrieve dr.davis hcp sentiment to positive")
	assert.Contains(t, lastReply(t, next), "No interactions found")
}

func TestStepDelete(t *testing.T) {
	t.Run("Existing", func(t *testing.T) {
		f := newFakeStore()
		f.addProfile("p1", "davis", "")
		f.addInteraction(&store.Interaction{ID: 9, HCPID: "p1"})
		stepper := newTestStepper(f)

		next := stepper.Step(context.Background(), State{Form: Form{InteractionID: 9}}, "delete interaction")
		assert.Equal(t, "Interaction 9 deleted", lastReply(t, next))
		assert.Empty(t, f.interactions)
		assert.Zero(t, next.Form.InteractionID)
	})

	t.Run("Missing", func(t *testing.T) {
		f := newFakeStore()
		stepper := newTestStepper(f)

		next := stepper.Step(context.Background(), State{Form: Form{InteractionID: 99}}, "delete interaction")
		assert.Equal(t, "Interaction not found", lastReply(t, next))
	})

	t.Run("WithoutID", func(t *testing.T) {
		stepper := newTestStepper(newFakeStore())

		next := stepper.Step(context.Background(), State{}, "delete interaction")
		assert.Equal(t, "Please provide interaction ID to delete.", lastReply(t, next))
	})
}

func TestStepUnknownCommand(t *testing.T) {
	stepper := newTestStepper(newFakeStore())

	next := stepper.Step(context.Background(), State{}, "what is the weather like")
	assert.Equal(t, helpReply, lastReply(t, next))
}

func TestStepDoesNotMutateInputState(t *testing.T) {
	f := newFakeStore()
	f.addProfile("p1", "davis", "cardiology")
	stepper := newTestStepper(f)

	original := State{
		Messages: []Message{{Role: "user", Content: "earlier"}},
		Form:     Form{HCPID: "p1", HCPName: "davis"},
	}
	snapshot := State{
		Messages: append([]Message(nil), original.Messages...),
		Form:     original.Form,
	}

	_ = stepper.Step(context.Background(), original, "met dr.davis today")

	if diff := cmp.Diff(snapshot, original); diff != "" {
		t.Errorf("input state mutated (-want +got):\n%s", diff)
	}
}
