package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hcpcrm/internal/chat"
	"github.com/hcpcrm/internal/store"
)

// fakeStore lets each test override just the methods it exercises.
type fakeStore struct {
	createFn  func(store.InteractionInput) (*store.Interaction, error)
	updateFn  func(int64, store.InteractionInput) (*store.Interaction, error)
	deleteFn  func(int64) error
	getFn     func(int64) (*store.Interaction, error)
	listFn    func() ([]*store.Interaction, error)
	upsertFn  func(name, hcpID, specialty string) (*store.Profile, error)
	getPrfFn  func(string) (*store.Profile, error)
	listPrfFn func() ([]*store.Profile, error)
}

func (f *fakeStore) CreateInteraction(_ context.Context, in store.InteractionInput) (*store.Interaction, error) {
	return f.createFn(in)
}

func (f *fakeStore) UpdateInteraction(_ context.Context, id int64, in store.InteractionInput) (*store.Interaction, error) {
	return f.updateFn(id, in)
}

func (f *fakeStore) DeleteInteraction(_ context.Context, id int64) error {
	return f.deleteFn(id)
}

func (f *fakeStore) GetInteraction(_ context.Context, id int64) (*store.Interaction, error) {
	return f.getFn(id)
}

func (f *fakeStore) ListInteractions(_ context.Context) ([]*store.Interaction, error) {
	return f.listFn()
}

func (f *fakeStore) UpsertProfile(_ context.Context, name, hcpID, specialty string) (*store.Profile, error) {
	return f.upsertFn(name, hcpID, specialty)
}

func (f *fakeStore) GetProfile(_ context.Context, hcpID string) (*store.Profile, error) {
	return f.getPrfFn(hcpID)
}

func (f *fakeStore) ListProfiles(_ context.Context) ([]*store.Profile, error) {
	return f.listPrfFn()
}

type fakeStepper struct {
	stepFn func(chat.State, string) chat.State
}

func (f *fakeStepper) Step(_ context.Context, state chat.State, message string) chat.State {
	return f.stepFn(state, message)
}

func newTestServer(s Store, stepper Stepper) *echo.Echo {
	e := echo.New()
	NewHandler(s, stepper).Register(e)
	return e
}

func doRequest(e *echo.Echo, method, path, body string) *httptest.ResponseRecorder {
	var reader *strings.Reader
	if body == "" {
		reader = strings.NewReader("")
	} else {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != "" {
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func TestHealth(t *testing.T) {
	e := newTestServer(&fakeStore{}, &fakeStepper{})

	rec := doRequest(e, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"healthy"}`, rec.Body.String())
}

func TestCreateInteraction(t *testing.T) {
	var gotInput store.InteractionInput
	s := &fakeStore{
		createFn: func(in store.InteractionInput) (*store.Interaction, error) {
			gotInput = in
			return &store.Interaction{ID: 1, HCPID: in.HCPID, TopicDiscussed: in.TopicDiscussed, Summary: "s"}, nil
		},
	}
	e := newTestServer(s, &fakeStepper{})

	rec := doRequest(e, http.MethodPost, "/interactions",
		`{"hcp_id":"p1","topic_discussed":"pricing","hcp_sentiment":"positive"}`)

	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "p1", gotInput.HCPID)
	assert.Equal(t, "positive", gotInput.HCPSentiment)

	var out store.Interaction
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	assert.Equal(t, int64(1), out.ID)
	assert.Equal(t, "s", out.Summary)
}

func TestCreateInteractionErrors(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
	}{
		{"MissingProfile", store.NotFound("HCP ID p9 not found"), http.StatusNotFound, "not_found"},
		{"BadDate", store.Validation("Invalid date or time format: x"), http.StatusBadRequest, "validation"},
		{"SummarizerDown", store.Upstream(nil, "failed to summarize interaction"), http.StatusBadGateway, "upstream"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			s := &fakeStore{
				createFn: func(store.InteractionInput) (*store.Interaction, error) { return nil, tc.err },
			}
			e := newTestServer(s, &fakeStepper{})

			rec := doRequest(e, http.MethodPost, "/interactions", `{"hcp_id":"p9"}`)
			assert.Equal(t, tc.wantStatus, rec.Code)

			var body map[string]string
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
			assert.Equal(t, tc.wantCode, body["code"])
			assert.NotEmpty(t, body["error"])
		})
	}
}

func TestGetInteractionNotFound(t *testing.T) {
	s := &fakeStore{
		getFn: func(int64) (*store.Interaction, error) { return nil, store.NotFound("Interaction not found") },
	}
	e := newTestServer(s, &fakeStepper{})

	rec := doRequest(e, http.MethodGet, "/interactions/42", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestInteractionIDValidation(t *testing.T) {
	e := newTestServer(&fakeStore{}, &fakeStepper{})

	rec := doRequest(e, http.MethodDelete, "/interactions/abc", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "Invalid interaction ID")
}

func TestDeleteInteraction(t *testing.T) {
	var deleted int64
	s := &fakeStore{
		deleteFn: func(id int64) error { deleted = id; return nil },
	}
	e := newTestServer(s, &fakeStepper{})

	rec := doRequest(e, http.MethodDelete, "/interactions/7", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, int64(7), deleted)
	assert.JSONEq(t, `{"success":"Interaction 7 deleted"}`, rec.Body.String())
}

func TestListInteractionsEmpty(t *testing.T) {
	s := &fakeStore{
		listFn: func() ([]*store.Interaction, error) { return nil, nil },
	}
	e := newTestServer(s, &fakeStepper{})

	rec := doRequest(e, http.MethodGet, "/interactions", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "[]", strings.TrimSpace(rec.Body.String()))
}

func TestUpsertProfile(t *testing.T) {
	s := &fakeStore{
		upsertFn: func(name, hcpID, specialty string) (*store.Profile, error) {
			return &store.Profile{HCPID: "p1", Name: name, Specialty: specialty}, nil
		},
	}
	e := newTestServer(s, &fakeStepper{})

	rec := doRequest(e, http.MethodPost, "/profiles", `{"name":"davis","specialty":"cardiology"}`)
	assert.Equal(t, http.StatusOK, rec.Code)

	var out store.Profile
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	assert.Equal(t, "p1", out.HCPID)
	assert.Equal(t, "davis", out.Name)
}

func TestGetProfile(t *testing.T) {
	s := &fakeStore{
		getPrfFn: func(hcpID string) (*store.Profile, error) {
			if hcpID != "p1" {
				return nil, store.NotFound("HCP ID %s not found", hcpID)
			}
			return &store.Profile{HCPID: "p1", Name: "davis", Specialty: "cardiology"}, nil
		},
	}
	e := newTestServer(s, &fakeStepper{})

	rec := doRequest(e, http.MethodGet, "/profiles/p1", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var out store.Profile
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	assert.Equal(t, "davis", out.Name)

	rec = doRequest(e, http.MethodGet, "/profiles/p9", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestUpsertProfileNoIdentity(t *testing.T) {
	s := &fakeStore{
		upsertFn: func(_, _, _ string) (*store.Profile, error) {
			return nil, store.Validation("HCP name or ID required")
		},
	}
	e := newTestServer(s, &fakeStepper{})

	rec := doRequest(e, http.MethodPost, "/profiles", `{}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestChat(t *testing.T) {
	stepper := &fakeStepper{
		stepFn: func(state chat.State, message string) chat.State {
			form := state.Form
			form.HCPName = "davis"
			return chat.State{
				Messages: append(append([]chat.Message(nil), state.Messages...),
					chat.Message{Role: "user", Content: message},
					chat.Message{Role: "assistant", Content: "Form filled"},
				),
				Form: form,
			}
		},
	}
	e := newTestServer(&fakeStore{}, stepper)

	body := `{"text":"met dr.davis","form":{"specialty":"cardiology"},"messages":[{"role":"user","content":"earlier"}]}`
	rec := doRequest(e, http.MethodPost, "/chat", body)
	require.Equal(t, http.StatusOK, rec.Code)

	var out ChatResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	assert.Equal(t, "Form filled", out.Response)
	assert.Equal(t, "davis", out.FormData.HCPName)
	assert.Equal(t, "cardiology", out.FormData.Specialty)
	require.Len(t, out.Messages, 3)
	assert.Equal(t, "earlier", out.Messages[0].Content)
}

func TestChatRequiresText(t *testing.T) {
	e := newTestServer(&fakeStore{}, &fakeStepper{})

	rec := doRequest(e, http.MethodPost, "/chat", `{"text":""}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "Message text is required")
}
