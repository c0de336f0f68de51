package api

import (
	"context"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog/log"

	"github.com/hcpcrm/internal/chat"
	"github.com/hcpcrm/internal/store"
)

// Store is the record-store surface the REST handlers call.
type Store interface {
	CreateInteraction(ctx context.Context, in store.InteractionInput) (*store.Interaction, error)
	UpdateInteraction(ctx context.Context, id int64, in store.InteractionInput) (*store.Interaction, error)
	DeleteInteraction(ctx context.Context, id int64) error
	GetInteraction(ctx context.Context, id int64) (*store.Interaction, error)
	ListInteractions(ctx context.Context) ([]*store.Interaction, error)
	UpsertProfile(ctx context.Context, name, hcpID, specialty string) (*store.Profile, error)
	GetProfile(ctx context.Context, hcpID string) (*store.Profile, error)
	ListProfiles(ctx context.Context) ([]*store.Profile, error)
}

// Stepper runs one chat turn.
type Stepper interface {
	Step(ctx context.Context, state chat.State, message string) chat.State
}

// Handler holds the injected collaborators for all endpoints.
type Handler struct {
	store   Store
	stepper Stepper
}

// NewHandler creates the API handler.
func NewHandler(s Store, stepper Stepper) *Handler {
	return &Handler{store: s, stepper: stepper}
}

// Register wires all endpoints onto the router.
func (h *Handler) Register(e *echo.Echo) {
	e.GET("/health", h.health)

	e.POST("/interactions", h.createInteraction)
	e.GET("/interactions", h.listInteractions)
	e.GET("/interactions/:id", h.getInteraction)
	e.PUT("/interactions/:id", h.updateInteraction)
	e.DELETE("/interactions/:id", h.deleteInteraction)

	e.GET("/profiles", h.listProfiles)
	e.GET("/profiles/:id", h.getProfile)
	e.POST("/profiles", h.upsertProfile)

	e.POST("/chat", h.chat)
}

// errorResponse carries a message plus a stable machine-readable code so
// callers can distinguish not-found from bad input without string matching.
type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

// writeError maps domain error kinds onto HTTP statuses: not-found cases get
// 404 rather than the blanket 400 of earlier iterations.
func writeError(c echo.Context, err error) error {
	status := http.StatusInternalServerError
	switch store.KindOf(err) {
	case store.KindNotFound:
		status = http.StatusNotFound
	case store.KindValidation, store.KindUnknownCommand:
		status = http.StatusBadRequest
	case store.KindUpstream:
		status = http.StatusBadGateway
	}

	if status == http.StatusInternalServerError {
		log.Error().Err(err).Msg("Request failed")
	}
	return c.JSON(status, errorResponse{Error: err.Error(), Code: string(store.KindOf(err))})
}

func (h *Handler) health(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"status": "healthy"})
}

func (h *Handler) createInteraction(c echo.Context) error {
	var in store.InteractionInput
	if err := c.Bind(&in); err != nil {
		return writeError(c, store.Validation("Invalid request body"))
	}

	rec, err := h.store.CreateInteraction(c.Request().Context(), in)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusCreated, rec)
}

func (h *Handler) updateInteraction(c echo.Context) error {
	id, err := interactionID(c)
	if err != nil {
		return writeError(c, err)
	}

	var in store.InteractionInput
	if err := c.Bind(&in); err != nil {
		return writeError(c, store.Validation("Invalid request body"))
	}

	rec, err := h.store.UpdateInteraction(c.Request().Context(), id, in)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, rec)
}

func (h *Handler) deleteInteraction(c echo.Context) error {
	id, err := interactionID(c)
	if err != nil {
		return writeError(c, err)
	}

	if err := h.store.DeleteInteraction(c.Request().Context(), id); err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, map[string]string{
		"success": "Interaction " + c.Param("id") + " deleted",
	})
}

func (h *Handler) getInteraction(c echo.Context) error {
	id, err := interactionID(c)
	if err != nil {
		return writeError(c, err)
	}

	rec, err := h.store.GetInteraction(c.Request().Context(), id)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, rec)
}

func (h *Handler) listInteractions(c echo.Context) error {
	interactions, err := h.store.ListInteractions(c.Request().Context())
	if err != nil {
		return writeError(c, err)
	}
	if interactions == nil {
		interactions = []*store.Interaction{}
	}
	return c.JSON(http.StatusOK, interactions)
}

// UpsertProfileRequest identifies an HCP by name or id, optionally carrying
// a new specialty.
type UpsertProfileRequest struct {
	Name      string `json:"name"`
	HCPID     string `json:"hcp_id"`
	Specialty string `json:"specialty"`
}

func (h *Handler) upsertProfile(c echo.Context) error {
	var req UpsertProfileRequest
	if err := c.Bind(&req); err != nil {
		return writeError(c, store.Validation("Invalid request body"))
	}

	profile, err := h.store.UpsertProfile(c.Request().Context(), req.Name, req.HCPID, req.Specialty)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, profile)
}

func (h *Handler) getProfile(c echo.Context) error {
	profile, err := h.store.GetProfile(c.Request().Context(), c.Param("id"))
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, profile)
}

func (h *Handler) listProfiles(c echo.Context) error {
	profiles, err := h.store.ListProfiles(c.Request().Context())
	if err != nil {
		return writeError(c, err)
	}
	if profiles == nil {
		profiles = []*store.Profile{}
	}
	return c.JSON(http.StatusOK, profiles)
}

// ChatRequest carries the new message plus the echoed state from the
// previous call; the server keeps no session of its own.
type ChatRequest struct {
	Text     string         `json:"text"`
	Form     chat.Form      `json:"form"`
	Messages []chat.Message `json:"messages"`
}

// ChatResponse returns the assistant reply and the updated form for the
// caller to thread into its next request.
type ChatResponse struct {
	Response string         `json:"response"`
	FormData chat.Form      `json:"form_data"`
	Messages []chat.Message `json:"messages"`
}

func (h *Handler) chat(c echo.Context) error {
	var req ChatRequest
	if err := c.Bind(&req); err != nil {
		return writeError(c, store.Validation("Invalid request body"))
	}
	if req.Text == "" {
		return writeError(c, store.Validation("Message text is required"))
	}

	state := chat.State{Messages: req.Messages, Form: req.Form}
	next := h.stepper.Step(c.Request().Context(), state, req.Text)

	reply := ""
	if n := len(next.Messages); n > 0 {
		reply = next.Messages[n-1].Content
	}

	return c.JSON(http.StatusOK, ChatResponse{
		Response: reply,
		FormData: next.Form,
		Messages: next.Messages,
	})
}

func interactionID(c echo.Context) (int64, error) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		return 0, store.Validation("Invalid interaction ID: %s", c.Param("id"))
	}
	return id, nil
}
