package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// Summarizer derives a summary and a coarse outcome label from the notes of
// an interaction. Implemented by internal/ai; faked in tests.
type Summarizer interface {
	Summarize(ctx context.Context, interactionType, notes string) (string, error)
	ClassifyOutcome(ctx context.Context, notes string) (string, error)
}

// outcomeWidth matches the varchar(50) column; anything longer is truncated.
const outcomeWidth = 50

// Storage provides CRUD over HCP profiles and interactions.
type Storage struct {
	db         *sql.DB
	summarizer Summarizer
}

// NewStorage creates a storage instance over an open database handle.
func NewStorage(db *sql.DB, summarizer Summarizer) *Storage {
	return &Storage{
		db:         db,
		summarizer: summarizer,
	}
}

const interactionColumns = `id, hcp_id, interaction_type, date, time, attendees, topic_discussed,
	       materials_shared, hcp_sentiment, outcomes, follow_up_action, summary, outcome`

// CreateInteraction validates the referenced profile, derives summary and
// outcome when a topic was discussed, and inserts a new row.
func (s *Storage) CreateInteraction(ctx context.Context, in InteractionInput) (*Interaction, error) {
	date, tm, err := parseDateTime(in.Date, in.Time)
	if err != nil {
		return nil, err
	}

	if err := s.profileExists(ctx, in.HCPID); err != nil {
		return nil, err
	}

	summary, outcome, err := s.derive(ctx, in)
	if err != nil {
		return nil, err
	}

	query := `
	INSERT INTO hcp_interactions (
		hcp_id, interaction_type, date, time, attendees, topic_discussed,
		materials_shared, hcp_sentiment, outcomes, follow_up_action, summary, outcome
	) VALUES (
		$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12
	) RETURNING id
	`

	var id int64
	err = s.db.QueryRowContext(
		ctx, query,
		in.HCPID, nullString(in.InteractionType), date, tm,
		nullString(in.Attendees), nullString(in.TopicDiscussed),
		nullString(in.MaterialsShared), nullString(in.HCPSentiment),
		nullString(in.Outcomes), nullString(in.FollowUpAction),
		nullString(summary), nullString(outcome),
	).Scan(&id)
	if err != nil {
		return nil, fmt.Errorf("failed to create interaction: %w", err)
	}

	log.Debug().
		Int64("id", id).
		Str("hcp_id", in.HCPID).
		Msg("Interaction created")

	return stored(id, in, summary, outcome), nil
}

// UpdateInteraction performs a full-row overwrite by id with the same
// validation and summarization as create.
func (s *Storage) UpdateInteraction(ctx context.Context, id int64, in InteractionInput) (*Interaction, error) {
	date, tm, err := parseDateTime(in.Date, in.Time)
	if err != nil {
		return nil, err
	}

	if err := s.profileExists(ctx, in.HCPID); err != nil {
		return nil, err
	}

	summary, outcome, err := s.derive(ctx, in)
	if err != nil {
		return nil, err
	}

	query := `
	UPDATE hcp_interactions SET
		hcp_id = $1, interaction_type = $2, date = $3, time = $4, attendees = $5,
		topic_discussed = $6, materials_shared = $7, hcp_sentiment = $8,
		outcomes = $9, follow_up_action = $10, summary = $11, outcome = $12
	WHERE id = $13
	`

	result, err := s.db.ExecContext(
		ctx, query,
		in.HCPID, nullString(in.InteractionType), date, tm,
		nullString(in.Attendees), nullString(in.TopicDiscussed),
		nullString(in.MaterialsShared), nullString(in.HCPSentiment),
		nullString(in.Outcomes), nullString(in.FollowUpAction),
		nullString(summary), nullString(outcome),
		id,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to update interaction: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("failed to get affected rows: %w", err)
	}
	if rows == 0 {
		return nil, NotFound("Interaction not found")
	}

	return stored(id, in, summary, outcome), nil
}

// DeleteInteraction removes an interaction by id.
func (s *Storage) DeleteInteraction(ctx context.Context, id int64) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM hcp_interactions WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete interaction: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}
	if rows == 0 {
		return NotFound("Interaction not found")
	}

	log.Debug().Int64("id", id).Msg("Interaction deleted")
	return nil
}

// GetInteraction retrieves a single interaction by id.
func (s *Storage) GetInteraction(ctx context.Context, id int64) (*Interaction, error) {
	query := fmt.Sprintf(`SELECT %s FROM hcp_interactions WHERE id = $1`, interactionColumns)

	rec, err := scanInteraction(s.db.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, NotFound("Interaction not found")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get interaction: %w", err)
	}
	return rec, nil
}

// GetLatestInteraction returns the most recent interaction for a profile,
// ordered by (date, time) descending with id as a deterministic tiebreak.
func (s *Storage) GetLatestInteraction(ctx context.Context, hcpID string) (*Interaction, error) {
	query := fmt.Sprintf(`
	SELECT %s
	FROM hcp_interactions
	WHERE hcp_id = $1
	ORDER BY date DESC NULLS LAST, time DESC NULLS LAST, id DESC
	LIMIT 1
	`, interactionColumns)

	rec, err := scanInteraction(s.db.QueryRowContext(ctx, query, hcpID))
	if err == sql.ErrNoRows {
		return nil, NotFound("No interactions found for HCP ID %s", hcpID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get latest interaction: %w", err)
	}
	return rec, nil
}

// ListInteractions returns all interactions in storage order.
func (s *Storage) ListInteractions(ctx context.Context) ([]*Interaction, error) {
	query := fmt.Sprintf(`SELECT %s FROM hcp_interactions`, interactionColumns)

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list interactions: %w", err)
	}
	defer rows.Close()

	var interactions []*Interaction
	for rows.Next() {
		rec, err := scanInteraction(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan interaction: %w", err)
		}
		interactions = append(interactions, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating interactions: %w", err)
	}
	return interactions, nil
}

// UpsertProfile resolves an HCP identity. An id takes the fast path; a name
// matches by exact lookup and creates a fresh profile when unknown. Callers
// from free-text parsing rarely hold a stable id, so name is the primary key
// for matching. Supplying a new specialty updates the stored one.
func (s *Storage) UpsertProfile(ctx context.Context, name, hcpID, specialty string) (*Profile, error) {
	if hcpID != "" {
		profile, err := s.lookupProfile(ctx, `SELECT hcp_id, name, specialty FROM hcp_profiles WHERE hcp_id = $1`, hcpID)
		if err != nil {
			return nil, err
		}
		if profile != nil {
			return s.maybeUpdateSpecialty(ctx, profile, specialty)
		}
	}

	if name == "" {
		if hcpID != "" {
			return nil, NotFound("HCP ID %s not found", hcpID)
		}
		return nil, Validation("HCP name or ID required")
	}

	profile, err := s.lookupProfile(ctx, `SELECT hcp_id, name, specialty FROM hcp_profiles WHERE name = $1`, name)
	if err != nil {
		return nil, err
	}
	if profile != nil {
		return s.maybeUpdateSpecialty(ctx, profile, specialty)
	}

	newID := uuid.New().String()
	_, err = s.db.ExecContext(
		ctx,
		`INSERT INTO hcp_profiles (hcp_id, name, specialty) VALUES ($1, $2, $3)`,
		newID, name, nullString(specialty),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create profile: %w", err)
	}

	log.Info().
		Str("hcp_id", newID).
		Str("name", name).
		Msg("Profile created")

	return &Profile{HCPID: newID, Name: name, Specialty: specialty}, nil
}

// GetProfile retrieves a profile by id.
func (s *Storage) GetProfile(ctx context.Context, hcpID string) (*Profile, error) {
	profile, err := s.lookupProfile(ctx, `SELECT hcp_id, name, specialty FROM hcp_profiles WHERE hcp_id = $1`, hcpID)
	if err != nil {
		return nil, err
	}
	if profile == nil {
		return nil, NotFound("HCP ID %s not found", hcpID)
	}
	return profile, nil
}

// ListProfiles returns all profiles.
func (s *Storage) ListProfiles(ctx context.Context) ([]*Profile, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT hcp_id, name, specialty FROM hcp_profiles`)
	if err != nil {
		return nil, fmt.Errorf("failed to list profiles: %w", err)
	}
	defer rows.Close()

	var profiles []*Profile
	for rows.Next() {
		var p Profile
		var name, specialty sql.NullString
		if err := rows.Scan(&p.HCPID, &name, &specialty); err != nil {
			return nil, fmt.Errorf("failed to scan profile: %w", err)
		}
		p.Name = name.String
		p.Specialty = specialty.String
		profiles = append(profiles, &p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating profiles: %w", err)
	}
	return profiles, nil
}

func (s *Storage) lookupProfile(ctx context.Context, query, key string) (*Profile, error) {
	var p Profile
	var name, specialty sql.NullString
	err := s.db.QueryRowContext(ctx, query, key).Scan(&p.HCPID, &name, &specialty)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to look up profile: %w", err)
	}
	p.Name = name.String
	p.Specialty = specialty.String
	return &p, nil
}

func (s *Storage) maybeUpdateSpecialty(ctx context.Context, profile *Profile, specialty string) (*Profile, error) {
	if specialty == "" || specialty == profile.Specialty {
		return profile, nil
	}

	_, err := s.db.ExecContext(
		ctx,
		`UPDATE hcp_profiles SET specialty = $1 WHERE hcp_id = $2`,
		specialty, profile.HCPID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to update specialty: %w", err)
	}
	profile.Specialty = specialty
	return profile, nil
}

func (s *Storage) profileExists(ctx context.Context, hcpID string) error {
	var found string
	err := s.db.QueryRowContext(ctx, `SELECT hcp_id FROM hcp_profiles WHERE hcp_id = $1`, hcpID).Scan(&found)
	if err == sql.ErrNoRows {
		return NotFound("HCP ID %s not found", hcpID)
	}
	if err != nil {
		return fmt.Errorf("failed to validate profile: %w", err)
	}
	return nil
}

// derive produces summary and outcome for the interaction when a topic was
// discussed; both stay empty otherwise.
func (s *Storage) derive(ctx context.Context, in InteractionInput) (string, string, error) {
	if in.TopicDiscussed == "" || s.summarizer == nil {
		return "", "", nil
	}

	summary, err := s.summarizer.Summarize(ctx, in.InteractionType, in.TopicDiscussed)
	if err != nil {
		return "", "", Upstream(err, "failed to summarize interaction")
	}

	outcome, err := s.summarizer.ClassifyOutcome(ctx, in.TopicDiscussed)
	if err != nil {
		return "", "", Upstream(err, "failed to classify outcome")
	}
	if len(outcome) > outcomeWidth {
		outcome = outcome[:outcomeWidth]
	}

	return summary, outcome, nil
}

// scanner abstracts *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...interface{}) error
}

func scanInteraction(row scanner) (*Interaction, error) {
	var rec Interaction
	var interactionType, attendees, topic, materials, sentiment sql.NullString
	var outcomes, followUp, summary, outcome sql.NullString
	var date, tm sql.NullTime

	err := row.Scan(
		&rec.ID, &rec.HCPID, &interactionType, &date, &tm, &attendees, &topic,
		&materials, &sentiment, &outcomes, &followUp, &summary, &outcome,
	)
	if err != nil {
		return nil, err
	}

	rec.InteractionType = interactionType.String
	rec.Attendees = attendees.String
	rec.TopicDiscussed = topic.String
	rec.MaterialsShared = materials.String
	rec.HCPSentiment = sentiment.String
	rec.Outcomes = outcomes.String
	rec.FollowUpAction = followUp.String
	rec.Summary = summary.String
	rec.Outcome = outcome.String
	if date.Valid {
		rec.Date = date.Time.Format("2006-01-02")
	}
	if tm.Valid {
		rec.Time = tm.Time.Format("15:04:05")
	}
	return &rec, nil
}

// parseDateTime validates the wire formats and converts to driver values.
// Empty strings become NULLs.
func parseDateTime(dateStr, timeStr string) (interface{}, interface{}, error) {
	var date interface{}
	if dateStr != "" {
		parsed, err := time.Parse("2006-01-02", dateStr)
		if err != nil {
			return nil, nil, Validation("Invalid date or time format: %v", err)
		}
		date = parsed
	}

	var tm interface{}
	if timeStr != "" {
		parsed, err := time.Parse("15:04:05", timeStr)
		if err != nil {
			parsed, err = time.Parse("15:04", timeStr)
			if err != nil {
				return nil, nil, Validation("Invalid date or time format: %v", err)
			}
		}
		tm = parsed.Format("15:04:05")
	}

	return date, tm, nil
}

func nullString(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

// stored echoes the row back to the caller, matching what was written.
func stored(id int64, in InteractionInput, summary, outcome string) *Interaction {
	return &Interaction{
		ID:              id,
		HCPID:           in.HCPID,
		InteractionType: in.InteractionType,
		Date:            in.Date,
		Time:            normalizeTime(in.Time),
		Attendees:       in.Attendees,
		TopicDiscussed:  in.TopicDiscussed,
		MaterialsShared: in.MaterialsShared,
		HCPSentiment:    in.HCPSentiment,
		Outcomes:        in.Outcomes,
		FollowUpAction:  in.FollowUpAction,
		Summary:         summary,
		Outcome:         outcome,
	}
}

func normalizeTime(t string) string {
	if len(t) == len("15:04") {
		return t + ":00"
	}
	return t
}
