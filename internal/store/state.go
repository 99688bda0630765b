package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/meridian-news/ingest/internal/ingest"
)

// StateStore persists per-scraper control blocks and their single pending
// alarm. Each row is written only by its own scraper instance.
type StateStore struct {
	db DB
}

// NewStateStore creates a StateStore.
func NewStateStore(db DB) *StateStore {
	return &StateStore{db: db}
}

// GetState loads and decodes one control block. The second return reports
// whether a row existed; a row that fails to decode is returned as a zero
// state with exists=true so the caller's schema validation rejects it.
func (s *StateStore) GetState(ctx context.Context, scraperID uuid.UUID) (ingest.SourceState, bool, error) {
	query, args, err := psql.Select("state").
		From("scraper_state").
		Where(sq.Eq{"scraper_id": scraperID}).
		ToSql()
	if err != nil {
		return ingest.SourceState{}, false, fmt.Errorf("build state query: %w", err)
	}

	var raw []byte
	err = s.db.QueryRow(ctx, query, args...).Scan(&raw)
	if errors.Is(err, pgx.ErrNoRows) {
		return ingest.SourceState{}, false, nil
	}
	if err != nil {
		return ingest.SourceState{}, false, fmt.Errorf("load state %s: %w", scraperID, err)
	}

	var state ingest.SourceState
	if err := json.Unmarshal(raw, &state); err != nil {
		return ingest.SourceState{}, true, nil
	}
	return state, true, nil
}

// PutState upserts the control block, preserving any pending alarm.
func (s *StateStore) PutState(ctx context.Context, scraperID uuid.UUID, state ingest.SourceState) error {
	raw, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("encode state: %w", err)
	}
	query, args, err := psql.Insert("scraper_state").
		Columns("scraper_id", "state").
		Values(scraperID, raw).
		Suffix("ON CONFLICT (scraper_id) DO UPDATE SET state = EXCLUDED.state").
		ToSql()
	if err != nil {
		return fmt.Errorf("build state upsert: %w", err)
	}
	if _, err := s.db.Exec(ctx, query, args...); err != nil {
		return fmt.Errorf("store state %s: %w", scraperID, err)
	}
	return nil
}

// DeleteState removes the control block and its alarm.
func (s *StateStore) DeleteState(ctx context.Context, scraperID uuid.UUID) error {
	query, args, err := psql.Delete("scraper_state").
		Where(sq.Eq{"scraper_id": scraperID}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build state delete: %w", err)
	}
	if _, err := s.db.Exec(ctx, query, args...); err != nil {
		return fmt.Errorf("delete state %s: %w", scraperID, err)
	}
	return nil
}

// SetAlarm arms the single pending tick for a scraper.
func (s *StateStore) SetAlarm(ctx context.Context, scraperID uuid.UUID, at time.Time) error {
	query, args, err := psql.Insert("scraper_state").
		Columns("scraper_id", "state", "alarm_at").
		Values(scraperID, []byte("{}"), at).
		Suffix("ON CONFLICT (scraper_id) DO UPDATE SET alarm_at = EXCLUDED.alarm_at").
		ToSql()
	if err != nil {
		return fmt.Errorf("build alarm upsert: %w", err)
	}
	if _, err := s.db.Exec(ctx, query, args...); err != nil {
		return fmt.Errorf("set alarm for %s: %w", scraperID, err)
	}
	return nil
}

// GetAlarm returns the pending tick time, if any.
func (s *StateStore) GetAlarm(ctx context.Context, scraperID uuid.UUID) (time.Time, bool, error) {
	query, args, err := psql.Select("alarm_at").
		From("scraper_state").
		Where(sq.Eq{"scraper_id": scraperID}).
		Where("alarm_at IS NOT NULL").
		ToSql()
	if err != nil {
		return time.Time{}, false, fmt.Errorf("build alarm query: %w", err)
	}

	var at time.Time
	err = s.db.QueryRow(ctx, query, args...).Scan(&at)
	if errors.Is(err, pgx.ErrNoRows) {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, fmt.Errorf("load alarm %s: %w", scraperID, err)
	}
	return at, true, nil
}
