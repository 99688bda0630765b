package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"

	"github.com/meridian-news/ingest/internal/ingest"
)

// ErrSourceNotFound signals that a source row no longer exists. Scraper
// initialization treats this as a benign race with deletion.
var ErrSourceNotFound = errors.New("source not found")

// SourceStore reads and mutates source rows.
type SourceStore struct {
	db DB
}

// NewSourceStore creates a SourceStore.
func NewSourceStore(db DB) *SourceStore {
	return &SourceStore{db: db}
}

var sourceColumns = []string{
	"id", "url", "name", "category", "paywall",
	"scrape_frequency", "last_checked", "do_initialized_at",
}

// GetSource fetches one source by id.
func (s *SourceStore) GetSource(ctx context.Context, id int64) (ingest.Source, error) {
	query, args, err := psql.Select(sourceColumns...).
		From("sources").
		Where(sq.Eq{"id": id}).
		ToSql()
	if err != nil {
		return ingest.Source{}, fmt.Errorf("build source query: %w", err)
	}

	var src ingest.Source
	row := s.db.QueryRow(ctx, query, args...)
	err = row.Scan(&src.ID, &src.URL, &src.Name, &src.Category, &src.Paywall,
		&src.ScrapeFrequency, &src.LastChecked, &src.DoInitializedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return ingest.Source{}, ErrSourceNotFound
	}
	if err != nil {
		return ingest.Source{}, fmt.Errorf("scan source %d: %w", id, err)
	}
	return src, nil
}

// ListSources returns every source ordered by id.
func (s *SourceStore) ListSources(ctx context.Context) ([]ingest.Source, error) {
	query, args, err := psql.Select(sourceColumns...).
		From("sources").
		OrderBy("id").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build sources query: %w", err)
	}

	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list sources: %w", err)
	}
	defer rows.Close()

	var out []ingest.Source
	for rows.Next() {
		var src ingest.Source
		if err := rows.Scan(&src.ID, &src.URL, &src.Name, &src.Category, &src.Paywall,
			&src.ScrapeFrequency, &src.LastChecked, &src.DoInitializedAt); err != nil {
			return nil, fmt.Errorf("scan source row: %w", err)
		}
		out = append(out, src)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate sources: %w", err)
	}
	return out, nil
}

// SetLastChecked advances the feed-check watermark.
func (s *SourceStore) SetLastChecked(ctx context.Context, id int64, t time.Time) error {
	query, args, err := psql.Update("sources").
		Set("last_checked", t).
		Where(sq.Eq{"id": id}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build last_checked update: %w", err)
	}
	if _, err := s.db.Exec(ctx, query, args...); err != nil {
		return fmt.Errorf("update last_checked for source %d: %w", id, err)
	}
	return nil
}

// SetInitializedAt records (or clears, with nil) that a scraper instance owns
// this source.
func (s *SourceStore) SetInitializedAt(ctx context.Context, id int64, t *time.Time) error {
	query, args, err := psql.Update("sources").
		Set("do_initialized_at", t).
		Where(sq.Eq{"id": id}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build do_initialized_at update: %w", err)
	}
	if _, err := s.db.Exec(ctx, query, args...); err != nil {
		return fmt.Errorf("update do_initialized_at for source %d: %w", id, err)
	}
	return nil
}
