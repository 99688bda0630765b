package store

import (
	"context"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"

	"github.com/meridian-news/ingest/internal/ingest"
)

// ArticleStore persists article rows. Inserts dedupe on URL so feed
// re-observation and bus redelivery stay idempotent.
type ArticleStore struct {
	db DB
}

// NewArticleStore creates an ArticleStore.
func NewArticleStore(db DB) *ArticleStore {
	return &ArticleStore{db: db}
}

// InsertIgnoreDuplicates inserts rows with ON CONFLICT (url) DO NOTHING and
// returns only the ids of rows actually created.
func (s *ArticleStore) InsertIgnoreDuplicates(ctx context.Context, rows []ingest.ArticleInsert) ([]int64, error) {
	if len(rows) == 0 {
		return nil, nil
	}
	builder := psql.Insert("articles").
		Columns("source_id", "url", "title", "publish_date", "status")
	for _, r := range rows {
		builder = builder.Values(r.SourceID, r.URL, r.Title, r.PublishDate, ingest.StatusPendingFetch)
	}
	query, args, err := builder.
		Suffix("ON CONFLICT (url) DO NOTHING RETURNING id").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build article insert: %w", err)
	}

	result, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("insert articles: %w", err)
	}
	defer result.Close()

	var ids []int64
	for result.Next() {
		var id int64
		if err := result.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan inserted article id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := result.Err(); err != nil {
		return nil, fmt.Errorf("iterate inserted ids: %w", err)
	}
	return ids, nil
}

// SelectProcessable keeps, from ids, the articles that have never reached a
// terminal state and were published after the cutoff.
func (s *ArticleStore) SelectProcessable(ctx context.Context, ids []int64, cutoff time.Time) ([]ingest.Article, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	query, args, err := psql.Select("id", "url", "title", "publish_date", "source_id", "status").
		From("articles").
		Where(sq.Eq{"id": ids}).
		Where("processed_at IS NULL").
		Where("fail_reason IS NULL").
		Where(sq.Gt{"publish_date": cutoff}).
		OrderBy("id").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build processable query: %w", err)
	}

	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("select processable articles: %w", err)
	}
	defer rows.Close()

	var out []ingest.Article
	for rows.Next() {
		var a ingest.Article
		if err := rows.Scan(&a.ID, &a.URL, &a.Title, &a.PublishDate, &a.SourceID, &a.Status); err != nil {
			return nil, fmt.Errorf("scan processable article: %w", err)
		}
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate processable articles: %w", err)
	}
	return out, nil
}

// MarkFailed records a terminal failure status with its reason.
func (s *ArticleStore) MarkFailed(ctx context.Context, id int64, status ingest.ArticleStatus, reason string, at time.Time) error {
	query, args, err := psql.Update("articles").
		Set("status", status).
		Set("fail_reason", reason).
		Set("processed_at", at).
		Where(sq.Eq{"id": id}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build fail update: %w", err)
	}
	if _, err := s.db.Exec(ctx, query, args...); err != nil {
		return fmt.Errorf("mark article %d failed: %w", id, err)
	}
	return nil
}

// MarkContentFetched advances an article past the scrape step.
func (s *ArticleStore) MarkContentFetched(ctx context.Context, id int64, usedBrowser bool) error {
	query, args, err := psql.Update("articles").
		Set("status", ingest.StatusContentFetched).
		Set("used_browser", usedBrowser).
		Where(sq.Eq{"id": id}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build content-fetched update: %w", err)
	}
	if _, err := s.db.Exec(ctx, query, args...); err != nil {
		return fmt.Errorf("mark article %d content fetched: %w", id, err)
	}
	return nil
}

// CommitProcessed writes the full analysis, the embedding, and the blob key
// in one update; there is no partial-success path.
func (s *ArticleStore) CommitProcessed(ctx context.Context, id int64, analysis ingest.Analysis, embedding []float32, blobKey string, at time.Time) error {
	query, args, err := psql.Update("articles").
		Set("status", ingest.StatusProcessed).
		Set("language", analysis.Language).
		Set("primary_location", analysis.PrimaryLocation).
		Set("completeness", analysis.Completeness).
		Set("content_quality", analysis.ContentQuality).
		Set("event_summary_points", analysis.EventSummaryPoints).
		Set("thematic_keywords", analysis.ThematicKeywords).
		Set("topic_tags", analysis.TopicTags).
		Set("key_entities", analysis.KeyEntities).
		Set("content_focus", analysis.ContentFocus).
		Set("embedding", vectorLiteral(embedding)).
		Set("content_file_key", blobKey).
		Set("processed_at", at).
		Where(sq.Eq{"id": id}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build processed update: %w", err)
	}
	if _, err := s.db.Exec(ctx, query, args...); err != nil {
		return fmt.Errorf("commit processed article %d: %w", id, err)
	}
	return nil
}
