package store

import (
	"context"
	"testing"
	"time"

	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/require"

	"github.com/meridian-news/ingest/internal/ingest"
)

func TestInsertIgnoreDuplicatesReturnsOnlyNewIDs(t *testing.T) {
	t.Parallel()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	pub := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	rows := []ingest.ArticleInsert{
		{SourceID: 5, URL: "https://example.com/a", Title: "A", PublishDate: &pub},
		{SourceID: 5, URL: "https://example.com/b", Title: "B"},
	}

	mock.ExpectQuery(`INSERT INTO articles .*ON CONFLICT \(url\) DO NOTHING RETURNING id`).
		WithArgs(int64(5), "https://example.com/a", "A", &pub, ingest.StatusPendingFetch,
			int64(5), "https://example.com/b", "B", (*time.Time)(nil), ingest.StatusPendingFetch).
		WillReturnRows(pgxmock.NewRows([]string{"id"}).AddRow(int64(11)))

	ids, err := NewArticleStore(mock).InsertIgnoreDuplicates(context.Background(), rows)
	require.NoError(t, err)
	require.Equal(t, []int64{11}, ids, "only the truly inserted row comes back")
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestInsertIgnoreDuplicatesEmptyInput(t *testing.T) {
	t.Parallel()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	ids, err := NewArticleStore(mock).InsertIgnoreDuplicates(context.Background(), nil)
	require.NoError(t, err)
	require.Nil(t, ids)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSelectProcessableFilters(t *testing.T) {
	t.Parallel()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	cutoff := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	pub := cutoff.Add(2 * time.Hour)

	mock.ExpectQuery(`SELECT id, url, title, publish_date, source_id, status FROM articles WHERE .*processed_at IS NULL.*fail_reason IS NULL.*publish_date > .*ORDER BY id`).
		WithArgs(int64(1), int64(2), cutoff).
		WillReturnRows(pgxmock.NewRows([]string{"id", "url", "title", "publish_date", "source_id", "status"}).
			AddRow(int64(1), "https://example.com/a", "A", &pub, int64(5), ingest.StatusPendingFetch))

	got, err := NewArticleStore(mock).SelectProcessable(context.Background(), []int64{1, 2}, cutoff)
	require.NoError(t, err)
	require.Len(t, got, 1)
	require.Equal(t, int64(1), got[0].ID)
	require.Equal(t, ingest.StatusPendingFetch, got[0].Status)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestMarkFailed(t *testing.T) {
	t.Parallel()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	at := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)
	mock.ExpectExec(`UPDATE articles SET status = .*fail_reason = .*processed_at = `).
		WithArgs(ingest.StatusFetchFailed, "connection refused", at, int64(7)).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	err = NewArticleStore(mock).MarkFailed(context.Background(), 7, ingest.StatusFetchFailed, "connection refused", at)
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCommitProcessedWritesEverythingAtOnce(t *testing.T) {
	t.Parallel()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	analysis := ingest.Analysis{
		Language:           "en",
		PrimaryLocation:    "USA",
		Completeness:       ingest.CompletenessComplete,
		ContentQuality:     ingest.QualityOK,
		EventSummaryPoints: []string{"Something happened."},
		ThematicKeywords:   []string{"economy"},
		TopicTags:          []string{"markets"},
		KeyEntities:        []string{"Fed"},
		ContentFocus:       []string{"finance"},
	}
	at := time.Date(2025, 1, 2, 0, 0, 0, 0, time.UTC)
	embedding := []float32{0.25, -1}

	mock.ExpectExec(`UPDATE articles SET status = .*embedding = .*content_file_key = .*processed_at = `).
		WithArgs(ingest.StatusProcessed, "en", "USA",
			ingest.CompletenessComplete, ingest.QualityOK,
			analysis.EventSummaryPoints, analysis.ThematicKeywords, analysis.TopicTags,
			analysis.KeyEntities, analysis.ContentFocus,
			"[0.25,-1]", "2025/1/2/7.txt", at, int64(7)).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	err = NewArticleStore(mock).CommitProcessed(context.Background(), 7, analysis, embedding, "2025/1/2/7.txt", at)
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestVectorLiteral(t *testing.T) {
	t.Parallel()
	require.Equal(t, "[0.5,-0.25,3]", vectorLiteral([]float32{0.5, -0.25, 3}))
	require.Equal(t, "[]", vectorLiteral(nil))
}
