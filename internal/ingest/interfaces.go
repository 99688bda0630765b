package ingest

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// SourceStore reads and mutates source rows.
type SourceStore interface {
	GetSource(ctx context.Context, id int64) (Source, error)
	ListSources(ctx context.Context) ([]Source, error)
	SetLastChecked(ctx context.Context, id int64, t time.Time) error
	SetInitializedAt(ctx context.Context, id int64, t *time.Time) error
}

// ArticleStore persists article rows. All writes are idempotent with respect
// to redelivered bus messages: inserts dedupe on URL and terminal rows are
// filtered out before processing.
type ArticleStore interface {
	// InsertIgnoreDuplicates inserts rows with ON CONFLICT (url) DO NOTHING
	// and returns the ids of rows that were actually created.
	InsertIgnoreDuplicates(ctx context.Context, rows []ArticleInsert) ([]int64, error)
	// SelectProcessable returns, from ids, the articles with no processed_at,
	// no fail_reason, and a publish date newer than the cutoff.
	SelectProcessable(ctx context.Context, ids []int64, cutoff time.Time) ([]Article, error)
	MarkFailed(ctx context.Context, id int64, status ArticleStatus, reason string, at time.Time) error
	MarkContentFetched(ctx context.Context, id int64, usedBrowser bool) error
	// CommitProcessed writes analysis fields, embedding, and blob key together
	// with status PROCESSED in a single update.
	CommitProcessed(ctx context.Context, id int64, analysis Analysis, embedding []float32, blobKey string, at time.Time) error
}

// ArticleInsert is one row produced from a feed entry.
type ArticleInsert struct {
	SourceID    int64
	URL         string
	Title       string
	PublishDate *time.Time
}

// StateStore persists per-scraper control blocks and their pending alarm.
type StateStore interface {
	GetState(ctx context.Context, scraperID uuid.UUID) (SourceState, bool, error)
	PutState(ctx context.Context, scraperID uuid.UUID, state SourceState) error
	DeleteState(ctx context.Context, scraperID uuid.UUID) error
	SetAlarm(ctx context.Context, scraperID uuid.UUID, at time.Time) error
	GetAlarm(ctx context.Context, scraperID uuid.UUID) (time.Time, bool, error)
}

// BlobStore writes raw article text under a key.
type BlobStore interface {
	Save(ctx context.Context, key string, data []byte) error
}

// Publisher pushes article-id batches onto the bus.
type Publisher interface {
	PublishArticles(ctx context.Context, ids []int64) error
}

// Fetcher retrieves the raw document at a URL.
type Fetcher interface {
	Fetch(ctx context.Context, url string) ([]byte, error)
}

// Analyzer runs structured LLM extraction over article text.
type Analyzer interface {
	Analyze(ctx context.Context, title, text string) (Analysis, error)
}

// Embedder turns search text into a fixed-width vector.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}

// Sleeper abstracts long waits so a durable orchestrator can checkpoint them.
// Implementations must honor context cancellation.
type Sleeper interface {
	Sleep(ctx context.Context, reason string, d time.Duration) error
}

// ScraperID derives the stable per-source instance identity from its URL, so
// repeated initialize calls converge to the same instance.
func ScraperID(sourceURL string) uuid.UUID {
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte(sourceURL))
}
