// Package ingest defines core types shared across subsystems.
package ingest

import (
	"time"
)

// ArticleStatus represents the lifecycle state of an article row.
type ArticleStatus string

// Article status values persisted in the articles table. An article starts in
// PENDING_FETCH and ends in exactly one status other than the first two.
const (
	StatusPendingFetch     ArticleStatus = "PENDING_FETCH"
	StatusContentFetched   ArticleStatus = "CONTENT_FETCHED"
	StatusProcessed        ArticleStatus = "PROCESSED"
	StatusSkippedPDF       ArticleStatus = "SKIPPED_PDF"
	StatusFetchFailed      ArticleStatus = "FETCH_FAILED"
	StatusRenderFailed     ArticleStatus = "RENDER_FAILED"
	StatusAnalysisFailed   ArticleStatus = "AI_ANALYSIS_FAILED"
	StatusEmbeddingFailed  ArticleStatus = "EMBEDDING_FAILED"
	StatusBlobUploadFailed ArticleStatus = "BLOB_UPLOAD_FAILED"
)

// Terminal reports whether no further transitions are allowed from s.
func (s ArticleStatus) Terminal() bool {
	return s != StatusPendingFetch && s != StatusContentFetched
}

// EmbeddingDim is the fixed width of the article embedding vector.
const EmbeddingDim = 384

// Source is a named publisher feed.
type Source struct {
	ID              int64
	URL             string
	Name            string
	Category        string
	Paywall         bool
	ScrapeFrequency int
	LastChecked     *time.Time
	DoInitializedAt *time.Time
}

// Article is one story discovered from a source, identified by canonical URL.
type Article struct {
	ID          int64
	URL         string
	Title       string
	PublishDate *time.Time
	SourceID    int64
	Status      ArticleStatus
	UsedBrowser bool

	Analysis       *Analysis
	Embedding      []float32
	ContentFileKey *string
	FailReason     *string
	ProcessedAt    *time.Time
	CreatedAt      time.Time
}

// Completeness grades how much of the story survived extraction.
type Completeness string

// Completeness values emitted by the analysis model.
const (
	CompletenessComplete       Completeness = "COMPLETE"
	CompletenessPartialUseful  Completeness = "PARTIAL_USEFUL"
	CompletenessPartialUseless Completeness = "PARTIAL_USELESS"
)

// ContentQuality grades editorial quality of the extracted text.
type ContentQuality string

// ContentQuality values emitted by the analysis model.
const (
	QualityOK   ContentQuality = "OK"
	QualityLow  ContentQuality = "LOW_QUALITY"
	QualityJunk ContentQuality = "JUNK"
)

// Analysis is the structured object produced by the LLM for one article.
type Analysis struct {
	Language           string         `json:"language"`
	PrimaryLocation    string         `json:"primary_location"`
	Completeness       Completeness   `json:"completeness"`
	ContentQuality     ContentQuality `json:"content_quality"`
	EventSummaryPoints []string       `json:"event_summary_points"`
	ThematicKeywords   []string       `json:"thematic_keywords"`
	TopicTags          []string       `json:"topic_tags"`
	KeyEntities        []string       `json:"key_entities"`
	ContentFocus       []string       `json:"content_focus"`
}

// FeedEntry is one validated item decoded from a publisher feed.
type FeedEntry struct {
	Title   string
	Link    string
	GUID    string
	PubDate *time.Time
}

// SourceState is the persisted control block for one source scraper instance.
type SourceState struct {
	SourceID        int64      `json:"source_id"`
	URL             string     `json:"url"`
	ScrapeFrequency int        `json:"scrape_frequency"`
	LastChecked     *time.Time `json:"last_checked"`
}

// Valid reports whether the state blob is structurally usable. A scraper that
// reads an invalid state must refuse to act and re-arm far in the future.
func (s SourceState) Valid() bool {
	return s.SourceID > 0 && s.URL != ""
}

// BatchMessage is the bus payload linking the scheduler to the worker.
type BatchMessage struct {
	ArticleIDs []int64 `json:"articles_id"`
}

// PublishBatchSize caps how many article ids ride in one bus message.
const PublishBatchSize = 100

// ParsedArticle is the output of main-content extraction over a fetched page.
type ParsedArticle struct {
	Title         string
	Text          string
	PublishedTime *time.Time
}
