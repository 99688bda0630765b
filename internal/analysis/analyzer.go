// Package analysis runs structured LLM extraction over article text.
package analysis

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/aktagon/llmkit/anthropic"
	"github.com/aktagon/llmkit/anthropic/types"
	"go.uber.org/zap"

	"github.com/meridian-news/ingest/internal/ingest"
)

// Config selects the model used for article analysis.
type Config struct {
	APIKey    string
	Model     string
	MaxTokens int
	// MaxContentChars truncates article text before prompting. Roughly four
	// characters per token.
	MaxContentChars int
}

// Client implements ingest.Analyzer via structured prompting.
type Client struct {
	cfg    Config
	logger *zap.Logger
	// prompt is swappable so tests can stub the remote call. It returns the
	// text of the first content block.
	prompt func(systemPrompt, userPrompt, schema, apiKey string, settings types.RequestSettings) (string, error)
}

// New creates a Client.
func New(cfg Config, logger *zap.Logger) *Client {
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = 2048
	}
	if cfg.MaxContentChars <= 0 {
		cfg.MaxContentChars = 48_000
	}
	return &Client{
		cfg:    cfg,
		logger: logger,
		prompt: promptAnthropic,
	}
}

func promptAnthropic(systemPrompt, userPrompt, schema, apiKey string, settings types.RequestSettings) (string, error) {
	resp, err := anthropic.PromptWithSettings(systemPrompt, userPrompt, schema, apiKey, settings)
	if err != nil {
		return "", err
	}
	if len(resp.Content) == 0 {
		return "", fmt.Errorf("%w: empty analysis response", ingest.ErrValidation)
	}
	return resp.Content[0].Text, nil
}

const systemPrompt = `You are a news wire analyst. Given the title and body of
a news article, produce a structured assessment. Use ISO 639-1 for language
and ISO 3166-1 alpha-3 for the primary location, or GLOBAL when the story has
no single geographic focus and N/A when location does not apply. Grade
completeness as COMPLETE, PARTIAL_USEFUL, or PARTIAL_USELESS and content
quality as OK, LOW_QUALITY, or JUNK. When quality is JUNK or completeness is
PARTIAL_USELESS the list fields may be empty. Summary points are single
factual sentences about the events reported.`

// analysisSchema constrains the model output to the persisted analysis shape.
const analysisSchema = `{
  "type": "object",
  "properties": {
    "language": {"type": "string"},
    "primary_location": {"type": "string"},
    "completeness": {"type": "string", "enum": ["COMPLETE", "PARTIAL_USEFUL", "PARTIAL_USELESS"]},
    "content_quality": {"type": "string", "enum": ["OK", "LOW_QUALITY", "JUNK"]},
    "event_summary_points": {"type": "array", "items": {"type": "string"}},
    "thematic_keywords": {"type": "array", "items": {"type": "string"}},
    "topic_tags": {"type": "array", "items": {"type": "string"}},
    "key_entities": {"type": "array", "items": {"type": "string"}},
    "content_focus": {"type": "array", "items": {"type": "string"}}
  },
  "required": ["language", "primary_location", "completeness", "content_quality",
    "event_summary_points", "thematic_keywords", "topic_tags", "key_entities", "content_focus"],
  "additionalProperties": false
}`

// Analyze prompts the model at temperature 0 and validates the structured
// response. Schema-violating output is ingest.ErrValidation so the caller's
// retry loop treats it as malformed upstream.
func (c *Client) Analyze(ctx context.Context, title, text string) (ingest.Analysis, error) {
	if err := ctx.Err(); err != nil {
		return ingest.Analysis{}, err
	}
	if len(text) > c.cfg.MaxContentChars {
		text = text[:c.cfg.MaxContentChars]
	}

	userPrompt := fmt.Sprintf("Title: %s\n\nArticle body:\n%s", title, text)
	settings := types.RequestSettings{
		Model:       c.cfg.Model,
		MaxTokens:   c.cfg.MaxTokens,
		Temperature: 0,
	}
	raw, err := c.prompt(systemPrompt, userPrompt, analysisSchema, c.cfg.APIKey, settings)
	if err != nil {
		return ingest.Analysis{}, fmt.Errorf("analysis prompt: %w", err)
	}

	var a ingest.Analysis
	if err := json.Unmarshal([]byte(raw), &a); err != nil {
		return ingest.Analysis{}, fmt.Errorf("%w: decode analysis: %v", ingest.ErrValidation, err)
	}
	if err := Validate(a); err != nil {
		return ingest.Analysis{}, err
	}
	c.logger.Debug("article analyzed",
		zap.String("language", a.Language),
		zap.String("location", a.PrimaryLocation),
		zap.String("quality", string(a.ContentQuality)))
	return a, nil
}

// Validate enforces the analysis schema on a decoded object.
func Validate(a ingest.Analysis) error {
	if strings.TrimSpace(a.Language) == "" {
		return fmt.Errorf("%w: analysis is missing language", ingest.ErrValidation)
	}
	if strings.TrimSpace(a.PrimaryLocation) == "" {
		return fmt.Errorf("%w: analysis is missing primary_location", ingest.ErrValidation)
	}
	switch a.Completeness {
	case ingest.CompletenessComplete, ingest.CompletenessPartialUseful, ingest.CompletenessPartialUseless:
	default:
		return fmt.Errorf("%w: invalid completeness %q", ingest.ErrValidation, a.Completeness)
	}
	switch a.ContentQuality {
	case ingest.QualityOK, ingest.QualityLow, ingest.QualityJunk:
	default:
		return fmt.Errorf("%w: invalid content_quality %q", ingest.ErrValidation, a.ContentQuality)
	}
	return nil
}
