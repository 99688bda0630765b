package ingest

import "errors"

// Domain error kinds. Components return these wrapped with detail; only the
// enrichment worker converts them into article status transitions.
var (
	// ErrFetch covers transport failures and non-2xx responses on plain fetch.
	ErrFetch = errors.New("fetch error")
	// ErrRender covers failures of the headless rendering strategy.
	ErrRender = errors.New("render error")
	// ErrParse covers documents that could not be decoded at all.
	ErrParse = errors.New("parse error")
	// ErrValidation covers well-formed documents with no usable content.
	ErrValidation = errors.New("validation error")
	// ErrNoArticle is returned when readability finds no main content.
	ErrNoArticle = errors.New("no article found")
	// ErrCorruptState marks a scraper state blob that failed validation.
	ErrCorruptState = errors.New("corrupt scraper state")
)
