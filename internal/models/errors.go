package models

import "errors"

// Run-fatal errors.
var (
	ErrCredentialMissing = errors.New("credential missing")
	ErrLabelMissing      = errors.New("processed label missing")
)

// Per-attachment errors. The orchestrator logs them, records them in the run
// summary and moves on to the next attachment.
var (
	ErrAttachmentFetchFailed = errors.New("attachment fetch failed")
	ErrTextExtractionFailed  = errors.New("text extraction failed")
	ErrFieldExtractionFailed = errors.New("field extraction failed")
	ErrFilingFailed          = errors.New("filing failed")
	ErrLedgerWriteFailed     = errors.New("ledger write failed")
)
