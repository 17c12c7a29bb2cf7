package pncp

import (
	"time"
)

// ExtractionMethod identifies which sourcing paths produced a record.
type ExtractionMethod string

// Supported extraction methods.
const (
	ExtractionHybrid  ExtractionMethod = "hybrid"
	ExtractionAPIOnly ExtractionMethod = "api_only"
)

// Outcome is the terminal state of one candidate inside a run.
type Outcome string

// Per-candidate outcomes.
const (
	OutcomeInserted         Outcome = "INSERTED"
	OutcomeUpdated          Outcome = "UPDATED"
	OutcomeSkippedUnchanged Outcome = "SKIPPED_UNCHANGED"
	OutcomeFailed           Outcome = "FAILED"
)

// Source labels for CanonicalRecord.SourcesSucceeded.
const (
	SourceItems       = "items"
	SourceHistory     = "history"
	SourceAttachments = "attachments"
	SourceOrg         = "org"
)

// CandidateStub is a lightweight listing-derived reference to an edital,
// produced per listing row before any detail extraction happens.
type CandidateStub struct {
	// NaturalID is the stable external identifier, format <org-id>/<year>/<sequence>.
	NaturalID string
	// DeclaredUpdatedAt is the best-effort "last updated" date scraped from the
	// listing row, normalized to DD/MM/YYYY when recognized. May be empty or
	// carry an unparseable original string.
	DeclaredUpdatedAt string
	// RawText is the full extracted text block of the listing container, kept
	// for secondary regex passes.
	RawText string
	// Link is the absolute detail-page URL.
	Link string
}

// LineItem is one purchasable item of an edital.
type LineItem struct {
	SequenceNumber int     `json:"sequence_number"`
	Description    string  `json:"description"`
	Quantity       float64 `json:"quantity"`
	UnitValue      float64 `json:"unit_value"`
	TotalValue     float64 `json:"total_value"`
}

// HistoryEvent is one maintenance-log entry, kept in source order.
type HistoryEvent struct {
	OccurredAt string `json:"occurred_at"`
	ActorName  string `json:"actor_name"`
	EventType  string `json:"event_type"`
}

// Attachment describes one downloadable document of an edital and the outcome
// of its (optional) transfer into durable object storage.
type Attachment struct {
	DisplayName     string    `json:"display_name"`
	SourceURL       string    `json:"source_url"`
	ByteSize        int64     `json:"byte_size"`
	StorageURL      string    `json:"storage_url,omitempty"`
	UploadSucceeded bool      `json:"upload_succeeded"`
	UploadedAt      time.Time `json:"uploaded_at"`
	Error           string    `json:"error,omitempty"`
}

// CanonicalRecord is the fully reconciled, storage-ready representation of one
// bid notice. It is built fresh on every extraction attempt and replaces the
// prior stored version on update; it is never partially mutated in place.
type CanonicalRecord struct {
	// Identity. NaturalID is immutable once assigned and globally unique.
	NaturalID      string `json:"natural_id"`
	IssuingOrgID   string `json:"issuing_org_id"`
	Year           int    `json:"year"`
	SequenceNumber int    `json:"sequence_number"`

	// Descriptive fields.
	Title             string `json:"title"`
	Modality          string `json:"modality"`
	Status            string `json:"status"`
	IssuingOrgName    string `json:"issuing_org_name"`
	Location          string `json:"location"`
	ObjectDescription string `json:"object_description"`
	LegalBasis        string `json:"legal_basis"`
	DisputeMode       string `json:"dispute_mode"`
	Link              string `json:"link"`

	// Temporal fields, carried as scraped (DD/MM/YYYY, optionally with HH:MM)
	// except CollectedAt which is always set by the fetcher.
	PublishedAt         string    `json:"published_at,omitempty"`
	LastUpdatedAt       string    `json:"last_updated_at,omitempty"`
	ProposalWindowStart string    `json:"proposal_window_start,omitempty"`
	ProposalWindowEnd   string    `json:"proposal_window_end,omitempty"`
	SessionOpeningAt    string    `json:"session_opening_at,omitempty"`
	CollectedAt         time.Time `json:"collected_at"`

	// Financials. TotalValue equals the sum of LineItems[].TotalValue when
	// line items are present, else 0.
	TotalValue        float64 `json:"total_value_numeric"`
	TotalValueDisplay string  `json:"total_value_display"`
	ValueConfidential bool    `json:"value_is_confidential"`

	// Nested collections, kept in source order.
	LineItems     []LineItem     `json:"line_items"`
	HistoryEvents []HistoryEvent `json:"history_events"`
	Attachments   []Attachment   `json:"attachments"`

	// Derived counters, refreshed via FinalizeCounters.
	LineItemCount     int  `json:"line_item_count"`
	AttachmentCount   int  `json:"attachment_count"`
	HistoryEventCount int  `json:"history_event_count"`
	HasLineItems      bool `json:"has_line_items"`
	HasAttachments    bool `json:"has_attachments"`
	HasHistory        bool `json:"has_history"`

	// Provenance.
	ExtractionMethod ExtractionMethod `json:"extraction_method"`
	SourcesSucceeded []string         `json:"sources_succeeded"`
}

// FinalizeCounters recomputes the derived counts and booleans from the nested
// collections. Call after the collections are final.
func (r *CanonicalRecord) FinalizeCounters() {
	r.LineItemCount = len(r.LineItems)
	r.AttachmentCount = len(r.Attachments)
	r.HistoryEventCount = len(r.HistoryEvents)
	r.HasLineItems = r.LineItemCount > 0
	r.HasAttachments = r.AttachmentCount > 0
	r.HasHistory = r.HistoryEventCount > 0
}

// RunError captures a single candidate-level failure inside a run.
type RunError struct {
	NaturalID string `json:"natural_id"`
	Error     string `json:"error"`
}

// RunSummary aggregates the outcome of one batch invocation of the
// reconciliation engine.
type RunSummary struct {
	RunID          string     `json:"run_id"`
	TargetDate     string     `json:"target_date"`
	FoundCount     int        `json:"found_count"`
	NewCount       int        `json:"new_count"`
	UpdatedCount   int        `json:"updated_count"`
	SkippedCount   int        `json:"skipped_count"`
	ErrorCount     int        `json:"error_count"`
	Errors         []RunError `json:"errors"`
	StartedAt      time.Time  `json:"started_at"`
	ElapsedSeconds float64    `json:"elapsed_seconds"`
}

// StoredRecord is the slice of a persisted edital the engine needs for the
// insert/update/skip decision.
type StoredRecord struct {
	ID            string
	NaturalID     string
	LastUpdatedAt string
}
