// Package fetcher builds canonical records for single bid notices by merging
// a rendered detail page with the portal's structured API endpoints.
package fetcher

import (
	"context"
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"
	"golang.org/x/net/html"

	"github.com/licitatech/pncp-harvester/internal/pncp"
	"github.com/licitatech/pncp-harvester/internal/pncpapi"
)

// APIClient is the slice of the PNCP API surface the fetcher consumes.
type APIClient interface {
	ListItems(ctx context.Context, orgID string, year, sequence int) ([]pncpapi.Item, error)
	ListHistory(ctx context.Context, orgID string, year, sequence int) ([]pncpapi.HistoryEntry, error)
	ListFiles(ctx context.Context, orgID string, year, sequence int) ([]pncpapi.FileRef, error)
	GetOrganization(ctx context.Context, orgID string) (*pncpapi.Organization, error)
}

// AttachmentProcessor turns one attachment descriptor into a populated
// Attachment, uploading the bytes when doUpload is set.
type AttachmentProcessor interface {
	Process(ctx context.Context, ref pncpapi.FileRef, naturalID string, doUpload bool) pncp.Attachment
}

// Fetcher is the detail-extraction stage of the pipeline.
type Fetcher struct {
	renderer    pncp.Renderer
	api         APIClient
	attachments AttachmentProcessor
	clock       pncp.Clock
	baseURL     string
	logger      *zap.Logger
}

// New wires a Fetcher from its collaborators. baseURL is the portal root,
// without a trailing slash.
func New(renderer pncp.Renderer, api APIClient, attachments AttachmentProcessor, clock pncp.Clock, baseURL string, logger *zap.Logger) *Fetcher {
	return &Fetcher{
		renderer:    renderer,
		api:         api,
		attachments: attachments,
		clock:       clock,
		baseURL:     strings.TrimRight(baseURL, "/"),
		logger:      logger.Named("fetcher"),
	}
}

// Fetch builds the hybrid record for naturalID: detail page render plus the
// four API sources, merged with API-over-page precedence for organization,
// modality and object. Returns an error, never a partial record, when the id
// is malformed or the page cannot be rendered.
func (f *Fetcher) Fetch(ctx context.Context, naturalID string, fetchAttachments bool) (*pncp.CanonicalRecord, error) {
	orgID, year, sequence, ok := pncp.SplitNaturalID(naturalID)
	if !ok {
		return nil, fmt.Errorf("malformed natural id %q", naturalID)
	}

	detailURL := fmt.Sprintf("%s/app/editais/%s", f.baseURL, naturalID)
	rendered, err := f.renderer.Render(ctx, detailURL)
	if err != nil {
		return nil, fmt.Errorf("rendering %s: %w", detailURL, err)
	}
	text, err := pageText(rendered)
	if err != nil {
		return nil, fmt.Errorf("parsing rendered page: %w", err)
	}
	fields := extractPageFields(text)

	record := f.build(ctx, naturalID, orgID, year, sequence, fields, fetchAttachments)
	record.ExtractionMethod = pncp.ExtractionHybrid
	record.Link = detailURL
	return record, nil
}

// FetchAPIOnly builds a lower-fidelity record from the API sources alone,
// leaving every page-only field empty.
func (f *Fetcher) FetchAPIOnly(ctx context.Context, naturalID string, fetchAttachments bool) (*pncp.CanonicalRecord, error) {
	orgID, year, sequence, ok := pncp.SplitNaturalID(naturalID)
	if !ok {
		return nil, fmt.Errorf("malformed natural id %q", naturalID)
	}

	record := f.build(ctx, naturalID, orgID, year, sequence, pageFields{}, fetchAttachments)
	record.ExtractionMethod = pncp.ExtractionAPIOnly
	record.Link = fmt.Sprintf("%s/app/editais/%s", f.baseURL, naturalID)
	return record, nil
}

// build runs the four API calls, each degrading to empty on failure, and
// merges them with the page fields into a finished record.
func (f *Fetcher) build(ctx context.Context, naturalID, orgID string, year, sequence int, fields pageFields, fetchAttachments bool) *pncp.CanonicalRecord {
	var sources []string

	items, err := f.api.ListItems(ctx, orgID, year, sequence)
	if err != nil {
		f.logger.Warn("items source degraded", zap.String("natural_id", naturalID), zap.Error(err))
		items = nil
	} else {
		sources = append(sources, pncp.SourceItems)
	}

	history, err := f.api.ListHistory(ctx, orgID, year, sequence)
	if err != nil {
		f.logger.Warn("history source degraded", zap.String("natural_id", naturalID), zap.Error(err))
		history = nil
	} else {
		sources = append(sources, pncp.SourceHistory)
	}

	files, err := f.api.ListFiles(ctx, orgID, year, sequence)
	if err != nil {
		f.logger.Warn("attachments source degraded", zap.String("natural_id", naturalID), zap.Error(err))
		files = nil
	} else {
		sources = append(sources, pncp.SourceAttachments)
	}

	org, err := f.api.GetOrganization(ctx, orgID)
	if err != nil {
		f.logger.Warn("org source degraded", zap.String("natural_id", naturalID), zap.Error(err))
		org = nil
	} else {
		sources = append(sources, pncp.SourceOrg)
	}

	record := &pncp.CanonicalRecord{
		NaturalID:      naturalID,
		IssuingOrgID:   orgID,
		Year:           year,
		SequenceNumber: sequence,

		Title:             fmt.Sprintf("Edital %d/%d", sequence, year),
		Status:            fields.Status,
		LegalBasis:        fields.LegalBasis,
		DisputeMode:       fields.DisputeMode,
		IssuingOrgName:    fields.OrgName,
		Location:          fields.Location,
		Modality:          fields.Modality,
		ObjectDescription: fields.ObjectDescription,

		PublishedAt:         fields.PublishedAt,
		LastUpdatedAt:       fields.LastUpdatedAt,
		ProposalWindowStart: fields.ProposalStart,
		ProposalWindowEnd:   fields.ProposalEnd,
		SessionOpeningAt:    fields.SessionOpeningAt,
		CollectedAt:         f.clock.Now(),

		SourcesSucceeded: sources,
	}

	// API sources win over page-scraped values where both exist.
	if org != nil && org.Name != "" {
		record.IssuingOrgName = org.Name
	}
	if org != nil && org.Municipality != "" && org.State != "" {
		record.Location = org.Municipality + "/" + org.State
	}
	if len(items) > 0 {
		if items[0].JudgmentCriterion != "" {
			record.Modality = items[0].JudgmentCriterion
		}
		record.ObjectDescription = InferObject(items)
	}

	// The stored update date always carries a value: unparseable or absent
	// page dates fall back to the collection date.
	if _, ok := pncp.ParseDate(record.LastUpdatedAt); !ok {
		record.LastUpdatedAt = record.CollectedAt.Format("02/01/2006")
	}

	for _, it := range items {
		record.LineItems = append(record.LineItems, pncp.LineItem{
			SequenceNumber: it.Sequence,
			Description:    it.Description,
			Quantity:       it.Quantity,
			UnitValue:      it.UnitValue,
			TotalValue:     it.TotalValue,
		})
		if it.ConfidentialBudget {
			record.ValueConfidential = true
		}
	}
	for _, h := range history {
		record.HistoryEvents = append(record.HistoryEvents, pncp.HistoryEvent{
			OccurredAt: h.OccurredAt,
			ActorName:  h.ActorName,
			EventType:  h.EventType,
		})
	}
	for _, ref := range files {
		record.Attachments = append(record.Attachments, f.attachments.Process(ctx, ref, naturalID, fetchAttachments))
	}

	record.TotalValue = SumItemTotals(items)
	record.TotalValueDisplay = FormatCurrency(record.TotalValue)
	record.FinalizeCounters()
	return record
}

// pageText flattens rendered HTML into newline-separated plain text so the
// labeled-field patterns see one field per line.
func pageText(rendered string) (string, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(rendered))
	if err != nil {
		return "", err
	}
	var lines []string
	doc.Find("body").Each(func(_ int, body *goquery.Selection) {
		body.Contents().Each(func(_ int, s *goquery.Selection) {
			collectText(s, &lines)
		})
	})
	return strings.Join(lines, "\n"), nil
}

func collectText(s *goquery.Selection, lines *[]string) {
	for _, n := range s.Nodes {
		if n.Type == html.TextNode {
			if t := strings.TrimSpace(n.Data); t != "" {
				*lines = append(*lines, t)
			}
		}
	}
	s.Contents().Each(func(_ int, child *goquery.Selection) {
		collectText(child, lines)
	})
}
