// Package scanner paginates the portal's listing view and extracts lightweight
// candidate references for the reconciliation engine.
package scanner

import (
	"bytes"
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"github.com/licitatech/pncp-harvester/internal/pncp"
)

// Accumulated-stub safety ceiling for one scan.
const maxStubs = 1000

var (
	listingDateRe = regexp.MustCompile(`(?i)Última\s+Atualização[^:]*:\s*([^|]+)`)
	editaisPathRe = regexp.MustCompile(`/editais/(.+)$`)
)

// Scanner walks the date-descending listing pages.
type Scanner struct {
	renderer pncp.Renderer
	baseURL  string
	logger   *zap.Logger
}

// New builds a Scanner over the given renderer.
func New(renderer pncp.Renderer, baseURL string, logger *zap.Logger) *Scanner {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Scanner{
		renderer: renderer,
		baseURL:  strings.TrimRight(baseURL, "/"),
		logger:   logger,
	}
}

// Scan iterates listing pages 1..maxPages and returns the candidate stubs
// dated filterDate or later. Stubs whose declared date cannot be parsed are
// kept conservatively so filtering never silently drops ambiguous records.
// Pagination stops early when a page yields zero containers, when a page
// contributes nothing and its oldest date precedes filterDate (the listing is
// date-descending, so further pages are strictly older), or at the stub
// ceiling. A page-level error stops the scan and returns what accumulated.
func (s *Scanner) Scan(ctx context.Context, filterDate time.Time, maxPages, pageSize int) ([]pncp.CandidateStub, error) {
	filterDate = truncateToDay(filterDate)
	stubs := make([]pncp.CandidateStub, 0, pageSize)

	for page := 1; page <= maxPages; page++ {
		if err := ctx.Err(); err != nil {
			return stubs, err
		}
		url := fmt.Sprintf("%s/app/editais?q=&pagina=%d&tam_pagina=%d&ordenacao=data_desc",
			s.baseURL, page, pageSize)

		html, err := s.renderer.Render(ctx, url)
		if err != nil {
			s.logger.Warn("listing page render failed, stopping scan",
				zap.Int("page", page), zap.Error(err))
			return stubs, nil
		}

		kept, oldest, total, err := s.scanPage(html, filterDate)
		if err != nil {
			s.logger.Warn("listing page parse failed, stopping scan",
				zap.Int("page", page), zap.Error(err))
			return stubs, nil
		}
		if total == 0 {
			s.logger.Debug("no containers on page, end of results", zap.Int("page", page))
			break
		}
		stubs = append(stubs, kept...)
		s.logger.Debug("listing page scanned",
			zap.Int("page", page),
			zap.Int("containers", total),
			zap.Int("kept", len(kept)),
		)

		if len(stubs) >= maxStubs {
			s.logger.Info("stub safety ceiling reached, stopping scan", zap.Int("stubs", len(stubs)))
			break
		}
		if len(kept) == 0 && !oldest.IsZero() && oldest.Before(filterDate) {
			s.logger.Debug("entire page older than filter, stopping scan",
				zap.Int("page", page), zap.Time("oldest", oldest))
			break
		}
	}
	return stubs, nil
}

// scanPage extracts all candidate containers from one rendered listing page.
// Returns the kept stubs, the oldest parsed date seen, and the container count.
func (s *Scanner) scanPage(html string, filterDate time.Time) ([]pncp.CandidateStub, time.Time, int, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader([]byte(html)))
	if err != nil {
		return nil, time.Time{}, 0, fmt.Errorf("parse listing html: %w", err)
	}

	containers := doc.Find("a.br-item")
	var (
		kept   []pncp.CandidateStub
		oldest time.Time
	)
	containers.Each(func(_ int, sel *goquery.Selection) {
		stub, ok := s.extractStub(sel)
		if !ok {
			return
		}
		date, parsed := pncp.ParseDate(stub.DeclaredUpdatedAt)
		if parsed {
			if oldest.IsZero() || date.Before(oldest) {
				oldest = date
			}
			if date.Before(filterDate) {
				return
			}
		}
		kept = append(kept, stub)
	})
	return kept, oldest, containers.Length(), nil
}

// extractStub builds a CandidateStub from one listing container. Containers
// without a resolvable natural id are skipped.
func (s *Scanner) extractStub(sel *goquery.Selection) (pncp.CandidateStub, bool) {
	href, _ := sel.Attr("href")
	m := editaisPathRe.FindStringSubmatch(href)
	if m == nil || m[1] == "" {
		return pncp.CandidateStub{}, false
	}
	naturalID := strings.TrimSuffix(m[1], "/")

	rawText := joinedText(sel)
	declared := ""
	if dm := listingDateRe.FindStringSubmatch(rawText); dm != nil {
		declared = pncp.NormalizeDate(strings.TrimSpace(dm[1]))
	}

	link := href
	if strings.HasPrefix(href, "/") {
		link = s.baseURL + href
	}
	return pncp.CandidateStub{
		NaturalID:         naturalID,
		DeclaredUpdatedAt: declared,
		RawText:           rawText,
		Link:              link,
	}, true
}

// joinedText renders the container's text nodes separated by " | ", matching
// the labeled-field shape the regexes expect.
func joinedText(sel *goquery.Selection) string {
	var parts []string
	var walk func(*goquery.Selection)
	walk = func(s *goquery.Selection) {
		s.Contents().Each(func(_ int, node *goquery.Selection) {
			if goquery.NodeName(node) == "#text" {
				if text := strings.Join(strings.Fields(node.Text()), " "); text != "" {
					parts = append(parts, text)
				}
				return
			}
			walk(node)
		})
	}
	walk(sel)
	return strings.Join(parts, " | ")
}

func truncateToDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
