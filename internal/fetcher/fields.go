package fetcher

import (
	"regexp"
	"strings"
)

// Labeled-field patterns run over the rendered detail page's plain text. Each
// one is independently optional: no match leaves the field empty.
var (
	publishedAtRe    = regexp.MustCompile(`(?i)Data\s+de\s+divulgação\s+no\s+PNCP[:\s]*(\d{2}/\d{2}/\d{4})`)
	publishedAtAltRe = regexp.MustCompile(`(?i)divulgação\s+no\s+PNCP[:\s]*(\d{2}/\d{2}/\d{4})`)
	lastUpdatedRe    = regexp.MustCompile(`(?i)Última\s+atualização[:\s]*(\d{2}/\d{2}/\d{4})`)
	orgNameRe        = regexp.MustCompile(`(?i)Órgão[:\s]*([^\n\r]{1,200})`)
	locationRe       = regexp.MustCompile(`(?i)Local[:\s]*([^\n\r]{1,100})`)
	modalityRe       = regexp.MustCompile(`(?i)Modalidade\s+da\s+contratação[:\s]*([^\n\r]{1,100})`)
	legalBasisRe     = regexp.MustCompile(`(?i)Amparo\s+legal[:\s]*([^\n\r]{1,200})`)
	disputeModeRe    = regexp.MustCompile(`(?i)Modo\s+de\s+disputa[:\s]*([^\n\r]{1,100})`)
	proposalStartRe  = regexp.MustCompile(`(?i)Data\s+de\s+início\s+de\s+recebimento\s+de\s+propostas[:\s]*(\d{2}/\d{2}/\d{4}\s+\d{2}:\d{2})`)
	proposalEndRe    = regexp.MustCompile(`(?i)Data\s+fim\s+de\s+recebimento\s+de\s+propostas[:\s]*(\d{2}/\d{2}/\d{4}\s+\d{2}:\d{2})`)
	sessionOpenRe    = regexp.MustCompile(`(?i)Data\s+de\s+abertura\s+das?\s+propostas[:\s]*(\d{2}/\d{2}/\d{4}(?:\s+\d{2}:\d{2})?)`)
	sessionOpenAltRe = regexp.MustCompile(`(?i)Data\s+da\s+sessão[:\s]*(\d{2}/\d{2}/\d{4}(?:\s+\d{2}:\d{2})?)`)
	statusRe         = regexp.MustCompile(`(?i)Situação[:\s]*([^\n\r]{1,100})`)
	objectRe         = regexp.MustCompile(`(?i)Objeto[:\s]*([^\n\r]{1,500})`)
)

// pageFields holds everything the page path can contribute to a record.
type pageFields struct {
	PublishedAt       string
	LastUpdatedAt     string
	OrgName           string
	Location          string
	Modality          string
	LegalBasis        string
	DisputeMode       string
	ProposalStart     string
	ProposalEnd       string
	SessionOpeningAt  string
	Status            string
	ObjectDescription string
}

// extractPageFields runs the full battery over the page text.
func extractPageFields(text string) pageFields {
	return pageFields{
		PublishedAt:       firstMatch(text, publishedAtRe, publishedAtAltRe),
		LastUpdatedAt:     firstMatch(text, lastUpdatedRe),
		OrgName:           firstMatch(text, orgNameRe),
		Location:          firstMatch(text, locationRe),
		Modality:          firstMatch(text, modalityRe),
		LegalBasis:        firstMatch(text, legalBasisRe),
		DisputeMode:       firstMatch(text, disputeModeRe),
		ProposalStart:     firstMatch(text, proposalStartRe),
		ProposalEnd:       firstMatch(text, proposalEndRe),
		SessionOpeningAt:  firstMatch(text, sessionOpenRe, sessionOpenAltRe),
		Status:            firstMatch(text, statusRe),
		ObjectDescription: firstMatch(text, objectRe),
	}
}

// firstMatch returns the trimmed first capture group of the first pattern that
// matches, or "" when none do.
func firstMatch(text string, patterns ...*regexp.Regexp) string {
	for _, re := range patterns {
		if m := re.FindStringSubmatch(text); m != nil {
			return strings.TrimSpace(m[1])
		}
	}
	return ""
}
