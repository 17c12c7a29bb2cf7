// Package pncpapi implements the client for the PNCP structured API and maps
// its loosely-typed JSON payloads into validated structs at this one boundary.
package pncpapi

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"go.uber.org/zap"

	"github.com/licitatech/pncp-harvester/internal/pncp"
)

// Client calls the four per-purchase endpoints plus the organization lookup.
type Client struct {
	baseURL string
	fetcher pncp.Fetcher
	logger  *zap.Logger
}

// New builds a Client. baseURL is the API root, e.g.
// https://pncp.gov.br/api/pncp/v1.
func New(baseURL string, fetcher pncp.Fetcher, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{baseURL: baseURL, fetcher: fetcher, logger: logger}
}

// ListItems returns the line items of a purchase.
func (c *Client) ListItems(ctx context.Context, orgID string, year, sequence int) ([]Item, error) {
	var dtos []itemDTO
	url := fmt.Sprintf("%s/orgaos/%s/compras/%d/%d/itens", c.baseURL, orgID, year, sequence)
	if err := c.getJSON(ctx, url, &dtos); err != nil {
		return nil, err
	}
	items := make([]Item, 0, len(dtos))
	for _, d := range dtos {
		items = append(items, Item{
			Sequence:           d.NumeroItem,
			Description:        d.Descricao,
			Quantity:           d.Quantidade,
			UnitValue:          d.ValorUnitarioEstimado,
			TotalValue:         d.ValorTotal,
			JudgmentCriterion:  d.CriterioJulgamentoNome,
			Status:             d.SituacaoCompraItemNome,
			ConfidentialBudget: d.OrcamentoSigiloso,
		})
	}
	return items, nil
}

// ListHistory returns the maintenance log of a purchase, in source order.
func (c *Client) ListHistory(ctx context.Context, orgID string, year, sequence int) ([]HistoryEntry, error) {
	var dtos []historyDTO
	url := fmt.Sprintf("%s/orgaos/%s/compras/%d/%d/historico", c.baseURL, orgID, year, sequence)
	if err := c.getJSON(ctx, url, &dtos); err != nil {
		return nil, err
	}
	entries := make([]HistoryEntry, 0, len(dtos))
	for _, d := range dtos {
		entries = append(entries, HistoryEntry{
			OccurredAt: d.LogManutencaoDataInclusao,
			ActorName:  d.UsuarioNome,
			EventType:  d.TipoLogManutencaoNome,
		})
	}
	return entries, nil
}

// ListFiles returns the attachment descriptors of a purchase.
func (c *Client) ListFiles(ctx context.Context, orgID string, year, sequence int) ([]FileRef, error) {
	var dtos []fileDTO
	url := fmt.Sprintf("%s/orgaos/%s/compras/%d/%d/arquivos", c.baseURL, orgID, year, sequence)
	if err := c.getJSON(ctx, url, &dtos); err != nil {
		return nil, err
	}
	files := make([]FileRef, 0, len(dtos))
	for _, d := range dtos {
		files = append(files, FileRef{
			Title:    d.Titulo,
			URL:      d.URL,
			ByteSize: d.Tamanho,
		})
	}
	return files, nil
}

// GetOrganization returns the issuing body's registry metadata.
func (c *Client) GetOrganization(ctx context.Context, orgID string) (*Organization, error) {
	var dto orgDTO
	url := fmt.Sprintf("%s/orgaos/%s", c.baseURL, orgID)
	if err := c.getJSON(ctx, url, &dto); err != nil {
		return nil, err
	}
	return &Organization{
		Name:         dto.RazaoSocial,
		Municipality: dto.Municipio,
		State:        dto.UF,
	}, nil
}

func (c *Client) getJSON(ctx context.Context, url string, out any) error {
	resp, err := c.fetcher.Fetch(ctx, url)
	if err != nil {
		return fmt.Errorf("api get: %w", err)
	}
	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return fmt.Errorf("api get %s: status %d", url, resp.StatusCode)
	}
	if err := json.Unmarshal(resp.Body, out); err != nil {
		return fmt.Errorf("api decode %s: %w", url, err)
	}
	return nil
}
