package pncpapi

// Wire DTOs for the PNCP public API. The upstream payloads are loosely typed;
// everything downstream of this package operates on the translated structs
// returned by Client.

type itemDTO struct {
	NumeroItem             int     `json:"numeroItem"`
	Descricao              string  `json:"descricao"`
	Quantidade             float64 `json:"quantidade"`
	ValorUnitarioEstimado  float64 `json:"valorUnitarioEstimado"`
	ValorTotal             float64 `json:"valorTotal"`
	CriterioJulgamentoNome string  `json:"criterioJulgamentoNome"`
	SituacaoCompraItemNome string  `json:"situacaoCompraItemNome"`
	OrcamentoSigiloso      bool    `json:"orcamentoSigiloso"`
}

type historyDTO struct {
	LogManutencaoDataInclusao string `json:"logManutencaoDataInclusao"`
	UsuarioNome               string `json:"usuarioNome"`
	TipoLogManutencaoNome     string `json:"tipoLogManutencaoNome"`
}

type fileDTO struct {
	Titulo  string `json:"titulo"`
	URL     string `json:"url"`
	Tamanho int64  `json:"tamanho"`
}

type orgDTO struct {
	RazaoSocial string `json:"razaoSocial"`
	Municipio   string `json:"municipio"`
	UF          string `json:"uf"`
}

// Item is one line item of a purchase, as reported by the items endpoint.
type Item struct {
	Sequence           int
	Description        string
	Quantity           float64
	UnitValue          float64
	TotalValue         float64
	JudgmentCriterion  string
	Status             string
	ConfidentialBudget bool
}

// HistoryEntry is one maintenance-log event.
type HistoryEntry struct {
	OccurredAt string
	ActorName  string
	EventType  string
}

// FileRef describes one downloadable document.
type FileRef struct {
	Title    string
	URL      string
	ByteSize int64
}

// Organization is the issuing body's registry metadata.
type Organization struct {
	Name         string
	Municipality string
	State        string
}
