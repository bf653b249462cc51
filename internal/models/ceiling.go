package models

import (
	"strings"

	"github.com/Rafael-Renck/sistema-preco/internal/catalog"
	"github.com/Rafael-Renck/sistema-preco/internal/ceilings"
	"github.com/Rafael-Renck/sistema-preco/internal/money"
)

// ── Ceilings (tetos) ─────────────────────────────────────────

// CeilingPage is one page of the admin ceiling list.
type CeilingPage struct {
	Items   []catalog.Ceiling `json:"itens"`
	Total   int               `json:"total"`
	Page    int               `json:"page"`
	PerPage int               `json:"per_page"`
	Pages   int               `json:"pages"`
}

// CeilingPerPage is the admin list page size.
const CeilingPerPage = 25

// CeilingPreviewRequest submits the lines of a ceiling import.
type CeilingPreviewRequest struct {
	Rows []ceilings.Row `json:"linhas"`
}

func (r *CeilingPreviewRequest) Validate() map[string]string {
	errors := map[string]string{}
	if len(r.Rows) == 0 {
		errors["linhas"] = "Envie ao menos uma linha"
	}
	return errors
}

// CeilingImportRequest confirms a preview.
type CeilingImportRequest struct {
	Token string `json:"token"`
}

func (r *CeilingImportRequest) Validate() map[string]string {
	errors := map[string]string{}
	if strings.TrimSpace(r.Token) == "" {
		errors["token"] = "Token is required"
	}
	return errors
}

// CeilingImportResult reports an import.
type CeilingImportResult struct {
	Total    int `json:"total"`
	Inserted int `json:"inseridos"`
	Updated  int `json:"atualizados"`
	Errors   int `json:"erros"`
}

// ── Tables ───────────────────────────────────────────────────

// UCORequest sets the UCO unit value of a cbhpm table. A null value clears it.
type UCORequest struct {
	Value money.Amount `json:"uco_valor"`
}

func (r *UCORequest) Validate() map[string]string {
	errors := map[string]string{}
	if r.Value.Valid && r.Value.Decimal.IsNegative() {
		errors["uco_valor"] = "uco_valor must not be negative"
	}
	return errors
}
