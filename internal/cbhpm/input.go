// Package cbhpm computes CBHPM procedure prices: the five-part breakdown of
// a single item, the bundle rules that depend on how items rank against
// each other, and the check against per-code price ceilings.
//
// The package reads catalog data through small interfaces and receives the
// rule set as an argument, so every computation can be exercised in memory.
package cbhpm

import (
	"github.com/shopspring/decimal"

	"github.com/Rafael-Renck/sistema-preco/internal/catalog"
)

// Input is the data one breakdown is computed from: a catalog row merged
// with whatever the caller chose to override. Inputs are built fresh per
// item and never written back to the catalog.
type Input struct {
	Code        string
	Description string

	PorteCode     string
	PorteFraction decimal.NullDecimal
	// FractionOverride marks PorteFraction as supplied by the caller, which
	// allows fractions below 1.
	FractionOverride bool
	PorteValue       decimal.NullDecimal
	TotalPorte       decimal.NullDecimal

	FilmValue  decimal.NullDecimal
	Incidences decimal.NullDecimal
	TotalFilm  decimal.NullDecimal

	UCOCount decimal.NullDecimal
	TotalUCO decimal.NullDecimal

	AnesthesiaPorteCode string
	AnesthesiaValue     decimal.NullDecimal
	TotalAnesthesia     decimal.NullDecimal

	AssistantCount  *int
	TotalAssistants decimal.NullDecimal
	AssistantTotals [catalog.MaxAssistantSlots]decimal.NullDecimal
}

// InputFromItem copies the priced fields of a catalog row.
func InputFromItem(item *catalog.ProcedureItem) Input {
	return Input{
		Code:                item.Code,
		Description:         item.Description,
		PorteCode:           item.PorteCode,
		PorteFraction:       item.PorteFraction,
		PorteValue:          item.PorteValue,
		TotalPorte:          item.TotalPorte,
		FilmValue:           item.FilmValue,
		Incidences:          item.Incidences,
		TotalFilm:           item.TotalFilm,
		UCOCount:            item.UCOCount,
		TotalUCO:            item.TotalUCO,
		AnesthesiaPorteCode: item.AnesthesiaPorteCode,
		AnesthesiaValue:     item.AnesthesiaPorteValue,
		TotalAnesthesia:     item.TotalAnesthesia,
		AssistantCount:      item.AssistantCount,
		TotalAssistants:     item.TotalAssistants,
		AssistantTotals:     item.AssistantTotals,
	}
}

// explicitlyNoAssistants reports whether the item declares zero assistants.
func (in Input) explicitlyNoAssistants() bool {
	return in.AssistantCount != nil && *in.AssistantCount == 0
}

// buildInput merges the catalog row for code (nil when the code is not in
// any table) with the request overrides.
func buildInput(code string, item *catalog.ProcedureItem, req *prepared, single bool) Input {
	var in Input
	if item != nil {
		in = InputFromItem(item)
	} else {
		in = Input{
			PorteCode:           req.PorteCode,
			PorteValue:          req.PorteValue.NullDecimal,
			FilmValue:           req.FilmValue.NullDecimal,
			Incidences:          req.Incidences.NullDecimal,
			UCOCount:            req.UCOCount.NullDecimal,
			AnesthesiaPorteCode: req.AnesthesiaPorteCode,
			AnesthesiaValue:     req.AnesthesiaValue.NullDecimal,
			AssistantCount:      req.assistantCount,
		}
		for i, v := range req.assistantTotals() {
			in.AssistantTotals[i] = v.NullDecimal
		}
		if single {
			in.Description = req.Description
		}
	}
	in.Code = code

	if req.PorteFraction.Valid {
		in.PorteFraction = req.PorteFraction.NullDecimal
		in.FractionOverride = true
	}
	if req.PorteTable != "" {
		in.PorteValue = decimal.NullDecimal{}
		in.TotalPorte = decimal.NullDecimal{}
	}
	if req.AnesthesiaTable != "" {
		in.AnesthesiaValue = decimal.NullDecimal{}
		in.TotalAnesthesia = decimal.NullDecimal{}
	}
	if req.FilmValue.Valid {
		in.FilmValue = req.FilmValue.NullDecimal
		in.TotalFilm = decimal.NullDecimal{}
	}
	if req.UCOValue.Valid {
		in.TotalUCO = decimal.NullDecimal{}
	}
	return in
}
