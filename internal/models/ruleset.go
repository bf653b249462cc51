package models

import (
	"bytes"
	"encoding/json"
	"strings"
)

// RuleSetRequest creates or replaces a stored rule set.
type RuleSetRequest struct {
	Name        string          `json:"nome"`
	Version     string          `json:"versao"`
	Description string          `json:"descricao"`
	Active      bool            `json:"ativo"`
	Rules       json.RawMessage `json:"regras"`
}

// Normalize trims text fields and defaults missing rules to an empty object.
func (r *RuleSetRequest) Normalize() {
	r.Name = strings.TrimSpace(r.Name)
	r.Version = strings.TrimSpace(r.Version)
	r.Description = strings.TrimSpace(r.Description)
	if raw := bytes.TrimSpace(r.Rules); len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		r.Rules = json.RawMessage("{}")
	}
}

// Validate checks the name and that the rules are a JSON object.
func (r *RuleSetRequest) Validate() map[string]string {
	errors := map[string]string{}
	if strings.TrimSpace(r.Name) == "" {
		errors["nome"] = "Informe um nome para a regra."
	}
	var doc map[string]json.RawMessage
	if err := json.Unmarshal(r.Rules, &doc); err != nil || doc == nil {
		errors["regras"] = "JSON invalido: a estrutura deve ser um objeto JSON."
	}
	return errors
}

// VersionOrNil returns nil for an empty version.
func (r *RuleSetRequest) VersionOrNil() *string {
	return optional(r.Version)
}

// DescriptionOrNil returns nil for an empty description.
func (r *RuleSetRequest) DescriptionOrNil() *string {
	return optional(r.Description)
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
