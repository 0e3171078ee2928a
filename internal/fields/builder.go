// File: internal/fields/builder.go
package fields

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/Abensoft-Ltda/plugin-simulacao-sub000/api/schemas"
	"github.com/Abensoft-Ltda/plugin-simulacao-sub000/internal/helpers"
)

// Result is the outcome of a build: fields and errors are mutually
// exclusive. A non-empty error list always comes with an empty field map.
type Result struct {
	Fields map[string]string `json:"fields"`
	Errors []string          `json:"errors"`
}

// Failed reports whether validation rejected the input.
func (r Result) Failed() bool { return len(r.Errors) > 0 }

// state carries one build through the pipeline steps.
type state struct {
	raw    schemas.SimulationInput
	target map[string]string
	fields map[string]string
	errors []string

	// normalizedType is the accent-stripped lowercase property type, kept
	// around because the bank rules match on it, not on the display form.
	normalizedType string
}

func (s *state) addError(msg string) { s.errors = append(s.errors, msg) }

// step is one pure stage of the validation pipeline.
type step func(*state, bankRules)

// pipeline is the fixed stage order shared by every bank; bank differences
// live entirely in the bankRules tables.
var pipeline = []step{
	mapRawToTarget,
	checkRequired,
	buildFieldMap,
	normalizeStrings,
	normalizeBooleans,
	applyTransformations,
	validatePropertyType,
	runBankRules,
}

// Build converts a raw simulation input into bank-ready fields or a list of
// rejection reasons for the given bank. It is a pure transform: the input is
// never mutated and no side effects occur.
func Build(bank schemas.Bank, raw schemas.SimulationInput) Result {
	rules, ok := rulesFor(bank)
	if !ok {
		return Result{Fields: map[string]string{}, Errors: []string{fmt.Sprintf("Instituição não suportada: %s", bank)}}
	}

	s := &state{
		raw:    raw,
		target: make(map[string]string),
		fields: make(map[string]string),
	}

	for i, stage := range pipeline {
		stage(s, rules)
		// The required-field check short-circuits: nothing else runs.
		if i == 1 && len(s.errors) > 0 {
			break
		}
	}

	if len(s.errors) > 0 {
		return Result{Fields: map[string]string{}, Errors: s.errors}
	}
	return Result{Fields: s.fields, Errors: []string{}}
}

// -- Pipeline Stages --

func mapRawToTarget(s *state, _ bankRules) {
	for sourceKey, targetKey := range directFieldMap {
		if v, ok := s.raw[sourceKey]; ok {
			s.target[targetKey] = stringify(v)
		}
	}
	// Legacy callers send the birth date under either name.
	if _, ok := s.target["data_nasc"]; !ok {
		if v, ok := s.raw["data_nascimento"]; ok {
			s.target["data_nasc"] = stringify(v)
		}
	}
}

func checkRequired(s *state, r bankRules) {
	for _, name := range r.required {
		if _, ok := s.target[name]; !ok {
			s.addError("Parâmetro obrigatório ausente: " + name)
		}
	}
}

func buildFieldMap(s *state, r bankRules) {
	for targetKey, fieldKey := range fieldKeyMap {
		if v, ok := s.target[targetKey]; ok {
			s.fields[fieldKey] = v
		}
	}
	if v, ok := s.raw["simulacao-target"]; ok && stringify(v) != "" {
		s.fields["target"] = stringify(v)
	} else {
		s.fields["target"] = r.defaultTarget
	}
	if cidade, ok := s.fields["cidade"]; ok {
		s.fields["cidade"] = helpers.StripAccents(cidade)
	}
}

// normalizeStrings lowercases every field except dates.
func normalizeStrings(s *state, _ bankRules) {
	for key, val := range s.fields {
		if strings.Contains(key, "data_") {
			continue
		}
		s.fields[key] = strings.ToLower(val)
	}
}

func normalizeBooleans(s *state, _ bankRules) {
	switch s.fields["beneficiado_fgts"] {
	case "true", "sim", "on", "s":
		s.fields["beneficiado_fgts"] = "sim"
	default:
		s.fields["beneficiado_fgts"] = "nao"
	}
}

var propertyTypeClean = regexp.MustCompile(`[^a-z\s'\x{2019}]`)

// applyTransformations runs the date, property-type and currency rewrites.
// Numeric coercion failures collapse into a single generic error instead of
// propagating per-field parse noise.
func applyTransformations(s *state, _ bankRules) {
	if v, ok := s.fields["data_nascimento"]; ok {
		s.fields["data_nascimento"] = helpers.NormalizeDateBR(v)
	}

	if v, ok := s.fields["tipo_imovel"]; ok {
		normalized := strings.ToLower(helpers.StripAccents(v))
		normalized = helpers.CleanText(propertyTypeClean.ReplaceAllString(normalized, ""))
		s.normalizedType = normalized
		s.fields["tipo_imovel"] = normalized
	}

	numericOK := true
	for _, key := range []string{"valor_imovel", "renda_familiar", "valor_reforma"} {
		v, ok := s.fields[key]
		if !ok || v == "" {
			continue
		}
		cents, ok := helpers.ToCents(v)
		if !ok {
			numericOK = false
			continue
		}
		s.fields[key] = cents
	}
	if !numericOK {
		s.addError("Campos numéricos (renda, valor_reforma) contêm valores inválidos.")
	}
}

// validatePropertyType resolves the normalized type against the closed
// property-type table, producing the display form and its category.
func validatePropertyType(s *state, _ bankRules) {
	pt, ok := propertyTypes[s.normalizedType]
	if !ok {
		s.addError(fmt.Sprintf("Tipo de imóvel inválido: %s", s.normalizedType))
		return
	}
	s.fields["tipo_imovel"] = pt.Display
	s.fields["categoria_imovel"] = pt.Category
}

func runBankRules(s *state, r bankRules) {
	for _, rule := range r.specific {
		rule(s)
	}
}

// stringify renders a raw input value the way the form fillers expect.
func stringify(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(t)
	case bool:
		return strconv.FormatBool(t)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case int:
		return strconv.Itoa(t)
	case int64:
		return strconv.FormatInt(t, 10)
	default:
		return strings.TrimSpace(fmt.Sprintf("%v", v))
	}
}
