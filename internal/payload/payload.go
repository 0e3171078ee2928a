// File: internal/payload/payload.go
package payload

import (
	"fmt"

	jsoniter "github.com/json-iterator/go"

	"github.com/Abensoft-Ltda/plugin-simulacao-sub000/api/schemas"
	"github.com/Abensoft-Ltda/plugin-simulacao-sub000/internal/helpers"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Status is the terminal state carried by a payload.
type Status string

const (
	StatusSuccess Status = "success"
	StatusFailure Status = "failure"
)

// Entry is one financing offer. Every field is nullable: numbers where the
// source text parsed, sanitized text where it did not, null where absent.
type Entry struct {
	TipoAmortizacao any `json:"tipo_amortizacao"`
	Prazo           any `json:"prazo"`
	ValorTotal      any `json:"valor_total"`
	ValorEntrada    any `json:"valor_entrada"`
	JurosNominais   any `json:"juros_nominais"`
	JurosEfetivos   any `json:"juros_efetivos"`
}

// fieldAliases maps both the domestic and the English naming convention onto
// the canonical entry keys.
var fieldAliases = map[string]string{
	"tipo_amortizacao": "tipo_amortizacao",
	"amortizationtype": "tipo_amortizacao",
	"amortization":     "tipo_amortizacao",
	"prazo":            "prazo",
	"term":             "prazo",
	"valor_total":      "valor_total",
	"totalvalue":       "valor_total",
	"valor_entrada":    "valor_entrada",
	"entryvalue":       "valor_entrada",
	"juros_nominais":   "juros_nominais",
	"nominalrate":      "juros_nominais",
	"juros_efetivos":   "juros_efetivos",
	"effectiverate":    "juros_efetivos",
}

// Payload is the canonical result envelope for one bank run. Entries keep
// insertion order (offer discovery order). It serializes exactly once; the
// envelope is not mutated after that.
type Payload struct {
	bank    schemas.Bank
	status  Status
	entries []Entry
}

// New creates an empty successful payload for the given bank.
func New(bank schemas.Bank) *Payload {
	return &Payload{bank: bank, status: StatusSuccess}
}

// Bank returns the payload's bank identifier.
func (p *Payload) Bank() schemas.Bank { return p.bank }

// Status returns the current payload status.
func (p *Payload) Status() Status { return p.status }

// Len returns the number of accumulated entries.
func (p *Payload) Len() int { return len(p.entries) }

// Entries returns a copy of the accumulated entries.
func (p *Payload) Entries() []Entry {
	out := make([]Entry, len(p.entries))
	copy(out, p.entries)
	return out
}

// AddEntry appends one offer. Accepted shapes:
//   - string: a human-readable message, stored in tipo_amortizacao only;
//   - map[string]any: a partial record resolved through the alias table;
//   - Entry / *Entry: appended as-is.
// Anything else is ignored with a false return.
func (p *Payload) AddEntry(raw any) bool {
	switch v := raw.(type) {
	case string:
		p.entries = append(p.entries, Entry{TipoAmortizacao: helpers.CleanText(v)})
	case map[string]any:
		p.entries = append(p.entries, entryFromRecord(v))
	case Entry:
		p.entries = append(p.entries, v)
	case *Entry:
		if v == nil {
			return false
		}
		p.entries = append(p.entries, *v)
	default:
		return false
	}
	return true
}

// AddEntries appends a sequence of offers, preserving order.
func (p *Payload) AddEntries(raws []any) {
	for _, raw := range raws {
		p.AddEntry(raw)
	}
}

// AddFailure forces the payload into failure state and records the message
// as an entry. Repeated calls append additional entries.
func (p *Payload) AddFailure(msg string) {
	p.status = StatusFailure
	if msg == "" {
		msg = "Falha na simulação"
	}
	p.AddEntry(msg)
}

// MergeRawResults reconstitutes entries from a previously serialized form.
// It accepts either a bare entry sequence or an object with a "result"
// sequence.
func (p *Payload) MergeRawResults(raw []byte) error {
	var wrapper struct {
		Result []map[string]any `json:"result"`
	}
	if err := json.Unmarshal(raw, &wrapper); err == nil && wrapper.Result != nil {
		for _, rec := range wrapper.Result {
			p.AddEntry(rec)
		}
		return nil
	}

	var bare []map[string]any
	if err := json.Unmarshal(raw, &bare); err != nil {
		return fmt.Errorf("unrecognized raw result shape: %w", err)
	}
	for _, rec := range bare {
		p.AddEntry(rec)
	}
	return nil
}

// envelope is the stable wire shape: every entry always carries all six
// canonical keys, null when unpopulated.
type envelope struct {
	IF     schemas.Bank `json:"if"`
	Status Status       `json:"status"`
	Result []Entry      `json:"result"`
}

// ToJSON serializes the payload. The result slice is never null.
func (p *Payload) ToJSON() ([]byte, error) {
	env := envelope{IF: p.bank, Status: p.status, Result: p.entries}
	if env.Result == nil {
		env.Result = []Entry{}
	}
	out, err := json.Marshal(env)
	if err != nil {
		return nil, fmt.Errorf("failed to serialize payload for %q: %w", p.bank, err)
	}
	return out, nil
}

// FromJSON reconstitutes a payload from its serialized envelope, keeping
// bank, status and entry order intact.
func FromJSON(raw []byte) (*Payload, error) {
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("unrecognized payload envelope: %w", err)
	}
	if env.IF == "" {
		return nil, fmt.Errorf("payload envelope carries no bank identifier")
	}
	p := New(env.IF)
	if env.Status == StatusFailure {
		p.status = StatusFailure
	}
	p.entries = env.Result
	return p, nil
}

// entryFromRecord resolves aliases and coerces values onto a canonical Entry.
func entryFromRecord(rec map[string]any) Entry {
	var e Entry
	for key, val := range rec {
		canonical, ok := fieldAliases[helpers.SanitizeKey(key)]
		if !ok {
			continue
		}
		switch canonical {
		case "tipo_amortizacao":
			e.TipoAmortizacao = coerceText(val)
		case "prazo":
			e.Prazo = coerceTerm(val)
		case "valor_total":
			e.ValorTotal = coerceMoney(val)
		case "valor_entrada":
			e.ValorEntrada = coerceMoney(val)
		case "juros_nominais":
			e.JurosNominais = coerceMoney(val)
		case "juros_efetivos":
			e.JurosEfetivos = coerceMoney(val)
		}
	}
	return e
}

func coerceText(val any) any {
	if val == nil {
		return nil
	}
	if s, ok := val.(string); ok {
		if cleaned := helpers.CleanText(s); cleaned != "" {
			return cleaned
		}
		return nil
	}
	return fmt.Sprintf("%v", val)
}

// coerceTerm integer-parses terms, falling back to sanitized text.
func coerceTerm(val any) any {
	switch v := val.(type) {
	case nil:
		return nil
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	case string:
		if n, ok := helpers.ParseIntLoose(v); ok {
			return n
		}
		if cleaned := helpers.CleanText(v); cleaned != "" {
			return cleaned
		}
		return nil
	default:
		return fmt.Sprintf("%v", val)
	}
}

// coerceMoney parses Brazilian-locale decimals, falling back to sanitized
// text when the source never contained a number.
func coerceMoney(val any) any {
	switch v := val.(type) {
	case nil:
		return nil
	case float64:
		return v
	case int:
		return float64(v)
	case int64:
		return float64(v)
	case string:
		if f, ok := helpers.ParseMoneyBR(v); ok {
			return f
		}
		if cleaned := helpers.CleanText(v); cleaned != "" {
			return cleaned
		}
		return nil
	default:
		return fmt.Sprintf("%v", val)
	}
}
