// File: internal/fields/rules.go
package fields

import (
	"strings"

	"github.com/Abensoft-Ltda/plugin-simulacao-sub000/api/schemas"
	"github.com/Abensoft-Ltda/plugin-simulacao-sub000/internal/helpers"
)

// directFieldMap maps raw request keys onto the intermediate target keys.
var directFieldMap = map[string]string{
	"beneficiado_fgts":        "beneficiado_fgts",
	"cidade":                  "cidade",
	"cpf":                     "cpf",
	"data_beneficio":          "data_beneficio",
	"data_nasc":               "data_nasc",
	"leal_cad_atendimento_id": "leal_cad_atendimento_id",
	"leal_cidade_id":          "leal_cidade_id",
	"leal_if_id":              "leal_if_id",
	"leal_uf_id":              "leal_uf_id",
	"leal_usr_cliente_id":     "leal_usr_cliente_id",
	"multiplos_compradores":   "multiplos_compradores",
	"opcao_financiamento":     "opcao_financiamento",
	"portabilidade":           "portabilidade",
	"possui_imovel":           "possui_imovel",
	"prazo_financiamento":     "prazo_financiamento",
	"renda_familiar":          "renda_familiar",
	"simulacao_id":            "id",
	"status":                  "status",
	"status_lote":             "status_lote",
	"target":                  "target",
	"telefone_celular":        "telefone_celular",
	"tipo_imovel":             "tipo_imovel",
	"uf":                      "uf",
	"valor_entrada":           "valor_entrada",
	"valor_fgts":              "fgts_valor_imovel",
	"valor_imovel":            "valor_imovel",
	"valor_reforma":           "valor_reforma",
}

// fieldKeyMap maps intermediate target keys onto the final field names the
// navigators consume.
var fieldKeyMap = map[string]string{
	"beneficiado_fgts":        "beneficiado_fgts",
	"cidade":                  "cidade",
	"cpf":                     "cpf",
	"data_beneficio":          "data_beneficio",
	"data_nasc":               "data_nascimento",
	"fgts_valor_imovel":       "fgts_valor_imovel",
	"id":                      "id",
	"leal_cad_atendimento_id": "leal_cad_atendimento_id",
	"leal_cidade_id":          "leal_cidade_id",
	"leal_if_id":              "leal_if_id",
	"leal_uf_id":              "leal_uf_id",
	"leal_usr_cliente_id":     "leal_usr_cliente_id",
	"multiplos_compradores":   "multiplos_compradores",
	"opcao_financiamento":     "opcao_financiamento",
	"portabilidade":           "portabilidade_credito",
	"possui_imovel":           "possui_imovel",
	"prazo_financiamento":     "prazo_financiamento",
	"renda_familiar":          "renda_familiar",
	"status":                  "status",
	"status_lote":             "lote_alienado_hipotecado",
	"telefone_celular":        "telefone_celular",
	"tipo_imovel":             "tipo_imovel",
	"uf":                      "uf",
	"valor_entrada":           "valor_entrada",
	"valor_imovel":            "valor_imovel",
	"valor_reforma":           "valor_reforma",
}

// propertyType pairs the display form shown on the bank sites with its
// financing category.
type propertyType struct {
	Display  string
	Category string
}

// propertyTypes is the closed table of accepted property types, keyed by the
// normalized (lowercase, accent-stripped) form.
var propertyTypes = map[string]propertyType{
	"aquisicao de imovel na planta":     {"Aquisição de Imóvel na Planta", "residencial"},
	"aquisicao de imovel novo":          {"Aquisição de Imóvel Novo", "residencial"},
	"aquisicao de imovel usado":         {"Aquisição de Imóvel Usado", "residencial"},
	"imoveis caixa":                     {"Imóveis Caixa", "residencial"},
	"aquisicao de terreno":              {"Aquisição de Terreno", "residencial"},
	"aquisicao de terreno e construcao": {"Aquisição de Terreno e Construção", "residencial"},
	"construcao em terreno proprio":     {"Construção em Terreno Próprio", "residencial"},
	"aquisicao de sala comercial":       {"Aquisição de Sala Comercial", "comercial"},
	"aquisicao de terreno comercial":    {"Aquisição de Terreno Comercial", "comercial"},
}

// rule is one bank-specific cross-field validation.
type rule func(*state)

// bankRules parameterizes the shared pipeline per bank.
type bankRules struct {
	defaultTarget string
	required      []string
	specific      []rule
}

var banks = map[schemas.Bank]bankRules{
	schemas.BankCaixa: {
		defaultTarget: "caixa",
		required:      []string{"tipo_imovel", "valor_imovel", "uf", "renda_familiar", "data_nasc", "cidade"},
		specific:      []rule{ruleReform, rulePortability, ruleConstruction, ruleCPFPhone},
	},
	schemas.BankBB: {
		defaultTarget: "bb",
		required:      []string{"tipo_imovel", "valor_imovel", "uf", "renda_familiar", "data_nasc", "cidade"},
		specific:      []rule{ruleCPFPhone},
	},
}

func rulesFor(bank schemas.Bank) (bankRules, bool) {
	r, ok := banks[bank]
	return r, ok
}

// -- Bank Rules --
// All rules match on the normalized property type, never on the display
// form, so accent and case differences cannot change the outcome.

// ruleReform: reform financing needs a reform amount and a portability flag
// and only applies to residential properties.
func ruleReform(s *state) {
	if !strings.Contains(s.normalizedType, "reforma") {
		return
	}
	if s.fields["valor_reforma"] == "" || s.fields["portabilidade_credito"] == "" {
		s.addError("'valor_reforma' e 'possui_financiamento_habitacional' são necessários para a opção de financiamento de reforma.")
	}
	if cat := s.fields["categoria_imovel"]; cat != "" && cat != "residencial" {
		s.addError("A opção de reforma apenas está disponível para imóveis residenciais.")
	}
}

// rulePortability: credit portability only applies to used properties or
// property-secured loans.
func rulePortability(s *state) {
	if !strings.Contains(s.fields["portabilidade_credito"], "sim") {
		return
	}
	if !strings.Contains(s.normalizedType, "usado") && !strings.Contains(s.normalizedType, "emprestimo") {
		s.addError("Para portabilidade, as opções permitidas são 'Aquisição de Imóvel Usado' ou 'Empréstimo Garantido por Imóvel'.")
	}
}

// ruleConstruction: construction financing needs the lot-encumbrance flag
// and only applies to residential properties.
func ruleConstruction(s *state) {
	if !strings.Contains(s.normalizedType, "construcao") {
		return
	}
	if _, ok := s.fields["lote_alienado_hipotecado"]; !ok {
		s.addError("A chave 'lote_alienado_hipotecado' é obrigatória para a opção de financiamento de construção.")
	}
	if cat := s.fields["categoria_imovel"]; cat != "" && cat != "residencial" {
		s.addError("A opção de construção apenas está disponível para imóveis residenciais.")
	}
}

// ruleCPFPhone: a CPF, when present, must come with a phone number, and
// both must be all digits.
func ruleCPFPhone(s *state) {
	cpf, ok := s.fields["cpf"]
	if !ok || cpf == "" {
		return
	}
	phone := s.fields["telefone_celular"]
	if phone == "" {
		s.addError("CPF informado sem telefone celular correspondente.")
		return
	}
	if cpf != helpers.DigitsOnly(cpf) || phone != helpers.DigitsOnly(phone) {
		s.addError("CPF e telefone celular devem conter apenas dígitos.")
	}
}
