// File: internal/fields/builder_test.go
package fields

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Abensoft-Ltda/plugin-simulacao-sub000/api/schemas"
)

func validCaixaInput() schemas.SimulationInput {
	return schemas.SimulationInput{
		"target":           "Caixa",
		"tipo_imovel":      "Aquisição de Imóvel Novo",
		"valor_imovel":     450000,
		"uf":               "SC",
		"cidade":           "Chapeco",
		"renda_familiar":   9000,
		"data_nasc":        "15/08/1992",
		"beneficiado_fgts": "S",
	}
}

func TestBuildValidCaixaInput(t *testing.T) {
	res := Build(schemas.BankCaixa, validCaixaInput())
	require.Empty(t, res.Errors)

	assert.Equal(t, "Aquisição de Imóvel Novo", res.Fields["tipo_imovel"])
	assert.Equal(t, "residencial", res.Fields["categoria_imovel"])
	assert.Equal(t, "sim", res.Fields["beneficiado_fgts"])
	assert.Equal(t, "45000000", res.Fields["valor_imovel"])
	assert.Equal(t, "900000", res.Fields["renda_familiar"])
	assert.Equal(t, "15/08/1992", res.Fields["data_nascimento"])
	assert.Equal(t, "sc", res.Fields["uf"])
	assert.Equal(t, "chapeco", res.Fields["cidade"])
	assert.Equal(t, "caixa", res.Fields["target"])
}

func TestBuildBooleanFGTSCollapses(t *testing.T) {
	for raw, want := range map[any]string{
		true:  "sim",
		"sim": "sim",
		"on":  "sim",
		"S":   "sim",
		"nao": "nao",
		false: "nao",
	} {
		in := validCaixaInput()
		in["beneficiado_fgts"] = raw
		res := Build(schemas.BankCaixa, in)
		require.Empty(t, res.Errors)
		assert.Equal(t, want, res.Fields["beneficiado_fgts"], "raw=%v", raw)
	}
}

func TestBuildMissingRequiredShortCircuits(t *testing.T) {
	in := validCaixaInput()
	delete(in, "renda_familiar")
	delete(in, "cidade")

	res := Build(schemas.BankCaixa, in)
	require.True(t, res.Failed())
	assert.Empty(t, res.Fields)
	assert.Contains(t, res.Errors, "Parâmetro obrigatório ausente: renda_familiar")
	assert.Contains(t, res.Errors, "Parâmetro obrigatório ausente: cidade")
	// Short circuit: no downstream validation errors piggyback.
	for _, e := range res.Errors {
		assert.Contains(t, e, "Parâmetro obrigatório ausente")
	}
}

func TestBuildUnknownPropertyType(t *testing.T) {
	in := validCaixaInput()
	in["tipo_imovel"] = "Castelo Medieval"

	res := Build(schemas.BankCaixa, in)
	require.True(t, res.Failed())
	assert.Empty(t, res.Fields, "fields and errors are mutually exclusive")
	assert.Contains(t, res.Errors[0], "Tipo de imóvel inválido")
}

func TestBuildConstructionRequiresLotStatus(t *testing.T) {
	in := validCaixaInput()
	in["tipo_imovel"] = "Construção em Terreno Próprio"

	res := Build(schemas.BankCaixa, in)
	require.True(t, res.Failed())
	assert.Contains(t, res.Errors[0], "lote_alienado_hipotecado")

	in["status_lote"] = "nao"
	res = Build(schemas.BankCaixa, in)
	assert.Empty(t, res.Errors)
	assert.Equal(t, "nao", res.Fields["lote_alienado_hipotecado"])
}

func TestBuildPortabilityOnlyForUsedOrLoan(t *testing.T) {
	in := validCaixaInput()
	in["portabilidade"] = "Sim"

	res := Build(schemas.BankCaixa, in)
	require.True(t, res.Failed())
	assert.Contains(t, res.Errors[0], "portabilidade")

	in["tipo_imovel"] = "Aquisição de Imóvel Usado"
	res = Build(schemas.BankCaixa, in)
	assert.Empty(t, res.Errors)
}

func TestBuildCPFNeedsPhone(t *testing.T) {
	in := validCaixaInput()
	in["cpf"] = "12345678901"

	res := Build(schemas.BankCaixa, in)
	require.True(t, res.Failed())
	assert.Contains(t, res.Errors[0], "telefone")

	in["telefone_celular"] = "49999990000"
	res = Build(schemas.BankCaixa, in)
	assert.Empty(t, res.Errors)

	in["telefone_celular"] = "(49) 99999-0000"
	res = Build(schemas.BankCaixa, in)
	require.True(t, res.Failed())
	assert.Contains(t, res.Errors[0], "apenas dígitos")
}

func TestBuildNumericGarbageCollapsesToOneError(t *testing.T) {
	in := validCaixaInput()
	in["valor_imovel"] = "muito caro"
	in["renda_familiar"] = "pouca"

	res := Build(schemas.BankCaixa, in)
	require.True(t, res.Failed())
	count := 0
	for _, e := range res.Errors {
		if e == "Campos numéricos (renda, valor_reforma) contêm valores inválidos." {
			count++
		}
	}
	assert.Equal(t, 1, count)
}

func TestBuildDataNascimentoFallbackKey(t *testing.T) {
	in := validCaixaInput()
	delete(in, "data_nasc")
	in["data_nascimento"] = "1992-08-15"

	res := Build(schemas.BankCaixa, in)
	require.Empty(t, res.Errors)
	assert.Equal(t, "15/08/1992", res.Fields["data_nascimento"])
}

func TestBuildBB(t *testing.T) {
	in := validCaixaInput()
	in["target"] = "Banco do Brasil"
	in["cpf"] = "12345678901"
	in["telefone_celular"] = "49999990000"

	res := Build(schemas.BankBB, in)
	require.Empty(t, res.Errors)
	assert.Equal(t, "bb", res.Fields["target"])
	assert.Equal(t, "12345678901", res.Fields["cpf"])
}

func TestBuildTermKeepsCanonicalKey(t *testing.T) {
	in := validCaixaInput()
	in["target"] = "Banco do Brasil"
	in["cpf"] = "12345678901"
	in["telefone_celular"] = "49999990000"
	in["prazo_financiamento"] = 120

	res := Build(schemas.BankBB, in)
	require.Empty(t, res.Errors)
	assert.Equal(t, "120", res.Fields["prazo_financiamento"])
	assert.NotContains(t, res.Fields, "prazo")
}

func TestBuildUnknownBank(t *testing.T) {
	res := Build(schemas.Bank("bradesco"), validCaixaInput())
	require.True(t, res.Failed())
	assert.Contains(t, res.Errors[0], "não suportada")
}

func TestBuildAccentedCity(t *testing.T) {
	in := validCaixaInput()
	in["cidade"] = "São José"
	res := Build(schemas.BankCaixa, in)
	require.Empty(t, res.Errors)
	assert.Equal(t, "sao jose", res.Fields["cidade"])
}
