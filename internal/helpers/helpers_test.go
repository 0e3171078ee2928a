// File: internal/helpers/helpers_test.go
package helpers

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeText(t *testing.T) {
	assert.Equal(t, "aquisicao de imovel novo", NormalizeText("  Aquisição   de Imóvel Novo "))
	assert.Equal(t, "credito", NormalizeText("CRÉDITO"))
	assert.Equal(t, "", NormalizeText("   "))
}

func TestSanitizeKey(t *testing.T) {
	assert.Equal(t, "juros_nominais", SanitizeKey("Juros Nominais:"))
	assert.Equal(t, "valor_de_entrada", SanitizeKey("Valor de Entrada (R$)"))
}

func TestMaskCPF(t *testing.T) {
	assert.Equal(t, "123.456.789-01", MaskCPF("12345678901"))
	// Already masked input still carries 11 digits, so it round-trips.
	assert.Equal(t, "123.456.789-01", MaskCPF("123.456.789-01"))
	// Anything else is returned unchanged.
	assert.Equal(t, "1234", MaskCPF("1234"))
	assert.Equal(t, "", MaskCPF(""))
}

func TestParseMoneyBR(t *testing.T) {
	cases := []struct {
		in   string
		want float64
		ok   bool
	}{
		{"R$ 380.651,46", 380651.46, true},
		{"380.651,46", 380651.46, true},
		{"1.234", 1234, true}, // ambiguous dot treated as thousands separator
		{"12,5", 12.5, true},
		{"1234", 1234, true},
		{"R$ 0,00", 0, true},
		{"n/a", 0, false},
		{"", 0, false},
	}
	for _, tc := range cases {
		t.Run(tc.in, func(t *testing.T) {
			got, ok := ParseMoneyBR(tc.in)
			require.Equal(t, tc.ok, ok)
			if ok {
				assert.InDelta(t, tc.want, got, 0.001)
			}
		})
	}
}

func TestParseIntLoose(t *testing.T) {
	n, ok := ParseIntLoose("360 meses")
	require.True(t, ok)
	assert.Equal(t, 360, n)

	_, ok = ParseIntLoose("sem prazo")
	assert.False(t, ok)
}

func TestToCents(t *testing.T) {
	c, ok := ToCents("4500.5")
	require.True(t, ok)
	assert.Equal(t, "450050", c)

	c, ok = ToCents("450000")
	require.True(t, ok)
	assert.Equal(t, "45000000", c)

	_, ok = ToCents("abc")
	assert.False(t, ok)
}

func TestFormatCurrencyFromCents(t *testing.T) {
	got, err := FormatCurrencyFromCents("123456")
	require.NoError(t, err)
	assert.Equal(t, "1.234,56", got)

	got, err = FormatCurrencyFromCents("5")
	require.NoError(t, err)
	assert.Equal(t, "0,05", got)

	_, err = FormatCurrencyFromCents("")
	assert.Error(t, err)
}

func TestFormatCurrencyBR(t *testing.T) {
	assert.Equal(t, "R$ 1.234,56", FormatCurrencyBR(1234.56))
	assert.Equal(t, "R$ 0,00", FormatCurrencyBR(0))
}

func TestNormalizeDateBR(t *testing.T) {
	assert.Equal(t, "15/08/1992", NormalizeDateBR("1992-08-15"))
	assert.Equal(t, "15/08/1992", NormalizeDateBR("15/08/1992"))
	assert.Equal(t, "05/01/2000", NormalizeDateBR("5/1/2000"))
	assert.Equal(t, "amanha", NormalizeDateBR(" amanha "))
}
