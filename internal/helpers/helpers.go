// File: internal/helpers/helpers.go
package helpers

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

var (
	whitespaceRe = regexp.MustCompile(`\s+`)
	digitsRe     = regexp.MustCompile(`\D`)

	// Diacritic stripping: decompose, drop combining marks, recompose.
	stripMarks = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
)

// CleanText trims and collapses internal whitespace runs to a single space.
func CleanText(s string) string {
	return strings.TrimSpace(whitespaceRe.ReplaceAllString(s, " "))
}

// StripAccents removes diacritical marks ("Aquisição" -> "Aquisicao").
func StripAccents(s string) string {
	out, _, err := transform.String(stripMarks, s)
	if err != nil {
		return s
	}
	return out
}

// NormalizeText lowercases, strips accents and collapses whitespace.
// This is the canonical form used for all case/diacritic-insensitive
// comparisons against rendered page text.
func NormalizeText(s string) string {
	return strings.ToLower(StripAccents(CleanText(s)))
}

// SanitizeKey converts a human label into a snake_case lookup key.
func SanitizeKey(s string) string {
	s = NormalizeText(s)
	s = strings.Map(func(r rune) rune {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			return r
		}
		return ' '
	}, s)
	return strings.Join(strings.Fields(s), "_")
}

// CapitalizeWords upper-cases the first letter of each word.
func CapitalizeWords(s string) string {
	// cases.Caser carries state, so build one per call.
	return cases.Title(language.BrazilianPortuguese).String(strings.ToLower(CleanText(s)))
}

// DigitsOnly strips everything that is not a decimal digit.
func DigitsOnly(s string) string {
	return digitsRe.ReplaceAllString(s, "")
}

// MaskCPF formats an 11 digit CPF as 123.456.789-01.
// Anything that is not exactly 11 digits is returned unchanged.
func MaskCPF(cpf string) string {
	d := DigitsOnly(cpf)
	if len(d) != 11 {
		return cpf
	}
	return fmt.Sprintf("%s.%s.%s-%s", d[0:3], d[3:6], d[6:9], d[9:11])
}

// ParseMoneyBR parses a Brazilian formatted monetary string into a float.
// Accepted shapes: "R$ 380.651,46", "380.651,46", "1.234", "12,5", "1234".
// A lone "." with no "," is treated as a thousands separator.
// The second return is false when no numeric value could be extracted.
func ParseMoneyBR(s string) (float64, bool) {
	s = CleanText(s)
	if s == "" {
		return 0, false
	}

	// Drop currency symbols and keep only digits, separators and sign.
	var b strings.Builder
	for _, r := range s {
		if unicode.IsDigit(r) || r == '.' || r == ',' || r == '-' {
			b.WriteRune(r)
		}
	}
	cleaned := b.String()
	if cleaned == "" || cleaned == "-" {
		return 0, false
	}

	hasComma := strings.Contains(cleaned, ",")
	if hasComma {
		// Comma is the decimal separator; dots are thousands separators.
		cleaned = strings.ReplaceAll(cleaned, ".", "")
		cleaned = strings.Replace(cleaned, ",", ".", 1)
	} else {
		// No comma: any dots are thousands separators.
		cleaned = strings.ReplaceAll(cleaned, ".", "")
	}

	val, err := strconv.ParseFloat(cleaned, 64)
	if err != nil {
		return 0, false
	}
	return val, true
}

// ParseIntLoose extracts the first integer from a string ("360 meses" -> 360).
func ParseIntLoose(s string) (int, bool) {
	d := digitsRe.ReplaceAllString(CleanText(s), " ")
	fields := strings.Fields(d)
	if len(fields) == 0 {
		return 0, false
	}
	n, err := strconv.Atoi(fields[0])
	if err != nil {
		return 0, false
	}
	return n, true
}

// ToCents converts a numeric-ish input into an integer cents string
// ("4500.5" -> "450050"). Used by the field builders, which carry monetary
// values as numeric-cents strings.
func ToCents(raw string) (string, bool) {
	val, ok := ParseMoneyBR(raw)
	if !ok {
		return "", false
	}
	cents := int64(val*100 + 0.5)
	return strconv.FormatInt(cents, 10), true
}

// FormatCurrencyFromCents renders an integer cents string in the Brazilian
// display format the bank inputs expect ("123456" -> "1.234,56").
func FormatCurrencyFromCents(cents string) (string, error) {
	d := DigitsOnly(cents)
	if d == "" {
		return "", fmt.Errorf("no digits in cents value %q", cents)
	}
	for len(d) < 3 {
		d = "0" + d
	}
	intPart, fracPart := d[:len(d)-2], d[len(d)-2:]
	return groupThousands(intPart) + "," + fracPart, nil
}

// FormatCurrencyBR renders a float as "R$ 1.234,56".
func FormatCurrencyBR(v float64) string {
	cents := int64(v*100 + 0.5)
	neg := cents < 0
	if neg {
		cents = -cents
	}
	s, _ := FormatCurrencyFromCents(strconv.FormatInt(cents, 10))
	if neg {
		return "R$ -" + s
	}
	return "R$ " + s
}

func groupThousands(s string) string {
	s = strings.TrimLeft(s, "0")
	if s == "" {
		s = "0"
	}
	var parts []string
	for len(s) > 3 {
		parts = append([]string{s[len(s)-3:]}, parts...)
		s = s[:len(s)-3]
	}
	parts = append([]string{s}, parts...)
	return strings.Join(parts, ".")
}

// NormalizeDateBR accepts dd/mm/yyyy or yyyy-mm-dd and emits dd/mm/yyyy.
// Unrecognized shapes are returned cleaned but otherwise untouched, since
// the bank form performs its own date validation.
func NormalizeDateBR(s string) string {
	s = CleanText(s)
	if m := regexp.MustCompile(`^(\d{4})-(\d{2})-(\d{2})`).FindStringSubmatch(s); m != nil {
		return fmt.Sprintf("%s/%s/%s", m[3], m[2], m[1])
	}
	if m := regexp.MustCompile(`^(\d{1,2})/(\d{1,2})/(\d{4})$`).FindStringSubmatch(s); m != nil {
		day, _ := strconv.Atoi(m[1])
		month, _ := strconv.Atoi(m[2])
		return fmt.Sprintf("%02d/%02d/%s", day, month, m[3])
	}
	return s
}
