// File: internal/browser/dom/dropdown_test.go
package dom

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/chromedp/chromedp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestMatchOption(t *testing.T) {
	options := []Option{
		{Text: "Selecione"},
		{Text: "Aquisição de Imóvel Novo"},
		{Text: "Aquisição de Imóvel Usado"},
		{Text: "Construção"},
		{Text: "Imóveis Caixa"},
	}

	t.Run("exact match ignoring accents and case", func(t *testing.T) {
		idx := matchOption(options, "aquisicao de imovel novo")
		assert.Equal(t, 1, idx)
	})

	t.Run("prefix match beats substring", func(t *testing.T) {
		idx := matchOption(options, "Construção")
		assert.Equal(t, 3, idx)
	})

	t.Run("substring in either direction", func(t *testing.T) {
		assert.Equal(t, 4, matchOption(options, "caixa"))
		assert.Equal(t, 4, matchOption(options, "Imóveis Caixa (leilão)"))
	})

	t.Run("no match", func(t *testing.T) {
		assert.Equal(t, -1, matchOption(options, "terreno rural"))
	})

	t.Run("empty want never matches", func(t *testing.T) {
		assert.Equal(t, -1, matchOption(options, "   "))
	})
}

func TestOptionsHash(t *testing.T) {
	a := []Option{{Text: "120 meses"}, {Text: "240 meses"}}
	b := []Option{{Text: "120 meses"}, {Text: "240 meses"}}
	c := []Option{{Text: "240 meses"}, {Text: "120 meses"}}

	assert.Equal(t, OptionsHash(a), OptionsHash(b))
	assert.NotEqual(t, OptionsHash(a), OptionsHash(c), "order is part of the fingerprint")

	// Field boundaries must not be ambiguous.
	d := []Option{{Text: "ab", Value: "c"}}
	e := []Option{{Text: "a", Value: "bc"}}
	assert.NotEqual(t, OptionsHash(d), OptionsHash(e))
}

func TestSelectCache(t *testing.T) {
	cache := NewSelectCache()
	first := []Option{{Text: "SP"}, {Text: "RJ"}}

	e1 := cache.lookup("#uf", first)
	require.NotNil(t, e1)
	assert.Equal(t, 0, e1.byText["sp"])
	assert.Equal(t, 1, e1.byText["rj"])

	t.Run("same options reuse the entry", func(t *testing.T) {
		e2 := cache.lookup("#uf", []Option{{Text: "SP"}, {Text: "RJ"}})
		assert.Same(t, e1, e2)
	})

	t.Run("changed options rebuild the entry", func(t *testing.T) {
		e3 := cache.lookup("#uf", []Option{{Text: "SP"}, {Text: "RJ"}, {Text: "MG"}})
		assert.NotSame(t, e1, e3)
		assert.Equal(t, 2, e3.byText["mg"])
	})

	t.Run("invalidate forces rebuild", func(t *testing.T) {
		cache.Invalidate("#uf")
		e4 := cache.lookup("#uf", first)
		assert.NotSame(t, e1, e4)
	})
}

// dropdownRunner scripts the page side of a dropdown interaction. Each
// option read serves the next list from reads, repeating the last one.
type dropdownRunner struct {
	listSelector string
	reads        [][]Option
	readCount    int
	display      string
}

func (r *dropdownRunner) Run(ctx context.Context, actions ...chromedp.Action) error { return nil }

func (r *dropdownRunner) Evaluate(ctx context.Context, script string, out any) error {
	switch {
	case strings.Contains(script, "scrollIntoView"):
		*out.(*bool) = true
	case strings.Contains(script, "const sels ="):
		*out.(*string) = r.listSelector
	case strings.Contains(script, "dataset.value"):
		idx := r.readCount
		if idx >= len(r.reads) {
			idx = len(r.reads) - 1
		}
		r.readCount++
		*out.(*[]Option) = r.reads[idx]
	case strings.Contains(script, "'value' in el"):
		v := r.display
		*out.(**string) = &v
	default:
		return fmt.Errorf("unscripted page call: %.60s", script)
	}
	return nil
}

func newDropdownInteractor(runner Runner, maxAttempts int) *Interactor {
	return NewInteractor(zap.NewNop(), Config{
		MaxAttempts:  maxAttempts,
		RetryDelay:   time.Millisecond,
		PollInterval: time.Millisecond,
		WaitShort:    50 * time.Millisecond,
	}, runner)
}

func TestSelectFromDropdownExhaustsAttemptsOnNoMatch(t *testing.T) {
	runner := &dropdownRunner{
		listSelector: "ul.options",
		reads:        [][]Option{{{Text: "FLORIANOPOLIS"}, {Text: "JOINVILLE"}}},
	}
	it := newDropdownInteractor(runner, 3)

	ok := it.SelectFromDropdown(context.Background(), "#cidade", "ul.options", "CHAPECO")

	assert.False(t, ok)
	assert.Equal(t, 3, runner.readCount, "every attempt must re-read the option list")
}

func TestSelectFromDropdownMatchesRepopulatedList(t *testing.T) {
	// Server-filtered lists load their real options after the first open.
	runner := &dropdownRunner{
		listSelector: "ul.options",
		reads: [][]Option{
			{{Text: "Carregando..."}},
			{{Text: "CHAPECO"}, {Text: "CONCORDIA"}},
		},
		display: "CHAPECO",
	}
	it := newDropdownInteractor(runner, 3)

	ok := it.SelectFromDropdown(context.Background(), "#cidade", "ul.options", "CHAPECO")

	assert.True(t, ok)
	assert.Equal(t, 2, runner.readCount)
}

func TestFillValueMatches(t *testing.T) {
	assert.True(t, fillValueMatches("380.651,46", "380651,46"), "masked currency matches on digits")
	assert.True(t, fillValueMatches(" 12/09/1990 ", "12/09/1990"))
	assert.False(t, fillValueMatches("", "100"))
	assert.False(t, fillValueMatches("abc", "def"), "no digits on either side is not a match")
	assert.True(t, fillValueMatches("abc", "abc"))
}
