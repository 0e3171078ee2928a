// File: internal/extract/extract.go

// Package extract parses rendered bank result pages into offer records.
// It works on HTML snapshots taken from the live tab, so every parser here
// is pure and testable against fixtures.
package extract

import (
	"fmt"
	"strings"

	"github.com/antchfx/htmlquery"
	"golang.org/x/net/html"

	"github.com/Abensoft-Ltda/plugin-simulacao-sub000/internal/helpers"
)

// Offer is one financing offer as read off the page, keyed with the
// payload field names. Values are raw page text; normalization happens in
// the payload layer.
type Offer map[string]any

func parse(src string) (*html.Node, error) {
	doc, err := htmlquery.Parse(strings.NewReader(src))
	if err != nil {
		return nil, fmt.Errorf("parsing result page failed: %w", err)
	}
	return doc, nil
}

func text(n *html.Node) string {
	if n == nil {
		return ""
	}
	return helpers.CleanText(htmlquery.InnerText(n))
}

// SimpleTable reads the row/label result table the government bank renders
// after an offer link is executed. optionName labels the offer when the
// table itself carries no amortization row. A page without the table
// returns (nil, nil).
func SimpleTable(src, optionName string) (Offer, error) {
	doc, err := parse(src)
	if err != nil {
		return nil, err
	}
	table := htmlquery.FindOne(doc, `//table[contains(@class,'simple-table')]`)
	if table == nil {
		return nil, nil
	}

	offer := Offer{
		"tipo_amortizacao": optionName,
		"prazo":            nil,
		"valor_total":      nil,
		"valor_entrada":    nil,
		"juros_nominais":   nil,
		"juros_efetivos":   nil,
	}

	for _, row := range htmlquery.Find(table, `.//tr`) {
		cells := htmlquery.Find(row, `.//td`)
		if len(cells) < 2 {
			continue
		}
		key := strings.ToLower(text(cells[0]))
		valueCell := cells[1]
		value := text(htmlquery.FindOne(valueCell, `.//center`))
		if value == "" {
			value = text(valueCell)
		}
		if key == "" || value == "" {
			continue
		}
		switch {
		case strings.Contains(key, "amortiza"):
			offer["tipo_amortizacao"] = strings.TrimSpace(value + " " + optionName)
		case strings.Contains(key, "prazo") && strings.Contains(key, "escolhido"):
			offer["prazo"] = value
		case strings.Contains(key, "financiamento") && strings.Contains(key, "valor"):
			offer["valor_total"] = value
		case strings.Contains(key, "entrada") && strings.Contains(key, "valor"):
			offer["valor_entrada"] = value
		}
	}

	// Interest rates sit outside the labeled rows on some layouts, so a
	// structural query over the whole document backs the label pass up.
	if n := htmlquery.FindOne(doc, `//td[contains(., 'Juros Nominais')]/following-sibling::td/center`); n != nil {
		offer["juros_nominais"] = text(n)
	}
	if n := htmlquery.FindOne(doc, `//td[contains(., 'Juros Efetivos')]/following-sibling::td/center`); n != nil {
		offer["juros_efetivos"] = text(n)
	}
	return offer, nil
}

var cardQueries = []string{
	`//bb-card`,
	`//bb-card-default`,
	`//bb-sugestao-card`,
	`//*[contains(concat(' ', normalize-space(@class), ' '), ' bb-card ')]`,
	`//custom-card//div[@id='card']`,
	`//custom-card//*[contains(@class,'m-3') and contains(@class,'p-3')]`,
	`//custom-card//*[@data-card]`,
}

// Cards reads the card-based offer layout the private bank renders, one
// offer per card. selectedTab names the tab the cards came from and
// entryCurrency is the entry amount the form was filled with, used when a
// card omits its own entry row.
func Cards(src, selectedTab, entryCurrency string) ([]Offer, error) {
	doc, err := parse(src)
	if err != nil {
		return nil, err
	}

	seen := make(map[*html.Node]bool)
	var cards []*html.Node
	for _, q := range cardQueries {
		for _, n := range htmlquery.Find(doc, q) {
			if !seen[n] {
				seen[n] = true
				cards = append(cards, n)
			}
		}
	}

	offers := make([]Offer, 0, len(cards))
	for i, card := range cards {
		optionName := fmt.Sprintf("%s Opção %d", helpers.CapitalizeWords(selectedTab), i+1)
		offer := Offer{
			"tipo_amortizacao": optionName,
			"valor_entrada":    entryCurrency,
		}
		if h := htmlquery.FindOne(card, `.//bb-title//h1 | .//h1`); h != nil {
			offer["parcela"] = text(h)
		}

		if htmlquery.FindOne(card, `.//*[contains(@class,'bb-card-body')]`) != nil {
			readStructuredCard(card, offer, entryCurrency)
		} else {
			readCustomCard(card, offer)
		}
		offers = append(offers, offer)
	}
	return offers, nil
}

func readStructuredCard(card *html.Node, offer Offer, entryCurrency string) {
	fields := htmlquery.Find(card,
		`.//*[contains(@class,'bb-card-body')]//*[contains(@class,'info-item') or contains(concat(' ',normalize-space(@class),' '),' info ')]`)
	for _, field := range fields {
		label := helpers.NormalizeText(text(htmlquery.FindOne(field, `.//*[contains(@class,'info-label') or contains(concat(' ',normalize-space(@class),' '),' label ')]`)))
		value := text(htmlquery.FindOne(field, `.//*[contains(@class,'info-value') or contains(concat(' ',normalize-space(@class),' '),' value ')]`))
		if label == "" {
			continue
		}
		applyCardLabel(offer, label, value)
		if strings.Contains(label, "entrada") && value == "" {
			offer["valor_entrada"] = entryCurrency
		}
	}
}

func readCustomCard(card *html.Node, offer Offer) {
	rows := htmlquery.Find(card, `.//*[contains(@class,'d-flex') and contains(@class,'justify-content-between')]`)
	for _, row := range rows {
		label := helpers.NormalizeText(text(htmlquery.FindOne(row,
			`.//bb-caption | .//*[contains(@class,'bb-caption')] | .//label | .//span`)))
		value := text(htmlquery.FindOne(row,
			`.//bb-label | .//*[contains(@class,'bb-label')] | .//label/following-sibling::span | .//label/following-sibling::strong | .//span/following-sibling::span`))
		if label == "" || value == "" {
			continue
		}
		applyCardLabel(offer, label, value)
	}
}

// applyCardLabel routes one labeled value into the offer. Labels are
// substring-matched against a fixed vocabulary; a label can feed more than
// one field ("valor solicitado" doubles as the total).
func applyCardLabel(offer Offer, label, value string) {
	if strings.Contains(label, "parcela") {
		offer["parcela"] = value
	}
	if strings.Contains(label, "juros efetivo") {
		offer["juros_efetivos"] = value
	}
	if strings.Contains(label, "juros nominal") {
		offer["juros_nominais"] = value
	}
	if strings.Contains(label, "prazo") {
		offer["prazo"] = value
	}
	if strings.Contains(label, "valor total") {
		offer["valor_total"] = value
	}
	if strings.Contains(label, "valor solicitado") {
		offer["valor_total"] = value
		offer["valor_solicitado"] = value
	}
	if strings.Contains(label, "taxa de juros") {
		offer["taxa_juros"] = value
		if _, ok := offer["juros_nominais"]; !ok {
			offer["juros_nominais"] = value
		}
	}
	if strings.Contains(label, "entrada") && value != "" {
		offer["valor_entrada"] = value
	}
}

// CustomSummary reads the chip-based summary of the private bank's
// "my way" flow, where the user-tuned offer renders as description/content
// chips instead of cards. Returns nil when no chips are present.
func CustomSummary(src string) (Offer, error) {
	doc, err := parse(src)
	if err != nil {
		return nil, err
	}
	chips := htmlquery.Find(doc, `//bb-text-chip`)
	if len(chips) == 0 {
		return nil, nil
	}

	info := make(map[string]string, len(chips))
	for _, chip := range chips {
		desc := text(htmlquery.FindOne(chip, `.//*[contains(@class,'description')]`))
		if desc == "" {
			desc = helpers.CleanText(htmlquery.SelectAttr(chip, "description"))
		}
		value := text(htmlquery.FindOne(chip, `.//*[contains(@class,'content')]`))
		if value == "" {
			value = text(chip)
		}
		if key := helpers.NormalizeText(desc); key != "" {
			info[key] = value
		}
	}
	if len(info) == 0 {
		return nil, nil
	}

	taxa := info["taxa de juros"]
	cet := info["custo efetivo total"]
	if cet == "" {
		cet = taxa
	}
	return Offer{
		"tipo_amortizacao": fmt.Sprintf("Opção com prazo de %s, valor das parcelas: %s", info["prazo"], info["parcela"]),
		"valor_total":      info["valor solicitado"],
		"valor_entrada":    nil,
		"juros_nominais":   taxa,
		"juros_efetivos":   cet,
		"parcela":          info["parcela"],
		"valor_solicitado": info["valor solicitado"],
		"taxa_juros":       taxa,
	}, nil
}

// FeedbackMessages collects the visible error banners of the government
// bank's feedback area, dropping purely informational blocks.
func FeedbackMessages(src string) ([]string, error) {
	doc, err := parse(src)
	if err != nil {
		return nil, err
	}
	var out []string
	for _, n := range htmlquery.Find(doc, `//*[contains(@class,'erro_feedback')]`) {
		id := strings.ToLower(htmlquery.SelectAttr(n, "id"))
		if strings.Contains(id, "divobservacao") || strings.Contains(id, "divtextoexplicativo") {
			continue
		}
		msg := text(n)
		if msg == "" || strings.Contains(msg, "Habite Seguro") {
			continue
		}
		out = append(out, msg)
	}
	return out, nil
}

// SanitizeFailureMessage normalizes a failure text and prefixes it with the
// bank label so the entry's origin survives aggregation.
func SanitizeFailureMessage(bank, message string) string {
	cleaned := strings.TrimSpace(message)
	if cleaned == "" {
		cleaned = "Erro não especificado"
	}
	prefix := bank + ":"
	if strings.HasPrefix(strings.ToLower(cleaned), prefix) {
		return cleaned
	}
	return prefix + " " + cleaned
}
