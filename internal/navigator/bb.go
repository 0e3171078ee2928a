// File: internal/navigator/bb.go
package navigator

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/Abensoft-Ltda/plugin-simulacao-sub000/api/schemas"
	"github.com/Abensoft-Ltda/plugin-simulacao-sub000/internal/browser"
	"github.com/Abensoft-Ltda/plugin-simulacao-sub000/internal/browser/dom"
	"github.com/Abensoft-Ltda/plugin-simulacao-sub000/internal/config"
	"github.com/Abensoft-Ltda/plugin-simulacao-sub000/internal/extract"
	"github.com/Abensoft-Ltda/plugin-simulacao-sub000/internal/helpers"
	"github.com/Abensoft-Ltda/plugin-simulacao-sub000/internal/payload"
)

// BB drives the federal bank's Angular simulation wizard. The page is a
// single-page app built from bb-* web components: fields live inside
// shadow-ish wrappers, dropdowns are custom listboxes, and suggestion
// cards render asynchronously after the form submits.
type BB struct {
	logger *zap.Logger
	cfg    *config.Config
	url    string
}

// The custom form caps the financing term and bounds the down payment
// relative to the property value.
const (
	bbMaxTermMonths    = 238
	bbMinEntryFraction = 0.05
	bbMaxEntryFraction = 0.55
)

const bbDefaultFailure = "Não foi possível concluir a simulação no Banco do Brasil."

// Component wrappers vary between deploys, so every field carries a
// fallback selector chain.
var (
	bbCPFSelectors = []string{
		`bb-text-field[formcontrolname="cpf"] input`,
		`input[formcontrolname="cpf"]`,
		`input[name="cpf"]`,
		`#cpf`,
	}
	bbValueSelectors = []string{
		`bb-money-field[formcontrolname="valorImovel"] input`,
		`bb-money-field input`,
		`input[formcontrolname="valorImovel"]`,
	}
	bbUFTrigger       = `bb-select[formcontrolname="uf"], bb-dropdown[formcontrolname="uf"], [formcontrolname="uf"]`
	bbCityTrigger     = `bb-select[formcontrolname="municipio"], bb-dropdown[formcontrolname="municipio"], [formcontrolname="municipio"]`
	bbDropdownList    = `[role="listbox"], .bb-select-options, .cdk-overlay-pane`
	bbDialogSelectors = []string{
		"bb-dialog .bb-dialog-body",
		".bb-dialog-content",
		`[role="alertdialog"]`,
	}
	bbTabGroupSelectors = []string{
		"bb-card-body sugestoes bb-tab-group",
		"sugestoes bb-tab-group",
		"bb-tab-group.bb-tab-group",
		"bb-card-body bb-tab-group",
		"bb-tab-group",
	}
	bbCustomFlowButtons = []string{
		"#botao",
		"button#botao",
		"button.bb-button.secondary",
		`button[aria-label*="meu jeito"]`,
		"bb-button button",
	}
)

func NewBB(cfg *config.Config, logger *zap.Logger) *BB {
	return &BB{
		logger: logger.Named("bb"),
		cfg:    cfg,
		url:    cfg.Banks.BB.URL,
	}
}

func (b *BB) Bank() schemas.Bank { return schemas.BankBB }
func (b *BB) URL() string        { return b.url }

// Run executes the wizard end to end, retrying whole runs when the app
// never reaches the suggestion cards.
func (b *BB) Run(ctx context.Context, tab *browser.Tab, fields map[string]string) (*payload.Payload, error) {
	var lastErr error
	for attempt := 1; attempt <= b.cfg.Automation.MaxAttempts; attempt++ {
		if attempt > 1 {
			b.logger.Info("Restarting wizard.", zap.Int("attempt", attempt))
			if err := sleep(ctx, b.cfg.Automation.RetryDelay); err != nil {
				return failurePayload(schemas.BankBB, lastErr), err
			}
		}
		p, err := b.runOnce(ctx, tab, fields)
		if err == nil {
			return p, nil
		}
		lastErr = err
		b.logger.Warn("Wizard attempt failed.", zap.Int("attempt", attempt), zap.Error(err))
		if ctx.Err() != nil {
			break
		}
	}
	p := payload.New(schemas.BankBB)
	msg := bbDefaultFailure
	if lastErr != nil {
		msg = lastErr.Error()
	}
	p.AddFailure(extract.SanitizeFailureMessage(string(schemas.BankBB), msg))
	return p, lastErr
}

func (b *BB) runOnce(ctx context.Context, tab *browser.Tab, fields map[string]string) (*payload.Payload, error) {
	if err := tab.Navigate(ctx, b.url); err != nil {
		return nil, err
	}
	it := dom.NewInteractor(b.logger, domConfig(b.cfg), tab)

	// The app bootstraps client-side; nothing useful exists before the
	// first render settles.
	if err := sleep(ctx, b.cfg.Automation.WaitLong); err != nil {
		return nil, err
	}
	if dialog, err := it.DetectDialog(ctx, bbDialogSelectors); err != nil {
		return nil, err
	} else if dialog != nil {
		b.logger.Warn("Startup dialog detected, dismissing.", zap.String("message", dialog.Message))
		if !it.DismissDialog(ctx, []string{"bb-dialog button", ".bb-dialog button", `[role="alertdialog"] button`}) {
			it.HideDialog(ctx, bbDialogSelectors)
		}
	}

	cpfSelector, err := it.WaitForAny(ctx, bbCPFSelectors, b.cfg.Automation.WaitLong)
	if err != nil {
		return nil, fmt.Errorf("simulation form never rendered: %w", err)
	}

	status := b.fillFirstPage(ctx, it, cpfSelector, fields)
	for field, state := range status {
		if state != schemas.FillFilled {
			b.logger.Warn("Field did not fill cleanly.",
				zap.String("field", field), zap.String("state", string(state)))
		}
	}
	if status["cpf"] == schemas.FillFailed || status["valor_imovel"] == schemas.FillFailed {
		return nil, fmt.Errorf("mandatory field rejected the input: %v", status)
	}

	if err := it.WaitEnabled(ctx, "#botao", 8*time.Second); err != nil {
		return nil, fmt.Errorf("submit button stayed disabled: %w", err)
	}
	if err := it.EscalatingClick(ctx, "#botao"); err != nil {
		return nil, fmt.Errorf("submitting the form: %w", err)
	}
	if err := sleep(ctx, b.cfg.Automation.RetryDelay); err != nil {
		return nil, err
	}

	return b.waitForResults(ctx, it, fields)
}

// fillFirstPage fills the opening form, recording per-field outcome as
// filled, failed or missing-data so the caller can decide what is fatal.
func (b *BB) fillFirstPage(ctx context.Context, it *dom.Interactor, cpfSelector string, fields map[string]string) map[string]schemas.FillStatus {
	status := make(map[string]schemas.FillStatus, 4)

	if cpf := helpers.DigitsOnly(fields["cpf"]); cpf != "" {
		err := it.Fill(ctx, cpfSelector, cpf, dom.FillOptions{
			PerChar:   true,
			SkipEnter: true,
			Verify:    func(got string) bool { return helpers.DigitsOnly(got) == cpf },
		})
		status["cpf"] = fillState(err)
		if err != nil {
			b.logger.Warn("CPF fill failed.", zap.String("cpf", helpers.MaskCPF(cpf)), zap.Error(err))
		}
	} else {
		status["cpf"] = schemas.FillMissingData
	}

	if raw := fields["valor_imovel"]; raw != "" {
		status["valor_imovel"] = schemas.FillFailed
		if value, convErr := helpers.FormatCurrencyFromCents(raw); convErr != nil {
			b.logger.Warn("Property value is not numeric.", zap.String("raw", raw), zap.Error(convErr))
		} else {
			for _, sel := range bbValueSelectors {
				if ok, _ := it.Exists(ctx, sel); !ok {
					continue
				}
				if err := it.Fill(ctx, sel, value, dom.FillOptions{PerChar: true, SkipEnter: true}); err != nil {
					b.logger.Warn("Property value fill failed.", zap.Error(err))
				} else {
					status["valor_imovel"] = schemas.FillFilled
				}
				break
			}
		}
	} else {
		status["valor_imovel"] = schemas.FillMissingData
	}

	if uf := strings.ToUpper(fields["uf"]); uf != "" {
		_ = sleep(ctx, 800*time.Millisecond)
		if it.SelectFromDropdown(ctx, bbUFTrigger, bbDropdownList, uf) {
			status["uf"] = schemas.FillFilled
		} else {
			status["uf"] = schemas.FillFailed
		}
	} else {
		status["uf"] = schemas.FillMissingData
	}

	if city := fields["cidade"]; city != "" {
		// City options load from the chosen state.
		_ = sleep(ctx, 500*time.Millisecond)
		if it.SelectFromDropdown(ctx, bbCityTrigger, bbDropdownList, city) {
			status["cidade"] = schemas.FillFilled
		} else {
			status["cidade"] = schemas.FillFailed
		}
	} else {
		status["cidade"] = schemas.FillMissingData
	}

	return status
}

func fillState(err error) schemas.FillStatus {
	if err != nil {
		return schemas.FillFailed
	}
	return schemas.FillFilled
}

// waitForResults polls for the suggestion tab group until the result
// deadline, then extracts the cards of the property-type tab and, when the
// custom flow is available, one extra personalized simulation.
func (b *BB) waitForResults(ctx context.Context, it *dom.Interactor, fields map[string]string) (*payload.Payload, error) {
	deadline := time.Now().Add(b.cfg.Automation.ResultWait)
	var tabGroup string
	for {
		if found, err := it.WaitForAny(ctx, bbTabGroupSelectors, 0); err == nil {
			if b.tabGroupReady(ctx, it, found) {
				tabGroup = found
				break
			}
		}
		if dialog, err := it.DetectDialog(ctx, bbDialogSelectors); err == nil && dialog != nil {
			return nil, dialog
		}
		if time.Now().After(deadline) {
			return nil, fmt.Errorf("suggestion cards never appeared")
		}
		if err := sleep(ctx, 1200*time.Millisecond); err != nil {
			return nil, err
		}
	}
	b.logger.Info("Suggestion tab group located.", zap.String("selector", tabGroup))

	selectedTab := b.ensurePropertyTab(ctx, it, tabGroup, fields["tipo_imovel"])

	html, err := it.PageHTML(ctx)
	if err != nil {
		return nil, err
	}
	offers, err := extract.Cards(html, selectedTab, "")
	if err != nil {
		return nil, err
	}

	p := payload.New(schemas.BankBB)
	for _, offer := range offers {
		p.AddEntry(map[string]any(offer))
	}

	if custom, ok := b.runCustomFlow(ctx, it, fields); ok {
		p.AddEntry(map[string]any(custom))
	}

	if p.Len() == 0 {
		p.AddFailure(extract.SanitizeFailureMessage(string(schemas.BankBB), bbDefaultFailure))
	}
	return p, nil
}

// tabGroupReady accepts a tab group only once real tabs render inside it.
func (b *BB) tabGroupReady(ctx context.Context, it *dom.Interactor, selector string) bool {
	for _, inner := range []string{`[role="tab"]`, ".bb-tab-title"} {
		if ok, _ := it.Exists(ctx, selector+" "+inner); ok {
			return true
		}
	}
	return false
}

// ensurePropertyTab activates the residential or commercial tab according
// to the requested property type and returns the active tab's title.
func (b *BB) ensurePropertyTab(ctx context.Context, it *dom.Interactor, tabGroup, propertyType string) string {
	desired := "residencial"
	if strings.Contains(helpers.NormalizeText(propertyType), "comercial") {
		desired = "comercial"
	}

	titles, err := it.ReadTexts(ctx, tabGroup+` [role="tab"], `+tabGroup+` .bb-tab-title`)
	if err != nil || len(titles) == 0 {
		return desired
	}
	for i, title := range titles {
		if !strings.Contains(helpers.NormalizeText(title), desired) {
			continue
		}
		sel := fmt.Sprintf(`%s [role="tab"]`, tabGroup)
		if err := it.ClickNth(ctx, sel, i); err != nil {
			b.logger.Debug("Tab click failed, trying titled tab element.", zap.Error(err))
			_ = it.ClickPointer(ctx, fmt.Sprintf(`%s bb-tab[title*="%s"]`, tabGroup, desired))
		}
		_ = sleep(ctx, b.cfg.Automation.PollInterval)
		return helpers.CleanText(title)
	}
	return desired
}

// runCustomFlow opens the "Fazer do meu jeito" form, submits a simulation
// with the caller's own down payment and term, and reads the summary chip
// panel back. A missing custom flow is not an error.
func (b *BB) runCustomFlow(ctx context.Context, it *dom.Interactor, fields map[string]string) (extract.Offer, bool) {
	term, ok := requestedTerm(fields)
	if !ok {
		b.logger.Debug("No financing term requested, skipping custom simulation.")
		return nil, false
	}
	opened := false
	for _, sel := range bbCustomFlowButtons {
		text, err := it.ReadText(ctx, sel)
		if err != nil || !strings.Contains(helpers.NormalizeText(text), "meu jeito") {
			continue
		}
		if err := it.EscalatingClick(ctx, sel); err == nil {
			opened = true
			break
		}
	}
	if !opened {
		b.logger.Debug("Custom simulation flow not offered.")
		return nil, false
	}
	if err := it.WaitFor(ctx, "custom-form-fazer-do-meu-jeito form", b.cfg.Automation.WaitShort); err != nil {
		b.logger.Warn("Custom form never rendered.", zap.Error(err))
		return nil, false
	}

	// valor_imovel already arrives as cents digits; valor_entrada passes
	// through the field builder untouched, as reais.
	propertyCents, _ := strconv.ParseInt(helpers.DigitsOnly(fields["valor_imovel"]), 10, 64)
	requestedEntry := centsValue(fields["valor_entrada"])
	entryCents := clampEntry(requestedEntry, propertyCents)
	if entryCents != requestedEntry {
		b.logger.Info("Down payment adjusted to the accepted band.",
			zap.Int64("requested_cents", requestedEntry), zap.Int64("adjusted_cents", entryCents))
	}
	entryCurrency, _ := helpers.FormatCurrencyFromCents(strconv.FormatInt(entryCents, 10))

	if term > bbMaxTermMonths {
		b.logger.Info("Financing term adjusted.",
			zap.Int("requested", term), zap.Int("adjusted", bbMaxTermMonths))
		term = bbMaxTermMonths
	}

	fill := func(selector, value string) bool {
		if ok, _ := it.Exists(ctx, selector); !ok {
			return false
		}
		return it.Fill(ctx, selector, value, dom.FillOptions{PerChar: true, SkipEnter: true}) == nil
	}
	if !fill(`custom-form-fazer-do-meu-jeito input[formcontrolname="valorEntrada"]`, entryCurrency) {
		fill(`custom-form-fazer-do-meu-jeito bb-money-field input`, entryCurrency)
	}
	if !fill(`custom-form-fazer-do-meu-jeito input[formcontrolname="prazo"]`, fmt.Sprintf("%d", term)) {
		fill(`custom-form-fazer-do-meu-jeito input[type="number"]`, fmt.Sprintf("%d", term))
	}

	if err := it.EscalatingClick(ctx, "#botao-segundo"); err != nil {
		b.logger.Warn("Custom form submit failed.", zap.Error(err))
		return nil, false
	}

	deadline := time.Now().Add(b.cfg.Automation.ResultWait / 2)
	for {
		if _, err := it.WaitForAny(ctx, []string{"bb-card-body resumo", "resumo", "custom-resumo"}, 0); err == nil {
			if ok, _ := it.Exists(ctx, "bb-text-chip"); ok {
				break
			}
		}
		if time.Now().After(deadline) {
			b.logger.Warn("Custom simulation summary never appeared.")
			return nil, false
		}
		if err := sleep(ctx, 1200*time.Millisecond); err != nil {
			return nil, false
		}
	}

	html, err := it.PageHTML(ctx)
	if err != nil {
		return nil, false
	}
	offer, err := extract.CustomSummary(html)
	if err != nil || offer == nil {
		b.logger.Warn("Custom summary extraction failed.", zap.Error(err))
		return nil, false
	}
	offer["valor_entrada"] = entryCurrency
	return offer, true
}

// centsValue reads a monetary field as integer cents, zero when absent.
func centsValue(raw string) int64 {
	cents, ok := helpers.ToCents(raw)
	if !ok {
		return 0
	}
	n, err := strconv.ParseInt(cents, 10, 64)
	if err != nil {
		return 0
	}
	return n
}

// requestedTerm resolves the financing term in months, trying the canonical
// key first and the looser aliases after it.
func requestedTerm(fields map[string]string) (int, bool) {
	for _, key := range []string{"prazo_financiamento", "prazo", "prazo_desejado"} {
		if term, ok := helpers.ParseIntLoose(fields[key]); ok && term > 0 {
			return term, true
		}
	}
	return 0, false
}

// clampEntry keeps the down payment inside the band the bank accepts.
func clampEntry(entryCents, propertyCents int64) int64 {
	if propertyCents <= 0 {
		return entryCents
	}
	min := int64(float64(propertyCents) * bbMinEntryFraction)
	max := int64(float64(propertyCents) * bbMaxEntryFraction)
	if entryCents < min {
		return min
	}
	if entryCents > max {
		return max
	}
	return entryCents
}
