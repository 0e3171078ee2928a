// File: internal/navigator/caixa.go
package navigator

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/Abensoft-Ltda/plugin-simulacao-sub000/api/schemas"
	"github.com/Abensoft-Ltda/plugin-simulacao-sub000/internal/browser"
	"github.com/Abensoft-Ltda/plugin-simulacao-sub000/internal/browser/dom"
	"github.com/Abensoft-Ltda/plugin-simulacao-sub000/internal/config"
	"github.com/Abensoft-Ltda/plugin-simulacao-sub000/internal/extract"
	"github.com/Abensoft-Ltda/plugin-simulacao-sub000/internal/helpers"
	"github.com/Abensoft-Ltda/plugin-simulacao-sub000/internal/payload"
)

// Caixa drives the government bank's three-page simulation form and the
// options page that follows it. The form is jQuery based: selects hide
// behind selectmenu comboboxes, the city picker is a server-filtered
// autocomplete, and validation failures surface as modal dialogs.
type Caixa struct {
	logger *zap.Logger
	cfg    *config.Config
	url    string
}

// Selectors of the first form page.
const (
	caixaPersonRadio   = "#pessoaF"
	caixaPropertyType  = "#tipoImovel"
	caixaFinancingKind = "#grupoTipoFinanciamento_input"
	caixaPropertyValue = "#valorImovel"
	caixaUF            = "#uf"
	caixaCity          = "#cidade"
	caixaCityInput     = "#cidade_input"
	caixaCityMenu      = "ul.ui-menu"
	caixaOwnsProperty  = "#imovelCidade"
	caixaNext1         = "#btn_next1"

	caixaBirthDate = "#dataNascimento"
	caixaIncome    = "#rendaFamiliarBruta"
	caixaFGTS      = "#vaContaFgtsS"
	caixaNext2     = "#btn_next2"

	caixaOptionsMarker = "#passo3"
	caixaOptionLinks   = "a.js-form-next"
	caixaBackSuccess   = "#botaoVoltar"
	caixaBackError     = `button[onclick*="voltarTelaEnquadrar"]`
)

// caixaDialogSelectors are where the site renders validation modals.
var caixaDialogSelectors = []string{
	"#ui-id-34.ui-dialog-content.ui-widget-content",
	".ui-dialog-content",
}

// caixaMandatoryDialogText marks the dialog that means the page lost form
// state and needs a full reload before another attempt.
const caixaMandatoryDialogText = "Campo obrigatório não informado"

func NewCaixa(cfg *config.Config, logger *zap.Logger) *Caixa {
	return &Caixa{
		logger: logger.Named("caixa"),
		cfg:    cfg,
		url:    cfg.Banks.Caixa.URL,
	}
}

func (c *Caixa) Bank() schemas.Bank { return schemas.BankCaixa }
func (c *Caixa) URL() string        { return c.url }

// Run executes the full flow. The outer attempt loop restarts the whole
// form when the site raises its "mandatory field" dialog, which wipes the
// form state.
func (c *Caixa) Run(ctx context.Context, tab *browser.Tab, fields map[string]string) (*payload.Payload, error) {
	var lastErr error
	for attempt := 1; attempt <= c.cfg.Automation.MaxAttempts; attempt++ {
		if attempt > 1 {
			c.logger.Info("Restarting form flow.", zap.Int("attempt", attempt))
			if err := sleep(ctx, c.cfg.Automation.RetryDelay); err != nil {
				return failurePayload(schemas.BankCaixa, lastErr), err
			}
		}

		p, err := c.runOnce(ctx, tab, fields)
		if err == nil {
			return p, nil
		}
		lastErr = err
		c.logger.Warn("Form flow attempt failed.", zap.Int("attempt", attempt), zap.Error(err))

		var dialogErr *dom.DialogError
		if !errors.As(err, &dialogErr) && !errors.Is(err, dom.ErrElementNotFound) && !errors.Is(err, dom.ErrFillVerification) {
			break
		}
	}
	return failurePayload(schemas.BankCaixa, lastErr), lastErr
}

func (c *Caixa) runOnce(ctx context.Context, tab *browser.Tab, fields map[string]string) (*payload.Payload, error) {
	if err := tab.Navigate(ctx, c.url); err != nil {
		return nil, err
	}
	it := dom.NewInteractor(c.logger, domConfig(c.cfg), tab)

	if err := it.WaitFor(ctx, caixaPropertyValue, c.cfg.Automation.WaitLong); err != nil {
		return nil, fmt.Errorf("first form page did not load: %w", err)
	}
	if err := c.fillFirstPage(ctx, it, fields); err != nil {
		return nil, err
	}
	if err := c.failOnDialog(ctx, it); err != nil {
		return nil, err
	}
	if err := it.EscalatingClick(ctx, caixaNext1); err != nil {
		return nil, fmt.Errorf("advancing past first page: %w", err)
	}

	if err := it.WaitFor(ctx, caixaBirthDate, c.cfg.Automation.WaitLong); err != nil {
		return nil, fmt.Errorf("second form page did not load: %w", err)
	}
	if err := c.fillSecondPage(ctx, it, fields); err != nil {
		return nil, err
	}
	if err := c.failOnDialog(ctx, it); err != nil {
		return nil, err
	}
	if err := it.EscalatingClick(ctx, caixaNext2); err != nil {
		return nil, fmt.Errorf("advancing past second page: %w", err)
	}

	return c.processOptions(ctx, it)
}

func (c *Caixa) fillFirstPage(ctx context.Context, it *dom.Interactor, fields map[string]string) error {
	// Person type is always natural person.
	if err := it.SetChecked(ctx, caixaPersonRadio, true); err != nil {
		c.logger.Warn("Person type radio not found.", zap.Error(err))
	}
	if err := sleep(ctx, c.cfg.Automation.RetryDelay); err != nil {
		return err
	}

	if v := fields["tipo_imovel"]; v != "" {
		ok, err := it.SelectOption(ctx, caixaPropertyType, helpers.CapitalizeWords(v))
		if err != nil {
			return fmt.Errorf("property type select: %w", err)
		}
		if !ok {
			return fmt.Errorf("property type %q not offered by the form", v)
		}
	}

	if err := it.WaitEnabled(ctx, caixaFinancingKind, c.cfg.Automation.WaitShort); err != nil {
		return fmt.Errorf("financing group stayed disabled: %w", err)
	}
	if v := fields["categoria_imovel"]; v != "" {
		if err := it.Fill(ctx, caixaFinancingKind, helpers.CapitalizeWords(v), dom.FillOptions{}); err != nil {
			return fmt.Errorf("financing group: %w", err)
		}
	}

	// The value mask reads raw cent digits.
	if v := fields["valor_imovel"]; v != "" {
		if err := it.Fill(ctx, caixaPropertyValue, v, dom.FillOptions{}); err != nil {
			return fmt.Errorf("property value: %w", err)
		}
	}

	if v := fields["uf"]; v != "" {
		ok, err := it.SelectOption(ctx, caixaUF, strings.ToUpper(v))
		if err != nil {
			return fmt.Errorf("uf select: %w", err)
		}
		if !ok {
			return fmt.Errorf("uf %q not offered by the form", v)
		}
	}

	if v := fields["cidade"]; v != "" {
		// The city list repopulates after UF settles.
		if err := sleep(ctx, c.cfg.Automation.RetryDelay); err != nil {
			return err
		}
		chosen, err := it.AutocompleteFill(ctx, caixaCityInput, caixaCityMenu, strings.ToUpper(v))
		if err != nil {
			// The combobox is progressive enhancement over a plain
			// select, so fall back to direct selection.
			c.logger.Debug("City autocomplete failed, selecting directly.", zap.Error(err))
			ok, selErr := it.SelectOption(ctx, caixaCity, strings.ToUpper(v))
			if selErr != nil {
				return fmt.Errorf("city select: %w", selErr)
			}
			if !ok {
				return fmt.Errorf("city %q not found: %w", v, err)
			}
		} else {
			c.logger.Debug("City chosen from suggestions.", zap.String("city", chosen))
		}
	}

	if fields["possui_imovel"] == "sim" {
		if err := it.SetChecked(ctx, caixaOwnsProperty, true); err != nil {
			c.logger.Warn("Owns-property checkbox not found.", zap.Error(err))
		}
	}
	return nil
}

func (c *Caixa) fillSecondPage(ctx context.Context, it *dom.Interactor, fields map[string]string) error {
	if v := fields["data_nascimento"]; v != "" {
		if err := it.Fill(ctx, caixaBirthDate, v, dom.FillOptions{SkipEnter: true}); err != nil {
			return fmt.Errorf("birth date: %w", err)
		}
	}
	if v := fields["renda_familiar"]; v != "" {
		if err := it.Fill(ctx, caixaIncome, v, dom.FillOptions{}); err != nil {
			return fmt.Errorf("family income: %w", err)
		}
	}
	if fields["beneficiado_fgts"] == "sim" {
		if err := it.SetChecked(ctx, caixaFGTS, true); err != nil {
			c.logger.Warn("FGTS checkbox not found.", zap.Error(err))
		}
	}
	return nil
}

// processOptions iterates every financing option link on the options page,
// collecting one payload entry per option: a table extraction on success,
// a failure entry when the site answers with an error banner. Individual
// option failures never abort the surviving options.
func (c *Caixa) processOptions(ctx context.Context, it *dom.Interactor) (*payload.Payload, error) {
	if err := c.failOnDialog(ctx, it); err != nil {
		return nil, err
	}
	if err := it.WaitFor(ctx, caixaOptionsMarker, c.cfg.Automation.WaitLong); err != nil {
		return nil, fmt.Errorf("options page did not load: %w", err)
	}

	names, err := it.ReadTexts(ctx, caixaOptionLinks)
	if err != nil {
		return nil, fmt.Errorf("listing financing options: %w", err)
	}
	if len(names) == 0 {
		return nil, fmt.Errorf("no financing options found on the options page")
	}
	c.logger.Info("Financing options located.", zap.Int("count", len(names)))

	p := payload.New(schemas.BankCaixa)
	for i, name := range names {
		optionName := helpers.CleanText(name)
		if optionName == "" {
			optionName = fmt.Sprintf("Opção %d", i+1)
		}
		if strings.Contains(strings.ToLower(optionName), "clique aqui") {
			continue
		}
		log := c.logger.With(zap.String("option", optionName))

		if err := c.failOnDialog(ctx, it); err != nil {
			return nil, err
		}

		// The promotional banner shares the error class and would be
		// mistaken for a failure after the click.
		if removed, err := it.RemoveMatching(ctx, ".erro_feedback", "Habite Seguro"); err == nil && removed > 0 {
			log.Debug("Removed promotional feedback blocks.", zap.Int("count", removed))
		}

		if err := it.ClickNth(ctx, caixaOptionLinks, i); err != nil {
			log.Warn("Option link could not be activated.", zap.Error(err))
			continue
		}
		if err := sleep(ctx, c.cfg.Automation.RetryDelay); err != nil {
			return p, err
		}
		if err := c.failOnDialog(ctx, it); err != nil {
			return nil, err
		}

		html, err := it.PageHTML(ctx)
		if err != nil {
			return p, err
		}

		messages, err := extract.FeedbackMessages(html)
		if err != nil {
			return p, err
		}
		if len(messages) > 0 {
			for _, msg := range messages {
				log.Info("Option rejected by the bank.", zap.String("message", msg))
				p.AddEntry(extract.SanitizeFailureMessage(string(schemas.BankCaixa), msg))
			}
			c.goBack(ctx, it, caixaBackError)
			continue
		}

		offer, err := extract.SimpleTable(html, optionName)
		if err != nil {
			return p, err
		}
		if offer != nil {
			log.Info("Option extracted.")
			p.AddEntry(map[string]any(offer))
		} else {
			log.Warn("Option produced neither a result table nor an error.")
		}
		c.goBack(ctx, it, caixaBackSuccess)
	}
	return p, nil
}

func (c *Caixa) goBack(ctx context.Context, it *dom.Interactor, selector string) {
	if err := it.EscalatingClick(ctx, selector); err != nil {
		c.logger.Warn("Back control not found on options page.",
			zap.String("selector", selector), zap.Error(err))
		return
	}
	_ = sleep(ctx, c.cfg.Automation.RetryDelay)
}

// failOnDialog converts a visible validation dialog into a DialogError.
func (c *Caixa) failOnDialog(ctx context.Context, it *dom.Interactor) error {
	dialog, err := it.DetectDialog(ctx, caixaDialogSelectors)
	if err != nil || dialog == nil {
		return err
	}
	if strings.Contains(dialog.Message, caixaMandatoryDialogText) {
		c.logger.Warn("Mandatory-field dialog detected, form state lost.")
	}
	return dialog
}

// failurePayload wraps a run-level error into a deliverable payload so the
// caller always has something to forward.
func failurePayload(bank schemas.Bank, err error) *payload.Payload {
	p := payload.New(bank)
	msg := ""
	if err != nil {
		msg = err.Error()
	}
	p.AddFailure(extract.SanitizeFailureMessage(string(bank), msg))
	return p
}
