// File: internal/browser/dom/interactor.go
package dom

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/chromedp"
	"github.com/chromedp/chromedp/kb"
	"go.uber.org/zap"

	"github.com/Abensoft-Ltda/plugin-simulacao-sub000/internal/helpers"
)

// Runner executes chromedp actions against a single tab.
type Runner interface {
	Run(ctx context.Context, actions ...chromedp.Action) error
}

// Evaluator is an optional Runner upgrade. A runner that implements it
// receives page scripts directly instead of wrapped chromedp actions,
// which lets tests script page state without a live browser target.
type Evaluator interface {
	Evaluate(ctx context.Context, script string, out any) error
}

// Config carries the timing knobs for element discovery and input retries.
type Config struct {
	MaxAttempts  int
	RetryDelay   time.Duration
	PollInterval time.Duration
	WaitShort    time.Duration
	WaitLong     time.Duration
	TypeDelay    time.Duration
}

// Interactor drives form fields on a bank page through synthetic input.
// Every operation is idempotent and safe to retry; discovery is polling
// based because the bank pages mutate the DOM long after load.
type Interactor struct {
	logger *zap.Logger
	run    Runner
	cfg    Config

	selects *SelectCache
}

func NewInteractor(logger *zap.Logger, cfg Config, runner Runner) *Interactor {
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = 1
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 200 * time.Millisecond
	}
	return &Interactor{
		logger:  logger.Named("dom"),
		run:     runner,
		cfg:     cfg,
		selects: NewSelectCache(),
	}
}

// jsonEncode marshals a value for safe embedding inside an evaluated script.
func jsonEncode(v any) string {
	b, err := json.Marshal(v)
	if err != nil {
		return "null"
	}
	return string(b)
}

// Eval runs a script in the page and decodes the result into out.
func (it *Interactor) Eval(ctx context.Context, script string, out any) error {
	if ev, ok := it.run.(Evaluator); ok {
		return ev.Evaluate(ctx, script, out)
	}
	return it.run.Run(ctx, chromedp.Evaluate(script, out,
		func(p *runtime.EvaluateParams) *runtime.EvaluateParams {
			return p.WithReturnByValue(true).WithAwaitPromise(true).WithSilent(true)
		}))
}

const visibleFnJS = `function __vis(el) {
	if (!el) return false;
	const s = window.getComputedStyle(el);
	if (s.display === 'none' || s.visibility === 'hidden') return false;
	const r = el.getBoundingClientRect();
	return r.width > 0 && r.height > 0;
}`

// WaitForAny polls until one of the candidate selectors matches a visible
// element. It returns the selector that matched. A quiet page is reported
// as ErrElementNotFound, never as a transport failure.
func (it *Interactor) WaitForAny(ctx context.Context, selectors []string, timeout time.Duration) (string, error) {
	script := fmt.Sprintf(`(() => {
		%s
		const sels = %s;
		for (const sel of sels) {
			try {
				if (__vis(document.querySelector(sel))) return sel;
			} catch (e) {}
		}
		return "";
	})()`, visibleFnJS, jsonEncode(selectors))

	deadline := time.Now().Add(timeout)
	for {
		var matched string
		if err := it.Eval(ctx, script, &matched); err != nil {
			return "", fmt.Errorf("element discovery failed: %w", err)
		}
		if matched != "" {
			return matched, nil
		}
		if time.Now().After(deadline) {
			return "", fmt.Errorf("%w: none of %s appeared within %s",
				ErrElementNotFound, strings.Join(selectors, ", "), timeout)
		}
		if err := it.sleep(ctx, it.cfg.PollInterval); err != nil {
			return "", err
		}
	}
}

// WaitFor waits for a single selector to become visible.
func (it *Interactor) WaitFor(ctx context.Context, selector string, timeout time.Duration) error {
	_, err := it.WaitForAny(ctx, []string{selector}, timeout)
	return err
}

// Exists reports whether the selector currently matches a visible element.
func (it *Interactor) Exists(ctx context.Context, selector string) (bool, error) {
	script := fmt.Sprintf(`(() => {
		%s
		try { return __vis(document.querySelector(%s)); } catch (e) { return false; }
	})()`, visibleFnJS, jsonEncode(selector))
	var found bool
	if err := it.Eval(ctx, script, &found); err != nil {
		return false, err
	}
	return found, nil
}

// ReadValue returns the current value of a form control, falling back to
// trimmed text content for non-input elements.
func (it *Interactor) ReadValue(ctx context.Context, selector string) (string, error) {
	script := fmt.Sprintf(`(() => {
		const el = document.querySelector(%s);
		if (!el) return null;
		if ('value' in el && el.value !== undefined && el.value !== null && el.tagName !== 'LI') {
			return String(el.value);
		}
		return (el.textContent || '').trim();
	})()`, jsonEncode(selector))
	var out *string
	if err := it.Eval(ctx, script, &out); err != nil {
		return "", err
	}
	if out == nil {
		return "", fmt.Errorf("%w: %s", ErrElementNotFound, selector)
	}
	return *out, nil
}

// ReadText returns the trimmed text content of an element.
func (it *Interactor) ReadText(ctx context.Context, selector string) (string, error) {
	script := fmt.Sprintf(`(() => {
		const el = document.querySelector(%s);
		return el ? (el.textContent || '').trim() : null;
	})()`, jsonEncode(selector))
	var out *string
	if err := it.Eval(ctx, script, &out); err != nil {
		return "", err
	}
	if out == nil {
		return "", fmt.Errorf("%w: %s", ErrElementNotFound, selector)
	}
	return *out, nil
}

// -- Click strategies --

// Click performs a native CDP click on the element.
func (it *Interactor) Click(ctx context.Context, selector string) error {
	return it.run.Run(ctx, chromedp.Click(selector, chromedp.ByQuery, chromedp.NodeVisible))
}

// ClickJS invokes the element's click() handler directly. Some bank widgets
// swallow native clicks but honor the DOM method.
func (it *Interactor) ClickJS(ctx context.Context, selector string) error {
	script := fmt.Sprintf(`(() => {
		const el = document.querySelector(%s);
		if (!el) return false;
		el.click();
		return true;
	})()`, jsonEncode(selector))
	var ok bool
	if err := it.Eval(ctx, script, &ok); err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: %s", ErrElementNotFound, selector)
	}
	return nil
}

// ClickPointer dispatches the full pointer event sequence. Custom widgets
// that listen on pointerdown instead of click need this.
func (it *Interactor) ClickPointer(ctx context.Context, selector string) error {
	script := fmt.Sprintf(`(() => {
		const el = document.querySelector(%s);
		if (!el) return false;
		const r = el.getBoundingClientRect();
		const opts = {
			bubbles: true, cancelable: true, view: window,
			clientX: r.left + r.width / 2, clientY: r.top + r.height / 2,
		};
		for (const type of ['pointerover', 'pointerdown', 'mousedown', 'pointerup', 'mouseup', 'click']) {
			const ev = type.startsWith('pointer')
				? new PointerEvent(type, opts)
				: new MouseEvent(type, opts);
			el.dispatchEvent(ev);
		}
		return true;
	})()`, jsonEncode(selector))
	var ok bool
	if err := it.Eval(ctx, script, &ok); err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: %s", ErrElementNotFound, selector)
	}
	return nil
}

// EscalatingClick tries the click strategies from most to least faithful
// until one lands. The target is scrolled into the viewport first so the
// native click does not land on a sticky header.
func (it *Interactor) EscalatingClick(ctx context.Context, selector string) error {
	_ = it.ScrollIntoView(ctx, selector)
	var lastErr error
	for _, click := range []func(context.Context, string) error{it.Click, it.ClickJS, it.ClickPointer} {
		if err := click(ctx, selector); err != nil {
			lastErr = err
			continue
		}
		return nil
	}
	return fmt.Errorf("all click strategies failed for %s: %w", selector, lastErr)
}

// -- Fill choreography --

// FillOptions tunes a single field fill.
type FillOptions struct {
	// PerChar types the value one character at a time instead of setting it
	// in one shot. CPF and currency masks require it.
	PerChar bool
	// SkipEnter suppresses the trailing Enter presses for fields whose page
	// submits on Enter.
	SkipEnter bool
	// Verify overrides the default read-back comparison.
	Verify func(got string) bool
}

// Fill writes a value into a field using the full choreography the bank
// widgets expect: click, focus, clear, input, double Enter, blur, then a
// read-back verification. Failed attempts retry with a fixed delay.
func (it *Interactor) Fill(ctx context.Context, selector, value string, opts FillOptions) error {
	verify := opts.Verify
	if verify == nil {
		verify = func(got string) bool { return fillValueMatches(got, value) }
	}

	var lastErr error
	for attempt := 1; attempt <= it.cfg.MaxAttempts; attempt++ {
		if attempt > 1 {
			it.logger.Debug("Retrying field fill.",
				zap.String("selector", selector), zap.Int("attempt", attempt))
			if err := it.sleep(ctx, it.cfg.RetryDelay); err != nil {
				return err
			}
		}

		if err := it.fillOnce(ctx, selector, value, opts); err != nil {
			lastErr = err
			continue
		}

		got, err := it.ReadValue(ctx, selector)
		if err != nil {
			lastErr = err
			continue
		}
		if verify(got) {
			return nil
		}
		lastErr = fmt.Errorf("%w: %s holds %q, want %q", ErrFillVerification, selector, got, value)
	}
	return lastErr
}

func (it *Interactor) fillOnce(ctx context.Context, selector, value string, opts FillOptions) error {
	if err := it.EscalatingClick(ctx, selector); err != nil {
		return err
	}
	if err := it.focusAndClear(ctx, selector); err != nil {
		return err
	}

	if opts.PerChar {
		for _, r := range value {
			if err := it.run.Run(ctx, chromedp.SendKeys("document.activeElement", string(r), chromedp.ByJSPath)); err != nil {
				return fmt.Errorf("typing into %s failed: %w", selector, err)
			}
			if it.cfg.TypeDelay > 0 {
				if err := it.sleep(ctx, it.cfg.TypeDelay); err != nil {
					return err
				}
			}
		}
	} else {
		if err := it.setValue(ctx, selector, value); err != nil {
			return err
		}
	}

	if !opts.SkipEnter {
		// Two presses: the first commits a mask, the second fires the
		// page's recalculation listeners.
		for i := 0; i < 2; i++ {
			if err := it.PressKey(ctx, kb.Enter); err != nil {
				return err
			}
		}
	}
	return it.Blur(ctx, selector)
}

func (it *Interactor) focusAndClear(ctx context.Context, selector string) error {
	script := fmt.Sprintf(`(() => {
		const el = document.querySelector(%s);
		if (!el) return false;
		el.focus();
		if ('value' in el) {
			el.value = '';
			el.dispatchEvent(new Event('input', { bubbles: true }));
		}
		return true;
	})()`, jsonEncode(selector))
	var ok bool
	if err := it.Eval(ctx, script, &ok); err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: %s", ErrElementNotFound, selector)
	}
	return nil
}

func (it *Interactor) setValue(ctx context.Context, selector, value string) error {
	script := fmt.Sprintf(`(() => {
		const el = document.querySelector(%s);
		if (!el) return false;
		el.value = %s;
		el.dispatchEvent(new Event('input', { bubbles: true }));
		el.dispatchEvent(new Event('change', { bubbles: true }));
		return true;
	})()`, jsonEncode(selector), jsonEncode(value))
	var ok bool
	if err := it.Eval(ctx, script, &ok); err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: %s", ErrElementNotFound, selector)
	}
	return nil
}

// PressKey sends one key to the focused element.
func (it *Interactor) PressKey(ctx context.Context, key string) error {
	return it.run.Run(ctx, chromedp.SendKeys("document.activeElement", key, chromedp.ByJSPath))
}

// Blur removes focus from the element, firing its change listeners.
func (it *Interactor) Blur(ctx context.Context, selector string) error {
	script := fmt.Sprintf(`(() => {
		const el = document.querySelector(%s);
		if (el) el.blur();
		return true;
	})()`, jsonEncode(selector))
	var ok bool
	return it.Eval(ctx, script, &ok)
}

// -- Validation dialogs --

// DetectDialog scans the candidate selectors for a visible dialog and
// returns its message text.
func (it *Interactor) DetectDialog(ctx context.Context, selectors []string) (*DialogError, error) {
	script := fmt.Sprintf(`(() => {
		%s
		for (const sel of %s) {
			try {
				const el = document.querySelector(sel);
				if (__vis(el)) return (el.textContent || '').trim();
			} catch (e) {}
		}
		return null;
	})()`, visibleFnJS, jsonEncode(selectors))
	var msg *string
	if err := it.Eval(ctx, script, &msg); err != nil {
		return nil, err
	}
	if msg == nil {
		return nil, nil
	}
	return &DialogError{Message: helpers.CleanText(*msg)}, nil
}

// DismissDialog clicks the first visible dismiss button it finds.
func (it *Interactor) DismissDialog(ctx context.Context, buttonSelectors []string) bool {
	for _, sel := range buttonSelectors {
		visible, err := it.Exists(ctx, sel)
		if err != nil || !visible {
			continue
		}
		if err := it.EscalatingClick(ctx, sel); err == nil {
			return true
		}
	}
	return false
}

// HideDialog forces the dialog elements out of the page when no dismiss
// button is available. Reports how many elements were hidden.
func (it *Interactor) HideDialog(ctx context.Context, selectors []string) int {
	script := fmt.Sprintf(`(() => {
		let n = 0;
		for (const sel of %s) {
			try {
				for (const el of document.querySelectorAll(sel)) {
					el.style.display = 'none';
					n++;
				}
			} catch (e) {}
		}
		return n;
	})()`, jsonEncode(selectors))
	var hidden int
	if err := it.Eval(ctx, script, &hidden); err != nil {
		return 0
	}
	return hidden
}

func (it *Interactor) sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// fillValueMatches accepts either an exact match or, for masked numeric
// fields the page reformats, a digits-only match.
func fillValueMatches(got, want string) bool {
	if strings.TrimSpace(got) == strings.TrimSpace(want) {
		return true
	}
	gd, wd := helpers.DigitsOnly(got), helpers.DigitsOnly(want)
	return wd != "" && gd == wd
}
