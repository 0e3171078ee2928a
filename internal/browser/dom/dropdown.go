// File: internal/browser/dom/dropdown.go
package dom

import (
	"context"
	"fmt"
	"hash/fnv"
	"strings"
	"sync"

	"github.com/chromedp/chromedp/kb"
	"go.uber.org/zap"

	"github.com/Abensoft-Ltda/plugin-simulacao-sub000/internal/helpers"
)

// Option is one entry of a custom dropdown widget.
type Option struct {
	Text  string `json:"text"`
	Value string `json:"value"`
}

// SelectCache memoizes the option list of each dropdown, keyed by trigger
// selector. Entries are invalidated when the options hash changes, so a
// dependent dropdown that repopulates after an earlier choice is re-read.
type SelectCache struct {
	mu      sync.Mutex
	entries map[string]*cachedOptions
}

type cachedOptions struct {
	hash    uint64
	options []Option
	byText  map[string]int
}

func NewSelectCache() *SelectCache {
	return &SelectCache{entries: make(map[string]*cachedOptions)}
}

// lookup returns the cached entry for the trigger if its hash still matches
// the freshly read options, otherwise it rebuilds the entry.
func (c *SelectCache) lookup(trigger string, fresh []Option) *cachedOptions {
	h := OptionsHash(fresh)
	c.mu.Lock()
	defer c.mu.Unlock()
	if e, ok := c.entries[trigger]; ok && e.hash == h {
		return e
	}
	e := &cachedOptions{hash: h, options: fresh, byText: make(map[string]int, len(fresh))}
	for i, o := range fresh {
		key := helpers.NormalizeText(o.Text)
		if _, dup := e.byText[key]; !dup {
			e.byText[key] = i
		}
	}
	c.entries[trigger] = e
	return e
}

// Invalidate drops the cached entry for a trigger.
func (c *SelectCache) Invalidate(trigger string) {
	c.mu.Lock()
	delete(c.entries, trigger)
	c.mu.Unlock()
}

// OptionsHash fingerprints an option list. Order matters: a reordered list
// is a different dropdown state.
func OptionsHash(options []Option) uint64 {
	h := fnv.New64a()
	for _, o := range options {
		h.Write([]byte(o.Text))
		h.Write([]byte{0})
		h.Write([]byte(o.Value))
		h.Write([]byte{0x1e})
	}
	return h.Sum64()
}

// matchOption finds the index of the option matching want: exact normalized
// match first, then prefix, then substring in either direction. Returns -1
// when nothing matches.
func matchOption(options []Option, want string) int {
	norm := helpers.NormalizeText(want)
	if norm == "" {
		return -1
	}
	for i, o := range options {
		if helpers.NormalizeText(o.Text) == norm {
			return i
		}
	}
	for i, o := range options {
		if strings.HasPrefix(helpers.NormalizeText(o.Text), norm) {
			return i
		}
	}
	for i, o := range options {
		t := helpers.NormalizeText(o.Text)
		if t == "" {
			continue
		}
		if strings.Contains(t, norm) || strings.Contains(norm, t) {
			return i
		}
	}
	return -1
}

// readOptions collects the visible options of an open dropdown list.
func (it *Interactor) readOptions(ctx context.Context, listSelector string) ([]Option, error) {
	script := fmt.Sprintf(`(() => {
		const root = document.querySelector(%s);
		if (!root) return [];
		let nodes = root.querySelectorAll('[role="option"]');
		if (nodes.length === 0) nodes = root.querySelectorAll('li');
		if (nodes.length === 0) nodes = root.querySelectorAll('option');
		const out = [];
		for (const n of nodes) {
			out.push({
				text: (n.textContent || '').trim(),
				value: n.getAttribute('value') || n.dataset.value || '',
			});
		}
		return out;
	})()`, jsonEncode(listSelector))
	var opts []Option
	if err := it.Eval(ctx, script, &opts); err != nil {
		return nil, fmt.Errorf("reading options of %s failed: %w", listSelector, err)
	}
	return opts, nil
}

// SelectFromDropdown chooses an option from a custom dropdown widget by
// visible text. It opens the widget, navigates with the keyboard, and falls
// back to synthetic pointer events when the keyboard path does not stick.
// A miss is reported as false, never as an error: the caller decides
// whether the field was mandatory.
func (it *Interactor) SelectFromDropdown(ctx context.Context, trigger, listSelector, want string) bool {
	log := it.logger.With(zap.String("trigger", trigger), zap.String("want", want))

	for attempt := 1; attempt <= it.cfg.MaxAttempts; attempt++ {
		if attempt > 1 {
			if err := it.sleep(ctx, it.cfg.RetryDelay); err != nil {
				return false
			}
		}

		if err := it.EscalatingClick(ctx, trigger); err != nil {
			log.Debug("Dropdown trigger click failed.", zap.Error(err))
			continue
		}
		if _, err := it.WaitForAny(ctx, []string{listSelector}, it.cfg.WaitShort); err != nil {
			log.Debug("Dropdown list never opened.", zap.Error(err))
			continue
		}

		fresh, err := it.readOptions(ctx, listSelector)
		if err != nil || len(fresh) == 0 {
			log.Debug("Dropdown has no readable options.", zap.Error(err))
			it.closeDropdown(ctx)
			continue
		}
		entry := it.selects.lookup(trigger, fresh)

		idx := matchOption(entry.options, want)
		if idx < 0 {
			// Server-filtered lists repopulate between attempts, so a
			// miss here only skips this pass.
			log.Warn("No dropdown option matched.",
				zap.Int("attempt", attempt),
				zap.Strings("available", optionTexts(entry.options)))
			it.closeDropdown(ctx)
			continue
		}

		if it.selectByKeyboard(ctx, trigger, entry.options, idx, want) {
			return true
		}
		log.Debug("Keyboard selection did not stick, trying pointer fallback.")
		if it.selectByPointer(ctx, trigger, listSelector, idx, want) {
			return true
		}
		it.closeDropdown(ctx)
	}
	log.Warn("Dropdown selection exhausted all attempts.")
	return false
}

func (it *Interactor) selectByKeyboard(ctx context.Context, trigger string, options []Option, idx int, want string) bool {
	if err := it.PressKey(ctx, kb.Home); err != nil {
		return false
	}
	for i := 0; i < idx; i++ {
		if err := it.PressKey(ctx, kb.ArrowDown); err != nil {
			return false
		}
	}
	if err := it.PressKey(ctx, kb.Enter); err != nil {
		return false
	}
	return it.verifySelection(ctx, trigger, options[idx].Text, want)
}

func (it *Interactor) selectByPointer(ctx context.Context, trigger, listSelector string, idx int, want string) bool {
	// Reopen in case the failed keyboard pass closed the list.
	if visible, _ := it.Exists(ctx, listSelector); !visible {
		if err := it.EscalatingClick(ctx, trigger); err != nil {
			return false
		}
		if _, err := it.WaitForAny(ctx, []string{listSelector}, it.cfg.WaitShort); err != nil {
			return false
		}
	}
	script := fmt.Sprintf(`(() => {
		const root = document.querySelector(%s);
		if (!root) return false;
		let nodes = root.querySelectorAll('[role="option"]');
		if (nodes.length === 0) nodes = root.querySelectorAll('li');
		if (nodes.length === 0) nodes = root.querySelectorAll('option');
		const el = nodes[%d];
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
	})()`, jsonEncode(listSelector), idx)
	var ok bool
	if err := it.Eval(ctx, script, &ok); err != nil || !ok {
		return false
	}
	return it.verifySelection(ctx, trigger, "", want)
}

// verifySelection reads the trigger's displayed value and accepts either the
// chosen option text or the originally requested text.
func (it *Interactor) verifySelection(ctx context.Context, trigger, chosen, want string) bool {
	got, err := it.ReadValue(ctx, trigger)
	if err != nil {
		return false
	}
	norm := helpers.NormalizeText(got)
	if norm == "" {
		return false
	}
	if chosen != "" && norm == helpers.NormalizeText(chosen) {
		return true
	}
	wantNorm := helpers.NormalizeText(want)
	return strings.Contains(norm, wantNorm) || strings.Contains(wantNorm, norm)
}

func (it *Interactor) closeDropdown(ctx context.Context) {
	_ = it.PressKey(ctx, kb.Escape)
}

// AutocompleteFill types into an autocomplete input and picks the
// suggestion matching want. It returns the text of the chosen suggestion.
func (it *Interactor) AutocompleteFill(ctx context.Context, input, listSelector, want string) (string, error) {
	if err := it.Fill(ctx, input, want, FillOptions{PerChar: true, SkipEnter: true, Verify: func(string) bool { return true }}); err != nil {
		return "", err
	}
	if _, err := it.WaitForAny(ctx, []string{listSelector}, it.cfg.WaitShort); err != nil {
		return "", fmt.Errorf("no suggestions appeared for %q: %w", want, err)
	}
	options, err := it.readOptions(ctx, listSelector)
	if err != nil {
		return "", err
	}
	idx := matchOption(options, want)
	if idx < 0 {
		sample := optionTexts(options)
		if len(sample) > 8 {
			sample = sample[:8]
		}
		return "", fmt.Errorf("no suggestion matched %q, available: %s", want, strings.Join(sample, "; "))
	}
	if !it.selectByPointer(ctx, input, listSelector, idx, options[idx].Text) {
		return "", fmt.Errorf("could not activate suggestion %q", options[idx].Text)
	}
	return options[idx].Text, nil
}

func optionTexts(options []Option) []string {
	out := make([]string, len(options))
	for i, o := range options {
		out[i] = o.Text
	}
	return out
}
