// File: internal/browser/dom/page.go
package dom

import (
	"context"
	"fmt"
	"time"
)

// WaitEnabled polls until the selector matches a visible, enabled control.
func (it *Interactor) WaitEnabled(ctx context.Context, selector string, timeout time.Duration) error {
	script := fmt.Sprintf(`(() => {
		%s
		const el = document.querySelector(%s);
		return __vis(el) && !el.disabled;
	})()`, visibleFnJS, jsonEncode(selector))

	deadline := time.Now().Add(timeout)
	for {
		var ready bool
		if err := it.Eval(ctx, script, &ready); err != nil {
			return err
		}
		if ready {
			return nil
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("%w: %s never became enabled within %s", ErrElementNotFound, selector, timeout)
		}
		if err := it.sleep(ctx, it.cfg.PollInterval); err != nil {
			return err
		}
	}
}

// SelectOption sets a native select element by visible option text and
// fires its change listeners. Matching follows the dropdown rules: exact
// normalized first, then substring.
func (it *Interactor) SelectOption(ctx context.Context, selector, optionText string) (bool, error) {
	options, err := it.readOptions(ctx, selector)
	if err != nil {
		return false, err
	}
	idx := matchOption(options, optionText)
	if idx < 0 {
		return false, nil
	}
	script := fmt.Sprintf(`(() => {
		const el = document.querySelector(%s);
		if (!el || !el.options || !el.options[%d]) return false;
		el.value = el.options[%d].value;
		el.dispatchEvent(new Event('input', { bubbles: true }));
		el.dispatchEvent(new Event('change', { bubbles: true }));
		return true;
	})()`, jsonEncode(selector), idx, idx)
	var ok bool
	if err := it.Eval(ctx, script, &ok); err != nil {
		return false, err
	}
	return ok, nil
}

// SetChecked drives a checkbox or radio to the wanted state via a real
// click, which the bank pages require to run their handlers.
func (it *Interactor) SetChecked(ctx context.Context, selector string, want bool) error {
	script := fmt.Sprintf(`(() => {
		const el = document.querySelector(%s);
		return el ? !!el.checked : null;
	})()`, jsonEncode(selector))
	var state *bool
	if err := it.Eval(ctx, script, &state); err != nil {
		return err
	}
	if state == nil {
		return fmt.Errorf("%w: %s", ErrElementNotFound, selector)
	}
	if *state == want {
		return nil
	}
	return it.EscalatingClick(ctx, selector)
}

// ReadTexts returns the trimmed text of every element matching selector.
func (it *Interactor) ReadTexts(ctx context.Context, selector string) ([]string, error) {
	script := fmt.Sprintf(`(() => {
		return Array.from(document.querySelectorAll(%s)).map(el => (el.textContent || '').trim());
	})()`, jsonEncode(selector))
	var out []string
	if err := it.Eval(ctx, script, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// ClickNth clicks the n-th element (0-based) matching selector, escalating
// from the DOM click method to the element's own click handler to a
// synthetic pointer sequence.
func (it *Interactor) ClickNth(ctx context.Context, selector string, n int) error {
	script := fmt.Sprintf(`(() => {
		const el = document.querySelectorAll(%s)[%d];
		if (!el) return "missing";
		try { el.click(); return "ok"; } catch (e) {}
		const onclick = el.getAttribute('onclick');
		if (onclick) {
			try { new Function(onclick).call(el); return "ok"; } catch (e) {}
		}
		try {
			for (const type of ['mousedown', 'mouseup', 'click']) {
				el.dispatchEvent(new MouseEvent(type, { bubbles: true, cancelable: true }));
			}
			return "ok";
		} catch (e) {}
		return "failed";
	})()`, jsonEncode(selector), n)
	var result string
	if err := it.Eval(ctx, script, &result); err != nil {
		return err
	}
	switch result {
	case "ok":
		return nil
	case "missing":
		return fmt.Errorf("%w: %s[%d]", ErrElementNotFound, selector, n)
	default:
		return fmt.Errorf("all click strategies failed for %s[%d]", selector, n)
	}
}

// RemoveMatching deletes elements matching selector whose text contains
// needle. Returns how many were removed.
func (it *Interactor) RemoveMatching(ctx context.Context, selector, needle string) (int, error) {
	script := fmt.Sprintf(`(() => {
		let removed = 0;
		for (const el of document.querySelectorAll(%s)) {
			if ((el.textContent || '').includes(%s)) {
				el.remove();
				removed++;
			}
		}
		return removed;
	})()`, jsonEncode(selector), jsonEncode(needle))
	var removed int
	if err := it.Eval(ctx, script, &removed); err != nil {
		return 0, err
	}
	return removed, nil
}

// PageHTML snapshots the full document for out-of-tab parsing.
func (it *Interactor) PageHTML(ctx context.Context) (string, error) {
	var html string
	if err := it.Eval(ctx, `document.documentElement.outerHTML`, &html); err != nil {
		return "", fmt.Errorf("snapshotting page failed: %w", err)
	}
	return html, nil
}

// ScrollIntoView centers the element in the viewport.
func (it *Interactor) ScrollIntoView(ctx context.Context, selector string) error {
	script := fmt.Sprintf(`(() => {
		const el = document.querySelector(%s);
		if (!el) return false;
		el.scrollIntoView({ block: 'center' });
		return true;
	})()`, jsonEncode(selector))
	var ok bool
	return it.Eval(ctx, script, &ok)
}
