// File: internal/browser/manager.go
package browser

import (
	"context"
	"fmt"
	"sync"

	"github.com/chromedp/chromedp"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Abensoft-Ltda/plugin-simulacao-sub000/internal/config"
)

// Manager owns the headless browser process and hands out isolated tabs.
// One tab is opened per bank target; tabs never share page state.
type Manager struct {
	logger *zap.Logger
	cfg    *config.Config

	allocCtx    context.Context
	allocCancel context.CancelFunc
	rootCtx     context.Context
	rootCancel  context.CancelFunc

	mu   sync.Mutex
	tabs map[string]*Tab

	initOnce sync.Once
	initErr  error
}

// Tab is one isolated page context, identified by the id the orchestrator
// keys its automation records on.
type Tab struct {
	ID     string
	ctx    context.Context
	cancel context.CancelFunc

	closeOnce sync.Once
	onClose   func(id string)
}

// NewManager creates a browser manager. The browser process itself starts
// lazily on the first tab request.
func NewManager(cfg *config.Config, logger *zap.Logger) *Manager {
	return &Manager{
		logger: logger.Named("browser"),
		cfg:    cfg,
		tabs:   make(map[string]*Tab),
	}
}

func (m *Manager) initialize() error {
	m.initOnce.Do(func() {
		opts := append([]chromedp.ExecAllocatorOption{}, chromedp.DefaultExecAllocatorOptions[:]...)
		if !m.cfg.Browser.Headless {
			opts = append(opts, chromedp.Flag("headless", false))
		}
		opts = append(opts,
			chromedp.Flag("disable-gpu", true),
			chromedp.Flag("no-sandbox", true),
			chromedp.Flag("disable-dev-shm-usage", true),
		)
		if m.cfg.Browser.DisableCache {
			opts = append(opts, chromedp.Flag("disable-application-cache", true))
		}
		if m.cfg.Browser.IgnoreTLSErrors {
			opts = append(opts, chromedp.Flag("ignore-certificate-errors", true))
		}
		if ua := m.cfg.Browser.UserAgent; ua != "" {
			opts = append(opts, chromedp.UserAgent(ua))
		}
		if w, h := m.cfg.Browser.Viewport["width"], m.cfg.Browser.Viewport["height"]; w > 0 && h > 0 {
			opts = append(opts, chromedp.WindowSize(w, h))
		}
		for _, arg := range m.cfg.Browser.Args {
			opts = append(opts, chromedp.Flag(arg, true))
		}

		m.allocCtx, m.allocCancel = chromedp.NewExecAllocator(context.Background(), opts...)
		m.rootCtx, m.rootCancel = chromedp.NewContext(m.allocCtx)

		// Launch the browser process now so tab creation failures are
		// distinguishable from launch failures.
		if err := chromedp.Run(m.rootCtx); err != nil {
			m.initErr = fmt.Errorf("failed to launch browser: %w", err)
			m.rootCancel()
			m.allocCancel()
			return
		}
		m.logger.Info("Browser launched.", zap.Bool("headless", m.cfg.Browser.Headless))
	})
	return m.initErr
}

// NewTab opens a fresh isolated tab and registers it.
func (m *Manager) NewTab() (*Tab, error) {
	if err := m.initialize(); err != nil {
		return nil, err
	}

	ctx, cancel := chromedp.NewContext(m.rootCtx)
	tab := &Tab{
		ID:     uuid.NewString(),
		ctx:    ctx,
		cancel: cancel,
		onClose: func(id string) {
			m.mu.Lock()
			delete(m.tabs, id)
			m.mu.Unlock()
		},
	}

	m.mu.Lock()
	m.tabs[tab.ID] = tab
	m.mu.Unlock()

	m.logger.Debug("Tab opened.", zap.String("tab_id", tab.ID))
	return tab, nil
}

// Shutdown closes every tab and tears the browser process down.
func (m *Manager) Shutdown() {
	m.mu.Lock()
	open := make([]*Tab, 0, len(m.tabs))
	for _, t := range m.tabs {
		open = append(open, t)
	}
	m.mu.Unlock()

	for _, t := range open {
		t.Close()
	}
	if m.rootCancel != nil {
		m.rootCancel()
	}
	if m.allocCancel != nil {
		m.allocCancel()
	}
	m.logger.Info("Browser shut down.")
}

// Run executes chromedp actions on the tab. The caller's context only gates
// the wait: an expired caller context abandons the in-flight action rather
// than killing the tab.
func (t *Tab) Run(ctx context.Context, actions ...chromedp.Action) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	done := make(chan error, 1)
	go func() {
		done <- chromedp.Run(t.ctx, actions...)
	}()
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	case <-t.ctx.Done():
		return fmt.Errorf("tab closed: %w", t.ctx.Err())
	}
}

// Navigate drives the tab to a URL and waits for the load to settle.
func (t *Tab) Navigate(ctx context.Context, url string) error {
	if err := t.Run(ctx, chromedp.Navigate(url)); err != nil {
		return fmt.Errorf("navigation to %s failed: %w", url, err)
	}
	return nil
}

// Close releases the tab. Safe to call more than once.
func (t *Tab) Close() {
	t.closeOnce.Do(func() {
		t.cancel()
		if t.onClose != nil {
			t.onClose(t.ID)
		}
	})
}

// Context exposes the tab's chromedp context for direct action building.
func (t *Tab) Context() context.Context { return t.ctx }
