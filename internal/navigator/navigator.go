// File: internal/navigator/navigator.go

// Package navigator holds the per-bank automation engines. Each engine
// drives one bank's simulation form inside an isolated tab: it discovers
// controls by polling, fills them with synthetic input, advances the
// multi-step flow, watches for bank-side validation dialogs, and extracts
// the rendered offers into a simulation payload.
package navigator

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/Abensoft-Ltda/plugin-simulacao-sub000/api/schemas"
	"github.com/Abensoft-Ltda/plugin-simulacao-sub000/internal/browser"
	"github.com/Abensoft-Ltda/plugin-simulacao-sub000/internal/browser/dom"
	"github.com/Abensoft-Ltda/plugin-simulacao-sub000/internal/config"
	"github.com/Abensoft-Ltda/plugin-simulacao-sub000/internal/payload"
)

// Navigator runs one bank's complete simulation flow in the given tab.
// The returned payload is never nil: failures come back as failure
// payloads, and the error is reserved for conditions the caller should
// treat as a run-level fault (timeouts, tab loss).
type Navigator interface {
	Bank() schemas.Bank
	URL() string
	Run(ctx context.Context, tab *browser.Tab, fields map[string]string) (*payload.Payload, error)
}

// Registry resolves a navigator for a bank.
type Registry struct {
	navigators map[schemas.Bank]Navigator
}

func NewRegistry(cfg *config.Config, logger *zap.Logger) *Registry {
	r := &Registry{navigators: make(map[schemas.Bank]Navigator)}
	r.register(NewCaixa(cfg, logger))
	r.register(NewBB(cfg, logger))
	return r
}

func (r *Registry) register(n Navigator) {
	r.navigators[n.Bank()] = n
}

// For returns the navigator for a bank.
func (r *Registry) For(bank schemas.Bank) (Navigator, error) {
	n, ok := r.navigators[bank]
	if !ok {
		return nil, fmt.Errorf("no automation available for bank %q", bank)
	}
	return n, nil
}

// Banks lists the supported banks.
func (r *Registry) Banks() []schemas.Bank {
	out := make([]schemas.Bank, 0, len(r.navigators))
	for bank := range r.navigators {
		out = append(out, bank)
	}
	return out
}

// domConfig adapts the automation timing knobs for the interactor layer.
func domConfig(cfg *config.Config) dom.Config {
	return dom.Config{
		MaxAttempts:  cfg.Automation.MaxAttempts,
		RetryDelay:   cfg.Automation.RetryDelay,
		PollInterval: cfg.Automation.PollInterval,
		WaitShort:    cfg.Automation.WaitShort,
		WaitLong:     cfg.Automation.WaitLong,
		TypeDelay:    cfg.Automation.TypeDelay,
	}
}

// sleep pauses honoring the context deadline.
func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
