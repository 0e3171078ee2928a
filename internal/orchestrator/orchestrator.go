// File: internal/orchestrator/orchestrator.go

// Package orchestrator coordinates multi-target simulation runs: it
// validates the inbound request, fans one automation engine out per bank
// target, consumes the finished payloads off the messenger bus, forwards
// them to the remote backend and settles the batch outcome.
package orchestrator

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/Abensoft-Ltda/plugin-simulacao-sub000/api/schemas"
	"github.com/Abensoft-Ltda/plugin-simulacao-sub000/internal/auth"
	"github.com/Abensoft-Ltda/plugin-simulacao-sub000/internal/browser"
	"github.com/Abensoft-Ltda/plugin-simulacao-sub000/internal/config"
	"github.com/Abensoft-Ltda/plugin-simulacao-sub000/internal/delivery"
	"github.com/Abensoft-Ltda/plugin-simulacao-sub000/internal/fields"
	"github.com/Abensoft-Ltda/plugin-simulacao-sub000/internal/messenger"
	"github.com/Abensoft-Ltda/plugin-simulacao-sub000/internal/navigator"
	"github.com/Abensoft-Ltda/plugin-simulacao-sub000/internal/payload"
	"github.com/Abensoft-Ltda/plugin-simulacao-sub000/internal/store"
)

// Result delivery to the bus retries a few times before settling for an
// unconfirmed receipt.
const (
	resultSendAttempts = 3
	resultRetryDelay   = time.Second
)

// Engine runs one bank's automation end to end. The production engine
// opens a browser tab; tests substitute their own.
type Engine interface {
	Run(ctx context.Context, bank schemas.Bank, fieldMap map[string]string) (*payload.Payload, error)
}

// browserEngine is the production Engine: one fresh tab per run, closed
// when the run settles.
type browserEngine struct {
	manager  *browser.Manager
	registry *navigator.Registry
}

func NewBrowserEngine(manager *browser.Manager, registry *navigator.Registry) Engine {
	return &browserEngine{manager: manager, registry: registry}
}

func (e *browserEngine) Run(ctx context.Context, bank schemas.Bank, fieldMap map[string]string) (*payload.Payload, error) {
	nav, err := e.registry.For(bank)
	if err != nil {
		return nil, err
	}
	tab, err := e.manager.NewTab()
	if err != nil {
		return nil, fmt.Errorf("opening tab for %q: %w", bank, err)
	}
	defer tab.Close()
	return nav.Run(ctx, tab, fieldMap)
}

// resultEnvelope is the wire body engines publish on the bus: enough to
// forward the payload without the consumer re-deriving request context.
type resultEnvelope struct {
	SimID  string          `json:"sim_id"`
	IfID   string          `json:"if_id"`
	Target string          `json:"target"`
	Result json.RawMessage `json:"result"`
}

// batchSummary is what gets persisted after every batch.
type batchSummary struct {
	Status     schemas.BatchStatus `json:"status"`
	Count      int                 `json:"count"`
	Succeeded  int                 `json:"succeeded"`
	FinishedAt time.Time           `json:"finished_at"`
}

// Orchestrator owns the batch lifecycle. One automation may be active per
// bank at a time; a second request for a busy bank settles immediately
// with an error outcome instead of stacking tabs.
type Orchestrator struct {
	logger *zap.Logger
	cfg    *config.Config

	engine Engine
	bus    *messenger.Bus
	client *delivery.Client
	auth   *auth.Service
	store  *store.Store

	mu     sync.Mutex
	active map[schemas.Bank]string

	consumerWG sync.WaitGroup
}

func New(cfg *config.Config, engine Engine, bus *messenger.Bus, client *delivery.Client, authSvc *auth.Service, st *store.Store, logger *zap.Logger) *Orchestrator {
	return &Orchestrator{
		logger: logger.Named("orchestrator"),
		cfg:    cfg,
		engine: engine,
		bus:    bus,
		client: client,
		auth:   authSvc,
		store:  st,
		active: make(map[schemas.Bank]string),
	}
}

// Start launches the result consumer. It runs until the bus closes or the
// context is canceled; Stop waits for it to drain.
func (o *Orchestrator) Start(ctx context.Context) {
	o.consumerWG.Add(1)
	go func() {
		defer o.consumerWG.Done()
		o.consumeResults(ctx)
	}()
}

// Stop waits for the consumer to exit. The bus must be closed (or the
// start context canceled) first.
func (o *Orchestrator) Stop() {
	o.consumerWG.Wait()
}

// Active lists the banks with an automation currently in flight.
func (o *Orchestrator) Active() []schemas.Bank {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make([]schemas.Bank, 0, len(o.active))
	for bank := range o.active {
		out = append(out, bank)
	}
	return out
}

// claim registers a bank as busy. The id lets release stay idempotent
// across overlapping batches.
func (o *Orchestrator) claim(bank schemas.Bank, id string) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	if _, busy := o.active[bank]; busy {
		return false
	}
	o.active[bank] = id
	return true
}

func (o *Orchestrator) release(bank schemas.Bank, id string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.active[bank] == id {
		delete(o.active, bank)
	}
}

// RunBatch settles every target of the request, successful or not, and
// classifies the whole. Validation failures and busy banks settle without
// touching the browser.
func (o *Orchestrator) RunBatch(ctx context.Context, req schemas.SimulationRequest) schemas.SimulationResponse {
	targets := req.Data.Targets
	outcomes := make([]schemas.TargetOutcome, len(targets))

	if len(targets) == 0 {
		return schemas.SimulationResponse{Status: schemas.BatchError, Results: []schemas.TargetOutcome{}}
	}

	if !o.auth.Validate(ctx) {
		o.logger.Warn("Batch refused: no valid backend session.")
		for i, input := range targets {
			outcomes[i] = schemas.TargetOutcome{
				Target: input.Target(),
				Errors: []string{"sessão de autenticação inválida ou expirada"},
			}
		}
		return o.settle(outcomes)
	}

	g, gctx := errgroup.WithContext(ctx)
	for i, input := range targets {
		g.Go(func() error {
			outcomes[i] = o.runTarget(gctx, input)
			return nil
		})
	}
	_ = g.Wait()

	return o.settle(outcomes)
}

// runTarget takes one raw input through validation, automation and bus
// publication. It always returns a settled outcome.
func (o *Orchestrator) runTarget(ctx context.Context, input schemas.SimulationInput) schemas.TargetOutcome {
	rawTarget := input.Target()
	bank := schemas.ResolveBank(rawTarget)
	outcome := schemas.TargetOutcome{Target: string(bank)}
	log := o.logger.With(zap.String("bank", string(bank)))

	built := fields.Build(bank, input)
	if built.Failed() {
		log.Warn("Input rejected by field validation.", zap.Strings("errors", built.Errors))
		outcome.Errors = built.Errors
		return outcome
	}

	simID := built.Fields["id"]
	if !o.claim(bank, simID) {
		log.Warn("Bank already has an automation in flight.")
		outcome.Errors = []string{fmt.Sprintf("simulação já em andamento para %s", bank)}
		return outcome
	}
	defer o.release(bank, simID)

	runCtx := ctx
	if o.cfg.Automation.TargetTimeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, o.cfg.Automation.TargetTimeout)
		defer cancel()
	}

	log.Info("Starting automation.", zap.String("sim_id", simID))
	p, runErr := o.engine.Run(runCtx, bank, built.Fields)
	if p == nil {
		p = payload.New(bank)
		msg := "falha na automação"
		if runErr != nil {
			msg = runErr.Error()
		}
		p.AddFailure(fmt.Sprintf("%s: %s", bank, msg))
	}
	if runErr != nil {
		log.Warn("Automation finished with an error.", zap.Error(runErr))
		outcome.Errors = append(outcome.Errors, runErr.Error())
	}

	raw, err := p.ToJSON()
	if err != nil {
		outcome.Errors = append(outcome.Errors, err.Error())
		return outcome
	}
	outcome.Result = raw

	body, err := json.Marshal(resultEnvelope{
		SimID:  simID,
		IfID:   built.Fields["leal_if_id"],
		Target: string(bank),
		Result: raw,
	})
	if err != nil {
		outcome.Errors = append(outcome.Errors, err.Error())
		return outcome
	}

	receipt := o.bus.SendWithRetry(ctx, schemas.ActionSimulationResult, body,
		o.cfg.Messenger.AckTimeout, resultSendAttempts, resultRetryDelay)
	if !receipt.Confirmed {
		log.Warn("Result publication was never confirmed.",
			zap.String("request_id", receipt.RequestID))
		outcome.Errors = append(outcome.Errors, "entrega do resultado não confirmada")
	}
	return outcome
}

// consumeResults forwards each published payload to the remote backend and
// acknowledges the waiting engine with the forwarding outcome.
func (o *Orchestrator) consumeResults(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-o.bus.Done():
			return
		case msg := <-o.bus.Results():
			o.handleResult(ctx, msg)
		}
	}
}

func (o *Orchestrator) handleResult(ctx context.Context, msg schemas.ResultMessage) {
	var env resultEnvelope
	if err := json.Unmarshal(msg.Payload.Payload, &env); err != nil {
		o.logger.Error("Discarding malformed result message.", zap.Error(err))
		o.bus.Acknowledge(msg.RequestID, false, "", err.Error())
		return
	}
	p, err := payload.FromJSON(env.Result)
	if err != nil {
		o.logger.Error("Discarding result with a broken payload envelope.", zap.Error(err))
		o.bus.Acknowledge(msg.RequestID, false, "", err.Error())
		return
	}

	body, err := o.client.SendResults(ctx, env.SimID, env.IfID, p, o.auth.SessionData())
	if err != nil {
		o.logger.Error("Backend delivery failed.",
			zap.String("bank", string(p.Bank())), zap.Error(err))
		_ = o.store.AppendLog("delivery", fmt.Sprintf("%s: %v", p.Bank(), err))
		o.bus.Acknowledge(msg.RequestID, false, "", err.Error())
		return
	}
	o.bus.Acknowledge(msg.RequestID, true, string(body), "")
}

// settle classifies the batch, persists the outcome and builds the answer.
func (o *Orchestrator) settle(outcomes []schemas.TargetOutcome) schemas.SimulationResponse {
	succeeded := 0
	for _, out := range outcomes {
		if !out.Failed() {
			succeeded++
		}
	}
	status := schemas.BatchError
	switch {
	case succeeded == len(outcomes):
		status = schemas.BatchSuccess
	case succeeded > 0:
		status = schemas.BatchPartial
	}

	if err := o.store.Set(store.KeySimulationResult, outcomes); err != nil {
		o.logger.Warn("Could not persist batch results.", zap.Error(err))
	}
	summary := batchSummary{
		Status:     status,
		Count:      len(outcomes),
		Succeeded:  succeeded,
		FinishedAt: time.Now().UTC(),
	}
	if err := o.store.Set(store.KeySimulationSummary, summary); err != nil {
		o.logger.Warn("Could not persist batch summary.", zap.Error(err))
	}
	o.logger.Info("Batch settled.",
		zap.String("status", string(status)),
		zap.Int("count", len(outcomes)),
		zap.Int("succeeded", succeeded))

	return schemas.SimulationResponse{Status: status, Count: len(outcomes), Results: outcomes}
}
