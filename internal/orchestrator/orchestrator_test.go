// File: internal/orchestrator/orchestrator_test.go
package orchestrator

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap"

	"github.com/Abensoft-Ltda/plugin-simulacao-sub000/api/schemas"
	"github.com/Abensoft-Ltda/plugin-simulacao-sub000/internal/auth"
	"github.com/Abensoft-Ltda/plugin-simulacao-sub000/internal/config"
	"github.com/Abensoft-Ltda/plugin-simulacao-sub000/internal/delivery"
	"github.com/Abensoft-Ltda/plugin-simulacao-sub000/internal/messenger"
	"github.com/Abensoft-Ltda/plugin-simulacao-sub000/internal/payload"
	"github.com/Abensoft-Ltda/plugin-simulacao-sub000/internal/store"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// stubEngine settles instantly with a canned payload per bank.
type stubEngine struct {
	calls atomic.Int32
	fail  bool
}

func (e *stubEngine) Run(ctx context.Context, bank schemas.Bank, fieldMap map[string]string) (*payload.Payload, error) {
	e.calls.Add(1)
	p := payload.New(bank)
	if e.fail {
		p.AddFailure(string(bank) + ": simulação indisponível")
		return p, assert.AnError
	}
	p.AddEntry(map[string]any{"tipo_amortizacao": "SAC", "prazo": "360"})
	return p, nil
}

type fixture struct {
	orch    *Orchestrator
	engine  *stubEngine
	bus     *messenger.Bus
	backend *httptest.Server
	posts   *atomic.Int32
	cancel  context.CancelFunc

	mu     sync.Mutex
	simIDs []string
}

// sentSimIDs lists the sim_id values the backend received, in post order.
func (f *fixture) sentSimIDs() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.simIDs...)
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	f := &fixture{}
	var posts atomic.Int32
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			SimID string `json:"sim_id"`
		}
		_ = json.NewDecoder(r.Body).Decode(&body)
		f.mu.Lock()
		f.simIDs = append(f.simIDs, body.SimID)
		f.mu.Unlock()
		posts.Add(1)
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))
	t.Cleanup(backend.Close)

	cfg := &config.Config{}
	cfg.Automation.MaxAttempts = 1
	cfg.Automation.TargetTimeout = 5 * time.Second
	cfg.Messenger.AckTimeout = 2 * time.Second
	cfg.Delivery = config.DeliveryConfig{
		BaseURL:        backend.URL,
		Timeout:        5 * time.Second,
		RequestsPerSec: 100,
	}

	logger := zap.NewNop()
	st, err := store.Open(filepath.Join(t.TempDir(), "state.json"), logger)
	require.NoError(t, err)

	bus := messenger.NewBus(cfg.Messenger, logger)
	engine := &stubEngine{}
	orch := New(cfg, engine, bus,
		delivery.NewClient(cfg.Delivery, logger),
		auth.NewService(cfg.Delivery, true, st, logger),
		st, logger)

	ctx, cancel := context.WithCancel(context.Background())
	orch.Start(ctx)
	t.Cleanup(func() {
		bus.Close()
		cancel()
		orch.Stop()
	})

	f.orch = orch
	f.engine = engine
	f.bus = bus
	f.backend = backend
	f.posts = &posts
	f.cancel = cancel
	return f
}

func validInput(target string) schemas.SimulationInput {
	return schemas.SimulationInput{
		"target":           target,
		"simulacao_id":     "sim-123",
		"leal_if_id":       "if-9",
		"tipo_imovel":      "Aquisição de Imóvel Novo",
		"valor_imovel":     450000,
		"uf":               "SC",
		"cidade":           "Chapeco",
		"renda_familiar":   9000,
		"data_nasc":        "15/08/1992",
		"cpf":              "52998224725",
		"telefone_celular": "47999998888",
	}
}

func request(inputs ...schemas.SimulationInput) schemas.SimulationRequest {
	return schemas.SimulationRequest{
		Action: schemas.ActionStartSimulation,
		Data:   schemas.RequestData{Targets: inputs},
	}
}

func TestRunBatchSuccess(t *testing.T) {
	f := newFixture(t)

	resp := f.orch.RunBatch(context.Background(), request(validInput("caixa")))

	assert.Equal(t, schemas.BatchSuccess, resp.Status)
	require.Len(t, resp.Results, 1)
	assert.Empty(t, resp.Results[0].Errors)
	assert.Equal(t, "caixa", resp.Results[0].Target)

	var env map[string]any
	require.NoError(t, json.Unmarshal(resp.Results[0].Result, &env))
	assert.Equal(t, "caixa", env["if"])
	assert.Equal(t, "success", env["status"])

	assert.Equal(t, int32(1), f.engine.calls.Load())
	assert.Equal(t, int32(1), f.posts.Load())
	assert.Equal(t, []string{"sim-123"}, f.sentSimIDs(), "the request's simulation id must reach the backend")
	assert.Empty(t, f.orch.Active())
}

func TestRunBatchValidationFailureSkipsEngine(t *testing.T) {
	f := newFixture(t)

	in := validInput("caixa")
	delete(in, "valor_imovel")
	resp := f.orch.RunBatch(context.Background(), request(in))

	assert.Equal(t, schemas.BatchError, resp.Status)
	require.Len(t, resp.Results, 1)
	assert.NotEmpty(t, resp.Results[0].Errors)
	assert.Equal(t, int32(0), f.engine.calls.Load())
	assert.Equal(t, int32(0), f.posts.Load())
}

func TestRunBatchPartial(t *testing.T) {
	f := newFixture(t)

	bad := validInput("bb")
	delete(bad, "cidade")
	resp := f.orch.RunBatch(context.Background(), request(validInput("caixa"), bad))

	assert.Equal(t, schemas.BatchPartial, resp.Status)
	assert.Equal(t, 2, resp.Count)
	assert.Equal(t, int32(1), f.engine.calls.Load())
}

func TestRunBatchEngineFailureStillDelivers(t *testing.T) {
	f := newFixture(t)
	f.engine.fail = true

	resp := f.orch.RunBatch(context.Background(), request(validInput("caixa")))

	assert.Equal(t, schemas.BatchError, resp.Status)
	require.Len(t, resp.Results, 1)
	assert.NotEmpty(t, resp.Results[0].Errors)

	// The failure payload still ships to the backend.
	assert.Equal(t, int32(1), f.posts.Load())
	var env map[string]any
	require.NoError(t, json.Unmarshal(resp.Results[0].Result, &env))
	assert.Equal(t, "failure", env["status"])
}

func TestRunBatchBusyBankRefusesSecondRun(t *testing.T) {
	f := newFixture(t)

	require.True(t, f.orch.claim(schemas.BankCaixa, "other-run"))
	defer f.orch.release(schemas.BankCaixa, "other-run")

	resp := f.orch.RunBatch(context.Background(), request(validInput("caixa")))

	assert.Equal(t, schemas.BatchError, resp.Status)
	require.Len(t, resp.Results, 1)
	assert.Contains(t, resp.Results[0].Errors[0], "já em andamento")
	assert.Equal(t, int32(0), f.engine.calls.Load())
}

func TestRunBatchEmptyRequest(t *testing.T) {
	f := newFixture(t)
	resp := f.orch.RunBatch(context.Background(), request())
	assert.Equal(t, schemas.BatchError, resp.Status)
	assert.Empty(t, resp.Results)
}

func TestRunBatchPersistsOutcome(t *testing.T) {
	f := newFixture(t)

	st := f.orch.store
	_ = f.orch.RunBatch(context.Background(), request(validInput("bb")))

	var outcomes []schemas.TargetOutcome
	found, err := st.Get(store.KeySimulationResult, &outcomes)
	require.NoError(t, err)
	require.True(t, found)
	require.Len(t, outcomes, 1)
	assert.Equal(t, "bb", outcomes[0].Target)

	var summary map[string]any
	found, err = st.Get(store.KeySimulationSummary, &summary)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "success", summary["status"])
}
