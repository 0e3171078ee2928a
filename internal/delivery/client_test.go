// File: internal/delivery/client_test.go
package delivery

import (
	"compress/gzip"
	"context"
	stdjson "encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Abensoft-Ltda/plugin-simulacao-sub000/api/schemas"
	"github.com/Abensoft-Ltda/plugin-simulacao-sub000/internal/config"
	"github.com/Abensoft-Ltda/plugin-simulacao-sub000/internal/payload"
)

func newTestClient(baseURL string) *Client {
	return NewClient(config.DeliveryConfig{
		BaseURL:        baseURL,
		Timeout:        5 * time.Second,
		RequestsPerSec: 100,
	}, zap.NewNop())
}

func successPayload(t *testing.T) *payload.Payload {
	t.Helper()
	p := payload.New(schemas.BankCaixa)
	require.True(t, p.AddEntry(map[string]any{
		"tipo_amortizacao": "SAC",
		"prazo":            "360",
		"valor_total":      "R$ 280.000,00",
	}))
	return p
}

func TestSendResults(t *testing.T) {
	var captured struct {
		path   string
		cookie string
		body   map[string]any
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		captured.path = r.URL.Path
		captured.cookie = r.Header.Get("Cookie")
		require.NoError(t, stdjson.NewDecoder(r.Body).Decode(&captured.body))
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	client := newTestClient(srv.URL)
	session := map[string]string{
		"z.auth":       "tok",
		"cotonic-sid":  "sid",
		"extra_cookie": "x",
	}

	resp, err := client.SendResults(context.Background(), "sim-1", "caixa", successPayload(t), session)
	require.NoError(t, err)
	assert.JSONEq(t, `{"ok":true}`, string(resp))

	assert.Equal(t, "/api/model/sl_cad_interacao_simulacao/post/insert_simulacao", captured.path)
	assert.Equal(t, "cotonic-sid=sid; z.auth=tok; extra_cookie=x", captured.cookie)

	assert.Equal(t, "sim-1", captured.body["sim_id"])
	assert.Equal(t, "caixa", captured.body["if_id"])
	apiData := captured.body["api_data"].(map[string]any)
	assert.Equal(t, "caixa", apiData["target"])
	assert.Equal(t, "success", apiData["status"])
	result := apiData["data"].(map[string]any)["result"].([]any)
	require.Len(t, result, 1)
	entry := result[0].(map[string]any)
	assert.Equal(t, "SAC", entry["tipo_amortizacao"])
	assert.Contains(t, entry, "juros_nominais", "entries always ship all six keys")
}

func TestSendResultsEmptyPayloadShipsFailure(t *testing.T) {
	var body map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, stdjson.NewDecoder(r.Body).Decode(&body))
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	p := payload.New(schemas.BankBB)
	_, err := newTestClient(srv.URL).SendResults(context.Background(), "sim-2", "bb", p, nil)
	require.NoError(t, err)

	apiData := body["api_data"].(map[string]any)
	assert.Equal(t, "failure", apiData["status"])
	result := apiData["data"].(map[string]any)["result"].([]any)
	require.Len(t, result, 1)
	assert.Equal(t, "bb: resultado vazio", result[0].(map[string]any)["tipo_amortizacao"])
}

func TestSendResultsSwallowsBackendTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte("Gateway Timeout while inserting"))
	}))
	defer srv.Close()

	_, err := newTestClient(srv.URL).SendResults(context.Background(), "sim-3", "caixa", successPayload(t), nil)
	assert.NoError(t, err, "a 500 whose body mentions timeout is ignorable")
}

func TestSendResultsRejectsOtherErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		w.Write([]byte("sessão expirada"))
	}))
	defer srv.Close()

	_, err := newTestClient(srv.URL).SendResults(context.Background(), "sim-4", "caixa", successPayload(t), nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "403")
	assert.Contains(t, err.Error(), "sessão expirada")
}

func TestSendResultsDecodesGzip(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Contains(t, r.Header.Get("Accept-Encoding"), "gzip")
		w.Header().Set("Content-Encoding", "gzip")
		gz := gzip.NewWriter(w)
		gz.Write([]byte(`{"compressed":true}`))
		gz.Close()
	}))
	defer srv.Close()

	resp, err := newTestClient(srv.URL).SendResults(context.Background(), "sim-5", "caixa", successPayload(t), nil)
	require.NoError(t, err)
	assert.JSONEq(t, `{"compressed":true}`, string(resp))
}

func TestBuildCookieHeader(t *testing.T) {
	t.Run("preferred order then alphabetical", func(t *testing.T) {
		session := map[string]string{
			"bravo":       "2",
			"z.tz":        "America/Sao_Paulo",
			"alpha":       "1",
			"z.auth":      "tok",
			"cf_clearance": "cf",
		}
		got := BuildCookieHeader(session)
		assert.Equal(t, "cf_clearance=cf; z.auth=tok; z.tz=America/Sao_Paulo; alpha=1; bravo=2", got)
	})

	t.Run("empty values are dropped", func(t *testing.T) {
		assert.Equal(t, "z.auth=tok", BuildCookieHeader(map[string]string{"z.auth": "tok", "startHidden": ""}))
	})

	t.Run("no session no header", func(t *testing.T) {
		assert.Equal(t, "", BuildCookieHeader(nil))
	})
}

func TestSendResultsNetworkErrorPropagates(t *testing.T) {
	client := newTestClient("http://127.0.0.1:1")
	_, err := client.SendResults(context.Background(), "sim-6", "caixa", successPayload(t), nil)
	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "delivery request failed"))
}
