package schemas_test

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Abensoft-Ltda/plugin-simulacao-sub000/api/schemas"
)

func TestSimulationInputTarget(t *testing.T) {
	tests := []struct {
		name string
		in   schemas.SimulationInput
		want string
	}{
		{"target key", schemas.SimulationInput{"target": "caixa"}, "caixa"},
		{"if key", schemas.SimulationInput{"if": "104"}, "104"},
		{"banco key", schemas.SimulationInput{"banco": "bb"}, "bb"},
		{"target wins over banco", schemas.SimulationInput{"target": "caixa", "banco": "bb"}, "caixa"},
		{"non-string ignored", schemas.SimulationInput{"target": 104}, ""},
		{"absent", schemas.SimulationInput{}, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.in.Target())
		})
	}
}

func TestResolveBankCodes(t *testing.T) {
	assert.Equal(t, schemas.BankCaixa, schemas.ResolveBank("104"))
	assert.Equal(t, schemas.BankBB, schemas.ResolveBank("1"))
	assert.Equal(t, schemas.BankCaixa, schemas.ResolveBank("Caixa Econômica Federal"))
	assert.Equal(t, schemas.BankBB, schemas.ResolveBank("Banco do Brasil"))
	assert.Equal(t, schemas.Bank("santander"), schemas.ResolveBank(" Santander "))
}

func TestTargetOutcomeFailed(t *testing.T) {
	assert.False(t, schemas.TargetOutcome{Target: "bb"}.Failed())
	assert.True(t, schemas.TargetOutcome{Target: "bb", Errors: []string{"x"}}.Failed())
}

func TestSimulationRequestRoundTrip(t *testing.T) {
	raw := []byte(`{
		"action": "startSimulationRequest",
		"data": {"targets": [{"target": "caixa", "valor_imovel": 450000}]}
	}`)
	var req schemas.SimulationRequest
	require.NoError(t, json.Unmarshal(raw, &req))
	assert.Equal(t, schemas.ActionStartSimulation, req.Action)
	require.Len(t, req.Data.Targets, 1)
	assert.Equal(t, "caixa", req.Data.Targets[0].Target())
}
