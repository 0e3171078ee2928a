// File: cmd/cmd_test.go
package cmd

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Abensoft-Ltda/plugin-simulacao-sub000/api/schemas"
)

func writeTemp(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "request.json")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestReadRequestFullEnvelope(t *testing.T) {
	path := writeTemp(t, `{
		"action": "startSimulationRequest",
		"data": {"targets": [{"target": "caixa", "valor_imovel": 450000}]}
	}`)

	req, err := readRequest([]string{path})
	require.NoError(t, err)
	assert.Equal(t, schemas.ActionStartSimulation, req.Action)
	require.Len(t, req.Data.Targets, 1)
	assert.Equal(t, "caixa", req.Data.Targets[0].Target())
}

func TestReadRequestBareTargetList(t *testing.T) {
	path := writeTemp(t, `[{"target": "bb"}, {"target": "104"}]`)

	req, err := readRequest([]string{path})
	require.NoError(t, err)
	assert.Equal(t, schemas.ActionStartSimulation, req.Action)
	require.Len(t, req.Data.Targets, 2)
	assert.Equal(t, "bb", req.Data.Targets[0].Target())
}

func TestReadRequestGarbage(t *testing.T) {
	path := writeTemp(t, `"not a request"`)
	_, err := readRequest([]string{path})
	assert.Error(t, err)
}

func TestReadRequestMissingFile(t *testing.T) {
	_, err := readRequest([]string{filepath.Join(t.TempDir(), "absent.json")})
	assert.Error(t, err)
}

func TestRootCommandWiring(t *testing.T) {
	names := make(map[string]bool)
	for _, c := range rootCmd.Commands() {
		names[c.Name()] = true
	}
	assert.True(t, names["simulate"])
	assert.True(t, names["login"])
	assert.True(t, names["logs"])

	assert.NotNil(t, rootCmd.PersistentFlags().Lookup("config"))
	assert.NotNil(t, rootCmd.PersistentFlags().Lookup("dev"))
}
