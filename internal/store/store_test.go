// File: internal/store/store_test.go
package store

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func openTemp(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "state.json")
	s, err := Open(path, zap.NewNop())
	require.NoError(t, err)
	return s
}

func TestRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	s, err := Open(path, zap.NewNop())
	require.NoError(t, err)

	session := map[string]string{"z.auth": "tok", "cotonic-sid": "sid"}
	require.NoError(t, s.Set(KeySessionData, session))
	require.NoError(t, s.Set(KeyAuthExpiry, int64(1767225600)))

	// Reopen from disk.
	s2, err := Open(path, zap.NewNop())
	require.NoError(t, err)

	var got map[string]string
	ok, err := s2.Get(KeySessionData, &got)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, session, got)

	var expiry int64
	ok, err = s2.Get(KeyAuthExpiry, &expiry)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, int64(1767225600), expiry)
}

func TestGetMissingKey(t *testing.T) {
	s := openTemp(t)
	var out string
	ok, err := s.Get("nope", &out)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestDelete(t *testing.T) {
	s := openTemp(t)
	require.NoError(t, s.Set(KeyAuthToken, "tok"))
	require.NoError(t, s.Delete(KeyAuthToken, "unknown-key"))

	var out string
	ok, err := s.Get(KeyAuthToken, &out)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestCorruptFileMovedAside(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "state.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o644))

	s, err := Open(path, zap.NewNop())
	require.NoError(t, err)
	require.NoError(t, s.Set(KeyAuthToken, "fresh"))

	_, err = os.Stat(path + ".corrupt")
	assert.NoError(t, err, "corrupt file is preserved for inspection")
}

func TestLogHistory(t *testing.T) {
	s := openTemp(t)
	require.NoError(t, s.AppendLog("caixa", "primeira mensagem"))
	require.NoError(t, s.AppendLog("bb", "segunda mensagem"))

	history := s.LogHistory()
	require.Len(t, history, 2)
	assert.Equal(t, "caixa", history[0].Source)
	assert.Equal(t, "segunda mensagem", history[1].Message)
	assert.False(t, history[0].Timestamp.IsZero())
}

func TestLogHistorySkipsMalformedRecords(t *testing.T) {
	s := openTemp(t)
	require.NoError(t, s.Set(KeyLogHistory, []any{
		map[string]any{"timestamp": "2026-01-01T00:00:00Z", "source": "caixa", "message": "válida"},
		map[string]any{"source": "bb"},
		"not even an object",
	}))

	history := s.LogHistory()
	require.Len(t, history, 1)
	assert.Equal(t, "válida", history[0].Message)
}

func TestLogHistoryBounded(t *testing.T) {
	s := openTemp(t)
	for i := 0; i < maxLogHistory+25; i++ {
		require.NoError(t, s.AppendLog("test", "m"))
	}
	assert.Len(t, s.LogHistory(), maxLogHistory)
}
