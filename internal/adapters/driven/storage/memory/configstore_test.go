package memory

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfigStore_SeededValues(t *testing.T) {
	store := NewConfigStore(map[string]any{
		"server.listen":               "127.0.0.1:9000",
		"ingest.max_concurrent_polls": 8,
		"ingest.watch":                true,
	})

	assert.Equal(t, "127.0.0.1:9000", store.GetString("server.listen"))
	assert.Equal(t, 8, store.GetInt("ingest.max_concurrent_polls"))
	assert.True(t, store.GetBool("ingest.watch"))
}

func TestConfigStore_MissingKeysYieldZeroValues(t *testing.T) {
	store := NewConfigStore()

	_, ok := store.Get("absent")
	assert.False(t, ok)
	assert.Equal(t, "", store.GetString("absent"))
	assert.Equal(t, 0, store.GetInt("absent"))
	assert.False(t, store.GetBool("absent"))
}

func TestConfigStore_SetOverwrites(t *testing.T) {
	store := NewConfigStore(map[string]any{"server.listen": "127.0.0.1:9000"})

	require.NoError(t, store.Set("server.listen", "0.0.0.0:80"))
	assert.Equal(t, "0.0.0.0:80", store.GetString("server.listen"))
}

func TestConfigStore_GetIntCoercesDecodedNumbers(t *testing.T) {
	// TOML decoding hands back int64 and float64, never plain int.
	store := NewConfigStore(map[string]any{
		"as_int64":   int64(6),
		"as_float64": float64(7),
	})

	assert.Equal(t, 6, store.GetInt("as_int64"))
	assert.Equal(t, 7, store.GetInt("as_float64"))
}

func TestConfigStore_WrongTypeYieldsZeroValue(t *testing.T) {
	store := NewConfigStore(map[string]any{"server.listen": 8714})

	assert.Equal(t, "", store.GetString("server.listen"))
	assert.False(t, store.GetBool("server.listen"))
	assert.Equal(t, 0, store.GetInt("not_a_number_either"))
}

func TestConfigStore_PersistenceIsNoOp(t *testing.T) {
	store := NewConfigStore(map[string]any{"key": "kept"})

	require.NoError(t, store.Save())
	require.NoError(t, store.Load())
	assert.Equal(t, "kept", store.GetString("key"))
	assert.Equal(t, ":memory:", store.Path())
}
