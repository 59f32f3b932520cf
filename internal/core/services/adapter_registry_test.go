package services

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tenderline-labs/tenderline/internal/core/domain"
)

func TestAdapterRegistry_RegisterAndGet(t *testing.T) {
	registry := NewAdapterRegistry()
	registry.Register(jsonAdapter{})

	adapter, err := registry.Get("testjson")
	require.NoError(t, err)
	assert.Equal(t, "testjson", adapter.Type())
}

func TestAdapterRegistry_Get_Unknown(t *testing.T) {
	registry := NewAdapterRegistry()

	_, err := registry.Get("nope")
	assert.ErrorIs(t, err, domain.ErrUnsupportedType)
}

func TestAdapterRegistry_Types_Sorted(t *testing.T) {
	registry := NewAdapterRegistry()
	registry.Register(jsonAdapter{})

	assert.Equal(t, []string{"testjson"}, registry.Types())
}
