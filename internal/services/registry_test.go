package services

import (
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// MockService records initialization.
type MockService struct {
	name            string
	initializeError error
	initialized     *[]string
}

func (m *MockService) Name() string { return m.name }

func (m *MockService) Initialize() error {
	if m.initialized != nil {
		*m.initialized = append(*m.initialized, m.name)
	}
	return m.initializeError
}

func TestRegistry_RegisterService(t *testing.T) {
	registry := NewRegistry()
	require.NoError(t, registry.RegisterService(&MockService{name: "a"}))

	err := registry.RegisterService(&MockService{name: "a"})
	assert.ErrorContains(t, err, "already registered")

	service, err := registry.GetService("a")
	require.NoError(t, err)
	assert.Equal(t, "a", service.Name())

	_, err = registry.GetService("missing")
	assert.ErrorContains(t, err, "not found")
}

func TestRegistry_InitializeAllInOrder(t *testing.T) {
	var order []string
	registry := NewRegistry()
	for _, name := range []string{"model_catalog", "markdown", "client_factory"} {
		require.NoError(t, registry.RegisterService(&MockService{name: name, initialized: &order}))
	}

	require.NoError(t, registry.InitializeAll())
	assert.Equal(t, []string{"model_catalog", "markdown", "client_factory"}, order)
}

func TestRegistry_InitializeAllStopsOnError(t *testing.T) {
	var order []string
	registry := NewRegistry()
	require.NoError(t, registry.RegisterService(&MockService{name: "ok", initialized: &order}))
	require.NoError(t, registry.RegisterService(&MockService{name: "bad", initialized: &order, initializeError: errors.New("boom")}))
	require.NoError(t, registry.RegisterService(&MockService{name: "never", initialized: &order}))

	err := registry.InitializeAll()
	assert.ErrorContains(t, err, "failed to initialize service bad")
	assert.Equal(t, []string{"ok", "bad"}, order)
}

func TestRegistry_Lookup(t *testing.T) {
	registry := NewRegistry()
	require.NoError(t, registry.RegisterService(NewModelCatalogService()))
	require.NoError(t, registry.RegisterService(&MockService{name: "markdown"}))

	catalog, err := Lookup[*ModelCatalogService](registry, "model_catalog")
	require.NoError(t, err)
	assert.NotNil(t, catalog)

	_, err = Lookup[*MarkdownService](registry, "markdown")
	assert.ErrorContains(t, err, "unexpected type")
}

func TestRegistry_ConcurrentAccess(t *testing.T) {
	registry := NewRegistry()
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_ = registry.RegisterService(&MockService{name: fmt.Sprintf("svc-%d", i)})
			_ = registry.GetAllServices()
		}(i)
	}
	wg.Wait()
	assert.Len(t, registry.GetAllServices(), 20)
}
