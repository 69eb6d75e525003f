package services

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
	"noteassist/internal/data/embedded"
)

// Model kinds in the catalog.
const (
	KindChat          = "chat"
	KindImage         = "image"
	KindTranscription = "transcription"
)

// ModelCatalogEntry describes one model offered by the assistant.
type ModelCatalogEntry struct {
	ID            string   `yaml:"id"`
	Provider      string   `yaml:"provider"`
	Kind          string   `yaml:"kind"`
	DisplayName   string   `yaml:"display_name"`
	ContextWindow int      `yaml:"context_window,omitempty"`
	Vision        bool     `yaml:"vision,omitempty"`
	MaxImages     int      `yaml:"max_images,omitempty"`
	Sizes         []string `yaml:"sizes,omitempty"`
	HD            bool     `yaml:"hd,omitempty"`
}

type modelCatalogFile struct {
	Models []ModelCatalogEntry `yaml:"models"`
}

// ModelCatalogService answers questions about known models from the embedded catalog.
type ModelCatalogService struct {
	once   sync.Once
	data   []byte
	models []ModelCatalogEntry
	err    error
}

// NewModelCatalogService creates a catalog backed by the embedded YAML.
func NewModelCatalogService() *ModelCatalogService {
	return &ModelCatalogService{data: embedded.ModelCatalogData}
}

// newModelCatalogFromYAML creates a catalog over arbitrary YAML, for tests.
func newModelCatalogFromYAML(data []byte) *ModelCatalogService {
	return &ModelCatalogService{data: data}
}

// Name returns the service name "model_catalog" for registration.
func (m *ModelCatalogService) Name() string {
	return "model_catalog"
}

// Initialize parses the catalog.
func (m *ModelCatalogService) Initialize() error {
	_, err := m.load()
	return err
}

func (m *ModelCatalogService) load() ([]ModelCatalogEntry, error) {
	m.once.Do(func() {
		var file modelCatalogFile
		if err := yaml.Unmarshal(m.data, &file); err != nil {
			m.err = fmt.Errorf("failed to parse model catalog: %w", err)
			return
		}
		if err := validateUniqueIDs(file.Models); err != nil {
			m.err = fmt.Errorf("model catalog validation failed: %w", err)
			return
		}
		m.models = file.Models
	})
	return m.models, m.err
}

// Models returns the catalog entries of one kind, sorted by provider then id. An empty kind
// returns every entry.
func (m *ModelCatalogService) Models(kind string) ([]ModelCatalogEntry, error) {
	all, err := m.load()
	if err != nil {
		return nil, err
	}
	var out []ModelCatalogEntry
	for _, model := range all {
		if kind == "" || model.Kind == kind {
			out = append(out, model)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Provider != out[j].Provider {
			return out[i].Provider < out[j].Provider
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

// Search returns entries whose id or display name contains query, case-insensitively.
func (m *ModelCatalogService) Search(query string) ([]ModelCatalogEntry, error) {
	all, err := m.Models("")
	if err != nil {
		return nil, err
	}
	q := strings.ToLower(query)
	var matches []ModelCatalogEntry
	for _, model := range all {
		if strings.Contains(strings.ToLower(model.ID), q) ||
			strings.Contains(strings.ToLower(model.DisplayName), q) {
			matches = append(matches, model)
		}
	}
	return matches, nil
}

// Lookup returns the entry for id (case-insensitive).
func (m *ModelCatalogService) Lookup(id string) (ModelCatalogEntry, bool) {
	all, err := m.load()
	if err != nil {
		return ModelCatalogEntry{}, false
	}
	for _, model := range all {
		if strings.EqualFold(model.ID, id) {
			return model, true
		}
	}
	return ModelCatalogEntry{}, false
}

// SupportsImages reports whether a chat model accepts image parts. Unknown models are
// assumed text-only.
func (m *ModelCatalogService) SupportsImages(id string) bool {
	model, ok := m.Lookup(id)
	return ok && model.Kind == KindChat && model.Vision
}

func validateUniqueIDs(models []ModelCatalogEntry) error {
	seen := make(map[string]string)
	for _, model := range models {
		if model.ID == "" {
			return fmt.Errorf("model %q has empty ID field", model.DisplayName)
		}
		key := strings.ToUpper(model.ID)
		if existing, ok := seen[key]; ok {
			return fmt.Errorf("duplicate model ID found: '%s' and '%s' (case insensitive)", existing, model.ID)
		}
		seen[key] = model.ID
	}
	return nil
}
