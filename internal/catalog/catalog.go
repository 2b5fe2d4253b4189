// Package catalog scans a directory of model files and answers lookups
// against it. File extension decides the model kind: .gguf files are
// text-generation models, .safetensors and .ckpt files are image-diffusion
// models. The full filename doubles as the model ID.
package catalog

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/rs/zerolog"

	"inferd/internal/common/fsutil"
	"inferd/pkg/types"
)

// Model kinds.
const (
	KindText  = types.ModelKindText
	KindImage = types.ModelKindImage
)

// ErrNotFound is returned by Lookup for unknown model IDs.
var ErrNotFound = errors.New("model not found")

// reasoningMarkers flags models advertised as reasoning-capable through
// their filename. The hint is advisory only.
var reasoningMarkers = []string{"r1", "qwq", "reason", "think"}

// Store is a scanned model catalog. Safe for concurrent use.
type Store struct {
	dir string
	log zerolog.Logger

	mu     sync.RWMutex
	models map[string]types.Model
}

// Open scans dir (a leading ~ is expanded) and returns the catalog.
func Open(dir string, log zerolog.Logger) (*Store, error) {
	s := &Store{dir: dir, log: log, models: map[string]types.Model{}}
	if err := s.Rescan(); err != nil {
		return nil, err
	}
	return s, nil
}

// Rescan re-reads the models directory, replacing the previous listing.
func (s *Store) Rescan() error {
	base, err := fsutil.ExpandHome(s.dir)
	if err != nil {
		return err
	}
	abs, err := filepath.Abs(base)
	if err != nil {
		return fmt.Errorf("abs path: %w", err)
	}
	entries, err := os.ReadDir(abs)
	if err != nil {
		return fmt.Errorf("read dir: %w", err)
	}

	models := map[string]types.Model{}
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		kind, ok := kindForFile(name)
		if !ok {
			continue
		}
		p := filepath.Join(abs, name)
		info, err := e.Info()
		if err != nil {
			s.log.Warn().Str("file", name).Err(err).Msg("stat failed, skipping")
			continue
		}
		m := types.Model{
			ID:        name,
			Path:      p,
			SizeBytes: info.Size(),
			Kind:      kind,
			Reasoning: hasReasoningMarker(name),
		}
		if kind == KindText {
			layers, err := readLayerCount(p)
			if err != nil {
				s.log.Debug().Str("file", name).Err(err).Msg("gguf header unreadable")
			}
			m.Layers = layers
		}
		models[name] = m
	}

	s.mu.Lock()
	s.models = models
	s.mu.Unlock()
	s.log.Info().Int("models", len(models)).Str("dir", abs).Msg("catalog scanned")
	return nil
}

// List returns all models ordered by ID.
func (s *Store) List() []types.Model {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]types.Model, 0, len(s.models))
	for _, m := range s.models {
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Lookup resolves a model ID.
func (s *Store) Lookup(id string) (types.Model, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.models[id]
	if !ok {
		return types.Model{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return m, nil
}

func kindForFile(name string) (string, bool) {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".gguf":
		return KindText, true
	case ".safetensors", ".ckpt":
		return KindImage, true
	default:
		return "", false
	}
}

func hasReasoningMarker(name string) bool {
	lower := strings.ToLower(name)
	for _, marker := range reasoningMarkers {
		if strings.Contains(lower, marker) {
			return true
		}
	}
	return false
}
