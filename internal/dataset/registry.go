package dataset

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/temcen/goanalog/internal/catalog"
	"github.com/temcen/goanalog/internal/config"
	"github.com/temcen/goanalog/internal/engine"
)

var (
	// ErrUnknownDomain means no model is loaded under the requested name.
	ErrUnknownDomain = errors.New("unknown recommendation domain")

	// ErrNotLoaded is returned before the first successful load.
	ErrNotLoaded = errors.New("models are not loaded")
)

// Model is one domain pair: the engine over its similarity matrix plus the catalogs used to
// present its items.
type Model struct {
	Name   string
	Engine *engine.Engine
	Source *catalog.Catalog
	Target *catalog.Catalog
}

// Models is an immutable snapshot of every loaded domain pair.
type Models struct {
	Version  string
	LoadedAt time.Time
	pairs    map[string]*Model
}

// NewModels builds a snapshot with a fresh version.
func NewModels(pairs ...*Model) *Models {
	m := &Models{
		Version:  uuid.NewString(),
		LoadedAt: time.Now().UTC(),
		pairs:    make(map[string]*Model, len(pairs)),
	}
	for _, p := range pairs {
		m.pairs[p.Name] = p
	}
	return m
}

// Pair returns the model registered under name.
func (m *Models) Pair(name string) (*Model, error) {
	p, ok := m.pairs[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownDomain, name)
	}
	return p, nil
}

// Names returns the loaded pair names in sorted order.
func (m *Models) Names() []string {
	names := make([]string, 0, len(m.pairs))
	for name := range m.pairs {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// Catalog returns the catalog of a domain from any pair that uses it.
func (m *Models) Catalog(domain string) (*catalog.Catalog, bool) {
	for _, name := range m.Names() {
		p := m.pairs[name]
		if p.Target != nil && p.Target.Domain() == domain {
			return p.Target, true
		}
		if p.Source != nil && p.Source.Domain() == domain {
			return p.Source, true
		}
	}
	return nil, false
}

// Builder produces a complete snapshot or fails without side effects.
type Builder func(ctx context.Context) (*Models, error)

// Registry hands out the current Models snapshot. Reads are lock-free; Reload is serialized and
// only swaps the snapshot when the new one was built successfully.
type Registry struct {
	current atomic.Pointer[Models]
	mu      sync.Mutex
	build   Builder
	logger  *logrus.Logger
}

func NewRegistry(build Builder, logger *logrus.Logger) *Registry {
	return &Registry{build: build, logger: logger}
}

// Current returns the active snapshot, or ErrNotLoaded.
func (r *Registry) Current() (*Models, error) {
	m := r.current.Load()
	if m == nil {
		return nil, ErrNotLoaded
	}
	return m, nil
}

// Reload builds a new snapshot and swaps it in. In-flight requests keep the snapshot they
// started with.
func (r *Registry) Reload(ctx context.Context) (*Models, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	start := time.Now()
	m, err := r.build(ctx)
	if err != nil {
		r.logger.WithError(err).Error("Failed to load models, keeping the previous snapshot")
		return nil, err
	}

	previous := r.current.Swap(m)
	fields := logrus.Fields{
		"version":  m.Version,
		"pairs":    m.Names(),
		"duration": time.Since(start).String(),
	}
	if previous != nil {
		fields["previous_version"] = previous.Version
	}
	r.logger.WithFields(fields).Info("Models loaded")

	return m, nil
}

// NewBuilder loads every configured pair from matrix files and the catalog loader. Catalogs
// shared by several pairs are loaded once per build.
func NewBuilder(cfg config.DatasetsConfig, loader catalog.Loader, logger *logrus.Logger) Builder {
	return func(ctx context.Context) (*Models, error) {
		catalogs := make(map[string]*catalog.Catalog)
		loadCatalog := func(domain string) (*catalog.Catalog, error) {
			if c, ok := catalogs[domain]; ok {
				return c, nil
			}
			items, err := loader.Load(ctx, domain)
			if err != nil {
				return nil, err
			}
			c, err := catalog.New(domain, items)
			if err != nil {
				return nil, err
			}
			catalogs[domain] = c
			return c, nil
		}

		pairs := cfg.Pairs()
		names := make([]string, 0, len(pairs))
		for name := range pairs {
			names = append(names, name)
		}
		slices.Sort(names)

		models := make([]*Model, 0, len(names))
		for _, name := range names {
			pair := pairs[name]

			matrix, err := LoadMatrix(ctx, pair.MatrixPath)
			if err != nil {
				return nil, fmt.Errorf("pair %s: %w", name, err)
			}
			source, err := loadCatalog(pair.SourceDomain)
			if err != nil {
				return nil, fmt.Errorf("pair %s: %w", name, err)
			}
			target, err := loadCatalog(pair.TargetDomain)
			if err != nil {
				return nil, fmt.Errorf("pair %s: %w", name, err)
			}

			popularity := target.Popularity()
			rows, cols := matrix.Dims()
			missing := 0
			for _, id := range matrix.RowIDs() {
				if _, ok := popularity[id]; !ok {
					missing++
				}
			}

			logger.WithFields(logrus.Fields{
				"pair":               name,
				"targets":            rows,
				"sources":            cols,
				"without_popularity": missing,
				"same_domain":        pair.SameDomain(),
			}).Info("Similarity model loaded")

			models = append(models, &Model{
				Name:   name,
				Engine: engine.New(matrix, popularity, pair.SameDomain(), logger),
				Source: source,
				Target: target,
			})
		}

		return NewModels(models...), nil
	}
}
