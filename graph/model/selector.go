package model

import "sync"

// Selector is the model-selection collaborator consulted during planning.
//
// SelectModel returns nil, nil when no catalog entry fits. An error means
// the selection machinery itself failed.
type Selector interface {
	HardwareProfile() string
	DetectHardwareType() string
	SelectModel(profile, hardware, role string) (*Spec, error)
}

// CatalogLoader produces the catalog for a selection.
type CatalogLoader func() (*Catalog, error)

// StaticCatalog returns a loader for an in-memory catalog.
func StaticCatalog(c *Catalog) CatalogLoader {
	return func() (*Catalog, error) { return c, nil }
}

// FileCatalog returns a loader that reads path once and caches the result.
// A failed read is retried on the next call.
func FileCatalog(path, modelDir string) CatalogLoader {
	var (
		mu  sync.Mutex
		cat *Catalog
	)
	return func() (*Catalog, error) {
		mu.Lock()
		defer mu.Unlock()
		if cat != nil {
			return cat, nil
		}
		loaded, err := LoadCatalog(path, modelDir)
		if err != nil {
			return nil, err
		}
		cat = loaded
		return cat, nil
	}
}

// Service implements Selector over a HardwareProfiler and a catalog.
type Service struct {
	Profiler *HardwareProfiler
	Catalog  CatalogLoader
}

// NewService returns a Service. A nil profiler detects from the host.
func NewService(profiler *HardwareProfiler, catalog CatalogLoader) *Service {
	if profiler == nil {
		profiler = &HardwareProfiler{}
	}
	return &Service{Profiler: profiler, Catalog: catalog}
}

// HardwareProfile implements Selector.
func (s *Service) HardwareProfile() string {
	return s.Profiler.DetectProfile()
}

// DetectHardwareType implements Selector.
func (s *Service) DetectHardwareType() string {
	return string(s.Profiler.Detect())
}

// SelectModel implements Selector.
func (s *Service) SelectModel(profile, hardware, role string) (*Spec, error) {
	if s.Catalog == nil {
		return nil, nil
	}
	cat, err := s.Catalog()
	if err != nil {
		return nil, err
	}
	return cat.Select(profile, HardwareType(hardware), role), nil
}
