package model

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// ProviderLocal marks a catalog entry served from a model file on disk.
// An empty provider means the same thing.
const ProviderLocal = "local"

// Spec is a selected model: the catalog entry plus its resolved path.
type Spec struct {
	Name         string `json:"name" yaml:"name"`
	Filename     string `json:"filename" yaml:"filename"`
	Provider     string `json:"provider,omitempty" yaml:"provider,omitempty"`
	Role         string `json:"role" yaml:"role"`
	HardwareType string `json:"hardware_type" yaml:"hardware_type"`

	// Path is Filename joined to the catalog's model directory. Empty for
	// remote providers.
	Path string `json:"path,omitempty" yaml:"-"`
}

// IsLocal reports whether the model is loaded from a file.
func (s Spec) IsLocal() bool {
	return s.Provider == "" || strings.EqualFold(s.Provider, ProviderLocal)
}

// Catalog is the ordered list of models available to a deployment.
//
// Example models.yaml:
//
//	models:
//	  - name: test-mini
//	    filename: test-mini.gguf
//	    role: chat
//	    hardware_type: CPU_ONLY
//	  - name: gpt-4o-mini
//	    filename: gpt-4o-mini
//	    provider: openai
//	    role: code
//	    hardware_type: CPU_ONLY
type Catalog struct {
	Models []Spec `yaml:"models"`

	// ModelDir is prepended to local filenames. Not read from YAML.
	ModelDir string `yaml:"-"`
}

// LoadCatalog reads a catalog file. A missing file yields an empty catalog,
// so selection falls back to the no-model message instead of failing.
func LoadCatalog(path, modelDir string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return &Catalog{ModelDir: modelDir}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read catalog: %w", err)
	}
	cat, err := ParseCatalog(data)
	if err != nil {
		return nil, fmt.Errorf("catalog %s: %w", path, err)
	}
	cat.ModelDir = modelDir
	return cat, nil
}

// ParseCatalog decodes catalog YAML. Unknown keys are rejected.
func ParseCatalog(data []byte) (*Catalog, error) {
	var cat Catalog
	if len(bytes.TrimSpace(data)) == 0 {
		return &cat, nil
	}
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cat); err != nil {
		return nil, err
	}
	var extra any
	if err := dec.Decode(&extra); err != io.EOF {
		if err == nil {
			return nil, errors.New("catalog must contain a single YAML document")
		}
		return nil, err
	}
	for i, m := range cat.Models {
		if strings.TrimSpace(m.Role) == "" {
			return nil, fmt.Errorf("models[%d]: role is required", i)
		}
		if strings.TrimSpace(m.Filename) == "" && strings.TrimSpace(m.Name) == "" {
			return nil, fmt.Errorf("models[%d]: name or filename is required", i)
		}
	}
	return &cat, nil
}

// hardwareCompatibility lists, per requested hardware type, the other
// hardware types whose models can also run there.
var hardwareCompatibility = map[HardwareType][]HardwareType{
	HardwareGPUCUDA:    {HardwareGPUGeneral, HardwareCPUOnly},
	HardwareGPUGeneral: {HardwareCPUOnly},
	HardwareNPUApple:   {HardwareGPUGeneral, HardwareCPUOnly},
	HardwareNPUIntel:   {HardwareGPUGeneral, HardwareCPUOnly},
}

// Compatible reports whether a model built for candidate can run on
// requested hardware.
func Compatible(requested, candidate HardwareType) bool {
	if requested == candidate {
		return true
	}
	for _, hw := range hardwareCompatibility[requested] {
		if hw == candidate {
			return true
		}
	}
	return false
}

// Select returns the first catalog entry with the given role whose hardware
// type is compatible with hardware, or nil. Catalog order is the priority
// order. The profile is currently unused.
func (c *Catalog) Select(profile string, hardware HardwareType, role string) *Spec {
	if c == nil {
		return nil
	}
	for _, m := range c.Models {
		if m.Role != role || !Compatible(hardware, HardwareType(m.HardwareType)) {
			continue
		}
		spec := m
		if spec.IsLocal() && spec.Filename != "" {
			spec.Path = filepath.Join(c.ModelDir, spec.Filename)
		}
		return &spec
	}
	return nil
}
