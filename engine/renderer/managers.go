package renderer

import (
	"fmt"
	"sync"
)

// PipelineManager caches pipelines by key. Templates built concurrently share a pipeline when
// they ask for the same key.
type PipelineManager struct {
	mu        sync.RWMutex
	backend   Backend
	pipelines map[string]*Pipeline
}

// NewPipelineManager creates an empty cache.
func NewPipelineManager(backend Backend) *PipelineManager {
	return &PipelineManager{backend: backend, pipelines: make(map[string]*Pipeline)}
}

// Lookup returns the cached pipeline for key, or nil.
func (m *PipelineManager) Lookup(key string) *Pipeline {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.pipelines[key]
}

// Get returns the cached pipeline for key, creating it from desc on first request.
//
// Parameters:
//   - key: the cache key
//   - desc: the descriptor used when the key is not cached
//
// Returns:
//   - *Pipeline: the pipeline
//   - error: a backend error from pipeline creation
func (m *PipelineManager) Get(key string, desc PipelineDescriptor) (*Pipeline, error) {
	if p := m.Lookup(key); p != nil {
		return p, nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if p, ok := m.pipelines[key]; ok {
		return p, nil
	}
	p, err := m.backend.CreatePipeline(desc)
	if err != nil {
		return nil, fmt.Errorf("failed to create pipeline %q: %w", key, err)
	}
	m.pipelines[key] = p
	return p, nil
}

// Len returns the number of cached pipelines.
func (m *PipelineManager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.pipelines)
}

// DescriptorManager creates descriptor sets and tracks the live ones.
type DescriptorManager struct {
	mu      sync.RWMutex
	backend Backend
	live    map[uint64]*DescriptorSet
}

// NewDescriptorManager creates an empty manager.
func NewDescriptorManager(backend Backend) *DescriptorManager {
	return &DescriptorManager{backend: backend, live: make(map[uint64]*DescriptorSet)}
}

// Create allocates a descriptor set.
//
// Parameters:
//   - desc: the resources to bind
//
// Returns:
//   - *DescriptorSet: the set
//   - error: a backend error
func (m *DescriptorManager) Create(desc DescriptorSetDescriptor) (*DescriptorSet, error) {
	set, err := m.backend.CreateDescriptorSet(desc)
	if err != nil {
		return nil, fmt.Errorf("failed to create descriptor set %q: %w", desc.Label, err)
	}
	m.mu.Lock()
	m.live[set.ID] = set
	m.mu.Unlock()
	return set, nil
}

// Release forgets sets that will no longer be bound. Nil entries are ignored.
func (m *DescriptorManager) Release(sets ...*DescriptorSet) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range sets {
		if s != nil {
			delete(m.live, s.ID)
		}
	}
}

// Len returns the number of live sets.
func (m *DescriptorManager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.live)
}

// SamplerManager caches samplers by descriptor.
type SamplerManager struct {
	mu       sync.RWMutex
	backend  Backend
	samplers map[SamplerDescriptor]*Sampler
}

// NewSamplerManager creates an empty cache.
func NewSamplerManager(backend Backend) *SamplerManager {
	return &SamplerManager{backend: backend, samplers: make(map[SamplerDescriptor]*Sampler)}
}

// Get returns the sampler for desc, creating it on first request.
func (m *SamplerManager) Get(desc SamplerDescriptor) (*Sampler, error) {
	m.mu.RLock()
	s, ok := m.samplers[desc]
	m.mu.RUnlock()
	if ok {
		return s, nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.samplers[desc]; ok {
		return s, nil
	}
	s, err := m.backend.CreateSampler(desc)
	if err != nil {
		return nil, fmt.Errorf("failed to create sampler %q: %w", desc.Label, err)
	}
	m.samplers[desc] = s
	return s, nil
}
