package chains

import (
	"fmt"
	"sort"
	"sync"
)

// Registry holds chain metadata keyed by chain id
type Registry struct {
	chains map[int64]Chain
	mu     sync.RWMutex
}

var (
	globalRegistry     *Registry
	globalRegistryOnce sync.Once
)

// NewRegistry creates a registry preloaded with the given chains
func NewRegistry(chains ...Chain) *Registry {
	r := &Registry{
		chains: make(map[int64]Chain, len(chains)),
	}
	for _, c := range chains {
		_ = r.Register(c)
	}
	return r
}

// InitGlobalRegistry initializes the global chain registry with KnownChains
func InitGlobalRegistry() *Registry {
	globalRegistryOnce.Do(func() {
		globalRegistry = NewRegistry(KnownChains...)
	})
	return globalRegistry
}

// GetGlobalRegistry returns the global chain registry (returns nil if not initialized)
func GetGlobalRegistry() *Registry {
	return globalRegistry
}

// Register adds or replaces the metadata for chain.ID (idempotent)
func (r *Registry) Register(chain Chain) error {
	if chain.ID <= 0 {
		return fmt.Errorf("invalid chain id %d for %q", chain.ID, chain.Name)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.chains[chain.ID] = chain
	return nil
}

// Get retrieves chain metadata by id
func (r *Registry) Get(chainID int64) (Chain, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	chain, exists := r.chains[chainID]
	if !exists {
		return Chain{}, fmt.Errorf("no chain registered for id: %d", chainID)
	}

	return chain, nil
}

// Name returns a display name for chainID, falling back to the numeric id
func (r *Registry) Name(chainID int64) string {
	if chain, err := r.Get(chainID); err == nil {
		return chain.Name
	}
	return fmt.Sprintf("Chain %d", chainID)
}

// ChainIDs returns all registered chain ids in ascending order
func (r *Registry) ChainIDs() []int64 {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := make([]int64, 0, len(r.chains))
	for id := range r.chains {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// IsKnown checks if metadata exists for chainID
func (r *Registry) IsKnown(chainID int64) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	_, exists := r.chains[chainID]
	return exists
}

// Unregister removes chain metadata (useful for testing)
func (r *Registry) Unregister(chainID int64) {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.chains, chainID)
}

// ResetGlobalRegistry resets the global registry (useful for testing)
func ResetGlobalRegistry() {
	globalRegistry = nil
	globalRegistryOnce = sync.Once{}
}
