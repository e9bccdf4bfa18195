package cache

import (
	"github.com/goliatone/go-repository-state/internal/cacheinfra"
)

// MemoryClient is the process wide memory tier. One client is shared by
// every MemoryStore; each store writes under its own namespace.
type MemoryClient struct {
	inner *cacheinfra.Client
}

// NewMemoryClient constructs the sturdyc backed memory tier.
func NewMemoryClient(cfg MemoryConfig) (*MemoryClient, error) {
	inner, err := cacheinfra.NewClient(cfg.toInternal())
	if err != nil {
		return nil, err
	}
	return &MemoryClient{inner: inner}, nil
}

// Size returns the number of cached entries across all namespaces.
func (c *MemoryClient) Size() int {
	return c.inner.Size()
}

// IDs returns the ids cached under namespace, sorted.
func (c *MemoryClient) IDs(namespace string) []string {
	return c.inner.IDs(namespace)
}

// DropNamespace removes every entry of namespace.
func (c *MemoryClient) DropNamespace(namespace string) int {
	return c.inner.DeleteNamespace(namespace)
}
