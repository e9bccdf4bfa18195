package cacheinfra

import (
	"slices"
	"strings"
	"time"

	"github.com/puzpuzpuz/xsync/v3"
	"github.com/viccon/sturdyc"
)

// KeySeparator joins the namespace and the id of a cache key.
const KeySeparator = "::"

// Config sizes the sturdyc memory tier. Capacity, NumShards, TTL and
// EvictionPercentage go to sturdyc.New as is.
type Config struct {
	Capacity           int
	NumShards          int
	TTL                time.Duration
	EvictionPercentage int
	// EvictionInterval of zero keeps the sturdyc default.
	EvictionInterval time.Duration
}

// DefaultConfig returns a Config sized for a single user library.
func DefaultConfig() Config {
	return Config{
		Capacity:           10000,
		NumShards:          256,
		TTL:                10 * time.Minute,
		EvictionPercentage: 10,
	}
}

// Options returns the sturdyc options that are not constructor arguments.
func (c Config) Options() []sturdyc.Option {
	if c.EvictionInterval <= 0 {
		return nil
	}
	return []sturdyc.Option{sturdyc.WithEvictionInterval(c.EvictionInterval)}
}

// Validate reports the first invalid field as a *ConfigError.
func (c Config) Validate() error {
	checks := []struct {
		field   string
		invalid bool
		message string
	}{
		{"Capacity", c.Capacity < 1, "must be positive"},
		{"NumShards", c.NumShards < 1, "must be positive"},
		{"TTL", c.TTL <= 0, "must be positive"},
		{"EvictionPercentage", c.EvictionPercentage < 1 || c.EvictionPercentage > 100, "must be within [1, 100]"},
		{"EvictionInterval", c.EvictionInterval < 0, "must not be negative"},
	}
	for _, check := range checks {
		if check.invalid {
			return &ConfigError{Field: check.field, Message: check.message}
		}
	}
	return nil
}

// ConfigError names the invalid field of a Config.
type ConfigError struct {
	Field   string
	Message string
}

func (e *ConfigError) Error() string {
	return "cacheinfra: " + e.Field + " " + e.Message
}

// Client is a sturdyc client shared by every repository of a process. Keys
// are namespaced per repository, and the keys written under each namespace
// are tracked so that one repository can be dropped without scanning the
// whole cache.
type Client struct {
	client     *sturdyc.Client[any]
	namespaces *xsync.MapOf[string, *xsync.MapOf[string, struct{}]]
}

// NewClient validates cfg and creates a sturdyc client with it.
func NewClient(cfg Config) (*Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &Client{
		client:     sturdyc.New[any](cfg.Capacity, cfg.NumShards, cfg.TTL, cfg.EvictionPercentage, cfg.Options()...),
		namespaces: xsync.NewMapOf[string, *xsync.MapOf[string, struct{}]](),
	}, nil
}

// Key returns the cache key of id under namespace.
func Key(namespace, id string) string {
	return namespace + KeySeparator + id
}

// Get returns the value stored for id under namespace.
func (c *Client) Get(namespace, id string) (any, bool) {
	return c.client.Get(Key(namespace, id))
}

// Set stores value for id under namespace.
func (c *Client) Set(namespace, id string, value any) {
	c.keys(namespace).Store(id, struct{}{})
	c.client.Set(Key(namespace, id), value)
}

// Delete removes ids from namespace.
func (c *Client) Delete(namespace string, ids ...string) {
	keys, _ := c.namespaces.Load(namespace)
	for _, id := range ids {
		c.client.Delete(Key(namespace, id))
		if keys != nil {
			keys.Delete(id)
		}
	}
}

// DeleteNamespace removes every entry written under namespace and returns
// how many tracked ids were dropped.
func (c *Client) DeleteNamespace(namespace string) int {
	keys, ok := c.namespaces.LoadAndDelete(namespace)
	if !ok {
		return 0
	}
	n := 0
	keys.Range(func(id string, _ struct{}) bool {
		c.client.Delete(Key(namespace, id))
		n++
		return true
	})
	return n
}

// IDs returns the ids currently cached under namespace, sorted. Ids the
// cache already evicted are skipped.
func (c *Client) IDs(namespace string) []string {
	prefix := namespace + KeySeparator
	var out []string
	for _, key := range c.client.ScanKeys() {
		if id, ok := strings.CutPrefix(key, prefix); ok {
			out = append(out, id)
		}
	}
	slices.Sort(out)
	return out
}

// Size returns the number of entries across all namespaces.
func (c *Client) Size() int {
	return c.client.Size()
}

func (c *Client) keys(namespace string) *xsync.MapOf[string, struct{}] {
	keys, _ := c.namespaces.LoadOrCompute(namespace, func() *xsync.MapOf[string, struct{}] {
		return xsync.NewMapOf[string, struct{}]()
	})
	return keys
}
