package cacheinfra

import (
	"slices"
	"strings"
	"sync"
	"testing"
	"time"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Capacity != 10000 {
		t.Errorf("expected Capacity to be 10000, got %d", cfg.Capacity)
	}

	if cfg.NumShards != 256 {
		t.Errorf("expected NumShards to be 256, got %d", cfg.NumShards)
	}

	if cfg.TTL != 10*time.Minute {
		t.Errorf("expected TTL to be 10 minutes, got %v", cfg.TTL)
	}

	if cfg.EvictionPercentage != 10 {
		t.Errorf("expected EvictionPercentage to be 10, got %d", cfg.EvictionPercentage)
	}

	if err := cfg.Validate(); err != nil {
		t.Errorf("expected default config to be valid, got %v", err)
	}
}

func TestConfig_Validate(t *testing.T) {
	valid := DefaultConfig()

	tests := []struct {
		name      string
		mutate    func(*Config)
		wantField string
	}{
		{name: "valid default config", mutate: func(*Config) {}},
		{name: "zero capacity", mutate: func(c *Config) { c.Capacity = 0 }, wantField: "Capacity"},
		{name: "zero shards", mutate: func(c *Config) { c.NumShards = 0 }, wantField: "NumShards"},
		{name: "zero ttl", mutate: func(c *Config) { c.TTL = 0 }, wantField: "TTL"},
		{name: "eviction too low", mutate: func(c *Config) { c.EvictionPercentage = 0 }, wantField: "EvictionPercentage"},
		{name: "eviction too high", mutate: func(c *Config) { c.EvictionPercentage = 101 }, wantField: "EvictionPercentage"},
		{name: "negative eviction interval", mutate: func(c *Config) { c.EvictionInterval = -time.Second }, wantField: "EvictionInterval"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid
			tt.mutate(&cfg)
			err := cfg.Validate()

			if tt.wantField == "" {
				if err != nil {
					t.Errorf("expected no error, got %v", err)
				}
				return
			}

			configErr, ok := err.(*ConfigError)
			if !ok {
				t.Fatalf("expected *ConfigError, got %T (%v)", err, err)
			}
			if configErr.Field != tt.wantField {
				t.Errorf("expected field %q, got %q", tt.wantField, configErr.Field)
			}
		})
	}
}

func TestConfig_Options(t *testing.T) {
	cfg := DefaultConfig()
	if got := len(cfg.Options()); got != 0 {
		t.Errorf("expected no options by default, got %d", got)
	}

	cfg.EvictionInterval = time.Minute
	if got := len(cfg.Options()); got != 1 {
		t.Errorf("expected 1 option with an eviction interval, got %d", got)
	}
}

func TestConfigError_Error(t *testing.T) {
	err := &ConfigError{Field: "TTL", Message: "must be positive"}
	want := "cacheinfra: TTL must be positive"
	if err.Error() != want {
		t.Errorf("expected %q, got %q", want, err.Error())
	}
}

func newTestClient(t *testing.T) *Client {
	t.Helper()
	client, err := NewClient(DefaultConfig())
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	return client
}

func TestNewClient_InvalidConfig(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Capacity = -1

	client, err := NewClient(cfg)
	if err == nil {
		t.Fatal("expected an error for an invalid config")
	}
	if client != nil {
		t.Error("expected nil client on error")
	}
}

func TestClient_GetSet(t *testing.T) {
	client := newTestClient(t)

	if _, ok := client.Get("album", "a"); ok {
		t.Fatal("expected a miss on an empty cache")
	}

	client.Set("album", "a", "Selected Ambient Works")
	client.Set("track", "a", 42)

	got, ok := client.Get("album", "a")
	if !ok || got != "Selected Ambient Works" {
		t.Errorf("expected album a, got %v (ok=%v)", got, ok)
	}

	got, ok = client.Get("track", "a")
	if !ok || got != 42 {
		t.Errorf("expected track a to be kept apart from album a, got %v (ok=%v)", got, ok)
	}

	if client.Size() != 2 {
		t.Errorf("expected size 2, got %d", client.Size())
	}
}

func TestClient_Delete(t *testing.T) {
	client := newTestClient(t)
	client.Set("album", "a", 1)
	client.Set("album", "b", 2)

	client.Delete("album", "a", "missing")
	client.Delete("unknown", "a")

	if _, ok := client.Get("album", "a"); ok {
		t.Error("expected album a to be deleted")
	}
	if _, ok := client.Get("album", "b"); !ok {
		t.Error("expected album b to remain")
	}
}

func TestClient_DeleteNamespace(t *testing.T) {
	client := newTestClient(t)
	client.Set("album", "a", 1)
	client.Set("album", "b", 2)
	client.Set("album_tracks", "a", 3)

	if n := client.DeleteNamespace("album"); n != 2 {
		t.Errorf("expected 2 dropped ids, got %d", n)
	}
	if n := client.DeleteNamespace("album"); n != 0 {
		t.Errorf("expected a second drop to be a no-op, got %d", n)
	}

	if _, ok := client.Get("album", "b"); ok {
		t.Error("expected album b to be dropped")
	}
	if _, ok := client.Get("album_tracks", "a"); !ok {
		t.Error("expected album_tracks to be untouched")
	}
}

func TestClient_IDs(t *testing.T) {
	client := newTestClient(t)
	client.Set("saved", "c", true)
	client.Set("saved", "a", false)
	client.Set("saved_library", "z", true)

	got := client.IDs("saved")
	if !slices.Equal(got, []string{"a", "c"}) {
		t.Errorf("expected [a c], got %v", got)
	}
	if ids := client.IDs("none"); len(ids) != 0 {
		t.Errorf("expected no ids, got %v", ids)
	}
}

func TestKey(t *testing.T) {
	key := Key("album", "4aawyAB9vmqN3uQ7FjRGTy")
	if !strings.HasPrefix(key, "album"+KeySeparator) {
		t.Errorf("unexpected key %q", key)
	}
}

func TestClient_ConcurrentAccess(t *testing.T) {
	client := newTestClient(t)

	var wg sync.WaitGroup
	for w := range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range 100 {
				id := string(rune('a' + (w+i)%26))
				client.Set("track", id, i)
				client.Get("track", id)
				if i%10 == 0 {
					client.Delete("track", id)
				}
			}
		}()
	}
	wg.Wait()

	if client.Size() > 26 {
		t.Errorf("expected at most 26 entries, got %d", client.Size())
	}
}
