package cache

import (
	"fmt"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	validation "github.com/go-ozzo/ozzo-validation/v4"
	goerrors "github.com/goliatone/go-errors"
	"golang.org/x/time/rate"

	"github.com/goliatone/go-repository-state/internal/cacheinfra"
	"github.com/goliatone/go-repository-state/retry"
)

// TextCodeConfigDecode marks a config file that could not be decoded.
const TextCodeConfigDecode = "CONFIG_DECODE_FAILED"

// Supported [sql] drivers.
const (
	DriverSQLite   = "sqlite3"
	DriverPostgres = "postgres"
)

// Config is the cache tier configuration, usually loaded from a TOML file:
//
//	scope = "user-1234"
//
//	[memory]
//	enabled = true
//	capacity = 20000
//	ttl = "15m"
//
//	[sql]
//	driver = "sqlite3"
//	dsn = "file:library.db"
//
//	[retry]
//	policy = "long_tail"
//
//	[rate_limit]
//	per_second = 10
//	burst = 5
type Config struct {
	// Scope separates the cached data of different accounts.
	Scope     string          `toml:"scope"`
	Memory    MemoryConfig    `toml:"memory"`
	SQL       SQLConfig       `toml:"sql"`
	Remote    RemoteConfig    `toml:"remote"`
	Retry     RetryConfig     `toml:"retry"`
	RateLimit RateLimitConfig `toml:"rate_limit"`
	Library   LibraryConfig   `toml:"library"`
}

// MemoryConfig configures the sturdyc memory tier.
type MemoryConfig struct {
	Enabled            bool          `toml:"enabled"`
	Capacity           int           `toml:"capacity"`
	NumShards          int           `toml:"num_shards"`
	TTL                time.Duration `toml:"ttl"`
	EvictionPercentage int           `toml:"eviction_percentage"`
	EvictionInterval   time.Duration `toml:"eviction_interval"`
}

// SQLConfig configures the relational tier. An empty driver disables it.
type SQLConfig struct {
	Driver string `toml:"driver"`
	DSN    string `toml:"dsn"`
}

// RemoteConfig configures calls to the remote source.
type RemoteConfig struct {
	// BatchSize caps the ids sent in one remote call. Zero means unlimited.
	BatchSize int `toml:"batch_size"`
}

// RetryConfig selects the retry strategy of remote calls. Explicit delays
// take precedence over the named policy.
type RetryConfig struct {
	Policy string          `toml:"policy"`
	Delays []time.Duration `toml:"delays"`
}

// RateLimitConfig bounds the rate of remote calls. A zero rate disables it.
type RateLimitConfig struct {
	PerSecond float64 `toml:"per_second"`
	Burst     int     `toml:"burst"`
}

// LibraryConfig configures the in-memory library snapshot.
type LibraryConfig struct {
	TTL time.Duration `toml:"ttl"`
}

// DefaultConfig returns a memory only configuration.
func DefaultConfig() Config {
	mem := cacheinfra.DefaultConfig()
	return Config{
		Memory: MemoryConfig{
			Enabled:            true,
			Capacity:           mem.Capacity,
			NumShards:          mem.NumShards,
			TTL:                mem.TTL,
			EvictionPercentage: mem.EvictionPercentage,
			EvictionInterval:   mem.EvictionInterval,
		},
		Remote:  RemoteConfig{BatchSize: 50},
		Retry:   RetryConfig{Policy: "standard"},
		Library: LibraryConfig{TTL: 24 * time.Hour},
	}
}

// LoadConfig reads a TOML file on top of DefaultConfig and validates the
// result. Unknown keys are rejected.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	md, err := toml.DecodeFile(path, &cfg)
	if err != nil {
		return Config{}, goerrors.Wrap(err, goerrors.CategoryBadInput, "cache: cannot decode "+path).
			WithTextCode(TextCodeConfigDecode)
	}
	return finishDecode(cfg, md)
}

// ParseConfig is LoadConfig for TOML held in memory.
func ParseConfig(data string) (Config, error) {
	cfg := DefaultConfig()
	md, err := toml.Decode(data, &cfg)
	if err != nil {
		return Config{}, goerrors.Wrap(err, goerrors.CategoryBadInput, "cache: cannot decode config").
			WithTextCode(TextCodeConfigDecode)
	}
	return finishDecode(cfg, md)
}

func finishDecode(cfg Config, md toml.MetaData) (Config, error) {
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		return Config{}, goerrors.New("cache: unknown config keys: "+strings.Join(keys, ", "), goerrors.CategoryBadInput).
			WithTextCode(TextCodeConfigDecode)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks every section. Failures are reported as a go-errors
// validation error with one entry per field.
func (c Config) Validate() error {
	err := validation.ValidateStruct(&c,
		validation.Field(&c.Memory),
		validation.Field(&c.SQL),
		validation.Field(&c.Remote),
		validation.Field(&c.Retry),
		validation.Field(&c.RateLimit),
		validation.Field(&c.Library),
	)
	if err != nil {
		return goerrors.FromOzzoValidation(err, "invalid cache config")
	}
	return nil
}

// Validate implements validation.Validatable.
func (m MemoryConfig) Validate() error {
	if !m.Enabled {
		return nil
	}
	return validation.ValidateStruct(&m,
		validation.Field(&m.Capacity, validation.Required, validation.Min(1)),
		validation.Field(&m.NumShards, validation.Required, validation.Min(1)),
		validation.Field(&m.TTL, validation.Required, validation.Min(time.Millisecond)),
		validation.Field(&m.EvictionPercentage, validation.Required, validation.Min(1), validation.Max(100)),
		validation.Field(&m.EvictionInterval, validation.Min(time.Duration(0))),
	)
}

// Validate implements validation.Validatable.
func (s SQLConfig) Validate() error {
	return validation.ValidateStruct(&s,
		validation.Field(&s.Driver, validation.In(DriverSQLite, DriverPostgres)),
		validation.Field(&s.DSN, validation.When(s.Driver != "", validation.Required)),
	)
}

// Validate implements validation.Validatable.
func (r RemoteConfig) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.BatchSize, validation.Min(0)),
	)
}

// Validate implements validation.Validatable.
func (r RetryConfig) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Policy, validation.By(func(value any) error {
			if _, ok := retry.ByName(value.(string)); !ok {
				return fmt.Errorf("unknown retry policy %q", value)
			}
			return nil
		})),
		validation.Field(&r.Delays, validation.Each(validation.Min(time.Duration(0)))),
	)
}

// Validate implements validation.Validatable.
func (r RateLimitConfig) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.PerSecond, validation.Min(0.0)),
		validation.Field(&r.Burst, validation.When(r.PerSecond > 0, validation.Required, validation.Min(1))),
	)
}

// Validate implements validation.Validatable.
func (l LibraryConfig) Validate() error {
	return validation.ValidateStruct(&l,
		validation.Field(&l.TTL, validation.Min(time.Duration(0))),
	)
}

// Strategy returns the retry strategy the section describes.
func (r RetryConfig) Strategy() retry.Strategy {
	if len(r.Delays) > 0 {
		return retry.Delays(r.Delays...)
	}
	if s, ok := retry.ByName(r.Policy); ok {
		return s
	}
	return retry.Standard
}

// Limiter returns the configured limiter, nil when rate limiting is off.
func (r RateLimitConfig) Limiter() *rate.Limiter {
	if r.PerSecond <= 0 {
		return nil
	}
	return rate.NewLimiter(rate.Limit(r.PerSecond), max(r.Burst, 1))
}

func (m MemoryConfig) toInternal() cacheinfra.Config {
	return cacheinfra.Config{
		Capacity:           m.Capacity,
		NumShards:          m.NumShards,
		TTL:                m.TTL,
		EvictionPercentage: m.EvictionPercentage,
		EvictionInterval:   m.EvictionInterval,
	}
}
