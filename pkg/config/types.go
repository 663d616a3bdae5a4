package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/papercomputeco/chunkstore/pkg/vector/retry"
)

// Config represents the persistent chunkstore configuration stored as
// config.toml in the .chunkstore/ directory. The TOML layout uses sections for
// logical grouping: one for the vector store itself and one per backend.
type Config struct {
	Version     int               `toml:"version"`
	VectorStore VectorStoreConfig `toml:"vector_store"`
	Qdrant      QdrantConfig      `toml:"qdrant"`
	Postgres    PostgresConfig    `toml:"postgres"`
	SQLite      SQLiteConfig      `toml:"sqlite"`
	Chroma      ChromaConfig      `toml:"chroma"`
	API         APIConfig         `toml:"api"`
	Events      EventsConfig      `toml:"events"`
}

// VectorStoreConfig holds the backend-independent vector store settings.
type VectorStoreConfig struct {
	Provider   string `toml:"provider,omitempty"`
	Collection string `toml:"collection,omitempty"`
	Dimensions uint   `toml:"dimensions,omitempty"`
	MaxRetries int    `toml:"max_retries,omitempty"`

	// RetryDelay is a Go duration string, e.g. "1s" or "250ms".
	RetryDelay string `toml:"retry_delay,omitempty"`
}

// RetryDelayDuration parses RetryDelay. An empty value yields 0, which the
// retry executor replaces with its default. Negative durations are rejected.
func (v VectorStoreConfig) RetryDelayDuration() (time.Duration, error) {
	if v.RetryDelay == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(v.RetryDelay)
	if err != nil {
		return 0, fmt.Errorf("invalid value for vector_store.retry_delay: %w", err)
	}
	if d < 0 {
		return 0, fmt.Errorf("invalid value for vector_store.retry_delay: %s is negative", v.RetryDelay)
	}
	return d, nil
}

// RetryConfig returns the retry executor settings. An explicit zero
// retry_delay such as "0s" retries without waiting; only an unset value
// falls back to the executor default.
func (v VectorStoreConfig) RetryConfig() (retry.Config, error) {
	delay, err := v.RetryDelayDuration()
	if err != nil {
		return retry.Config{}, err
	}
	return retry.Config{
		MaxRetries: v.MaxRetries,
		Delay:      delay,
		NoDelay:    v.RetryDelay != "" && delay == 0,
	}, nil
}

// QdrantConfig holds Qdrant connection settings.
type QdrantConfig struct {
	Host   string `toml:"host,omitempty"`
	Port   int    `toml:"port,omitempty"`
	APIKey string `toml:"api_key,omitempty"`
	UseTLS bool   `toml:"use_tls,omitempty"`
}

// PostgresConfig holds PostgreSQL connection settings for pgvector.
type PostgresConfig struct {
	DSN string `toml:"dsn,omitempty"`
}

// SQLiteConfig holds sqlite-vec settings. An empty path resolves to
// chunkstore.db inside the .chunkstore/ directory.
type SQLiteConfig struct {
	Path string `toml:"path,omitempty"`
}

// ChromaConfig holds Chroma connection settings.
type ChromaConfig struct {
	URL string `toml:"url,omitempty"`
}

// APIConfig holds API server settings.
type APIConfig struct {
	Listen string `toml:"listen,omitempty"`
}

// EventsConfig holds change event publishing settings. Publishing is
// disabled while KafkaBrokers is empty.
type EventsConfig struct {
	// KafkaBrokers is a comma-separated list of broker addresses.
	KafkaBrokers string `toml:"kafka_brokers,omitempty"`
	KafkaTopic   string `toml:"kafka_topic,omitempty"`
}

// Brokers splits KafkaBrokers into trimmed, non-empty addresses.
func (e EventsConfig) Brokers() []string {
	brokers := []string{}
	for _, b := range strings.Split(e.KafkaBrokers, ",") {
		if b = strings.TrimSpace(b); b != "" {
			brokers = append(brokers, b)
		}
	}
	return brokers
}

// configKeyInfo maps a user-facing dotted key name to a getter and setter on *Config.
type configKeyInfo struct {
	get func(c *Config) string
	set func(c *Config, v string) error
}

// configKeys is the authoritative map of all supported config keys.
// Keys use dotted notation matching the TOML section structure.
var configKeys = map[string]configKeyInfo{
	"vector_store.provider": {
		get: func(c *Config) string { return c.VectorStore.Provider },
		set: func(c *Config, v string) error { c.VectorStore.Provider = v; return nil },
	},
	"vector_store.collection": {
		get: func(c *Config) string { return c.VectorStore.Collection },
		set: func(c *Config, v string) error { c.VectorStore.Collection = v; return nil },
	},
	"vector_store.dimensions": {
		get: func(c *Config) string {
			if c.VectorStore.Dimensions == 0 {
				return ""
			}
			return strconv.FormatUint(uint64(c.VectorStore.Dimensions), 10)
		},
		set: func(c *Config, v string) error {
			n, err := strconv.ParseUint(v, 10, 64)
			if err != nil {
				return fmt.Errorf("invalid value for vector_store.dimensions: %w", err)
			}
			c.VectorStore.Dimensions = uint(n)
			return nil
		},
	},
	"vector_store.max_retries": {
		get: func(c *Config) string {
			if c.VectorStore.MaxRetries == 0 {
				return ""
			}
			return strconv.Itoa(c.VectorStore.MaxRetries)
		},
		set: func(c *Config, v string) error {
			n, err := strconv.Atoi(v)
			if err != nil || n < 1 {
				return fmt.Errorf("invalid value for vector_store.max_retries: must be a positive integer")
			}
			c.VectorStore.MaxRetries = n
			return nil
		},
	},
	"vector_store.retry_delay": {
		get: func(c *Config) string { return c.VectorStore.RetryDelay },
		set: func(c *Config, v string) error {
			if _, err := time.ParseDuration(v); err != nil {
				return fmt.Errorf("invalid value for vector_store.retry_delay: %w", err)
			}
			c.VectorStore.RetryDelay = v
			return nil
		},
	},
	"qdrant.host": {
		get: func(c *Config) string { return c.Qdrant.Host },
		set: func(c *Config, v string) error { c.Qdrant.Host = v; return nil },
	},
	"qdrant.port": {
		get: func(c *Config) string {
			if c.Qdrant.Port == 0 {
				return ""
			}
			return strconv.Itoa(c.Qdrant.Port)
		},
		set: func(c *Config, v string) error {
			n, err := strconv.Atoi(v)
			if err != nil || n < 1 || n > 65535 {
				return fmt.Errorf("invalid value for qdrant.port: %q", v)
			}
			c.Qdrant.Port = n
			return nil
		},
	},
	"qdrant.api_key": {
		get: func(c *Config) string { return c.Qdrant.APIKey },
		set: func(c *Config, v string) error { c.Qdrant.APIKey = v; return nil },
	},
	"qdrant.use_tls": {
		get: func(c *Config) string { return strconv.FormatBool(c.Qdrant.UseTLS) },
		set: func(c *Config, v string) error {
			b, err := strconv.ParseBool(v)
			if err != nil {
				return fmt.Errorf("invalid value for qdrant.use_tls: %w", err)
			}
			c.Qdrant.UseTLS = b
			return nil
		},
	},
	"postgres.dsn": {
		get: func(c *Config) string { return c.Postgres.DSN },
		set: func(c *Config, v string) error { c.Postgres.DSN = v; return nil },
	},
	"sqlite.path": {
		get: func(c *Config) string { return c.SQLite.Path },
		set: func(c *Config, v string) error { c.SQLite.Path = v; return nil },
	},
	"chroma.url": {
		get: func(c *Config) string { return c.Chroma.URL },
		set: func(c *Config, v string) error { c.Chroma.URL = v; return nil },
	},
	"api.listen": {
		get: func(c *Config) string { return c.API.Listen },
		set: func(c *Config, v string) error { c.API.Listen = v; return nil },
	},
	"events.kafka_brokers": {
		get: func(c *Config) string { return c.Events.KafkaBrokers },
		set: func(c *Config, v string) error { c.Events.KafkaBrokers = v; return nil },
	},
	"events.kafka_topic": {
		get: func(c *Config) string { return c.Events.KafkaTopic },
		set: func(c *Config, v string) error { c.Events.KafkaTopic = v; return nil },
	},
}
