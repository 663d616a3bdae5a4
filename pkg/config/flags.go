package config

import (
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// Flag is the single source of truth for a CLI flag.
// Commands reference flags by registry key rather than hard-coding names,
// shorthands, defaults, and descriptions inline. This prevents flag drift
// when the same logical flag appears on multiple commands (e.g., --provider
// on "chunkstore init", "chunkstore serve" and "chunkstore query").
type Flag struct {
	// Name is the long flag name (e.g. "provider").
	Name string

	// Shorthand is the one-letter short flag (e.g. "p"). Empty for no shorthand.
	Shorthand string

	// ViperKey is the dotted config key this flag maps to (e.g. "vector_store.provider").
	ViperKey string

	// Description is the help text shown in --help output.
	Description string
}

// FlagSet is a mapping of flag names to Flag structs that hold their name,
// shorthand, viper key, etc.
type FlagSet map[string]Flag

// Flag registry keys.
// Use these constants when calling AddStringFlag, AddUintFlag, AddIntFlag,
// and BindRegisteredFlags to avoid typos or drift from one command to another.
const (
	FlagProvider    = "provider"
	FlagCollection  = "collection"
	FlagDimensions  = "dimensions"
	FlagMaxRetries  = "max-retries"
	FlagRetryDelay  = "retry-delay"
	FlagQdrantHost  = "qdrant-host"
	FlagQdrantPort  = "qdrant-port"
	FlagPostgresDSN = "postgres-dsn"
	FlagSQLite      = "sqlite"
	FlagChromaURL   = "chroma-url"
	FlagListen      = "listen"
	FlagKafka       = "kafka-brokers"
	FlagKafkaTopic  = "kafka-topic"
)

// StoreFlags is the registry of flags shared by every command that opens
// the vector store.
var StoreFlags = FlagSet{
	FlagProvider: {
		Name:        "provider",
		Shorthand:   "p",
		ViperKey:    "vector_store.provider",
		Description: "Vector store provider (qdrant, pgvector, sqlite, chroma)",
	},
	FlagCollection: {
		Name:        "collection",
		ViperKey:    "vector_store.collection",
		Description: "Collection (or table) holding the chunks",
	},
	FlagDimensions: {
		Name:        "dimensions",
		ViperKey:    "vector_store.dimensions",
		Description: "Embedding vector size",
	},
	FlagMaxRetries: {
		Name:        "max-retries",
		ViperKey:    "vector_store.max_retries",
		Description: "Attempts per vector store operation",
	},
	FlagRetryDelay: {
		Name:        "retry-delay",
		ViperKey:    "vector_store.retry_delay",
		Description: "Fixed delay between attempts (e.g. 1s, 250ms)",
	},
	FlagQdrantHost: {
		Name:        "qdrant-host",
		ViperKey:    "qdrant.host",
		Description: "Qdrant host",
	},
	FlagQdrantPort: {
		Name:        "qdrant-port",
		ViperKey:    "qdrant.port",
		Description: "Qdrant gRPC port",
	},
	FlagPostgresDSN: {
		Name:        "postgres-dsn",
		ViperKey:    "postgres.dsn",
		Description: "PostgreSQL connection string for pgvector",
	},
	FlagSQLite: {
		Name:        "sqlite",
		Shorthand:   "s",
		ViperKey:    "sqlite.path",
		Description: "Path to the sqlite-vec database (default: .chunkstore/chunkstore.db)",
	},
	FlagChromaURL: {
		Name:        "chroma-url",
		ViperKey:    "chroma.url",
		Description: "Chroma server URL",
	},
	FlagListen: {
		Name:        "listen",
		Shorthand:   "l",
		ViperKey:    "api.listen",
		Description: "Address for the API server to listen on",
	},
	FlagKafka: {
		Name:        "kafka-brokers",
		ViperKey:    "events.kafka_brokers",
		Description: "Comma-separated Kafka brokers for change events (empty disables publishing)",
	},
	FlagKafkaTopic: {
		Name:        "kafka-topic",
		ViperKey:    "events.kafka_topic",
		Description: "Kafka topic receiving change events",
	},
}

// StoreFlagKeys lists the registry keys of StoreFlags in display order.
var StoreFlagKeys = []string{
	FlagProvider,
	FlagCollection,
	FlagDimensions,
	FlagMaxRetries,
	FlagRetryDelay,
	FlagQdrantHost,
	FlagQdrantPort,
	FlagPostgresDSN,
	FlagSQLite,
	FlagChromaURL,
}

// AddStringFlag registers a string flag on cmd from the given FlagSet.
// The flag's name, shorthand, default, and description all come from the
// FlagSet entry so they cannot drift across commands.
func AddStringFlag(cmd *cobra.Command, fs FlagSet, key string, target *string) {
	def, ok := fs[key]
	if !ok {
		return
	}

	defaultVal := defaultString(def.ViperKey)
	if def.Shorthand != "" {
		cmd.Flags().StringVarP(target, def.Name, def.Shorthand, defaultVal, def.Description)
	} else {
		cmd.Flags().StringVar(target, def.Name, defaultVal, def.Description)
	}
}

// AddUintFlag registers a uint flag on cmd from the given FlagSet.
func AddUintFlag(cmd *cobra.Command, fs FlagSet, registryKey string, target *uint) {
	def, ok := fs[registryKey]
	if !ok {
		return
	}

	defaultVal := defaultUint(def.ViperKey)
	if def.Shorthand != "" {
		cmd.Flags().UintVarP(target, def.Name, def.Shorthand, defaultVal, def.Description)
	} else {
		cmd.Flags().UintVar(target, def.Name, defaultVal, def.Description)
	}
}

// AddIntFlag registers an int flag on cmd from the given FlagSet.
func AddIntFlag(cmd *cobra.Command, fs FlagSet, registryKey string, target *int) {
	def, ok := fs[registryKey]
	if !ok {
		return
	}

	defaultVal := defaultInt(def.ViperKey)
	if def.Shorthand != "" {
		cmd.Flags().IntVarP(target, def.Name, def.Shorthand, defaultVal, def.Description)
	} else {
		cmd.Flags().IntVar(target, def.Name, defaultVal, def.Description)
	}
}

// BindRegisteredFlags binds already-registered flags to viper using definitions
// from the given FlagSet. Call this in PreRunE after InitViper to connect flags
// to the viper precedence chain (flag > env > config file > default).
func BindRegisteredFlags(v *viper.Viper, cmd *cobra.Command, fs FlagSet, registryKeys []string) {
	for _, registryKey := range registryKeys {
		def, ok := fs[registryKey]
		if !ok {
			continue
		}

		f := cmd.Flags().Lookup(def.Name)
		if f == nil {
			continue
		}

		_ = v.BindPFlag(def.ViperKey, f)
	}
}

// defaultString returns the default string value for a viper key from NewDefaultConfig.
func defaultString(viperKey string) string {
	v := viper.New()
	setViperDefaults(v)
	return v.GetString(viperKey)
}

// defaultUint returns the default uint value for a viper key from NewDefaultConfig.
func defaultUint(viperKey string) uint {
	v := viper.New()
	setViperDefaults(v)
	return v.GetUint(viperKey)
}

// defaultInt returns the default int value for a viper key from NewDefaultConfig.
func defaultInt(viperKey string) int {
	v := viper.New()
	setViperDefaults(v)
	return v.GetInt(viperKey)
}
