// Package vectorstore wires the store flags, viper configuration and the
// provider selector together for the commands that open a vector store.
package vectorstore

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/papercomputeco/chunkstore/cmd/chunkstore/sqlitepath"
	"github.com/papercomputeco/chunkstore/pkg/config"
	"github.com/papercomputeco/chunkstore/pkg/vector"
	vectorutils "github.com/papercomputeco/chunkstore/pkg/vector/utils"
)

// Flags holds the flag targets registered by AddFlags. Values are read back
// through viper so flags, env and config.toml share one precedence chain.
type Flags struct {
	provider    string
	collection  string
	dimensions  uint
	maxRetries  int
	retryDelay  string
	qdrantHost  string
	qdrantPort  int
	postgresDSN string
	sqlitePath  string
	chromaURL   string
}

// AddFlags registers the store flags on cmd.
func AddFlags(cmd *cobra.Command, f *Flags) {
	config.AddStringFlag(cmd, config.StoreFlags, config.FlagProvider, &f.provider)
	config.AddStringFlag(cmd, config.StoreFlags, config.FlagCollection, &f.collection)
	config.AddUintFlag(cmd, config.StoreFlags, config.FlagDimensions, &f.dimensions)
	config.AddIntFlag(cmd, config.StoreFlags, config.FlagMaxRetries, &f.maxRetries)
	config.AddStringFlag(cmd, config.StoreFlags, config.FlagRetryDelay, &f.retryDelay)
	config.AddStringFlag(cmd, config.StoreFlags, config.FlagQdrantHost, &f.qdrantHost)
	config.AddIntFlag(cmd, config.StoreFlags, config.FlagQdrantPort, &f.qdrantPort)
	config.AddStringFlag(cmd, config.StoreFlags, config.FlagPostgresDSN, &f.postgresDSN)
	config.AddStringFlag(cmd, config.StoreFlags, config.FlagSQLite, &f.sqlitePath)
	config.AddStringFlag(cmd, config.StoreFlags, config.FlagChromaURL, &f.chromaURL)
}

// LoadConfig resolves the effective configuration for cmd: defaults, then
// config.toml, then CHUNKSTORE_* env, then any flags in extraKeys and the
// store flags.
func LoadConfig(cmd *cobra.Command, extraKeys ...string) (*config.Config, error) {
	configDir, _ := cmd.Flags().GetString("config-dir")

	v, err := config.InitViper(configDir)
	if err != nil {
		return nil, err
	}

	keys := append([]string{}, config.StoreFlagKeys...)
	keys = append(keys, extraKeys...)
	config.BindRegisteredFlags(v, cmd, config.StoreFlags, keys)

	return config.FromViper(v), nil
}

// Open constructs the driver described by cfg. The driver is not initialized.
func Open(ctx context.Context, cfg *config.Config, configDir string, logger *slog.Logger) (vector.Driver, error) {
	retryConfig, err := cfg.VectorStore.RetryConfig()
	if err != nil {
		return nil, err
	}

	opts := &vectorutils.NewVectorDriverOpts{
		ProviderType:   cfg.VectorStore.Provider,
		CollectionName: cfg.VectorStore.Collection,
		Dimensions:     uint64(cfg.VectorStore.Dimensions),
		Retry:          retryConfig,
		QdrantHost:     cfg.Qdrant.Host,
		QdrantPort:     cfg.Qdrant.Port,
		QdrantAPIKey:   cfg.Qdrant.APIKey,
		QdrantUseTLS:   cfg.Qdrant.UseTLS,
		PostgresDSN:    cfg.Postgres.DSN,
		ChromaURL:      cfg.Chroma.URL,
		Logger:         logger,
	}

	if cfg.VectorStore.Provider == vectorutils.ProviderSQLite {
		opts.SQLitePath, err = sqlitepath.ResolveSQLitePath(cfg.SQLite.Path, configDir)
		if err != nil {
			return nil, fmt.Errorf("resolving sqlite path: %w", err)
		}
	}

	logger.Debug("opening vector store",
		"provider", opts.ProviderType,
		"collection", opts.CollectionName,
		"dimensions", opts.Dimensions,
	)

	return vectorutils.NewVectorDriver(ctx, opts)
}

// OpenFromCommand is LoadConfig followed by Open.
func OpenFromCommand(cmd *cobra.Command, logger *slog.Logger) (vector.Driver, *config.Config, error) {
	cfg, err := LoadConfig(cmd)
	if err != nil {
		return nil, nil, fmt.Errorf("loading config: %w", err)
	}

	configDir, _ := cmd.Flags().GetString("config-dir")
	driver, err := Open(cmd.Context(), cfg, configDir, logger)
	if err != nil {
		return nil, nil, err
	}
	return driver, cfg, nil
}
