// Package configcmder provides the config command for managing persistent
// chunkstore configuration stored in the .chunkstore/ directory.
package configcmder

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/papercomputeco/chunkstore/pkg/cliui"
	"github.com/papercomputeco/chunkstore/pkg/config"
)

const configLongDesc string = `Manage persistent chunkstore configuration.

Configuration is stored as config.toml in the .chunkstore/ directory and provides
default values for command flags. CHUNKSTORE_* environment variables override
the file, and CLI flags always take precedence over both.

Keys use dotted notation matching the TOML section structure:
  vector_store.provider, vector_store.collection, vector_store.dimensions,
  vector_store.max_retries, vector_store.retry_delay,
  qdrant.host, qdrant.port, qdrant.api_key, qdrant.use_tls,
  postgres.dsn, sqlite.path, chroma.url, api.listen,
  events.kafka_brokers, events.kafka_topic

Use subcommands to get, set, or list configuration values:
  chunkstore config set <key> <value>    Set a configuration value
  chunkstore config get <key>            Get a configuration value
  chunkstore config list                 List all configuration values

Examples:
  chunkstore config set vector_store.provider qdrant
  chunkstore config set vector_store.dimensions 1536
  chunkstore config get vector_store.provider
  chunkstore config list`

const configShortDesc string = "Manage persistent chunkstore configuration"

func NewConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: configShortDesc,
		Long:  configLongDesc,
	}

	cmd.AddCommand(newSetCmd())
	cmd.AddCommand(newGetCmd())
	cmd.AddCommand(newListCmd())

	return cmd
}

func completeKeys(_ *cobra.Command, args []string, _ string) ([]string, cobra.ShellCompDirective) {
	if len(args) == 0 {
		return config.ValidConfigKeys(), cobra.ShellCompDirectiveNoFileComp
	}
	return nil, cobra.ShellCompDirectiveNoFileComp
}

func openConfiger(key, configDir string) (*config.Configer, error) {
	if key != "" && !config.IsValidConfigKey(key) {
		return nil, fmt.Errorf("unknown config key: %q\n\nValid keys: %s",
			key, strings.Join(config.ValidConfigKeys(), ", "))
	}

	cfger, err := config.NewConfiger(configDir)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	return cfger, nil
}

func printTarget(w io.Writer, cfger *config.Configer) {
	target := cfger.GetTarget()
	if target != "" {
		fmt.Fprintf(w, "\n  %s %s\n\n",
			cliui.KeyStyle.Render("Config file:"),
			cliui.DimStyle.Render(target),
		)
	} else {
		fmt.Fprintf(w, "\n  %s\n\n", cliui.DimStyle.Render("No config file found. Using defaults."))
	}
}
