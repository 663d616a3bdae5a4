// Package initcmder provides the init command for initializing a local
// .chunkstore directory and the configured collection.
package initcmder

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/papercomputeco/chunkstore/cmd/chunkstore/vectorstore"
	"github.com/papercomputeco/chunkstore/pkg/cliui"
	"github.com/papercomputeco/chunkstore/pkg/config"
	"github.com/papercomputeco/chunkstore/pkg/dotdir"
	"github.com/papercomputeco/chunkstore/pkg/logger"
)

type initCommander struct {
	preset       string
	noCollection bool
	debug        bool
	flags        vectorstore.Flags
	out          io.Writer
}

const initLongDesc string = `Initialize a new .chunkstore/ directory in the current working directory
and make sure the configured collection exists.

Creates a local .chunkstore/ directory that takes precedence over the default
~/.chunkstore/ directory for configuration and the sqlite-vec database. A
config.toml is written from --preset, or from the defaults when none exists yet.

The collection is then created with the configured dimensions. An existing
collection with different dimensions is dropped and recreated.

Presets: qdrant, pgvector, sqlite, chroma

Examples:
  chunkstore init
  chunkstore init --preset qdrant --dimensions 1536
  chunkstore init --no-collection`

const initShortDesc string = "Initialize a local .chunkstore/ directory and collection"

func NewInitCmd() *cobra.Command {
	cmder := &initCommander{}

	cmd := &cobra.Command{
		Use:   "init",
		Short: initShortDesc,
		Long:  initLongDesc,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cmder.debug, _ = cmd.Flags().GetBool("debug")
			cmder.out = cmd.OutOrStdout()
			return cmder.run(cmd)
		},
	}

	cmd.Flags().StringVar(&cmder.preset, "preset", "", "Write config.toml from a backend preset ("+strings.Join(config.ValidPresetNames(), ", ")+")")
	cmd.Flags().BoolVar(&cmder.noCollection, "no-collection", false, "Only create the directory and config, skip collection setup")
	vectorstore.AddFlags(cmd, &cmder.flags)

	return cmd
}

func (c *initCommander) run(cmd *cobra.Command) error {
	configDir, _ := cmd.Flags().GetString("config-dir")

	dir := configDir
	if dir == "" {
		cwd, err := os.Getwd()
		if err != nil {
			return fmt.Errorf("getting current directory: %w", err)
		}
		dir = filepath.Join(cwd, dotdir.DirName)
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating .chunkstore directory: %w", err)
	}

	if err := c.writeConfig(dir); err != nil {
		return err
	}

	if c.noCollection {
		return nil
	}

	log := logger.New(logger.WithDebug(c.debug), logger.WithPretty(true), logger.WithWriter(os.Stderr))

	cfg, err := vectorstore.LoadConfig(cmd)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	driver, err := vectorstore.Open(cmd.Context(), cfg, configDir, log)
	if err != nil {
		return err
	}
	defer driver.Close()

	msg := fmt.Sprintf("Initializing %s collection %s (%d dimensions)",
		cfg.VectorStore.Provider,
		cfg.VectorStore.Collection,
		cfg.VectorStore.Dimensions,
	)
	return cliui.Step(c.out, msg, func() error {
		return driver.Initialize(cmd.Context())
	})
}

// writeConfig writes config.toml from the preset. Without a preset an
// existing file is left alone and a missing one gets the defaults.
func (c *initCommander) writeConfig(dir string) error {
	cfger, err := config.NewConfiger(dir)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	var cfg *config.Config
	switch {
	case c.preset != "":
		cfg, err = config.PresetConfig(c.preset)
		if err != nil {
			return err
		}

	default:
		if _, err := os.Stat(cfger.GetTarget()); err == nil {
			fmt.Fprintf(c.out, "Already initialized: %s\n", dir)
			return nil
		} else if !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("reading config: %w", err)
		}
		cfg = config.NewDefaultConfig()
	}

	if err := cfger.SaveConfig(cfg); err != nil {
		return err
	}

	fmt.Fprintf(c.out, "Initialized .chunkstore directory: %s\n", dir)
	return nil
}
