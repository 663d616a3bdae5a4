// Package chunkstorecmder provides the root chunkstore command.
package chunkstorecmder

import (
	"github.com/spf13/cobra"

	configcmder "github.com/papercomputeco/chunkstore/cmd/chunkstore/config"
	deletecmder "github.com/papercomputeco/chunkstore/cmd/chunkstore/delete"
	getcmder "github.com/papercomputeco/chunkstore/cmd/chunkstore/get"
	initcmder "github.com/papercomputeco/chunkstore/cmd/chunkstore/init"
	putcmder "github.com/papercomputeco/chunkstore/cmd/chunkstore/put"
	querycmder "github.com/papercomputeco/chunkstore/cmd/chunkstore/query"
	servecmder "github.com/papercomputeco/chunkstore/cmd/chunkstore/serve"
	versioncmder "github.com/papercomputeco/chunkstore/cmd/version"
)

const chunkstoreLongDesc string = `Chunkstore keeps embedded document chunks in a vector store and
answers similarity queries over them.

Supported stores: qdrant, pgvector, sqlite (sqlite-vec), chroma.

Get started:
  chunkstore init                      Create .chunkstore/ and the collection
  chunkstore put chunks.json           Store pre-embedded chunks
  chunkstore query --vector 1,0,0      Find similar chunks
  chunkstore serve                     Run the HTTP API and MCP server`

const chunkstoreShortDesc string = "Chunkstore - vector storage for document chunks"

func NewChunkstoreCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:          "chunkstore",
		Short:        chunkstoreShortDesc,
		Long:         chunkstoreLongDesc,
		SilenceUsage: true,
	}

	// Global flags
	cmd.PersistentFlags().BoolP("debug", "d", false, "Enable debug logging")
	cmd.PersistentFlags().String("config-dir", "", "Directory holding config.toml (default: ./.chunkstore or ~/.chunkstore)")

	// Add subcommands
	cmd.AddCommand(initcmder.NewInitCmd())
	cmd.AddCommand(servecmder.NewServeCmd())
	cmd.AddCommand(putcmder.NewPutCmd())
	cmd.AddCommand(querycmder.NewQueryCmd())
	cmd.AddCommand(getcmder.NewGetCmd())
	cmd.AddCommand(deletecmder.NewDeleteCmd())
	cmd.AddCommand(configcmder.NewConfigCmd())
	cmd.AddCommand(versioncmder.NewVersionCmd())

	return cmd
}
