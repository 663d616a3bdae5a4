// Package getcmder provides the get command for fetching chunks by reference.
package getcmder

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/papercomputeco/chunkstore/cmd/chunkstore/chunkview"
	"github.com/papercomputeco/chunkstore/cmd/chunkstore/vectorstore"
	"github.com/papercomputeco/chunkstore/pkg/logger"
	"github.com/papercomputeco/chunkstore/pkg/vector"
)

type getCommander struct {
	debug  bool
	format chunkview.Format
	flags  vectorstore.Flags
}

const getLongDesc string = `Fetch chunks by document ID and chunk number.

Each argument has the form <document_id>:<chunk_number>. Chunks that do not
exist are skipped.

Examples:
  chunkstore get readme:0 readme:1
  chunkstore get notes/2024.md:3 --markdown`

const getShortDesc string = "Fetch chunks by reference"

func NewGetCmd() *cobra.Command {
	cmder := &getCommander{}

	cmd := &cobra.Command{
		Use:   "get <document_id:chunk_number>...",
		Short: getShortDesc,
		Long:  getLongDesc,
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cmder.debug, _ = cmd.Flags().GetBool("debug")
			return cmder.run(cmd, args)
		},
	}

	chunkview.AddFlags(cmd, &cmder.format)
	vectorstore.AddFlags(cmd, &cmder.flags)

	return cmd
}

func (c *getCommander) run(cmd *cobra.Command, args []string) error {
	refs := make([]vector.ChunkRef, 0, len(args))
	for _, arg := range args {
		ref, err := ParseChunkRef(arg)
		if err != nil {
			return err
		}
		refs = append(refs, ref)
	}

	log := logger.New(logger.WithDebug(c.debug), logger.WithPretty(true), logger.WithWriter(os.Stderr))

	driver, _, err := vectorstore.OpenFromCommand(cmd, log)
	if err != nil {
		return err
	}
	defer driver.Close()

	chunks, err := driver.GetChunksByID(cmd.Context(), refs)
	if err != nil {
		return err
	}

	return chunkview.Render(cmd.OutOrStdout(), c.format, chunks, false)
}

// ParseChunkRef parses "<document_id>:<chunk_number>". The document ID may
// itself contain colons; the last one separates the chunk number.
func ParseChunkRef(s string) (vector.ChunkRef, error) {
	i := strings.LastIndex(s, ":")
	if i <= 0 || i == len(s)-1 {
		return vector.ChunkRef{}, fmt.Errorf("invalid chunk reference %q: expected <document_id>:<chunk_number>", s)
	}

	n, err := strconv.Atoi(s[i+1:])
	if err != nil || n < 0 {
		return vector.ChunkRef{}, fmt.Errorf("invalid chunk number in %q", s)
	}

	return vector.ChunkRef{DocumentID: s[:i], ChunkNumber: n}, nil
}
