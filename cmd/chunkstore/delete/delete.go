// Package deletecmder provides the delete command removing a document's chunks.
package deletecmder

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/papercomputeco/chunkstore/cmd/chunkstore/vectorstore"
	"github.com/papercomputeco/chunkstore/pkg/cliui"
	"github.com/papercomputeco/chunkstore/pkg/logger"
)

type deleteCommander struct {
	debug bool
	flags vectorstore.Flags
}

const deleteLongDesc string = `Delete every chunk belonging to a document.

Deleting a document that has no chunks succeeds.

Examples:
  chunkstore delete readme`

const deleteShortDesc string = "Delete a document's chunks"

func NewDeleteCmd() *cobra.Command {
	cmder := &deleteCommander{}

	cmd := &cobra.Command{
		Use:   "delete <document_id>",
		Short: deleteShortDesc,
		Long:  deleteLongDesc,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cmder.debug, _ = cmd.Flags().GetBool("debug")
			return cmder.run(cmd, args[0])
		},
	}

	vectorstore.AddFlags(cmd, &cmder.flags)

	return cmd
}

func (c *deleteCommander) run(cmd *cobra.Command, documentID string) error {
	if documentID == "" {
		return fmt.Errorf("document id is required")
	}

	log := logger.New(logger.WithDebug(c.debug), logger.WithPretty(true), logger.WithWriter(os.Stderr))

	driver, _, err := vectorstore.OpenFromCommand(cmd, log)
	if err != nil {
		return err
	}
	defer driver.Close()

	if err := driver.DeleteChunksByDocumentID(cmd.Context(), documentID); err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "  %s Deleted chunks of %s\n", cliui.SuccessMark, cliui.KeyStyle.Render(documentID))
	return nil
}
