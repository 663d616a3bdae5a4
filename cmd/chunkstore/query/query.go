// Package querycmder provides the query command for similarity search.
package querycmder

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/papercomputeco/chunkstore/cmd/chunkstore/chunkview"
	"github.com/papercomputeco/chunkstore/cmd/chunkstore/vectorstore"
	"github.com/papercomputeco/chunkstore/pkg/logger"
)

type queryCommander struct {
	vector string
	k      int
	docIDs []string
	debug  bool
	format chunkview.Format
	flags  vectorstore.Flags
}

const queryLongDesc string = `Query the vector store for the chunks most similar to an embedding.

The embedding is given as comma-separated floats and must match the
collection's dimensions. Results are ordered by descending similarity score.
Use --doc (repeatable) to restrict the search to specific documents.

Examples:
  chunkstore query --vector 0.1,0.2,0.3
  chunkstore query --vector 1,0,0 -k 10 --doc readme --doc changelog
  chunkstore query --vector 1,0,0 --markdown`

const queryShortDesc string = "Query similar chunks"

func NewQueryCmd() *cobra.Command {
	cmder := &queryCommander{}

	cmd := &cobra.Command{
		Use:   "query",
		Short: queryShortDesc,
		Long:  queryLongDesc,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cmder.debug, _ = cmd.Flags().GetBool("debug")
			return cmder.run(cmd)
		},
	}

	cmd.Flags().StringVar(&cmder.vector, "vector", "", "Query embedding as comma-separated floats (required)")
	cmd.Flags().IntVarP(&cmder.k, "top", "k", 5, "Number of results to return")
	cmd.Flags().StringSliceVar(&cmder.docIDs, "doc", nil, "Restrict results to this document ID (repeatable)")
	_ = cmd.MarkFlagRequired("vector")
	chunkview.AddFlags(cmd, &cmder.format)
	vectorstore.AddFlags(cmd, &cmder.flags)

	return cmd
}

func (c *queryCommander) run(cmd *cobra.Command) error {
	embedding, err := ParseVector(c.vector)
	if err != nil {
		return err
	}
	if c.k < 0 {
		return fmt.Errorf("invalid value for --top: must not be negative")
	}

	log := logger.New(logger.WithDebug(c.debug), logger.WithPretty(true), logger.WithWriter(os.Stderr))

	driver, _, err := vectorstore.OpenFromCommand(cmd, log)
	if err != nil {
		return err
	}
	defer driver.Close()

	chunks, err := driver.QuerySimilar(cmd.Context(), embedding, c.k, c.docIDs)
	if err != nil {
		return err
	}

	return chunkview.Render(cmd.OutOrStdout(), c.format, chunks, true)
}

// ParseVector parses a comma-separated list of floats.
func ParseVector(s string) ([]float32, error) {
	s = strings.TrimSpace(strings.Trim(strings.TrimSpace(s), "[]"))
	if s == "" {
		return nil, fmt.Errorf("vector is empty")
	}

	parts := strings.Split(s, ",")
	v := make([]float32, len(parts))
	for i, p := range parts {
		f, err := strconv.ParseFloat(strings.TrimSpace(p), 32)
		if err != nil {
			return nil, fmt.Errorf("invalid vector component %d: %w", i, err)
		}
		v[i] = float32(f)
	}
	return v, nil
}
