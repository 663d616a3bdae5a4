// Package chunkview renders chunks for the query and get commands.
package chunkview

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/papercomputeco/chunkstore/pkg/cliui"
	"github.com/papercomputeco/chunkstore/pkg/utils"
	"github.com/papercomputeco/chunkstore/pkg/vector"
)

const previewLen = 120

// Format selects how chunks are printed.
type Format struct {
	JSON     bool
	YAML     bool
	Markdown bool
}

// AddFlags registers the output format flags on cmd.
func AddFlags(cmd *cobra.Command, f *Format) {
	cmd.Flags().BoolVar(&f.JSON, "json", false, "Print results as JSON")
	cmd.Flags().BoolVar(&f.YAML, "yaml", false, "Print results as YAML")
	cmd.Flags().BoolVar(&f.Markdown, "markdown", false, "Render full chunk content as markdown")
	cmd.MarkFlagsMutuallyExclusive("json", "yaml", "markdown")
}

// Render writes chunks to w in the selected format. withScore adds the
// similarity score to each entry.
func Render(w io.Writer, f Format, chunks []vector.Chunk, withScore bool) error {
	switch {
	case f.JSON:
		if chunks == nil {
			chunks = []vector.Chunk{}
		}
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(chunks)

	case f.YAML:
		if chunks == nil {
			chunks = []vector.Chunk{}
		}
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(chunks); err != nil {
			return fmt.Errorf("encoding yaml: %w", err)
		}
		return enc.Close()

	case f.Markdown:
		rendered, err := cliui.RenderMarkdown(Markdown(chunks, withScore))
		if err != nil {
			return fmt.Errorf("rendering markdown: %w", err)
		}
		_, err = fmt.Fprint(w, rendered)
		return err
	}

	if len(chunks) == 0 {
		_, err := fmt.Fprintln(w, "No chunks found.")
		return err
	}

	fmt.Fprintln(w)
	for i, c := range chunks {
		header := fmt.Sprintf("  %s  %s",
			cliui.KeyStyle.Render(fmt.Sprintf("#%d", i+1)),
			cliui.ValueStyle.Render(c.Ref().String()),
		)
		if withScore {
			header += "  " + cliui.ScoreStyle.Render(fmt.Sprintf("score: %.4f", c.Score))
		}
		fmt.Fprintln(w, header)

		preview := strings.ReplaceAll(utils.Truncate(c.Content, previewLen), "\n", " ")
		fmt.Fprintf(w, "  %s\n", preview)

		if len(c.Metadata) > 0 {
			fmt.Fprintf(w, "  %s\n", cliui.DimStyle.Render(formatMetadata(c.Metadata)))
		}
		fmt.Fprintln(w)
	}
	return nil
}

// Markdown lays chunks out as a markdown document, one section per chunk.
func Markdown(chunks []vector.Chunk, withScore bool) string {
	if len(chunks) == 0 {
		return "_No chunks found._\n"
	}

	var b strings.Builder
	for _, c := range chunks {
		fmt.Fprintf(&b, "## %s #%d\n\n", c.DocumentID, c.ChunkNumber)
		if withScore {
			fmt.Fprintf(&b, "**score:** %.4f\n\n", c.Score)
		}
		b.WriteString(c.Content)
		b.WriteString("\n\n")
	}
	return b.String()
}

func formatMetadata(m map[string]any) string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%v", k, m[k]))
	}
	return strings.Join(parts, " ")
}
