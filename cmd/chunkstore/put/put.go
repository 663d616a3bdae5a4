// Package putcmder provides the put command storing pre-embedded chunks.
package putcmder

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/spf13/cobra"

	"github.com/papercomputeco/chunkstore/cmd/chunkstore/vectorstore"
	"github.com/papercomputeco/chunkstore/pkg/cliui"
	"github.com/papercomputeco/chunkstore/pkg/logger"
	"github.com/papercomputeco/chunkstore/pkg/vector"
)

const defaultBatchSize = 256

type putCommander struct {
	batchSize  int
	noProgress bool
	debug      bool
	flags      vectorstore.Flags
}

const putLongDesc string = `Store pre-embedded chunks read from a JSON file.

The file holds either a JSON array of chunks or one chunk object per line:
  {"document_id": "readme", "chunk_number": 0, "content": "...",
   "embedding": [0.1, 0.2, 0.3], "metadata": {"lang": "en"}}

Chunks without an embedding, or whose embedding does not match the
collection's dimensions, are skipped. Existing chunks with the same
document ID and chunk number are overwritten. Use "-" to read stdin.

Arguments may be glob patterns, including "**" for any depth. Chunks are
stored in batches of --batch-size; a progress bar is drawn on a terminal.

Examples:
  chunkstore put chunks.json
  chunkstore put 'export/**/*.jsonl' --batch-size 1000
  cat chunks.jsonl | chunkstore put -`

const putShortDesc string = "Store chunks from a JSON file"

func NewPutCmd() *cobra.Command {
	cmder := &putCommander{}

	cmd := &cobra.Command{
		Use:   "put <file|pattern|->...",
		Short: putShortDesc,
		Long:  putLongDesc,
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cmder.debug, _ = cmd.Flags().GetBool("debug")
			return cmder.run(cmd, args)
		},
	}

	cmd.Flags().IntVar(&cmder.batchSize, "batch-size", defaultBatchSize, "Number of chunks stored per request")
	cmd.Flags().BoolVar(&cmder.noProgress, "no-progress", false, "Do not draw a progress bar")

	vectorstore.AddFlags(cmd, &cmder.flags)

	return cmd
}

func (c *putCommander) run(cmd *cobra.Command, args []string) error {
	if c.batchSize <= 0 {
		return fmt.Errorf("invalid value for --batch-size: must be positive")
	}

	paths, err := ExpandPaths(args)
	if err != nil {
		return err
	}

	var chunks []vector.Chunk
	for _, path := range paths {
		read, err := c.readPath(cmd, path)
		if err != nil {
			return err
		}
		chunks = append(chunks, read...)
	}

	log := logger.New(logger.WithDebug(c.debug), logger.WithPretty(true), logger.WithWriter(os.Stderr))
	log.Debug("read chunks", "files", len(paths), "chunks", len(chunks))

	driver, _, err := vectorstore.OpenFromCommand(cmd, log)
	if err != nil {
		return err
	}
	defer driver.Close()

	stderr := cmd.ErrOrStderr()
	progress := cliui.NewProgress(stderr, len(chunks), "storing", !c.noProgress && cliui.IsTerminal(stderr))

	stored := 0
	for _, batch := range Batches(chunks, c.batchSize) {
		ids, err := driver.StoreEmbeddings(cmd.Context(), batch)
		if err != nil {
			progress.Finish()
			return fmt.Errorf("stored %d chunks before failing: %w", stored, err)
		}
		stored += len(ids)
		progress.Add(len(batch))
	}
	progress.Finish()

	fmt.Fprintf(cmd.OutOrStdout(), "  %s Stored %d of %d chunks %s\n",
		cliui.SuccessMark,
		stored,
		len(chunks),
		cliui.DimStyle.Render(fmt.Sprintf("(%d skipped)", len(chunks)-stored)),
	)
	return nil
}

func (c *putCommander) readPath(cmd *cobra.Command, path string) ([]vector.Chunk, error) {
	if path == "-" {
		return ReadChunks(cmd.InOrStdin())
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening chunks file: %w", err)
	}
	defer f.Close()

	chunks, err := ReadChunks(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return chunks, nil
}

// ExpandPaths resolves glob patterns in args. Plain paths and "-" pass
// through unchanged; a pattern matching nothing is an error.
func ExpandPaths(args []string) ([]string, error) {
	paths := make([]string, 0, len(args))
	for _, arg := range args {
		if arg == "-" || !hasMeta(arg) {
			paths = append(paths, arg)
			continue
		}

		matches, err := doublestar.FilepathGlob(arg, doublestar.WithFilesOnly())
		if err != nil {
			return nil, fmt.Errorf("invalid pattern %q: %w", arg, err)
		}
		if len(matches) == 0 {
			return nil, fmt.Errorf("no files match %q", arg)
		}
		paths = append(paths, matches...)
	}
	return paths, nil
}

func hasMeta(s string) bool {
	for _, r := range s {
		switch r {
		case '*', '?', '[', '{':
			return true
		}
	}
	return false
}

// Batches splits chunks into consecutive slices of at most size chunks.
func Batches(chunks []vector.Chunk, size int) [][]vector.Chunk {
	var out [][]vector.Chunk
	for start := 0; start < len(chunks); start += size {
		end := min(start+size, len(chunks))
		out = append(out, chunks[start:end])
	}
	return out
}

// ReadChunks decodes a JSON array of chunks or newline-delimited chunk objects.
func ReadChunks(r io.Reader) ([]vector.Chunk, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("reading chunks: %w", err)
	}

	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return []vector.Chunk{}, nil
	}

	if data[0] == '[' {
		var chunks []vector.Chunk
		if err := json.Unmarshal(data, &chunks); err != nil {
			return nil, fmt.Errorf("decoding chunks: %w", err)
		}
		return chunks, nil
	}

	chunks := []vector.Chunk{}
	scanner := bufio.NewScanner(bytes.NewReader(data))
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	line := 0
	for scanner.Scan() {
		line++
		text := bytes.TrimSpace(scanner.Bytes())
		if len(text) == 0 {
			continue
		}

		var c vector.Chunk
		if err := json.Unmarshal(text, &c); err != nil {
			return nil, fmt.Errorf("decoding chunk on line %d: %w", line, err)
		}
		chunks = append(chunks, c)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading chunks: %w", err)
	}
	return chunks, nil
}
