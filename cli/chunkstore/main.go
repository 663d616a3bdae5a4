package main

import (
	"os"

	chunkstorecmder "github.com/papercomputeco/chunkstore/cmd/chunkstore"
)

func main() {
	cmd := chunkstorecmder.NewChunkstoreCmd()
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
