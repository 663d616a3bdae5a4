// Package sqlitepath resolves the sqlite-vec database used when no explicit
// path is configured.
package sqlitepath

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/papercomputeco/chunkstore/pkg/dotdir"
)

// DefaultFileName is the database file created inside the .chunkstore/ directory.
const DefaultFileName = "chunkstore.db"

// ResolveSQLitePath returns the database path for the sqlite provider.
// Order of precedence is as follows:
//  1. Provided override (flag, env or config file value)
//  2. CHUNKSTORE_SQLITE or CHUNKSTORE_DB
//  3. An existing database in a well-known location
//  4. chunkstore.db inside the resolved .chunkstore/ directory
func ResolveSQLitePath(override, configDir string) (string, error) {
	if override != "" {
		return override, nil
	}

	if envPath := strings.TrimSpace(os.Getenv("CHUNKSTORE_SQLITE")); envPath != "" {
		return envPath, nil
	}
	if envPath := strings.TrimSpace(os.Getenv("CHUNKSTORE_DB")); envPath != "" {
		return envPath, nil
	}

	if configDir == "" {
		for _, candidate := range sqliteCandidates() {
			if _, err := os.Stat(candidate); err == nil {
				return candidate, nil
			}
		}
	}

	target, err := dotdir.NewManager().Target(configDir)
	if err != nil {
		return "", err
	}
	return filepath.Join(target, DefaultFileName), nil
}

func sqliteCandidates() []string {
	candidates := []string{
		DefaultFileName,
		filepath.Join(dotdir.DirName, DefaultFileName),
	}

	home, err := os.UserHomeDir()
	if err == nil {
		candidates = append(candidates, filepath.Join(home, dotdir.DirName, DefaultFileName))
	}

	if xdgHome := strings.TrimSpace(os.Getenv("XDG_DATA_HOME")); xdgHome != "" {
		candidates = append([]string{
			filepath.Join(xdgHome, "chunkstore", DefaultFileName),
		}, candidates...)
	}

	return candidates
}
