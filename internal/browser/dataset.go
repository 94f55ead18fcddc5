package browser

import (
	"fmt"
	"os"
	"path/filepath"
)

func osSetenv(key, value string) error {
	return os.Setenv(key, value)
}

// ResolveDatasetURL returns the file:// URL for the first existing candidate
// path under root, for benchmarks whose task content is local. Remote-
// dataset benchmarks never call this; DatasetEnvVar is left empty for them
// upstream in the benchmark profile.
func ResolveDatasetURL(root string, candidates []string) (string, error) {
	for _, c := range candidates {
		full := filepath.Join(root, c)
		if _, err := os.Stat(full); err != nil {
			continue
		}
		abs, err := filepath.Abs(full)
		if err != nil {
			return "", err
		}
		return "file://" + abs, nil
	}
	return "", fmt.Errorf("no candidate dataset path found under %q", root)
}
