package browser

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolveDatasetURLFindsFirstExistingCandidate(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "task.html"), []byte("<html></html>"), 0o644))

	url, err := ResolveDatasetURL(dir, []string{"missing.html", "task.html"})
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(url, "file://"))
	assert.True(t, strings.HasSuffix(url, "task.html"))
}

func TestResolveDatasetURLErrorsWhenNoCandidateExists(t *testing.T) {
	dir := t.TempDir()
	_, err := ResolveDatasetURL(dir, []string{"missing.html"})
	assert.Error(t, err)
}

func TestSnapshotProcessTreeIncludesSelf(t *testing.T) {
	tree, err := snapshotProcessTree()
	require.NoError(t, err)
	_, ok := tree[os.Getpid()]
	assert.True(t, ok)
}

func TestDiffPidsReturnsOnlyNewPids(t *testing.T) {
	before := map[int]struct{}{1: {}, 2: {}}
	after := map[int]struct{}{1: {}, 2: {}, 3: {}}
	assert.Equal(t, []int{3}, diffPids(before, after))
}
