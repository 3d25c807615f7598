package snapshot

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWorkspace_WriteAndPromote(t *testing.T) {
	t.Parallel()
	root := filepath.Join(t.TempDir(), "data")

	ws, err := New(root, "run-1")
	require.NoError(t, err)

	path, err := ws.WriteFile(RankingFile, []byte(`{"response":{"ranks":[]}}`))
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(root, ".runs", "run-1", RankingFile), path)

	// Nothing at the fixed path until promotion
	_, err = os.Stat(ws.FixedPath(RankingFile))
	assert.True(t, os.IsNotExist(err))

	require.NoError(t, ws.Promote(RankingFile, AppsFile))

	got, err := os.ReadFile(filepath.Join(root, RankingFile))
	require.NoError(t, err)
	assert.Equal(t, `{"response":{"ranks":[]}}`, string(got))

	// AppsFile was never written so it is skipped rather than failing
	_, err = os.Stat(filepath.Join(root, AppsFile))
	assert.True(t, os.IsNotExist(err))

	require.NoError(t, ws.Cleanup())
	_, err = os.Stat(ws.Dir)
	assert.True(t, os.IsNotExist(err))
}

func TestWorkspace_PromoteOverwritesPreviousRun(t *testing.T) {
	t.Parallel()
	root := t.TempDir()

	first, err := New(root, "first")
	require.NoError(t, err)
	_, err = first.WriteFile(AppsFile, []byte("old"))
	require.NoError(t, err)
	require.NoError(t, first.Promote(AppsFile))

	second, err := New(root, "second")
	require.NoError(t, err)
	_, err = second.WriteFile(AppsFile, []byte("new"))
	require.NoError(t, err)
	require.NoError(t, second.Promote(AppsFile))

	got, err := os.ReadFile(filepath.Join(root, AppsFile))
	require.NoError(t, err)
	assert.Equal(t, "new", string(got))
}

func TestWorkspace_WriteLeavesNoTempFiles(t *testing.T) {
	t.Parallel()
	ws, err := New(t.TempDir(), "run")
	require.NoError(t, err)

	_, err = ws.WriteFile(HandoffFile, []byte{0x01, 0x02})
	require.NoError(t, err)
	_, err = ws.WriteFile(HandoffFile, []byte{0x03})
	require.NoError(t, err)

	entries, err := os.ReadDir(ws.Dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, HandoffFile, entries[0].Name())
}
