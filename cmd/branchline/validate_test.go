package main

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/branchline/branchline/internal/testutils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateFiles(t *testing.T) {
	dir := t.TempDir()

	good, err := json.Marshal(testutils.BranchingStory())
	require.NoError(t, err)
	goodPath := filepath.Join(dir, "branching.json")
	require.NoError(t, os.WriteFile(goodPath, good, 0644))

	bad, err := json.Marshal(testutils.CyclicStory())
	require.NoError(t, err)
	badPath := filepath.Join(dir, "cyclic.json")
	require.NoError(t, os.WriteFile(badPath, bad, 0644))

	assert.NoError(t, validateFiles([]string{goodPath}))

	err = validateFiles([]string{goodPath, badPath})
	assert.ErrorContains(t, err, "validation failed for 1 of 2 files")

	assert.Error(t, validateFiles([]string{filepath.Join(dir, "absent.yaml")}))
}
