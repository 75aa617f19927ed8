package cli

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunUnknownCommandFails(t *testing.T) {
	err := Run([]string{"bogus"})
	assert.Error(t, err)
}

func TestRunHelpSucceeds(t *testing.T) {
	err := Run([]string{"help"})
	assert.NoError(t, err)
}

func TestRunNoArgsPrintsUsageWithoutError(t *testing.T) {
	err := Run(nil)
	assert.NoError(t, err)
}

func TestCmdChecksumPrintsBlockTable(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "data.bin")
	require.NoError(t, os.WriteFile(path, make([]byte, 16*1024), 0o644))

	err := Run([]string{"checksum", path, "8192", "6"})
	assert.NoError(t, err)
}

func TestCmdDiffPrintsBlockMap(t *testing.T) {
	dir := t.TempDir()
	refPath := filepath.Join(dir, "ref.bin")
	newPath := filepath.Join(dir, "new.bin")
	require.NoError(t, os.WriteFile(refPath, make([]byte, 16*1024), 0o644))
	require.NoError(t, os.WriteFile(newPath, make([]byte, 16*1024), 0o644))

	err := Run([]string{"diff", refPath, newPath, "8192", "6"})
	assert.NoError(t, err)
}

func TestTableWriterRendersAlignedColumns(t *testing.T) {
	tw := NewTableWriter(os.Stdout)
	tw.SetHeader([]string{"a", "bb"})
	tw.Append([]string{"1", "22"})
	tw.Render()
}
