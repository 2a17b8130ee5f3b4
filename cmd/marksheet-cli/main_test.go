package main

import (
	"bytes"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRootCommandTree(t *testing.T) {
	root := newRootCmd()

	names := map[string]bool{}
	for _, sub := range root.Commands() {
		names[sub.Name()] = true
	}
	assert.True(t, names["migrate"])
	assert.True(t, names["process"])
	assert.True(t, names["export"])
}

func TestExportRejectsUnknownShapeBeforeConnecting(t *testing.T) {
	root := newRootCmd()
	root.SetOut(io.Discard)
	root.SetErr(io.Discard)
	root.SetArgs([]string{"export", "some-id", "--shape", "full"})

	err := root.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown export")
}

func TestProcessRequiresArguments(t *testing.T) {
	root := newRootCmd()
	root.SetOut(io.Discard)
	root.SetErr(io.Discard)
	root.SetArgs([]string{"process"})
	assert.Error(t, root.Execute())
}

func TestLocalUploadFiles(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "sheet.png")
	require.NoError(t, os.WriteFile(path, []byte("pixels"), 0o644))

	files, err := localUploadFiles([]string{path})
	require.NoError(t, err)
	require.Len(t, files, 1)
	assert.Equal(t, "sheet.png", files[0].Filename)
	assert.Equal(t, int64(6), files[0].Size)

	rc, err := files[0].Open()
	require.NoError(t, err)
	defer rc.Close()
	data, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.True(t, bytes.Equal([]byte("pixels"), data))

	_, err = localUploadFiles([]string{dir})
	assert.Error(t, err)
	_, err = localUploadFiles([]string{filepath.Join(dir, "missing.png")})
	assert.Error(t, err)
}
