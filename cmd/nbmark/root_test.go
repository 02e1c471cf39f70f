package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestStudentIDFromPath(t *testing.T) {
	require.Equal(t, "alice_smith", studentIDFromPath("/submissions/alice_smith.ipynb"))
	require.Equal(t, "bob", studentIDFromPath("bob.IPYNB"))
}

func TestValidateNotebookFile(t *testing.T) {
	dir := t.TempDir()

	path := filepath.Join(dir, "ok.ipynb")
	require.NoError(t, os.WriteFile(path, []byte(`{"cells": []}`), 0o644))
	require.NoError(t, validateNotebookFile(path))

	require.Error(t, validateNotebookFile(filepath.Join(dir, "wrong.txt")), "extension check")
	require.Error(t, validateNotebookFile(filepath.Join(dir, "absent.ipynb")), "missing file")

	binary := filepath.Join(dir, "binary.ipynb")
	require.NoError(t, os.WriteFile(binary, []byte{0x50, 0x4b, 0x03, 0x04, 0x00, 0x00}, 0o644))
	require.Error(t, validateNotebookFile(binary), "content sniffing")
}

func TestValidateRubricFile(t *testing.T) {
	dir := t.TempDir()

	path := filepath.Join(dir, "rubric.csv")
	require.NoError(t, os.WriteFile(path, []byte("Task 2,Criterion,,4\n"), 0o644))
	require.NoError(t, validateRubricFile(path))

	require.Error(t, validateRubricFile(filepath.Join(dir, "rubric.xlsx")))
}

func TestDiscoverAssignments(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"zoe.ipynb", "amy.ipynb", "notes.txt"} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte("{}"), 0o644))
	}
	require.NoError(t, os.Mkdir(filepath.Join(dir, "sub.ipynb"), 0o755))

	assignments, err := discoverAssignments(dir)
	require.NoError(t, err)

	require.Len(t, assignments, 2)
	require.Equal(t, "amy", assignments[0].StudentID)
	require.Equal(t, "zoe", assignments[1].StudentID)
	require.Equal(t, filepath.Join(dir, "amy.ipynb"), assignments[0].NotebookPath)
}
