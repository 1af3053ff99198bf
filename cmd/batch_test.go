package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReadLeads_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "leads.json")
	data := `[
		{"name": "Jane Smith", "company": "Acme", "raw_location": "Austin, Texas"},
		{"name": "Bob Jones", "profile_url": "https://example.com/in/bobjones"}
	]`
	require.NoError(t, os.WriteFile(path, []byte(data), 0o644))

	leads, err := readLeads(path)
	require.NoError(t, err)
	require.Len(t, leads, 2)
	assert.Equal(t, "Jane Smith", leads[0].Name)
	assert.Equal(t, "Austin, Texas", leads[0].RawLocation)
	assert.Equal(t, "https://example.com/in/bobjones", leads[1].ProfileURL)
}

func TestReadLeads_MissingFile(t *testing.T) {
	_, err := readLeads(filepath.Join(t.TempDir(), "nope.json"))
	assert.Error(t, err)
}

func TestReadLeads_MalformedJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"not":"an array"}`), 0o644))

	_, err := readLeads(path)
	assert.Error(t, err)
}
