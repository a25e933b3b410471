package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseKeyValueFlags(t *testing.T) {
	got, err := parseKeyValueFlags([]string{"WORLD=earth", "DIFFICULTY=hard"})
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"WORLD": "earth", "DIFFICULTY": "hard"}, got)
}

func TestParseKeyValueFlagsRejectsMissingEquals(t *testing.T) {
	_, err := parseKeyValueFlags([]string{"not-a-pair"})
	assert.Error(t, err)
}

func TestParseKeyValueFlagsEmpty(t *testing.T) {
	got, err := parseKeyValueFlags(nil)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestParseUploadFlags(t *testing.T) {
	got, err := parseUploadFlags([]string{"./world:/data/world", "./server.properties:/data/server.properties"})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "./world", got[0].LocalPath)
	assert.Equal(t, "/data/world", got[0].ContainerPath)
}

func TestParseUploadFlagsRejectsMissingColon(t *testing.T) {
	_, err := parseUploadFlags([]string{"not-a-pair"})
	assert.Error(t, err)
}
