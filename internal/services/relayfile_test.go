package services

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReadRelayFile_SkipsBlankAndInvalidLines(t *testing.T) {
	path := writeSeedFile(t, "wss://a.relay", "", "   ", "ftp://bad.scheme", "wss://b.relay")

	relays, err := ReadRelayFile(path, noopLogger{})

	require.NoError(t, err)
	urls := make([]string, len(relays))
	for i, r := range relays {
		urls[i] = r.URL
	}
	assert.ElementsMatch(t, []string{"wss://a.relay", "wss://b.relay"}, urls)
}

func TestReadRelayFile_MissingFileErrors(t *testing.T) {
	_, err := ReadRelayFile("/nonexistent/path/does-not-exist.txt", noopLogger{})
	assert.Error(t, err)
}

func TestShuffle_PreservesElementsAndLength(t *testing.T) {
	path := writeSeedFile(t, "wss://a.relay", "wss://b.relay", "wss://c.relay")
	relays, err := ReadRelayFile(path, noopLogger{})
	require.NoError(t, err)

	before := make(map[string]bool, len(relays))
	for _, r := range relays {
		before[r.URL] = true
	}

	Shuffle(relays)

	assert.Len(t, relays, 3)
	for _, r := range relays {
		assert.True(t, before[r.URL])
	}
}
