package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRelay_NetworkClassification(t *testing.T) {
	tor, err := NewRelay("wss://abcdefghijklmnop234567.onion")
	require.NoError(t, err)
	assert.Equal(t, NetworkTor, tor.Network)

	clear, err := NewRelay("wss://relay.example.com")
	require.NoError(t, err)
	assert.Equal(t, NetworkClearnet, clear.Network)

	_, err = NewRelay("http://x")
	assert.ErrorIs(t, err, ErrInvalidRelayURL)
}

func TestNewRelay_RejectsIAmbiguousOnionChars(t *testing.T) {
	// "0", "1", "8", "9" are not part of Tor's base32 alphabet (a-z, 2-7).
	_, err := NewRelay("wss://abcdefghi1234567890.onion")
	require.NoError(t, err) // still parses as a relay...
	r, _ := NewRelay("wss://abcdefghi1234567890.onion")
	assert.Equal(t, NetworkClearnet, r.Network) // ...but is not classified as tor
}

func TestNewRelay_LowercasesHost(t *testing.T) {
	r, err := NewRelay("wss://Relay.Example.COM")
	require.NoError(t, err)
	assert.Equal(t, "wss://relay.example.com", r.URL)
}
