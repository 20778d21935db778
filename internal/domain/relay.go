// Package domain holds the immutable value types shared by every archiver
// subsystem: relays, events, and relay metadata.
package domain

import (
	"errors"
	"fmt"
	"net/url"
	"regexp"
	"strings"
)

// Network classifies a relay's transport.
type Network string

const (
	NetworkClearnet Network = "clearnet"
	NetworkTor      Network = "tor"
)

// onionHostPattern matches v2/v3 onion hostnames: 16 to 56 characters of
// the lowercase RFC4648 base32 alphabet (a-z and 2-7), which Tor encodes
// onion addresses in. The port, if any, is stripped before matching.
var onionHostPattern = regexp.MustCompile(`^[a-z2-7]{16,56}\.onion$`)

var ErrInvalidRelayURL = errors.New("domain: invalid relay url")

// Relay is the stable identity of an archived relay.
type Relay struct {
	URL     string
	Network Network
}

// NewRelay validates and normalizes a relay URL, classifying its network.
// The URL must use scheme ws:// or wss://. The scheme and host are
// lowercased; the path is preserved as given (trailing slash is not added).
func NewRelay(rawURL string) (Relay, error) {
	trimmed := strings.TrimSpace(rawURL)
	u, err := url.Parse(trimmed)
	if err != nil {
		return Relay{}, fmt.Errorf("%w: %s: %v", ErrInvalidRelayURL, rawURL, err)
	}
	switch u.Scheme {
	case "ws", "wss":
	default:
		return Relay{}, fmt.Errorf("%w: %s: scheme must be ws or wss", ErrInvalidRelayURL, rawURL)
	}
	if u.Host == "" {
		return Relay{}, fmt.Errorf("%w: %s: missing host", ErrInvalidRelayURL, rawURL)
	}
	u.Host = strings.ToLower(u.Host)

	return Relay{
		URL:     u.String(),
		Network: classifyNetwork(u.Hostname()),
	}, nil
}

func classifyNetwork(host string) Network {
	if onionHostPattern.MatchString(strings.ToLower(host)) {
		return NetworkTor
	}
	return NetworkClearnet
}

// IsTor reports whether this relay must be reached through a proxy dialer.
func (r Relay) IsTor() bool {
	return r.Network == NetworkTor
}

func (r Relay) String() string {
	return r.URL
}
