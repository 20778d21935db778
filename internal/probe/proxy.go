package probe

import (
	"context"
	"fmt"
	"net"
	"net/http"

	"golang.org/x/net/proxy"

	"github.com/bigbrotr/archiver/internal/wsclient"
)

// ProxyConfig describes the SOCKS5 proxy every Tor-networked relay is
// reached through.
type ProxyConfig struct {
	Host string
	Port string
}

func (c ProxyConfig) addr() string {
	return net.JoinHostPort(c.Host, c.Port)
}

// DirectDialer dials clearnet connections without a proxy.
func DirectDialer(ctx context.Context, network, addr string) (net.Conn, error) {
	var d net.Dialer
	return d.DialContext(ctx, network, addr)
}

// TorDialer returns a wsclient.Dialer that routes every connection through
// cfg's SOCKS5 proxy, used for any relay whose domain.Relay.Network is tor.
func TorDialer(cfg ProxyConfig) (wsclient.Dialer, error) {
	socksDialer, err := proxy.SOCKS5("tcp", cfg.addr(), nil, proxy.Direct)
	if err != nil {
		return nil, fmt.Errorf("probe: build socks5 dialer: %w", err)
	}
	contextDialer, ok := socksDialer.(proxy.ContextDialer)
	if !ok {
		// golang.org/x/net/proxy's SOCKS5 dialer implements ContextDialer;
		// this branch only triggers against a nonconforming replacement.
		return func(ctx context.Context, network, addr string) (net.Conn, error) {
			return socksDialer.Dial(network, addr)
		}, nil
	}
	return contextDialer.DialContext, nil
}

// TorHTTPTransport returns an http.Transport that routes every request
// through cfg's SOCKS5 proxy, for the NIP-11 fetch against a tor relay.
func TorHTTPTransport(cfg ProxyConfig) (*http.Transport, error) {
	dialer, err := TorDialer(cfg)
	if err != nil {
		return nil, err
	}
	return &http.Transport{DialContext: dialer}, nil
}
