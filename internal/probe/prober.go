package probe

import (
	"context"
	"net/http"
	"time"

	"github.com/bigbrotr/archiver/internal/clock"
	"github.com/bigbrotr/archiver/internal/domain"
	"github.com/bigbrotr/archiver/internal/wsclient"
)

// Config bounds one full relay probe (NIP-11 + NIP-66).
type Config struct {
	Timeout     time.Duration
	Proxy       ProxyConfig
	Keypair     Keypair
	PowDeadline time.Duration
}

func (c Config) withDefaults() Config {
	if c.Timeout <= 0 {
		c.Timeout = 10 * time.Second
	}
	if c.PowDeadline <= 0 {
		c.PowDeadline = 20 * time.Second
	}
	return c
}

// Prober runs the NIP-11 and NIP-66 sub-probes for a relay and assembles a
// RelayMetadata snapshot. All sub-probe failures degrade to an absent
// block; Probe itself only errors on a cancelled context.
type Prober struct {
	cfg           Config
	clock         clock.Clock
	httpClient    *http.Client
	torHTTPClient *http.Client
	torDialer     wsclient.Dialer
}

// New builds a Prober. torDialer and torHTTPClient may be nil if no Tor
// relay will ever be probed; calling Probe on a tor relay without them
// simply yields an unreachable (all-false) metadata snapshot.
func New(cfg Config, clk clock.Clock, torDialer wsclient.Dialer, torTransport *http.Transport) *Prober {
	cfg = cfg.withDefaults()
	p := &Prober{
		cfg:        cfg,
		clock:      clk,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		torDialer:  torDialer,
	}
	if torTransport != nil {
		p.torHTTPClient = &http.Client{Timeout: cfg.Timeout, Transport: torTransport}
	}
	return p
}

// Probe runs both sub-probes and returns the resulting RelayMetadata.
func (p *Prober) Probe(ctx context.Context, relay domain.Relay) (domain.RelayMetadata, error) {
	select {
	case <-ctx.Done():
		return domain.RelayMetadata{}, ctx.Err()
	default:
	}

	dialer := DirectDialer
	httpClient := p.httpClient
	if relay.IsTor() {
		if p.torDialer != nil {
			dialer = p.torDialer
		}
		if p.torHTTPClient != nil {
			httpClient = p.torHTTPClient
		}
	}

	n11 := FetchNIP11(ctx, httpClient, relay, p.cfg.Timeout)

	minPow := 0
	if n11 != nil {
		if v, ok := n11.Limitation["min_pow_difficulty"]; ok {
			if f, ok := v.(float64); ok {
				minPow = int(f)
			}
		}
	}

	n66 := ProbeNIP66(ctx, relay, dialer, NIP66Config{
		Timeout:     p.cfg.Timeout,
		Keypair:     p.cfg.Keypair,
		MinPowBits:  minPow,
		PowDeadline: p.cfg.PowDeadline,
	})

	return domain.RelayMetadata{
		Relay:       relay,
		GeneratedAt: p.clock.Now().Unix(),
		NIP11:       n11,
		NIP66:       n66,
	}, nil
}
