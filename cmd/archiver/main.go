// Command archiver runs the Nostr relay archiving crawler: it wires the
// Store, rate limiter, relay probe and event synchronization engine into
// the four service loops (Initializer, Monitor, Synchronizer, Priority
// Synchronizer) and runs the ones selected on the command line until
// SIGINT/SIGTERM.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"net"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/bigbrotr/archiver/internal/clock"
	"github.com/bigbrotr/archiver/internal/config"
	"github.com/bigbrotr/archiver/internal/engine"
	"github.com/bigbrotr/archiver/internal/obslog"
	"github.com/bigbrotr/archiver/internal/probe"
	"github.com/bigbrotr/archiver/internal/ratelimit"
	"github.com/bigbrotr/archiver/internal/services"
	"github.com/bigbrotr/archiver/internal/store"
	"github.com/bigbrotr/archiver/internal/wsclient"
)

func main() {
	service := flag.String("service", "", "one of: initializer, monitor, synchronizer, priority")
	flag.Parse()

	logger := obslog.NewSlog()
	cfg := config.LoadFromEnv()
	clk := clock.Real{}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	centralStore, err := store.NewPostgres(cfg.Store.DSN(), postgresPoolConfig(cfg.Store))
	if err != nil {
		logger.Error("open central store", "error", err.Error())
		os.Exit(1)
	}
	defer centralStore.Close()
	if err := centralStore.Ping(ctx); err != nil {
		logger.Error("ping central store", "error", err.Error())
		os.Exit(1)
	}

	limiter := ratelimit.New(cfg.Fabric.RequestsPerSec, cfg.Fabric.Burst)
	dial := buildEngineDialer(cfg, limiter)
	prober := buildProber(cfg, clk, limiter)

	workerStore := func(workerID int) (store.Store, io.Closer, error) {
		st, err := store.NewPostgres(cfg.Store.DSN(), postgresPoolConfig(cfg.Store))
		if err != nil {
			return nil, nil, fmt.Errorf("worker %d: open store: %w", workerID, err)
		}
		return st, st, nil
	}

	switch *service {
	case "initializer":
		init := services.NewInitializer(centralStore, clk, logger)
		if _, err := init.SeedFromFile(ctx, cfg.Services.SeedFilePath); err != nil {
			logger.Error("initializer failed", "error", err.Error())
			os.Exit(1)
		}

	case "monitor":
		mon := services.NewMonitor(centralStore, prober, clk, logger,
			cfg.Services.MonitorInterval, cfg.Services.MetadataStaleAfter,
			cfg.Fabric.NumCores*cfg.Fabric.RequestsPerCore)
		mon.Run(ctx)

	case "synchronizer":
		priority := services.NewPrioritySynchronizer(workerStore, dial, clk, logger, priorityConfig(cfg))
		sync := services.NewSynchronizer(centralStore, workerStore, dial, clk, logger, syncConfig(cfg))
		sync.ExcludeURLs = priority.URLs
		sync.Run(ctx)

	case "priority":
		priority := services.NewPrioritySynchronizer(workerStore, dial, clk, logger, priorityConfig(cfg))
		priority.Run(ctx)

	default:
		fmt.Fprintln(os.Stderr, "usage: archiver -service={initializer,monitor,synchronizer,priority}")
		os.Exit(1)
	}
}

func postgresPoolConfig(sc config.StoreConfig) store.PoolConfig {
	return store.PoolConfig{
		MaxOpenConns:    sc.MaxOpenConns,
		MaxIdleConns:    sc.MaxIdleConns,
		ConnMaxLifetime: sc.ConnMaxLifetime,
		AcquireTimeout:  sc.AcquireTimeout,
		CommandTimeout:  sc.CommandTimeout,
	}
}

func syncConfig(cfg *config.Config) services.SyncConfig {
	return services.SyncConfig{
		Interval:         cfg.Services.SynchronizerInterval,
		FreshSince:       cfg.Services.ReadableFreshSince,
		Workers:          cfg.Fabric.NumCores * cfg.Fabric.RequestsPerCore,
		StartJitter:      cfg.Fabric.StartJitter,
		Start:            cfg.Engine.Start,
		Stop:             cfg.Engine.Stop,
		Timeout:          cfg.Engine.Timeout,
		Filter:           cfg.Engine.Filter,
		FailureWindow:    cfg.Fabric.FailureWindow,
		FailureThreshold: cfg.Fabric.FailureThreshold,
	}
}

func priorityConfig(cfg *config.Config) services.PriorityConfig {
	return services.PriorityConfig{
		Interval:         cfg.Services.SynchronizerInterval,
		FilePath:         cfg.Services.PriorityFilePath,
		Workers:          cfg.Fabric.NumCores,
		StartJitter:      cfg.Fabric.StartJitter,
		Start:            cfg.Engine.Start,
		Stop:             cfg.Engine.Stop,
		Timeout:          cfg.Engine.Timeout,
		Filter:           cfg.Engine.Filter,
		FailureWindow:    cfg.Fabric.FailureWindow,
		FailureThreshold: cfg.Fabric.FailureThreshold,
	}
}

// buildProber wires NIP-11/NIP-66 probing with optional Tor routing.
func buildProber(cfg *config.Config, clk clock.Clock, limiter *ratelimit.Limiter) *probe.Prober {
	proxyCfg := probe.ProxyConfig{Host: cfg.Probe.SocksHost, Port: strconv.Itoa(cfg.Probe.SocksPort)}

	torDialer, err := probe.TorDialer(proxyCfg)
	if err != nil {
		torDialer = nil
	}
	torTransport, err := probe.TorHTTPTransport(proxyCfg)
	if err != nil {
		torTransport = nil
	}

	return probe.New(probe.Config{
		Timeout:     cfg.Probe.Timeout,
		Proxy:       proxyCfg,
		PowDeadline: cfg.Probe.PowDeadline,
		Keypair: probe.Keypair{
			PrivateKeyHex: cfg.Probe.PrivateKey,
			PublicKeyHex:  cfg.Probe.PublicKey,
		},
	}, clk, rateLimitedWSDialer(torDialer, limiter), torTransport)
}

// buildEngineDialer wires the engine's connection opener on top of
// wsclient, rate-limiting each new TCP dial per relay host and routing
// Tor relays through the configured SOCKS5 proxy.
func buildEngineDialer(cfg *config.Config, limiter *ratelimit.Limiter) engine.Dialer {
	proxyCfg := probe.ProxyConfig{Host: cfg.Probe.SocksHost, Port: strconv.Itoa(cfg.Probe.SocksPort)}
	torDialer, err := probe.TorDialer(proxyCfg)
	if err != nil {
		torDialer = nil
	}

	directDial := rateLimitedWSDialer(probe.DirectDialer, limiter)
	torDial := rateLimitedWSDialer(torDialer, limiter)

	return func(ctx context.Context, url string) (engine.Conn, error) {
		dialer := directDial
		if isOnionURL(url) && torDial != nil {
			dialer = torDial
		}
		conn, err := wsclient.Dial(ctx, url, dialer)
		if err != nil {
			return nil, err
		}
		return conn, nil
	}
}

func rateLimitedWSDialer(base wsclient.Dialer, limiter *ratelimit.Limiter) wsclient.Dialer {
	if base == nil {
		return nil
	}
	return func(ctx context.Context, network, addr string) (net.Conn, error) {
		if err := limiter.Acquire(ctx, addr, 1); err != nil {
			return nil, err
		}
		return base(ctx, network, addr)
	}
}

func isOnionURL(url string) bool {
	return strings.Contains(url, ".onion")
}
