package engine

import (
	"context"
	"time"
)

// Conn is the minimal wire surface the engine needs from a relay
// connection; github.com/bigbrotr/archiver/internal/wsclient.Conn
// satisfies it directly, and tests can supply a stub.
type Conn interface {
	SendText(payload []byte) error
	ReadText(deadline time.Time) ([]byte, error)
	Close() error
}

// Dialer opens a Conn to a fully-schemed relay URL (e.g. "wss://host").
type Dialer func(ctx context.Context, url string) (Conn, error)

// openFirstSchema tries "wss://"+host then "ws://"+host, the first schema
// that opens winning, matching the documented schema-fallback edge case.
func openFirstSchema(ctx context.Context, dial Dialer, host string) (Conn, string, error) {
	var lastErr error
	for _, scheme := range []string{"wss://", "ws://"} {
		url := scheme + host
		conn, err := dial(ctx, url)
		if err == nil {
			return conn, url, nil
		}
		lastErr = err
	}
	return nil, "", lastErr
}
