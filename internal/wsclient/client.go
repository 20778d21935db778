// Package wsclient is a minimal JSON-array-frame WebSocket client used by
// the probe and engine to speak the relay wire subprotocol (REQ/CLOSE/
// EVENT/EOSE/CLOSED/OK/NOTICE) with exact control over dial timing and
// optional SOCKS5 proxying, built on the same gobwas/ws frame library
// go-nostr itself depends on.
package wsclient

import (
	"bufio"
	"context"
	"fmt"
	"net"
	"time"

	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"
)

// Dialer creates the underlying net.Conn for a WebSocket dial. A Tor relay
// plugs in a SOCKS5-backed Dialer; a clearnet relay uses the default.
type Dialer func(ctx context.Context, network, addr string) (net.Conn, error)

// Conn is one open WebSocket session to a relay.
type Conn struct {
	conn net.Conn
	br   *bufio.Reader
}

// Dial opens a WebSocket connection to rawURL (scheme ws:// or wss://).
func Dial(ctx context.Context, rawURL string, dialer Dialer) (*Conn, error) {
	d := ws.Dialer{Timeout: 0}
	if dialer != nil {
		d.NetDial = dialer
	}
	conn, br, _, err := d.Dial(ctx, rawURL)
	if err != nil {
		return nil, fmt.Errorf("wsclient: dial %s: %w", rawURL, err)
	}
	return &Conn{conn: conn, br: br}, nil
}

// Read satisfies io.Reader, preferring any bytes buffered during the
// handshake before falling back to the live connection.
func (c *Conn) Read(p []byte) (int, error) {
	if c.br != nil && c.br.Buffered() > 0 {
		return c.br.Read(p)
	}
	return c.conn.Read(p)
}

// Write satisfies io.Writer.
func (c *Conn) Write(p []byte) (int, error) {
	return c.conn.Write(p)
}

// SendText writes one text frame.
func (c *Conn) SendText(payload []byte) error {
	return wsutil.WriteClientMessage(c.conn, ws.OpText, payload)
}

// ReadText blocks until one text frame arrives or deadline is exceeded,
// transparently answering control frames (ping/close) as required by the
// protocol.
func (c *Conn) ReadText(deadline time.Time) ([]byte, error) {
	if err := c.conn.SetReadDeadline(deadline); err != nil {
		return nil, fmt.Errorf("wsclient: set read deadline: %w", err)
	}
	msg, err := wsutil.ReadServerText(c)
	if err != nil {
		return nil, err
	}
	return msg, nil
}

// Close closes the underlying connection.
func (c *Conn) Close() error {
	return c.conn.Close()
}
