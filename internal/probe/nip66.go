package probe

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/nbd-wtf/go-nostr"

	"github.com/bigbrotr/archiver/internal/domain"
	"github.com/bigbrotr/archiver/internal/wsclient"
)

// Keypair is the signing identity used for the writability probe's kind
// 30166 event.
type Keypair struct {
	PrivateKeyHex string
	PublicKeyHex  string
}

// NIP66Config bounds one connectivity probe.
type NIP66Config struct {
	Timeout    time.Duration
	Keypair    Keypair
	MinPowBits int // from NIP-11 limitation.min_pow_difficulty, 0 if absent
	PowDeadline time.Duration
}

// ProbeNIP66 measures openable/readable/writable and their RTTs for relay,
// trying wss:// then ws://, the first schema that opens winning. All
// failures degrade to a zero-value, all-false block — this function never
// returns an error.
func ProbeNIP66(ctx context.Context, relay domain.Relay, dialer wsclient.Dialer, cfg NIP66Config) *domain.NIP66 {
	host := hostOf(relay.URL)
	for _, scheme := range []string{"wss://", "ws://"} {
		result := probeOneSchema(ctx, scheme+host, relay.URL, dialer, cfg)
		if result != nil {
			return result
		}
	}
	return &domain.NIP66{}
}

func probeOneSchema(ctx context.Context, url, relayURL string, dialer wsclient.Dialer, cfg NIP66Config) *domain.NIP66 {
	start := time.Now()
	conn, err := wsclient.Dial(ctx, url, dialer)
	if err != nil {
		return nil
	}
	defer conn.Close()

	meta := &domain.NIP66{
		Openable: true,
		RTTOpen:  time.Since(start).Milliseconds(),
	}

	probeReadable(conn, cfg.Timeout, meta)
	probeWritable(ctx, conn, relayURL, cfg, meta)
	return meta
}

func probeReadable(conn *wsclient.Conn, timeout time.Duration, meta *domain.NIP66) {
	subID := uuid.NewString()
	req, err := json.Marshal([]interface{}{"REQ", subID, map[string]interface{}{"limit": 1}})
	if err != nil {
		return
	}
	start := time.Now()
	if err := conn.SendText(req); err != nil {
		return
	}
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		msg, err := conn.ReadText(deadline)
		if err != nil {
			return
		}
		var frame []json.RawMessage
		if err := json.Unmarshal(msg, &frame); err != nil || len(frame) < 2 {
			continue
		}
		var kind string
		if err := json.Unmarshal(frame[0], &kind); err != nil {
			continue
		}
		if kind == "NOTICE" {
			continue
		}
		var gotSubID string
		if err := json.Unmarshal(frame[1], &gotSubID); err != nil || gotSubID != subID {
			continue
		}
		switch kind {
		case "EVENT", "EOSE":
			meta.Readable = true
			meta.RTTRead = time.Since(start).Milliseconds()
		}
		closeReq, _ := json.Marshal([]interface{}{"CLOSE", subID})
		_ = conn.SendText(closeReq)
		return
	}
}

func probeWritable(ctx context.Context, conn *wsclient.Conn, relayURL string, cfg NIP66Config, meta *domain.NIP66) {
	if cfg.Keypair.PrivateKeyHex == "" {
		return
	}
	ev := &nostr.Event{
		PubKey:    cfg.Keypair.PublicKeyHex,
		CreatedAt: nostr.Now(),
		Kind:      30166,
		Tags:      nostr.Tags{{"d", relayURL}},
	}

	deadline := time.Now().Add(cfg.PowDeadline)
	if err := MineProofOfWork(ctx, ev, cfg.MinPowBits, deadline); err != nil {
		return
	}
	ev.ID, _ = domain.CalcEventID(ev)
	if err := ev.Sign(cfg.Keypair.PrivateKeyHex); err != nil {
		return
	}

	payload, err := json.Marshal([]interface{}{"EVENT", ev})
	if err != nil {
		return
	}
	start := time.Now()
	if err := conn.SendText(payload); err != nil {
		return
	}
	recvDeadline := time.Now().Add(cfg.Timeout)
	for time.Now().Before(recvDeadline) {
		msg, err := conn.ReadText(recvDeadline)
		if err != nil {
			return
		}
		var frame []json.RawMessage
		if err := json.Unmarshal(msg, &frame); err != nil || len(frame) < 3 {
			continue
		}
		var kind string
		if err := json.Unmarshal(frame[0], &kind); err != nil || kind == "NOTICE" {
			continue
		}
		if kind != "OK" {
			continue
		}
		var id string
		var accepted bool
		if err := json.Unmarshal(frame[1], &id); err != nil {
			continue
		}
		if err := json.Unmarshal(frame[2], &accepted); err != nil {
			continue
		}
		if id == ev.ID && accepted {
			meta.Writable = true
			meta.RTTWrite = time.Since(start).Milliseconds()
		}
		return
	}
}

