package domain

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/nbd-wtf/go-nostr"
)

// overEscapeReplacer undoes the common escape sequences a relay's JSON
// encoder sometimes double-applies before hashing, in the same order the
// original crawler applies them.
var overEscapeReplacer = strings.NewReplacer(
	`\n`, "\n",
	`\"`, `"`,
	`\\`, `\`,
	`\r`, "\r",
	`\t`, "\t",
	`\b`, "\b",
	`\f`, "\f",
)

// CalcEventID computes the canonical content-addressed id of an event the
// way a relay conformant with NIP-01 does: sha256 of the compact JSON array
// [0, pubkey, created_at, kind, tags, content], content unescaped first.
// The marshal must not HTML-escape '<', '>', '&' — json.dumps(ensure_ascii=
// False) doesn't either, and an escaped id would diverge from every other
// NIP-01-conformant implementation for content/tags containing them.
func CalcEventID(ev *nostr.Event) (string, error) {
	content := overEscapeReplacer.Replace(ev.Content)
	payload := []interface{}{0, ev.PubKey, ev.CreatedAt, ev.Kind, ev.Tags, content}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(payload); err != nil {
		return "", fmt.Errorf("domain: marshal event for id: %w", err)
	}
	data := bytes.TrimRight(buf.Bytes(), "\n")

	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}

// VerifyEvent checks the event-id law and the signature law: the id must
// match CalcEventID and the Schnorr signature must verify over that id.
func VerifyEvent(ev *nostr.Event) error {
	wantID, err := CalcEventID(ev)
	if err != nil {
		return err
	}
	if wantID != ev.ID {
		return fmt.Errorf("domain: event id mismatch: have %s want %s", ev.ID, wantID)
	}
	ok, err := ev.CheckSignature()
	if err != nil {
		return fmt.Errorf("domain: check signature: %w", err)
	}
	if !ok {
		return fmt.Errorf("domain: signature verification failed for event %s", ev.ID)
	}
	return nil
}

// ParseEvent unmarshals raw relay JSON into an Event, applying the
// over-escape recovery pass on a second attempt if the first parse fails.
// Neither attempt checks the event id or signature.
func ParseEvent(raw json.RawMessage) (*nostr.Event, error) {
	ev := &nostr.Event{}
	if err := json.Unmarshal(raw, ev); err == nil {
		return ev, nil
	}

	var loose map[string]interface{}
	if err := json.Unmarshal(raw, &loose); err != nil {
		return nil, fmt.Errorf("domain: parse event: %w", err)
	}
	unescapeInPlace(loose)
	fixed, err := json.Marshal(loose)
	if err != nil {
		return nil, fmt.Errorf("domain: re-marshal unescaped event: %w", err)
	}
	ev2 := &nostr.Event{}
	if err := json.Unmarshal(fixed, ev2); err != nil {
		return nil, fmt.Errorf("domain: parse event after unescape: %w", err)
	}
	return ev2, nil
}

// unescapeInPlace applies overEscapeReplacer to content and every tag
// string, matching process_relay.create_event's recovery pass.
func unescapeInPlace(m map[string]interface{}) {
	if content, ok := m["content"].(string); ok {
		m["content"] = overEscapeReplacer.Replace(content)
	}
	tags, ok := m["tags"].([]interface{})
	if !ok {
		return
	}
	for _, rawTag := range tags {
		tag, ok := rawTag.([]interface{})
		if !ok {
			continue
		}
		for i, rawElem := range tag {
			if s, ok := rawElem.(string); ok {
				tag[i] = overEscapeReplacer.Replace(s)
			}
		}
	}
}
