package probe

import (
	"context"
	"encoding/hex"
	"fmt"
	"strconv"
	"time"

	"github.com/nbd-wtf/go-nostr"

	"github.com/bigbrotr/archiver/internal/domain"
)

// MineProofOfWork mines a NIP-13 nonce tag into ev until its id has at
// least targetBits leading zero bits, or deadline elapses. ev is mutated
// in place; its Tags and ID change, CreatedAt does not. No PoW-mining library
// is available in the dependency graph for this narrow concern, so the
// leading-zero-bit check is hand-rolled against the NIP-13 definition.
func MineProofOfWork(ctx context.Context, ev *nostr.Event, targetBits int, deadline time.Time) error {
	if targetBits <= 0 {
		id, err := domain.CalcEventID(ev)
		if err != nil {
			return err
		}
		ev.ID = id
		return nil
	}

	nonceTagIndex := -1
	for i, tag := range ev.Tags {
		if len(tag) > 0 && tag[0] == "nonce" {
			nonceTagIndex = i
			break
		}
	}
	if nonceTagIndex == -1 {
		ev.Tags = append(ev.Tags, nostr.Tag{"nonce", "0", strconv.Itoa(targetBits)})
		nonceTagIndex = len(ev.Tags) - 1
	} else {
		ev.Tags[nonceTagIndex] = nostr.Tag{"nonce", "0", strconv.Itoa(targetBits)}
	}

	var nonce uint64
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("probe: pow mining deadline exceeded before reaching %d bits", targetBits)
		}

		ev.Tags[nonceTagIndex][1] = strconv.FormatUint(nonce, 10)
		id, err := domain.CalcEventID(ev)
		if err != nil {
			return err
		}
		if leadingZeroBits(id) >= targetBits {
			ev.ID = id
			return nil
		}
		nonce++
	}
}

// leadingZeroBits counts the leading zero bits of a hex-encoded id, per
// the NIP-13 difficulty definition.
func leadingZeroBits(hexID string) int {
	raw, err := hex.DecodeString(hexID)
	if err != nil {
		return 0
	}
	bits := 0
	for _, b := range raw {
		if b == 0 {
			bits += 8
			continue
		}
		for mask := byte(0x80); mask > 0; mask >>= 1 {
			if b&mask != 0 {
				return bits
			}
			bits++
		}
	}
	return bits
}
