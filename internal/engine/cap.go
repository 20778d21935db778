package engine

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// estimateCap probes a relay with two successive REQ windows to infer its
// undocumented per-response event cap, exactly as the original two-attempt
// probe does: the first window records a count and the minimum observed
// created_at; the second window re-queries up to that minimum minus one,
// and the first window's count is returned as the cap. If the second
// window is empty, the first count is accepted as a lower bound (ok=true);
// if the first window itself never sees an event, estimation fails
// (ok=false).
func estimateCap(dial Dialer, host string, filter Filter, timeout time.Duration, since, until int64) (int, bool) {
	var nEvents [2]int
	var minCreatedAt *int64
	curUntil := until

	for attempt := 0; attempt < 2; attempt++ {
		ctx, cancel := context.WithTimeout(context.Background(), timeout*10)
		conn, _, err := openFirstSchema(ctx, dial, host)
		if err != nil {
			cancel()
			return 0, false
		}

		subID := uuid.NewString()
		req, _ := json.Marshal([]interface{}{"REQ", subID, filter.toREQ(since, curUntil, 0)})
		if err := conn.SendText(req); err != nil {
			conn.Close()
			cancel()
			return 0, false
		}

		deadline := time.Now().Add(timeout * 10)
	readLoop:
		for {
			msg, err := conn.ReadText(deadline)
			if err != nil {
				break
			}
			var frame []json.RawMessage
			if err := json.Unmarshal(msg, &frame); err != nil || len(frame) < 2 {
				continue
			}
			var kind string
			_ = json.Unmarshal(frame[0], &kind)
			switch kind {
			case "NOTICE":
				continue
			case "EVENT":
				if len(frame) < 3 {
					continue
				}
				var gotSubID string
				_ = json.Unmarshal(frame[1], &gotSubID)
				if gotSubID != subID {
					continue
				}
				if attempt == 0 {
					var payload struct {
						CreatedAt int64 `json:"created_at"`
					}
					if err := json.Unmarshal(frame[2], &payload); err == nil {
						if minCreatedAt == nil || payload.CreatedAt < *minCreatedAt {
							v := payload.CreatedAt
							minCreatedAt = &v
						}
					}
				}
				nEvents[attempt]++
			case "EOSE":
				closeReq, _ := json.Marshal([]interface{}{"CLOSE", subID})
				_ = conn.SendText(closeReq)
				time.Sleep(time.Second)
				break readLoop
			case "CLOSED":
				break readLoop
			}
		}
		conn.Close()
		cancel()

		if attempt == 0 {
			if minCreatedAt == nil {
				return 0, false
			}
			next := *minCreatedAt - 1
			if until < next {
				next = until
			}
			if next < 0 {
				next = 0
			}
			curUntil = next
		}
	}

	return nEvents[0], true
}

// clampCap applies the [1, 2000] clamp and safety margin described in the
// cap-estimation algorithm, defaulting to 500 when estimation failed.
func clampCap(estimated int, ok bool) int {
	if !ok {
		estimated = 500
	}
	if estimated > 2000 {
		estimated = 2000
	}
	margin := 5
	if estimated >= 100 {
		margin = 50
	}
	estimated -= margin
	if estimated < 1 {
		estimated = 1
	}
	return estimated
}
