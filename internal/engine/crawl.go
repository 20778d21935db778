package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/nbd-wtf/go-nostr"

	"github.com/bigbrotr/archiver/internal/clock"
	"github.com/bigbrotr/archiver/internal/domain"
	"github.com/bigbrotr/archiver/internal/obslog"
	"github.com/bigbrotr/archiver/internal/store"
)

const (
	stackMaxSize  = 1000
	progressEvery = 25
)

// Config bounds one relay crawl.
type Config struct {
	Filter    Filter
	Start     int64 // configured default since_0
	Stop      int64 // configured until_0
	Timeout   time.Duration
}

// Engine drains a relay within a configured filter and period, persisting
// every matching event exactly once and resuming from the relay's
// previous watermark.
type Engine struct {
	store  store.Store
	logger obslog.Logger
	clock  clock.Clock
}

// New builds an Engine.
func New(st store.Store, logger obslog.Logger, clk clock.Clock) *Engine {
	return &Engine{store: st, logger: logger, clock: clk}
}

// Result summarizes one completed or aborted crawl.
type Result struct {
	State          State
	EventsInserted int
	RequestsDone   int
}

// Crawl runs the adaptive bisection crawl described by the state machine
// Idle -> ProbingCap -> Crawling -> (DrainingBatch <-> Crawling) -> Done|Aborted.
func (e *Engine) Crawl(ctx context.Context, dial Dialer, relay domain.Relay, cfg Config) (Result, error) {
	state := StateIdle
	host := stripScheme(relay.URL)

	since0 := cfg.Start
	if watermark, ok, err := e.store.MaxSeenAt(ctx, relay.URL); err == nil && ok {
		if watermark+1 > since0 {
			since0 = watermark + 1
		}
	}
	endTime := cfg.Stop
	if since0 > endTime {
		return Result{State: StateDone}, nil
	}

	state = StateProbingCap
	estimated, ok := estimateCap(dial, host, cfg.Filter, cfg.Timeout, since0, endTime)
	capL := clampCap(estimated, ok)

	conn, openedURL, err := openFirstSchema(ctx, dial, host)
	if err != nil {
		return Result{State: StateAborted}, fmt.Errorf("engine: open %s: %w", host, err)
	}
	defer conn.Close()

	state = StateCrawling
	stack := []int64{endTime}
	since := since0
	inserted := 0
	requestsDone := 0
	writesDone := 0

	for since <= endTime {
		until := popLast(&stack)

		for since <= until {
			select {
			case <-ctx.Done():
				return Result{State: StateAborted, EventsInserted: inserted, RequestsDone: requestsDone}, ctx.Err()
			default:
			}

			if requestsDone%progressEvery == 0 {
				e.logger.Info("crawl progress",
					"relay", openedURL, "state", state.String(), "since", since, "until", until, "cap", capL,
					"requests_done", requestsDone, "requests_with_events", writesDone,
					"requests_todo", len(stack)+1, "events_inserted", inserted)
			}

			batch, closed, err := e.fetchWindow(ctx, conn, cfg.Filter, since, until, capL)
			if err != nil {
				return Result{State: StateAborted, EventsInserted: inserted, RequestsDone: requestsDone}, err
			}
			if closed {
				e.logger.Warn("relay closed subscription", "relay", openedURL)
				return Result{State: StateAborted, EventsInserted: inserted, RequestsDone: requestsDone}, nil
			}

			if len(batch) >= capL && since != until {
				stack = append(stack, until)
				until = since + (until-since)/2
				if len(stack) > stackMaxSize {
					stack = stack[1:]
					endTime = stack[0]
				}
				requestsDone++
				continue
			}

			state = StateDrainingBatch
			n, err := e.store.InsertEventBatch(ctx, batch, relay, e.clock.Now().Unix())
			if err != nil {
				return Result{State: StateAborted, EventsInserted: inserted, RequestsDone: requestsDone}, err
			}
			inserted += n
			writesDone++
			state = StateCrawling
			since = until + 1
			requestsDone++
		}
	}

	return Result{State: StateDone, EventsInserted: inserted, RequestsDone: requestsDone}, nil
}

// fetchWindow issues one REQ for [since, until] and collects events until
// EOSE, CLOSED, or the buffered count reaches capL while since < until.
func (e *Engine) fetchWindow(ctx context.Context, conn Conn, filter Filter, since, until int64, capL int) ([]*nostr.Event, bool, error) {
	subID := uuid.NewString()
	req, err := json.Marshal([]interface{}{"REQ", subID, filter.toREQ(since, until, 0)})
	if err != nil {
		return nil, false, err
	}
	if err := conn.SendText(req); err != nil {
		return nil, false, fmt.Errorf("engine: send REQ: %w", err)
	}

	var batch []*nostr.Event
	for {
		select {
		case <-ctx.Done():
			return batch, false, ctx.Err()
		default:
		}

		deadline := time.Now().Add(10 * time.Second)
		msg, err := conn.ReadText(deadline)
		if err != nil {
			return batch, false, fmt.Errorf("engine: read: %w", err)
		}

		var frame []json.RawMessage
		if err := json.Unmarshal(msg, &frame); err != nil || len(frame) < 2 {
			continue
		}
		var kind string
		_ = json.Unmarshal(frame[0], &kind)

		switch kind {
		case "NOTICE":
			e.logger.Info("relay notice", "message", string(frame[len(frame)-1]))
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
			ev, err := domain.ParseEvent(frame[2])
			if err != nil {
				e.logger.Warn("dropping malformed event", "error", err.Error())
				continue
			}
			if int64(ev.CreatedAt) < since || int64(ev.CreatedAt) > until {
				continue
			}
			batch = append(batch, ev)
			if len(batch) >= capL && since != until {
				closeReq, _ := json.Marshal([]interface{}{"CLOSE", subID})
				_ = conn.SendText(closeReq)
				time.Sleep(time.Second)
				return batch, false, nil
			}
		case "EOSE":
			var gotSubID string
			_ = json.Unmarshal(frame[1], &gotSubID)
			if gotSubID != subID {
				continue
			}
			closeReq, _ := json.Marshal([]interface{}{"CLOSE", subID})
			_ = conn.SendText(closeReq)
			time.Sleep(time.Second)
			return batch, false, nil
		case "CLOSED":
			return batch, true, nil
		}
	}
}

func popLast(stack *[]int64) int64 {
	s := *stack
	last := s[len(s)-1]
	*stack = s[:len(s)-1]
	return last
}

func stripScheme(url string) string {
	for _, prefix := range []string{"wss://", "ws://"} {
		if strings.HasPrefix(url, prefix) {
			return url[len(prefix):]
		}
	}
	return url
}
