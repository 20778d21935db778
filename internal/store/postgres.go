package store

import (
	"context"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/lib/pq"
	"github.com/nbd-wtf/go-nostr"

	"github.com/bigbrotr/archiver/internal/domain"
)

// PoolConfig bounds the connection pool and per-operation timeouts of a
// Postgres store, mirroring the StoreConfig record described by the design
// notes (dsn, pool bounds, command timeout).
type PoolConfig struct {
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	AcquireTimeout  time.Duration // default 30s per the persistence contract
	CommandTimeout  time.Duration
}

func (c PoolConfig) withDefaults() PoolConfig {
	if c.MaxOpenConns <= 0 {
		c.MaxOpenConns = 10
	}
	if c.MaxIdleConns <= 0 {
		c.MaxIdleConns = 2
	}
	if c.ConnMaxLifetime <= 0 {
		c.ConnMaxLifetime = 30 * time.Minute
	}
	if c.AcquireTimeout <= 0 {
		c.AcquireTimeout = 30 * time.Second
	}
	if c.CommandTimeout <= 0 {
		c.CommandTimeout = 30 * time.Second
	}
	return c
}

// Postgres is the production Store adapter. Each worker thread in the
// fabric should construct and own one Postgres for its lifetime; pools
// must never be shared across threads or processes (see DESIGN.md).
type Postgres struct {
	db     *sql.DB
	cfg    PoolConfig
	retry  retryConfig
}

// NewPostgres opens a pooled connection to dsn and configures it per cfg.
// It does not block on connectivity; callers that need a readiness check
// should call Ping.
func NewPostgres(dsn string, cfg PoolConfig) (*Postgres, error) {
	cfg = cfg.withDefaults()
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("store: open postgres: %w", err)
	}
	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	return &Postgres{db: db, cfg: cfg, retry: defaultRetry}, nil
}

// Ping verifies the pool can reach the database within AcquireTimeout.
func (p *Postgres) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, p.cfg.AcquireTimeout)
	defer cancel()
	return p.db.PingContext(ctx)
}

// Close releases all pooled connections.
func (p *Postgres) Close() error {
	return p.db.Close()
}

func (p *Postgres) withCommandTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, p.cfg.CommandTimeout)
}

func hexDecode(s string) ([]byte, error) {
	b, err := hex.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("store: decode hex %q: %w", s, err)
	}
	return b, nil
}

// InsertRelay upserts a relay row, conflict-do-nothing by url.
func (p *Postgres) InsertRelay(ctx context.Context, relay domain.Relay, insertedAt int64) error {
	return withRetry(ctx, p.retry, func() error {
		cctx, cancel := p.withCommandTimeout(ctx)
		defer cancel()
		_, err := p.db.ExecContext(cctx, `SELECT insert_relay($1, $2, $3)`,
			relay.URL, string(relay.Network), insertedAt)
		return err
	})
}

// InsertRelayBatch inserts every relay in a single transaction.
func (p *Postgres) InsertRelayBatch(ctx context.Context, relays []domain.Relay, insertedAt int64) error {
	if len(relays) == 0 {
		return nil
	}
	return withRetry(ctx, p.retry, func() error {
		cctx, cancel := p.withCommandTimeout(ctx)
		defer cancel()
		tx, err := p.db.BeginTx(cctx, nil)
		if err != nil {
			return err
		}
		defer tx.Rollback() //nolint:errcheck

		stmt, err := tx.PrepareContext(cctx, `SELECT insert_relay($1, $2, $3)`)
		if err != nil {
			return err
		}
		defer stmt.Close()

		for _, r := range relays {
			if _, err := stmt.ExecContext(cctx, r.URL, string(r.Network), insertedAt); err != nil {
				return err
			}
		}
		return tx.Commit()
	})
}

// InsertEvent atomically upserts the event, upserts its relay, and inserts
// the events_relays join row, conflict-do-nothing.
func (p *Postgres) InsertEvent(ctx context.Context, event *nostr.Event, relay domain.Relay, seenAt int64) error {
	idBytes, err := hexDecode(event.ID)
	if err != nil {
		return err
	}
	pubkeyBytes, err := hexDecode(event.PubKey)
	if err != nil {
		return err
	}
	sigBytes, err := hexDecode(event.Sig)
	if err != nil {
		return err
	}
	tagsJSON, err := json.Marshal(event.Tags)
	if err != nil {
		return fmt.Errorf("store: marshal tags: %w", err)
	}

	return withRetry(ctx, p.retry, func() error {
		cctx, cancel := p.withCommandTimeout(ctx)
		defer cancel()
		_, err := p.db.ExecContext(cctx, `SELECT insert_event($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)`,
			idBytes, pubkeyBytes, int64(event.CreatedAt), event.Kind, tagsJSON, event.Content,
			sigBytes, relay.URL, string(relay.Network), time.Now().Unix(), seenAt)
		return err
	})
}

// InsertEventBatch inserts every event for relay in a single transaction.
// A malformed individual event is skipped with the count excluding it; the
// batch itself is never aborted by a per-event failure.
func (p *Postgres) InsertEventBatch(ctx context.Context, events []*nostr.Event, relay domain.Relay, seenAt int64) (int, error) {
	if len(events) == 0 {
		return 0, nil
	}
	inserted := 0
	err := withRetry(ctx, p.retry, func() error {
		inserted = 0
		cctx, cancel := p.withCommandTimeout(ctx)
		defer cancel()
		tx, err := p.db.BeginTx(cctx, nil)
		if err != nil {
			return err
		}
		defer tx.Rollback() //nolint:errcheck

		stmt, err := tx.PrepareContext(cctx, `SELECT insert_event($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)`)
		if err != nil {
			return err
		}
		defer stmt.Close()

		insertedAt := time.Now().Unix()
		for _, ev := range events {
			idBytes, err1 := hexDecode(ev.ID)
			pubkeyBytes, err2 := hexDecode(ev.PubKey)
			sigBytes, err3 := hexDecode(ev.Sig)
			if err1 != nil || err2 != nil || err3 != nil {
				continue
			}
			tagsJSON, err := json.Marshal(ev.Tags)
			if err != nil {
				continue
			}
			if _, err := tx.ExecContext(cctx, `SAVEPOINT insert_event`); err != nil {
				return err
			}
			if _, err := stmt.ExecContext(cctx, idBytes, pubkeyBytes, int64(ev.CreatedAt), ev.Kind,
				tagsJSON, ev.Content, sigBytes, relay.URL, string(relay.Network), insertedAt, seenAt); err != nil {
				if !isTransient(err) {
					// malformed/rejected row: undo just this row, keep the batch alive
					if _, rbErr := tx.ExecContext(cctx, `ROLLBACK TO SAVEPOINT insert_event`); rbErr != nil {
						return rbErr
					}
					continue
				}
				return err // transient: bubble up so the whole batch retries
			}
			inserted++
		}
		return tx.Commit()
	})
	return inserted, err
}

// InsertRelayMetadata inserts one time-series metadata row, deduplicating
// the nip11 and nip66 blocks independently by content hash.
func (p *Postgres) InsertRelayMetadata(ctx context.Context, meta domain.RelayMetadata) error {
	return withRetry(ctx, p.retry, func() error {
		cctx, cancel := p.withCommandTimeout(ctx)
		defer cancel()
		return execInsertRelayMetadata(cctx, p.db, meta)
	})
}

// InsertRelayMetadataBatch inserts every metadata record in one transaction.
func (p *Postgres) InsertRelayMetadataBatch(ctx context.Context, metas []domain.RelayMetadata) error {
	if len(metas) == 0 {
		return nil
	}
	return withRetry(ctx, p.retry, func() error {
		cctx, cancel := p.withCommandTimeout(ctx)
		defer cancel()
		tx, err := p.db.BeginTx(cctx, nil)
		if err != nil {
			return err
		}
		defer tx.Rollback() //nolint:errcheck
		for _, m := range metas {
			if err := execInsertRelayMetadata(cctx, tx, m); err != nil {
				return err
			}
		}
		return tx.Commit()
	})
}

// execer is satisfied by both *sql.DB and *sql.Tx.
type execer interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

// execInsertRelayMetadata passes SQL NULL for every field of a block that
// is absent (nil), matching brotr.py's insert_relay_metadata(nip11=None,
// nip66=None, ...); connection_success reflects whether the NIP-66 probe
// actually opened the socket, not whether the row itself was written.
func execInsertRelayMetadata(ctx context.Context, e execer, meta domain.RelayMetadata) error {
	n11 := meta.NIP11
	n66 := meta.NIP66
	nip11Success := !n11.Absent()
	connectionSuccess := n66 != nil && n66.Openable

	var openable, readable, writable sql.NullBool
	var rttOpen, rttRead, rttWrite sql.NullInt64
	if n66 != nil {
		openable = sql.NullBool{Bool: n66.Openable, Valid: true}
		readable = sql.NullBool{Bool: n66.Readable, Valid: true}
		writable = sql.NullBool{Bool: n66.Writable, Valid: true}
		rttOpen = sql.NullInt64{Int64: n66.RTTOpen, Valid: true}
		rttRead = sql.NullInt64{Int64: n66.RTTRead, Valid: true}
		rttWrite = sql.NullInt64{Int64: n66.RTTWrite, Valid: true}
	}

	var name, description, banner, icon, pubkey, contact sql.NullString
	var software, version, privacyPolicy, termsOfService sql.NullString
	var supportedNIPs, limitation, extraFields interface{}
	if n11 != nil && nip11Success {
		name = sql.NullString{String: n11.Name, Valid: true}
		description = sql.NullString{String: n11.Description, Valid: true}
		banner = sql.NullString{String: n11.Banner, Valid: true}
		icon = sql.NullString{String: n11.Icon, Valid: true}
		pubkey = sql.NullString{String: n11.Pubkey, Valid: true}
		contact = sql.NullString{String: n11.Contact, Valid: true}
		software = sql.NullString{String: n11.Software, Valid: true}
		version = sql.NullString{String: n11.Version, Valid: true}
		privacyPolicy = sql.NullString{String: n11.PrivacyPolicy, Valid: true}
		termsOfService = sql.NullString{String: n11.TermsOfService, Valid: true}

		raw, err := json.Marshal(n11.SupportedNIPs)
		if err != nil {
			return fmt.Errorf("store: marshal supported_nips: %w", err)
		}
		supportedNIPs = raw
		raw, err = json.Marshal(n11.Limitation)
		if err != nil {
			return fmt.Errorf("store: marshal limitation: %w", err)
		}
		limitation = raw
		raw, err = json.Marshal(n11.ExtraFields)
		if err != nil {
			return fmt.Errorf("store: marshal extra_fields: %w", err)
		}
		extraFields = raw
	}

	_, err := e.ExecContext(ctx, `SELECT insert_relay_metadata(
		$1,$2,$3,$4,
		$5,$6,
		$7,$8,$9,$10,$11,$12,
		$13,$14,$15,$16,$17,$18,$19,$20,$21,$22,$23,$24,$25
	)`,
		meta.Relay.URL, string(meta.Relay.Network), meta.GeneratedAt, meta.GeneratedAt,
		connectionSuccess, nip11Success,
		openable, readable, writable, rttOpen, rttRead, rttWrite,
		name, description, banner, icon, pubkey, contact,
		supportedNIPs, software, version, privacyPolicy, termsOfService,
		limitation, extraFields,
	)
	return err
}

// DeleteOrphanEvents deletes every event with no row in events_relays.
func (p *Postgres) DeleteOrphanEvents(ctx context.Context) (int64, error) {
	var deleted int64
	err := withRetry(ctx, p.retry, func() error {
		cctx, cancel := p.withCommandTimeout(ctx)
		defer cancel()
		return p.db.QueryRowContext(cctx, `SELECT delete_orphan_events()`).Scan(&deleted)
	})
	return deleted, err
}

// MaxSeenAt returns the maximum created_at ever observed for relayURL, used
// to resume a crawl from the watermark.
func (p *Postgres) MaxSeenAt(ctx context.Context, relayURL string) (int64, bool, error) {
	var created sql.NullInt64
	err := withRetry(ctx, p.retry, func() error {
		cctx, cancel := p.withCommandTimeout(ctx)
		defer cancel()
		return p.db.QueryRowContext(cctx, `
			SELECT MAX(e.created_at)
			FROM events e
			JOIN events_relays er ON e.id = er.event_id
			WHERE er.relay_url = $1`, relayURL).Scan(&created)
	})
	if err != nil {
		return 0, false, err
	}
	return created.Int64, created.Valid, nil
}

// ListRelaysNeedingMetadata returns relays whose latest metadata row is
// older than olderThan (unix seconds) or that have none at all.
func (p *Postgres) ListRelaysNeedingMetadata(ctx context.Context, olderThan int64) ([]domain.Relay, error) {
	var relays []domain.Relay
	err := withRetry(ctx, p.retry, func() error {
		relays = nil
		cctx, cancel := p.withCommandTimeout(ctx)
		defer cancel()
		rows, err := p.db.QueryContext(cctx, `
			SELECT r.url, r.network
			FROM relays r
			LEFT JOIN (
				SELECT relay_url, MAX(generated_at) AS generated_at
				FROM relay_metadata GROUP BY relay_url
			) m ON m.relay_url = r.url
			WHERE m.generated_at IS NULL OR m.generated_at < $1`, olderThan)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			var url, network string
			if err := rows.Scan(&url, &network); err != nil {
				return err
			}
			relays = append(relays, domain.Relay{URL: url, Network: domain.Network(network)})
		}
		return rows.Err()
	})
	return relays, err
}

// ListReadableRelays returns relays that have at least one metadata row
// newer than freshSince whose NIP-66 block reports the relay as readable.
// That row need not be the relay's most recent one.
func (p *Postgres) ListReadableRelays(ctx context.Context, freshSince int64) ([]domain.Relay, error) {
	var relays []domain.Relay
	err := withRetry(ctx, p.retry, func() error {
		relays = nil
		cctx, cancel := p.withCommandTimeout(ctx)
		defer cancel()
		rows, err := p.db.QueryContext(cctx, `
			SELECT DISTINCT r.url, r.network
			FROM relays r
			JOIN relay_metadata rm ON rm.relay_url = r.url
			JOIN nip66 n ON n.id = rm.nip66_id
			WHERE rm.generated_at > $1 AND n.readable = TRUE`, freshSince)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			var url, network string
			if err := rows.Scan(&url, &network); err != nil {
				return err
			}
			relays = append(relays, domain.Relay{URL: url, Network: domain.Network(network)})
		}
		return rows.Err()
	})
	return relays, err
}

var _ Store = (*Postgres)(nil)
