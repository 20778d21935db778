package services

import (
	"context"
	"fmt"

	"github.com/bigbrotr/archiver/internal/clock"
	"github.com/bigbrotr/archiver/internal/obslog"
	"github.com/bigbrotr/archiver/internal/store"
)

// Initializer performs the one-shot bootstrap: read a seed file of relay
// URLs and insert them into the Store, grounded on the original's
// Initializer service (schema/extension checks are the Store's own
// responsibility here; this seeds relay rows only).
type Initializer struct {
	store  store.Store
	clock  clock.Clock
	logger obslog.Logger
}

// NewInitializer builds an Initializer.
func NewInitializer(st store.Store, clk clock.Clock, logger obslog.Logger) *Initializer {
	return &Initializer{store: st, clock: clk, logger: logger}
}

// SeedFromFile reads seedFilePath and inserts every valid relay URL found,
// returning the number of relays inserted.
func (i *Initializer) SeedFromFile(ctx context.Context, seedFilePath string) (int, error) {
	relays, err := ReadRelayFile(seedFilePath, i.logger)
	if err != nil {
		return 0, fmt.Errorf("services: read seed file: %w", err)
	}
	if len(relays) == 0 {
		i.logger.Warn("seed file contained no valid relays", "path", seedFilePath)
		return 0, nil
	}

	if err := i.store.InsertRelayBatch(ctx, relays, i.clock.Now().Unix()); err != nil {
		return 0, fmt.Errorf("services: seed relays: %w", err)
	}
	i.logger.Info("seeded relays", "count", len(relays), "path", seedFilePath)
	return len(relays), nil
}
