package services

import (
	"bufio"
	"math/rand"
	"os"
	"strings"
	"time"

	"github.com/bigbrotr/archiver/internal/domain"
	"github.com/bigbrotr/archiver/internal/obslog"
)

// ReadRelayFile reads one relay URL per line, skipping blanks and invalid
// URLs (logged as warnings, not fatal), grounded on the original's
// fetch_relays_from_filepath.
func ReadRelayFile(path string, logger obslog.Logger) ([]domain.Relay, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var relays []domain.Relay
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		relay, err := domain.NewRelay(line)
		if err != nil {
			logger.Warn("invalid relay in file", "url", line, "error", err.Error())
			continue
		}
		relays = append(relays, relay)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return relays, nil
}

// Shuffle randomizes relay order in place so repeated runs don't always
// starve the relays that sort last, matching the original's
// random.shuffle(relays) before enqueue.
func Shuffle(relays []domain.Relay) {
	rand.Shuffle(len(relays), func(i, j int) {
		relays[i], relays[j] = relays[j], relays[i]
	})
}

// randDuration returns a uniformly random duration in [0, max).
func randDuration(max time.Duration) time.Duration {
	if max <= 0 {
		return 0
	}
	return time.Duration(rand.Int63n(int64(max)))
}
