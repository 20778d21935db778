package services

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bigbrotr/archiver/internal/clock"
	"github.com/bigbrotr/archiver/internal/store"
)

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

func writeSeedFile(t *testing.T, lines ...string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "seeds.txt")
	content := ""
	for _, l := range lines {
		content += l + "\n"
	}
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestInitializer_SeedFromFile_InsertsValidRelays(t *testing.T) {
	mem := store.NewMemory()
	init := NewInitializer(mem, clock.Real{}, noopLogger{})
	path := writeSeedFile(t, "wss://a.relay", "", "wss://b.relay", "not a url")

	n, err := init.SeedFromFile(context.Background(), path)

	require.NoError(t, err)
	assert.Equal(t, 2, n)

	relays, err := mem.ListRelaysNeedingMetadata(context.Background(), 0)
	require.NoError(t, err)
	assert.Len(t, relays, 2)
}

func TestInitializer_SeedFromFile_EmptyFileInsertsNothing(t *testing.T) {
	mem := store.NewMemory()
	init := NewInitializer(mem, clock.Real{}, noopLogger{})
	path := writeSeedFile(t, "", "   ")

	n, err := init.SeedFromFile(context.Background(), path)

	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestInitializer_SeedFromFile_MissingFileErrors(t *testing.T) {
	mem := store.NewMemory()
	init := NewInitializer(mem, clock.Real{}, noopLogger{})

	_, err := init.SeedFromFile(context.Background(), filepath.Join(t.TempDir(), "missing.txt"))

	assert.Error(t, err)
}
