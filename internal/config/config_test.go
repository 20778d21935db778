package config

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bigbrotr/archiver/internal/engine"
)

func clearEnv(t *testing.T, keys ...string) {
	t.Helper()
	for _, k := range keys {
		os.Unsetenv(k)
	}
}

func TestLoadFromEnv_AppliesDefaults(t *testing.T) {
	clearEnv(t, "DB_PORT", "MONITOR_INTERVAL", "NUM_CORES", "FILTER_JSON")
	os.Setenv("DB_HOST", "localhost")
	os.Setenv("DB_NAME", "archiver")
	defer clearEnv(t, "DB_HOST", "DB_NAME")

	cfg := LoadFromEnv()
	assert.Equal(t, 5432, cfg.Store.Port)
	assert.Equal(t, time.Hour, cfg.Services.MonitorInterval)
	assert.Equal(t, 4, cfg.Fabric.NumCores)
	assert.Equal(t, engine.Filter{}, cfg.Engine.Filter)
}

func TestLoadFromEnv_ParsesFilterJSON(t *testing.T) {
	os.Setenv("DB_HOST", "localhost")
	os.Setenv("DB_NAME", "archiver")
	os.Setenv("FILTER_JSON", `{"Kinds":[1,7],"Authors":["ab12"]}`)
	defer clearEnv(t, "DB_HOST", "DB_NAME", "FILTER_JSON")

	cfg := LoadFromEnv()
	assert.Equal(t, []int{1, 7}, cfg.Engine.Filter.Kinds)
	assert.Equal(t, []string{"ab12"}, cfg.Engine.Filter.Authors)
}

func TestStoreConfig_DSN(t *testing.T) {
	sc := StoreConfig{Host: "db", Port: 5432, User: "u", Password: "p", DBName: "archiver", SSLMode: "disable"}
	require.Contains(t, sc.DSN(), "host=db")
	require.Contains(t, sc.DSN(), "dbname=archiver")
}
