package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadOverlaysDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "qsched.yaml")
	doc := `
log_level: debug
nthreads: 4
server:
  address: sched.cluster.local
  port: 15001
  user: scheduler
audit:
  enabled: true
  dsn: "postgres://qsched@localhost/qsched"
`
	require.NoError(t, os.WriteFile(path, []byte(doc), 0644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, 4, cfg.NThreads)
	assert.Equal(t, "sched.cluster.local", cfg.Server.Address)
	assert.Equal(t, 15001, cfg.Server.Port)
	assert.True(t, cfg.Audit.Enabled)
	// Untouched fields keep their Default() values.
	assert.Equal(t, 5*time.Minute, cfg.CycleLength)
	assert.Equal(t, 2000, cfg.MaxJobsToCheck)
	assert.Equal(t, ":9180", cfg.Status.ListenAddr)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestParseSchedConfigBasic(t *testing.T) {
	doc := `
# prime time policy
round_robin true
by_queue false
fair_share true	ALL
max_starve 24:00:00
` + "\n"
	cfg, err := ParseSchedConfig(strings.NewReader(doc))
	require.NoError(t, err)

	v, ok := cfg.Bool("round_robin")
	require.True(t, ok)
	assert.True(t, v)

	v, ok = cfg.Bool("by_queue")
	require.True(t, ok)
	assert.False(t, v)

	assert.Equal(t, "true\tALL", cfg.Values["fair_share"])
	assert.Equal(t, "24:00:00", cfg.Values["max_starve"])
}

func TestParseSchedConfigRepeatedKeys(t *testing.T) {
	doc := "holidays 2026-01-01\nholidays 2026-07-04\nholidays 2026-12-25\n"
	cfg, err := ParseSchedConfig(strings.NewReader(doc))
	require.NoError(t, err)
	assert.Equal(t, []string{"2026-01-01", "2026-07-04", "2026-12-25"}, cfg.Repeated["holidays"])
	// Values keeps only the last occurrence.
	assert.Equal(t, "2026-12-25", cfg.Values["holidays"])
}

func TestSchedConfigIntMissingAndMalformed(t *testing.T) {
	cfg, err := ParseSchedConfig(strings.NewReader("max_preempt_attempts 7\nmax_starve 24:00:00\n"))
	require.NoError(t, err)

	n, ok := cfg.Int("max_preempt_attempts")
	require.True(t, ok)
	assert.Equal(t, 7, n)

	_, ok = cfg.Int("does_not_exist")
	assert.False(t, ok)

	_, ok = cfg.Int("max_starve")
	assert.False(t, ok)
}
