// Package config loads qsched's own process configuration: the primary
// YAML document (server connection, logging, worker pool size, storage
// paths, optional audit/events backends) following the teacher's
// gopkg.in/yaml.v3 usage (cmd/warren/apply.go), plus a small line-oriented
// "key value" token reader for the legacy scheduler config format named
// in §6 (sched_config's native shape: one directive per line, blank lines
// and '#' comments ignored).
package config

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is qsched's top-level process configuration document.
type Config struct {
	LogLevel string `yaml:"log_level"`
	LogJSON  bool   `yaml:"log_json"`

	Server ServerConfig `yaml:"server"`

	NThreads int `yaml:"nthreads"`

	CycleLength        time.Duration `yaml:"sched_cycle_length"`
	MaxJobsToCheck      int           `yaml:"max_jobs_to_check"`
	MaxPreemptAttempts  int           `yaml:"max_preempt_attempts"`

	StoreDataDir string `yaml:"store_data_dir"`

	Audit  AuditConfig  `yaml:"audit"`
	Events EventsConfig `yaml:"events"`
	Status StatusConfig `yaml:"status"`
}

// ServerConfig names the resource-management server's wire endpoint
// (spec §6 "PBS environment: paths, ports, auth method, encryption
// method").
type ServerConfig struct {
	Address       string `yaml:"address"`
	Port          int    `yaml:"port"`
	User          string `yaml:"user"`
	AuthMethod    string `yaml:"auth_method"`
	EncryptMethod string `yaml:"encrypt_method"`
	// SecretboxKeyHex is the hex-encoded 32-byte key used when
	// EncryptMethod is "secretbox"; ignored otherwise.
	SecretboxKeyHex string `yaml:"secretbox_key_hex"`
}

// AuditConfig is the optional Postgres decision sink's connection.
type AuditConfig struct {
	Enabled bool   `yaml:"enabled"`
	DSN     string `yaml:"dsn"`
}

// EventsConfig is the optional redis pub/sub fan-out's connection.
type EventsConfig struct {
	RedisEnabled  bool   `yaml:"redis_enabled"`
	RedisAddr     string `yaml:"redis_addr"`
	RedisPassword string `yaml:"redis_password"`
	RedisDB       int    `yaml:"redis_db"`
	RedisChannel  string `yaml:"redis_channel"`
}

// StatusConfig is the read-only HTTP/websocket status API's bind address.
type StatusConfig struct {
	Enabled    bool   `yaml:"enabled"`
	ListenAddr string `yaml:"listen_addr"`
}

// Default returns a Config with the same conservative defaults the
// teacher's cobra flags fall back to (matching SPEC_FULL.md E1's
// --log-level/--log-json/--nthreads defaults).
func Default() Config {
	return Config{
		LogLevel:           "info",
		NThreads:           0,
		CycleLength:        5 * time.Minute,
		MaxJobsToCheck:      2000,
		MaxPreemptAttempts:  10,
		StoreDataDir:       ".",
		Status: StatusConfig{ListenAddr: ":9180"},
	}
}

// Load reads and parses a YAML config document at path, overlaying it
// onto Default().
func Load(path string) (Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("config: reading %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("config: parsing %s: %w", path, err)
	}
	return cfg, nil
}

// SchedConfig is the decoded form of a legacy sched_config-style document:
// an ordered, possibly-repeated set of "key value" directives (spec §6:
// "tokens controlling prime/non-prime policy bits, sort keys, node-sort
// keys, dedicated-time blocks, holiday list, peer queue map, dynamic-
// resource scripts, fair-share resource name and decay").
type SchedConfig struct {
	// Values holds the last value seen for each key; Repeated holds every
	// value seen for keys that may legitimately repeat (e.g. a holiday
	// list entry per line).
	Values   map[string]string
	Repeated map[string][]string
}

// ParseSchedConfig reads the legacy "key value" line format: one
// directive per line, leading/trailing whitespace trimmed, blank lines
// and lines starting with '#' ignored, key and value separated by the
// first run of whitespace.
func ParseSchedConfig(r io.Reader) (SchedConfig, error) {
	cfg := SchedConfig{Values: map[string]string{}, Repeated: map[string][]string{}}
	scanner := bufio.NewScanner(r)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		key, value, ok := splitToken(line)
		if !ok {
			return SchedConfig{}, fmt.Errorf("config: line %d: malformed directive %q", lineNo, line)
		}
		cfg.Values[key] = value
		cfg.Repeated[key] = append(cfg.Repeated[key], value)
	}
	if err := scanner.Err(); err != nil {
		return SchedConfig{}, fmt.Errorf("config: scanning sched_config: %w", err)
	}
	return cfg, nil
}

func splitToken(line string) (key, value string, ok bool) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return "", "", false
	}
	key = fields[0]
	value = strings.TrimSpace(strings.TrimPrefix(line, key))
	return key, value, true
}

// Bool interprets a sched_config value as the PBS-style "true"/"false"/
// "1"/"0" boolean token.
func (c SchedConfig) Bool(key string) (bool, bool) {
	v, ok := c.Values[key]
	if !ok {
		return false, false
	}
	switch strings.ToLower(v) {
	case "true", "1", "t":
		return true, true
	case "false", "0", "f":
		return false, true
	default:
		return false, false
	}
}

// Int interprets a sched_config value as an integer token.
func (c SchedConfig) Int(key string) (int, bool) {
	v, ok := c.Values[key]
	if !ok {
		return 0, false
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, false
	}
	return n, true
}
