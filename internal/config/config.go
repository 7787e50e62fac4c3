// Package config loads and saves cliptransfer's persistent settings.
//
// Grounded on original_source/common/Config.java: the same key names,
// defaults, and validated ranges, translated from Java's Properties file
// format into a small hand-rolled key=value scanner. No example repository
// in the pack reaches for a config library (viper and friends never
// appear), so this stays on the standard library by design — see
// DESIGN.md.
package config

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"cliptransfer/internal/applog"
)

const (
	DefaultChunkSize       = 512 * 1024
	DefaultSendInterval    = 2000
	DefaultReceiveInterval = 1000
	DefaultLogLevel        = "INFO"

	minChunkSize   = 1024
	maxChunkSize   = 10 * 1024 * 1024
	minSendMs      = 100
	maxSendMs      = 60_000
	minReceiveMs   = 100
	maxReceiveMs   = 10_000
)

const (
	keyChunkSize       = "chunk.size"
	keySendInterval    = "send.interval"
	keyReceiveInterval = "receive.interval"
	keyLogLevel        = "log.level"
	keyDownloadPath    = "download.path"
)

// Config is the process-wide settings object. Section 9's design notes call
// for Config, the Task Store, and the logger to stop being process
// singletons and become explicit constructor dependencies instead; Config
// is a plain struct callers construct with Load and pass around.
type Config struct {
	dir        string
	properties map[string]string
	logger     *applog.Logger
}

// Dir returns the cliptransfer state directory, $HOME/.cliptransfer.
func Dir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		home = "."
	}
	return filepath.Join(home, ".cliptransfer")
}

func defaultDownloadPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		home = "."
	}
	return filepath.Join(home, "Downloads")
}

func filePath() string {
	return filepath.Join(Dir(), "config.properties")
}

// Load reads config.properties, falling back to hardcoded defaults for any
// missing or invalid entry the same way Config.java's getters do.
func Load(logger *applog.Logger) *Config {
	if logger == nil {
		logger = applog.Default
	}
	c := &Config{
		dir:        Dir(),
		properties: defaults(),
		logger:     logger,
	}
	c.loadUserConfig()
	return c
}

func defaults() map[string]string {
	return map[string]string{
		keyChunkSize:       strconv.Itoa(DefaultChunkSize),
		keySendInterval:    strconv.Itoa(DefaultSendInterval),
		keyReceiveInterval: strconv.Itoa(DefaultReceiveInterval),
		keyLogLevel:        DefaultLogLevel,
		keyDownloadPath:    defaultDownloadPath(),
	}
}

func (c *Config) loadUserConfig() {
	f, err := os.Open(filePath())
	if err != nil {
		c.logger.Infof("config: no user config at %s, using defaults", filePath())
		return
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") || strings.HasPrefix(line, "!") {
			continue
		}
		idx := strings.IndexAny(line, "=:")
		if idx < 0 {
			continue
		}
		key := strings.TrimSpace(line[:idx])
		value := strings.TrimSpace(line[idx+1:])
		c.properties[key] = value
	}
	if err := scanner.Err(); err != nil {
		c.logger.Warnf("config: failed reading %s: %v", filePath(), err)
	}
}

// Save writes properties back to config.properties, creating the state
// directory if needed. Keys are written in sorted order for a stable diff.
func (c *Config) Save() error {
	if err := os.MkdirAll(c.dir, 0o755); err != nil {
		return fmt.Errorf("config: create dir: %w", err)
	}
	f, err := os.Create(filePath())
	if err != nil {
		return fmt.Errorf("config: create file: %w", err)
	}
	defer f.Close()

	w := bufio.NewWriter(f)
	fmt.Fprintln(w, "# cliptransfer user configuration")
	keys := make([]string, 0, len(c.properties))
	for k := range c.properties {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(w, "%s=%s\n", k, c.properties[k])
	}
	return w.Flush()
}

// ResetToDefaults discards user overrides, matching Config.resetToDefaults.
func (c *Config) ResetToDefaults() {
	c.properties = defaults()
}

func (c *Config) intWithRange(key string, def, min, max int) int {
	raw, ok := c.properties[key]
	if !ok {
		return def
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < min || v > max {
		c.logger.Warnf("config: invalid %s=%q, using default %d", key, raw, def)
		return def
	}
	return v
}

func (c *Config) ChunkSize() int {
	return c.intWithRange(keyChunkSize, DefaultChunkSize, minChunkSize, maxChunkSize)
}

func (c *Config) SendInterval() int {
	return c.intWithRange(keySendInterval, DefaultSendInterval, minSendMs, maxSendMs)
}

func (c *Config) ReceiveInterval() int {
	return c.intWithRange(keyReceiveInterval, DefaultReceiveInterval, minReceiveMs, maxReceiveMs)
}

func (c *Config) LogLevel() string {
	if v, ok := c.properties[keyLogLevel]; ok && v != "" {
		return v
	}
	return DefaultLogLevel
}

func (c *Config) DownloadPath() string {
	path := c.properties[keyDownloadPath]
	if path == "" {
		path = defaultDownloadPath()
	}
	if err := os.MkdirAll(path, 0o755); err != nil {
		c.logger.Warnf("config: could not create download dir %s: %v", path, err)
	}
	return path
}

func (c *Config) SetChunkSize(v int) error {
	if v < minChunkSize || v > maxChunkSize {
		return fmt.Errorf("chunk size must be between %d and %d bytes", minChunkSize, maxChunkSize)
	}
	c.properties[keyChunkSize] = strconv.Itoa(v)
	return nil
}

func (c *Config) SetSendInterval(v int) error {
	if v < minSendMs || v > maxSendMs {
		return fmt.Errorf("send interval must be between %dms and %dms", minSendMs, maxSendMs)
	}
	c.properties[keySendInterval] = strconv.Itoa(v)
	return nil
}

func (c *Config) SetReceiveInterval(v int) error {
	if v < minReceiveMs || v > maxReceiveMs {
		return fmt.Errorf("receive interval must be between %dms and %dms", minReceiveMs, maxReceiveMs)
	}
	c.properties[keyReceiveInterval] = strconv.Itoa(v)
	return nil
}

func (c *Config) SetLogLevel(v string) error {
	if strings.TrimSpace(v) == "" {
		return fmt.Errorf("log level cannot be empty")
	}
	c.properties[keyLogLevel] = strings.TrimSpace(v)
	return nil
}

func (c *Config) SetDownloadPath(v string) error {
	if strings.TrimSpace(v) == "" {
		return fmt.Errorf("download path cannot be empty")
	}
	c.properties[keyDownloadPath] = strings.TrimSpace(v)
	return nil
}

// Set applies a raw key=value pair, used by `cliptransfer config set`.
func (c *Config) Set(key, value string) error {
	switch key {
	case keyChunkSize:
		v, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("chunk.size must be an integer: %w", err)
		}
		return c.SetChunkSize(v)
	case keySendInterval:
		v, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("send.interval must be an integer: %w", err)
		}
		return c.SetSendInterval(v)
	case keyReceiveInterval:
		v, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("receive.interval must be an integer: %w", err)
		}
		return c.SetReceiveInterval(v)
	case keyLogLevel:
		return c.SetLogLevel(value)
	case keyDownloadPath:
		return c.SetDownloadPath(value)
	default:
		return fmt.Errorf("unknown config key %q", key)
	}
}

// All returns a stable-ordered snapshot of every effective key/value pair,
// used by `cliptransfer config show`.
func (c *Config) All() []struct{ Key, Value string } {
	snap := []struct{ Key, Value string }{
		{keyChunkSize, strconv.Itoa(c.ChunkSize())},
		{keySendInterval, strconv.Itoa(c.SendInterval())},
		{keyReceiveInterval, strconv.Itoa(c.ReceiveInterval())},
		{keyLogLevel, c.LogLevel()},
		{keyDownloadPath, c.DownloadPath()},
	}
	return snap
}

func (c *Config) String() string {
	return fmt.Sprintf("Config{chunkSize=%d, sendInterval=%d, receiveInterval=%d, logLevel=%s, downloadPath=%s}",
		c.ChunkSize(), c.SendInterval(), c.ReceiveInterval(), c.LogLevel(), c.DownloadPath())
}
