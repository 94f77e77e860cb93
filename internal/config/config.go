// Package config is the process-wide configuration singleton. Values
// come from, in rising precedence: built-in defaults, an optional
// config.yaml in the workspace, and BEA_* environment variables.
package config

import (
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/spf13/viper"
)

// envPrefix namespaces environment overrides, e.g. BEA_JIRA_TOKEN.
const envPrefix = "BEA"

// Configuration keys
const (
	KeyJiraURL     = "jira.url"
	KeyJiraToken   = "jira.token"
	KeyJiraTimeout = "jira.timeout"

	KeyCrawlWorkers   = "crawl.workers"
	KeyCrawlMode      = "crawl.mode"
	KeyCrawlHierarchy = "crawl.hierarchy"

	KeyLogLevel = "log.level"
	KeyLogJSON  = "log.json"
)

var (
	mu sync.Mutex
	v  *viper.Viper
)

func newViper() *viper.Viper {
	nv := viper.New()
	nv.SetDefault(KeyJiraTimeout, "60s")
	nv.SetDefault(KeyCrawlWorkers, 4)
	nv.SetDefault(KeyCrawlMode, "full")
	nv.SetDefault(KeyCrawlHierarchy, "management")
	nv.SetDefault(KeyLogLevel, "info")
	nv.SetDefault(KeyLogJSON, false)

	nv.SetEnvPrefix(envPrefix)
	nv.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	nv.AutomaticEnv()
	return nv
}

func active() *viper.Viper {
	mu.Lock()
	defer mu.Unlock()
	if v == nil {
		v = newViper()
	}
	return v
}

// Load reads config.yaml from dir on top of defaults and environment.
// A missing file is fine; a malformed one is not.
func Load(dir string) error {
	mu.Lock()
	defer mu.Unlock()

	nv := newViper()
	nv.SetConfigName("config")
	nv.SetConfigType("yaml")
	nv.AddConfigPath(dir)
	if err := nv.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return err
		}
	}
	v = nv
	return nil
}

// Reset drops all loaded state. Test helper.
func Reset() {
	mu.Lock()
	defer mu.Unlock()
	v = nil
}

// Set overrides one key, mainly from CLI flags and tests.
func Set(key string, value any) {
	active().Set(key, value)
}

// JiraURL returns the tracker base URL.
func JiraURL() string { return active().GetString(KeyJiraURL) }

// JiraToken returns the tracker API token.
func JiraToken() string { return active().GetString(KeyJiraToken) }

// JiraTimeout returns the per-request timeout.
func JiraTimeout() time.Duration { return active().GetDuration(KeyJiraTimeout) }

// Workers returns the crawl pool size.
func Workers() int { return active().GetInt(KeyCrawlWorkers) }

// Mode returns the configured default crawl mode.
func Mode() string { return active().GetString(KeyCrawlMode) }

// HierarchyName returns the configured hierarchy: "management", "full",
// or a path to a YAML definition.
func HierarchyName() string { return active().GetString(KeyCrawlHierarchy) }

// LogJSON reports whether logs should be emitted as JSON.
func LogJSON() bool { return active().GetBool(KeyLogJSON) }

// LogLevel maps the configured level name onto slog.
func LogLevel() slog.Level {
	switch strings.ToLower(active().GetString(KeyLogLevel)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
