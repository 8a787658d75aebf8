package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rohanthewiz/logger"
)

const (
	envPrefix = "LIVERELOAD_"

	defaultAddr      = ":8090"
	defaultInterval  = time.Second
	defaultMaxDepth  = 3
	defaultWatchFile = "livereload.yaml"
	defaultMatch     = "substring"
)

var defaultExclude = []string{"node_modules"}

// Config holds application configuration
type Config struct {
	Addr      string        // listen address of the live reload server
	PublicURL string        // how browsers reach the server; empty means relative URLs
	Interval  time.Duration // rescan period of each stream
	MaxDepth  int
	Exclude   []string // doublestar patterns skipped during the walk

	WatchFile string // YAML watch registry
	Dir       string // single-directory fallback when WatchFile does not exist
	URL       string // base URL serving Dir

	AllowedHosts []string // hostname globs allowed to serve; empty allows all
	Match        string   // substring | strict

	ProxyAddr   string // injecting proxy listen address; empty disables it
	ProxyTarget string // upstream dev site behind the proxy
}

// globalConfig holds the application configuration instance
var globalConfig *Config

// Initialize sets up the configuration from a .env file (if any) and environment variables
func Initialize() {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		logger.LogErr(err, "failed to load .env file")
	}
	globalConfig = FromEnv()
}

// Get returns the global configuration instance
func Get() *Config {
	if globalConfig == nil {
		Initialize()
	}
	return globalConfig
}

// FromEnv reads every setting from LIVERELOAD_* variables, falling back to defaults
func FromEnv() *Config {
	return &Config{
		Addr:         getString("ADDR", defaultAddr),
		PublicURL:    strings.TrimRight(getString("PUBLIC_URL", ""), "/"),
		Interval:     getDuration("INTERVAL", defaultInterval),
		MaxDepth:     getInt("MAX_DEPTH", defaultMaxDepth),
		Exclude:      getList("EXCLUDE", defaultExclude),
		WatchFile:    getString("WATCH_FILE", defaultWatchFile),
		Dir:          getString("DIR", ""),
		URL:          strings.TrimRight(getString("URL", ""), "/"),
		AllowedHosts: getList("ALLOWED_HOSTS", nil),
		Match:        getString("MATCH", defaultMatch),
		ProxyAddr:    getString("PROXY_ADDR", ""),
		ProxyTarget:  getString("PROXY_TARGET", ""),
	}
}

func getString(key, def string) string {
	if v, ok := os.LookupEnv(envPrefix + key); ok {
		return strings.TrimSpace(v)
	}
	return def
}

func getInt(key string, def int) int {
	v := getString(key, "")
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		logger.Warn("Ignoring invalid integer setting", "key", envPrefix+key, "value", v)
		return def
	}
	return n
}

// getDuration accepts Go durations ("500ms", "2s") or a bare number of seconds
func getDuration(key string, def time.Duration) time.Duration {
	v := getString(key, "")
	if v == "" {
		return def
	}
	if d, err := time.ParseDuration(v); err == nil {
		return d
	}
	if secs, err := strconv.ParseFloat(v, 64); err == nil {
		return time.Duration(secs * float64(time.Second))
	}
	logger.Warn("Ignoring invalid duration setting", "key", envPrefix+key, "value", v)
	return def
}

// getList splits a comma separated value; set but empty means an empty list
func getList(key string, def []string) []string {
	v, ok := os.LookupEnv(envPrefix + key)
	if !ok {
		return append([]string(nil), def...)
	}
	var out []string
	for _, item := range strings.Split(v, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
