package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config aggregates application configuration values.
type Config struct {
	HTTP    HTTPConfig
	Graph   GraphConfig
	Policy  PolicyConfig
	NATS    NATSConfig
	Logging LoggingConfig
}

// HTTPConfig governs HTTP server behaviour.
type HTTPConfig struct {
	Host              string
	Port              int
	ReadTimeout       time.Duration
	WriteTimeout      time.Duration
	IdleTimeout       time.Duration
	ShutdownTimeout   time.Duration
	MetricsEnabled    bool
	AllowedOriginsCSV string
	RateLimit         float64 // requests per second, 0 disables
	RateBurst         int
}

// GraphConfig describes connectivity to the graph database and the bounds
// applied to each query.
type GraphConfig struct {
	URI                string
	Database           string
	Username           string
	Password           string
	PoolSize           int
	AcquisitionTimeout time.Duration
	QueryTimeout       time.Duration
}

// PolicyConfig lists the query allow/deny patterns.
type PolicyConfig struct {
	AllowPatterns []string
	DenyPatterns  []string
	File          string
	ReadOnly      bool
}

// NATSConfig enables the NATS request/reply transport when URL is set.
type NATSConfig struct {
	URL     string
	Subject string
	Queue   string
}

// LoggingConfig controls structured logging settings.
type LoggingConfig struct {
	Level         string
	Format        string // text|json
	IncludeCaller bool
}

const (
	defaultHost               = "0.0.0.0"
	defaultPort               = 8080
	defaultReadTimeout        = 10 * time.Second
	defaultWriteTimeout       = 45 * time.Second
	defaultIdleTimeout        = 60 * time.Second
	defaultShutdownTimeout    = 10 * time.Second
	defaultRateBurst          = 20
	defaultLoggingLevel       = "info"
	defaultLoggingFormat      = "text"
	defaultGraphURI           = "bolt://neo4j:7687"
	defaultGraphUsername      = "neo4j"
	defaultGraphPassword      = "password"
	defaultGraphPoolSize      = 10
	defaultAcquisitionTimeout = 5 * time.Second
	defaultQueryTimeout       = 30 * time.Second
	defaultNATSSubject        = "graph.query"
	defaultNATSQueue          = "mcp-graph"

	patternSeparator = ";;"
)

// LoadDotEnv loads variables from the given .env files into the process
// environment without overriding variables that are already set. Missing
// files are skipped.
func LoadDotEnv(paths ...string) error {
	for _, path := range paths {
		if path == "" {
			continue
		}
		if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
			continue
		}
		if err := godotenv.Load(path); err != nil {
			return fmt.Errorf("load %s: %w", path, err)
		}
	}
	return nil
}

// Load reads configuration from environment variables, applying defaults.
func Load() (Config, error) {
	cfg := Config{
		HTTP: HTTPConfig{
			Host:              valueOrDefault("SERVER_HOST", defaultHost),
			MetricsEnabled:    parseBoolWithDefault("SERVER_METRICS_ENABLED", false),
			AllowedOriginsCSV: os.Getenv("SERVER_ALLOWED_ORIGINS"),
		},
		Logging: LoggingConfig{
			Level:         valueOrDefault("LOG_LEVEL", defaultLoggingLevel),
			Format:        valueOrDefault("LOG_FORMAT", defaultLoggingFormat),
			IncludeCaller: parseBoolWithDefault("LOG_INCLUDE_CALLER", false),
		},
		Graph: GraphConfig{
			URI:      firstNonEmpty(os.Getenv("GRAPH_URI"), os.Getenv("NEO4J_URI"), defaultGraphURI),
			Database: os.Getenv("GRAPH_DATABASE"),
			Username: firstNonEmpty(os.Getenv("GRAPH_USERNAME"), os.Getenv("NEO4J_USER"), defaultGraphUsername),
			Password: firstNonEmpty(os.Getenv("GRAPH_PASSWORD"), os.Getenv("NEO4J_PASS"), defaultGraphPassword),
		},
		Policy: PolicyConfig{
			AllowPatterns: splitPatterns(os.Getenv("GATEWAY_ALLOW_PATTERNS")),
			DenyPatterns:  splitPatterns(os.Getenv("GATEWAY_DENY_PATTERNS")),
			File:          os.Getenv("GATEWAY_POLICY_FILE"),
			ReadOnly:      parseBoolWithDefault("GATEWAY_READ_ONLY", false),
		},
		NATS: NATSConfig{
			URL:     os.Getenv("NATS_URL"),
			Subject: valueOrDefault("NATS_SUBJECT", defaultNATSSubject),
			Queue:   valueOrDefault("NATS_QUEUE", defaultNATSQueue),
		},
	}

	port, err := parsePort("SERVER_PORT", defaultPort)
	if err != nil {
		return Config{}, err
	}
	cfg.HTTP.Port = port

	durations := []struct {
		key      string
		fallback time.Duration
		dst      *time.Duration
		positive bool
	}{
		{"SERVER_READ_TIMEOUT", defaultReadTimeout, &cfg.HTTP.ReadTimeout, false},
		{"SERVER_WRITE_TIMEOUT", defaultWriteTimeout, &cfg.HTTP.WriteTimeout, false},
		{"SERVER_IDLE_TIMEOUT", defaultIdleTimeout, &cfg.HTTP.IdleTimeout, false},
		{"SERVER_SHUTDOWN_TIMEOUT", defaultShutdownTimeout, &cfg.HTTP.ShutdownTimeout, false},
		{"GRAPH_ACQUISITION_TIMEOUT", defaultAcquisitionTimeout, &cfg.Graph.AcquisitionTimeout, true},
		{"GRAPH_QUERY_TIMEOUT", defaultQueryTimeout, &cfg.Graph.QueryTimeout, true},
	}
	for _, d := range durations {
		value, err := parseDuration(d.key, d.fallback)
		if err != nil {
			return Config{}, err
		}
		if d.positive && value == 0 {
			return Config{}, fmt.Errorf("%s must be positive", d.key)
		}
		*d.dst = value
	}

	poolSize, err := parsePositiveInt("GRAPH_POOL_SIZE", defaultGraphPoolSize)
	if err != nil {
		return Config{}, err
	}
	cfg.Graph.PoolSize = poolSize

	burst, err := parsePositiveInt("SERVER_RATE_BURST", defaultRateBurst)
	if err != nil {
		return Config{}, err
	}
	cfg.HTTP.RateBurst = burst

	if v := os.Getenv("SERVER_RATE_LIMIT"); v != "" {
		limit, err := strconv.ParseFloat(v, 64)
		if err != nil || limit < 0 {
			return Config{}, fmt.Errorf("invalid SERVER_RATE_LIMIT value %q", v)
		}
		cfg.HTTP.RateLimit = limit
	}

	return cfg, nil
}

// PolicyFile is the YAML document referenced by GATEWAY_POLICY_FILE.
type PolicyFile struct {
	Allow []string `yaml:"allow"`
	Deny  []string `yaml:"deny"`
}

// LoadPolicyFile parses a YAML policy file.
func LoadPolicyFile(path string) (PolicyFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return PolicyFile{}, fmt.Errorf("read policy file: %w", err)
	}
	var file PolicyFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return PolicyFile{}, fmt.Errorf("parse policy file %s: %w", path, err)
	}
	return file, nil
}

// Resolve merges the inline patterns with the policy file, if any.
func (p PolicyConfig) Resolve() (allow, deny []string, err error) {
	allow = append(allow, p.AllowPatterns...)
	deny = append(deny, p.DenyPatterns...)
	if p.File == "" {
		return allow, deny, nil
	}
	file, err := LoadPolicyFile(p.File)
	if err != nil {
		return nil, nil, err
	}
	return append(allow, file.Allow...), append(deny, file.Deny...), nil
}

// AllowedOrigins splits the CORS origin list.
func (c HTTPConfig) AllowedOrigins() []string {
	if c.AllowedOriginsCSV == "" {
		return nil
	}
	var origins []string
	for _, part := range strings.Split(c.AllowedOriginsCSV, ",") {
		origin := strings.TrimSpace(part)
		if origin == "" {
			continue
		}
		origins = append(origins, origin)
	}
	return origins
}

// Addr returns the host:port the HTTP server listens on.
func (c HTTPConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

func valueOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func splitPatterns(raw string) []string {
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	var patterns []string
	for _, part := range strings.Split(raw, patternSeparator) {
		if p := strings.TrimSpace(part); p != "" {
			patterns = append(patterns, p)
		}
	}
	return patterns
}

func parseBoolWithDefault(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		val, err := strconv.ParseBool(v)
		if err != nil {
			return fallback
		}
		return val
	}
	return fallback
}

func parseDuration(key string, fallback time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("invalid %s: negative duration %s", key, d)
	}
	return d, nil
}

func parsePositiveInt(key string, fallback int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	val, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s value %q: %w", key, v, err)
	}
	if val <= 0 {
		return 0, fmt.Errorf("%s must be positive, got %d", key, val)
	}
	return val, nil
}

func parsePort(key string, fallback int) (int, error) {
	if v := os.Getenv(key); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return 0, fmt.Errorf("invalid %s value %q: %w", key, v, err)
		}
		if port <= 0 || port > 65535 {
			return 0, fmt.Errorf("port %d is out of range", port)
		}
		return port, nil
	}
	return fallback, nil
}
