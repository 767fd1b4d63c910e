// Package server provides configuration helpers that define runtime defaults,
// validation, heartbeat timing, and rate-limiting parameters for the relay.
package server

import (
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

const (
	defaultPort           = ":8080"
	defaultMaxMessageSize = 4096
	defaultSendBufferSize = 256
	defaultPingInterval   = 5 * time.Second
	defaultPongTimeout    = time.Second
	defaultCookieName     = "token"
	defaultStoreBackend   = "memory"
	defaultMongoDatabase  = "relaychat"
)

// RateLimitConfig defines the parameters for per-connection message rate limiting.
type RateLimitConfig struct {
	Burst          int           `yaml:"burst"`
	RefillInterval time.Duration `yaml:"refillInterval"`
}

// HeartbeatConfig controls the liveness probe. PongTimeout must be strictly
// shorter than PingInterval.
type HeartbeatConfig struct {
	PingInterval time.Duration `yaml:"pingInterval"`
	PongTimeout  time.Duration `yaml:"pongTimeout"`
}

// AuthConfig holds token signing settings.
type AuthConfig struct {
	JWTSecret    string        `yaml:"jwtSecret"`
	TokenTTL     time.Duration `yaml:"tokenTTL"`
	CookieName   string        `yaml:"cookieName"`
	SecureCookie bool          `yaml:"secureCookie"`
}

// StoreConfig selects and configures the message and account backends.
type StoreConfig struct {
	Backend       string `yaml:"backend"`
	MongoURI      string `yaml:"mongoURI"`
	MongoDatabase string `yaml:"mongoDatabase"`
	RedisAddr     string `yaml:"redisAddr"`
	RedisPassword string `yaml:"redisPassword"`
	RedisDB       int    `yaml:"redisDB"`
	RedisMaxLen   int64  `yaml:"redisMaxLen"`
}

// LogConfig selects the log level and encoder.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Config holds the server configuration settings including security controls.
type Config struct {
	Port           string          `yaml:"port"`
	AllowedOrigins []string        `yaml:"allowedOrigins"`
	MaxMessageSize int64           `yaml:"maxMessageSize"`
	SendBufferSize int             `yaml:"sendBufferSize"`
	RateLimit      RateLimitConfig `yaml:"rateLimit"`
	Heartbeat      HeartbeatConfig `yaml:"heartbeat"`
	Auth           AuthConfig      `yaml:"auth"`
	Store          StoreConfig     `yaml:"store"`
	Log            LogConfig       `yaml:"log"`
}

var (
	configMu        sync.RWMutex
	activeConfig    Config
	allowedOrigins  map[string]struct{}
	allowAllOrigins bool
)

func init() {
	SetConfig(nil)
}

func defaultConfig() Config {
	return Config{
		Port: defaultPort,
		AllowedOrigins: []string{
			"http://localhost:8080",
		},
		MaxMessageSize: defaultMaxMessageSize,
		SendBufferSize: defaultSendBufferSize,
		RateLimit: RateLimitConfig{
			Burst:          5,
			RefillInterval: time.Second,
		},
		Heartbeat: HeartbeatConfig{
			PingInterval: defaultPingInterval,
			PongTimeout:  defaultPongTimeout,
		},
		Auth: AuthConfig{
			TokenTTL:     24 * time.Hour,
			CookieName:   defaultCookieName,
			SecureCookie: true,
		},
		Store: StoreConfig{
			Backend:       defaultStoreBackend,
			MongoDatabase: defaultMongoDatabase,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "console",
		},
	}
}

func sanitizeConfig(cfg Config) Config {
	if cfg.Port == "" {
		cfg.Port = defaultPort
	}

	if cfg.MaxMessageSize <= 0 {
		cfg.MaxMessageSize = defaultMaxMessageSize
	}

	if cfg.SendBufferSize <= 0 {
		cfg.SendBufferSize = defaultSendBufferSize
	}

	if cfg.RateLimit.Burst <= 0 {
		cfg.RateLimit.Burst = 5
	}

	if cfg.RateLimit.RefillInterval <= 0 {
		cfg.RateLimit.RefillInterval = time.Second
	}

	if cfg.Heartbeat.PingInterval <= 0 {
		cfg.Heartbeat.PingInterval = defaultPingInterval
	}

	// The timeout has to leave room for round-trip latency inside one interval.
	if cfg.Heartbeat.PongTimeout <= 0 || cfg.Heartbeat.PongTimeout >= cfg.Heartbeat.PingInterval {
		cfg.Heartbeat.PongTimeout = cfg.Heartbeat.PingInterval / 5
	}

	if cfg.Auth.CookieName == "" {
		cfg.Auth.CookieName = defaultCookieName
	}

	cfg.Store.Backend = strings.ToLower(strings.TrimSpace(cfg.Store.Backend))
	if cfg.Store.Backend == "" {
		cfg.Store.Backend = defaultStoreBackend
	}

	if cfg.Store.MongoDatabase == "" {
		cfg.Store.MongoDatabase = defaultMongoDatabase
	}

	normalizedOrigins, allowAll := normalizeOrigins(cfg.AllowedOrigins)
	cfg.AllowedOrigins = normalizedOrigins

	configMu.Lock()
	defer configMu.Unlock()

	activeConfig = cfg
	allowAllOrigins = allowAll
	allowedOrigins = make(map[string]struct{}, len(normalizedOrigins))
	for _, origin := range normalizedOrigins {
		allowedOrigins[origin] = struct{}{}
	}

	return cfg
}

// SetConfig applies the provided configuration. Passing nil resets to defaults.
func SetConfig(cfg *Config) {
	if cfg == nil {
		sanitizeConfig(defaultConfig())
		return
	}

	sanitized := *cfg
	sanitized.AllowedOrigins = append([]string(nil), cfg.AllowedOrigins...)
	sanitizeConfig(sanitized)
}

// CurrentConfig returns a copy of the active configuration.
func CurrentConfig() Config {
	return currentConfig()
}

func currentConfig() Config {
	configMu.RLock()
	defer configMu.RUnlock()

	cfg := activeConfig
	cfg.AllowedOrigins = append([]string(nil), cfg.AllowedOrigins...)
	return cfg
}

// NewConfig creates a Config instance populated with default values for all settings.
func NewConfig() *Config {
	cfg := defaultConfig()
	return &cfg
}

// LoadConfigFile reads a YAML file over the defaults. Keys absent from the
// file keep their default value.
func LoadConfigFile(path string) (*Config, error) {
	cfg := defaultConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "read config %s", path)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, errors.Wrapf(err, "parse config %s", path)
	}
	return &cfg, nil
}

// NewConfigFromEnv creates a Config instance from environment variables.
// Falls back to default values if environment variables are not set.
func NewConfigFromEnv() *Config {
	return ApplyEnv(NewConfig())
}

// ApplyEnv overrides cfg with any configuration environment variables that
// are set and returns it.
func ApplyEnv(cfg *Config) *Config {
	if port := os.Getenv("SERVER_PORT"); port != "" {
		cfg.Port = port
	}

	if origins := os.Getenv("ALLOWED_ORIGINS"); origins != "" {
		cfg.AllowedOrigins = parseOrigins(origins)
	}

	if maxSize := os.Getenv("MAX_MESSAGE_SIZE"); maxSize != "" {
		cfg.MaxMessageSize = parseMaxMessageSize(maxSize, cfg.MaxMessageSize)
	}

	if size := os.Getenv("SEND_BUFFER_SIZE"); size != "" {
		cfg.SendBufferSize = parseIntValue(size, cfg.SendBufferSize)
	}

	if burst := os.Getenv("RATE_LIMIT_BURST"); burst != "" {
		cfg.RateLimit.Burst = parseIntValue(burst, cfg.RateLimit.Burst)
	}

	if interval := os.Getenv("RATE_LIMIT_REFILL_INTERVAL"); interval != "" {
		cfg.RateLimit.RefillInterval = parseDuration(interval, cfg.RateLimit.RefillInterval)
	}

	if interval := os.Getenv("PING_INTERVAL"); interval != "" {
		cfg.Heartbeat.PingInterval = parseDuration(interval, cfg.Heartbeat.PingInterval)
	}

	if timeout := os.Getenv("PONG_TIMEOUT"); timeout != "" {
		cfg.Heartbeat.PongTimeout = parseDuration(timeout, cfg.Heartbeat.PongTimeout)
	}

	if secret := os.Getenv("JWT_SECRET"); secret != "" {
		cfg.Auth.JWTSecret = secret
	}

	if ttl := os.Getenv("TOKEN_TTL"); ttl != "" {
		cfg.Auth.TokenTTL = parseDuration(ttl, cfg.Auth.TokenTTL)
	}

	if name := os.Getenv("TOKEN_COOKIE"); name != "" {
		cfg.Auth.CookieName = name
	}

	if secure := os.Getenv("SECURE_COOKIE"); secure != "" {
		if v, err := strconv.ParseBool(secure); err == nil {
			cfg.Auth.SecureCookie = v
		}
	}

	if backend := os.Getenv("STORE_BACKEND"); backend != "" {
		cfg.Store.Backend = backend
	}

	if uri := os.Getenv("MONGODB_URL"); uri != "" {
		cfg.Store.MongoURI = uri
	}

	if db := os.Getenv("MONGODB_DATABASE"); db != "" {
		cfg.Store.MongoDatabase = db
	}

	if addr := os.Getenv("REDIS_ADDR"); addr != "" {
		cfg.Store.RedisAddr = addr
	}

	if pw := os.Getenv("REDIS_PASSWORD"); pw != "" {
		cfg.Store.RedisPassword = pw
	}

	if db := os.Getenv("REDIS_DB"); db != "" {
		if n, err := strconv.Atoi(db); err == nil && n >= 0 {
			cfg.Store.RedisDB = n
		}
	}

	if level := os.Getenv("LOG_LEVEL"); level != "" {
		cfg.Log.Level = level
	}

	if format := os.Getenv("LOG_FORMAT"); format != "" {
		cfg.Log.Format = format
	}

	return cfg
}

func parseOrigins(origins string) []string {
	parts := strings.Split(origins, ",")
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	return parts
}

func parseMaxMessageSize(value string, defaultValue int64) int64 {
	if size, err := strconv.ParseInt(value, 10, 64); err == nil && size > 0 {
		return size
	}
	return defaultValue
}

func parseIntValue(value string, defaultValue int) int {
	if parsed, err := strconv.Atoi(value); err == nil && parsed > 0 {
		return parsed
	}
	return defaultValue
}

// parseDuration accepts Go duration syntax ("500ms", "5s") or a bare
// number of seconds.
func parseDuration(value string, defaultValue time.Duration) time.Duration {
	if d, err := time.ParseDuration(value); err == nil && d > 0 {
		return d
	}
	if seconds, err := strconv.Atoi(value); err == nil && seconds > 0 {
		return time.Duration(seconds) * time.Second
	}
	return defaultValue
}
