package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	envPrefix             = "SCRIBE"
	defaultHTTPAddress    = "0.0.0.0:8080"
	defaultDatabaseDriver = DriverSQLite
	defaultDatabasePath   = "scribe.db"
	defaultMongoDatabase  = "scribe"
	defaultLogLevel       = "info"
	defaultCookieName     = "scribe_session"
	defaultSessionIssuer  = "scribe"
	defaultSessionTTL     = 12 * time.Hour
	defaultDiscordBaseURL = "https://discord.com/api"
	defaultArkBaseURL     = "https://ark.cn-beijing.volces.com/api/v3"
	defaultArkRegion      = "cn-beijing"
	defaultArkMaxTokens   = 800
	defaultArkTemperature = 0.7
	defaultRateWindow     = time.Minute
	defaultRateMax        = 30
)

const (
	// DriverSQLite stores records in a local SQLite file through gorm.
	DriverSQLite = "sqlite"
	// DriverMongo stores records in MongoDB.
	DriverMongo = "mongo"
)

// AppConfig captures runtime configuration for the API server and CLI commands.
type AppConfig struct {
	HTTPAddress         string
	AllowedOrigins      []string
	DatabaseDriver      string
	DatabasePath        string
	MongoURI            string
	MongoDatabase       string
	EncryptionKey       string
	SessionSigningKey   string
	SessionCookieName   string
	SessionIssuer       string
	SessionTTL          time.Duration
	DiscordAPIBaseURL   string
	ArkAPIKey           string
	ArkModel            string
	ArkBaseURL          string
	ArkRegion           string
	ArkMaxTokens        int
	ArkTemperature      float64
	GuildRateWindow     time.Duration
	GuildRateMaxRequest int
	LogLevel            string
}

// GeneratorEnabled reports whether cliff-note generation has credentials.
func (c AppConfig) GeneratorEnabled() bool {
	return strings.TrimSpace(c.ArkAPIKey) != "" && strings.TrimSpace(c.ArkModel) != ""
}

// NewViper returns a viper instance with defaults and env bindings configured.
func NewViper() *viper.Viper {
	configViper := viper.New()
	ApplyDefaults(configViper)
	return configViper
}

// ApplyDefaults configures defaults and env bindings on the provided viper instance.
func ApplyDefaults(configViper *viper.Viper) {
	configViper.SetEnvPrefix(envPrefix)
	configViper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	configViper.AutomaticEnv()

	configViper.SetDefault("http.address", defaultHTTPAddress)
	configViper.SetDefault("http.allowed_origins", []string{})
	configViper.SetDefault("database.driver", defaultDatabaseDriver)
	configViper.SetDefault("database.path", defaultDatabasePath)
	configViper.SetDefault("mongo.uri", "")
	configViper.SetDefault("mongo.database", defaultMongoDatabase)
	configViper.SetDefault("encryption.key", "")
	configViper.SetDefault("session.signing_secret", "")
	configViper.SetDefault("session.cookie_name", defaultCookieName)
	configViper.SetDefault("session.issuer", defaultSessionIssuer)
	configViper.SetDefault("session.ttl", defaultSessionTTL)
	configViper.SetDefault("discord.api_base_url", defaultDiscordBaseURL)
	configViper.SetDefault("ark.api_key", "")
	configViper.SetDefault("ark.model", "")
	configViper.SetDefault("ark.base_url", defaultArkBaseURL)
	configViper.SetDefault("ark.region", defaultArkRegion)
	configViper.SetDefault("ark.max_tokens", defaultArkMaxTokens)
	configViper.SetDefault("ark.temperature", defaultArkTemperature)
	configViper.SetDefault("ratelimit.window", defaultRateWindow)
	configViper.SetDefault("ratelimit.max_requests", defaultRateMax)
	configViper.SetDefault("log.level", defaultLogLevel)
}

// Load parses runtime configuration from viper.
func Load(configViper *viper.Viper) (AppConfig, error) {
	cfg := AppConfig{
		HTTPAddress:         configViper.GetString("http.address"),
		AllowedOrigins:      splitOrigins(configViper.GetStringSlice("http.allowed_origins")),
		DatabaseDriver:      strings.ToLower(strings.TrimSpace(configViper.GetString("database.driver"))),
		DatabasePath:        configViper.GetString("database.path"),
		MongoURI:            configViper.GetString("mongo.uri"),
		MongoDatabase:       configViper.GetString("mongo.database"),
		EncryptionKey:       configViper.GetString("encryption.key"),
		SessionSigningKey:   configViper.GetString("session.signing_secret"),
		SessionCookieName:   configViper.GetString("session.cookie_name"),
		SessionIssuer:       configViper.GetString("session.issuer"),
		SessionTTL:          configViper.GetDuration("session.ttl"),
		DiscordAPIBaseURL:   configViper.GetString("discord.api_base_url"),
		ArkAPIKey:           configViper.GetString("ark.api_key"),
		ArkModel:            configViper.GetString("ark.model"),
		ArkBaseURL:          configViper.GetString("ark.base_url"),
		ArkRegion:           configViper.GetString("ark.region"),
		ArkMaxTokens:        configViper.GetInt("ark.max_tokens"),
		ArkTemperature:      configViper.GetFloat64("ark.temperature"),
		GuildRateWindow:     configViper.GetDuration("ratelimit.window"),
		GuildRateMaxRequest: configViper.GetInt("ratelimit.max_requests"),
		LogLevel:            configViper.GetString("log.level"),
	}

	if err := cfg.validate(); err != nil {
		return AppConfig{}, err
	}

	return cfg, nil
}

func (c AppConfig) validate() error {
	if strings.TrimSpace(c.EncryptionKey) == "" {
		return fmt.Errorf("encryption.key is required")
	}
	if strings.TrimSpace(c.SessionSigningKey) == "" {
		return fmt.Errorf("session.signing_secret is required")
	}
	if strings.TrimSpace(c.SessionCookieName) == "" {
		return fmt.Errorf("session.cookie_name is required")
	}
	if strings.TrimSpace(c.SessionIssuer) == "" {
		return fmt.Errorf("session.issuer is required")
	}
	switch c.DatabaseDriver {
	case DriverSQLite:
		if strings.TrimSpace(c.DatabasePath) == "" {
			return fmt.Errorf("database.path is required")
		}
	case DriverMongo:
		if strings.TrimSpace(c.MongoURI) == "" {
			return fmt.Errorf("mongo.uri is required")
		}
		if strings.TrimSpace(c.MongoDatabase) == "" {
			return fmt.Errorf("mongo.database is required")
		}
	default:
		return fmt.Errorf("database.driver must be %q or %q, got %q", DriverSQLite, DriverMongo, c.DatabaseDriver)
	}
	if c.GuildRateWindow <= 0 {
		return fmt.Errorf("ratelimit.window must be positive")
	}
	if c.GuildRateMaxRequest <= 0 {
		return fmt.Errorf("ratelimit.max_requests must be positive")
	}
	return nil
}

// splitOrigins accepts both list values and a single comma-separated env value.
func splitOrigins(values []string) []string {
	origins := make([]string, 0, len(values))
	for _, value := range values {
		for _, origin := range strings.Split(value, ",") {
			if trimmed := strings.TrimSpace(origin); trimmed != "" {
				origins = append(origins, trimmed)
			}
		}
	}
	return origins
}
