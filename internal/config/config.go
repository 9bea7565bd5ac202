package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Mode string

const (
	ModeOffline Mode = "offline"
	ModeOnline  Mode = "online"
)

type Config struct {
	Mode     Mode
	HTTPAddr string

	DBDriver string
	DBDSN    string

	AuthHMACSecret  string
	EnableLocalAuth bool
	AdminUser       string
	AdminPassHash   string // bcrypt

	CORSOriginsOnline  []string
	CORSOriginsOffline []string

	LockDriver    string // memory|redis
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	LockTTL       time.Duration

	CatalogTimeout time.Duration

	LogLevel string
	LogFile  string

	SeedFile string
}

// CORSOrigins returns the allow list for the active mode.
func (c Config) CORSOrigins() []string {
	if c.Mode == ModeOnline {
		return c.CORSOriginsOnline
	}
	return c.CORSOriginsOffline
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("MODE", string(ModeOffline))
	v.SetDefault("HTTP_ADDR", ":8080")
	v.SetDefault("DB_DRIVER", "sqlite")
	v.SetDefault("DB_DSN", "")
	v.SetDefault("AUTH_HMAC_SECRET", "supersecret-dev-key")
	v.SetDefault("ADMIN_USER", "admin")
	v.SetDefault("ADMIN_PASS_HASH", "$2y$12$pyZAiWaTfVtM7UElIRStvOC3gNbnp70nmQU4eYopLGBfCJr1DOvji")
	v.SetDefault("CORS_ORIGINS_ONLINE", "https://testprep.mindengage.ai")
	v.SetDefault("CORS_ORIGINS_OFFLINE", "http://localhost:3000,http://localhost:3010")
	v.SetDefault("LOCK_DRIVER", "memory")
	v.SetDefault("REDIS_ADDR", "localhost:6379")
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)
	v.SetDefault("LOCK_TTL", "30s")
	v.SetDefault("CATALOG_TIMEOUT", "5s")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FILE", "")
	v.SetDefault("SEED_FILE", "")
}

// FromEnv loads configuration from the environment, layered over an optional
// file named by CONFIG_FILE (any format viper reads, e.g. yaml or env).
func FromEnv() (Config, error) {
	v := viper.New()
	setDefaults(v)
	v.AutomaticEnv()

	if path := v.GetString("CONFIG_FILE"); path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("config: read %s: %w", path, err)
		}
	}
	return load(v)
}

func load(v *viper.Viper) (Config, error) {
	mode := Mode(strings.ToLower(v.GetString("MODE")))
	if mode != ModeOffline && mode != ModeOnline {
		return Config{}, fmt.Errorf("config: unknown MODE %q", mode)
	}
	lockDriver := strings.ToLower(v.GetString("LOCK_DRIVER"))
	if lockDriver != "memory" && lockDriver != "redis" {
		return Config{}, fmt.Errorf("config: unknown LOCK_DRIVER %q", lockDriver)
	}
	// local login defaults on only for offline installs
	enableLocalAuth := mode == ModeOffline
	if v.IsSet("ENABLE_LOCAL_AUTH") {
		enableLocalAuth = v.GetBool("ENABLE_LOCAL_AUTH")
	}
	return Config{
		Mode:               mode,
		HTTPAddr:           v.GetString("HTTP_ADDR"),
		DBDriver:           v.GetString("DB_DRIVER"),
		DBDSN:              v.GetString("DB_DSN"),
		AuthHMACSecret:     v.GetString("AUTH_HMAC_SECRET"),
		EnableLocalAuth:    enableLocalAuth,
		AdminUser:          v.GetString("ADMIN_USER"),
		AdminPassHash:      v.GetString("ADMIN_PASS_HASH"),
		CORSOriginsOnline:  csv(v.GetString("CORS_ORIGINS_ONLINE")),
		CORSOriginsOffline: csv(v.GetString("CORS_ORIGINS_OFFLINE")),
		LockDriver:         lockDriver,
		RedisAddr:          v.GetString("REDIS_ADDR"),
		RedisPassword:      v.GetString("REDIS_PASSWORD"),
		RedisDB:            v.GetInt("REDIS_DB"),
		LockTTL:            v.GetDuration("LOCK_TTL"),
		CatalogTimeout:     v.GetDuration("CATALOG_TIMEOUT"),
		LogLevel:           v.GetString("LOG_LEVEL"),
		LogFile:            v.GetString("LOG_FILE"),
		SeedFile:           v.GetString("SEED_FILE"),
	}, nil
}

func csv(v string) []string {
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if s := strings.TrimSpace(p); s != "" {
			out = append(out, s)
		}
	}
	return out
}
