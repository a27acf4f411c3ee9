package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config carries everything the CLI and the web server need to wire up
// stores, photo sources and the engine. Values come from the environment;
// cmd loads .env files before calling Load.
type Config struct {
	Store  StoreConfig
	Photos PhotosConfig
	Engine EngineConfig
	Web    WebConfig
}

type StoreConfig struct {
	Backend      string // badger (default), postgres or memory
	BadgerPath   string // directory for the embedded store
	PostgresURL  string // PostgreSQL connection URL
	MaxOpenConns int    // maximum open connections (default 25)
	MaxIdleConns int    // maximum idle connections (default 5)
}

type PhotosConfig struct {
	Dir                 string // photo directory for the filesystem store
	PhotoPrismDSN       string // MariaDB DSN for direct database access (e.g. photoprism:photoprism@tcp(mariadb:3306)/photoprism)
	PhotoPrismOriginals string // PhotoPrism originals folder, for reading pixels
}

type EngineConfig struct {
	ResultTTL     time.Duration // detection result cache validity (default 5m)
	ImageCooldown time.Duration // per-image pick cooldown (default 24h)
	GroupCooldown time.Duration // per-group review cooldown (default 168h)
}

type WebConfig struct {
	Host           string
	Port           int
	AllowedOrigins []string // extra CORS origins; localhost is always allowed
}

// Addr returns the listen address for the web server.
func (c *WebConfig) Addr() string {
	return c.Host + ":" + strconv.Itoa(c.Port)
}

// envInt reads an environment variable and parses it as a positive integer.
// Returns the default value if the env var is unset, empty, or invalid.
func envInt(key string, defaultVal int) int {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	if n, err := strconv.Atoi(s); err == nil && n > 0 {
		return n
	}
	return defaultVal
}

// envDuration reads an environment variable and parses it as a positive
// duration ("30s", "24h"). Returns the default value if the env var is
// unset, empty, or invalid.
func envDuration(key string, defaultVal time.Duration) time.Duration {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	if d, err := time.ParseDuration(s); err == nil && d > 0 {
		return d
	}
	return defaultVal
}

func envString(key, defaultVal string) string {
	if s := os.Getenv(key); s != "" {
		return s
	}
	return defaultVal
}

// envList reads an environment variable as a comma-separated list,
// trimming whitespace and dropping empty entries.
func envList(key string) []string {
	var out []string
	for _, part := range strings.Split(os.Getenv(key), ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func Load() *Config {
	return &Config{
		Store: StoreConfig{
			Backend:      envString("STORE_BACKEND", "badger"),
			BadgerPath:   envString("BADGER_PATH", "data/store"),
			PostgresURL:  os.Getenv("DATABASE_URL"),
			MaxOpenConns: envInt("DATABASE_MAX_OPEN_CONNS", 25),
			MaxIdleConns: envInt("DATABASE_MAX_IDLE_CONNS", 5),
		},
		Photos: PhotosConfig{
			Dir:                 os.Getenv("PHOTOS_DIR"),
			PhotoPrismDSN:       os.Getenv("PHOTOPRISM_DATABASE_URL"),
			PhotoPrismOriginals: os.Getenv("PHOTOPRISM_ORIGINALS_PATH"),
		},
		Engine: EngineConfig{
			ResultTTL:     envDuration("RESULT_CACHE_TTL", 5*time.Minute),
			ImageCooldown: envDuration("IMAGE_COOLDOWN", 24*time.Hour),
			GroupCooldown: envDuration("GROUP_COOLDOWN", 7*24*time.Hour),
		},
		Web: WebConfig{
			Host:           os.Getenv("WEB_HOST"),
			Port:           envInt("WEB_PORT", 8080),
			AllowedOrigins: envList("WEB_ALLOWED_ORIGINS"),
		},
	}
}
