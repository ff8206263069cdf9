package config

import (
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"github.com/op/go-logging"
	"github.com/pkg/errors"
)

var log = logging.MustGetLogger("config")

const (
	StorePostgres = "postgres"
	StoreMemory   = "memory"
)

// Config is read from MENSAJERIA_* environment variables.
type Config struct {
	Addr           string        `envconfig:"addr" default:":8080"`
	Env            string        `envconfig:"env" default:"dev"`
	DatabaseDSN    string        `envconfig:"db_dsn"`
	Store          string        `envconfig:"store" default:"postgres"`
	RedisAddr      string        `envconfig:"redis_addr"`
	JWTSecret      string        `envconfig:"jwt_secret" required:"true"`
	AllowedOrigins []string      `envconfig:"allowed_origins"` // empty = same origin only
	LogLevel       string        `envconfig:"log_level" default:"info"`
	LogFile        string        `envconfig:"log_file"`
	RequestTimeout time.Duration `envconfig:"request_timeout" default:"10s"`
	DigestLimit    int           `envconfig:"digest_limit" default:"5"`
}

func Load() (*Config, error) {
	if os.Getenv("MENSAJERIA_ENV") != "release" {
		if err := godotenv.Load("./.env"); err != nil && !os.IsNotExist(err) {
			log.Warningf("couldn't load env vars: %v", err)
		}
	}

	c := &Config{}
	if err := envconfig.Process("mensajeria", c); err != nil {
		return nil, errors.Wrap(err, "read environment")
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Config) Validate() error {
	c.Store = strings.ToLower(strings.TrimSpace(c.Store))
	switch c.Store {
	case StorePostgres:
		if c.DatabaseDSN == "" {
			return errors.New("MENSAJERIA_DB_DSN is required with the postgres store")
		}
	case StoreMemory:
	default:
		return errors.Errorf("unknown store %q, want %s or %s", c.Store, StorePostgres, StoreMemory)
	}

	if c.JWTSecret == "" {
		return errors.New("MENSAJERIA_JWT_SECRET is not set")
	}
	if c.DigestLimit <= 0 || c.DigestLimit > 50 {
		return errors.Errorf("digest limit %d out of range 1..50", c.DigestLimit)
	}
	if c.RequestTimeout <= 0 {
		return errors.New("request timeout must be positive")
	}
	for _, o := range c.AllowedOrigins {
		if strings.TrimSpace(o) == "*" {
			return errors.New("MENSAJERIA_ALLOWED_ORIGINS must list origins; \"*\" is not accepted with credentials")
		}
	}
	if _, err := logging.LogLevel(c.LogLevel); err != nil {
		return errors.Wrapf(err, "log level %q", c.LogLevel)
	}
	return nil
}

// OriginAllowed reports whether a cross-origin browser client may call the API.
func (c *Config) OriginAllowed(origin string) bool {
	for _, o := range c.AllowedOrigins {
		if strings.EqualFold(strings.TrimSpace(o), origin) {
			return true
		}
	}
	return false
}

// CheckOrigin guards websocket upgrades. Requests without an Origin header and
// pages served from the same host pass; other origins must be listed.
func (c *Config) CheckOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	if u, err := url.Parse(origin); err == nil && strings.EqualFold(u.Host, r.Host) {
		return true
	}
	return c.OriginAllowed(origin)
}
