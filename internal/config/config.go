// Package config loads service settings from defaults, an optional YAML
// file, command-line flags and a few environment overrides, in that order.
package config

import (
	"errors"
	"fmt"
	"net/netip"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/spf13/pflag"
)

const (
	EnvDSN    = "DEVVAULT_PG_DSN"
	EnvSecret = "DEVVAULT_AUTH_SECRET"

	minSecretLen = 32
)

// Config is the resolved service configuration.
type Config struct {
	HTTPAddr        string        `koanf:"http_addr"`
	GRPCAddr        string        `koanf:"grpc_addr"`
	DatabaseDSN     string        `koanf:"database_dsn"`
	AuthSecret      string        `koanf:"auth_secret"`
	TokenIssuer     string        `koanf:"token_issuer"`
	TokenTTL        time.Duration `koanf:"token_ttl"`
	RateLimitBurst  int           `koanf:"rate_limit_burst"`
	RateLimitPerSec float64       `koanf:"rate_limit_per_sec"`
	MaxBodyBytes    int64         `koanf:"max_body_bytes"`
	LogFormat       string        `koanf:"log_format"`
	MigrateOnStart  bool          `koanf:"migrate_on_start"`

	// TrustedProxies are the reverse proxies whose X-Forwarded-For header
	// is believed when keying the rate limiter. Empty trusts nobody.
	TrustedProxies []string `koanf:"trusted_proxies"`
}

// Defaults returns the built-in configuration. AuthSecret has no default.
func Defaults() Config {
	return Config{
		HTTPAddr:        ":8080",
		GRPCAddr:        ":9090",
		TokenIssuer:     "devvault",
		TokenTTL:        60 * time.Minute,
		RateLimitBurst:  20,
		RateLimitPerSec: 10,
		MaxBodyBytes:    1 << 20,
		LogFormat:       "json",
	}
}

// Flags returns the flag set understood by Load. Flag names use dashes;
// they map to the underscore keys of the YAML file.
func Flags(name string) *pflag.FlagSet {
	d := Defaults()
	fs := pflag.NewFlagSet(name, pflag.ContinueOnError)
	fs.String("config", "", "path to a YAML config file")
	fs.String("http-addr", d.HTTPAddr, "HTTP listen address")
	fs.String("grpc-addr", d.GRPCAddr, "gRPC health listen address (empty disables)")
	fs.String("database-dsn", "", "PostgreSQL DSN (empty uses the in-memory store)")
	fs.String("auth-secret", "", "HMAC signing secret, at least 32 bytes")
	fs.String("token-issuer", d.TokenIssuer, "iss claim written to and required in tokens")
	fs.Duration("token-ttl", d.TokenTTL, "session token lifetime")
	fs.Int("rate-limit-burst", d.RateLimitBurst, "per-IP request burst")
	fs.Float64("rate-limit-per-sec", d.RateLimitPerSec, "per-IP sustained request rate")
	fs.Int64("max-body-bytes", d.MaxBodyBytes, "maximum request body size")
	fs.String("log-format", d.LogFormat, "log format: json or text")
	fs.Bool("migrate-on-start", false, "apply embedded migrations before serving")
	fs.StringSlice("trusted-proxies", nil, "CIDRs or addresses of proxies allowed to set X-Forwarded-For")
	return fs
}

// Load resolves the configuration. fs must come from Flags and be parsed.
// getenv is usually os.Getenv; nil means os.Getenv.
func Load(fs *pflag.FlagSet, getenv func(string) string) (Config, error) {
	if getenv == nil {
		getenv = os.Getenv
	}
	k := koanf.New(".")

	d := Defaults()
	defaults := map[string]any{
		"http_addr":          d.HTTPAddr,
		"grpc_addr":          d.GRPCAddr,
		"database_dsn":       d.DatabaseDSN,
		"auth_secret":        d.AuthSecret,
		"token_issuer":       d.TokenIssuer,
		"token_ttl":          d.TokenTTL.String(),
		"rate_limit_burst":   d.RateLimitBurst,
		"rate_limit_per_sec": d.RateLimitPerSec,
		"max_body_bytes":     d.MaxBodyBytes,
		"log_format":         d.LogFormat,
		"migrate_on_start":   d.MigrateOnStart,
		"trusted_proxies":    []string{},
	}
	for key, val := range defaults {
		if err := k.Set(key, val); err != nil {
			return Config{}, fmt.Errorf("config default %s: %w", key, err)
		}
	}

	if fs != nil {
		if path, _ := fs.GetString("config"); path != "" {
			if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
				return Config{}, fmt.Errorf("load config file %s: %w", path, err)
			}
		}
		flags := posflag.ProviderWithFlag(fs, ".", k, func(f *pflag.Flag) (string, any) {
			if f.Name == "config" {
				return "", nil
			}
			return strings.ReplaceAll(f.Name, "-", "_"), posflag.FlagVal(fs, f)
		})
		if err := k.Load(flags, nil); err != nil {
			return Config{}, fmt.Errorf("load flags: %w", err)
		}
	}

	if v := getenv(EnvDSN); v != "" {
		_ = k.Set("database_dsn", v)
	}
	if v := getenv(EnvSecret); v != "" {
		_ = k.Set("auth_secret", v)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate rejects settings the service cannot start with.
func (c Config) Validate() error {
	var errs []error
	if strings.TrimSpace(c.HTTPAddr) == "" {
		errs = append(errs, errors.New("http_addr is required"))
	}
	if len(c.AuthSecret) < minSecretLen {
		errs = append(errs, fmt.Errorf("auth_secret must be at least %d bytes (set %s)", minSecretLen, EnvSecret))
	}
	if c.TokenTTL <= 0 {
		errs = append(errs, errors.New("token_ttl must be positive"))
	}
	if c.RateLimitPerSec < 0 || c.RateLimitBurst < 0 {
		errs = append(errs, errors.New("rate limits must not be negative"))
	}
	if c.MaxBodyBytes <= 0 {
		errs = append(errs, errors.New("max_body_bytes must be positive"))
	}
	switch c.LogFormat {
	case "json", "text":
	default:
		errs = append(errs, fmt.Errorf("log_format %q is not json or text", c.LogFormat))
	}
	for _, p := range c.TrustedProxies {
		if !validProxy(p) {
			errs = append(errs, fmt.Errorf("trusted_proxies entry %q is not an address or CIDR", p))
		}
	}
	if c.MigrateOnStart && c.DatabaseDSN == "" {
		errs = append(errs, errors.New("migrate_on_start requires database_dsn"))
	}
	return errors.Join(errs...)
}

func validProxy(entry string) bool {
	entry = strings.TrimSpace(entry)
	if strings.Contains(entry, "/") {
		_, err := netip.ParsePrefix(entry)
		return err == nil
	}
	_, err := netip.ParseAddr(entry)
	return err == nil
}
