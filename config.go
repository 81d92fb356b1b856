package otherwise

import (
	"errors"
	"strings"
	"time"

	"github.com/spf13/viper"
	"gocloud.dev/blob"

	"github.com/otherwisedev/otherwise/mailer"
)

// SiteConfig holds all configuration for the site and its CMS.
type SiteConfig struct {
	Name        string // Site name (default "Otherwise")
	URL         string // Canonical URL (default "http://localhost:3000")
	Description string // Site description for RSS and meta tags
	Author      string // Author name for JSON-LD

	Addr         string // Listen address (default ":3000")
	DatabasePath string // SQLite path (default "data/otherwise.db")
	MediaBucket  string // Directory or blob URL for uploaded media (default "data/media")

	AuthSecret     string        // Required: session cookie secret
	TrustedOrigins []string      // Extra origins allowed to call /api
	CookieSecure   bool          // Set true for HTTPS
	SessionTTL     time.Duration // Session lifetime (default 7 days)

	RedisURL     string        // Optional shared listing cache
	PostCacheTTL time.Duration // Listing cache TTL (default 5min)

	ResendAPIKey string // Contact mail provider key; empty logs mail instead
	ContactFrom  string
	ContactTo    []string

	MaxUploadBytes int64 // Upload limit (default 5 MiB)
	MaxImageWidth  int   // Uploads wider than this are downscaled (default 1600)

	LogLevel string // debug, info, warn, error (default "info")
	Env      string // "production" enables strict checks
}

func (c *SiteConfig) setDefaults() {
	if c.Name == "" {
		c.Name = "Otherwise"
	}
	if c.URL == "" {
		c.URL = "http://localhost:3000"
	}
	c.URL = strings.TrimRight(c.URL, "/")
	if c.Addr == "" {
		c.Addr = ":3000"
	}
	if c.DatabasePath == "" {
		c.DatabasePath = "data/otherwise.db"
	}
	if c.MediaBucket == "" {
		c.MediaBucket = "data/media"
	}
	if c.SessionTTL == 0 {
		c.SessionTTL = 7 * 24 * time.Hour
	}
	if c.PostCacheTTL == 0 {
		c.PostCacheTTL = 5 * time.Minute
	}
	if c.ContactFrom == "" {
		c.ContactFrom = "Otherwise <contact@otherwise.dev>"
	}
	if len(c.ContactTo) == 0 {
		c.ContactTo = []string{"hello@otherwise.dev"}
	}
	if c.MaxUploadBytes == 0 {
		c.MaxUploadBytes = 5 << 20
	}
	if c.MaxImageWidth == 0 {
		c.MaxImageWidth = 1600
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
}

func (c SiteConfig) validate() error {
	if c.AuthSecret == "" {
		return errors.New("AUTH_SECRET is required")
	}
	if c.Env == "production" && len(c.AuthSecret) < 32 {
		return errors.New("AUTH_SECRET must be at least 32 characters in production")
	}
	return nil
}

// LoadConfig reads configuration from the environment and, when present, a
// config file already registered on v.
func LoadConfig(v *viper.Viper) (SiteConfig, error) {
	v.SetDefault("site_name", "Otherwise")
	v.SetDefault("site_description", "Fractional product, design and engineering leadership.")
	v.SetDefault("site_author", "Otherwise")
	v.SetDefault("app_env", "development")
	v.AutomaticEnv()

	if v.ConfigFileUsed() != "" {
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return SiteConfig{}, err
			}
		}
	}

	cfg := SiteConfig{
		Name:           v.GetString("site_name"),
		URL:            v.GetString("base_url"),
		Description:    v.GetString("site_description"),
		Author:         v.GetString("site_author"),
		Addr:           v.GetString("addr"),
		DatabasePath:   v.GetString("database_path"),
		MediaBucket:    v.GetString("media_bucket"),
		AuthSecret:     v.GetString("auth_secret"),
		TrustedOrigins: splitList(v.GetString("trusted_origins")),
		CookieSecure:   v.GetBool("cookie_secure"),
		SessionTTL:     v.GetDuration("session_ttl"),
		RedisURL:       v.GetString("redis_url"),
		PostCacheTTL:   v.GetDuration("post_cache_ttl"),
		ResendAPIKey:   v.GetString("resend_api_key"),
		ContactFrom:    v.GetString("contact_from"),
		ContactTo:      splitList(v.GetString("contact_to")),
		MaxUploadBytes: v.GetInt64("max_upload_bytes"),
		MaxImageWidth:  v.GetInt("max_image_width"),
		LogLevel:       v.GetString("log_level"),
		Env:            v.GetString("app_env"),
	}
	cfg.setDefaults()
	return cfg, nil
}

func splitList(s string) []string {
	return FilterEmpty(strings.Split(s, ","))
}

// Option configures additional App behavior.
type Option func(*App)

// WithCustomRoutes registers additional routes on the Echo instance.
// The callback runs after the built-in routes are registered.
func WithCustomRoutes(fn func(*App)) Option {
	return func(a *App) {
		a.customRoutes = append(a.customRoutes, fn)
	}
}

// WithStore uses an already opened store instead of DatabasePath.
func WithStore(s *Store) Option {
	return func(a *App) {
		a.Store = s
	}
}

// WithBucket uses an already opened media bucket instead of MediaBucket.
func WithBucket(b *blob.Bucket) Option {
	return func(a *App) {
		a.Bucket = b
	}
}

// WithCache overrides the listing cache.
func WithCache(c ListingCache) Option {
	return func(a *App) {
		a.Cache = c
	}
}

// WithMailer overrides the contact mail sender.
func WithMailer(m mailer.Sender) Option {
	return func(a *App) {
		a.Mailer = m
	}
}

// WithRetryDelay sets the pause between featured-project load attempts.
func WithRetryDelay(d time.Duration) Option {
	return func(a *App) {
		a.retryDelay = d
	}
}
