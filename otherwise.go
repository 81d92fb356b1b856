// Package otherwise is the marketing site and lightweight CMS for Otherwise,
// built with Go, Echo, gorm and templ components.
//
// Page templates are supplied through the ViewFuncs struct; the package owns
// routing, middleware, persistence, media and authentication.
package otherwise

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net/http"
	"time"

	"github.com/a-h/templ"
	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/labstack/gommon/log"
	"github.com/prometheus/client_golang/prometheus"
	"gocloud.dev/blob"

	"github.com/otherwisedev/otherwise/mailer"
)

// ViewFuncs holds the page components the application renders. Each func
// receives fully prepared view data.
type ViewFuncs struct {
	Home        func(HomePage) templ.Component
	Posts       func(PostsPage) templ.Component
	Post        func(PostPage) templ.Component
	Login       func(LoginPage) templ.Component
	Content     func(ContentPage) templ.Component
	Editor      func(EditorPage) templ.Component
	Legal       func(LegalPage) templ.Component
	NotFound    func() templ.Component
	ServerError func() templ.Component
}

// App is the central application. It wires together the store, cache, media
// bucket, mailer, handlers, middleware, and page views.
type App struct {
	Config SiteConfig
	Echo   *echo.Echo
	Store  *Store
	Cache  ListingCache
	Bucket *blob.Bucket
	Mailer mailer.Sender
	Views  ViewFuncs

	loginLimiter   *RateLimiter
	contactLimiter *RateLimiter
	registry       *prometheus.Registry
	metrics        *metrics
	validate       *validator.Validate
	customRoutes   []func(*App)
	retryDelay     time.Duration
	closers        []func() error
	initialized    bool
}

// New creates an App with the given configuration and views.
func New(cfg SiteConfig, views ViewFuncs, opts ...Option) *App {
	cfg.setDefaults()

	e := echo.New()
	e.HideBanner = true
	e.Logger.SetLevel(parseLogLevel(cfg.LogLevel))

	a := &App{
		Config:     cfg,
		Echo:       e,
		Views:      views,
		retryDelay: 300 * time.Millisecond,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

func parseLogLevel(level string) log.Lvl {
	switch level {
	case "debug":
		return log.DEBUG
	case "warn":
		return log.WARN
	case "error":
		return log.ERROR
	case "off":
		return log.OFF
	}
	return log.INFO
}

// Init opens whatever the options did not supply and registers middleware
// and routes. It is safe to call more than once.
func (a *App) Init(ctx context.Context) error {
	if a.initialized {
		return nil
	}
	if err := a.Config.validate(); err != nil {
		return fmt.Errorf("otherwise: %w", err)
	}

	if a.Store == nil {
		store, err := NewStore(a.Config.DatabasePath, WithStoreLogger(a.Echo.Logger))
		if err != nil {
			return fmt.Errorf("otherwise: init store: %w", err)
		}
		a.Store = store
		a.closers = append(a.closers, store.Close)
	}
	if a.Bucket == nil {
		bucket, err := OpenBucket(ctx, a.Config.MediaBucket)
		if err != nil {
			return fmt.Errorf("otherwise: init media bucket: %w", err)
		}
		a.Bucket = bucket
		a.closers = append(a.closers, bucket.Close)
	}
	if a.Cache == nil {
		if a.Config.RedisURL != "" {
			rc, err := NewRedisCache(ctx, a.Config.RedisURL, a.Config.PostCacheTTL, a.Echo.Logger)
			if err != nil {
				a.Echo.Logger.Warnf("redis unavailable, using in-memory listing cache: %v", err)
			} else {
				a.Cache = rc
				a.closers = append(a.closers, rc.Close)
			}
		}
		if a.Cache == nil {
			a.Cache = NewMemoryCache(a.Config.PostCacheTTL)
		}
	}
	if a.Mailer == nil {
		if a.Config.ResendAPIKey != "" {
			a.Mailer = mailer.NewResend(a.Config.ResendAPIKey)
		} else {
			a.Echo.Logger.Warn("RESEND_API_KEY not set; contact messages will be logged")
			a.Mailer = mailer.LogSender{Logger: a.Echo.Logger}
		}
	}

	a.loginLimiter = NewRateLimiter(5, time.Minute)
	a.contactLimiter = NewRateLimiter(5, 10*time.Minute)
	a.registry = prometheus.NewRegistry()
	a.metrics = newMetrics(a.registry)
	a.validate = newValidator()

	a.setupMiddleware()
	a.setupRoutes()
	for _, fn := range a.customRoutes {
		fn(a)
	}
	a.initialized = true
	return nil
}

// Start initializes the app and serves until ctx is cancelled, then shuts
// down gracefully.
func (a *App) Start(ctx context.Context) error {
	if err := a.Init(ctx); err != nil {
		return err
	}
	stopCleanup := a.Store.StartSessionCleanup(time.Hour)
	defer stopCleanup()

	errCh := make(chan error, 1)
	go func() {
		if err := a.Echo.Start(a.Config.Addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return a.Echo.Shutdown(shutdownCtx)
}

func (a *App) setupRoutes() {
	e := a.Echo

	staticFS, _ := fs.Sub(StaticAssets, "static")
	e.GET("/public/*", echo.WrapHandler(http.StripPrefix("/public/", http.FileServer(http.FS(staticFS)))))
	e.GET("/robots.txt", a.handleRobots)
	e.GET("/sitemap.xml", a.handleSitemap)
	e.GET("/feed.xml", a.handleFeed)
	e.GET("/healthz", a.handleHealth)
	e.GET("/metrics", a.metricsHandler())

	// Public pages
	e.GET("/", a.handleHome)
	e.GET("/posts", a.handlePosts)
	e.GET("/posts/:type/:slug", a.handlePost)
	e.GET("/blog", handleBlogRedirect)
	e.GET("/projects", handleProjectsRedirect)
	e.GET("/privacy", a.handleLegal("privacy", "Privacy Policy"))
	e.GET("/terms", a.handleLegal("terms", "Terms of Service"))

	// Auth
	e.GET("/login", a.handleLoginPage)
	e.POST("/login", a.handleLogin)
	e.POST("/logout", a.handleLogout)

	// Admin
	content := e.Group("/content", a.requireAdmin)
	content.GET("", a.handleContent)
	content.POST("/:id/featured", a.handleToggleFeatured)
	content.POST("/:id/status", a.handleSetStatus)
	content.POST("/:id/delete", a.handleDelete)

	publish := e.Group("/publish", a.requireAdmin)
	publish.GET("/new", a.handleNewPostForm)
	publish.POST("/new", a.handleCreatePost)
	publish.GET("/:id", a.handleEditPostForm)
	publish.POST("/:id", a.handleUpdatePost)

	// API
	api := e.Group("/api")
	api.GET("/posts", a.handleAPIPosts)
	api.POST("/contact", a.handleContact)
	api.POST("/upload-image", a.handleImageUpload)
	api.GET("/media/*", a.handleMedia)
	api.HEAD("/media/*", a.handleMedia)
	api.Any("/auth/*", a.handleAuthAPI)
}

// Close stops background work and releases resources the app opened.
func (a *App) Close() error {
	if a.loginLimiter != nil {
		a.loginLimiter.Stop()
	}
	if a.contactLimiter != nil {
		a.contactLimiter.Stop()
	}
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
