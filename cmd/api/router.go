package main

import (
	"context"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/go-chi/cors"
	"github.com/opentracing/opentracing-go"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/therealutkarshpriyadarshi/vidtube/internal/config"
	"github.com/therealutkarshpriyadarshi/vidtube/internal/logging"
	"github.com/therealutkarshpriyadarshi/vidtube/internal/middleware"
	"github.com/therealutkarshpriyadarshi/vidtube/internal/response"
	"github.com/therealutkarshpriyadarshi/vidtube/internal/upload"
)

// stagedFiles removes files left in the staging directory
type stagedFiles interface {
	Discard(paths ...string)
}

// healthCheck pings one dependency
type healthCheck struct {
	name  string
	check func(ctx context.Context) error
}

// queueDepth reports the number of undelivered account events
type queueDepth func() (int, error)

// API carries everything the HTTP layer needs
type API struct {
	accounts accountService
	stager   *upload.Stager
	media    stagedFiles
	cfg      *config.Config
	logger   *logging.Logger
	tracer   opentracing.Tracer
	limiter  *middleware.RateLimiter
	counter  middleware.CounterStore // nil disables the auth route limit
	checks   []healthCheck
	depth    queueDepth // nil when events are disabled
}

func setupRouter(api *API) http.Handler {
	router := gin.New()
	router.MaxMultipartMemory = 8 << 20

	router.Use(
		gin.Recovery(),
		middleware.RequestID(),
		middleware.Tracing(api.tracer),
		middleware.Logger(api.logger),
		middleware.Metrics(),
		gzip.Gzip(gzip.DefaultCompression),
		middleware.BodyLimit(api.cfg.Server.BodyLimit),
		middleware.UploadLimit(api.cfg.Server.MaxUploadSize),
	)

	router.GET("/health", api.healthCheck)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := router.Group("/api/v1")
	v1.Use(middleware.RateLimit(api.limiter, api.logger))
	{
		users := v1.Group("/users")
		requireAuth := middleware.RequireAuth(api.accounts, api.logger)

		// Credential routes
		users.POST("/register", api.authLimit(), api.handle(api.register))
		users.POST("/login", api.authLimit(), api.handle(api.login))
		users.POST("/refresh-token", api.authLimit(), api.handle(api.refreshToken))

		// Public profile
		users.GET("/c/:username", middleware.OptionalAuth(api.accounts), api.handle(api.channelProfile))

		// Authenticated
		secured := users.Group("")
		secured.Use(requireAuth)
		{
			secured.POST("/logout", api.handle(api.logout))
			secured.POST("/change-password", api.handle(api.changePassword))
			secured.GET("/current-user", api.handle(api.currentUser))
			secured.PATCH("/update-account", api.handle(api.updateAccount))
			secured.PATCH("/avatar", api.handle(api.updateAvatar))
			secured.PATCH("/cover-image", api.handle(api.updateCoverImage))
			secured.GET("/history", api.handle(api.watchHistory))
		}
	}

	router.NoRoute(api.serveStatic)

	return cors.Handler(cors.Options{
		AllowedOrigins:   []string{api.cfg.Server.CORSOrigin},
		AllowedMethods:   []string{"GET", "POST", "PATCH", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", middleware.RequestIDHeader},
		ExposedHeaders:   []string{middleware.RequestIDHeader},
		AllowCredentials: true,
		MaxAge:           300,
	})(router)
}

func (api *API) handle(fn response.HandlerFunc) gin.HandlerFunc {
	return response.Handle(api.logger, fn)
}

func (api *API) authLimit() gin.HandlerFunc {
	if api.counter == nil {
		return func(c *gin.Context) { c.Next() }
	}
	return middleware.AuthRouteLimit(api.counter, api.cfg.RateLimit.AuthLimit, api.cfg.RateLimit.AuthWindow, api.logger)
}

// Health check endpoint
func (api *API) healthCheck(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	status := gin.H{}
	var failed []string
	for _, hc := range api.checks {
		if err := hc.check(ctx); err != nil {
			api.logger.WithField("dependency", hc.name).WarnWithErr("Health check failed", err)
			status[hc.name] = "unhealthy"
			failed = append(failed, hc.name+" is unhealthy")
			continue
		}
		status[hc.name] = "healthy"
	}

	if len(failed) > 0 {
		response.Fail(c, nil, response.New(http.StatusServiceUnavailable, "Service unavailable", failed...))
		return
	}

	data := gin.H{"status": "healthy", "checks": status}
	if api.depth != nil {
		if n, err := api.depth(); err == nil {
			data["eventQueueDepth"] = n
		}
	}
	response.OK(c, http.StatusOK, data, "OK")
}

// serveStatic serves files under the public directory for unmatched GETs
func (api *API) serveStatic(c *gin.Context) {
	if c.Request.Method == http.MethodGet || c.Request.Method == http.MethodHead {
		rel := path.Clean("/" + c.Request.URL.Path)
		full := filepath.Join(api.cfg.Server.PublicDir, filepath.FromSlash(rel))
		if info, err := os.Stat(full); err == nil && !info.IsDir() && !api.isStaged(full) {
			c.FileFromFS(rel, gin.Dir(api.cfg.Server.PublicDir, false))
			return
		}
	}
	response.Fail(c, nil, response.NotFound("Route not found"))
}

// isStaged reports whether file lives in the upload staging directory
func (api *API) isStaged(file string) bool {
	rel, err := filepath.Rel(filepath.Clean(api.cfg.Server.TempDir), filepath.Clean(file))
	return err == nil && rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}
