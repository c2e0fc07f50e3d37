package api

import (
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/lysyi3m/rss-harvest/app/metrics"
)

// NewServer creates a new HTTP server with all routes configured
func NewServer(handler *Handler, relay *Relay, apiAccessKey string) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	r := gin.New()

	r.Use(requestLogger("/health", "/metrics"))
	r.Use(gin.Recovery())

	r.Use(func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Origin, Content-Type, Accept, Authorization, X-API-Key")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	})

	setupRoutes(r, handler, relay, apiAccessKey)

	return r
}

func setupRoutes(r *gin.Engine, handler *Handler, relay *Relay, apiAccessKey string) {
	r.GET("/health", handler.GetHealth)
	r.GET("/stats", handler.GetStats)
	r.GET("/metrics", gin.WrapH(metrics.Handler()))

	// Relay endpoints stay public so a transport in another region can use them.
	if relay != nil {
		relayed := r.Group("/relay", relayMetrics())
		relayed.GET(strings.TrimPrefix(RawRelayPath, "/relay"), relay.Raw)
		relayed.GET(strings.TrimPrefix(FeedRelayPath, "/relay"), relay.Feed)
		relayed.GET(strings.TrimPrefix(ImageRelayPath, "/relay"), relay.Image)
	}

	if apiAccessKey != "" {
		api := r.Group("/api")
		api.Use(authMiddleware(apiAccessKey))
		{
			api.GET("/sources", handler.APIListSources)
			api.GET("/sources/:id/articles", handler.APIGetArticles)
			api.POST("/sources/:id/refresh", handler.APIRefreshSource)
			api.POST("/refresh", handler.APIRefreshAll)
		}
		slog.Info("API endpoints enabled with authentication")
	} else {
		slog.Warn("API endpoints disabled, API_ACCESS_KEY not set")
	}

	r.GET("/", func(c *gin.Context) {
		endpoints := map[string]string{
			"health":  "/health",
			"stats":   "/stats",
			"metrics": "/metrics",
		}
		if relay != nil {
			endpoints["relay_raw"] = RawRelayPath + "?url=<url>"
			endpoints["relay_feed"] = FeedRelayPath + "?url=<url>"
			endpoints["relay_image"] = ImageRelayPath + "?url=<url>"
		}
		if apiAccessKey != "" {
			endpoints["sources"] = "/api/sources (requires X-API-Key header)"
			endpoints["articles"] = "/api/sources/<id>/articles (requires X-API-Key header)"
			endpoints["refresh_source"] = "/api/sources/<id>/refresh (POST, requires X-API-Key header)"
			endpoints["refresh"] = "/api/refresh (POST, requires X-API-Key header)"
		}

		c.JSON(http.StatusOK, gin.H{
			"service":     "RSS Harvest",
			"version":     handler.version,
			"description": "Feed aggregator with content normalization, image selection and incremental refresh",
			"endpoints":   endpoints,
			"api_status": map[string]interface{}{
				"enabled":       apiAccessKey != "",
				"auth_required": apiAccessKey != "",
				"header":        "X-API-Key",
			},
		})
	})

	r.GET("/favicon.ico", func(c *gin.Context) {
		c.Status(http.StatusNoContent)
	})
}

// requestLogger logs one line per request after it has been served.
func requestLogger(skipPaths ...string) gin.HandlerFunc {
	skip := make(map[string]struct{}, len(skipPaths))
	for _, p := range skipPaths {
		skip[p] = struct{}{}
	}

	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		if _, ok := skip[c.Request.URL.Path]; ok {
			return
		}

		attrs := []any{
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"latency", time.Since(start),
			"client_ip", c.ClientIP(),
		}
		if len(c.Errors) > 0 {
			attrs = append(attrs, "error", c.Errors.String())
		}

		if c.Writer.Status() >= http.StatusInternalServerError {
			slog.Error("Request failed", attrs...)
			return
		}
		slog.Info("Request served", attrs...)
	}
}

func relayMetrics() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()
		metrics.RecordRelay(c.FullPath(), c.Writer.Status())
	}
}

// authMiddleware accepts the key from X-API-Key or an Authorization bearer token
func authMiddleware(apiAccessKey string) gin.HandlerFunc {
	return func(c *gin.Context) {
		providedKey := c.GetHeader("X-API-Key")

		if providedKey == "" {
			authHeader := c.GetHeader("Authorization")
			if strings.HasPrefix(authHeader, "Bearer ") {
				providedKey = strings.TrimPrefix(authHeader, "Bearer ")
			}
		}

		if providedKey == "" {
			c.JSON(http.StatusUnauthorized, gin.H{
				"error":   "API key required",
				"message": "Provide API key in X-API-Key header or Authorization: Bearer <key>",
			})
			c.Abort()
			return
		}

		if providedKey != apiAccessKey {
			c.JSON(http.StatusUnauthorized, gin.H{
				"error":   "Invalid API key",
				"message": "The provided API key is not valid",
			})
			c.Abort()
			return
		}

		c.Next()
	}
}
