package live

import (
	"context"
	_ "embed"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/Uranury/thermohygrometer/storage"
)

//go:embed static/index.html
var indexHTML []byte

const maxHistory = 500

// History is the read side of the local table.
type History interface {
	Latest(ctx context.Context, n int) ([]storage.Row, error)
}

// NewRouter builds the HTTP surface: the page, the websocket, JSON endpoints
// and Prometheus metrics. history may be nil.
func NewRouter(hub *Hub, history History, gatherer prometheus.Gatherer, logger *slog.Logger) *gin.Engine {
	if logger == nil {
		logger = slog.Default()
	}
	r := gin.New()
	r.Use(gin.Recovery(), requestLogger(logger))

	r.GET("/", func(c *gin.Context) {
		c.Data(http.StatusOK, "text/html; charset=utf-8", indexHTML)
	})
	r.GET("/ws", hub.handleWebSocket)
	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "clients": hub.Clients()})
	})

	api := r.Group("/api")
	api.GET("/latest", func(c *gin.Context) {
		s, ok := hub.Latest()
		if !ok {
			c.JSON(http.StatusNotFound, gin.H{"error": "no cycle yet"})
			return
		}
		c.JSON(http.StatusOK, s)
	})
	if history != nil {
		api.GET("/history", func(c *gin.Context) {
			n, err := strconv.Atoi(c.DefaultQuery("limit", "50"))
			if err != nil || n <= 0 {
				c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be a positive integer"})
				return
			}
			if n > maxHistory {
				n = maxHistory
			}
			rows, err := history.Latest(c.Request.Context(), n)
			if err != nil {
				logger.Error("history query failed", "err", err)
				c.JSON(http.StatusInternalServerError, gin.H{"error": "history unavailable"})
				return
			}
			c.JSON(http.StatusOK, rows)
		})
	}

	if gatherer != nil {
		r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))
	}
	return r
}

func requestLogger(logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.Debug("http request",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"duration", time.Since(start))
	}
}
