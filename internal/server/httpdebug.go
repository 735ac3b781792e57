package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/sentinelops/sentinel/internal/storage"
)

// DebugStore is the read-only storage view the debug endpoints use.
type DebugStore interface {
	Ping(ctx context.Context) error
	ListInventoryIndexes(ctx context.Context, limit int) ([]*storage.InventoryIndex, error)
	ListScans(ctx context.Context, limit int) ([]*storage.Scan, error)
}

// DebugServer serves health, metrics, and read-only listings over HTTP.
type DebugServer struct {
	srv *http.Server
}

// NewDebugServer builds the HTTP debug surface.
func NewDebugServer(listen string, store DebugStore, reg *prometheus.Registry) *DebugServer {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())

	router.GET("/healthz", func(c *gin.Context) {
		if store != nil {
			ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
			defer cancel()
			if err := store.Ping(ctx); err != nil {
				c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unhealthy", "error": err.Error()})
				return
			}
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(reg, promhttp.HandlerOpts{})))

	api := router.Group("/api")
	api.GET("/inventories", func(c *gin.Context) {
		indexes, err := store.ListInventoryIndexes(c.Request.Context(), 50)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"inventories": indexes})
	})
	api.GET("/scans", func(c *gin.Context) {
		scans, err := store.ListScans(c.Request.Context(), 50)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"scans": scans})
	})

	return &DebugServer{
		srv: &http.Server{
			Addr:              listen,
			Handler:           router,
			ReadHeaderTimeout: 5 * time.Second,
		},
	}
}

// Start serves in the background.
func (d *DebugServer) Start() {
	go func() {
		slog.Info("debug server listening", "addr", d.srv.Addr)
		if err := d.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("debug server error", "error", err)
		}
	}()
}

// Stop shuts the debug server down.
func (d *DebugServer) Stop(ctx context.Context) error {
	return d.srv.Shutdown(ctx)
}
