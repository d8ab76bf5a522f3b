package server

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"cryptofolio/config"
	"cryptofolio/internal/aggregator"
	"cryptofolio/internal/models"
	"cryptofolio/logger"
)

// Portfolio is the aggregation surface the API exposes.
type Portfolio interface {
	Assets(ctx context.Context) ([]models.Asset, error)
	Activities(ctx context.Context, order aggregator.Order) ([]models.Activity, error)
}

// Server hosts the portfolio REST API.
type Server struct {
	cfg        config.ServerConfig
	agg        Portfolio
	log        *logger.Entry
	httpServer *http.Server
}

func New(cfg config.ServerConfig, agg Portfolio) *Server {
	cfg.Address = normalizeAddress(cfg.Address)
	return &Server{
		cfg: cfg,
		agg: agg,
		log: logger.GetLogger().WithComponent("api-server"),
	}
}

// Run starts the HTTP server and blocks until the context is cancelled or
// the listener fails.
func (s *Server) Run(ctx context.Context) error {
	s.httpServer = &http.Server{
		Addr:    s.cfg.Address,
		Handler: s.buildRouter(),
	}

	s.log.WithFields(logger.Fields{"address": s.cfg.Address}).Info("api server listening")

	errCh := make(chan error, 1)
	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		<-errCh
		return nil
	case err := <-errCh:
		return err
	}
}

func (s *Server) buildRouter() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())

	api := router.Group("/api/v1")
	api.GET("/AssetList", s.handleAssets)
	api.GET("/Activities", s.handleActivities)

	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	return router
}

func (s *Server) handleAssets(c *gin.Context) {
	start := time.Now()
	assets, err := s.agg.Assets(c.Request.Context())
	if err != nil {
		s.log.WithError(err).Error("asset aggregation failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	logger.LogPerformanceEntry(s.log, "api-server", "asset_list", time.Since(start), logger.Fields{
		"assets": len(assets),
	})
	c.JSON(http.StatusOK, assets)
}

func (s *Server) handleActivities(c *gin.Context) {
	order := aggregator.OrderDesc
	switch c.Query("order") {
	case "", "desc":
	case "asc":
		order = aggregator.OrderAsc
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": "order must be asc or desc"})
		return
	}

	start := time.Now()
	activities, err := s.agg.Activities(c.Request.Context(), order)
	if err != nil {
		s.log.WithError(err).Error("activity aggregation failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	logger.LogPerformanceEntry(s.log, "api-server", "activities", time.Since(start), logger.Fields{
		"activities": len(activities),
		"order":      string(order),
	})
	c.JSON(http.StatusOK, activities)
}

func normalizeAddress(address string) string {
	if address == "" {
		return ":8080"
	}
	if _, _, err := net.SplitHostPort(address); err == nil {
		return address
	}
	return ":" + address
}
