package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"fanlink/backend/internal/ranking"
	"fanlink/backend/internal/relations"
	fsadapter "fanlink/backend/internal/store/firestore"
	"fanlink/backend/pkg/config"
	"fanlink/backend/pkg/logger"
	pkgerrors "fanlink/backend/pkg/errors"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		panic(fmt.Sprintf("Failed to load configuration: %v", err))
	}

	// Initialize logger
	if err := logger.Init(cfg.Env); err != nil {
		panic(fmt.Sprintf("Failed to initialize logger: %v", err))
	}
	defer logger.Sync()

	log := logger.Get()
	log.Info("Starting HTTP API server...")

	// Initialize Firestore-backed store
	ctx := context.Background()
	db, err := fsadapter.New(ctx, cfg.FirestoreProjectID, cfg.CredentialsFile, cfg.TxMaxAttempts)
	if err != nil {
		log.Fatal("Failed to create Firestore client", zap.Error(err))
	}
	defer db.Close()
	if cfg.FirestoreEmulator != "" {
		log.Info("Using Firestore emulator", zap.String("host", cfg.FirestoreEmulator))
	}

	// Initialize dependencies
	relSvc := relations.NewService(db)
	rankIdx := ranking.NewIndex(db)

	// Setup Gin router
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(ginLogger(log))
	router.Use(gin.Recovery())
	router.Use(requestID())

	// CORS middleware
	router.Use(func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, Authorization, accept, origin, Cache-Control, X-Requested-With")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS, GET, PUT, DELETE")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}

		c.Next()
	})

	// Health check
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	// API routes
	api := router.Group("/api")
	{
		// Create a relation edge
		api.POST("/relations/:kind", func(c *gin.Context) {
			kind, ok := parseKindParam(c)
			if !ok {
				return
			}

			var req struct {
				SourceID  string `json:"source_id" binding:"required"`
				TargetID  string `json:"target_id" binding:"required"`
				ExpiresAt string `json:"expires_at"`
			}
			if err := c.ShouldBindJSON(&req); err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
				return
			}

			expiresAt, err := parseExpiry(req.ExpiresAt)
			if err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": "expires_at must be RFC3339"})
				return
			}

			ctx := c.Request.Context()
			switch kind {
			case relations.KindFollow:
				err = relSvc.CreateFollow(ctx, req.SourceID, req.TargetID)
			case relations.KindSubscription:
				err = relSvc.CreateSubscription(ctx, req.SourceID, req.TargetID, expiresAt)
			case relations.KindSponsorship:
				err = relSvc.CreateSponsorship(ctx, req.SourceID, req.TargetID, expiresAt)
			}
			if err != nil {
				writeError(c, log, err)
				return
			}
			c.JSON(http.StatusCreated, gin.H{"status": "created"})
		})

		// Cancel a relation edge (idempotent)
		api.POST("/relations/:kind/cancel", func(c *gin.Context) {
			kind, ok := parseKindParam(c)
			if !ok {
				return
			}

			var req struct {
				SourceID string `json:"source_id" binding:"required"`
				TargetID string `json:"target_id" binding:"required"`
			}
			if err := c.ShouldBindJSON(&req); err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
				return
			}

			ctx := c.Request.Context()
			var err error
			switch kind {
			case relations.KindFollow:
				err = relSvc.CancelFollow(ctx, req.SourceID, req.TargetID)
			case relations.KindSubscription:
				err = relSvc.CancelSubscription(ctx, req.SourceID, req.TargetID)
			case relations.KindSponsorship:
				err = relSvc.CancelSponsorship(ctx, req.SourceID, req.TargetID)
			}
			if err != nil {
				writeError(c, log, err)
				return
			}
			c.JSON(http.StatusOK, gin.H{"status": "cancelled"})
		})

		// Check whether an active edge links the pair
		api.GET("/relations/:kind/status", func(c *gin.Context) {
			kind, ok := parseKindParam(c)
			if !ok {
				return
			}
			sourceID := c.Query("source_id")
			targetID := c.Query("target_id")
			if sourceID == "" || targetID == "" {
				c.JSON(http.StatusBadRequest, gin.H{"error": "source_id and target_id are required"})
				return
			}

			ctx := c.Request.Context()
			var active bool
			var err error
			switch kind {
			case relations.KindFollow:
				active, err = relSvc.IsFollowing(ctx, sourceID, targetID)
			case relations.KindSubscription:
				active, err = relSvc.IsSubscribed(ctx, sourceID, targetID)
			case relations.KindSponsorship:
				active, err = relSvc.IsSponsoring(ctx, sourceID, targetID)
			}
			if err != nil {
				writeError(c, log, err)
				return
			}
			c.JSON(http.StatusOK, gin.H{"active": active})
		})

		// Enumerate relation counterpart ids
		api.GET("/users/:id/relations/:kind", func(c *gin.Context) {
			kind, ok := parseKindParam(c)
			if !ok {
				return
			}
			dir := relations.DirectionOutgoing
			if c.Query("direction") == string(relations.DirectionIncoming) {
				dir = relations.DirectionIncoming
			}

			ids, err := relSvc.ListRelationIds(c.Request.Context(), kind, c.Param("id"), dir)
			if err != nil {
				writeError(c, log, err)
				return
			}
			c.JSON(http.StatusOK, gin.H{"ids": ids})
		})

		// Batch-resolve user summaries
		api.POST("/users/details", func(c *gin.Context) {
			var req struct {
				IDs []string `json:"ids" binding:"required"`
			}
			if err := c.ShouldBindJSON(&req); err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
				return
			}

			users, err := relSvc.FetchRelationDetails(c.Request.Context(), req.IDs)
			if err != nil {
				writeError(c, log, err)
				return
			}
			c.JSON(http.StatusOK, gin.H{"users": users})
		})

		// Counter aggregate for one kind
		api.GET("/users/:id/stats/:kind", func(c *gin.Context) {
			kind, ok := parseKindParam(c)
			if !ok {
				return
			}

			out, in, err := relSvc.GetStats(c.Request.Context(), c.Param("id"), kind)
			if err != nil {
				writeError(c, log, err)
				return
			}
			c.JSON(http.StatusOK, gin.H{"outgoing": out, "incoming": in})
		})

		// Current sponsor of a user
		api.GET("/users/:id/sponsor", func(c *gin.Context) {
			sponsorID, sponsored, err := relSvc.GetCurrentSponsor(c.Request.Context(), c.Param("id"))
			if err != nil {
				writeError(c, log, err)
				return
			}
			c.JSON(http.StatusOK, gin.H{"sponsored": sponsored, "sponsor_id": sponsorID})
		})

		// Ranking position within the user's preferred scope
		api.GET("/users/:id/rank", func(c *gin.Context) {
			rank, scope, err := rankIdx.Position(c.Request.Context(), c.Param("id"))
			if err != nil {
				writeError(c, log, err)
				return
			}
			c.JSON(http.StatusOK, gin.H{"rank": rank, "scope": scope})
		})
	}

	// Start server
	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: router,
	}

	// Graceful shutdown
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	log.Info("Server started", zap.String("port", cfg.Port))

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("Server forced to shutdown", zap.Error(err))
	}

	log.Info("Server exited")
}

// parseKindParam resolves the :kind path parameter, replying 400 on an
// unknown kind
func parseKindParam(c *gin.Context) (relations.Kind, bool) {
	kind, ok := relations.ParseKind(c.Param("kind"))
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown relation kind"})
		return "", false
	}
	return kind, true
}

func parseExpiry(raw string) (*time.Time, error) {
	if raw == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// writeError maps the error taxonomy onto HTTP status codes
func writeError(c *gin.Context, log *zap.Logger, err error) {
	switch {
	case pkgerrors.IsAlreadyExists(err):
		c.JSON(http.StatusConflict, gin.H{"error": "relation already exists"})
	case pkgerrors.IsAlreadySponsored(err):
		c.JSON(http.StatusConflict, gin.H{"error": "user already has an active sponsor"})
	case pkgerrors.IsUserNotFound(err):
		c.JSON(http.StatusNotFound, gin.H{"error": "user not found"})
	case pkgerrors.IsRetryable(err):
		log.Warn("Store temporarily unavailable", zap.Error(err))
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "temporarily unavailable, retry"})
	default:
		log.Error("Request failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}

// requestID tags every request with an id for log correlation
func requestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader("X-Request-ID")
		if id == "" {
			id = uuid.NewString()
		}
		c.Writer.Header().Set("X-Request-ID", id)
		c.Next()
	}
}

// ginLogger is a custom logger middleware for Gin
func ginLogger(log *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		raw := c.Request.URL.RawQuery

		c.Next()

		latency := time.Since(start)
		status := c.Writer.Status()

		if raw != "" {
			path = path + "?" + raw
		}

		log.Info("HTTP Request",
			zap.Int("status", status),
			zap.String("method", c.Request.Method),
			zap.String("path", path),
			zap.Duration("latency", latency),
			zap.String("ip", c.ClientIP()),
		)
	}
}
