package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"bitbucket.org/mmdatafocus/fir_backend/config"
	"bitbucket.org/mmdatafocus/fir_backend/lawgpt"
	"bitbucket.org/mmdatafocus/fir_backend/middlewares"
	"bitbucket.org/mmdatafocus/fir_backend/models"
	"bitbucket.org/mmdatafocus/fir_backend/models/reports"
	"bitbucket.org/mmdatafocus/fir_backend/utils"
	"bitbucket.org/mmdatafocus/fir_backend/workflow"
)

const defaultPort = "8080"

// Define a struct to represent the rate limiter.
type RateLimiter struct {
	client *redis.Client
	limit  int64
	window time.Duration
}

func getRedisClient(redisAddress string) *redis.Client {
	client := redis.NewClient(&redis.Options{
		Addr: redisAddress,
	})
	return client
}

// respondFIRError translates the lifecycle error taxonomy to HTTP.
// Raw infrastructure errors stay behind a generic 500.
func respondFIRError(c *gin.Context, err error) {
	var ve *utils.ValidationError
	var se *utils.InvalidStateError
	var de *utils.DuplicateFIRNumberError
	var pe *utils.PredictionServiceError

	switch {
	case errors.As(err, &ve):
		c.JSON(http.StatusBadRequest, gin.H{"error": ve.Error(), "field": ve.Field})
	case errors.Is(err, utils.ErrorRecordNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "FIR not found"})
	case errors.As(err, &se):
		c.JSON(http.StatusConflict, gin.H{
			"error":          se.Error(),
			"current_status": se.Current,
		})
	case errors.As(err, &de):
		c.JSON(http.StatusConflict, gin.H{"error": de.Error(), "firNumber": de.FIRNumber})
	case errors.As(err, &pe):
		c.JSON(http.StatusBadGateway, gin.H{"error": pe.Error()})
	default:
		_ = c.Error(err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
	}
}

func parseIdParam(c *gin.Context) (int, bool) {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid FIR id"})
		return 0, false
	}
	return id, true
}

func createFIRHandler(predictor models.IPCPredictor) gin.HandlerFunc {
	return func(c *gin.Context) {
		var input models.NewFIR
		if err := c.ShouldBindJSON(&input); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
			return
		}
		// The canonical create never honors a caller-supplied number.
		input.FIRNumber = ""

		fir, err := models.CreateDraftFIR(c.Request.Context(), &input, predictor)
		if err != nil {
			respondFIRError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"success": true,
			"fir":     fir,
			"message": "Draft FIR created successfully with IPC predictions",
		})
	}
}

// Legacy alias: accepts a pre-built payload including an optional
// firNumber and records a draft-saved notification.
func createDraftLegacyHandler(predictor models.IPCPredictor) gin.HandlerFunc {
	return func(c *gin.Context) {
		var input models.NewFIR
		if err := c.ShouldBindJSON(&input); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
			return
		}

		fir, err := models.CreateDraftFIR(c.Request.Context(), &input, predictor)
		if err != nil {
			respondFIRError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"success": true, "fir": fir})
	}
}

func updateFIRHandler(predictor models.IPCPredictor) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := parseIdParam(c)
		if !ok {
			return
		}
		var patch models.UpdateFIR
		if err := c.ShouldBindJSON(&patch); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
			return
		}

		fir, err := models.UpdateDraftFIR(c.Request.Context(), id, &patch, predictor)
		if err != nil {
			respondFIRError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"success": true, "fir": fir, "message": "Draft FIR updated successfully"})
	}
}

func submitFIRHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := parseIdParam(c)
		if !ok {
			return
		}
		fir, err := models.SubmitFIRForApproval(c.Request.Context(), id)
		if err != nil {
			respondFIRError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"success": true, "fir": fir, "message": "FIR submitted for approval"})
	}
}

func rejectFIRHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := parseIdParam(c)
		if !ok {
			return
		}
		fir, err := models.RejectFIR(c.Request.Context(), id)
		if err != nil {
			respondFIRError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"success": true, "fir": fir, "message": "FIR sent back to draft"})
	}
}

func approveFIRHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := parseIdParam(c)
		if !ok {
			return
		}
		var body struct {
			ApprovedBy string `json:"approvedBy"`
		}
		// Body is optional on the legacy route.
		_ = c.ShouldBindJSON(&body)

		fir, err := workflow.ApproveFIR(c.Request.Context(), id, body.ApprovedBy)
		if err != nil {
			respondFIRError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"success": true,
			"fir":     fir,
			"message": "FIR approved and finalized successfully",
		})
	}
}

func deleteDraftHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := parseIdParam(c)
		if !ok {
			return
		}
		if err := models.DeleteDraftFIR(c.Request.Context(), id); err != nil {
			respondFIRError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"success": true})
	}
}

func listDraftsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var status *models.FIRStatus
		if s := c.Query("status"); s != "" {
			if !models.IsValidFIRStatus(s) {
				c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid status"})
				return
			}
			st := models.FIRStatus(s)
			status = &st
		}
		limit, _ := strconv.Atoi(c.DefaultQuery("limit", "100"))

		drafts, err := models.ListDraftFIRs(c.Request.Context(), status, c.Query("search"), limit)
		if err != nil {
			respondFIRError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"success": true, "drafts": drafts, "count": len(drafts)})
	}
}

func listFinalHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		limit, _ := strconv.Atoi(c.DefaultQuery("limit", "100"))
		firs, err := models.ListFinalFIRs(c.Request.Context(), c.Query("search"), limit)
		if err != nil {
			respondFIRError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"success": true, "firs": firs, "count": len(firs)})
	}
}

func listPendingHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		pending := models.FIRStatusPendingApproval
		firs, err := models.ListDraftFIRs(c.Request.Context(), &pending, "", 100)
		if err != nil {
			respondFIRError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"success": true, "firs": firs, "count": len(firs)})
	}
}

func getFIRHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := parseIdParam(c)
		if !ok {
			return
		}
		draft, final, err := models.GetFIRByID(c.Request.Context(), id)
		if err != nil {
			respondFIRError(c, err)
			return
		}
		if draft != nil {
			c.JSON(http.StatusOK, gin.H{"success": true, "fir": draft})
			return
		}
		c.JSON(http.StatusOK, gin.H{"success": true, "fir": final})
	}
}

func countsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		counts, err := models.CountFIRs(c.Request.Context())
		if err != nil {
			respondFIRError(c, err)
			return
		}
		c.JSON(http.StatusOK, counts)
	}
}

// Legacy alias: bucket listing by path status, bare array response.
// "pending" maps to pending_approval; "rejected" is always empty because
// rejection returns records to draft.
func listByStatusLegacyHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		status := c.Param("status")
		switch status {
		case "draft", "pending_approval", "pending":
			if status == "pending" {
				status = string(models.FIRStatusPendingApproval)
			}
			st := models.FIRStatus(status)
			firs, err := models.ListDraftFIRs(c.Request.Context(), &st, "", 100)
			if err != nil {
				respondFIRError(c, err)
				return
			}
			c.JSON(http.StatusOK, firs)
		case "approved":
			firs, err := models.ListFinalFIRs(c.Request.Context(), "", 100)
			if err != nil {
				respondFIRError(c, err)
				return
			}
			c.JSON(http.StatusOK, firs)
		case "rejected":
			c.JSON(http.StatusOK, []*models.DraftFIR{})
		default:
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid status"})
		}
	}
}

func notificationsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		notes, err := models.GetRecentNotifications(c.Request.Context(), 20)
		if err != nil {
			respondFIRError(c, err)
			return
		}
		c.JSON(http.StatusOK, notes)
	}
}

// predictHandler is the prediction-only operation. Unlike create/edit it
// surfaces PredictionServiceError instead of degrading.
func predictHandler(predictor models.IPCPredictor) gin.HandlerFunc {
	return func(c *gin.Context) {
		var body struct {
			Case            string `json:"case"`
			CaseDescription string `json:"caseDescription"`
		}
		if err := c.ShouldBindJSON(&body); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
			return
		}

		caseText := utils.FirstNonEmpty(body.CaseDescription, body.Case)
		predictions, err := predictor.PredictIPCSections(c.Request.Context(), caseText)
		if err != nil {
			respondFIRError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"success": true, "predictions": predictions})
	}
}

func exportRegisterHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		f, err := reports.BuildFIRRegister(c.Request.Context())
		if err != nil {
			respondFIRError(c, err)
			return
		}
		c.Header("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
		c.Header("Content-Disposition", "attachment; filename=fir_register.xlsx")
		if err := f.Write(c.Writer); err != nil {
			_ = c.Error(err)
		}
	}
}

// Ops tooling: replay outbox rows that were marked DEAD/FAILED.
func outboxReplayHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		db := config.GetDB()
		if db == nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "db is nil"})
			return
		}
		replayed, err := workflow.ReplayOutbox(c.Request.Context(), db)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"replayed": replayed})
	}
}

// Ops tooling: sweep drafts left behind by interrupted approvals.
func reconcileHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		db := config.GetDB()
		if db == nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "db is nil"})
			return
		}
		removed, err := workflow.ReconcileStaleDrafts(c.Request.Context(), db)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"removed": removed})
	}
}

func customNotFoundHandler(c *gin.Context) {
	c.JSON(http.StatusNotFound, gin.H{"error": "route not found"})
}

func main() {
	port := os.Getenv("API_PORT")
	if port == "" {
		// Cloud Run standard env var.
		port = os.Getenv("PORT")
	}
	if port == "" {
		port = defaultPort
	}

	logger := config.GetLogger()

	// Shutdown coordination.
	// Cloud Run sends SIGTERM on revision shutdown; handle it for graceful drain.
	sigCtx, stopSignals := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stopSignals()

	// Start the HTTP server ASAP so Cloud Run considers the revision healthy.
	// Until the DB is ready, we return 503 for app endpoints.
	r := gin.New()
	// Correlation IDs: generate once per request and attach to context.
	r.Use(func(c *gin.Context) {
		cid := c.GetHeader("x-correlation-id")
		if cid == "" {
			cid = uuid.NewString()
		}
		c.Request = c.Request.WithContext(utils.SetCorrelationIdInContext(c.Request.Context(), cid))
		c.Next()
	})
	r.Use(func(c *gin.Context) {
		// Always allow Cloud Run startup probe.
		if c.Request.URL.Path == "/healthz" {
			c.Status(http.StatusNoContent)
			c.Abort()
			return
		}
		// Gate app endpoints on DB readiness. Redis is optional here.
		if config.GetDB() == nil {
			c.AbortWithStatus(http.StatusServiceUnavailable)
			return
		}
		c.Next()
	})

	r.GET("/healthz", func(c *gin.Context) { c.Status(http.StatusNoContent) })

	corsConfig := cors.DefaultConfig()
	// Production-safe CORS:
	// - In production, require explicit allowlist via CORS_ALLOWED_ORIGINS (comma-separated).
	// - In non-production, allow all (developer convenience).
	allowedOrigins := strings.TrimSpace(os.Getenv("CORS_ALLOWED_ORIGINS"))
	if strings.EqualFold(strings.TrimSpace(os.Getenv("GO_ENV")), "production") {
		if allowedOrigins == "" {
			// Safer default: deny all if not configured in production.
			corsConfig.AllowOrigins = []string{}
		} else {
			corsConfig.AllowOrigins = splitAndTrim(allowedOrigins)
		}
	} else {
		corsConfig.AllowAllOrigins = true
	}
	corsConfig.AddAllowMethods("GET", "POST", "PUT", "DELETE", "OPTIONS")
	corsConfig.AddAllowHeaders("token", "Origin", "Content-Type", "Authorization")
	corsConfig.AddExposeHeaders("Content-Length")
	corsConfig.AllowCredentials = true

	r.Use(cors.New(corsConfig))

	// Optional rate limiting (recommended for production).
	// Env:
	// - RATE_LIMIT_ENABLED=true
	// - RATE_LIMIT_WINDOW_SECONDS=60
	// - RATE_LIMIT_MAX_REQUESTS=600
	if strings.EqualFold(strings.TrimSpace(os.Getenv("RATE_LIMIT_ENABLED")), "true") {
		client := getRedisClient(os.Getenv("REDIS_ADDRESS"))
		limit := int64(600)
		if v := strings.TrimSpace(os.Getenv("RATE_LIMIT_MAX_REQUESTS")); v != "" {
			if n, err := strconv.ParseInt(v, 10, 64); err == nil && n > 0 {
				limit = n
			}
		}
		windowSec := int64(60)
		if v := strings.TrimSpace(os.Getenv("RATE_LIMIT_WINDOW_SECONDS")); v != "" {
			if n, err := strconv.ParseInt(v, 10, 64); err == nil && n > 0 {
				windowSec = n
			}
		}
		rateLimiter := NewRateLimiter(client, limit, time.Duration(windowSec)*time.Second)
		r.Use(rateLimiter.RateLimitMiddleware)
	}

	r.Use(middlewares.AuthMiddleware())
	r.Use(customErrorLogger(logger))
	r.Use(gin.Recovery())

	lawgptClient := lawgpt.NewClient()

	r.GET("/api/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"ok": true, "port": port, "message": "Server is running"})
	})

	// Counts before the dynamic :status route.
	r.GET("/api/firs/counts", countsHandler())
	r.GET("/api/firs/:status", listByStatusLegacyHandler())

	r.POST("/api/fir/create", createFIRHandler(lawgptClient))
	r.GET("/api/fir/drafts", listDraftsHandler())
	r.PUT("/api/fir/update/:id", updateFIRHandler(lawgptClient))
	r.POST("/api/fir/send-for-approval/:id", submitFIRHandler())
	r.POST("/api/fir/approve/:id", approveFIRHandler())
	r.GET("/api/fir/final", listFinalHandler())
	r.GET("/api/fir/pending", listPendingHandler())
	r.GET("/api/fir/export", exportRegisterHandler())
	r.GET("/api/fir/:id", getFIRHandler())

	// Backward-compatibility aliases for the older client surface.
	r.POST("/api/fir/create-draft", createDraftLegacyHandler(lawgptClient))
	r.PUT("/api/fir/submit/:id", submitFIRHandler())
	r.PUT("/api/fir/:id/approve", approveFIRHandler())
	r.PUT("/api/fir/:id/reject", rejectFIRHandler())
	r.DELETE("/api/fir/draft/:id", deleteDraftHandler())

	r.POST("/api/predict", predictHandler(lawgptClient))
	r.GET("/api/notifications", notificationsHandler())

	// Ops tooling.
	r.POST("/internal/ops/outbox/replay", outboxReplayHandler())
	r.POST("/internal/ops/reconcile", reconcileHandler())

	r.NoRoute(customNotFoundHandler)

	// Start listening immediately (Cloud Run startup probe is TCP based).
	srv := &http.Server{
		Addr:    ":" + port,
		Handler: r,
	}
	serverErrCh := make(chan error, 1)
	go func() {
		// ListenAndServe returns http.ErrServerClosed on graceful shutdown.
		serverErrCh <- srv.ListenAndServe()
	}()

	// Connect dependencies after the port is open.
	config.ConnectDatabaseWithRetry()
	config.ConnectRedisWithRetry()

	db := config.GetDB()
	sqlDB, _ := db.DB()
	defer func() {
		if sqlDB != nil {
			_ = sqlDB.Close()
		}
	}()
	// IMPORTANT: AutoMigrate can run DDL that blocks tables and causes 504/502 timeouts.
	// Allow disabling migrations on startup (run them as a separate job instead).
	if !strings.EqualFold(strings.TrimSpace(os.Getenv("SKIP_MIGRATIONS")), "true") {
		if err := models.MigrateTable(); err != nil {
			logger.WithFields(logrus.Fields{"field": "migrations"}).Error("AutoMigrate failed: " + err.Error())
		}
	} else {
		logger.WithFields(logrus.Fields{"field": "migrations"}).Warn("SKIP_MIGRATIONS=true; skipping AutoMigrate on startup")
	}

	// Start background workers (publish AFTER commit; sweep stale drafts).
	workerCtx, cancelWorkers := context.WithCancel(context.Background())
	defer cancelWorkers()
	if !config.OutboxDispatcherDisabled() {
		go workflow.NewOutboxDispatcher(db, logger).Run(workerCtx)
	}
	if interval := config.ReconcileInterval(); interval > 0 {
		go workflow.RunReconciler(workerCtx, db, logger, interval)
	}

	// Set the session isolation level to READ COMMITTED
	for attempt := 1; ; attempt++ {
		err := db.Exec("SET SESSION TRANSACTION ISOLATION LEVEL READ COMMITTED").Error
		if err == nil {
			break
		}
		sleep := time.Second * time.Duration(1<<minInt(attempt, 5))
		if sleep > 30*time.Second {
			sleep = 30 * time.Second
		}
		logger.WithFields(logrus.Fields{
			"field":   "database",
			"attempt": attempt,
		}).Warn("failed to set isolation level; retrying in " + sleep.String() + ": " + err.Error())
		time.Sleep(sleep)
	}

	logger.WithFields(logrus.Fields{
		"info": "Connection Established",
	}).Info("FIR backend listening on port ", port)

	// Block until shutdown or server error.
	select {
	case <-sigCtx.Done():
		// graceful shutdown below
	case err := <-serverErrCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithFields(logrus.Fields{"field": "http"}).Error("server stopped unexpectedly: " + err.Error())
		}
	}

	// Stop background workers first so they don't start new work while we're draining.
	cancelWorkers()

	// Drain HTTP requests.
	shutdownTimeout := 30 * time.Second
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.WithFields(logrus.Fields{"field": "http"}).Error("graceful shutdown failed: " + err.Error())
	}

	// Close Redis (best-effort).
	if rdb := config.GetRedisDB(); rdb != nil {
		_ = rdb.Close()
	}
}

// customErrorLogger is a custom Gin middleware that logs only errors
func customErrorLogger(logger *logrus.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		// Only log when there are errors
		if len(c.Errors) > 0 {
			logger.Error(c.Errors.String())
		}
	}
}

// Initialize a new RateLimiter instance.
func NewRateLimiter(client *redis.Client, limit int64, window time.Duration) *RateLimiter {
	return &RateLimiter{
		client: client,
		limit:  limit,
		window: window,
	}
}

// Middleware function to check rate limits.
func (rl *RateLimiter) RateLimitMiddleware(c *gin.Context) {
	// Get the IP address or user identifier from the request.
	key := c.ClientIP() // Assuming IP-based rate limiting

	// Check if the key exists in Redis.
	exists, err := rl.client.Exists(c.Request.Context(), key).Result()
	if err != nil {
		c.AbortWithError(http.StatusInternalServerError, err)
		return
	}

	// If the key doesn't exist, create it and set expiry.
	if exists == 0 {
		err := rl.client.Set(c.Request.Context(), key, 1, rl.window).Err()
		if err != nil {
			c.AbortWithError(http.StatusInternalServerError, err)
			return
		}
		c.Next()
		return
	}

	// If the key exists, get the current count.
	count, err := rl.client.Incr(c.Request.Context(), key).Result()
	if err != nil {
		c.AbortWithError(http.StatusInternalServerError, err)
		return
	}

	// If the count exceeds the limit, return an error response.
	if count > rl.limit {
		c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
			"error": fmt.Sprintf("Rate limit exceeded. Try again in %d seconds", int(rl.window.Seconds())),
		})
		return
	}

	c.Next()
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}

func splitAndTrim(csv string) []string {
	if strings.TrimSpace(csv) == "" {
		return nil
	}
	parts := strings.Split(csv, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
