package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/mmdatafocus/bakery_backend/config"
	"github.com/mmdatafocus/bakery_backend/models"
	"github.com/mmdatafocus/bakery_backend/statement"
	"github.com/mmdatafocus/bakery_backend/utils"
	"github.com/mmdatafocus/bakery_backend/workflow"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

const defaultPort = "8080"

// application holds the engine services behind the HTTP handlers.
type application struct {
	days       *workflow.DaySyncService
	journal    *workflow.CMIJournalService
	reconciler *workflow.CMIReconciler
	ledger     models.BankLedgerRepository
	statements *statement.Service
	logger     *logrus.Logger
}

func newApplication(db *gorm.DB, sessions statement.SessionStore, rates workflow.Rates, logger *logrus.Logger) *application {
	days := models.NewDayRepository(db)
	ledger := models.NewBankLedgerRepository(db)
	journal := models.NewCMIJournalRepository(db)
	return &application{
		days:       workflow.NewDaySyncService(days, ledger, logger, workflow.WithRates(rates)),
		journal:    workflow.NewCMIJournalService(journal, logger),
		reconciler: workflow.NewCMIReconciler(journal, ledger, logger),
		ledger:     ledger,
		statements: statement.NewService(sessions, logger),
		logger:     logger,
	}
}

// sessionStore picks redis when it is connected so imports survive a restart and span instances.
func sessionStore() statement.SessionStore {
	ttl := config.StatementSessionTTL()
	if rdb := config.GetRedisDB(); rdb != nil {
		return statement.NewRedisSessionStore(rdb, ttl)
	}
	return statement.NewMemorySessionStore(ttl)
}

func (app *application) routes(r gin.IRouter) {
	r.GET("/days/:date", app.getDay)
	r.PUT("/days/:date/:view/draft", app.syncDay(workflow.SyncActionDraft))
	r.POST("/days/:date/:view/sync", app.syncDay(workflow.SyncActionValidate))
	r.POST("/days/:date/:view/desync", app.syncDay(workflow.SyncActionDesync))
	r.PUT("/days/:date/coefficients", app.overrideCoefficients)
	r.POST("/derive", app.derive)

	r.GET("/cmi-journal/:month", app.listJournal)
	r.POST("/cmi-journal/:month/entries", app.addJournalRow)
	r.PATCH("/cmi-journal/:month/entries/:id", app.updateJournalEntry)
	r.DELETE("/cmi-journal/:month/entries/:id", app.removeJournalRow)

	r.GET("/reconciliation/:month", app.reconciliationView)
	r.POST("/reconciliation/:date", app.reconcile)

	r.GET("/bank-ledger", app.listLedger)
	r.POST("/bank-ledger", app.upsertLedgerEntry)

	r.POST("/statements", app.importStatement)
	r.POST("/statements/:session/sheet", app.selectStatementSheet)
	r.POST("/statements/:session/compress", app.compressStatement)
	r.GET("/statements/:session/export", app.exportStatement)
	r.DELETE("/statements/:session", app.discardStatement)
}

// requestContext attaches the correlation id and the operator name to the request context.
func requestContext() gin.HandlerFunc {
	return func(c *gin.Context) {
		cid := c.GetHeader("x-correlation-id")
		if cid == "" {
			cid = uuid.NewString()
		}
		ctx := utils.SetCorrelationIdInContext(c.Request.Context(), cid)
		if operator := strings.TrimSpace(c.GetHeader("x-operator")); operator != "" {
			ctx = utils.SetOperatorInContext(ctx, operator)
		}
		c.Request = c.Request.WithContext(ctx)
		c.Header("X-Correlation-ID", cid)
		c.Next()
	}
}

// readinessGate answers 503 until the database is connected and migrated.
func readinessGate(ready *atomic.Bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.URL.Path == "/healthz" {
			c.Status(http.StatusNoContent)
			c.Abort()
			return
		}
		if !ready.Load() {
			c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{"error": "starting"})
			return
		}
		c.Next()
	}
}

func corsMiddleware() gin.HandlerFunc {
	corsConfig := cors.DefaultConfig()
	// production needs an explicit allowlist, anything goes elsewhere
	allowedOrigins := strings.TrimSpace(os.Getenv("CORS_ALLOWED_ORIGINS"))
	if strings.EqualFold(strings.TrimSpace(os.Getenv("GO_ENV")), "production") {
		if allowedOrigins == "" {
			corsConfig.AllowOrigins = []string{}
		} else {
			corsConfig.AllowOrigins = splitAndTrim(allowedOrigins)
		}
	} else {
		corsConfig.AllowAllOrigins = true
	}
	corsConfig.AddAllowMethods("GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS")
	corsConfig.AddAllowHeaders("Origin", "Content-Type", "Authorization", "X-Correlation-ID", "X-Operator")
	corsConfig.AddExposeHeaders("Content-Length", "Content-Disposition", "X-Correlation-ID")
	if !corsConfig.AllowAllOrigins {
		corsConfig.AllowCredentials = true
	}
	return cors.New(corsConfig)
}

func newRouter(app *application, ready *atomic.Bool, logger *logrus.Logger) *gin.Engine {
	r := gin.New()
	r.Use(requestContext())
	r.Use(readinessGate(ready))
	r.GET("/healthz", func(c *gin.Context) { c.Status(http.StatusNoContent) })
	r.Use(corsMiddleware())

	// Env:
	// - RATE_LIMIT_ENABLED=true (needs REDIS_ADDRESS)
	// - RATE_LIMIT_WINDOW_SECONDS=60
	// - RATE_LIMIT_MAX_REQUESTS=600
	if strings.EqualFold(strings.TrimSpace(os.Getenv("RATE_LIMIT_ENABLED")), "true") {
		if rdb := config.GetRedisDB(); rdb != nil {
			limit := int64(intEnv("RATE_LIMIT_MAX_REQUESTS", 600))
			window := time.Duration(intEnv("RATE_LIMIT_WINDOW_SECONDS", 60)) * time.Second
			r.Use(NewRateLimiter(rdb, limit, window).RateLimitMiddleware)
		} else {
			logger.WithField("field", "rate-limit").Warn("RATE_LIMIT_ENABLED without redis; rate limiting disabled")
		}
	}

	r.Use(customErrorLogger(logger))
	r.Use(gin.Recovery())
	app.routes(r)
	r.NoRoute(customNotFoundHandler)
	return r
}

func customNotFoundHandler(c *gin.Context) {
	c.JSON(http.StatusNotFound, gin.H{"error": "route not found"})
}

// customErrorLogger logs the errors handlers attached to the context, with the request's correlation id.
func customErrorLogger(logger *logrus.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) > 0 {
			cid, _ := utils.GetCorrelationIdFromContext(c.Request.Context())
			logger.WithFields(logrus.Fields{
				"correlation_id": cid,
				"path":           c.FullPath(),
				"status":         c.Writer.Status(),
			}).Error(c.Errors.String())
		}
	}
}

func main() {
	port := os.Getenv("PORT")
	if port == "" {
		port = defaultPort
	}
	logger := config.GetLogger()

	sigCtx, stopSignals := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stopSignals()

	// The port opens before the database is reachable; the readiness gate holds requests meanwhile.
	var ready atomic.Bool
	handler := &switchHandler{}
	boot := gin.New()
	boot.Use(readinessGate(&ready))
	handler.set(boot)

	srv := &http.Server{
		Addr:    ":" + port,
		Handler: handler,
	}
	serverErrCh := make(chan error, 1)
	go func() {
		serverErrCh <- srv.ListenAndServe()
	}()

	config.ConnectDatabaseWithRetry()
	config.ConnectRedisWithRetry()

	db := config.GetDB()
	sqlDB, _ := db.DB()
	defer func() {
		if sqlDB != nil {
			_ = sqlDB.Close()
		}
	}()
	if !strings.EqualFold(strings.TrimSpace(os.Getenv("SKIP_MIGRATIONS")), "true") {
		models.MigrateTable()
	} else {
		logger.WithFields(logrus.Fields{"field": "migrations"}).Warn("SKIP_MIGRATIONS=true; skipping AutoMigrate on startup")
	}

	app := newApplication(db, sessionStore(), workflow.RatesFromEnv(), logger)
	handler.set(newRouter(app, &ready, logger))
	ready.Store(true)

	logger.WithFields(logrus.Fields{
		"info":   "Connection Established",
		"driver": config.DatabaseDriver(),
		"redis":  config.GetRedisDB() != nil,
	}).Info("listening on :", port)
	log.Println("Server started successfully")

	select {
	case <-sigCtx.Done():
	case err := <-serverErrCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithFields(logrus.Fields{"field": "http"}).Error("server stopped unexpectedly: " + err.Error())
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.WithFields(logrus.Fields{"field": "http"}).Error("graceful shutdown failed: " + err.Error())
	}
	if rdb := config.GetRedisDB(); rdb != nil {
		_ = rdb.Close()
	}
}

// switchHandler lets main swap the boot router for the full one once dependencies are up.
type switchHandler struct {
	current atomic.Value
}

func (h *switchHandler) set(next http.Handler) {
	h.current.Store(&next)
}

func (h *switchHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	(*h.current.Load().(*http.Handler)).ServeHTTP(w, r)
}

type RateLimiter struct {
	client *redis.Client
	limit  int64
	window time.Duration
}

func NewRateLimiter(client *redis.Client, limit int64, window time.Duration) *RateLimiter {
	return &RateLimiter{
		client: client,
		limit:  limit,
		window: window,
	}
}

// RateLimitMiddleware counts requests per client IP over a fixed window.
func (rl *RateLimiter) RateLimitMiddleware(c *gin.Context) {
	key := "ratelimit:" + c.ClientIP()
	ctx := c.Request.Context()

	count, err := rl.client.Incr(ctx, key).Result()
	if err != nil {
		_ = c.AbortWithError(http.StatusInternalServerError, err)
		return
	}
	if count == 1 {
		if err := rl.client.Expire(ctx, key, rl.window).Err(); err != nil {
			_ = c.AbortWithError(http.StatusInternalServerError, err)
			return
		}
	}
	if count > rl.limit {
		c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
			"error": fmt.Sprintf("Rate limit exceeded. Try again in %d seconds", int(rl.window.Seconds())),
		})
		return
	}
	c.Next()
}

func intEnv(key string, def int) int {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			return n
		}
	}
	return def
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
