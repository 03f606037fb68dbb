package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	_ "idportal/api/swagger" // swagger docs
	"idportal/internal/cardgen"
	"idportal/internal/config"
	"idportal/internal/database"
	"idportal/internal/handler"
	"idportal/internal/logger"
	"idportal/internal/notify"
	"idportal/internal/repository"
	"idportal/internal/service"
	"idportal/internal/storage"
	"idportal/internal/websocket"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"
)

const (
	shutdownTimeout   = 15 * time.Second
	linkSweepInterval = time.Hour
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API",
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, log, err := setup()
	if err != nil {
		return err
	}
	defer log.Sync() //nolint:errcheck

	db, err := connect(cfg)
	if err != nil {
		log.Error("database connection failed", zap.Error(err))
		return err
	}
	log.Info("connected to PostgreSQL")
	if err := database.Migrate(db, log); err != nil {
		log.Error("migration failed", zap.Error(err))
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	router, hub, linkRepo, err := buildRouter(cfg, db, log)
	if err != nil {
		return err
	}

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		hub.Run(gctx.Done())
		return nil
	})
	g.Go(func() error {
		sweepLinks(gctx, linkRepo, log)
		return nil
	})
	g.Go(func() error {
		log.Info("server listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		log.Error("server stopped", zap.Error(err))
		return err
	}
	return nil
}

func connect(cfg *config.Config) (*gorm.DB, error) {
	return database.NewConnection(cfg.DSN(), database.PoolOptions{
		MaxOpenConns:    cfg.DBMaxOpenConns,
		MaxIdleConns:    cfg.DBMaxIdleConns,
		ConnMaxLifetime: cfg.DBConnMaxLifetime,
	})
}

// buildRouter wires repositories, services and handlers (Repository -> Service -> Handler).
func buildRouter(cfg *config.Config, db *gorm.DB, log *zap.Logger) (*gin.Engine, *websocket.Hub, repository.MagicLinkRepository, error) {
	gin.SetMode(cfg.GinMode)

	hub := websocket.NewHub(log.Named("ws"), cfg.AllowedOrigins())

	photos, err := storage.NewLocalStore(cfg.PhotoDir, cfg.PublicBaseURL, cfg.MaxPhotoBytes, log.Named("photos"))
	if err != nil {
		return nil, nil, nil, err
	}

	userRepo := repository.NewUserRepository(db)
	vendorRepo := repository.NewVendorRepository(db)
	locationRepo := repository.NewLocationRepository(db)
	submissionRepo := repository.NewSubmissionRepository(db)
	linkRepo := repository.NewMagicLinkRepository(db)
	auditRepo := repository.NewAuditRepository(db)
	txManager := repository.NewTransactionManager(db)

	mailer := notify.NewMailer(notify.SMTPConfig{
		Host:     cfg.SMTPHost,
		Port:     cfg.SMTPPort,
		Username: cfg.SMTPUsername,
		Password: cfg.SMTPPassword,
		From:     cfg.MailFrom,
	}, log.Named("mail"))
	dispatcher := notify.NewDispatcher(mailer, cfg.FrontendURL, log.Named("notify"))

	links := service.NewLinkManager(linkRepo, cfg.FrontendURL)
	tokens := service.NewTokenProvider(cfg.JWTSecret, cfg.AccessTokenTTL)
	renderer := cardgen.NewHTTPRenderer(cfg.RendererURL, cfg.RendererTimeout, log.Named("renderer"))

	engine := service.NewEngine(service.EngineDeps{
		Submissions:      submissionRepo,
		Vendors:          vendorRepo,
		Locations:        locationRepo,
		Audit:            auditRepo,
		Tx:               txManager,
		Links:            links,
		Notifier:         dispatcher,
		Publisher:        hub,
		Photos:           photos,
		CandidateLinkTTL: cfg.CandidateLinkTTL,
		Logger:           log.Named("lifecycle"),
	})

	submissionService := service.NewSubmissionService(engine)
	batchService := service.NewBatchService(engine, renderer, cfg.BatchConcurrency, log.Named("batch"))
	authService := service.NewAuthService(userRepo, vendorRepo, links, tokens, dispatcher, cfg.MagicLinkTTL, log.Named("auth"))
	staffService := service.NewStaffService(userRepo, auditRepo, txManager, log)
	vendorService := service.NewVendorService(vendorRepo, submissionRepo, auditRepo, txManager, log)
	locationService := service.NewLocationService(locationRepo, submissionRepo, auditRepo, txManager, log)
	auditService := service.NewAuditService(auditRepo)

	secureCookie := cfg.GinMode == gin.ReleaseMode

	router := gin.New()
	router.Use(gin.Recovery(), logger.GinMiddleware(log.Named("http")))
	router.MaxMultipartMemory = cfg.MaxPhotoBytes + 1<<20

	corsConfig := cors.DefaultConfig()
	corsConfig.AllowOrigins = cfg.AllowedOrigins()
	corsConfig.AllowCredentials = true
	corsConfig.AllowHeaders = []string{"Origin", "Content-Length", "Content-Type", "Authorization", "Accept"}
	corsConfig.AllowMethods = []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"}
	corsConfig.ExposeHeaders = []string{"Content-Disposition", "X-Batch-Succeeded", "X-Batch-Failed"}
	router.Use(cors.New(corsConfig))

	router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "OK"})
	})
	router.GET("/ws", hub.ServeWs(tokens))
	router.Static(storage.URLPrefix, photos.Dir())

	api := router.Group("")
	handler.NewAuthHandler(authService, tokens, cfg.AccessTokenTTL, secureCookie, log).RegisterRoutes(api)
	handler.NewStaffHandler(staffService, authService, tokens, log).RegisterRoutes(api)
	handler.NewSubmissionHandler(submissionService, batchService, tokens, log).RegisterRoutes(api)
	handler.NewVendorHandler(vendorService, submissionService, batchService, authService, tokens, log).RegisterRoutes(api)
	handler.NewLocationHandler(locationService, tokens, log).RegisterRoutes(api)
	handler.NewAuditHandler(auditService, tokens, log).RegisterRoutes(api)

	return router, hub, linkRepo, nil
}

// sweepLinks deletes expired magic links until ctx is done.
func sweepLinks(ctx context.Context, repo repository.MagicLinkRepository, log *zap.Logger) {
	ticker := time.NewTicker(linkSweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			n, err := repo.DeleteExpired(ctx, now)
			if err != nil {
				log.Warn("expired link sweep failed", zap.Error(err))
				continue
			}
			if n > 0 {
				log.Info("expired links removed", zap.Int64("count", n))
			}
		}
	}
}
