// Package app wires the photo service into the HTTP server and the inbox
// watcher.
package app

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/zeebo/errs"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"fotacos/internal/config"
	"fotacos/internal/db"
	"fotacos/internal/handlers"
	"fotacos/internal/imageproc"
	"fotacos/internal/inbox"
	"fotacos/internal/services"
	"fotacos/internal/storage/filestore"
)

const shutdownTimeout = 10 * time.Second

// Services holds the opened stores and the photo service built on them.
type Services struct {
	DB     db.DB
	Files  *filestore.Store
	Photos *services.PhotoService
}

// OpenServices connects the record store, applies the schema, creates the
// upload directories and builds the photo service.
func OpenServices(ctx context.Context, cfg config.Config, log *zap.Logger) (*Services, error) {
	database, err := db.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, err
	}
	if err := database.Migrate(ctx); err != nil {
		return nil, errs.Combine(err, database.Close())
	}

	files, err := filestore.NewAt(cfg.UploadDir)
	if err != nil {
		return nil, errs.Combine(err, database.Close())
	}
	if err := os.MkdirAll(filepath.Join(files.Dir(), services.ThumbnailDir), 0755); err != nil {
		return nil, errs.Combine(err, database.Close())
	}

	photos := services.NewPhotoService(
		log.Named("photos"),
		database,
		files,
		imageproc.New(cfg.ImageOptions()),
		cfg.PublicPrefix,
	)

	return &Services{DB: database, Files: files, Photos: photos}, nil
}

// Close releases the record store.
func (s *Services) Close() error {
	return s.DB.Close()
}

// NewServer builds the Fiber app with the API, the event feed and the
// static file mounts.
func NewServer(cfg config.Config, log *zap.Logger, photos *services.PhotoService, hub *handlers.EventHub) *fiber.App {
	app := fiber.New(fiber.Config{
		BodyLimit:             int(cfg.MaxUploadBytes),
		DisableStartupMessage: true,
	})

	// Middleware
	app.Use(logger.New())
	app.Use(recover.New())

	origins := strings.Join(cfg.CORSOrigins, ",")
	app.Use(cors.New(cors.Config{
		AllowOrigins: origins,
		// browsers refuse credentials for a wildcard origin
		AllowCredentials: origins != "" && origins != "*",
	}))

	// Stored originals and thumbnails
	app.Static(cfg.PublicPrefix, cfg.UploadDir)

	// Routes
	api := app.Group("/api")
	api.Get("/photos", handlers.ListPhotosHandler(photos))
	api.Post("/photos", handlers.UploadPhotoHandler(photos))
	api.Get("/photos/:id", handlers.GetPhotoHandler(photos))
	api.Delete("/photos/:id", handlers.DeletePhotoHandler(photos))

	// Health Check
	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})

	// WebSocket Route
	app.Use("/ws", handlers.WSUpgradeMiddleware)
	app.Get("/ws", handlers.EventsHandler(hub))

	// Built web UI
	if info, err := os.Stat(cfg.WebDistDir); err == nil && info.IsDir() {
		app.Static("/", cfg.WebDistDir)
	} else if cfg.WebDistDir != "" {
		log.Debug("web ui not found", zap.String("dir", cfg.WebDistDir))
	}

	return app
}

// Run serves HTTP and, when configured, watches the inbox until ctx is
// canceled or one of them fails.
func Run(ctx context.Context, cfg config.Config, log *zap.Logger) (err error) {
	svc, err := OpenServices(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer func() { err = errs.Combine(err, svc.Close()) }()

	hub := handlers.NewEventHub(log.Named("events"))
	svc.Photos.Subscribe(hub.Publish)

	server := NewServer(cfg, log, svc.Photos, hub)

	group, ctx := errgroup.WithContext(ctx)
	group.Go(func() error {
		log.Info("listening", zap.String("address", cfg.Address()))
		return server.Listen(cfg.Address())
	})
	group.Go(func() error {
		<-ctx.Done()
		log.Info("gracefully shutting down")
		return server.ShutdownWithTimeout(shutdownTimeout)
	})

	if cfg.InboxDir != "" {
		watcher := inbox.NewWatcher(log.Named("inbox"), svc.Photos, cfg.InboxDir)
		group.Go(func() error {
			return watcher.Run(ctx)
		})
	}

	if err := group.Wait(); err != nil {
		return err
	}
	log.Info("server shutdown complete")
	return nil
}
