package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/shareplane/backend/internal/config"
	"github.com/shareplane/backend/internal/database"
	"github.com/shareplane/backend/internal/dispatch"
	"github.com/shareplane/backend/internal/handlers"
	"github.com/shareplane/backend/internal/middleware"
	"github.com/shareplane/backend/internal/services"
	"github.com/shareplane/backend/internal/storage"
	"github.com/shareplane/backend/pkg/logger"
	"github.com/shareplane/backend/pkg/utils"
)

func main() {
	logger.Init()

	cfg := config.Load()
	utils.ConfigureJWT(cfg.JWT.Secret, cfg.JWT.ExpirationHours)

	db, err := database.Connect(cfg.DB)
	if err != nil {
		log.Fatalf("database connection failed: %v", err)
	}

	storageClient, err := storage.NewMinIOClient(cfg.MinIO)
	if err != nil {
		log.Fatalf("minio initialization failed: %v", err)
	}
	if err := storageClient.EnsureBucket(context.Background()); err != nil {
		log.Fatalf("failed ensuring minio bucket: %v", err)
	}

	dispatcher := dispatch.NewKafkaDispatcher(cfg.Kafka)
	defer dispatcher.Close()

	auditService := services.NewAuditService(db, storageClient)
	auditService.StartExporter(cfg.Audit.ExportInterval)

	groupTypeService := services.NewGroupTypeService(db, cfg.Registry)
	provisionService := services.NewProvisionService(db, dispatcher.Backend())
	groupService := services.NewGroupService(db, dispatcher, dispatcher.Backend(), provisionService)

	authHandler := handlers.NewAuthHandler(db, auditService)
	shareGroupsHandler := handlers.NewShareGroupsHandler(db, groupService, groupTypeService, auditService)
	groupSnapshotsHandler := handlers.NewGroupSnapshotsHandler(db, groupService, auditService)
	groupTypesHandler := handlers.NewGroupTypesHandler(db, groupTypeService, auditService)

	authMiddleware := middleware.NewAuthMiddleware(db)

	app := fiber.New(fiber.Config{BodyLimit: 4 * 1024 * 1024})
	app.Use(recover.New(recover.Config{EnableStackTrace: true}))
	app.Use(middleware.CORS())
	app.Use(middleware.RequestLogger())
	app.Use(middleware.SecurityLogger())

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.Status(fiber.StatusOK).JSON(fiber.Map{"status": "ok"})
	})

	api := app.Group("/api")

	authRoutes := api.Group("/auth")
	authRoutes.Post("/register", authHandler.Register)
	authRoutes.Post("/login", authHandler.Login)
	authRoutes.Get("/me", authMiddleware.RequireAuth, authHandler.Me)

	groupRoutes := api.Group("/share-groups", authMiddleware.RequireAuth)
	groupRoutes.Post("/", shareGroupsHandler.Create)
	groupRoutes.Get("/", shareGroupsHandler.List)
	groupRoutes.Get("/:id", shareGroupsHandler.Get)
	groupRoutes.Put("/:id", shareGroupsHandler.Update)
	groupRoutes.Delete("/:id", shareGroupsHandler.Delete)
	groupRoutes.Post("/:id/action", middleware.AdminOnly, shareGroupsHandler.AdminAction)

	snapshotRoutes := api.Group("/group-snapshots", authMiddleware.RequireAuth)
	snapshotRoutes.Post("/", groupSnapshotsHandler.Create)
	snapshotRoutes.Get("/", groupSnapshotsHandler.List)
	snapshotRoutes.Get("/:id", groupSnapshotsHandler.Get)
	snapshotRoutes.Get("/:id/members", groupSnapshotsHandler.Members)
	snapshotRoutes.Put("/:id", groupSnapshotsHandler.Update)
	snapshotRoutes.Delete("/:id", groupSnapshotsHandler.Delete)
	snapshotRoutes.Post("/:id/action", middleware.AdminOnly, groupSnapshotsHandler.AdminAction)

	typeRoutes := api.Group("/share-group-types", authMiddleware.RequireAuth)
	typeRoutes.Get("/", groupTypesHandler.List)
	typeRoutes.Get("/default", groupTypesHandler.Default)
	typeRoutes.Get("/:id", groupTypesHandler.Get)
	typeRoutes.Post("/", middleware.AdminOnly, groupTypesHandler.Create)
	typeRoutes.Delete("/:id", middleware.AdminOnly, groupTypesHandler.Delete)
	typeRoutes.Get("/:id/access", middleware.AdminOnly, groupTypesHandler.ListAccess)
	typeRoutes.Post("/:id/access", middleware.AdminOnly, groupTypesHandler.AddAccess)
	typeRoutes.Delete("/:id/access/:projectId", middleware.AdminOnly, groupTypesHandler.RemoveAccess)
	typeRoutes.Get("/:id/extra-specs", groupTypesHandler.ListExtraSpecs)
	typeRoutes.Post("/:id/extra-specs", middleware.AdminOnly, groupTypesHandler.UpdateExtraSpecs)
	typeRoutes.Delete("/:id/extra-specs/:key", middleware.AdminOnly, groupTypesHandler.DeleteExtraSpec)

	listenAddr := fmt.Sprintf(":%s", cfg.Server.Port)

	logger.Info("server_starting", map[string]interface{}{
		"port":    cfg.Server.Port,
		"address": listenAddr,
	})

	errCh := make(chan error, 1)
	go func() {
		errCh <- app.Listen(listenAddr)
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-quit:
		log.Printf("shutting down server due to signal: %s", sig)
		shutdownDone := make(chan struct{})
		go func() {
			_ = app.Shutdown()
			close(shutdownDone)
		}()
		select {
		case <-shutdownDone:
		case <-time.After(10 * time.Second):
			log.Print("forced shutdown timeout reached")
		}
	case err := <-errCh:
		if err != nil {
			log.Fatalf("server error: %v", err)
		}
	}
}
