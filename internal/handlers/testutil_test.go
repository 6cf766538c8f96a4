package handlers

import (
	"bytes"
	"context"
	"database/sql/driver"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	gosqlite "github.com/glebarez/go-sqlite"
	"github.com/glebarez/sqlite"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/google/uuid"
	"github.com/shareplane/backend/internal/config"
	"github.com/shareplane/backend/internal/database"
	"github.com/shareplane/backend/internal/dispatch"
	"github.com/shareplane/backend/internal/middleware"
	"github.com/shareplane/backend/internal/models"
	"github.com/shareplane/backend/internal/services"
	"github.com/shareplane/backend/pkg/logger"
	"github.com/shareplane/backend/pkg/utils"
	"gorm.io/gorm"
)

type testEnv struct {
	app        *fiber.App
	db         *gorm.DB
	dispatcher *fakeDispatcher
}

// fakeDispatcher records every dispatched command so tests can assert
// on what the control plane would have cast to kafka.
type fakeDispatcher struct {
	mu        sync.Mutex
	scheduled []dispatch.RequestSpec
	backend   []string
}

func (f *fakeDispatcher) CreateShareGroup(_ context.Context, spec dispatch.RequestSpec) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.scheduled = append(f.scheduled, spec)
	return nil
}

func (f *fakeDispatcher) record(action string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.backend = append(f.backend, action)
}

func (f *fakeDispatcher) backendActions() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.backend...)
}

func (f *fakeDispatcher) scheduledSpecs() []dispatch.RequestSpec {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]dispatch.RequestSpec(nil), f.scheduled...)
}

type fakeBackend struct {
	d *fakeDispatcher
}

func (b *fakeBackend) CreateShareGroup(_ context.Context, _ *models.ShareGroup, _ string) error {
	b.d.record("share_group.create")
	return nil
}

func (b *fakeBackend) DeleteShareGroup(_ context.Context, _ *models.ShareGroup) error {
	b.d.record("share_group.delete")
	return nil
}

func (b *fakeBackend) CreateGroupSnapshot(_ context.Context, _ *models.GroupSnapshot, _ string) error {
	b.d.record("group_snapshot.create")
	return nil
}

func (b *fakeBackend) DeleteGroupSnapshot(_ context.Context, _ *models.GroupSnapshot, _ string) error {
	b.d.record("group_snapshot.delete")
	return nil
}

func (b *fakeBackend) CreateShare(_ context.Context, _ *models.Share, _ string) error {
	b.d.record("share.create")
	return nil
}

var testSetupOnce sync.Once

func setupTestEnv(t *testing.T) *testEnv {
	t.Helper()

	testSetupOnce.Do(func() {
		gosqlite.MustRegisterScalarFunction("NOW", 0, func(ctx *gosqlite.FunctionContext, args []driver.Value) (driver.Value, error) {
			return time.Now().UTC(), nil
		})
		logger.Init()
		utils.ConfigureJWT("test-secret", 24)
	})

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	if err != nil {
		t.Fatalf("failed opening in-memory sqlite database: %v", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("failed getting sql.DB from gorm: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)

	t.Cleanup(func() {
		_ = sqlDB.Close()
	})

	if err := database.Migrate(db); err != nil {
		t.Fatalf("failed automigrating models: %v", err)
	}

	fake := &fakeDispatcher{}
	backend := &fakeBackend{d: fake}

	auditService := services.NewAuditService(db, nil)
	groupTypeService := services.NewGroupTypeService(db, config.RegistryConfig{})
	provisionService := services.NewProvisionService(db, backend)
	groupService := services.NewGroupService(db, fake, backend, provisionService)

	authHandler := NewAuthHandler(db, auditService)
	shareGroupsHandler := NewShareGroupsHandler(db, groupService, groupTypeService, auditService)
	groupSnapshotsHandler := NewGroupSnapshotsHandler(db, groupService, auditService)
	groupTypesHandler := NewGroupTypesHandler(db, groupTypeService, auditService)
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

	return &testEnv{app: app, db: db, dispatcher: fake}
}

func createTestUser(t *testing.T, db *gorm.DB, email, password string, role models.UserRole) (*models.User, string) {
	t.Helper()

	hash, err := utils.HashPassword(password)
	if err != nil {
		t.Fatalf("failed hashing password: %v", err)
	}

	user := &models.User{
		Email:        email,
		PasswordHash: hash,
		FirstName:    "Test",
		LastName:     "User",
		Role:         role,
		ProjectID:    uuid.New(),
	}
	if err := db.Create(user).Error; err != nil {
		t.Fatalf("failed creating test user: %v", err)
	}

	token, err := utils.GenerateToken(user)
	if err != nil {
		t.Fatalf("failed generating auth token: %v", err)
	}

	return user, token
}

func createTestShareType(t *testing.T, db *gorm.DB, name string, dhss bool) *models.ShareType {
	t.Helper()

	shareType := &models.ShareType{
		Name:                      name,
		DriverHandlesShareServers: dhss,
		IsPublic:                  true,
	}
	if err := db.Create(shareType).Error; err != nil {
		t.Fatalf("failed creating share type: %v", err)
	}
	return shareType
}

func createTestGroupType(t *testing.T, db *gorm.DB, name string, shareTypes ...*models.ShareType) *models.ShareGroupType {
	t.Helper()

	groupType := &models.ShareGroupType{
		Name:     name,
		IsPublic: true,
	}
	if err := db.Create(groupType).Error; err != nil {
		t.Fatalf("failed creating share group type: %v", err)
	}
	for _, st := range shareTypes {
		join := &models.ShareGroupTypeShareType{
			ShareGroupTypeID: groupType.ID,
			ShareTypeID:      st.ID,
		}
		if err := db.Create(join).Error; err != nil {
			t.Fatalf("failed linking share type to group type: %v", err)
		}
	}
	return groupType
}

func authHeaders(token string) map[string]string {
	return map[string]string{"Authorization": "Bearer " + token}
}

func performRequest(t *testing.T, app *fiber.App, method, path string, body io.Reader, headers map[string]string) *http.Response {
	t.Helper()

	req := httptest.NewRequest(method, path, body)
	for key, value := range headers {
		req.Header.Set(key, value)
	}

	resp, err := app.Test(req, int((10 * time.Second).Milliseconds()))
	if err != nil {
		t.Fatalf("request %s %s failed: %v", method, path, err)
	}

	return resp
}

func performJSONRequest(t *testing.T, app *fiber.App, method, path string, payload any, headers map[string]string) *http.Response {
	t.Helper()

	var body io.Reader
	if payload != nil {
		encoded, err := json.Marshal(payload)
		if err != nil {
			t.Fatalf("failed to marshal payload: %v", err)
		}
		body = bytes.NewReader(encoded)
	}

	requestHeaders := map[string]string{}
	for key, value := range headers {
		requestHeaders[key] = value
	}
	if payload != nil {
		requestHeaders["Content-Type"] = "application/json"
	}

	return performRequest(t, app, method, path, body, requestHeaders)
}

func decodeJSONMap(t *testing.T, resp *http.Response) map[string]any {
	t.Helper()
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("failed reading response body: %v", err)
	}

	var payload map[string]any
	if err := json.Unmarshal(raw, &payload); err != nil {
		t.Fatalf("failed decoding JSON response: %v body=%q", err, string(raw))
	}

	return payload
}

func assertStatus(t *testing.T, resp *http.Response, expected int) {
	t.Helper()
	if resp.StatusCode != expected {
		t.Fatalf("expected status %d, got %d", expected, resp.StatusCode)
	}
}

func assertEnvelopeError(t *testing.T, body map[string]any, expected string) {
	t.Helper()
	if success, _ := body["success"].(bool); success {
		t.Fatalf("expected success=false, got %+v", body)
	}
	if got, _ := body["error"].(string); got != expected {
		t.Fatalf("expected error %q, got %q", expected, got)
	}
}
