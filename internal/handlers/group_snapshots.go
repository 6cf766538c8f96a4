package handlers

import (
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/shareplane/backend/internal/middleware"
	"github.com/shareplane/backend/internal/models"
	"github.com/shareplane/backend/internal/services"
	"github.com/shareplane/backend/pkg/logger"
	"github.com/shareplane/backend/pkg/utils"
	"gorm.io/gorm"
)

type GroupSnapshotsHandler struct {
	DB     *gorm.DB
	Groups *services.GroupService
	Audit  *services.AuditService
}

func NewGroupSnapshotsHandler(db *gorm.DB, groups *services.GroupService, audit *services.AuditService) *GroupSnapshotsHandler {
	return &GroupSnapshotsHandler{DB: db, Groups: groups, Audit: audit}
}

type createGroupSnapshotRequest struct {
	Name         string  `json:"name"`
	Description  *string `json:"description"`
	ShareGroupID string  `json:"shareGroupID"`
}

func (h *GroupSnapshotsHandler) Create(c *fiber.Ctx) error {
	currentUser := middleware.GetCurrentUser(c)
	if currentUser == nil {
		return utils.Error(c, fiber.StatusUnauthorized, "unauthorized")
	}

	var req createGroupSnapshotRequest
	if err := c.BodyParser(&req); err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid request body")
	}

	groupID, err := parseUUID(req.ShareGroupID)
	if err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid share group id")
	}

	group, err := h.Groups.Get(c.UserContext(), groupID)
	if err != nil {
		return serviceError(c, err)
	}
	if !currentUser.IsAdmin() && group.ProjectID != currentUser.ProjectID {
		return utils.Error(c, fiber.StatusNotFound, "share group not found")
	}

	snapshot, err := h.Groups.CreateGroupSnapshot(c.UserContext(), services.CreateGroupSnapshotRequest{
		Name:         strings.TrimSpace(req.Name),
		Description:  req.Description,
		ShareGroupID: groupID,
		UserID:       currentUser.ID,
		ProjectID:    currentUser.ProjectID,
	})
	if err != nil {
		return serviceError(c, err)
	}

	h.Audit.LogAsync(services.AuditEntry{
		UserID:       &currentUser.ID,
		Action:       "group_snapshot.create",
		ResourceType: "group_snapshot",
		ResourceID:   &snapshot.ID,
		Details: map[string]interface{}{
			"name":           snapshot.Name,
			"share_group_id": groupID.String(),
		},
		IPAddress: c.IP(),
	})

	return utils.Success(c, fiber.StatusAccepted, snapshot)
}

func (h *GroupSnapshotsHandler) List(c *fiber.Ctx) error {
	currentUser := middleware.GetCurrentUser(c)
	if currentUser == nil {
		return utils.Error(c, fiber.StatusUnauthorized, "unauthorized")
	}

	opts := services.ListOptions{
		ProjectID:  currentUser.ProjectID,
		Admin:      currentUser.IsAdmin(),
		AllTenants: c.Query("all_tenants") == "1" || strings.EqualFold(c.Query("all_tenants"), "true"),
		Name:       c.Query("name"),
		Status:     models.Status(c.Query("status")),
	}

	snapshots, err := h.Groups.GetAllGroupSnapshots(c.UserContext(), opts)
	if err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed listing group snapshots")
	}

	return utils.Success(c, fiber.StatusOK, snapshots)
}

func (h *GroupSnapshotsHandler) Get(c *fiber.Ctx) error {
	currentUser := middleware.GetCurrentUser(c)
	if currentUser == nil {
		return utils.Error(c, fiber.StatusUnauthorized, "unauthorized")
	}

	snapshot, status := h.loadScopedSnapshot(c, currentUser)
	if snapshot == nil {
		return status
	}

	return utils.Success(c, fiber.StatusOK, snapshot)
}

func (h *GroupSnapshotsHandler) Members(c *fiber.Ctx) error {
	currentUser := middleware.GetCurrentUser(c)
	if currentUser == nil {
		return utils.Error(c, fiber.StatusUnauthorized, "unauthorized")
	}

	snapshot, status := h.loadScopedSnapshot(c, currentUser)
	if snapshot == nil {
		return status
	}

	members, err := h.Groups.GetAllGroupSnapshotMembers(c.UserContext(), snapshot.ID)
	if err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed listing group snapshot members")
	}

	return utils.Success(c, fiber.StatusOK, members)
}

type updateGroupSnapshotRequest struct {
	Name        *string `json:"name"`
	Description *string `json:"description"`
}

func (h *GroupSnapshotsHandler) Update(c *fiber.Ctx) error {
	currentUser := middleware.GetCurrentUser(c)
	if currentUser == nil {
		return utils.Error(c, fiber.StatusUnauthorized, "unauthorized")
	}

	snapshot, status := h.loadScopedSnapshot(c, currentUser)
	if snapshot == nil {
		return status
	}

	body := map[string]interface{}{}
	if err := c.BodyParser(&body); err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid request body")
	}
	for key := range body {
		if key != "name" && key != "description" {
			return utils.Error(c, fiber.StatusBadRequest, "only name and description may be updated")
		}
	}

	var req updateGroupSnapshotRequest
	if err := c.BodyParser(&req); err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid request body")
	}

	updates := map[string]interface{}{}
	if req.Name != nil {
		name := strings.TrimSpace(*req.Name)
		if name == "" {
			return utils.Error(c, fiber.StatusBadRequest, "name cannot be empty")
		}
		updates["name"] = name
	}
	if req.Description != nil {
		updates["description"] = *req.Description
	}

	if len(updates) == 0 {
		return utils.Error(c, fiber.StatusBadRequest, "no valid fields to update")
	}

	updated, err := h.Groups.UpdateGroupSnapshot(c.UserContext(), snapshot, updates)
	if err != nil {
		return serviceError(c, err)
	}

	return utils.Success(c, fiber.StatusOK, updated)
}

func (h *GroupSnapshotsHandler) Delete(c *fiber.Ctx) error {
	currentUser := middleware.GetCurrentUser(c)
	if currentUser == nil {
		return utils.Error(c, fiber.StatusUnauthorized, "unauthorized")
	}

	snapshot, status := h.loadScopedSnapshot(c, currentUser)
	if snapshot == nil {
		return status
	}

	if err := h.Groups.DeleteGroupSnapshot(c.UserContext(), snapshot); err != nil {
		return serviceError(c, err)
	}

	h.Audit.LogAsync(services.AuditEntry{
		UserID:       &currentUser.ID,
		Action:       "group_snapshot.delete",
		ResourceType: "group_snapshot",
		ResourceID:   &snapshot.ID,
		Details: map[string]interface{}{
			"name": snapshot.Name,
		},
		IPAddress: c.IP(),
	})

	return utils.Success(c, fiber.StatusAccepted, fiber.Map{"message": "group snapshot deletion started"})
}

func (h *GroupSnapshotsHandler) AdminAction(c *fiber.Ctx) error {
	currentUser := middleware.GetCurrentUser(c)
	if currentUser == nil {
		return utils.Error(c, fiber.StatusUnauthorized, "unauthorized")
	}

	snapshotID, err := parseUUID(c.Params("id"))
	if err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid group snapshot id")
	}

	snapshot, err := h.Groups.GetGroupSnapshot(c.UserContext(), snapshotID)
	if err != nil {
		return serviceError(c, err)
	}

	var req adminActionRequest
	if err := c.BodyParser(&req); err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid request body")
	}

	switch {
	case req.ResetStatus != nil:
		newStatus := models.Status(strings.TrimSpace(req.ResetStatus.Status))
		if !newStatus.Valid() {
			return utils.Error(c, fiber.StatusBadRequest, "invalid status")
		}
		if err := h.DB.Model(&models.GroupSnapshot{}).
			Where("id = ?", snapshot.ID).
			Update("status", newStatus).Error; err != nil {
			return utils.Error(c, fiber.StatusInternalServerError, "failed resetting status")
		}

		logger.InfoWithUser(currentUser.ID.String(), "group_snapshot_status_reset", map[string]interface{}{
			"group_snapshot_id": snapshot.ID.String(),
			"status":            string(newStatus),
		})
		return utils.Success(c, fiber.StatusOK, fiber.Map{"status": newStatus})

	case req.ForceDelete != nil:
		if err := h.Groups.ForceDeleteGroupSnapshot(c.UserContext(), snapshot); err != nil {
			return serviceError(c, err)
		}

		logger.InfoWithUser(currentUser.ID.String(), "group_snapshot_force_deleted", map[string]interface{}{
			"group_snapshot_id": snapshot.ID.String(),
		})
		return utils.Success(c, fiber.StatusAccepted, fiber.Map{"message": "group snapshot force deleted"})

	default:
		return utils.Error(c, fiber.StatusBadRequest, "unsupported action")
	}
}

func (h *GroupSnapshotsHandler) loadScopedSnapshot(c *fiber.Ctx, currentUser *models.User) (*models.GroupSnapshot, error) {
	snapshotID, err := parseUUID(c.Params("id"))
	if err != nil {
		return nil, utils.Error(c, fiber.StatusBadRequest, "invalid group snapshot id")
	}

	snapshot, err := h.Groups.GetGroupSnapshot(c.UserContext(), snapshotID)
	if err != nil {
		return nil, serviceError(c, err)
	}

	if !currentUser.IsAdmin() && snapshot.ProjectID != currentUser.ProjectID {
		return nil, utils.Error(c, fiber.StatusNotFound, "group snapshot not found")
	}
	return snapshot, nil
}
