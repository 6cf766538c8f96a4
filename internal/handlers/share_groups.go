package handlers

import (
	"errors"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/shareplane/backend/internal/middleware"
	"github.com/shareplane/backend/internal/models"
	"github.com/shareplane/backend/internal/services"
	"github.com/shareplane/backend/pkg/logger"
	"github.com/shareplane/backend/pkg/utils"
	"gorm.io/gorm"
)

type ShareGroupsHandler struct {
	DB         *gorm.DB
	Groups     *services.GroupService
	GroupTypes *services.GroupTypeService
	Audit      *services.AuditService
}

func NewShareGroupsHandler(db *gorm.DB, groups *services.GroupService, groupTypes *services.GroupTypeService, audit *services.AuditService) *ShareGroupsHandler {
	return &ShareGroupsHandler{DB: db, Groups: groups, GroupTypes: groupTypes, Audit: audit}
}

type createShareGroupRequest struct {
	Name                  string   `json:"name"`
	Description           *string  `json:"description"`
	ShareTypes            []string `json:"shareTypes"`
	ShareGroupTypeID      *string  `json:"shareGroupTypeID"`
	ShareNetworkID        *string  `json:"shareNetworkID"`
	SourceGroupSnapshotID *string  `json:"sourceGroupSnapshotID"`
}

func (h *ShareGroupsHandler) Create(c *fiber.Ctx) error {
	currentUser := middleware.GetCurrentUser(c)
	if currentUser == nil {
		return utils.Error(c, fiber.StatusUnauthorized, "unauthorized")
	}

	var req createShareGroupRequest
	if err := c.BodyParser(&req); err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid request body")
	}

	if len(req.ShareTypes) > 0 && req.SourceGroupSnapshotID != nil {
		return utils.Error(c, fiber.StatusBadRequest,
			"cannot supply both shareTypes and sourceGroupSnapshotID")
	}
	if req.ShareNetworkID != nil && req.SourceGroupSnapshotID != nil {
		return utils.Error(c, fiber.StatusBadRequest,
			"cannot supply both shareNetworkID and sourceGroupSnapshotID")
	}

	shareTypeIDs := make([]uuid.UUID, 0, len(req.ShareTypes))
	for _, raw := range req.ShareTypes {
		id, err := parseUUID(raw)
		if err != nil {
			return utils.Error(c, fiber.StatusBadRequest, "invalid share type id")
		}
		shareTypeIDs = append(shareTypeIDs, id)
	}

	var sourceGroupSnapshotID *uuid.UUID
	if req.SourceGroupSnapshotID != nil {
		id, err := parseUUID(*req.SourceGroupSnapshotID)
		if err != nil {
			return utils.Error(c, fiber.StatusBadRequest, "invalid source group snapshot id")
		}
		sourceGroupSnapshotID = &id
	}

	var shareNetworkID *uuid.UUID
	if req.ShareNetworkID != nil {
		id, err := parseUUID(*req.ShareNetworkID)
		if err != nil {
			return utils.Error(c, fiber.StatusBadRequest, "invalid share network id")
		}
		shareNetworkID = &id
	}

	var groupTypeID uuid.UUID
	if req.ShareGroupTypeID != nil {
		id, err := parseUUID(*req.ShareGroupTypeID)
		if err != nil {
			return utils.Error(c, fiber.StatusBadRequest, "invalid share group type id")
		}
		groupTypeID = id
	} else {
		defaultType, err := h.GroupTypes.GetDefaultGroupType(c.UserContext())
		if err != nil {
			return utils.Error(c, fiber.StatusInternalServerError, "failed resolving default share group type")
		}
		if defaultType == nil {
			return utils.Error(c, fiber.StatusBadRequest,
				"a share group type must be provided when no default share group type is configured")
		}
		groupTypeID = defaultType.ID
	}

	group, err := h.Groups.CreateGroup(c.UserContext(), services.CreateGroupRequest{
		Name:                  strings.TrimSpace(req.Name),
		Description:           req.Description,
		ShareTypeIDs:          shareTypeIDs,
		SourceGroupSnapshotID: sourceGroupSnapshotID,
		ShareNetworkID:        shareNetworkID,
		ShareGroupTypeID:      groupTypeID,
		UserID:                currentUser.ID,
		ProjectID:             currentUser.ProjectID,
	})
	if err != nil {
		// An unknown source snapshot is a caller mistake, not a 404.
		var notFound *services.NotFoundError
		if errors.As(err, &notFound) && notFound.Resource == "share group snapshot" {
			return utils.Error(c, fiber.StatusBadRequest, notFound.Error())
		}
		return serviceError(c, err)
	}

	h.Audit.LogAsync(services.AuditEntry{
		UserID:       &currentUser.ID,
		Action:       "share_group.create",
		ResourceType: "share_group",
		ResourceID:   &group.ID,
		Details: map[string]interface{}{
			"name":          group.Name,
			"group_type_id": group.ShareGroupTypeID.String(),
		},
		IPAddress: c.IP(),
	})

	return utils.Success(c, fiber.StatusAccepted, group)
}

func (h *ShareGroupsHandler) List(c *fiber.Ctx) error {
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
	if raw := c.Query("share_group_type_id"); raw != "" {
		id, err := parseUUID(raw)
		if err != nil {
			return utils.Error(c, fiber.StatusBadRequest, "invalid share group type id")
		}
		opts.GroupTypeID = &id
	}

	groups, err := h.Groups.GetAll(c.UserContext(), opts)
	if err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed listing share groups")
	}

	return utils.Success(c, fiber.StatusOK, groups)
}

func (h *ShareGroupsHandler) Get(c *fiber.Ctx) error {
	currentUser := middleware.GetCurrentUser(c)
	if currentUser == nil {
		return utils.Error(c, fiber.StatusUnauthorized, "unauthorized")
	}

	group, status := h.loadScopedGroup(c, currentUser)
	if group == nil {
		return status
	}

	return utils.Success(c, fiber.StatusOK, group)
}

type updateShareGroupRequest struct {
	Name        *string `json:"name"`
	Description *string `json:"description"`
}

func (h *ShareGroupsHandler) Update(c *fiber.Ctx) error {
	currentUser := middleware.GetCurrentUser(c)
	if currentUser == nil {
		return utils.Error(c, fiber.StatusUnauthorized, "unauthorized")
	}

	group, status := h.loadScopedGroup(c, currentUser)
	if group == nil {
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

	var req updateShareGroupRequest
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

	updated, err := h.Groups.UpdateGroup(c.UserContext(), group, updates)
	if err != nil {
		return serviceError(c, err)
	}

	return utils.Success(c, fiber.StatusOK, updated)
}

func (h *ShareGroupsHandler) Delete(c *fiber.Ctx) error {
	currentUser := middleware.GetCurrentUser(c)
	if currentUser == nil {
		return utils.Error(c, fiber.StatusUnauthorized, "unauthorized")
	}

	group, status := h.loadScopedGroup(c, currentUser)
	if group == nil {
		return status
	}

	if err := h.Groups.DeleteGroup(c.UserContext(), group); err != nil {
		return serviceError(c, err)
	}

	h.Audit.LogAsync(services.AuditEntry{
		UserID:       &currentUser.ID,
		Action:       "share_group.delete",
		ResourceType: "share_group",
		ResourceID:   &group.ID,
		Details: map[string]interface{}{
			"name": group.Name,
		},
		IPAddress: c.IP(),
	})

	return utils.Success(c, fiber.StatusAccepted, fiber.Map{"message": "share group deletion started"})
}

type adminActionRequest struct {
	ResetStatus *struct {
		Status string `json:"status"`
	} `json:"reset_status"`
	ForceDelete *struct{} `json:"force_delete"`
}

// AdminAction covers the reset-status and force-delete escapes reserved
// for operators.
func (h *ShareGroupsHandler) AdminAction(c *fiber.Ctx) error {
	currentUser := middleware.GetCurrentUser(c)
	if currentUser == nil {
		return utils.Error(c, fiber.StatusUnauthorized, "unauthorized")
	}

	groupID, err := parseUUID(c.Params("id"))
	if err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid share group id")
	}

	group, err := h.Groups.Get(c.UserContext(), groupID)
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
		if err := h.DB.Model(&models.ShareGroup{}).
			Where("id = ?", group.ID).
			Update("status", newStatus).Error; err != nil {
			return utils.Error(c, fiber.StatusInternalServerError, "failed resetting status")
		}

		logger.InfoWithUser(currentUser.ID.String(), "share_group_status_reset", map[string]interface{}{
			"share_group_id": group.ID.String(),
			"status":         string(newStatus),
		})
		return utils.Success(c, fiber.StatusOK, fiber.Map{"status": newStatus})

	case req.ForceDelete != nil:
		if err := h.Groups.ForceDeleteGroup(c.UserContext(), group); err != nil {
			return serviceError(c, err)
		}

		logger.InfoWithUser(currentUser.ID.String(), "share_group_force_deleted", map[string]interface{}{
			"share_group_id": group.ID.String(),
		})
		return utils.Success(c, fiber.StatusAccepted, fiber.Map{"message": "share group force deleted"})

	default:
		return utils.Error(c, fiber.StatusBadRequest, "unsupported action")
	}
}

// loadScopedGroup resolves the :id param within the caller's project.
// Admins see every project. On failure the fiber error response is
// returned as the second value and the group is nil.
func (h *ShareGroupsHandler) loadScopedGroup(c *fiber.Ctx, currentUser *models.User) (*models.ShareGroup, error) {
	groupID, err := parseUUID(c.Params("id"))
	if err != nil {
		return nil, utils.Error(c, fiber.StatusBadRequest, "invalid share group id")
	}

	group, err := h.Groups.Get(c.UserContext(), groupID)
	if err != nil {
		return nil, serviceError(c, err)
	}

	if !currentUser.IsAdmin() && group.ProjectID != currentUser.ProjectID {
		return nil, utils.Error(c, fiber.StatusNotFound, "share group not found")
	}
	return group, nil
}
