package handlers

import (
	"fmt"
	"regexp"
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

type GroupTypesHandler struct {
	DB         *gorm.DB
	GroupTypes *services.GroupTypeService
	Audit      *services.AuditService
}

func NewGroupTypesHandler(db *gorm.DB, groupTypes *services.GroupTypeService, audit *services.AuditService) *GroupTypesHandler {
	return &GroupTypesHandler{DB: db, GroupTypes: groupTypes, Audit: audit}
}

var extraSpecKeyPattern = regexp.MustCompile(`^[a-zA-Z0-9-_:. ]+$`)

// validateExtraSpecs enforces the key charset and the allowed value
// shapes: strings of 1-255 characters, booleans, or one more level of
// the same.
func validateExtraSpecs(specs map[string]interface{}, nested bool) error {
	for key, value := range specs {
		if len(key) == 0 || len(key) > 255 {
			return fmt.Errorf("extra spec key %q must be between 1 and 255 characters", key)
		}
		if !extraSpecKeyPattern.MatchString(key) {
			return fmt.Errorf("extra spec key %q contains invalid characters", key)
		}

		switch v := value.(type) {
		case string:
			if len(v) == 0 || len(v) > 255 {
				return fmt.Errorf("extra spec value for %q must be between 1 and 255 characters", key)
			}
		case bool:
		case map[string]interface{}:
			if nested {
				return fmt.Errorf("extra spec %q nests too deeply", key)
			}
			if err := validateExtraSpecs(v, true); err != nil {
				return err
			}
		default:
			return fmt.Errorf("extra spec value for %q must be a string, boolean or map", key)
		}
	}
	return nil
}

type createGroupTypeRequest struct {
	Name       string                 `json:"name"`
	ShareTypes []string               `json:"shareTypes"`
	ExtraSpecs map[string]interface{} `json:"extraSpecs"`
	IsPublic   *bool                  `json:"isPublic"`
	Projects   []string               `json:"projects"`
}

func (h *GroupTypesHandler) Create(c *fiber.Ctx) error {
	currentUser := middleware.GetCurrentUser(c)
	if currentUser == nil {
		return utils.Error(c, fiber.StatusUnauthorized, "unauthorized")
	}

	var req createGroupTypeRequest
	if err := c.BodyParser(&req); err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid request body")
	}

	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" {
		return utils.Error(c, fiber.StatusBadRequest, "name is required")
	}
	if len(req.ShareTypes) == 0 {
		return utils.Error(c, fiber.StatusBadRequest, "at least one share type is required")
	}
	if req.ExtraSpecs != nil {
		if err := validateExtraSpecs(req.ExtraSpecs, false); err != nil {
			return utils.Error(c, fiber.StatusBadRequest, err.Error())
		}
	}

	shareTypeIDs := make([]uuid.UUID, 0, len(req.ShareTypes))
	for _, raw := range req.ShareTypes {
		id, err := parseUUID(raw)
		if err != nil {
			return utils.Error(c, fiber.StatusBadRequest, "invalid share type id")
		}
		shareTypeIDs = append(shareTypeIDs, id)
	}

	projects := make([]uuid.UUID, 0, len(req.Projects))
	for _, raw := range req.Projects {
		id, err := parseUUID(raw)
		if err != nil {
			return utils.Error(c, fiber.StatusBadRequest, "invalid project id")
		}
		projects = append(projects, id)
	}

	isPublic := true
	if req.IsPublic != nil {
		isPublic = *req.IsPublic
	}

	groupType, err := h.GroupTypes.Create(c.UserContext(), req.Name, shareTypeIDs, req.ExtraSpecs, isPublic, projects)
	if err != nil {
		return serviceError(c, err)
	}

	h.Audit.LogAsync(services.AuditEntry{
		UserID:       &currentUser.ID,
		Action:       "group_type.create",
		ResourceType: "group_type",
		ResourceID:   &groupType.ID,
		Details: map[string]interface{}{
			"name":      groupType.Name,
			"is_public": groupType.IsPublic,
		},
		IPAddress: c.IP(),
	})

	return utils.Success(c, fiber.StatusCreated, groupType)
}

func (h *GroupTypesHandler) List(c *fiber.Ctx) error {
	currentUser := middleware.GetCurrentUser(c)
	if currentUser == nil {
		return utils.Error(c, fiber.StatusUnauthorized, "unauthorized")
	}

	filters := services.GroupTypeFilters{}

	// Non-admins only ever see public types; admins choose via
	// is_public=true|false|all (default true).
	visible := true
	filters.IsPublic = &visible

	if currentUser.IsAdmin() {
		switch strings.ToLower(c.Query("is_public", "true")) {
		case "all":
			filters.IsPublic = nil
		case "true":
		case "false":
			hidden := false
			filters.IsPublic = &hidden
		default:
			return utils.Error(c, fiber.StatusBadRequest, "is_public must be true, false or all")
		}
	}

	types, err := h.GroupTypes.GetAllTypes(c.UserContext(), filters)
	if err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed listing share group types")
	}

	return utils.Success(c, fiber.StatusOK, types)
}

func (h *GroupTypesHandler) Get(c *fiber.Ctx) error {
	groupType, status := h.loadGroupType(c)
	if groupType == nil {
		return status
	}
	return utils.Success(c, fiber.StatusOK, groupType)
}

func (h *GroupTypesHandler) Default(c *fiber.Ctx) error {
	groupType, err := h.GroupTypes.GetDefaultGroupType(c.UserContext())
	if err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed resolving default share group type")
	}
	if groupType == nil {
		return utils.Error(c, fiber.StatusNotFound, "no default share group type configured")
	}
	return utils.Success(c, fiber.StatusOK, groupType)
}

func (h *GroupTypesHandler) Delete(c *fiber.Ctx) error {
	currentUser := middleware.GetCurrentUser(c)
	if currentUser == nil {
		return utils.Error(c, fiber.StatusUnauthorized, "unauthorized")
	}

	groupType, status := h.loadGroupType(c)
	if groupType == nil {
		return status
	}

	if err := h.GroupTypes.Destroy(c.UserContext(), groupType.ID); err != nil {
		return serviceError(c, err)
	}

	h.Audit.LogAsync(services.AuditEntry{
		UserID:       &currentUser.ID,
		Action:       "group_type.delete",
		ResourceType: "group_type",
		ResourceID:   &groupType.ID,
		Details: map[string]interface{}{
			"name": groupType.Name,
		},
		IPAddress: c.IP(),
	})

	logger.InfoWithUser(currentUser.ID.String(), "group_type_deleted", map[string]interface{}{
		"group_type_id": groupType.ID.String(),
		"name":          groupType.Name,
	})

	return utils.Success(c, fiber.StatusOK, fiber.Map{"message": "share group type deleted"})
}

// ListAccess is only meaningful for private types; asking for the
// access list of a public type is a 404.
func (h *GroupTypesHandler) ListAccess(c *fiber.Ctx) error {
	groupType, status := h.loadGroupType(c)
	if groupType == nil {
		return status
	}

	if groupType.IsPublic {
		return utils.Error(c, fiber.StatusNotFound, "public share group types have no access list")
	}

	return utils.Success(c, fiber.StatusOK, fiber.Map{
		"projects": groupType.ProjectIDs(),
	})
}

type groupTypeAccessRequest struct {
	ProjectID string `json:"projectID"`
}

func (h *GroupTypesHandler) AddAccess(c *fiber.Ctx) error {
	groupType, status := h.loadGroupType(c)
	if groupType == nil {
		return status
	}

	if groupType.IsPublic {
		return utils.Error(c, fiber.StatusConflict, "cannot manage access on a public share group type")
	}

	var req groupTypeAccessRequest
	if err := c.BodyParser(&req); err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid request body")
	}

	projectID, err := parseUUID(req.ProjectID)
	if err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid project id")
	}

	if err := h.GroupTypes.AddGroupTypeAccess(c.UserContext(), groupType.ID, projectID); err != nil {
		return serviceError(c, err)
	}

	return utils.Success(c, fiber.StatusCreated, fiber.Map{"message": "project access added"})
}

func (h *GroupTypesHandler) RemoveAccess(c *fiber.Ctx) error {
	groupType, status := h.loadGroupType(c)
	if groupType == nil {
		return status
	}

	if groupType.IsPublic {
		return utils.Error(c, fiber.StatusConflict, "cannot manage access on a public share group type")
	}

	projectID, err := parseUUID(c.Params("projectId"))
	if err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid project id")
	}

	if err := h.GroupTypes.RemoveGroupTypeAccess(c.UserContext(), groupType.ID, projectID); err != nil {
		return serviceError(c, err)
	}

	return utils.Success(c, fiber.StatusOK, fiber.Map{"message": "project access removed"})
}

func (h *GroupTypesHandler) ListExtraSpecs(c *fiber.Ctx) error {
	groupType, status := h.loadGroupType(c)
	if groupType == nil {
		return status
	}
	return utils.Success(c, fiber.StatusOK, fiber.Map{"extraSpecs": groupType.ExtraSpecs})
}

type updateExtraSpecsRequest struct {
	ExtraSpecs map[string]interface{} `json:"extraSpecs"`
}

func (h *GroupTypesHandler) UpdateExtraSpecs(c *fiber.Ctx) error {
	currentUser := middleware.GetCurrentUser(c)
	if currentUser == nil {
		return utils.Error(c, fiber.StatusUnauthorized, "unauthorized")
	}

	groupType, status := h.loadGroupType(c)
	if groupType == nil {
		return status
	}

	var req updateExtraSpecsRequest
	if err := c.BodyParser(&req); err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid request body")
	}
	if len(req.ExtraSpecs) == 0 {
		return utils.Error(c, fiber.StatusBadRequest, "extraSpecs is required")
	}
	if err := validateExtraSpecs(req.ExtraSpecs, false); err != nil {
		return utils.Error(c, fiber.StatusBadRequest, err.Error())
	}

	updated, err := h.GroupTypes.UpdateExtraSpecs(c.UserContext(), groupType.ID, req.ExtraSpecs)
	if err != nil {
		return serviceError(c, err)
	}

	logger.InfoWithUser(currentUser.ID.String(), "group_type_extra_specs_updated", map[string]interface{}{
		"group_type_id": groupType.ID.String(),
		"keys":          len(req.ExtraSpecs),
	})

	return utils.Success(c, fiber.StatusOK, fiber.Map{"extraSpecs": updated.ExtraSpecs})
}

func (h *GroupTypesHandler) DeleteExtraSpec(c *fiber.Ctx) error {
	groupType, status := h.loadGroupType(c)
	if groupType == nil {
		return status
	}

	key := c.Params("key")
	if key == "" {
		return utils.Error(c, fiber.StatusBadRequest, "extra spec key is required")
	}

	if err := h.GroupTypes.DeleteExtraSpec(c.UserContext(), groupType.ID, key); err != nil {
		return serviceError(c, err)
	}

	return utils.Success(c, fiber.StatusOK, fiber.Map{"message": "extra spec deleted"})
}

func (h *GroupTypesHandler) loadGroupType(c *fiber.Ctx) (*models.ShareGroupType, error) {
	typeID, err := parseUUID(c.Params("id"))
	if err != nil {
		return nil, utils.Error(c, fiber.StatusBadRequest, "invalid share group type id")
	}

	groupType, err := h.GroupTypes.GetGroupType(c.UserContext(), typeID)
	if err != nil {
		return nil, serviceError(c, err)
	}
	return groupType, nil
}
