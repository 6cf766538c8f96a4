package services

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"regexp"
	"strings"

	"github.com/google/uuid"
	"github.com/shareplane/backend/internal/config"
	"github.com/shareplane/backend/internal/models"
	"github.com/shareplane/backend/pkg/logger"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// GroupTypeService manages the registry of named group-type policies:
// which share types a group may mix, public/private visibility with
// per-project grants, and typed extra-spec metadata.
type GroupTypeService struct {
	DB  *gorm.DB
	cfg config.RegistryConfig
}

func NewGroupTypeService(db *gorm.DB, cfg config.RegistryConfig) *GroupTypeService {
	return &GroupTypeService{DB: db, cfg: cfg}
}

// GroupTypeFilters narrows GetAllTypes results. A nil IsPublic means
// "both public and private". ExtraSpecs requires every listed key/value
// pair to appear identically in the candidate's extra specs.
type GroupTypeFilters struct {
	IsPublic   *bool
	ExtraSpecs models.ExtraSpecs
}

func (s *GroupTypeService) Create(ctx context.Context, name string, shareTypeIDs []uuid.UUID, extraSpecs models.ExtraSpecs, isPublic bool, projects []uuid.UUID) (*models.ShareGroupType, error) {
	if extraSpecs == nil {
		extraSpecs = models.ExtraSpecs{}
	}

	groupType := models.ShareGroupType{
		Name:       name,
		IsPublic:   isPublic,
		ExtraSpecs: extraSpecs,
	}

	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&groupType).Error; err != nil {
			return err
		}
		for _, shareTypeID := range shareTypeIDs {
			join := models.ShareGroupTypeShareType{
				ShareGroupTypeID: groupType.ID,
				ShareTypeID:      shareTypeID,
			}
			if err := tx.Create(&join).Error; err != nil {
				return err
			}
		}
		for _, projectID := range projects {
			access := models.ShareGroupTypeProjectAccess{
				ShareGroupTypeID: groupType.ID,
				ProjectID:        projectID,
			}
			if err := tx.Create(&access).Error; err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		logger.Error("group_type_create_failed", err, map[string]interface{}{
			"name": name,
		})
		return nil, &GroupTypeCreateFailedError{Name: name, Err: err}
	}

	return s.GetGroupType(ctx, groupType.ID)
}

func (s *GroupTypeService) Destroy(ctx context.Context, id uuid.UUID) error {
	if id == uuid.Nil {
		return &InvalidShareGroupTypeError{Reason: "id is required"}
	}

	groupType, err := s.GetGroupType(ctx, id)
	if err != nil {
		return err
	}

	var refs int64
	if err := s.DB.WithContext(ctx).
		Model(&models.ShareGroup{}).
		Where("share_group_type_id = ?", id).
		Count(&refs).Error; err != nil {
		return err
	}
	if refs > 0 {
		return &GroupTypeInUseError{ID: id}
	}

	return s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("share_group_type_id = ?", id).Delete(&models.ShareGroupTypeShareType{}).Error; err != nil {
			return err
		}
		if err := tx.Where("share_group_type_id = ?", id).Delete(&models.ShareGroupTypeProjectAccess{}).Error; err != nil {
			return err
		}
		return tx.Delete(&models.ShareGroupType{}, "id = ?", groupType.ID).Error
	})
}

func (s *GroupTypeService) GetGroupType(ctx context.Context, id uuid.UUID) (*models.ShareGroupType, error) {
	if id == uuid.Nil {
		return nil, &InvalidShareGroupTypeError{Reason: "id is required"}
	}

	var groupType models.ShareGroupType
	err := s.DB.WithContext(ctx).
		Preload("ShareTypes").
		Preload("Projects").
		First(&groupType, "id = ?", id).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, &NotFoundError{Resource: "share group type", ID: id.String()}
		}
		return nil, err
	}
	return &groupType, nil
}

func (s *GroupTypeService) GetGroupTypeByName(ctx context.Context, name string) (*models.ShareGroupType, error) {
	if name == "" {
		return nil, &InvalidShareGroupTypeError{Reason: "name is required"}
	}

	var groupType models.ShareGroupType
	err := s.DB.WithContext(ctx).
		Preload("ShareTypes").
		Preload("Projects").
		First(&groupType, "name = ?", name).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, &NotFoundError{Resource: "share group type", ID: name}
		}
		return nil, err
	}
	return &groupType, nil
}

// GetAllTypes returns non-deleted group types keyed by name, filtered
// by visibility and extra-spec containment.
func (s *GroupTypeService) GetAllTypes(ctx context.Context, filters GroupTypeFilters) (map[string]*models.ShareGroupType, error) {
	query := s.DB.WithContext(ctx).
		Preload("ShareTypes").
		Preload("Projects")

	if filters.IsPublic != nil {
		query = query.Where("is_public = ?", *filters.IsPublic)
	}

	var groupTypes []models.ShareGroupType
	if err := query.Find(&groupTypes).Error; err != nil {
		return nil, err
	}

	result := make(map[string]*models.ShareGroupType, len(groupTypes))
	for i := range groupTypes {
		groupType := &groupTypes[i]
		if len(filters.ExtraSpecs) > 0 && !extraSpecsMatch(groupType.ExtraSpecs, filters.ExtraSpecs) {
			continue
		}
		result[groupType.Name] = groupType
	}
	return result, nil
}

func extraSpecsMatch(candidate, wanted models.ExtraSpecs) bool {
	for key, value := range wanted {
		actual, ok := candidate[key]
		if !ok || !reflect.DeepEqual(actual, value) {
			return false
		}
	}
	return true
}

// GetDefaultGroupType resolves the configured default type name. A
// missing configuration or a stale name yields no type and no error.
func (s *GroupTypeService) GetDefaultGroupType(ctx context.Context) (*models.ShareGroupType, error) {
	name := s.cfg.DefaultGroupType
	if name == "" {
		return nil, nil
	}

	groupType, err := s.GetGroupTypeByName(ctx, name)
	if err != nil {
		var notFound *NotFoundError
		if errors.As(err, &notFound) {
			logger.Warn("default_group_type_missing", map[string]interface{}{
				"name": name,
			})
			return nil, nil
		}
		return nil, err
	}
	return groupType, nil
}

func (s *GroupTypeService) AddGroupTypeAccess(ctx context.Context, groupTypeID, projectID uuid.UUID) error {
	if groupTypeID == uuid.Nil {
		return &InvalidShareGroupTypeError{Reason: "group type id is required"}
	}

	var existing int64
	err := s.DB.WithContext(ctx).
		Model(&models.ShareGroupTypeProjectAccess{}).
		Where("share_group_type_id = ? AND project_id = ?", groupTypeID, projectID).
		Count(&existing).Error
	if err != nil {
		return err
	}
	if existing > 0 {
		return &GroupTypeAccessExistsError{TypeID: groupTypeID, ProjectID: projectID}
	}

	access := models.ShareGroupTypeProjectAccess{
		ShareGroupTypeID: groupTypeID,
		ProjectID:        projectID,
	}
	if err := s.DB.WithContext(ctx).Create(&access).Error; err != nil {
		// A racing grant can still trip the unique index.
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return &GroupTypeAccessExistsError{TypeID: groupTypeID, ProjectID: projectID}
		}
		return err
	}
	return nil
}

func (s *GroupTypeService) RemoveGroupTypeAccess(ctx context.Context, groupTypeID, projectID uuid.UUID) error {
	if groupTypeID == uuid.Nil {
		return &InvalidShareGroupTypeError{Reason: "group type id is required"}
	}

	result := s.DB.WithContext(ctx).
		Where("share_group_type_id = ? AND project_id = ?", groupTypeID, projectID).
		Delete(&models.ShareGroupTypeProjectAccess{})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return &GroupTypeAccessNotFoundError{TypeID: groupTypeID, ProjectID: projectID}
	}
	return nil
}

// ExtraSpecsDiff holds the key-wise comparison of two extra-spec maps.
// Each entry is the pair (value in first type, value in second type)
// with nil for absence.
type ExtraSpecsDiff map[string][2]interface{}

// GroupTypesDiff compares two group types' extra specs. Equal is false
// if any key is missing from either side or the values differ.
func (s *GroupTypeService) GroupTypesDiff(ctx context.Context, id1, id2 uuid.UUID) (ExtraSpecsDiff, bool, error) {
	type1, err := s.GetGroupType(ctx, id1)
	if err != nil {
		return nil, false, err
	}
	type2, err := s.GetGroupType(ctx, id2)
	if err != nil {
		return nil, false, err
	}

	diff, equal := extraSpecsDiff(type1.ExtraSpecs, type2.ExtraSpecs)
	return diff, equal, nil
}

func extraSpecsDiff(specs1, specs2 models.ExtraSpecs) (ExtraSpecsDiff, bool) {
	diff := ExtraSpecsDiff{}
	equal := true

	for key, value := range specs1 {
		other, ok := specs2[key]
		diff[key] = [2]interface{}{value, other}
		if !ok || !reflect.DeepEqual(value, other) {
			equal = false
		}
	}
	for key, value := range specs2 {
		other, ok := specs1[key]
		diff[key] = [2]interface{}{other, value}
		if !ok || !reflect.DeepEqual(value, other) {
			equal = false
		}
	}
	return diff, equal
}

// UpdateExtraSpecs creates or overwrites the given extra-spec keys on
// the group type.
func (s *GroupTypeService) UpdateExtraSpecs(ctx context.Context, id uuid.UUID, specs models.ExtraSpecs) (*models.ShareGroupType, error) {
	groupType, err := s.GetGroupType(ctx, id)
	if err != nil {
		return nil, err
	}

	if groupType.ExtraSpecs == nil {
		groupType.ExtraSpecs = models.ExtraSpecs{}
	}
	for key, value := range specs {
		groupType.ExtraSpecs[key] = value
	}

	// Save through the loaded record so the extra_specs serializer
	// runs; a raw column Update hands the driver the bare map.
	if err := s.DB.WithContext(ctx).Omit(clause.Associations).Save(groupType).Error; err != nil {
		return nil, err
	}
	return groupType, nil
}

// DeleteExtraSpec removes one extra-spec key from the group type.
func (s *GroupTypeService) DeleteExtraSpec(ctx context.Context, id uuid.UUID, key string) error {
	groupType, err := s.GetGroupType(ctx, id)
	if err != nil {
		return err
	}

	if _, ok := groupType.ExtraSpecs[key]; !ok {
		return &NotFoundError{Resource: "extra spec", ID: key}
	}
	delete(groupType.ExtraSpecs, key)

	return s.DB.WithContext(ctx).Omit(clause.Associations).Save(groupType).Error
}

var booleanExtraSpecPattern = regexp.MustCompile(`(?i)^<is>\s*(true|false)$`)

// ParseBooleanExtraSpec parses extra-spec values of the form
// "<is> True" or "<is> False" (case-insensitive, surrounding whitespace
// ignored). Anything else, including non-string values, is rejected.
func ParseBooleanExtraSpec(key string, value interface{}) (bool, error) {
	str, ok := value.(string)
	if !ok {
		return false, &InvalidExtraSpecError{
			Reason: invalidBooleanExtraSpecReason(key, value),
		}
	}

	match := booleanExtraSpecPattern.FindStringSubmatch(strings.TrimSpace(str))
	if match == nil {
		return false, &InvalidExtraSpecError{
			Reason: invalidBooleanExtraSpecReason(key, value),
		}
	}
	return strings.EqualFold(match[1], "true"), nil
}

func invalidBooleanExtraSpecReason(key string, value interface{}) string {
	return fmt.Sprintf("invalid boolean extra spec %s : %v", key, value)
}
