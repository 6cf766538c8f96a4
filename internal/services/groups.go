package services

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/shareplane/backend/internal/dispatch"
	"github.com/shareplane/backend/internal/models"
	"github.com/shareplane/backend/pkg/logger"
	"gorm.io/gorm"
)

// GroupService orchestrates share-group and group-snapshot lifecycles:
// cross-entity validation, multi-record creation with explicit
// compensation on partial failure, and the dispatch decision between
// scheduler placement and direct backend replay.
//
// Multi-record sequences are deliberately not wrapped in a database
// transaction; when a later step fails, the records created so far are
// deleted in order before the failure is returned. A crash between
// create and compensating delete can leave an orphan, resolved by
// operational reconciliation.
type GroupService struct {
	DB          *gorm.DB
	Scheduler   dispatch.SchedulerDispatcher
	Backend     dispatch.BackendDispatcher
	Provisioner ShareProvisioner
}

func NewGroupService(db *gorm.DB, scheduler dispatch.SchedulerDispatcher, backend dispatch.BackendDispatcher, provisioner ShareProvisioner) *GroupService {
	return &GroupService{
		DB:          db,
		Scheduler:   scheduler,
		Backend:     backend,
		Provisioner: provisioner,
	}
}

// CreateGroupRequest is the resolved input for CreateGroup. Exactly one
// of ShareTypeIDs / SourceGroupSnapshotID drives the share-type set;
// when a snapshot source is given every placement attribute is
// inherited from the snapshot's parent group.
type CreateGroupRequest struct {
	Name                  string
	Description           *string
	ShareTypeIDs          []uuid.UUID
	SourceGroupSnapshotID *uuid.UUID
	ShareNetworkID        *uuid.UUID
	ShareGroupTypeID      uuid.UUID
	UserID                uuid.UUID
	ProjectID             uuid.UUID
}

func (s *GroupService) CreateGroup(ctx context.Context, req CreateGroupRequest) (*models.ShareGroup, error) {
	var (
		sourceSnapshot *models.GroupSnapshot
		sourceGroup    *models.ShareGroup
		shareServerID  *uuid.UUID
	)

	shareTypeIDs := req.ShareTypeIDs
	shareNetworkID := req.ShareNetworkID

	if req.SourceGroupSnapshotID != nil {
		snapshot, err := s.getGroupSnapshotRecord(ctx, *req.SourceGroupSnapshotID)
		if err != nil {
			return nil, err
		}
		if snapshot.Status != models.StatusAvailable {
			return nil, &InvalidGroupSnapshotError{
				Reason: fmt.Sprintf("share group snapshot status must be %s", models.StatusAvailable),
			}
		}
		sourceSnapshot = snapshot

		group, err := s.getGroupRecord(ctx, snapshot.ShareGroupID)
		if err != nil {
			return nil, err
		}
		sourceGroup = group

		// Placement is inherited from the parent group, overriding
		// anything the caller supplied.
		shareTypeIDs = group.ShareTypeIDs()
		shareNetworkID = group.ShareNetworkID
		shareServerID = group.ShareServerID
	}

	shareTypes, err := s.resolveShareTypes(ctx, shareTypeIDs)
	if err != nil {
		return nil, err
	}

	driverHandlesShareServers, err := deriveDriverHandlesShareServers(shareTypes)
	if err != nil {
		return nil, err
	}
	if !driverHandlesShareServers && shareNetworkID != nil {
		return nil, &InvalidInputError{
			Reason: "a share network must not be provided when the requested share types set driver_handles_share_servers to false",
		}
	}

	if shareNetworkID != nil {
		var network models.ShareNetwork
		if err := s.DB.WithContext(ctx).First(&network, "id = ?", *shareNetworkID).Error; err != nil {
			if err == gorm.ErrRecordNotFound {
				return nil, &InvalidInputError{Reason: "the specified share network does not exist"}
			}
			return nil, err
		}
	}

	if driverHandlesShareServers && req.SourceGroupSnapshotID == nil && shareNetworkID == nil {
		return nil, &InvalidInputError{
			Reason: "a share network must be provided when the requested share types set driver_handles_share_servers to true",
		}
	}

	var groupType models.ShareGroupType
	err = s.DB.WithContext(ctx).
		Preload("ShareTypes").
		First(&groupType, "id = ?", req.ShareGroupTypeID).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, &InvalidInputError{Reason: "the specified share group type does not exist"}
		}
		return nil, err
	}

	supported := make(map[uuid.UUID]bool, len(groupType.ShareTypes))
	for _, st := range groupType.ShareTypes {
		supported[st.ShareTypeID] = true
	}
	for _, id := range shareTypeIDs {
		if !supported[id] {
			return nil, &InvalidInputError{
				Reason: "the specified share types must be a subset of the share types supported by the share group type",
			}
		}
	}

	// With no explicit share types and no snapshot source, the group
	// adopts the group type's full allowed set.
	if len(shareTypeIDs) == 0 {
		shareTypeIDs = groupType.ShareTypeIDs()
	}

	group := models.ShareGroup{
		Name:                  req.Name,
		Description:           req.Description,
		Status:                models.StatusCreating,
		ShareGroupTypeID:      req.ShareGroupTypeID,
		ShareNetworkID:        shareNetworkID,
		ShareServerID:         shareServerID,
		SourceGroupSnapshotID: req.SourceGroupSnapshotID,
		UserID:                req.UserID,
		ProjectID:             req.ProjectID,
	}
	if sourceGroup != nil {
		group.Host = sourceGroup.Host
	}

	err = s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&group).Error; err != nil {
			return err
		}
		for _, shareTypeID := range shareTypeIDs {
			join := models.ShareGroupShareType{
				ShareGroupID: group.ID,
				ShareTypeID:  shareTypeID,
			}
			if err := tx.Create(&join).Error; err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if sourceSnapshot != nil {
		if err := s.cloneSnapshotMembers(ctx, &group, sourceSnapshot, shareNetworkID); err != nil {
			s.destroyGroupRecord(ctx, group.ID)
			return nil, err
		}
	}

	logger.InfoWithUser(req.UserID.String(), "share_group_created", map[string]interface{}{
		"share_group_id": group.ID.String(),
		"group_type_id":  req.ShareGroupTypeID.String(),
		"from_snapshot":  sourceSnapshot != nil,
	})

	if sourceSnapshot != nil && sourceGroup != nil {
		// Placement is inherited: replay onto the source group's host
		// instead of asking the scheduler.
		if err := s.Backend.CreateShareGroup(ctx, &group, sourceGroup.Host); err != nil {
			return nil, err
		}
	} else {
		spec := dispatch.RequestSpec{
			ShareGroupID:          group.ID,
			Name:                  group.Name,
			ShareGroupTypeID:      group.ShareGroupTypeID,
			ShareNetworkID:        group.ShareNetworkID,
			ShareServerID:         group.ShareServerID,
			SourceGroupSnapshotID: group.SourceGroupSnapshotID,
			ShareTypes:            shareTypes,
			ResourceType:          &groupType,
			FilterProperties:      map[string]interface{}{},
		}
		if err := s.Scheduler.CreateShareGroup(ctx, spec); err != nil {
			return nil, err
		}
	}

	return s.Get(ctx, group.ID)
}

// resolveShareTypes loads every requested share type, failing on the
// first unknown id.
func (s *GroupService) resolveShareTypes(ctx context.Context, ids []uuid.UUID) ([]models.ShareType, error) {
	shareTypes := make([]models.ShareType, 0, len(ids))
	for _, id := range ids {
		var shareType models.ShareType
		if err := s.DB.WithContext(ctx).First(&shareType, "id = ?", id).Error; err != nil {
			if err == gorm.ErrRecordNotFound {
				return nil, &InvalidInputError{
					Reason: fmt.Sprintf("share type with id %s could not be found", id),
				}
			}
			return nil, err
		}
		shareTypes = append(shareTypes, shareType)
	}
	return shareTypes, nil
}

// deriveDriverHandlesShareServers folds the capability flag across all
// requested share types; a disagreement is a caller error regardless of
// the order the types were given in.
func deriveDriverHandlesShareServers(shareTypes []models.ShareType) (bool, error) {
	var flag *bool
	for _, shareType := range shareTypes {
		value := shareType.DriverHandlesShareServers
		if flag == nil {
			flag = &value
			continue
		}
		if *flag != value {
			return false, &InvalidInputError{
				Reason: "the specified share types cannot have conflicting values for the driver_handles_share_servers capability",
			}
		}
	}
	if flag == nil {
		return false, nil
	}
	return *flag, nil
}

// cloneSnapshotMembers provisions one new share per member of the
// source snapshot, linked to the new group. The caller compensates by
// destroying the group if any provisioning step fails.
func (s *GroupService) cloneSnapshotMembers(ctx context.Context, group *models.ShareGroup, snapshot *models.GroupSnapshot, shareNetworkID *uuid.UUID) error {
	var members []models.GroupSnapshotMember
	if err := s.DB.WithContext(ctx).
		Where("group_snapshot_id = ?", snapshot.ID).
		Order("created_at ASC").
		Find(&members).Error; err != nil {
		return err
	}

	for i := range members {
		member := &members[i]

		var share models.Share
		if err := s.DB.WithContext(ctx).First(&share, "id = ?", member.ShareID).Error; err != nil {
			return err
		}
		var shareType models.ShareType
		if err := s.DB.WithContext(ctx).First(&shareType, "id = ?", share.ShareTypeID).Error; err != nil {
			return err
		}

		_, err := s.Provisioner.CreateShare(ctx, ProvisionRequest{
			ShareProto:     member.ShareProto,
			Size:           member.Size,
			ShareGroup:     group,
			SnapshotMember: member,
			ShareType:      &shareType,
			ShareNetworkID: shareNetworkID,
			UserID:         group.UserID,
			ProjectID:      group.ProjectID,
		})
		if err != nil {
			return err
		}
	}
	return nil
}

// destroyGroupRecord removes the group aggregate (join rows first).
// Used both for the pre-scheduling delete path and as compensation when
// a creation step fails after the group record landed.
func (s *GroupService) destroyGroupRecord(ctx context.Context, groupID uuid.UUID) {
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("share_group_id = ?", groupID).Delete(&models.ShareGroupShareType{}).Error; err != nil {
			return err
		}
		return tx.Delete(&models.ShareGroup{}, "id = ?", groupID).Error
	})
	if err != nil {
		logger.Error("share_group_compensation_failed", err, map[string]interface{}{
			"share_group_id": groupID.String(),
		})
	}
}

// DeleteGroup removes a group that never reached a host outright;
// otherwise it gates on status and emptiness, marks the group deleting
// and hands the final teardown to the backend host.
func (s *GroupService) DeleteGroup(ctx context.Context, group *models.ShareGroup) error {
	if group.Host == "" {
		s.destroyGroupRecord(ctx, group.ID)
		return nil
	}

	if !group.Status.Deletable() {
		return &InvalidShareGroupError{
			Reason: fmt.Sprintf("share group status must be %s or %s", models.StatusAvailable, models.StatusError),
		}
	}

	var snapshots int64
	if err := s.DB.WithContext(ctx).
		Model(&models.GroupSnapshot{}).
		Where("share_group_id = ?", group.ID).
		Count(&snapshots).Error; err != nil {
		return err
	}
	if snapshots > 0 {
		return &InvalidShareGroupError{Reason: "cannot delete a share group with group snapshots"}
	}

	var shares int64
	if err := s.DB.WithContext(ctx).
		Model(&models.Share{}).
		Where("share_group_id = ?", group.ID).
		Count(&shares).Error; err != nil {
		return err
	}
	if shares > 0 {
		return &InvalidShareGroupError{Reason: "cannot delete a share group with shares"}
	}

	if err := s.DB.WithContext(ctx).
		Model(&models.ShareGroup{}).
		Where("id = ?", group.ID).
		Update("status", models.StatusDeleting).Error; err != nil {
		return err
	}
	group.Status = models.StatusDeleting

	return s.Backend.DeleteShareGroup(ctx, group)
}

// ForceDeleteGroup removes a group unconditionally, skipping the status
// and emptiness gates. Shares still pointing at the group are detached
// rather than deleted. Operator escape hatch only.
func (s *GroupService) ForceDeleteGroup(ctx context.Context, group *models.ShareGroup) error {
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&models.Share{}).
			Where("share_group_id = ?", group.ID).
			Update("share_group_id", nil).Error; err != nil {
			return err
		}
		if err := tx.Where("share_group_id = ?", group.ID).Delete(&models.ShareGroupShareType{}).Error; err != nil {
			return err
		}
		return tx.Delete(&models.ShareGroup{}, "id = ?", group.ID).Error
	})
	if err != nil {
		return err
	}

	if group.Host != "" {
		return s.Backend.DeleteShareGroup(ctx, group)
	}
	return nil
}

// ForceDeleteGroupSnapshot removes a snapshot and its members
// unconditionally. Operator escape hatch only.
func (s *GroupService) ForceDeleteGroupSnapshot(ctx context.Context, snapshot *models.GroupSnapshot) error {
	group, err := s.getGroupRecord(ctx, snapshot.ShareGroupID)
	if err != nil {
		return err
	}

	txErr := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("group_snapshot_id = ?", snapshot.ID).Delete(&models.GroupSnapshotMember{}).Error; err != nil {
			return err
		}
		return tx.Delete(&models.GroupSnapshot{}, "id = ?", snapshot.ID).Error
	})
	if txErr != nil {
		return txErr
	}

	if group.Host != "" {
		return s.Backend.DeleteGroupSnapshot(ctx, snapshot, group.Host)
	}
	return nil
}

// UpdateGroup changes the mutable descriptive fields only.
func (s *GroupService) UpdateGroup(ctx context.Context, group *models.ShareGroup, updates map[string]interface{}) (*models.ShareGroup, error) {
	if err := s.DB.WithContext(ctx).
		Model(&models.ShareGroup{}).
		Where("id = ?", group.ID).
		Updates(updates).Error; err != nil {
		return nil, err
	}
	return s.Get(ctx, group.ID)
}

func (s *GroupService) Get(ctx context.Context, id uuid.UUID) (*models.ShareGroup, error) {
	return s.getGroupRecord(ctx, id)
}

func (s *GroupService) getGroupRecord(ctx context.Context, id uuid.UUID) (*models.ShareGroup, error) {
	var group models.ShareGroup
	err := s.DB.WithContext(ctx).
		Preload("ShareTypes").
		First(&group, "id = ?", id).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, &NotFoundError{Resource: "share group", ID: id.String()}
		}
		return nil, err
	}
	return &group, nil
}

// ListOptions scopes and filters list operations. Non-admin callers are
// always limited to their own project; AllTenants only takes effect for
// admins.
type ListOptions struct {
	ProjectID   uuid.UUID
	Admin       bool
	AllTenants  bool
	Name        string
	Status      models.Status
	GroupTypeID *uuid.UUID
}

func (s *GroupService) GetAll(ctx context.Context, opts ListOptions) ([]models.ShareGroup, error) {
	query := s.DB.WithContext(ctx).
		Model(&models.ShareGroup{}).
		Preload("ShareTypes").
		Order("created_at DESC")

	if !(opts.Admin && opts.AllTenants) {
		query = query.Where("project_id = ?", opts.ProjectID)
	}
	if opts.Name != "" {
		query = query.Where("name = ?", opts.Name)
	}
	if opts.Status != "" {
		query = query.Where("status = ?", opts.Status)
	}
	if opts.GroupTypeID != nil {
		query = query.Where("share_group_type_id = ?", *opts.GroupTypeID)
	}

	var groups []models.ShareGroup
	if err := query.Find(&groups).Error; err != nil {
		return nil, err
	}
	return groups, nil
}

// CreateGroupSnapshotRequest is the input for CreateGroupSnapshot.
type CreateGroupSnapshotRequest struct {
	Name         string
	Description  *string
	ShareGroupID uuid.UUID
	UserID       uuid.UUID
	ProjectID    uuid.UUID
}

func (s *GroupService) CreateGroupSnapshot(ctx context.Context, req CreateGroupSnapshotRequest) (*models.GroupSnapshot, error) {
	group, err := s.getGroupRecord(ctx, req.ShareGroupID)
	if err != nil {
		return nil, err
	}
	if group.Status != models.StatusAvailable {
		return nil, &InvalidShareGroupError{
			Reason: fmt.Sprintf("share group status must be %s", models.StatusAvailable),
		}
	}

	var shares []models.Share
	if err := s.DB.WithContext(ctx).
		Where("share_group_id = ?", group.ID).
		Order("created_at ASC").
		Find(&shares).Error; err != nil {
		return nil, err
	}
	for _, share := range shares {
		if share.Status != models.StatusAvailable {
			return nil, &InvalidShareGroupError{
				Reason: fmt.Sprintf("share %s in share group must have status %s in order to create a group snapshot",
					share.ID, models.StatusAvailable),
			}
		}
	}

	snapshot := models.GroupSnapshot{
		Name:         req.Name,
		Description:  req.Description,
		Status:       models.StatusCreating,
		ShareGroupID: group.ID,
		UserID:       req.UserID,
		ProjectID:    req.ProjectID,
	}
	if err := s.DB.WithContext(ctx).Create(&snapshot).Error; err != nil {
		return nil, err
	}

	// One member per share, then the backend cast. Any failure unwinds
	// the snapshot aggregate before the error is returned.
	err = func() error {
		for _, share := range shares {
			member := models.GroupSnapshotMember{
				GroupSnapshotID: snapshot.ID,
				ShareID:         share.ID,
				ShareInstanceID: share.ShareInstanceID,
				ShareProto:      share.ShareProto,
				Size:            share.Size,
				Status:          models.StatusCreating,
				UserID:          req.UserID,
				ProjectID:       req.ProjectID,
			}
			if err := s.DB.WithContext(ctx).Create(&member).Error; err != nil {
				return err
			}
		}
		return s.Backend.CreateGroupSnapshot(ctx, &snapshot, group.Host)
	}()
	if err != nil {
		s.destroyGroupSnapshotRecord(ctx, snapshot.ID)
		return nil, err
	}

	logger.InfoWithUser(req.UserID.String(), "group_snapshot_created", map[string]interface{}{
		"group_snapshot_id": snapshot.ID.String(),
		"share_group_id":    group.ID.String(),
		"members":           len(shares),
	})

	return s.GetGroupSnapshot(ctx, snapshot.ID)
}

// destroyGroupSnapshotRecord deletes a snapshot and cascades its
// members.
func (s *GroupService) destroyGroupSnapshotRecord(ctx context.Context, snapshotID uuid.UUID) {
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("group_snapshot_id = ?", snapshotID).Delete(&models.GroupSnapshotMember{}).Error; err != nil {
			return err
		}
		return tx.Delete(&models.GroupSnapshot{}, "id = ?", snapshotID).Error
	})
	if err != nil {
		logger.Error("group_snapshot_compensation_failed", err, map[string]interface{}{
			"group_snapshot_id": snapshotID.String(),
		})
	}
}

func (s *GroupService) DeleteGroupSnapshot(ctx context.Context, snapshot *models.GroupSnapshot) error {
	group, err := s.getGroupRecord(ctx, snapshot.ShareGroupID)
	if err != nil {
		return err
	}

	if !snapshot.Status.Deletable() {
		return &InvalidGroupSnapshotError{
			Reason: fmt.Sprintf("share group snapshot status must be %s or %s", models.StatusAvailable, models.StatusError),
		}
	}

	if err := s.DB.WithContext(ctx).
		Model(&models.GroupSnapshot{}).
		Where("id = ?", snapshot.ID).
		Update("status", models.StatusDeleting).Error; err != nil {
		return err
	}
	snapshot.Status = models.StatusDeleting

	return s.Backend.DeleteGroupSnapshot(ctx, snapshot, group.Host)
}

// UpdateGroupSnapshot changes the mutable descriptive fields only.
func (s *GroupService) UpdateGroupSnapshot(ctx context.Context, snapshot *models.GroupSnapshot, updates map[string]interface{}) (*models.GroupSnapshot, error) {
	if err := s.DB.WithContext(ctx).
		Model(&models.GroupSnapshot{}).
		Where("id = ?", snapshot.ID).
		Updates(updates).Error; err != nil {
		return nil, err
	}
	return s.GetGroupSnapshot(ctx, snapshot.ID)
}

func (s *GroupService) GetGroupSnapshot(ctx context.Context, id uuid.UUID) (*models.GroupSnapshot, error) {
	var snapshot models.GroupSnapshot
	err := s.DB.WithContext(ctx).
		Preload("Members").
		First(&snapshot, "id = ?", id).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, &NotFoundError{Resource: "share group snapshot", ID: id.String()}
		}
		return nil, err
	}
	return &snapshot, nil
}

// getGroupSnapshotRecord loads a snapshot without its members, for the
// clone path where only status and lineage matter.
func (s *GroupService) getGroupSnapshotRecord(ctx context.Context, id uuid.UUID) (*models.GroupSnapshot, error) {
	var snapshot models.GroupSnapshot
	err := s.DB.WithContext(ctx).First(&snapshot, "id = ?", id).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, &NotFoundError{Resource: "share group snapshot", ID: id.String()}
		}
		return nil, err
	}
	return &snapshot, nil
}

func (s *GroupService) GetAllGroupSnapshots(ctx context.Context, opts ListOptions) ([]models.GroupSnapshot, error) {
	query := s.DB.WithContext(ctx).
		Model(&models.GroupSnapshot{}).
		Preload("Members").
		Order("created_at DESC")

	if !(opts.Admin && opts.AllTenants) {
		query = query.Where("project_id = ?", opts.ProjectID)
	}
	if opts.Name != "" {
		query = query.Where("name = ?", opts.Name)
	}
	if opts.Status != "" {
		query = query.Where("status = ?", opts.Status)
	}

	var snapshots []models.GroupSnapshot
	if err := query.Find(&snapshots).Error; err != nil {
		return nil, err
	}
	return snapshots, nil
}

func (s *GroupService) GetAllGroupSnapshotMembers(ctx context.Context, snapshotID uuid.UUID) ([]models.GroupSnapshotMember, error) {
	var members []models.GroupSnapshotMember
	err := s.DB.WithContext(ctx).
		Where("group_snapshot_id = ?", snapshotID).
		Order("created_at ASC").
		Find(&members).Error
	if err != nil {
		return nil, err
	}
	return members, nil
}
