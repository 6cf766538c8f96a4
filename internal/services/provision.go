package services

import (
	"context"

	"github.com/google/uuid"
	"github.com/shareplane/backend/internal/dispatch"
	"github.com/shareplane/backend/internal/models"
	"gorm.io/gorm"
)

// ProvisionRequest describes one share to create inside a group,
// typically a clone of a group-snapshot member.
type ProvisionRequest struct {
	ShareProto     string
	Size           int64
	ShareGroup     *models.ShareGroup
	SnapshotMember *models.GroupSnapshotMember
	ShareType      *models.ShareType
	ShareNetworkID *uuid.UUID
	UserID         uuid.UUID
	ProjectID      uuid.UUID
}

// ShareProvisioner creates individual shares on behalf of the group
// orchestrator. Kept as an interface so group tests can observe and
// fail provisioning without a share service behind it.
type ShareProvisioner interface {
	CreateShare(ctx context.Context, req ProvisionRequest) (*models.Share, error)
}

// ProvisionService records the share and casts the create to the
// group's host. Placement is already decided by the group, so the
// scheduler is never consulted here.
type ProvisionService struct {
	DB      *gorm.DB
	Backend dispatch.BackendDispatcher
}

func NewProvisionService(db *gorm.DB, backend dispatch.BackendDispatcher) *ProvisionService {
	return &ProvisionService{DB: db, Backend: backend}
}

func (s *ProvisionService) CreateShare(ctx context.Context, req ProvisionRequest) (*models.Share, error) {
	share := models.Share{
		Status:          models.StatusCreating,
		Size:            req.Size,
		ShareProto:      req.ShareProto,
		ShareTypeID:     req.ShareType.ID,
		ShareGroupID:    &req.ShareGroup.ID,
		ShareNetworkID:  req.ShareNetworkID,
		ShareInstanceID: uuid.New(),
		UserID:          req.UserID,
		ProjectID:       req.ProjectID,
	}
	if req.SnapshotMember != nil {
		share.SourceSnapshotMemberID = &req.SnapshotMember.ID
	}

	if err := s.DB.WithContext(ctx).Create(&share).Error; err != nil {
		return nil, err
	}

	if err := s.Backend.CreateShare(ctx, &share, req.ShareGroup.Host); err != nil {
		return nil, err
	}
	return &share, nil
}
