package dispatch

import (
	"context"

	"github.com/google/uuid"
	"github.com/shareplane/backend/internal/models"
)

// RequestSpec carries everything the scheduler needs to place a new
// share group on a backend host.
type RequestSpec struct {
	ShareGroupID          uuid.UUID              `json:"shareGroupID"`
	Name                  string                 `json:"name,omitempty"`
	ShareGroupTypeID      uuid.UUID              `json:"shareGroupTypeID"`
	ShareNetworkID        *uuid.UUID             `json:"shareNetworkID,omitempty"`
	ShareServerID         *uuid.UUID             `json:"shareServerID,omitempty"`
	SourceGroupSnapshotID *uuid.UUID             `json:"sourceGroupSnapshotID,omitempty"`
	ShareTypes            []models.ShareType     `json:"shareTypes"`
	ResourceType          *models.ShareGroupType `json:"resourceType"`
	FilterProperties      map[string]interface{} `json:"filterProperties,omitempty"`
}

// SchedulerDispatcher asks the scheduler to pick a backend host for a
// new share group. The call returns once the placement request is
// accepted by the transport, not once a host is chosen.
type SchedulerDispatcher interface {
	CreateShareGroup(ctx context.Context, spec RequestSpec) error
}

// BackendDispatcher sends commands directly to a known backend host.
// Used when placement is already decided: snapshot clones inherit the
// source group's host, and deletes target the host that owns the
// resource. All calls are fire-and-forget.
type BackendDispatcher interface {
	CreateShareGroup(ctx context.Context, group *models.ShareGroup, host string) error
	DeleteShareGroup(ctx context.Context, group *models.ShareGroup) error
	CreateGroupSnapshot(ctx context.Context, snapshot *models.GroupSnapshot, host string) error
	DeleteGroupSnapshot(ctx context.Context, snapshot *models.GroupSnapshot, host string) error
	CreateShare(ctx context.Context, share *models.Share, host string) error
}
