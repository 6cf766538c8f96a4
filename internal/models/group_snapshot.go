package models

import "github.com/google/uuid"

// GroupSnapshot is a point-in-time, consistent capture of every share
// in a group. Members are created transactionally alongside the
// snapshot and cascade-deleted with it.
type GroupSnapshot struct {
	BaseModel
	Name         string    `json:"name" gorm:"type:varchar(255)"`
	Description  *string   `json:"description,omitempty" gorm:"type:text"`
	Status       Status    `json:"status" gorm:"type:varchar(20);not null;index"`
	ShareGroupID uuid.UUID `json:"shareGroupID" gorm:"type:uuid;not null;index"`
	UserID       uuid.UUID `json:"userID" gorm:"type:uuid;not null"`
	ProjectID    uuid.UUID `json:"projectID" gorm:"type:uuid;not null;index"`

	ShareGroup ShareGroup            `json:"-" gorm:"foreignKey:ShareGroupID"`
	Members    []GroupSnapshotMember `json:"members,omitempty" gorm:"foreignKey:GroupSnapshotID"`
}

func (GroupSnapshot) TableName() string {
	return "group_snapshots"
}

// GroupSnapshotMember captures one share of the parent group as it was
// at snapshot time. Never created independently of its snapshot.
type GroupSnapshotMember struct {
	BaseModel
	GroupSnapshotID uuid.UUID `json:"groupSnapshotID" gorm:"type:uuid;not null;index"`
	ShareID         uuid.UUID `json:"shareID" gorm:"type:uuid;not null;index"`
	ShareInstanceID uuid.UUID `json:"shareInstanceID" gorm:"type:uuid;not null"`
	ShareProto      string    `json:"shareProto" gorm:"type:varchar(20);not null"`
	Size            int64     `json:"size" gorm:"not null"`
	Status          Status    `json:"status" gorm:"type:varchar(20);not null"`
	UserID          uuid.UUID `json:"userID" gorm:"type:uuid;not null"`
	ProjectID       uuid.UUID `json:"projectID" gorm:"type:uuid;not null"`
}

func (GroupSnapshotMember) TableName() string {
	return "group_snapshot_members"
}
