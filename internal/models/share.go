package models

import "github.com/google/uuid"

// Share is a provisioned network file-storage export. Only the fields
// the group control plane needs are modeled here; the share manager
// owns everything else about a share's lifecycle.
type Share struct {
	BaseModel
	Name            string     `json:"name" gorm:"type:varchar(255)"`
	Status          Status     `json:"status" gorm:"type:varchar(20);not null;index"`
	Size            int64      `json:"size" gorm:"not null"`
	ShareProto      string     `json:"shareProto" gorm:"type:varchar(20);not null"`
	ShareTypeID     uuid.UUID  `json:"shareTypeID" gorm:"type:uuid;not null;index"`
	ShareGroupID    *uuid.UUID `json:"shareGroupID,omitempty" gorm:"type:uuid;index"`
	ShareNetworkID  *uuid.UUID `json:"shareNetworkID,omitempty" gorm:"type:uuid"`
	ShareInstanceID uuid.UUID  `json:"shareInstanceID" gorm:"type:uuid"`
	// SourceSnapshotMemberID links a share cloned from a group snapshot
	// back to the member it was restored from.
	SourceSnapshotMemberID *uuid.UUID `json:"sourceSnapshotMemberID,omitempty" gorm:"type:uuid"`
	UserID                 uuid.UUID  `json:"userID" gorm:"type:uuid;not null"`
	ProjectID              uuid.UUID  `json:"projectID" gorm:"type:uuid;not null;index"`

	ShareType ShareType `json:"shareType,omitempty" gorm:"foreignKey:ShareTypeID"`
}

func (Share) TableName() string {
	return "shares"
}
