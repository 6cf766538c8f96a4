package models

import "github.com/google/uuid"

// ShareGroup is a set of shares provisioned and snapshotted together
// under one group-type policy. Host stays empty until the scheduler
// places the group (or, for snapshot clones, is inherited from the
// source group at create time).
type ShareGroup struct {
	BaseModel
	Name                  string     `json:"name" gorm:"type:varchar(255)"`
	Description           *string    `json:"description,omitempty" gorm:"type:text"`
	Status                Status     `json:"status" gorm:"type:varchar(20);not null;index"`
	Host                  string     `json:"host" gorm:"type:varchar(255)"`
	ShareGroupTypeID      uuid.UUID  `json:"shareGroupTypeID" gorm:"type:uuid;not null;index"`
	ShareNetworkID        *uuid.UUID `json:"shareNetworkID,omitempty" gorm:"type:uuid"`
	ShareServerID         *uuid.UUID `json:"-" gorm:"type:uuid"`
	SourceGroupSnapshotID *uuid.UUID `json:"sourceGroupSnapshotID,omitempty" gorm:"type:uuid"`
	UserID                uuid.UUID  `json:"userID" gorm:"type:uuid;not null"`
	ProjectID             uuid.UUID  `json:"projectID" gorm:"type:uuid;not null;index"`

	ShareGroupType ShareGroupType        `json:"-" gorm:"foreignKey:ShareGroupTypeID"`
	ShareTypes     []ShareGroupShareType `json:"shareTypes,omitempty" gorm:"foreignKey:ShareGroupID"`
	Shares         []Share               `json:"-" gorm:"foreignKey:ShareGroupID"`
}

func (ShareGroup) TableName() string {
	return "share_groups"
}

// ShareTypeIDs flattens the join rows into the set of share type ids
// used by the group's members.
func (g *ShareGroup) ShareTypeIDs() []uuid.UUID {
	ids := make([]uuid.UUID, 0, len(g.ShareTypes))
	for _, st := range g.ShareTypes {
		ids = append(ids, st.ShareTypeID)
	}
	return ids
}

// ShareGroupShareType records one share type used by a group. Rows are
// created with the group and never mutated afterwards.
type ShareGroupShareType struct {
	BaseModel
	ShareGroupID uuid.UUID `json:"shareGroupID" gorm:"type:uuid;not null;index;uniqueIndex:idx_group_share_type"`
	ShareTypeID  uuid.UUID `json:"shareTypeID" gorm:"type:uuid;not null;uniqueIndex:idx_group_share_type"`
}

func (ShareGroupShareType) TableName() string {
	return "share_group_share_types"
}
