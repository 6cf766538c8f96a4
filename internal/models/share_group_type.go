package models

import "github.com/google/uuid"

// ExtraSpecs is free-form typed metadata attached to a group type.
// Values are strings or booleans; nested maps are allowed one or more
// levels deep.
type ExtraSpecs map[string]interface{}

// ShareGroupType is a named, reusable policy restricting which share
// types a group may mix. Private types are visible only to projects
// granted access.
type ShareGroupType struct {
	BaseModel
	Name       string     `json:"name" gorm:"type:varchar(255);uniqueIndex;not null"`
	// No column default: gorm drops zero-valued fields carrying one
	// from the INSERT, which would silently turn private types public.
	IsPublic   bool       `json:"isPublic" gorm:"not null"`
	ExtraSpecs ExtraSpecs `json:"extraSpecs" gorm:"type:jsonb;serializer:json"`

	ShareTypes []ShareGroupTypeShareType    `json:"shareTypes,omitempty" gorm:"foreignKey:ShareGroupTypeID"`
	Projects   []ShareGroupTypeProjectAccess `json:"-" gorm:"foreignKey:ShareGroupTypeID"`
}

func (ShareGroupType) TableName() string {
	return "share_group_types"
}

// ShareTypeIDs flattens the join rows into the set of allowed share
// type ids.
func (t *ShareGroupType) ShareTypeIDs() []uuid.UUID {
	ids := make([]uuid.UUID, 0, len(t.ShareTypes))
	for _, st := range t.ShareTypes {
		ids = append(ids, st.ShareTypeID)
	}
	return ids
}

// ProjectIDs flattens the access rows into the set of granted projects.
func (t *ShareGroupType) ProjectIDs() []uuid.UUID {
	ids := make([]uuid.UUID, 0, len(t.Projects))
	for _, p := range t.Projects {
		ids = append(ids, p.ProjectID)
	}
	return ids
}

type ShareGroupTypeShareType struct {
	BaseModel
	ShareGroupTypeID uuid.UUID `json:"shareGroupTypeID" gorm:"type:uuid;not null;index;uniqueIndex:idx_group_type_share_type"`
	ShareTypeID      uuid.UUID `json:"shareTypeID" gorm:"type:uuid;not null;uniqueIndex:idx_group_type_share_type"`
}

func (ShareGroupTypeShareType) TableName() string {
	return "share_group_type_share_types"
}

// ShareGroupTypeProjectAccess grants one project visibility into a
// private group type.
type ShareGroupTypeProjectAccess struct {
	BaseModel
	ShareGroupTypeID uuid.UUID `json:"shareGroupTypeID" gorm:"type:uuid;not null;index;uniqueIndex:idx_group_type_project"`
	ProjectID        uuid.UUID `json:"projectID" gorm:"type:uuid;not null;uniqueIndex:idx_group_type_project"`
}

func (ShareGroupTypeProjectAccess) TableName() string {
	return "share_group_type_project_access"
}
