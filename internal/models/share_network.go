package models

import "github.com/google/uuid"

// ShareNetwork is the tenant-supplied network context handed to
// backends whose driver manages share servers.
type ShareNetwork struct {
	BaseModel
	Name      string    `json:"name" gorm:"type:varchar(255);not null"`
	ProjectID uuid.UUID `json:"projectID" gorm:"type:uuid;not null;index"`
}

func (ShareNetwork) TableName() string {
	return "share_networks"
}
