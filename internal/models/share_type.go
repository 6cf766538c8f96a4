package models

// ShareType describes a provisioning policy for individual shares. The
// DriverHandlesShareServers capability decides whether a share network
// must accompany the shares created under it.
type ShareType struct {
	BaseModel
	Name                      string `json:"name" gorm:"type:varchar(255);uniqueIndex;not null"`
	DriverHandlesShareServers bool   `json:"driverHandlesShareServers" gorm:"not null"`
	IsPublic                  bool   `json:"isPublic" gorm:"not null"`
}

func (ShareType) TableName() string {
	return "share_types"
}
